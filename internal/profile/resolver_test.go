package profile

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/roles"
	"github.com/kampus-erp/kampus/internal/shared"
)

type mockRepo struct {
	mu        sync.Mutex
	rows      map[string]*Record
	byIDErrs  []error
	byMailErr error
	linkErr   error
	byIDCalls int
	links     int
}

func newMockRepo(rows ...*Record) *mockRepo {
	m := &mockRepo{rows: make(map[string]*Record)}
	for _, r := range rows {
		m.rows[r.RowID] = r
	}
	return m
}

func (m *mockRepo) FindByUserID(_ context.Context, userID string) (*Record, error) {
	m.mu.Lock()
	m.byIDCalls++
	if len(m.byIDErrs) > 0 {
		err := m.byIDErrs[0]
		m.byIDErrs = m.byIDErrs[1:]
		m.mu.Unlock()
		return nil, err
	}
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.UserID == userID {
			c := *r
			return &c, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepo) FindByEmail(_ context.Context, email string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byMailErr != nil {
		return nil, m.byMailErr
	}
	for _, r := range m.rows {
		if r.Email == email {
			c := *r
			return &c, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *mockRepo) Link(_ context.Context, rowID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.linkErr != nil {
		return false, m.linkErr
	}
	r, ok := m.rows[rowID]
	if !ok || r.UserID != "" {
		return false, nil
	}
	r.UserID = userID
	m.links++
	return true, nil
}

func newTestResolver(repo Repository, attempts int) *Resolver {
	return NewResolver(repo, Config{Attempts: attempts, Delay: time.Millisecond}, nil, nil)
}

var teacher = provider.Identity{ID: "u-guru", Email: "guru@sman1.sch.id"}

func teacherRow() *Record {
	return &Record{RowID: "p-1", Email: teacher.Email, DisplayName: "Bu Sari", Role: "teacher", TenantID: "t-1"}
}

func TestResolvePrimaryHit(t *testing.T) {
	row := teacherRow()
	row.UserID = teacher.ID
	repo := newMockRepo(row)

	res := newTestResolver(repo, 3).Resolve(context.Background(), teacher)

	require.True(t, res.Ready())
	assert.Equal(t, OutcomeLinked, res.Outcome)
	assert.Equal(t, teacher.ID, res.Profile.ID)
	assert.Equal(t, roles.Teacher, res.Profile.Role)
	assert.Equal(t, "t-1", res.Profile.TenantID)
	assert.Zero(t, repo.links)
}

func TestResolveSelfHealIsIdempotent(t *testing.T) {
	repo := newMockRepo(teacherRow())
	resolver := newTestResolver(repo, 3)

	first := resolver.Resolve(context.Background(), teacher)
	require.True(t, first.Ready())
	assert.Equal(t, OutcomeHealed, first.Outcome)
	assert.Equal(t, 1, repo.links)
	assert.Equal(t, teacher.ID, repo.rows["p-1"].UserID)

	second := resolver.Resolve(context.Background(), teacher)
	require.True(t, second.Ready())
	assert.Equal(t, OutcomeLinked, second.Outcome)
	assert.Equal(t, 1, repo.links)
	assert.Equal(t, first.Profile, second.Profile)
}

func TestResolveEmailLinkedToAnotherIdentity(t *testing.T) {
	row := teacherRow()
	row.UserID = "someone-else"
	repo := newMockRepo(row)

	res := newTestResolver(repo, 3).Resolve(context.Background(), teacher)

	assert.False(t, res.Ready())
	assert.Equal(t, OutcomeUnlinked, res.Outcome)
	assert.NoError(t, res.Err)
	assert.Zero(t, repo.links)
}

func TestResolveNothingFoundIsUnlinked(t *testing.T) {
	res := newTestResolver(newMockRepo(), 3).Resolve(context.Background(), teacher)

	assert.Nil(t, res.Profile)
	assert.Equal(t, OutcomeUnlinked, res.Outcome)
	assert.NoError(t, res.Err)
}

func TestResolvePermissionDeniedFallsBackWithoutRetry(t *testing.T) {
	repo := newMockRepo(teacherRow())
	repo.byIDErrs = []error{fmt.Errorf("%w: rls", shared.ErrPermissionDenied)}

	res := newTestResolver(repo, 3).Resolve(context.Background(), teacher)

	require.True(t, res.Ready())
	assert.Equal(t, OutcomeHealed, res.Outcome)
	assert.Equal(t, 1, repo.byIDCalls)
}

func TestResolveStructuralFailureAbortsImmediately(t *testing.T) {
	repo := newMockRepo(teacherRow())
	repo.byIDErrs = []error{
		fmt.Errorf("%w: infinite recursion detected in policy", shared.ErrStructuralQuery),
		fmt.Errorf("%w: infinite recursion detected in policy", shared.ErrStructuralQuery),
	}

	res := newTestResolver(repo, 5).Resolve(context.Background(), teacher)

	assert.Nil(t, res.Profile)
	assert.Equal(t, OutcomeFatal, res.Outcome)
	require.ErrorIs(t, res.Err, shared.ErrStructuralQuery)
	assert.Equal(t, 1, repo.byIDCalls)
}

func TestResolveTransientFailureRetriesThenSucceeds(t *testing.T) {
	row := teacherRow()
	row.UserID = teacher.ID
	repo := newMockRepo(row)
	repo.byIDErrs = []error{shared.ErrTransient, shared.ErrTransient}

	res := newTestResolver(repo, 3).Resolve(context.Background(), teacher)

	require.True(t, res.Ready())
	assert.Equal(t, 3, repo.byIDCalls)
}

func TestResolveTransientFailureIsBounded(t *testing.T) {
	repo := newMockRepo(teacherRow())
	repo.byIDErrs = []error{shared.ErrTransient, shared.ErrTransient, shared.ErrTransient, shared.ErrTransient}

	res := newTestResolver(repo, 3).Resolve(context.Background(), teacher)

	assert.Nil(t, res.Profile)
	assert.Equal(t, OutcomeFailed, res.Outcome)
	require.ErrorIs(t, res.Err, shared.ErrTransient)
	assert.Equal(t, 3, repo.byIDCalls)
}

func TestResolveStopsWhenCancelled(t *testing.T) {
	repo := newMockRepo(teacherRow())
	repo.byIDErrs = []error{shared.ErrTransient, shared.ErrTransient, shared.ErrTransient}
	ctx, cancel := context.WithCancel(context.Background())
	resolver := NewResolver(repo, Config{Attempts: 3, Delay: time.Hour}, nil, nil)

	done := make(chan Result, 1)
	go func() { done <- resolver.Resolve(ctx, teacher) }()
	require.Eventually(t, func() bool {
		repo.mu.Lock()
		defer repo.mu.Unlock()
		return repo.byIDCalls == 1
	}, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case res := <-done:
		assert.Equal(t, OutcomeCancelled, res.Outcome)
		assert.Nil(t, res.Profile)
	case <-time.After(2 * time.Second):
		t.Fatal("resolution did not stop after cancellation")
	}
}

func TestResolveRejectsTenantRoleWithoutTenant(t *testing.T) {
	row := teacherRow()
	row.UserID = teacher.ID
	row.TenantID = ""
	repo := newMockRepo(row)

	res := newTestResolver(repo, 3).Resolve(context.Background(), teacher)

	assert.Nil(t, res.Profile)
	assert.Equal(t, OutcomeUnlinked, res.Outcome)
}

func TestResolvePlatformRoleWithoutTenant(t *testing.T) {
	admin := provider.Identity{ID: "u-root", Email: "root@kampus.id"}
	repo := newMockRepo(&Record{RowID: "p-9", UserID: admin.ID, Email: admin.Email, Role: "system_admin"})

	res := newTestResolver(repo, 3).Resolve(context.Background(), admin)

	require.True(t, res.Ready())
	assert.True(t, res.Profile.Global())
	assert.Empty(t, res.Profile.TenantID)
}

func TestResolveUnknownRoleString(t *testing.T) {
	row := teacherRow()
	row.UserID = teacher.ID
	row.Role = "janitor"
	repo := newMockRepo(row)

	res := newTestResolver(repo, 3).Resolve(context.Background(), teacher)

	require.True(t, res.Ready())
	assert.Equal(t, roles.Unknown, res.Profile.Role)
}

func TestResolveLinkFailureKeepsRowUnlinked(t *testing.T) {
	repo := newMockRepo(teacherRow())
	repo.linkErr = shared.ErrTransient

	res := newTestResolver(repo, 2).Resolve(context.Background(), teacher)

	assert.Equal(t, OutcomeFailed, res.Outcome)
	assert.Nil(t, res.Profile)
	assert.Empty(t, repo.rows["p-1"].UserID)
	assert.Equal(t, 2, repo.byIDCalls)
}

func TestResolveSecondaryStructuralFailure(t *testing.T) {
	repo := newMockRepo(teacherRow())
	repo.byMailErr = shared.ErrStructuralQuery

	res := newTestResolver(repo, 3).Resolve(context.Background(), teacher)

	assert.Equal(t, OutcomeFatal, res.Outcome)
	assert.Equal(t, 1, repo.byIDCalls)
}
