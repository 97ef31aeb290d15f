package staff

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kampus-erp/kampus/internal/notification"
	"github.com/kampus-erp/kampus/internal/platform/db"
	"github.com/kampus-erp/kampus/internal/provider"
	"github.com/kampus-erp/kampus/internal/shared"
	"github.com/kampus-erp/kampus/internal/tenant"
)

type classRow struct {
	Class
	homeroom string
}

type mockRepo struct {
	mu      sync.Mutex
	members []*Member
	classes []classRow
	links   int
	failN   int
	queries []*db.Query
}

func columnValue(m *Member, column string) string {
	switch column {
	case "tenant_id":
		return m.TenantID
	case "user_id":
		return m.UserID
	case "lower(email)":
		return strings.ToLower(m.Email)
	}
	return ""
}

func matches(filters []db.Filter, value func(string) string) bool {
	for _, f := range filters {
		if f.Never {
			return false
		}
		if f.IsNull {
			if value(f.Column) != "" {
				return false
			}
			continue
		}
		if value(f.Column) != f.Value {
			return false
		}
	}
	return true
}

func (m *mockRepo) FindMember(_ context.Context, q *db.Query) (*Member, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	if m.failN > 0 {
		m.failN--
		return nil, shared.ErrTransient
	}
	var found []*Member
	for _, mem := range m.members {
		mem := mem
		if matches(q.Filters(), func(c string) string { return columnValue(mem, c) }) {
			found = append(found, mem)
		}
	}
	if len(found) == 0 {
		return nil, shared.ErrNotFound
	}
	if sql, _ := q.SQL(); strings.Contains(sql, "ORDER BY user_id NULLS FIRST") {
		sort.SliceStable(found, func(i, j int) bool { return found[i].UserID == "" && found[j].UserID != "" })
	}
	c := *found[0]
	return &c, nil
}

func (m *mockRepo) ListClasses(_ context.Context, q *db.Query) ([]Class, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, q)
	var out []Class
	for _, row := range m.classes {
		row := row
		if matches(q.Filters(), func(c string) string {
			switch c {
			case "tenant_id":
				return row.TenantID
			case "homeroom_staff_id":
				return row.homeroom
			}
			return ""
		}) {
			out = append(out, row.Class)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *mockRepo) LinkMember(_ context.Context, tenantID, memberID, userID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mem := range m.members {
		if mem.ID == memberID && mem.TenantID == tenantID && mem.UserID == "" {
			mem.UserID = userID
			m.links++
			return true, nil
		}
	}
	return false, nil
}

func fixture() *mockRepo {
	return &mockRepo{
		members: []*Member{
			{ID: "s-1", TenantID: "t-1", Email: "sari@sman1.sch.id", FullName: "Sari Wulandari"},
			{ID: "s-2", TenantID: "t-2", Email: "budi@harapan.sch.id", FullName: "Budi Santoso"},
			{ID: "s-3", TenantID: "t-1", UserID: "u-other", Email: "dewi@sman1.sch.id", FullName: "Dewi"},
		},
		classes: []classRow{
			{Class{ID: "c-2", TenantID: "t-1", Name: "XI IPA 2"}, "s-1"},
			{Class{ID: "c-1", TenantID: "t-1", Name: "X IPA 1"}, "s-1"},
			{Class{ID: "c-9", TenantID: "t-2", Name: "VII A"}, "s-1"},
			{Class{ID: "c-3", TenantID: "t-1", Name: "XII IPS 1"}, "s-3"},
		},
	}
}

func TestTeacherWithoutStaffRecord(t *testing.T) {
	svc := NewService(fixture(), 3, 0, nil)

	out, err := svc.MyClasses(context.Background(), tenant.ForTenant("t-1"), provider.Identity{ID: "u-new", Email: "baru@sman1.sch.id"})

	require.NoError(t, err)
	assert.False(t, out.Linked)
	assert.Nil(t, out.Member)
	assert.NotNil(t, out.Classes)
	assert.Empty(t, out.Classes)
	assert.Equal(t, NotLinkedPrompt, out.Prompt)
}

func TestEmailFallbackLinksOnceAndScopesClasses(t *testing.T) {
	repo := fixture()
	svc := NewService(repo, 3, 0, nil)
	who := provider.Identity{ID: "u-sari", Email: "SARI@sman1.sch.id"}

	out, err := svc.MyClasses(context.Background(), tenant.ForTenant("t-1"), who)
	require.NoError(t, err)
	require.True(t, out.Linked)
	assert.Equal(t, "s-1", out.Member.ID)
	require.Len(t, out.Classes, 2)
	assert.Equal(t, "X IPA 1", out.Classes[0].Name)
	for _, c := range out.Classes {
		assert.Equal(t, "t-1", c.TenantID)
	}
	assert.Equal(t, 1, repo.links)

	_, err = svc.MyClasses(context.Background(), tenant.ForTenant("t-1"), who)
	require.NoError(t, err)
	assert.Equal(t, 1, repo.links)
}

func TestDuplicateEmailPrefersUnlinkedRow(t *testing.T) {
	repo := fixture()
	repo.members = append([]*Member{
		{ID: "s-0", TenantID: "t-1", UserID: "u-old", Email: "sari@sman1.sch.id", FullName: "Sari (lama)"},
	}, repo.members...)
	svc := NewService(repo, 3, 0, nil)

	out, err := svc.MyClasses(context.Background(), tenant.ForTenant("t-1"), provider.Identity{ID: "u-sari", Email: "sari@sman1.sch.id"})

	require.NoError(t, err)
	require.True(t, out.Linked)
	assert.Equal(t, "s-1", out.Member.ID)
	assert.Equal(t, 1, repo.links)
}

func TestOtherTenantStaffIsInvisible(t *testing.T) {
	repo := fixture()
	svc := NewService(repo, 3, 0, nil)

	out, err := svc.MyClasses(context.Background(), tenant.ForTenant("t-1"), provider.Identity{ID: "u-budi", Email: "budi@harapan.sch.id"})

	require.NoError(t, err)
	assert.False(t, out.Linked)
	assert.Zero(t, repo.links)
	for _, q := range repo.queries {
		sql, args := q.SQL()
		assert.Contains(t, sql, "tenant_id = $1")
		assert.Equal(t, "t-1", args[0])
	}
}

func TestEmailLinkedToAnotherIdentity(t *testing.T) {
	svc := NewService(fixture(), 3, 0, nil)

	out, err := svc.MyClasses(context.Background(), tenant.ForTenant("t-1"), provider.Identity{ID: "u-dewi", Email: "dewi@sman1.sch.id"})

	require.NoError(t, err)
	assert.False(t, out.Linked)
}

func TestDenyScopeSeesNothing(t *testing.T) {
	repo := fixture()
	svc := NewService(repo, 3, 0, nil)

	out, err := svc.MyClasses(context.Background(), tenant.Scope{}, provider.Identity{ID: "u-sari", Email: "sari@sman1.sch.id"})

	require.NoError(t, err)
	assert.False(t, out.Linked)
	assert.Zero(t, repo.links)
}

func TestTransientFailuresRetried(t *testing.T) {
	repo := fixture()
	repo.failN = 2
	svc := NewService(repo, 3, 0, nil)

	out, err := svc.MyClasses(context.Background(), tenant.ForTenant("t-1"), provider.Identity{ID: "u-sari", Email: "sari@sman1.sch.id"})
	require.NoError(t, err)
	assert.True(t, out.Linked)

	repo.failN = 5
	_, err = svc.MyClasses(context.Background(), tenant.ForTenant("t-1"), provider.Identity{ID: "u-x", Email: "x@sman1.sch.id"})
	require.ErrorIs(t, err, shared.ErrTransient)
}

func TestHandlerServesPrompt(t *testing.T) {
	svc := NewService(fixture(), 1, 0, nil)
	h := NewHandler(svc, func(*http.Request) (Caller, bool) {
		return Caller{Identity: provider.Identity{ID: "u-new", Email: "baru@sman1.sch.id"}, Scope: tenant.ForTenant("t-1")}, true
	}, nil)

	rr := httptest.NewRecorder()
	h.MyClasses(rr, httptest.NewRequest(http.MethodGet, "/classes/mine", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body MyClasses
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.False(t, body.Linked)
	assert.Equal(t, NotLinkedPrompt, body.Prompt)
	assert.Contains(t, rr.Body.String(), `"classes":[]`)
}

type recordingNotifier struct {
	drafts []notification.Draft
}

func (n *recordingNotifier) Publish(_ context.Context, d notification.Draft) {
	n.drafts = append(n.drafts, d)
}

func TestLinkingStaffNotifiesOnce(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := NewService(fixture(), 3, 0, nil).WithNotifier(notifier)
	who := provider.Identity{ID: "u-sari", Email: "sari@sman1.sch.id"}

	for range 2 {
		_, err := svc.MyClasses(context.Background(), tenant.ForTenant("t-1"), who)
		require.NoError(t, err)
	}

	require.Len(t, notifier.drafts, 1)
	assert.Equal(t, "u-sari", notifier.drafts[0].Owner)
	assert.Equal(t, LinkedTitle, notifier.drafts[0].Title)
	assert.Equal(t, "/classes/mine", notifier.drafts[0].LinkTo)
}
