package db

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/kampus-erp/kampus/internal/shared"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{name: "no rows", err: pgx.ErrNoRows, want: shared.ErrNotFound},
		{name: "policy recursion", err: &pgconn.PgError{Code: "42P17"}, want: shared.ErrStructuralQuery},
		{name: "privilege", err: &pgconn.PgError{Code: "42501"}, want: shared.ErrPermissionDenied},
		{name: "connection", err: &pgconn.PgError{Code: "08006"}, want: shared.ErrTransient},
		{name: "admin shutdown", err: &pgconn.PgError{Code: "57P01"}, want: shared.ErrTransient},
		{name: "serialization", err: &pgconn.PgError{Code: "40001"}, want: shared.ErrTransient},
		{name: "deadline", err: context.DeadlineExceeded, want: shared.ErrTransient},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.ErrorIs(t, got, tt.want)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestClassifyLeavesOtherErrorsAlone(t *testing.T) {
	plain := errors.New("boom")
	assert.Same(t, plain, Classify(plain))
	assert.Nil(t, Classify(nil))

	unique := &pgconn.PgError{Code: "23505"}
	got := Classify(unique)
	assert.False(t, errors.Is(got, shared.ErrTransient))
	assert.False(t, errors.Is(got, shared.ErrNotFound))
}

func TestQuerySQL(t *testing.T) {
	sql, args := Select("classes", "id", "name").
		Where("tenant_id", "t1").
		Where("homeroom_staff_id", "s1").
		OrderBy("name").
		Limit(10).
		SQL()
	assert.Equal(t, "SELECT id, name FROM classes WHERE tenant_id = $1 AND homeroom_staff_id = $2 ORDER BY name LIMIT 10", sql)
	assert.Equal(t, []any{"t1", "s1"}, args)
}

func TestQueryNeverAndNull(t *testing.T) {
	sql, args := Select("staff").Never().WhereNull("user_id").SQL()
	assert.Equal(t, "SELECT * FROM staff WHERE FALSE AND user_id IS NULL", sql)
	assert.Empty(t, args)
}
