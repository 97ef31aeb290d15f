package tenant

import (
	"github.com/kampus-erp/kampus/internal/platform/db"
	"github.com/kampus-erp/kampus/internal/profile"
	"github.com/kampus-erp/kampus/internal/roles"
)

type kind int

const (
	kindDeny kind = iota
	kindGlobal
	kindTenant
)

// Scope restricts tenant-owned reads. The zero Scope denies everything.
type Scope struct {
	kind     kind
	tenantID string
}

// Global returns the scope that spans every tenant.
func Global() Scope { return Scope{kind: kindGlobal} }

// ForTenant returns the scope of a single tenant. An empty id denies.
func ForTenant(id string) Scope {
	if id == "" {
		return Scope{}
	}
	return Scope{kind: kindTenant, tenantID: id}
}

// ScopeFor derives the scope of a resolved profile.
func ScopeFor(p *profile.Profile) Scope {
	if p == nil || p.Role == roles.Unknown {
		return Scope{}
	}
	if p.Role.IsPlatform() {
		return Global()
	}
	return ForTenant(p.TenantID)
}

// IsGlobal reports whether the scope spans every tenant.
func (s Scope) IsGlobal() bool { return s.kind == kindGlobal }

// Denies reports whether the scope matches nothing.
func (s Scope) Denies() bool { return s.kind == kindDeny }

// TenantID returns the scoped tenant, empty unless tenant-scoped.
func (s Scope) TenantID() string { return s.tenantID }

// Allows reports whether a row owned by tenantID is visible.
func (s Scope) Allows(tenantID string) bool {
	switch s.kind {
	case kindGlobal:
		return true
	case kindTenant:
		return tenantID == s.tenantID
	}
	return false
}

// Apply adds the scope predicate to q.
func (s Scope) Apply(q *db.Query) *db.Query {
	switch s.kind {
	case kindGlobal:
		return q
	case kindTenant:
		return q.Where("tenant_id", s.tenantID)
	}
	return q.Never()
}

func (s Scope) String() string {
	switch s.kind {
	case kindGlobal:
		return "global"
	case kindTenant:
		return "tenant:" + s.tenantID
	}
	return "deny"
}
