package profile

import (
	"github.com/kampus-erp/kampus/internal/roles"
)

// Profile is the application-level description of a signed-in identity.
type Profile struct {
	// ID equals the identity ID the profile is linked to.
	ID          string
	DisplayName string
	Role        roles.Role
	// TenantID is empty only for platform roles.
	TenantID  string
	AvatarRef string
	Email     string
}

// Global reports whether the profile spans every tenant.
func (p *Profile) Global() bool {
	return p != nil && p.Role.IsPlatform()
}

// Record is one row of the profiles table.
type Record struct {
	RowID       string
	UserID      string
	Email       string
	DisplayName string
	Role        string
	AvatarRef   string
	TenantID    string
}

// Linked reports whether the row is already bound to an identity.
func (r *Record) Linked() bool {
	return r.UserID != ""
}

// Outcome classifies how a resolution ended.
type Outcome string

const (
	// OutcomeLinked means the profile was found by identity ID.
	OutcomeLinked Outcome = "linked"
	// OutcomeHealed means the profile was found by email and linked now.
	OutcomeHealed Outcome = "healed"
	// OutcomeUnlinked means no usable profile exists for the identity.
	OutcomeUnlinked Outcome = "unlinked"
	// OutcomeFatal means the store rejected the query structurally.
	OutcomeFatal Outcome = "fatal"
	// OutcomeFailed means transient failures outlasted the retry budget.
	OutcomeFailed Outcome = "failed"
	// OutcomeCancelled means a newer identity superseded this resolution.
	OutcomeCancelled Outcome = "cancelled"
)

// Result is the output of Resolver.Resolve. Profile is nil unless the
// outcome is linked or healed.
type Result struct {
	Profile *Profile
	Outcome Outcome
	Err     error
}

// Ready reports whether a profile was resolved.
func (r Result) Ready() bool {
	return r.Profile != nil
}
