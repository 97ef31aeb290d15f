package tenant

import (
	"context"
	"fmt"

	"github.com/kampus-erp/kampus/internal/shared"
)

// Settings reads tenant_settings for a scope.
type Settings struct {
	repo Repository
}

// NewSettings constructs Settings.
func NewSettings(repo Repository) *Settings {
	return &Settings{repo: repo}
}

// Lookup returns the tenant override of key or the global default. The
// global scope only sees global rows; the deny scope sees nothing.
func (s *Settings) Lookup(ctx context.Context, scope Scope, key string) (string, error) {
	if scope.Denies() {
		return "", shared.ErrPermissionDenied
	}
	value, err := s.repo.Setting(ctx, scope.TenantID(), key)
	if err != nil {
		return "", fmt.Errorf("tenant setting %q: %w", key, err)
	}
	return value, nil
}
