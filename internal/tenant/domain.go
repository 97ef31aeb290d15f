package tenant

// Tenant is one institution.
type Tenant struct {
	ID          string
	DisplayName string
	BrandingRef string
}

// Branding is what the shell renders for the current scope.
type Branding struct {
	TenantID string `json:"tenant_id,omitempty"`
	Name     string `json:"name"`
	LogoRef  string `json:"logo_ref,omitempty"`
}
