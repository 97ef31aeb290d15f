// Package staff resolves the staff record of a signed-in teacher and the
// classes they lead.
package staff

// NotLinkedPrompt is shown when no staff record matches the caller.
const NotLinkedPrompt = "Akun Anda belum terhubung dengan data guru. Hubungi administrator sekolah."

// Member is one row of the staff table.
type Member struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	UserID   string `json:"-"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// Class is one row of the classes table.
type Class struct {
	ID       string `json:"id"`
	TenantID string `json:"tenant_id"`
	Name     string `json:"name"`
}

// MyClasses is the answer to "which classes do I lead".
type MyClasses struct {
	Linked  bool    `json:"linked"`
	Member  *Member `json:"member,omitempty"`
	Classes []Class `json:"classes"`
	Prompt  string  `json:"prompt,omitempty"`
}
