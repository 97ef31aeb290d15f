// Package notification implements the per-identity inbox and the
// publishing path other modules use to create notifications.
package notification

import "time"

// DefaultWindow is how many recent items an inbox keeps.
const DefaultWindow = 100

// Type classifies a notification for display.
type Type string

const (
	TypeInfo    Type = "info"
	TypeSuccess Type = "success"
	TypeWarning Type = "warning"
	TypeError   Type = "error"
)

// Item is one notification of one owner.
type Item struct {
	ID        string    `json:"id"`
	Owner     string    `json:"owner"`
	Type      Type      `json:"type"`
	Title     string    `json:"title"`
	Message   string    `json:"message"`
	Read      bool      `json:"read"`
	CreatedAt time.Time `json:"created_at"`
	LinkTo    string    `json:"link_to,omitempty"`
}

// Draft is a notification before it is stored.
type Draft struct {
	Owner   string `json:"owner" validate:"required"`
	Type    Type   `json:"type" validate:"required,oneof=info success warning error"`
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"max=2000"`
	LinkTo  string `json:"link_to,omitempty" validate:"omitempty,startswith=/"`
}
