// Package roles defines the closed set of application roles.
package roles

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Role is one of the fixed application roles. The zero value is Unknown.
type Role int

const (
	// Unknown marks a stored role value this build does not recognise. It is
	// never granted anything.
	Unknown Role = iota
	SystemAdmin
	Admin
	Principal
	Teacher
	Student
	Parent
	Cashier
)

var names = map[Role]string{
	SystemAdmin: "system_admin",
	Admin:       "admin",
	Principal:   "principal",
	Teacher:     "teacher",
	Student:     "student",
	Parent:      "parent",
	Cashier:     "cashier",
}

// All returns every valid role in declaration order.
func All() []Role {
	return []Role{SystemAdmin, Admin, Principal, Teacher, Student, Parent, Cashier}
}

// Parse maps a stored role string to a Role. Anything unrecognised becomes
// Unknown.
func Parse(raw string) Role {
	raw = strings.ToLower(strings.TrimSpace(raw))
	for role, name := range names {
		if name == raw {
			return role
		}
	}
	return Unknown
}

// String returns the stored representation.
func (r Role) String() string {
	if name, ok := names[r]; ok {
		return name
	}
	return "unknown"
}

// Label returns a human readable name, e.g. "System Admin".
func (r Role) Label() string {
	return cases.Title(language.English).String(strings.ReplaceAll(r.String(), "_", " "))
}

// Valid reports whether r is one of the fixed roles.
func (r Role) Valid() bool {
	_, ok := names[r]
	return ok
}

// IsPlatform reports whether r operates above any single tenant.
func (r Role) IsPlatform() bool {
	switch r {
	case SystemAdmin:
		return true
	case Admin, Principal, Teacher, Student, Parent, Cashier, Unknown:
		return false
	}
	return false
}

// MarshalText implements encoding.TextMarshaler.
func (r Role) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(text []byte) error {
	*r = Parse(string(text))
	return nil
}
