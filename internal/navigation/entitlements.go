package navigation

import (
	"slices"
	"sort"
	"sync"

	"github.com/kampus-erp/kampus/internal/roles"
)

// RootRoute is the landing route every valid role can reach.
const RootRoute = "/"

// extraRoutes are reachable without being linked from any menu.
var extraRoutes = map[string][]roles.Role{
	"/profile":                     allRoles(),
	"/notifications":               allRoles(),
	"/api/navigation":              allRoles(),
	"/api/notifications":           allRoles(),
	"/api/notifications/{id}/read": allRoles(),
	"/api/notifications/read-all":  allRoles(),
	"/students/{id}":               {roles.Admin, roles.Principal, roles.Teacher, roles.Parent},
	"/classes/mine":                {roles.Teacher},
	"/settings/{key}":              {roles.Admin, roles.Principal},
	"/platform/tenants/{id}":       {roles.SystemAdmin},
	"/jobs/health":                 {roles.SystemAdmin},
}

func allRoles() []roles.Role {
	return roles.All()
}

// Entitlements is the route allow-list: pattern to the roles listed for it.
type Entitlements struct {
	allow map[string]map[roles.Role]bool
}

// NewEntitlements flattens every role's menu and adds the extra routes.
func NewEntitlements() *Entitlements {
	e := &Entitlements{allow: make(map[string]map[roles.Role]bool)}
	for _, role := range roles.All() {
		for _, path := range Leaves(Tree(role)) {
			e.add(path, role)
		}
	}
	for pattern, rs := range extraRoutes {
		for _, role := range rs {
			e.add(pattern, role)
		}
	}
	return e
}

var defaultEntitlements = sync.OnceValue(NewEntitlements)

// Default returns the shared, read-only allow-list.
func Default() *Entitlements {
	return defaultEntitlements()
}

func (e *Entitlements) add(pattern string, role roles.Role) {
	set, ok := e.allow[pattern]
	if !ok {
		set = make(map[roles.Role]bool)
		e.allow[pattern] = set
	}
	set[role] = true
}

// CanAccess reports whether role may reach pattern: the role is listed, or
// the role is system_admin and admin is listed. Patterns that list only
// system_admin stay exclusive to it. Unknown never passes.
func (e *Entitlements) CanAccess(role roles.Role, pattern string) bool {
	if !role.Valid() {
		return false
	}
	set := e.allow[pattern]
	if set[role] {
		return true
	}
	return role == roles.SystemAdmin && set[roles.Admin]
}

// Listed returns the roles listed for pattern, in enum order.
func (e *Entitlements) Listed(pattern string) []roles.Role {
	var out []roles.Role
	for _, role := range roles.All() {
		if e.allow[pattern][role] {
			out = append(out, role)
		}
	}
	return out
}

// Patterns returns every known pattern, sorted.
func (e *Entitlements) Patterns() []string {
	out := make([]string, 0, len(e.allow))
	for p := range e.allow {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Routes returns the patterns role can access, sorted.
func (e *Entitlements) Routes(role roles.Role) []string {
	var out []string
	for _, p := range e.Patterns() {
		if e.CanAccess(role, p) {
			out = append(out, p)
		}
	}
	return out
}

// Known reports whether pattern is in the allow-list.
func (e *Entitlements) Known(pattern string) bool {
	_, ok := e.allow[pattern]
	return ok
}

// Menu is the navigation surface of one role.
type Menu struct {
	Role     roles.Role      `json:"role"`
	Tree     []Node          `json:"tree"`
	Expanded map[string]bool `json:"expanded"`
	Routes   []string        `json:"routes"`
}

// MenuFor builds the menu of role with the groups for currentPath opened.
func (e *Entitlements) MenuFor(role roles.Role, currentPath string) Menu {
	tree := slices.Clone(Tree(role))
	return Menu{
		Role:     role,
		Tree:     tree,
		Expanded: Expanded(tree, currentPath),
		Routes:   e.Routes(role),
	}
}
