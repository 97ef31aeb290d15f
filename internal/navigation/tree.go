// Package navigation derives the menu tree and the route allow-list of a
// role, and guards HTTP routes with it.
package navigation

import (
	"strings"

	"github.com/kampus-erp/kampus/internal/roles"
)

// Node is one menu entry. Leaves carry a Path; groups carry Children.
type Node struct {
	Title    string `json:"title"`
	Icon     string `json:"icon,omitempty"`
	Path     string `json:"path,omitempty"`
	Children []Node `json:"children,omitempty"`
}

// Leaf reports whether n links to a route.
func (n Node) Leaf() bool {
	return len(n.Children) == 0
}

func leaf(title, icon, path string) Node {
	return Node{Title: title, Icon: icon, Path: path}
}

func group(title, icon string, children ...Node) Node {
	return Node{Title: title, Icon: icon, Children: children}
}

var dashboard = leaf("Dashboard", "home", "/")

var platformTree = []Node{
	dashboard,
	group("Platform", "server",
		leaf("Institutions", "building", "/platform/tenants"),
		leaf("Audit log", "scroll", "/platform/audit"),
	),
	group("Settings", "settings",
		leaf("Users", "users", "/settings/users"),
	),
}

var fullTree = []Node{
	dashboard,
	group("Academic", "book",
		leaf("Students", "graduation-cap", "/students"),
		leaf("Classes", "layers", "/classes"),
		leaf("Subjects", "book-open", "/subjects"),
		leaf("Schedule", "calendar", "/schedule"),
	),
	group("Staff", "id-card",
		leaf("Teachers & staff", "users", "/staff"),
		leaf("Attendance", "check-square", "/attendance"),
		leaf("Schedule", "calendar", "/schedule"),
	),
	group("Finance", "wallet",
		leaf("Invoices", "file-text", "/finance/invoices"),
		leaf("Unpaid invoices", "alert-circle", "/finance/invoices?status=unpaid"),
		leaf("Payments", "credit-card", "/finance/payments"),
		leaf("Reports", "bar-chart", "/finance/reports"),
	),
	group("Communication", "megaphone",
		leaf("Announcements", "bell", "/announcements"),
	),
	group("Settings", "settings",
		leaf("School profile", "building", "/settings/school"),
		leaf("Users", "users", "/settings/users"),
	),
}

var teacherTree = []Node{
	dashboard,
	group("Teaching", "book",
		leaf("Attendance", "check-square", "/attendance"),
		leaf("Grades", "award", "/grades"),
		leaf("Schedule", "calendar", "/schedule"),
	),
	leaf("Students", "graduation-cap", "/students"),
	leaf("Announcements", "bell", "/announcements"),
}

var studentTree = []Node{
	dashboard,
	leaf("Schedule", "calendar", "/schedule"),
	leaf("My grades", "award", "/grades/me"),
	leaf("Bills", "wallet", "/finance/bills"),
	leaf("Announcements", "bell", "/announcements"),
}

var parentTree = []Node{
	dashboard,
	leaf("Children", "users", "/children"),
	leaf("Bills", "wallet", "/finance/bills"),
	leaf("Announcements", "bell", "/announcements"),
}

var cashierTree = []Node{
	dashboard,
	group("Finance", "wallet",
		leaf("Invoices", "file-text", "/finance/invoices"),
		leaf("Unpaid invoices", "alert-circle", "/finance/invoices?status=unpaid"),
		leaf("Payments", "credit-card", "/finance/payments"),
		leaf("Reports", "bar-chart", "/finance/reports"),
	),
}

// Tree returns the menu of role. Unknown has no menu.
func Tree(role roles.Role) []Node {
	switch role {
	case roles.SystemAdmin:
		return platformTree
	case roles.Admin, roles.Principal:
		return fullTree
	case roles.Teacher:
		return teacherTree
	case roles.Student:
		return studentTree
	case roles.Parent:
		return parentTree
	case roles.Cashier:
		return cashierTree
	case roles.Unknown:
		return nil
	}
	return nil
}

// Leaves returns the route of every leaf in tree, query stripped, without
// duplicates and in menu order.
func Leaves(tree []Node) []string {
	seen := make(map[string]bool)
	var out []string
	var walk func([]Node)
	walk = func(nodes []Node) {
		for _, n := range nodes {
			if n.Leaf() {
				p := stripQuery(n.Path)
				if p != "" && !seen[p] {
					seen[p] = true
					out = append(out, p)
				}
				continue
			}
			walk(n.Children)
		}
	}
	walk(tree)
	return out
}

func stripQuery(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		return path[:i]
	}
	return path
}
