package navigation

import "strconv"

// Expanded returns the groups to open for currentPath: every ancestor of a
// leaf whose path equals it, keyed by index path ("1", "1/0"). Query strings
// are ignored on both sides and several branches may open at once.
func Expanded(tree []Node, currentPath string) map[string]bool {
	current := stripQuery(currentPath)
	open := make(map[string]bool)
	var walk func(nodes []Node, prefix string) bool
	walk = func(nodes []Node, prefix string) bool {
		hit := false
		for i, n := range nodes {
			key := strconv.Itoa(i)
			if prefix != "" {
				key = prefix + "/" + key
			}
			if n.Leaf() {
				if n.Path != "" && stripQuery(n.Path) == current {
					hit = true
				}
				continue
			}
			if walk(n.Children, key) {
				open[key] = true
				hit = true
			}
		}
		return hit
	}
	walk(tree, "")
	return open
}
