package storage

import (
	"slices"
	"strings"
)

// MatchNode reports whether node satisfies every field set in filter.
// It is the reference semantics of NodeFilter for engines that filter in process.
func MatchNode(node *Node, filter NodeFilter) bool {
	if len(filter.IDs) > 0 && !slices.Contains(filter.IDs, node.ID) {
		return false
	}
	if filter.Parent != "" && node.Parent != filter.Parent {
		return false
	}
	if filter.RootsOnly && node.Parent != "" {
		return false
	}
	if filter.PathPrefix != "" && !strings.HasPrefix(node.Path, filter.PathPrefix) {
		return false
	}
	if filter.PathSegment != "" && !ContainsSegment(node.Path, filter.PathSegment, filter.Separator) {
		return false
	}
	if filter.Name != "" && node.Name != filter.Name {
		return false
	}
	return true
}

// ContainsSegment reports whether path contains segment followed by sep, starting at a segment boundary.
func ContainsSegment(path, segment, sep string) bool {
	needle := segment + sep
	return strings.HasPrefix(path, needle) || strings.Contains(path, sep+needle)
}

// SortByPath sorts nodes in ascending path order.
func SortByPath(nodes []*Node) {
	slices.SortFunc(nodes, func(a, b *Node) int {
		if c := strings.Compare(a.Path, b.Path); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}
