package storage

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"
)

func TestMatchNode(t *testing.T) {
	node := &Node{ID: "C", Parent: "B", Path: "A#B#C", Name: "doc"}

	tests := []struct {
		name     string
		filter   NodeFilter
		expected bool
	}{
		{name: "zero", filter: NodeFilter{}, expected: true},
		{name: "ids_hit", filter: NodeFilter{IDs: []string{"X", "C"}}, expected: true},
		{name: "ids_miss", filter: NodeFilter{IDs: []string{"X"}}},
		{name: "parent", filter: NodeFilter{Parent: "B"}, expected: true},
		{name: "other_parent", filter: NodeFilter{Parent: "A"}},
		{name: "roots_only", filter: NodeFilter{RootsOnly: true}},
		{name: "prefix", filter: NodeFilter{PathPrefix: "A#"}, expected: true},
		{name: "prefix_miss", filter: NodeFilter{PathPrefix: "B#"}},
		{name: "segment", filter: NodeFilter{PathSegment: "B", Separator: "#"}, expected: true},
		{name: "segment_is_self", filter: NodeFilter{PathSegment: "C", Separator: "#"}},
		{name: "name", filter: NodeFilter{Name: "doc"}, expected: true},
		{name: "combined_miss", filter: NodeFilter{PathPrefix: "A#", Name: "other"}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.expected, MatchNode(node, tc.filter))
		})
	}
}

func TestContainsSegment(t *testing.T) {
	require.True(t, ContainsSegment("A#B#C", "A", "#"))
	require.True(t, ContainsSegment("A#B#C", "B", "#"))
	require.False(t, ContainsSegment("A#B#C", "C", "#"))
	require.False(t, ContainsSegment("AB#C", "B", "#"))
	require.False(t, ContainsSegment("XA#B", "A", "#"))
}

func TestSortByPath(t *testing.T) {
	nodes := []*Node{
		{ID: "C", Path: "A#C"},
		{ID: "B2", Path: "B"},
		{ID: "A", Path: "A"},
		{ID: "B1", Path: "B"},
	}

	SortByPath(nodes)

	var ids []string
	for _, n := range nodes {
		ids = append(ids, n.ID)
	}
	if diff := cmp.Diff([]string{"A", "C", "B1", "B2"}, ids); diff != "" {
		t.Errorf("unexpected order (-want +got):\n%s", diff)
	}
}
