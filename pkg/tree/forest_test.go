package tree

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/treepath"
)

// shape renders a forest as nested maps of IDs, which is all that matters to compare shapes.
func shape(forest []*TreeNode) map[string]any {
	out := make(map[string]any, len(forest))
	for _, n := range forest {
		out[n.ID] = shape(n.Children)
	}
	return out
}

func nodes(paths ...string) []*storage.Node {
	codec := treepath.New("")
	out := make([]*storage.Node, 0, len(paths))
	for _, p := range paths {
		segments := codec.Segments(p)
		n := &storage.Node{ID: segments[len(segments)-1], Path: p}
		if len(segments) > 1 {
			n.Parent = segments[len(segments)-2]
		}
		out = append(out, n)
	}
	return out
}

func TestBuildForest(t *testing.T) {
	codec := treepath.New("")

	tests := []struct {
		name  string
		nodes []*storage.Node
		opts  BuildOptions
		want  map[string]any
	}{
		{
			name:  "two_roots",
			nodes: nodes("A", "A#B", "X"),
			want:  map[string]any{"A": map[string]any{"B": map[string]any{}}, "X": map[string]any{}},
		},
		{
			name:  "deep_and_out_of_order",
			nodes: nodes("A", "A#B", "A#B#C", "A#B#D", "A#E", "A#E#F#G", "A#E#F"),
			want: map[string]any{"A": map[string]any{
				"B": map[string]any{"C": map[string]any{}, "D": map[string]any{}},
				"E": map[string]any{"F": map[string]any{}},
			}},
		},
		{
			name:  "missing_parent_drops_subtree",
			nodes: nodes("A", "A#B#C", "A#B#C#D", "A#E"),
			want:  map[string]any{"A": map[string]any{"E": map[string]any{}}},
		},
		{
			name:  "min_level",
			nodes: nodes("A", "A#B", "A#B#C", "X", "X#Y"),
			opts:  BuildOptions{MinLevel: 2},
			want:  map[string]any{"B": map[string]any{"C": map[string]any{}}, "Y": map[string]any{}},
		},
		{
			name:  "root_scopes_and_raises_min_level",
			nodes: nodes("A", "A#B", "A#B#C", "X", "X#Y"),
			opts:  BuildOptions{Root: &storage.Node{ID: "A", Path: "A"}},
			want:  map[string]any{"B": map[string]any{"C": map[string]any{}}},
		},
		{
			name:  "min_level_above_root",
			nodes: nodes("A", "A#B", "A#B#C", "A#D"),
			opts:  BuildOptions{Root: &storage.Node{ID: "A", Path: "A"}, MinLevel: 3},
			want:  map[string]any{"C": map[string]any{}},
		},
		{
			name:  "empty",
			nodes: nil,
			want:  map[string]any{},
		},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			forest := BuildForest(test.nodes, codec, test.opts)
			if diff := cmp.Diff(test.want, shape(forest)); diff != "" {
				t.Errorf("forest mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestBuildForestKeepsPathOrder(t *testing.T) {
	forest := BuildForest(nodes("A", "A#B", "A#C", "A#D"), treepath.New(""), BuildOptions{})

	require.Len(t, forest, 1)
	var ids []string
	for _, c := range forest[0].Children {
		ids = append(ids, c.ID)
		require.Equal(t, 2, c.Level)
	}
	require.Equal(t, []string{"B", "C", "D"}, ids)
}

func TestTreeNodeJSON(t *testing.T) {
	forest := BuildForest(nodes("A", "A#B"), treepath.New(""), BuildOptions{})

	b, err := json.Marshal(forest)
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"A","path":"A","level":1,"children":[{"id":"B","parent":"A","path":"A#B","level":2,"children":[]}]}]`, string(b))

	forest = BuildForest(nodes("A", "A#B"), treepath.New(""), BuildOptions{OmitEmptyChildren: true})

	b, err = json.Marshal(forest)
	require.NoError(t, err)
	require.JSONEq(t, `[{"id":"A","path":"A","level":1,"children":[{"id":"B","parent":"A","path":"A#B","level":2}]}]`, string(b))
}
