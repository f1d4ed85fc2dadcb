package test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/tree"
)

func newTree(t *testing.T, ds storage.Datastore, opts ...tree.Option) *tree.Tree {
	t.Helper()

	tr, err := tree.New(ds, newCollection(), opts...)
	require.NoError(t, err)
	return tr
}

// saveABC saves root A, its child B and B's child C.
func saveABC(t *testing.T, tr *tree.Tree) (a, b, c *storage.Node) {
	t.Helper()
	ctx := context.Background()

	a = &storage.Node{ID: "A"}
	require.NoError(t, tr.Save(ctx, a))
	b = &storage.Node{ID: "B", Parent: "A"}
	require.NoError(t, tr.Save(ctx, b))
	c = &storage.Node{ID: "C", Parent: "B"}
	require.NoError(t, tr.Save(ctx, c))
	return a, b, c
}

func requirePath(t *testing.T, tr *tree.Tree, id, path string) {
	t.Helper()

	n, err := tr.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, path, n.Path, "path of %s", id)
}

func ids(nodes []*storage.Node) []string {
	out := make([]string, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, n.ID)
	}
	return out
}

func requireMissing(t *testing.T, tr *tree.Tree, id string) {
	t.Helper()

	_, err := tr.Get(context.Background(), id)
	require.ErrorIs(t, err, storage.ErrNotFound, "%s should be missing", id)
}

func SaveTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()

	t.Run("paths_and_levels", func(t *testing.T) {
		tr := newTree(t, ds)
		a, b, c := saveABC(t, tr)

		require.Equal(t, "A", a.Path)
		require.Equal(t, "A#B", b.Path)
		require.Equal(t, "A#B#C", c.Path)
		requirePath(t, tr, "C", "A#B#C")

		require.Equal(t, 1, tr.Level(a))
		require.Equal(t, 3, tr.Level(c))
	})

	t.Run("generated_id", func(t *testing.T) {
		tr := newTree(t, ds)

		n := &storage.Node{Name: "anonymous"}
		require.NoError(t, tr.Save(ctx, n))
		require.NotEmpty(t, n.ID)
		require.Equal(t, n.ID, n.Path)

		got, err := tr.Get(ctx, n.ID)
		require.NoError(t, err)
		require.Equal(t, "anonymous", got.Name)
	})

	t.Run("caller_path_is_ignored", func(t *testing.T) {
		tr := newTree(t, ds)
		saveABC(t, tr)

		b := &storage.Node{ID: "B", Parent: "A", Path: "bogus", Name: "renamed"}
		require.NoError(t, tr.Save(ctx, b))
		require.Equal(t, "A#B", b.Path)
		requirePath(t, tr, "B", "A#B")

		n := &storage.Node{ID: "D", Parent: "A", Path: "bogus"}
		require.NoError(t, tr.Save(ctx, n))
		requirePath(t, tr, "D", "A#D")
	})

	t.Run("missing_parent", func(t *testing.T) {
		tr := newTree(t, ds)

		err := tr.Save(ctx, &storage.Node{ID: "orphan", Parent: "nobody"})
		require.ErrorIs(t, err, tree.ErrParentNotFound)

		var refErr *tree.ReferenceError
		require.ErrorAs(t, err, &refErr)
		require.Equal(t, "nobody", refErr.ParentID)
		require.Equal(t, "orphan", refErr.NodeID)

		requireMissing(t, tr, "orphan")
	})

	t.Run("custom_separator", func(t *testing.T) {
		tr := newTree(t, ds, tree.WithPathSeparator("/"))
		saveABC(t, tr)
		requirePath(t, tr, "C", "A/B/C")
	})
}

func ReparentTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()

	t.Run("move_under_another_root", func(t *testing.T) {
		tr := newTree(t, ds)
		_, b, _ := saveABC(t, tr)
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "D"}))

		b.Parent = "D"
		require.NoError(t, tr.Save(ctx, b))

		require.Equal(t, "D#B", b.Path)
		requirePath(t, tr, "B", "D#B")
		requirePath(t, tr, "C", "D#B#C")
		requirePath(t, tr, "A", "A")
	})

	t.Run("move_to_root", func(t *testing.T) {
		tr := newTree(t, ds)
		_, b, _ := saveABC(t, tr)

		b.Parent = ""
		require.NoError(t, tr.Save(ctx, b))

		requirePath(t, tr, "B", "B")
		requirePath(t, tr, "C", "B#C")
	})

	t.Run("move_deep_subtree", func(t *testing.T) {
		tr := newTree(t, ds, tree.WithNumWorkers(3))
		saveABC(t, tr)
		for i := 0; i < 20; i++ {
			require.NoError(t, tr.Save(ctx, &storage.Node{ID: fmt.Sprintf("c%02d", i), Parent: "C"}))
			require.NoError(t, tr.Save(ctx, &storage.Node{ID: fmt.Sprintf("g%02d", i), Parent: fmt.Sprintf("c%02d", i)}))
		}
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "D"}))

		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "B", Parent: "D"}))

		for i := 0; i < 20; i++ {
			requirePath(t, tr, fmt.Sprintf("c%02d", i), fmt.Sprintf("D#B#C#c%02d", i))
			requirePath(t, tr, fmt.Sprintf("g%02d", i), fmt.Sprintf("D#B#C#c%02d#g%02d", i, i))
		}
	})

	t.Run("move_under_missing_parent_changes_nothing", func(t *testing.T) {
		tr := newTree(t, ds)
		saveABC(t, tr)

		err := tr.Save(ctx, &storage.Node{ID: "B", Parent: "nobody"})
		require.ErrorIs(t, err, tree.ErrParentNotFound)

		requirePath(t, tr, "B", "A#B")
		requirePath(t, tr, "C", "A#B#C")
	})

	t.Run("cascade_is_idempotent", func(t *testing.T) {
		tr := newTree(t, ds)
		_, b, _ := saveABC(t, tr)
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "D"}))

		b.Parent = "D"
		require.NoError(t, tr.Save(ctx, b))

		updated, err := tr.RebaseDescendants(ctx, b, "A#B")
		require.NoError(t, err)
		require.Zero(t, updated)

		updated, err = tr.RebaseDescendants(ctx, b, b.Path)
		require.NoError(t, err)
		require.Zero(t, updated)
	})
}

func RemoveDeleteTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()

	t.Run("subtree_is_removed", func(t *testing.T) {
		tr := newTree(t, ds, tree.WithOnDelete(tree.OnDeleteDelete))
		_, b, _ := saveABC(t, tr)
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "AB", Parent: "A"}))
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "X"}))

		require.NoError(t, tr.Remove(ctx, b))

		requireMissing(t, tr, "B")
		requireMissing(t, tr, "C")
		requirePath(t, tr, "A", "A")
		requirePath(t, tr, "AB", "A#AB")
		requirePath(t, tr, "X", "X")
	})

	t.Run("ids_differing_in_case", func(t *testing.T) {
		tr := newTree(t, ds, tree.WithOnDelete(tree.OnDeleteDelete))
		upper := &storage.Node{ID: "A"}
		require.NoError(t, tr.Save(ctx, upper))
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "B", Parent: "A"}))
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "a"}))
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "x", Parent: "a"}))

		children, err := tr.Children(ctx, upper, tree.ChildrenOptions{Recursive: true})
		require.NoError(t, err)
		require.Equal(t, []string{"B"}, ids(children))

		require.NoError(t, tr.Remove(ctx, upper))

		requireMissing(t, tr, "A")
		requireMissing(t, tr, "B")
		requirePath(t, tr, "a", "a")
		requirePath(t, tr, "x", "a#x")
	})

	t.Run("missing_node", func(t *testing.T) {
		tr := newTree(t, ds)
		require.NoError(t, tr.Remove(ctx, &storage.Node{ID: "missing"}))
	})
}

func RemoveReparentTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()

	t.Run("children_are_promoted", func(t *testing.T) {
		tr := newTree(t, ds, tree.WithOnDelete(tree.OnDeleteReparent))
		_, b, _ := saveABC(t, tr)
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "D", Parent: "C"}))

		require.NoError(t, tr.Remove(ctx, b))

		requireMissing(t, tr, "B")
		c, err := tr.Get(ctx, "C")
		require.NoError(t, err)
		require.Equal(t, "A", c.Parent)
		require.Equal(t, "A#C", c.Path)
		requirePath(t, tr, "D", "A#C#D")
	})

	t.Run("root_children_become_roots", func(t *testing.T) {
		tr := newTree(t, ds, tree.WithOnDelete(tree.OnDeleteReparent))
		a, _, _ := saveABC(t, tr)

		require.NoError(t, tr.Remove(ctx, a))

		b, err := tr.Get(ctx, "B")
		require.NoError(t, err)
		require.True(t, b.IsRoot())
		require.Equal(t, "B", b.Path)
		requirePath(t, tr, "C", "B#C")
	})

	t.Run("segments_are_matched_exactly", func(t *testing.T) {
		tr := newTree(t, ds, tree.WithOnDelete(tree.OnDeleteReparent))
		saveABC(t, tr)
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "AB", Parent: "A"}))
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "BB", Parent: "AB"}))
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "E", Parent: "BB"}))

		require.NoError(t, tr.Remove(ctx, &storage.Node{ID: "B"}))

		requirePath(t, tr, "C", "A#C")
		requirePath(t, tr, "AB", "A#AB")
		requirePath(t, tr, "BB", "A#AB#BB")
		requirePath(t, tr, "E", "A#AB#BB#E")
	})
}

func QueriesTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()

	tr := newTree(t, ds)
	a, b, c := saveABC(t, tr)
	require.NoError(t, tr.Save(ctx, &storage.Node{ID: "D", Parent: "A", Name: "doc"}))
	require.NoError(t, tr.Save(ctx, &storage.Node{ID: "E", Parent: "B", Name: "doc"}))
	require.NoError(t, tr.Save(ctx, &storage.Node{ID: "X"}))

	t.Run("children", func(t *testing.T) {
		children, err := tr.Children(ctx, a, tree.ChildrenOptions{})
		require.NoError(t, err)
		require.Equal(t, []string{"B", "D"}, ids(children))
	})

	t.Run("children_recursive", func(t *testing.T) {
		children, err := tr.Children(ctx, a, tree.ChildrenOptions{Recursive: true})
		require.NoError(t, err)
		require.Equal(t, []string{"B", "C", "E", "D"}, ids(children))
	})

	t.Run("children_filtered", func(t *testing.T) {
		children, err := tr.Children(ctx, &storage.Node{ID: "A"}, tree.ChildrenOptions{
			Recursive: true,
			Filter:    storage.NodeFilter{Name: "doc", Parent: "X"},
		})
		require.NoError(t, err)
		require.Equal(t, []string{"E", "D"}, ids(children))
	})

	t.Run("children_of_leaf", func(t *testing.T) {
		children, err := tr.Children(ctx, c, tree.ChildrenOptions{})
		require.NoError(t, err)
		require.Empty(t, children)
	})

	t.Run("parent", func(t *testing.T) {
		parent, err := tr.Parent(ctx, c)
		require.NoError(t, err)
		require.Equal(t, "B", parent.ID)

		parent, err = tr.Parent(ctx, a)
		require.NoError(t, err)
		require.Nil(t, parent)

		parent, err = tr.Parent(ctx, &storage.Node{ID: "Z", Parent: "nobody"})
		require.NoError(t, err)
		require.Nil(t, parent)
	})

	t.Run("ancestors", func(t *testing.T) {
		ancestors, err := tr.Ancestors(ctx, &storage.Node{ID: "E"}, storage.NodeFilter{})
		require.NoError(t, err)
		require.Equal(t, []string{"A", "B"}, ids(ancestors))

		ancestors, err = tr.Ancestors(ctx, a, storage.NodeFilter{})
		require.NoError(t, err)
		require.Empty(t, ancestors)

		ancestors, err = tr.Ancestors(ctx, c, storage.NodeFilter{IDs: []string{"X"}, PathPrefix: "A#"})
		require.NoError(t, err)
		require.Equal(t, []string{"B"}, ids(ancestors))
	})

	t.Run("level", func(t *testing.T) {
		require.Equal(t, 2, tr.Level(b))
	})

	t.Run("unknown_node", func(t *testing.T) {
		_, err := tr.Children(ctx, &storage.Node{ID: "missing"}, tree.ChildrenOptions{})
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func ForestTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()

	tr := newTree(t, ds)
	require.NoError(t, tr.Save(ctx, &storage.Node{ID: "A"}))
	require.NoError(t, tr.Save(ctx, &storage.Node{ID: "B", Parent: "A"}))
	require.NoError(t, tr.Save(ctx, &storage.Node{ID: "X"}))

	t.Run("whole_forest", func(t *testing.T) {
		forest, err := tr.Forest(ctx, nil, tree.TreeOptions{})
		require.NoError(t, err)
		require.Len(t, forest, 2)

		require.Equal(t, "A", forest[0].ID)
		require.Len(t, forest[0].Children, 1)
		require.Equal(t, "B", forest[0].Children[0].ID)
		require.NotNil(t, forest[0].Children[0].Children)
		require.Empty(t, forest[0].Children[0].Children)

		require.Equal(t, "X", forest[1].ID)
		require.NotNil(t, forest[1].Children)
		require.Empty(t, forest[1].Children)
	})

	t.Run("omit_empty_children", func(t *testing.T) {
		forest, err := tr.Forest(ctx, nil, tree.TreeOptions{OmitEmptyChildren: true})
		require.NoError(t, err)
		require.Len(t, forest, 2)
		require.Nil(t, forest[1].Children)
		require.Nil(t, forest[0].Children[0].Children)
	})

	t.Run("below_root", func(t *testing.T) {
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: "C", Parent: "B"}))
		defer func() { require.NoError(t, tr.Remove(ctx, &storage.Node{ID: "C"})) }()

		forest, err := tr.Forest(ctx, &storage.Node{ID: "A"}, tree.TreeOptions{})
		require.NoError(t, err)
		require.Len(t, forest, 1)
		require.Equal(t, "B", forest[0].ID)
		require.Equal(t, 2, forest[0].Level)
		require.Len(t, forest[0].Children, 1)
		require.Equal(t, "C", forest[0].Children[0].ID)
	})

	t.Run("non_recursive", func(t *testing.T) {
		forest, err := tr.Forest(ctx, nil, tree.TreeOptions{NonRecursive: true})
		require.NoError(t, err)
		require.Len(t, forest, 2)
		require.Empty(t, forest[0].Children)
		require.Empty(t, forest[1].Children)

		forest, err = tr.Forest(ctx, &storage.Node{ID: "A"}, tree.TreeOptions{NonRecursive: true})
		require.NoError(t, err)
		require.Len(t, forest, 1)
		require.Equal(t, "B", forest[0].ID)
	})

	t.Run("min_level", func(t *testing.T) {
		forest, err := tr.Forest(ctx, nil, tree.TreeOptions{MinLevel: 2})
		require.NoError(t, err)
		require.Len(t, forest, 1)
		require.Equal(t, "B", forest[0].ID)
	})

	t.Run("filtered_parent_drops_subtree", func(t *testing.T) {
		forest, err := tr.Forest(ctx, nil, tree.TreeOptions{Filter: storage.NodeFilter{IDs: []string{"B", "X"}}})
		require.NoError(t, err)
		require.Len(t, forest, 1)
		require.Equal(t, "X", forest[0].ID)
	})
}

// PathInvariantsTest builds a deep tree with random moves and checks that every path
// encodes the chain of stored parents, and that the forest matches the parent links.
func PathInvariantsTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	tr := newTree(t, ds)

	// a chain r0 > r1 > ... > r9 and a second root s0 with a few children
	for i := 0; i < 10; i++ {
		n := &storage.Node{ID: fmt.Sprintf("r%d", i)}
		if i > 0 {
			n.Parent = fmt.Sprintf("r%d", i-1)
		}
		require.NoError(t, tr.Save(ctx, n))
	}
	require.NoError(t, tr.Save(ctx, &storage.Node{ID: "s0"}))
	for i := 1; i < 4; i++ {
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: fmt.Sprintf("s%d", i), Parent: "s0"}))
	}

	// move the middle of the chain below s2, then a part of it back below r1
	require.NoError(t, tr.Save(ctx, &storage.Node{ID: "r4", Parent: "s2"}))
	require.NoError(t, tr.Save(ctx, &storage.Node{ID: "r7", Parent: "r1"}))

	iter, err := ds.ReadNodes(ctx, tr.Collection(), storage.NodeFilter{}, storage.ReadOptions{})
	require.NoError(t, err)
	nodes, err := storage.Collect(ctx, iter)
	require.NoError(t, err)

	byID := make(map[string]*storage.Node, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	codec := tr.Codec()
	for _, n := range nodes {
		// walk the parent links up to the root and compare with the path
		var chain []string
		for cur := n; cur != nil; cur = byID[cur.Parent] {
			chain = append([]string{cur.ID}, chain...)
			if cur.IsRoot() {
				break
			}
		}
		require.Equal(t, chain, codec.Segments(n.Path), "path of %s", n.ID)
		require.Equal(t, len(chain), tr.Level(n))
		require.Len(t, codec.AncestorIDs(n.Path), tr.Level(n)-1)

		for _, ancestorID := range codec.AncestorIDs(n.Path) {
			require.True(t, codec.IsDescendantPath(n.Path, byID[ancestorID].Path))
		}
	}

	forest, err := tr.Forest(ctx, nil, tree.TreeOptions{})
	require.NoError(t, err)

	count := 0
	for _, root := range forest {
		require.True(t, root.IsRoot())
		root.Walk(func(n *tree.TreeNode) {
			count++
			for _, child := range n.Children {
				require.Equal(t, n.ID, child.Parent)
			}
		})
	}
	require.Equal(t, len(nodes), count)
}
