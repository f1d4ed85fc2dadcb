package test

import (
	"context"
	"fmt"
	"slices"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/openfga/mpath/pkg/storage"
)

func NodeWritingAndReadingTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	collection := newCollection()

	t.Run("missing_node_is_not_found", func(t *testing.T) {
		_, err := ds.ReadNode(ctx, collection, "missing")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("written_node_is_read_back", func(t *testing.T) {
		node := &storage.Node{ID: "A", Path: "A", Name: "root", Data: []byte(`{"k":"v"}`)}
		require.NoError(t, ds.WriteNode(ctx, collection, node))

		got, err := ds.ReadNode(ctx, collection, "A")
		require.NoError(t, err)
		if diff := cmp.Diff(node, got); diff != "" {
			t.Errorf("node mismatch (-want +got):\n%s", diff)
		}
	})

	t.Run("writing_twice_replaces_the_node", func(t *testing.T) {
		writeNodes(t, ds, collection,
			&storage.Node{ID: "B", Parent: "A", Path: "A#B", Name: "first"},
			&storage.Node{ID: "B", Path: "B", Name: "second"},
		)

		got, err := ds.ReadNode(ctx, collection, "B")
		require.NoError(t, err)
		require.Empty(t, got.Parent)
		require.Equal(t, "B", got.Path)
		require.Equal(t, "second", got.Name)
		require.Empty(t, got.Data)
	})

	t.Run("deleting_a_missing_node_succeeds", func(t *testing.T) {
		require.NoError(t, ds.DeleteNode(ctx, collection, "missing"))
	})

	t.Run("deleted_node_is_not_found", func(t *testing.T) {
		require.NoError(t, ds.DeleteNode(ctx, collection, "A"))

		_, err := ds.ReadNode(ctx, collection, "A")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})
}

func UpdateNodeFieldTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	collection := newCollection()

	writeNodes(t, ds, collection,
		&storage.Node{ID: "A", Path: "A"},
		&storage.Node{ID: "B", Parent: "A", Path: "A#B", Name: "b", Data: []byte("payload")},
	)

	t.Run("path", func(t *testing.T) {
		require.NoError(t, ds.UpdateNodeField(ctx, collection, "B", storage.FieldPath, "X#B"))

		got, err := ds.ReadNode(ctx, collection, "B")
		require.NoError(t, err)
		require.Equal(t, "X#B", got.Path)
		require.Equal(t, "A", got.Parent)
		require.Equal(t, "b", got.Name)
		require.Equal(t, []byte("payload"), got.Data)
	})

	t.Run("parent", func(t *testing.T) {
		require.NoError(t, ds.UpdateNodeField(ctx, collection, "B", storage.FieldParent, "X"))

		got, err := ds.ReadNode(ctx, collection, "B")
		require.NoError(t, err)
		require.Equal(t, "X", got.Parent)
	})

	t.Run("empty_parent_makes_a_root", func(t *testing.T) {
		require.NoError(t, ds.UpdateNodeField(ctx, collection, "B", storage.FieldParent, ""))

		got, err := ds.ReadNode(ctx, collection, "B")
		require.NoError(t, err)
		require.True(t, got.IsRoot())
		require.Equal(t, []string{"A", "B"}, readIDsSorted(t, ds, collection, storage.NodeFilter{RootsOnly: true}))
	})

	t.Run("missing_node", func(t *testing.T) {
		err := ds.UpdateNodeField(ctx, collection, "missing", storage.FieldPath, "missing")
		require.ErrorIs(t, err, storage.ErrNotFound)
	})

	t.Run("unknown_field", func(t *testing.T) {
		err := ds.UpdateNodeField(ctx, collection, "B", storage.Field("name"), "x")
		require.ErrorIs(t, err, storage.ErrUnknownField)
	})
}

func DeleteNodesTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	collection := newCollection()

	writeNodes(t, ds, collection,
		&storage.Node{ID: "A", Path: "A"},
		&storage.Node{ID: "B", Parent: "A", Path: "A#B"},
		&storage.Node{ID: "C", Parent: "B", Path: "A#B#C"},
		&storage.Node{ID: "AB", Path: "AB"},
		&storage.Node{ID: "D", Parent: "AB", Path: "AB#D"},
	)

	deleted, err := ds.DeleteNodes(ctx, collection, storage.NodeFilter{PathPrefix: "A#"})
	require.NoError(t, err)
	require.Equal(t, int64(2), deleted)
	require.Equal(t, []string{"A", "AB", "D"}, readIDsSorted(t, ds, collection, storage.NodeFilter{}))

	deleted, err = ds.DeleteNodes(ctx, collection, storage.NodeFilter{PathPrefix: "A#"})
	require.NoError(t, err)
	require.Zero(t, deleted)

	_, err = ds.DeleteNodes(ctx, collection, storage.NodeFilter{PathSegment: "A"})
	require.ErrorIs(t, err, storage.ErrInvalidFilter)

	t.Run("more_than_a_page", func(t *testing.T) {
		numNodes := storage.DefaultPageSize*2 + 3
		for i := 0; i < numNodes; i++ {
			id := fmt.Sprintf("m%04d", i)
			// every other node lies outside the deleted subtree
			parent := "AB"
			if i%2 == 0 {
				parent = "A"
			}
			writeNodes(t, ds, collection, &storage.Node{ID: id, Parent: parent, Path: parent + "#" + id})
		}

		deleted, err := ds.DeleteNodes(ctx, collection, storage.NodeFilter{PathPrefix: "A#"})
		require.NoError(t, err)
		require.Equal(t, int64(storage.DefaultPageSize+2), deleted)
		require.Empty(t, readIDs(t, ds, collection, storage.NodeFilter{Parent: "A"}))
		require.Len(t, readIDs(t, ds, collection, storage.NodeFilter{Parent: "AB"}), numNodes/2+1)
	})
}

func ReadNodesFilterTest(t *testing.T, ds storage.Datastore) {
	collection := newCollection()

	writeNodes(t, ds, collection,
		&storage.Node{ID: "A", Path: "A", Name: "folder"},
		&storage.Node{ID: "B", Parent: "A", Path: "A#B", Name: "folder"},
		&storage.Node{ID: "C", Parent: "B", Path: "A#B#C", Name: "file"},
		&storage.Node{ID: "AB", Parent: "A", Path: "A#AB", Name: "file"},
		&storage.Node{ID: "BC", Parent: "AB", Path: "A#AB#BC", Name: "file"},
		&storage.Node{ID: "X", Path: "X", Name: "folder"},
	)

	tests := []struct {
		name   string
		filter storage.NodeFilter
		want   []string
	}{
		{name: "all", filter: storage.NodeFilter{}, want: []string{"A", "AB", "B", "BC", "C", "X"}},
		{name: "ids", filter: storage.NodeFilter{IDs: []string{"B", "X", "missing"}}, want: []string{"B", "X"}},
		{name: "parent", filter: storage.NodeFilter{Parent: "A"}, want: []string{"AB", "B"}},
		{name: "roots", filter: storage.NodeFilter{RootsOnly: true}, want: []string{"A", "X"}},
		{name: "path_prefix", filter: storage.NodeFilter{PathPrefix: "A#B"}, want: []string{"B", "C"}},
		{name: "descendant_prefix", filter: storage.NodeFilter{PathPrefix: "A#B#"}, want: []string{"C"}},
		{name: "path_segment_is_exact", filter: storage.NodeFilter{PathSegment: "B", Separator: "#"}, want: []string{"C"}},
		{name: "path_segment_at_start", filter: storage.NodeFilter{PathSegment: "A", Separator: "#"}, want: []string{"AB", "B", "BC", "C"}},
		{name: "name", filter: storage.NodeFilter{Name: "file"}, want: []string{"AB", "BC", "C"}},
		{name: "combined", filter: storage.NodeFilter{PathPrefix: "A#", Name: "folder"}, want: []string{"B"}},
		{name: "ids_and_name", filter: storage.NodeFilter{IDs: []string{"A", "B", "C"}, Name: "folder"}, want: []string{"A", "B"}},
		{name: "no_match", filter: storage.NodeFilter{Parent: "C"}, want: []string{}},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require.Equal(t, test.want, readIDsSorted(t, ds, collection, test.filter))
		})
	}

	t.Run("invalid_filters", func(t *testing.T) {
		ctx := context.Background()

		_, err := ds.ReadNodes(ctx, collection, storage.NodeFilter{RootsOnly: true, Parent: "A"}, storage.ReadOptions{})
		require.ErrorIs(t, err, storage.ErrInvalidFilter)

		_, err = ds.ReadNodes(ctx, collection, storage.NodeFilter{PathSegment: "A"}, storage.ReadOptions{})
		require.ErrorIs(t, err, storage.ErrInvalidFilter)
	})
}

// ReadNodesPatternCharactersTest checks that characters with a meaning in SQL patterns
// or regular expressions are matched literally.
func ReadNodesPatternCharactersTest(t *testing.T, ds storage.Datastore) {
	collection := newCollection()

	writeNodes(t, ds, collection,
		&storage.Node{ID: "a%", Path: "a%"},
		&storage.Node{ID: "x", Parent: "a%", Path: "a%#x"},
		&storage.Node{ID: "ab", Path: "ab"},
		&storage.Node{ID: "y", Parent: "ab", Path: "ab#y"},
		&storage.Node{ID: "a_", Path: "a_"},
		&storage.Node{ID: "z", Parent: "a_", Path: "a_#z"},
		&storage.Node{ID: "a.", Path: "a."},
		&storage.Node{ID: "w", Parent: "a.", Path: "a.#w"},
		&storage.Node{ID: "a!", Path: "a!"},
		&storage.Node{ID: "v", Parent: "a!", Path: "a!#v"},
		&storage.Node{ID: "A", Path: "A"},
		&storage.Node{ID: "q", Parent: "A", Path: "A#q"},
		&storage.Node{ID: "a", Path: "a"},
		&storage.Node{ID: "r", Parent: "a", Path: "a#r"},
	)

	require.Equal(t, []string{"x"}, readIDsSorted(t, ds, collection, storage.NodeFilter{PathPrefix: "a%#"}))
	require.Equal(t, []string{"z"}, readIDsSorted(t, ds, collection, storage.NodeFilter{PathPrefix: "a_#"}))
	require.Equal(t, []string{"w"}, readIDsSorted(t, ds, collection, storage.NodeFilter{PathPrefix: "a.#"}))
	require.Equal(t, []string{"v"}, readIDsSorted(t, ds, collection, storage.NodeFilter{PathPrefix: "a!#"}))
	require.Equal(t, []string{"x"}, readIDsSorted(t, ds, collection, storage.NodeFilter{PathSegment: "a%", Separator: "#"}))
	require.Equal(t, []string{"z"}, readIDsSorted(t, ds, collection, storage.NodeFilter{PathSegment: "a_", Separator: "#"}))
	require.Equal(t, []string{"w"}, readIDsSorted(t, ds, collection, storage.NodeFilter{PathSegment: "a.", Separator: "#"}))

	// paths are compared case sensitively
	require.Equal(t, []string{"q"}, readIDsSorted(t, ds, collection, storage.NodeFilter{PathPrefix: "A#"}))
	require.Equal(t, []string{"r"}, readIDsSorted(t, ds, collection, storage.NodeFilter{PathPrefix: "a#"}))
	require.Equal(t, []string{"q"}, readIDsSorted(t, ds, collection, storage.NodeFilter{PathSegment: "A", Separator: "#"}))
	require.Equal(t, []string{"r"}, readIDsSorted(t, ds, collection, storage.NodeFilter{PathSegment: "a", Separator: "#"}))
}

func ReadNodesSortedTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	collection := newCollection()

	writeNodes(t, ds, collection,
		&storage.Node{ID: "C", Parent: "B", Path: "A#B#C"},
		&storage.Node{ID: "X", Path: "X"},
		&storage.Node{ID: "A", Path: "A"},
		&storage.Node{ID: "D", Parent: "A", Path: "A#D"},
		&storage.Node{ID: "B", Parent: "A", Path: "A#B"},
		&storage.Node{ID: "Y", Parent: "X", Path: "X#Y"},
	)

	iter, err := ds.ReadNodes(ctx, collection, storage.NodeFilter{}, storage.ReadOptions{SortByPath: true})
	require.NoError(t, err)
	require.Equal(t, []string{"A", "B", "C", "D", "X", "Y"}, collect(t, iter))

	iter, err = ds.ReadNodes(ctx, collection, storage.NodeFilter{PathPrefix: "A#"}, storage.ReadOptions{SortByPath: true})
	require.NoError(t, err)
	require.Equal(t, []string{"B", "C", "D"}, collect(t, iter))
}

func ReadNodesPagingTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	collection := newCollection()

	numNodes := storage.DefaultPageSize*2 + 17
	writeNodes(t, ds, collection, &storage.Node{ID: "root", Path: "root"})
	for i := 0; i < numNodes; i++ {
		id := fmt.Sprintf("n%04d", i)
		writeNodes(t, ds, collection, &storage.Node{ID: id, Parent: "root", Path: "root#" + id})
	}

	for _, sorted := range []bool{false, true} {
		t.Run(fmt.Sprintf("sorted_%t", sorted), func(t *testing.T) {
			iter, err := ds.ReadNodes(ctx, collection, storage.NodeFilter{Parent: "root"}, storage.ReadOptions{SortByPath: sorted})
			require.NoError(t, err)

			ids := collect(t, iter)
			require.Len(t, ids, numNodes)

			seen := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				seen[id] = struct{}{}
			}
			require.Len(t, seen, numNodes)
		})
	}

	t.Run("stop_before_the_end", func(t *testing.T) {
		iter, err := ds.ReadNodes(ctx, collection, storage.NodeFilter{}, storage.ReadOptions{})
		require.NoError(t, err)

		_, err = iter.Next(ctx)
		require.NoError(t, err)
		iter.Stop()
	})
}

// ReadNodesWhileUpdatingTest rewrites the path of every node returned by an open
// iterator, the way a cascading rewrite does, and checks that every node is seen once.
func ReadNodesWhileUpdatingTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	collection := newCollection()

	numNodes := storage.DefaultPageSize + 50
	writeNodes(t, ds, collection, &storage.Node{ID: "P", Path: "P"})
	for i := 0; i < numNodes; i++ {
		id := fmt.Sprintf("n%04d", i)
		writeNodes(t, ds, collection, &storage.Node{ID: id, Parent: "P", Path: "P#" + id})
	}

	iter, err := ds.ReadNodes(ctx, collection, storage.NodeFilter{PathPrefix: "P#"}, storage.ReadOptions{})
	require.NoError(t, err)
	defer iter.Stop()

	seen := make(map[string]struct{})
	for {
		n, err := iter.Next(ctx)
		if err != nil {
			require.ErrorIs(t, err, storage.ErrIteratorDone)
			break
		}
		require.NotContains(t, seen, n.ID)
		seen[n.ID] = struct{}{}
		require.NoError(t, ds.UpdateNodeField(ctx, collection, n.ID, storage.FieldPath, "Q#"+n.ID))
	}

	require.Len(t, seen, numNodes)
	require.Empty(t, readIDs(t, ds, collection, storage.NodeFilter{PathPrefix: "P#"}))
	require.Len(t, readIDs(t, ds, collection, storage.NodeFilter{PathPrefix: "Q#"}), numNodes)
}

func CollectionIsolationTest(t *testing.T, ds storage.Datastore) {
	ctx := context.Background()
	first, second := newCollection(), newCollection()

	writeNodes(t, ds, first, &storage.Node{ID: "A", Path: "A"})
	writeNodes(t, ds, second, &storage.Node{ID: "A", Path: "A", Name: "second"})

	got, err := ds.ReadNode(ctx, first, "A")
	require.NoError(t, err)
	require.Empty(t, got.Name)

	deleted, err := ds.DeleteNodes(ctx, first, storage.NodeFilter{})
	require.NoError(t, err)
	require.Equal(t, int64(1), deleted)

	require.Equal(t, []string{"A"}, readIDs(t, ds, second, storage.NodeFilter{}))
}

func readIDsSorted(t *testing.T, ds storage.Datastore, collection string, filter storage.NodeFilter) []string {
	t.Helper()

	ids := readIDs(t, ds, collection, filter)
	slices.Sort(ids)
	return ids
}
