package test

import (
	"context"
	"testing"

	"github.com/oklog/ulid/v2"
	"github.com/stretchr/testify/require"

	"github.com/openfga/mpath/pkg/storage"
)

// RunAllTests runs the conformance tests every storage.Datastore must pass.
// Each test works in its own collection, so ds may already hold data.
func RunAllTests(t *testing.T, ds storage.Datastore) {
	t.Run("TestDatastoreIsReady", func(t *testing.T) {
		status, err := ds.IsReady(context.Background())
		require.NoError(t, err)
		require.True(t, status.IsReady)
	})

	// Nodes.
	t.Run("TestNodeWriteAndRead", func(t *testing.T) { NodeWritingAndReadingTest(t, ds) })
	t.Run("TestUpdateNodeField", func(t *testing.T) { UpdateNodeFieldTest(t, ds) })
	t.Run("TestDeleteNodes", func(t *testing.T) { DeleteNodesTest(t, ds) })

	// Filters.
	t.Run("TestReadNodesFilters", func(t *testing.T) { ReadNodesFilterTest(t, ds) })
	t.Run("TestReadNodesPatternCharacters", func(t *testing.T) { ReadNodesPatternCharactersTest(t, ds) })
	t.Run("TestReadNodesSorted", func(t *testing.T) { ReadNodesSortedTest(t, ds) })
	t.Run("TestReadNodesPaging", func(t *testing.T) { ReadNodesPagingTest(t, ds) })
	t.Run("TestReadNodesWhileUpdating", func(t *testing.T) { ReadNodesWhileUpdatingTest(t, ds) })
	t.Run("TestCollectionsAreIsolated", func(t *testing.T) { CollectionIsolationTest(t, ds) })
}

// RunTreeTests runs the tree engine against ds.
func RunTreeTests(t *testing.T, ds storage.Datastore) {
	t.Run("TestSaveComputesPaths", func(t *testing.T) { SaveTest(t, ds) })
	t.Run("TestReparentCascades", func(t *testing.T) { ReparentTest(t, ds) })
	t.Run("TestRemoveDelete", func(t *testing.T) { RemoveDeleteTest(t, ds) })
	t.Run("TestRemoveReparent", func(t *testing.T) { RemoveReparentTest(t, ds) })
	t.Run("TestQueries", func(t *testing.T) { QueriesTest(t, ds) })
	t.Run("TestForest", func(t *testing.T) { ForestTest(t, ds) })
	t.Run("TestPathInvariants", func(t *testing.T) { PathInvariantsTest(t, ds) })
}

// newCollection returns the name of a collection no other test uses.
func newCollection() string {
	return "c" + ulid.Make().String()
}

// collect drains iter and returns the IDs of its nodes.
func collect(t *testing.T, iter storage.NodeIterator) []string {
	t.Helper()

	nodes, err := storage.Collect(context.Background(), iter)
	require.NoError(t, err)
	return ids(nodes)
}

func readIDs(t *testing.T, ds storage.Datastore, collection string, filter storage.NodeFilter) []string {
	t.Helper()

	iter, err := ds.ReadNodes(context.Background(), collection, filter, storage.ReadOptions{})
	require.NoError(t, err)
	return collect(t, iter)
}

func writeNodes(t *testing.T, ds storage.Datastore, collection string, nodes ...*storage.Node) {
	t.Helper()

	for _, n := range nodes {
		require.NoError(t, ds.WriteNode(context.Background(), collection, n))
	}
}
