package badger

import (
	"context"
	"fmt"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/stretchr/testify/require"

	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/storage/test"
)

func newDatastore(t *testing.T) *Datastore {
	t.Helper()

	ds, err := New(Config{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(ds.Close)
	return ds
}

func TestBadgerDatastore(t *testing.T) {
	test.RunAllTests(t, newDatastore(t))
}

func TestBadgerTrees(t *testing.T) {
	test.RunTreeTests(t, newDatastore(t))
}

func TestBadgerPersistence(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	ds, err := New(Config{Path: dir, SyncWrites: true})
	require.NoError(t, err)
	require.NoError(t, ds.WriteNode(ctx, "docs", &storage.Node{ID: "A", Path: "A", Data: []byte("payload")}))
	ds.Close()

	ds, err = New(Config{Path: dir})
	require.NoError(t, err)
	defer ds.Close()

	got, err := ds.ReadNode(ctx, "docs", "A")
	require.NoError(t, err)
	require.Equal(t, &storage.Node{ID: "A", Path: "A", Data: []byte("payload")}, got)
}

func TestBadgerRequiresPath(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
}

func TestBadgerIndexesFollowUpdates(t *testing.T) {
	ctx := context.Background()
	ds := newDatastore(t)

	require.NoError(t, ds.WriteNode(ctx, "docs", &storage.Node{ID: "A", Path: "A"}))
	require.NoError(t, ds.WriteNode(ctx, "docs", &storage.Node{ID: "B", Parent: "A", Path: "A#B"}))
	require.NoError(t, ds.UpdateNodeField(ctx, "docs", "B", storage.FieldParent, ""))
	require.NoError(t, ds.UpdateNodeField(ctx, "docs", "B", storage.FieldPath, "B"))

	err := ds.db.View(func(txn *badger.Txn) error {
		for _, key := range [][]byte{pathKey("docs", "A#B", "B"), parentKey("docs", "A", "B")} {
			_, err := txn.Get(key)
			require.ErrorIs(t, err, badger.ErrKeyNotFound)
		}
		for _, key := range [][]byte{pathKey("docs", "B", "B"), parentKey("docs", "", "B")} {
			_, err := txn.Get(key)
			require.NoError(t, err)
		}
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, ds.DeleteNode(ctx, "docs", "B"))
	err = ds.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(pathPrefix + "docs" + keySep)
		it := txn.NewIterator(opts)
		defer it.Close()

		var keys int
		for it.Rewind(); it.Valid(); it.Next() {
			keys++
		}
		require.Equal(t, 1, keys)
		return nil
	})
	require.NoError(t, err)
}

func TestBadgerIsReadyAfterClose(t *testing.T) {
	ds, err := New(Config{InMemory: true, Logger: logger.NewNoopLogger()})
	require.NoError(t, err)

	status, err := ds.IsReady(context.Background())
	require.NoError(t, err)
	require.True(t, status.IsReady)

	ds.Close()
	status, err = ds.IsReady(context.Background())
	require.Error(t, err)
	require.False(t, status.IsReady)
}

func TestIDFromIndexKey(t *testing.T) {
	require.Equal(t, "C", idFromIndexKey(pathKey("docs", "A#B#C", "C")))
	require.Equal(t, "B", idFromIndexKey(parentKey("docs", "", "B")))
}

func TestBadgerReadNodesObservesWritesBetweenPages(t *testing.T) {
	ctx := context.Background()
	ds := newDatastore(t)

	numNodes := storage.DefaultPageSize + 5
	for i := 0; i < numNodes; i++ {
		id := fmt.Sprintf("n%04d", i)
		require.NoError(t, ds.WriteNode(ctx, "docs", &storage.Node{ID: id, Parent: "P", Path: "P#" + id}))
	}

	for _, sorted := range []bool{false, true} {
		t.Run(fmt.Sprintf("sorted_%t", sorted), func(t *testing.T) {
			iter, err := ds.ReadNodes(ctx, "docs", storage.NodeFilter{Parent: "P"}, storage.ReadOptions{SortByPath: sorted})
			require.NoError(t, err)
			defer iter.Stop()

			_, err = iter.Next(ctx)
			require.NoError(t, err)

			// sorts after the first page under both the path and the parent index
			id := fmt.Sprintf("z%t", sorted)
			require.NoError(t, ds.WriteNode(ctx, "docs", &storage.Node{ID: id, Parent: "P", Path: "P#" + id}))

			rest, err := storage.Collect(ctx, iter)
			require.NoError(t, err)
			require.Equal(t, id, rest[len(rest)-1].ID)
		})
	}
}

func TestRangeFor(t *testing.T) {
	tests := []struct {
		name    string
		filter  storage.NodeFilter
		sorted  bool
		prefix  string
		indexed bool
	}{
		{name: "all", prefix: "n/docs\x00"},
		{name: "sorted", sorted: true, prefix: "p/docs\x00", indexed: true},
		{name: "path_prefix", filter: storage.NodeFilter{PathPrefix: "A#"}, prefix: "p/docs\x00A#", indexed: true},
		{name: "parent", filter: storage.NodeFilter{Parent: "A"}, prefix: "c/docs\x00A\x00", indexed: true},
		{name: "roots", filter: storage.NodeFilter{RootsOnly: true}, prefix: "c/docs\x00\x00", indexed: true},
		{name: "segment", filter: storage.NodeFilter{PathSegment: "A", Separator: "#"}, prefix: "n/docs\x00"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			r := rangeFor("docs", tc.filter, tc.sorted)
			require.Equal(t, tc.prefix, string(r.prefix))
			require.Equal(t, tc.indexed, r.indexed)
		})
	}
}
