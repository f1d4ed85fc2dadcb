package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/storage/test"
)

func TestMemdbStorage(t *testing.T) {
	ds := New()
	test.RunAllTests(t, ds)
}

func TestMemdbTrees(t *testing.T) {
	ds := New()
	test.RunTreeTests(t, ds)
}

func TestWithNodes(t *testing.T) {
	ctx := context.Background()
	ds := New(WithNodes("docs",
		&storage.Node{ID: "A", Path: "A"},
		&storage.Node{ID: "B", Parent: "A", Path: "A#B"},
	))

	got, err := ds.ReadNode(ctx, "docs", "B")
	require.NoError(t, err)
	require.Equal(t, "A#B", got.Path)

	_, err = ds.ReadNode(ctx, "other", "B")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestReturnedNodesAreCopies(t *testing.T) {
	ctx := context.Background()
	ds := New()
	require.NoError(t, ds.WriteNode(ctx, "docs", &storage.Node{ID: "A", Path: "A", Data: []byte("x")}))

	got, err := ds.ReadNode(ctx, "docs", "A")
	require.NoError(t, err)
	got.Path = "changed"
	got.Data[0] = 'y'

	again, err := ds.ReadNode(ctx, "docs", "A")
	require.NoError(t, err)
	require.Equal(t, "A", again.Path)
	require.Equal(t, []byte("x"), again.Data)
}

func TestReadNodesObservesWritesBetweenPages(t *testing.T) {
	ctx := context.Background()
	ds := New()

	numNodes := storage.DefaultPageSize + 5
	for i := 0; i < numNodes; i++ {
		id := fmt.Sprintf("n%04d", i)
		require.NoError(t, ds.WriteNode(ctx, "docs", &storage.Node{ID: id, Parent: "P", Path: "P#" + id}))
	}

	iter, err := ds.ReadNodes(ctx, "docs", storage.NodeFilter{PathPrefix: "P#"}, storage.ReadOptions{SortByPath: true})
	require.NoError(t, err)
	defer iter.Stop()

	first, err := iter.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, "n0000", first.ID)

	// lands after the first page, so it is read with the second one
	require.NoError(t, ds.WriteNode(ctx, "docs", &storage.Node{ID: "z", Parent: "P", Path: "P#z"}))
	// already behind the cursor
	require.NoError(t, ds.DeleteNode(ctx, "docs", "n0000"))

	rest, err := storage.Collect(ctx, iter)
	require.NoError(t, err)
	require.Len(t, rest, numNodes)
	require.Equal(t, "z", rest[len(rest)-1].ID)
}
