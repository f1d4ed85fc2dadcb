package storagewrappers

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/storage/memory"
	"github.com/openfga/mpath/pkg/tree"
)

func TestInstrumentedDatastore(t *testing.T) {
	ctx := context.Background()
	ds := NewInstrumentedDatastore(memory.New())

	notFoundBefore := testutil.ToFloat64(datastoreCallsCounter.WithLabelValues("ReadNode", "error"))

	require.NoError(t, ds.WriteNode(ctx, "docs", &storage.Node{ID: "A", Path: "A"}))
	_, err := ds.ReadNode(ctx, "docs", "A")
	require.NoError(t, err)
	_, err = ds.ReadNode(ctx, "docs", "missing")
	require.ErrorIs(t, err, storage.ErrNotFound)
	require.ErrorIs(t, ds.UpdateNodeField(ctx, "docs", "missing", storage.FieldPath, "X"), storage.ErrNotFound)

	require.Equal(t, Metrics{DatastoreReadCount: 2, DatastoreWriteCount: 2}, ds.GetMetrics())
	require.InDelta(t, 1, testutil.ToFloat64(datastoreCallsCounter.WithLabelValues("ReadNode", "error"))-notFoundBefore, 0)
}

func TestInstrumentedDatastoreCountsTreeCalls(t *testing.T) {
	ctx := context.Background()
	ds := NewInstrumentedDatastore(memory.New())

	tr, err := tree.New(ds, "docs")
	require.NoError(t, err)

	a := &storage.Node{Name: "a"}
	require.NoError(t, tr.Save(ctx, a))
	b := &storage.Node{Name: "b", Parent: a.ID}
	require.NoError(t, tr.Save(ctx, b))

	// new nodes have no stored version to read; b reads its parent
	require.Equal(t, Metrics{DatastoreReadCount: 1, DatastoreWriteCount: 2}, ds.GetMetrics())

	b.Name = "renamed"
	require.NoError(t, tr.Save(ctx, b))
	require.Equal(t, Metrics{DatastoreReadCount: 2, DatastoreWriteCount: 3}, ds.GetMetrics())
}
