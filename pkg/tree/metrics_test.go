package tree

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/storage/memory"
)

func TestCascadeMetricsAndLogs(t *testing.T) {
	ctx := context.Background()
	log, logs := logger.NewObserverLogger("debug")

	tr, err := New(memory.New(), "docs", WithLogger(log), WithOnDelete(OnDeleteReparent))
	require.NoError(t, err)

	for _, n := range []*storage.Node{
		{ID: "A"},
		{ID: "B", Parent: "A"},
		{ID: "C", Parent: "B"},
		{ID: "E", Parent: "B"},
		{ID: "D"},
	} {
		require.NoError(t, tr.Save(ctx, n))
	}

	rebased := testutil.ToFloat64(cascadeUpdatesCounter.WithLabelValues(opRebase))
	require.NoError(t, tr.Save(ctx, &storage.Node{ID: "B", Parent: "D"}))
	require.InDelta(t, rebased+2, testutil.ToFloat64(cascadeUpdatesCounter.WithLabelValues(opRebase)), 0)

	reparented := testutil.ToFloat64(cascadeUpdatesCounter.WithLabelValues(opReparent))
	spliced := testutil.ToFloat64(cascadeUpdatesCounter.WithLabelValues(opSplice))
	require.NoError(t, tr.Remove(ctx, &storage.Node{ID: "B"}))
	require.InDelta(t, reparented+2, testutil.ToFloat64(cascadeUpdatesCounter.WithLabelValues(opReparent)), 0)
	require.InDelta(t, spliced+2, testutil.ToFloat64(cascadeUpdatesCounter.WithLabelValues(opSplice)), 0)

	entries := logs.FilterMessage("cascading rewrite done").All()
	require.Len(t, entries, 3)
	fields := entries[0].ContextMap()
	require.Equal(t, "docs", fields["collection"])
	require.Equal(t, "B", fields["node_id"])
	require.Equal(t, opRebase, fields["operation"])
	require.Equal(t, int64(2), fields["updated"])
}
