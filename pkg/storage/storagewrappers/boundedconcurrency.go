package storagewrappers

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfga/mpath/pkg/storage"
)

var _ storage.Datastore = (*BoundedConcurrencyDatastore)(nil)

var timeWaitingHistogram = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: "mpath",
	Name:      "datastore_time_waiting_ms",
	Help:      "Time (in ms) spent waiting for a free datastore slot.",
	Buckets:   []float64{1, 10, 25, 50, 100, 1000, 5000},
})

// BoundedConcurrencyDatastore makes sure there are, at most, N concurrent calls
// to the wrapped datastore. Iterators returned by ReadNodes are not bounded.
type BoundedConcurrencyDatastore struct {
	storage.Datastore
	limiter chan struct{}
}

// NewBoundedConcurrencyDatastore returns a wrapper over a datastore that allows at most n concurrent calls.
// A cascade running many workers can then not hoard all the database connections available.
func NewBoundedConcurrencyDatastore(wrapped storage.Datastore, n uint32) *BoundedConcurrencyDatastore {
	return &BoundedConcurrencyDatastore{
		Datastore: wrapped,
		limiter:   make(chan struct{}, n),
	}
}

// acquire waits for a free slot. The caller must call the returned release once done.
func (b *BoundedConcurrencyDatastore) acquire(ctx context.Context) (func(), error) {
	start := time.Now()

	select {
	case b.limiter <- struct{}{}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	timeWaiting := time.Since(start).Milliseconds()
	timeWaitingHistogram.Observe(float64(timeWaiting))
	trace.SpanFromContext(ctx).SetAttributes(attribute.Int64("time_waiting", timeWaiting))

	return func() { <-b.limiter }, nil
}

// ReadNode see [storage.NodeReader].ReadNode.
func (b *BoundedConcurrencyDatastore) ReadNode(ctx context.Context, collection, id string) (*storage.Node, error) {
	release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return b.Datastore.ReadNode(ctx, collection, id)
}

// ReadNodes see [storage.NodeReader].ReadNodes.
func (b *BoundedConcurrencyDatastore) ReadNodes(ctx context.Context, collection string, filter storage.NodeFilter, options storage.ReadOptions) (storage.NodeIterator, error) {
	release, err := b.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	return b.Datastore.ReadNodes(ctx, collection, filter, options)
}

// WriteNode see [storage.NodeWriter].WriteNode.
func (b *BoundedConcurrencyDatastore) WriteNode(ctx context.Context, collection string, node *storage.Node) error {
	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return b.Datastore.WriteNode(ctx, collection, node)
}

// UpdateNodeField see [storage.NodeWriter].UpdateNodeField.
func (b *BoundedConcurrencyDatastore) UpdateNodeField(ctx context.Context, collection, id string, field storage.Field, value string) error {
	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return b.Datastore.UpdateNodeField(ctx, collection, id, field, value)
}

// DeleteNode see [storage.NodeWriter].DeleteNode.
func (b *BoundedConcurrencyDatastore) DeleteNode(ctx context.Context, collection, id string) error {
	release, err := b.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return b.Datastore.DeleteNode(ctx, collection, id)
}

// DeleteNodes see [storage.NodeWriter].DeleteNodes.
func (b *BoundedConcurrencyDatastore) DeleteNodes(ctx context.Context, collection string, filter storage.NodeFilter) (int64, error) {
	release, err := b.acquire(ctx)
	if err != nil {
		return 0, err
	}
	defer release()

	return b.Datastore.DeleteNodes(ctx, collection, filter)
}
