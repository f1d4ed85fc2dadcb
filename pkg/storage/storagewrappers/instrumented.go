package storagewrappers

import (
	"context"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/openfga/mpath/pkg/storage"
)

var datastoreCallsCounter = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "mpath",
	Name:      "datastore_calls_total",
	Help:      "The total number of datastore calls, partitioned by method and outcome.",
}, []string{"method", "outcome"})

var _ storage.Datastore = (*InstrumentedDatastore)(nil)

// InstrumentedDatastore counts the calls made to the wrapped datastore, both
// in a process wide prometheus counter and in a per instance query count.
type InstrumentedDatastore struct {
	storage.Datastore
	countReads  atomic.Uint32
	countWrites atomic.Uint32
}

// NewInstrumentedDatastore creates a new instance of InstrumentedDatastore that wraps the specified datastore.
// InstrumentedDatastore is thread-safe. Its query counts cover every call made through the instance.
func NewInstrumentedDatastore(wrapped storage.Datastore) *InstrumentedDatastore {
	return &InstrumentedDatastore{Datastore: wrapped}
}

type Metrics struct {
	DatastoreReadCount  uint32
	DatastoreWriteCount uint32
}

func (m *InstrumentedDatastore) GetMetrics() Metrics {
	return Metrics{
		DatastoreReadCount:  m.countReads.Load(),
		DatastoreWriteCount: m.countWrites.Load(),
	}
}

func observe(method string, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	datastoreCallsCounter.WithLabelValues(method, outcome).Inc()
}

// ReadNode see [storage.NodeReader].ReadNode.
func (m *InstrumentedDatastore) ReadNode(ctx context.Context, collection, id string) (*storage.Node, error) {
	m.countReads.Add(1)

	node, err := m.Datastore.ReadNode(ctx, collection, id)
	observe("ReadNode", err)
	return node, err
}

// ReadNodes see [storage.NodeReader].ReadNodes.
func (m *InstrumentedDatastore) ReadNodes(ctx context.Context, collection string, filter storage.NodeFilter, options storage.ReadOptions) (storage.NodeIterator, error) {
	m.countReads.Add(1)

	iter, err := m.Datastore.ReadNodes(ctx, collection, filter, options)
	observe("ReadNodes", err)
	return iter, err
}

// WriteNode see [storage.NodeWriter].WriteNode.
func (m *InstrumentedDatastore) WriteNode(ctx context.Context, collection string, node *storage.Node) error {
	m.countWrites.Add(1)

	err := m.Datastore.WriteNode(ctx, collection, node)
	observe("WriteNode", err)
	return err
}

// UpdateNodeField see [storage.NodeWriter].UpdateNodeField.
func (m *InstrumentedDatastore) UpdateNodeField(ctx context.Context, collection, id string, field storage.Field, value string) error {
	m.countWrites.Add(1)

	err := m.Datastore.UpdateNodeField(ctx, collection, id, field, value)
	observe("UpdateNodeField", err)
	return err
}

// DeleteNode see [storage.NodeWriter].DeleteNode.
func (m *InstrumentedDatastore) DeleteNode(ctx context.Context, collection, id string) error {
	m.countWrites.Add(1)

	err := m.Datastore.DeleteNode(ctx, collection, id)
	observe("DeleteNode", err)
	return err
}

// DeleteNodes see [storage.NodeWriter].DeleteNodes.
func (m *InstrumentedDatastore) DeleteNodes(ctx context.Context, collection string, filter storage.NodeFilter) (int64, error) {
	m.countWrites.Add(1)

	deleted, err := m.Datastore.DeleteNodes(ctx, collection, filter)
	observe("DeleteNodes", err)
	return deleted, err
}
