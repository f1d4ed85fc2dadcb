package memory

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"

	"github.com/openfga/mpath/pkg/storage"
)

var tracer = otel.Tracer("mpath/pkg/storage/memory")

// StorageOption defines a function type used for configuring a [MemoryBackend] instance.
type StorageOption func(dataStore *MemoryBackend)

// MemoryBackend provides an ephemeral memory-backed implementation of [storage.Datastore].
// These instances may be safely shared by multiple go-routines.
type MemoryBackend struct {
	// map: collection => node id => node
	collections map[string]map[string]*storage.Node // GUARDED_BY(mu).
	mu          sync.RWMutex
}

// Ensures that [MemoryBackend] implements the [storage.Datastore] interface.
var _ storage.Datastore = (*MemoryBackend)(nil)

// New creates a new [MemoryBackend] given the options.
func New(opts ...StorageOption) *MemoryBackend {
	ds := &MemoryBackend{
		collections: make(map[string]map[string]*storage.Node),
	}

	for _, opt := range opts {
		opt(ds)
	}

	return ds
}

// WithNodes returns a [StorageOption] that preloads a collection with nodes, as they are.
func WithNodes(collection string, nodes ...*storage.Node) StorageOption {
	return func(ds *MemoryBackend) {
		c := ds.collection(collection)
		for _, n := range nodes {
			c[n.ID] = n.Clone()
		}
	}
}

// collection returns the nodes of the named collection, creating it if needed.
// The caller must hold the write lock.
func (s *MemoryBackend) collection(name string) map[string]*storage.Node {
	c, ok := s.collections[name]
	if !ok {
		c = make(map[string]*storage.Node)
		s.collections[name] = c
	}
	return c
}

// Close does not do anything for [MemoryBackend].
func (s *MemoryBackend) Close() {}

// IsReady see [storage.Datastore].IsReady.
func (s *MemoryBackend) IsReady(context.Context) (storage.ReadinessStatus, error) {
	return storage.ReadinessStatus{IsReady: true}, nil
}

// ReadNode see [storage.NodeReader].ReadNode.
func (s *MemoryBackend) ReadNode(ctx context.Context, collection, id string) (*storage.Node, error) {
	_, span := tracer.Start(ctx, "memory.ReadNode")
	defer span.End()

	s.mu.RLock()
	defer s.mu.RUnlock()

	n, ok := s.collections[collection][id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return n.Clone(), nil
}

// ReadNodes see [storage.NodeReader].ReadNodes.
// Matching nodes are copied a page of storage.DefaultPageSize at a time, as the iterator advances.
func (s *MemoryBackend) ReadNodes(ctx context.Context, collection string, filter storage.NodeFilter, options storage.ReadOptions) (storage.NodeIterator, error) {
	_, span := tracer.Start(ctx, "memory.ReadNodes")
	defer span.End()

	if err := filter.Validate(); err != nil {
		return nil, err
	}

	return &nodeIterator{
		backend:    s,
		collection: collection,
		filter:     filter,
		sortByPath: options.SortByPath,
		pageSize:   storage.DefaultPageSize,
	}, nil
}

// WriteNode see [storage.NodeWriter].WriteNode.
func (s *MemoryBackend) WriteNode(ctx context.Context, collection string, node *storage.Node) error {
	_, span := tracer.Start(ctx, "memory.WriteNode")
	defer span.End()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.collection(collection)[node.ID] = node.Clone()
	return nil
}

// UpdateNodeField see [storage.NodeWriter].UpdateNodeField.
func (s *MemoryBackend) UpdateNodeField(ctx context.Context, collection, id string, field storage.Field, value string) error {
	_, span := tracer.Start(ctx, "memory.UpdateNodeField")
	defer span.End()

	if err := storage.ValidateField(field); err != nil {
		return err
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.collections[collection][id]
	if !ok {
		return storage.ErrNotFound
	}

	// stored nodes are never handed out, so they can be replaced but not mutated in place
	updated := n.Clone()
	switch field {
	case storage.FieldParent:
		updated.Parent = value
	case storage.FieldPath:
		updated.Path = value
	}
	s.collections[collection][id] = updated

	return nil
}

// DeleteNode see [storage.NodeWriter].DeleteNode.
func (s *MemoryBackend) DeleteNode(ctx context.Context, collection, id string) error {
	_, span := tracer.Start(ctx, "memory.DeleteNode")
	defer span.End()

	if ctx.Err() != nil {
		return ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.collections[collection], id)
	return nil
}

// DeleteNodes see [storage.NodeWriter].DeleteNodes.
func (s *MemoryBackend) DeleteNodes(ctx context.Context, collection string, filter storage.NodeFilter) (int64, error) {
	_, span := tracer.Start(ctx, "memory.DeleteNodes")
	defer span.End()

	if err := filter.Validate(); err != nil {
		return 0, err
	}
	if ctx.Err() != nil {
		return 0, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var deleted int64
	for id, n := range s.collections[collection] {
		if storage.MatchNode(n, filter) {
			delete(s.collections[collection], id)
			deleted++
		}
	}
	return deleted, nil
}
