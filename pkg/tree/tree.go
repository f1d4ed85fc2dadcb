// Package tree maintains materialized-path trees stored in flat document collections.
//
// Every node stores its parent ID and a path made of its ancestor IDs followed by its own ID.
// A Tree keeps the paths consistent when nodes are created, moved or removed, rewriting the
// paths of every affected descendant with bounded concurrency, and answers hierarchical
// queries from path prefix scans.
//
// The cascading rewrites are not transactional. When one fails the error is returned and
// the already rewritten descendants keep their new values. Re-running the same mutation
// is safe, since rewriting a path that is already correct is a no-op.
package tree

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/treepath"
)

var tracer = otel.Tracer("mpath/pkg/tree")

func startTrace(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, "tree."+name, trace.WithAttributes(attrs...))
}

// Tree is one configured tree collection of a datastore.
// It holds no state besides its configuration and may be used concurrently.
// Independent mutations are not coordinated with each other.
type Tree struct {
	ds         storage.Datastore
	collection string
	codec      treepath.Codec
	onDelete   DeletePolicy
	numWorkers int
	logger     logger.Logger
}

// New returns the tree stored in the given collection of ds.
func New(ds storage.Datastore, collection string, opts ...Option) (*Tree, error) {
	if ds == nil {
		return nil, fmt.Errorf("%w: nil datastore", ErrInvalidConfiguration)
	}
	if collection == "" {
		return nil, fmt.Errorf("%w: empty collection name", ErrInvalidConfiguration)
	}

	cfg := NewConfig(opts...)
	if err := cfg.Verify(); err != nil {
		return nil, err
	}

	return &Tree{
		ds:         ds,
		collection: collection,
		codec:      treepath.New(cfg.PathSeparator),
		onDelete:   cfg.OnDelete,
		numWorkers: cfg.NumWorkers,
		logger:     cfg.Logger.With(logger.Collection(collection)),
	}, nil
}

// Collection returns the name of the collection the tree is stored in.
func (t *Tree) Collection() string {
	return t.collection
}

// Codec returns the path codec of the tree.
func (t *Tree) Codec() treepath.Codec {
	return t.codec
}

// Level returns the depth of node in its tree: 1 for a root, 0 for a node without a path.
func (t *Tree) Level(node *storage.Node) int {
	return t.codec.Depth(node.Path)
}
