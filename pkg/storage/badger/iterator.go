package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/openfga/mpath/pkg/storage"
)

// scanRange is the index walked to serve a filter. Keys under prefix are visited in byte order,
// so a scan can resume from the last key it returned.
type scanRange struct {
	prefix  []byte
	indexed bool
}

// rangeFor picks the narrowest index that serves filter.
// Path index keys end in keySep and the id, so walking it yields (path, id) order.
func rangeFor(collection string, filter storage.NodeFilter, sortByPath bool) scanRange {
	switch {
	case filter.PathPrefix != "" || sortByPath:
		return scanRange{prefix: []byte(pathPrefix + collection + keySep + filter.PathPrefix), indexed: true}
	case filter.Parent != "":
		return scanRange{prefix: []byte(parentPrefix + collection + keySep + filter.Parent + keySep), indexed: true}
	case filter.RootsOnly:
		return scanRange{prefix: []byte(parentPrefix + collection + keySep + keySep), indexed: true}
	default:
		return scanRange{prefix: []byte(nodePrefix + collection + keySep)}
	}
}

// scanPage returns up to limit nodes matching filter whose keys sort after the key after,
// or from the start of the range when after is nil. last is the key of the last node returned.
// done reports that the range was walked to its end.
func scanPage(ctx context.Context, txn *badger.Txn, collection string, filter storage.NodeFilter, r scanRange, after []byte, limit int) (nodes []*storage.Node, last []byte, done bool, err error) {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = r.prefix
	opts.PrefetchValues = !r.indexed
	opts.PrefetchSize = limit
	it := txn.NewIterator(opts)
	defer it.Close()

	start := r.prefix
	if after != nil {
		start = after
	}

	for it.Seek(start); it.ValidForPrefix(r.prefix); it.Next() {
		if err := ctx.Err(); err != nil {
			return nil, nil, false, err
		}

		item := it.Item()
		if after != nil && bytes.Equal(item.Key(), after) {
			continue
		}

		var node *storage.Node
		if r.indexed {
			n, err := getNode(txn, collection, idFromIndexKey(item.Key()))
			if err != nil {
				return nil, nil, false, err
			}
			node = n
		} else {
			var n storage.Node
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &n)
			}); err != nil {
				return nil, nil, false, fmt.Errorf("decode node: %w", err)
			}
			node = &n
		}

		if !storage.MatchNode(node, filter) {
			continue
		}

		nodes = append(nodes, node)
		if len(nodes) == limit {
			return nodes, item.KeyCopy(nil), false, nil
		}
	}

	return nodes, nil, true, nil
}

// nodeIterator implements storage.NodeIterator over a badger index.
//
// Nodes are read in pages of storage.DefaultPageSize, each in its own read transaction,
// resuming after the last key of the previous page. No transaction is held open between
// pages, so the matched nodes can be updated while the iterator is in use.
type nodeIterator struct {
	db         *badger.DB
	collection string
	filter     storage.NodeFilter
	scanRange  scanRange
	pageSize   int

	buffer []*storage.Node // GUARDED_BY(mu)
	last   []byte          // GUARDED_BY(mu)
	done   bool            // GUARDED_BY(mu)
	mu     sync.Mutex
}

var _ storage.NodeIterator = (*nodeIterator)(nil)

func newNodeIterator(db *badger.DB, collection string, filter storage.NodeFilter, sortByPath bool) *nodeIterator {
	return &nodeIterator{
		db:         db,
		collection: collection,
		filter:     filter,
		scanRange:  rangeFor(collection, filter, sortByPath),
		pageSize:   storage.DefaultPageSize,
	}
}

func (it *nodeIterator) fetchPage(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "badger.fetchPage", trace.WithAttributes(attribute.Bool("indexed", it.scanRange.indexed)))
	defer span.End()

	return it.db.View(func(txn *badger.Txn) error {
		page, last, done, err := scanPage(ctx, txn, it.collection, it.filter, it.scanRange, it.last, it.pageSize)
		if err != nil {
			return err
		}
		it.buffer = page
		it.last = last
		it.done = done
		return nil
	})
}

// Next see [storage.Iterator].Next.
func (it *nodeIterator) Next(ctx context.Context) (*storage.Node, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	it.mu.Lock()
	defer it.mu.Unlock()

	for len(it.buffer) == 0 {
		if it.done {
			return nil, storage.ErrIteratorDone
		}
		if err := it.fetchPage(ctx); err != nil {
			return nil, err
		}
	}

	next := it.buffer[0]
	it.buffer = it.buffer[1:]
	return next, nil
}

// Stop terminates iteration.
func (it *nodeIterator) Stop() {
	it.mu.Lock()
	defer it.mu.Unlock()
	it.buffer = nil
	it.done = true
}
