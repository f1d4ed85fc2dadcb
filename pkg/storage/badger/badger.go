// Package badger provides an embedded [storage.Datastore] on top of BadgerDB.
//
// Each node is stored once under its id and indexed twice, by path and by parent:
//
//	n/<collection>\x00<id>               -> JSON node
//	p/<collection>\x00<path>\x00<id>     -> id
//	c/<collection>\x00<parent>\x00<id>   -> id
//
// The path index keeps keys in byte order, so prefix reads come out in path order.
package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/dgraph-io/badger/v4"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
)

var tracer = otel.Tracer("mpath/pkg/storage/badger")

const (
	nodePrefix   = "n/"
	pathPrefix   = "p/"
	parentPrefix = "c/"

	// keySep terminates every variable key part. Node ids and paths never contain it.
	keySep = "\x00"

	// maxConflictRetries bounds the retries of a write transaction that lost an optimistic conflict.
	maxConflictRetries = 10
)

// Config holds configuration for a [Datastore].
type Config struct {
	// Path is the directory for BadgerDB files. Ignored when InMemory is true.
	Path string

	// InMemory keeps everything in memory. Useful for tests and the CLI playground.
	InMemory bool

	// SyncWrites flushes every commit to disk before returning.
	SyncWrites bool

	Logger logger.Logger
}

// Datastore provides a BadgerDB based implementation of [storage.Datastore].
type Datastore struct {
	db     *badger.DB
	logger logger.Logger
}

var _ storage.Datastore = (*Datastore)(nil)

// badgerLogger adapts logger.Logger to the badger.Logger interface.
type badgerLogger struct {
	logger logger.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// New opens a [Datastore] with the given configuration.
func New(cfg Config) (*Datastore, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent badger database")
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.NewNoopLogger()
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create badger directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}
	opts = opts.
		WithSyncWrites(cfg.SyncWrites).
		WithNumVersionsToKeep(1).
		WithLogger(&badgerLogger{logger: cfg.Logger})

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger database: %w", err)
	}

	cfg.Logger.Info("badger datastore opened", zap.Bool("in_memory", cfg.InMemory), zap.String("path", cfg.Path))

	return &Datastore{db: db, logger: cfg.Logger}, nil
}

// Close see [storage.Datastore].Close.
func (s *Datastore) Close() {
	if err := s.db.Close(); err != nil {
		s.logger.Error("failed to close badger database", zap.Error(err))
	}
}

// IsReady see [storage.Datastore].IsReady.
func (s *Datastore) IsReady(context.Context) (storage.ReadinessStatus, error) {
	if s.db.IsClosed() {
		return storage.ReadinessStatus{Message: "badger database is closed"}, errors.New("badger database is closed")
	}
	return storage.ReadinessStatus{IsReady: true}, nil
}

func nodeKey(collection, id string) []byte {
	return []byte(nodePrefix + collection + keySep + id)
}

func pathKey(collection, path, id string) []byte {
	return []byte(pathPrefix + collection + keySep + path + keySep + id)
}

func parentKey(collection, parent, id string) []byte {
	return []byte(parentPrefix + collection + keySep + parent + keySep + id)
}

// getNode loads the node stored under id, or returns storage.ErrNotFound.
func getNode(txn *badger.Txn, collection, id string) (*storage.Node, error) {
	item, err := txn.Get(nodeKey(collection, id))
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, storage.ErrNotFound
		}
		return nil, err
	}

	var node storage.Node
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, &node)
	})
	if err != nil {
		return nil, fmt.Errorf("decode node %s: %w", id, err)
	}
	return &node, nil
}

// putNode stores node and its index entries, dropping the index entries of previous.
func putNode(txn *badger.Txn, collection string, previous, node *storage.Node) error {
	if previous != nil {
		if err := unindex(txn, collection, previous); err != nil {
			return err
		}
	}

	val, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("encode node %s: %w", node.ID, err)
	}
	if err := txn.Set(nodeKey(collection, node.ID), val); err != nil {
		return err
	}
	if err := txn.Set(pathKey(collection, node.Path, node.ID), []byte(node.ID)); err != nil {
		return err
	}
	return txn.Set(parentKey(collection, node.Parent, node.ID), []byte(node.ID))
}

func unindex(txn *badger.Txn, collection string, node *storage.Node) error {
	if err := txn.Delete(pathKey(collection, node.Path, node.ID)); err != nil {
		return err
	}
	return txn.Delete(parentKey(collection, node.Parent, node.ID))
}

func removeNode(txn *badger.Txn, collection string, node *storage.Node) error {
	if err := unindex(txn, collection, node); err != nil {
		return err
	}
	return txn.Delete(nodeKey(collection, node.ID))
}

// update runs fn in a read-write transaction, retrying when the commit lost an optimistic conflict.
func (s *Datastore) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	var err error
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		err = s.db.Update(fn)
		if !errors.Is(err, badger.ErrConflict) {
			return err
		}
	}
	return err
}

// ReadNode see [storage.NodeReader].ReadNode.
func (s *Datastore) ReadNode(ctx context.Context, collection, id string) (*storage.Node, error) {
	_, span := tracer.Start(ctx, "badger.ReadNode")
	defer span.End()

	var node *storage.Node
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		node, err = getNode(txn, collection, id)
		return err
	})
	return node, err
}

// ReadNodes see [storage.NodeReader].ReadNodes.
func (s *Datastore) ReadNodes(ctx context.Context, collection string, filter storage.NodeFilter, options storage.ReadOptions) (storage.NodeIterator, error) {
	_, span := tracer.Start(ctx, "badger.ReadNodes")
	defer span.End()

	if err := filter.Validate(); err != nil {
		return nil, err
	}

	return newNodeIterator(s.db, collection, filter, options.SortByPath), nil
}

// idFromIndexKey returns the trailing id of a path or parent index key.
func idFromIndexKey(key []byte) string {
	i := bytes.LastIndex(key, []byte(keySep))
	return string(key[i+1:])
}

// WriteNode see [storage.NodeWriter].WriteNode.
func (s *Datastore) WriteNode(ctx context.Context, collection string, node *storage.Node) error {
	ctx, span := tracer.Start(ctx, "badger.WriteNode")
	defer span.End()

	return s.update(ctx, func(txn *badger.Txn) error {
		previous, err := getNode(txn, collection, node.ID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return err
		}
		return putNode(txn, collection, previous, node)
	})
}

// UpdateNodeField see [storage.NodeWriter].UpdateNodeField.
func (s *Datastore) UpdateNodeField(ctx context.Context, collection, id string, field storage.Field, value string) error {
	ctx, span := tracer.Start(ctx, "badger.UpdateNodeField")
	defer span.End()

	if err := storage.ValidateField(field); err != nil {
		return err
	}

	return s.update(ctx, func(txn *badger.Txn) error {
		previous, err := getNode(txn, collection, id)
		if err != nil {
			return err
		}

		updated := previous.Clone()
		switch field {
		case storage.FieldParent:
			updated.Parent = value
		case storage.FieldPath:
			updated.Path = value
		}
		return putNode(txn, collection, previous, updated)
	})
}

// DeleteNode see [storage.NodeWriter].DeleteNode.
func (s *Datastore) DeleteNode(ctx context.Context, collection, id string) error {
	ctx, span := tracer.Start(ctx, "badger.DeleteNode")
	defer span.End()

	return s.update(ctx, func(txn *badger.Txn) error {
		node, err := getNode(txn, collection, id)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil
			}
			return err
		}
		return removeNode(txn, collection, node)
	})
}

// DeleteNodes see [storage.NodeWriter].DeleteNodes.
// Matching nodes are read and removed in pages of at most storage.DefaultPageSize nodes.
func (s *Datastore) DeleteNodes(ctx context.Context, collection string, filter storage.NodeFilter) (int64, error) {
	ctx, span := tracer.Start(ctx, "badger.DeleteNodes")
	defer span.End()

	if err := filter.Validate(); err != nil {
		return 0, err
	}

	r := rangeFor(collection, filter, false)
	var (
		deleted int64
		after   []byte
	)
	for {
		var (
			batch []*storage.Node
			done  bool
		)
		err := s.db.View(func(txn *badger.Txn) error {
			var err error
			batch, after, done, err = scanPage(ctx, txn, collection, filter, r, after, storage.DefaultPageSize)
			return err
		})
		if err != nil {
			return deleted, err
		}

		var n int64
		err = s.update(ctx, func(txn *badger.Txn) error {
			n = 0
			for _, m := range batch {
				// re-read so a node rewritten since the scan drops its current index entries
				current, err := getNode(txn, collection, m.ID)
				if err != nil {
					if errors.Is(err, storage.ErrNotFound) {
						continue
					}
					return err
				}
				if err := removeNode(txn, collection, current); err != nil {
					return err
				}
				n++
			}
			return nil
		})
		if err != nil {
			return deleted, err
		}
		deleted += n

		if done {
			break
		}
	}

	return deleted, nil
}
