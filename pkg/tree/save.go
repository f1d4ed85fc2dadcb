package tree

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/openfga/mpath/internal/concurrency"
	"github.com/openfga/mpath/pkg/logger"
	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/telemetry"
)

// Save creates node, or updates it if a node with the same ID is already stored.
//
// A node without an ID is assigned a new one. The path of node is computed when it is
// created or when its parent changes, in which case the paths of all its descendants
// are rewritten before node itself is written. The Path set by the caller is ignored.
//
// Save returns a *ReferenceError if the parent does not exist, and a *StoreError if the
// datastore fails.
func (t *Tree) Save(ctx context.Context, node *storage.Node) error {
	ctx, span := startTrace(ctx, "Save")
	defer span.End()

	if node == nil {
		return fmt.Errorf("%w: nil node", ErrInvalidNode)
	}

	var previous *storage.Node
	if node.ID == "" {
		node.ID = ulid.Make().String()
	} else {
		stored, err := t.ds.ReadNode(ctx, t.collection, node.ID)
		switch {
		case err == nil:
			previous = stored
		case errors.Is(err, storage.ErrNotFound):
		default:
			return storeError("ReadNode", err)
		}
	}
	span.SetAttributes(attribute.String("node_id", node.ID), attribute.Bool("new", previous == nil))

	if previous == nil || previous.Parent != node.Parent || previous.Path == "" {
		if err := t.maintainPath(ctx, node, previous); err != nil {
			return err
		}
	} else {
		node.Path = previous.Path
	}

	return storeError("WriteNode", t.ds.WriteNode(ctx, t.collection, node))
}

// maintainPath computes the path of node and, when node was already stored under
// another path, rewrites the paths of its descendants.
func (t *Tree) maintainPath(ctx context.Context, node, previous *storage.Node) error {
	if node.Parent == "" {
		node.Path = node.ID
	} else {
		parent, err := t.ds.ReadNode(ctx, t.collection, node.Parent)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return &ReferenceError{Collection: t.collection, NodeID: node.ID, ParentID: node.Parent}
			}
			return storeError("ReadNode", err)
		}
		node.Path = t.codec.Compose(parent.Path, node.ID)
	}

	if previous == nil || previous.Path == "" || previous.Path == node.Path {
		return nil
	}

	_, err := t.RebaseDescendants(ctx, node, previous.Path)
	return err
}

// RebaseDescendants rewrites the path of every node stored under previousPath so that it
// sits under the current path of node instead, keeping each descendant's sub-path. It
// returns the number of nodes rewritten.
//
// Save calls it when a node changes parent. It is exported so that a cascade
// interrupted by a failure can be completed. Descendants that already have the
// right path are not rewritten, so calling it on a consistent tree updates nothing.
func (t *Tree) RebaseDescendants(ctx context.Context, node *storage.Node, previousPath string) (int64, error) {
	ctx, span := startTrace(ctx, "RebaseDescendants", attribute.String("node_id", node.ID))
	defer span.End()

	if previousPath == "" || node.Path == "" {
		return 0, fmt.Errorf("%w: rebasing requires both the previous and the current path", ErrInvalidNode)
	}

	start := time.Now()
	iter, err := t.ds.ReadNodes(ctx, t.collection, storage.NodeFilter{PathPrefix: t.codec.DescendantPrefix(previousPath)}, storage.ReadOptions{})
	if err != nil {
		return 0, storeError("ReadNodes", err)
	}

	var updated atomic.Int64
	_, err = concurrency.Stream(ctx, iter, t.numWorkers, func(ctx context.Context, descendant *storage.Node) error {
		newPath, ok := t.codec.Rebase(descendant.Path, previousPath, node.Path)
		if !ok || newPath == descendant.Path {
			return nil
		}
		if err := t.ds.UpdateNodeField(ctx, t.collection, descendant.ID, storage.FieldPath, newPath); err != nil {
			return storeError("UpdateNodeField", err)
		}
		updated.Add(1)
		return nil
	})

	t.observeCascade(ctx, opRebase, node.ID, updated.Load(), start, err)
	span.SetAttributes(attribute.Int64("updated", updated.Load()))

	return updated.Load(), storeError("ReadNodes", err)
}

func (t *Tree) observeCascade(ctx context.Context, op, nodeID string, updated int64, start time.Time, err error) {
	cascadeUpdatesCounter.WithLabelValues(op).Add(float64(updated))
	cascadeDurationHistogram.WithLabelValues(op).Observe(float64(time.Since(start).Milliseconds()))

	fields := []zap.Field{
		logger.NodeID(nodeID),
		zap.String("operation", op),
		zap.Int64("updated", updated),
	}
	if err != nil {
		telemetry.TraceError(trace.SpanFromContext(ctx), err)
		t.logger.ErrorWithContext(ctx, "cascading rewrite failed", append(fields, zap.Error(err))...)
		return
	}
	t.logger.DebugWithContext(ctx, "cascading rewrite done", fields...)
}
