package tree

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/openfga/mpath/internal/concurrency"
	"github.com/openfga/mpath/pkg/storage"
)

// Remove deletes node and applies the delete policy of the tree to its descendants.
//
// With OnDeleteDelete every descendant of node is deleted. With OnDeleteReparent the
// children of node are attached to the parent of node, and node is removed from the
// paths of all its descendants. The descendants are handled first, node itself is
// deleted last, so a failed Remove can be retried.
func (t *Tree) Remove(ctx context.Context, node *storage.Node) error {
	ctx, span := startTrace(ctx, "Remove")
	defer span.End()

	if node == nil || node.ID == "" {
		return fmt.Errorf("%w: a node to remove needs an ID", ErrInvalidNode)
	}
	span.SetAttributes(attribute.String("node_id", node.ID), attribute.String("policy", string(t.onDelete)))

	stored, err := t.ds.ReadNode(ctx, t.collection, node.ID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return storeError("ReadNode", err)
	}

	if stored != nil && stored.Path != "" {
		switch t.onDelete {
		case OnDeleteReparent:
			err = t.reparentChildren(ctx, stored)
		default:
			_, err = t.deleteDescendants(ctx, stored)
		}
		if err != nil {
			return err
		}
	}

	return storeError("DeleteNode", t.ds.DeleteNode(ctx, t.collection, node.ID))
}

// deleteDescendants removes every strict descendant of node in a single bulk delete.
func (t *Tree) deleteDescendants(ctx context.Context, node *storage.Node) (int64, error) {
	start := time.Now()
	deleted, err := t.ds.DeleteNodes(ctx, t.collection, storage.NodeFilter{PathPrefix: t.codec.DescendantPrefix(node.Path)})
	err = storeError("DeleteNodes", err)
	t.observeCascade(ctx, opDeleteSubtree, node.ID, deleted, start, err)
	return deleted, err
}

// reparentChildren attaches the children of node to the parent of node, then removes
// the segment of node from the path of every node that still has it as an ancestor.
// The second phase only starts once the first has completed successfully.
func (t *Tree) reparentChildren(ctx context.Context, node *storage.Node) error {
	if _, err := t.promoteChildren(ctx, node); err != nil {
		return err
	}
	_, err := t.spliceDescendants(ctx, node)
	return err
}

func (t *Tree) promoteChildren(ctx context.Context, node *storage.Node) (int64, error) {
	ctx, span := startTrace(ctx, "promoteChildren", attribute.String("node_id", node.ID))
	defer span.End()

	start := time.Now()
	iter, err := t.ds.ReadNodes(ctx, t.collection, storage.NodeFilter{Parent: node.ID}, storage.ReadOptions{})
	if err != nil {
		return 0, storeError("ReadNodes", err)
	}

	var updated atomic.Int64
	_, err = concurrency.Stream(ctx, iter, t.numWorkers, func(ctx context.Context, child *storage.Node) error {
		if child.Parent == node.Parent {
			return nil
		}
		if err := t.ds.UpdateNodeField(ctx, t.collection, child.ID, storage.FieldParent, node.Parent); err != nil {
			return storeError("UpdateNodeField", err)
		}
		updated.Add(1)
		return nil
	})
	err = storeError("ReadNodes", err)

	t.observeCascade(ctx, opReparent, node.ID, updated.Load(), start, err)
	return updated.Load(), err
}

func (t *Tree) spliceDescendants(ctx context.Context, node *storage.Node) (int64, error) {
	ctx, span := startTrace(ctx, "spliceDescendants", attribute.String("node_id", node.ID))
	defer span.End()

	start := time.Now()
	filter := storage.NodeFilter{PathSegment: node.ID, Separator: t.codec.Separator}
	iter, err := t.ds.ReadNodes(ctx, t.collection, filter, storage.ReadOptions{})
	if err != nil {
		return 0, storeError("ReadNodes", err)
	}

	var updated atomic.Int64
	_, err = concurrency.Stream(ctx, iter, t.numWorkers, func(ctx context.Context, descendant *storage.Node) error {
		newPath, ok := t.codec.SpliceSegment(descendant.Path, node.ID)
		if !ok {
			return nil
		}
		if err := t.ds.UpdateNodeField(ctx, t.collection, descendant.ID, storage.FieldPath, newPath); err != nil {
			return storeError("UpdateNodeField", err)
		}
		updated.Add(1)
		return nil
	})
	err = storeError("ReadNodes", err)

	t.observeCascade(ctx, opSplice, node.ID, updated.Load(), start, err)
	return updated.Load(), err
}
