package tree

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"github.com/openfga/mpath/pkg/storage"
)

// ChildrenOptions shape a Children query.
type ChildrenOptions struct {
	// Filter further constrains the children returned. Parent, RootsOnly and
	// PathPrefix are ignored.
	Filter storage.NodeFilter

	// Recursive returns every descendant instead of the direct children only.
	Recursive bool
}

// TreeOptions shape a Forest query.
type TreeOptions struct {
	// Filter further constrains the nodes of the forest. A node filtered out drops
	// its whole subtree from the forest. Parent, RootsOnly and PathPrefix are ignored.
	Filter storage.NodeFilter

	// MinLevel is the level of the top-level nodes of the forest. See BuildOptions.
	MinLevel int

	// NonRecursive returns only the children of the root, or only the roots when
	// there is no root.
	NonRecursive bool

	// OmitEmptyChildren leaves the children of leaves nil instead of empty.
	OmitEmptyChildren bool
}

// Get returns the node with the given ID, or storage.ErrNotFound.
func (t *Tree) Get(ctx context.Context, id string) (*storage.Node, error) {
	ctx, span := startTrace(ctx, "Get", attribute.String("node_id", id))
	defer span.End()

	node, err := t.ds.ReadNode(ctx, t.collection, id)
	if err != nil {
		return nil, storeError("ReadNode", err)
	}
	return node, nil
}

// Children returns the children of node in path order.
func (t *Tree) Children(ctx context.Context, node *storage.Node, opts ChildrenOptions) ([]*storage.Node, error) {
	ctx, span := startTrace(ctx, "Children", attribute.Bool("recursive", opts.Recursive))
	defer span.End()

	node, err := t.resolve(ctx, node)
	if err != nil {
		return nil, err
	}

	filter := opts.Filter
	filter.Parent, filter.RootsOnly, filter.PathPrefix = "", false, ""
	if opts.Recursive {
		filter.PathPrefix = t.codec.DescendantPrefix(node.Path)
	} else {
		filter.Parent = node.ID
	}

	return t.find(ctx, filter)
}

// Parent returns the parent of node. It returns nil if node is a root or if its
// parent does not exist.
func (t *Tree) Parent(ctx context.Context, node *storage.Node) (*storage.Node, error) {
	ctx, span := startTrace(ctx, "Parent")
	defer span.End()

	if node == nil {
		return nil, fmt.Errorf("%w: nil node", ErrInvalidNode)
	}
	if node.IsRoot() {
		return nil, nil
	}

	parent, err := t.ds.ReadNode(ctx, t.collection, node.Parent)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil
		}
		return nil, storeError("ReadNode", err)
	}
	return parent, nil
}

// Ancestors returns the ancestors of node that match filter, root-most first.
// The ancestors are the nodes encoded in the path of node.
func (t *Tree) Ancestors(ctx context.Context, node *storage.Node, filter storage.NodeFilter) ([]*storage.Node, error) {
	ctx, span := startTrace(ctx, "Ancestors")
	defer span.End()

	node, err := t.resolve(ctx, node)
	if err != nil {
		return nil, err
	}

	ids := t.codec.AncestorIDs(node.Path)
	if len(ids) == 0 {
		return nil, nil
	}

	return t.find(ctx, filter.Merge(storage.NodeFilter{IDs: ids}))
}

// Forest reconstructs the tree below root, or the whole forest of the collection if
// root is nil.
func (t *Tree) Forest(ctx context.Context, root *storage.Node, opts TreeOptions) ([]*TreeNode, error) {
	ctx, span := startTrace(ctx, "Forest", attribute.Bool("recursive", !opts.NonRecursive))
	defer span.End()

	filter := opts.Filter
	filter.Parent, filter.RootsOnly, filter.PathPrefix = "", false, ""
	switch {
	case root != nil:
		var err error
		if root, err = t.resolve(ctx, root); err != nil {
			return nil, err
		}
		if opts.NonRecursive {
			filter.Parent = root.ID
		} else {
			filter.PathPrefix = t.codec.DescendantPrefix(root.Path)
		}
	case opts.NonRecursive:
		filter.RootsOnly = true
	}

	nodes, err := t.find(ctx, filter)
	if err != nil {
		return nil, err
	}

	forest := BuildForest(nodes, t.codec, BuildOptions{
		Root:              root,
		MinLevel:          opts.MinLevel,
		OmitEmptyChildren: opts.OmitEmptyChildren,
	})
	span.SetAttributes(attribute.Int("nodes", len(nodes)), attribute.Int("top_level", len(forest)))

	return forest, nil
}

// resolve returns node, read from the datastore if its path is unknown.
func (t *Tree) resolve(ctx context.Context, node *storage.Node) (*storage.Node, error) {
	if node == nil || node.ID == "" {
		return nil, fmt.Errorf("%w: a node needs an ID", ErrInvalidNode)
	}
	if node.Path != "" {
		return node, nil
	}
	return t.Get(ctx, node.ID)
}

// find returns the nodes matching filter in path order.
func (t *Tree) find(ctx context.Context, filter storage.NodeFilter) ([]*storage.Node, error) {
	iter, err := t.ds.ReadNodes(ctx, t.collection, filter, storage.ReadOptions{SortByPath: true})
	if err != nil {
		return nil, storeError("ReadNodes", err)
	}
	nodes, err := storage.Collect(ctx, iter)
	if err != nil {
		return nil, storeError("ReadNodes", err)
	}
	return nodes, nil
}
