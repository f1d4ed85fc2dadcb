package tree

import (
	"encoding/json"

	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/treepath"
)

// TreeNode is a node of a reconstructed forest.
type TreeNode struct {
	*storage.Node

	// Level is the depth of the node in its stored tree, 1 for a root.
	Level int

	// Children holds the direct children of the node in path order. It is nil
	// for a leaf when empty children lists are omitted.
	Children []*TreeNode
}

// MarshalJSON renders the node fields, its level and, unless it is nil, its list of children.
func (n *TreeNode) MarshalJSON() ([]byte, error) {
	var children *[]*TreeNode
	if n.Children != nil {
		children = &n.Children
	}
	return json.Marshal(struct {
		*storage.Node
		Level    int          `json:"level"`
		Children *[]*TreeNode `json:"children,omitempty"`
	}{
		Node:     n.Node,
		Level:    n.Level,
		Children: children,
	})
}

// Walk calls fn for n and all its descendants, depth first.
func (n *TreeNode) Walk(fn func(*TreeNode)) {
	fn(n)
	for _, c := range n.Children {
		c.Walk(fn)
	}
}

// BuildOptions shape a forest reconstruction.
type BuildOptions struct {
	// Root scopes the forest to the strict descendants of Root.
	Root *storage.Node

	// MinLevel is the level of the top-level nodes of the forest. Nodes of a lower
	// level are ignored. It defaults to 1 and is raised to the level of the
	// children of Root when Root is set.
	MinLevel int

	// OmitEmptyChildren leaves the children of leaves nil instead of empty.
	OmitEmptyChildren bool
}

// BuildForest reconstructs the forest made of nodes in a single pass.
//
// nodes must be sorted by path. Each node is attached to the last node appended at
// the level above it, provided that node is really its parent. A node whose parent
// is missing from nodes is dropped, along with its descendants.
func BuildForest(nodes []*storage.Node, codec treepath.Codec, opts BuildOptions) []*TreeNode {
	minLevel := max(opts.MinLevel, 1)
	if opts.Root != nil {
		minLevel = max(minLevel, codec.Depth(opts.Root.Path)+1)
	}

	forest := make([]*TreeNode, 0)
	for _, node := range nodes {
		if opts.Root != nil && !codec.IsDescendantPath(node.Path, opts.Root.Path) {
			continue
		}

		level := codec.Depth(node.Path)
		if level < minLevel {
			continue
		}

		tn := &TreeNode{Node: node, Level: level}
		if !opts.OmitEmptyChildren {
			tn.Children = make([]*TreeNode, 0)
		}

		if level == minLevel {
			forest = append(forest, tn)
			continue
		}

		parent := lastAt(forest, level-minLevel)
		if parent == nil || codec.Compose(parent.Path, node.ID) != node.Path {
			continue
		}
		parent.Children = append(parent.Children, tn)
	}

	return forest
}

// lastAt follows the chain of last appended children from the last top-level node of
// forest, depth times, and returns the node it reaches or nil if the chain is shorter.
func lastAt(forest []*TreeNode, depth int) *TreeNode {
	if len(forest) == 0 {
		return nil
	}
	n := forest[len(forest)-1]
	for i := 1; i < depth; i++ {
		if len(n.Children) == 0 {
			return nil
		}
		n = n.Children[len(n.Children)-1]
	}
	return n
}
