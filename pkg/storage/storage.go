// Package storage contains the document store interfaces the tree engine depends on, and their implementations.
//
//go:generate mockgen -source storage.go -destination ../../internal/mocks/mock_storage.go -package mocks Datastore
package storage

import (
	"context"
)

const (
	// DefaultPageSize is the number of records a paginated cursor fetches per round trip.
	DefaultPageSize = 100
)

// Node is a record of a tree collection.
type Node struct {
	// ID is the unique identifier of the node within its collection. It never changes once set.
	ID string `json:"id" bson:"_id"`

	// Parent is the ID of the parent node. An empty Parent denotes a root.
	Parent string `json:"parent,omitempty" bson:"parent,omitempty"`

	// Path is the materialized path of the node: its ancestor IDs, root-most first,
	// followed by its own ID. It is maintained by the tree engine and must not be
	// set by callers.
	Path string `json:"path" bson:"path"`

	// Name is a caller defined label. It can be used as a read filter.
	Name string `json:"name,omitempty" bson:"name,omitempty"`

	// Data is an opaque caller defined payload.
	Data []byte `json:"data,omitempty" bson:"data,omitempty"`
}

// SetParent points n at parent, keeping only its ID. A nil parent makes n a root.
func (n *Node) SetParent(parent *Node) {
	if parent == nil {
		n.Parent = ""
		return
	}
	n.Parent = parent.ID
}

// IsRoot reports whether n has no parent.
func (n *Node) IsRoot() bool {
	return n.Parent == ""
}

// Clone returns a deep copy of n.
func (n *Node) Clone() *Node {
	if n == nil {
		return nil
	}
	c := *n
	if n.Data != nil {
		c.Data = append([]byte(nil), n.Data...)
	}
	return &c
}

// Field names a node field that can be updated in place.
type Field string

const (
	FieldParent Field = "parent"
	FieldPath   Field = "path"
)

// NodeFilter constrains a read or a bulk delete. All the set fields must match.
// The zero value matches every node of a collection.
type NodeFilter struct {
	// IDs matches nodes whose ID is any of the given IDs.
	IDs []string

	// Parent matches nodes whose parent is exactly Parent.
	Parent string

	// RootsOnly matches nodes without a parent. It cannot be combined with Parent.
	RootsOnly bool

	// PathPrefix matches nodes whose path starts with PathPrefix.
	PathPrefix string

	// PathSegment matches nodes whose path contains PathSegment followed by
	// Separator, at a segment boundary. That is, nodes that have PathSegment as
	// an ancestor. Separator is required when PathSegment is set.
	PathSegment string
	Separator   string

	// Name matches nodes whose name is exactly Name.
	Name string
}

// Validate reports whether the filter can be executed.
func (f NodeFilter) Validate() error {
	if f.RootsOnly && f.Parent != "" {
		return InvalidFilterError("RootsOnly and Parent are mutually exclusive")
	}
	if f.PathSegment != "" && f.Separator == "" {
		return InvalidFilterError("PathSegment requires a Separator")
	}
	return nil
}

// Merge returns f with every field that is set in other copied over it.
func (f NodeFilter) Merge(other NodeFilter) NodeFilter {
	if other.IDs != nil {
		f.IDs = other.IDs
	}
	if other.Parent != "" {
		f.Parent = other.Parent
		f.RootsOnly = false
	}
	if other.RootsOnly {
		f.RootsOnly = true
		f.Parent = ""
	}
	if other.PathPrefix != "" {
		f.PathPrefix = other.PathPrefix
	}
	if other.PathSegment != "" {
		f.PathSegment = other.PathSegment
		f.Separator = other.Separator
	}
	if other.Name != "" {
		f.Name = other.Name
	}
	return f
}

// ReadOptions shape the results of ReadNodes.
type ReadOptions struct {
	// SortByPath returns the nodes in ascending path order. Without it, no order is guaranteed.
	SortByPath bool
}

// NodeReader reads nodes of a collection.
type NodeReader interface {
	// ReadNode returns the node with the given ID. If none is found, it must return ErrNotFound.
	ReadNode(ctx context.Context, collection, id string) (*Node, error)

	// ReadNodes returns an iterator over the nodes that match the filter.
	// The caller must be careful to close the iterator, either by consuming it entirely or by calling Stop.
	// Implementations must tolerate concurrent writes to the collection while the iterator is open.
	ReadNodes(ctx context.Context, collection string, filter NodeFilter, options ReadOptions) (NodeIterator, error)
}

// NodeWriter writes nodes of a collection.
type NodeWriter interface {
	// WriteNode inserts the node or replaces the stored node with the same ID.
	WriteNode(ctx context.Context, collection string, node *Node) error

	// UpdateNodeField sets a single field of the node with the given ID.
	// If the node does not exist, it must return ErrNotFound.
	UpdateNodeField(ctx context.Context, collection, id string, field Field, value string) error

	// DeleteNode deletes the node with the given ID. Deleting a missing node is not an error.
	DeleteNode(ctx context.Context, collection, id string) error

	// DeleteNodes deletes every node matching the filter and returns how many were deleted.
	DeleteNodes(ctx context.Context, collection string, filter NodeFilter) (int64, error)
}

// Datastore is the document store a tree collection lives in.
type Datastore interface {
	NodeReader
	NodeWriter

	// IsReady reports whether the datastore is ready to accept traffic.
	IsReady(ctx context.Context) (ReadinessStatus, error)

	// Close closes the datastore and cleans up any residual resources.
	Close()
}

// ReadinessStatus represents the readiness status of the datastore.
type ReadinessStatus struct {
	// Message is a human-friendly status message for the current datastore status.
	Message string

	IsReady bool
}
