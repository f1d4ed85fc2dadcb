// Package treepath encodes and decodes materialized paths.
//
// A path is the list of ancestor identifiers of a node, root-most first, joined
// by a single separator and terminated by the node's own identifier:
//
//	A       root A
//	A#B     B, child of A
//	A#B#C   C, child of B
//
// Identifiers must not contain the separator. None of the functions in this
// package validate that.
package treepath

import (
	"strings"
)

// DefaultSeparator is the separator used when none is configured.
const DefaultSeparator = "#"

// Codec composes and decodes paths using a fixed separator.
// The zero value uses DefaultSeparator.
type Codec struct {
	Separator string
}

// New returns a Codec using sep, or DefaultSeparator if sep is empty.
func New(sep string) Codec {
	if sep == "" {
		sep = DefaultSeparator
	}
	return Codec{Separator: sep}
}

func (c Codec) sep() string {
	if c.Separator == "" {
		return DefaultSeparator
	}
	return c.Separator
}

// Compose returns the path of a node with identifier id under a parent whose
// path is parentPath. An empty parentPath denotes a root.
func (c Codec) Compose(parentPath, id string) string {
	if parentPath == "" {
		return id
	}
	return parentPath + c.sep() + id
}

// Segments splits a path into its identifiers. An empty path has no segments.
func (c Codec) Segments(path string) []string {
	if path == "" {
		return nil
	}
	return strings.Split(path, c.sep())
}

// AncestorIDs returns the identifiers of every ancestor encoded in path,
// root-most first. A root has no ancestors.
func (c Codec) AncestorIDs(path string) []string {
	segments := c.Segments(path)
	if len(segments) == 0 {
		return nil
	}
	return segments[:len(segments)-1]
}

// Depth returns the number of segments in path. It is 0 for an empty path and
// 1 for a root.
func (c Codec) Depth(path string) int {
	if path == "" {
		return 0
	}
	return strings.Count(path, c.sep()) + 1
}

// DescendantPrefix returns the prefix shared by the paths of every strict
// descendant of the node at ancestorPath.
func (c Codec) DescendantPrefix(ancestorPath string) string {
	return ancestorPath + c.sep()
}

// IsDescendantPath reports whether candidate is the path of a strict
// descendant of the node at ancestorPath.
func (c Codec) IsDescendantPath(candidate, ancestorPath string) bool {
	if ancestorPath == "" {
		return false
	}
	return strings.HasPrefix(candidate, c.DescendantPrefix(ancestorPath))
}

// Rebase moves path from under previousAncestorPath to under newAncestorPath,
// keeping the sub-path relative to the ancestor. ok is false when path is not
// a strict descendant of previousAncestorPath.
func (c Codec) Rebase(path, previousAncestorPath, newAncestorPath string) (rebased string, ok bool) {
	if !c.IsDescendantPath(path, previousAncestorPath) {
		return path, false
	}
	return newAncestorPath + path[len(previousAncestorPath):], true
}

// ContainsSegment reports whether id occurs in path as a non-terminal segment,
// that is as an ancestor of the node the path belongs to.
func (c Codec) ContainsSegment(path, id string) bool {
	return c.segmentIndex(path, id) >= 0
}

// SpliceSegment removes the first non-terminal occurrence of id from path.
// Matching is done on whole segments, so "B" never matches inside "AB" or "BC".
// ok is false when id is not an ancestor segment of path.
func (c Codec) SpliceSegment(path, id string) (spliced string, ok bool) {
	i := c.segmentIndex(path, id)
	if i < 0 {
		return path, false
	}
	return path[:i] + path[i+len(id)+len(c.sep()):], true
}

// segmentIndex returns the byte offset of the first occurrence of id followed
// by the separator at a segment boundary, or -1.
func (c Codec) segmentIndex(path, id string) int {
	if id == "" {
		return -1
	}
	sep := c.sep()
	needle := id + sep
	if strings.HasPrefix(path, needle) {
		return 0
	}
	if i := strings.Index(path, sep+needle); i >= 0 {
		return i + len(sep)
	}
	return -1
}
