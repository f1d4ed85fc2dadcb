package storage

import (
	"context"
	"errors"
	"sync"
)

var ErrIteratorDone = errors.New("iterator done")

type Iterator[T any] interface {
	// Next will return the next available item. Once the items are exhausted it returns ErrIteratorDone.
	// If the context is cancelled or times out, it returns the context error.
	Next(ctx context.Context) (T, error)
	// Stop terminates iteration over the underlying iterator.
	Stop()
}

// NodeIterator is an iterator for Nodes. It is closed by explicitly calling Stop() or by calling Next() until it
// returns an ErrIteratorDone error.
type NodeIterator = Iterator[*Node]

type staticIterator[T any] struct {
	items []T
	mu    sync.Mutex
}

// NewStaticIterator returns an iterator over the provided slice.
func NewStaticIterator[T any](items []T) Iterator[T] {
	return &staticIterator[T]{
		items: items,
	}
}

// NewStaticNodeIterator returns a NodeIterator that iterates over the provided slice.
func NewStaticNodeIterator(nodes []*Node) NodeIterator {
	return NewStaticIterator(nodes)
}

func (s *staticIterator[T]) Next(ctx context.Context) (T, error) {
	var val T
	if ctx.Err() != nil {
		return val, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) == 0 {
		return val, ErrIteratorDone
	}

	next, rest := s.items[0], s.items[1:]
	s.items = rest

	return next, nil
}

func (s *staticIterator[T]) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items = nil
}

// NodeFilterFunc is used to filter out nodes from a NodeIterator. Implementations should return true if the node
// should be returned and false if it should be filtered out.
type NodeFilterFunc func(node *Node) bool

type filteredNodeIterator struct {
	iter   NodeIterator
	filter NodeFilterFunc
}

var _ NodeIterator = (*filteredNodeIterator)(nil)

// NewFilteredNodeIterator returns an iterator that filters out all nodes that don't
// meet the conditions of the provided NodeFilterFunc.
func NewFilteredNodeIterator(iter NodeIterator, filter NodeFilterFunc) NodeIterator {
	return &filteredNodeIterator{
		iter:   iter,
		filter: filter,
	}
}

// Next returns the next node in the underlying iterator that meets
// the filter function this iterator was constructed with.
func (f *filteredNodeIterator) Next(ctx context.Context) (*Node, error) {
	for {
		node, err := f.iter.Next(ctx)
		if err != nil {
			return nil, err
		}

		if f.filter(node) {
			return node, nil
		}
	}
}

func (f *filteredNodeIterator) Stop() {
	f.iter.Stop()
}

// Collect drains iter into a slice and stops it.
func Collect[T any](ctx context.Context, iter Iterator[T]) ([]T, error) {
	defer iter.Stop()

	var res []T
	for {
		item, err := iter.Next(ctx)
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				return res, nil
			}
			return nil, err
		}
		res = append(res, item)
	}
}
