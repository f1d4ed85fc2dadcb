package mocks

import (
	"context"
	"fmt"

	"github.com/openfga/mpath/pkg/storage"
)

// ErrSimulated is returned by the iterators of this package once they fail.
var ErrSimulated = fmt.Errorf("simulated errors")

// errorIterator is a mock iterator that returns the first failAfter items, then an error.
type errorIterator[T any] struct {
	items     []T
	failAfter int
	returned  int
}

func (s *errorIterator[T]) Next(ctx context.Context) (T, error) {
	var val T

	if ctx.Err() != nil {
		return val, ctx.Err()
	}

	if s.returned >= s.failAfter {
		return val, ErrSimulated
	}

	if len(s.items) == 0 {
		return val, storage.ErrIteratorDone
	}

	next, rest := s.items[0], s.items[1:]
	s.items = rest
	s.returned++

	return next, nil
}

func (s *errorIterator[T]) Stop() {}

// NewErrorNodeIterator mocks case where Next returns an error once failAfter nodes have been returned.
func NewErrorNodeIterator(nodes []*storage.Node, failAfter int) storage.NodeIterator {
	return &errorIterator[*storage.Node]{
		items:     nodes,
		failAfter: failAfter,
	}
}
