package storage

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStaticNodeIterator(t *testing.T) {
	expected := []*Node{
		{ID: "A", Path: "A"},
		{ID: "B", Parent: "A", Path: "A#B"},
	}

	iter := NewStaticNodeIterator(expected)

	var actual []*Node
	for {
		n, err := iter.Next(context.Background())
		if err != nil {
			if errors.Is(err, ErrIteratorDone) {
				break
			}
			require.Fail(t, "no error was expected")
		}

		actual = append(actual, n)
	}

	require.Equal(t, expected, actual)
}

func TestStaticIteratorStop(t *testing.T) {
	iter := NewStaticIterator([]int{1, 2, 3})

	v, err := iter.Next(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, v)

	iter.Stop()
	_, err = iter.Next(context.Background())
	require.ErrorIs(t, err, ErrIteratorDone)
}

func TestStaticIteratorCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewStaticIterator([]int{1}).Next(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

func TestFilteredNodeIterator(t *testing.T) {
	nodes := []*Node{
		{ID: "A", Path: "A"},
		{ID: "B", Parent: "A", Path: "A#B"},
		{ID: "C", Path: "C"},
	}

	iter := NewFilteredNodeIterator(NewStaticNodeIterator(nodes), func(n *Node) bool {
		return n.IsRoot()
	})

	got, err := Collect(context.Background(), iter)
	require.NoError(t, err)
	require.Equal(t, []*Node{nodes[0], nodes[2]}, got)
}

type failingIterator struct {
	items []*Node
	err   error
}

func (f *failingIterator) Next(context.Context) (*Node, error) {
	if len(f.items) == 0 {
		return nil, f.err
	}
	n := f.items[0]
	f.items = f.items[1:]
	return n, nil
}

func (f *failingIterator) Stop() {}

func TestCollect(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		got, err := Collect(context.Background(), NewStaticNodeIterator(nil))
		require.NoError(t, err)
		require.Empty(t, got)
	})

	t.Run("error_discards_partial_results", func(t *testing.T) {
		boom := errors.New("boom")
		got, err := Collect[*Node](context.Background(), &failingIterator{items: []*Node{{ID: "A"}}, err: boom})
		require.ErrorIs(t, err, boom)
		require.Nil(t, got)
	})
}
