package tree_test

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/mock/gomock"
	"golang.org/x/sync/errgroup"

	"github.com/openfga/mpath/internal/mocks"
	"github.com/openfga/mpath/pkg/storage"
	"github.com/openfga/mpath/pkg/storage/memory"
	"github.com/openfga/mpath/pkg/storage/test"
	"github.com/openfga/mpath/pkg/tree"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestTreeWithMemory(t *testing.T) {
	test.RunTreeTests(t, memory.New())
}

var errBoom = errors.New("boom")

func TestSaveStopsCascadeOnFirstFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	ds := mocks.NewMockDatastore(ctrl)

	tr, err := tree.New(ds, "docs", tree.WithNumWorkers(1))
	require.NoError(t, err)

	descendants := []*storage.Node{
		{ID: "C", Parent: "B", Path: "A#B#C"},
		{ID: "E", Parent: "B", Path: "A#B#E"},
		{ID: "F", Parent: "B", Path: "A#B#F"},
	}

	ds.EXPECT().ReadNode(gomock.Any(), "docs", "B").Return(&storage.Node{ID: "B", Parent: "A", Path: "A#B"}, nil)
	ds.EXPECT().ReadNode(gomock.Any(), "docs", "D").Return(&storage.Node{ID: "D", Path: "D"}, nil)
	ds.EXPECT().
		ReadNodes(gomock.Any(), "docs", storage.NodeFilter{PathPrefix: "A#B#"}, storage.ReadOptions{}).
		Return(storage.NewStaticNodeIterator(descendants), nil)
	ds.EXPECT().UpdateNodeField(gomock.Any(), "docs", "C", storage.FieldPath, "D#B#C").Return(errBoom)
	// with one worker the next node may already be pulled while C is being updated
	ds.EXPECT().UpdateNodeField(gomock.Any(), "docs", "E", storage.FieldPath, "D#B#E").Return(nil).MaxTimes(1)

	err = tr.Save(context.Background(), &storage.Node{ID: "B", Parent: "D"})
	require.ErrorIs(t, err, errBoom)

	var storeErr *tree.StoreError
	require.ErrorAs(t, err, &storeErr)
	require.Equal(t, "UpdateNodeField", storeErr.Op)
}

func TestSaveSurfacesIteratorFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	ds := mocks.NewMockDatastore(ctrl)

	tr, err := tree.New(ds, "docs")
	require.NoError(t, err)

	ds.EXPECT().ReadNode(gomock.Any(), "docs", "B").Return(&storage.Node{ID: "B", Parent: "A", Path: "A#B"}, nil)
	ds.EXPECT().ReadNode(gomock.Any(), "docs", "D").Return(&storage.Node{ID: "D", Path: "D"}, nil)
	ds.EXPECT().
		ReadNodes(gomock.Any(), "docs", gomock.Any(), gomock.Any()).
		Return(mocks.NewErrorNodeIterator([]*storage.Node{{ID: "C", Parent: "B", Path: "A#B#C"}, {ID: "E", Parent: "B", Path: "A#B#E"}}, 1), nil)
	ds.EXPECT().UpdateNodeField(gomock.Any(), "docs", "C", storage.FieldPath, "D#B#C").Return(nil)

	err = tr.Save(context.Background(), &storage.Node{ID: "B", Parent: "D"})
	require.ErrorIs(t, err, mocks.ErrSimulated)
}

func TestSaveStoreFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	ds := mocks.NewMockDatastore(ctrl)

	tr, err := tree.New(ds, "docs")
	require.NoError(t, err)

	ds.EXPECT().ReadNode(gomock.Any(), "docs", "B").Return(nil, errBoom)

	err = tr.Save(context.Background(), &storage.Node{ID: "B", Parent: "A"})
	require.ErrorIs(t, err, errBoom)
	require.NotErrorIs(t, err, tree.ErrParentNotFound)
}

func TestRemoveReparentStopsAfterFailedPromotion(t *testing.T) {
	ctrl := gomock.NewController(t)
	ds := mocks.NewMockDatastore(ctrl)

	tr, err := tree.New(ds, "docs", tree.WithOnDelete(tree.OnDeleteReparent))
	require.NoError(t, err)

	ds.EXPECT().ReadNode(gomock.Any(), "docs", "B").Return(&storage.Node{ID: "B", Parent: "A", Path: "A#B"}, nil)
	ds.EXPECT().
		ReadNodes(gomock.Any(), "docs", storage.NodeFilter{Parent: "B"}, storage.ReadOptions{}).
		Return(storage.NewStaticNodeIterator([]*storage.Node{{ID: "C", Parent: "B", Path: "A#B#C"}}), nil)
	ds.EXPECT().UpdateNodeField(gomock.Any(), "docs", "C", storage.FieldParent, "A").Return(errBoom)

	// neither the splice phase nor the deletion of B may run
	err = tr.Remove(context.Background(), &storage.Node{ID: "B"})
	require.ErrorIs(t, err, errBoom)
}

func TestRemoveReparentPhasesAreSequential(t *testing.T) {
	ctrl := gomock.NewController(t)
	ds := mocks.NewMockDatastore(ctrl)

	tr, err := tree.New(ds, "docs", tree.WithOnDelete(tree.OnDeleteReparent))
	require.NoError(t, err)

	gomock.InOrder(
		ds.EXPECT().ReadNode(gomock.Any(), "docs", "B").Return(&storage.Node{ID: "B", Parent: "A", Path: "A#B"}, nil),
		ds.EXPECT().
			ReadNodes(gomock.Any(), "docs", storage.NodeFilter{Parent: "B"}, storage.ReadOptions{}).
			Return(storage.NewStaticNodeIterator([]*storage.Node{{ID: "C", Parent: "B", Path: "A#B#C"}}), nil),
		ds.EXPECT().UpdateNodeField(gomock.Any(), "docs", "C", storage.FieldParent, "A").Return(nil),
		ds.EXPECT().
			ReadNodes(gomock.Any(), "docs", storage.NodeFilter{PathSegment: "B", Separator: "#"}, storage.ReadOptions{}).
			Return(storage.NewStaticNodeIterator([]*storage.Node{{ID: "C", Parent: "A", Path: "A#B#C"}}), nil),
		ds.EXPECT().UpdateNodeField(gomock.Any(), "docs", "C", storage.FieldPath, "A#C").Return(nil),
		ds.EXPECT().DeleteNode(gomock.Any(), "docs", "B").Return(nil),
	)

	require.NoError(t, tr.Remove(context.Background(), &storage.Node{ID: "B"}))
}

func TestRemoveDeleteIsASingleBulkDelete(t *testing.T) {
	ctrl := gomock.NewController(t)
	ds := mocks.NewMockDatastore(ctrl)

	tr, err := tree.New(ds, "docs")
	require.NoError(t, err)

	gomock.InOrder(
		ds.EXPECT().ReadNode(gomock.Any(), "docs", "B").Return(&storage.Node{ID: "B", Parent: "A", Path: "A#B"}, nil),
		ds.EXPECT().DeleteNodes(gomock.Any(), "docs", storage.NodeFilter{PathPrefix: "A#B#"}).Return(int64(12), nil),
		ds.EXPECT().DeleteNode(gomock.Any(), "docs", "B").Return(nil),
	)

	require.NoError(t, tr.Remove(context.Background(), &storage.Node{ID: "B"}))
}

func TestCascadeHonorsCallerTimeout(t *testing.T) {
	ctx := context.Background()
	ds := mocks.NewMockSlowDataStorage(memory.New(), time.Second)

	tr, err := tree.New(ds, "docs", tree.WithNumWorkers(2))
	require.NoError(t, err)

	require.NoError(t, tr.Save(ctx, &storage.Node{ID: "A"}))
	require.NoError(t, tr.Save(ctx, &storage.Node{ID: "B", Parent: "A"}))
	for i := 0; i < 10; i++ {
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: fmt.Sprintf("c%d", i), Parent: "B"}))
	}
	require.NoError(t, tr.Save(ctx, &storage.Node{ID: "D"}))

	timeoutCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()

	err = tr.Save(timeoutCtx, &storage.Node{ID: "B", Parent: "D"})
	require.ErrorIs(t, err, context.DeadlineExceeded)

	// the node itself is written last, so it still sits under its former parent
	b, err := tr.Get(ctx, "B")
	require.NoError(t, err)
	require.Equal(t, "A#B", b.Path)
}

func TestConcurrentIndependentMutations(t *testing.T) {
	ctx := context.Background()
	tr, err := tree.New(memory.New(), "docs", tree.WithNumWorkers(3))
	require.NoError(t, err)

	const numSubtrees = 8
	for i := 0; i < numSubtrees; i++ {
		root := fmt.Sprintf("r%d", i)
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: root}))
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: root + "a", Parent: root}))
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: root + "b", Parent: root + "a"}))
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: root + "c", Parent: root + "b"}))
		require.NoError(t, tr.Save(ctx, &storage.Node{ID: fmt.Sprintf("t%d", i)}))
	}

	var g errgroup.Group
	for i := 0; i < numSubtrees; i++ {
		g.Go(func() error {
			return tr.Save(ctx, &storage.Node{ID: fmt.Sprintf("r%da", i), Parent: fmt.Sprintf("t%d", i)})
		})
	}
	require.NoError(t, g.Wait())

	for i := 0; i < numSubtrees; i++ {
		c, err := tr.Get(ctx, fmt.Sprintf("r%dc", i))
		require.NoError(t, err)
		require.Equal(t, fmt.Sprintf("t%d#r%da#r%db#r%dc", i, i, i, i), c.Path)
	}
}

func TestNilAndEmptyNodes(t *testing.T) {
	ctx := context.Background()
	tr, err := tree.New(memory.New(), "docs")
	require.NoError(t, err)

	require.ErrorIs(t, tr.Save(ctx, nil), tree.ErrInvalidNode)
	require.ErrorIs(t, tr.Remove(ctx, nil), tree.ErrInvalidNode)
	require.ErrorIs(t, tr.Remove(ctx, &storage.Node{}), tree.ErrInvalidNode)

	_, err = tr.Children(ctx, nil, tree.ChildrenOptions{})
	require.ErrorIs(t, err, tree.ErrInvalidNode)

	_, err = tr.Parent(ctx, nil)
	require.ErrorIs(t, err, tree.ErrInvalidNode)

	_, err = tr.RebaseDescendants(ctx, &storage.Node{ID: "A"}, "")
	require.ErrorIs(t, err, tree.ErrInvalidNode)
}
