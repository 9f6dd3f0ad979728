package runtime_test

import (
	"context"
	"testing"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAddSubTree(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()
	stages := uuidOf(t, f.tree, "stages")

	filter, err := f.tree.AddSubTree(ctx, stages, "filter", 0)
	require.NoError(t, err)
	sort, err := f.tree.AddSubTree(ctx, stages, "sort", 99)
	require.NoError(t, err, "positions past the end append")
	_, err = f.tree.AddSubTree(ctx, stages, "group", 1)
	require.NoError(t, err, "containers can be dynamic items too")

	assert.Equal(t, []string{"filter", "group", "sort"}, childItems(f.tree, stages))
	assert.NotEqual(t, filter, sort)
	assert.Equal(t, domain.StatePending, info(f.tree, filter).State)

	state := f.tree.ToState()
	group := state.Children[1].Children[1]
	assert.Equal(t, domain.KindDynamic, group.Kind)
	require.Len(t, group.Children, 1)
	assert.Equal(t, domain.KindStatic, group.Children[0].Kind, "children of a dynamic container are fixed by its configuration")
}

func TestAddSubTree_Preconditions(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()
	stages := uuidOf(t, f.tree, "stages")
	prepare := uuidOf(t, f.tree, "prepare")
	before := f.tree.ToState()

	_, err := f.tree.AddSubTree(ctx, "missing", "filter", 0)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = f.tree.AddSubTree(ctx, stages, "unknown", 0)
	assert.ErrorIs(t, err, domain.ErrUnknownItem)

	_, err = f.tree.AddSubTree(ctx, prepare, "filter", 0)
	assert.ErrorIs(t, err, domain.ErrUnknownItem, "steps do not accept children")

	_, err = f.tree.AddSubTree(ctx, f.tree.RootUUID(), "filter", 0)
	assert.ErrorIs(t, err, domain.ErrUnknownItem, "static pipelines do not accept dynamic items")

	_, err = f.tree.AddSubTree(ctx, stages, "filter", -1)
	assert.ErrorIs(t, err, domain.ErrInvalidPosition)

	for _, e := range []error{domain.ErrNotFound, domain.ErrUnknownItem, domain.ErrInvalidPosition} {
		assert.ErrorIs(t, e, domain.ErrPrecondition)
	}
	assert.Equal(t, before, f.tree.ToState(), "failed edits leave the tree unchanged")
}

func TestRemoveSubTree(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()
	stages := uuidOf(t, f.tree, "stages")

	group, err := f.tree.AddSubTree(ctx, stages, "group", 0)
	require.NoError(t, err)
	nodes := f.tree.Len()

	require.NoError(t, f.tree.RemoveSubTree(ctx, group))
	assert.Empty(t, childItems(f.tree, stages))
	assert.Equal(t, nodes-2, f.tree.Len(), "descendants are removed from the index")

	err = f.tree.RemoveSubTree(ctx, group)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestRemoveSubTree_StaticNodes(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()
	before := f.tree.ToState()

	assert.ErrorIs(t, f.tree.RemoveSubTree(ctx, uuidOf(t, f.tree, "prepare")), domain.ErrStaticNode)
	assert.ErrorIs(t, f.tree.RemoveSubTree(ctx, f.tree.RootUUID()), domain.ErrStaticNode)
	assert.Equal(t, before, f.tree.ToState())
}

func TestMoveSubTree_OrderPreservation(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()
	stages := uuidOf(t, f.tree, "stages")

	var ids []string
	for _, item := range []string{"filter", "sort", "group", "filter"} {
		id, err := f.tree.AddSubTree(ctx, stages, item, 99)
		require.NoError(t, err)
		ids = append(ids, id)
	}

	require.NoError(t, f.tree.MoveSubTree(ctx, ids[3], 0))
	assert.Equal(t, []string{"filter", "filter", "sort", "group"}, childItems(f.tree, stages))

	require.NoError(t, f.tree.MoveSubTree(ctx, ids[1], 3))
	state := f.tree.ToState()
	var order []string
	for _, c := range state.Children[1].Children {
		order = append(order, c.UUID)
	}
	assert.Equal(t, []string{ids[3], ids[0], ids[2], ids[1]}, order)

	// Moving to the same place is a no-op.
	require.NoError(t, f.tree.MoveSubTree(ctx, ids[2], 2))
	assert.Equal(t, state, f.tree.ToState())
}

func TestMoveSubTree_Preconditions(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()
	stages := uuidOf(t, f.tree, "stages")
	id, err := f.tree.AddSubTree(ctx, stages, "filter", 0)
	require.NoError(t, err)
	before := f.tree.ToState()

	assert.ErrorIs(t, f.tree.MoveSubTree(ctx, id, 1), domain.ErrInvalidPosition)
	assert.ErrorIs(t, f.tree.MoveSubTree(ctx, id, -1), domain.ErrInvalidPosition)
	assert.ErrorIs(t, f.tree.MoveSubTree(ctx, "missing", 0), domain.ErrNotFound)
	assert.ErrorIs(t, f.tree.MoveSubTree(ctx, uuidOf(t, f.tree, "prepare"), 0), domain.ErrStaticNode)
	assert.Equal(t, before, f.tree.ToState())
}

func TestUpdateInputs_Preconditions(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()

	assert.ErrorIs(t, f.tree.UpdateInputs(ctx, uuidOf(t, f.tree, "stages"), map[string]any{"x": 1}), domain.ErrNotRunnable)
	assert.ErrorIs(t, f.tree.UpdateInputs(ctx, "missing", nil), domain.ErrNotFound)
}

func TestTree_ChangeSignals(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()
	stages := uuidOf(t, f.tree, "stages")

	signals := 0
	stop := f.tree.OnChange(func() { signals++ })

	_, err := f.tree.AddSubTree(ctx, stages, "filter", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, signals)

	_, err = f.tree.AddSubTree(ctx, stages, "nope", 0)
	require.Error(t, err)
	assert.Equal(t, 1, signals, "failed operations do not signal")

	stop()
	_, err = f.tree.AddSubTree(ctx, stages, "sort", 0)
	require.NoError(t, err)
	assert.Equal(t, 1, signals)
}
