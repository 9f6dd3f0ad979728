package runtime_test

import (
	"context"
	"testing"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConsistency_FreshTreeUnlocksFirstStepOnly(t *testing.T) {
	f := newFixture(t, chainConfig(t))
	a, b, c := uuidOf(t, f.tree, "a"), uuidOf(t, f.tree, "b"), uuidOf(t, f.tree, "c")

	assert.Equal(t, domain.ConsistencyInfo{State: domain.StatePending, Enabled: true}, info(f.tree, a))
	assert.Equal(t, domain.ConsistencyInfo{State: domain.StatePending, Enabled: false}, info(f.tree, b))
	assert.Equal(t, domain.ConsistencyInfo{State: domain.StatePending, Enabled: false}, info(f.tree, c))
	assert.Len(t, f.tree.Consistency(), 3, "containers have no consistency entry")
}

func TestConsistency_SequentialUnlocking(t *testing.T) {
	f := newFixture(t, chainConfig(t))
	ctx := context.Background()
	a, b, c := uuidOf(t, f.tree, "a"), uuidOf(t, f.tree, "b"), uuidOf(t, f.tree, "c")

	require.NoError(t, f.tree.RunStep(ctx, a, nil))
	assert.Equal(t, domain.StateConsistent, info(f.tree, a).State)
	assert.True(t, info(f.tree, b).Enabled, "the next step is unlocked")
	assert.False(t, info(f.tree, c).Enabled, "only one step is unlocked per run")

	require.NoError(t, f.tree.RunStep(ctx, b, nil))
	assert.True(t, info(f.tree, c).Enabled)

	require.NoError(t, f.tree.RunStep(ctx, c, nil))
	for _, id := range []string{a, b, c} {
		assert.Equal(t, domain.ConsistencyInfo{State: domain.StateConsistent, Enabled: true}, info(f.tree, id))
	}
	// Links carried a.y -> b.x -> c.x
	state := f.tree.ToState()
	assert.Equal(t, 8.0, state.Children[2].Outputs["y"])
}

func TestConsistency_InputChangeCascades(t *testing.T) {
	f := newFixture(t, chainConfig(t))
	ctx := context.Background()
	a, b, c := uuidOf(t, f.tree, "a"), uuidOf(t, f.tree, "b"), uuidOf(t, f.tree, "c")
	for _, id := range []string{a, b, c} {
		require.NoError(t, f.tree.RunStep(ctx, id, nil))
	}

	require.NoError(t, f.tree.UpdateInputs(ctx, a, map[string]any{"x": 5.0}))
	assert.Equal(t, domain.ConsistencyInfo{State: domain.StateInconsistent, Enabled: true}, info(f.tree, a))
	assert.Equal(t, domain.ConsistencyInfo{State: domain.StateInconsistent, Enabled: false}, info(f.tree, b))
	assert.Equal(t, domain.ConsistencyInfo{State: domain.StateInconsistent, Enabled: false}, info(f.tree, c))
	assert.True(t, f.tree.CallStates()[b].IsOutdated)

	// Re-running A enables only B.
	require.NoError(t, f.tree.RunStep(ctx, a, nil))
	assert.Equal(t, domain.StateConsistent, info(f.tree, a).State)
	assert.True(t, info(f.tree, b).Enabled)
	assert.Equal(t, domain.StateInconsistent, info(f.tree, b).State)
	assert.False(t, info(f.tree, c).Enabled)

	require.NoError(t, f.tree.RunStep(ctx, b, nil))
	assert.True(t, info(f.tree, c).Enabled)
	assert.Equal(t, domain.StateInconsistent, info(f.tree, c).State)
}

func TestConsistency_NestedInputChange(t *testing.T) {
	f := newFixture(t, chainConfig(t))
	ctx := context.Background()
	a, b := uuidOf(t, f.tree, "a"), uuidOf(t, f.tree, "b")

	require.NoError(t, f.tree.UpdateInputs(ctx, a, map[string]any{"opts": map[string]any{"depth": 1.0}}))
	require.NoError(t, f.tree.RunStep(ctx, a, nil))
	require.NoError(t, f.tree.RunStep(ctx, b, nil))

	// Same nested content: nothing changes.
	require.NoError(t, f.tree.UpdateInputs(ctx, a, map[string]any{"opts": map[string]any{"depth": 1.0}}))
	assert.Equal(t, domain.StateConsistent, info(f.tree, a).State)
	assert.Equal(t, domain.StateConsistent, info(f.tree, b).State)

	// A deep value changed.
	require.NoError(t, f.tree.UpdateInputs(ctx, a, map[string]any{"opts": map[string]any{"depth": 2.0}}))
	assert.Equal(t, domain.StateInconsistent, info(f.tree, a).State)
	assert.Equal(t, domain.StateInconsistent, info(f.tree, b).State)
}

func TestConsistency_SnapshotsAreDetached(t *testing.T) {
	f := newFixture(t, chainConfig(t))
	ctx := context.Background()
	a := uuidOf(t, f.tree, "a")
	require.NoError(t, f.tree.RunStep(ctx, a, nil))

	snap := f.tree.ToState()
	snap.Children[0].Inputs["x"] = 99.0

	assert.Equal(t, domain.StateConsistent, info(f.tree, a).State)
	assert.Equal(t, 1.0, f.tree.ToState().Children[0].Inputs["x"])
}

func TestConsistency_InputChangeBeforeAnyRunDoesNotCascade(t *testing.T) {
	f := newFixture(t, chainConfig(t))
	ctx := context.Background()
	a, b := uuidOf(t, f.tree, "a"), uuidOf(t, f.tree, "b")

	require.NoError(t, f.tree.UpdateInputs(ctx, a, map[string]any{"x": 3.0}))
	assert.Equal(t, domain.ConsistencyInfo{State: domain.StatePending, Enabled: true}, info(f.tree, a))
	assert.Equal(t, domain.ConsistencyInfo{State: domain.StatePending, Enabled: false}, info(f.tree, b))
}

func TestConsistency_StructuralEditsInvalidateFollowers(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()
	stages := uuidOf(t, f.tree, "stages")
	prepare := uuidOf(t, f.tree, "prepare")

	filter, err := f.tree.AddSubTree(ctx, stages, "filter", 0)
	require.NoError(t, err)
	require.NoError(t, f.tree.RunStep(ctx, prepare, nil))
	require.NoError(t, f.tree.RunStep(ctx, filter, nil))
	assert.Equal(t, domain.StateConsistent, info(f.tree, filter).State)

	// Inserting a stage before filter makes filter stale.
	sort, err := f.tree.AddSubTree(ctx, stages, "sort", 0)
	require.NoError(t, err)
	assert.Equal(t, domain.ConsistencyInfo{State: domain.StatePending, Enabled: true}, info(f.tree, sort))
	assert.Equal(t, domain.ConsistencyInfo{State: domain.StateInconsistent, Enabled: false}, info(f.tree, filter))
	assert.Equal(t, domain.StateConsistent, info(f.tree, prepare).State, "preceding steps are untouched")

	// Removing it again leaves filter stale but runnable.
	require.NoError(t, f.tree.RemoveSubTree(ctx, sort))
	assert.Equal(t, domain.ConsistencyInfo{State: domain.StateInconsistent, Enabled: true}, info(f.tree, filter))
}

func TestConsistency_MoveInvalidatesFromEarliestPosition(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()
	stages := uuidOf(t, f.tree, "stages")
	prepare := uuidOf(t, f.tree, "prepare")

	first, err := f.tree.AddSubTree(ctx, stages, "filter", 0)
	require.NoError(t, err)
	second, err := f.tree.AddSubTree(ctx, stages, "sort", 1)
	require.NoError(t, err)
	for _, id := range []string{prepare, first, second} {
		require.NoError(t, f.tree.RunStep(ctx, id, nil))
	}

	require.NoError(t, f.tree.MoveSubTree(ctx, second, 0))
	assert.Equal(t, domain.StateConsistent, info(f.tree, prepare).State)
	assert.Equal(t, domain.ConsistencyInfo{State: domain.StateInconsistent, Enabled: true}, info(f.tree, second))
	assert.Equal(t, domain.ConsistencyInfo{State: domain.StateInconsistent, Enabled: false}, info(f.tree, first))
}
