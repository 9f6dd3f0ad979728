package runtime_test

import (
	"context"
	"testing"

	"github.com/aretw0/pipetree/internal/runtime"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSave_Idempotent(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()
	_, err := f.tree.AddSubTree(ctx, uuidOf(t, f.tree, "stages"), "group", 0)
	require.NoError(t, err)

	id, err := f.tree.Save(ctx, "")
	require.NoError(t, err)
	require.NotEmpty(t, id)
	assert.Equal(t, id, f.tree.ToState().DBID)
	records := f.store.Len()
	assert.Equal(t, f.tree.Len(), records)

	again, err := f.tree.Save(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, id, again)
	assert.Equal(t, records, f.store.Len())
}

func TestSave_PrunesRemovedItems(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()
	group, err := f.tree.AddSubTree(ctx, uuidOf(t, f.tree, "stages"), "group", 0)
	require.NoError(t, err)
	_, err = f.tree.Save(ctx, "")
	require.NoError(t, err)

	require.NoError(t, f.tree.RemoveSubTree(ctx, group))
	_, err = f.tree.Save(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, f.tree.Len(), f.store.Len())
}

func TestSave_RoundTrip(t *testing.T) {
	cfg := chainConfig(t)
	f := newFixture(t, cfg)
	ctx := context.Background()
	require.NoError(t, f.tree.RunStep(ctx, uuidOf(t, f.tree, "a"), nil))
	require.NoError(t, f.tree.RunStep(ctx, uuidOf(t, f.tree, "b"), nil))

	id, err := f.tree.Save(ctx, "")
	require.NoError(t, err)

	state, err := f.adapter.LoadInstanceState(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Test:Chain", state.Provider)

	restored, err := runtime.NewFromInstanceState(state, cfg,
		runtime.WithExecutor(f.reg), runtime.WithValidator(f.reg), runtime.WithPersistence(f.adapter))
	require.NoError(t, err)
	_, err = restored.InitFuncCalls(ctx)
	require.NoError(t, err)
	defer restored.Close()

	assert.Equal(t, f.tree.ToState(), restored.ToState())
	assert.Equal(t, f.tree.Consistency(), restored.Consistency())

	c := uuidOf(t, restored, "c")
	assert.True(t, info(restored, c).Enabled)
	require.NoError(t, restored.RunStep(ctx, c, nil))
	assert.Equal(t, map[string]any{"y": 8.0}, restored.ToState().Children[2].Outputs)
}

func TestSave_CompletedChainReloadsConsistent(t *testing.T) {
	cfg := chainConfig(t)
	f := newFixture(t, cfg)
	ctx := context.Background()
	for _, step := range []string{"a", "b", "c"} {
		require.NoError(t, f.tree.RunStep(ctx, uuidOf(t, f.tree, step), nil))
	}
	id, err := f.tree.Save(ctx, "")
	require.NoError(t, err)

	state, err := f.adapter.LoadInstanceState(ctx, id)
	require.NoError(t, err)
	restored, err := runtime.NewFromInstanceState(state, cfg,
		runtime.WithExecutor(f.reg), runtime.WithValidator(f.reg), runtime.WithPersistence(f.adapter))
	require.NoError(t, err)
	_, err = restored.InitFuncCalls(ctx)
	require.NoError(t, err)
	defer restored.Close()

	for _, step := range []string{"a", "b", "c"} {
		ci := info(restored, uuidOf(t, restored, step))
		assert.Equal(t, domain.StateConsistent, ci.State, step)
		assert.True(t, ci.Enabled, step)
	}
	assert.Equal(t, map[string]any{"y": 8.0}, restored.ToState().Children[2].Outputs)
}

func TestNewFromInstanceState_SchemaMismatch(t *testing.T) {
	f := newFixture(t, chainConfig(t))
	ctx := context.Background()
	id, err := f.tree.Save(ctx, "")
	require.NoError(t, err)
	state, err := f.adapter.LoadInstanceState(ctx, id)
	require.NoError(t, err)

	_, err = runtime.NewFromInstanceState(state, workflowConfig(t))
	assert.ErrorIs(t, err, domain.ErrSchemaMismatch)
}

func TestSave_WithoutPersistence(t *testing.T) {
	tree, err := runtime.NewFromConfig(chainConfig(t), runtime.WithExecutor(testRegistry()))
	require.NoError(t, err)
	_, err = tree.Save(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrConfiguration)
}

func TestLoadSubTree(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()
	stages := uuidOf(t, f.tree, "stages")
	filter, err := f.tree.AddSubTree(ctx, stages, "filter", 0)
	require.NoError(t, err)
	require.NoError(t, f.tree.RunStep(ctx, uuidOf(t, f.tree, "prepare"), nil))
	require.NoError(t, f.tree.RunStep(ctx, filter, nil))

	dbID, err := f.tree.Save(ctx, filter)
	require.NoError(t, err)

	t.Run("Copy", func(t *testing.T) {
		id, err := f.tree.LoadSubTree(ctx, stages, dbID, "filter", 99, false)
		require.NoError(t, err)
		assert.NotEqual(t, filter, id)

		state := f.tree.ToState().Children[1].Children
		require.Len(t, state, 2)
		loaded := state[1]
		assert.Equal(t, id, loaded.UUID)
		assert.Empty(t, loaded.DBID, "loaded items are copies")
		assert.Equal(t, map[string]any{"y": 4.0}, loaded.Outputs)
		assert.Equal(t, domain.KindDynamic, loaded.Kind)

		ci := info(f.tree, id)
		assert.Equal(t, domain.StateConsistent, ci.State)
		assert.True(t, ci.Enabled)

		require.NoError(t, f.tree.RemoveSubTree(ctx, id))
	})

	t.Run("Readonly", func(t *testing.T) {
		id, err := f.tree.LoadSubTree(ctx, stages, dbID, "filter", 0, true)
		require.NoError(t, err)
		assert.True(t, info(f.tree, id).Readonly)
		assert.ErrorIs(t, f.tree.UpdateInputs(ctx, id, map[string]any{"x": 5.0}), domain.ErrReadonly)

		assert.ErrorIs(t, f.tree.RunStep(ctx, id, nil), domain.ErrReadonly)
		require.NoError(t, f.tree.RemoveSubTree(ctx, id), "the parent decides whether readonly items can be removed")
	})

	t.Run("Mismatch", func(t *testing.T) {
		before := f.tree.ToState()
		_, err := f.tree.LoadSubTree(ctx, stages, dbID, "sort", 0, false)
		assert.ErrorIs(t, err, domain.ErrSchemaMismatch)

		_, err = f.tree.LoadSubTree(ctx, stages, "does-not-exist", "filter", 0, false)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Equal(t, before, f.tree.ToState())
	})
}
