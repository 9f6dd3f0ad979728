package runtime_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/provider"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func jobsConfig(t *testing.T) *domain.PipelineConfiguration {
	t.Helper()
	cfg := &domain.PipelineConfiguration{
		Provider: "Test:Jobs",
		ItemConfig: domain.ItemConfig{
			ID: "root",
			Steps: []domain.ItemConfig{
				{ID: "jobs", Type: domain.ItemTypeSequential, Items: []domain.ItemConfig{
					{ID: "slow", NqName: "Test:Slow"},
				}},
			},
		},
	}
	require.NoError(t, provider.Normalize(cfg))
	return cfg
}

func TestTree_Close(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	ctx := context.Background()
	stages := uuidOf(t, f.tree, "stages")
	prepare := uuidOf(t, f.tree, "prepare")

	var signals atomic.Int32
	f.tree.OnChange(func() { signals.Add(1) })

	f.tree.Close()
	f.tree.Close()
	assert.True(t, f.tree.Closed())

	_, err := f.tree.AddSubTree(ctx, stages, "filter", 0)
	assert.ErrorIs(t, err, domain.ErrTreeClosed)
	assert.ErrorIs(t, f.tree.RunStep(ctx, prepare, nil), domain.ErrTreeClosed)
	assert.ErrorIs(t, f.tree.UpdateInputs(ctx, prepare, nil), domain.ErrTreeClosed)
	_, err = f.tree.Save(ctx, "")
	assert.ErrorIs(t, err, domain.ErrTreeClosed)
	assert.Zero(t, signals.Load())
}

func TestTree_CloseDiscardsInFlightRun(t *testing.T) {
	f := newFixture(t, jobsConfig(t))
	ctx := context.Background()
	job, err := f.tree.AddSubTree(ctx, uuidOf(t, f.tree, "jobs"), "slow", 0)
	require.NoError(t, err)

	var signals atomic.Int32
	f.tree.OnChange(func() { signals.Add(1) })

	done := make(chan error, 1)
	go func() { done <- f.tree.RunStep(ctx, job, nil) }()
	require.Eventually(t, f.tree.Locked, time.Second, 5*time.Millisecond)

	f.tree.Close()
	require.NoError(t, <-done)
	assert.Zero(t, signals.Load(), "no listener fires after close")
	assert.Zero(t, f.tree.CallStates()[job].RunCount)
}

func TestTree_RemoveDiscardsInFlightRun(t *testing.T) {
	f := newFixture(t, jobsConfig(t))
	ctx := context.Background()
	jobs := uuidOf(t, f.tree, "jobs")
	job, err := f.tree.AddSubTree(ctx, jobs, "slow", 0)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.tree.RunStep(ctx, job, nil) }()
	require.Eventually(t, f.tree.Locked, time.Second, 5*time.Millisecond)

	require.NoError(t, f.tree.RemoveSubTree(ctx, job))
	require.NoError(t, <-done)
	assert.Empty(t, childItems(f.tree, jobs))
	assert.NotContains(t, f.tree.CallStates(), job)
}

func TestTree_Config(t *testing.T) {
	f := newFixture(t, workflowConfig(t))
	cfg := f.tree.Config()
	cfg.Steps = nil
	assert.Len(t, f.tree.Config().Steps, 2, "configs are handed out as copies")
	assert.Equal(t, "Test:Workflow", f.tree.ToState().Provider)
	assert.Equal(t, 3, *f.tree.ToState().Version)
}
