package runtime_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aretw0/pipetree/internal/runtime"
	"github.com/aretw0/pipetree/pkg/adapters/memory"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/persistence"
	"github.com/aretw0/pipetree/pkg/provider"
	"github.com/aretw0/pipetree/pkg/registry"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int { return &v }

// chainConfig is a static pipeline a -> b -> c where each step doubles x into y.
func chainConfig(t *testing.T) *domain.PipelineConfiguration {
	t.Helper()
	cfg := &domain.PipelineConfiguration{
		Provider: "Test:Chain",
		Version:  intPtr(1),
		ItemConfig: domain.ItemConfig{
			ID: "chain",
			Steps: []domain.ItemConfig{
				{ID: "a", NqName: "Test:Double", Inputs: map[string]any{"x": 1.0}, Validators: []string{"Test:Positive"}},
				{ID: "b", NqName: "Test:Double", Inputs: map[string]any{"x": 0.0}},
				{ID: "c", NqName: "Test:Double", Inputs: map[string]any{"x": 0.0}},
			},
			Links: []domain.LinkConfig{
				{From: "a/y", To: "b/x"},
				{From: "b/y", To: "c/x"},
			},
		},
	}
	require.NoError(t, provider.Normalize(cfg))
	return cfg
}

// workflowConfig has a static step followed by a sequential pipeline of dynamic stages.
func workflowConfig(t *testing.T) *domain.PipelineConfiguration {
	t.Helper()
	cfg := &domain.PipelineConfiguration{
		Provider: "Test:Workflow",
		Version:  intPtr(3),
		ItemConfig: domain.ItemConfig{
			ID: "workflow",
			Steps: []domain.ItemConfig{
				{ID: "prepare", NqName: "Test:Double", Inputs: map[string]any{"x": 1.0}},
				{
					ID:   "stages",
					Type: domain.ItemTypeSequential,
					Items: []domain.ItemConfig{
						{ID: "filter", NqName: "Test:Double", Inputs: map[string]any{"x": 2.0}},
						{ID: "sort", NqName: "Test:Double", Inputs: map[string]any{"x": 3.0}},
						{ID: "group", Steps: []domain.ItemConfig{
							{ID: "inner", NqName: "Test:Double", Inputs: map[string]any{"x": 4.0}},
						}},
					},
				},
			},
		},
	}
	require.NoError(t, provider.Normalize(cfg))
	return cfg
}

func testRegistry() *registry.Registry {
	r := registry.NewRegistry()
	r.Register("Test:Double", func(ctx context.Context, in map[string]any) (map[string]any, error) {
		x, _ := in["x"].(float64)
		return map[string]any{"y": x * 2}, nil
	})
	r.Register("Test:Fail", func(ctx context.Context, in map[string]any) (map[string]any, error) {
		return nil, errors.New("kaboom")
	})
	r.Register("Test:Slow", func(ctx context.Context, in map[string]any) (map[string]any, error) {
		select {
		case <-time.After(100 * time.Millisecond):
			return map[string]any{"done": true}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})
	r.RegisterValidator("Test:Positive", func(ctx context.Context, in map[string]any) map[string]domain.ValidationResult {
		x, _ := in["x"].(float64)
		if x <= 0 {
			return map[string]domain.ValidationResult{"x": domain.NewValidationResult([]string{"x must be positive"}, nil, nil)}
		}
		return map[string]domain.ValidationResult{"x": domain.NewValidationResult(nil, nil, nil)}
	})
	return r
}

type fixture struct {
	tree    *runtime.Tree
	store   *memory.Store
	adapter *persistence.Adapter
	reg     *registry.Registry
}

func newFixture(t *testing.T, cfg *domain.PipelineConfiguration, opts ...runtime.Option) *fixture {
	t.Helper()
	f := &fixture{store: memory.NewStore(), reg: testRegistry()}
	f.adapter = persistence.New(f.store)
	base := []runtime.Option{
		runtime.WithExecutor(f.reg),
		runtime.WithValidator(f.reg),
		runtime.WithPersistence(f.adapter),
	}
	tree, err := runtime.NewFromConfig(cfg, append(base, opts...)...)
	require.NoError(t, err)
	_, err = tree.InitAll(context.Background())
	require.NoError(t, err)
	t.Cleanup(tree.Close)
	f.tree = tree
	return f
}

// uuidOf returns the uuid of the first node with itemID in pre-order.
func uuidOf(t *testing.T, tree *runtime.Tree, itemID string) string {
	t.Helper()
	var found string
	tree.ToState().Walk(func(n *domain.PipelineState, _ int) bool {
		if found == "" && n.ItemID == itemID {
			found = n.UUID
		}
		return found == ""
	})
	require.NotEmpty(t, found, "no node with item id %q", itemID)
	return found
}

// childItems returns the item ids of the children of the node with uuid.
func childItems(tree *runtime.Tree, uuid string) []string {
	var items []string
	tree.ToState().Walk(func(n *domain.PipelineState, _ int) bool {
		if n.UUID == uuid {
			for _, c := range n.Children {
				items = append(items, c.ItemID)
			}
			return false
		}
		return true
	})
	return items
}

func info(tree *runtime.Tree, uuid string) domain.ConsistencyInfo {
	return tree.Consistency()[uuid]
}
