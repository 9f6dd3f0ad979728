package tests

import (
	"context"
	"errors"
	"testing"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/ports"
)

// ConfigProviderContractTest is a reusable test suite that verifies if an adapter complies with ports.ConfigProvider.
// name must resolve to a configuration with at least one static step.
func ConfigProviderContractTest(t *testing.T, provider ports.ConfigProvider, name string) {
	t.Helper()
	ctx := context.Background()

	// 1. Resolve latest
	t.Run("Resolve_Latest", func(t *testing.T) {
		cfg, err := provider.Resolve(ctx, name, nil)
		if err != nil {
			t.Fatalf("unexpected error resolving %s: %v", name, err)
		}
		if cfg.Provider != name {
			t.Errorf("provider mismatch. got %q, want %q", cfg.Provider, name)
		}
		if cfg.Version == nil {
			t.Error("resolved configuration must carry its version")
		}
	})

	// 2. Resolve explicit version
	t.Run("Resolve_ExplicitVersion", func(t *testing.T) {
		latest, err := provider.Resolve(ctx, name, nil)
		if err != nil {
			t.Fatalf("unexpected error resolving %s: %v", name, err)
		}
		pinned, err := provider.Resolve(ctx, name, latest.Version)
		if err != nil {
			t.Fatalf("unexpected error resolving %s@%d: %v", name, *latest.Version, err)
		}
		if pinned.ID != latest.ID || *pinned.Version != *latest.Version {
			t.Errorf("pinned resolution differs from latest: %s@%d vs %s@%d", pinned.ID, *pinned.Version, latest.ID, *latest.Version)
		}
	})

	// 3. Results are copies
	t.Run("Resolve_ReturnsCopies", func(t *testing.T) {
		first, err := provider.Resolve(ctx, name, nil)
		if err != nil {
			t.Fatalf("unexpected error resolving %s: %v", name, err)
		}
		if len(first.Steps) == 0 {
			t.Fatalf("contract requires %s to declare at least one step", name)
		}
		originalID := first.Steps[0].ID
		first.Steps[0].ID = "mutated-by-contract"

		second, err := provider.Resolve(ctx, name, nil)
		if err != nil {
			t.Fatalf("unexpected error resolving %s: %v", name, err)
		}
		if second.Steps[0].ID != originalID {
			t.Errorf("mutating a resolved configuration leaked into the provider: got %q", second.Steps[0].ID)
		}
	})

	// 4. Unknown provider
	t.Run("Resolve_NotFound", func(t *testing.T) {
		_, err := provider.Resolve(ctx, "non-existent-provider", nil)
		if !errors.Is(err, domain.ErrProviderNotFound) {
			t.Errorf("expected ErrProviderNotFound, got %v", err)
		}
	})
}
