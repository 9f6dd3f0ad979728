package ports

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RunRecordStoreContract runs a suite of tests to verify that a RecordStore implementation
// adheres to the defined interface contract.
func RunRecordStoreContract(t *testing.T, store RecordStore) {
	ctx := context.Background()
	prefix := "contract-" + time.Now().Format("20060102150405.000000")

	t.Run("Save and Load", func(t *testing.T) {
		rec := &domain.Record{
			ID:       prefix + "-wrapper",
			Kind:     domain.RecordWrapper,
			ItemID:   "pipeline",
			Provider: "Test:Pipeline",
			Inputs:   map[string]any{"foo": "bar"},
		}
		require.NoError(t, store.Save(ctx, rec), "Save should not return error")

		loaded, err := store.Load(ctx, rec.ID)
		require.NoError(t, err, "Load should not return error")
		assert.Equal(t, rec.ItemID, loaded.ItemID)
		assert.Equal(t, rec.Provider, loaded.Provider)
		assert.Equal(t, "bar", loaded.Inputs["foo"])
	})

	t.Run("Save Is An Upsert", func(t *testing.T) {
		rec := &domain.Record{ID: prefix + "-upsert", Kind: domain.RecordStep, ItemID: "a"}
		require.NoError(t, store.Save(ctx, rec))
		rec.ItemID = "b"
		require.NoError(t, store.Save(ctx, rec))

		loaded, err := store.Load(ctx, rec.ID)
		require.NoError(t, err)
		assert.Equal(t, "b", loaded.ItemID)
	})

	t.Run("Load Non-Existent", func(t *testing.T) {
		_, err := store.Load(ctx, "non-existent-"+prefix)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound)
	})

	t.Run("Children Are Ordered By Position", func(t *testing.T) {
		parent := prefix + "-parent"
		require.NoError(t, store.Save(ctx, &domain.Record{ID: parent, Kind: domain.RecordWrapper, ItemID: "p"}))
		// Saved out of order on purpose.
		for _, pos := range []int{2, 0, 1} {
			require.NoError(t, store.Save(ctx, &domain.Record{
				ID:       fmt.Sprintf("%s-child-%d", prefix, pos),
				ParentID: parent,
				Kind:     domain.RecordStep,
				Position: pos,
				ItemID:   fmt.Sprintf("step%d", pos),
			}))
		}

		children, err := store.Children(ctx, parent)
		require.NoError(t, err)
		require.Len(t, children, 3)
		for i, child := range children {
			assert.Equal(t, i, child.Position)
			assert.Equal(t, parent, child.ParentID)
		}
	})

	t.Run("Position Ties Are Ordered By Id", func(t *testing.T) {
		parent := prefix + "-ties"
		require.NoError(t, store.Save(ctx, &domain.Record{ID: parent, Kind: domain.RecordWrapper, ItemID: "p"}))
		for _, suffix := range []string{"c", "a", "b"} {
			require.NoError(t, store.Save(ctx, &domain.Record{
				ID:       parent + "-" + suffix,
				ParentID: parent,
				Kind:     domain.RecordStep,
				ItemID:   suffix,
			}))
		}

		for range 5 {
			children, err := store.Children(ctx, parent)
			require.NoError(t, err)
			var items []string
			for _, child := range children {
				items = append(items, child.ItemID)
			}
			assert.Equal(t, []string{"a", "b", "c"}, items)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		id := prefix + "-delete"
		require.NoError(t, store.Save(ctx, &domain.Record{ID: id, Kind: domain.RecordStep, ItemID: "x"}))
		require.NoError(t, store.Delete(ctx, id), "Delete should not return error")

		_, err := store.Load(ctx, id)
		assert.ErrorIs(t, err, domain.ErrRecordNotFound, "Load after Delete should return ErrRecordNotFound")
		assert.NoError(t, store.Delete(ctx, id), "Deleting twice should be harmless")
	})

	t.Run("List Returns Wrappers Only", func(t *testing.T) {
		wrapper := prefix + "-list-wrapper"
		step := prefix + "-list-step"
		require.NoError(t, store.Save(ctx, &domain.Record{ID: wrapper, Kind: domain.RecordWrapper, ItemID: "p"}))
		require.NoError(t, store.Save(ctx, &domain.Record{ID: step, ParentID: wrapper, Kind: domain.RecordStep, ItemID: "s"}))
		defer func() {
			_ = store.Delete(ctx, step)
			_ = store.Delete(ctx, wrapper)
		}()

		ids, err := store.List(ctx)
		require.NoError(t, err)
		assert.Contains(t, ids, wrapper)
		assert.NotContains(t, ids, step)
	})
}
