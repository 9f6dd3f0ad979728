package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/pipetree/pkg/adapters/file"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Ensure Store implements RecordStore
var _ ports.RecordStore = (*file.Store)(nil)

func TestFileStore_Contract(t *testing.T) {
	store := file.New(t.TempDir())
	ports.RunRecordStoreContract(t, store)
}

func TestFileStore_WritesOneFilePerRecord(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	require.NoError(t, store.Save(ctx, &domain.Record{ID: "w1", Kind: domain.RecordWrapper, ItemID: "p"}))
	require.NoError(t, store.Save(ctx, &domain.Record{ID: "s1", ParentID: "w1", Kind: domain.RecordStep, ItemID: "a"}))

	_, err := os.Stat(filepath.Join(dir, "w1.json"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(dir, "s1.json"))
	assert.NoError(t, err)

	// No temp files are left behind after atomic writes.
	matches, err := filepath.Glob(filepath.Join(dir, "tmp-*"))
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestFileStore_ListOnMissingDirectory(t *testing.T) {
	store := file.New(filepath.Join(t.TempDir(), "does-not-exist"))

	ids, err := store.List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestFileStore_RejectsEmptyID(t *testing.T) {
	store := file.New(t.TempDir())
	err := store.Save(context.Background(), &domain.Record{})
	assert.Error(t, err)
}
