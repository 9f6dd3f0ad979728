package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aretw0/pipetree/pkg/domain"
)

// Store implements ports.RecordStore using the local filesystem.
// It stores each record as a JSON file in a configured directory.
type Store struct {
	BasePath string
}

// New creates a new Store with the given base path.
// If basePath is empty, it defaults to ".pipetree/records".
func New(basePath string) *Store {
	if basePath == "" {
		basePath = filepath.Join(".pipetree", "records")
	}
	return &Store{BasePath: basePath}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.BasePath, id+".json")
}

// Save persists the record to a JSON file atomically.
// It writes to a temporary file first, syncs via fsync, and then renames it to the destination.
func (s *Store) Save(ctx context.Context, rec *domain.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	// Ensure directory exists
	if err := os.MkdirAll(s.BasePath, 0755); err != nil {
		return fmt.Errorf("failed to ensure record directory: %w", err)
	}

	destPath := s.path(rec.ID)

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	// 1. Create Temp File
	// Same directory, so the rename below stays on one filesystem.
	tmpFile, err := os.CreateTemp(s.BasePath, "tmp-"+rec.ID+"-*.json")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	// Cleanup temp file in case of failure
	defer func() {
		_ = tmpFile.Close()
		_ = os.Remove(tmpPath)
	}()

	// 2. Write Data
	if _, err := tmpFile.Write(data); err != nil {
		return fmt.Errorf("failed to write to temp file: %w", err)
	}

	// 3. Fsync to ensure durability
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("failed to fsync temp file: %w", err)
	}

	// 4. Close File (cannot rename open file on Windows)
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	// 5. Atomic Rename
	// On Windows, os.Rename fails if dest exists. We must remove it first.
	if _, err := os.Stat(destPath); err == nil {
		if err := os.Remove(destPath); err != nil {
			return fmt.Errorf("failed to remove existing record file for overwrite: %w", err)
		}
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		return fmt.Errorf("failed to rename temp file to record: %w", err)
	}

	return nil
}

// Load retrieves a record from its JSON file.
func (s *Store) Load(ctx context.Context, id string) (*domain.Record, error) {
	if id == "" {
		return nil, fmt.Errorf("record id cannot be empty")
	}
	return s.read(s.path(id))
}

func (s *Store) read(path string) (*domain.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to read record file: %w", err)
	}

	var rec domain.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// all reads every record in the directory. Temp files are skipped.
func (s *Store) all() ([]*domain.Record, error) {
	entries, err := os.ReadDir(s.BasePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list records: %w", err)
	}

	var records []*domain.Record
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || filepath.Ext(name) != ".json" || strings.HasPrefix(name, "tmp-") {
			continue
		}
		rec, err := s.read(filepath.Join(s.BasePath, name))
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// Children returns the records linked to parentID, ordered by position.
func (s *Store) Children(ctx context.Context, parentID string) ([]*domain.Record, error) {
	if parentID == "" {
		return nil, nil
	}
	records, err := s.all()
	if err != nil {
		return nil, err
	}

	var children []*domain.Record
	for _, rec := range records {
		if rec.ParentID == parentID {
			children = append(children, rec)
		}
	}
	sort.Slice(children, func(i, j int) bool {
		a, b := children[i], children[j]
		if a.Position != b.Position {
			return a.Position < b.Position
		}
		if !a.UpdatedAt.Equal(b.UpdatedAt) {
			return a.UpdatedAt.Before(b.UpdatedAt)
		}
		return a.ID < b.ID
	})
	return children, nil
}

// Delete removes the record file.
func (s *Store) Delete(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("record id cannot be empty")
	}

	err := os.Remove(s.path(id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete record file: %w", err)
	}

	return nil
}

// List returns the ids of all wrapper records.
func (s *Store) List(ctx context.Context) ([]string, error) {
	records, err := s.all()
	if err != nil {
		return nil, err
	}

	ids := []string{}
	for _, rec := range records {
		if rec.Kind == domain.RecordWrapper {
			ids = append(ids, rec.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}
