package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/aretw0/pipetree/pkg/domain"
	backend "github.com/redis/go-redis/v9"
)

// Store implements ports.RecordStore using Redis.
// Records are JSON strings; each parent keeps a sorted set of its children scored by position.
type Store struct {
	client *backend.Client
	prefix string
	ttl    time.Duration
}

type Option func(*Store)

// WithTTL sets the expiration for records.
func WithTTL(ttl time.Duration) Option {
	return func(s *Store) {
		s.ttl = ttl
	}
}

// WithPrefix sets the key prefix for records.
func WithPrefix(prefix string) Option {
	return func(s *Store) {
		s.prefix = prefix
	}
}

// New creates a new Redis store with options.
func New(address, password string, db int, opts ...Option) *Store {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a new Redis store from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Store {
	store := &Store{
		client: client,
		prefix: "pipetree:",
		ttl:    0, // No expiration by default
	}

	for _, opt := range opts {
		opt(store)
	}

	return store
}

func (s *Store) key(id string) string {
	return s.prefix + "record:" + id
}

func (s *Store) childrenKey(parentID string) string {
	return s.prefix + "children:" + parentID
}

func (s *Store) indexKey() string {
	return s.prefix + "index"
}

// Save persists the record and updates the parent and wrapper indexes.
func (s *Store) Save(ctx context.Context, rec *domain.Record) error {
	if rec.ID == "" {
		return fmt.Errorf("record id cannot be empty")
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	// A record may move to another parent; drop it from the previous index.
	prev, err := s.Load(ctx, rec.ID)
	if err != nil && !errors.Is(err, domain.ErrRecordNotFound) {
		return err
	}

	pipe := s.client.TxPipeline()

	// 1. Save JSON with TTL
	pipe.Set(ctx, s.key(rec.ID), data, s.ttl)

	// 2. Maintain parent -> children index
	if prev != nil && prev.ParentID != "" && prev.ParentID != rec.ParentID {
		pipe.ZRem(ctx, s.childrenKey(prev.ParentID), rec.ID)
	}
	if rec.ParentID != "" {
		pipe.ZAdd(ctx, s.childrenKey(rec.ParentID), backend.Z{
			Score:  float64(rec.Position),
			Member: rec.ID,
		})
	}

	// 3. Wrapper records are listed through the index (ZSET)
	if rec.Kind == domain.RecordWrapper {
		pipe.ZAdd(ctx, s.indexKey(), backend.Z{
			Score:  float64(time.Now().Unix()),
			Member: rec.ID,
		})
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save to redis: %w", err)
	}
	return nil
}

// Load retrieves a record from Redis.
func (s *Store) Load(ctx context.Context, id string) (*domain.Record, error) {
	val, err := s.client.Get(ctx, s.key(id)).Result()
	if err != nil {
		if err == backend.Nil {
			return nil, domain.ErrRecordNotFound
		}
		return nil, fmt.Errorf("failed to get from redis: %w", err)
	}

	var rec domain.Record
	if err := json.Unmarshal([]byte(val), &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}
	return &rec, nil
}

// Children returns the records linked to parentID, ordered by position.
// Index entries whose record expired are pruned lazily.
func (s *Store) Children(ctx context.Context, parentID string) ([]*domain.Record, error) {
	if parentID == "" {
		return nil, nil
	}
	ids, err := s.client.ZRange(ctx, s.childrenKey(parentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list children: %w", err)
	}

	children := make([]*domain.Record, 0, len(ids))
	for _, id := range ids {
		rec, err := s.Load(ctx, id)
		if errors.Is(err, domain.ErrRecordNotFound) {
			s.client.ZRem(ctx, s.childrenKey(parentID), id)
			continue
		}
		if err != nil {
			return nil, err
		}
		children = append(children, rec)
	}
	return children, nil
}

// Delete removes the record and its index entries.
func (s *Store) Delete(ctx context.Context, id string) error {
	rec, err := s.Load(ctx, id)
	if errors.Is(err, domain.ErrRecordNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.key(id))
	if rec.ParentID != "" {
		pipe.ZRem(ctx, s.childrenKey(rec.ParentID), id)
	}
	pipe.ZRem(ctx, s.indexKey(), id)

	_, err = pipe.Exec(ctx)
	return err
}

// List returns the ids of stored pipelines, pruning entries whose record expired.
func (s *Store) List(ctx context.Context) ([]string, error) {
	ids, err := s.client.ZRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list pipelines: %w", err)
	}

	live := make([]string, 0, len(ids))
	for _, id := range ids {
		n, err := s.client.Exists(ctx, s.key(id)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check pipeline %s: %w", id, err)
		}
		if n == 0 {
			s.client.ZRem(ctx, s.indexKey(), id)
			continue
		}
		live = append(live, id)
	}
	return live, nil
}

// Close closes the redis client.
func (s *Store) Close() error {
	return s.client.Close()
}
