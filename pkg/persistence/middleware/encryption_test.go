package middleware_test

import (
	"context"
	"crypto/rand"
	"errors"
	"io"
	"testing"

	"github.com/aretw0/pipetree/pkg/adapters/memory"
	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/persistence/middleware"
	"github.com/aretw0/pipetree/pkg/ports"
)

func generateKey(t *testing.T) []byte {
	k := make([]byte, 32)
	if _, err := io.ReadFull(rand.Reader, k); err != nil {
		t.Fatal(err)
	}
	return k
}

func newEncrypted(t *testing.T, next ports.RecordStore, cfg middleware.EncryptionConfig) ports.RecordStore {
	t.Helper()
	mw, err := middleware.NewEncryptionMiddleware(cfg)
	if err != nil {
		t.Fatalf("NewEncryptionMiddleware failed: %v", err)
	}
	return mw(next)
}

func TestEncryptionMiddleware_Roundtrip(t *testing.T) {
	// Setup
	underlyingStore := memory.NewStore()
	secureStore := newEncrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: generateKey(t)})

	ctx := context.Background()
	rec := &domain.Record{
		ID:       "step-1",
		ParentID: "wrapper",
		Kind:     domain.RecordStep,
		Position: 2,
		Inputs:   map[string]any{"secret": "my-secret-sauce"},
		Outputs:  map[string]any{"answer": 42.0},
	}

	// 1. Save
	if err := secureStore.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// 2. Verify underlying store directly (should be encrypted)
	stored, err := underlyingStore.Load(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Underlying load failed: %v", err)
	}
	if val, ok := stored.Inputs["secret"]; ok {
		t.Fatalf("Expected secret to be hidden, found: %v", val)
	}
	if _, ok := stored.Inputs["__encrypted__"]; !ok {
		t.Fatal("Expected __encrypted__ field in inputs")
	}
	if stored.Outputs != nil {
		t.Fatalf("Expected outputs to be hidden, found: %v", stored.Outputs)
	}
	if stored.ParentID != "wrapper" || stored.Position != 2 {
		t.Fatal("Structural fields must stay readable")
	}

	// 3. Load via middleware (should be decrypted)
	loaded, err := secureStore.Load(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Load via middleware failed: %v", err)
	}
	if loaded.Inputs["secret"] != "my-secret-sauce" {
		t.Errorf("Expected 'my-secret-sauce', got %v", loaded.Inputs["secret"])
	}
	if loaded.Outputs["answer"] != 42.0 {
		t.Errorf("Expected 42, got %v", loaded.Outputs["answer"])
	}

	// 4. Children are decrypted too
	children, err := secureStore.Children(ctx, "wrapper")
	if err != nil {
		t.Fatalf("Children via middleware failed: %v", err)
	}
	if len(children) != 1 || children[0].Inputs["secret"] != "my-secret-sauce" {
		t.Errorf("Expected decrypted child, got %+v", children)
	}
}

func TestEncryptionMiddleware_Contract(t *testing.T) {
	ports.RunRecordStoreContract(t, newEncrypted(t, memory.NewStore(), middleware.EncryptionConfig{ActiveKey: generateKey(t)}))
}

func TestEncryptionMiddleware_KeyRotation(t *testing.T) {
	underlyingStore := memory.NewStore()
	oldKey := generateKey(t)
	newKey := generateKey(t)

	secureStoreOld := newEncrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: oldKey})

	ctx := context.Background()
	rec := &domain.Record{ID: "rotation", Kind: domain.RecordWrapper, Inputs: map[string]any{"data": "encrypted-with-old-key"}}

	// 1. Save with OLD key
	if err := secureStoreOld.Save(ctx, rec); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// 2. Load with NEW key (Active) + OLD key (Fallback)
	secureStoreNew := newEncrypted(t, underlyingStore, middleware.EncryptionConfig{
		ActiveKey:    newKey,
		FallbackKeys: [][]byte{oldKey},
	})

	loaded, err := secureStoreNew.Load(ctx, rec.ID)
	if err != nil {
		t.Fatalf("Load with rotated key failed: %v", err)
	}
	if loaded.Inputs["data"] != "encrypted-with-old-key" {
		t.Errorf("Decryption with fallback key failed")
	}

	// 3. Save again (now sealed with the NEW key)
	loaded.Inputs["data"] = "encrypted-with-new-key"
	if err := secureStoreNew.Save(ctx, loaded); err != nil {
		t.Fatalf("Save with new key failed: %v", err)
	}

	// 4. Verify we cannot load with just the OLD key anymore
	if _, err := secureStoreOld.Load(ctx, rec.ID); err == nil {
		t.Error("Expected failure when loading new-key encryption with old-key middleware")
	}
}

func TestEncryptionMiddleware_PlainRecordRejected(t *testing.T) {
	underlyingStore := memory.NewStore()
	ctx := context.Background()
	if err := underlyingStore.Save(ctx, &domain.Record{ID: "plain", Kind: domain.RecordStep}); err != nil {
		t.Fatal(err)
	}

	secureStore := newEncrypted(t, underlyingStore, middleware.EncryptionConfig{ActiveKey: generateKey(t)})
	if _, err := secureStore.Load(ctx, "plain"); err == nil {
		t.Error("Expected plain record to be rejected")
	}
}

func TestEncryptionMiddleware_InvalidKey(t *testing.T) {
	_, err := middleware.NewEncryptionMiddleware(middleware.EncryptionConfig{ActiveKey: []byte("short-key")})
	if !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("Expected configuration error for invalid key size, got %v", err)
	}
}
