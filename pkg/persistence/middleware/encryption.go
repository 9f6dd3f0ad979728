package middleware

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/aretw0/pipetree/pkg/domain"
	"github.com/aretw0/pipetree/pkg/ports"
)

const encryptedField = "__encrypted__"

// EncryptionConfig holds the keys for encryption and decryption.
type EncryptionConfig struct {
	// ActiveKey is the key used for encrypting new data.
	// Must be 32 bytes for AES-256.
	ActiveKey []byte

	// FallbackKeys are tried when decryption with the active key fails.
	FallbackKeys [][]byte
}

// payload is the part of a record hidden by the encryption middleware.
// Structural fields (ids, parent, position, kind) stay readable so stores can index them.
type payload struct {
	Inputs  map[string]any `json:"inputs,omitempty"`
	Outputs map[string]any `json:"outputs,omitempty"`
	Error   string         `json:"error,omitempty"`
}

type encryptionMiddleware struct {
	next   ports.RecordStore
	config EncryptionConfig
}

// NewEncryptionMiddleware creates a middleware that seals record payloads with AES-GCM.
func NewEncryptionMiddleware(config EncryptionConfig) (Middleware, error) {
	if len(config.ActiveKey) != 32 {
		return nil, fmt.Errorf("%w: active key must be 32 bytes (AES-256)", domain.ErrConfiguration)
	}
	return func(next ports.RecordStore) ports.RecordStore {
		return &encryptionMiddleware{
			next:   next,
			config: config,
		}
	}, nil
}

func (m *encryptionMiddleware) Save(ctx context.Context, rec *domain.Record) error {
	plainText, err := json.Marshal(payload{Inputs: rec.Inputs, Outputs: rec.Outputs, Error: rec.Error})
	if err != nil {
		return fmt.Errorf("failed to marshal record payload: %w", err)
	}

	ciphertext, err := encrypt(plainText, m.config.ActiveKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt record: %w", err)
	}

	envelope := rec.Clone()
	envelope.Inputs = map[string]any{
		encryptedField: base64.StdEncoding.EncodeToString(ciphertext),
	}
	envelope.Outputs = nil
	envelope.Error = ""

	return m.next.Save(ctx, envelope)
}

func (m *encryptionMiddleware) Load(ctx context.Context, id string) (*domain.Record, error) {
	envelope, err := m.next.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return m.open(envelope)
}

func (m *encryptionMiddleware) Children(ctx context.Context, parentID string) ([]*domain.Record, error) {
	envelopes, err := m.next.Children(ctx, parentID)
	if err != nil {
		return nil, err
	}
	out := make([]*domain.Record, 0, len(envelopes))
	for _, envelope := range envelopes {
		rec, err := m.open(envelope)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (m *encryptionMiddleware) Delete(ctx context.Context, id string) error {
	return m.next.Delete(ctx, id)
}

func (m *encryptionMiddleware) List(ctx context.Context) ([]string, error) {
	return m.next.List(ctx)
}

func (m *encryptionMiddleware) open(envelope *domain.Record) (*domain.Record, error) {
	encryptedStr, ok := envelope.Inputs[encryptedField].(string)
	if !ok {
		// Fail secure: a store configured for encryption only accepts envelopes.
		return nil, fmt.Errorf("record %s is missing encrypted data envelope", envelope.ID)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(encryptedStr)
	if err != nil {
		return nil, fmt.Errorf("failed to decode ciphertext base64: %w", err)
	}

	plainText, err := decryptWithRotation(ciphertext, m.config.ActiveKey, m.config.FallbackKeys)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt record %s: %w", envelope.ID, err)
	}

	var p payload
	if err := json.Unmarshal(plainText, &p); err != nil {
		return nil, fmt.Errorf("failed to unmarshal decrypted record: %w", err)
	}

	rec := envelope.Clone()
	rec.Inputs = p.Inputs
	rec.Outputs = p.Outputs
	rec.Error = p.Error
	return rec, nil
}

// Helpers

func encrypt(plaintext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

func decryptWithRotation(ciphertext []byte, activeKey []byte, fallbackKeys [][]byte) ([]byte, error) {
	for _, key := range append([][]byte{activeKey}, fallbackKeys...) {
		if plain, err := decrypt(ciphertext, key); err == nil {
			return plain, nil
		}
	}
	return nil, errors.New("decryption failed with all available keys")
}

func decrypt(ciphertext []byte, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.NonceSize() {
		return nil, errors.New("ciphertext too short")
	}

	nonce := ciphertext[:gcm.NonceSize()]
	return gcm.Open(nil, nonce, ciphertext[gcm.NonceSize():], nil)
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}
