// Package encryption implements HLS segment encryption: whole-segment
// AES-128-CBC, SAMPLE-AES block framing, media-sequence IV derivation, and
// a rotating key manager.
package encryption

import (
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/pbkdf2"
)

// KeySize is the AES-128 key length in bytes used throughout HLS.
const KeySize = 16

// Key is one encryption key with the metadata a key-delivery endpoint
// needs to serve it.
type Key struct {
	ID        string
	Key       []byte
	URI       string
	CreatedAt int64
	ExpiresAt int64 // 0 means no expiration
}

var (
	// ErrInvalidKey indicates a key of the wrong size or an unknown key ID.
	ErrInvalidKey = errors.New("invalid encryption key")
	// ErrNoCurrentKey indicates no key has been generated or added yet.
	ErrNoCurrentKey = errors.New("no current key set")
)

// KeyManager manages segment encryption keys with rotation support. When a
// rotation period is configured, RotateIfDue generates a fresh key every N
// segments.
type KeyManager struct {
	mu             sync.RWMutex
	keys           map[string]*Key
	currentKey     string
	rotationPeriod int // segments between rotations; 0 disables
	segmentsSeen   int
	onRotate       func(oldKeyID, newKeyID string)
}

// NewKeyManager creates a key manager. rotationPeriod is the number of
// segments between automatic rotations; 0 disables automatic rotation.
func NewKeyManager(rotationPeriod int) *KeyManager {
	return &KeyManager{
		keys:           make(map[string]*Key),
		rotationPeriod: rotationPeriod,
	}
}

// GenerateKey generates a new random AES-128 key under the given ID and
// makes it current if no key is set yet.
func (km *KeyManager) GenerateKey(id, uri string) (*Key, error) {
	raw := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, raw); err != nil {
		return nil, fmt.Errorf("failed to generate key: %w", err)
	}

	key := &Key{
		ID:        id,
		Key:       raw,
		URI:       uri,
		CreatedAt: time.Now().Unix(),
	}

	km.mu.Lock()
	km.keys[id] = key
	if km.currentKey == "" {
		km.currentKey = id
	}
	km.mu.Unlock()

	return key, nil
}

// AddKey adds an externally provisioned key.
func (km *KeyManager) AddKey(key *Key) error {
	if len(key.Key) != KeySize {
		return ErrInvalidKey
	}

	km.mu.Lock()
	defer km.mu.Unlock()

	km.keys[key.ID] = key
	if km.currentKey == "" {
		km.currentKey = key.ID
	}
	return nil
}

// GetKey retrieves a key by ID.
func (km *KeyManager) GetKey(id string) (*Key, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	key, exists := km.keys[id]
	if !exists {
		return nil, ErrInvalidKey
	}
	return key, nil
}

// CurrentKey returns the key new segments are encrypted with.
func (km *KeyManager) CurrentKey() (*Key, error) {
	km.mu.RLock()
	defer km.mu.RUnlock()

	if km.currentKey == "" {
		return nil, ErrNoCurrentKey
	}
	key, exists := km.keys[km.currentKey]
	if !exists {
		return nil, ErrNoCurrentKey
	}
	return key, nil
}

// RotateKey generates a new key under newKeyID and makes it current.
func (km *KeyManager) RotateKey(newKeyID, uri string) error {
	if _, err := km.GenerateKey(newKeyID, uri); err != nil {
		return err
	}

	km.mu.Lock()
	oldKeyID := km.currentKey
	km.currentKey = newKeyID
	cb := km.onRotate
	km.mu.Unlock()

	if cb != nil {
		cb(oldKeyID, newKeyID)
	}
	return nil
}

// RotateIfDue counts one more segment and rotates the current key when the
// configured rotation period has elapsed. Returns true if a rotation
// happened. newKeyID/uri name the replacement key.
func (km *KeyManager) RotateIfDue(newKeyID, uri string) (bool, error) {
	km.mu.Lock()
	km.segmentsSeen++
	due := km.rotationPeriod > 0 && km.segmentsSeen%km.rotationPeriod == 0
	km.mu.Unlock()

	if !due {
		return false, nil
	}
	if err := km.RotateKey(newKeyID, uri); err != nil {
		return false, err
	}
	return true, nil
}

// SetRotationCallback registers the callback invoked after each rotation.
func (km *KeyManager) SetRotationCallback(callback func(oldKeyID, newKeyID string)) {
	km.mu.Lock()
	defer km.mu.Unlock()
	km.onRotate = callback
}

// DeriveKeyFromPassphrase derives an AES-128 key from a passphrase using
// PBKDF2, for deployments that provision keys from configuration instead of
// random generation.
func DeriveKeyFromPassphrase(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, 100000, KeySize, sha256.New)
}

// HashPassphrase hashes a key-server passphrase using Argon2id with the
// OWASP-recommended parameters.
func HashPassphrase(passphrase, salt []byte) []byte {
	return argon2.IDKey(passphrase, salt, 2, 64*1024, 4, 32)
}

// GenerateRandomBytes generates cryptographically secure random bytes.
func GenerateRandomBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return nil, fmt.Errorf("failed to generate random bytes: %w", err)
	}
	return b, nil
}
