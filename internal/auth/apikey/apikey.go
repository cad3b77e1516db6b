// Package apikey issues and validates API keys for the search service. Raw
// keys are random, only their SHA-256 digest is stored, and validations are
// cached briefly so a hot key does not hit the database on every request.
package apikey

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

var (
	ErrInvalidKey = errors.New("invalid api key")
	ErrExpiredKey = errors.New("api key expired")
)

// KeyInfo holds metadata about a validated API key.
type KeyInfo struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	RateLimit int        `json:"rate_limit"`
	IsActive  bool       `json:"is_active"`
	CreatedAt time.Time  `json:"created_at"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

// Store persists key metadata by digest.
type Store interface {
	Lookup(ctx context.Context, hash string) (*KeyInfo, error)
	Insert(ctx context.Context, hash, name string, rateLimit int, expiresAt *time.Time) (*KeyInfo, error)
	Deactivate(ctx context.Context, hash string) (bool, error)
	ListActive(ctx context.Context) ([]KeyInfo, error)
}

// Validator checks presented keys against a Store.
type Validator struct {
	store  Store
	cache  *expirable.LRU[string, *KeyInfo]
	logger *slog.Logger
}

// NewValidator caches up to cacheSize validated keys for ttl. A ttl of
// zero disables caching.
func NewValidator(store Store, cacheSize int, ttl time.Duration) *Validator {
	v := &Validator{
		store:  store,
		logger: slog.Default().With("component", "apikey-validator"),
	}
	if ttl > 0 && cacheSize > 0 {
		v.cache = expirable.NewLRU[string, *KeyInfo](cacheSize, nil, ttl)
	}
	return v
}

// Validate returns the key's metadata, or ErrInvalidKey / ErrExpiredKey.
func (v *Validator) Validate(ctx context.Context, rawKey string) (*KeyInfo, error) {
	hash := HashKey(rawKey)
	if v.cache != nil {
		if info, ok := v.cache.Get(hash); ok {
			return checkExpiry(info)
		}
	}
	info, err := v.store.Lookup(ctx, hash)
	if err != nil {
		return nil, err
	}
	if info == nil || !info.IsActive {
		return nil, ErrInvalidKey
	}
	if v.cache != nil {
		v.cache.Add(hash, info)
	}
	return checkExpiry(info)
}

func checkExpiry(info *KeyInfo) (*KeyInfo, error) {
	if info.ExpiresAt != nil && info.ExpiresAt.Before(time.Now()) {
		return nil, ErrExpiredKey
	}
	return info, nil
}

// CreateKey generates a new API key, stores its hash, and returns the raw key.
// The raw key is returned only once and cannot be retrieved again.
func (v *Validator) CreateKey(ctx context.Context, name string, rateLimit int, expiresAt *time.Time) (string, *KeyInfo, error) {
	rawKey, err := generateRawKey()
	if err != nil {
		return "", nil, err
	}
	info, err := v.store.Insert(ctx, HashKey(rawKey), name, rateLimit, expiresAt)
	if err != nil {
		return "", nil, fmt.Errorf("creating api key: %w", err)
	}
	v.logger.Info("api key created", "name", name, "rate_limit", rateLimit)
	return rawKey, info, nil
}

// RevokeKey deactivates an API key so it can no longer be used.
func (v *Validator) RevokeKey(ctx context.Context, rawKey string) error {
	hash := HashKey(rawKey)
	ok, err := v.store.Deactivate(ctx, hash)
	if err != nil {
		return fmt.Errorf("revoking api key: %w", err)
	}
	if !ok {
		return ErrInvalidKey
	}
	if v.cache != nil {
		v.cache.Remove(hash)
	}
	v.logger.Info("api key revoked")
	return nil
}

// ListKeys returns all active API keys (without the raw key / hash).
func (v *Validator) ListKeys(ctx context.Context) ([]KeyInfo, error) {
	return v.store.ListActive(ctx)
}

// HashKey returns the SHA-256 hex digest of a raw API key.
func HashKey(raw string) string {
	sum := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

func generateRawKey() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating api key: %w", err)
	}
	return hex.EncodeToString(b), nil
}
