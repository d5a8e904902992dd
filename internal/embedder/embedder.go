package embedder

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Common errors
var (
	ErrInvalidInput      = errors.New("invalid input")
	ErrProviderFailed    = errors.New("embedding provider failed")
	ErrNoProviderEnabled = errors.New("no embedding provider configured")
	ErrUnknownProvider   = errors.New("unknown embedding provider")
)

// Embedder converts batches of text passages into fixed-dimension vectors via
// a hosted provider.
//
// EmbedBatch returns one vector per input, same order, or fails as a whole:
// callers never see partial results. Inputs larger than the provider's batch
// limit are split into ordered sub-batches transparently. No retry happens at
// this layer; retry/backoff is the caller's policy.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimensionality this provider produces.
	Dimension() int

	// Provider and Model identify the backing service.
	Provider() string
	Model() string

	// Close releases any resources held by the embedder.
	Close() error
}

// Cache provides in-memory LRU caching of embeddings by content hash, so a
// full index rebuild does not re-buy vectors for text it has already paid
// for.
type Cache struct {
	cache *lru.Cache[string, []float32]
}

// NewCache creates an embedding cache holding up to maxLen vectors.
func NewCache(maxLen int) *Cache {
	if maxLen <= 0 {
		maxLen = 10000
	}
	cache, err := lru.New[string, []float32](maxLen)
	if err != nil {
		// Only reachable with a non-positive size, which we just excluded.
		cache, _ = lru.New[string, []float32](10000)
	}
	return &Cache{cache: cache}
}

// Get returns a copy of the cached vector for a content hash.
func (c *Cache) Get(hash string) ([]float32, bool) {
	v, ok := c.cache.Get(hash)
	if !ok {
		return nil, false
	}
	out := make([]float32, len(v))
	copy(out, v)
	return out, true
}

// Set stores a vector under a content hash with automatic LRU eviction.
func (c *Cache) Set(hash string, v []float32) {
	c.cache.Add(hash, v)
}

// Len returns the current number of cached vectors.
func (c *Cache) Len() int {
	return c.cache.Len()
}

// Purge empties the cache.
func (c *Cache) Purge() {
	c.cache.Purge()
}

// ComputeHash computes the SHA-256 content hash used as the cache key.
func ComputeHash(text string) string {
	h := sha256.Sum256([]byte(text))
	return hex.EncodeToString(h[:])
}

func validateBatch(texts []string) error {
	if len(texts) == 0 {
		return fmt.Errorf("%w: no texts provided", ErrInvalidInput)
	}
	for i, text := range texts {
		if text == "" {
			return fmt.Errorf("%w: text at index %d is empty", ErrInvalidInput, i)
		}
	}
	return nil
}
