package rag

import (
	"context"
	"time"

	"github.com/docraghq/docrag/internal/embedder"
)

// RetryConfig configures exponential backoff for provider calls. Retry is a
// pipeline policy: providers perform a single attempt and this layer decides
// how often to ask again.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Multiplier  float64
}

// DefaultRetryConfig returns sensible defaults for hosted API calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Multiplier:  2.0,
	}
}

// retryWithBackoff executes fn with exponential backoff. Context
// cancellation stops the attempts immediately.
func retryWithBackoff[T any](ctx context.Context, config RetryConfig, fn func() (T, error)) (T, error) {
	var lastErr error
	var zero T
	backoff := config.BaseDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}

		if attempt < config.MaxAttempts-1 {
			select {
			case <-ctx.Done():
				return zero, ctx.Err()
			case <-time.After(backoff):
				backoff = time.Duration(float64(backoff) * config.Multiplier)
				if backoff > config.MaxDelay {
					backoff = config.MaxDelay
				}
			}
		}
	}

	return zero, lastErr
}

// retryingEmbedder decorates an embedder with the service's retry policy, so
// both corpus builds and query embedding share one backoff behavior.
type retryingEmbedder struct {
	inner embedder.Embedder
	cfg   RetryConfig
}

func withRetry(inner embedder.Embedder, cfg RetryConfig) embedder.Embedder {
	return &retryingEmbedder{inner: inner, cfg: cfg}
}

func (r *retryingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return retryWithBackoff(ctx, r.cfg, func() ([][]float32, error) {
		return r.inner.EmbedBatch(ctx, texts)
	})
}

func (r *retryingEmbedder) Dimension() int   { return r.inner.Dimension() }
func (r *retryingEmbedder) Provider() string { return r.inner.Provider() }
func (r *retryingEmbedder) Model() string    { return r.inner.Model() }
func (r *retryingEmbedder) Close() error     { return r.inner.Close() }
