// Package searcher answers similarity queries against the built vector
// index, resolving raw index positions back into corpus chunks.
package searcher

import (
	"context"
	"errors"
	"fmt"

	"github.com/docraghq/docrag/internal/embedder"
	"github.com/docraghq/docrag/internal/storage"
)

const (
	// DefaultTopK is the number of chunks retrieved when the caller does
	// not ask for a specific count.
	DefaultTopK = 6

	// MinTopK and MaxTopK bound the retrieval count; out-of-range requests
	// are clamped, not rejected.
	MinTopK = 1
	MaxTopK = 20

	// PreviewLen is the preview length in runes.
	PreviewLen = 300
)

// ErrIndexNotBuilt means retrieval was attempted before a successful build.
var ErrIndexNotBuilt = errors.New("vector index not built")

// Result is one retrieved chunk, ranked by similarity to the query.
type Result struct {
	ChunkID int64
	File    string
	Text    string
	Preview string
	Score   float64
}

// Searcher retrieves the chunks most similar to a natural-language query.
type Searcher struct {
	embedder    embedder.Embedder
	index       *storage.VectorIndex
	corpus      *storage.Corpus
	defaultTopK int
}

// New wires a searcher over the given embedder, index and corpus. The index
// and corpus must be kept in lockstep by the caller. defaultTopK is the
// retrieval count used when a query does not name one; defaultTopK <= 0
// selects DefaultTopK.
func New(emb embedder.Embedder, index *storage.VectorIndex, corpus *storage.Corpus, defaultTopK int) *Searcher {
	if defaultTopK <= 0 {
		defaultTopK = DefaultTopK
	}
	return &Searcher{embedder: emb, index: index, corpus: corpus, defaultTopK: defaultTopK}
}

// Retrieve embeds the query and returns up to topK chunks in descending
// similarity order. topK values outside [MinTopK, MaxTopK] are clamped;
// topK <= 0 means the searcher's configured default.
func (s *Searcher) Retrieve(ctx context.Context, query string, topK int) ([]Result, error) {
	if s.index.Len() == 0 {
		return nil, ErrIndexNotBuilt
	}
	topK = clampTopK(topK, s.defaultTopK)

	vectors, err := s.embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	matches, err := s.index.Search(vectors[0], topK)
	if err != nil {
		if errors.Is(err, storage.ErrEmptyIndex) {
			return nil, ErrIndexNotBuilt
		}
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	return s.resolve(matches)
}

// resolve maps index positions back to chunks. A position without a chunk
// means the index and corpus have drifted apart, which the service-level
// locking is supposed to make impossible.
func (s *Searcher) resolve(matches []storage.Match) ([]Result, error) {
	results := make([]Result, 0, len(matches))
	for _, m := range matches {
		chunk, err := s.corpus.ByPosition(m.Position)
		if err != nil {
			return nil, fmt.Errorf("index position %d has no chunk: %w", m.Position, err)
		}
		results = append(results, Result{
			ChunkID: chunk.ID,
			File:    chunk.File,
			Text:    chunk.Text,
			Preview: Preview(chunk.Text),
			Score:   m.Score,
		})
	}
	return results, nil
}

// Preview returns the first PreviewLen runes of text.
func Preview(text string) string {
	runes := []rune(text)
	if len(runes) <= PreviewLen {
		return text
	}
	return string(runes[:PreviewLen])
}

func clampTopK(k, fallback int) int {
	switch {
	case k <= 0:
		return fallback
	case k < MinTopK:
		return MinTopK
	case k > MaxTopK:
		return MaxTopK
	default:
		return k
	}
}
