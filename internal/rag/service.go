package rag

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/docraghq/docrag/internal/chunker"
	"github.com/docraghq/docrag/internal/composer"
	"github.com/docraghq/docrag/internal/embedder"
	"github.com/docraghq/docrag/internal/extract"
	"github.com/docraghq/docrag/internal/searcher"
	"github.com/docraghq/docrag/internal/storage"
)

// ErrNoQuestion means Ask was called with a blank question.
var ErrNoQuestion = errors.New("question is empty")

// AnswerComposer is the slice of the composer the service depends on.
type AnswerComposer interface {
	Compose(ctx context.Context, question string, results []searcher.Result) (composer.Answer, error)
}

// Config holds pipeline tuning knobs.
type Config struct {
	ChunkSize int // chunk window in characters
	Overlap   int // window overlap in characters
	TopK      int // retrieval count when a question names none
	BatchSize int // chunks per embedding call during build
	Workers   int // concurrent embedding calls during build
	Retry     RetryConfig
}

// DefaultConfig returns the default pipeline configuration.
func DefaultConfig() Config {
	return Config{
		ChunkSize: chunker.DefaultChunkSize,
		Overlap:   chunker.DefaultOverlap,
		TopK:      searcher.DefaultTopK,
		BatchSize: 64,
		Workers:   4,
		Retry:     DefaultRetryConfig(),
	}
}

// UploadFile is one uploaded document: its name and raw bytes.
type UploadFile struct {
	Name string
	Data []byte
}

// UploadStats reports what an upload contributed to the corpus.
type UploadStats struct {
	Files       []string
	ChunksAdded int
	TotalChunks int
}

// BuildStats reports the outcome of an index build. Empty is true when the
// corpus had nothing to index.
type BuildStats struct {
	Chunks int
	Empty  bool
}

// Stats is a point-in-time snapshot of corpus and index sizes.
type Stats struct {
	TotalChunks   int
	IndexedChunks int
}

// Service owns the document corpus and vector index and serializes all
// access to them: uploads, builds and resets take the write lock, questions
// take the read lock. Holding the lock across provider calls is deliberate,
// a build may never observe a half-applied upload and an answer may never
// observe a half-built index.
type Service struct {
	mu sync.RWMutex

	cfg      Config
	registry *extract.Registry
	embedder embedder.Embedder
	composer AnswerComposer
	corpus   *storage.Corpus
	index    *storage.VectorIndex
	searcher *searcher.Searcher
	logger   *slog.Logger
}

// NewService validates the configuration and wires the pipeline. The
// embedder is wrapped with the configured retry policy.
func NewService(cfg Config, registry *extract.Registry, emb embedder.Embedder, comp AnswerComposer, logger *slog.Logger) (*Service, error) {
	if _, err := chunker.Split("", cfg.ChunkSize, cfg.Overlap); err != nil {
		return nil, err
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = DefaultConfig().BatchSize
	}
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultConfig().Workers
	}
	if logger == nil {
		logger = slog.Default()
	}

	retrying := withRetry(emb, cfg.Retry)
	corpus := storage.NewCorpus()
	index := storage.NewVectorIndex()

	return &Service{
		cfg:      cfg,
		registry: registry,
		embedder: retrying,
		composer: comp,
		corpus:   corpus,
		index:    index,
		searcher: searcher.New(retrying, index, corpus, cfg.TopK),
		logger:   logger,
	}, nil
}

// Upload extracts and chunks the given files into the corpus. New chunks are
// not searchable until the next Build. Files that yield no text (unsupported
// format, extraction failure, empty document) contribute zero chunks but do
// not fail the upload.
func (s *Service) Upload(_ context.Context, files []UploadFile) (UploadStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := UploadStats{Files: make([]string, 0, len(files))}
	for _, f := range files {
		stats.Files = append(stats.Files, f.Name)

		text, err := s.registry.Extract(f.Name, f.Data)
		if err != nil {
			s.logger.Warn("extraction failed, skipping file", "file", f.Name, "error", err)
			continue
		}

		pieces, err := chunker.Split(text, s.cfg.ChunkSize, s.cfg.Overlap)
		if err != nil {
			return UploadStats{}, fmt.Errorf("failed to chunk %s: %w", f.Name, err)
		}
		for _, piece := range pieces {
			s.corpus.Append(f.Name, piece)
		}
		stats.ChunksAdded += len(pieces)
	}
	stats.TotalChunks = s.corpus.Len()

	s.logger.Info("upload complete",
		"files", len(stats.Files),
		"chunks_added", stats.ChunksAdded,
		"total_chunks", stats.TotalChunks)
	return stats, nil
}

// Build re-embeds the entire corpus in chunk-id order and rebuilds the index
// from scratch. A failed build leaves the index empty, so questions report
// not-ready rather than answering from a partial index. The embedding cache
// makes rebuilds over unchanged chunks cheap.
func (s *Service) Build(ctx context.Context) (BuildStats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.corpus.ResetPositions()
	s.index.Reset()

	chunks := s.corpus.All()
	if len(chunks) == 0 {
		s.logger.Info("build skipped, corpus is empty")
		return BuildStats{Empty: true}, nil
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}

	vectors, err := s.embedAll(ctx, texts)
	if err != nil {
		return BuildStats{}, fmt.Errorf("failed to embed corpus: %w", err)
	}

	positions, err := s.index.Add(vectors)
	if err != nil {
		return BuildStats{}, fmt.Errorf("failed to index corpus: %w", err)
	}
	for i, c := range chunks {
		if err := s.corpus.MarkIndexed(c.ID, positions[i]); err != nil {
			return BuildStats{}, err
		}
	}

	s.logger.Info("build complete", "chunks", s.index.Len(), "dimension", s.embedder.Dimension())
	return BuildStats{Chunks: s.index.Len()}, nil
}

// embedAll embeds texts in fixed-size batches with bounded concurrency,
// writing each batch's vectors into its slot range so the result order
// matches the input order.
func (s *Service) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Workers)
	for start := 0; start < len(texts); start += s.cfg.BatchSize {
		end := min(start+s.cfg.BatchSize, len(texts))
		g.Go(func() error {
			batch, err := s.embedder.EmbedBatch(gctx, texts[start:end])
			if err != nil {
				return err
			}
			copy(vectors[start:end], batch)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

// Ask retrieves the topK most relevant chunks and composes a cited answer.
// topK <= 0 selects the configured default. Returns ErrNoQuestion for a blank question
// and searcher.ErrIndexNotBuilt before the first successful build.
func (s *Service) Ask(ctx context.Context, question string, topK int) (composer.Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return composer.Answer{}, ErrNoQuestion
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := s.searcher.Retrieve(ctx, question, topK)
	if err != nil {
		return composer.Answer{}, err
	}

	answer, err := retryWithBackoff(ctx, s.cfg.Retry, func() (composer.Answer, error) {
		return s.composer.Compose(ctx, question, results)
	})
	if err != nil {
		return composer.Answer{}, err
	}

	s.logger.Info("question answered", "top_k", len(results), "sources", len(answer.Sources))
	return answer, nil
}

// Reset drops all documents, chunks and vectors. Chunk ids restart from
// zero. The embedding cache survives, re-uploading the same documents stays
// cheap.
func (s *Service) Reset(_ context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.corpus.Clear()
	s.index.Reset()
	s.logger.Info("state reset")
}

// Stats returns current corpus and index sizes.
func (s *Service) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Stats{TotalChunks: s.corpus.Len(), IndexedChunks: s.index.Len()}
}

// Close releases the embedder.
func (s *Service) Close() error {
	return s.embedder.Close()
}
