package rag

import (
	"context"
	"crypto/sha256"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docraghq/docrag/internal/composer"
	"github.com/docraghq/docrag/internal/extract"
	"github.com/docraghq/docrag/internal/searcher"
)

func newTestRegistry() *extract.Registry { return extract.NewRegistry() }

// hashEmbedder derives a deterministic unit-ish vector from each text's
// sha256, so identical texts always embed identically and distinct texts
// rarely collide. failFirst makes the first n calls fail, for retry tests.
type hashEmbedder struct {
	mu        sync.Mutex
	calls     int
	failFirst int
}

func (h *hashEmbedder) EmbedBatch(_ context.Context, texts []string) ([][]float32, error) {
	h.mu.Lock()
	h.calls++
	fail := h.calls <= h.failFirst
	h.mu.Unlock()
	if fail {
		return nil, assert.AnError
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		sum := sha256.Sum256([]byte(text))
		v := make([]float32, 8)
		for j := range v {
			v[j] = float32(sum[j]) / 255
		}
		out[i] = v
	}
	return out, nil
}

func (h *hashEmbedder) Dimension() int   { return 8 }
func (h *hashEmbedder) Provider() string { return "hash" }
func (h *hashEmbedder) Model() string    { return "hash" }
func (h *hashEmbedder) Close() error     { return nil }

// echoComposer answers with the top chunk's text, making retrieval quality
// observable through Ask.
type echoComposer struct {
	failFirst int
	calls     int
}

func (e *echoComposer) Compose(_ context.Context, _ string, results []searcher.Result) (composer.Answer, error) {
	e.calls++
	if e.calls <= e.failFirst {
		return composer.Answer{}, assert.AnError
	}
	sources := make([]composer.Source, len(results))
	for i, r := range results {
		sources[i] = composer.Source{ID: i + 1, File: r.File, Preview: r.Preview}
	}
	text := "I don't know."
	if len(results) > 0 {
		text = results[0].Text + " [1]"
	}
	return composer.Answer{Text: text, Sources: sources}, nil
}

func newTestService(t *testing.T, comp AnswerComposer) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.ChunkSize = 40
	cfg.Overlap = 8
	cfg.Retry.MaxAttempts = 1
	if comp == nil {
		comp = &echoComposer{}
	}
	svc, err := NewService(cfg, newTestRegistry(), &hashEmbedder{}, comp, nil)
	require.NoError(t, err)
	return svc
}

func uploadTexts(t *testing.T, svc *Service, files map[string]string) UploadStats {
	t.Helper()
	var ufs []UploadFile
	for name, text := range files {
		ufs = append(ufs, UploadFile{Name: name, Data: []byte(text)})
	}
	stats, err := svc.Upload(context.Background(), ufs)
	require.NoError(t, err)
	return stats
}

func TestService_UploadAccumulates(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	stats, err := svc.Upload(ctx, []UploadFile{{Name: "a.txt", Data: []byte(strings.Repeat("x", 100))}})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, stats.Files)
	assert.Greater(t, stats.ChunksAdded, 1)
	assert.Equal(t, stats.ChunksAdded, stats.TotalChunks)

	again, err := svc.Upload(ctx, []UploadFile{{Name: "b.txt", Data: []byte(strings.Repeat("y", 50))}})
	require.NoError(t, err)
	assert.Equal(t, stats.TotalChunks+again.ChunksAdded, again.TotalChunks)
}

func TestService_UploadSkipsUnextractableFiles(t *testing.T) {
	svc := newTestService(t, nil)

	stats, err := svc.Upload(context.Background(), []UploadFile{
		{Name: "image.png", Data: []byte{0xff, 0xd8}},
		{Name: "empty.txt", Data: []byte("   ")},
		{Name: "real.txt", Data: []byte("some actual content")},
	})
	require.NoError(t, err)
	assert.Len(t, stats.Files, 3)
	assert.Equal(t, 1, stats.ChunksAdded)
}

func TestService_BuildEmptyCorpus(t *testing.T) {
	svc := newTestService(t, nil)

	stats, err := svc.Build(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Empty)
	assert.Zero(t, stats.Chunks)
}

func TestService_AskBeforeBuild(t *testing.T) {
	svc := newTestService(t, nil)
	uploadTexts(t, svc, map[string]string{"a.txt": "content"})

	_, err := svc.Ask(context.Background(), "anything?", 0)
	assert.ErrorIs(t, err, searcher.ErrIndexNotBuilt)
}

func TestService_UploadBuildAsk(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	uploadTexts(t, svc, map[string]string{
		"fruit.txt":  "apples are red and sweet",
		"cycles.txt": "bicycles have two wheels",
	})

	built, err := svc.Build(ctx)
	require.NoError(t, err)
	assert.False(t, built.Empty)
	assert.Equal(t, 2, built.Chunks)

	answer, err := svc.Ask(ctx, "apples are red and sweet", 2)
	require.NoError(t, err)
	// The question embeds identically to the fruit chunk, so it must rank
	// first and the echo composer surfaces it.
	assert.Equal(t, "apples are red and sweet [1]", answer.Text)
	require.Len(t, answer.Sources, 2)
	assert.Equal(t, 1, answer.Sources[0].ID)
	assert.Equal(t, "fruit.txt", answer.Sources[0].File)
}

func TestService_UploadedChunksInvisibleUntilRebuild(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	uploadTexts(t, svc, map[string]string{"a.txt": "first document"})
	_, err := svc.Build(ctx)
	require.NoError(t, err)

	uploadTexts(t, svc, map[string]string{"b.txt": "second document"})
	assert.Equal(t, Stats{TotalChunks: 2, IndexedChunks: 1}, svc.Stats())

	built, err := svc.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, built.Chunks)
	assert.Equal(t, Stats{TotalChunks: 2, IndexedChunks: 2}, svc.Stats())
}

func TestService_ConfiguredTopKUsedByDefault(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSize = 40
	cfg.Overlap = 8
	cfg.TopK = 1
	cfg.Retry.MaxAttempts = 1
	svc, err := NewService(cfg, newTestRegistry(), &hashEmbedder{}, &echoComposer{}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	uploadTexts(t, svc, map[string]string{
		"a.txt": "first document",
		"b.txt": "second document",
	})
	_, err = svc.Build(ctx)
	require.NoError(t, err)

	answer, err := svc.Ask(ctx, "what?", 0)
	require.NoError(t, err)
	assert.Len(t, answer.Sources, 1, "unspecified top_k must use the configured value")

	answer, err = svc.Ask(ctx, "what?", 2)
	require.NoError(t, err)
	assert.Len(t, answer.Sources, 2)
}

func TestService_AskBlankQuestion(t *testing.T) {
	svc := newTestService(t, nil)

	_, err := svc.Ask(context.Background(), "   ", 0)
	assert.ErrorIs(t, err, ErrNoQuestion)
}

func TestService_Reset(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	uploadTexts(t, svc, map[string]string{"a.txt": "content here"})
	_, err := svc.Build(ctx)
	require.NoError(t, err)

	svc.Reset(ctx)
	assert.Equal(t, Stats{}, svc.Stats())

	_, err = svc.Ask(ctx, "anything?", 0)
	assert.ErrorIs(t, err, searcher.ErrIndexNotBuilt)

	// The pipeline works again from a clean slate.
	uploadTexts(t, svc, map[string]string{"b.txt": "fresh content"})
	built, err := svc.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, built.Chunks)
}

func TestService_FailedBuildLeavesIndexUnbuilt(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSize = 40
	cfg.Overlap = 8
	cfg.Retry.MaxAttempts = 1
	svc, err := NewService(cfg, newTestRegistry(), &hashEmbedder{failFirst: 1}, &echoComposer{}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	uploadTexts(t, svc, map[string]string{"a.txt": "content"})

	_, err = svc.Build(ctx)
	require.Error(t, err)
	assert.Zero(t, svc.Stats().IndexedChunks)

	_, err = svc.Ask(ctx, "anything?", 0)
	assert.ErrorIs(t, err, searcher.ErrIndexNotBuilt)

	// The next build succeeds and recovers fully.
	built, err := svc.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, built.Chunks)
}

func TestService_RetryRecoversTransientEmbedFailure(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSize = 40
	cfg.Overlap = 8
	cfg.Retry.MaxAttempts = 3
	cfg.Retry.BaseDelay = 0
	svc, err := NewService(cfg, newTestRegistry(), &hashEmbedder{failFirst: 2}, &echoComposer{}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	uploadTexts(t, svc, map[string]string{"a.txt": "content"})

	built, err := svc.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, built.Chunks)
}

func TestService_RetryRecoversTransientComposeFailure(t *testing.T) {
	comp := &echoComposer{failFirst: 1}
	cfg := DefaultConfig()
	cfg.ChunkSize = 40
	cfg.Overlap = 8
	cfg.Retry.MaxAttempts = 2
	cfg.Retry.BaseDelay = 0
	svc, err := NewService(cfg, newTestRegistry(), &hashEmbedder{}, comp, nil)
	require.NoError(t, err)

	ctx := context.Background()
	uploadTexts(t, svc, map[string]string{"a.txt": "content"})
	_, err = svc.Build(ctx)
	require.NoError(t, err)

	answer, err := svc.Ask(ctx, "anything?", 0)
	require.NoError(t, err)
	assert.NotEmpty(t, answer.Text)
	assert.Equal(t, 2, comp.calls)
}

func TestService_ConcurrentAsks(t *testing.T) {
	svc := newTestService(t, nil)
	ctx := context.Background()

	uploadTexts(t, svc, map[string]string{"a.txt": "shared knowledge base"})
	_, err := svc.Build(ctx)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			answer, err := svc.Ask(ctx, "what is shared?", 1)
			assert.NoError(t, err)
			assert.NotEmpty(t, answer.Text)
		}()
	}
	wg.Wait()
}

func TestService_InvalidChunkConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSize = 10
	cfg.Overlap = 10
	_, err := NewService(cfg, newTestRegistry(), &hashEmbedder{}, &echoComposer{}, nil)
	assert.Error(t, err)
}

func TestService_LargeBuildPreservesOrder(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ChunkSize = 40
	cfg.Overlap = 0
	cfg.BatchSize = 3
	cfg.Workers = 4
	cfg.Retry.MaxAttempts = 1
	svc, err := NewService(cfg, newTestRegistry(), &hashEmbedder{}, &echoComposer{}, nil)
	require.NoError(t, err)

	ctx := context.Background()
	var b strings.Builder
	for i := 0; i < 20; i++ {
		b.WriteString(strings.Repeat(string(rune('a'+i)), 40))
	}
	uploadTexts(t, svc, map[string]string{"big.txt": b.String()})

	built, err := svc.Build(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20, built.Chunks)

	// Querying with an exact chunk text must return that chunk first even
	// though its batch was embedded concurrently with others.
	answer, err := svc.Ask(ctx, strings.Repeat("m", 40), 1)
	require.NoError(t, err)
	assert.Equal(t, strings.Repeat("m", 40)+" [1]", answer.Text)
}
