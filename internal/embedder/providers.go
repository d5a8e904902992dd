package embedder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Provider configuration
const (
	ProviderOpenAI = "openai"
	ProviderJina   = "jina"

	DefaultOpenAIModel = "text-embedding-3-large"
	DefaultJinaModel   = "jina-embeddings-v3"

	openAIBaseURL = "https://api.openai.com/v1"
	jinaBaseURL   = "https://api.jina.ai/v1"

	// Per-call batch ceilings; larger inputs are split into ordered
	// sub-batches.
	OpenAIMaxBatch = 1000
	JinaMaxBatch   = 100
)

// openAIDimensions maps the supported OpenAI models to their vector sizes.
var openAIDimensions = map[string]int{
	"text-embedding-3-large": 3072,
	"text-embedding-3-small": 1536,
	"text-embedding-ada-002": 1536,
}

// JinaDimension is the vector size of jina-embeddings-v3.
const JinaDimension = 1024

// httpProvider is the shared engine behind both hosted providers: the OpenAI
// and Jina embedding APIs speak the same request/response dialect.
type httpProvider struct {
	name       string
	apiKey     string
	model      string
	baseURL    string
	dimension  int
	maxBatch   int
	httpClient *http.Client
	cache      *Cache
}

// OpenAIProvider implements Embedder against the OpenAI embeddings API.
type OpenAIProvider struct {
	httpProvider
}

// NewOpenAIProvider creates an OpenAI embedder. An empty model selects
// DefaultOpenAIModel.
func NewOpenAIProvider(apiKey, model string, cache *Cache) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: OpenAI API key is empty", ErrNoProviderEnabled)
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	dim, ok := openAIDimensions[model]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported OpenAI model %s", ErrInvalidInput, model)
	}

	return &OpenAIProvider{httpProvider{
		name:       ProviderOpenAI,
		apiKey:     apiKey,
		model:      model,
		baseURL:    openAIBaseURL,
		dimension:  dim,
		maxBatch:   OpenAIMaxBatch,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		cache:      cache,
	}}, nil
}

// JinaProvider implements Embedder against the Jina AI embeddings API.
type JinaProvider struct {
	httpProvider
}

// NewJinaProvider creates a Jina AI embedder. An empty model selects
// DefaultJinaModel.
func NewJinaProvider(apiKey, model string, cache *Cache) (*JinaProvider, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("%w: Jina API key is empty", ErrNoProviderEnabled)
	}
	if model == "" {
		model = DefaultJinaModel
	}

	return &JinaProvider{httpProvider{
		name:       ProviderJina,
		apiKey:     apiKey,
		model:      model,
		baseURL:    jinaBaseURL,
		dimension:  JinaDimension,
		maxBatch:   JinaMaxBatch,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		cache:      cache,
	}}, nil
}

// EmbedBatch returns one vector per input text, in input order. Cached texts
// are served locally; the remainder goes to the API in sub-batches of at most
// maxBatch. Any missing vector fails the entire call.
func (p *httpProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}

	vectors := make([][]float32, len(texts))
	var missIdx []int
	var missTexts []string

	for i, text := range texts {
		if p.cache != nil {
			if v, ok := p.cache.Get(ComputeHash(text)); ok {
				vectors[i] = v
				continue
			}
		}
		missIdx = append(missIdx, i)
		missTexts = append(missTexts, text)
	}

	for start := 0; start < len(missTexts); start += p.maxBatch {
		end := min(start+p.maxBatch, len(missTexts))
		batch := missTexts[start:end]

		got, err := p.callAPI(ctx, batch)
		if err != nil {
			return nil, err
		}

		for j, v := range got {
			i := missIdx[start+j]
			vectors[i] = v
			if p.cache != nil {
				p.cache.Set(ComputeHash(texts[i]), v)
			}
		}
	}

	return vectors, nil
}

// callAPI performs exactly one HTTP round trip. Retry is the caller's policy.
func (p *httpProvider) callAPI(ctx context.Context, texts []string) ([][]float32, error) {
	reqBody := map[string]any{
		"input": texts,
		"model": p.model,
	}

	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+p.apiKey)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderFailed, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("%w: api error %d: %s", ErrProviderFailed, resp.StatusCode, string(bodyBytes))
	}

	var apiResp struct {
		Data []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&apiResp); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrProviderFailed, err)
	}

	// All-or-nothing: every input must come back with a vector.
	if len(apiResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d inputs", ErrProviderFailed, len(apiResp.Data), len(texts))
	}

	vectors := make([][]float32, len(texts))
	for _, data := range apiResp.Data {
		if data.Index < 0 || data.Index >= len(texts) || len(data.Embedding) == 0 {
			return nil, fmt.Errorf("%w: malformed embedding at index %d", ErrProviderFailed, data.Index)
		}
		vectors[data.Index] = data.Embedding
	}
	for i, v := range vectors {
		if v == nil {
			return nil, fmt.Errorf("%w: missing vector for input %d", ErrProviderFailed, i)
		}
	}

	return vectors, nil
}

func (p *httpProvider) Dimension() int {
	return p.dimension
}

func (p *httpProvider) Provider() string {
	return p.name
}

func (p *httpProvider) Model() string {
	return p.model
}

func (p *httpProvider) Close() error {
	p.httpClient.CloseIdleConnections()
	return nil
}
