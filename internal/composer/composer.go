// Package composer turns retrieved chunks into a grounded answer with
// positional citations.
//
// Retrieved chunks are numbered 1..n in the prompt, and the returned source
// list uses the same numbering, so a [3] marker in the answer always refers
// to sources[2]. Citation markers that point outside the source list are
// stripped from the model's output before it is returned.
package composer

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/docraghq/docrag/internal/searcher"
)

const (
	// DefaultModel is the chat model used for answer composition.
	DefaultModel = "gpt-4.1"

	// DefaultTemperature keeps answers close to the provided context.
	DefaultTemperature = 0.2
)

// ErrCompletionFailed wraps chat completion provider failures.
var ErrCompletionFailed = errors.New("completion provider failed")

// SystemPrompt pins the model to the provided context.
const SystemPrompt = "You are a helpful assistant. Use ONLY the provided context to answer. " +
	"If the answer is not in the context, say you don't know."

// Source identifies one cited chunk. ID is the 1-based citation number used
// in the answer text.
type Source struct {
	ID      int    `json:"id"`
	File    string `json:"file"`
	Preview string `json:"preview"`
}

// Answer is a composed answer plus the sources its citations refer to.
type Answer struct {
	Text    string
	Sources []Source
}

// completionClient is the slice of the OpenAI client the composer needs.
type completionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Composer produces grounded answers from retrieved chunks.
type Composer struct {
	client      completionClient
	model       string
	temperature float32
}

// New creates a composer backed by the OpenAI chat completion API. Empty
// model selects DefaultModel.
func New(apiKey, model string) *Composer {
	return newWithClient(openai.NewClient(apiKey), model)
}

// NewWithBaseURL is New with a custom API endpoint, for OpenAI-compatible
// providers.
func NewWithBaseURL(apiKey, model, baseURL string) *Composer {
	cfg := openai.DefaultConfig(apiKey)
	cfg.BaseURL = baseURL
	return newWithClient(openai.NewClientWithConfig(cfg), model)
}

func newWithClient(client completionClient, model string) *Composer {
	if model == "" {
		model = DefaultModel
	}
	return &Composer{client: client, model: model, temperature: DefaultTemperature}
}

// Compose asks the chat model to answer the question from the retrieved
// chunks only. The returned sources are numbered to match the answer's
// citation markers.
func (c *Composer) Compose(ctx context.Context, question string, results []searcher.Result) (Answer, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: c.temperature,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: BuildPrompt(question, results)},
		},
	})
	if err != nil {
		return Answer{}, fmt.Errorf("%w: %v", ErrCompletionFailed, err)
	}
	if len(resp.Choices) == 0 {
		return Answer{}, fmt.Errorf("%w: response contains no choices", ErrCompletionFailed)
	}

	sources := make([]Source, len(results))
	for i, r := range results {
		sources[i] = Source{ID: i + 1, File: r.File, Preview: r.Preview}
	}

	return Answer{
		Text:    stripDanglingCitations(resp.Choices[0].Message.Content, len(sources)),
		Sources: sources,
	}, nil
}

// BuildPrompt renders the user message: numbered context blocks followed by
// the question and citation instructions. The grounding rules live in
// SystemPrompt.
func BuildPrompt(question string, results []searcher.Result) string {
	var b strings.Builder
	b.WriteString("Context:\n")
	for i, r := range results {
		fmt.Fprintf(&b, "[%d] (%s)\n%s\n\n", i+1, r.File, r.Text)
	}
	fmt.Fprintf(&b, "Question: %s\n", question)
	b.WriteString("Answer concisely and cite the context numbers you used, like [1][3].")
	return b.String()
}

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// stripDanglingCitations removes [n] markers whose n falls outside 1..max.
// Models occasionally cite numbers that were never in the prompt.
func stripDanglingCitations(text string, max int) string {
	return citationPattern.ReplaceAllStringFunc(text, func(marker string) string {
		n, err := strconv.Atoi(citationPattern.FindStringSubmatch(marker)[1])
		if err != nil || n < 1 || n > max {
			return ""
		}
		return marker
	})
}
