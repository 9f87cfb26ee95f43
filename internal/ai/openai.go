package ai

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	// DefaultModel is the chat model used when none is configured.
	DefaultModel = openai.GPT3Dot5Turbo
	// DefaultMaxTokens bounds the length of a drafted body.
	DefaultMaxTokens = 400

	maxRetries  = 3
	baseBackoff = time.Second
	maxBackoff  = 30 * time.Second
)

// chatClient abstracts the go-openai client method we use, enabling test mocks.
type chatClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// OpenAI is a Generator backed by the OpenAI chat-completions API.
type OpenAI struct {
	client      chatClient
	model       string
	maxTokens   int
	baseBackoff time.Duration
	maxBackoff  time.Duration
}

// OpenAIOpts holds parameters for creating an OpenAI generator.
type OpenAIOpts struct {
	APIKey    string
	Model     string // defaults to DefaultModel
	MaxTokens int    // defaults to DefaultMaxTokens
	BaseURL   string // for OpenAI-compatible endpoints; empty uses the default
	// For testing: inject a mock client instead of the real API.
	Client chatClient
}

// NewOpenAI creates an OpenAI generator. It returns ErrDisabled when no API
// key is configured.
func NewOpenAI(opts OpenAIOpts) (*OpenAI, error) {
	client := opts.Client
	if client == nil {
		if strings.TrimSpace(opts.APIKey) == "" {
			return nil, ErrDisabled
		}
		cfg := openai.DefaultConfig(opts.APIKey)
		if opts.BaseURL != "" {
			cfg.BaseURL = opts.BaseURL
		}
		client = openai.NewClientWithConfig(cfg)
	}
	model := opts.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := opts.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}
	return &OpenAI{
		client:      client,
		model:       model,
		maxTokens:   maxTokens,
		baseBackoff: baseBackoff,
		maxBackoff:  maxBackoff,
	}, nil
}

// Generate sends prompt as a single user message and returns the trimmed
// reply. Rate-limited requests are retried with exponential backoff.
func (g *OpenAI) Generate(ctx context.Context, prompt string) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:     g.model,
		MaxTokens: g.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	}

	var resp openai.ChatCompletionResponse
	for attempt := 0; ; attempt++ {
		var err error
		resp, err = g.client.CreateChatCompletion(ctx, req)
		if err == nil {
			break
		}
		if !isRateLimited(err) || attempt == maxRetries {
			return "", fmt.Errorf("ai: chat completion: %w", err)
		}
		wait := time.Duration(math.Pow(2, float64(attempt))) * g.baseBackoff
		if wait > g.maxBackoff {
			wait = g.maxBackoff
		}
		log.Printf("ai: rate limited, retrying in %v (attempt %d/%d)", wait, attempt+1, maxRetries)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(wait):
		}
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("ai: chat completion: empty response")
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", fmt.Errorf("ai: chat completion: empty content")
	}
	return text, nil
}

func isRateLimited(err error) bool {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode == http.StatusTooManyRequests
	}
	return false
}
