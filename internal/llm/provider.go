package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ppiankov/caseextract/internal/util"
)

// Provider defines the interface for generative model providers
type Provider interface {
	// Name returns the provider name
	Name() string

	// Generate sends a document and a prompt to the model and returns its raw reply
	Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error)

	// IsAvailable checks if the provider is properly configured and accessible
	IsAvailable(ctx context.Context) bool
}

// GenerateRequest contains the input for one extraction call
type GenerateRequest struct {
	// Document is the raw PDF. Providers with native PDF input send it inline.
	Document []byte

	// DocumentText is the plain text of Document, used by text-only providers
	DocumentText string

	// Filename is informational, some APIs accept it as a title
	Filename string

	// Prompt is the extraction instruction (if empty, DefaultPrompt is used)
	Prompt string

	// Model overrides the configured model
	Model string

	// MaxTokens limits the response length
	MaxTokens int

	// Sampling overrides; zero means use the configured value
	Temperature float64
	TopP        float64
	TopK        int
}

// GenerateResponse contains the model's raw output
type GenerateResponse struct {
	// Text is the unparsed reply, usually JSON wrapped in prose or code fences
	Text string

	// Model is the model that generated the response
	Model string

	// TokensUsed tracks token consumption
	TokensUsed int
}

// Config holds LLM provider configuration
type Config struct {
	// Provider name: "gemini", "openai", "anthropic", "ollama", ""
	Provider string

	// Model name (provider-specific)
	Model string

	// APIKey for hosted providers
	APIKey string

	// BaseURL for custom endpoints (e.g., Ollama)
	BaseURL string

	// Timeout for API requests
	Timeout int // seconds

	// MaxTokens for response generation
	MaxTokens int

	Temperature float64
	TopP        float64
	TopK        int

	// MaxRetries bounds retries of transient failures in Extractor
	MaxRetries uint64

	// Proxy settings
	HTTPProxy  string
	HTTPSProxy string
	NoProxy    string
}

// DefaultConfig returns sensible defaults
func DefaultConfig() Config {
	return Config{
		Provider:    "gemini",
		Model:       DefaultGeminiModel,
		Timeout:     120,
		MaxTokens:   8192,
		Temperature: 0.1,
		TopP:        0.8,
		TopK:        40,
		MaxRetries:  3,
	}
}

// StatusError is a non-200 reply from a provider API
type StatusError struct {
	Provider   string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("API error (%d): %s", e.StatusCode, e.Message)
}

// Temporary reports whether retrying the call may succeed
func (e *StatusError) Temporary() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// ErrEmptyResponse is returned when the model replies without any text
var ErrEmptyResponse = errors.New("empty response from model")

// resolved merges request overrides with provider config
type resolved struct {
	prompt      string
	model       string
	maxTokens   int
	temperature float64
	topP        float64
	topK        int
}

func resolve(cfg Config, req GenerateRequest, defaultModel string) resolved {
	r := resolved{
		prompt:      req.Prompt,
		model:       req.Model,
		maxTokens:   req.MaxTokens,
		temperature: req.Temperature,
		topP:        req.TopP,
		topK:        req.TopK,
	}
	if r.prompt == "" {
		r.prompt = DefaultPrompt
	}
	if r.model == "" {
		r.model = cfg.Model
	}
	if r.model == "" {
		r.model = defaultModel
	}
	if r.maxTokens == 0 {
		r.maxTokens = cfg.MaxTokens
	}
	if r.maxTokens == 0 {
		r.maxTokens = 8192
	}
	if r.temperature == 0 {
		r.temperature = cfg.Temperature
	}
	if r.topP == 0 {
		r.topP = cfg.TopP
	}
	if r.topK == 0 {
		r.topK = cfg.TopK
	}
	return r
}

func (c Config) timeout(fallback time.Duration) time.Duration {
	if c.Timeout > 0 {
		return time.Duration(c.Timeout) * time.Second
	}
	return fallback
}

func (c Config) httpClient(fallback time.Duration) *http.Client {
	return &http.Client{
		Timeout:   c.timeout(fallback),
		Transport: util.NewTransport(c.HTTPProxy, c.HTTPSProxy, c.NoProxy),
	}
}

// documentPrompt prefixes the prompt with extracted text for text-only models
func documentPrompt(prompt, filename, text string) string {
	if text == "" {
		return prompt
	}
	return fmt.Sprintf("%s\n\nDocument (%s):\n<<<\n%s\n>>>", prompt, filename, text)
}
