package llm

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/tidwall/gjson"

	"github.com/ppiankov/caseextract/internal/document"
	"github.com/ppiankov/caseextract/internal/util"
)

// DefaultGeminiModel is used when no model is configured
const DefaultGeminiModel = "gemini-2.0-flash"

// GeminiProvider implements the Provider interface for Google Gemini models.
// PDFs are sent inline, so no local text extraction is needed.
type GeminiProvider struct {
	client *resty.Client
	config Config
}

type geminiPart struct {
	Text       string            `json:"text,omitempty"`
	InlineData *geminiInlineData `json:"inline_data,omitempty"`
}

type geminiInlineData struct {
	MimeType string `json:"mime_type"`
	Data     string `json:"data"`
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiGenerationConfig struct {
	Temperature     float64 `json:"temperature"`
	TopP            float64 `json:"topP,omitempty"`
	TopK            int     `json:"topK,omitempty"`
	MaxOutputTokens int     `json:"maxOutputTokens,omitempty"`
}

type geminiRequest struct {
	Contents         []geminiContent        `json:"contents"`
	GenerationConfig geminiGenerationConfig `json:"generationConfig"`
}

// NewGeminiProvider creates a new Gemini provider
func NewGeminiProvider(config Config) (*GeminiProvider, error) {
	if config.APIKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	baseURL := config.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com"
	}

	client := resty.New().
		SetBaseURL(strings.TrimSuffix(baseURL, "/")).
		SetTimeout(config.timeout(120*time.Second)).
		SetTransport(util.NewTransport(config.HTTPProxy, config.HTTPSProxy, config.NoProxy)).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetQueryParam("key", config.APIKey)

	return &GeminiProvider{
		client: client,
		config: config,
	}, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// IsAvailable checks the key by fetching the configured model's metadata
func (p *GeminiProvider) IsAvailable(ctx context.Context) bool {
	model := p.config.Model
	if model == "" {
		model = DefaultGeminiModel
	}
	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("model", model).
		Get("/v1beta/models/{model}")
	if err != nil {
		return false
	}
	return resp.StatusCode() == http.StatusOK
}

// Generate sends the PDF inline together with the prompt
func (p *GeminiProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	r := resolve(p.config, req, DefaultGeminiModel)

	parts := make([]geminiPart, 0, 2)
	if len(req.Document) > 0 {
		parts = append(parts, geminiPart{InlineData: &geminiInlineData{
			MimeType: document.MIMEType,
			Data:     base64.StdEncoding.EncodeToString(req.Document),
		}})
	}
	parts = append(parts, geminiPart{Text: r.prompt})

	body := geminiRequest{
		Contents: []geminiContent{{Role: "user", Parts: parts}},
		GenerationConfig: geminiGenerationConfig{
			Temperature:     r.temperature,
			TopP:            r.topP,
			TopK:            r.topK,
			MaxOutputTokens: r.maxTokens,
		},
	}

	resp, err := p.client.R().
		SetContext(ctx).
		SetPathParam("model", r.model).
		SetBody(body).
		Post("/v1beta/models/{model}:generateContent")
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}

	raw := resp.Body()
	if resp.StatusCode() != http.StatusOK {
		msg := gjson.GetBytes(raw, "error.message").String()
		if msg == "" {
			msg = string(raw)
		}
		return nil, &StatusError{Provider: p.Name(), StatusCode: resp.StatusCode(), Message: msg}
	}

	if reason := gjson.GetBytes(raw, "promptFeedback.blockReason").String(); reason != "" {
		return nil, fmt.Errorf("prompt blocked: %s", reason)
	}

	var sb strings.Builder
	for _, part := range gjson.GetBytes(raw, "candidates.0.content.parts.#.text").Array() {
		sb.WriteString(part.String())
	}
	text := strings.TrimSpace(sb.String())
	if text == "" {
		return nil, ErrEmptyResponse
	}

	modelName := gjson.GetBytes(raw, "modelVersion").String()
	if modelName == "" {
		modelName = r.model
	}

	return &GenerateResponse{
		Text:       text,
		Model:      modelName,
		TokensUsed: int(gjson.GetBytes(raw, "usageMetadata.totalTokenCount").Int()),
	}, nil
}
