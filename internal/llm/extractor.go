package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ppiankov/caseextract/internal/cache"
	"github.com/ppiankov/caseextract/internal/document"
	"github.com/ppiankov/caseextract/internal/logger"
	"github.com/ppiankov/caseextract/internal/metrics"
)

// Waiter throttles calls per key
type Waiter interface {
	Wait(ctx context.Context, key string) error
}

// Generation is a provider reply plus how it was obtained
type Generation struct {
	GenerateResponse
	Provider string `json:"provider"`
	Cached   bool   `json:"-"`

	key string
}

// Extractor wraps a Provider with caching, throttling and retries
type Extractor struct {
	provider   Provider
	cache      cache.Cache
	cacheTTL   time.Duration
	limiter    Waiter
	metrics    *metrics.Metrics
	maxRetries uint64
	retryBase  time.Duration
}

// ExtractorOption configures an Extractor
type ExtractorOption func(*Extractor)

// WithCache stores replies in c for ttl (0 uses the cache default)
func WithCache(c cache.Cache, ttl time.Duration) ExtractorOption {
	return func(e *Extractor) {
		if c != nil {
			e.cache = c
			e.cacheTTL = ttl
		}
	}
}

// WithLimiter throttles calls keyed by provider name
func WithLimiter(w Waiter) ExtractorOption {
	return func(e *Extractor) { e.limiter = w }
}

// WithMetrics records generation latency and cache hits
func WithMetrics(m *metrics.Metrics) ExtractorOption {
	return func(e *Extractor) { e.metrics = m }
}

// WithRetry sets the retry budget and the first backoff interval
func WithRetry(maxRetries uint64, base time.Duration) ExtractorOption {
	return func(e *Extractor) {
		e.maxRetries = maxRetries
		if base > 0 {
			e.retryBase = base
		}
	}
}

// NewExtractor creates an Extractor around p
func NewExtractor(p Provider, opts ...ExtractorOption) *Extractor {
	e := &Extractor{
		provider:   p,
		cache:      cache.Nop{},
		maxRetries: 3,
		retryBase:  time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Provider returns the wrapped provider
func (e *Extractor) Provider() Provider {
	return e.provider
}

// Extract generates a reply for req. Identical provider, model, document and prompt
// are served from the cache. Text-only providers get DocumentText filled from the PDF.
func (e *Extractor) Extract(ctx context.Context, req GenerateRequest) (*Generation, error) {
	log := logger.FromContext(ctx).With("provider", e.provider.Name(), "file", req.Filename)

	if req.Prompt == "" {
		req.Prompt = DefaultPrompt
	}
	if req.DocumentText == "" && len(req.Document) > 0 && needsText(e.provider) {
		text, err := document.ExtractText(req.Document)
		if err != nil {
			return nil, fmt.Errorf("extract document text: %w", err)
		}
		req.DocumentText = text
	}

	key := e.cacheKey(req)
	if data, ok := e.cache.Get(key); ok {
		var gen Generation
		if err := json.Unmarshal(data, &gen); err == nil {
			gen.Cached = true
			gen.key = key
			e.metrics.ObserveCacheHit()
			log.Debug("generation cache hit")
			return &gen, nil
		}
		_ = e.cache.Delete(key)
	}

	var resp *GenerateResponse
	attempt := 0
	backoff := retry.WithMaxRetries(e.maxRetries, retry.WithJitter(50*time.Millisecond, retry.NewExponential(e.retryBase)))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempt++
		if e.limiter != nil {
			if err := e.limiter.Wait(ctx, e.provider.Name()); err != nil {
				return err
			}
		}

		start := time.Now()
		r, err := e.provider.Generate(ctx, req)
		e.metrics.ObserveGeneration(e.provider.Name(), time.Since(start))
		if err != nil {
			if IsRetryable(err) {
				log.Warn("generation failed, retrying", "attempt", attempt, "error", err)
				return retry.RetryableError(err)
			}
			return err
		}
		resp = r
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%s generate: %w", e.provider.Name(), err)
	}

	gen := &Generation{GenerateResponse: *resp, Provider: e.provider.Name(), key: key}
	if data, err := json.Marshal(gen); err == nil {
		if err := e.cache.Set(key, data, e.cacheTTL); err != nil {
			log.Warn("cache write failed", "error", err)
		}
	}

	log.Debug("generation complete", "model", resp.Model, "tokens", resp.TokensUsed, "attempts", attempt)
	return gen, nil
}

// Forget evicts gen from the cache so the next identical request reaches the provider again
func (e *Extractor) Forget(gen *Generation) error {
	if gen == nil || gen.key == "" {
		return nil
	}
	return e.cache.Delete(gen.key)
}

func (e *Extractor) cacheKey(req GenerateRequest) string {
	content := req.DocumentText
	if len(req.Document) > 0 {
		content = document.Hash(req.Document)
	}
	return cache.CacheKey(e.provider.Name(), req.Model, content, req.Prompt)
}

// IsRetryable reports whether err is a transient provider failure (429, 5xx, timeouts)
func IsRetryable(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	var se *StatusError
	if errors.As(err, &se) {
		return se.Temporary()
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}

func needsText(p Provider) bool {
	switch p.(type) {
	case *OpenAIProvider, *OllamaProvider:
		return true
	}
	return false
}
