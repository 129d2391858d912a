package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ppiankov/caseextract/internal/cache"
	"github.com/ppiankov/caseextract/internal/document/documenttest"
	"github.com/ppiankov/caseextract/internal/metrics"
)

// fakeProvider replays scripted errors before succeeding
type fakeProvider struct {
	mu       sync.Mutex
	calls    int
	errs     []error
	requests []GenerateRequest
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return true }

func (f *fakeProvider) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.requests = append(f.requests, req)
	if len(f.errs) > 0 {
		err := f.errs[0]
		f.errs = f.errs[1:]
		return nil, err
	}
	return &GenerateResponse{Text: `{"0": "x"}`, Model: "fake-1", TokensUsed: 7}, nil
}

type countingWaiter struct {
	mu   sync.Mutex
	keys []string
}

func (w *countingWaiter) Wait(ctx context.Context, key string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.keys = append(w.keys, key)
	return nil
}

func TestExtractor_RetriesTransientErrors(t *testing.T) {
	p := &fakeProvider{errs: []error{
		&StatusError{StatusCode: 503, Message: "unavailable"},
		&StatusError{StatusCode: 429, Message: "slow down"},
	}}
	waiter := &countingWaiter{}
	e := NewExtractor(p, WithRetry(3, time.Millisecond), WithLimiter(waiter))

	gen, err := e.Extract(context.Background(), GenerateRequest{Document: []byte("%PDF"), Prompt: "p"})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if p.calls != 3 {
		t.Errorf("expected 3 calls, got %d", p.calls)
	}
	if gen.Provider != "fake" || gen.Text != `{"0": "x"}` || gen.Cached {
		t.Errorf("unexpected generation: %+v", gen)
	}
	if diff := cmp.Diff([]string{"fake", "fake", "fake"}, waiter.keys); diff != "" {
		t.Errorf("limiter keys mismatch (-want +got):\n%s", diff)
	}
}

func TestExtractor_PermanentErrorNotRetried(t *testing.T) {
	p := &fakeProvider{errs: []error{&StatusError{StatusCode: 400, Message: "bad request"}}}
	e := NewExtractor(p, WithRetry(3, time.Millisecond))

	_, err := e.Extract(context.Background(), GenerateRequest{Prompt: "p"})
	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != 400 {
		t.Fatalf("expected wrapped 400 StatusError, got %v", err)
	}
	if p.calls != 1 {
		t.Errorf("expected 1 call, got %d", p.calls)
	}
}

func TestExtractor_RetryBudgetExhausted(t *testing.T) {
	p := &fakeProvider{errs: []error{
		&StatusError{StatusCode: 500}, &StatusError{StatusCode: 500}, &StatusError{StatusCode: 500},
	}}
	e := NewExtractor(p, WithRetry(1, time.Millisecond))

	if _, err := e.Extract(context.Background(), GenerateRequest{Prompt: "p"}); err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if p.calls != 2 {
		t.Errorf("expected 2 calls (1 retry), got %d", p.calls)
	}
}

func TestExtractor_CachesByDocumentAndPrompt(t *testing.T) {
	p := &fakeProvider{}
	m := metrics.New()
	e := NewExtractor(p, WithCache(cache.NewMemoryCache(time.Hour, time.Hour), 0), WithMetrics(m))
	ctx := context.Background()

	req := GenerateRequest{Document: []byte("%PDF-a"), Prompt: "p"}
	if _, err := e.Extract(ctx, req); err != nil {
		t.Fatal(err)
	}
	gen, err := e.Extract(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if !gen.Cached {
		t.Error("expected second identical call to be served from cache")
	}
	if gen.Model != "fake-1" || gen.TokensUsed != 7 {
		t.Errorf("cached generation lost fields: %+v", gen)
	}
	if p.calls != 1 {
		t.Errorf("expected 1 provider call, got %d", p.calls)
	}
	expected := `
# HELP caseextract_generation_cache_hits_total Generation responses served from cache.
# TYPE caseextract_generation_cache_hits_total counter
caseextract_generation_cache_hits_total 1
`
	if err := testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "caseextract_generation_cache_hits_total"); err != nil {
		t.Errorf("unexpected cache hit metric: %v", err)
	}

	if _, err := e.Extract(ctx, GenerateRequest{Document: []byte("%PDF-a"), Prompt: "other"}); err != nil {
		t.Fatal(err)
	}
	if _, err := e.Extract(ctx, GenerateRequest{Document: []byte("%PDF-b"), Prompt: "p"}); err != nil {
		t.Fatal(err)
	}
	if p.calls != 3 {
		t.Errorf("different prompt or document must miss the cache, got %d calls", p.calls)
	}
}

func TestExtractor_ForgetEvictsCachedGeneration(t *testing.T) {
	p := &fakeProvider{}
	c := cache.NewMemoryCache(time.Hour, time.Hour)
	e := NewExtractor(p, WithCache(c, 0))
	ctx := context.Background()
	req := GenerateRequest{Document: []byte("%PDF-a"), Prompt: "p"}

	gen, err := e.Extract(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if err := e.Forget(gen); err != nil {
		t.Fatalf("Forget failed: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("expected empty cache after Forget, got %d entries", c.Len())
	}

	again, err := e.Extract(ctx, req)
	if err != nil {
		t.Fatal(err)
	}
	if again.Cached || p.calls != 2 {
		t.Errorf("expected a fresh provider call, cached=%v calls=%d", again.Cached, p.calls)
	}
	if err := e.Forget(nil); err != nil {
		t.Errorf("Forget(nil) = %v", err)
	}
}

func TestExtractor_DefaultPrompt(t *testing.T) {
	p := &fakeProvider{}
	e := NewExtractor(p)
	if _, err := e.Extract(context.Background(), GenerateRequest{}); err != nil {
		t.Fatal(err)
	}
	if p.requests[0].Prompt != DefaultPrompt {
		t.Error("expected DefaultPrompt when none is given")
	}
}

func TestExtractor_FillsTextForTextOnlyProviders(t *testing.T) {
	var got ollamaRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewDecoder(r.Body).Decode(&got)
		_ = json.NewEncoder(w).Encode(ollamaResponse{Model: "m", Response: "{}", Done: true})
	}))
	defer server.Close()

	provider, _ := NewOllamaProvider(Config{BaseURL: server.URL, Model: "m", Timeout: 5})
	e := NewExtractor(provider)

	_, err := e.Extract(context.Background(), GenerateRequest{
		Document: documenttest.PDF("Meningioma of the falx"),
		Prompt:   "extract",
	})
	if err != nil {
		t.Fatalf("Extract failed: %v", err)
	}
	if !strings.Contains(got.Prompt, "Meningioma") {
		t.Errorf("expected extracted PDF text in the prompt, got %q", got.Prompt)
	}

	if needsText(&GeminiProvider{}) || needsText(&AnthropicProvider{}) {
		t.Error("native PDF providers must not need extracted text")
	}
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"429", &StatusError{StatusCode: 429}, true},
		{"502", &StatusError{StatusCode: 502}, true},
		{"404", &StatusError{StatusCode: 404}, false},
		{"canceled", context.Canceled, false},
		{"deadline", context.DeadlineExceeded, true},
		{"plain", errors.New("boom"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}
