// Package fetch downloads remote PDF documents.
package fetch

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/sethvargo/go-retry"

	"github.com/ppiankov/caseextract/internal/logger"
	"github.com/ppiankov/caseextract/internal/model"
	"github.com/ppiankov/caseextract/internal/util"
)

var (
	// ErrDisallowed is returned when robots.txt forbids the download
	ErrDisallowed = errors.New("disallowed by robots.txt")

	// ErrTooLarge is returned when the body exceeds the configured limit
	ErrTooLarge = errors.New("response exceeds size limit")
)

// Fetcher downloads documents over HTTP
type Fetcher struct {
	httpClient *http.Client
	userAgent  string
	maxBytes   int64
	robots     *util.RobotsChecker
	backoff    func() retry.Backoff
}

// NewFetcher creates a Fetcher from HTTP settings
func NewFetcher(cfg model.HTTPConfig) *Fetcher {
	transport := util.NewTransport(cfg.HTTPProxy, cfg.HTTPSProxy, cfg.NoProxy)
	if cfg.InsecureTLS {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true} //nolint:gosec // opt-in for self-signed hosts
	}

	client := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return fmt.Errorf("stopped after 5 redirects")
			}
			return nil
		},
	}

	f := &Fetcher{
		httpClient: client,
		userAgent:  cfg.UserAgent,
		maxBytes:   cfg.MaxBodyBytes,
		backoff: func() retry.Backoff {
			return retry.WithMaxRetries(2, retry.WithJitterPercent(20, retry.NewExponential(500*time.Millisecond)))
		},
	}
	if f.maxBytes <= 0 {
		f.maxBytes = 20 << 20
	}
	if cfg.RespectRobots {
		f.robots = util.NewRobotsChecker(cfg.UserAgent, client)
	}
	return f
}

// Download is a fetched remote document
type Download struct {
	URL         string
	FinalURL    string
	Filename    string
	ContentType string
	StatusCode  int
	Data        []byte
}

// Fetch downloads rawURL, retrying transient failures (network errors, 429, 5xx)
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*Download, error) {
	log := logger.FromContext(ctx)

	if f.robots != nil {
		allowed, delay, err := f.robots.CanFetch(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, fmt.Errorf("%w: %s", ErrDisallowed, rawURL)
		}
		if delay > 0 {
			if err := sleep(ctx, delay); err != nil {
				return nil, err
			}
		}
	}

	var dl *Download
	attempt := 0
	err := retry.Do(ctx, f.backoff(), func(ctx context.Context) error {
		attempt++
		var err error
		dl, err = f.fetchOnce(ctx, rawURL)
		if err != nil && isRetryable(err) {
			log.Debug("retrying download", "url", rawURL, "attempt", attempt, "error", err)
			return retry.RetryableError(err)
		}
		return err
	})
	if err != nil {
		return nil, err
	}
	return dl, nil
}

// statusError reports a non-2xx response
type statusError struct {
	code   int
	status string
}

func (e *statusError) Error() string { return fmt.Sprintf("unexpected status: %s", e.status) }

func (f *Fetcher) fetchOnce(ctx context.Context, rawURL string) (*Download, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", f.userAgent)
	req.Header.Set("Accept", "application/pdf,*/*;q=0.8")

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &statusError{code: resp.StatusCode, status: resp.Status}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.maxBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", ErrTooLarge, f.maxBytes)
	}

	finalURL := resp.Request.URL.String()
	return &Download{
		URL:         rawURL,
		FinalURL:    finalURL,
		Filename:    filenameFor(resp.Header.Get("Content-Disposition"), finalURL),
		ContentType: resp.Header.Get("Content-Type"),
		StatusCode:  resp.StatusCode,
		Data:        body,
	}, nil
}

func isRetryable(err error) bool {
	var se *statusError
	if errors.As(err, &se) {
		return se.code == http.StatusTooManyRequests || se.code >= 500
	}
	if errors.Is(err, ErrTooLarge) || errors.Is(err, context.Canceled) {
		return false
	}
	s := strings.ToLower(err.Error())
	return strings.Contains(s, "timeout") ||
		strings.Contains(s, "connection refused") ||
		strings.Contains(s, "connection reset") ||
		strings.Contains(s, "eof")
}

// filenameFor prefers the Content-Disposition filename, then the last URL path segment
func filenameFor(disposition, rawURL string) string {
	name := ""
	if disposition != "" {
		if _, params, err := mime.ParseMediaType(disposition); err == nil {
			name = path.Base(params["filename"])
		}
	}
	if name == "" || name == "." || name == "/" {
		if u, err := url.Parse(rawURL); err == nil {
			name = path.Base(u.Path)
		}
	}
	if name == "" || name == "." || name == "/" {
		name = "document"
	}
	if !strings.EqualFold(path.Ext(name), ".pdf") {
		name += ".pdf"
	}
	return name
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
