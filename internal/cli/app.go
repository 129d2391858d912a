package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/afero"

	"github.com/ppiankov/caseextract/internal/cache"
	"github.com/ppiankov/caseextract/internal/document"
	"github.com/ppiankov/caseextract/internal/fetch"
	"github.com/ppiankov/caseextract/internal/llm"
	"github.com/ppiankov/caseextract/internal/logger"
	"github.com/ppiankov/caseextract/internal/metrics"
	"github.com/ppiankov/caseextract/internal/model"
	"github.com/ppiankov/caseextract/internal/normalize"
	"github.com/ppiankov/caseextract/internal/pipeline"
	"github.com/ppiankov/caseextract/internal/store"
	"github.com/ppiankov/caseextract/internal/worker"
)

// app holds the components a command runs against
type app struct {
	cfg       *model.Config
	log       logger.Logger
	metrics   *metrics.Metrics
	store     store.Store
	provider  llm.Provider
	processor *pipeline.Processor
}

// newLogger builds the process logger from configuration
func newLogger(cfg *model.Config) logger.Logger {
	lc := logger.DefaultConfig()
	lc.Level = logger.ParseLevel(cfg.Logging.Level)
	lc.JSON = cfg.Logging.JSON
	return logger.NewLogger(lc)
}

// openApp connects storage and, when withProvider is set, the generation pipeline
func openApp(ctx context.Context, cfg *model.Config, withProvider bool) (*app, error) {
	a := &app{
		cfg:     cfg,
		log:     newLogger(cfg),
		metrics: metrics.New(),
	}

	st, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("open storage: %w", err)
	}
	a.store = st

	if !withProvider {
		return a, nil
	}

	provider, err := llm.NewProvider(llm.ConfigFromModel(*cfg))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("create provider: %w", err)
	}
	a.provider = provider

	fs := afero.NewOsFs()
	extractor := llm.NewExtractor(provider,
		llm.WithCache(newCache(fs, cfg.Cache), cfg.Cache.DiskTTL),
		llm.WithLimiter(worker.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)),
		llm.WithMetrics(a.metrics),
		llm.WithRetry(cfg.LLM.MaxRetries, time.Second),
	)
	a.processor = pipeline.NewProcessor(cfg, st, document.NewStorage(fs, cfg.Storage.DataDir), extractor,
		pipeline.WithFetcher(fetch.NewFetcher(cfg.HTTP)),
		pipeline.WithSourceFS(fs),
		pipeline.WithMetrics(a.metrics),
	)
	return a, nil
}

func newCache(fs afero.Fs, cfg model.CacheConfig) cache.Cache {
	if !cfg.Enabled {
		return cache.Nop{}
	}
	return cache.NewLayeredCache(fs, cfg.MemoryTTL, cfg.Dir, cfg.DiskTTL)
}

// withLogger returns ctx carrying the app logger
func (a *app) withLogger(ctx context.Context) context.Context {
	return logger.ContextWithLogger(ctx, a.log)
}

// fieldKeys are the fixed table columns under the current normalize settings
func (a *app) fieldKeys() []string {
	if a.processor != nil {
		return a.processor.FieldKeys()
	}
	return normalize.New(normalize.OptionsFromConfig(a.cfg.Normalize)).FieldKeys()
}

func (a *app) Close() error {
	return a.store.Close()
}
