// Package pipeline runs uploaded documents through generation, normalization and persistence.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/ppiankov/caseextract/internal/document"
	"github.com/ppiankov/caseextract/internal/fetch"
	"github.com/ppiankov/caseextract/internal/llm"
	"github.com/ppiankov/caseextract/internal/logger"
	"github.com/ppiankov/caseextract/internal/metrics"
	"github.com/ppiankov/caseextract/internal/model"
	"github.com/ppiankov/caseextract/internal/normalize"
	"github.com/ppiankov/caseextract/internal/score"
	"github.com/ppiankov/caseextract/internal/store"
	"github.com/ppiankov/caseextract/internal/validate"
	"github.com/ppiankov/caseextract/internal/worker"
)

var (
	// ErrNoDocuments is returned when a job is created or run without documents
	ErrNoDocuments = errors.New("no documents")

	// ErrInvalidUpload wraps document validation failures
	ErrInvalidUpload = errors.New("invalid upload")
)

// Upload is one PDF submitted for a new job
type Upload struct {
	Filename string
	Data     []byte
}

// Processor orchestrates jobs: storing uploads, extracting and normalizing each document
type Processor struct {
	store      store.Store
	storage    *document.Storage
	extractor  *llm.Extractor
	normalizer *normalize.Normalizer
	validator  *validate.Validator
	scorer     *score.Scorer
	fetcher    *fetch.Fetcher
	fs         afero.Fs
	metrics    *metrics.Metrics
	workers    int
	maxUpload  int64
	model      string
}

// Option configures a Processor
type Option func(*Processor)

// WithFetcher enables URL sources
func WithFetcher(f *fetch.Fetcher) Option {
	return func(p *Processor) { p.fetcher = f }
}

// WithSourceFS sets the filesystem local sources are read from
func WithSourceFS(fs afero.Fs) Option {
	return func(p *Processor) { p.fs = fs }
}

// WithMetrics records document and normalization outcomes
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor creates a Processor from configuration and its collaborators
func NewProcessor(cfg *model.Config, st store.Store, storage *document.Storage, extractor *llm.Extractor, opts ...Option) *Processor {
	n := normalize.New(normalize.OptionsFromConfig(cfg.Normalize))
	p := &Processor{
		store:      st,
		storage:    storage,
		extractor:  extractor,
		normalizer: n,
		validator:  validate.NewValidator(),
		scorer:     score.NewScorer(n.FieldKeys()),
		fs:         afero.NewOsFs(),
		workers:    cfg.Concurrency.Workers,
		maxUpload:  cfg.Server.MaxUploadBytes,
		model:      cfg.LLM.Model,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// FieldKeys returns the fixed field keys of normalized cases
func (p *Processor) FieldKeys() []string {
	return p.normalizer.FieldKeys()
}

// CreateJob validates every upload, stores the PDFs and records the job with its documents.
// Nothing is recorded when any upload is invalid; a storage failure leaves the job failed.
func (p *Processor) CreateJob(ctx context.Context, name, prompt string, uploads []Upload) (*model.Job, []model.Document, error) {
	if len(uploads) == 0 {
		return nil, nil, ErrNoDocuments
	}
	for _, u := range uploads {
		if err := document.Validate(u.Filename, u.Data, p.maxUpload); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", ErrInvalidUpload, err)
		}
	}
	if strings.TrimSpace(prompt) == "" {
		prompt = llm.DefaultPrompt
	}
	if strings.TrimSpace(name) == "" {
		name = uploads[0].Filename
	}

	job := &model.Job{Name: name, Prompt: prompt}
	if err := p.store.CreateJob(ctx, job); err != nil {
		return nil, nil, fmt.Errorf("create job: %w", err)
	}

	docs, err := p.recordDocuments(ctx, job, uploads)
	if err != nil {
		// the job row exists already, so record why it has no documents
		if uErr := p.store.UpdateJobStatus(context.WithoutCancel(ctx), job.ID, model.JobFailed, err.Error()); uErr != nil {
			logger.FromContext(ctx).Warn("mark job failed", "job", job.ID, "error", uErr)
		}
		return nil, nil, err
	}

	logger.FromContext(ctx).Info("job created", "job", job.ID, "documents", len(docs))
	return job, docs, nil
}

// recordDocuments stores every upload and records it against job
func (p *Processor) recordDocuments(ctx context.Context, job *model.Job, uploads []Upload) ([]model.Document, error) {
	docs := make([]model.Document, 0, len(uploads))
	for i, u := range uploads {
		path, err := p.storage.Save(u.Data)
		if err != nil {
			return nil, fmt.Errorf("store %s: %w", u.Filename, err)
		}
		info := document.Inspect(u.Data)
		doc := model.Document{
			JobID:      job.ID,
			Position:   i,
			Filename:   filepath.Base(u.Filename),
			SHA256:     info.SHA256,
			Size:       info.Size,
			Pages:      info.Pages,
			StoredPath: path,
		}
		if err := p.store.CreateDocument(ctx, &doc); err != nil {
			return nil, fmt.Errorf("record %s: %w", u.Filename, err)
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// ProcessJob runs every document of the job through the worker pool.
// The job completes when at least one document produced a result and fails otherwise.
func (p *Processor) ProcessJob(ctx context.Context, jobID string) (*JobSummary, error) {
	log := logger.FromContext(ctx).With("job", jobID)

	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	docs, err := p.store.ListDocuments(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrNoDocuments)
	}

	if err := p.store.UpdateJobStatus(ctx, jobID, model.JobProcessing, ""); err != nil {
		return nil, err
	}
	log.Info("processing job", "documents", len(docs), "provider", p.extractor.Provider().Name())

	pool := worker.NewPoolWithContext(ctx, p.workers)
	pool.Start()
	for _, doc := range docs {
		if !pool.Submit(&documentJob{processor: p, job: job, doc: doc}) {
			break
		}
	}
	outcomes := pool.Wait()

	failures := make(map[string]string)
	succeeded := 0
	for _, o := range outcomes {
		r := o.(*documentResult)
		if r.err != nil {
			failures[r.doc.ID] = r.err.Error()
			continue
		}
		succeeded++
	}
	// documents the pool never ran (cancellation) count as failed
	if len(outcomes) < len(docs) {
		reason := "not processed"
		if ctx.Err() != nil {
			reason = ctx.Err().Error()
		}
		ran := make(map[string]bool, len(outcomes))
		for _, o := range outcomes {
			ran[o.(*documentResult).doc.ID] = true
		}
		for _, doc := range docs {
			if !ran[doc.ID] {
				failures[doc.ID] = reason
			}
		}
	}

	// the final status is recorded even when ctx was cancelled
	final := context.WithoutCancel(ctx)
	status, errMsg := model.JobCompleted, ""
	if succeeded == 0 {
		status = model.JobFailed
		errMsg = firstFailure(docs, failures)
	}
	if err := p.store.UpdateJobStatus(final, jobID, status, errMsg); err != nil {
		return nil, err
	}
	log.Info("job finished", "status", status, "succeeded", succeeded, "failed", len(failures))

	return p.Summarize(final, jobID)
}

// ProcessDocument extracts, normalizes and persists one document
func (p *Processor) ProcessDocument(ctx context.Context, job *model.Job, doc model.Document) (*model.Result, error) {
	log := logger.FromContext(ctx).With("job", job.ID, "document", doc.ID, "file", doc.Filename)

	res, err := p.processDocument(ctx, job, doc)
	if err != nil {
		log.Error("document failed", "error", err, "raw", normalize.RawPrefix(err))
		p.metrics.ObserveDocument("failed")
		final := context.WithoutCancel(ctx)
		if mErr := p.store.MarkDocumentProcessed(final, doc.ID, false, err.Error()); mErr != nil {
			log.Warn("record document failure", "error", mErr)
		}
		// a result left from an earlier run no longer describes this document
		if dErr := p.store.DeleteResult(final, doc.ID); dErr != nil {
			log.Warn("drop stale result", "error", dErr)
		}
		return nil, err
	}

	p.metrics.ObserveDocument("processed")
	if err := p.store.MarkDocumentProcessed(ctx, doc.ID, true, ""); err != nil {
		return nil, err
	}
	log.Info("document processed", "cases", res.Data.CaseCount())
	return res, nil
}

func (p *Processor) processDocument(ctx context.Context, job *model.Job, doc model.Document) (*model.Result, error) {
	data, err := p.storage.Load(doc.StoredPath)
	if err != nil {
		return nil, err
	}

	gen, err := p.extractor.Extract(ctx, llm.GenerateRequest{
		Document: data,
		Filename: doc.Filename,
		Prompt:   job.Prompt,
		Model:    p.model,
	})
	if err != nil {
		return nil, err
	}

	out, err := p.normalizer.Normalize(gen.Text)
	if err != nil {
		p.metrics.ObserveNormalization(normalize.ShapeUnknown.String(), outcomeOf(err))
		// an unusable reply must not be served again on a re-run
		if fErr := p.extractor.Forget(gen); fErr != nil {
			logger.FromContext(ctx).Warn("evict cached generation", "error", fErr)
		}
		return nil, err
	}
	p.metrics.ObserveNormalization(out.Shape.String(), "ok")

	res := &model.Result{
		JobID:      job.ID,
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Data:       *out.Result,
		RawText:    gen.Text,
		Provider:   gen.Provider,
		Model:      gen.Model,
	}
	if err := p.store.SaveResult(ctx, res); err != nil {
		return nil, err
	}
	return res, nil
}

// Quality validates and scores the stored results of a job
func (p *Processor) Quality(ctx context.Context, jobID string) (*model.QualityReport, error) {
	docs, err := p.store.ListDocuments(ctx, jobID)
	if err != nil {
		return nil, err
	}
	results, err := p.store.ListResults(ctx, jobID)
	if err != nil {
		return nil, err
	}
	r := p.scorer.Calculate(jobID, len(docs), results, p.validator.Validate(results))
	return &r, nil
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, normalize.ErrMalformedResponse):
		return "malformed"
	case errors.Is(err, normalize.ErrInvalidStructure):
		return "invalid"
	default:
		return "error"
	}
}

func firstFailure(docs []model.Document, failures map[string]string) string {
	for _, d := range docs {
		if msg, ok := failures[d.ID]; ok {
			return fmt.Sprintf("%s: %s", d.Filename, msg)
		}
	}
	return "no document produced results"
}

// isURL reports whether source should be downloaded rather than read from disk
func isURL(source string) bool {
	u, err := url.Parse(source)
	return err == nil && (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// columnsFound lists every key present in any case, sorted
func columnsFound(results []model.Result) []string {
	seen := make(map[string]bool)
	var cols []string
	for _, r := range results {
		for _, c := range r.Data.Cases {
			for k := range c {
				if !seen[k] {
					seen[k] = true
					cols = append(cols, k)
				}
			}
		}
	}
	sort.Strings(cols)
	return cols
}
