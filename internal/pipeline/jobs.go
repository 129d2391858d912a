package pipeline

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/ppiankov/caseextract/internal/model"
	"github.com/ppiankov/caseextract/internal/worker"
)

// documentJob adapts one document to the worker pool
type documentJob struct {
	processor *Processor
	job       *model.Job
	doc       model.Document
}

// Execute processes the document
func (j *documentJob) Execute(ctx context.Context) worker.Result {
	res, err := j.processor.ProcessDocument(ctx, j.job, j.doc)
	return &documentResult{doc: j.doc, result: res, err: err}
}

type documentResult struct {
	doc    model.Document
	result *model.Result
	err    error
}

// GetError returns the processing error, if any
func (r *documentResult) GetError() error {
	return r.err
}

// DocumentError records why one document produced no result
type DocumentError struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Error      string `json:"error"`
}

// JobSummary is the processing overview of a job
type JobSummary struct {
	Job                 model.Job       `json:"job"`
	Documents           int             `json:"documents"`
	DocumentsProcessed  int             `json:"documents_processed"`
	SuccessfulResults   int             `json:"successful_results"`
	CasesExtracted      int             `json:"cases_extracted"`
	ColumnsFound        []string        `json:"columns_found"`
	Errors              []DocumentError `json:"errors,omitempty"`
	ContinuationPending bool            `json:"continuation_pending"`
}

// Summarize builds the summary of a job from stored state
func (p *Processor) Summarize(ctx context.Context, jobID string) (*JobSummary, error) {
	job, err := p.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	docs, err := p.store.ListDocuments(ctx, jobID)
	if err != nil {
		return nil, err
	}
	results, err := p.store.ListResults(ctx, jobID)
	if err != nil {
		return nil, err
	}

	s := &JobSummary{
		Job:               *job,
		Documents:         len(docs),
		SuccessfulResults: len(results),
		ColumnsFound:      columnsFound(results),
	}
	for _, d := range docs {
		if d.Processed {
			s.DocumentsProcessed++
		}
		if d.Error != "" {
			s.Errors = append(s.Errors, DocumentError{DocumentID: d.ID, Filename: d.Filename, Error: d.Error})
		}
	}
	for _, r := range results {
		s.CasesExtracted += r.Data.CaseCount()
		if r.Data.Instruction != nil && r.Data.Instruction.Value != "" {
			s.ContinuationPending = true
		}
	}
	return s, nil
}

// LoadSource reads a PDF from an http(s) URL or a local path
func (p *Processor) LoadSource(ctx context.Context, source string) (Upload, error) {
	if isURL(source) {
		if p.fetcher == nil {
			return Upload{}, fmt.Errorf("url sources are not enabled: %s", source)
		}
		dl, err := p.fetcher.Fetch(ctx, source)
		if err != nil {
			return Upload{}, fmt.Errorf("fetch %s: %w", source, err)
		}
		return Upload{Filename: dl.Filename, Data: dl.Data}, nil
	}

	data, err := afero.ReadFile(p.fs, source)
	if err != nil {
		return Upload{}, fmt.Errorf("read %s: %w", source, err)
	}
	return Upload{Filename: filepath.Base(source), Data: data}, nil
}

// ProcessSource runs one source as a single-document job with the default prompt.
// It lets the batch worker drive the processor.
func (p *Processor) ProcessSource(ctx context.Context, source string) (*model.Result, error) {
	upload, err := p.LoadSource(ctx, source)
	if err != nil {
		return nil, err
	}
	job, docs, err := p.CreateJob(ctx, upload.Filename, "", []Upload{upload})
	if err != nil {
		return nil, err
	}
	if err := p.store.UpdateJobStatus(ctx, job.ID, model.JobProcessing, ""); err != nil {
		return nil, err
	}

	res, err := p.ProcessDocument(ctx, job, docs[0])
	status, errMsg := model.JobCompleted, ""
	if err != nil {
		status, errMsg = model.JobFailed, err.Error()
	}
	if uErr := p.store.UpdateJobStatus(context.WithoutCancel(ctx), job.ID, status, errMsg); uErr != nil && err == nil {
		err = uErr
	}
	if err != nil {
		return nil, err
	}
	return res, nil
}

var _ worker.SourceProcessor = (*Processor)(nil)
