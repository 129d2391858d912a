package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/google/uuid"

	"github.com/ppiankov/caseextract/internal/model"
)

// timeLayout is fixed-width UTC so stored timestamps sort lexically
const timeLayout = "2006-01-02T15:04:05.000000000Z"

var (
	jobColumns      = []string{"id", "name", "prompt", "status", "error", "created_at", "updated_at"}
	documentColumns = []string{"id", "job_id", "position", "filename", "sha256", "size", "pages", "stored_path", "processed", "error", "created_at"}
	resultColumns   = []string{"id", "job_id", "document_id", "filename", "result_data", "raw_text", "provider", "model", "created_at"}
)

// SQLStore implements Store over sqlite or postgres
type SQLStore struct {
	exec    executor
	builder squirrel.StatementBuilderType
	closer  func() error
	now     func() time.Time
}

func newSQLStore(exec executor, format squirrel.PlaceholderFormat, closer func() error) *SQLStore {
	if closer == nil {
		closer = func() error { return nil }
	}
	return &SQLStore{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(format),
		closer:  closer,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Close releases the underlying connections
func (s *SQLStore) Close() error {
	return s.closer()
}

// CreateJob inserts job, assigning an ID and timestamps when unset
func (s *SQLStore) CreateJob(ctx context.Context, job *model.Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = model.JobPending
	}
	now := s.now()
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
	job.UpdatedAt = job.CreatedAt

	query, args, err := s.builder.Insert("jobs").
		Columns(jobColumns...).
		Values(job.ID, job.Name, job.Prompt, string(job.Status), job.Error, formatTime(job.CreatedAt), formatTime(job.UpdatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert job: %w", err)
	}
	if _, err := s.exec.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// GetJob returns the job with id
func (s *SQLStore) GetJob(ctx context.Context, id string) (*model.Job, error) {
	query, args, err := s.builder.Select(jobColumns...).
		From("jobs").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get job: %w", err)
	}
	job, err := scanJob(s.exec.queryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", id, err)
	}
	return job, nil
}

// LatestJob returns the most recently created job
func (s *SQLStore) LatestJob(ctx context.Context) (*model.Job, error) {
	query, args, err := s.builder.Select(jobColumns...).
		From("jobs").
		OrderBy("created_at DESC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build latest job: %w", err)
	}
	job, err := scanJob(s.exec.queryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("latest job: %w", err)
	}
	return job, nil
}

// ListJobs returns jobs newest first; limit <= 0 means all
func (s *SQLStore) ListJobs(ctx context.Context, limit int) ([]model.Job, error) {
	sb := s.builder.Select(jobColumns...).From("jobs").OrderBy("created_at DESC")
	if limit > 0 {
		sb = sb.Limit(uint64(limit))
	}
	query, args, err := sb.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list jobs: %w", err)
	}

	rows, err := s.exec.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []model.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("list jobs: %w", err)
		}
		jobs = append(jobs, *job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// UpdateJobStatus sets the status and error message of a job
func (s *SQLStore) UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errMsg string) error {
	if !status.Valid() {
		return fmt.Errorf("invalid job status %q", status)
	}
	query, args, err := s.builder.Update("jobs").
		Set("status", string(status)).
		Set("error", errMsg).
		Set("updated_at", formatTime(s.now())).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update job: %w", err)
	}
	n, err := s.exec.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update job %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update job %s: %w", id, ErrNotFound)
	}
	return nil
}

// CreateDocument inserts doc, assigning an ID and timestamp when unset
func (s *SQLStore) CreateDocument(ctx context.Context, doc *model.Document) error {
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = s.now()
	}

	query, args, err := s.builder.Insert("documents").
		Columns(documentColumns...).
		Values(doc.ID, doc.JobID, doc.Position, doc.Filename, doc.SHA256, doc.Size, doc.Pages,
			doc.StoredPath, doc.Processed, doc.Error, formatTime(doc.CreatedAt)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert document: %w", err)
	}
	if _, err := s.exec.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// GetDocument returns the document with id
func (s *SQLStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	query, args, err := s.builder.Select(documentColumns...).
		From("documents").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build get document: %w", err)
	}
	doc, err := scanDocument(s.exec.queryRow(ctx, query, args...))
	if err != nil {
		return nil, fmt.Errorf("get document %s: %w", id, err)
	}
	return doc, nil
}

// ListDocuments returns the documents of a job in upload order
func (s *SQLStore) ListDocuments(ctx context.Context, jobID string) ([]model.Document, error) {
	query, args, err := s.builder.Select(documentColumns...).
		From("documents").
		Where(squirrel.Eq{"job_id": jobID}).
		OrderBy("position", "created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list documents: %w", err)
	}

	rows, err := s.exec.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	defer rows.Close()

	var docs []model.Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, fmt.Errorf("list documents: %w", err)
		}
		docs = append(docs, *doc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list documents: %w", err)
	}
	return docs, nil
}

// MarkDocumentProcessed records the outcome of processing a document
func (s *SQLStore) MarkDocumentProcessed(ctx context.Context, id string, processed bool, errMsg string) error {
	query, args, err := s.builder.Update("documents").
		Set("processed", processed).
		Set("error", errMsg).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build update document: %w", err)
	}
	n, err := s.exec.exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update document %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("update document %s: %w", id, ErrNotFound)
	}
	return nil
}

// SaveResult upserts by document; on conflict the existing row keeps its ID
func (s *SQLStore) SaveResult(ctx context.Context, res *model.Result) error {
	if res.ID == "" {
		res.ID = uuid.NewString()
	}
	if res.CreatedAt.IsZero() {
		res.CreatedAt = s.now()
	}
	data, err := json.Marshal(res.Data)
	if err != nil {
		return fmt.Errorf("marshal result data: %w", err)
	}

	query, args, err := s.builder.Insert("results").
		Columns(resultColumns...).
		Values(res.ID, res.JobID, res.DocumentID, res.Filename, string(data), res.RawText,
			res.Provider, res.Model, formatTime(res.CreatedAt)).
		Suffix(`ON CONFLICT (document_id) DO UPDATE SET
			filename = excluded.filename,
			result_data = excluded.result_data,
			raw_text = excluded.raw_text,
			provider = excluded.provider,
			model = excluded.model,
			created_at = excluded.created_at
			RETURNING id`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build upsert result: %w", err)
	}

	var id string
	if err := s.exec.queryRow(ctx, query, args...).Scan(&id); err != nil {
		return fmt.Errorf("upsert result: %w", err)
	}
	res.ID = id
	return nil
}

// DeleteResult drops the result of documentID; a document without one is not an error
func (s *SQLStore) DeleteResult(ctx context.Context, documentID string) error {
	query, args, err := s.builder.Delete("results").
		Where(squirrel.Eq{"document_id": documentID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete result: %w", err)
	}
	if _, err := s.exec.exec(ctx, query, args...); err != nil {
		return fmt.Errorf("delete result of %s: %w", documentID, err)
	}
	return nil
}

// ListResults returns a job's results in document upload order
func (s *SQLStore) ListResults(ctx context.Context, jobID string) ([]model.Result, error) {
	cols := make([]string, len(resultColumns))
	for i, c := range resultColumns {
		cols[i] = "r." + c
	}
	query, args, err := s.builder.Select(cols...).
		From("results r").
		Join("documents d ON d.id = r.document_id").
		Where(squirrel.Eq{"r.job_id": jobID}).
		OrderBy("d.position", "d.created_at").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list results: %w", err)
	}

	rows, err := s.exec.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	defer rows.Close()

	var results []model.Result
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, fmt.Errorf("list results: %w", err)
		}
		results = append(results, *res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list results: %w", err)
	}
	return results, nil
}

func scanJob(row rowScanner) (*model.Job, error) {
	var (
		job                  model.Job
		status               string
		createdAt, updatedAt string
	)
	if err := row.Scan(&job.ID, &job.Name, &job.Prompt, &status, &job.Error, &createdAt, &updatedAt); err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	job.Status = model.JobStatus(status)
	job.CreatedAt = parseTime(createdAt)
	job.UpdatedAt = parseTime(updatedAt)
	return &job, nil
}

func scanDocument(row rowScanner) (*model.Document, error) {
	var (
		doc       model.Document
		createdAt string
	)
	err := row.Scan(&doc.ID, &doc.JobID, &doc.Position, &doc.Filename, &doc.SHA256, &doc.Size, &doc.Pages,
		&doc.StoredPath, &doc.Processed, &doc.Error, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	doc.CreatedAt = parseTime(createdAt)
	return &doc, nil
}

func scanResult(row rowScanner) (*model.Result, error) {
	var (
		res       model.Result
		data      string
		createdAt string
	)
	err := row.Scan(&res.ID, &res.JobID, &res.DocumentID, &res.Filename, &data, &res.RawText,
		&res.Provider, &res.Model, &createdAt)
	if err != nil {
		if isNoRows(err) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(data), &res.Data); err != nil {
		return nil, fmt.Errorf("decode result %s: %w", res.ID, err)
	}
	res.CreatedAt = parseTime(createdAt)
	return &res, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		t, _ = time.Parse(time.RFC3339Nano, s)
	}
	return t
}
