// Package store persists jobs, documents and normalized results.
// sqlite (modernc, pure Go) is the default backend; postgres is selected by driver name.
package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/ppiankov/caseextract/internal/model"
)

// ErrNotFound is returned when a job, document or result does not exist
var ErrNotFound = errors.New("not found")

// Store is the persistence boundary used by the pipeline and the HTTP API
type Store interface {
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	LatestJob(ctx context.Context) (*model.Job, error)
	ListJobs(ctx context.Context, limit int) ([]model.Job, error)
	UpdateJobStatus(ctx context.Context, id string, status model.JobStatus, errMsg string) error

	CreateDocument(ctx context.Context, doc *model.Document) error
	GetDocument(ctx context.Context, id string) (*model.Document, error)
	ListDocuments(ctx context.Context, jobID string) ([]model.Document, error)
	MarkDocumentProcessed(ctx context.Context, id string, processed bool, errMsg string) error

	// SaveResult inserts or replaces the result of res.DocumentID
	SaveResult(ctx context.Context, res *model.Result) error
	// DeleteResult removes the result of a document, if any
	DeleteResult(ctx context.Context, documentID string) error
	ListResults(ctx context.Context, jobID string) ([]model.Result, error)

	Close() error
}

// Open connects to the configured backend and applies pending migrations
func Open(ctx context.Context, cfg model.StorageConfig) (Store, error) {
	switch strings.ToLower(cfg.Driver) {
	case "", "sqlite", "sqlite3":
		return OpenSQLite(ctx, cfg.DSN)
	case "postgres", "postgresql", "pgx":
		return OpenPostgres(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("unknown storage driver: %s (supported: sqlite, postgres)", cfg.Driver)
	}
}
