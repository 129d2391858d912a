package model

import "time"

// JobStatus is the lifecycle state of a processing job
type JobStatus string

const (
	JobPending    JobStatus = "pending"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobFailed     JobStatus = "failed"
)

// Valid reports whether s is a known status
func (s JobStatus) Valid() bool {
	switch s {
	case JobPending, JobProcessing, JobCompleted, JobFailed:
		return true
	}
	return false
}

// Job groups one prompt with the PDF documents it is applied to
type Job struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Prompt    string    `json:"prompt"`
	Status    JobStatus `json:"status"`
	Error     string    `json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Document is one uploaded PDF belonging to a job
type Document struct {
	ID         string    `json:"id"`
	JobID      string    `json:"job_id"`
	Position   int       `json:"position"`
	Filename   string    `json:"filename"`
	SHA256     string    `json:"sha256"`
	Size       int64     `json:"size"`
	Pages      int       `json:"pages"`
	StoredPath string    `json:"stored_path"`
	Processed  bool      `json:"processed"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Result is the persisted normalized output for one document
type Result struct {
	ID         string           `json:"id"`
	JobID      string           `json:"job_id"`
	DocumentID string           `json:"document_id"`
	Filename   string           `json:"filename,omitempty"`
	Data       ExtractionResult `json:"result_data"`
	RawText    string           `json:"raw_text,omitempty"`
	Provider   string           `json:"provider"`
	Model      string           `json:"model"`
	CreatedAt  time.Time        `json:"created_at"`
}
