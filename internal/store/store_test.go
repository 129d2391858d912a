package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/ppiankov/caseextract/internal/model"
)

func newTestStore(t *testing.T) *SQLStore {
	t.Helper()
	s, err := OpenSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func sampleResult(value string) model.ExtractionResult {
	return model.ExtractionResult{
		Cases: []model.CaseRecord{
			{"0": {Value: value, Confidence: 5}, "1": {Value: "", Confidence: 1}},
		},
		LowConfidenceExplanation: &model.FieldValue{Value: "DOI missing", Confidence: 5},
	}
}

func TestBuildDSN(t *testing.T) {
	d := buildDSN("/tmp/test.db")
	for _, want := range []string{"file:/tmp/test.db", "_pragma=journal_mode(WAL)", "_pragma=foreign_keys(ON)", "_pragma=busy_timeout(5000)"} {
		if !strings.Contains(d, want) {
			t.Errorf("expected %q in %q", want, d)
		}
	}

	m1, m2 := buildDSN(":memory:"), buildDSN(":memory:")
	if !strings.Contains(m1, "mode=memory") || m1 == m2 {
		t.Errorf("expected distinct in-memory databases, got %q and %q", m1, m2)
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open(context.Background(), model.StorageConfig{Driver: "mysql"}); err == nil {
		t.Error("expected error for unknown driver")
	}
}

func TestOpenSQLite_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "caseextract.db")
	ctx := context.Background()

	s, err := OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	job := &model.Job{Name: "persisted", Prompt: "p"}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}
	_ = s.Close()

	// reopening re-runs migrations idempotently and sees the data
	s, err = OpenSQLite(ctx, path)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer func() { _ = s.Close() }()
	if _, err := s.GetJob(ctx, job.ID); err != nil {
		t.Errorf("expected job after reopen, got %v", err)
	}
}

func TestJobs(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	first := &model.Job{Name: "first", Prompt: "p1", CreatedAt: base}
	second := &model.Job{Name: "second", Prompt: "p2", CreatedAt: base.Add(time.Millisecond)}
	for _, j := range []*model.Job{first, second} {
		if err := s.CreateJob(ctx, j); err != nil {
			t.Fatalf("create job: %v", err)
		}
	}
	if first.ID == "" || first.Status != model.JobPending {
		t.Errorf("expected generated ID and pending status, got %+v", first)
	}

	got, err := s.GetJob(ctx, first.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if diff := cmp.Diff(first, got); diff != "" {
		t.Errorf("job mismatch (-want +got):\n%s", diff)
	}

	latest, err := s.LatestJob(ctx)
	if err != nil || latest.ID != second.ID {
		t.Errorf("expected latest job %s, got %+v (%v)", second.ID, latest, err)
	}

	jobs, err := s.ListJobs(ctx, 0)
	if err != nil || len(jobs) != 2 || jobs[0].ID != second.ID {
		t.Errorf("expected newest-first listing, got %+v (%v)", jobs, err)
	}
	jobs, _ = s.ListJobs(ctx, 1)
	if len(jobs) != 1 {
		t.Errorf("expected limit to apply, got %d jobs", len(jobs))
	}

	if err := s.UpdateJobStatus(ctx, first.ID, model.JobFailed, "no cases"); err != nil {
		t.Fatalf("update status: %v", err)
	}
	got, _ = s.GetJob(ctx, first.ID)
	if got.Status != model.JobFailed || got.Error != "no cases" {
		t.Errorf("expected failed status with error, got %+v", got)
	}
}

func TestJobs_NotFound(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.LatestJob(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound for empty store, got %v", err)
	}
	if err := s.UpdateJobStatus(ctx, "missing", model.JobCompleted, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.UpdateJobStatus(ctx, "missing", "bogus", ""); err == nil {
		t.Error("expected error for invalid status")
	}
}

func TestDocumentsAndResults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &model.Job{Name: "j", Prompt: "p"}
	if err := s.CreateJob(ctx, job); err != nil {
		t.Fatal(err)
	}

	// inserted out of order to check position ordering
	docB := &model.Document{JobID: job.ID, Position: 1, Filename: "b.pdf", SHA256: "bb", Size: 20, Pages: 2, StoredPath: "/d/bb.pdf"}
	docA := &model.Document{JobID: job.ID, Position: 0, Filename: "a.pdf", SHA256: "aa", Size: 10, Pages: 1, StoredPath: "/d/aa.pdf"}
	for _, d := range []*model.Document{docB, docA} {
		if err := s.CreateDocument(ctx, d); err != nil {
			t.Fatalf("create document: %v", err)
		}
	}

	docs, err := s.ListDocuments(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(docs) != 2 || docs[0].Filename != "a.pdf" || docs[1].Filename != "b.pdf" {
		t.Errorf("expected documents in position order, got %+v", docs)
	}

	if err := s.MarkDocumentProcessed(ctx, docA.ID, true, ""); err != nil {
		t.Fatal(err)
	}
	got, err := s.GetDocument(ctx, docA.ID)
	if err != nil || !got.Processed {
		t.Errorf("expected processed document, got %+v (%v)", got, err)
	}
	if err := s.MarkDocumentProcessed(ctx, "missing", true, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}

	resB := &model.Result{JobID: job.ID, DocumentID: docB.ID, Filename: "b.pdf", Data: sampleResult("B"), Provider: "gemini", Model: "m"}
	resA := &model.Result{JobID: job.ID, DocumentID: docA.ID, Filename: "a.pdf", Data: sampleResult("A"), RawText: "{...}", Provider: "gemini", Model: "m"}
	for _, r := range []*model.Result{resB, resA} {
		if err := s.SaveResult(ctx, r); err != nil {
			t.Fatalf("save result: %v", err)
		}
	}

	results, err := s.ListResults(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if diff := cmp.Diff([]model.Result{*resA, *resB}, results, cmpopts.EquateApproxTime(time.Microsecond)); diff != "" {
		t.Errorf("results mismatch (-want +got):\n%s", diff)
	}
}

func TestSaveResult_UpsertsPerDocument(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &model.Job{Name: "j", Prompt: "p"}
	_ = s.CreateJob(ctx, job)
	doc := &model.Document{JobID: job.ID, Filename: "a.pdf", SHA256: "aa", Size: 1, StoredPath: "x"}
	_ = s.CreateDocument(ctx, doc)

	first := &model.Result{JobID: job.ID, DocumentID: doc.ID, Data: sampleResult("old")}
	if err := s.SaveResult(ctx, first); err != nil {
		t.Fatal(err)
	}
	second := &model.Result{JobID: job.ID, DocumentID: doc.ID, Data: sampleResult("new")}
	if err := s.SaveResult(ctx, second); err != nil {
		t.Fatal(err)
	}

	if second.ID != first.ID {
		t.Errorf("expected upsert to keep ID %s, got %s", first.ID, second.ID)
	}
	results, _ := s.ListResults(ctx, job.ID)
	if len(results) != 1 || results[0].Data.Cases[0]["0"].Value != "new" {
		t.Errorf("expected one replaced result, got %+v", results)
	}
}

func TestDeleteResult(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	job := &model.Job{Name: "j", Prompt: "p"}
	_ = s.CreateJob(ctx, job)
	kept := &model.Document{JobID: job.ID, Position: 0, Filename: "a.pdf", SHA256: "aa", Size: 1, StoredPath: "x"}
	dropped := &model.Document{JobID: job.ID, Position: 1, Filename: "b.pdf", SHA256: "bb", Size: 1, StoredPath: "y"}
	_ = s.CreateDocument(ctx, kept)
	_ = s.CreateDocument(ctx, dropped)
	for _, d := range []*model.Document{kept, dropped} {
		if err := s.SaveResult(ctx, &model.Result{JobID: job.ID, DocumentID: d.ID, Data: sampleResult(d.Filename)}); err != nil {
			t.Fatal(err)
		}
	}

	if err := s.DeleteResult(ctx, dropped.ID); err != nil {
		t.Fatalf("delete result: %v", err)
	}
	results, _ := s.ListResults(ctx, job.ID)
	if len(results) != 1 || results[0].DocumentID != kept.ID {
		t.Errorf("expected only the result of %s, got %+v", kept.Filename, results)
	}

	if err := s.DeleteResult(ctx, dropped.ID); err != nil {
		t.Errorf("deleting a missing result should succeed, got %v", err)
	}
}

func TestCreateDocument_RequiresJob(t *testing.T) {
	s := newTestStore(t)
	err := s.CreateDocument(context.Background(), &model.Document{JobID: "missing", Filename: "a.pdf", SHA256: "x", StoredPath: "x"})
	if err == nil {
		t.Error("expected foreign key violation for unknown job")
	}
}
