package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ppiankov/caseextract/internal/llm"
	"github.com/ppiankov/caseextract/internal/model"
	"github.com/ppiankov/caseextract/internal/pipeline"
	"github.com/ppiankov/caseextract/internal/report"
	"github.com/ppiankov/caseextract/internal/store"
)

const (
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	latestJobID     = "latest"
	defaultJobLimit = 50
)

// uploadFields are the multipart fields PDFs are accepted from
var uploadFields = []string{"pdf_files", "pdf_file"}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) defaultPrompt(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"success": true, "prompt": llm.DefaultPrompt})
}

// testAPI sends a short generation to the configured provider
func (s *Server) testAPI(c *gin.Context) {
	if s.provider == nil {
		s.fail(c, errors.New("no provider configured"))
		return
	}
	ctx := c.Request.Context()
	if !s.provider.IsAvailable(ctx) {
		s.fail(c, fmt.Errorf("provider %s is not available", s.provider.Name()))
		return
	}
	resp, err := s.provider.Generate(ctx, llm.GenerateRequest{Prompt: llm.ConnectionTestPrompt, MaxTokens: 64})
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"provider": s.provider.Name(),
		"model":    resp.Model,
		"response": resp.Text,
	})
}

// createJob stores the uploaded PDFs as a new job and processes it
func (s *Server) createJob(c *gin.Context) {
	form, err := c.MultipartForm()
	if err != nil {
		s.fail(c, fmt.Errorf("%w: %w", pipeline.ErrInvalidUpload, err))
		return
	}
	uploads, err := s.readUploads(form)
	if err != nil {
		s.fail(c, err)
		return
	}

	ctx := c.Request.Context()
	job, _, err := s.processor.CreateJob(ctx, c.PostForm("name"), c.PostForm("prompt"), uploads)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.runJob(c, job.ID)
}

func (s *Server) processJob(c *gin.Context) {
	job, err := s.resolveJob(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.runJob(c, job.ID)
}

// runJob processes a job within the request and reports its summary.
// A job in which no document succeeded is reported as a failure.
func (s *Server) runJob(c *gin.Context, jobID string) {
	ctx := c.Request.Context()
	if s.config.ProcessTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.config.ProcessTimeout)
		defer cancel()
	}

	summary, err := s.processor.ProcessJob(ctx, jobID)
	if err != nil {
		s.fail(c, err)
		return
	}
	if summary.Job.Status == model.JobFailed {
		c.JSON(http.StatusInternalServerError, gin.H{
			"success": false,
			"error":   summary.Job.Error,
			"job_id":  jobID,
			"summary": summary,
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "job_id": jobID, "summary": summary})
}

func (s *Server) listJobs(c *gin.Context) {
	limit := defaultJobLimit
	if v, err := strconv.Atoi(c.Query("limit")); err == nil && v > 0 {
		limit = v
	}
	jobs, err := s.store.ListJobs(c.Request.Context(), limit)
	if err != nil {
		s.fail(c, err)
		return
	}
	if jobs == nil {
		jobs = []model.Job{}
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "jobs": jobs})
}

func (s *Server) getJob(c *gin.Context) {
	job, err := s.resolveJob(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	summary, err := s.processor.Summarize(c.Request.Context(), job.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "summary": summary})
}

// results returns one page of the job's case table
func (s *Server) results(c *gin.Context) {
	job, err := s.resolveJob(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	table, err := s.table(c.Request.Context(), job.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	size := report.PageSize(c.Query("page_size"), s.config.PageSize)
	page := report.Paginate(table, c.Query("page"), size)
	c.JSON(http.StatusOK, gin.H{"success": true, "job": job, "results": page})
}

func (s *Server) summary(c *gin.Context) {
	job, err := s.resolveJob(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	quality, err := s.processor.Quality(c.Request.Context(), job.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "quality": quality})
}

// export streams the job's case table as an XLSX workbook
func (s *Server) export(c *gin.Context) {
	job, err := s.resolveJob(c)
	if err != nil {
		s.fail(c, err)
		return
	}
	table, err := s.table(c.Request.Context(), job.ID)
	if err != nil {
		s.fail(c, err)
		return
	}
	var buf bytes.Buffer
	if err := report.WriteXLSX(&buf, table); err != nil {
		s.fail(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.xlsx"`, job.ID))
	c.Data(http.StatusOK, xlsxContentType, buf.Bytes())
}

func (s *Server) table(ctx context.Context, jobID string) (*report.Table, error) {
	results, err := s.store.ListResults(ctx, jobID)
	if err != nil {
		return nil, err
	}
	return report.BuildTable(results, s.processor.FieldKeys()), nil
}

// resolveJob loads the job named by the :id parameter
func (s *Server) resolveJob(c *gin.Context) (*model.Job, error) {
	id := c.Param("id")
	if id == latestJobID {
		return s.store.LatestJob(c.Request.Context())
	}
	return s.store.GetJob(c.Request.Context(), id)
}

func (s *Server) readUploads(form *multipart.Form) ([]pipeline.Upload, error) {
	var uploads []pipeline.Upload
	for _, field := range uploadFields {
		for _, fh := range form.File[field] {
			data, err := s.readFile(fh)
			if err != nil {
				return nil, fmt.Errorf("%w: %s: %w", pipeline.ErrInvalidUpload, fh.Filename, err)
			}
			uploads = append(uploads, pipeline.Upload{Filename: fh.Filename, Data: data})
		}
	}
	if len(uploads) == 0 {
		return nil, pipeline.ErrNoDocuments
	}
	return uploads, nil
}

// readFile reads at most one byte past the upload limit so oversize files still fail validation
func (s *Server) readFile(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var r io.Reader = f
	if s.config.MaxUploadBytes > 0 {
		r = io.LimitReader(f, s.config.MaxUploadBytes+1)
	}
	return io.ReadAll(r)
}

// fail writes err as a JSON error with a status matching its kind
func (s *Server) fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, pipeline.ErrInvalidUpload), errors.Is(err, pipeline.ErrNoDocuments):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": err.Error()})
}
