package worker

import (
	"bufio"
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/spf13/afero"

	"github.com/ppiankov/caseextract/internal/model"
)

// SourceProcessor extracts cases from one source (a local PDF path or a URL)
type SourceProcessor interface {
	ProcessSource(ctx context.Context, source string) (*model.Result, error)
}

// SourceJob represents extraction of one source
type SourceJob struct {
	Index     int
	Source    string
	Processor SourceProcessor
}

// Execute executes the source job
func (j *SourceJob) Execute(ctx context.Context) Result {
	result, err := j.Processor.ProcessSource(ctx, j.Source)
	return &SourceResult{
		Index:  j.Index,
		Source: j.Source,
		Result: result,
		Error:  err,
	}
}

// SourceResult represents the result of a source job
type SourceResult struct {
	Index  int
	Source string
	Result *model.Result
	Error  error
}

// GetError returns the error from the source result
func (r *SourceResult) GetError() error {
	return r.Error
}

// BatchProcessor processes multiple sources concurrently
type BatchProcessor struct {
	processor   SourceProcessor
	concurrency int
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(processor SourceProcessor, concurrency int) *BatchProcessor {
	return &BatchProcessor{
		processor:   processor,
		concurrency: concurrency,
	}
}

// ProcessSources processes sources concurrently; results keep input order
func (b *BatchProcessor) ProcessSources(ctx context.Context, sources []string) []*SourceResult {
	if len(sources) == 0 {
		return []*SourceResult{}
	}

	pool := NewPoolWithContext(ctx, b.concurrency)
	pool.Start()

	for i, source := range sources {
		if !pool.Submit(&SourceJob{Index: i, Source: source, Processor: b.processor}) {
			break
		}
	}

	results := pool.Wait()

	out := make([]*SourceResult, 0, len(sources))
	done := make(map[int]bool, len(results))
	for _, r := range results {
		sr := r.(*SourceResult)
		done[sr.Index] = true
		out = append(out, sr)
	}
	// sources never queued (or dropped by cancellation) are reported as failed
	for i, source := range sources {
		if !done[i] {
			err := ctx.Err()
			if err == nil {
				err = fmt.Errorf("not processed")
			}
			out = append(out, &SourceResult{Index: i, Source: source, Error: err})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// ProcessFile reads sources from a file and processes them concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, fs afero.Fs, filePath string) ([]*SourceResult, error) {
	sources, err := ReadSourcesFromFile(fs, filePath)
	if err != nil {
		return nil, fmt.Errorf("read sources: %w", err)
	}

	return b.ProcessSources(ctx, sources), nil
}

// ReadSourcesFromFile reads PDF paths or URLs from a file (one per line)
func ReadSourcesFromFile(fs afero.Fs, filePath string) ([]string, error) {
	file, err := fs.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var sources []string
	seen := make(map[string]bool)

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if !seen[line] {
			seen[line] = true
			sources = append(sources, line)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return sources, nil
}
