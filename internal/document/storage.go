package document

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/afero"
)

// Storage keeps PDF bytes content-addressed under <dir>/pdfs/<sha256>.pdf
type Storage struct {
	fs  afero.Fs
	dir string
}

// NewStorage creates a Storage rooted at dir
func NewStorage(fs afero.Fs, dir string) *Storage {
	return &Storage{fs: fs, dir: dir}
}

// Save writes data unless an identical document is already stored and returns its path
func (s *Storage) Save(data []byte) (string, error) {
	path := s.PathFor(Hash(data))

	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return "", fmt.Errorf("stat document: %w", err)
	}
	if exists {
		return path, nil
	}

	if err := s.fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create document dir: %w", err)
	}
	if err := afero.WriteFile(s.fs, path, data, 0o644); err != nil {
		return "", fmt.Errorf("write document: %w", err)
	}
	return path, nil
}

// Load reads a stored document
func (s *Storage) Load(path string) ([]byte, error) {
	data, err := afero.ReadFile(s.fs, path)
	if err != nil {
		return nil, fmt.Errorf("read document: %w", err)
	}
	return data, nil
}

// PathFor returns the storage path of the document with the given hash
func (s *Storage) PathFor(sha string) string {
	return filepath.Join(s.dir, "pdfs", sha+".pdf")
}
