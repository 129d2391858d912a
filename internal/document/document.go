// Package document validates, inspects and stores uploaded PDF files.
package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/ledongthuc/pdf"
)

// MaxSize is the default upload limit (20 MiB)
const MaxSize int64 = 20 << 20

// MIMEType is the only accepted content type
const MIMEType = "application/pdf"

var (
	ErrEmpty    = errors.New("document is empty")
	ErrTooLarge = errors.New("document exceeds size limit")
	ErrNotPDF   = errors.New("document is not a PDF")
)

// sniffLen matches the amount of data http.DetectContentType considers
const sniffLen = 512

// DetectMIME returns the MIME type of data from its leading bytes.
// http.DetectContentType is tried first; mimetype resolves the generic answers.
func DetectMIME(data []byte) string {
	head := data
	if len(head) > sniffLen {
		head = head[:sniffLen]
	}
	mt := http.DetectContentType(head)
	if mt != "application/octet-stream" && !strings.HasPrefix(mt, "text/plain") {
		return baseType(mt)
	}
	return baseType(mimetype.Detect(data).String())
}

func baseType(mt string) string {
	if i := strings.Index(mt, ";"); i >= 0 {
		mt = mt[:i]
	}
	return strings.TrimSpace(mt)
}

// Validate checks filename extension, size and content type of an upload
func Validate(filename string, data []byte, maxSize int64) error {
	if maxSize <= 0 {
		maxSize = MaxSize
	}
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return fmt.Errorf("%w: %s does not have a .pdf extension", ErrNotPDF, filename)
	}
	if len(data) == 0 {
		return fmt.Errorf("%w: %s", ErrEmpty, filename)
	}
	if int64(len(data)) > maxSize {
		return fmt.Errorf("%w: %s is %d bytes (max %d)", ErrTooLarge, filename, len(data), maxSize)
	}
	if mt := DetectMIME(data); mt != MIMEType {
		return fmt.Errorf("%w: %s has content type %s", ErrNotPDF, filename, mt)
	}
	return nil
}

// Hash returns the hex SHA-256 of data
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Info describes a validated PDF
type Info struct {
	SHA256 string
	Size   int64
	Pages  int // 0 when the PDF structure could not be read
}

// Inspect hashes data and counts its pages
func Inspect(data []byte) Info {
	info := Info{SHA256: Hash(data), Size: int64(len(data))}
	if pages, err := PageCount(data); err == nil {
		info.Pages = pages
	}
	return info
}

// PageCount returns the number of pages in the PDF
func PageCount(data []byte) (n int, err error) {
	r, err := open(data)
	if err != nil {
		return 0, err
	}
	defer recoverParse(&err)
	return r.NumPage(), nil
}

// ExtractText returns the plain text of all pages.
// Providers that cannot read PDF bytes directly receive this text instead.
func ExtractText(data []byte) (text string, err error) {
	r, err := open(data)
	if err != nil {
		return "", err
	}
	defer recoverParse(&err)

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, plain); err != nil {
		return "", fmt.Errorf("read text: %w", err)
	}
	return strings.TrimSpace(buf.String()), nil
}

func open(data []byte) (r *pdf.Reader, err error) {
	defer recoverParse(&err)
	r, err = pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	return r, nil
}

// recoverParse converts panics raised by the PDF parser on malformed input into errors
func recoverParse(err *error) {
	if r := recover(); r != nil {
		*err = fmt.Errorf("parse pdf: %v", r)
	}
}
