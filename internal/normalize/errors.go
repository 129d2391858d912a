package normalize

import (
	"errors"
	"fmt"
	"unicode/utf8"
)

// MaxRawPrefix bounds how much of the raw model text an error carries
const MaxRawPrefix = 500

var (
	// ErrMalformedResponse matches any error produced when no JSON could be recovered from the text
	ErrMalformedResponse = errors.New("malformed response")

	// ErrInvalidStructure matches any error produced when parsed JSON has no recognizable case shape
	ErrInvalidStructure = errors.New("invalid structure")
)

// MalformedResponseError reports text that does not contain a parseable JSON fragment
type MalformedResponseError struct {
	Reason string
	Raw    string // bounded prefix of the offending text
	Err    error
}

func (e *MalformedResponseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("malformed response: %s: %v", e.Reason, e.Err)
	}
	return "malformed response: " + e.Reason
}

func (e *MalformedResponseError) Is(target error) bool { return target == ErrMalformedResponse }

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// InvalidStructureError reports JSON that parsed but cannot be normalized into cases
type InvalidStructureError struct {
	Reason string
	Raw    string // bounded prefix of the offending text
}

func (e *InvalidStructureError) Error() string {
	return "invalid structure: " + e.Reason
}

func (e *InvalidStructureError) Is(target error) bool { return target == ErrInvalidStructure }

// RawPrefix returns the bounded raw text carried by a normalizer error, or "" for other errors
func RawPrefix(err error) string {
	var mErr *MalformedResponseError
	if errors.As(err, &mErr) {
		return mErr.Raw
	}
	var sErr *InvalidStructureError
	if errors.As(err, &sErr) {
		return sErr.Raw
	}
	return ""
}

func malformed(raw, reason string, err error) *MalformedResponseError {
	return &MalformedResponseError{Reason: reason, Raw: truncate(raw, MaxRawPrefix), Err: err}
}

func invalid(raw, format string, args ...any) *InvalidStructureError {
	return &InvalidStructureError{Reason: fmt.Sprintf(format, args...), Raw: truncate(raw, MaxRawPrefix)}
}

// truncate cuts s to at most n bytes without splitting a UTF-8 sequence
func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
