package normalize

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strings"
)

var fencePattern = regexp.MustCompile("```[A-Za-z]*")

// ExtractJSONFragment locates the JSON payload inside free-form model output.
//
// Code-fence markers are stripped first. Text that then starts with '[' is taken
// whole as an array; otherwise the slice from the first '{' to the last '}' is used.
func ExtractJSONFragment(text string) (string, error) {
	return extractFragment(text, false)
}

func extractFragment(text string, lenient bool) (string, error) {
	cleaned := strings.TrimSpace(fencePattern.ReplaceAllString(text, ""))

	var candidate string
	if strings.HasPrefix(cleaned, "[") {
		candidate = cleaned
	} else {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start == -1 || end < start {
			return "", malformed(text, "no JSON object or array found", nil)
		}
		candidate = cleaned[start : end+1]
	}

	_, err := decode(candidate)
	if err == nil {
		return candidate, nil
	}
	if lenient {
		repaired := repairJSON(candidate)
		if _, rerr := decode(repaired); rerr == nil {
			return repaired, nil
		}
	}
	return "", malformed(text, "fragment is not valid JSON", err)
}

// decode parses a complete JSON document, keeping numbers as json.Number
// so that their original text survives coercion to strings.
func decode(s string) (any, error) {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, err
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, errors.New("unexpected data after JSON value")
	}
	return v, nil
}

// repairJSON removes the decorations models commonly add to otherwise valid JSON:
// line and block comments, "..." placeholders, and trailing or doubled commas.
// String literals are copied untouched.
func repairJSON(s string) string {
	var out bytes.Buffer
	out.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			out.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch {
		case c == '"':
			inString = true
			out.WriteByte(c)
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				out.WriteByte('\n')
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			end := strings.Index(s[i+2:], "*/")
			if end == -1 {
				i = len(s)
			} else {
				i += end + 3
			}
		case strings.HasPrefix(s[i:], "..."):
			i += 2
		case strings.HasPrefix(s[i:], "…"):
			i += len("…") - 1
		case c == ',':
			if last := lastSignificant(out.Bytes()); last == ',' || last == '{' || last == '[' || last == 0 {
				continue
			}
			out.WriteByte(c)
		case c == '}' || c == ']':
			trimTrailingComma(&out)
			out.WriteByte(c)
		default:
			out.WriteByte(c)
		}
	}
	return out.String()
}

func lastSignificant(b []byte) byte {
	for i := len(b) - 1; i >= 0; i-- {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b[i]
	}
	return 0
}

func trimTrailingComma(out *bytes.Buffer) {
	b := out.Bytes()
	for i := len(b) - 1; i >= 0; i-- {
		switch b[i] {
		case ' ', '\t', '\n', '\r':
			continue
		case ',':
			out.Truncate(i)
		}
		return
	}
}
