package normalize

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/ppiankov/caseextract/internal/model"
)

// toFieldValue coerces any decoded JSON value into a FieldValue.
// A {"value", "confidence"} pair keeps its confidence (clamped to 1-5);
// everything else is treated as a bare value with confidence 1.
func toFieldValue(v any) model.FieldValue {
	if m, ok := v.(map[string]any); ok {
		if raw, ok := m["value"]; ok {
			return model.FieldValue{
				Value:      scalarString(raw),
				Confidence: parseConfidence(m["confidence"]),
			}
		}
	}
	return model.FieldValue{Value: scalarString(v), Confidence: model.MinConfidence}
}

func scalarString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case []any:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			if !isScalar(item) {
				return compactJSON(v)
			}
			if s := scalarString(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	default:
		return compactJSON(v)
	}
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, json.Number, float64, bool:
		return true
	}
	return false
}

func compactJSON(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(b)
}

// parseConfidence reads a confidence from a number or numeric string and clamps it to 1-5.
// Missing or unreadable confidences become 1.
func parseConfidence(v any) int {
	var f float64
	switch t := v.(type) {
	case json.Number:
		n, err := t.Float64()
		if err != nil {
			return model.MinConfidence
		}
		f = n
	case float64:
		f = t
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(t), 64)
		if err != nil {
			return model.MinConfidence
		}
		f = n
	default:
		return model.MinConfidence
	}
	if math.IsNaN(f) {
		return model.MinConfidence
	}
	if f < model.MinConfidence {
		return model.MinConfidence
	}
	if f > model.MaxConfidence {
		return model.MaxConfidence
	}
	return int(math.Round(f))
}
