package normalize

import "github.com/ppiankov/caseextract/internal/model"

// Shape is the structural variant a parsed model response was recognized as
type Shape int

const (
	ShapeUnknown Shape = iota
	ShapeNested        // {"case_results": [...]}
	ShapeArray         // [{...}, {...}]
	ShapeFlat          // {"0": {pair}, "1": {pair}, "3A": {pair}}
	ShapeSingle        // {"0": {pair}, "1": "bare"}, one case
)

func (s Shape) String() string {
	switch s {
	case ShapeNested:
		return "nested"
	case ShapeArray:
		return "array"
	case ShapeFlat:
		return "flat"
	case ShapeSingle:
		return "single"
	default:
		return "unknown"
	}
}

type shapeCheck struct {
	shape Shape
	match func(v any) bool
}

// shapeChecks is evaluated in order and the first match wins.
// A mapping carrying case_results is never treated as a flat case.
var shapeChecks = []shapeCheck{
	{ShapeNested, isNested},
	{ShapeArray, isArray},
	{ShapeFlat, isFlat},
	{ShapeSingle, isSingle},
}

// ClassifyShape reports which structural variant v is
func ClassifyShape(v any) Shape {
	for _, check := range shapeChecks {
		if check.match(v) {
			return check.shape
		}
	}
	return ShapeUnknown
}

func isNested(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[model.KeyCaseResults]
	return ok
}

func isArray(v any) bool {
	_, ok := v.([]any)
	return ok
}

// isFlat matches a mapping whose case fields are all {value, confidence} pairs
func isFlat(v any) bool {
	fields, ok := caseFields(v)
	if !ok || len(fields) == 0 {
		return false
	}
	for _, f := range fields {
		if !isPair(f) {
			return false
		}
	}
	return true
}

// isSingle matches a mapping with at least one valued field among bare ones
func isSingle(v any) bool {
	fields, _ := caseFields(v)
	for _, f := range fields {
		if m, ok := f.(map[string]any); ok {
			if _, ok := m["value"]; ok {
				return true
			}
		}
	}
	return false
}

func isPair(v any) bool {
	m, ok := v.(map[string]any)
	if !ok {
		return false
	}
	_, hasValue := m["value"]
	_, hasConfidence := m["confidence"]
	return hasValue && hasConfidence
}

// caseFields returns the non-metadata values of a mapping
func caseFields(v any) ([]any, bool) {
	m, ok := v.(map[string]any)
	if !ok {
		return nil, false
	}
	fields := make([]any, 0, len(m))
	for k, f := range m {
		if !isMetadataKey(k) {
			fields = append(fields, f)
		}
	}
	return fields, true
}
