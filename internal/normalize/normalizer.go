// Package normalize turns the free-text JSON-ish output of a generation model
// into a canonical list of per-case field records.
//
// Three response shapes are recognized, checked in priority order:
//
//	nested  {"case_results": [{"0": {"value": "...", "confidence": 4}, ...}]}
//	array   [{"0": ..., "1": ...}, {"0": ..., "1": ...}]
//	flat    {"0": ..., "1": ..., "3A": ..., "4": ...}
//
// Normalization is pure: a Normalizer holds only immutable options and is safe
// for concurrent use.
package normalize

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/caseextract/internal/model"
)

// Options configures a Normalizer
type Options struct {
	// FieldKeys are always present in every case, filled with an empty value when missing
	FieldKeys []string

	// CaseStartKeys open a new case while walking a flat mapping
	CaseStartKeys []string

	// ArrayStartKey must be present in an array element for it to count as a case
	ArrayStartKey string

	// RequireStartKey enables the ArrayStartKey filter
	RequireStartKey bool

	// Lenient repairs comments, ellipses and trailing commas when strict parsing fails
	Lenient bool

	// ValidateSchema checks the normalized result against the result JSON Schema
	ValidateSchema bool
}

// DefaultOptions returns the options matching the default prompt contract
func DefaultOptions() Options {
	return OptionsFromConfig(model.DefaultConfig().Normalize)
}

// OptionsFromConfig converts model.NormalizeConfig to Options
func OptionsFromConfig(cfg model.NormalizeConfig) Options {
	return Options{
		FieldKeys:       append([]string(nil), cfg.FieldKeys...),
		CaseStartKeys:   append([]string(nil), cfg.CaseStartKeys...),
		ArrayStartKey:   cfg.ArrayStartKey,
		RequireStartKey: cfg.RequireStartKey,
		Lenient:         cfg.Lenient,
		ValidateSchema:  cfg.ValidateSchema,
	}
}

// Normalizer coerces parsed model output into an ExtractionResult
type Normalizer struct {
	opts      Options
	startKeys map[string]struct{}
}

// New creates a Normalizer, falling back to defaults for empty key sets
func New(opts Options) *Normalizer {
	defaults := model.DefaultConfig().Normalize
	if len(opts.FieldKeys) == 0 {
		opts.FieldKeys = defaults.FieldKeys
	}
	if len(opts.CaseStartKeys) == 0 {
		opts.CaseStartKeys = defaults.CaseStartKeys
	}
	if opts.ArrayStartKey == "" {
		opts.ArrayStartKey = defaults.ArrayStartKey
	}

	startKeys := make(map[string]struct{}, len(opts.CaseStartKeys))
	for _, k := range opts.CaseStartKeys {
		startKeys[k] = struct{}{}
	}
	return &Normalizer{opts: opts, startKeys: startKeys}
}

// FieldKeys returns the fixed field keys every case carries
func (n *Normalizer) FieldKeys() []string {
	return append([]string(nil), n.opts.FieldKeys...)
}

var defaultNormalizer = New(DefaultOptions())

// NormalizeStructure normalizes an already-parsed JSON value with the default options
func NormalizeStructure(parsed any) (*model.ExtractionResult, error) {
	return defaultNormalizer.NormalizeStructure(parsed)
}

// Normalize runs the full raw text pipeline with the default options
func Normalize(raw string) (*Outcome, error) {
	return defaultNormalizer.Normalize(raw)
}

// Outcome is the result of normalizing one raw model response
type Outcome struct {
	Result   *model.ExtractionResult
	Shape    Shape
	Fragment string // the JSON text that was parsed
}

// Normalize extracts the JSON fragment from raw, classifies and normalizes it
func (n *Normalizer) Normalize(raw string) (*Outcome, error) {
	fragment, err := extractFragment(raw, n.opts.Lenient)
	if err != nil {
		return nil, err
	}
	parsed, err := decode(fragment)
	if err != nil {
		return nil, malformed(raw, "fragment is not valid JSON", err)
	}

	shape := ClassifyShape(parsed)
	result, err := n.normalize(parsed, shape, raw)
	if err != nil {
		return nil, err
	}
	if n.opts.ValidateSchema {
		if err := ValidateResult(result); err != nil {
			return nil, invalid(raw, "%v", err)
		}
	}
	return &Outcome{Result: result, Shape: shape, Fragment: fragment}, nil
}

// NormalizeStructure coerces a parsed JSON value into an ExtractionResult
func (n *Normalizer) NormalizeStructure(parsed any) (*model.ExtractionResult, error) {
	return n.normalize(parsed, ClassifyShape(parsed), compactJSON(parsed))
}

func (n *Normalizer) normalize(parsed any, shape Shape, raw string) (*model.ExtractionResult, error) {
	switch shape {
	case ShapeNested:
		return n.fromNested(parsed.(map[string]any), raw)
	case ShapeArray:
		return n.fromArray(parsed.([]any)), nil
	case ShapeFlat:
		return n.fromFlat(parsed.(map[string]any), raw)
	case ShapeSingle:
		return n.fromSingle(parsed.(map[string]any)), nil
	default:
		if _, ok := parsed.(map[string]any); ok {
			return nil, invalid(raw, "object has no case_results and no {value, confidence} fields")
		}
		return nil, invalid(raw, "expected a JSON object or array, got %s", kindOf(parsed))
	}
}

func (n *Normalizer) fromNested(m map[string]any, raw string) (*model.ExtractionResult, error) {
	var meta metadata
	for k, v := range m {
		meta.absorb(k, v)
	}

	items, ok := m[model.KeyCaseResults].([]any)
	if !ok {
		return nil, invalid(raw, "%s must be a list, got %s", model.KeyCaseResults, kindOf(m[model.KeyCaseResults]))
	}

	cases := make([]model.CaseRecord, 0, len(items))
	for i, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			return nil, invalid(raw, "%s[%d] must be an object, got %s", model.KeyCaseResults, i, kindOf(item))
		}
		cases = append(cases, n.buildCase(fields, &meta))
	}
	return meta.apply(&model.ExtractionResult{Cases: cases}), nil
}

func (n *Normalizer) fromArray(items []any) *model.ExtractionResult {
	var meta metadata
	cases := make([]model.CaseRecord, 0, len(items))
	for _, item := range items {
		fields, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if n.opts.RequireStartKey {
			if _, ok := fields[n.opts.ArrayStartKey]; !ok {
				for k, v := range fields {
					meta.absorb(k, v)
				}
				continue
			}
		}
		cases = append(cases, n.buildCase(fields, &meta))
	}
	return meta.apply(&model.ExtractionResult{Cases: cases})
}

func (n *Normalizer) fromFlat(m map[string]any, raw string) (*model.ExtractionResult, error) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var meta metadata
	acc := caseAccumulator{isStart: n.isCaseStart}
	for _, k := range keys {
		if meta.absorb(k, m[k]) {
			continue
		}
		acc.add(k, m[k])
	}

	groups := acc.finish()
	if len(groups) == 0 {
		return nil, invalid(raw, "flat object contains no case fields")
	}

	cases := make([]model.CaseRecord, 0, len(groups))
	for _, fields := range groups {
		cases = append(cases, n.buildCase(fields, &meta))
	}
	return meta.apply(&model.ExtractionResult{Cases: cases}), nil
}

// fromSingle keeps a mapping that mixes pairs with bare values as one case
func (n *Normalizer) fromSingle(m map[string]any) *model.ExtractionResult {
	var meta metadata
	rec := n.buildCase(m, &meta)
	return meta.apply(&model.ExtractionResult{Cases: []model.CaseRecord{rec}})
}

func (n *Normalizer) isCaseStart(key string) bool {
	_, ok := n.startKeys[key]
	return ok
}

// buildCase coerces every field and fills the fixed keys. Metadata keys go to meta.
func (n *Normalizer) buildCase(fields map[string]any, meta *metadata) model.CaseRecord {
	rec := make(model.CaseRecord, len(fields)+len(n.opts.FieldKeys))
	for k, v := range fields {
		if meta.absorb(k, v) {
			continue
		}
		rec[k] = toFieldValue(v)
	}
	for _, k := range n.opts.FieldKeys {
		if _, ok := rec[k]; !ok {
			rec[k] = model.EmptyField()
		}
	}
	return rec
}

// caseAccumulator partitions the sorted keys of a flat mapping into cases.
// A start key seen while the current case already holds fields closes that case.
type caseAccumulator struct {
	isStart func(string) bool
	current map[string]any
	cases   []map[string]any
}

func (a *caseAccumulator) add(key string, v any) {
	if a.isStart(key) && len(a.current) > 0 {
		a.flush()
	}
	if a.current == nil {
		a.current = make(map[string]any)
	}
	a.current[key] = v
}

func (a *caseAccumulator) flush() {
	if len(a.current) > 0 {
		a.cases = append(a.cases, a.current)
	}
	a.current = nil
}

func (a *caseAccumulator) finish() []map[string]any {
	a.flush()
	return a.cases
}

// metadata collects the response-level keys wherever they appear
type metadata struct {
	instruction *model.FieldValue
	explanation *model.FieldValue
}

// absorb records key if it is a metadata key and reports whether it was
func (m *metadata) absorb(key string, v any) bool {
	switch canonicalKey(key) {
	case model.KeyInstruction:
		mergeField(&m.instruction, toFieldValue(v))
		return true
	case model.KeyLowConfidenceExplanation:
		mergeField(&m.explanation, toFieldValue(v))
		return true
	}
	return false
}

func (m *metadata) apply(res *model.ExtractionResult) *model.ExtractionResult {
	res.Instruction = m.instruction
	res.LowConfidenceExplanation = m.explanation
	return res
}

func isMetadataKey(key string) bool {
	switch canonicalKey(key) {
	case model.KeyInstruction, model.KeyLowConfidenceExplanation:
		return true
	}
	return false
}

func canonicalKey(key string) string {
	return strings.ToLower(strings.TrimSpace(strings.ReplaceAll(key, "_", " ")))
}

// mergeField joins repeated metadata values, keeping the lowest confidence
func mergeField(dst **model.FieldValue, fv model.FieldValue) {
	if *dst == nil || (*dst).IsEmpty() {
		*dst = &fv
		return
	}
	if fv.IsEmpty() || fv.Value == (*dst).Value {
		return
	}
	merged := **dst
	merged.Value += "; " + fv.Value
	if fv.Confidence < merged.Confidence {
		merged.Confidence = fv.Confidence
	}
	*dst = &merged
}

func kindOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return "object"
	case []any:
		return "array"
	case string:
		return "string"
	case json.Number, float64:
		return "number"
	case bool:
		return "boolean"
	default:
		return fmt.Sprintf("%T", v)
	}
}
