package score

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ppiankov/caseextract/internal/model"
)

// continuationPhrase is what the default prompt asks the model to say when it withheld cases
const continuationPhrase = "next case"

// Scorer summarizes how trustworthy extracted cases are and generates signals
type Scorer struct {
	fieldKeys []string
}

// NewScorer creates a scorer; fieldKeys are the fixed keys every case should fill
func NewScorer(fieldKeys []string) *Scorer {
	if len(fieldKeys) == 0 {
		fieldKeys = model.DefaultFieldKeys()
	}
	return &Scorer{fieldKeys: fieldKeys}
}

// Calculate builds the quality report of one job
func (s *Scorer) Calculate(jobID string, documents int, results []model.Result, violations []model.FieldViolation) model.QualityReport {
	report := model.QualityReport{
		JobID:      jobID,
		Documents:  documents,
		Violations: violations,
	}

	var confidenceSum int
	for _, res := range results {
		for i, c := range res.Data.Cases {
			report.Cases++
			for _, k := range s.fieldKeys {
				if c[k].IsEmpty() {
					report.EmptyFields++
				}
			}
			for _, k := range sortedKeys(c) {
				fv := c[k]
				if fv.IsEmpty() {
					continue
				}
				report.Fields++
				confidenceSum += fv.Confidence
				if fv.IsLowConfidence() {
					report.LowConfidence = append(report.LowConfidence, model.FieldRef{
						DocumentID: res.DocumentID,
						Case:       i,
						Key:        k,
						Value:      fv.Value,
						Confidence: fv.Confidence,
					})
				}
			}
		}
	}
	if report.Fields > 0 {
		report.MeanConfidence = float64(confidenceSum) / float64(report.Fields)
	}

	if report.Cases == 0 {
		report.Signals = append(report.Signals, model.Signal{
			Type:        model.SignalNoCases,
			Severity:    model.SeverityCritical,
			Description: "No cases extracted",
			Data: map[string]interface{}{
				"documents": documents,
				"results":   len(results),
			},
		})
		report.Level = "low"
		return report
	}

	report.Signals = append(report.Signals,
		s.lowConfidenceSignal(report),
		s.missingFieldsSignal(report),
	)
	if sig, ok := continuationSignal(results); ok {
		report.Signals = append(report.Signals, sig)
	}
	if len(violations) > 0 {
		report.Signals = append(report.Signals, formatSignal(violations))
	}

	report.Level = determineLevel(report)
	return report
}

func (s *Scorer) lowConfidenceSignal(r model.QualityReport) model.Signal {
	ratio := float64(len(r.LowConfidence)) / float64(max(r.Fields, 1))

	severity := model.SeverityInfo
	if ratio > 0.25 {
		severity = model.SeverityCritical
	} else if len(r.LowConfidence) > 0 {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalLowConfidence,
		Severity:    severity,
		Description: fmt.Sprintf("%d of %d fields reported with confidence <= %d", len(r.LowConfidence), r.Fields, model.LowConfidence),
		Data: map[string]interface{}{
			"low_confidence":  len(r.LowConfidence),
			"fields":          r.Fields,
			"ratio":           ratio,
			"mean_confidence": r.MeanConfidence,
			"formula":         "low_confidence_fields / non_empty_fields",
		},
	}
}

func (s *Scorer) missingFieldsSignal(r model.QualityReport) model.Signal {
	expected := r.Cases * len(s.fieldKeys)
	ratio := float64(r.EmptyFields) / float64(max(expected, 1))

	severity := model.SeverityInfo
	if ratio > 0.5 {
		severity = model.SeverityCritical
	} else if ratio > 0.2 {
		severity = model.SeverityWarning
	}

	return model.Signal{
		Type:        model.SignalMissingFields,
		Severity:    severity,
		Description: fmt.Sprintf("Empty fixed fields: %d/%d (%.0f%%)", r.EmptyFields, expected, ratio*100),
		Data: map[string]interface{}{
			"empty":    r.EmptyFields,
			"expected": expected,
			"ratio":    ratio,
			"formula":  "empty_fixed_fields / (cases * fixed_keys)",
		},
	}
}

// continuationSignal reports documents whose response withheld further cases
func continuationSignal(results []model.Result) (model.Signal, bool) {
	var docs []string
	for _, res := range results {
		inst := res.Data.Instruction
		if inst != nil && strings.Contains(strings.ToLower(inst.Value), continuationPhrase) {
			docs = append(docs, res.DocumentID)
		}
	}
	if len(docs) == 0 {
		return model.Signal{}, false
	}
	return model.Signal{
		Type:        model.SignalContinuationRequested,
		Severity:    model.SeverityWarning,
		Description: fmt.Sprintf("Model withheld further cases in %d document(s); re-run with a follow-up prompt", len(docs)),
		Data: map[string]interface{}{
			"documents": docs,
		},
	}, true
}

func formatSignal(violations []model.FieldViolation) model.Signal {
	byRule := make(map[string]int)
	for _, v := range violations {
		byRule[v.Rule]++
	}
	return model.Signal{
		Type:        model.SignalFormatViolation,
		Severity:    model.SeverityWarning,
		Description: fmt.Sprintf("%d field(s) do not match the expected format", len(violations)),
		Data: map[string]interface{}{
			"violations": len(violations),
			"by_rule":    byRule,
		},
	}
}

// determineLevel maps mean confidence and signal severities to low/medium/high
func determineLevel(r model.QualityReport) string {
	worst := model.SeverityInfo
	for _, sig := range r.Signals {
		switch sig.Severity {
		case model.SeverityCritical:
			worst = model.SeverityCritical
		case model.SeverityWarning:
			if worst != model.SeverityCritical {
				worst = model.SeverityWarning
			}
		}
	}

	switch {
	case worst == model.SeverityCritical || r.MeanConfidence < 3:
		return "low"
	case worst == model.SeverityWarning || r.MeanConfidence < 4:
		return "medium"
	default:
		return "high"
	}
}

func sortedKeys(c model.CaseRecord) []string {
	keys := make([]string, 0, len(c))
	for k := range c {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
