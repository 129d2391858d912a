package score

import (
	"testing"

	"github.com/ppiankov/caseextract/internal/model"
)

func fv(value string, confidence int) model.FieldValue {
	return model.FieldValue{Value: value, Confidence: confidence}
}

func findSignal(r model.QualityReport, typ model.SignalType) *model.Signal {
	for i := range r.Signals {
		if r.Signals[i].Type == typ {
			return &r.Signals[i]
		}
	}
	return nil
}

func TestScorer_Calculate_Counts(t *testing.T) {
	scorer := NewScorer([]string{"0", "1", "2"})
	results := []model.Result{
		{DocumentID: "doc-1", Data: model.ExtractionResult{Cases: []model.CaseRecord{
			{"0": fv("A", 5), "1": fv("B", 4), "2": fv("", 1)},
			{"0": fv("A", 5), "1": fv("C", 2), "3A": fv("2", 5)},
		}}},
	}

	r := scorer.Calculate("job-1", 1, results, nil)

	if r.JobID != "job-1" || r.Documents != 1 {
		t.Errorf("unexpected identity: %+v", r)
	}
	if r.Cases != 2 {
		t.Errorf("expected 2 cases, got %d", r.Cases)
	}
	// "2" empty in case 1, absent in case 2
	if r.EmptyFields != 2 {
		t.Errorf("expected 2 empty fixed fields, got %d", r.EmptyFields)
	}
	if r.Fields != 5 {
		t.Errorf("expected 5 non-empty fields, got %d", r.Fields)
	}
	if want := 21.0 / 5.0; r.MeanConfidence != want {
		t.Errorf("expected mean confidence %.2f, got %.2f", want, r.MeanConfidence)
	}
	if len(r.LowConfidence) != 1 || r.LowConfidence[0].Key != "1" || r.LowConfidence[0].Case != 1 {
		t.Errorf("expected field 1 of case 1 flagged, got %+v", r.LowConfidence)
	}
}

func TestScorer_Calculate_NoCases(t *testing.T) {
	r := NewScorer(nil).Calculate("job-1", 2, nil, nil)

	if r.Level != "low" {
		t.Errorf("expected low level, got %s", r.Level)
	}
	sig := findSignal(r, model.SignalNoCases)
	if sig == nil || sig.Severity != model.SeverityCritical {
		t.Fatalf("expected critical no_cases signal, got %+v", r.Signals)
	}
	if len(r.Signals) != 1 {
		t.Errorf("expected only the no_cases signal, got %d", len(r.Signals))
	}
}

func TestScorer_Calculate_HighQuality(t *testing.T) {
	scorer := NewScorer([]string{"0", "1"})
	results := []model.Result{
		{DocumentID: "doc-1", Data: model.ExtractionResult{Cases: []model.CaseRecord{
			{"0": fv("A", 5), "1": fv("B", 5)},
		}}},
	}

	r := scorer.Calculate("job-1", 1, results, nil)

	if r.Level != "high" {
		t.Errorf("expected high level, got %s (signals %+v)", r.Level, r.Signals)
	}
	if sig := findSignal(r, model.SignalLowConfidence); sig == nil || sig.Severity != model.SeverityInfo {
		t.Errorf("expected info low_confidence signal, got %+v", sig)
	}
	if findSignal(r, model.SignalContinuationRequested) != nil || findSignal(r, model.SignalFormatViolation) != nil {
		t.Errorf("unexpected conditional signals: %+v", r.Signals)
	}
}

func TestScorer_Calculate_Continuation(t *testing.T) {
	results := []model.Result{
		{DocumentID: "doc-1", Data: model.ExtractionResult{
			Cases:       []model.CaseRecord{{"0": fv("A", 5)}},
			Instruction: &model.FieldValue{Value: "Request the next cases", Confidence: 5},
		}},
		{DocumentID: "doc-2", Data: model.ExtractionResult{
			Cases:       []model.CaseRecord{{"0": fv("B", 5)}},
			Instruction: &model.FieldValue{Value: "none", Confidence: 5},
		}},
	}

	r := NewScorer([]string{"0"}).Calculate("job-1", 2, results, nil)

	sig := findSignal(r, model.SignalContinuationRequested)
	if sig == nil {
		t.Fatalf("expected continuation signal, got %+v", r.Signals)
	}
	docs, _ := sig.Data["documents"].([]string)
	if len(docs) != 1 || docs[0] != "doc-1" {
		t.Errorf("expected doc-1 only, got %v", sig.Data["documents"])
	}
	if r.Level != "medium" {
		t.Errorf("expected warning to lower level to medium, got %s", r.Level)
	}
}

func TestScorer_Calculate_FormatViolations(t *testing.T) {
	results := []model.Result{
		{DocumentID: "doc-1", Data: model.ExtractionResult{Cases: []model.CaseRecord{{"0": fv("A", 5)}}}},
	}
	violations := []model.FieldViolation{
		{FieldRef: model.FieldRef{DocumentID: "doc-1", Key: "5"}, Rule: "gender"},
		{FieldRef: model.FieldRef{DocumentID: "doc-1", Key: "14"}, Rule: "status"},
		{FieldRef: model.FieldRef{DocumentID: "doc-1", Key: "11"}, Rule: "gender"},
	}

	r := NewScorer([]string{"0"}).Calculate("job-1", 1, results, violations)

	sig := findSignal(r, model.SignalFormatViolation)
	if sig == nil {
		t.Fatalf("expected format_violation signal, got %+v", r.Signals)
	}
	byRule, _ := sig.Data["by_rule"].(map[string]int)
	if byRule["gender"] != 2 || byRule["status"] != 1 {
		t.Errorf("unexpected per-rule counts: %v", byRule)
	}
	if len(r.Violations) != 3 {
		t.Errorf("expected violations carried into report, got %d", len(r.Violations))
	}
}

func TestScorer_Calculate_MissingFieldsSeverity(t *testing.T) {
	tests := []struct {
		name  string
		c     model.CaseRecord
		want  model.SignalSeverity
		level string
	}{
		{"complete", model.CaseRecord{"0": fv("a", 5), "1": fv("b", 5), "2": fv("c", 5), "3": fv("d", 5)}, model.SeverityInfo, "high"},
		{"one missing", model.CaseRecord{"0": fv("a", 5), "1": fv("b", 5), "2": fv("c", 5)}, model.SeverityWarning, "medium"},
		{"mostly missing", model.CaseRecord{"0": fv("a", 5)}, model.SeverityCritical, "low"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			results := []model.Result{{DocumentID: "d", Data: model.ExtractionResult{Cases: []model.CaseRecord{tt.c}}}}
			r := NewScorer([]string{"0", "1", "2", "3"}).Calculate("job", 1, results, nil)

			sig := findSignal(r, model.SignalMissingFields)
			if sig == nil || sig.Severity != tt.want {
				t.Errorf("expected %s missing_fields signal, got %+v", tt.want, sig)
			}
			if r.Level != tt.level {
				t.Errorf("expected level %s, got %s", tt.level, r.Level)
			}
		})
	}
}

func TestScorer_LowConfidenceCritical(t *testing.T) {
	results := []model.Result{{DocumentID: "d", Data: model.ExtractionResult{Cases: []model.CaseRecord{
		{"0": fv("a", 1), "1": fv("b", 2), "2": fv("c", 5)},
	}}}}

	r := NewScorer([]string{"0", "1", "2"}).Calculate("job", 1, results, nil)

	if sig := findSignal(r, model.SignalLowConfidence); sig == nil || sig.Severity != model.SeverityCritical {
		t.Errorf("expected critical low_confidence signal, got %+v", sig)
	}
	if r.Level != "low" {
		t.Errorf("expected low level, got %s", r.Level)
	}
}
