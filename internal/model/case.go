package model

// Metadata keys the model may emit next to case fields.
// They describe the whole response and never belong to a case.
const (
	KeyCaseResults              = "case_results"
	KeyInstruction              = "instruction"
	KeyLowConfidenceExplanation = "low confidence explanation"
)

// Confidence bounds for a FieldValue
const (
	MinConfidence = 1
	MaxConfidence = 5

	// LowConfidence is the highest confidence still flagged for review
	LowConfidence = 2
)

// FieldValue is one extracted field with the model's self-reported confidence (1-5)
type FieldValue struct {
	Value      string `json:"value"`
	Confidence int    `json:"confidence"`
}

// EmptyField is the placeholder used for fields the model did not report
func EmptyField() FieldValue {
	return FieldValue{Value: "", Confidence: MinConfidence}
}

// IsEmpty reports whether the field carries no information
func (f FieldValue) IsEmpty() bool {
	return f.Value == ""
}

// IsLowConfidence reports whether a non-empty field needs review
func (f FieldValue) IsLowConfidence() bool {
	return !f.IsEmpty() && f.Confidence <= LowConfidence
}

// CaseRecord maps a field key (e.g. "0", "3A") to its value
type CaseRecord map[string]FieldValue

// ExtractionResult is the canonical normalized form of one model response
type ExtractionResult struct {
	Cases                    []CaseRecord `json:"case_results"`
	Instruction              *FieldValue  `json:"instruction,omitempty"`
	LowConfidenceExplanation *FieldValue  `json:"low confidence explanation,omitempty"`
}

// CaseCount returns the number of cases in the result
func (r *ExtractionResult) CaseCount() int {
	if r == nil {
		return 0
	}
	return len(r.Cases)
}
