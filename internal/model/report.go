package model

// QualityReport summarizes how trustworthy the extracted cases of a job are.
// It never alters extracted values.
type QualityReport struct {
	JobID          string           `json:"job_id"`
	Documents      int              `json:"documents"`
	Cases          int              `json:"cases"`
	Fields         int              `json:"fields"`          // Non-empty fields across all cases
	EmptyFields    int              `json:"empty_fields"`    // Fixed fields the model left blank
	MeanConfidence float64          `json:"mean_confidence"` // Over non-empty fields only
	LowConfidence  []FieldRef       `json:"low_confidence,omitempty"`
	Violations     []FieldViolation `json:"violations,omitempty"`
	Signals        []Signal         `json:"signals"`
	Level          string           `json:"level"` // "low", "medium", "high"
}

// FieldRef identifies one field of one case
type FieldRef struct {
	DocumentID string `json:"document_id"`
	Case       int    `json:"case"` // 0-based within the document's result
	Key        string `json:"key"`
	Value      string `json:"value,omitempty"`
	Confidence int    `json:"confidence"`
}

// FieldViolation is a field whose value does not match the expected format
type FieldViolation struct {
	FieldRef
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Signal represents a diagnostic signal with transparent data
type Signal struct {
	Type        SignalType             `json:"type"`
	Severity    SignalSeverity         `json:"severity"`
	Description string                 `json:"description"`
	Data        map[string]interface{} `json:"data,omitempty"`
}

// SignalType classifies the type of diagnostic signal
type SignalType string

const (
	SignalLowConfidence         SignalType = "low_confidence"         // Fields reported with confidence <= 2
	SignalMissingFields         SignalType = "missing_fields"         // Fixed fields left empty
	SignalContinuationRequested SignalType = "continuation_requested" // Model asked for the next batch of cases
	SignalFormatViolation       SignalType = "format_violation"       // Values not matching the field format
	SignalNoCases               SignalType = "no_cases"               // Nothing extracted
)

// SignalSeverity indicates the importance of the signal
type SignalSeverity string

const (
	SeverityInfo     SignalSeverity = "info"
	SeverityWarning  SignalSeverity = "warning"
	SeverityCritical SignalSeverity = "critical"
)
