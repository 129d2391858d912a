package validate

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ppiankov/caseextract/internal/model"
)

// Rule checks the format of one field. Check returns "" when the value is acceptable.
type Rule struct {
	Name  string
	Check func(value string) string
}

// Validator checks extracted values against per-field format rules.
// It reports violations and never alters values.
type Validator struct {
	rules map[string]Rule
}

var (
	doiPattern     = regexp.MustCompile(`^10\.\d{4,9}/\S+$`)
	datePattern    = regexp.MustCompile(`^(\d{4})(?:-(\d{2}))?$`)
	leadingNumber  = regexp.MustCompile(`^\s*(\d+(?:\.\d+)?)`)
	doiURLPrefixes = []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "doi:"}
)

// NewValidator creates a validator with the rules for the default prompt's fields
func NewValidator() *Validator {
	yesNo := Rule{Name: "yes_no", Check: oneOf("y", "n", "yes", "no")}
	return &Validator{rules: map[string]Rule{
		"1":  {Name: "doi", Check: checkDOI},
		"3":  {Name: "year", Check: checkYear},
		"3A": {Name: "case_number", Check: checkPositiveInt},
		"3B": {Name: "presentation_date", Check: checkDate},
		"4":  {Name: "adult_age", Check: checkAge},
		"5":  {Name: "gender", Check: oneOf("m", "f")},
		"6":  {Name: "duration_months", Check: checkNumber},
		"7":  {Name: "location", Check: oneOf("cranial", "spinal")},
		"8":  {Name: "simpson_grade", Check: oneOf("i", "ii", "iii", "iv", "v", "1", "2", "3", "4", "5")},
		"9":  {Name: "who_grade", Check: checkWHOGrade},
		"11": yesNo,
		"13": yesNo,
		"14": {Name: "status", Check: oneOf("a", "d")},
		"15": yesNo,
		"16": yesNo,
	}}
}

// WithRule adds or replaces the rule for key
func (v *Validator) WithRule(key string, r Rule) *Validator {
	v.rules[key] = r
	return v
}

// Validate checks every case of every result
func (v *Validator) Validate(results []model.Result) []model.FieldViolation {
	var out []model.FieldViolation
	for _, res := range results {
		for i, c := range res.Data.Cases {
			out = append(out, v.ValidateCase(res.DocumentID, i, c)...)
		}
	}
	return out
}

// ValidateCase checks one case; empty values are not checked
func (v *Validator) ValidateCase(documentID string, index int, c model.CaseRecord) []model.FieldViolation {
	keys := make([]string, 0, len(c))
	for k := range c {
		if _, ok := v.rules[k]; ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var out []model.FieldViolation
	for _, k := range keys {
		fv := c[k]
		if fv.IsEmpty() {
			continue
		}
		rule := v.rules[k]
		if msg := rule.Check(strings.TrimSpace(fv.Value)); msg != "" {
			out = append(out, model.FieldViolation{
				FieldRef: model.FieldRef{
					DocumentID: documentID,
					Case:       index,
					Key:        k,
					Value:      fv.Value,
					Confidence: fv.Confidence,
				},
				Rule:    rule.Name,
				Message: msg,
			})
		}
	}
	return out
}

func oneOf(allowed ...string) func(string) string {
	return func(s string) string {
		l := strings.ToLower(s)
		for _, a := range allowed {
			if l == a {
				return ""
			}
		}
		return fmt.Sprintf("expected one of %s", strings.ToUpper(strings.Join(allowed, "/")))
	}
}

func checkDOI(s string) string {
	for _, p := range doiURLPrefixes {
		if len(s) > len(p) && strings.EqualFold(s[:len(p)], p) {
			s = s[len(p):]
			break
		}
	}
	if !doiPattern.MatchString(strings.TrimSpace(s)) {
		return "expected a DOI like 10.1234/abc"
	}
	return ""
}

func checkYear(s string) string {
	y, err := strconv.Atoi(s)
	if err != nil || len(s) != 4 {
		return "expected a four-digit year"
	}
	if y < 1900 || y > time.Now().Year()+1 {
		return fmt.Sprintf("year %d out of range", y)
	}
	return ""
}

func checkDate(s string) string {
	m := datePattern.FindStringSubmatch(s)
	if m == nil {
		return "expected YYYY-MM or YYYY"
	}
	if msg := checkYear(m[1]); msg != "" {
		return msg
	}
	if m[2] != "" {
		if month, _ := strconv.Atoi(m[2]); month < 1 || month > 12 {
			return fmt.Sprintf("month %s out of range", m[2])
		}
	}
	return ""
}

func checkPositiveInt(s string) string {
	if n, err := strconv.Atoi(s); err != nil || n < 1 {
		return "expected a positive whole number"
	}
	return ""
}

func checkNumber(s string) string {
	if !leadingNumber.MatchString(s) {
		return "expected a number"
	}
	return ""
}

func checkAge(s string) string {
	m := leadingNumber.FindStringSubmatch(s)
	if m == nil {
		return "expected an age in years"
	}
	age, _ := strconv.ParseFloat(m[1], 64)
	if age < 18 || age > 120 {
		return fmt.Sprintf("age %s outside adult range 18-120", m[1])
	}
	return ""
}

func checkWHOGrade(s string) string {
	l := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(strings.ToLower(s), "grade")))
	switch l {
	case "i", "ii", "iii", "1", "2", "3":
		return ""
	}
	return "expected WHO grade I, II or III"
}
