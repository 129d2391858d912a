package normalize

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ppiankov/caseextract/internal/model"
)

func mustDecode(t *testing.T, s string) any {
	t.Helper()
	v, err := decode(s)
	if err != nil {
		t.Fatalf("decode %q: %v", s, err)
	}
	return v
}

// smallNormalizer keeps fixed keys short so expected cases stay readable
func smallNormalizer() *Normalizer {
	return New(Options{
		FieldKeys:       []string{"0", "1"},
		CaseStartKeys:   []string{"0", "3A", "Article Name"},
		ArrayStartKey:   "0",
		RequireStartKey: true,
	})
}

func fv(value string, confidence int) model.FieldValue {
	return model.FieldValue{Value: value, Confidence: confidence}
}

func TestNormalizeStructure_NestedIdentity(t *testing.T) {
	canonical := &model.ExtractionResult{
		Cases: []model.CaseRecord{
			{"0": fv("Smith 2020", 5), "1": fv("10.1/x", 4)},
			{"0": fv("Doe 2021", 3), "1": fv("", 1), "3A": fv("2", 2)},
		},
		LowConfidenceExplanation: &model.FieldValue{Value: "age unclear", Confidence: 2},
	}
	b, err := json.Marshal(canonical)
	if err != nil {
		t.Fatal(err)
	}

	got, err := smallNormalizer().NormalizeStructure(mustDecode(t, string(b)))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if diff := cmp.Diff(canonical, got); diff != "" {
		t.Errorf("nested input not returned unchanged (-want +got):\n%s", diff)
	}
}

func TestNormalizeStructure_ArrayFilter(t *testing.T) {
	in := `[
		{"0": {"value": "A", "confidence": 4}, "1": "doi-a"},
		{"1": "no start key"},
		"stray string",
		{"0": "B"},
		{"low confidence explanation": {"value": "gender guessed", "confidence": 2}}
	]`

	got, err := smallNormalizer().NormalizeStructure(mustDecode(t, in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &model.ExtractionResult{
		Cases: []model.CaseRecord{
			{"0": fv("A", 4), "1": fv("doi-a", 1)},
			{"0": fv("B", 1), "1": fv("", 1)},
		},
		LowConfidenceExplanation: &model.FieldValue{Value: "gender guessed", Confidence: 2},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
}

func TestNormalizeStructure_ArrayWithoutFilter(t *testing.T) {
	n := New(Options{FieldKeys: []string{"0"}, RequireStartKey: false})
	got, err := n.NormalizeStructure(mustDecode(t, `[{"1": "x"}, {"0": "y"}, 5]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CaseCount() != 2 {
		t.Errorf("expected 2 cases, got %d", got.CaseCount())
	}
}

func TestNormalizeStructure_ArrayMayBeEmpty(t *testing.T) {
	got, err := smallNormalizer().NormalizeStructure(mustDecode(t, `[{"1": "x"}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CaseCount() != 0 {
		t.Errorf("expected 0 cases, got %d", got.CaseCount())
	}
	if got.Cases == nil {
		t.Error("cases must be an empty list, not nil")
	}
}

func TestNormalizeStructure_FlatTwoCases(t *testing.T) {
	in := `{
		"0": {"value": "Smith 2020", "confidence": 5},
		"1": {"value": "10.1/x", "confidence": 2},
		"3A": {"value": "2", "confidence": 4},
		"4": {"value": "54", "confidence": 3}
	}`

	got, err := smallNormalizer().NormalizeStructure(mustDecode(t, in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &model.ExtractionResult{
		Cases: []model.CaseRecord{
			{"0": fv("Smith 2020", 5), "1": fv("10.1/x", 2)},
			{"3A": fv("2", 4), "4": fv("54", 3), "0": fv("", 1), "1": fv("", 1)},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected partition (-want +got):\n%s", diff)
	}
}

func TestNormalizeStructure_MixedMappingIsOneCase(t *testing.T) {
	in := `{
		"0": {"value": "Smith 2020", "confidence": 5},
		"1": "10.1/x",
		"3A": {"value": "2", "confidence": 4},
		"4": {"value": "54", "confidence": 3}
	}`

	got, err := smallNormalizer().NormalizeStructure(mustDecode(t, in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &model.ExtractionResult{
		Cases: []model.CaseRecord{
			{"0": fv("Smith 2020", 5), "1": fv("10.1/x", 1), "3A": fv("2", 4), "4": fv("54", 3)},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("mixed mapping must not be split (-want +got):\n%s", diff)
	}
}

func TestNormalizeStructure_FlatArticleNameStartsCase(t *testing.T) {
	in := `{
		"0": {"value": "a", "confidence": 5},
		"2": {"value": "b", "confidence": 5},
		"Article Name": {"value": "c", "confidence": 4},
		"DOI": {"value": "d", "confidence": 4}
	}`
	got, err := smallNormalizer().NormalizeStructure(mustDecode(t, in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.CaseCount() != 2 {
		t.Fatalf("expected 2 cases, got %d", got.CaseCount())
	}
	if got.Cases[1]["Article Name"].Value != "c" || got.Cases[1]["DOI"].Value != "d" {
		t.Errorf("unexpected second case: %+v", got.Cases[1])
	}
}

func TestNormalizeStructure_FlatMetadata(t *testing.T) {
	in := `{"0": {"value": "x", "confidence": 5}, "low confidence explanation": "age unclear"}`

	got, err := smallNormalizer().NormalizeStructure(mustDecode(t, in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := &model.ExtractionResult{
		Cases:                    []model.CaseRecord{{"0": fv("x", 5), "1": fv("", 1)}},
		LowConfidenceExplanation: &model.FieldValue{Value: "age unclear", Confidence: 1},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected result (-want +got):\n%s", diff)
	}
	for _, c := range got.Cases {
		if _, ok := c[model.KeyLowConfidenceExplanation]; ok {
			t.Error("metadata key leaked into a case")
		}
	}
}

func TestNormalizeStructure_MetadataOnlyFlatFails(t *testing.T) {
	_, err := smallNormalizer().NormalizeStructure(mustDecode(t, `{"instruction": "Request the next cases"}`))
	if !errors.Is(err, ErrInvalidStructure) {
		t.Fatalf("expected ErrInvalidStructure, got %v", err)
	}
}

func TestNormalizeStructure_InvalidInputs(t *testing.T) {
	tests := []struct {
		name string
		in   string
	}{
		{"string", `"just text"`},
		{"number", `42`},
		{"null", `null`},
		{"empty object", `{}`},
		{"error object", `{"error": {"code": 429, "message": "quota exceeded"}}`},
		{"bare values", `{"foo": "bar"}`},
		{"refusal status", `{"status": "refused"}`},
		{"case_results not a list", `{"case_results": {"0": "x"}}`},
		{"case_results item not an object", `{"case_results": ["x"]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := smallNormalizer().NormalizeStructure(mustDecode(t, tt.in))
			if !errors.Is(err, ErrInvalidStructure) {
				t.Errorf("expected ErrInvalidStructure, got %v", err)
			}
		})
	}
}

func TestNormalizeStructure_Coercion(t *testing.T) {
	in := `{"case_results": [{
		"0": 12.50,
		"1": true,
		"2": null,
		"3": {"value": 7, "confidence": "4"},
		"4": {"value": "x", "confidence": 9},
		"5": {"value": "y", "confidence": 0},
		"6": {"value": "z"},
		"7": ["a", "b"],
		"8": {"other": 1}
	}]}`

	got, err := smallNormalizer().NormalizeStructure(mustDecode(t, in))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := model.CaseRecord{
		"0": fv("12.50", 1),
		"1": fv("true", 1),
		"2": fv("", 1),
		"3": fv("7", 4),
		"4": fv("x", 5),
		"5": fv("y", 1),
		"6": fv("z", 1),
		"7": fv("a, b", 1),
		"8": fv(`{"other":1}`, 1),
	}
	if diff := cmp.Diff(want, got.Cases[0]); diff != "" {
		t.Errorf("unexpected coercion (-want +got):\n%s", diff)
	}
}

func TestNormalizeStructure_FixedKeysFilled(t *testing.T) {
	got, err := NormalizeStructure(mustDecode(t, `[{"0": "only"}]`))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, k := range model.DefaultFieldKeys() {
		v, ok := got.Cases[0][k]
		if !ok {
			t.Errorf("fixed key %q missing", k)
			continue
		}
		if k != "0" && v != model.EmptyField() {
			t.Errorf("key %q: expected empty field, got %+v", k, v)
		}
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"```json\n[{\"0\": \"A\", \"4\": {\"value\": 54, \"confidence\": 3}}, {\"0\": \"B\"}]\n```",
		`{"0": {"value": "a", "confidence": 5}, "1": {"value": "b", "confidence": 4}, "3A": {"value": "c", "confidence": 3}, "instruction": "Request the next cases"}`,
		`{"0": {"value": "a", "confidence": 5}, "1": "b", "3A": "c"}`,
		`{"case_results": [{"0": {"value": "x", "confidence": 2}}]}`,
	}

	n := New(DefaultOptions())
	for _, in := range inputs {
		first, err := n.Normalize(in)
		if err != nil {
			t.Fatalf("normalize %q: %v", in, err)
		}
		b, err := json.Marshal(first.Result)
		if err != nil {
			t.Fatal(err)
		}
		second, err := n.Normalize(string(b))
		if err != nil {
			t.Fatalf("re-normalize: %v", err)
		}
		if second.Shape != ShapeNested {
			t.Errorf("serialized result should classify as nested, got %s", second.Shape)
		}
		if diff := cmp.Diff(first.Result, second.Result); diff != "" {
			t.Errorf("not idempotent for %q (-first +second):\n%s", in, diff)
		}
	}
}

func TestNormalize_ReportsShape(t *testing.T) {
	tests := []struct {
		in   string
		want Shape
	}{
		{`{"case_results": []}`, ShapeNested},
		{`[{"0": "x"}]`, ShapeArray},
		{`{"0": {"value": "x", "confidence": 4}}`, ShapeFlat},
		{`{"0": {"value": "x", "confidence": 4}, "1": "y"}`, ShapeSingle},
	}
	for _, tt := range tests {
		out, err := Normalize(tt.in)
		if err != nil {
			t.Fatalf("normalize %q: %v", tt.in, err)
		}
		if out.Shape != tt.want {
			t.Errorf("%q: expected %s, got %s", tt.in, tt.want, out.Shape)
		}
	}
}

func TestNormalize_StructureErrorCarriesRaw(t *testing.T) {
	raw := "The answer is {\"instruction\": \"none\"}"
	_, err := Normalize(raw)
	if !errors.Is(err, ErrInvalidStructure) {
		t.Fatalf("expected ErrInvalidStructure, got %v", err)
	}
	if RawPrefix(err) != raw {
		t.Errorf("expected raw text %q, got %q", raw, RawPrefix(err))
	}
}

func TestNormalize_ResponsesWithoutCaseFieldsFail(t *testing.T) {
	inputs := []string{
		`{"error": {"code": 429, "message": "quota exceeded"}}`,
		`{"foo": "bar"}`,
		`Sorry, I cannot help with that. {"status": "refused"}`,
	}
	for _, in := range inputs {
		out, err := Normalize(in)
		if !errors.Is(err, ErrInvalidStructure) {
			t.Errorf("%q: expected ErrInvalidStructure, got %v (%+v)", in, err, out)
			continue
		}
		if RawPrefix(err) != in {
			t.Errorf("%q: expected raw text on the error, got %q", in, RawPrefix(err))
		}
	}
}

func TestNormalize_MultipleExplanationsMerged(t *testing.T) {
	in := `[
		{"0": "a", "low confidence explanation": {"value": "age", "confidence": 3}},
		{"0": "b", "low confidence explanation": {"value": "sex", "confidence": 2}}
	]`
	out, err := Normalize(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := &model.FieldValue{Value: "age; sex", Confidence: 2}
	if diff := cmp.Diff(want, out.Result.LowConfidenceExplanation); diff != "" {
		t.Errorf("unexpected explanation (-want +got):\n%s", diff)
	}
}

func TestNormalizer_ConcurrentUse(t *testing.T) {
	n := New(DefaultOptions())
	in := `{"0": {"value": "a", "confidence": 5}, "3A": {"value": "b", "confidence": 5}, "Article Name": {"value": "c", "confidence": 5}}`

	var wg sync.WaitGroup
	errs := make(chan error, 16)
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := n.Normalize(in)
			if err != nil {
				errs <- err
				return
			}
			if out.Result.CaseCount() != 3 {
				errs <- errors.New("unexpected case count")
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}
}
