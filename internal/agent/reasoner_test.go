package agent_test

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genesilico/trf-intake/constants"
	"github.com/genesilico/trf-intake/internal/agent"
	"github.com/genesilico/trf-intake/internal/common"
	"github.com/genesilico/trf-intake/internal/llm"
	"github.com/genesilico/trf-intake/internal/schema"
	"github.com/genesilico/trf-intake/internal/trf"
	"github.com/genesilico/trf-intake/internal/validate"
)

// scriptedInferencer answers per field name found in the system prompt.
type scriptedInferencer struct {
	mu      sync.Mutex
	answers map[string]string // field name -> content
	errFor  map[string]error
	calls   []string
}

func (s *scriptedInferencer) Infer(_ context.Context, req llm.Request) (llm.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for name, err := range s.errFor {
		if strings.Contains(req.System, "Field: "+name+"\n") {
			s.calls = append(s.calls, name)
			return llm.Response{}, err
		}
	}
	for name, content := range s.answers {
		if strings.Contains(req.System, "Field: "+name+"\n") {
			s.calls = append(s.calls, name)
			return llm.Response{Content: content}, nil
		}
	}
	return llm.Response{Content: "VALUE: Not found\nCONFIDENCE: 0.1\nREASONING: nothing in the text"}, nil
}

func answer(value string, conf float64, reasoning string) string {
	return fmt.Sprintf("VALUE: %s\nCONFIDENCE: %.2f\nREASONING: %s", value, conf, reasoning)
}

func testConfig() common.AgentConfig {
	return common.AgentConfig{ConfidenceThreshold: 0.6, MaxParallel: 4, MaxFields: 10}
}

func loadSchema(t *testing.T) *schema.Schema {
	t.Helper()
	sch, err := schema.Load()
	require.NoError(t, err)
	return sch
}

func recordWith(fields ...trf.ExtractedField) *trf.CanonicalRecord {
	rec := trf.NewCanonicalRecord(uuid.New())
	for _, f := range fields {
		rec.Fields[f.Name] = f
	}
	return rec
}

func TestSuggestTargetsViolationsFirst(t *testing.T) {
	sch := loadSchema(t)
	rec := recordWith(
		trf.ExtractedField{Name: "patientInformation.gender", Value: "Femle", Confidence: 0.9, Source: "doc-a"},
		trf.ExtractedField{Name: "patientID", Value: "P-1", Confidence: 0.3, Source: "doc-a"},
	)
	violations := []validate.Violation{
		{FieldName: "patientInformation.gender", Kind: constants.ViolationInvalidEnum, Detail: "bad enum"},
		{FieldName: "patientInformation.dob", Kind: constants.ViolationMissingRequired, Detail: "absent"},
	}
	inf := &scriptedInferencer{answers: map[string]string{
		"patientInformation.dob":    answer("1985-04-12", 0.85, "printed as DOB"),
		"patientInformation.gender": answer("Female", 0.9, "checkbox next to F"),
		"patientID":                 answer("P-1001", 0.8, "header shows Patient ID"),
	}}
	r := agent.NewReasoner(sch, inf, testConfig(), slog.Default())

	suggestions, err := r.Suggest(context.Background(), rec, violations, "raw text")
	require.NoError(t, err)
	require.Len(t, suggestions, 3)

	// missing-required outranks invalid-enum; the low-confidence field trails
	assert.Equal(t, "patientInformation.dob", suggestions[0].FieldName)
	assert.Equal(t, "patientInformation.gender", suggestions[1].FieldName)
	assert.Equal(t, "patientID", suggestions[2].FieldName)
	assert.Equal(t, "1985-04-12", suggestions[0].ProposedValue)
	assert.Equal(t, 0.85, suggestions[0].Confidence)
	assert.NotEmpty(t, suggestions[0].Rationale)
}

func TestSuggestOneFailureDoesNotDiscardOthers(t *testing.T) {
	sch := loadSchema(t)
	rec := trf.NewCanonicalRecord(uuid.New())
	violations := []validate.Violation{
		{FieldName: "patientID", Kind: constants.ViolationMissingRequired},
		{FieldName: "patientInformation.dob", Kind: constants.ViolationMissingRequired},
		{FieldName: "clinicalSummary.primaryDiagnosis", Kind: constants.ViolationMissingRequired},
	}
	inf := &scriptedInferencer{
		answers: map[string]string{
			"patientID":                        answer("P-1001", 0.8, "header"),
			"clinicalSummary.primaryDiagnosis": answer("IDC", 0.75, "diagnosis line"),
		},
		errFor: map[string]error{
			"patientInformation.dob": common.WrapError(common.ErrInferenceUnavailable, "timeout"),
		},
	}
	r := agent.NewReasoner(sch, inf, testConfig(), slog.Default())

	suggestions, err := r.Suggest(context.Background(), rec, violations, "raw text")
	require.NoError(t, err)
	require.Len(t, suggestions, 2)
	names := []string{suggestions[0].FieldName, suggestions[1].FieldName}
	assert.Contains(t, names, "patientID")
	assert.Contains(t, names, "clinicalSummary.primaryDiagnosis")
}

func TestSuggestDiscardsInvalidProposals(t *testing.T) {
	sch := loadSchema(t)
	rec := trf.NewCanonicalRecord(uuid.New())
	violations := []validate.Violation{
		{FieldName: "patientInformation.gender", Kind: constants.ViolationMissingRequired},
	}
	inf := &scriptedInferencer{answers: map[string]string{
		"patientInformation.gender": answer("Probably male", 0.9, "guessing"),
	}}
	r := agent.NewReasoner(sch, inf, testConfig(), slog.Default())

	suggestions, err := r.Suggest(context.Background(), rec, violations, "raw text")
	require.NoError(t, err)
	assert.Empty(t, suggestions, "a proposal violating the field's own constraints is discarded")
}

func TestSuggestNotFoundYieldsNothing(t *testing.T) {
	sch := loadSchema(t)
	rec := trf.NewCanonicalRecord(uuid.New())
	violations := []validate.Violation{
		{FieldName: "patientID", Kind: constants.ViolationMissingRequired},
	}
	r := agent.NewReasoner(sch, &scriptedInferencer{}, testConfig(), slog.Default())

	suggestions, err := r.Suggest(context.Background(), rec, violations, "raw text")
	require.NoError(t, err)
	assert.Empty(t, suggestions)
}

func TestSuggestHonorsConfidenceThreshold(t *testing.T) {
	sch := loadSchema(t)
	rec := recordWith(
		trf.ExtractedField{Name: "hospital.hospitalName", Value: "City Hospital", Confidence: 0.95, Source: "doc-a"},
		trf.ExtractedField{Name: "physician.physicianName", Value: "Dr Roy", Confidence: 0.4, Source: "doc-a"},
	)
	inf := &scriptedInferencer{answers: map[string]string{
		"physician.physicianName": answer("Dr. A. Roy", 0.8, "signature block"),
		"hospital.hospitalName":   answer("Other Hospital", 0.9, "should not be asked"),
	}}
	r := agent.NewReasoner(sch, inf, testConfig(), slog.Default())

	suggestions, err := r.Suggest(context.Background(), rec, nil, "raw text")
	require.NoError(t, err)
	require.Len(t, suggestions, 1)
	assert.Equal(t, "physician.physicianName", suggestions[0].FieldName)
	assert.NotContains(t, inf.calls, "hospital.hospitalName")
}

func TestSuggestCapsTargets(t *testing.T) {
	sch := loadSchema(t)
	rec := trf.NewCanonicalRecord(uuid.New())
	var violations []validate.Violation
	for _, spec := range sch.Fields() {
		violations = append(violations, validate.Violation{
			FieldName: spec.Name, Kind: constants.ViolationMissingRequired,
		})
	}
	cfg := testConfig()
	cfg.MaxFields = 3
	inf := &scriptedInferencer{}
	r := agent.NewReasoner(sch, inf, cfg, slog.Default())

	_, err := r.Suggest(context.Background(), rec, violations, "raw text")
	require.NoError(t, err)
	assert.LessOrEqual(t, len(inf.calls), 3)
}

func TestQueryReturnsFilteredSuggestion(t *testing.T) {
	sch := loadSchema(t)
	rec := recordWith(trf.ExtractedField{Name: "patientInformation.dob", Value: "1985-04-12", Confidence: 0.8, Source: "doc-a"})
	inf := &scriptedInferencer{answers: map[string]string{
		"patientInformation.dob": answer("1985-04-12", 0.9, "printed beside the DOB label"),
	}}
	r := agent.NewReasoner(sch, inf, testConfig(), slog.Default())

	s, err := r.Query(context.Background(), rec, "patientInformation.dob", "Where did this value come from?", "raw text")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "patientInformation.dob", s.FieldName)
	assert.Equal(t, "1985-04-12", s.ProposedValue)
	assert.Equal(t, 0.9, s.Confidence)
	assert.Contains(t, s.Rationale, "DOB label")

	_, err = r.Query(context.Background(), rec, "no.such.field", "anything", "raw text")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestQueryFiltersInvalidProposal(t *testing.T) {
	sch := loadSchema(t)
	rec := recordWith()
	inf := &scriptedInferencer{answers: map[string]string{
		"patientInformation.gender": answer("Banana", 0.9, "misread checkbox"),
	}}
	r := agent.NewReasoner(sch, inf, testConfig(), slog.Default())

	s, err := r.Query(context.Background(), rec, "patientInformation.gender", "What is the gender?", "raw text")
	require.NoError(t, err)
	assert.Nil(t, s, "a value the field rejects never reaches the reviewer")
}

func TestQueryNotFoundYieldsNil(t *testing.T) {
	sch := loadSchema(t)
	r := agent.NewReasoner(sch, &scriptedInferencer{}, testConfig(), slog.Default())

	s, err := r.Query(context.Background(), recordWith(), "patientID", "Is there a patient id?", "raw text")
	require.NoError(t, err)
	assert.Nil(t, s)
}

func TestBuildGuidance(t *testing.T) {
	sch := loadSchema(t)

	t.Run("empty record", func(t *testing.T) {
		g := agent.BuildGuidance(sch, trf.NewCanonicalRecord(uuid.New()), nil)
		assert.Equal(t, 0.0, g.CompletionPercent)
		assert.Len(t, g.MissingRequired, len(sch.RequiredFields()))
		assert.Contains(t, g.Message, "Upload")
	})

	t.Run("complete record", func(t *testing.T) {
		rec := trf.NewCanonicalRecord(uuid.New())
		for _, name := range sch.RequiredFields() {
			value := "x"
			switch name {
			case "patientInformation.gender":
				value = "Female"
			case "patientInformation.dob":
				value = "1985-04-12"
			case "patientInformation.patientInformationPhoneNumber":
				value = "+1 555 010 2030"
			}
			rec.Fields[name] = trf.ExtractedField{Name: name, Value: value, Confidence: 0.9, Source: "doc-a"}
		}
		g := agent.BuildGuidance(sch, rec, nil)
		assert.Equal(t, 100.0, g.CompletionPercent)
		assert.Empty(t, g.MissingRequired)
		assert.Contains(t, g.Message, "ready")
	})
}
