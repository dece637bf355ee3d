package intake_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genesilico/trf-intake/constants"
	"github.com/genesilico/trf-intake/internal/agent"
	"github.com/genesilico/trf-intake/internal/common"
	"github.com/genesilico/trf-intake/internal/export"
	"github.com/genesilico/trf-intake/internal/extract"
	"github.com/genesilico/trf-intake/internal/intake"
	"github.com/genesilico/trf-intake/internal/llm"
	"github.com/genesilico/trf-intake/internal/ocr"
	"github.com/genesilico/trf-intake/internal/pipeline"
	"github.com/genesilico/trf-intake/internal/repository"
	"github.com/genesilico/trf-intake/internal/schema"
)

type fakeOCR struct{ text string }

func (f *fakeOCR) ExtractText(context.Context, string, string) (ocr.Result, error) {
	return ocr.Result{Text: f.text, Confidence: 0.9, Pages: 1, Method: "fake"}, nil
}

type fakeInferencer struct{ content string }

func (f *fakeInferencer) Infer(context.Context, llm.Request) (llm.Response, error) {
	return llm.Response{Content: f.content}, nil
}

func newService(t *testing.T, ocrText, inferContent string) (*intake.Service, repository.Store) {
	t.Helper()
	sch, err := schema.Load()
	require.NoError(t, err)
	store := repository.NewMemStore()
	inf := &fakeInferencer{content: inferContent}
	ex := extract.New(sch, inf, slog.Default())
	proc := pipeline.NewProcessor(store, &fakeOCR{text: ocrText}, ex, sch, slog.Default())
	reasoner := agent.NewReasoner(sch, inf,
		common.AgentConfig{ConfidenceThreshold: 0.6, MaxParallel: 2, MaxFields: 5}, slog.Default())
	exporter := export.NewService(sch, slog.Default())
	return intake.NewService(store, proc, reasoner, exporter, sch, slog.Default()), store
}

const formText = "Patient Name: Jane Doe\nGender: Female\nDOB: 12/04/1985\n"

func TestRegisterDocument(t *testing.T) {
	svc, _ := newService(t, formText, `{}`)

	t.Run("accepts a pdf and starts a new case", func(t *testing.T) {
		doc, err := svc.RegisterDocument(context.Background(), intake.Registration{
			FileName: "trf.pdf",
			FilePath: "/uploads/trf.pdf",
			MimeType: "application/pdf",
		})
		require.NoError(t, err)
		assert.Equal(t, constants.StatusUploaded, doc.Status)
		assert.NotEqual(t, uuid.Nil, doc.CaseID)
		assert.NotEqual(t, uuid.Nil, doc.DocumentID)
	})

	t.Run("keeps the supplied case id", func(t *testing.T) {
		caseID := uuid.New()
		doc, err := svc.RegisterDocument(context.Background(), intake.Registration{
			CaseID:   caseID,
			FileName: "back.jpg",
			FilePath: "/uploads/back.jpg",
		})
		require.NoError(t, err)
		assert.Equal(t, caseID, doc.CaseID)
	})

	t.Run("rejects unsupported extensions", func(t *testing.T) {
		_, err := svc.RegisterDocument(context.Background(), intake.Registration{
			FileName: "notes.docx",
			FilePath: "/uploads/notes.docx",
		})
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("rejects missing path", func(t *testing.T) {
		_, err := svc.RegisterDocument(context.Background(), intake.Registration{FileName: "trf.pdf"})
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})
}

func processOne(t *testing.T, svc *intake.Service, caseID uuid.UUID) uuid.UUID {
	t.Helper()
	doc, err := svc.RegisterDocument(context.Background(), intake.Registration{
		CaseID:   caseID,
		FileName: "trf.pdf",
		FilePath: "/uploads/trf.pdf",
		MimeType: "application/pdf",
	})
	require.NoError(t, err)
	_, err = svc.Process(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	return doc.DocumentID
}

func TestUpdateField(t *testing.T) {
	svc, _ := newService(t, formText, `{}`)
	caseID := uuid.New()
	processOne(t, svc, caseID)

	t.Run("accepted override carries full confidence", func(t *testing.T) {
		rec, err := svc.UpdateField(context.Background(), caseID, "patientID", "P-9000")
		require.NoError(t, err)
		f := rec.Fields["patientID"]
		assert.Equal(t, "P-9000", f.Value)
		assert.Equal(t, 1.0, f.Confidence)
		assert.Equal(t, constants.SourceManualReview, f.Source)
	})

	t.Run("override survives a later reprocess of older text", func(t *testing.T) {
		_, err := svc.ReprocessCase(context.Background(), caseID)
		require.NoError(t, err)
		rec, _, err := svc.GetCanonical(context.Background(), caseID)
		require.NoError(t, err)
		assert.Equal(t, "P-9000", rec.Fields["patientID"].Value, "confidence 1.0 outranks extraction")
	})

	t.Run("invalid value is rejected and record untouched", func(t *testing.T) {
		_, err := svc.UpdateField(context.Background(), caseID, "patientInformation.gender", "Banana")
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInvalidOverride)

		rec, _, err := svc.GetCanonical(context.Background(), caseID)
		require.NoError(t, err)
		assert.Equal(t, "Female", rec.Fields["patientInformation.gender"].Value)
	})

	t.Run("unknown field is rejected", func(t *testing.T) {
		_, err := svc.UpdateField(context.Background(), caseID, "no.such.field", "x")
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrInvalidInput)
	})

	t.Run("unknown case", func(t *testing.T) {
		_, err := svc.UpdateField(context.Background(), uuid.New(), "patientID", "P-1")
		require.Error(t, err)
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestGetCanonicalReportsViolations(t *testing.T) {
	svc, _ := newService(t, formText, `{}`)
	caseID := uuid.New()
	processOne(t, svc, caseID)

	rec, violations, err := svc.GetCanonical(context.Background(), caseID)
	require.NoError(t, err)
	assert.Equal(t, "Jane", rec.Fields["patientInformation.patientName.firstName"].Value)

	// patientID and phone were never on the form
	var names []string
	for _, v := range violations {
		names = append(names, v.FieldName)
	}
	assert.Contains(t, names, "patientID")
	assert.Contains(t, names, "patientInformation.patientInformationPhoneNumber")
}

func TestGuidanceAndExport(t *testing.T) {
	svc, _ := newService(t, formText, `{}`)
	caseID := uuid.New()
	processOne(t, svc, caseID)

	g, err := svc.Guidance(context.Background(), caseID)
	require.NoError(t, err)
	assert.Greater(t, g.CompletionPercent, 0.0)
	assert.Less(t, g.CompletionPercent, 100.0)
	assert.NotEmpty(t, g.MissingRequired)
	assert.NotEmpty(t, g.Message)

	data, err := svc.ExportWorklist(context.Background(), caseID)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	// XLSX files are zip archives
	assert.Equal(t, byte('P'), data[0])
	assert.Equal(t, byte('K'), data[1])
}

func TestQueryAgentValidation(t *testing.T) {
	svc, _ := newService(t, formText, `{}`)
	caseID := uuid.New()
	processOne(t, svc, caseID)

	_, err := svc.QueryAgent(context.Background(), caseID, "patientInformation.dob", "")
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestQueryAgentFiltersAnswerThroughSchema(t *testing.T) {
	// the model proposes a date no matter which field it is asked about
	svc, _ := newService(t, formText,
		"VALUE: 1985-04-12\nCONFIDENCE: 0.9\nREASONING: printed beside the DOB label")
	caseID := uuid.New()
	processOne(t, svc, caseID)

	s, err := svc.QueryAgent(context.Background(), caseID, "patientInformation.dob", "What is the birth date?")
	require.NoError(t, err)
	require.NotNil(t, s)
	assert.Equal(t, "patientInformation.dob", s.FieldName)
	assert.Equal(t, "1985-04-12", s.ProposedValue)
	assert.Contains(t, s.Rationale, "DOB label")

	// the same answer fails the gender enum, so nothing reaches the reviewer
	s, err = svc.QueryAgent(context.Background(), caseID, "patientInformation.gender", "What is the gender?")
	require.NoError(t, err)
	assert.Nil(t, s)
}
