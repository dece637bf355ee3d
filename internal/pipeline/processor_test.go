package pipeline_test

import (
	"context"
	"log/slog"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genesilico/trf-intake/constants"
	"github.com/genesilico/trf-intake/internal/common"
	"github.com/genesilico/trf-intake/internal/extract"
	"github.com/genesilico/trf-intake/internal/llm"
	"github.com/genesilico/trf-intake/internal/ocr"
	"github.com/genesilico/trf-intake/internal/pipeline"
	"github.com/genesilico/trf-intake/internal/repository"
	"github.com/genesilico/trf-intake/internal/schema"
	"github.com/genesilico/trf-intake/internal/trf"
)

type fakeOCR struct {
	text string
	err  error
}

func (f *fakeOCR) ExtractText(context.Context, string, string) (ocr.Result, error) {
	if f.err != nil {
		return ocr.Result{}, f.err
	}
	return ocr.Result{Text: f.text, Confidence: 0.9, Pages: 1, Method: "fake"}, nil
}

type fakeInferencer struct {
	content string
	err     error
	calls   int
}

func (f *fakeInferencer) Infer(context.Context, llm.Request) (llm.Response, error) {
	f.calls++
	if f.err != nil {
		return llm.Response{}, f.err
	}
	return llm.Response{Content: f.content}, nil
}

const formText = `Patient ID: P-1001
Patient Name: Jane Doe
Gender: Female
DOB: 12/04/1985
Phone: +1 555 010 2030
Diagnosis: Invasive ductal carcinoma
`

func newProcessor(t *testing.T, store repository.Store, o ocr.TextExtractor, inf llm.Inferencer) *pipeline.Processor {
	t.Helper()
	sch, err := schema.Load()
	require.NoError(t, err)
	ex := extract.New(sch, inf, slog.Default())
	return pipeline.NewProcessor(store, o, ex, sch, slog.Default())
}

func register(t *testing.T, store repository.Store, caseID uuid.UUID) *trf.DocumentRecord {
	t.Helper()
	doc := &trf.DocumentRecord{
		DocumentID: uuid.New(),
		CaseID:     caseID,
		FileName:   "trf.pdf",
		FilePath:   "/uploads/trf.pdf",
		MimeType:   "application/pdf",
		Status:     constants.StatusUploaded,
	}
	require.NoError(t, store.PutDocument(context.Background(), doc))
	return doc
}

func TestProcessHappyPath(t *testing.T) {
	store := repository.NewMemStore()
	proc := newProcessor(t, store, &fakeOCR{text: formText}, &fakeInferencer{content: `{
		"patientID": {"value": "P-1001", "confidence": 0.95}
	}`})
	doc := register(t, store, uuid.New())

	res, err := proc.Process(context.Background(), doc.DocumentID)
	require.NoError(t, err)

	assert.Equal(t, constants.StatusMerged, res.Document.Status)
	assert.Equal(t, "P-1001", res.Canonical.Fields["patientID"].Value)
	assert.Equal(t, int64(1), res.Canonical.Revision)
	assert.NotEmpty(t, res.Document.RawText)

	stored, err := store.GetDocument(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusMerged, stored.Status)

	rec, err := store.GetCase(context.Background(), doc.CaseID)
	require.NoError(t, err)
	require.NotNil(t, rec)
	assert.Equal(t, "Female", rec.Fields["patientInformation.gender"].Value)
}

func TestProcessUnknownDocument(t *testing.T) {
	store := repository.NewMemStore()
	proc := newProcessor(t, store, &fakeOCR{text: formText}, &fakeInferencer{content: `{}`})

	_, err := proc.Process(context.Background(), uuid.New())
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestProcessOCRFailure(t *testing.T) {
	store := repository.NewMemStore()
	proc := newProcessor(t, store,
		&fakeOCR{err: common.WrapError(common.ErrOCRUnavailable, "engine down")},
		&fakeInferencer{content: `{}`})
	doc := register(t, store, uuid.New())

	_, err := proc.Process(context.Background(), doc.DocumentID)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrOCRUnavailable)

	stored, err := store.GetDocument(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusFailed, stored.Status)
	assert.Contains(t, stored.Error, "ocr")
}

func TestProcessInferenceFailure(t *testing.T) {
	store := repository.NewMemStore()
	proc := newProcessor(t, store, &fakeOCR{text: formText},
		&fakeInferencer{err: common.WrapError(common.ErrInferenceUnavailable, "timeout")})
	doc := register(t, store, uuid.New())

	_, err := proc.Process(context.Background(), doc.DocumentID)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInferenceUnavailable)

	stored, err := store.GetDocument(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusFailed, stored.Status)
	assert.Empty(t, stored.Fields, "a failed extraction contributes no fields")
}

func TestProcessRetryAfterFailure(t *testing.T) {
	store := repository.NewMemStore()
	flaky := &fakeOCR{err: common.WrapError(common.ErrOCRUnavailable, "engine down")}
	proc := newProcessor(t, store, flaky, &fakeInferencer{content: `{}`})
	doc := register(t, store, uuid.New())

	_, err := proc.Process(context.Background(), doc.DocumentID)
	require.Error(t, err)

	flaky.err = nil
	flaky.text = formText
	res, err := proc.Process(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusMerged, res.Document.Status)
	assert.Empty(t, res.Document.Error, "retrying clears the failure reason")
}

func TestProcessIsIdempotent(t *testing.T) {
	store := repository.NewMemStore()
	proc := newProcessor(t, store, &fakeOCR{text: formText}, &fakeInferencer{content: `{}`})
	doc := register(t, store, uuid.New())

	first, err := proc.Process(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	second, err := proc.Process(context.Background(), doc.DocumentID)
	require.NoError(t, err)

	assert.Equal(t, first.Canonical.Fields, second.Canonical.Fields)
	assert.Equal(t, constants.StatusMerged, second.Document.Status)
}

func TestProcessFinishedDocumentSkipsInference(t *testing.T) {
	store := repository.NewMemStore()
	inf := &fakeInferencer{content: `{
		"patientID": {"value": "P-1001", "confidence": 0.95}
	}`}
	proc := newProcessor(t, store, &fakeOCR{text: formText}, inf)
	doc := register(t, store, uuid.New())

	_, err := proc.Process(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	require.Equal(t, 1, inf.calls)

	// The collaborator going down must not touch a finished document.
	inf.err = common.WrapError(common.ErrInferenceUnavailable, "timeout")
	res, err := proc.Process(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, 1, inf.calls, "re-invocation must not re-extract")
	assert.Equal(t, constants.StatusMerged, res.Document.Status)

	stored, err := store.GetDocument(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusMerged, stored.Status)
	assert.NotEmpty(t, stored.Fields)
}

func TestProcessResultReportsMergedRecordViolations(t *testing.T) {
	store := repository.NewMemStore()
	caseID := uuid.New()

	procA := newProcessor(t, store, &fakeOCR{text: "irrelevant"}, &fakeInferencer{content: `{
		"patientID": {"value": "P-1001", "confidence": 0.95}
	}`})
	docA := register(t, store, caseID)
	_, err := procA.Process(context.Background(), docA.DocumentID)
	require.NoError(t, err)

	procB := newProcessor(t, store, &fakeOCR{text: "irrelevant"}, &fakeInferencer{content: `{
		"patientInformation.gender": {"value": "Female", "confidence": 0.9}
	}`})
	docB := register(t, store, caseID)
	res, err := procB.Process(context.Background(), docB.DocumentID)
	require.NoError(t, err)

	for _, v := range res.Violations {
		assert.NotEqual(t, "patientID", v.FieldName,
			"a field the case already holds must not be reported missing")
		assert.NotEqual(t, "patientInformation.gender", v.FieldName)
	}
}

func TestProcessTwoDocumentsMergeByConfidence(t *testing.T) {
	store := repository.NewMemStore()
	caseID := uuid.New()

	procA := newProcessor(t, store, &fakeOCR{text: "irrelevant"}, &fakeInferencer{content: `{
		"patientInformation.patientName.firstName": {"value": "Jon", "confidence": 0.7}
	}`})
	docA := register(t, store, caseID)
	_, err := procA.Process(context.Background(), docA.DocumentID)
	require.NoError(t, err)

	procB := newProcessor(t, store, &fakeOCR{text: "irrelevant"}, &fakeInferencer{content: `{
		"patientInformation.patientName.firstName": {"value": "John", "confidence": 0.9}
	}`})
	docB := register(t, store, caseID)
	_, err = procB.Process(context.Background(), docB.DocumentID)
	require.NoError(t, err)

	rec, err := store.GetCase(context.Background(), caseID)
	require.NoError(t, err)
	got := rec.Fields["patientInformation.patientName.firstName"]
	assert.Equal(t, "John", got.Value)
	assert.Equal(t, 0.9, got.Confidence)
	assert.Equal(t, docB.DocumentID.String(), got.Source)
	assert.Equal(t, int64(2), rec.Revision)
}

func TestMarkReviewed(t *testing.T) {
	store := repository.NewMemStore()
	proc := newProcessor(t, store, &fakeOCR{text: formText}, &fakeInferencer{content: `{}`})
	doc := register(t, store, uuid.New())

	// Sign-off requires a merged document: not before processing, and not twice.
	_, err := proc.MarkReviewed(context.Background(), doc.DocumentID)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	_, err = proc.Process(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	reviewed, err := proc.MarkReviewed(context.Background(), doc.DocumentID)
	require.NoError(t, err)
	assert.Equal(t, constants.StatusReviewed, reviewed.Status)

	_, err = proc.MarkReviewed(context.Background(), doc.DocumentID)
	require.Error(t, err)
	assert.ErrorIs(t, err, common.ErrInvalidInput)
}

func TestReprocessCaseSkipsReviewed(t *testing.T) {
	store := repository.NewMemStore()
	proc := newProcessor(t, store, &fakeOCR{text: formText}, &fakeInferencer{content: `{}`})
	caseID := uuid.New()

	docA := register(t, store, caseID)
	_, err := proc.Process(context.Background(), docA.DocumentID)
	require.NoError(t, err)
	_, err = proc.MarkReviewed(context.Background(), docA.DocumentID)
	require.NoError(t, err)

	docB := register(t, store, caseID)
	results, err := proc.ReprocessCase(context.Background(), caseID)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, docB.DocumentID, results[0].Document.DocumentID)
}
