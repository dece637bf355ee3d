// Package intake is the application facade. It owns document registration,
// exposes the pipeline, and implements the reviewer-facing case operations:
// manual overrides, suggestions, guidance, and export.
package intake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genesilico/trf-intake/constants"
	"github.com/genesilico/trf-intake/internal/agent"
	"github.com/genesilico/trf-intake/internal/common"
	"github.com/genesilico/trf-intake/internal/export"
	"github.com/genesilico/trf-intake/internal/pipeline"
	"github.com/genesilico/trf-intake/internal/repository"
	"github.com/genesilico/trf-intake/internal/schema"
	"github.com/genesilico/trf-intake/internal/trf"
	"github.com/genesilico/trf-intake/internal/validate"
)

// updateRetries bounds optimistic-concurrency retries on manual overrides.
const updateRetries = 3

type Service struct {
	store     repository.Store
	processor *pipeline.Processor
	reasoner  *agent.Reasoner
	exporter  *export.Service
	sch       *schema.Schema
	log       *slog.Logger
}

func NewService(store repository.Store, processor *pipeline.Processor, reasoner *agent.Reasoner, exporter *export.Service, sch *schema.Schema, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:     store,
		processor: processor,
		reasoner:  reasoner,
		exporter:  exporter,
		sch:       sch,
		log:       logger,
	}
}

// Registration describes an uploaded file. CaseID is optional; omitting it
// starts a new case.
type Registration struct {
	CaseID   uuid.UUID
	FileName string
	FilePath string
	MimeType string
}

// RegisterDocument records an uploaded file and returns it in uploaded
// status. Files with an unsupported extension are rejected before anything
// is stored.
func (s *Service) RegisterDocument(ctx context.Context, reg Registration) (*trf.DocumentRecord, error) {
	if strings.TrimSpace(reg.FileName) == "" || strings.TrimSpace(reg.FilePath) == "" {
		return nil, common.WrapError(common.ErrInvalidInput, "file name and path are required")
	}
	ext := filepath.Ext(reg.FileName)
	if !constants.ExtAllowed(ext) {
		return nil, common.WrapError(common.ErrInvalidInput,
			fmt.Sprintf("unsupported file extension %q", ext))
	}
	caseID := reg.CaseID
	if caseID == uuid.Nil {
		caseID = uuid.New()
	}
	doc := &trf.DocumentRecord{
		DocumentID: uuid.New(),
		CaseID:     caseID,
		FileName:   reg.FileName,
		FilePath:   reg.FilePath,
		MimeType:   reg.MimeType,
		Status:     constants.StatusUploaded,
		UploadedAt: time.Now().UTC(),
	}
	if err := s.store.PutDocument(ctx, doc); err != nil {
		return nil, err
	}
	s.log.Info("intake.document.registered",
		"document_id", doc.DocumentID, "case_id", doc.CaseID, "file", doc.FileName)
	return doc, nil
}

// Process runs the pipeline for one document.
func (s *Service) Process(ctx context.Context, documentID uuid.UUID) (*pipeline.ProcessResult, error) {
	return s.processor.Process(ctx, documentID)
}

// ReprocessCase re-runs the pipeline for every non-reviewed document of a
// case.
func (s *Service) ReprocessCase(ctx context.Context, caseID uuid.UUID) ([]*pipeline.ProcessResult, error) {
	return s.processor.ReprocessCase(ctx, caseID)
}

// Status returns the current pipeline state of one document.
func (s *Service) Status(ctx context.Context, documentID uuid.UUID) (*trf.DocumentRecord, error) {
	doc, err := s.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, common.WrapError(common.ErrNotFound, fmt.Sprintf("document %s", documentID))
	}
	return doc, nil
}

// MarkReviewed records reviewer sign-off on a document.
func (s *Service) MarkReviewed(ctx context.Context, documentID uuid.UUID) (*trf.DocumentRecord, error) {
	return s.processor.MarkReviewed(ctx, documentID)
}

// ListDocuments returns every registered document, oldest first.
func (s *Service) ListDocuments(ctx context.Context) ([]*trf.DocumentRecord, error) {
	return s.store.ListDocuments(ctx)
}

// ListCaseDocuments returns a case's documents, oldest first.
func (s *Service) ListCaseDocuments(ctx context.Context, caseID uuid.UUID) ([]*trf.DocumentRecord, error) {
	return s.store.ListByCase(ctx, caseID)
}

// GetCanonical returns a case's canonical record along with its current
// schema violations. Violations are computed on read, never stored.
func (s *Service) GetCanonical(ctx context.Context, caseID uuid.UUID) (*trf.CanonicalRecord, []validate.Violation, error) {
	rec, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, nil, err
	}
	return rec, validate.Validate(s.sch, rec.Fields), nil
}

// UpdateField applies a reviewer's manual value to one field. The value must
// satisfy the field's own schema constraints; a rejected value leaves the
// record untouched. Accepted values carry full confidence and a manual-review
// source.
func (s *Service) UpdateField(ctx context.Context, caseID uuid.UUID, fieldName, value string) (*trf.CanonicalRecord, error) {
	spec, ok := s.sch.Lookup(fieldName)
	if !ok {
		return nil, common.WrapError(common.ErrInvalidInput,
			fmt.Sprintf("unknown field %q", fieldName))
	}
	value = strings.TrimSpace(value)
	if v, ok := validate.ValidateField(spec, value); !ok {
		return nil, common.WrapError(common.ErrInvalidOverride,
			fmt.Sprintf("%s: %s", v.FieldName, v.Detail))
	}

	var lastErr error
	for attempt := 0; attempt < updateRetries; attempt++ {
		rec, err := s.getCase(ctx, caseID)
		if err != nil {
			return nil, err
		}
		next := rec.Clone()
		if value == "" {
			delete(next.Fields, fieldName)
		} else {
			next.Fields[fieldName] = trf.ExtractedField{
				Name:       fieldName,
				Value:      value,
				Confidence: 1.0,
				Source:     constants.SourceManualReview,
			}
		}
		if err := s.store.PutCase(ctx, next); err != nil {
			if errors.Is(err, common.ErrPersistenceConflict) {
				lastErr = err
				continue
			}
			return nil, err
		}
		s.log.Info("intake.field.updated",
			"case_id", caseID, "field", fieldName, "revision", next.Revision)
		return next, nil
	}
	return nil, lastErr
}

// GetSuggestions asks the agent for proposals on the case's weakest fields,
// grounded in the combined text of every document in the case.
func (s *Service) GetSuggestions(ctx context.Context, caseID uuid.UUID) ([]agent.Suggestion, error) {
	rec, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	violations := validate.Validate(s.sch, rec.Fields)
	rawText, err := s.caseText(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return s.reasoner.Suggest(ctx, rec, violations, rawText)
}

// QueryAgent answers a reviewer's question about one field of a case. The
// reply is a schema-filtered suggestion; nil means the agent found nothing
// it could stand behind.
func (s *Service) QueryAgent(ctx context.Context, caseID uuid.UUID, fieldName, question string) (*agent.Suggestion, error) {
	if strings.TrimSpace(question) == "" {
		return nil, common.WrapError(common.ErrInvalidInput, "question is required")
	}
	rec, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	rawText, err := s.caseText(ctx, caseID)
	if err != nil {
		return nil, err
	}
	return s.reasoner.Query(ctx, rec, fieldName, question, rawText)
}

// Guidance summarizes case completeness for the reviewer.
func (s *Service) Guidance(ctx context.Context, caseID uuid.UUID) (agent.Guidance, error) {
	rec, err := s.getCase(ctx, caseID)
	if err != nil {
		return agent.Guidance{}, err
	}
	violations := validate.Validate(s.sch, rec.Fields)
	return agent.BuildGuidance(s.sch, rec, violations), nil
}

// ExportWorklist renders the case's review worklist as XLSX bytes.
func (s *Service) ExportWorklist(ctx context.Context, caseID uuid.UUID) ([]byte, error) {
	rec, err := s.getCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	violations := validate.Validate(s.sch, rec.Fields)
	return s.exporter.ExportWorklistXLSX(rec, violations)
}

func (s *Service) getCase(ctx context.Context, caseID uuid.UUID) (*trf.CanonicalRecord, error) {
	rec, err := s.store.GetCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, common.WrapError(common.ErrNotFound, fmt.Sprintf("case %s", caseID))
	}
	return rec, nil
}

// caseText concatenates the raw text of every document in the case, oldest
// first, for agent grounding.
func (s *Service) caseText(ctx context.Context, caseID uuid.UUID) (string, error) {
	docs, err := s.store.ListByCase(ctx, caseID)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	for _, doc := range docs {
		if doc.RawText == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n----- next document -----\n\n")
		}
		b.WriteString(doc.RawText)
	}
	return b.String(), nil
}
