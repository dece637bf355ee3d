// Package pipeline drives one document through OCR, extraction, validation,
// and the case merge. Slow collaborator calls run outside the case lock; only
// the read-merge-persist section at the end is serialized per case.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/genesilico/trf-intake/constants"
	"github.com/genesilico/trf-intake/internal/common"
	"github.com/genesilico/trf-intake/internal/extract"
	"github.com/genesilico/trf-intake/internal/merge"
	"github.com/genesilico/trf-intake/internal/ocr"
	"github.com/genesilico/trf-intake/internal/repository"
	"github.com/genesilico/trf-intake/internal/schema"
	"github.com/genesilico/trf-intake/internal/trf"
	"github.com/genesilico/trf-intake/internal/validate"
)

// ProcessResult reports the outcome of one processing run.
type ProcessResult struct {
	Document   *trf.DocumentRecord   `json:"document"`
	Canonical  *trf.CanonicalRecord  `json:"canonical,omitempty"`
	Violations []validate.Violation  `json:"violations,omitempty"`
}

type Processor struct {
	store     repository.Store
	text      ocr.TextExtractor
	extractor *extract.Extractor
	sch       *schema.Schema
	locks     *caseLocks
	log       *slog.Logger
}

func NewProcessor(store repository.Store, text ocr.TextExtractor, ex *extract.Extractor, sch *schema.Schema, logger *slog.Logger) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		store:     store,
		text:      text,
		extractor: ex,
		sch:       sch,
		locks:     newCaseLocks(),
		log:       logger,
	}
}

// Process runs the full pipeline for one registered document. Re-invocation
// is safe: a failed document restarts from the beginning, a finished one
// skips its collaborator stages and re-runs validation and the merge, and
// confidence rules keep the fold stable.
func (p *Processor) Process(ctx context.Context, documentID uuid.UUID) (*ProcessResult, error) {
	start := time.Now()
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, common.WrapError(common.ErrNotFound, fmt.Sprintf("document %s", documentID))
	}
	p.log.Info("pipeline.start",
		"document_id", documentID, "case_id", doc.CaseID, "status", doc.Status)

	if err := p.stageOCR(ctx, doc); err != nil {
		return nil, err
	}
	if err := p.stageExtract(ctx, doc); err != nil {
		return nil, err
	}
	p.stageValidate(ctx, doc)
	canonical, err := p.stageMerge(ctx, doc)
	if err != nil {
		return nil, err
	}
	violations := validate.Validate(p.sch, canonical.Fields)

	p.log.Info("pipeline.done",
		"document_id", documentID,
		"case_id", doc.CaseID,
		"status", doc.Status,
		"violations", len(violations),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return &ProcessResult{Document: doc, Canonical: canonical, Violations: violations}, nil
}

// stageOCR captures raw text. Text already captured on a previous run is
// reused rather than re-billed.
func (p *Processor) stageOCR(ctx context.Context, doc *trf.DocumentRecord) error {
	if doc.RawText != "" && doc.Status.Rank() >= constants.StatusOCRDone.Rank() {
		return nil
	}
	res, err := p.text.ExtractText(ctx, doc.FilePath, doc.MimeType)
	if err != nil {
		return p.fail(ctx, doc, "ocr", err)
	}
	doc.RawText = res.Text
	doc.OCRConfidence = res.Confidence
	doc.Advance(constants.StatusOCRDone)
	if err := p.store.PutDocument(ctx, doc); err != nil {
		return err
	}
	p.log.Info("pipeline.ocr.done",
		"document_id", doc.DocumentID, "chars", len(res.Text), "confidence", res.Confidence)
	return nil
}

// stageExtract produces the document's field set. Inference outages fail the
// document; a malformed model answer degrades to pattern-matched fields only.
// Fields already extracted on a previous run are reused, so re-invoking a
// finished document never touches the collaborator again.
func (p *Processor) stageExtract(ctx context.Context, doc *trf.DocumentRecord) error {
	if len(doc.Fields) > 0 && doc.Status.Rank() >= constants.StatusExtracted.Rank() {
		return nil
	}
	prior, err := p.store.GetCase(ctx, doc.CaseID)
	if err != nil {
		return err
	}
	fields, err := p.extractor.Extract(ctx, extract.Input{
		DocumentID: doc.DocumentID,
		RawText:    doc.RawText,
		Prior:      prior,
	})
	if err != nil {
		return p.fail(ctx, doc, "extract", err)
	}
	doc.Fields = fields
	doc.Advance(constants.StatusExtracted)
	return p.store.PutDocument(ctx, doc)
}

// stageValidate checks the document's own fields and advances the status.
// Violations are advisory and never block the merge; the result reports the
// violations of the merged canonical record, not this per-document pass.
func (p *Processor) stageValidate(ctx context.Context, doc *trf.DocumentRecord) {
	violations := validate.Validate(p.sch, doc.Fields)
	doc.Advance(constants.StatusValidated)
	if err := p.store.PutDocument(ctx, doc); err != nil {
		p.log.Error("pipeline.validate.persist_failed",
			"document_id", doc.DocumentID, "error", err)
	}
	p.log.Debug("pipeline.validate.done",
		"document_id", doc.DocumentID, "violations", len(violations))
}

// stageMerge folds the document into the case under the case lock. The
// canonical record is re-read inside the lock so concurrent documents of the
// same case serialize their read-merge-persist sections.
func (p *Processor) stageMerge(ctx context.Context, doc *trf.DocumentRecord) (*trf.CanonicalRecord, error) {
	unlock := p.locks.acquire(doc.CaseID)
	defer unlock()

	existing, err := p.store.GetCase(ctx, doc.CaseID)
	if err != nil {
		return nil, err
	}
	next := merge.Merge(p.sch, existing, doc)
	if err := p.store.PutCase(ctx, next); err != nil {
		return nil, err
	}
	doc.Advance(constants.StatusMerged)
	if err := p.store.PutDocument(ctx, doc); err != nil {
		return nil, err
	}
	p.log.Info("pipeline.merge.done",
		"document_id", doc.DocumentID,
		"case_id", doc.CaseID,
		"fields", len(next.Fields),
		"revision", next.Revision,
	)
	return next, nil
}

// MarkReviewed records reviewer sign-off on a merged document.
func (p *Processor) MarkReviewed(ctx context.Context, documentID uuid.UUID) (*trf.DocumentRecord, error) {
	doc, err := p.store.GetDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil {
		return nil, common.WrapError(common.ErrNotFound, fmt.Sprintf("document %s", documentID))
	}
	if doc.Status != constants.StatusMerged || !doc.Advance(constants.StatusReviewed) {
		return nil, common.WrapError(common.ErrInvalidInput,
			fmt.Sprintf("document %s cannot be reviewed from status %s", documentID, doc.Status))
	}
	if err := p.store.PutDocument(ctx, doc); err != nil {
		return nil, err
	}
	return doc, nil
}

// ReprocessCase re-runs every non-reviewed document of a case, oldest first.
// Individual failures are recorded on their documents and do not stop the
// sweep.
func (p *Processor) ReprocessCase(ctx context.Context, caseID uuid.UUID) ([]*ProcessResult, error) {
	docs, err := p.store.ListByCase(ctx, caseID)
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, common.WrapError(common.ErrNotFound, fmt.Sprintf("case %s has no documents", caseID))
	}
	var results []*ProcessResult
	for _, doc := range docs {
		if doc.Status == constants.StatusReviewed {
			continue
		}
		res, err := p.Process(ctx, doc.DocumentID)
		if err != nil {
			p.log.Warn("pipeline.reprocess.document_failed",
				"case_id", caseID, "document_id", doc.DocumentID, "error", err)
			continue
		}
		results = append(results, res)
	}
	return results, nil
}

// fail stamps the document failed, persists it, and returns the typed error.
func (p *Processor) fail(ctx context.Context, doc *trf.DocumentRecord, stage string, cause error) error {
	doc.Fail(fmt.Sprintf("%s: %v", stage, cause))
	doc.Fields = nil
	if perr := p.store.PutDocument(ctx, doc); perr != nil {
		p.log.Error("pipeline.fail.persist_failed",
			"document_id", doc.DocumentID, "error", perr)
	}
	p.log.Error("pipeline.stage_failed",
		"document_id", doc.DocumentID, "stage", stage,
		"error", cause, "retryable", common.Retryable(cause))
	return cause
}
