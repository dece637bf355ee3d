// Package trf defines the record types flowing through the intake pipeline.
package trf

import (
	"time"

	"github.com/google/uuid"

	"github.com/genesilico/trf-intake/constants"
	"github.com/genesilico/trf-intake/internal/schema"
)

// ExtractedField is one confidence-scored field value. Never mutated after
// creation; corrections produce a new ExtractedField.
type ExtractedField struct {
	Name       string  `json:"name" bson:"name"`
	Value      string  `json:"value" bson:"value"`
	Confidence float64 `json:"confidence" bson:"confidence"`
	Source     string  `json:"source" bson:"source"`
}

// DocumentRecord is the per-document pipeline state. Status advances
// monotonically; it never regresses.
type DocumentRecord struct {
	DocumentID    uuid.UUID                 `json:"document_id" bson:"document_id"`
	CaseID        uuid.UUID                 `json:"case_id" bson:"case_id"`
	FileName      string                    `json:"file_name" bson:"file_name"`
	FilePath      string                    `json:"file_path" bson:"file_path"`
	MimeType      string                    `json:"mime_type" bson:"mime_type"`
	Status        constants.DocumentStatus  `json:"status" bson:"status"`
	RawText       string                    `json:"raw_text,omitempty" bson:"raw_text,omitempty"`
	OCRConfidence float64                   `json:"ocr_confidence,omitempty" bson:"ocr_confidence,omitempty"`
	Fields        map[string]ExtractedField `json:"fields,omitempty" bson:"-"`
	Error         string                    `json:"error,omitempty" bson:"error,omitempty"`
	UploadedAt    time.Time                 `json:"uploaded_at" bson:"uploaded_at"`
	UpdatedAt     time.Time                 `json:"updated_at" bson:"updated_at"`
}

// Advance moves the record to next only if the transition is forward.
// Returns false when the transition would regress.
func (d *DocumentRecord) Advance(next constants.DocumentStatus) bool {
	if !d.Status.CanAdvance(next) {
		return false
	}
	d.Status = next
	if next != constants.StatusFailed {
		d.Error = ""
	}
	return true
}

// Fail marks the record failed with a reason. Reachable from any stage.
func (d *DocumentRecord) Fail(reason string) {
	d.Status = constants.StatusFailed
	d.Error = reason
}

// CanonicalRecord is the best-known per-field view of a case, rebuilt by the
// merger whenever a document is added. Revision implements optimistic
// concurrency in the case store.
type CanonicalRecord struct {
	CaseID    uuid.UUID                 `json:"case_id" bson:"case_id"`
	Fields    map[string]ExtractedField `json:"fields" bson:"-"`
	Revision  int64                     `json:"revision" bson:"revision"`
	UpdatedAt time.Time                 `json:"updated_at" bson:"updated_at"`
}

// NewCanonicalRecord returns an empty record for a case.
func NewCanonicalRecord(caseID uuid.UUID) *CanonicalRecord {
	return &CanonicalRecord{
		CaseID: caseID,
		Fields: make(map[string]ExtractedField),
	}
}

// Clone returns a deep copy, used to hand out consistent snapshots.
func (r *CanonicalRecord) Clone() *CanonicalRecord {
	if r == nil {
		return nil
	}
	cp := *r
	cp.Fields = make(map[string]ExtractedField, len(r.Fields))
	for k, v := range r.Fields {
		cp.Fields[k] = v
	}
	return &cp
}

// Value returns the stored value for a field name, if present.
func (r *CanonicalRecord) Value(name string) (string, bool) {
	f, ok := r.Fields[name]
	if !ok || f.Value == "" {
		return "", false
	}
	return f.Value, true
}

// Nested renders the field values in the TRF document shape
// (dotted paths expanded into nested objects and arrays).
func (r *CanonicalRecord) Nested() map[string]any {
	out := make(map[string]any)
	for name, f := range r.Fields {
		schema.SetPath(out, name, f.Value)
	}
	return out
}
