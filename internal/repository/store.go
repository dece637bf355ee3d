// Package repository persists documents and canonical case records. Three
// backends implement the same contract: MongoDB for deployments, SQLite for
// single-node installs, and an in-memory store for tests.
package repository

import (
	"context"

	"github.com/google/uuid"

	"github.com/genesilico/trf-intake/internal/trf"
)

// DocumentStore persists per-document pipeline state. Get returns (nil, nil)
// when the document does not exist; callers translate that to a not-found
// error at the API boundary.
type DocumentStore interface {
	GetDocument(ctx context.Context, id uuid.UUID) (*trf.DocumentRecord, error)
	PutDocument(ctx context.Context, doc *trf.DocumentRecord) error
	ListDocuments(ctx context.Context) ([]*trf.DocumentRecord, error)
	ListByCase(ctx context.Context, caseID uuid.UUID) ([]*trf.DocumentRecord, error)
}

// CaseStore persists canonical case records with optimistic concurrency.
// PutCase succeeds only when the stored revision still equals the revision
// the caller read; on success the record's Revision is bumped in place. A
// stale revision returns common.ErrPersistenceConflict. Revision zero means
// the caller believes the case is new.
type CaseStore interface {
	GetCase(ctx context.Context, caseID uuid.UUID) (*trf.CanonicalRecord, error)
	PutCase(ctx context.Context, rec *trf.CanonicalRecord) error
}

// Store is the full persistence surface the service wires at startup.
type Store interface {
	DocumentStore
	CaseStore
	Close(ctx context.Context) error
}

// fieldList flattens the dotted-path field map for storage; BSON forbids
// dots in map keys, so both database backends store fields as an array.
func fieldList(fields map[string]trf.ExtractedField) []trf.ExtractedField {
	if len(fields) == 0 {
		return nil
	}
	out := make([]trf.ExtractedField, 0, len(fields))
	for _, f := range fields {
		out = append(out, f)
	}
	return out
}

func fieldMap(list []trf.ExtractedField) map[string]trf.ExtractedField {
	out := make(map[string]trf.ExtractedField, len(list))
	for _, f := range list {
		out[f.Name] = f
	}
	return out
}
