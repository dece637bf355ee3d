package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/genesilico/trf-intake/internal/common"
	"github.com/genesilico/trf-intake/internal/trf"
)

// memStore keeps everything in process memory. It implements the same
// revision discipline as the database backends so concurrency tests exercise
// the real contract.
type memStore struct {
	mu        sync.RWMutex
	documents map[uuid.UUID]*trf.DocumentRecord
	cases     map[uuid.UUID]*trf.CanonicalRecord
}

func NewMemStore() Store {
	return &memStore{
		documents: make(map[uuid.UUID]*trf.DocumentRecord),
		cases:     make(map[uuid.UUID]*trf.CanonicalRecord),
	}
}

func (s *memStore) GetDocument(_ context.Context, id uuid.UUID) (*trf.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.documents[id]
	if !ok {
		return nil, nil
	}
	return copyDocument(doc), nil
}

func (s *memStore) PutDocument(_ context.Context, doc *trf.DocumentRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc.UpdatedAt = time.Now().UTC()
	s.documents[doc.DocumentID] = copyDocument(doc)
	return nil
}

func (s *memStore) ListDocuments(_ context.Context) ([]*trf.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*trf.DocumentRecord, 0, len(s.documents))
	for _, doc := range s.documents {
		out = append(out, copyDocument(doc))
	}
	sortDocuments(out)
	return out, nil
}

func (s *memStore) ListByCase(_ context.Context, caseID uuid.UUID) ([]*trf.DocumentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*trf.DocumentRecord
	for _, doc := range s.documents {
		if doc.CaseID == caseID {
			out = append(out, copyDocument(doc))
		}
	}
	sortDocuments(out)
	return out, nil
}

func (s *memStore) GetCase(_ context.Context, caseID uuid.UUID) (*trf.CanonicalRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.cases[caseID]
	if !ok {
		return nil, nil
	}
	return rec.Clone(), nil
}

func (s *memStore) PutCase(_ context.Context, rec *trf.CanonicalRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, exists := s.cases[rec.CaseID]
	switch {
	case !exists && rec.Revision != 0:
		return common.WrapError(common.ErrPersistenceConflict, "case no longer exists")
	case exists && stored.Revision != rec.Revision:
		return common.WrapError(common.ErrPersistenceConflict, "case revision is stale")
	}
	rec.Revision++
	rec.UpdatedAt = time.Now().UTC()
	s.cases[rec.CaseID] = rec.Clone()
	return nil
}

func (s *memStore) Close(context.Context) error { return nil }

func copyDocument(doc *trf.DocumentRecord) *trf.DocumentRecord {
	cp := *doc
	if doc.Fields != nil {
		cp.Fields = make(map[string]trf.ExtractedField, len(doc.Fields))
		for k, v := range doc.Fields {
			cp.Fields[k] = v
		}
	}
	return &cp
}

func sortDocuments(docs []*trf.DocumentRecord) {
	sort.Slice(docs, func(i, j int) bool {
		return docs[i].UploadedAt.Before(docs[j].UploadedAt)
	})
}
