package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/genesilico/trf-intake/constants"
	"github.com/genesilico/trf-intake/internal/common"
	"github.com/genesilico/trf-intake/internal/trf"
)

// sqliteStore keeps each record as a JSON blob beside the columns queries
// filter on. The cases table carries revision as a real column so the
// compare-and-swap stays a single UPDATE.
type sqliteStore struct {
	db *sql.DB
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS documents (
	document_id TEXT PRIMARY KEY,
	case_id     TEXT NOT NULL,
	uploaded_at TEXT NOT NULL,
	doc         TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_documents_case ON documents(case_id);

CREATE TABLE IF NOT EXISTS cases (
	case_id  TEXT PRIMARY KEY,
	revision INTEGER NOT NULL,
	doc      TEXT NOT NULL
);
`

// NewSQLiteStore opens (or creates) the database at path and applies the
// schema. Use ":memory:" for an ephemeral store.
func NewSQLiteStore(ctx context.Context, path string) (Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, common.WrapError(err, "open sqlite database")
	}
	// modernc sqlite serializes writes; a single connection avoids
	// SQLITE_BUSY under concurrent puts.
	db.SetMaxOpenConns(1)
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		_ = db.Close()
		return nil, common.WrapError(err, "apply sqlite schema")
	}
	return &sqliteStore{db: db}, nil
}

// sqliteDocument is the JSON blob stored per document.
type sqliteDocument struct {
	DocumentID    string               `json:"document_id"`
	CaseID        string               `json:"case_id"`
	FileName      string               `json:"file_name"`
	FilePath      string               `json:"file_path"`
	MimeType      string               `json:"mime_type"`
	Status        string               `json:"status"`
	RawText       string               `json:"raw_text,omitempty"`
	OCRConfidence float64              `json:"ocr_confidence,omitempty"`
	Fields        []trf.ExtractedField `json:"fields,omitempty"`
	Error         string               `json:"error,omitempty"`
	UploadedAt    time.Time            `json:"uploaded_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

type sqliteCase struct {
	CaseID    string               `json:"case_id"`
	Fields    []trf.ExtractedField `json:"fields,omitempty"`
	Revision  int64                `json:"revision"`
	UpdatedAt time.Time            `json:"updated_at"`
}

func (s *sqliteStore) GetDocument(ctx context.Context, id uuid.UUID) (*trf.DocumentRecord, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM documents WHERE document_id = ?`, id.String()).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, common.WrapError(err, "select document")
	}
	return decodeDocumentBlob(blob)
}

func (s *sqliteStore) PutDocument(ctx context.Context, doc *trf.DocumentRecord) error {
	doc.UpdatedAt = time.Now().UTC()
	blob, err := json.Marshal(sqliteDocument{
		DocumentID:    doc.DocumentID.String(),
		CaseID:        doc.CaseID.String(),
		FileName:      doc.FileName,
		FilePath:      doc.FilePath,
		MimeType:      doc.MimeType,
		Status:        string(doc.Status),
		RawText:       doc.RawText,
		OCRConfidence: doc.OCRConfidence,
		Fields:        fieldList(doc.Fields),
		Error:         doc.Error,
		UploadedAt:    doc.UploadedAt,
		UpdatedAt:     doc.UpdatedAt,
	})
	if err != nil {
		return common.WrapError(err, "encode document")
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO documents (document_id, case_id, uploaded_at, doc)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(document_id) DO UPDATE SET case_id = excluded.case_id, doc = excluded.doc`,
		doc.DocumentID.String(), doc.CaseID.String(),
		doc.UploadedAt.UTC().Format(time.RFC3339Nano), string(blob))
	if err != nil {
		return common.WrapError(err, "upsert document")
	}
	return nil
}

func (s *sqliteStore) ListDocuments(ctx context.Context) ([]*trf.DocumentRecord, error) {
	return s.listDocuments(ctx,
		`SELECT doc FROM documents ORDER BY uploaded_at`)
}

func (s *sqliteStore) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*trf.DocumentRecord, error) {
	return s.listDocuments(ctx,
		`SELECT doc FROM documents WHERE case_id = ? ORDER BY uploaded_at`, caseID.String())
}

func (s *sqliteStore) listDocuments(ctx context.Context, query string, args ...any) ([]*trf.DocumentRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, common.WrapError(err, "list documents")
	}
	defer rows.Close()

	var out []*trf.DocumentRecord
	for rows.Next() {
		var blob string
		if err := rows.Scan(&blob); err != nil {
			return nil, common.WrapError(err, "scan document")
		}
		rec, err := decodeDocumentBlob(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, common.WrapError(err, "iterate documents")
	}
	return out, nil
}

func (s *sqliteStore) GetCase(ctx context.Context, caseID uuid.UUID) (*trf.CanonicalRecord, error) {
	var blob string
	err := s.db.QueryRowContext(ctx,
		`SELECT doc FROM cases WHERE case_id = ?`, caseID.String()).Scan(&blob)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, common.WrapError(err, "select case")
	}
	var c sqliteCase
	if err := json.Unmarshal([]byte(blob), &c); err != nil {
		return nil, common.WrapError(err, "decode case")
	}
	id, err := uuid.Parse(c.CaseID)
	if err != nil {
		return nil, common.WrapError(err, "parse stored case id")
	}
	return &trf.CanonicalRecord{
		CaseID:    id,
		Fields:    fieldMap(c.Fields),
		Revision:  c.Revision,
		UpdatedAt: c.UpdatedAt,
	}, nil
}

func (s *sqliteStore) PutCase(ctx context.Context, rec *trf.CanonicalRecord) error {
	next := sqliteCase{
		CaseID:    rec.CaseID.String(),
		Fields:    fieldList(rec.Fields),
		Revision:  rec.Revision + 1,
		UpdatedAt: time.Now().UTC(),
	}
	blob, err := json.Marshal(next)
	if err != nil {
		return common.WrapError(err, "encode case")
	}

	if rec.Revision == 0 {
		_, err = s.db.ExecContext(ctx, `
			INSERT INTO cases (case_id, revision, doc) VALUES (?, ?, ?)`,
			next.CaseID, next.Revision, string(blob))
		if err != nil {
			return common.WrapError(common.ErrPersistenceConflict, "case already exists")
		}
	} else {
		res, err := s.db.ExecContext(ctx, `
			UPDATE cases SET revision = ?, doc = ? WHERE case_id = ? AND revision = ?`,
			next.Revision, string(blob), next.CaseID, rec.Revision)
		if err != nil {
			return common.WrapError(err, "update case")
		}
		n, err := res.RowsAffected()
		if err != nil {
			return common.WrapError(err, "update case result")
		}
		if n == 0 {
			return common.WrapError(common.ErrPersistenceConflict, "case revision is stale")
		}
	}
	rec.Revision = next.Revision
	rec.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *sqliteStore) Close(context.Context) error {
	return s.db.Close()
}

func decodeDocumentBlob(blob string) (*trf.DocumentRecord, error) {
	var d sqliteDocument
	if err := json.Unmarshal([]byte(blob), &d); err != nil {
		return nil, common.WrapError(err, "decode document")
	}
	docID, err := uuid.Parse(d.DocumentID)
	if err != nil {
		return nil, common.WrapError(err, "parse stored document id")
	}
	caseID, err := uuid.Parse(d.CaseID)
	if err != nil {
		return nil, common.WrapError(err, "parse stored case id")
	}
	return &trf.DocumentRecord{
		DocumentID:    docID,
		CaseID:        caseID,
		FileName:      d.FileName,
		FilePath:      d.FilePath,
		MimeType:      d.MimeType,
		Status:        constants.DocumentStatus(d.Status),
		RawText:       d.RawText,
		OCRConfidence: d.OCRConfidence,
		Fields:        fieldMap(d.Fields),
		Error:         d.Error,
		UploadedAt:    d.UploadedAt,
		UpdatedAt:     d.UpdatedAt,
	}, nil
}
