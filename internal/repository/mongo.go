package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/genesilico/trf-intake/constants"
	"github.com/genesilico/trf-intake/internal/common"
	"github.com/genesilico/trf-intake/internal/trf"
)

const (
	documentsCollection = "documents"
	casesCollection     = "cases"
)

type mongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewMongoStore connects to MongoDB and verifies the connection with a ping.
func NewMongoStore(ctx context.Context, uri, database string, dialTimeout time.Duration) (Store, error) {
	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, common.WrapError(err, "connect to mongodb")
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, common.WrapError(err, "ping mongodb")
	}
	return &mongoStore{client: client, db: client.Database(database)}, nil
}

// documentDoc is the stored shape of a DocumentRecord. IDs travel as strings
// and fields as an array because BSON map keys cannot contain dots.
type documentDoc struct {
	DocumentID    string                `bson:"_id"`
	CaseID        string                `bson:"case_id"`
	FileName      string                `bson:"file_name"`
	FilePath      string                `bson:"file_path"`
	MimeType      string                `bson:"mime_type"`
	Status        string                `bson:"status"`
	RawText       string                `bson:"raw_text,omitempty"`
	OCRConfidence float64               `bson:"ocr_confidence,omitempty"`
	Fields        []trf.ExtractedField  `bson:"fields,omitempty"`
	Error         string                `bson:"error,omitempty"`
	UploadedAt    time.Time             `bson:"uploaded_at"`
	UpdatedAt     time.Time             `bson:"updated_at"`
}

type caseDoc struct {
	CaseID    string               `bson:"_id"`
	Fields    []trf.ExtractedField `bson:"fields,omitempty"`
	Revision  int64                `bson:"revision"`
	UpdatedAt time.Time            `bson:"updated_at"`
}

func toDocumentDoc(doc *trf.DocumentRecord) documentDoc {
	return documentDoc{
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
	}
}

func (d documentDoc) toRecord() (*trf.DocumentRecord, error) {
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

func (s *mongoStore) GetDocument(ctx context.Context, id uuid.UUID) (*trf.DocumentRecord, error) {
	var d documentDoc
	err := s.db.Collection(documentsCollection).
		FindOne(ctx, bson.M{"_id": id.String()}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, common.WrapError(err, "find document")
	}
	return d.toRecord()
}

func (s *mongoStore) PutDocument(ctx context.Context, doc *trf.DocumentRecord) error {
	doc.UpdatedAt = time.Now().UTC()
	_, err := s.db.Collection(documentsCollection).ReplaceOne(
		ctx,
		bson.M{"_id": doc.DocumentID.String()},
		toDocumentDoc(doc),
		options.Replace().SetUpsert(true),
	)
	if err != nil {
		return common.WrapError(err, "upsert document")
	}
	return nil
}

func (s *mongoStore) ListDocuments(ctx context.Context) ([]*trf.DocumentRecord, error) {
	return s.listDocuments(ctx, bson.M{})
}

func (s *mongoStore) ListByCase(ctx context.Context, caseID uuid.UUID) ([]*trf.DocumentRecord, error) {
	return s.listDocuments(ctx, bson.M{"case_id": caseID.String()})
}

func (s *mongoStore) listDocuments(ctx context.Context, filter bson.M) ([]*trf.DocumentRecord, error) {
	cur, err := s.db.Collection(documentsCollection).
		Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: 1}}))
	if err != nil {
		return nil, common.WrapError(err, "list documents")
	}
	defer cur.Close(ctx)

	var out []*trf.DocumentRecord
	for cur.Next(ctx) {
		var d documentDoc
		if err := cur.Decode(&d); err != nil {
			return nil, common.WrapError(err, "decode document")
		}
		rec, err := d.toRecord()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := cur.Err(); err != nil {
		return nil, common.WrapError(err, "iterate documents")
	}
	return out, nil
}

func (s *mongoStore) GetCase(ctx context.Context, caseID uuid.UUID) (*trf.CanonicalRecord, error) {
	var d caseDoc
	err := s.db.Collection(casesCollection).
		FindOne(ctx, bson.M{"_id": caseID.String()}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, common.WrapError(err, "find case")
	}
	id, err := uuid.Parse(d.CaseID)
	if err != nil {
		return nil, common.WrapError(err, "parse stored case id")
	}
	return &trf.CanonicalRecord{
		CaseID:    id,
		Fields:    fieldMap(d.Fields),
		Revision:  d.Revision,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

// PutCase writes a canonical record guarded by its revision. New cases insert
// at revision 1; existing cases replace only when the stored revision still
// matches the one the caller read.
func (s *mongoStore) PutCase(ctx context.Context, rec *trf.CanonicalRecord) error {
	next := caseDoc{
		CaseID:    rec.CaseID.String(),
		Fields:    fieldList(rec.Fields),
		Revision:  rec.Revision + 1,
		UpdatedAt: time.Now().UTC(),
	}
	coll := s.db.Collection(casesCollection)

	if rec.Revision == 0 {
		if _, err := coll.InsertOne(ctx, next); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return common.WrapError(common.ErrPersistenceConflict, "case already exists")
			}
			return common.WrapError(err, "insert case")
		}
	} else {
		res, err := coll.ReplaceOne(ctx,
			bson.M{"_id": next.CaseID, "revision": rec.Revision}, next)
		if err != nil {
			return common.WrapError(err, "replace case")
		}
		if res.MatchedCount == 0 {
			return common.WrapError(common.ErrPersistenceConflict, "case revision is stale")
		}
	}
	rec.Revision = next.Revision
	rec.UpdatedAt = next.UpdatedAt
	return nil
}

func (s *mongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
