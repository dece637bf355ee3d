// Package server exposes the intake service over HTTP.
package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/genesilico/trf-intake/internal/async"
	"github.com/genesilico/trf-intake/internal/common"
	"github.com/genesilico/trf-intake/internal/intake"
)

type Server struct {
	svc   *intake.Service
	queue async.Queue
	log   *slog.Logger
}

func New(svc *intake.Service, queue async.Queue, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{svc: svc, queue: queue, log: logger}
}

// Router wires the HTTP surface.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/documents", s.handleRegisterDocument).Methods(http.MethodPost)
	v1.HandleFunc("/documents", s.handleListDocuments).Methods(http.MethodGet)
	v1.HandleFunc("/documents/{id}/process", s.handleProcessDocument).Methods(http.MethodPost)
	v1.HandleFunc("/documents/{id}/status", s.handleDocumentStatus).Methods(http.MethodGet)
	v1.HandleFunc("/documents/{id}/review", s.handleReviewDocument).Methods(http.MethodPost)

	v1.HandleFunc("/cases/{id}", s.handleGetCase).Methods(http.MethodGet)
	v1.HandleFunc("/cases/{id}/reprocess", s.handleReprocessCase).Methods(http.MethodPost)
	v1.HandleFunc("/cases/{id}/fields/{field}", s.handleUpdateField).Methods(http.MethodPatch)
	v1.HandleFunc("/cases/{id}/suggestions", s.handleSuggestions).Methods(http.MethodGet)
	v1.HandleFunc("/cases/{id}/query", s.handleQuery).Methods(http.MethodPost)
	v1.HandleFunc("/cases/{id}/guidance", s.handleGuidance).Methods(http.MethodGet)
	v1.HandleFunc("/cases/{id}/export", s.handleExport).Methods(http.MethodGet)
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type registerRequest struct {
	CaseID   string `json:"case_id,omitempty"`
	FileName string `json:"file_name"`
	FilePath string `json:"file_path"`
	MimeType string `json:"mime_type,omitempty"`
	Process  bool   `json:"process,omitempty"`
}

func (s *Server) handleRegisterDocument(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, common.WrapError(common.ErrInvalidInput, "decode request body"))
		return
	}
	reg := intake.Registration{
		FileName: req.FileName,
		FilePath: req.FilePath,
		MimeType: req.MimeType,
	}
	if req.CaseID != "" {
		caseID, err := uuid.Parse(req.CaseID)
		if err != nil {
			s.writeError(w, common.WrapError(common.ErrInvalidInput, "invalid case_id"))
			return
		}
		reg.CaseID = caseID
	}
	doc, err := s.svc.RegisterDocument(r.Context(), reg)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if req.Process {
		_ = s.queue.Enqueue(r.Context(), async.Job{
			DocumentID:  doc.DocumentID,
			SubmittedAt: time.Now().UTC(),
			TraceID:     uuid.NewString(),
		})
	}
	writeJSON(w, http.StatusCreated, doc)
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	if raw := r.URL.Query().Get("case_id"); raw != "" {
		caseID, err := uuid.Parse(raw)
		if err != nil {
			s.writeError(w, common.WrapError(common.ErrInvalidInput, "invalid case_id"))
			return
		}
		docs, err := s.svc.ListCaseDocuments(r.Context(), caseID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, docs)
		return
	}
	docs, err := s.svc.ListDocuments(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, docs)
}

func (s *Server) handleProcessDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	if r.URL.Query().Get("async") == "true" {
		_ = s.queue.Enqueue(r.Context(), async.Job{
			DocumentID:  id,
			SubmittedAt: time.Now().UTC(),
			TraceID:     uuid.NewString(),
		})
		writeJSON(w, http.StatusAccepted, map[string]string{"document_id": id.String(), "queued": "true"})
		return
	}
	res, err := s.svc.Process(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleDocumentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	doc, err := s.svc.Status(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleReviewDocument(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	doc, err := s.svc.MarkReviewed(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (s *Server) handleGetCase(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	rec, violations, err := s.svc.GetCanonical(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"case":       rec,
		"record":     rec.Nested(),
		"violations": violations,
	})
}

func (s *Server) handleReprocessCase(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	results, err := s.svc.ReprocessCase(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type updateFieldRequest struct {
	Value string `json:"value"`
}

func (s *Server) handleUpdateField(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	field := mux.Vars(r)["field"]
	var req updateFieldRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, common.WrapError(common.ErrInvalidInput, "decode request body"))
		return
	}
	rec, err := s.svc.UpdateField(r.Context(), id, field, req.Value)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleSuggestions(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	suggestions, err := s.svc.GetSuggestions(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestions": suggestions})
}

type queryRequest struct {
	Field    string `json:"field"`
	Question string `json:"question"`
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, common.WrapError(common.ErrInvalidInput, "decode request body"))
		return
	}
	suggestion, err := s.svc.QueryAgent(r.Context(), id, req.Field, req.Question)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"suggestion": suggestion})
}

func (s *Server) handleGuidance(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	g, err := s.svc.Guidance(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathUUID(w, r, "id")
	if !ok {
		return
	}
	data, err := s.svc.ExportWorklist(r.Context(), id)
	if err != nil {
		s.writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", "worklist-"+id.String()+".xlsx"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

func (s *Server) pathUUID(w http.ResponseWriter, r *http.Request, key string) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)[key])
	if err != nil {
		s.writeError(w, common.WrapError(common.ErrInvalidInput, "invalid "+key))
		return uuid.Nil, false
	}
	return id, true
}

// writeError maps the failure taxonomy onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, common.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, common.ErrInvalidInput), errors.Is(err, common.ErrInvalidOverride):
		status = http.StatusBadRequest
	case errors.Is(err, common.ErrPersistenceConflict):
		status = http.StatusConflict
	case errors.Is(err, common.ErrOCRUnavailable), errors.Is(err, common.ErrInferenceUnavailable):
		status = http.StatusBadGateway
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("http.request_failed", "status", status, "error", err)
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
