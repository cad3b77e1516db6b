package handler

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/indexer/schema"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/facet-search/internal/ingestion/validator"
	apperrors "github.com/Adithya-Monish-Kumar-K/facet-search/pkg/errors"
	"github.com/Adithya-Monish-Kumar-K/facet-search/pkg/logger"
)

const maxBodyBytes = 4 << 20

// Flusher commits buffered documents to a new segment.
type Flusher interface {
	Flush() error
}

type publishingSink interface {
	Publish(ctx context.Context, doc schema.NamedDocument) (string, error)
}

type Handler struct {
	schema  *schema.Schema
	sink    ingestion.Sink
	flusher Flusher
	logger  *slog.Logger
}

// New creates a Handler. flusher may be nil when documents are forwarded
// rather than indexed locally.
func New(s *schema.Schema, sink ingestion.Sink, flusher Flusher) *Handler {
	return &Handler{
		schema:  s,
		sink:    sink,
		flusher: flusher,
		logger:  slog.Default().With("component", "ingestion-handler"),
	}
}

func (h *Handler) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/documents", h.Ingest)
	mux.HandleFunc("POST /api/v1/flush", h.Flush)
	mux.HandleFunc("GET /api/v1/schema", h.Schema)
}

func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)
	var rec ingestion.Record
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&rec); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	doc := rec.Named()
	if err := validator.ValidateDocument(h.schema, doc); err != nil {
		var validationErr *validator.ValidationError
		if errors.As(err, &validationErr) {
			h.writeJSON(w, http.StatusBadRequest, map[string]any{
				"error":  "validation failed",
				"fields": validationErr.Fields,
			})
			return
		}
		h.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.add(r, doc)
	if err != nil {
		statusCode := apperrors.HTTPStatusCode(err)
		log.Error("ingestion failed", "error", err, "status_code", statusCode)
		h.writeError(w, statusCode, "ingestion failed")
		return
	}
	log.Debug("document accepted", "doc_id", id)
	h.writeJSON(w, http.StatusAccepted, ingestion.IngestResponse{DocumentID: id, Status: "accepted"})
}

// add forwards doc to the sink, keeping the ID a publishing sink assigns.
func (h *Handler) add(r *http.Request, doc schema.NamedDocument) (string, error) {
	if p, ok := h.sink.(publishingSink); ok {
		return p.Publish(r.Context(), doc)
	}
	if err := h.sink.Add(r.Context(), doc); err != nil {
		return "", err
	}
	return uuid.NewString(), nil
}

func (h *Handler) Flush(w http.ResponseWriter, r *http.Request) {
	if h.flusher == nil {
		h.writeError(w, http.StatusServiceUnavailable, "flush is not available on this node")
		return
	}
	if err := h.flusher.Flush(); err != nil {
		logger.FromContext(r.Context()).Error("flush failed", "error", err)
		h.writeError(w, http.StatusInternalServerError, "flush failed")
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"status": "flushed"})
}

func (h *Handler) Schema(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, http.StatusOK, h.schema)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.logger.Error("failed to write response", "error", err)
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
