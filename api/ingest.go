package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/arahq/ara/internal/knowledge"
	"github.com/arahq/ara/internal/log"
)

// MaxIngestSize bounds one ingested document.
const MaxIngestSize = 4 << 20

// Ingestor indexes documents. *knowledge.Store implements it.
type Ingestor interface {
	Ingest(ctx context.Context, threadID, source, text string) (knowledge.IngestStats, error)
}

var _ Ingestor = (*knowledge.Store)(nil)

// IngestHandler serves the document ingestion endpoint.
type IngestHandler struct {
	store  Ingestor
	logger log.Logger
}

// NewIngestHandler creates an ingest handler.
func NewIngestHandler(store Ingestor, logger log.Logger) *IngestHandler {
	return &IngestHandler{store: store, logger: logger}
}

// RegisterRoutes registers ingest routes on mux.
func (h *IngestHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/ingest", h.handleIngest)
}

// IngestRequest is the request body for POST /api/ingest.
type IngestRequest struct {
	ThreadID string `json:"thread_id"`
	Source   string `json:"source"`
	Content  string `json:"content"`
}

func (h *IngestHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, MaxIngestSize)

	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_request", "invalid request body")
		return
	}
	if req.ThreadID == "" {
		writeError(w, http.StatusBadRequest, "invalid_request", "thread_id is required")
		return
	}
	if req.Source == "" {
		req.Source = "document"
	}

	stats, err := h.store.Ingest(r.Context(), req.ThreadID, req.Source, req.Content)
	if err != nil {
		if errors.Is(err, knowledge.ErrNoContent) {
			writeError(w, http.StatusBadRequest, "no_content", "content has nothing to index")
			return
		}
		h.logger.Error("ingestion failed",
			"thread_id", req.ThreadID,
			"source", req.Source,
			"error", err)
		writeError(w, http.StatusBadGateway, "ingest_failed", "failed to index the document")
		return
	}

	writeJSON(w, http.StatusCreated, stats)
}
