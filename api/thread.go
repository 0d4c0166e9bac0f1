package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/arahq/ara/internal/log"
	"github.com/arahq/ara/internal/thread"
)

// Pagination bounds for thread listing.
const (
	DefaultListLimit = 100
	MaxListLimit     = 1000
	MaxListOffset    = 100000
)

// ThreadReader is the read surface the thread endpoints need.
// *thread.Store implements it.
type ThreadReader interface {
	List(ctx context.Context, limit, offset int32) ([]thread.Thread, error)
	Get(ctx context.Context, threadID string) (thread.Thread, error)
	Load(ctx context.Context, threadID string) ([]thread.Message, error)
}

var _ ThreadReader = (*thread.Store)(nil)

// ThreadHandler serves the thread listing and history endpoints.
type ThreadHandler struct {
	store  ThreadReader
	logger log.Logger
}

// NewThreadHandler creates a thread handler.
func NewThreadHandler(store ThreadReader, logger log.Logger) *ThreadHandler {
	return &ThreadHandler{store: store, logger: logger}
}

// RegisterRoutes registers thread routes on mux.
func (h *ThreadHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/threads", h.list)
	mux.HandleFunc("GET /api/threads/{id}", h.get)
}

// ThreadSummary is the JSON shape of one thread in listings.
type ThreadSummary struct {
	ID           string    `json:"id"`
	Title        string    `json:"title"`
	MessageCount int       `json:"message_count"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func toSummary(t thread.Thread) ThreadSummary {
	return ThreadSummary{
		ID:           t.ID,
		Title:        t.Title,
		MessageCount: t.MessageCount,
		CreatedAt:    t.CreatedAt,
		UpdatedAt:    t.UpdatedAt,
	}
}

// list returns threads newest-first.
// Query parameters: limit (default 100, max 1000), offset.
func (h *ThreadHandler) list(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", DefaultListLimit, 1, MaxListLimit)
	offset := parseIntParam(r, "offset", 0, 0, MaxListOffset)

	threads, err := h.store.List(r.Context(), int32(limit), int32(offset)) //nolint:gosec // bounded above
	if err != nil {
		h.logger.Error("failed to list threads", "error", err)
		writeError(w, http.StatusInternalServerError, "list_failed", "failed to list threads")
		return
	}

	summaries := make([]ThreadSummary, 0, len(threads))
	for _, t := range threads {
		summaries = append(summaries, toSummary(t))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"threads": summaries,
		"total":   len(summaries),
		"limit":   limit,
		"offset":  offset,
	})
}

// get returns one thread with its full message history.
func (h *ThreadHandler) get(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	t, err := h.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, thread.ErrThreadNotFound) {
			writeError(w, http.StatusNotFound, "not_found", "thread not found")
			return
		}
		h.logger.Error("failed to load thread", "thread_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to load thread")
		return
	}

	messages, err := h.store.Load(r.Context(), id)
	if err != nil {
		h.logger.Error("failed to load messages", "thread_id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "load_failed", "failed to load messages")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"thread":   toSummary(t),
		"messages": messages,
	})
}

// parseIntParam parses an integer query parameter with bounds clamping.
func parseIntParam(r *http.Request, name string, defaultVal, minVal, maxVal int) int {
	str := r.URL.Query().Get(name)
	if str == "" {
		return defaultVal
	}
	val, err := strconv.Atoi(str)
	if err != nil {
		return defaultVal
	}
	if val < minVal {
		return minVal
	}
	if val > maxVal {
		return maxVal
	}
	return val
}
