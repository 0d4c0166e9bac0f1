package tools

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
)

// NoDocumentsPayload is returned when the thread has nothing indexed.
// It is a payload, not an error: the model decides how to proceed.
const NoDocumentsPayload = "no documents available"

// RetrievedChunk is one scored chunk returned by the retriever.
type RetrievedChunk struct {
	Content  string
	Source   string
	Position int
}

// Retriever provides thread-scoped semantic document search.
// Defined here by the consumer; the knowledge package implements it.
type Retriever interface {
	Retrieve(ctx context.Context, threadID, query string, topK int) ([]RetrievedChunk, error)
}

// RAGInput is the argument object for rag_search.
type RAGInput struct {
	Query string `json:"query" jsonschema_description:"What to look up in the uploaded documents"`
}

// NewRAGSearch builds the rag_search tool. Retrieval is scoped to the
// thread ID carried in the dispatch context; a thread can never see
// another thread's documents.
func NewRAGSearch(retriever Retriever, topK int, logger *slog.Logger) (Tool, error) {
	if logger == nil {
		logger = slog.Default()
	}
	return New("rag_search",
		"Search the documents uploaded to this conversation. Use when the question refers to provided files or pasted material.",
		func(ctx context.Context, in RAGInput) (string, error) {
			threadID := ThreadIDFromContext(ctx)
			if threadID == "" {
				return NoDocumentsPayload, nil
			}

			chunks, err := retriever.Retrieve(ctx, threadID, in.Query, topK)
			if err != nil {
				return "", fmt.Errorf("retrieval failed: %w", err)
			}
			if len(chunks) == 0 {
				logger.Debug("rag_search found nothing", "thread_id", threadID)
				return NoDocumentsPayload, nil
			}

			var b strings.Builder
			for i, c := range chunks {
				if i > 0 {
					b.WriteString("\n\n")
				}
				fmt.Fprintf(&b, "[source: %s, chunk %d]\n%s", c.Source, c.Position, c.Content)
			}
			return b.String(), nil
		})
}
