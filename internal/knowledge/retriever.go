package knowledge

import (
	"context"

	"github.com/arahq/ara/internal/tools"
)

var _ tools.Retriever = (*Store)(nil)

// Retrieve implements tools.Retriever, exposing the store to rag_search.
func (s *Store) Retrieve(ctx context.Context, threadID, query string, topK int) ([]tools.RetrievedChunk, error) {
	chunks, err := s.Search(ctx, threadID, query, topK)
	if err != nil {
		return nil, err
	}
	out := make([]tools.RetrievedChunk, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, tools.RetrievedChunk{
			Content:  c.Content,
			Source:   c.Source,
			Position: c.Position,
		})
	}
	return out, nil
}
