// Package knowledge implements the vector index behind rag_search:
// per-thread document collections in PostgreSQL with pgvector, an
// HuggingFace inference embedder, and the chunking ingestion pipeline.
package knowledge

// EmbeddingDim is fixed by the embedder model (BAAI/bge-small-en-v1.5)
// and by the vector(384) column in the thread_documents table.
const EmbeddingDim = 384

// Chunk is one immutable piece of an ingested document.
type Chunk struct {
	Content  string
	Source   string
	Position int
}

// IngestStats summarizes one ingestion run.
type IngestStats struct {
	Source string `json:"source"`
	Chunks int    `json:"chunks"`
}
