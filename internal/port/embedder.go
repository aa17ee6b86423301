package port

import "context"

// Input declares what a text is embedded as. Retrieval-tuned models
// treat stored passages and search queries differently; providers that
// make no distinction ignore it.
type Input string

const (
	InputDocument Input = "document"
	InputQuery    Input = "query"
)

// Embedder generates vector embeddings for text.
type Embedder interface {
	// Embed generates embeddings for the given texts, one vector per
	// input in input order. Batching is internal and invisible to the
	// caller. A partial failure is reported as *domain.BatchEmbedError.
	Embed(ctx context.Context, texts []string, kind Input) ([][]float32, error)

	// Dimension returns the embedding vector dimension.
	Dimension() int

	// ModelName returns the name of the embedding model.
	ModelName() string
}
