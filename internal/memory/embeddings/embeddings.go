// Package embeddings provides the interface for embedding providers.
package embeddings

import "context"

// Provider generates fixed-dimension embeddings for L3 storage and search.
// The dimension is fixed for the lifetime of a vector store: switching
// models requires rebuilding the index.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
	Dimension() int
	MaxBatchSize() int
}
