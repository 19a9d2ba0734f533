// Package backend provides the storage interface for the vector memory
// system and its sqlite-vec implementation.
package backend

import (
	"context"

	"github.com/haasonsaas/nexus/pkg/models"
)

// Backend defines the interface a vector storage implementation must
// satisfy. In the sqlitevec implementation Index takes a per-scope exclusive
// lock and Search a per-scope read lock, so Search may run concurrently with
// other reads; Delete and SetImportance take no scope lock.
type Backend interface {
	// Index stores records with their embeddings.
	Index(ctx context.Context, records []*models.MemoryRecord) error

	// Search finds similar records within scope using the query embedding.
	Search(ctx context.Context, embedding []float32, opts *SearchOptions) ([]*models.SearchResult, error)

	// SetImportance updates the one mutable field on an existing record.
	SetImportance(ctx context.Context, id string, importance float32) error

	// Delete removes records by ID.
	Delete(ctx context.Context, ids []string) error

	// Count returns the number of records in scope.
	Count(ctx context.Context, scope models.MemoryScope) (int64, error)

	// Close releases resources.
	Close() error
}

// SearchOptions defines options for a backend search call.
type SearchOptions struct {
	Scope     models.MemoryScope
	Limit     int
	Threshold float32
}

// Config contains common backend configuration.
type Config struct {
	Dimension int
}
