// Package memory implements the long-term vector store (L3): a global scope
// visible to every chat plus a per-chat scope, backed by a pure-Go sqlite
// vector table and a local embedding model.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/haasonsaas/nexus/internal/agent"
	"github.com/haasonsaas/nexus/internal/memory/backend"
	"github.com/haasonsaas/nexus/internal/memory/backend/sqlitevec"
	"github.com/haasonsaas/nexus/internal/memory/embeddings"
	"github.com/haasonsaas/nexus/internal/memory/embeddings/ollama"
	"github.com/haasonsaas/nexus/pkg/models"
)

// Config contains configuration for the memory manager.
type Config struct {
	Enabled   bool   `yaml:"enabled"`
	Dimension int    `yaml:"dimension"` // must match the embedding model

	SQLiteVec  SQLiteVecConfig  `yaml:"sqlite_vec"`
	Embeddings EmbeddingsConfig `yaml:"embeddings"`
	Indexing   IndexingConfig   `yaml:"indexing"`
	Search     SearchConfig     `yaml:"search"`
}

// SQLiteVecConfig contains sqlite-vec specific configuration.
type SQLiteVecConfig struct {
	Path string `yaml:"path"`
}

// EmbeddingsConfig contains embedding provider configuration.
type EmbeddingsConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
}

// IndexingConfig contains configuration for automatic indexing.
type IndexingConfig struct {
	MinContentLength int `yaml:"min_content_length"`
	BatchSize        int `yaml:"batch_size"`
}

// SearchConfig contains default search parameters. KMin and KMax are
// defaulted here but not read by the context manager, which caps retrieval
// at 12 results on its own.
type SearchConfig struct {
	DefaultLimit     int     `yaml:"default_limit"`
	DefaultThreshold float32 `yaml:"default_threshold"`
	KMin             int     `yaml:"k_min"`
	KMax             int     `yaml:"k_max"`
}

// DefaultConfig returns the memory defaults applied when config omits them.
func DefaultConfig() Config {
	return Config{
		Enabled:   true,
		Dimension: 768,
		Indexing:  IndexingConfig{MinContentLength: 10, BatchSize: 100},
		Search:    SearchConfig{DefaultLimit: 10, DefaultThreshold: 0.7, KMin: 2, KMax: 12},
	}
}

// Manager coordinates L3 storage and retrieval across the global scope and
// every chat scope.
type Manager struct {
	backend  backend.Backend
	embedder embeddings.Provider
	config   *Config
	cache    *embeddingCache
	mu       sync.RWMutex
}

// NewManager wires the sqlite backend to the configured local embedding
// model. Returns (nil, nil) when memory is disabled, so callers can treat a
// nil Manager as "L3 retrieval always returns nothing" without branching.
func NewManager(cfg *Config) (*Manager, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 768
	}
	if cfg.Indexing.BatchSize == 0 {
		cfg.Indexing.BatchSize = 100
	}
	if cfg.Indexing.MinContentLength == 0 {
		cfg.Indexing.MinContentLength = 10
	}
	if cfg.Search.DefaultLimit == 0 {
		cfg.Search.DefaultLimit = 10
	}
	if cfg.Search.DefaultThreshold == 0 {
		cfg.Search.DefaultThreshold = 0.7
	}
	if cfg.Search.KMin == 0 {
		cfg.Search.KMin = 2
	}
	if cfg.Search.KMax == 0 {
		cfg.Search.KMax = 12
	}

	b, err := sqlitevec.New(sqlitevec.Config{Path: cfg.SQLiteVec.Path, Dimension: cfg.Dimension})
	if err != nil {
		return nil, fmt.Errorf("initialize sqlite-vec backend: %w", err)
	}

	emb, err := ollama.New(ollama.Config{BaseURL: cfg.Embeddings.BaseURL, Model: cfg.Embeddings.Model})
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("initialize embedding provider: %w", err)
	}
	if emb.Dimension() != cfg.Dimension {
		b.Close()
		return nil, &agent.MemoryError{Op: "open index", Cause: fmt.Errorf("dimension mismatch: config=%d, embedder=%d", cfg.Dimension, emb.Dimension())}
	}

	return &Manager{
		backend:  b,
		embedder: emb,
		config:   cfg,
		cache:    newEmbeddingCache(1000),
	}, nil
}

// Add embeds and stores content in the given scope. Records are immutable
// once written; call SetImportance to revise the one mutable field.
func (m *Manager) Add(ctx context.Context, scope models.MemoryScope, content string, tags []string) (*models.MemoryRecord, error) {
	if m == nil {
		return nil, nil
	}
	if len(content) < m.config.Indexing.MinContentLength {
		return nil, fmt.Errorf("content shorter than minimum indexable length (%d)", m.config.Indexing.MinContentLength)
	}

	embedding, err := m.embedder.Embed(ctx, content)
	if err != nil {
		return nil, fmt.Errorf("embed content: %w", err)
	}

	record := &models.MemoryRecord{
		ID:         uuid.New().String(),
		Scope:      scope,
		Content:    content,
		Embedding:  embedding,
		Importance: 1.0,
		Tags:       tags,
		CreatedAt:  time.Now(),
	}

	if err := m.backend.Index(ctx, []*models.MemoryRecord{record}); err != nil {
		return nil, fmt.Errorf("index record: %w", err)
	}
	return record, nil
}

// Search finds records relevant to query across the given scopes (typically
// global plus the active chat's scope), merging and re-ranking by score.
func (m *Manager) Search(ctx context.Context, req *models.SearchRequest) (*models.SearchResponse, error) {
	if m == nil {
		return &models.SearchResponse{}, nil
	}
	start := time.Now()

	limit := req.Limit
	if limit <= 0 {
		limit = m.config.Search.DefaultLimit
	}
	threshold := req.Threshold
	if threshold <= 0 {
		threshold = m.config.Search.DefaultThreshold
	}
	scopes := req.Scopes
	if len(scopes) == 0 {
		scopes = []models.MemoryScope{models.GlobalScope}
	}

	cacheKey := req.Query
	queryEmbed, ok := m.cache.get(cacheKey)
	if !ok {
		embed, err := m.embedder.Embed(ctx, req.Query)
		if err != nil {
			return nil, fmt.Errorf("embed query: %w", err)
		}
		queryEmbed = embed
		m.cache.set(cacheKey, embed)
	}

	merged := make(map[string]*models.SearchResult)
	for _, scope := range scopes {
		found, err := m.backend.Search(ctx, queryEmbed, &backend.SearchOptions{
			Scope:     scope,
			Limit:     limit,
			Threshold: threshold,
		})
		if err != nil {
			return nil, fmt.Errorf("search scope %s: %w", scope, err)
		}
		for _, res := range found {
			if res == nil || res.Record == nil {
				continue
			}
			if existing, ok := merged[res.Record.ID]; !ok || res.Score > existing.Score {
				merged[res.Record.ID] = res
			}
		}
	}

	results := make([]*models.SearchResult, 0, len(merged))
	for _, r := range merged {
		results = append(results, r)
	}
	sortResultsByScoreDesc(results)
	if len(results) > limit {
		results = results[:limit]
	}

	return &models.SearchResponse{Results: results, QueryTime: time.Since(start)}, nil
}

// SetImportance revises the one mutable field on an existing record.
func (m *Manager) SetImportance(ctx context.Context, id string, importance float32) error {
	if m == nil {
		return nil
	}
	return m.backend.SetImportance(ctx, id, importance)
}

// Delete removes records by ID. Compressed summaries that reference a
// deleted record's facts are left as-is: a summary is a self-contained
// snapshot of what was known at compression time, not a live view.
func (m *Manager) Delete(ctx context.Context, ids []string) error {
	if m == nil {
		return nil
	}
	return m.backend.Delete(ctx, ids)
}

// Count returns the number of records in scope.
func (m *Manager) Count(ctx context.Context, scope models.MemoryScope) (int64, error) {
	if m == nil {
		return 0, nil
	}
	return m.backend.Count(ctx, scope)
}

// Close releases all resources. Calling Close flushes nothing extra because
// every write already committed a transaction on the way in.
func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	return m.backend.Close()
}

func sortResultsByScoreDesc(results []*models.SearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}

// embeddingCache is a small capacity-bounded cache for query embeddings,
// avoiding a redundant embed() call when the same query text (e.g. the
// current user turn) is searched against multiple scopes.
type embeddingCache struct {
	mu       sync.RWMutex
	items    map[string][]float32
	order    []string
	capacity int
}

func newEmbeddingCache(capacity int) *embeddingCache {
	return &embeddingCache{items: make(map[string][]float32), capacity: capacity}
}

func (c *embeddingCache) get(key string) ([]float32, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.items[key]
	return v, ok
}

func (c *embeddingCache) set(key string, value []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.items[key]; !exists {
		c.order = append(c.order, key)
		if len(c.order) > c.capacity {
			oldest := c.order[0]
			c.order = c.order[1:]
			delete(c.items, oldest)
		}
	}
	c.items[key] = value
}
