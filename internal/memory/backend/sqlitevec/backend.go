// Package sqlitevec provides a vector storage backend using a pure-Go
// SQLite driver with brute-force cosine similarity in place of the vec0
// extension (which requires CGO).
package sqlitevec

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/haasonsaas/nexus/internal/memory/backend"
	"github.com/haasonsaas/nexus/pkg/models"
	_ "modernc.org/sqlite"
)

// Backend implements backend.Backend using sqlite with brute-force scoring.
// A per-scope mutex gives Index exclusive access to its scope while letting
// Search run concurrently against other scopes. Delete and SetImportance do
// not take a scope lock.
type Backend struct {
	db        *sql.DB
	dimension int

	scopeLocksMu sync.Mutex
	scopeLocks   map[models.MemoryScope]*sync.RWMutex
}

// Config contains configuration for the sqlite-vec backend.
type Config struct {
	Path      string
	Dimension int
}

// New creates a new sqlite-vec backend.
func New(cfg Config) (*Backend, error) {
	if cfg.Path == "" {
		cfg.Path = ":memory:"
	}
	if cfg.Dimension == 0 {
		cfg.Dimension = 768
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	b := &Backend{db: db, dimension: cfg.Dimension, scopeLocks: make(map[models.MemoryScope]*sync.RWMutex)}
	if err := b.init(); err != nil {
		db.Close()
		return nil, err
	}
	return b, nil
}

func (b *Backend) init() error {
	_, err := b.db.Exec(`
		CREATE TABLE IF NOT EXISTS records (
			id TEXT PRIMARY KEY,
			scope TEXT NOT NULL,
			content TEXT NOT NULL,
			tags TEXT,
			importance REAL NOT NULL DEFAULT 1.0,
			embedding BLOB,
			created_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create records table: %w", err)
	}
	_, err = b.db.Exec("CREATE INDEX IF NOT EXISTS idx_records_scope ON records(scope)")
	if err != nil {
		return fmt.Errorf("create scope index: %w", err)
	}
	return nil
}

func (b *Backend) lockScope(scope models.MemoryScope) *sync.RWMutex {
	b.scopeLocksMu.Lock()
	defer b.scopeLocksMu.Unlock()
	lock, ok := b.scopeLocks[scope]
	if !ok {
		lock = &sync.RWMutex{}
		b.scopeLocks[scope] = lock
	}
	return lock
}

// Index stores records with their embeddings, taking an exclusive lock per
// distinct scope present in the batch.
func (b *Backend) Index(ctx context.Context, records []*models.MemoryRecord) error {
	if len(records) == 0 {
		return nil
	}

	locked := make(map[models.MemoryScope]bool)
	for _, r := range records {
		if !locked[r.Scope] {
			lock := b.lockScope(r.Scope)
			lock.Lock()
			defer lock.Unlock()
			locked[r.Scope] = true
		}
	}

	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO records (id, scope, content, tags, importance, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		if r.CreatedAt.IsZero() {
			r.CreatedAt = time.Now()
		}
		if _, err := stmt.ExecContext(ctx, r.ID, string(r.Scope), r.Content, strings.Join(r.Tags, ","), r.Importance, encodeEmbedding(r.Embedding), r.CreatedAt); err != nil {
			return fmt.Errorf("insert record %s: %w", r.ID, err)
		}
	}
	return tx.Commit()
}

// Search scores every record in scope against the query embedding via
// brute-force cosine similarity and returns the top results above threshold.
func (b *Backend) Search(ctx context.Context, queryEmbedding []float32, opts *backend.SearchOptions) ([]*models.SearchResult, error) {
	if opts == nil {
		opts = &backend.SearchOptions{Limit: 10}
	}
	if opts.Limit <= 0 {
		opts.Limit = 10
	}

	lock := b.lockScope(opts.Scope)
	lock.RLock()
	defer lock.RUnlock()

	rows, err := b.db.QueryContext(ctx, `SELECT id, scope, content, tags, importance, embedding, created_at FROM records WHERE scope = ?`, string(opts.Scope))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var results []*models.SearchResult
	for rows.Next() {
		record, embeddingBlob, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		score := cosineSimilarity(queryEmbedding, decodeEmbedding(embeddingBlob))
		if opts.Threshold > 0 && score < opts.Threshold {
			continue
		}
		results = append(results, &models.SearchResult{Record: record, Score: score})
	}

	sortByScoreDesc(results)
	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}
	return results, nil
}

// SetImportance updates the one mutable field on an existing record.
func (b *Backend) SetImportance(ctx context.Context, id string, importance float32) error {
	_, err := b.db.ExecContext(ctx, "UPDATE records SET importance = ? WHERE id = ?", importance, id)
	if err != nil {
		return fmt.Errorf("update importance for %s: %w", id, err)
	}
	return nil
}

// Delete removes records by ID. Idempotent: deleting an unknown ID is a
// no-op, not an error.
func (b *Backend) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, "DELETE FROM records WHERE id = ?")
	if err != nil {
		return fmt.Errorf("prepare delete: %w", err)
	}
	defer stmt.Close()

	for _, id := range ids {
		if _, err := stmt.ExecContext(ctx, id); err != nil {
			return fmt.Errorf("delete record %s: %w", id, err)
		}
	}
	return tx.Commit()
}

// Count returns the number of records in scope.
func (b *Backend) Count(ctx context.Context, scope models.MemoryScope) (int64, error) {
	var count int64
	err := b.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM records WHERE scope = ?", string(scope)).Scan(&count)
	return count, err
}

// Close releases resources.
func (b *Backend) Close() error {
	return b.db.Close()
}

func scanRecord(rows *sql.Rows) (*models.MemoryRecord, []byte, error) {
	var r models.MemoryRecord
	var scope, tags string
	var embeddingBlob []byte

	if err := rows.Scan(&r.ID, &scope, &r.Content, &tags, &r.Importance, &embeddingBlob, &r.CreatedAt); err != nil {
		return nil, nil, fmt.Errorf("scan row: %w", err)
	}
	r.Scope = models.MemoryScope(scope)
	if tags != "" {
		r.Tags = strings.Split(tags, ",")
	}
	return &r, embeddingBlob, nil
}

func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	data := make([]byte, len(embedding)*4)
	for i, f := range embedding {
		bits := math.Float32bits(f)
		data[i*4] = byte(bits)
		data[i*4+1] = byte(bits >> 8)
		data[i*4+2] = byte(bits >> 16)
		data[i*4+3] = byte(bits >> 24)
	}
	return data
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 || len(data)%4 != 0 {
		return nil
	}
	embedding := make([]float32, len(data)/4)
	for i := range embedding {
		bits := uint32(data[i*4]) | uint32(data[i*4+1])<<8 | uint32(data[i*4+2])<<16 | uint32(data[i*4+3])<<24
		embedding[i] = math.Float32frombits(bits)
	}
	return embedding
}

func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float32
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (sqrt32(normA) * sqrt32(normB))
}

func sqrt32(x float32) float32 {
	if x <= 0 {
		return 0
	}
	z := x
	for i := 0; i < 10; i++ {
		z = (z + x/z) / 2
	}
	return z
}

func sortByScoreDesc(results []*models.SearchResult) {
	for i := 1; i < len(results); i++ {
		for j := i; j > 0 && results[j].Score > results[j-1].Score; j-- {
			results[j], results[j-1] = results[j-1], results[j]
		}
	}
}
