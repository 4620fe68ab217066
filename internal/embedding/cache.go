package embedding

import (
	"database/sql"
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	_ "modernc.org/sqlite"

	"tablechain/internal/logging"
)

// cacheEntry is one cached embedding. Degraded marks vectors produced by
// the fallback engine so consumers can tell real similarity from degraded.
type cacheEntry struct {
	vec      []float32
	degraded bool
}

// Cache is a concurrent-safe normalized-text -> vector map, optionally
// backed by a SQLite file so embeddings survive across runs. Writes are
// idempotent: recomputing and overwriting an entry is harmless, so readers
// only need the map lock, no cross-process coordination.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	db      *sql.DB
}

// NewCache creates a memory-only cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[string]cacheEntry)}
}

// OpenCache creates a cache persisted at the given SQLite path, loading
// all existing entries into memory.
func OpenCache(path string) (*Cache, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open embedding cache: %w", err)
	}

	const schema = `CREATE TABLE IF NOT EXISTS embeddings (
		key      TEXT PRIMARY KEY,
		dim      INTEGER NOT NULL,
		degraded INTEGER NOT NULL,
		vec      BLOB NOT NULL
	)`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to init embedding cache schema: %w", err)
	}

	c := &Cache{entries: make(map[string]cacheEntry), db: db}
	if err := c.loadAll(); err != nil {
		db.Close()
		return nil, err
	}
	logging.Get(logging.CategoryEmbedding).Info("embedding cache loaded, entries=%d path=%s", len(c.entries), path)
	return c, nil
}

func (c *Cache) loadAll() error {
	rows, err := c.db.Query(`SELECT key, degraded, vec FROM embeddings`)
	if err != nil {
		return fmt.Errorf("failed to read embedding cache: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var key string
		var degraded int
		var blob []byte
		if err := rows.Scan(&key, &degraded, &blob); err != nil {
			return fmt.Errorf("failed to scan embedding cache row: %w", err)
		}
		c.entries[key] = cacheEntry{vec: decodeVector(blob), degraded: degraded != 0}
	}
	return rows.Err()
}

// Get returns the cached vector for key, if present.
func (c *Cache) Get(key string) ([]float32, bool, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[key]
	if !ok {
		return nil, false, false
	}
	return e.vec, e.degraded, true
}

// Put stores a vector. The SQLite write-through is best-effort: a failed
// persist only costs a recompute next run.
func (c *Cache) Put(key string, vec []float32, degraded bool) {
	c.mu.Lock()
	c.entries[key] = cacheEntry{vec: vec, degraded: degraded}
	db := c.db
	c.mu.Unlock()

	if db == nil {
		return
	}
	d := 0
	if degraded {
		d = 1
	}
	_, err := db.Exec(
		`INSERT OR REPLACE INTO embeddings (key, dim, degraded, vec) VALUES (?, ?, ?, ?)`,
		key, len(vec), d, encodeVector(vec),
	)
	if err != nil {
		logging.Get(logging.CategoryEmbedding).Warn("embedding cache persist failed: %v", err)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Close closes the backing database, if any.
func (c *Cache) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.db == nil {
		return nil
	}
	err := c.db.Close()
	c.db = nil
	return err
}

func encodeVector(vec []float32) []byte {
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeVector(buf []byte) []float32 {
	vec := make([]float32, len(buf)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
