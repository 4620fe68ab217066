package chain

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// Checkpoint persists the full chain set of a chapter after each
// completed year, so an aborted run resumes from the last finished year
// instead of reprocessing the chapter. Year boundaries are the only
// write points: a partially applied year is never observable on disk.
type Checkpoint struct {
	db *sql.DB
}

const checkpointSchema = `
CREATE TABLE IF NOT EXISTS checkpoints (
	chapter  INTEGER NOT NULL,
	year     INTEGER NOT NULL,
	saved_at TEXT    NOT NULL,
	chains   BLOB    NOT NULL,
	PRIMARY KEY (chapter, year)
);`

// OpenCheckpoint opens (creating if needed) the checkpoint database at
// path.
func OpenCheckpoint(path string) (*Checkpoint, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open checkpoint db: %w", err)
	}
	if _, err := db.Exec(checkpointSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("create checkpoint schema: %w", err)
	}
	return &Checkpoint{db: db}, nil
}

// SaveYear writes the chain set as of the end of (chapter, year). Every
// chain is validated first; a broken invariant must fail the save, not
// be persisted.
func (cp *Checkpoint) SaveYear(ctx context.Context, chapter, year int, chains []*Chain) error {
	for _, c := range chains {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("refusing to checkpoint: %w", err)
		}
	}
	blob, err := json.Marshal(chains)
	if err != nil {
		return fmt.Errorf("marshal chains: %w", err)
	}

	tx, err := cp.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin checkpoint tx: %w", err)
	}
	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO checkpoints (chapter, year, saved_at, chains) VALUES (?, ?, ?, ?)`,
		chapter, year, time.Now().UTC().Format(time.RFC3339), blob)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("write checkpoint chapter %d year %d: %w", chapter, year, err)
	}
	return tx.Commit()
}

// LoadLatest returns the chain set from the most recent completed year
// of the chapter, and that year. When the chapter has no checkpoint it
// returns (nil, 0, nil).
func (cp *Checkpoint) LoadLatest(ctx context.Context, chapter int) ([]*Chain, int, error) {
	row := cp.db.QueryRowContext(ctx,
		`SELECT year, chains FROM checkpoints WHERE chapter = ? ORDER BY year DESC LIMIT 1`, chapter)

	var year int
	var blob []byte
	if err := row.Scan(&year, &blob); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, 0, nil
		}
		return nil, 0, fmt.Errorf("read checkpoint for chapter %d: %w", chapter, err)
	}

	var chains []*Chain
	if err := json.Unmarshal(blob, &chains); err != nil {
		return nil, 0, fmt.Errorf("decode checkpoint for chapter %d year %d: %w", chapter, year, err)
	}
	for _, c := range chains {
		if err := c.Validate(); err != nil {
			return nil, 0, fmt.Errorf("checkpoint for chapter %d year %d is corrupt: %w", chapter, year, err)
		}
	}
	return chains, year, nil
}

// Close closes the underlying database.
func (cp *Checkpoint) Close() error {
	return cp.db.Close()
}
