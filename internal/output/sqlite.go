package output

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/jmylchreest/catalogcrawl/internal/logger"
	"github.com/jmylchreest/catalogcrawl/pkg/site"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS records (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	partition_key TEXT NOT NULL DEFAULT '',
	site          TEXT NOT NULL,
	product_url   TEXT,
	category      TEXT,
	data          TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS records_partition ON records (partition_key);
`

const sqliteInsert = `INSERT INTO records (partition_key, site, product_url, category, data) VALUES (?, ?, ?, ?, ?)`

// SQLiteSink stores one row per record. Rows go into a temporary database
// inside a single transaction that is committed and moved into place by
// Finalize.
type SQLiteSink struct {
	mu        sync.Mutex
	path      string
	tmpPath   string
	db        *sql.DB
	tx        *sql.Tx
	insert    *sql.Stmt
	partition Partition
	done      bool
}

// NewSQLiteSink creates a SQLite sink writing to path.
func NewSQLiteSink(path string, opts ...SinkOption) (*SQLiteSink, error) {
	if path == "" || path == "-" {
		return nil, fmt.Errorf("sqlite output requires a file path")
	}
	cfg := newSinkConfig(opts)

	tmp, err := createTemp(path)
	if err != nil {
		return nil, err
	}
	tmpPath := tmp.Name()
	_ = tmp.Close()

	s := &SQLiteSink{path: path, tmpPath: tmpPath, partition: cfg.partition}
	if err := s.open(); err != nil {
		s.discard()
		return nil, err
	}

	logger.Debug("sqlite sink opened", "path", path, "temp", tmpPath, "partition", cfg.partition)
	return s, nil
}

func (s *SQLiteSink) open() error {
	db, err := sql.Open("sqlite", s.tmpPath)
	if err != nil {
		return fmt.Errorf("failed to open sqlite output: %w", err)
	}
	db.SetMaxOpenConns(1)
	s.db = db

	if _, err := db.Exec(sqliteSchema); err != nil {
		return fmt.Errorf("failed to create sqlite schema: %w", err)
	}
	if s.tx, err = db.Begin(); err != nil {
		return fmt.Errorf("failed to begin sqlite transaction: %w", err)
	}
	if s.insert, err = s.tx.Prepare(sqliteInsert); err != nil {
		return fmt.Errorf("failed to prepare sqlite insert: %w", err)
	}
	return nil
}

// Accept inserts one row. The full record is stored as JSON in the data
// column; product_url and category are also broken out.
func (s *SQLiteSink) Accept(siteName string, rec map[string]any) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode record: %w", err)
	}
	productURL, _ := rec[site.KeyProductURL].(string)
	category, _ := rec[site.KeyCategory].(string)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrFinalized
	}
	_, err = s.insert.Exec(s.partition.Key(siteName, rec), siteName, productURL, category, string(data))
	return err
}

// Finalize commits the transaction and moves the database into place.
func (s *SQLiteSink) Finalize() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return ErrFinalized
	}
	s.done = true

	if err := s.insert.Close(); err != nil {
		s.discard()
		return fmt.Errorf("failed to close sqlite statement: %w", err)
	}
	if err := s.tx.Commit(); err != nil {
		s.discard()
		return fmt.Errorf("failed to commit sqlite output: %w", err)
	}
	if err := s.db.Close(); err != nil {
		_ = os.Remove(s.tmpPath)
		return fmt.Errorf("failed to close sqlite output: %w", err)
	}
	if err := os.Chmod(s.tmpPath, 0o644); err != nil {
		_ = os.Remove(s.tmpPath)
		return fmt.Errorf("failed to set sqlite output permissions: %w", err)
	}
	if err := os.Rename(s.tmpPath, s.path); err != nil {
		_ = os.Remove(s.tmpPath)
		return fmt.Errorf("failed to move sqlite output into place: %w", err)
	}

	logger.Debug("sqlite sink finalized", "path", s.path)
	return nil
}

// Abort rolls back and deletes the temporary database.
func (s *SQLiteSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done {
		return nil
	}
	s.done = true
	s.discard()
	return nil
}

func (s *SQLiteSink) discard() {
	if s.insert != nil {
		_ = s.insert.Close()
	}
	if s.tx != nil {
		_ = s.tx.Rollback()
	}
	if s.db != nil {
		_ = s.db.Close()
	}
	_ = os.Remove(s.tmpPath)
	_ = os.Remove(s.tmpPath + "-journal")
}
