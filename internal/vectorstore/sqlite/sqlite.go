package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	_ "modernc.org/sqlite" // SQLite driver

	"medrag/internal/domain"
	"medrag/internal/vectorstore/memory"
)

const schema = `
CREATE TABLE IF NOT EXISTS vectors (
	position  INTEGER PRIMARY KEY,
	embedding BLOB NOT NULL
);
CREATE TABLE IF NOT EXISTS id_mapping (
	position INTEGER PRIMARY KEY,
	doc_id   TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS documents (
	id    TEXT PRIMARY KEY,
	title TEXT NOT NULL,
	text  TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);`

var errIncompatible = errors.New("index was built with a different embedder")

// Options configures the SQLite-backed store.
type Options struct {
	Path string
	// Embedder and Dimension are recorded on first use; a store built by a
	// different embedder is treated as unreadable.
	Embedder  string
	Dimension int
	Logger    *slog.Logger
}

// Storage keeps the whole index in memory for search and writes every append
// to SQLite in a single transaction covering vectors, mapping and documents.
type Storage struct {
	db      *sql.DB
	path    string
	mem     *memory.Storage
	logger  *slog.Logger
	writeMu sync.Mutex
}

// Open loads the store at opts.Path. A missing file yields an empty store; an
// unreadable or incompatible one is moved aside and replaced by an empty store.
func Open(ctx context.Context, opts Options) (*Storage, error) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "vectorstore.sqlite")
	if opts.Path == "" {
		return nil, errors.New("sqlite store path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(opts.Path), 0o755); err != nil {
		return nil, fmt.Errorf("creating index directory: %w", err)
	}

	s, err := load(ctx, opts, logger)
	if err == nil {
		return s, nil
	}
	logger.Warn("index store unreadable, reinitializing empty", "path", opts.Path, "error", err)
	if qerr := quarantine(opts.Path); qerr != nil {
		return nil, fmt.Errorf("moving unreadable index aside: %w", qerr)
	}
	return load(ctx, opts, logger)
}

func load(ctx context.Context, opts Options, logger *slog.Logger) (*Storage, error) {
	db, err := sql.Open("sqlite", opts.Path+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	s := &Storage{db: db, path: opts.Path, mem: memory.NewStorage(), logger: logger}
	if err := s.init(ctx, opts); err != nil {
		_ = db.Close()
		return nil, err
	}
	n, _ := s.mem.Count(ctx)
	logger.Info("index store loaded", "path", opts.Path, "vectors", n)
	return s, nil
}

func (s *Storage) init(ctx context.Context, opts Options) error {
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	if err := s.checkMeta(ctx, "embedder", opts.Embedder); err != nil {
		return err
	}
	if opts.Dimension > 0 {
		if err := s.checkMeta(ctx, "dimension", strconv.Itoa(opts.Dimension)); err != nil {
			return err
		}
	}
	return s.restore(ctx)
}

func (s *Storage) checkMeta(ctx context.Context, key, want string) error {
	if want == "" {
		return nil
	}
	var have string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM meta WHERE key = ?`, key).Scan(&have)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = s.db.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES(?, ?)`, key, want)
		return err
	case err != nil:
		return fmt.Errorf("reading meta %s: %w", key, err)
	case have != want:
		return fmt.Errorf("%w: %s is %q, want %q", errIncompatible, key, have, want)
	}
	return nil
}

// restore loads the persisted rows. If vectors and mapping disagree in length,
// both are trimmed to the shorter consistent prefix.
func (s *Storage) restore(ctx context.Context) error {
	vectors, err := s.readVectors(ctx)
	if err != nil {
		return err
	}
	ids, err := s.readMapping(ctx)
	if err != nil {
		return err
	}
	docs, err := s.readDocuments(ctx)
	if err != nil {
		return err
	}
	n := min(len(vectors), len(ids))
	kept := make(map[string]bool, n)
	for _, id := range ids[:n] {
		kept[id] = true
	}
	mapped := docs[:0]
	for _, d := range docs {
		if kept[d.ID] {
			mapped = append(mapped, d)
		}
	}
	if len(vectors) != len(ids) || len(mapped) != len(docs) {
		s.logger.Warn("index, id mapping and documents disagree, trimming",
			"vectors", len(vectors), "mapping", len(ids), "documents", len(docs), "keep", n)
		if err := s.trim(ctx, n); err != nil {
			return err
		}
	}
	return s.mem.Restore(vectors[:n], ids[:n], mapped)
}

func (s *Storage) readVectors(ctx context.Context) ([][]float32, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position, embedding FROM vectors ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("reading vectors: %w", err)
	}
	defer rows.Close()
	var out [][]float32
	for rows.Next() {
		var pos int
		var blob []byte
		if err := rows.Scan(&pos, &blob); err != nil {
			return nil, err
		}
		if pos != len(out) {
			// positions after a gap cannot be joined to the mapping
			break
		}
		vec, err := decodeEmbedding(blob)
		if err != nil {
			return nil, err
		}
		out = append(out, vec)
	}
	return out, rows.Err()
}

func (s *Storage) readMapping(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT position, doc_id FROM id_mapping ORDER BY position`)
	if err != nil {
		return nil, fmt.Errorf("reading id mapping: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var pos int
		var id string
		if err := rows.Scan(&pos, &id); err != nil {
			return nil, err
		}
		if pos != len(out) {
			break
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

func (s *Storage) readDocuments(ctx context.Context) ([]domain.Document, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, title, text FROM documents`)
	if err != nil {
		return nil, fmt.Errorf("reading documents: %w", err)
	}
	defer rows.Close()
	var out []domain.Document
	for rows.Next() {
		var d domain.Document
		if err := rows.Scan(&d.ID, &d.Title, &d.Text); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (s *Storage) trim(ctx context.Context, n int) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE position >= ?`, n); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM id_mapping WHERE position >= ?`, n); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM documents WHERE id NOT IN (SELECT doc_id FROM id_mapping)`); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *Storage) Append(ctx context.Context, docs []domain.Document, vectors [][]float32) ([]int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.mem.Validate(docs, vectors); err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, nil
	}
	start, _ := s.mem.Count(ctx)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin append: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for i, d := range docs {
		pos := start + i
		if _, err := tx.ExecContext(ctx, `INSERT INTO vectors(position, embedding) VALUES(?, ?)`, pos, encodeEmbedding(vectors[i])); err != nil {
			return nil, fmt.Errorf("insert vector %d: %w", pos, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO id_mapping(position, doc_id) VALUES(?, ?)`, pos, d.ID); err != nil {
			return nil, fmt.Errorf("insert mapping %d: %w", pos, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO documents(id, title, text) VALUES(?, ?, ?)`, d.ID, d.Title, d.Text); err != nil {
			return nil, fmt.Errorf("insert document %q: %w", d.ID, err)
		}
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO meta(key, value) VALUES('dimension', ?) ON CONFLICT(key) DO NOTHING`,
		strconv.Itoa(len(vectors[0]))); err != nil {
		return nil, fmt.Errorf("record dimension: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit append: %w", err)
	}
	return s.mem.Append(ctx, docs, vectors)
}

func (s *Storage) Search(ctx context.Context, vector []float32, k int) ([]domain.Neighbor, error) {
	return s.mem.Search(ctx, vector, k)
}

func (s *Storage) Lookup(ctx context.Context, positions []int) ([]domain.Document, error) {
	return s.mem.Lookup(ctx, positions)
}

func (s *Storage) Known(ctx context.Context, ids []string) (map[string]bool, error) {
	return s.mem.Known(ctx, ids)
}

func (s *Storage) Count(ctx context.Context) (int, error) {
	return s.mem.Count(ctx)
}

// MappingLen returns the length of the ID mapping.
func (s *Storage) MappingLen() int { return s.mem.MappingLen() }

// Path returns the database file path.
func (s *Storage) Path() string { return s.path }

func (s *Storage) Close() error { return s.db.Close() }

func quarantine(path string) error {
	stamp := strconv.FormatInt(time.Now().Unix(), 10)
	for _, suffix := range []string{"", "-wal", "-shm"} {
		p := path + suffix
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := os.Rename(p, p+".corrupt-"+stamp); err != nil {
			return err
		}
	}
	return nil
}
