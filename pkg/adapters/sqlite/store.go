// Package sqlite provides the durable, embedded LayerStore and RunStore.
//
// Layers are rows of a single append-only table. Every Append runs in its own
// transaction with synchronous=FULL, so a layer is either fully visible after
// Append returns or absent after a crash.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/aretw0/strata/internal/logging"
	"github.com/aretw0/strata/pkg/domain"

	_ "modernc.org/sqlite" // pure go sqlite driver
)

const schema = `
CREATE TABLE IF NOT EXISTS layers (
	id      INTEGER PRIMARY KEY AUTOINCREMENT,
	parent  INTEGER NOT NULL,
	kind    TEXT    NOT NULL,
	payload BLOB    NOT NULL
);
CREATE INDEX IF NOT EXISTS layers_parent ON layers(parent, id);
CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	payload    BLOB NOT NULL,
	updated_at TEXT NOT NULL
);`

// Store implements ports.LayerStore on top of a SQLite database file.
type Store struct {
	db     *sql.DB
	mu     sync.Mutex // serializes writers
	path   string
	logger *slog.Logger
}

// Option configures the Store.
type Option func(*Store)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// DSN builds the connection string used for path.
func DSN(path string) string {
	return "file:" + path +
		"?_pragma=journal_mode(WAL)" +
		"&_pragma=synchronous(FULL)" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=foreign_keys(ON)" +
		"&_txlock=immediate"
}

// Open opens (creating if needed) the layer database at path.
func Open(path string, opts ...Option) (*Store, error) {
	if path == "" {
		path = "strata.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil && !errors.Is(err, os.ErrExist) {
		return nil, fmt.Errorf("create dirs: %w", err)
	}
	db, err := sql.Open("sqlite", DSN(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	s := &Store{db: db, path: path, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.logger.Debug("layer store opened", "path", path)
	return s, nil
}

// Path returns the database file location.
func (s *Store) Path() string { return s.path }

// DB exposes the underlying handle for maintenance tasks.
func (s *Store) DB() *sql.DB { return s.db }

// Append records op under parent in a single transaction.
func (s *Store) Append(ctx context.Context, parent domain.LayerID, op domain.Operation) (id domain.LayerID, retErr error) {
	env, err := domain.EncodeOperation(op)
	if err != nil {
		return domain.NoLayer, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.NoLayer, fmt.Errorf("failed to begin append: %w", err)
	}
	defer func() {
		if retErr != nil {
			_ = tx.Rollback()
		}
	}()

	if !parent.IsRoot() {
		var one int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM layers WHERE id = ?`, uint64(parent)).Scan(&one)
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NoLayer, domain.LayerNotFound(parent)
		}
		if err != nil {
			return domain.NoLayer, fmt.Errorf("failed to check parent %d: %w", parent, err)
		}
	}

	res, err := tx.ExecContext(ctx,
		`INSERT INTO layers (parent, kind, payload) VALUES (?, ?, ?)`,
		uint64(parent), string(env.Kind), []byte(env.Payload))
	if err != nil {
		return domain.NoLayer, fmt.Errorf("failed to insert layer: %w", err)
	}
	last, err := res.LastInsertId()
	if err != nil {
		return domain.NoLayer, fmt.Errorf("failed to read layer id: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return domain.NoLayer, fmt.Errorf("failed to commit layer: %w", err)
	}
	id = domain.LayerID(last)
	s.logger.Debug("layer appended", "id", id, "parent", parent, "kind", env.Kind)
	return id, nil
}

// Get returns a single layer.
func (s *Store) Get(ctx context.Context, id domain.LayerID) (domain.Layer, error) {
	var (
		parent  uint64
		kind    string
		payload []byte
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT parent, kind, payload FROM layers WHERE id = ?`, uint64(id)).
		Scan(&parent, &kind, &payload)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Layer{}, domain.LayerNotFound(id)
	}
	if err != nil {
		return domain.Layer{}, fmt.Errorf("failed to load layer %d: %w", id, err)
	}
	op, err := domain.DecodeOperation(domain.OpKind(kind), payload)
	if err != nil {
		return domain.Layer{}, fmt.Errorf("layer %d: %w", id, err)
	}
	return domain.Layer{ID: id, Parent: domain.LayerID(parent), Operation: op}, nil
}

// Children lists the direct descendants of id.
func (s *Store) Children(ctx context.Context, id domain.LayerID) ([]domain.LayerID, error) {
	if !id.IsRoot() {
		if _, err := s.Get(ctx, id); err != nil {
			return nil, err
		}
	}
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM layers WHERE parent = ? ORDER BY id`, uint64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to list children of %d: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	out := []domain.LayerID{}
	for rows.Next() {
		var child uint64
		if err := rows.Scan(&child); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		out = append(out, domain.LayerID(child))
	}
	return out, rows.Err()
}

// Chain walks from id up to its root with a recursive query and returns the
// layers in root-to-tip order.
func (s *Store) Chain(ctx context.Context, id domain.LayerID) ([]domain.Layer, error) {
	rows, err := s.db.QueryContext(ctx, `
		WITH RECURSIVE chain(id, parent, kind, payload, depth) AS (
			SELECT id, parent, kind, payload, 0 FROM layers WHERE id = ?
			UNION ALL
			SELECT l.id, l.parent, l.kind, l.payload, c.depth + 1
			FROM layers l JOIN chain c ON l.id = c.parent
		)
		SELECT id, parent, kind, payload FROM chain ORDER BY depth DESC`, uint64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to load chain of %d: %w", id, err)
	}
	defer func() { _ = rows.Close() }()

	var out []domain.Layer
	for rows.Next() {
		var (
			lid, parent uint64
			kind        string
			payload     []byte
		)
		if err := rows.Scan(&lid, &parent, &kind, &payload); err != nil {
			return nil, fmt.Errorf("scan: %w", err)
		}
		op, err := domain.DecodeOperation(domain.OpKind(kind), payload)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", lid, err)
		}
		out = append(out, domain.Layer{ID: domain.LayerID(lid), Parent: domain.LayerID(parent), Operation: op})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, domain.LayerNotFound(id)
	}
	if !out[0].Parent.IsRoot() {
		return nil, fmt.Errorf("chain of %d is broken at %d: %w", id, out[0].Parent, domain.LayerNotFound(out[0].Parent))
	}
	return out, nil
}

// Count returns the number of stored layers.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM layers`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count layers: %w", err)
	}
	return n, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
