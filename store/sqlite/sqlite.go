// Package sqlite keeps a journal of link state transitions in SQLite.
//
// Every daemon start records a run; every supervisor transition during
// that run is appended to the transitions table. The journal is
// write-mostly: the daemon appends, and `pppring events` reads it back.
//
// # Calling Conventions
//
// Statements are prepared once at open against the *sql.DB and run in
// autocommit mode. RunInTransaction binds them to a *sql.Tx with
// tx.StmtContext for callers that need several writes to land together.
package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/frobware/go-pppring"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

//go:embed schema.sql
var schemaSQL string

// msec formats a duration as milliseconds with 3 decimal places.
func msec(d time.Duration) string {
	return fmt.Sprintf("%.3f", float64(d.Microseconds())/1000)
}

// Run is one daemon lifetime.
type Run struct {
	ID         string
	Node       string
	PID        int
	Restarting bool
	StartedAt  time.Time
}

// Event is one journalled transition.
type Event struct {
	ID     int64
	RunID  string
	Device string
	From   pppring.LinkState
	To     pppring.LinkState
	Reason string
	PID    int
	At     time.Time
}

// ListOptions filters List. Empty Device matches every device; a Limit
// of zero or less returns everything.
type ListOptions struct {
	Device string
	Limit  int
}

// Store is the transition journal.
type Store struct {
	db     *sql.DB
	logger *slog.Logger

	stmtInsertRun        *sql.Stmt
	stmtLatestRun        *sql.Stmt
	stmtInsertTransition *sql.Stmt
	stmtListTransitions  *sql.Stmt
	stmtPruneTransitions *sql.Stmt
	stmtPruneRuns        *sql.Stmt
}

// New opens (creating if needed) the journal at dbPath.
func New(ctx context.Context, dbPath string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", dbPath)

	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open(driverName, dsn(dbPath, [][2]string{{"journal_mode", "WAL"}, {"foreign_keys", "1"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	s, err := open(ctx, db, logger)
	if err != nil {
		return nil, err
	}
	logger.Info("opened database", "path", dbPath)
	return s, nil
}

// NewInMemory opens an in-memory journal for tests and offline checks.
func NewInMemory(ctx context.Context, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "store", "db", ":memory:")

	db, err := sql.Open(driverName, dsn(":memory:", [][2]string{{"foreign_keys", "1"}}))
	if err != nil {
		return nil, fmt.Errorf("failed to open in-memory database: %w", err)
	}
	// Each connection would get its own empty database.
	db.SetMaxOpenConns(1)

	s, err := open(ctx, db, logger)
	if err != nil {
		return nil, err
	}
	logger.Debug("opened in-memory database")
	return s, nil
}

func open(ctx context.Context, db *sql.DB, logger *slog.Logger) (*Store, error) {
	s := &Store{db: db, logger: logger}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	if err := s.prepareStatements(ctx); err != nil {
		s.closeStatements()
		db.Close()
		return nil, fmt.Errorf("failed to prepare statements: %w", err)
	}
	return s, nil
}

func (s *Store) prepareStatements(ctx context.Context) error {
	var err error

	const sqlInsertRun = `
		INSERT INTO runs (run_id, node, pid, restarting, started_at)
		VALUES (?, ?, ?, ?, ?)`
	if s.stmtInsertRun, err = s.db.PrepareContext(ctx, sqlInsertRun); err != nil {
		return fmt.Errorf("prepare InsertRun: %w", err)
	}

	const sqlLatestRun = `
		SELECT run_id, node, pid, restarting, started_at
		FROM runs ORDER BY started_at DESC LIMIT 1`
	if s.stmtLatestRun, err = s.db.PrepareContext(ctx, sqlLatestRun); err != nil {
		return fmt.Errorf("prepare LatestRun: %w", err)
	}

	const sqlInsertTransition = `
		INSERT INTO transitions (run_id, device, from_state, to_state, reason, helper_pid, at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`
	if s.stmtInsertTransition, err = s.db.PrepareContext(ctx, sqlInsertTransition); err != nil {
		return fmt.Errorf("prepare InsertTransition: %w", err)
	}

	const sqlListTransitions = `
		SELECT id, run_id, device, from_state, to_state, reason, helper_pid, at
		FROM transitions
		WHERE (?1 = '' OR device = ?1)
		ORDER BY id DESC
		LIMIT ?2`
	if s.stmtListTransitions, err = s.db.PrepareContext(ctx, sqlListTransitions); err != nil {
		return fmt.Errorf("prepare ListTransitions: %w", err)
	}

	const sqlPruneTransitions = "DELETE FROM transitions WHERE at < ?"
	if s.stmtPruneTransitions, err = s.db.PrepareContext(ctx, sqlPruneTransitions); err != nil {
		return fmt.Errorf("prepare PruneTransitions: %w", err)
	}

	// A run goes once it started before the cutoff and logged nothing
	// since. Its remaining transitions cascade.
	const sqlPruneRuns = `
		DELETE FROM runs
		WHERE started_at < ?1 AND run_id != ?2
		AND run_id NOT IN (SELECT run_id FROM transitions WHERE at >= ?1)`
	if s.stmtPruneRuns, err = s.db.PrepareContext(ctx, sqlPruneRuns); err != nil {
		return fmt.Errorf("prepare PruneRuns: %w", err)
	}
	return nil
}

func (s *Store) statements() []*sql.Stmt {
	return []*sql.Stmt{
		s.stmtInsertRun,
		s.stmtLatestRun,
		s.stmtInsertTransition,
		s.stmtListTransitions,
		s.stmtPruneTransitions,
		s.stmtPruneRuns,
	}
}

// closeStatements closes prepared statements, ignoring errors because
// the database is about to be closed.
func (s *Store) closeStatements() {
	for _, stmt := range s.statements() {
		if stmt != nil {
			stmt.Close()
		}
	}
}

// Close closes the statements and the database.
func (s *Store) Close() error {
	s.closeStatements()
	return s.db.Close()
}

// RunInTransaction calls fn with a Store bound to a transaction,
// committing if fn returns nil and rolling back otherwise.
func (s *Store) RunInTransaction(ctx context.Context, fn func(*Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	txStore := &Store{
		db:                   s.db,
		logger:               s.logger,
		stmtInsertRun:        tx.StmtContext(ctx, s.stmtInsertRun),
		stmtLatestRun:        tx.StmtContext(ctx, s.stmtLatestRun),
		stmtInsertTransition: tx.StmtContext(ctx, s.stmtInsertTransition),
		stmtListTransitions:  tx.StmtContext(ctx, s.stmtListTransitions),
		stmtPruneTransitions: tx.StmtContext(ctx, s.stmtPruneTransitions),
		stmtPruneRuns:        tx.StmtContext(ctx, s.stmtPruneRuns),
	}

	if err := fn(txStore); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
