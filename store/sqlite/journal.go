package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/frobware/go-pppring"
)

// RecordRun stores the start of a daemon run.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	start := time.Now()
	_, err := s.stmtInsertRun.ExecContext(ctx, r.ID, r.Node, r.PID, r.Restarting, r.StartedAt.UnixNano())
	if err != nil {
		s.logger.Debug("sql", "stmt", "InsertRun", "args", []any{r.ID, r.Node, r.PID}, "duration_ms", msec(time.Since(start)), "error", err)
		return fmt.Errorf("insert run %s: %w", r.ID, err)
	}
	s.logger.Debug("sql", "stmt", "InsertRun", "args", []any{r.ID, r.Node, r.PID}, "duration_ms", msec(time.Since(start)))
	return nil
}

// LatestRun returns the most recently started run.
func (s *Store) LatestRun(ctx context.Context) (Run, error) {
	var (
		r       Run
		started int64
	)
	err := s.stmtLatestRun.QueryRowContext(ctx).Scan(&r.ID, &r.Node, &r.PID, &r.Restarting, &started)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("latest run: %w", ErrNotFound)
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	r.StartedAt = time.Unix(0, started)
	return r, nil
}

// Record appends a transition. e.RunID must name a recorded run.
func (s *Store) Record(ctx context.Context, e Event) error {
	start := time.Now()
	args := []any{e.RunID, e.Device, e.From.String(), e.To.String(), e.Reason, e.PID, e.At.UnixNano()}
	if _, err := s.stmtInsertTransition.ExecContext(ctx, args...); err != nil {
		s.logger.Debug("sql", "stmt", "InsertTransition", "args", args, "duration_ms", msec(time.Since(start)), "error", err)
		return fmt.Errorf("record transition for %s: %w", e.Device, err)
	}
	s.logger.Debug("sql", "stmt", "InsertTransition", "args", args, "duration_ms", msec(time.Since(start)))
	return nil
}

// List returns transitions, newest first.
func (s *Store) List(ctx context.Context, opts ListOptions) ([]Event, error) {
	start := time.Now()
	limit := opts.Limit
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.stmtListTransitions.QueryContext(ctx, opts.Device, limit)
	if err != nil {
		s.logger.Debug("sql", "stmt", "ListTransitions", "duration_ms", msec(time.Since(start)), "error", err)
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	defer rows.Close()

	var result []Event
	for rows.Next() {
		var (
			e        Event
			from, to string
			at       int64
		)
		if err := rows.Scan(&e.ID, &e.RunID, &e.Device, &from, &to, &e.Reason, &e.PID, &at); err != nil {
			return nil, fmt.Errorf("scan transition: %w", err)
		}
		if e.From, err = pppring.ParseLinkState(from); err != nil {
			return nil, fmt.Errorf("transition %d: %w", e.ID, err)
		}
		if e.To, err = pppring.ParseLinkState(to); err != nil {
			return nil, fmt.Errorf("transition %d: %w", e.ID, err)
		}
		e.At = time.Unix(0, at)
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list transitions: %w", err)
	}
	s.logger.Debug("sql", "stmt", "ListTransitions", "duration_ms", msec(time.Since(start)), "rows", len(result))
	return result, nil
}

// Prune deletes transitions older than before and reports how many
// went.
func (s *Store) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.stmtPruneTransitions.ExecContext(ctx, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("prune transitions: %w", err)
	}
	return res.RowsAffected()
}

// PruneRuns deletes runs that started before before and have no
// transition since, except the run named keep.
func (s *Store) PruneRuns(ctx context.Context, before time.Time, keep string) (int64, error) {
	res, err := s.stmtPruneRuns.ExecContext(ctx, before.UnixNano(), keep)
	if err != nil {
		return 0, fmt.Errorf("prune runs: %w", err)
	}
	return res.RowsAffected()
}
