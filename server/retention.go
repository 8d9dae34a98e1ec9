package server

import (
	"context"
	"time"

	"github.com/frobware/go-pppring/store/sqlite"
)

// maxPruneInterval caps how long the journal may go between prunes.
const maxPruneInterval = time.Hour

func pruneInterval(retention time.Duration) time.Duration {
	return min(retention/2, maxPruneInterval)
}

// pruneJournal drops transitions older than the retention window, then
// runs left with nothing in it. keep names the current run.
func pruneJournal(ctx context.Context, st *sqlite.Store, retention time.Duration, keep string, now time.Time) (transitions, runs int64, err error) {
	cutoff := now.Add(-retention)
	err = st.RunInTransaction(ctx, func(tx *sqlite.Store) error {
		if transitions, err = tx.Prune(ctx, cutoff); err != nil {
			return err
		}
		runs, err = tx.PruneRuns(ctx, cutoff, keep)
		return err
	})
	if err != nil {
		return 0, 0, err
	}
	return transitions, runs, nil
}

func (d *Daemon) pruneOnce(ctx context.Context) {
	transitions, runs, err := pruneJournal(ctx, d.store, d.retention, d.runID, time.Now())
	if err != nil {
		d.logger.Warn("failed to prune journal", "error", err)
		return
	}
	journalPrunedTotal.Add(float64(transitions))
	if transitions > 0 || runs > 0 {
		d.logger.Debug("pruned journal", "transitions", transitions, "runs", runs, "retention", d.retention)
	}
}

// pruneLoop keeps the journal inside the retention window until ctx
// ends.
func (d *Daemon) pruneLoop(ctx context.Context) error {
	t := time.NewTicker(pruneInterval(d.retention))
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-t.C:
			d.pruneOnce(ctx)
		}
	}
}
