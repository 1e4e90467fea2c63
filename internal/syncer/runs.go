package syncer

import (
	"context"
	"time"
)

// recordRun appends one row to the sync_runs audit table. The table comes
// from migrations, not the dynamic layer, so it may be absent when migrate
// has not been run; recording is best effort and never fails a sync.
func (s *Syncer) recordRun(ctx context.Context, command, target string, started time.Time, records int, runErr error) {
	exists, err := s.db.TableExists(ctx, "sync_runs")
	if err != nil || !exists {
		return
	}
	var errText *string
	if runErr != nil {
		msg := runErr.Error()
		errText = &msg
	}
	_, err = s.db.Pool().Exec(ctx,
		`insert into sync_runs (command, target, started_at, finished_at, records, error)
		 values ($1, $2, $3, $4, $5, $6)`,
		command, target, started, time.Now().UTC(), records, errText)
	if err != nil {
		s.logger.Debug("failed to record sync run", "error", err)
	}
}
