package gossip

import (
	"context"
	"errors"
	"fmt"

	"github.com/Pappt04/Lilyoutube-server/replica"
)

// Merge folds rows into the local store, keeping the maximum count per
// (video, replica). It returns how many rows changed. A storage failure on
// one row does not stop the others; all failures are returned joined.
func (s *Synchronizer) Merge(ctx context.Context, rows []replica.Row) (int, error) {
	changed := 0
	var errs []error
	for _, row := range rows {
		if row.ReplicaID == "" {
			continue
		}
		ok, err := s.store.UpsertIfGreater(ctx, row)
		if err != nil {
			errs = append(errs, fmt.Errorf("merge video %d replica %s: %w", row.VideoID, row.ReplicaID, err))
			continue
		}
		if ok {
			changed++
		}
	}
	return changed, errors.Join(errs...)
}

// HandleExchange is the serving side of a push-pull exchange: it merges the
// caller's rows and answers with this node's snapshot, taken after the merge.
func (s *Synchronizer) HandleExchange(ctx context.Context, incoming Snapshot) (Snapshot, error) {
	merged, err := s.Merge(ctx, incoming.Rows)
	s.metrics.RowsMerged("push", merged)
	if err != nil {
		s.logger.WithError(err).WithField("peer", incoming.SourceReplica).Error("Failed to merge pushed rows")
	}

	rows, snapErr := s.store.Snapshot(ctx)
	if snapErr != nil {
		return Snapshot{}, snapErr
	}
	return Snapshot{SourceReplica: s.cfg.ReplicaID, Rows: rows}, nil
}

// LocalSnapshot returns every row this node knows, for pull-only callers.
func (s *Synchronizer) LocalSnapshot(ctx context.Context) (Snapshot, error) {
	rows, err := s.store.Snapshot(ctx)
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{SourceReplica: s.cfg.ReplicaID, Rows: rows}, nil
}
