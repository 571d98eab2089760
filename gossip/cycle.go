package gossip

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/Pappt04/Lilyoutube-server/peer"
)

// RunCycle performs one full anti-entropy pass and blocks until every
// exchange has finished or timed out. Cycles never overlap.
func (s *Synchronizer) RunCycle(ctx context.Context) CycleReport {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	report := CycleReport{StartedAt: s.now()}
	defer func() {
		report.Duration = time.Since(report.StartedAt)
		s.metrics.CycleDuration(report.Duration)
		s.mu.Lock()
		s.lastRun = report
		s.mu.Unlock()
	}()

	targets := s.directory.ExchangeTargets(report.StartedAt)
	if len(targets) == 0 {
		return report
	}

	rows, err := s.store.Snapshot(ctx)
	if err != nil {
		s.logger.WithError(err).Error("Failed to snapshot local store, skipping sync cycle")
		return report
	}
	local := Snapshot{SourceReplica: s.cfg.ReplicaID, Rows: rows}

	results := make([]ExchangeResult, len(targets))
	var g errgroup.Group
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			results[i] = s.exchangeWith(ctx, target, local)
			return nil
		})
	}
	_ = g.Wait()

	report.Results = results
	for _, res := range results {
		report.RowsMerged += res.RowsMerged
	}
	s.logger.WithFields(logrus.Fields{
		"peers":       len(results),
		"failed":      report.Failed(),
		"rows_merged": report.RowsMerged,
	}).Debug("Sync cycle complete")
	return report
}

func (s *Synchronizer) exchangeWith(ctx context.Context, target peer.PeerNode, local Snapshot) ExchangeResult {
	res := ExchangeResult{PeerID: target.ID}
	log := s.logger.WithFields(logrus.Fields{"peer": target.ID, "address": target.Address})

	exCtx, cancel := context.WithTimeout(ctx, s.cfg.ExchangeTimeout)
	defer cancel()

	remote, err := s.client.Exchange(exCtx, target, local)
	if err != nil {
		res.Err = classify(exCtx, target.ID, err)
		s.metrics.Exchange(target.ID, resultLabel(res.Err))
		if recErr := s.directory.RecordFailure(target.ID); recErr != nil {
			log.WithError(recErr).Debug("Peer left the directory during exchange")
		}
		log.WithError(res.Err).Warn("Exchange with peer failed")
		return res
	}

	// The exchange reached the peer, so the peer is alive even if merging
	// its rows locally fails.
	if recErr := s.directory.RecordSuccess(target.ID); recErr != nil {
		log.WithError(recErr).Debug("Peer left the directory during exchange")
	}
	s.metrics.Exchange(target.ID, "ok")

	merged, err := s.Merge(ctx, remote.Rows)
	res.RowsMerged = merged
	s.metrics.RowsMerged("pull", merged)
	if err != nil {
		log.WithError(err).Error("Failed to merge rows from peer")
	}
	return res
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrPeerTimeout):
		return "timeout"
	default:
		return "unreachable"
	}
}
