package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Pappt04/Lilyoutube-server/metrics"
	"github.com/Pappt04/Lilyoutube-server/replica"
)

// ViewsWriter persists aggregate totals back onto the catalog.
type ViewsWriter interface {
	UpdateViewsCount(ctx context.Context, id int64, total uint64) error
}

// Flusher periodically copies each video's aggregate view count into the
// catalog database so other services can read it without asking a replica.
type Flusher struct {
	store    replica.Store
	writer   ViewsWriter
	interval time.Duration
	logger   logrus.FieldLogger
	metrics  *metrics.Metrics

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewFlusher(store replica.Store, writer ViewsWriter, interval time.Duration, logger logrus.FieldLogger, m *metrics.Metrics) *Flusher {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Flusher{
		store:    store,
		writer:   writer,
		interval: interval,
		logger:   logger,
		metrics:  m,
	}
}

// Start runs the flush loop until ctx is cancelled or Stop is called.
func (f *Flusher) Start(ctx context.Context) {
	ctx, f.cancel = context.WithCancel(ctx)
	f.wg.Add(1)
	go func() {
		defer f.wg.Done()
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := f.Flush(ctx); err != nil {
					f.logger.WithError(err).Warn("views flush failed")
				}
			}
		}
	}()
}

func (f *Flusher) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
	f.wg.Wait()
}

// Flush writes every positive total once and returns how many videos were
// written. A failed write is logged and skipped; the next tick retries it.
func (f *Flusher) Flush(ctx context.Context) (int, error) {
	rows, err := f.store.Snapshot(ctx)
	if err != nil {
		return 0, err
	}

	totals := make(map[int64]uint64)
	var order []int64
	for _, r := range rows {
		if _, seen := totals[r.VideoID]; !seen {
			order = append(order, r.VideoID)
		}
		totals[r.VideoID] += r.Count
	}

	written := 0
	for _, id := range order {
		total := totals[id]
		if total == 0 {
			continue
		}
		if err := f.writer.UpdateViewsCount(ctx, id, total); err != nil {
			f.logger.WithError(err).WithField("video_id", id).Warn("failed to flush views")
			continue
		}
		written++
	}
	f.metrics.ViewsFlushed(written)
	if written > 0 {
		f.logger.WithField("videos", written).Debug("flushed view totals")
	}
	return written, nil
}
