// Package ingest records client view events against the local replica row.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Pappt04/Lilyoutube-server/catalog"
	"github.com/Pappt04/Lilyoutube-server/metrics"
	"github.com/Pappt04/Lilyoutube-server/replica"
)

var (
	ErrNotFound = errors.New("video not found")
	ErrStorage  = replica.ErrStorage
)

// Ingestor increments the counter this node owns. It never contacts peers;
// propagation is left to the synchronizer.
type Ingestor struct {
	replicaID string
	store     replica.Store
	catalog   catalog.Catalog
	logger    logrus.FieldLogger
	metrics   *metrics.Metrics
	now       func() time.Time
}

func New(replicaID string, store replica.Store, cat catalog.Catalog, logger logrus.FieldLogger, m *metrics.Metrics) *Ingestor {
	return &Ingestor{
		replicaID: replicaID,
		store:     store,
		catalog:   cat,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}
}

// RecordView adds exactly one view to (videoID, own replica).
//
// Only this node writes its own row, so the row never decreases and
// UpsertIfGreater(cur+1) succeeds exactly when the row still holds cur. A
// concurrent writer that got there first makes the upsert a no-op, in which
// case the loop reads again and retries.
func (i *Ingestor) RecordView(ctx context.Context, videoID int64) error {
	if _, err := i.catalog.Lookup(ctx, videoID); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return fmt.Errorf("video %d: %w", videoID, ErrNotFound)
		}
		return fmt.Errorf("lookup video %d: %w", videoID, err)
	}

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		cur, _, err := i.store.Get(ctx, videoID, i.replicaID)
		if err != nil {
			i.logger.WithError(err).WithField("video_id", videoID).Error("failed to read replica row")
			return err
		}
		changed, err := i.store.UpsertIfGreater(ctx, replica.Row{
			VideoID:   videoID,
			ReplicaID: i.replicaID,
			Count:     cur.Count + 1,
			UpdatedAt: i.now(),
		})
		if err != nil {
			i.logger.WithError(err).WithField("video_id", videoID).Error("failed to record view")
			return err
		}
		if changed {
			i.metrics.ViewRecorded()
			return nil
		}
		i.metrics.IngestRetry()
	}
}

// ReplicaID is the row owner this ingestor writes to.
func (i *Ingestor) ReplicaID() string {
	return i.replicaID
}
