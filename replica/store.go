package replica

import "context"

// Store holds the replica rows of a single node.
//
// UpsertIfGreater is the only mutation. Local increments and peer merges both
// go through it, so the monotone-max rule is enforced in one place.
type Store interface {
	// Get returns the row for (videoID, replicaID) and whether it exists.
	Get(ctx context.Context, videoID int64, replicaID string) (Row, bool, error)

	// UpsertIfGreater creates the row when absent, or replaces it when
	// row.Count is strictly greater than the stored count. It reports whether
	// the stored row changed. Ties and smaller counts are no-ops.
	UpsertIfGreater(ctx context.Context, row Row) (bool, error)

	// ListForVideo returns all rows of a video ordered by replica id.
	ListForVideo(ctx context.Context, videoID int64) ([]Row, error)

	// Snapshot returns every row ordered by (video, replica).
	Snapshot(ctx context.Context) ([]Row, error)

	Close() error
}
