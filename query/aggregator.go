// Package query answers view-count reads from local state only.
package query

import (
	"context"
	"fmt"

	"github.com/Pappt04/Lilyoutube-server/catalog"
	"github.com/Pappt04/Lilyoutube-server/replica"
)

type ReplicaCount struct {
	ReplicaID     string `json:"replicaId"`
	Count         uint64 `json:"count"`
	LastUpdatedAt int64  `json:"lastUpdatedAt"`
}

// TableRow is one line of the replica table.
type TableRow struct {
	VideoID     int64  `json:"videoId"`
	VideoName   string `json:"videoName"`
	ReplicaName string `json:"replicaName"`
	Views       uint64 `json:"views"`
}

type Aggregator struct {
	store   replica.Store
	catalog catalog.Catalog
}

func New(store replica.Store, cat catalog.Catalog) *Aggregator {
	return &Aggregator{store: store, catalog: cat}
}

// TotalViews sums every row known locally for the video. Unknown videos
// report zero.
func (a *Aggregator) TotalViews(ctx context.Context, videoID int64) (uint64, error) {
	rows, err := a.store.ListForVideo(ctx, videoID)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, r := range rows {
		total += r.Count
	}
	return total, nil
}

func (a *Aggregator) ReplicaBreakdown(ctx context.Context, videoID int64) ([]ReplicaCount, error) {
	rows, err := a.store.ListForVideo(ctx, videoID)
	if err != nil {
		return nil, err
	}
	out := make([]ReplicaCount, 0, len(rows))
	for _, r := range rows {
		rc := ReplicaCount{ReplicaID: r.ReplicaID, Count: r.Count}
		if !r.UpdatedAt.IsZero() {
			rc.LastUpdatedAt = r.UpdatedAt.UnixMilli()
		}
		out = append(out, rc)
	}
	return out, nil
}

// ReplicaTable lists every known row with its video's display name. Videos
// the catalog cannot name are shown as "Unknown (<id>)".
func (a *Aggregator) ReplicaTable(ctx context.Context) ([]TableRow, error) {
	rows, err := a.store.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	names := make(map[int64]string)
	out := make([]TableRow, 0, len(rows))
	for _, r := range rows {
		name, ok := names[r.VideoID]
		if !ok {
			name = a.videoName(ctx, r.VideoID)
			names[r.VideoID] = name
		}
		out = append(out, TableRow{
			VideoID:     r.VideoID,
			VideoName:   name,
			ReplicaName: r.ReplicaID,
			Views:       r.Count,
		})
	}
	return out, nil
}

func (a *Aggregator) videoName(ctx context.Context, videoID int64) string {
	if a.catalog == nil {
		return unknownName(videoID)
	}
	v, err := a.catalog.Lookup(ctx, videoID)
	if err != nil || v.Name == "" {
		return unknownName(videoID)
	}
	return v.Name
}

func unknownName(videoID int64) string {
	return fmt.Sprintf("Unknown (%d)", videoID)
}
