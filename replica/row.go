package replica

import (
	"errors"
	"sort"
	"time"
)

/*
Replica rows

Every replica node owns exactly one counter per video. The row
(VideoID, ReplicaID) is written by its owner only; every other node holds
a read-only copy learned through anti-entropy exchanges.

	owner:      count grows by 1 on each local view
	non-owner:  count moves up to whatever the newest snapshot says

Rows never shrink. That single property is what lets the synchronizer
merge snapshots with a plain "keep the larger count" rule: applying the
same snapshot twice, or two snapshots in either order, ends in the same
row set.

The aggregate view count of a video is the sum of the counts of all of its
rows that the node currently knows about.
*/

// ErrStorage marks a failure of the local row store. Callers surface it as a
// server error; it is the only node-fatal error class.
var ErrStorage = errors.New("replica store unavailable")

// Key identifies a single counter row.
type Key struct {
	VideoID   int64
	ReplicaID string
}

// Row is one replica's counter for one video.
type Row struct {
	VideoID   int64     `json:"videoId"`
	ReplicaID string    `json:"replicaId"`
	Count     uint64    `json:"count"`
	UpdatedAt time.Time `json:"lastUpdatedAt"`
}

// Key returns the row identity.
func (r Row) Key() Key {
	return Key{VideoID: r.VideoID, ReplicaID: r.ReplicaID}
}

// SortRows orders rows by video then replica so listings are deterministic.
func SortRows(rows []Row) {
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].VideoID != rows[j].VideoID {
			return rows[i].VideoID < rows[j].VideoID
		}
		return rows[i].ReplicaID < rows[j].ReplicaID
	})
}
