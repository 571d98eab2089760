package gossip

import (
	"context"
	"time"

	"github.com/Pappt04/Lilyoutube-server/peer"
	"github.com/Pappt04/Lilyoutube-server/replica"
)

/*
Snapshot:

	The full set of rows one replica knows about at one instant, tagged with
	the replica that produced it. It is built for a single exchange and then
	discarded; nothing keeps a reference to it.

	A snapshot carries rows owned by other replicas too, so state reaches
	nodes that never talk to the owner directly.
*/
type Snapshot struct {
	SourceReplica string        `json:"sourceReplica"`
	Rows          []replica.Row `json:"rows"`
}

// PeerClient performs one push-pull exchange: it delivers local to the peer
// and returns the peer's snapshot.
type PeerClient interface {
	Exchange(ctx context.Context, p peer.PeerNode, local Snapshot) (Snapshot, error)
}

// ExchangeResult describes the outcome of one exchange within a cycle.
type ExchangeResult struct {
	PeerID     string
	RowsMerged int
	Err        error
}

type CycleReport struct {
	StartedAt  time.Time
	Duration   time.Duration
	Results    []ExchangeResult
	RowsMerged int
}

func (r CycleReport) Succeeded() int {
	n := 0
	for _, res := range r.Results {
		if res.Err == nil {
			n++
		}
	}
	return n
}

func (r CycleReport) Failed() int {
	return len(r.Results) - r.Succeeded()
}
