package gossip

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Pappt04/Lilyoutube-server/peer"
	"github.com/Pappt04/Lilyoutube-server/replica"
)

// loopback routes exchanges directly to in-process synchronizers and can
// drop links to simulate partitions.
type loopback struct {
	mu    sync.Mutex
	nodes map[string]*Synchronizer
	down  map[string]bool
	delay time.Duration
}

func newLoopback() *loopback {
	return &loopback{nodes: make(map[string]*Synchronizer), down: make(map[string]bool)}
}

func (l *loopback) Exchange(ctx context.Context, p peer.PeerNode, local Snapshot) (Snapshot, error) {
	l.mu.Lock()
	target, ok := l.nodes[p.ID]
	cut := l.down[p.ID] || l.down[local.SourceReplica]
	delay := l.delay
	l.mu.Unlock()

	if !ok || cut {
		return Snapshot{}, errors.New("connection refused")
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return Snapshot{}, ctx.Err()
		}
	}
	return target.HandleExchange(ctx, local)
}

func (l *loopback) partition(id string, isDown bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.down[id] = isDown
}

type testNode struct {
	id    string
	store *replica.MemoryStore
	dir   *peer.Directory
	sync  *Synchronizer
}

func quietLogger() logrus.FieldLogger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

func newCluster(t *testing.T, ids ...string) (map[string]*testNode, *loopback) {
	t.Helper()
	lb := newLoopback()
	nodes := make(map[string]*testNode, len(ids))
	for _, id := range ids {
		var peers []peer.PeerNode
		for _, other := range ids {
			if other != id {
				peers = append(peers, peer.PeerNode{ID: other, Address: "loopback/" + other})
			}
		}
		dir, err := peer.New(peers, peer.Config{UnhealthyThreshold: 3, ProbeInterval: time.Millisecond})
		require.NoError(t, err)

		store := replica.NewMemoryStore()
		s, err := New(Config{ReplicaID: id, Interval: time.Hour, ExchangeTimeout: time.Second},
			store, dir, lb, quietLogger(), nil)
		require.NoError(t, err)

		nodes[id] = &testNode{id: id, store: store, dir: dir, sync: s}
		lb.nodes[id] = s
	}
	return nodes, lb
}

func bump(t *testing.T, n *testNode, videoID int64, times int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < times; i++ {
		cur, _, err := n.store.Get(ctx, videoID, n.id)
		require.NoError(t, err)
		_, err = n.store.UpsertIfGreater(ctx, replica.Row{VideoID: videoID, ReplicaID: n.id, Count: cur.Count + 1})
		require.NoError(t, err)
	}
}

func total(t *testing.T, n *testNode, videoID int64) uint64 {
	t.Helper()
	rows, err := n.store.ListForVideo(context.Background(), videoID)
	require.NoError(t, err)
	var sum uint64
	for _, r := range rows {
		sum += r.Count
	}
	return sum
}

func TestTwoReplicasConverge(t *testing.T) {
	nodes, _ := newCluster(t, "replica-a", "replica-b")
	a, b := nodes["replica-a"], nodes["replica-b"]

	bump(t, a, 1, 15)
	bump(t, b, 1, 10)
	assert.Equal(t, uint64(15), total(t, a, 1), "local writes are visible before any sync")

	report := a.sync.RunCycle(context.Background())
	require.Len(t, report.Results, 1)
	require.NoError(t, report.Results[0].Err)

	assert.Equal(t, uint64(25), total(t, a, 1))
	assert.Equal(t, uint64(25), total(t, b, 1), "push-pull moves rows in both directions")
}

func TestThreeReplicasConvergeTransitively(t *testing.T) {
	nodes, _ := newCluster(t, "replica-a", "replica-b", "replica-c")
	a, b, c := nodes["replica-a"], nodes["replica-b"], nodes["replica-c"]

	// a and c never talk directly; b relays.
	require.NoError(t, a.dir.Remove("replica-c"))
	require.NoError(t, c.dir.Remove("replica-a"))

	bump(t, a, 7, 4)
	bump(t, c, 7, 6)

	a.sync.RunCycle(context.Background())
	c.sync.RunCycle(context.Background())
	a.sync.RunCycle(context.Background())

	for _, n := range []*testNode{a, b, c} {
		assert.Equal(t, uint64(10), total(t, n, 7), n.id)
	}
}

func TestMergeIsIdempotentAndOrderIndependent(t *testing.T) {
	rows := []replica.Row{
		{VideoID: 1, ReplicaID: "x", Count: 5},
		{VideoID: 1, ReplicaID: "y", Count: 3},
		{VideoID: 1, ReplicaID: "x", Count: 2},
		{VideoID: 2, ReplicaID: "x", Count: 9},
	}
	reversed := []replica.Row{rows[3], rows[2], rows[1], rows[0]}

	nodes, _ := newCluster(t, "one", "two")
	ctx := context.Background()

	_, err := nodes["one"].sync.Merge(ctx, rows)
	require.NoError(t, err)
	changed, err := nodes["one"].sync.Merge(ctx, rows)
	require.NoError(t, err)
	assert.Zero(t, changed, "re-merging the same rows changes nothing")

	_, err = nodes["two"].sync.Merge(ctx, reversed)
	require.NoError(t, err)

	s1, err := nodes["one"].store.Snapshot(ctx)
	require.NoError(t, err)
	s2, err := nodes["two"].store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, s1, s2)

	x, _, err := nodes["one"].store.Get(ctx, 1, "x")
	require.NoError(t, err)
	assert.Equal(t, uint64(5), x.Count)
}

func TestMergeNeverLowersARow(t *testing.T) {
	nodes, _ := newCluster(t, "one", "two")
	n := nodes["one"]
	bump(t, n, 1, 8)

	changed, err := n.sync.Merge(context.Background(), []replica.Row{{VideoID: 1, ReplicaID: "one", Count: 3}})
	require.NoError(t, err)
	assert.Zero(t, changed)
	assert.Equal(t, uint64(8), total(t, n, 1))
}

func TestPartitionAndRecovery(t *testing.T) {
	nodes, lb := newCluster(t, "replica-a", "replica-b")
	a, b := nodes["replica-a"], nodes["replica-b"]
	ctx := context.Background()

	lb.partition("replica-b", true)
	bump(t, a, 3, 5)
	bump(t, b, 3, 2)

	for i := 0; i < 3; i++ {
		report := a.sync.RunCycle(ctx)
		require.Len(t, report.Results, 1)
		assert.True(t, errors.Is(report.Results[0].Err, ErrPeerUnreachable))
	}
	p, _ := a.dir.Get("replica-b")
	assert.Equal(t, peer.Unhealthy, p.Health)
	assert.Equal(t, uint64(5), total(t, a, 3), "a partitioned node keeps serving its own view")
	assert.Equal(t, uint64(2), total(t, b, 3))

	lb.partition("replica-b", false)
	time.Sleep(2 * time.Millisecond)
	report := a.sync.RunCycle(ctx)
	require.Len(t, report.Results, 1, "an unhealthy peer is probed once its interval elapses")
	require.NoError(t, report.Results[0].Err)

	p, _ = a.dir.Get("replica-b")
	assert.Equal(t, peer.Healthy, p.Health)
	assert.Equal(t, uint64(7), total(t, a, 3))
	assert.Equal(t, uint64(7), total(t, b, 3))
}

func TestExchangeTimeoutIsClassified(t *testing.T) {
	nodes, lb := newCluster(t, "replica-a", "replica-b")
	a := nodes["replica-a"]
	a.sync.cfg.ExchangeTimeout = 10 * time.Millisecond
	lb.delay = time.Second

	report := a.sync.RunCycle(context.Background())
	require.Len(t, report.Results, 1)
	assert.True(t, errors.Is(report.Results[0].Err, ErrPeerTimeout))

	p, _ := a.dir.Get("replica-b")
	assert.Equal(t, peer.Suspect, p.Health)
}

func TestLocalStorageFailureSkipsCycle(t *testing.T) {
	nodes, _ := newCluster(t, "replica-a", "replica-b")
	a := nodes["replica-a"]
	require.NoError(t, a.store.Close())

	report := a.sync.RunCycle(context.Background())
	assert.Empty(t, report.Results)
	p, _ := a.dir.Get("replica-b")
	assert.Equal(t, peer.Healthy, p.Health, "a local failure says nothing about the peer")
}

func TestStartStop(t *testing.T) {
	nodes, _ := newCluster(t, "replica-a", "replica-b")
	a, b := nodes["replica-a"], nodes["replica-b"]
	a.sync.cfg.Interval = 5 * time.Millisecond
	bump(t, a, 1, 2)

	a.sync.Start(context.Background())
	require.Eventually(t, func() bool { return total(t, b, 1) == 2 }, time.Second, 5*time.Millisecond)
	a.sync.Stop()
	a.sync.Stop()
	assert.False(t, a.sync.LastCycle().StartedAt.IsZero())
}

func TestNew_ValidatesConfig(t *testing.T) {
	dir, err := peer.New(nil, peer.Config{})
	require.NoError(t, err)
	store := replica.NewMemoryStore()
	lb := newLoopback()

	_, err = New(Config{Interval: time.Second, ExchangeTimeout: time.Second}, store, dir, lb, quietLogger(), nil)
	assert.Error(t, err)
	_, err = New(Config{ReplicaID: "a", ExchangeTimeout: time.Second}, store, dir, lb, quietLogger(), nil)
	assert.Error(t, err)
	_, err = New(Config{ReplicaID: "a", Interval: time.Second}, store, dir, lb, quietLogger(), nil)
	assert.Error(t, err)
}
