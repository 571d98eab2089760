package gossip

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Pappt04/Lilyoutube-server/metrics"
	"github.com/Pappt04/Lilyoutube-server/peer"
	"github.com/Pappt04/Lilyoutube-server/replica"
)

/**
Anti-entropy for view counters.

Every node keeps one grow-only counter row per (video, replica). A node only
ever increments the row it owns; rows owned by other replicas change only by
merging what peers send. The visible count of a video is the sum of its rows.

Merge rule:
	For each incoming row, keep max(local.count, incoming.count).
	Absent rows are created. Ties and smaller values are ignored.
	Merging is idempotent and order-independent, so exchanges can be
	repeated or reordered without corrupting any count.

Cycle (every Interval, default 15s):
	IDLE
	 -> take one snapshot of the local store
	 -> exchange concurrently with every target from the peer directory:
	        push local snapshot, receive peer snapshot, merge it
	        each exchange bounded by ExchangeTimeout
	 -> record success or failure per peer in the directory
	 -> IDLE
	A failed exchange is not retried within the cycle; the next cycle is the
	retry. Healthy and Suspect peers are always targeted, Unhealthy ones only
	when their probe is due.

Serving side:
	HandleExchange merges the caller's rows and answers with the local
	snapshot, so a single round trip moves state in both directions.

File Organization:
	gossip.go - Synchronizer struct, constructor and ticker loop
	types.go - Snapshot, PeerClient and cycle reports
	cycle.go - One sync cycle and the per-peer exchange
	merge.go - Monotone-max merge and the serving side of an exchange
	errors.go - Exchange failure classification
*/

type Config struct {
	ReplicaID       string
	Interval        time.Duration
	ExchangeTimeout time.Duration
}

func DefaultConfig() Config {
	return Config{
		Interval:        15 * time.Second,
		ExchangeTimeout: 3 * time.Second,
	}
}

// Synchronizer runs anti-entropy for one replica node.
type Synchronizer struct {
	cfg       Config
	store     replica.Store
	directory *peer.Directory
	client    PeerClient
	logger    logrus.FieldLogger
	metrics   *metrics.Metrics
	now       func() time.Time

	cycleMu sync.Mutex

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	lastRun CycleReport
}

func New(cfg Config, store replica.Store, directory *peer.Directory, client PeerClient, logger logrus.FieldLogger, m *metrics.Metrics) (*Synchronizer, error) {
	if cfg.ReplicaID == "" {
		return nil, fmt.Errorf("replica id must be set")
	}
	if cfg.Interval <= 0 {
		return nil, fmt.Errorf("interval must be greater than 0")
	}
	if cfg.ExchangeTimeout <= 0 {
		return nil, fmt.Errorf("exchange timeout must be greater than 0")
	}
	if store == nil || directory == nil || client == nil {
		return nil, fmt.Errorf("store, directory and peer client are required")
	}
	return &Synchronizer{
		cfg:       cfg,
		store:     store,
		directory: directory,
		client:    client,
		logger:    logger,
		metrics:   m,
		now:       time.Now,
	}, nil
}

// Start launches the sync loop in the background. It returns immediately;
// the loop ends when ctx is cancelled or Stop is called.
func (s *Synchronizer) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.done != nil {
		return
	}
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
}

// Stop cancels the loop and waits for an in-flight cycle to finish.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (s *Synchronizer) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	s.logger.WithField("interval", s.cfg.Interval).Info("Starting anti-entropy loop")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Anti-entropy loop stopped")
			return
		case <-ticker.C:
			s.RunCycle(ctx)
		}
	}
}

// LastCycle returns the report of the most recent cycle.
func (s *Synchronizer) LastCycle() CycleReport {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}
