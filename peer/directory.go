/*
Package peer tracks the other replicas a node exchanges counters with.

Each peer moves through three health states based on the outcome of sync
exchanges:

	Healthy --fail--> Suspect --K consecutive fails--> Unhealthy
	   ^                 |                                 |
	   +-----success-----+-------------success-------------+

Healthy and Suspect peers take part in every sync cycle. Unhealthy peers are
only probed once per probe interval so a partitioned peer rejoins as soon as
it answers again.
*/
package peer

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	ErrUnknownPeer   = errors.New("unknown peer")
	ErrDuplicatePeer = errors.New("peer already registered")
)

type Health int

const (
	Healthy Health = iota
	Suspect
	Unhealthy
)

func (h Health) String() string {
	switch h {
	case Healthy:
		return "healthy"
	case Suspect:
		return "suspect"
	case Unhealthy:
		return "unhealthy"
	default:
		return fmt.Sprintf("health(%d)", int(h))
	}
}

func (h Health) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

// PeerNode is a copy of one directory entry; mutating it has no effect on the
// directory.
type PeerNode struct {
	ID                  string    `json:"id"`
	Address             string    `json:"address"`
	Health              Health    `json:"health"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
	LastContactAt       time.Time `json:"lastContactAt,omitempty"`
	LastProbeAt         time.Time `json:"lastProbeAt,omitempty"`
}

type Config struct {
	// UnhealthyThreshold is the number of consecutive failures after which a
	// peer is marked Unhealthy.
	UnhealthyThreshold int
	// ProbeInterval is how often an Unhealthy peer is retried.
	ProbeInterval time.Duration
	// OnTransition, if set, is called outside the lock whenever a peer
	// changes health.
	OnTransition func(p PeerNode, from, to Health)
}

func DefaultConfig() Config {
	return Config{
		UnhealthyThreshold: 3,
		ProbeInterval:      15 * time.Second,
	}
}

type Directory struct {
	cfg   Config
	mu    sync.RWMutex
	peers map[string]*PeerNode
	now   func() time.Time
}

// New builds a directory from a static peer list. Every peer starts Healthy.
func New(peers []PeerNode, cfg Config) (*Directory, error) {
	if cfg.UnhealthyThreshold <= 0 {
		cfg.UnhealthyThreshold = DefaultConfig().UnhealthyThreshold
	}
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultConfig().ProbeInterval
	}
	d := &Directory{
		cfg:   cfg,
		peers: make(map[string]*PeerNode, len(peers)),
		now:   time.Now,
	}
	for _, p := range peers {
		if err := d.Add(p.ID, p.Address); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// Add registers a new Healthy peer.
func (d *Directory) Add(id, address string) error {
	if id == "" || address == "" {
		return fmt.Errorf("peer id and address are required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.peers[id]; ok {
		return fmt.Errorf("%s: %w", id, ErrDuplicatePeer)
	}
	d.peers[id] = &PeerNode{ID: id, Address: address, Health: Healthy}
	return nil
}

func (d *Directory) Remove(id string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if _, ok := d.peers[id]; !ok {
		return fmt.Errorf("%s: %w", id, ErrUnknownPeer)
	}
	delete(d.peers, id)
	return nil
}

func (d *Directory) Get(id string) (PeerNode, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	p, ok := d.peers[id]
	if !ok {
		return PeerNode{}, false
	}
	return *p, true
}

// List returns every peer ordered by id.
func (d *Directory) List() []PeerNode {
	return d.filter(func(*PeerNode) bool { return true })
}

// ListHealthyPeers returns the peers taking part in every sync cycle:
// Healthy and Suspect ones.
func (d *Directory) ListHealthyPeers() []PeerNode {
	return d.filter(func(p *PeerNode) bool { return p.Health != Unhealthy })
}

// ExchangeTargets returns the peers to contact in a cycle starting at now:
// the healthy fan-out plus every Unhealthy peer whose probe is due. Every
// target is stamped with now, so the due check always compares two cycle
// start times. A tenth of the interval is tolerated for ticker jitter.
func (d *Directory) ExchangeTargets(now time.Time) []PeerNode {
	due := d.cfg.ProbeInterval - d.cfg.ProbeInterval/10
	d.mu.Lock()
	out := make([]PeerNode, 0, len(d.peers))
	for _, p := range d.peers {
		if p.Health == Unhealthy && now.Sub(p.LastProbeAt) < due {
			continue
		}
		p.LastProbeAt = now
		out = append(out, *p)
	}
	d.mu.Unlock()
	sortPeers(out)
	return out
}

// RecordSuccess marks a peer reachable again.
func (d *Directory) RecordSuccess(id string) error {
	d.mu.Lock()
	p, ok := d.peers[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrUnknownPeer)
	}
	from := p.Health
	p.Health = Healthy
	p.ConsecutiveFailures = 0
	p.LastContactAt = d.now()
	snap := *p
	d.mu.Unlock()

	d.notify(snap, from, Healthy)
	return nil
}

// RecordFailure counts one failed exchange with the peer.
func (d *Directory) RecordFailure(id string) error {
	d.mu.Lock()
	p, ok := d.peers[id]
	if !ok {
		d.mu.Unlock()
		return fmt.Errorf("%s: %w", id, ErrUnknownPeer)
	}
	from := p.Health
	p.ConsecutiveFailures++
	switch {
	case p.ConsecutiveFailures >= d.cfg.UnhealthyThreshold:
		p.Health = Unhealthy
	default:
		p.Health = Suspect
	}
	to := p.Health
	snap := *p
	d.mu.Unlock()

	d.notify(snap, from, to)
	return nil
}

func (d *Directory) notify(p PeerNode, from, to Health) {
	if from != to && d.cfg.OnTransition != nil {
		d.cfg.OnTransition(p, from, to)
	}
}

func (d *Directory) filter(keep func(*PeerNode) bool) []PeerNode {
	d.mu.RLock()
	out := make([]PeerNode, 0, len(d.peers))
	for _, p := range d.peers {
		if keep(p) {
			out = append(out, *p)
		}
	}
	d.mu.RUnlock()
	sortPeers(out)
	return out
}

func sortPeers(peers []PeerNode) {
	sort.Slice(peers, func(i, j int) bool { return peers[i].ID < peers[j].ID })
}
