package node

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Pappt04/Lilyoutube-server/api"
	"github.com/Pappt04/Lilyoutube-server/catalog"
	"github.com/Pappt04/Lilyoutube-server/gossip"
	"github.com/Pappt04/Lilyoutube-server/ingest"
	"github.com/Pappt04/Lilyoutube-server/logger"
	"github.com/Pappt04/Lilyoutube-server/metrics"
	"github.com/Pappt04/Lilyoutube-server/peer"
	"github.com/Pappt04/Lilyoutube-server/query"
	"github.com/Pappt04/Lilyoutube-server/replica"
	"github.com/Pappt04/Lilyoutube-server/transport"
)

const (
	connectTimeout  = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

// Options override components a node would otherwise build from its config.
type Options struct {
	Logger     logrus.FieldLogger
	Store      replica.Store
	Catalog    catalog.Catalog
	PeerClient gossip.PeerClient
	// RuntimeMetrics registers Go and process collectors; enable it for at
	// most one node per process.
	RuntimeMetrics bool
}

// Node is one replica: its store, sync loop and servers.
type Node struct {
	config  *Config
	log     logrus.FieldLogger
	metrics *metrics.Metrics

	store      replica.Store
	catalog    catalog.Catalog
	postgres   *catalog.PostgresCatalog
	flusher    *catalog.Flusher
	directory  *peer.Directory
	ingestor   *ingest.Ingestor
	queries    *query.Aggregator
	sync       *gossip.Synchronizer
	grpcClient *transport.GRPCClient
	grpcServer *transport.GRPC
	httpServer *api.Server

	// Lifecycle management
	ctx     context.Context
	cancel  context.CancelFunc
	mu      sync.RWMutex
	running bool
}

// New creates a node with the given configuration. Storage and catalog
// backends are connected here; servers are bound by Start.
func New(config *Config, opts Options) (*Node, error) {
	if config == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	log := opts.Logger
	if log == nil {
		log = logger.Get().ForNode(config.ReplicaID)
	}

	n := &Node{
		config:  config,
		log:     log,
		metrics: metrics.New(config.ReplicaID, opts.RuntimeMetrics),
	}

	connectCtx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	if err := n.setupStore(connectCtx, opts.Store); err != nil {
		return nil, err
	}
	if err := n.setupCatalog(connectCtx, opts.Catalog); err != nil {
		_ = n.store.Close()
		return nil, err
	}
	if err := n.setupSync(opts.PeerClient); err != nil {
		n.closeBackends()
		return nil, err
	}

	n.ingestor = ingest.New(config.ReplicaID, n.store, n.catalog, logger.Component(log, "ingest"), n.metrics)
	n.queries = query.New(n.store, n.catalog)
	n.ctx, n.cancel = context.WithCancel(context.Background())
	return n, nil
}

func (n *Node) setupStore(ctx context.Context, store replica.Store) error {
	if store != nil {
		n.store = store
		return nil
	}
	switch n.config.Storage.Backend {
	case StorageRedis:
		redisCfg := n.config.Storage.Redis
		if redisCfg.KeyPrefix == "" {
			redisCfg.KeyPrefix = n.config.ReplicaID
		}
		client, err := replica.DialRedis(ctx, redisCfg)
		if err != nil {
			return fmt.Errorf("failed to connect replica store: %w", err)
		}
		n.store = replica.NewRedisStore(client, redisCfg.KeyPrefix)
		n.log.WithField("addrs", redisCfg.Addrs).Info("Using Redis replica store")
	default:
		n.store = replica.NewMemoryStore()
	}
	return nil
}

func (n *Node) setupCatalog(ctx context.Context, cat catalog.Catalog) error {
	if cat != nil {
		n.catalog = cat
		return nil
	}
	switch n.config.Catalog.Backend {
	case CatalogPostgres:
		db, err := catalog.Connect(ctx, n.config.Catalog.Postgres, logger.Component(n.log, "catalog"))
		if err != nil {
			return fmt.Errorf("failed to connect catalog: %w", err)
		}
		n.postgres = catalog.NewPostgresCatalog(db)
		n.catalog = n.postgres
		n.flusher = catalog.NewFlusher(n.store, n.postgres, n.config.Catalog.FlushInterval,
			logger.Component(n.log, "flusher"), n.metrics)
	default:
		n.catalog = catalog.NewStaticCatalog(n.config.Catalog.Videos...)
	}
	return nil
}

func (n *Node) setupSync(client gossip.PeerClient) error {
	peers := make([]peer.PeerNode, 0, len(n.config.Peers))
	for _, p := range n.config.Peers {
		peers = append(peers, peer.PeerNode{ID: p.ID, Address: p.Address})
	}

	dirLog := logger.Component(n.log, "peers")
	directory, err := peer.New(peers, peer.Config{
		UnhealthyThreshold: n.config.Sync.UnhealthyThreshold,
		ProbeInterval:      n.config.Sync.ProbeInterval,
		OnTransition: func(p peer.PeerNode, from, to peer.Health) {
			n.metrics.PeerHealth(p.ID, int(to))
			dirLog.WithFields(logrus.Fields{
				"peer": p.ID,
				"from": from.String(),
				"to":   to.String(),
			}).Info("Peer health changed")
		},
	})
	if err != nil {
		return fmt.Errorf("failed to build peer directory: %w", err)
	}
	n.directory = directory
	for _, p := range peers {
		n.metrics.PeerHealth(p.ID, int(peer.Healthy))
	}

	if client == nil {
		switch n.config.Sync.Transport {
		case TransportHTTP:
			client = transport.NewHTTPClient(nil)
		default:
			n.grpcClient = transport.NewGRPCClient()
			client = n.grpcClient
		}
	}

	n.sync, err = gossip.New(gossip.Config{
		ReplicaID:       n.config.ReplicaID,
		Interval:        n.config.Sync.Interval,
		ExchangeTimeout: n.config.Sync.ExchangeTimeout,
	}, n.store, directory, client, logger.Component(n.log, "gossip"), n.metrics)
	if err != nil {
		return fmt.Errorf("failed to create synchronizer: %w", err)
	}
	return nil
}

// Start binds both servers and starts the background loops.
func (n *Node) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.running {
		return nil
	}
	// Stop closes the store and peer connections, so a node is single use.
	if n.ctx.Err() != nil {
		return ErrNodeStopped
	}

	if err := n.startGRPC(); err != nil {
		return fmt.Errorf("failed to start gRPC server: %w", err)
	}
	if err := n.startHTTP(); err != nil {
		_ = n.grpcServer.Stop(shutdownTimeout)
		return fmt.Errorf("failed to start HTTP server: %w", err)
	}

	if n.config.Sync.Manual {
		n.log.Info("Manual sync mode enabled - cycles run only when triggered")
	} else {
		n.sync.Start(n.ctx)
	}
	if n.flusher != nil {
		n.flusher.Start(n.ctx)
	}

	n.running = true
	n.log.WithFields(logrus.Fields{
		"http":      n.httpServer.Addr(),
		"grpc":      n.grpcServer.Addr(),
		"transport": n.config.Sync.Transport,
		"peers":     len(n.config.Peers),
	}).Info("Node started")
	return nil
}

func (n *Node) startGRPC() error {
	srv, err := transport.NewGRPC(n.config.GetGRPCAddress(), n.config.ReplicaID, n.sync, logger.Component(n.log, "grpc"))
	if err != nil {
		return err
	}
	// Start() performs binding synchronously so a port already in use
	// surfaces here.
	if err := srv.Start(); err != nil {
		return err
	}
	n.grpcServer = srv
	return nil
}

func (n *Node) startHTTP() error {
	router := api.NewRouter(api.Deps{
		ReplicaID: n.config.ReplicaID,
		Ingestor:  n.ingestor,
		Queries:   n.queries,
		Catalog:   n.catalog,
		Sync:      n.sync,
		Peers:     n.directory,
		Metrics:   n.metrics,
		Logger:    logger.Component(n.log, "http"),
	})
	srv := api.NewServer(n.config.GetHTTPAddress(), router, logger.Component(n.log, "http"))
	if err := srv.Start(); err != nil {
		return err
	}
	n.httpServer = srv
	return nil
}

// Stop stops the node gracefully
func (n *Node) Stop() error {
	n.mu.Lock()
	if n.ctx.Err() != nil {
		n.mu.Unlock()
		return nil
	}
	wasRunning := n.running
	n.running = false
	n.cancel()
	n.mu.Unlock()

	n.log.Info("Stopping node...")

	n.sync.Stop()
	if n.flusher != nil {
		n.flusher.Stop()
	}

	if wasRunning {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := n.httpServer.Shutdown(ctx); err != nil {
			n.log.WithError(err).Warn("Error stopping HTTP server")
		}
		if err := n.grpcServer.Stop(shutdownTimeout); err != nil {
			n.log.WithError(err).Warn("Error stopping gRPC server")
		}
	}

	n.closeBackends()
	n.log.Info("Node stopped")
	return nil
}

func (n *Node) closeBackends() {
	if n.grpcClient != nil {
		if err := n.grpcClient.Close(); err != nil {
			n.log.WithError(err).Warn("Error closing peer connections")
		}
	}
	if n.store != nil {
		if err := n.store.Close(); err != nil {
			n.log.WithError(err).Warn("Error closing replica store")
		}
	}
	if n.postgres != nil {
		if err := n.postgres.Close(); err != nil {
			n.log.WithError(err).Warn("Error closing catalog database")
		}
	}
}

// GetConfig returns the node configuration (for external access)
func (n *Node) GetConfig() *Config {
	return n.config
}

func (n *Node) ReplicaID() string {
	return n.config.ReplicaID
}

func (n *Node) IsRunning() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.running
}

// HTTPAddr is the bound HTTP address once started.
func (n *Node) HTTPAddr() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.httpServer == nil {
		return n.config.GetHTTPAddress()
	}
	return n.httpServer.Addr()
}

// GRPCAddr is the bound gRPC address once started.
func (n *Node) GRPCAddr() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.grpcServer == nil {
		return n.config.GetGRPCAddress()
	}
	return n.grpcServer.Addr()
}

// SyncAddr is the address peers using this node's transport should dial.
func (n *Node) SyncAddr() string {
	if n.config.Sync.Transport == TransportHTTP {
		return n.HTTPAddr()
	}
	return n.GRPCAddr()
}

// RecordView increments the local row, as the HTTP API does.
func (n *Node) RecordView(ctx context.Context, videoID int64) error {
	return n.ingestor.RecordView(ctx, videoID)
}

func (n *Node) TotalViews(ctx context.Context, videoID int64) (uint64, error) {
	return n.queries.TotalViews(ctx, videoID)
}

func (n *Node) ReplicaTable(ctx context.Context) ([]query.TableRow, error) {
	return n.queries.ReplicaTable(ctx)
}

// SyncNow runs one anti-entropy cycle immediately.
func (n *Node) SyncNow(ctx context.Context) (gossip.CycleReport, error) {
	if !n.IsRunning() {
		return gossip.CycleReport{}, ErrNodeNotRunning
	}
	return n.sync.RunCycle(ctx), nil
}

func (n *Node) Peers() []peer.PeerNode {
	return n.directory.List()
}

// AddPeer registers another replica at runtime.
func (n *Node) AddPeer(id, address string) error {
	if id == n.config.ReplicaID {
		return fmt.Errorf("%w: %s is this node", ErrInvalidPeer, id)
	}
	if err := n.directory.Add(id, address); err != nil {
		return err
	}
	n.metrics.PeerHealth(id, int(peer.Healthy))
	n.log.WithFields(logrus.Fields{"peer": id, "address": address}).Info("Peer added")
	return nil
}

// RemovePeer forgets a replica. Rows it already contributed stay.
func (n *Node) RemovePeer(id string) error {
	p, ok := n.directory.Get(id)
	if err := n.directory.Remove(id); err != nil {
		return err
	}
	if ok && n.grpcClient != nil {
		n.grpcClient.Forget(p.Address)
	}
	n.metrics.ForgetPeer(id)
	n.log.WithField("peer", id).Info("Peer removed")
	return nil
}

// Catalog exposes the node's video catalog.
func (n *Node) Catalog() catalog.Catalog {
	return n.catalog
}
