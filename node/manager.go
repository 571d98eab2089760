package node

import (
	"errors"
	"fmt"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Pappt04/Lilyoutube-server/catalog"
	"github.com/Pappt04/Lilyoutube-server/logger"
)

// ManagerConfig describes the nodes a Manager creates.
type ManagerConfig struct {
	Address string
	// Base ports for the first node; each further node takes the next port.
	// Zero lets the OS pick.
	HTTPBasePort int
	GRPCBasePort int
	// Template supplies sync, storage and catalog settings for every node.
	// ReplicaID, ports and peers are filled in per node.
	Template *Config
	Videos   []catalog.Video
	Logger   *logger.Logger
}

// Manager runs several replicas in one process, fully meshed.
type Manager struct {
	cfg      ManagerConfig
	nodes    []*Node        // maintain order with slice
	nodeMap  map[string]int // map replica ID to index for quick lookup
	mu       sync.RWMutex
	httpPort int
	grpcPort int
	nextID   int // monotonically increasing counter for unique replica IDs
	log      logrus.FieldLogger
}

// NewManager creates a new node manager
func NewManager(cfg ManagerConfig) *Manager {
	if cfg.Address == "" {
		cfg.Address = DefaultAddress
	}
	if cfg.Template == nil {
		cfg.Template = DefaultConfig(DefaultReplicaID)
	}
	if cfg.Logger == nil {
		cfg.Logger = logger.Get()
	}
	return &Manager{
		cfg:      cfg,
		nodes:    make([]*Node, 0),
		nodeMap:  make(map[string]int),
		httpPort: cfg.HTTPBasePort,
		grpcPort: cfg.GRPCBasePort,
		nextID:   1,
		log:      logger.Component(cfg.Logger.Logrus(), "manager"),
	}
}

// CreateNode starts a new replica, gives it every existing replica as a peer
// and registers it with each of them.
func (m *Manager) CreateNode() (*Node, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	replicaID := fmt.Sprintf("replica-%d", m.nextID)
	m.nextID++

	config := m.nodeConfig(replicaID)
	for _, existing := range m.nodes {
		config.Peers = append(config.Peers, PeerConfig{ID: existing.ReplicaID(), Address: existing.SyncAddr()})
	}

	node, err := New(config, Options{Logger: m.cfg.Logger.ForNode(replicaID)})
	if err != nil {
		return nil, fmt.Errorf("failed to create node: %w", err)
	}
	if err := node.Start(); err != nil {
		_ = node.Stop()
		return nil, fmt.Errorf("failed to start node: %w", err)
	}

	for _, existing := range m.nodes {
		if err := existing.AddPeer(replicaID, node.SyncAddr()); err != nil {
			m.log.WithError(err).WithField("replica", existing.ReplicaID()).Warn("Could not register new peer")
		}
	}

	m.nodes = append(m.nodes, node)
	m.nodeMap[replicaID] = len(m.nodes) - 1
	m.log.WithFields(logrus.Fields{"replica": replicaID, "http": node.HTTPAddr()}).Info("Node created")
	return node, nil
}

func (m *Manager) nodeConfig(replicaID string) *Config {
	config := *m.cfg.Template
	config.ReplicaID = replicaID
	config.Address = m.cfg.Address
	config.HTTPPort = m.nextPort(&m.httpPort)
	config.GRPCPort = m.nextPort(&m.grpcPort)
	config.Peers = nil
	config.Catalog.Videos = append([]catalog.Video(nil), m.cfg.Videos...)
	if config.Storage.Backend == StorageRedis {
		config.Storage.Redis.KeyPrefix = replicaID
	}
	return &config
}

func (m *Manager) nextPort(counter *int) string {
	if *counter == 0 {
		return "0"
	}
	port := *counter
	*counter++
	return strconv.Itoa(port)
}

// DeleteNode stops a node by its index in the list and removes it from every
// other node's peer directory. Rows it contributed remain on the survivors.
func (m *Manager) DeleteNode(index int) error {
	m.mu.Lock()

	if index < 0 || index >= len(m.nodes) {
		m.mu.Unlock()
		return fmt.Errorf("invalid node index: %d", index)
	}

	node := m.nodes[index]
	replicaID := node.ReplicaID()

	// Remove from slice and map before unlocking
	m.nodes = append(m.nodes[:index], m.nodes[index+1:]...)
	delete(m.nodeMap, replicaID)

	// Rebuild map indices
	for i, n := range m.nodes {
		m.nodeMap[n.ReplicaID()] = i
	}
	survivors := make([]*Node, len(m.nodes))
	copy(survivors, m.nodes)
	m.mu.Unlock()

	for _, n := range survivors {
		if err := n.RemovePeer(replicaID); err != nil {
			m.log.WithError(err).WithField("replica", n.ReplicaID()).Warn("Could not remove peer")
		}
	}
	return node.Stop()
}

// GetNodes returns a list of all nodes (maintains order)
func (m *Manager) GetNodes() []*Node {
	m.mu.RLock()
	defer m.mu.RUnlock()
	// Return a copy to avoid race conditions
	nodes := make([]*Node, len(m.nodes))
	copy(nodes, m.nodes)
	return nodes
}

// GetNode looks a node up by replica ID.
func (m *Manager) GetNode(replicaID string) (*Node, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	i, ok := m.nodeMap[replicaID]
	if !ok {
		return nil, false
	}
	return m.nodes[i], true
}

// StopAll stops all nodes
func (m *Manager) StopAll() error {
	m.mu.Lock()
	nodes := m.nodes
	m.nodes = nil
	m.nodeMap = make(map[string]int)
	m.mu.Unlock()

	var errs []error
	for _, node := range nodes {
		if err := node.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", node.ReplicaID(), err))
		}
	}
	return errors.Join(errs...)
}
