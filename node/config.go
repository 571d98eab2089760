package node

import (
	"fmt"
	"strings"
	"time"

	"github.com/Pappt04/Lilyoutube-server/catalog"
	"github.com/Pappt04/Lilyoutube-server/replica"
)

// Default configuration constants
const (
	DefaultAddress   = "127.0.0.1"
	DefaultHTTPPort  = "8080"
	DefaultGRPCPort  = "50051"
	DefaultReplicaID = "replica-1"

	TransportGRPC = "grpc"
	TransportHTTP = "http"

	StorageMemory = "memory"
	StorageRedis  = "redis"

	CatalogStatic   = "static"
	CatalogPostgres = "postgres"
)

// PeerConfig names one other replica and the address its sync transport
// listens on.
type PeerConfig struct {
	ID      string `yaml:"id"`
	Address string `yaml:"address"`
}

type SyncConfig struct {
	Interval           time.Duration `yaml:"interval"`
	ExchangeTimeout    time.Duration `yaml:"exchange_timeout"`
	UnhealthyThreshold int           `yaml:"unhealthy_threshold"`
	ProbeInterval      time.Duration `yaml:"probe_interval"`
	Transport          string        `yaml:"transport"`
	// Manual disables the ticker; cycles only run when triggered.
	Manual bool `yaml:"manual"`
}

type StorageConfig struct {
	Backend string              `yaml:"backend"`
	Redis   replica.RedisConfig `yaml:"redis"`
}

type CatalogConfig struct {
	Backend       string                 `yaml:"backend"`
	Videos        []catalog.Video        `yaml:"videos"`
	Postgres      catalog.PostgresConfig `yaml:"postgres"`
	FlushInterval time.Duration          `yaml:"flush_interval"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config holds the configuration for a node
type Config struct {
	ReplicaID string `yaml:"replica_id"`

	// Server configuration
	Address  string `yaml:"address"`
	HTTPPort string `yaml:"http_port"`
	GRPCPort string `yaml:"grpc_port"`

	Peers   []PeerConfig  `yaml:"peers"`
	Sync    SyncConfig    `yaml:"sync"`
	Storage StorageConfig `yaml:"storage"`
	Catalog CatalogConfig `yaml:"catalog"`
	Log     LogConfig     `yaml:"log"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig(replicaID string) *Config {
	return &Config{
		ReplicaID: replicaID,
		Address:   DefaultAddress,
		HTTPPort:  DefaultHTTPPort,
		GRPCPort:  DefaultGRPCPort,
		Peers:     []PeerConfig{},
		Sync: SyncConfig{
			Interval:           15 * time.Second,
			ExchangeTimeout:    3 * time.Second,
			UnhealthyThreshold: 3,
			ProbeInterval:      15 * time.Second,
			Transport:          TransportGRPC,
		},
		Storage: StorageConfig{
			Backend: StorageMemory,
		},
		Catalog: CatalogConfig{
			Backend:       CatalogStatic,
			Postgres:      catalog.DefaultPostgresConfig(),
			FlushInterval: 30 * time.Second,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Validate checks if the config is valid
func (c *Config) Validate() error {
	if c.ReplicaID == "" {
		return ErrReplicaIDRequired
	}
	if c.Address == "" {
		return ErrAddressRequired
	}
	if c.HTTPPort == "" || c.GRPCPort == "" {
		return ErrPortRequired
	}
	if c.Sync.Interval <= 0 {
		return ErrInvalidSyncInterval
	}
	if c.Sync.ExchangeTimeout <= 0 {
		return ErrInvalidExchangeTimeout
	}
	if c.Sync.UnhealthyThreshold <= 0 {
		return ErrInvalidThreshold
	}
	switch c.Sync.Transport {
	case TransportGRPC, TransportHTTP:
	default:
		return fmt.Errorf("%w: %q", ErrUnknownTransport, c.Sync.Transport)
	}
	switch c.Storage.Backend {
	case StorageMemory:
	case StorageRedis:
		if len(c.Storage.Redis.Addrs) == 0 {
			return ErrRedisAddrRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorage, c.Storage.Backend)
	}
	switch c.Catalog.Backend {
	case CatalogStatic:
	case CatalogPostgres:
		if c.Catalog.Postgres.URL == "" {
			return ErrDatabaseURLRequired
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownCatalog, c.Catalog.Backend)
	}

	seen := map[string]bool{c.ReplicaID: true}
	for _, p := range c.Peers {
		if p.ID == "" || p.Address == "" {
			return fmt.Errorf("%w: %+v", ErrInvalidPeer, p)
		}
		if seen[p.ID] {
			return fmt.Errorf("%w: duplicate replica id %q", ErrInvalidPeer, p.ID)
		}
		seen[p.ID] = true
	}
	return nil
}

// GetHTTPAddress returns the HTTP listen address (address:port)
func (c *Config) GetHTTPAddress() string {
	return c.Address + ":" + c.HTTPPort
}

// GetGRPCAddress returns the gRPC listen address (address:port)
func (c *Config) GetGRPCAddress() string {
	return c.Address + ":" + c.GRPCPort
}

// ParsePeers reads "id=address" pairs, as given on the command line or in
// VIEWSYNC_PEERS.
func ParsePeers(specs []string) ([]PeerConfig, error) {
	peers := make([]PeerConfig, 0, len(specs))
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		id, addr, ok := strings.Cut(spec, "=")
		if !ok || id == "" || addr == "" {
			return nil, fmt.Errorf("%w: %q (want id=address)", ErrInvalidPeer, spec)
		}
		peers = append(peers, PeerConfig{ID: strings.TrimSpace(id), Address: strings.TrimSpace(addr)})
	}
	return peers, nil
}
