package node

import "errors"

var (
	ErrReplicaIDRequired      = errors.New("replica ID is required")
	ErrAddressRequired        = errors.New("address is required")
	ErrPortRequired           = errors.New("HTTP and gRPC ports are required")
	ErrInvalidSyncInterval    = errors.New("sync interval must be greater than 0")
	ErrInvalidExchangeTimeout = errors.New("exchange timeout must be greater than 0")
	ErrInvalidThreshold       = errors.New("unhealthy threshold must be greater than 0")
	ErrUnknownTransport       = errors.New("unknown sync transport")
	ErrUnknownStorage         = errors.New("unknown storage backend")
	ErrUnknownCatalog         = errors.New("unknown catalog backend")
	ErrRedisAddrRequired      = errors.New("redis storage needs at least one address")
	ErrDatabaseURLRequired    = errors.New("postgres catalog needs a database URL")
	ErrInvalidPeer            = errors.New("invalid peer")
	ErrNodeNotRunning         = errors.New("node is not running")
	ErrNodeStopped            = errors.New("node has been stopped")
)
