package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Pappt04/Lilyoutube-server/logger"
	"github.com/Pappt04/Lilyoutube-server/node"
)

var startFlags struct {
	replicaID       string
	address         string
	httpPort        string
	grpcPort        string
	peers           []string
	transport       string
	storage         string
	redisAddrs      []string
	catalog         string
	databaseURL     string
	syncInterval    time.Duration
	exchangeTimeout time.Duration
	threshold       int
	manual          bool
	logLevel        string
	logFormat       string
}

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a replica node",
	Long: `Start one replica: its HTTP API, its sync endpoint and the anti-entropy loop.

Settings are read from defaults, then --config, then .env files and VIEWSYNC_*
environment variables, then the flags below.

Examples:
  # Start a replica
  viewsync start --replica-id=replica-1 --http-port=8081 --grpc-port=50051

  # Start a second replica that syncs with the first
  viewsync start --replica-id=replica-2 --http-port=8082 --grpc-port=50052 \
    --peers=replica-1=127.0.0.1:50051`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
	f := startCmd.Flags()

	// Server flags
	f.StringVarP(&startFlags.replicaID, "replica-id", "n", node.DefaultReplicaID, "Unique replica identifier")
	f.StringVarP(&startFlags.address, "address", "a", node.DefaultAddress, "Address to bind the servers to")
	f.StringVar(&startFlags.httpPort, "http-port", node.DefaultHTTPPort, "HTTP API port")
	f.StringVarP(&startFlags.grpcPort, "grpc-port", "p", node.DefaultGRPCPort, "gRPC sync port")

	// Sync flags
	f.StringSliceVarP(&startFlags.peers, "peers", "s", nil, "Peers as id=address (comma-separated)")
	f.StringVar(&startFlags.transport, "transport", node.TransportGRPC, "Peer transport: grpc or http")
	f.DurationVar(&startFlags.syncInterval, "sync-interval", 15*time.Second, "Time between anti-entropy cycles")
	f.DurationVar(&startFlags.exchangeTimeout, "exchange-timeout", 3*time.Second, "Deadline for one peer exchange")
	f.IntVar(&startFlags.threshold, "unhealthy-threshold", 3, "Consecutive failures before a peer is unhealthy")
	f.BoolVar(&startFlags.manual, "manual-sync", false, "Only sync when triggered")

	// Backends
	f.StringVar(&startFlags.storage, "storage", node.StorageMemory, "Replica store: memory or redis")
	f.StringSliceVar(&startFlags.redisAddrs, "redis-addrs", nil, "Redis addresses")
	f.StringVar(&startFlags.catalog, "catalog", node.CatalogStatic, "Video catalog: static or postgres")
	f.StringVar(&startFlags.databaseURL, "database-url", "", "Postgres URL for the postgres catalog")

	f.StringVar(&startFlags.logLevel, "log-level", "info", "Log level")
	f.StringVar(&startFlags.logFormat, "log-format", "json", "Log format: json or text")
}

// applyStartFlags overrides config values with the flags the user set.
func applyStartFlags(cmd *cobra.Command, config *node.Config) error {
	changed := cmd.Flags().Changed
	if changed("replica-id") {
		config.ReplicaID = startFlags.replicaID
	}
	if changed("address") {
		config.Address = startFlags.address
	}
	if changed("http-port") {
		config.HTTPPort = startFlags.httpPort
	}
	if changed("grpc-port") {
		config.GRPCPort = startFlags.grpcPort
	}
	if changed("peers") {
		peers, err := node.ParsePeers(startFlags.peers)
		if err != nil {
			return err
		}
		config.Peers = peers
	}
	if changed("transport") {
		config.Sync.Transport = startFlags.transport
	}
	if changed("sync-interval") {
		config.Sync.Interval = startFlags.syncInterval
	}
	if changed("exchange-timeout") {
		config.Sync.ExchangeTimeout = startFlags.exchangeTimeout
	}
	if changed("unhealthy-threshold") {
		config.Sync.UnhealthyThreshold = startFlags.threshold
	}
	if changed("manual-sync") {
		config.Sync.Manual = startFlags.manual
	}
	if changed("storage") {
		config.Storage.Backend = startFlags.storage
	}
	if changed("redis-addrs") {
		config.Storage.Redis.Addrs = startFlags.redisAddrs
	}
	if changed("catalog") {
		config.Catalog.Backend = startFlags.catalog
	}
	if changed("database-url") {
		config.Catalog.Postgres.URL = startFlags.databaseURL
	}
	if changed("log-level") {
		config.Log.Level = startFlags.logLevel
	}
	if changed("log-format") {
		config.Log.Format = startFlags.logFormat
	}
	return nil
}

func runStart(cmd *cobra.Command, args []string) error {
	config, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyStartFlags(cmd, config); err != nil {
		return err
	}

	// Non-interactive mode writes to stdout
	lg := logger.Init(logger.Options{Level: config.Log.Level, Format: config.Log.Format, Stdout: true})
	log := lg.ForNode(config.ReplicaID)

	n, err := node.New(config, node.Options{Logger: log, RuntimeMetrics: true})
	if err != nil {
		return fmt.Errorf("failed to create node: %w", err)
	}
	if err := n.Start(); err != nil {
		_ = n.Stop()
		return fmt.Errorf("failed to start node: %w", err)
	}

	// Wait for interrupt signal for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	log.Info("Shutting down...")
	if err := n.Stop(); err != nil {
		log.WithError(err).Error("Error during shutdown")
	}
	return nil
}
