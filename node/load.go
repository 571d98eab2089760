package node

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix namespaces the environment variables a node reads.
const EnvPrefix = "VIEWSYNC_"

// DefaultEnvFiles are read, when present, before the process environment.
var DefaultEnvFiles = []string{".env", ".env.dev"}

// LookupFunc resolves an environment variable.
type LookupFunc func(key string) (string, bool)

// Load builds a config from defaults, then the YAML file at path (if any),
// then env files and the process environment. Command-line flags are applied
// on top by the caller.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := DefaultConfig(DefaultReplicaID)
	if path != "" {
		if err := cfg.LoadFile(path); err != nil {
			return nil, err
		}
	}

	fileEnv, err := ReadEnvFiles(envFiles...)
	if err != nil {
		return nil, err
	}
	lookup := func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := fileEnv[key]
		return v, ok
	}
	if err := cfg.ApplyEnv(lookup); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFile overlays a YAML file onto the config.
func (c *Config) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return nil
}

// ReadEnvFiles merges the existing files among names. Later files win; the
// process environment is not modified.
func ReadEnvFiles(names ...string) (map[string]string, error) {
	merged := make(map[string]string)
	for _, name := range names {
		if _, err := os.Stat(name); err != nil {
			continue
		}
		vals, err := godotenv.Read(name)
		if err != nil {
			return nil, fmt.Errorf("read env file %s: %w", name, err)
		}
		for k, v := range vals {
			merged[k] = v
		}
	}
	return merged, nil
}

// ApplyEnv overlays VIEWSYNC_* variables (and LOG_LEVEL) onto the config.
func (c *Config) ApplyEnv(lookup LookupFunc) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok && v != "" {
			*dst = v
		}
	}
	dur := func(name string, dst *time.Duration) error {
		v, ok := lookup(EnvPrefix + name)
		if !ok || v == "" {
			return nil
		}
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s%s: %w", EnvPrefix, name, err)
		}
		*dst = d
		return nil
	}

	str("REPLICA_ID", &c.ReplicaID)
	str("ADDRESS", &c.Address)
	str("HTTP_PORT", &c.HTTPPort)
	str("GRPC_PORT", &c.GRPCPort)
	str("TRANSPORT", &c.Sync.Transport)
	str("STORAGE", &c.Storage.Backend)
	str("REDIS_PASSWORD", &c.Storage.Redis.Password)
	str("REDIS_KEY_PREFIX", &c.Storage.Redis.KeyPrefix)
	str("CATALOG", &c.Catalog.Backend)
	str("DATABASE_URL", &c.Catalog.Postgres.URL)
	str("LOG_FORMAT", &c.Log.Format)
	if v, ok := lookup("LOG_LEVEL"); ok && v != "" {
		c.Log.Level = v
	}
	str("LOG_LEVEL", &c.Log.Level)

	for name, dst := range map[string]*time.Duration{
		"SYNC_INTERVAL":    &c.Sync.Interval,
		"EXCHANGE_TIMEOUT": &c.Sync.ExchangeTimeout,
		"PROBE_INTERVAL":   &c.Sync.ProbeInterval,
		"FLUSH_INTERVAL":   &c.Catalog.FlushInterval,
	} {
		if err := dur(name, dst); err != nil {
			return err
		}
	}

	if v, ok := lookup(EnvPrefix + "UNHEALTHY_THRESHOLD"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%sUNHEALTHY_THRESHOLD: %w", EnvPrefix, err)
		}
		c.Sync.UnhealthyThreshold = n
	}
	if v, ok := lookup(EnvPrefix + "REDIS_ADDRS"); ok && v != "" {
		c.Storage.Redis.Addrs = splitList(v)
	}
	if v, ok := lookup(EnvPrefix + "PEERS"); ok && v != "" {
		peers, err := ParsePeers(splitList(v))
		if err != nil {
			return err
		}
		c.Peers = peers
	}
	return nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
