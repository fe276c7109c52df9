// Package config loads the node daemon's YAML configuration, grounded on
// storage-node/internal/config/config.go's Load/setDefaults/Validate
// shape and coordinator/internal/config/config.go's nested-section
// layout, generalized from two split configs (one per node role in
// that pair) into the single unified node daemon this repository ships.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ringdb/ringdb/internal/ringerr"
)

// ServerConfig configures the admin/health HTTP surface.
type ServerConfig struct {
	NodeID             string        `yaml:"node_id"`
	Host               string        `yaml:"host"`
	Port               int           `yaml:"port"`
	TransportPort      int           `yaml:"transport_port"`
	ShutdownTimeout    time.Duration `yaml:"shutdown_timeout"`
	RateLimitPerSecond float64       `yaml:"rate_limit_per_second"`
	RateLimitBurst     int           `yaml:"rate_limit_burst"`
}

// RingConfig configures partitioning and this node's initial token.
type RingConfig struct {
	Partitioner   string `yaml:"partitioner"` // "order_preserving" | "odkl_domain"
	InitialToken  string `yaml:"initial_token"`
	SeedEndpoints []string `yaml:"seed_endpoints"`
}

// ReplicationConfig configures per-table replication factor and rack
// awareness.
type ReplicationConfig struct {
	Strategy string         `yaml:"strategy"` // "simple" | "rack_aware"
	Factors  map[string]int `yaml:"factors"`
}

// ConsistencyConfig configures default consistency levels and
// coordinator-side timeouts.
type ConsistencyConfig struct {
	DefaultLevel  string        `yaml:"default_level"`
	ReadTimeout   time.Duration `yaml:"read_timeout"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
}

// HintsConfig configures hinted handoff.
type HintsConfig struct {
	MaxAge          time.Duration `yaml:"max_age"`
	ThrottleBetween time.Duration `yaml:"throttle_between"`
	RPCTimeout      time.Duration `yaml:"rpc_timeout"`
}

// GossipConfig mirrors storage-node's GossipConfig.
type GossipConfig struct {
	BindPort       int           `yaml:"bind_port"`
	SeedNodes      []string      `yaml:"seed_nodes"`
	GossipInterval time.Duration `yaml:"gossip_interval"`
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	ProbeInterval  time.Duration `yaml:"probe_interval"`
}

// MetricsConfig mirrors storage-node's MetricsConfig.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Port    int    `yaml:"port"`
	Path    string `yaml:"path"`
}

// LoggingConfig mirrors storage-node's LoggingConfig.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Config is the complete node daemon configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Ring        RingConfig        `yaml:"ring"`
	Replication ReplicationConfig `yaml:"replication"`
	Consistency ConsistencyConfig `yaml:"consistency"`
	Hints       HintsConfig       `yaml:"hints"`
	Gossip      GossipConfig      `yaml:"gossip"`
	Metrics     MetricsConfig     `yaml:"metrics"`
	Logging     LoggingConfig     `yaml:"logging"`
}

// Load reads and parses the YAML file at path, applies defaults, then
// overlays RINGDB_-prefixed environment variables before validating.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}

	setDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 30 * time.Second
	}
	if cfg.Server.RateLimitPerSecond == 0 {
		cfg.Server.RateLimitPerSecond = 50
	}
	if cfg.Server.RateLimitBurst == 0 {
		cfg.Server.RateLimitBurst = 100
	}
	if cfg.Server.TransportPort == 0 {
		cfg.Server.TransportPort = cfg.Server.Port + 1000
	}
	if cfg.Ring.Partitioner == "" {
		cfg.Ring.Partitioner = "order_preserving"
	}
	if cfg.Replication.Strategy == "" {
		cfg.Replication.Strategy = "simple"
	}
	if cfg.Consistency.DefaultLevel == "" {
		cfg.Consistency.DefaultLevel = "quorum"
	}
	if cfg.Consistency.ReadTimeout == 0 {
		cfg.Consistency.ReadTimeout = 2 * time.Second
	}
	if cfg.Consistency.WriteTimeout == 0 {
		cfg.Consistency.WriteTimeout = 2 * time.Second
	}
	if cfg.Hints.MaxAge == 0 {
		cfg.Hints.MaxAge = 3 * time.Hour
	}
	if cfg.Hints.RPCTimeout == 0 {
		cfg.Hints.RPCTimeout = time.Second
	}
	if cfg.Gossip.GossipInterval == 0 {
		cfg.Gossip.GossipInterval = 200 * time.Millisecond
	}
	if cfg.Gossip.ProbeInterval == 0 {
		cfg.Gossip.ProbeInterval = time.Second
	}
	if cfg.Gossip.ProbeTimeout == 0 {
		cfg.Gossip.ProbeTimeout = 500 * time.Millisecond
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
}

// applyEnvOverrides overlays RINGDB_SERVER_PORT, RINGDB_SERVER_NODE_ID,
// RINGDB_GOSSIP_BIND_PORT, and RINGDB_GOSSIP_SEED_NODES (comma-separated),
// the handful of settings operators most
// often need to override per-instance without editing the YAML file,
// mirroring the env-override layering in
// coordinator/internal/config/loader.go.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("RINGDB_SERVER_NODE_ID"); v != "" {
		cfg.Server.NodeID = v
	}
	if v := os.Getenv("RINGDB_SERVER_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = p
		}
	}
	if v := os.Getenv("RINGDB_GOSSIP_BIND_PORT"); v != "" {
		if p, err := strconv.Atoi(v); err == nil {
			cfg.Gossip.BindPort = p
		}
	}
	if v := os.Getenv("RINGDB_GOSSIP_SEED_NODES"); v != "" {
		cfg.Gossip.SeedNodes = strings.Split(v, ",")
	}
}

// Validate mirrors storage-node/internal/config/config.go's Validate()
// boundary-check shape, returning a ringerr.Configuration error on the
// first violation found.
func (c *Config) Validate() error {
	if c.Server.NodeID == "" {
		return ringerr.Configuration("server.node_id is required")
	}
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return ringerr.Configuration("server.port must be between 1 and 65535")
	}
	if len(c.Replication.Factors) == 0 {
		return ringerr.Configuration("replication.factors must name at least one table")
	}
	for table, rf := range c.Replication.Factors {
		if rf < 1 {
			return ringerr.Configuration("replication.factors[%s] must be >= 1", table)
		}
	}
	if c.Ring.Partitioner != "order_preserving" && c.Ring.Partitioner != "odkl_domain" {
		return ringerr.Configuration("ring.partitioner must be order_preserving or odkl_domain, got %q", c.Ring.Partitioner)
	}
	if c.Replication.Strategy != "simple" && c.Replication.Strategy != "rack_aware" {
		return ringerr.Configuration("replication.strategy must be simple or rack_aware, got %q", c.Replication.Strategy)
	}
	return nil
}
