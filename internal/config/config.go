// Package config loads PodCache's environment-variable configuration.
// Every field has a workable default; an out-of-range value is logged
// as a warning and replaced with that default rather than treated as a
// fatal startup error, since a misconfigured cache degrades gracefully
// while a crash-looping one doesn't.
package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"go.uber.org/zap"
)

const envPrefix = "PODCACHE"

const (
	defaultSizeMiB    = 100
	defaultPartitions = 1
	defaultPort       = 6379
	defaultFSRoot     = "./"
	defaultLogLevel   = "info"

	minSizeMiB    = 1
	maxSizeMiB    = 4096
	minPartitions = 1
	maxPartitions = 64
	minPort       = 1024
	maxPort       = 65535

	bytesPerMiB = 1 << 20
)

// Config is PodCache's complete runtime configuration, one field per
// environment variable under the PODCACHE_ prefix.
type Config struct {
	SizeMiB     int    `envconfig:"SIZE" default:"100"`
	Partitions  int    `envconfig:"PARTITIONS" default:"1"`
	ServerPort  int    `envconfig:"SERVER_PORT" default:"6379"`
	FSRoot      string `envconfig:"FSROOT" default:"./"`
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9121"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// SizeBytes is derived from SizeMiB, not read from the environment
	// directly: PODCACHE_SIZE is specified in MiB.
	SizeBytes int64 `envconfig:"-" ignored:"true"`
}

// Load reads Config from the environment and clamps out-of-range values
// to their defaults, logging each correction as a warning. logger may be
// nil, in which case corrections are made silently (used by tests).
func Load(logger *zap.SugaredLogger) (*Config, error) {
	var cfg Config
	if err := envconfig.Process(envPrefix, &cfg); err != nil {
		return nil, fmt.Errorf("config: process environment: %w", err)
	}

	warn := func(field string, got, want interface{}) {
		if logger != nil {
			logger.Warnw("invalid configuration value, falling back to default",
				"field", field, "value", got, "default", want)
		}
	}

	if cfg.SizeMiB < minSizeMiB || cfg.SizeMiB > maxSizeMiB {
		warn("PODCACHE_SIZE", cfg.SizeMiB, defaultSizeMiB)
		cfg.SizeMiB = defaultSizeMiB
	}
	if cfg.Partitions < minPartitions || cfg.Partitions > maxPartitions {
		warn("PODCACHE_PARTITIONS", cfg.Partitions, defaultPartitions)
		cfg.Partitions = defaultPartitions
	}
	if cfg.ServerPort < minPort || cfg.ServerPort > maxPort {
		warn("PODCACHE_SERVER_PORT", cfg.ServerPort, defaultPort)
		cfg.ServerPort = defaultPort
	}
	if cfg.FSRoot == "" {
		warn("PODCACHE_FSROOT", cfg.FSRoot, defaultFSRoot)
		cfg.FSRoot = defaultFSRoot
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = defaultLogLevel
	}

	cfg.SizeBytes = int64(cfg.SizeMiB) * bytesPerMiB

	return &cfg, nil
}

// PartitionCapacityBytes is the per-partition memory budget: the total
// size split evenly across all partitions.
func (c *Config) PartitionCapacityBytes() int64 {
	return c.SizeBytes / int64(c.Partitions)
}

// MetricsEnabled reports whether the Prometheus exporter should start.
// An empty PODCACHE_METRICS_ADDR disables it.
func (c *Config) MetricsEnabled() bool {
	return c.MetricsAddr != ""
}
