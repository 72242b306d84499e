package server

import (
	"fmt"
	"time"

	"github.com/ethpandaops/election-coordinator/pkg/consul"
	"github.com/ethpandaops/election-coordinator/pkg/election"
	"github.com/ethpandaops/election-coordinator/pkg/etcd"
	"github.com/ethpandaops/election-coordinator/pkg/hooks"
	"github.com/ethpandaops/election-coordinator/pkg/redis"
	"github.com/ethpandaops/election-coordinator/pkg/watcher"
)

// Supported lease backends.
const (
	BackendRedis  = "redis"
	BackendConsul = "consul"
	BackendEtcd   = "etcd"
)

type Config struct { // MetricsAddr is the address to listen on for metrics.
	MetricsAddr string `yaml:"metricsAddr" default:":9090"`
	// HealthCheckAddr is the address to listen on for healthcheck.
	HealthCheckAddr *string `yaml:"healthCheckAddr"`
	// PProfAddr is the address to listen on for pprof.
	PProfAddr *string `yaml:"pprofAddr"`
	// LoggingLevel is the logging level to use.
	LoggingLevel string `yaml:"logging" default:"info"`
	// Backend selects the lease store backend.
	Backend string `yaml:"backend" default:"redis"`
	// Redis is the redis backend configuration.
	Redis *redis.Config `yaml:"redis"`
	// Consul is the consul backend configuration.
	Consul *consul.Config `yaml:"consul"`
	// Etcd is the etcd backend configuration.
	Etcd *etcd.Config `yaml:"etcd"`
	// Election is the election state machine configuration.
	Election election.Config `yaml:"election"`
	// Hooks is the notification hook configuration.
	Hooks hooks.Config `yaml:"hooks"`
	// Watcher is the leader watcher configuration.
	Watcher watcher.Config `yaml:"watcher"`
	// StartupTimeout bounds the initial backend reachability check.
	StartupTimeout time.Duration `yaml:"startupTimeout" default:"30s"`
	// ShutdownTimeout is the timeout for shutting down the server.
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout" default:"10s"`
}

func (c *Config) Validate() error {
	switch c.Backend {
	case BackendRedis:
		if c.Redis == nil {
			return fmt.Errorf("redis configuration is required")
		}

		if err := c.Redis.Validate(); err != nil {
			return fmt.Errorf("invalid redis configuration: %w", err)
		}
	case BackendConsul:
		if c.Consul == nil {
			return fmt.Errorf("consul configuration is required")
		}

		if err := c.Consul.Validate(); err != nil {
			return fmt.Errorf("invalid consul configuration: %w", err)
		}
	case BackendEtcd:
		if c.Etcd == nil {
			return fmt.Errorf("etcd configuration is required")
		}

		if err := c.Etcd.Validate(); err != nil {
			return fmt.Errorf("invalid etcd configuration: %w", err)
		}
	default:
		return fmt.Errorf("unknown backend %q", c.Backend)
	}

	if err := c.Election.Validate(); err != nil {
		return fmt.Errorf("invalid election configuration: %w", err)
	}

	if err := c.Hooks.Validate(); err != nil {
		return fmt.Errorf("invalid hooks configuration: %w", err)
	}

	if c.Hooks.Tasks != nil && c.Redis == nil {
		return fmt.Errorf("tasks hook requires redis configuration")
	}

	if err := c.Watcher.Validate(); err != nil {
		return fmt.Errorf("invalid watcher configuration: %w", err)
	}

	return nil
}
