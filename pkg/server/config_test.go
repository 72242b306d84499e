package server_test

import (
	"testing"
	"time"

	"github.com/creasty/defaults"
	"github.com/ethpandaops/election-coordinator/pkg/election"
	"github.com/ethpandaops/election-coordinator/pkg/etcd"
	"github.com/ethpandaops/election-coordinator/pkg/hooks"
	"github.com/ethpandaops/election-coordinator/pkg/redis"
	"github.com/ethpandaops/election-coordinator/pkg/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func validConfig(t *testing.T) *server.Config {
	t.Helper()

	config := &server.Config{}
	require.NoError(t, defaults.Set(config))

	config.Redis = &redis.Config{Address: "localhost:6379"}
	config.Election = election.Config{
		Key:                "jobs",
		TTL:                10 * time.Second,
		RenewalInterval:    5 * time.Second,
		AcquireInterval:    2 * time.Second,
		MaxRenewalFailures: 2,
		OperationTimeout:   3 * time.Second,
	}

	return config
}

func TestConfig_Validate(t *testing.T) {
	t.Run("valid redis config", func(t *testing.T) {
		require.NoError(t, validConfig(t).Validate())
	})

	t.Run("redis backend requires redis config", func(t *testing.T) {
		config := validConfig(t)
		config.Redis = nil

		require.Error(t, config.Validate())
	})

	t.Run("unknown backend", func(t *testing.T) {
		config := validConfig(t)
		config.Backend = "zookeeper"

		require.Error(t, config.Validate())
	})

	t.Run("etcd backend requires endpoints", func(t *testing.T) {
		config := validConfig(t)
		config.Backend = server.BackendEtcd
		config.Etcd = &etcd.Config{}

		require.Error(t, config.Validate())

		config.Etcd.Endpoints = []string{"localhost:2379"}
		require.NoError(t, config.Validate())
	})

	t.Run("consul backend requires consul config", func(t *testing.T) {
		config := validConfig(t)
		config.Backend = server.BackendConsul

		require.Error(t, config.Validate())
	})

	t.Run("missing election key", func(t *testing.T) {
		config := validConfig(t)
		config.Election.Key = ""

		require.Error(t, config.Validate())
	})

	t.Run("tasks hook requires redis", func(t *testing.T) {
		config := validConfig(t)
		config.Backend = server.BackendEtcd
		config.Etcd = &etcd.Config{Endpoints: []string{"localhost:2379"}}
		config.Redis = nil
		config.Hooks.Tasks = &hooks.TasksConfig{}

		require.Error(t, config.Validate())
	})

	t.Run("exec hook requires command", func(t *testing.T) {
		config := validConfig(t)
		config.Hooks.Exec = &hooks.ExecConfig{}

		require.Error(t, config.Validate())
	})
}

func TestConfig_UnmarshalYAML(t *testing.T) {
	raw := `
metricsAddr: ":9191"
backend: redis
redis:
  address: localhost:6379
  prefix: myapp
election:
  key: jobs
  nodeId: node-1
hooks:
  webhook:
    url: http://localhost:8080/hook
`

	config := &server.Config{}
	require.NoError(t, defaults.Set(config))
	require.NoError(t, yaml.Unmarshal([]byte(raw), config))
	require.NoError(t, config.Validate())

	assert.Equal(t, ":9191", config.MetricsAddr)
	assert.Equal(t, server.BackendRedis, config.Backend)
	assert.Equal(t, "myapp", config.Redis.Prefix)
	assert.Equal(t, "jobs", config.Election.Key)
	assert.Equal(t, "node-1", config.Election.NodeID)
	assert.Equal(t, "http://localhost:8080/hook", config.Hooks.Webhook.URL)
	assert.Equal(t, 10*time.Second, config.Election.TTL, "defaults survive unmarshal")
	assert.Equal(t, 15*time.Second, config.Watcher.Interval, "defaults survive unmarshal")
}
