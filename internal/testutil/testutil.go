// Package testutil provides test helper utilities for unit and integration tests.
package testutil

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/hashicorp/consul/api"
	"github.com/redis/go-redis/v9"
	"github.com/testcontainers/testcontainers-go"
	tcconsul "github.com/testcontainers/testcontainers-go/modules/consul"
	tcetcd "github.com/testcontainers/testcontainers-go/modules/etcd"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	clientv3 "go.etcd.io/etcd/client/v3"
)

// NewMiniredis creates an in-memory Redis server for unit tests.
// The server is automatically cleaned up when the test completes.
func NewMiniredis(t *testing.T) *miniredis.Miniredis {
	t.Helper()

	s := miniredis.RunT(t)

	return s
}

// NewMiniredisClient creates a Redis client connected to an in-memory miniredis server.
// Both the server and client are automatically cleaned up when the test completes.
func NewMiniredisClient(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	s := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: s.Addr()})

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client, s
}

// NewRedisContainer creates a real Redis container for integration tests.
// The container is automatically cleaned up when the test completes.
func NewRedisContainer(t *testing.T) *redis.Client {
	t.Helper()

	ctx := context.Background()

	c, err := tcredis.Run(ctx, "redis:7-alpine")
	if err != nil {
		t.Fatalf("failed to start redis container: %v", err)
	}

	testcontainers.CleanupContainer(t, c)

	connStr, err := c.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("failed to get redis connection string: %v", err)
	}

	opts, err := redis.ParseURL(connStr)
	if err != nil {
		t.Fatalf("failed to parse redis connection string: %v", err)
	}

	client := redis.NewClient(opts)

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}

// NewConsulContainer creates a real Consul container for integration tests.
// The container is automatically cleaned up when the test completes.
func NewConsulContainer(t *testing.T) *api.Client {
	t.Helper()

	ctx := context.Background()

	c, err := tcconsul.Run(ctx, "hashicorp/consul:1.15")
	if err != nil {
		t.Fatalf("failed to start consul container: %v", err)
	}

	testcontainers.CleanupContainer(t, c)

	endpoint, err := c.ApiEndpoint(ctx)
	if err != nil {
		t.Fatalf("failed to get consul endpoint: %v", err)
	}

	client, err := api.NewClient(&api.Config{Address: endpoint})
	if err != nil {
		t.Fatalf("failed to create consul client: %v", err)
	}

	return client
}

// NewEtcdContainer creates a real etcd container for integration tests.
// The container is automatically cleaned up when the test completes.
func NewEtcdContainer(t *testing.T) *clientv3.Client {
	t.Helper()

	ctx := context.Background()

	c, err := tcetcd.Run(ctx, "gcr.io/etcd-development/etcd:v3.5.17")
	if err != nil {
		t.Fatalf("failed to start etcd container: %v", err)
	}

	testcontainers.CleanupContainer(t, c)

	endpoint, err := c.ClientEndpoint(ctx)
	if err != nil {
		t.Fatalf("failed to get etcd endpoint: %v", err)
	}

	client, err := clientv3.New(clientv3.Config{Endpoints: []string{endpoint}})
	if err != nil {
		t.Fatalf("failed to create etcd client: %v", err)
	}

	t.Cleanup(func() {
		_ = client.Close()
	})

	return client
}
