package etcd

import (
	"fmt"

	clientv3 "go.etcd.io/etcd/client/v3"
)

// New creates a new etcd client from configuration
func New(config *Config) (*clientv3.Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid etcd config: %w", err)
	}

	client, err := clientv3.New(clientv3.Config{
		Endpoints:   config.Endpoints,
		DialTimeout: config.DialTimeout,
		Username:    config.Username,
		Password:    config.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create etcd client: %w", err)
	}

	return client, nil
}
