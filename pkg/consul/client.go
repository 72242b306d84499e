package consul

import (
	"fmt"

	"github.com/hashicorp/consul/api"
)

// New creates a new Consul client from configuration
func New(config *Config) (*api.Client, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid consul config: %w", err)
	}

	client, err := api.NewClient(&api.Config{
		Address:    config.Address,
		Scheme:     config.Scheme,
		Datacenter: config.Datacenter,
		Token:      config.Token,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create consul client: %w", err)
	}

	return client, nil
}
