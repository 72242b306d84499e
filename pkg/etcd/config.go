package etcd

import (
	"fmt"
	"time"
)

type Config struct {
	Endpoints   []string      `yaml:"endpoints"`
	DialTimeout time.Duration `yaml:"dialTimeout" default:"5s"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Prefix      string        `yaml:"prefix"`
}

func (c *Config) Validate() error {
	if len(c.Endpoints) == 0 {
		return fmt.Errorf("at least one etcd endpoint is required")
	}

	if c.Prefix == "" {
		c.Prefix = "election-coordinator"
	}

	return nil
}
