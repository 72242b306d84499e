package consul

import (
	"fmt"
)

type Config struct {
	Address    string `yaml:"address"`
	Scheme     string `yaml:"scheme" default:"http"`
	Datacenter string `yaml:"datacenter"`
	Token      string `yaml:"token"`
	Prefix     string `yaml:"prefix"`
}

func (c *Config) Validate() error {
	if c.Address == "" {
		return fmt.Errorf("consul address is required")
	}

	if c.Prefix == "" {
		c.Prefix = "election-coordinator"
	}

	return nil
}
