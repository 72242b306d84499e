package watcher

import (
	"fmt"
	"time"
)

type Config struct {
	// Enabled turns the periodic leader observer on.
	Enabled bool `yaml:"enabled" default:"true"`
	// Interval is how often the election key is observed.
	Interval time.Duration `yaml:"interval" default:"15s"`
}

func (c *Config) Validate() error {
	if c.Enabled && c.Interval <= 0 {
		return fmt.Errorf("interval must be positive")
	}

	return nil
}
