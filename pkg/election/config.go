package election

import (
	"fmt"
	"time"
)

// Config holds configuration for leader election.
type Config struct {
	// Key is the election key all candidates compete for.
	Key string `yaml:"key"`

	// NodeID is the unique identifier for this candidate.
	// If empty, a random ID will be generated.
	NodeID string `yaml:"nodeId"`

	// TTL is the time-to-live for the leadership lease.
	TTL time.Duration `yaml:"ttl" default:"10s"`

	// RenewalInterval is how often the leader renews the lease. Must be
	// shorter than TTL; half is the usual choice.
	RenewalInterval time.Duration `yaml:"renewalInterval" default:"5s"`

	// AcquireInterval is how often a non-leader attempts acquisition.
	AcquireInterval time.Duration `yaml:"acquireInterval" default:"2s"`

	// MaxRenewalFailures is how many consecutive transient renewal failures
	// are tolerated before demoting to follower.
	MaxRenewalFailures int `yaml:"maxRenewalFailures" default:"2"`

	// OperationTimeout bounds every individual lease store call.
	OperationTimeout time.Duration `yaml:"operationTimeout" default:"2s"`

	// MaxRetries caps backoff retries of an unavailable backend within one
	// timer cycle. The whole retry budget, (MaxRetries+1)*OperationTimeout,
	// must stay below TTL so a hanging backend cannot stall demotion past
	// lease expiry.
	MaxRetries uint64 `yaml:"maxRetries" default:"1"`
}

// DefaultConfig returns a default configuration.
func DefaultConfig() *Config {
	return &Config{
		TTL:                10 * time.Second,
		RenewalInterval:    5 * time.Second,
		AcquireInterval:    2 * time.Second,
		MaxRenewalFailures: 2,
		OperationTimeout:   2 * time.Second,
		MaxRetries:         1,
	}
}

func (c *Config) Validate() error {
	if c.Key == "" {
		return fmt.Errorf("election key is required")
	}

	if c.TTL <= 0 {
		return fmt.Errorf("ttl must be positive")
	}

	if c.RenewalInterval <= 0 || c.RenewalInterval >= c.TTL {
		return fmt.Errorf("renewalInterval must be positive and shorter than ttl")
	}

	if c.AcquireInterval <= 0 {
		return fmt.Errorf("acquireInterval must be positive")
	}

	if c.MaxRenewalFailures < 1 {
		return fmt.Errorf("maxRenewalFailures must be at least 1")
	}

	if c.OperationTimeout <= 0 {
		return fmt.Errorf("operationTimeout must be positive")
	}

	if budget := c.OperationTimeout * time.Duration(c.MaxRetries+1); budget >= c.TTL {
		return fmt.Errorf("retry budget %s ((maxRetries+1)*operationTimeout) must be shorter than ttl %s", budget, c.TTL)
	}

	return nil
}
