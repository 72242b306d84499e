package hooks

import (
	"fmt"
	"net/url"
	"time"
)

type Config struct {
	// Exec runs a command on every transition.
	Exec *ExecConfig `yaml:"exec"`
	// Webhook POSTs a transition document on every transition.
	Webhook *WebhookConfig `yaml:"webhook"`
	// Tasks enqueues transitions as asynq tasks on the redis backend.
	Tasks *TasksConfig `yaml:"tasks"`
}

func (c *Config) Validate() error {
	if c.Exec != nil {
		if err := c.Exec.Validate(); err != nil {
			return fmt.Errorf("invalid exec hook configuration: %w", err)
		}
	}

	if c.Webhook != nil {
		if err := c.Webhook.Validate(); err != nil {
			return fmt.Errorf("invalid webhook hook configuration: %w", err)
		}
	}

	if c.Tasks != nil {
		if err := c.Tasks.Validate(); err != nil {
			return fmt.Errorf("invalid tasks hook configuration: %w", err)
		}
	}

	return nil
}

type ExecConfig struct {
	Command string        `yaml:"command"`
	Args    []string      `yaml:"args"`
	Timeout time.Duration `yaml:"timeout" default:"10s"`
}

func (c *ExecConfig) Validate() error {
	if c.Command == "" {
		return fmt.Errorf("command is required")
	}

	if c.Timeout <= 0 {
		c.Timeout = 10 * time.Second
	}

	return nil
}

type WebhookConfig struct {
	URL     string            `yaml:"url"`
	Timeout time.Duration     `yaml:"timeout" default:"5s"`
	Headers map[string]string `yaml:"headers"`
}

func (c *WebhookConfig) Validate() error {
	if c.URL == "" {
		return fmt.Errorf("url is required")
	}

	if _, err := url.ParseRequestURI(c.URL); err != nil {
		return fmt.Errorf("invalid url: %w", err)
	}

	if c.Timeout <= 0 {
		c.Timeout = 5 * time.Second
	}

	return nil
}

type TasksConfig struct {
	Queue    string `yaml:"queue" default:"default"`
	TaskType string `yaml:"taskType" default:"election:transition"`
}

func (c *TasksConfig) Validate() error {
	if c.Queue == "" {
		c.Queue = "default"
	}

	if c.TaskType == "" {
		c.TaskType = "election:transition"
	}

	return nil
}
