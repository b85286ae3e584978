package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookConfig struct {
	SigningSecret string        `koanf:"signing_secret" mapstructure:"signing_secret"`
	Tolerance     time.Duration `koanf:"tolerance" mapstructure:"tolerance"`
}

type QueueConfig struct {
	Workers        int           `koanf:"workers" mapstructure:"workers"`
	LockDuration   time.Duration `koanf:"lock_duration" mapstructure:"lock_duration"`
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type NotifyConfig struct {
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
}

type SweepConfig struct {
	BatchSize int `koanf:"batch_size" mapstructure:"batch_size"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig `koanf:"webhook" mapstructure:"webhook"`
	Queue       QueueConfig   `koanf:"queue" mapstructure:"queue"`
	Notify      NotifyConfig  `koanf:"notify" mapstructure:"notify"`
	Sweep       SweepConfig   `koanf:"sweep" mapstructure:"sweep"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "billing-sync",
		Webhook: WebhookConfig{
			Tolerance: 5 * time.Minute,
		},
		Queue: QueueConfig{
			Workers:        5,
			LockDuration:   60 * time.Second,
			MaxAttempts:    3,
			InitialBackoff: time.Second,
			MaxBackoff:     30 * time.Second,
		},
		Notify: NotifyConfig{
			MaxAttempts:    5,
			InitialBackoff: 2 * time.Second,
		},
		Sweep: SweepConfig{
			BatchSize: 50,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Queue.Workers < 1 {
		return fmt.Errorf("core: queue.workers must be >= 1")
	}
	if c.Queue.MaxAttempts < 1 {
		return fmt.Errorf("core: queue.max_attempts must be >= 1")
	}
	if c.Queue.LockDuration < 0 || c.Queue.InitialBackoff < 0 || c.Queue.MaxBackoff < 0 {
		return fmt.Errorf("core: queue durations must not be negative")
	}
	if c.Webhook.Tolerance < 0 {
		return fmt.Errorf("core: webhook.tolerance must not be negative")
	}
	if c.Notify.MaxAttempts < 1 {
		return fmt.Errorf("core: notify.max_attempts must be >= 1")
	}
	if c.Sweep.BatchSize < 1 {
		return fmt.Errorf("core: sweep.batch_size must be >= 1")
	}
	return nil
}
