package core

import (
	"context"
	"testing"
	"time"
)

func TestDefaultConfigValidates(t *testing.T) {
	if err := DefaultConfig().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestConfigValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"blank service name", func(c *Config) { c.ServiceName = "   " }},
		{"zero workers", func(c *Config) { c.Queue.Workers = 0 }},
		{"zero max attempts", func(c *Config) { c.Queue.MaxAttempts = 0 }},
		{"negative tolerance", func(c *Config) { c.Webhook.Tolerance = -time.Second }},
		{"zero notify attempts", func(c *Config) { c.Notify.MaxAttempts = 0 }},
		{"zero sweep batch", func(c *Config) { c.Sweep.BatchSize = 0 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestCfgxConfigProviderLoad(t *testing.T) {
	provider := NewCfgxConfigProvider(NewStaticRawConfigLoader(map[string]any{
		"webhook": map[string]any{
			"signing_secret": "whsec_test",
		},
		"queue": map[string]any{
			"workers": 2,
		},
	}))

	cfg, err := provider.Load(context.Background(), DefaultConfig())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Webhook.SigningSecret != "whsec_test" {
		t.Fatalf("expected signing secret from loader, got %q", cfg.Webhook.SigningSecret)
	}
	if cfg.Queue.Workers != 2 {
		t.Fatalf("expected workers override, got %d", cfg.Queue.Workers)
	}
	if cfg.Queue.MaxAttempts != 3 {
		t.Fatalf("expected default max attempts, got %d", cfg.Queue.MaxAttempts)
	}
}

func TestGoOptionsResolverLayering(t *testing.T) {
	defaults := DefaultConfig()

	loaded := Config{}
	loaded.Queue.Workers = 8
	loaded.Webhook.SigningSecret = "whsec_config"

	runtime := Config{}
	runtime.Webhook.SigningSecret = "whsec_runtime"

	resolved, err := GoOptionsResolver{}.Resolve(defaults, loaded, runtime)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Webhook.SigningSecret != "whsec_runtime" {
		t.Fatalf("runtime layer must win, got %q", resolved.Webhook.SigningSecret)
	}
	if resolved.Queue.Workers != 8 {
		t.Fatalf("config layer must win over defaults, got %d", resolved.Queue.Workers)
	}
	if resolved.ServiceName != defaults.ServiceName {
		t.Fatalf("defaults must fill gaps, got %q", resolved.ServiceName)
	}
}
