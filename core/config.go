package core

import (
	"fmt"
	"strings"
	"time"
)

type WebhookConfig struct {
	TimestampToleranceSeconds int `koanf:"timestamp_tolerance_seconds" mapstructure:"timestamp_tolerance_seconds"`
	DedupTTLSeconds           int `koanf:"dedup_ttl_seconds" mapstructure:"dedup_ttl_seconds"`
}

type HealthConfig struct {
	FailureThreshold    int `koanf:"failure_threshold" mapstructure:"failure_threshold"`
	ProbeTimeoutSeconds int `koanf:"probe_timeout_seconds" mapstructure:"probe_timeout_seconds"`
}

type EventsConfig struct {
	AsyncBufferSize int `koanf:"async_buffer_size" mapstructure:"async_buffer_size"`
}

type Config struct {
	ServiceName string        `koanf:"service_name" mapstructure:"service_name"`
	Webhook     WebhookConfig `koanf:"webhook" mapstructure:"webhook"`
	Health      HealthConfig  `koanf:"health" mapstructure:"health"`
	Events      EventsConfig  `koanf:"events" mapstructure:"events"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "connectors",
		Webhook: WebhookConfig{
			TimestampToleranceSeconds: 300,
			DedupTTLSeconds:           3600,
		},
		Health: HealthConfig{
			FailureThreshold:    3,
			ProbeTimeoutSeconds: 5,
		},
		Events: EventsConfig{
			AsyncBufferSize: 256,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Webhook.TimestampToleranceSeconds < 0 {
		return fmt.Errorf("core: webhook.timestamp_tolerance_seconds must not be negative")
	}
	if c.Webhook.DedupTTLSeconds < 0 {
		return fmt.Errorf("core: webhook.dedup_ttl_seconds must not be negative")
	}
	if c.Health.FailureThreshold < 1 {
		return fmt.Errorf("core: health.failure_threshold must be at least 1")
	}
	return nil
}

func (c Config) TimestampTolerance() time.Duration {
	return time.Duration(c.Webhook.TimestampToleranceSeconds) * time.Second
}

func (c Config) DedupTTL() time.Duration {
	return time.Duration(c.Webhook.DedupTTLSeconds) * time.Second
}

func (c Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Health.ProbeTimeoutSeconds) * time.Second
}
