package config

import (
	"fmt"
	"time"

	"github.com/duongvq/homelink/internal/core/domain"
	"github.com/duongvq/homelink/internal/infra/journal"
	"github.com/duongvq/homelink/internal/infra/redisq"
)

// Duration unmarshals YAML scalars like "30s" or raw nanosecond
// integers.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err == nil {
		parsed, err := time.ParseDuration(raw)
		if err != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := unmarshal(&n); err != nil {
		return err
	}
	*d = Duration(n)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server     ServerConfig      `yaml:"server"`
	Interfaces []InterfaceConfig `yaml:"interfaces"`
	Breaker    BreakerConfig     `yaml:"breaker"`
	Recovery   RecoveryConfig    `yaml:"recovery"`
	ColdStart  ColdStartConfig   `yaml:"cold_start"`
	Redis      redisq.Config     `yaml:"redis"`
	Journal    journal.Config    `yaml:"journal"`
	Logging    LoggingConfig     `yaml:"logging"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// InterfaceConfig holds settings for one backend RPC interface.
type InterfaceConfig struct {
	ID           domain.InterfaceID `yaml:"id"`
	Host         string             `yaml:"host"`
	Port         int                `yaml:"port"`
	Target       string             `yaml:"target"`       // gRPC dial target, e.g. host:port or dns:///...
	Capabilities []string           `yaml:"capabilities"` // probe, reload, push_events
}

// BreakerConfig holds circuit breaker settings shared by all interfaces.
type BreakerConfig struct {
	FailureThreshold int      `yaml:"failure_threshold"`
	RecoveryTimeout  Duration `yaml:"recovery_timeout"`
	SuccessThreshold int      `yaml:"success_threshold"`
}

// RecoveryConfig holds reconnection settings shared by all interfaces.
type RecoveryConfig struct {
	Cooldown          Duration `yaml:"cooldown"`
	TCPTimeout        Duration `yaml:"tcp_timeout"`
	TCPInterval       Duration `yaml:"tcp_interval"`
	WarmupDelay       Duration `yaml:"warmup_delay"`
	BackoffBase       Duration `yaml:"backoff_base"`
	BackoffMax        Duration `yaml:"backoff_max"`
	MaxAttempts       int      `yaml:"max_attempts"`
	HeartbeatInterval Duration `yaml:"heartbeat_interval"`
}

// ColdStartConfig holds initial connection validation settings.
type ColdStartConfig struct {
	MaxAttempts int      `yaml:"max_attempts"`
	BackoffBase Duration `yaml:"backoff_base"`
	BackoffMax  Duration `yaml:"backoff_max"`
	TCPTimeout  Duration `yaml:"tcp_timeout"`
}

// CapabilityFlags converts the configured capability names into flags.
// Unknown names are ignored.
func (c InterfaceConfig) CapabilityFlags() domain.Capability {
	var caps domain.Capability
	for _, name := range c.Capabilities {
		switch name {
		case "probe":
			caps |= domain.CapProbe
		case "reload":
			caps |= domain.CapReload
		case "push_events":
			caps |= domain.CapPushEvents
		}
	}
	return caps
}
