package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Load reads configuration from a YAML file.
func Load(path string) (*AppConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg AppConfig
	// Expand environment variables in the YAML content
	expandedData := os.ExpandEnv(string(data))
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}

	if cfg.Breaker.FailureThreshold == 0 {
		cfg.Breaker.FailureThreshold = 5
	}
	if cfg.Breaker.RecoveryTimeout == 0 {
		cfg.Breaker.RecoveryTimeout = Duration(30 * time.Second)
	}
	if cfg.Breaker.SuccessThreshold == 0 {
		cfg.Breaker.SuccessThreshold = 2
	}

	if cfg.Recovery.Cooldown == 0 {
		cfg.Recovery.Cooldown = Duration(30 * time.Second)
	}
	if cfg.Recovery.TCPTimeout == 0 {
		cfg.Recovery.TCPTimeout = Duration(60 * time.Second)
	}
	if cfg.Recovery.TCPInterval == 0 {
		cfg.Recovery.TCPInterval = Duration(5 * time.Second)
	}
	if cfg.Recovery.WarmupDelay == 0 {
		cfg.Recovery.WarmupDelay = Duration(15 * time.Second)
	}
	if cfg.Recovery.BackoffBase == 0 {
		cfg.Recovery.BackoffBase = Duration(5 * time.Second)
	}
	if cfg.Recovery.BackoffMax == 0 {
		cfg.Recovery.BackoffMax = Duration(120 * time.Second)
	}
	if cfg.Recovery.MaxAttempts == 0 {
		cfg.Recovery.MaxAttempts = 8
	}
	if cfg.Recovery.HeartbeatInterval == 0 {
		cfg.Recovery.HeartbeatInterval = Duration(60 * time.Second)
	}

	if cfg.ColdStart.MaxAttempts == 0 {
		cfg.ColdStart.MaxAttempts = 5
	}
	if cfg.ColdStart.BackoffBase == 0 {
		cfg.ColdStart.BackoffBase = Duration(3 * time.Second)
	}
	if cfg.ColdStart.BackoffMax == 0 {
		cfg.ColdStart.BackoffMax = Duration(30 * time.Second)
	}
	if cfg.ColdStart.TCPTimeout == 0 {
		cfg.ColdStart.TCPTimeout = Duration(10 * time.Second)
	}

	for i := range cfg.Interfaces {
		iface := &cfg.Interfaces[i]
		if iface.Target == "" && iface.Host != "" {
			iface.Target = fmt.Sprintf("%s:%d", iface.Host, iface.Port)
		}
		if len(iface.Capabilities) == 0 {
			iface.Capabilities = []string{"probe"}
		}
	}
}

func validate(cfg *AppConfig) error {
	if len(cfg.Interfaces) == 0 {
		return fmt.Errorf("config: at least one interface is required")
	}

	seen := make(map[string]bool, len(cfg.Interfaces))
	for _, iface := range cfg.Interfaces {
		if iface.ID == "" {
			return fmt.Errorf("config: interface with empty id")
		}
		if seen[string(iface.ID)] {
			return fmt.Errorf("config: duplicate interface id %q", iface.ID)
		}
		seen[string(iface.ID)] = true
		if iface.Host == "" {
			return fmt.Errorf("config: interface %q has no host", iface.ID)
		}
		if iface.Port <= 0 || iface.Port > 65535 {
			return fmt.Errorf("config: interface %q has invalid port %d", iface.ID, iface.Port)
		}
	}
	return nil
}
