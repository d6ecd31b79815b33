package recovery

import "time"

// Config controls staged recovery for one interface.
type Config struct {
	// Cooldown is the fixed wait before the first recovery cycle.
	Cooldown time.Duration `yaml:"cooldown"`

	// TCPTimeout bounds the whole TCP_CHECKING stage.
	TCPTimeout time.Duration `yaml:"tcp_timeout"`

	// TCPInterval is the pause between reachability polls; it also
	// serves as the per-probe dial timeout.
	TCPInterval time.Duration `yaml:"tcp_interval"`

	// WarmupDelay is the fixed wait between the first capability probe
	// and the stability check.
	WarmupDelay time.Duration `yaml:"warmup_delay"`

	// BackoffBase and BackoffMax shape the inter-cycle delay:
	// min(base * 2^(retries-1), max).
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`

	// MaxAttempts is the number of full failed cycles before the
	// interface is pushed to FAILED.
	MaxAttempts int `yaml:"max_attempts"`

	// HeartbeatInterval paces the slow retry loop after exhaustion.
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Cooldown:          30 * time.Second,
		TCPTimeout:        60 * time.Second,
		TCPInterval:       5 * time.Second,
		WarmupDelay:       15 * time.Second,
		BackoffBase:       5 * time.Second,
		BackoffMax:        120 * time.Second,
		MaxAttempts:       8,
		HeartbeatInterval: 60 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Cooldown <= 0 {
		c.Cooldown = d.Cooldown
	}
	if c.TCPTimeout <= 0 {
		c.TCPTimeout = d.TCPTimeout
	}
	if c.TCPInterval <= 0 {
		c.TCPInterval = d.TCPInterval
	}
	if c.WarmupDelay <= 0 {
		c.WarmupDelay = d.WarmupDelay
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.HeartbeatInterval <= 0 {
		c.HeartbeatInterval = d.HeartbeatInterval
	}
	return c
}

// ColdStartConfig controls defensive validation of the first-ever
// connection, when the backend's auth subsystem may still be booting.
type ColdStartConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BackoffBase time.Duration `yaml:"backoff_base"`
	BackoffMax  time.Duration `yaml:"backoff_max"`
	TCPTimeout  time.Duration `yaml:"tcp_timeout"`
}

// DefaultColdStartConfig returns the documented defaults.
func DefaultColdStartConfig() ColdStartConfig {
	return ColdStartConfig{
		MaxAttempts: 5,
		BackoffBase: 3 * time.Second,
		BackoffMax:  30 * time.Second,
		TCPTimeout:  10 * time.Second,
	}
}

func (c ColdStartConfig) withDefaults() ColdStartConfig {
	d := DefaultColdStartConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = d.BackoffMax
	}
	if c.TCPTimeout <= 0 {
		c.TCPTimeout = d.TCPTimeout
	}
	return c
}
