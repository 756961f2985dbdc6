// Package config loads the journeysim configuration file. Every knob has a
// documented default; a missing file simply means "all defaults".
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/bizobs/journeysim/pkg/domain"
	"gopkg.in/yaml.v3"
)

// Config is the full configuration surface of the orchestration core.
type Config struct {
	// Listen is the control-plane address.
	Listen string `yaml:"listen" json:"listen"`

	Ports   PortsConfig   `yaml:"ports" json:"ports"`
	Call    CallConfig    `yaml:"call" json:"call"`
	Breaker BreakerConfig `yaml:"breaker" json:"breaker"`
	Health  HealthConfig  `yaml:"health" json:"health"`
	Journey JourneyConfig `yaml:"journey" json:"journey"`
	Redis   RedisConfig   `yaml:"redis" json:"redis"`

	// WorkerExecutable overrides the binary spawned for workers.
	// Empty means "this binary, in worker mode".
	WorkerExecutable string `yaml:"workerExecutable" json:"workerExecutable"`
}

// PortsConfig bounds the allocator's range (inclusive).
type PortsConfig struct {
	Min int `yaml:"min" json:"min"`
	Max int `yaml:"max" json:"max"`
}

// CallConfig tunes the chained call client.
type CallConfig struct {
	Timeout domain.Duration `yaml:"timeout" json:"timeout"`
}

// BreakerConfig tunes the per-worker circuit breaker.
type BreakerConfig struct {
	Threshold int             `yaml:"threshold" json:"threshold"`
	Cooldown  domain.Duration `yaml:"cooldown" json:"cooldown"`
}

// HealthConfig bounds the readiness wait after spawning a worker.
type HealthConfig struct {
	Budget domain.Duration `yaml:"budget" json:"budget"`
}

// JourneyConfig tunes the journey runner.
type JourneyConfig struct {
	ThinkTime domain.Duration `yaml:"thinkTime" json:"thinkTime"`
}

// RedisConfig enables the optional run-record sink when Addr is set.
type RedisConfig struct {
	Addr     string          `yaml:"addr" json:"addr"`
	Password string          `yaml:"password" json:"password"`
	DB       int             `yaml:"db" json:"db"`
	TTL      domain.Duration `yaml:"ttl" json:"ttl"`
}

// Default returns the documented defaults: ports 8081-8120, 15s call
// timeout, breaker 5 failures / 10s cooldown, 5s health budget.
func Default() Config {
	return Config{
		Listen: ":8080",
		Ports:  PortsConfig{Min: 8081, Max: 8120},
		Call:   CallConfig{Timeout: domain.Duration(15 * time.Second)},
		Breaker: BreakerConfig{
			Threshold: 5,
			Cooldown:  domain.Duration(10 * time.Second),
		},
		Health:  HealthConfig{Budget: domain.Duration(5 * time.Second)},
		Journey: JourneyConfig{ThinkTime: domain.Duration(100 * time.Millisecond)},
	}
}

// Load reads a YAML config file on top of the defaults. A missing file is
// not an error; an unreadable or malformed one is.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.Ports.Min <= 0 || c.Ports.Max < c.Ports.Min {
		return fmt.Errorf("invalid port range %d-%d", c.Ports.Min, c.Ports.Max)
	}
	if c.Breaker.Threshold <= 0 {
		return fmt.Errorf("breaker threshold must be positive")
	}
	if c.Call.Timeout <= 0 {
		return fmt.Errorf("call timeout must be positive")
	}
	return nil
}
