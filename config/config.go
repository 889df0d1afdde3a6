// Package config assembles the settings of every governor component into
// one document.
//
// Configuration is layered. Defaults come from each package's
// DefaultConfig, an optional YAML file overrides them, and AUDIOGOV_*
// environment variables (optionally loaded from a .env file) override the
// file:
//
//	cfg, err := config.Load("governor.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Durations are written as Go duration strings ("10ms", "2s").
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/opd-ai/audiogovernor/bufpool"
	"github.com/opd-ai/audiogovernor/cpuload"
	"github.com/opd-ai/audiogovernor/degradation"
	"github.com/opd-ai/audiogovernor/glitch"
	"github.com/opd-ai/audiogovernor/graph"
	"github.com/opd-ai/audiogovernor/lifecycle"
	"github.com/opd-ai/audiogovernor/limits"
	"github.com/opd-ai/audiogovernor/logging"
	"github.com/opd-ai/audiogovernor/warning"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig indicates a configuration that failed validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// GovernorConfig holds orchestrator settings.
type GovernorConfig struct {
	IterationInterval time.Duration `yaml:"iteration_interval"` // Run loop period (default: 5ms)
	RingCapacity      int           `yaml:"ring_capacity"`      // Timing samples buffered between iterations (default: 1024)
	ApplyTimeout      time.Duration `yaml:"apply_timeout"`      // Upper bound on one graph apply (default: 50ms)
	InitialVoices     uint          `yaml:"initial_voices"`     // Active voice count before SetActiveVoices is called
}

// DefaultGovernorConfig returns the default orchestrator settings.
func DefaultGovernorConfig() GovernorConfig {
	return GovernorConfig{
		IterationInterval: 5 * time.Millisecond,
		RingCapacity:      1024,
		ApplyTimeout:      50 * time.Millisecond,
	}
}

// Validate checks the orchestrator settings.
func (c GovernorConfig) Validate() error {
	if err := limits.ValidateDuration("iteration interval", c.IterationInterval, time.Second); err != nil {
		return err
	}
	if err := limits.ValidateCapacity("ring capacity", c.RingCapacity, 1<<20); err != nil {
		return err
	}
	return limits.ValidateDuration("apply timeout", c.ApplyTimeout, time.Minute)
}

// Config is the complete governor configuration.
type Config struct {
	Governor    GovernorConfig       `yaml:"governor"`
	Pool        bufpool.Config       `yaml:"pool"`
	Warnings    warning.Config       `yaml:"warnings"`
	CPU         cpuload.Config       `yaml:"cpu"`
	Glitch      glitch.Config        `yaml:"glitch"`
	Degradation degradation.Config   `yaml:"degradation"`
	Batcher     graph.BatcherConfig  `yaml:"batcher"`
	Compiler    graph.CompilerConfig `yaml:"compiler"`
	Lifecycle   lifecycle.Config     `yaml:"lifecycle"`
	Logging     logging.Config       `yaml:"logging"`
}

// Default returns a configuration built from every package default.
func Default() *Config {
	return &Config{
		Governor:    DefaultGovernorConfig(),
		Pool:        bufpool.DefaultConfig(),
		Warnings:    warning.DefaultConfig(),
		CPU:         cpuload.DefaultConfig(),
		Glitch:      glitch.DefaultConfig(),
		Degradation: degradation.DefaultConfig(),
		Batcher:     graph.DefaultBatcherConfig(),
		Compiler:    graph.DefaultCompilerConfig(),
		Lifecycle:   lifecycle.DefaultConfig(),
		Logging:     logging.DefaultConfig(),
	}
}

// Validate checks every section.
func (c *Config) Validate() error {
	sections := []struct {
		name     string
		validate func() error
	}{
		{"governor", c.Governor.Validate},
		{"pool", c.Pool.Validate},
		{"warnings", c.Warnings.Validate},
		{"cpu", c.CPU.Validate},
		{"glitch", c.Glitch.Validate},
		{"degradation", c.Degradation.Validate},
		{"batcher", c.Batcher.Validate},
		{"compiler", c.Compiler.Validate},
		{"lifecycle", c.Lifecycle.Validate},
		{"logging", c.Logging.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrInvalidConfig, s.name, err)
		}
	}
	return nil
}

// Parse decodes YAML over the defaults, so omitted keys keep their
// default values.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: decode yaml: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// LoadFile reads and parses a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("config %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "config.LoadFile",
		"path":     path,
	}).Info("Loaded configuration file")
	return cfg, nil
}

// Load builds the effective configuration: defaults, then path when it is
// not empty, then the environment. The result is validated.
func Load(path string, envFiles ...string) (*Config, error) {
	cfg := Default()
	if path != "" {
		loaded, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}
	if err := ApplyEnv(cfg, envFiles...); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}
