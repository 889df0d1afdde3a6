package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// EnvPrefix prefixes every environment override.
const EnvPrefix = "AUDIOGOV_"

type envOverride struct {
	name  string
	apply func(cfg *Config, value string) error
}

func durationVar(target func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		*target(cfg) = d
		return nil
	}
}

func intVar(target func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		*target(cfg) = n
		return nil
	}
}

func floatVar(target func(*Config) *float64) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		f, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return err
		}
		*target(cfg) = f
		return nil
	}
}

func boolVar(target func(*Config) *bool) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		b, err := strconv.ParseBool(value)
		if err != nil {
			return err
		}
		*target(cfg) = b
		return nil
	}
}

func stringVar(target func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, value string) error {
		*target(cfg) = value
		return nil
	}
}

var envOverrides = []envOverride{
	{"ITERATION_INTERVAL", durationVar(func(c *Config) *time.Duration { return &c.Governor.IterationInterval })},
	{"RING_CAPACITY", intVar(func(c *Config) *int { return &c.Governor.RingCapacity })},
	{"APPLY_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Governor.ApplyTimeout })},
	{"RETENTION_WINDOW", durationVar(func(c *Config) *time.Duration { return &c.Pool.RetentionWindow })},
	{"PRUNE_INTERVAL", durationVar(func(c *Config) *time.Duration { return &c.Pool.PruneInterval })},
	{"WARNING_HISTORY", intVar(func(c *Config) *int { return &c.Warnings.HistoryCap })},
	{"CPU_WINDOW", intVar(func(c *Config) *int { return &c.CPU.WindowSize })},
	{"CPU_WARNING_THRESHOLD", floatVar(func(c *Config) *float64 { return &c.CPU.WarningThreshold })},
	{"CPU_CRITICAL_THRESHOLD", floatVar(func(c *Config) *float64 { return &c.CPU.CriticalThreshold })},
	{"UNDERRUN_TOLERANCE", floatVar(func(c *Config) *float64 { return &c.Glitch.UnderrunTolerance })},
	{"DROPOUT_FACTOR", floatVar(func(c *Config) *float64 { return &c.Glitch.DropoutFactor })},
	{"MINOR_THRESHOLD", floatVar(func(c *Config) *float64 { return &c.Degradation.MinorThreshold })},
	{"MODERATE_THRESHOLD", floatVar(func(c *Config) *float64 { return &c.Degradation.ModerateThreshold })},
	{"SEVERE_THRESHOLD", floatVar(func(c *Config) *float64 { return &c.Degradation.SevereThreshold })},
	{"DEBOUNCE_WINDOW", durationVar(func(c *Config) *time.Duration { return &c.Batcher.DebounceWindow })},
	{"COMPILER_CACHE_SIZE", intVar(func(c *Config) *int { return &c.Compiler.CacheSize })},
	{"RESUME_ON_VISIBILITY", boolVar(func(c *Config) *bool { return &c.Lifecycle.ResumeOnVisibility })},
	{"RESUME_ON_INTERACTION", boolVar(func(c *Config) *bool { return &c.Lifecycle.ResumeOnInteraction })},
	{"RESUME_TIMEOUT", durationVar(func(c *Config) *time.Duration { return &c.Lifecycle.ResumeTimeout })},
	{"LOG_LEVEL", stringVar(func(c *Config) *string { return &c.Logging.Level })},
	{"LOG_FORMAT", stringVar(func(c *Config) *string { return &c.Logging.Format })},
	{"LOG_FILE", stringVar(func(c *Config) *string { return &c.Logging.File })},
}

// ApplyEnv loads the given .env files (".env" when none are named; missing
// files are skipped) into the process environment without overriding
// variables already set, then applies every AUDIOGOV_* override to cfg.
// A value that fails to parse is logged and ignored.
func ApplyEnv(cfg *Config, envFiles ...string) error {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("load env file %s: %w", f, err)
		}
	}

	for _, o := range envOverrides {
		name := EnvPrefix + o.name
		value, ok := os.LookupEnv(name)
		if !ok || value == "" {
			continue
		}
		if err := o.apply(cfg, value); err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "config.ApplyEnv",
				"env_var":  name,
				"value":    value,
				"error":    err.Error(),
			}).Warn("Failed to parse environment override, keeping previous value")
			continue
		}
		logrus.WithFields(logrus.Fields{
			"function": "config.ApplyEnv",
			"env_var":  name,
			"value":    value,
		}).Debug("Applied environment override")
	}
	return nil
}
