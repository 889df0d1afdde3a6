package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/opd-ai/audiogovernor/config"
	"github.com/opd-ai/audiogovernor/logging"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// CLI configuration
type CLIConfig struct {
	configFile  string
	envFile     string
	logLevel    string
	logFile     string
	steps       int
	start       float64
	end         float64
	frames      int
	sampleRate  float64
	voices      uint
	dropoutEach int
	live        bool
	metricsAddr string
	hold        time.Duration
	help        bool
}

// parseCLIFlags parses command-line flags and returns the configuration.
func parseCLIFlags(fs *flag.FlagSet, args []string) (*CLIConfig, error) {
	cfg := &CLIConfig{}

	// Configuration sources
	fs.StringVar(&cfg.configFile, "config", "", "YAML config file (default: built-in defaults)")
	fs.StringVar(&cfg.envFile, "env", ".env", "Dotenv file with AUDIOGOV_* overrides, ignored when missing")

	// Logging
	fs.StringVar(&cfg.logLevel, "log-level", "", "Log level override (debug, info, warn, error)")
	fs.StringVar(&cfg.logFile, "log-file", "", "Log file override, rotated by size")

	// Load ramp
	fs.IntVar(&cfg.steps, "steps", 2000, "Number of audio callbacks to simulate")
	fs.Float64Var(&cfg.start, "start", 0.3, "CPU utilization of the first callback")
	fs.Float64Var(&cfg.end, "end", 1.1, "CPU utilization of the last callback")
	fs.IntVar(&cfg.frames, "frames", 512, "Frames per callback")
	fs.Float64Var(&cfg.sampleRate, "rate", 48000, "Sample rate in Hz")
	fs.UintVar(&cfg.voices, "voices", 32, "Active voice count")
	fs.IntVar(&cfg.dropoutEach, "dropout-every", 0, "Skip a callback slot every N callbacks (0 disables)")

	// Execution
	fs.BoolVar(&cfg.live, "live", false, "Run callbacks in real time on a locked thread")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	fs.DurationVar(&cfg.hold, "hold", 0, "Keep the metrics endpoint up this long after the run")

	fs.BoolVar(&cfg.help, "help", false, "Show help message")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validateCLIConfig validates the CLI configuration.
func validateCLIConfig(cfg *CLIConfig) error {
	if cfg.steps <= 0 {
		return fmt.Errorf("steps must be positive")
	}
	if cfg.start < 0 || cfg.end < 0 {
		return fmt.Errorf("utilization cannot be negative")
	}
	if cfg.frames <= 0 {
		return fmt.Errorf("frames must be positive")
	}
	if cfg.sampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive")
	}
	if cfg.dropoutEach < 0 {
		return fmt.Errorf("dropout interval cannot be negative")
	}
	if cfg.hold < 0 {
		return fmt.Errorf("hold duration cannot be negative")
	}
	if cfg.hold > 0 && cfg.metricsAddr == "" {
		return fmt.Errorf("hold requires -metrics-addr")
	}
	return nil
}

// loadGovernorConfig reads the config file and environment, then applies
// the CLI's logging overrides.
func loadGovernorConfig(cli *CLIConfig) (*config.Config, error) {
	var envFiles []string
	if cli.envFile != "" {
		envFiles = append(envFiles, cli.envFile)
	}
	cfg, err := config.Load(cli.configFile, envFiles...)
	if err != nil {
		return nil, err
	}
	if cli.logLevel != "" {
		cfg.Logging.Level = cli.logLevel
	}
	if cli.logFile != "" {
		cfg.Logging.File = cli.logFile
	}
	cfg.Governor.InitialVoices = cli.voices
	return cfg, cfg.Validate()
}

// serveMetrics exposes reg on addr until ctx is done.
func serveMetrics(ctx context.Context, addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	go func() {
		logrus.WithFields(logrus.Fields{
			"function": "serveMetrics",
			"addr":     addr,
		}).Info("Serving metrics")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithFields(logrus.Fields{
				"function": "serveMetrics",
				"addr":     addr,
				"error":    err.Error(),
			}).Error("Metrics server failed")
		}
	}()
}

func printUsage(fs *flag.FlagSet) {
	fmt.Println("Audio Governor Simulator")
	fmt.Println("========================")
	fmt.Println()
	fmt.Println("Feeds a CPU load ramp through the performance governor and reports")
	fmt.Println("degradation levels, warnings and graph activity.")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Printf("  %s [options]\n", os.Args[0])
	fmt.Println()
	fmt.Println("Options:")
	fs.PrintDefaults()
}

func run(cli *CLIConfig) error {
	cfg, err := loadGovernorConfig(cli)
	if err != nil {
		return err
	}
	closer, err := logging.Setup(cfg.Logging)
	if err != nil {
		return err
	}
	defer closer.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	reg := prometheus.NewRegistry()
	if cli.metricsAddr != "" {
		serveMetrics(ctx, cli.metricsAddr, reg)
	}

	sim, err := newSimulation(cfg, cli, reg)
	if err != nil {
		return err
	}
	defer sim.Close()

	var res *result
	if cli.live {
		res, err = sim.RunLive(ctx)
	} else {
		res, err = sim.RunVirtual(ctx)
	}
	if err != nil {
		return err
	}
	printReport(os.Stdout, res)

	if cli.hold > 0 {
		fmt.Printf("\nServing metrics on %s for %v (Ctrl+C to stop)\n", cli.metricsAddr, cli.hold)
		select {
		case <-ctx.Done():
		case <-time.After(cli.hold):
		}
	}
	return nil
}

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	cli, err := parseCLIFlags(fs, os.Args[1:])
	if err != nil {
		os.Exit(1)
	}
	if cli.help {
		printUsage(fs)
		os.Exit(0)
	}
	if err := validateCLIConfig(cli); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		fmt.Fprintf(os.Stderr, "Use -help for usage information.\n")
		os.Exit(1)
	}
	if err := run(cli); err != nil {
		fmt.Fprintf(os.Stderr, "Simulation failed: %v\n", err)
		os.Exit(1)
	}
}
