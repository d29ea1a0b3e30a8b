package config

import (
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/marmos91/tramp-rpc-server/internal/bytesize"
)

// Defaults. The server must behave sensibly with zero configuration:
// it is normally spawned over a shell session with no arguments.
const (
	DefaultMaxFrameSize       = 64 * bytesize.MiB
	DefaultWorkers            = 16
	DefaultShutdownDrain      = time.Second
	DefaultOutputFragmentSize = 64 * bytesize.KiB
	DefaultStopTimeout        = 5 * time.Second
	DefaultTerm               = "dumb"
)

// ApplyDefaults fills unset fields. Zero values are replaced; explicit
// values are preserved.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	if cfg.Server.MaxFrameSize == 0 {
		cfg.Server.MaxFrameSize = DefaultMaxFrameSize
	}
	if cfg.Server.Workers == 0 {
		cfg.Server.Workers = DefaultWorkers
	}
	if cfg.Server.ParallelCommands == 0 {
		cfg.Server.ParallelCommands = runtime.NumCPU()
	}
	if cfg.Server.ShutdownDrain == 0 {
		cfg.Server.ShutdownDrain = DefaultShutdownDrain
	}

	if cfg.Process.OutputFragmentSize == 0 {
		cfg.Process.OutputFragmentSize = DefaultOutputFragmentSize
	}
	if cfg.Process.StopTimeout == 0 {
		cfg.Process.StopTimeout = DefaultStopTimeout
	}
	if cfg.Process.Term == "" {
		cfg.Process.Term = DefaultTerm
	}
}

// Default returns the pure-default configuration.
func Default() *Config {
	var cfg Config
	ApplyDefaults(&cfg)
	return &cfg
}

// Validate rejects configurations the server cannot run with.
func Validate(cfg *Config) error {
	var errs []error

	switch cfg.Logging.Level {
	case "DEBUG", "INFO", "WARN", "ERROR":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level))
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		errs = append(errs, fmt.Errorf("logging.format: must be text or json, got %q", cfg.Logging.Format))
	}
	if strings.EqualFold(cfg.Logging.Output, "stdout") {
		errs = append(errs, errors.New("logging.output: stdout carries the protocol and cannot receive logs"))
	}

	if cfg.Server.MaxFrameSize < 4*bytesize.KiB {
		errs = append(errs, fmt.Errorf("server.max_frame_size: %s is below the 4Ki minimum", cfg.Server.MaxFrameSize))
	}
	if cfg.Server.MaxFrameSize > 1*bytesize.GiB {
		errs = append(errs, fmt.Errorf("server.max_frame_size: %s exceeds the 1Gi maximum", cfg.Server.MaxFrameSize))
	}
	if cfg.Server.Workers < 1 {
		errs = append(errs, fmt.Errorf("server.workers: must be positive, got %d", cfg.Server.Workers))
	}
	if cfg.Server.ParallelCommands < 1 {
		errs = append(errs, fmt.Errorf("server.parallel_commands: must be positive, got %d", cfg.Server.ParallelCommands))
	}
	if cfg.Server.ShutdownDrain < 0 {
		errs = append(errs, fmt.Errorf("server.shutdown_drain: must not be negative, got %s", cfg.Server.ShutdownDrain))
	}

	if cfg.Process.OutputFragmentSize < 1*bytesize.KiB {
		errs = append(errs, fmt.Errorf("process.output_fragment_size: %s is below the 1Ki minimum", cfg.Process.OutputFragmentSize))
	}
	if cfg.Process.OutputFragmentSize > cfg.Server.MaxFrameSize/2 {
		errs = append(errs, fmt.Errorf("process.output_fragment_size: %s must fit well inside max_frame_size %s",
			cfg.Process.OutputFragmentSize, cfg.Server.MaxFrameSize))
	}
	if cfg.Process.StopTimeout <= 0 {
		errs = append(errs, fmt.Errorf("process.stop_timeout: must be positive, got %s", cfg.Process.StopTimeout))
	}

	return errors.Join(errs...)
}
