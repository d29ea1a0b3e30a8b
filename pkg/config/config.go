// Package config loads server configuration from file, environment, and
// defaults.
//
// The server runs entirely on defaults when no config file exists; the
// file and environment overrides are for operators who need to retune
// worker counts or frame limits without rebuilding.
//
// Precedence (highest to lowest):
//  1. Environment variables (TRAMP_RPC_*)
//  2. Configuration file (YAML)
//  3. Default values
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"

	"github.com/marmos91/tramp-rpc-server/internal/bytesize"
)

// Config is the full server configuration.
type Config struct {
	// Logging controls diagnostic output on stderr
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`

	// Server controls the transport loop and worker pool
	Server ServerConfig `mapstructure:"server" yaml:"server"`

	// Process controls child process management
	Process ProcessConfig `mapstructure:"process" yaml:"process"`

	// Encoding controls the output encoder
	Encoding EncodingConfig `mapstructure:"encoding" yaml:"encoding"`
}

// LoggingConfig mirrors internal/logger.Config.
type LoggingConfig struct {
	// Level is the minimum log level: DEBUG, INFO, WARN, ERROR
	Level string `mapstructure:"level" yaml:"level"`

	// Format is "text" or "json"
	Format string `mapstructure:"format" yaml:"format"`

	// Output is "stderr" or a file path. Never stdout: the protocol
	// owns it.
	Output string `mapstructure:"output" yaml:"output"`
}

// ServerConfig controls the transport loop.
type ServerConfig struct {
	// MaxFrameSize bounds a single protocol frame. A peer declaring a
	// larger frame gets the connection dropped.
	MaxFrameSize bytesize.ByteSize `mapstructure:"max_frame_size" yaml:"max_frame_size"`

	// Workers is the number of goroutines executing handler bodies.
	Workers int `mapstructure:"workers" yaml:"workers"`

	// ParallelCommands bounds commands.run_parallel concurrency.
	// 0 selects the number of CPUs.
	ParallelCommands int `mapstructure:"parallel_commands" yaml:"parallel_commands"`

	// ShutdownDrain is how long pending responses may drain after the
	// transport dies.
	ShutdownDrain time.Duration `mapstructure:"shutdown_drain" yaml:"shutdown_drain"`
}

// ProcessConfig controls child process management.
type ProcessConfig struct {
	// OutputFragmentSize caps one process.output notification's data.
	OutputFragmentSize bytesize.ByteSize `mapstructure:"output_fragment_size" yaml:"output_fragment_size"`

	// StopTimeout is the default grace period between SIGTERM and
	// SIGKILL in process.stop.
	StopTimeout time.Duration `mapstructure:"stop_timeout" yaml:"stop_timeout"`

	// Term is the TERM value for PTY children when the request names
	// none.
	Term string `mapstructure:"term" yaml:"term"`
}

// EncodingConfig controls the output encoder.
type EncodingConfig struct {
	// LocaleHint is the default charset hint when a request carries
	// none. Only latin-1 family values have an effect.
	LocaleHint string `mapstructure:"locale_hint" yaml:"locale_hint"`
}

// Load loads configuration. An empty configPath searches the default
// location; a missing file is not an error and yields the defaults plus
// any environment overrides.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if _, err := readConfigFile(v); err != nil {
		return nil, err
	}

	// AutomaticEnv only consults the environment for keys viper already
	// knows; bind every option so overrides work without a config file.
	for _, key := range []string{
		"logging.level", "logging.format", "logging.output",
		"server.max_frame_size", "server.workers", "server.parallel_commands", "server.shutdown_drain",
		"process.output_fragment_size", "process.stop_timeout", "process.term",
		"encoding.locale_hint",
	} {
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// setupViper wires env overrides and the config file search path.
// Environment variables use the TRAMP_RPC prefix with underscores:
// TRAMP_RPC_LOGGING_LEVEL=DEBUG, TRAMP_RPC_SERVER_WORKERS=32.
func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("TRAMP_RPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(defaultConfigDir())
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
}

func defaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "tramp-rpc-server")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "tramp-rpc-server")
}

// readConfigFile reads the config file if present. A missing file is
// fine; anything else is a real problem.
func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to read config file: %w", err)
	}
	return true, nil
}

// decodeHooks converts human-readable sizes and durations.
func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		byteSizeDecodeHook(),
		mapstructure.StringToTimeDurationHookFunc(),
	)
}

// byteSizeDecodeHook lets config files write sizes as "64Mi", "1MB", or
// plain numbers.
func byteSizeDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(bytesize.ByteSize(0)) {
			return data, nil
		}
		switch v := data.(type) {
		case string:
			return bytesize.Parse(v)
		case int:
			return bytesize.ByteSize(v), nil
		case int64:
			return bytesize.ByteSize(v), nil
		case uint64:
			return bytesize.ByteSize(v), nil
		case float64:
			// YAML deserializes bare numbers as float64
			return bytesize.ByteSize(v), nil
		default:
			return data, nil
		}
	}
}
