package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/marmos91/tramp-rpc-server/internal/logger"
	"github.com/marmos91/tramp-rpc-server/pkg/config"
	"github.com/marmos91/tramp-rpc-server/pkg/server"
)

// Build-time variables injected via ldflags
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

const usage = `tramp-rpc-server - remote-side RPC server for editor file access

The server speaks a length-prefixed MessagePack protocol on stdin and
stdout. It is normally launched by the editor's connection layer over a
secure-shell session and takes no arguments; the subcommands below
exist for operators.

Usage:
  tramp-rpc-server [flags]
  tramp-rpc-server <command>

Commands:
  version  Show version information
  help     Show this help

Flags:
  --config string   Path to config file
                    (default: $XDG_CONFIG_HOME/tramp-rpc-server/config.yaml)

Environment Variables:
  All configuration options can be overridden using environment
  variables. Format: TRAMP_RPC_<SECTION>_<KEY>

  Examples:
    TRAMP_RPC_LOGGING_LEVEL=DEBUG
    TRAMP_RPC_SERVER_WORKERS=32
    TRAMP_RPC_SERVER_MAX_FRAME_SIZE=128Mi
`

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version", "--version", "-v":
			fmt.Printf("tramp-rpc-server %s (commit: %s, built: %s)\n", version, commit, date)
			return
		case "help", "--help", "-h":
			fmt.Print(usage)
			return
		}
	}

	flags := flag.NewFlagSet("tramp-rpc-server", flag.ExitOnError)
	configFile := flags.String("config", "", "Path to config file")
	if err := flags.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	srv := server.New(cfg, version, os.Stdin, os.Stdout)
	if err := srv.Serve(context.Background()); err != nil {
		logger.Error("server terminated", logger.KeyError, err)
		os.Exit(1)
	}
}
