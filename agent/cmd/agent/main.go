// Command agent runs the remote agent.
//
// # Usage
//
//	agent --server ws://192.168.1.10:3000 --nickname lab-pc-07
//
// With no server the agent discovers one on the local network.
//
// # Configuration
//
// Configuration can be provided via:
//   - Command-line flags
//   - Environment variables (SERVER_URL, AGENT_*)
//   - Config file (--config or AGENT_CONFIG)
//
// # Examples
//
// Run with flags:
//
//	agent --server wss://control.example.com:3000 \
//	      --token change-me \
//	      --tags lab,windows
//
// Run with config file:
//
//	agent --config /etc/remote-agent/agent.yaml
//
// Run with environment variables:
//
//	SERVER_URL=auto AGENT_TOKEN=change-me agent
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	flag "github.com/spf13/pflag"

	"github.com/pilot-net/remote-agent/agent"
	"github.com/pilot-net/remote-agent/agent/internal/config"
	"github.com/pilot-net/remote-agent/agent/internal/secrets"
)

func main() {
	var (
		configFile = flag.String("config", os.Getenv("AGENT_CONFIG"), "Path to config file")
		server     = flag.String("server", "", `Server URL, or "auto" to discover`)
		token      = flag.String("token", "", "Shared agent token")
		nickname   = flag.String("nickname", "", "Agent nickname (default: hostname)")
		tags       = flag.String("tags", "", "Comma-separated agent tags")
		insecure   = flag.Bool("insecure", false, "Skip TLS certificate verification (development only)")
		debug      = flag.Bool("debug", false, "Enable debug logging")
		version    = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *version {
		fmt.Printf("remote-agent %s\n", agent.Version)
		os.Exit(0)
	}

	logLevel := slog.LevelInfo
	if *debug || strings.EqualFold(os.Getenv("AGENT_LOG_LEVEL"), "debug") {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel,
	}))

	cfg := config.DefaultConfig()
	if *configFile != "" {
		fileCfg, err := config.LoadFromFile(*configFile)
		if err != nil {
			logger.Error("failed to load config file", "error", err)
			os.Exit(1)
		}
		cfg = fileCfg
	}

	if err := cfg.ApplyEnvOverrides(os.Getenv); err != nil {
		logger.Error("invalid environment", "error", err)
		os.Exit(1)
	}

	if *server != "" {
		cfg.Server.URL = *server
	}
	if *token != "" {
		cfg.Agent.Token = *token
	}
	if *nickname != "" {
		cfg.Agent.Nickname = *nickname
	}
	if *tags != "" {
		cfg.Agent.Tags = config.SplitTags(*tags)
	}
	if *insecure {
		cfg.Server.VerifySSL = false
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}
	cfg.ApplyIdentityDefaults(hostname)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	src, err := secrets.NewTokenSource(*cfg, logger)
	if err != nil {
		logger.Error("failed to create token source", "error", err)
		os.Exit(1)
	}
	tok, err := src.Token(ctx)
	if err != nil {
		logger.Error("failed to resolve agent token", "error", err)
		os.Exit(1)
	}
	cfg.Agent.Token = tok

	a, err := agent.New(*cfg, logger)
	if err != nil {
		logger.Error("failed to create agent", "error", err)
		os.Exit(1)
	}

	if err := a.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("agent exited with error", "error", err)
		os.Exit(1)
	}

	logger.Info("agent shutdown complete")
}
