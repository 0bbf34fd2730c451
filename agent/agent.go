// Package agent provides the main agent implementation.
//
// # Agent Lifecycle
//
//  1. Load configuration and resolve the token (done by main)
//  2. Discover candidate servers (once per process)
//  3. Connect to the first candidate that accepts
//  4. Send agent_info
//  5. Serve inbound frames and send heartbeats concurrently
//  6. On connection loss wait, then reconnect with the same candidates
//  7. Run until shutdown signal
package agent

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	"golang.org/x/sync/errgroup"

	"github.com/pilot-net/remote-agent/agent/internal/client"
	"github.com/pilot-net/remote-agent/agent/internal/config"
	"github.com/pilot-net/remote-agent/agent/internal/connection"
	"github.com/pilot-net/remote-agent/agent/internal/discovery"
	"github.com/pilot-net/remote-agent/agent/internal/dispatcher"
	"github.com/pilot-net/remote-agent/agent/internal/executor"
	"github.com/pilot-net/remote-agent/agent/internal/scheduler"
	"github.com/pilot-net/remote-agent/agent/internal/telemetry"
	"github.com/pilot-net/remote-agent/pkg/types"
)

// Version is set at build time.
var Version = "dev"

// Telemetry supplies snapshots for agent_info, system_info, quick_stats and
// heartbeats.
type Telemetry interface {
	Snapshot(ctx context.Context) types.SystemSnapshot
	QuickStats(ctx context.Context) types.QuickStats
}

// Option customises an Agent.
type Option func(*Agent)

// WithTelemetry replaces the gopsutil telemetry provider.
func WithTelemetry(t Telemetry) Option {
	return func(a *Agent) { a.telemetry = t }
}

// WithConfirmer replaces the terminal confirmation prompt.
func WithConfirmer(c executor.Confirmer) Option {
	return func(a *Agent) { a.confirmer = c }
}

// WithProbe replaces the platform network probe used by discovery.
func WithProbe(p discovery.OSProbe) Option {
	return func(a *Agent) { a.probe = p }
}

// Agent is the remote agent.
type Agent struct {
	cfg      config.Config
	identity types.Identity
	logger   *slog.Logger

	probe     discovery.OSProbe
	telemetry Telemetry
	confirmer executor.Confirmer

	manager    *connection.Manager
	dispatcher *dispatcher.Dispatcher
	heartbeat  *scheduler.Scheduler
}

// New creates an agent. cfg must be complete: identity defaults applied and
// the token resolved.
func New(cfg config.Config, logger *slog.Logger, opts ...Option) (*Agent, error) {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	a := &Agent{
		cfg: cfg,
		identity: types.Identity{
			ID:       cfg.Agent.ID,
			Nickname: cfg.Agent.Nickname,
			Tags:     append([]string(nil), cfg.Agent.Tags...),
			Token:    cfg.Agent.Token,
		},
		logger: logger,
	}
	for _, opt := range opts {
		opt(a)
	}

	if a.probe == nil {
		a.probe = discovery.NewSystemProbe(cfg.Discovery.LocalIPProbeAddr)
	}
	if a.telemetry == nil {
		a.telemetry = telemetry.NewProvider(telemetry.Config{
			SampleInterval: cfg.Telemetry.SampleInterval,
			Version:        Version,
			Logger:         logger,
		})
	}

	exec := executor.New(executor.Config{
		Timeout:   cfg.Commands.Timeout,
		Shell:     cfg.Commands.Shell,
		Confirmer: a.confirmer,
		Logger:    logger,
	})

	a.dispatcher = dispatcher.New(dispatcher.Config{
		Commands:  exec,
		Telemetry: a.telemetry,
		Logger:    logger,
	})

	a.heartbeat = scheduler.NewScheduler(cfg.Health.HeartbeatInterval, a.telemetry, logger)

	dialer := client.NewDialer(client.Config{
		Identity:       a.identity,
		VerifySSL:      cfg.Server.VerifySSL,
		ConnectTimeout: cfg.Server.ConnectTimeout,
		Version:        Version,
		Logger:         logger,
	})

	a.manager = connection.NewManager(connection.Config{
		Source: discovery.NewGenerator(cfg.Server.URL, cfg.Discovery, a.probe, logger),
		Dial: func(ctx context.Context, url string) (connection.Conn, error) {
			conn, err := dialer.Dial(ctx, url)
			if err != nil {
				return nil, err
			}
			return conn, nil
		},
		Session:        a.RunSession,
		MaxAttempts:    cfg.Server.MaxAttempts,
		ReconnectDelay: cfg.Server.ReconnectDelay,
		Logger:         logger,
	})

	return a, nil
}

// Identity returns the agent identity.
func (a *Agent) Identity() types.Identity {
	return a.identity
}

// Manager returns the connection manager.
func (a *Agent) Manager() *connection.Manager {
	return a.manager
}

// Run starts the agent and blocks until context is cancelled.
func (a *Agent) Run(ctx context.Context) error {
	a.logger.Info("starting agent",
		"agent", a.identity.String(),
		"version", Version,
		"server", a.cfg.Server.URL,
		"verify_ssl", a.cfg.Server.VerifySSL)

	return a.manager.Run(ctx)
}

// RunSession serves one connected session: agent_info first, then the
// receive loop and heartbeat side by side. It returns when either of them
// stops or ctx is cancelled, and always leaves conn closed.
func (a *Agent) RunSession(ctx context.Context, conn connection.Conn) error {
	if err := a.dispatcher.SendAgentInfo(ctx, conn); err != nil {
		conn.Close()
		return err
	}
	a.logger.Info("agent info sent")

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := a.dispatcher.Serve(gctx, conn)
		if err == nil {
			err = io.EOF
		}
		return fmt.Errorf("receive loop: %w", err)
	})

	g.Go(func() error {
		return a.heartbeat.Run(gctx, conn)
	})

	// unblocks the reader once either side has stopped
	g.Go(func() error {
		<-gctx.Done()
		conn.Close()
		return nil
	})

	return g.Wait()
}
