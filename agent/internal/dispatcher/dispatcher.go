// Package dispatcher routes inbound frames to their handlers and writes
// the replies.
//
// # Inbound Frames
//
//	execute          {command, commandId?, requireConfirmation?} -> result
//	get_system_info  -> system_info
//	get_quick_stats  -> quick_stats
//
// Frames of any other type are ignored without a reply. Frames that do
// not decode are dropped with a warning.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/pilot-net/remote-agent/agent/internal/executor"
	"github.com/pilot-net/remote-agent/pkg/types"
)

// ErrMalformedFrame marks a frame that could not be decoded.
var ErrMalformedFrame = errors.New("malformed frame")

// FrameWriter sends one frame on the live connection.
type FrameWriter interface {
	WriteFrame(v any) error
}

// FrameReader receives frames from the live connection.
type FrameReader interface {
	ReadFrame() ([]byte, error)
}

// Conn is the live connection a session is served on.
type Conn interface {
	FrameReader
	FrameWriter
}

// CommandRunner executes commands. It returns executor.ErrDeclined when
// the command must not be answered.
type CommandRunner interface {
	Run(ctx context.Context, cmd types.Command) (types.CommandResult, error)
}

// Telemetry supplies the system_info and quick_stats payloads.
type Telemetry interface {
	Snapshot(ctx context.Context) types.SystemSnapshot
	QuickStats(ctx context.Context) types.QuickStats
}

// Config for the dispatcher.
type Config struct {
	Commands  CommandRunner
	Telemetry Telemetry

	Logger *slog.Logger
}

// Dispatcher handles frames one at a time.
type Dispatcher struct {
	commands  CommandRunner
	telemetry Telemetry
	logger    *slog.Logger
}

// New creates a dispatcher.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Dispatcher{
		commands:  cfg.Commands,
		telemetry: cfg.Telemetry,
		logger:    cfg.Logger.With("component", "dispatcher"),
	}
}

// SendAgentInfo writes the agent_info frame that opens every session.
func (d *Dispatcher) SendAgentInfo(ctx context.Context, w FrameWriter) error {
	snap := d.telemetry.Snapshot(ctx)
	if err := w.WriteFrame(types.NewDataFrame(types.FrameAgentInfo, snap)); err != nil {
		return fmt.Errorf("sending agent info: %w", err)
	}
	return nil
}

// Serve reads frames in arrival order and handles each before reading the
// next. It returns when reading or writing fails, or ctx is cancelled.
func (d *Dispatcher) Serve(ctx context.Context, conn Conn) error {
	for {
		raw, err := conn.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		if err := d.Handle(ctx, raw, conn); err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				d.logger.Warn("dropping frame", "error", err)
				continue
			}
			return err
		}
	}
}

// Handle processes a single frame. Only ErrMalformedFrame leaves the
// connection usable; any other error means a reply could not be sent.
func (d *Dispatcher) Handle(ctx context.Context, raw []byte, w FrameWriter) error {
	frame, err := types.ParseInboundFrame(raw)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	switch frame.Type {
	case types.FrameExecute:
		return d.handleExecute(ctx, frame, w)

	case types.FrameGetSystemInfo:
		d.logger.Info("system info requested")
		snap := d.telemetry.Snapshot(ctx)
		return d.write(w, types.NewDataFrame(types.FrameSystemInfo, snap))

	case types.FrameGetQuickStats:
		stats := d.telemetry.QuickStats(ctx)
		return d.write(w, types.NewDataFrame(types.FrameQuickStats, stats))

	default:
		d.logger.Debug("ignoring frame", "type", frame.Type)
		return nil
	}
}

func (d *Dispatcher) handleExecute(ctx context.Context, frame types.InboundFrame, w FrameWriter) error {
	cmd, err := frame.ToCommand()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrMalformedFrame, err)
	}

	res, err := d.commands.Run(ctx, cmd)
	if err != nil {
		if errors.Is(err, executor.ErrDeclined) {
			// declined commands get no reply
			return nil
		}
		return fmt.Errorf("running command: %w", err)
	}

	return d.write(w, types.NewResultFrame(cmd, res))
}

func (d *Dispatcher) write(w FrameWriter, frame any) error {
	if err := w.WriteFrame(frame); err != nil {
		return fmt.Errorf("sending reply: %w", err)
	}
	return nil
}
