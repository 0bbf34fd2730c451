// Package scheduler emits the heartbeat while a session is connected.
//
// # Heartbeat Loop
//
//  1. Wait one interval (nothing is sent at connect time)
//  2. Collect quick stats
//  3. Send a heartbeat frame
//  4. Repeat until the session context is cancelled
//
// A failed send ends the loop with ErrHeartbeatSend; the session treats
// it as a lost connection.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/pilot-net/remote-agent/pkg/types"
)

// ErrHeartbeatSend wraps the transport error of a failed heartbeat.
var ErrHeartbeatSend = errors.New("heartbeat send failed")

// FrameWriter sends one frame on the live connection.
type FrameWriter interface {
	WriteFrame(v any) error
}

// StatsSource supplies the heartbeat payload.
type StatsSource interface {
	QuickStats(ctx context.Context) types.QuickStats
}

// Scheduler sends heartbeats at a fixed interval.
type Scheduler struct {
	interval time.Duration
	stats    StatsSource
	logger   *slog.Logger

	sent atomic.Int64
}

// NewScheduler creates a scheduler. interval defaults to 10s.
func NewScheduler(interval time.Duration, stats StatsSource, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}
	return &Scheduler{
		interval: interval,
		stats:    stats,
		logger:   logger.With("component", "heartbeat"),
	}
}

// Interval returns the heartbeat interval.
func (s *Scheduler) Interval() time.Duration {
	return s.interval
}

// Sent returns how many heartbeats have been sent by this scheduler.
func (s *Scheduler) Sent() int64 {
	return s.sent.Load()
}

// Run sends heartbeats on w until ctx is cancelled or a send fails.
func (s *Scheduler) Run(ctx context.Context, w FrameWriter) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := s.beat(ctx, w); err != nil {
				return err
			}
		}
	}
}

func (s *Scheduler) beat(ctx context.Context, w FrameWriter) error {
	stats := s.stats.QuickStats(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	if err := w.WriteFrame(types.NewDataFrame(types.FrameHeartbeat, stats)); err != nil {
		s.logger.Warn("heartbeat failed", "error", err)
		return fmt.Errorf("%w: %w", ErrHeartbeatSend, err)
	}

	n := s.sent.Add(1)
	s.logger.Debug("heartbeat sent",
		"seq", n,
		"cpu_percent", stats.CPUPercent,
		"memory_percent", stats.MemoryPercent)
	return nil
}
