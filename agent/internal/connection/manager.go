// Package connection drives discovery, connection attempts and reconnects.
//
// # States
//
//	Idle -> Discovering -> Connecting -> Connected -> Disconnected
//	                          ^                           |
//	                          +------- reconnect delay ---+
//
// The candidate list is generated once and reused by every later connect
// cycle. It is regenerated only if it came back empty.
package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pilot-net/remote-agent/agent/internal/discovery"
)

// ErrNoServer is returned by Connect when no candidate accepted a connection.
var ErrNoServer = errors.New("no server reachable")

// State is the manager's connection state.
type State int

const (
	StateIdle State = iota
	StateDiscovering
	StateConnecting
	StateConnected
	StateDisconnected
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDiscovering:
		return "discovering"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is a live connection handed to a session.
type Conn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(v any) error
	Close() error
}

// CandidateSource produces the ordered candidate list.
type CandidateSource interface {
	Generate(ctx context.Context) *discovery.CandidateList
}

// DialFunc opens a connection to one candidate URL.
type DialFunc func(ctx context.Context, url string) (Conn, error)

// SessionFunc runs a connected session until the connection is lost or
// ctx is cancelled.
type SessionFunc func(ctx context.Context, conn Conn) error

// Config for the manager.
type Config struct {
	Source  CandidateSource
	Dial    DialFunc
	Session SessionFunc

	// MaxAttempts is the per-candidate cap; a candidate with more
	// attempts than this is skipped. Default: 3
	MaxAttempts int

	// ReconnectDelay is waited after every failed cycle or ended
	// session. Default: 5s
	ReconnectDelay time.Duration

	Logger *slog.Logger
}

// Manager owns the single connection state machine.
type Manager struct {
	source         CandidateSource
	dial           DialFunc
	session        SessionFunc
	maxAttempts    int
	reconnectDelay time.Duration
	logger         *slog.Logger

	mu         sync.Mutex
	state      State
	candidates *discovery.CandidateList
	current    string
}

// NewManager creates a manager in the Idle state.
func NewManager(cfg Config) *Manager {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 3
	}
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = 5 * time.Second
	}
	return &Manager{
		source:         cfg.Source,
		dial:           cfg.Dial,
		session:        cfg.Session,
		maxAttempts:    cfg.MaxAttempts,
		reconnectDelay: cfg.ReconnectDelay,
		logger:         cfg.Logger.With("component", "connection"),
		state:          StateIdle,
	}
}

// State returns the current state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CurrentURL returns the endpoint of the live session, or "".
func (m *Manager) CurrentURL() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Candidates returns a copy of the cached candidate list.
func (m *Manager) Candidates() []discovery.Candidate {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]discovery.Candidate, 0, m.candidates.Len())
	for _, c := range m.candidates.Items() {
		out = append(out, *c)
	}
	return out
}

func (m *Manager) setState(s State) {
	m.mu.Lock()
	prev := m.state
	m.state = s
	m.mu.Unlock()

	if prev != s {
		m.logger.Debug("state change", "from", prev.String(), "to", s.String())
	}
}

// Run connects, runs sessions and reconnects until ctx is cancelled.
// It always returns ctx.Err().
func (m *Manager) Run(ctx context.Context) error {
	for {
		conn, url, err := m.Connect(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Warn("could not connect to any server", "error", err, "retry_in", m.reconnectDelay)
		} else {
			m.runSession(ctx, conn, url)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			m.logger.Info("reconnecting", "retry_in", m.reconnectDelay)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(m.reconnectDelay):
		}
	}
}

func (m *Manager) runSession(ctx context.Context, conn Conn, url string) {
	m.mu.Lock()
	m.current = url
	m.mu.Unlock()
	m.setState(StateConnected)
	m.logger.Info("connected", "url", url)

	err := m.session(ctx, conn)
	conn.Close()

	m.mu.Lock()
	m.current = ""
	m.mu.Unlock()
	m.setState(StateDisconnected)

	if err != nil && ctx.Err() == nil {
		m.logger.Warn("connection lost", "url", url, "error", err)
	} else {
		m.logger.Info("connection closed", "url", url)
	}
}

// Connect makes one pass over the candidate list and returns the first
// connection that succeeds along with its URL.
func (m *Manager) Connect(ctx context.Context) (Conn, string, error) {
	list := m.candidateList(ctx)
	m.setState(StateConnecting)

	for _, c := range list.Items() {
		if err := ctx.Err(); err != nil {
			m.setState(StateDisconnected)
			return nil, "", err
		}

		m.mu.Lock()
		if c.Exhausted(m.maxAttempts) {
			m.mu.Unlock()
			m.logger.Debug("skipping exhausted candidate", "url", c.URL, "attempts", c.Attempts)
			continue
		}
		c.RecordAttempt()
		attempt := c.Attempts
		m.mu.Unlock()

		m.logger.Info("trying server", "url", c.URL, "attempt", attempt)

		conn, err := m.dial(ctx, c.URL)

		m.mu.Lock()
		if err != nil {
			c.RecordFailure()
			m.mu.Unlock()
			m.logger.Info("connection attempt failed", "url", c.URL, "attempt", attempt, "error", err)
			continue
		}
		c.RecordSuccess()
		m.mu.Unlock()

		return conn, c.URL, nil
	}

	m.setState(StateDisconnected)
	return nil, "", ErrNoServer
}

// candidateList returns the cached list, generating it when absent or empty.
func (m *Manager) candidateList(ctx context.Context) *discovery.CandidateList {
	m.mu.Lock()
	list := m.candidates
	m.mu.Unlock()

	if list.Len() > 0 {
		return list
	}

	m.setState(StateDiscovering)
	list = m.source.Generate(ctx)
	if list == nil {
		list = discovery.NewCandidateList()
	}
	m.logger.Info("candidate list ready", "candidates", list.Len(), "urls", list.URLs())

	m.mu.Lock()
	m.candidates = list
	m.mu.Unlock()
	return list
}
