// Package client provides the websocket transport to the control server.
//
// # Handshake
//
// The agent identifies itself with request headers on the upgrade:
//
//   - X-Agent-Id
//   - X-Agent-Token
//   - X-Agent-Nickname
//   - X-Agent-Tags (comma-joined)
//
// Each frame is one JSON text message. Writes are serialised so the
// heartbeat and the dispatcher can share a connection.
package client

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pilot-net/remote-agent/pkg/types"
)

// Handshake header names.
const (
	HeaderAgentID       = "X-Agent-Id"
	HeaderAgentToken    = "X-Agent-Token"
	HeaderAgentNickname = "X-Agent-Nickname"
	HeaderAgentTags     = "X-Agent-Tags"
)

// Config for the dialer.
type Config struct {
	Identity types.Identity

	// VerifySSL controls certificate validation for wss:// endpoints.
	// Disabling it is an insecure development mode.
	VerifySSL bool

	// ConnectTimeout bounds the whole handshake. Default: 5s
	ConnectTimeout time.Duration

	// Version is reported in the User-Agent header.
	Version string

	Logger *slog.Logger
}

// Dialer opens connections to candidate endpoints.
type Dialer struct {
	identity  types.Identity
	verifySSL bool
	timeout   time.Duration
	userAgent string
	logger    *slog.Logger
}

// NewDialer creates a dialer.
func NewDialer(cfg Config) *Dialer {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = 5 * time.Second
	}
	if cfg.Version == "" {
		cfg.Version = "dev"
	}
	return &Dialer{
		identity:  cfg.Identity,
		verifySSL: cfg.VerifySSL,
		timeout:   cfg.ConnectTimeout,
		userAgent: "remote-agent/" + cfg.Version,
		logger:    cfg.Logger.With("component", "client"),
	}
}

// Headers returns the handshake headers for this agent.
func (d *Dialer) Headers() http.Header {
	h := http.Header{}
	h.Set(HeaderAgentID, d.identity.ID)
	h.Set(HeaderAgentToken, d.identity.Token)
	h.Set(HeaderAgentNickname, d.identity.Nickname)
	h.Set(HeaderAgentTags, d.identity.JoinedTags())
	h.Set("User-Agent", d.userAgent)
	return h
}

// Dial connects to url within the connect timeout.
func (d *Dialer) Dial(ctx context.Context, url string) (*Conn, error) {
	ctx, cancel := context.WithTimeout(ctx, d.timeout)
	defer cancel()

	wsDialer := &websocket.Dialer{
		Proxy:            http.ProxyFromEnvironment,
		HandshakeTimeout: d.timeout,
	}
	if strings.HasPrefix(url, "wss://") && !d.verifySSL {
		d.logger.Warn("TLS certificate verification disabled (insecure development mode)", "url", url)
		wsDialer.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	ws, resp, err := wsDialer.DialContext(ctx, url, d.Headers())
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dialing %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dialing %s: %w", url, err)
	}

	return &Conn{ws: ws, url: url}, nil
}

// Conn is one live connection. WriteFrame is safe for concurrent use;
// ReadFrame must be called from a single goroutine.
type Conn struct {
	ws  *websocket.Conn
	url string

	writeMu   sync.Mutex
	closeOnce sync.Once
	closeErr  error
}

// URL returns the endpoint this connection was opened to.
func (c *Conn) URL() string {
	return c.url
}

// WriteFrame sends v as a single JSON text message.
func (c *Conn) WriteFrame(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling frame: %w", err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("writing frame: %w", err)
	}
	return nil
}

// ReadFrame blocks until the next message arrives.
func (c *Conn) ReadFrame() ([]byte, error) {
	_, data, err := c.ws.ReadMessage()
	if err != nil {
		return nil, fmt.Errorf("reading frame: %w", err)
	}
	return data, nil
}

// Close closes the underlying connection. Safe to call more than once.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.ws.Close()
	})
	return c.closeErr
}
