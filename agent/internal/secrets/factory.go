// Package secrets resolves the agent token.
//
// # Backends
//
//   - static: the token from config or AGENT_TOKEN (default)
//   - 1password: a field of a 1Password Connect item
//   - auto: 1password when Connect is configured, otherwise static
package secrets

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/pilot-net/remote-agent/agent/internal/config"
)

// Backend names.
const (
	BackendStatic      = "static"
	BackendOnePassword = "1password"
	BackendAuto        = "auto"
)

// TokenSource yields the shared token sent in X-Agent-Token.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// StaticToken is a token known at startup.
type StaticToken string

// Token returns the token.
func (s StaticToken) Token(ctx context.Context) (string, error) {
	return string(s), nil
}

// NewTokenSource creates a TokenSource based on configuration.
func NewTokenSource(cfg config.Config, logger *slog.Logger) (TokenSource, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "secrets")

	backend := cfg.Secrets.Backend
	if backend == "" {
		backend = BackendStatic
	}
	op := cfg.Secrets.OnePassword

	switch backend {
	case BackendStatic:
		return StaticToken(cfg.Agent.Token), nil

	case BackendOnePassword:
		return NewOnePasswordToken(op, logger)

	case BackendAuto:
		if op.Host != "" && op.Token != "" && op.Item != "" {
			src, err := NewOnePasswordToken(op, logger)
			if err != nil {
				logger.Warn("failed to initialize 1Password, falling back to static token", "error", err)
				return StaticToken(cfg.Agent.Token), nil
			}
			return src, nil
		}
		logger.Info("1Password Connect not configured, using static token")
		return StaticToken(cfg.Agent.Token), nil

	default:
		return nil, fmt.Errorf("unknown secrets backend: %s", backend)
	}
}
