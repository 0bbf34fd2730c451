package secrets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/1Password/connect-sdk-go/connect"
	"github.com/1Password/connect-sdk-go/onepassword"

	"github.com/pilot-net/remote-agent/agent/internal/config"
)

// ErrTokenNotFound is returned when the item or field does not exist.
var ErrTokenNotFound = errors.New("token not found in vault")

// ItemGetter is the part of the Connect client used to read the token.
type ItemGetter interface {
	GetItemsByTitle(title string, vaultUUID string) ([]onepassword.Item, error)
	GetItem(itemUUID string, vaultUUID string) (*onepassword.Item, error)
}

// OnePasswordToken reads the agent token from 1Password Connect.
//
// Configuration is via environment variables:
//   - OP_CONNECT_HOST: URL of the 1Password Connect server
//   - OP_CONNECT_TOKEN: Access token for the Connect server
//   - OP_VAULT_ID: UUID of the vault holding the item
//   - AGENT_TOKEN_ITEM: title of the item
//   - AGENT_TOKEN_FIELD: label or ID of the field (default "token")
type OnePasswordToken struct {
	client  ItemGetter
	vaultID string
	item    string
	field   string
	logger  *slog.Logger
}

// NewOnePasswordToken creates a Connect-backed token source.
func NewOnePasswordToken(cfg config.OnePasswordConfig, logger *slog.Logger) (*OnePasswordToken, error) {
	if cfg.Host == "" || cfg.Token == "" || cfg.VaultID == "" || cfg.Item == "" {
		return nil, fmt.Errorf("1Password configuration incomplete: host, token, vault_id and item are required")
	}
	client := connect.NewClientWithUserAgent(cfg.Host, cfg.Token, "remote-agent")
	return newOnePasswordToken(client, cfg, logger), nil
}

func newOnePasswordToken(client ItemGetter, cfg config.OnePasswordConfig, logger *slog.Logger) *OnePasswordToken {
	if logger == nil {
		logger = slog.Default()
	}
	field := cfg.Field
	if field == "" {
		field = "token"
	}
	return &OnePasswordToken{
		client:  client,
		vaultID: cfg.VaultID,
		item:    cfg.Item,
		field:   field,
		logger:  logger,
	}
}

// Token fetches the field value.
func (s *OnePasswordToken) Token(ctx context.Context) (string, error) {
	items, err := s.client.GetItemsByTitle(s.item, s.vaultID)
	if err != nil {
		if isNotFoundError(err) {
			return "", fmt.Errorf("item %q: %w", s.item, ErrTokenNotFound)
		}
		return "", fmt.Errorf("listing items: %w", err)
	}
	if len(items) == 0 {
		return "", fmt.Errorf("item %q: %w", s.item, ErrTokenNotFound)
	}

	// list results carry no field values
	item, err := s.client.GetItem(items[0].ID, s.vaultID)
	if err != nil {
		return "", fmt.Errorf("getting item: %w", err)
	}

	for _, f := range item.Fields {
		if f == nil {
			continue
		}
		if f.ID == s.field || strings.EqualFold(f.Label, s.field) {
			if f.Value == "" {
				break
			}
			s.logger.Info("agent token loaded from 1Password", "item", s.item, "field", s.field)
			return f.Value, nil
		}
	}
	return "", fmt.Errorf("field %q of item %q: %w", s.field, s.item, ErrTokenNotFound)
}

// isNotFoundError checks if an error is a "not found" error from 1Password.
func isNotFoundError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not found") || strings.Contains(msg, "404") || strings.Contains(msg, "no items")
}
