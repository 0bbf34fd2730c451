// Package types defines the wire types shared between the agent and the control server.
//
// # Design Principles
//
//  1. Simplicity: Types mirror the JSON frames on the wire, nothing more
//  2. Serialization: Every frame is a JSON object with a "type" discriminator
//  3. Immutability: Identity and commands are values, set once and passed around
//  4. Validation: Inbound types include Validate() methods
package types

import (
	"fmt"
	"strings"
)

// =============================================================================
// IDENTITY
// =============================================================================

// Identity is the agent's immutable identity, sent as handshake metadata.
type Identity struct {
	ID       string   `json:"id" yaml:"id"`
	Nickname string   `json:"nickname" yaml:"nickname"`
	Tags     []string `json:"tags" yaml:"tags"`
	Token    string   `json:"-" yaml:"-"`
}

// JoinedTags returns the tags comma-joined, as sent in X-Agent-Tags.
func (i Identity) JoinedTags() string {
	return strings.Join(i.Tags, ",")
}

// String renders the identity for logs. The token is never included.
func (i Identity) String() string {
	tags := "None"
	if len(i.Tags) > 0 {
		tags = strings.Join(i.Tags, ", ")
	}
	return fmt.Sprintf("%s (%s) tags=[%s]", i.Nickname, i.ID, tags)
}

// =============================================================================
// COMMAND
// =============================================================================

// Command is a shell command requested by the server. Scoped to one
// request/response exchange.
type Command struct {
	Text                string
	ID                  CommandID // empty when the request carried none
	RequireConfirmation bool
}

// Validate checks that the command has something to run.
func (c Command) Validate() error {
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("command text is required")
	}
	return nil
}

// CommandResult is the outcome of running a Command.
// ExitCode is -1 when the command timed out or could not be run at all.
type CommandResult struct {
	Success  bool   `json:"success"`
	Output   string `json:"output"`
	ExitCode int    `json:"exitCode"`
}

// Output returned for commands that exceed their timeout.
const TimedOutOutput = "Command timed out"
