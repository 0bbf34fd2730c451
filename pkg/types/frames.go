package types

import (
	"encoding/json"
	"fmt"
)

// FrameType discriminates protocol frames.
type FrameType string

const (
	// Inbound (server -> agent)
	FrameExecute       FrameType = "execute"
	FrameGetSystemInfo FrameType = "get_system_info"
	FrameGetQuickStats FrameType = "get_quick_stats"

	// Outbound (agent -> server)
	FrameAgentInfo  FrameType = "agent_info"
	FrameResult     FrameType = "result"
	FrameSystemInfo FrameType = "system_info"
	FrameQuickStats FrameType = "quick_stats"
	FrameHeartbeat  FrameType = "heartbeat"
)

// CommandID correlates a result with its execute request. It holds the
// raw JSON value, so a string, number or object comes back exactly as the
// server sent it. Absent, null and falsy values ("", 0, false, [], {})
// decode to an empty ID, which is never echoed.
type CommandID []byte

// NewCommandID creates a string ID.
func NewCommandID(s string) CommandID {
	if s == "" {
		return nil
	}
	data, _ := json.Marshal(s)
	return data
}

// IsZero reports whether the request carried no usable ID.
func (id CommandID) IsZero() bool {
	return len(id) == 0
}

// String returns a string ID unquoted and any other value as raw JSON.
func (id CommandID) String() string {
	var s string
	if err := json.Unmarshal(id, &s); err == nil {
		return s
	}
	return string(id)
}

// MarshalJSON writes the ID as received.
func (id CommandID) MarshalJSON() ([]byte, error) {
	if len(id) == 0 {
		return []byte("null"), nil
	}
	return id, nil
}

// UnmarshalJSON keeps a copy of the raw value.
func (id *CommandID) UnmarshalJSON(data []byte) error {
	if falsy(data) {
		*id = nil
		return nil
	}
	*id = append(CommandID(nil), data...)
	return nil
}

func falsy(data []byte) bool {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return x == ""
	case float64:
		return x == 0
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// InboundFrame is the union of every field a server frame may carry.
// Only Type is common; the rest depend on it.
type InboundFrame struct {
	Type                FrameType `json:"type"`
	Command             *string   `json:"command,omitempty"`
	CommandID           CommandID `json:"commandId,omitempty"`
	RequireConfirmation bool      `json:"requireConfirmation,omitempty"`
}

// ParseInboundFrame decodes a single frame.
func ParseInboundFrame(data []byte) (InboundFrame, error) {
	var f InboundFrame
	if err := json.Unmarshal(data, &f); err != nil {
		return InboundFrame{}, fmt.Errorf("decoding frame: %w", err)
	}
	return f, nil
}

// ToCommand converts an execute frame into a Command.
func (f InboundFrame) ToCommand() (Command, error) {
	if f.Type != FrameExecute {
		return Command{}, fmt.Errorf("frame type %q is not %q", f.Type, FrameExecute)
	}
	if f.Command == nil {
		return Command{}, fmt.Errorf("execute frame is missing command")
	}
	return Command{
		Text:                *f.Command,
		ID:                  f.CommandID,
		RequireConfirmation: f.RequireConfirmation,
	}, nil
}

// ResultFrame reports a finished command. CommandID is omitted entirely
// when the request did not carry one.
type ResultFrame struct {
	Type      FrameType `json:"type"`
	Command   string    `json:"command"`
	Output    string    `json:"output"`
	Success   bool      `json:"success"`
	CommandID CommandID `json:"commandId,omitempty"`
}

// NewResultFrame builds the reply to an execute request.
func NewResultFrame(cmd Command, res CommandResult) ResultFrame {
	return ResultFrame{
		Type:      FrameResult,
		Command:   cmd.Text,
		Output:    res.Output,
		Success:   res.Success,
		CommandID: cmd.ID,
	}
}

// DataFrame carries a telemetry payload: agent_info, system_info,
// quick_stats and heartbeat.
type DataFrame struct {
	Type FrameType `json:"type"`
	Data any       `json:"data"`
}

// NewDataFrame wraps payload in a frame of the given type.
func NewDataFrame(t FrameType, payload any) DataFrame {
	return DataFrame{Type: t, Data: payload}
}
