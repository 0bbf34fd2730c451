package types

import (
	"encoding/json"
	"reflect"
	"strings"
	"testing"
)

func TestParseInboundFrame(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    Command
		wantErr bool
	}{
		{
			name:  "full",
			input: `{"type":"execute","command":"dir","commandId":"c9","requireConfirmation":true}`,
			want:  Command{Text: "dir", ID: NewCommandID("c9"), RequireConfirmation: true},
		},
		{
			name:  "minimal",
			input: `{"type":"execute","command":"uptime"}`,
			want:  Command{Text: "uptime"},
		},
		{
			name:  "empty command is still a command",
			input: `{"type":"execute","command":""}`,
			want:  Command{Text: ""},
		},
		{
			name:  "extra fields ignored",
			input: `{"type":"execute","command":"ls","priority":5}`,
			want:  Command{Text: "ls"},
		},
		{name: "missing command", input: `{"type":"execute"}`, wantErr: true},
		{name: "null command", input: `{"type":"execute","command":null}`, wantErr: true},
		{name: "not execute", input: `{"type":"get_quick_stats"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseInboundFrame([]byte(tt.input))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			got, err := f.ToCommand()
			if (err != nil) != tt.wantErr {
				t.Fatalf("ToCommand error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseInboundFrame_Invalid(t *testing.T) {
	for _, input := range []string{``, `{`, `"execute"`, `{"type":7}`} {
		if _, err := ParseInboundFrame([]byte(input)); err == nil {
			t.Errorf("%q: expected error", input)
		}
	}
}

func TestResultFrameJSON(t *testing.T) {
	res := CommandResult{Success: false, Output: "boom", ExitCode: 2}

	data, _ := json.Marshal(NewResultFrame(Command{Text: "false"}, res))
	if want := `{"type":"result","command":"false","output":"boom","success":false}`; string(data) != want {
		t.Errorf("without id:\n got %s\nwant %s", data, want)
	}

	data, _ = json.Marshal(NewResultFrame(Command{Text: "false", ID: NewCommandID("x1")}, res))
	if want := `{"type":"result","command":"false","output":"boom","success":false,"commandId":"x1"}`; string(data) != want {
		t.Errorf("with id:\n got %s\nwant %s", data, want)
	}
}

func TestDataFrameJSON(t *testing.T) {
	data, _ := json.Marshal(NewDataFrame(FrameHeartbeat, QuickStats{CPUPercent: 1.5}))
	if !strings.HasPrefix(string(data), `{"type":"heartbeat","data":{"cpu_percent":1.5`) {
		t.Errorf("got %s", data)
	}
}

func TestIdentity(t *testing.T) {
	id := Identity{ID: "a1", Nickname: "pc", Tags: []string{"lab", "win"}, Token: "secret"}

	if got := id.JoinedTags(); got != "lab,win" {
		t.Errorf("JoinedTags: %q", got)
	}
	if s := id.String(); strings.Contains(s, "secret") || !strings.Contains(s, "pc (a1)") {
		t.Errorf("String: %q", s)
	}
	if s := (Identity{ID: "a2", Nickname: "x"}).String(); !strings.Contains(s, "tags=[None]") {
		t.Errorf("no tags: %q", s)
	}

	data, _ := json.Marshal(id)
	if strings.Contains(string(data), "secret") {
		t.Errorf("token serialized: %s", data)
	}
}

func TestCommandValidate(t *testing.T) {
	for text, ok := range map[string]bool{"ls": true, "  ": false, "": false, "\techo\n": true} {
		if err := (Command{Text: text}).Validate(); (err == nil) != ok {
			t.Errorf("%q: err=%v", text, err)
		}
	}
}

func TestCommandIDEcho(t *testing.T) {
	tests := []struct {
		name   string
		id     string
		want   string // commandId as echoed, "" when omitted
		wantID string
	}{
		{name: "string", id: `"c1"`, want: `"c1"`, wantID: "c1"},
		{name: "number", id: `42`, want: `42`, wantID: "42"},
		{name: "object", id: `{"seq":7}`, want: `{"seq":7}`, wantID: `{"seq":7}`},
		{name: "null", id: `null`},
		{name: "empty string", id: `""`},
		{name: "zero", id: `0`},
		{name: "false", id: `false`},
		{name: "empty array", id: `[]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f, err := ParseInboundFrame([]byte(`{"type":"execute","command":"echo hi","commandId":` + tt.id + `}`))
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			cmd, err := f.ToCommand()
			if err != nil {
				t.Fatal(err)
			}
			if got := cmd.ID.String(); got != tt.wantID {
				t.Errorf("String: got %q, want %q", got, tt.wantID)
			}

			data, _ := json.Marshal(NewResultFrame(cmd, CommandResult{Success: true, Output: "hi\n"}))
			want := `{"type":"result","command":"echo hi","output":"hi\n","success":true}`
			if tt.want != "" {
				want = `{"type":"result","command":"echo hi","output":"hi\n","success":true,"commandId":` + tt.want + `}`
			}
			if string(data) != want {
				t.Errorf("got %s\nwant %s", data, want)
			}
		})
	}
}
