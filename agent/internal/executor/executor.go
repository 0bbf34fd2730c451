// Package executor runs server-issued shell commands.
//
// # Contract
//
// Execute runs one command line through the host shell under a timeout:
//
//   - exit code 0: success, output is stdout (stderr if stdout is empty)
//   - non-zero exit: failure, same output rule, the real exit code
//   - timeout: failure, output "Command timed out", exit code -1
//   - could not start: failure, the error text, exit code -1
//
// Run adds the confirmation gate and the single in-flight slot on top.
// A command started by Run is never cancelled by its caller; it finishes
// or hits its own timeout.
package executor

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/pilot-net/remote-agent/pkg/types"
)

// ErrDeclined is returned by Run when the operator refused a command.
var ErrDeclined = errors.New("command declined")

// Config for the executor.
type Config struct {
	// Timeout applied to every command run through Run. Default: 30s
	Timeout time.Duration

	// Shell is the interpreter. Default: sh, cmd on windows
	Shell string

	// Confirmer gates commands that require confirmation. Default: a
	// TerminalConfirmer on the process's stdin/stdout.
	Confirmer Confirmer

	Logger *slog.Logger
}

// Executor runs commands, one at a time.
type Executor struct {
	timeout   time.Duration
	shell     string
	shellFlag string
	confirmer Confirmer
	logger    *slog.Logger

	// slot holds a token while a command is running.
	slot chan struct{}
}

// New creates an executor.
func New(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Shell == "" {
		cfg.Shell = defaultShell(runtime.GOOS)
	}
	if cfg.Confirmer == nil {
		cfg.Confirmer = NewTerminalConfirmer(cfg.Logger)
	}
	return &Executor{
		timeout:   cfg.Timeout,
		shell:     cfg.Shell,
		shellFlag: shellFlag(cfg.Shell),
		confirmer: cfg.Confirmer,
		logger:    cfg.Logger.With("component", "executor"),
		slot:      make(chan struct{}, 1),
	}
}

func defaultShell(goos string) string {
	if goos == "windows" {
		return "cmd"
	}
	return "sh"
}

// shellFlag returns the flag that makes shell run a command string.
func shellFlag(shell string) string {
	// either separator, so windows paths resolve on any host
	name := strings.ToLower(shell[strings.LastIndexAny(shell, `/\`)+1:])
	name = strings.TrimSuffix(name, ".exe")
	switch name {
	case "cmd":
		return "/C"
	case "powershell", "pwsh":
		return "-Command"
	default:
		return "-c"
	}
}

// Timeout returns the per-command timeout used by Run.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Run executes cmd once any required confirmation is given. The returned
// error is ErrDeclined, or ctx's error if the caller stopped waiting; the
// command itself keeps running in that case.
func (e *Executor) Run(ctx context.Context, cmd types.Command) (types.CommandResult, error) {
	if cmd.RequireConfirmation {
		ok, err := e.confirmer.Confirm(ctx, cmd)
		if err != nil {
			e.logger.Warn("confirmation failed, declining", "command", cmd.Text, "error", err)
			ok = false
		}
		if !ok {
			e.logger.Info("command declined", "command", cmd.Text, "command_id", cmd.ID.String())
			return types.CommandResult{}, ErrDeclined
		}
	}

	if err := cmd.Validate(); err != nil {
		return types.CommandResult{Success: false, Output: err.Error(), ExitCode: -1}, nil
	}

	select {
	case e.slot <- struct{}{}:
	case <-ctx.Done():
		return types.CommandResult{}, ctx.Err()
	}

	e.logger.Info("executing command", "command", cmd.Text, "command_id", cmd.ID.String())

	done := make(chan types.CommandResult, 1)
	go func() {
		defer func() { <-e.slot }()
		start := time.Now()
		res := e.Execute(context.WithoutCancel(ctx), cmd.Text, e.timeout)
		e.logger.Info("command completed",
			"command_id", cmd.ID.String(),
			"success", res.Success,
			"exit_code", res.ExitCode,
			"duration", time.Since(start))
		done <- res
	}()

	select {
	case res := <-done:
		return res, nil
	case <-ctx.Done():
		return types.CommandResult{}, ctx.Err()
	}
}

// Execute runs text through the shell and waits for it, at most timeout.
func (e *Executor) Execute(ctx context.Context, text string, timeout time.Duration) types.CommandResult {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.shell, e.shellFlag, text)
	// children that inherited the pipes must not hold Wait open
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return types.CommandResult{Success: false, Output: types.TimedOutOutput, ExitCode: -1}
	}

	output := stdout.String()
	if output == "" {
		output = stderr.String()
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return types.CommandResult{Success: false, Output: output, ExitCode: exitErr.ExitCode()}
		}
		return types.CommandResult{Success: false, Output: err.Error(), ExitCode: -1}
	}

	return types.CommandResult{Success: true, Output: output, ExitCode: 0}
}
