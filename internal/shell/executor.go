// Package shell runs chat-submitted command lines through a host shell.
package shell

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/reedfamily/craftbridge/internal/metrics"
)

var ErrCommandFailed = errors.New("shell: command failed")

// CommandFailedError reports a command that ran but exited non-zero.
type CommandFailedError struct {
	ExitCode int
	Stderr   string
}

func (e *CommandFailedError) Error() string {
	if e.Stderr == "" {
		return fmt.Sprintf("shell: exit status %d", e.ExitCode)
	}
	return fmt.Sprintf("shell: exit status %d: %s", e.ExitCode, strings.TrimSpace(e.Stderr))
}

func (e *CommandFailedError) Unwrap() error { return ErrCommandFailed }

// Runner is what the bridge needs from a shell.
type Runner interface {
	Run(ctx context.Context, text string) (string, error)
}

// Executor runs text as the final argument of Program Args...
type Executor struct {
	Program string
	Args    []string
	Dir     string
	Timeout time.Duration
}

// New returns an executor for program. "pwsh" and "powershell" get
// -NoProfile -Command, anything else is treated as a POSIX shell with -c.
func New(program string, timeout time.Duration) *Executor {
	if program == "" {
		program = "sh"
	}
	args := []string{"-c"}
	switch strings.ToLower(program) {
	case "pwsh", "powershell", "pwsh.exe", "powershell.exe":
		args = []string{"-NoProfile", "-NonInteractive", "-Command"}
	}
	return &Executor{Program: program, Args: args, Timeout: timeout}
}

// Run executes text and returns its standard output. A non-zero exit
// yields *CommandFailedError; failure to start at all is returned as is.
func (e *Executor) Run(ctx context.Context, text string) (string, error) {
	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, e.Program, append(append([]string{}, e.Args...), text)...)
	cmd.Dir = e.Dir
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	var exitErr *exec.ExitError
	switch {
	case err == nil:
		metrics.ShellRun("ok")
		return stdout.String(), nil
	case errors.As(err, &exitErr):
		metrics.ShellRun("failed")
		return stdout.String(), &CommandFailedError{ExitCode: exitErr.ExitCode(), Stderr: stderr.String()}
	default:
		metrics.ShellRun("error")
		return "", fmt.Errorf("run %s: %w", e.Program, err)
	}
}
