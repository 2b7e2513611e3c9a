// Package local provides a connector that runs commands on this machine.
package local

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"os/user"
	"runtime"
	"time"

	"github.com/eugenetaranov/sshcheck/internal/connector"
)

// waitDelay bounds how long Execute waits for output pipes after the
// process group has been killed.
const waitDelay = time.Second

// Connector executes commands through the local shell.
type Connector struct {
	shell     string
	shellArgs []string
}

// Option configures the local connector.
type Option func(*Connector)

// WithShell sets a custom shell for command execution.
func WithShell(shell string, args ...string) Option {
	return func(c *Connector) {
		c.shell = shell
		c.shellArgs = args
	}
}

// New creates a new local connector using /bin/sh -c.
func New(opts ...Option) *Connector {
	c := &Connector{
		shell:     "/bin/sh",
		shellArgs: []string{"-c"},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Connect checks that the platform can run the diagnostic commands.
func (c *Connector) Connect(ctx context.Context) error {
	switch runtime.GOOS {
	case "darwin", "linux":
		return nil
	default:
		return &connector.ConnectError{
			Kind: connector.KindProtocol,
			Err:  fmt.Errorf("unsupported platform: %s", runtime.GOOS),
		}
	}
}

// Execute runs cmd in the shell. The shell and everything it started are
// killed when ctx expires.
func (c *Connector) Execute(ctx context.Context, cmd string) (*connector.Result, error) {
	args := append(append([]string(nil), c.shellArgs...), cmd)
	execCmd := exec.CommandContext(ctx, c.shell, args...)
	killGroup(execCmd)
	execCmd.WaitDelay = waitDelay

	var stdout, stderr bytes.Buffer
	execCmd.Stdout = &stdout
	execCmd.Stderr = &stderr

	err := execCmd.Run()
	if ctxErr := ctx.Err(); ctxErr != nil {
		if errors.Is(ctxErr, context.DeadlineExceeded) {
			return nil, fmt.Errorf("command timed out: %w", ctxErr)
		}
		return nil, fmt.Errorf("command interrupted: %w", ctxErr)
	}

	result := &connector.Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) {
			return nil, fmt.Errorf("failed to execute command: %w", err)
		}
		result.ExitCode = exitErr.ExitCode()
	}

	return result, nil
}

// Close is a no-op for local connections.
func (c *Connector) Close() error {
	return nil
}

// String returns a description of the connection.
func (c *Connector) String() string {
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	u, err := user.Current()
	if err != nil {
		return "local://" + hostname
	}
	return fmt.Sprintf("local://%s@%s", u.Username, hostname)
}

// Ensure Connector implements the connector.Connector interface.
var _ connector.Connector = (*Connector)(nil)
