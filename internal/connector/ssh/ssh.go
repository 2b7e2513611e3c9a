// Package ssh provides a password-authenticated SSH connector.
package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/ssh"

	"github.com/eugenetaranov/sshcheck/internal/connector"
)

// DialFunc opens the raw transport to the SSH server.
type DialFunc func(ctx context.Context, network, addr string) (net.Conn, error)

// Connector executes commands on a remote host over a single SSH connection.
type Connector struct {
	params connector.Params
	dial   DialFunc
	log    *zap.Logger

	mu     sync.Mutex
	client *ssh.Client

	closeOnce sync.Once
	closeErr  error
}

// Option configures the SSH connector.
type Option func(*Connector)

// WithDialer replaces the TCP dialer.
func WithDialer(dial DialFunc) Option {
	return func(c *Connector) {
		c.dial = dial
	}
}

// WithLogger sets the logger used for connection events.
func WithLogger(log *zap.Logger) Option {
	return func(c *Connector) {
		if log != nil {
			c.log = log
		}
	}
}

// New creates a new SSH connector for the given parameters.
func New(params connector.Params, opts ...Option) *Connector {
	c := &Connector{
		params: params,
		log:    zap.NewNop(),
	}

	var d net.Dialer
	c.dial = d.DialContext

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// clientConfig builds the client configuration. Only password authentication
// is offered and any host key is accepted.
func (c *Connector) clientConfig() *ssh.ClientConfig {
	return &ssh.ClientConfig{
		User: c.params.User,
		Auth: []ssh.AuthMethod{
			ssh.Password(c.params.Password),
		},
		HostKeyCallback: ssh.InsecureIgnoreHostKey(),
		Timeout:         c.params.Timeout,
	}
}

// Connect dials the host and performs the SSH handshake and authentication.
// The whole step is bounded by the configured timeout. Failures are returned
// as *connector.ConnectError.
func (c *Connector) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	timeout := c.params.Timeout
	if timeout <= 0 {
		timeout = connector.DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	addr := c.params.Address()
	c.log.Debug("dialing", zap.Object("target", c.params))

	conn, err := c.dial(ctx, "tcp", addr)
	if err != nil {
		return &connector.ConnectError{Kind: connector.KindNetwork, Err: err}
	}

	// The handshake has no context support; the deadline bounds it and the
	// context can cut it short.
	deadline, _ := ctx.Deadline()
	_ = conn.SetDeadline(deadline)
	stop := context.AfterFunc(ctx, func() {
		_ = conn.SetDeadline(time.Now())
	})

	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, c.clientConfig())
	stop()
	if err != nil {
		conn.Close()
		return classify(ctx, err)
	}
	_ = conn.SetDeadline(time.Time{})

	c.client = ssh.NewClient(sshConn, chans, reqs)
	c.log.Debug("connected",
		zap.Object("target", c.params),
		zap.String("server_version", string(sshConn.ServerVersion())))

	return nil
}

// classify maps a handshake error to a connection failure kind.
func classify(ctx context.Context, err error) *connector.ConnectError {
	switch {
	case isAuthFailure(err):
		return &connector.ConnectError{Kind: connector.KindAuth, Err: err}
	case isTimeout(err) || ctx.Err() != nil:
		return &connector.ConnectError{Kind: connector.KindNetwork, Err: err}
	default:
		return &connector.ConnectError{Kind: connector.KindProtocol, Err: err}
	}
}

func isAuthFailure(err error) bool {
	return strings.Contains(err.Error(), "unable to authenticate")
}

func isTimeout(err error) bool {
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return strings.Contains(err.Error(), "i/o timeout")
}

// Execute runs a command in a new channel on the open connection.
// Stdout and stderr are captured separately. If ctx expires first the
// remote process is killed and an error is returned.
func (c *Connector) Execute(ctx context.Context, cmd string) (*connector.Result, error) {
	c.mu.Lock()
	client := c.client
	c.mu.Unlock()

	if client == nil {
		return nil, fmt.Errorf("SSH connection not established")
	}

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() {
		done <- session.Run(cmd)
	}()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		_ = session.Close()
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("command timed out: %w", ctx.Err())
		}
		return nil, fmt.Errorf("command interrupted: %w", ctx.Err())

	case err = <-done:
	}

	result := &connector.Result{
		Stdout: stdout.String(),
		Stderr: stderr.String(),
	}

	if err != nil {
		var exitErr *ssh.ExitError
		var missingErr *ssh.ExitMissingError
		switch {
		case errors.As(err, &exitErr):
			result.ExitCode = exitErr.ExitStatus()
		case errors.As(err, &missingErr):
			return nil, fmt.Errorf("remote command exited without status: %w", err)
		default:
			return nil, fmt.Errorf("failed to execute command: %w", err)
		}
	}

	return result, nil
}

// Close terminates the connection. Only the first call has an effect.
func (c *Connector) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		defer c.mu.Unlock()

		if c.client == nil {
			return
		}
		c.closeErr = c.client.Close()
		c.log.Debug("disconnected", zap.Object("target", c.params))
	})
	return c.closeErr
}

// String returns a description of the connection.
func (c *Connector) String() string {
	return "ssh://" + c.params.String()
}

// Ensure Connector implements the connector.Connector interface.
var _ connector.Connector = (*Connector)(nil)
