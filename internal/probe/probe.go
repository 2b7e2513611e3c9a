// Package probe exposes the two operations offered to callers: testing an SSH
// login and collecting remote diagnostics.
package probe

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/eugenetaranov/sshcheck/internal/connector"
	"github.com/eugenetaranov/sshcheck/internal/connector/local"
	"github.com/eugenetaranov/sshcheck/internal/connector/ssh"
	"github.com/eugenetaranov/sshcheck/internal/diagnostics"
	"github.com/eugenetaranov/sshcheck/internal/session"
)

// Messages returned to callers.
const (
	MsgLoginSuccess    = "Login successful!"
	MsgLoginAuthFailed = "Authentication failed – bad username or password."
	MsgDiagAuthFailed  = "Authentication failed"

	prefixSSHError   = "SSH error: "
	prefixConnFailed = "Connection failed: "
)

// LoginOutcome is the result of a login test.
type LoginOutcome struct {
	Success bool   `json:"success" yaml:"success"`
	Message string `json:"message" yaml:"message"`
}

// DiagnosticsOutcome is the result of a diagnostics run. Success means the
// connection was established and the batch ran; per-command failures are
// inside Report.
type DiagnosticsOutcome struct {
	Success bool                `json:"success" yaml:"success"`
	Report  *diagnostics.Report `json:"data,omitempty" yaml:"data,omitempty"`
	Error   string              `json:"error,omitempty" yaml:"error,omitempty"`
}

// ConnectorFactory creates an unconnected connector for params.
type ConnectorFactory func(params connector.Params, log *zap.Logger) connector.Connector

// Prober runs login tests and diagnostics. Each call opens and closes its
// own connection.
type Prober struct {
	newConn        ConnectorFactory
	commandTimeout time.Duration
	log            *zap.Logger
}

// Option configures a Prober.
type Option func(*Prober)

// WithConnectorFactory replaces how connections are created.
func WithConnectorFactory(f ConnectorFactory) Option {
	return func(p *Prober) {
		p.newConn = f
	}
}

// WithCommandTimeout bounds each diagnostic command.
func WithCommandTimeout(d time.Duration) Option {
	return func(p *Prober) {
		p.commandTimeout = d
	}
}

// WithLogger sets the logger.
func WithLogger(log *zap.Logger) Option {
	return func(p *Prober) {
		if log != nil {
			p.log = log
		}
	}
}

// New creates a Prober that connects over SSH.
func New(opts ...Option) *Prober {
	p := &Prober{
		newConn:        newSSHConnector,
		commandTimeout: diagnostics.DefaultCommandTimeout,
		log:            zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func newSSHConnector(params connector.Params, log *zap.Logger) connector.Connector {
	return ssh.New(params, ssh.WithLogger(log))
}

// AttemptLogin opens a connection, authenticates and closes it again.
func (p *Prober) AttemptLogin(ctx context.Context, params connector.Params) (out LoginOutcome) {
	params = withDefaults(params)
	log := p.opLogger("login", zap.Object("target", params))

	defer func() {
		if r := recover(); r != nil {
			log.Error("login attempt panicked", zap.Any("panic", r))
			out = LoginOutcome{Message: prefixConnFailed + fmt.Sprint(r)}
		}
	}()

	log.Info("attempting login")
	conn := p.newConn(params, log)
	err := session.With(ctx, log, conn, func(context.Context, connector.Connector) error {
		return nil
	})

	out = loginOutcome(err)
	if err != nil {
		log.Info("login failed", zap.Stringer("kind", connector.KindOf(err)), zap.Error(err))
	} else {
		log.Info("login succeeded")
	}
	return out
}

func loginOutcome(err error) LoginOutcome {
	if err == nil {
		return LoginOutcome{Success: true, Message: MsgLoginSuccess}
	}

	switch connector.KindOf(err) {
	case connector.KindAuth:
		return LoginOutcome{Message: MsgLoginAuthFailed}
	case connector.KindProtocol:
		return LoginOutcome{Message: prefixSSHError + connector.Detail(err)}
	default:
		return LoginOutcome{Message: prefixConnFailed + connector.Detail(err)}
	}
}

// CollectDiagnostics connects and runs the diagnostic battery over that one
// connection. If the connection cannot be established no command is run.
func (p *Prober) CollectDiagnostics(ctx context.Context, params connector.Params) DiagnosticsOutcome {
	params = withDefaults(params)
	log := p.opLogger("diagnostics", zap.Object("target", params))

	return p.collect(ctx, log, func() connector.Connector {
		return p.newConn(params, log)
	})
}

// CollectLocalDiagnostics runs the diagnostic battery on this machine.
func (p *Prober) CollectLocalDiagnostics(ctx context.Context) DiagnosticsOutcome {
	log := p.opLogger("diagnostics", zap.String("target", "local"))

	return p.collect(ctx, log, func() connector.Connector {
		return local.New()
	})
}

func (p *Prober) collect(ctx context.Context, log *zap.Logger, newConn func() connector.Connector) (out DiagnosticsOutcome) {
	defer func() {
		if r := recover(); r != nil {
			log.Error("diagnostics panicked", zap.Any("panic", r))
			out = DiagnosticsOutcome{Error: prefixConnFailed + fmt.Sprint(r)}
		}
	}()

	log.Info("collecting diagnostics")
	collector := diagnostics.NewCollector(p.commandTimeout, log)

	var report *diagnostics.Report
	err := session.With(ctx, log, newConn(), func(ctx context.Context, c connector.Connector) error {
		report = collector.Run(ctx, c)
		return nil
	})
	if err != nil {
		log.Info("diagnostics aborted", zap.Stringer("kind", connector.KindOf(err)), zap.Error(err))
		return DiagnosticsOutcome{Error: diagnosticsError(err)}
	}

	log.Info("diagnostics collected", zap.Strings("failed", report.Failed()))
	return DiagnosticsOutcome{Success: true, Report: report}
}

// diagnosticsError folds protocol failures into the connection bucket.
func diagnosticsError(err error) string {
	if connector.KindOf(err) == connector.KindAuth {
		return MsgDiagAuthFailed
	}
	return prefixConnFailed + connector.Detail(err)
}

func (p *Prober) opLogger(op string, target zap.Field) *zap.Logger {
	return p.log.With(
		zap.String("op", op),
		zap.String("op_id", uuid.NewString()),
		target,
	)
}

func withDefaults(params connector.Params) connector.Params {
	if params.Port == 0 {
		params.Port = connector.DefaultPort
	}
	if params.Timeout <= 0 {
		params.Timeout = connector.DefaultTimeout
	}
	return params
}
