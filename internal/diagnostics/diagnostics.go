// Package diagnostics runs a fixed battery of read-only commands over an open
// connection and collects their results per label.
package diagnostics

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/eugenetaranov/sshcheck/internal/connector"
)

// DefaultCommandTimeout bounds each command in the battery.
const DefaultCommandTimeout = 15 * time.Second

// CommandResult is the full capture of one command.
type CommandResult struct {
	Label       string
	CommandLine string
	ExitCode    int
	Stdout      string
	Stderr      string
	Duration    time.Duration

	// Err is set when the command could not be run to completion.
	Err error
}

// OK reports whether the command ran and exited with status 0.
func (r CommandResult) OK() bool {
	return r.Err == nil && r.ExitCode == 0
}

// Entry reduces the result to its report form.
func (r CommandResult) Entry() Entry {
	switch {
	case r.Err != nil:
		return Entry{Label: r.Label, Error: r.Err.Error()}
	case r.ExitCode == 0:
		return Entry{Label: r.Label, OK: true, Output: r.Stdout}
	case r.Stderr != "":
		return Entry{Label: r.Label, Error: r.Stderr}
	default:
		return Entry{Label: r.Label, Error: fmt.Sprintf("Exit %d", r.ExitCode)}
	}
}

// Collector runs the battery sequentially over one connection.
type Collector struct {
	// CommandTimeout bounds each command independently.
	CommandTimeout time.Duration

	log *zap.Logger
}

// NewCollector creates a collector. A non-positive timeout selects
// DefaultCommandTimeout.
func NewCollector(timeout time.Duration, log *zap.Logger) *Collector {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Collector{CommandTimeout: timeout, log: log}
}

// Run executes every command in order and returns a report with one entry
// per label. A failing command never stops the remaining ones.
func (c *Collector) Run(ctx context.Context, conn connector.Connector) *Report {
	report := newReport()

	for _, spec := range Commands() {
		res := c.Execute(ctx, conn, spec)
		if res.OK() {
			c.log.Debug("command succeeded",
				zap.String("label", res.Label),
				zap.Duration("duration", res.Duration))
		} else {
			c.log.Info("command failed",
				zap.String("label", res.Label),
				zap.Int("exit_code", res.ExitCode),
				zap.Error(res.Err))
		}
		report.add(res.Entry())
	}

	return report
}

// Execute runs a single command under its own timeout. Errors and panics
// from the connector are captured in the result.
func (c *Collector) Execute(ctx context.Context, conn connector.Connector, spec CommandSpec) (res CommandResult) {
	res = CommandResult{Label: spec.Label, CommandLine: spec.CommandLine}

	ctx, cancel := context.WithTimeout(ctx, c.CommandTimeout)
	defer cancel()

	start := time.Now()
	defer func() {
		res.Duration = time.Since(start)
		if r := recover(); r != nil {
			res.Err = fmt.Errorf("command %q panicked: %v", spec.Label, r)
		}
	}()

	out, err := conn.Execute(ctx, spec.CommandLine)
	if err != nil {
		res.Err = err
		return res
	}
	if out == nil {
		res.Err = fmt.Errorf("no result for command %q", spec.Label)
		return res
	}

	res.ExitCode = out.ExitCode
	res.Stdout = decode(out.Stdout)
	res.Stderr = decode(out.Stderr)
	return res
}
