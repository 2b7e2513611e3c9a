// Package output provides formatted terminal output for login tests and
// diagnostics.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/eugenetaranov/sshcheck/internal/diagnostics"
	"github.com/eugenetaranov/sshcheck/internal/probe"
)

// Colors for terminal output.
const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorBlue   = "\033[34m"
	colorGray   = "\033[90m"
	colorBold   = "\033[1m"
)

// UnknownError is shown when a failed outcome carries no message.
const UnknownError = "Unknown error"

const footer = "Responsible use only: run this against systems you own or for which " +
	"you have explicit permission. Passwords are never stored."

// Output handles formatted output.
type Output struct {
	w        io.Writer
	useColor bool
	debug    bool
}

// New creates a new output handler.
func New(w io.Writer) *Output {
	return &Output{
		w:        w,
		useColor: true,
	}
}

// SetColor enables or disables color output.
func (o *Output) SetColor(enabled bool) {
	o.useColor = enabled
}

// SetDebug enables or disables debug output.
func (o *Output) SetDebug(enabled bool) {
	o.debug = enabled
}

// color returns the string wrapped in color codes if enabled.
func (o *Output) color(c, s string) string {
	if !o.useColor {
		return s
	}
	return c + s + colorReset
}

// Connecting announces a connection attempt.
func (o *Output) Connecting(target string) {
	o.printf("%s %s\n", o.color(colorGray, "Connecting to"), target)
}

// LoginResult prints the outcome of a login test as a single line.
func (o *Output) LoginResult(out probe.LoginOutcome) {
	if out.Success {
		o.printf("%s %s\n", o.color(colorGreen, "✓"), out.Message)
		return
	}
	o.printf("%s %s\n", o.color(colorRed, "✗"), orUnknown(out.Message))
}

// Diagnostics prints one block per label, headed by the upper-cased label.
// A connection failure prints only the error.
func (o *Output) Diagnostics(target string, out probe.DiagnosticsOutcome) {
	if !out.Success || out.Report == nil {
		o.printf("%s %s\n", o.color(colorRed, "✗"), orUnknown(out.Error))
		return
	}

	o.printf("\n%s %s\n", o.color(colorBold, "DIAGNOSTICS"), target)
	for _, e := range out.Report.Entries() {
		if e.OK {
			o.printf("\n  %s %s\n", o.color(colorGreen, "✓"), o.color(colorBold, strings.ToUpper(e.Label)))
			o.block(e.Output, "")
			continue
		}
		o.printf("\n  %s %s\n", o.color(colorRed, "✗"), o.color(colorBold, strings.ToUpper(e.Label)))
		o.block(e.Error, colorRed)
	}

	if failed := out.Report.Failed(); len(failed) > 0 {
		o.printf("\n%s %s\n", o.color(colorYellow, "failed:"), strings.Join(failed, ", "))
	}
}

func (o *Output) block(text, c string) {
	if text == "" {
		o.printf("    %s\n", o.color(colorGray, "(no output)"))
		return
	}
	for _, line := range strings.Split(text, "\n") {
		if c != "" {
			line = o.color(c, line)
		}
		o.printf("    %s\n", line)
	}
}

// Commands lists the diagnostic battery.
func (o *Output) Commands(specs []diagnostics.CommandSpec) {
	width := 0
	for _, s := range specs {
		width = max(width, len(s.Label))
	}
	for _, s := range specs {
		o.printf("  %-*s  %s\n", width, s.Label, o.color(colorGray, s.CommandLine))
	}
}

// Footer prints the responsible-use notice.
func (o *Output) Footer() {
	o.printf("\n%s\n", o.color(colorGray, footer))
}

// Info prints an informational message.
func (o *Output) Info(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorBlue, "INFO"), fmt.Sprintf(format, args...))
}

// Warn prints a warning message.
func (o *Output) Warn(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorYellow, "WARN"), fmt.Sprintf(format, args...))
}

// Error prints an error message.
func (o *Output) Error(format string, args ...any) {
	o.printf("%s %s\n", o.color(colorRed, "ERROR"), fmt.Sprintf(format, args...))
}

// Debug prints a debug message (only in debug mode).
func (o *Output) Debug(format string, args ...any) {
	if o.debug {
		o.printf("%s %s\n", o.color(colorGray, "DEBUG"), fmt.Sprintf(format, args...))
	}
}

func (o *Output) printf(format string, args ...any) {
	fmt.Fprintf(o.w, format, args...)
}

func orUnknown(msg string) string {
	if msg == "" {
		return UnknownError
	}
	return msg
}

// Encode writes v to w as "json" or "yaml".
func Encode(w io.Writer, format string, v any) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(v)
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		return fmt.Errorf("unsupported output format %q", format)
	}
}
