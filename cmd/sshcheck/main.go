// Package main is the entrypoint for the sshcheck CLI.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/eugenetaranov/sshcheck/internal/config"
	"github.com/eugenetaranov/sshcheck/internal/connector"
	"github.com/eugenetaranov/sshcheck/internal/diagnostics"
	"github.com/eugenetaranov/sshcheck/internal/logging"
	"github.com/eugenetaranov/sshcheck/internal/output"
	"github.com/eugenetaranov/sshcheck/internal/probe"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// PasswordEnv is read when --password is not given.
const PasswordEnv = "SSHCHECK_PASSWORD"

const (
	msgFillLogin       = "Please fill in all fields before testing."
	msgFillDiagnostics = "Please fill in all fields before fetching utilisation."
)

// errFailed signals a completed run whose outcome was a failure. The outcome
// has already been printed.
var errFailed = errors.New("check failed")

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(1)
	}
}

// options holds flag values shared by all commands.
type options struct {
	configFile string
	debug      bool
	noColor    bool
	format     string

	host           string
	user           string
	port           int
	password       string
	timeout        time.Duration
	commandTimeout time.Duration
	local          bool

	stdin          io.Reader
	stdout, stderr io.Writer

	// readPassword prompts for the password on the terminal.
	readPassword func() (string, error)
}

// app is built once flags are parsed.
type app struct {
	opts   *options
	cfg    *config.Config
	log    *zap.Logger
	out    *output.Output
	prober *probe.Prober
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	opts := &options{stdin: stdin, stdout: stdout, stderr: stderr}
	opts.readPassword = opts.promptPassword

	rootCmd := &cobra.Command{
		Use:   "sshcheck",
		Short: "sshcheck - SSH login tester and remote diagnostics",
		Long: `sshcheck tests password-based SSH logins and collects a fixed set of
read-only diagnostics (uptime, memory, disk, cpu) from the remote host.

Run it only against systems you own or are explicitly allowed to test.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&opts.configFile, "config", "", "Config file (default "+config.DefaultPath+")")
	flags.BoolVarP(&opts.debug, "debug", "d", false, "Enable debug logging")
	flags.BoolVar(&opts.noColor, "no-color", false, "Disable colored output")
	flags.StringVarP(&opts.format, "output", "o", config.FormatText, "Output format: text, json or yaml")

	flags.StringVarP(&opts.host, "host", "H", "", "Remote host (IP or DNS name)")
	flags.StringVarP(&opts.user, "user", "u", "", "Username")
	flags.IntVarP(&opts.port, "port", "p", connector.DefaultPort, "SSH port")
	flags.StringVar(&opts.password, "password", "", "Password (prefer "+PasswordEnv+" or the prompt)")
	flags.DurationVar(&opts.timeout, "timeout", connector.DefaultTimeout, "Connect and authentication timeout")
	flags.DurationVar(&opts.commandTimeout, "command-timeout", diagnostics.DefaultCommandTimeout, "Timeout for each diagnostic command")

	rootCmd.AddCommand(newLoginCmd(opts))
	rootCmd.AddCommand(newDiagnosticsCmd(opts))
	rootCmd.AddCommand(newCommandsCmd(opts))
	rootCmd.AddCommand(newHostsCmd(opts))

	return rootCmd
}

func newLoginCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "login [alias]",
		Short: "Test an SSH login",
		Long: `Open a connection, authenticate with the password and disconnect.

Examples:
  sshcheck login -H 192.168.1.42 -u admin
  SSHCHECK_PASSWORD=secret sshcheck login web -o json`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			return a.login(cmd, alias(args))
		},
	}
}

func newDiagnosticsCmd(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "diagnostics [alias]",
		Aliases: []string{"diag", "utilisation"},
		Short:   "Collect uptime, memory, disk and cpu from the remote host",
		Long: `Connect once and run the read-only diagnostic commands in order.
A failing command is reported in its own block and does not stop the others.

Examples:
  sshcheck diagnostics -H db.internal -u ops
  sshcheck diag web -o yaml
  sshcheck diagnostics --local`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			if opts.local {
				if len(args) > 0 {
					return fmt.Errorf("--local does not take a host alias")
				}
				return a.localDiagnostics(cmd)
			}
			return a.diagnostics(cmd, alias(args))
		},
	}
	cmd.Flags().BoolVar(&opts.local, "local", false, "Run the diagnostic commands on this machine instead of over SSH")
	return cmd
}

func newCommandsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "commands",
		Short: "List the diagnostic commands",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			if a.cfg.Output != config.FormatText {
				return output.Encode(opts.stdout, a.cfg.Output, diagnostics.Commands())
			}
			a.out.Commands(diagnostics.Commands())
			return nil
		},
	}
}

func newHostsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "hosts",
		Short: "List host aliases from the config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := opts.setup(cmd)
			if err != nil {
				return err
			}
			if a.cfg.Output != config.FormatText {
				return output.Encode(opts.stdout, a.cfg.Output, a.cfg.Hosts)
			}
			if len(a.cfg.Hosts) == 0 {
				a.out.Info("no host aliases configured")
				return nil
			}
			for _, name := range a.cfg.Aliases() {
				h := a.cfg.Hosts[name]
				p, err := a.cfg.Params(name, connector.Params{})
				if err != nil {
					return err
				}
				target := p.Address()
				if h.User != "" {
					target = h.User + "@" + target
				}
				fmt.Fprintf(opts.stdout, "  %-12s %s\n", name, target)
			}
			return nil
		},
	}
}

func alias(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

// setup loads configuration and builds the logger, printer and prober.
func (o *options) setup(cmd *cobra.Command) (*app, error) {
	cfg, err := config.Load(o.configFile, cmd.Flags())
	if err != nil {
		return nil, err
	}

	color := cfg.Color && !o.noColor
	log := logging.New(logging.Config{Debug: cfg.Debug, Color: color, Writer: o.stderr})
	if cfg.File != "" {
		log.Debug("using config file", zap.String("path", cfg.File))
	}

	out := output.New(o.stdout)
	out.SetColor(color)
	out.SetDebug(cfg.Debug)

	return &app{
		opts: o,
		cfg:  cfg,
		log:  log,
		out:  out,
		prober: probe.New(
			probe.WithLogger(log),
			probe.WithCommandTimeout(cfg.CommandTimeout),
		),
	}, nil
}

// params resolves connection parameters from flags, alias and config. It
// returns ok=false after printing fillMsg when a required field is empty.
func (a *app) params(cmd *cobra.Command, name, fillMsg string) (connector.Params, bool, error) {
	p := connector.Params{
		Host: strings.TrimSpace(a.opts.host),
		User: strings.TrimSpace(a.opts.user),
	}
	if cmd.Flags().Changed("port") {
		p.Port = a.opts.port
	}

	p, err := a.cfg.Params(name, p)
	if err != nil {
		return p, false, err
	}

	p.Password, err = a.password(p)
	if err != nil {
		return p, false, err
	}

	if missing := p.Missing(); len(missing) > 0 {
		a.log.Debug("missing connection fields", zap.Strings("fields", missing))
		a.out.Error("%s", fillMsg)
		return p, false, nil
	}
	if err := p.Validate(); err != nil {
		return p, false, err
	}
	return p, true, nil
}

// password returns the flag value, then the environment, then prompts when
// stdin is a terminal and the rest of the target is known.
func (a *app) password(p connector.Params) (string, error) {
	if a.opts.password != "" {
		return a.opts.password, nil
	}
	if pw := os.Getenv(PasswordEnv); pw != "" {
		return pw, nil
	}
	if p.Host == "" || p.User == "" || a.opts.readPassword == nil {
		return "", nil
	}
	return a.opts.readPassword()
}

func (o *options) promptPassword() (string, error) {
	f, ok := o.stdin.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return "", nil
	}
	fmt.Fprint(o.stderr, "Password: ")
	b, err := term.ReadPassword(int(f.Fd()))
	fmt.Fprintln(o.stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(b), nil
}

func (a *app) login(cmd *cobra.Command, name string) error {
	p, ok, err := a.params(cmd, name, msgFillLogin)
	if err != nil || !ok {
		return failure(err)
	}

	ctx, cancel := a.signalContext(cmd.Context())
	defer cancel()

	text := a.cfg.Output == config.FormatText
	if text {
		a.out.Connecting(p.String())
	}
	res := a.prober.AttemptLogin(ctx, p)

	if text {
		a.out.LoginResult(res)
		a.out.Footer()
	} else if err := output.Encode(a.opts.stdout, a.cfg.Output, res); err != nil {
		return err
	}

	if !res.Success {
		return errFailed
	}
	return nil
}

func (a *app) diagnostics(cmd *cobra.Command, name string) error {
	p, ok, err := a.params(cmd, name, msgFillDiagnostics)
	if err != nil || !ok {
		return failure(err)
	}

	ctx, cancel := a.signalContext(cmd.Context())
	defer cancel()

	text := a.cfg.Output == config.FormatText
	if text {
		a.out.Connecting(p.String())
	}
	res := a.prober.CollectDiagnostics(ctx, p)
	return a.printDiagnostics(p.String(), res)
}

func (a *app) localDiagnostics(cmd *cobra.Command) error {
	ctx, cancel := a.signalContext(cmd.Context())
	defer cancel()

	return a.printDiagnostics("local", a.prober.CollectLocalDiagnostics(ctx))
}

func (a *app) printDiagnostics(target string, res probe.DiagnosticsOutcome) error {
	if a.cfg.Output == config.FormatText {
		a.out.Diagnostics(target, res)
		a.out.Footer()
	} else if err := output.Encode(a.opts.stdout, a.cfg.Output, res); err != nil {
		return err
	}

	if !res.Success {
		return errFailed
	}
	return nil
}

func failure(err error) error {
	if err != nil {
		return err
	}
	return errFailed
}

// signalContext cancels on SIGINT or SIGTERM.
func (a *app) signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := context.WithCancel(parent)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(a.opts.stderr, "\nInterrupted, closing connection...")
			cancel()
		case <-ctx.Done():
		}
	}()

	return ctx, func() {
		signal.Stop(sigCh)
		cancel()
	}
}
