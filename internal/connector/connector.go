// Package connector defines the interface for executing commands on remote hosts.
package connector

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap/zapcore"
)

// Default connection settings.
const (
	DefaultPort    = 22
	DefaultTimeout = 10 * time.Second
)

// Result holds the output from command execution.
type Result struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Connector is the interface for connecting to and executing commands on targets.
type Connector interface {
	// Connect establishes an authenticated connection to the target.
	Connect(ctx context.Context) error

	// Execute runs a command on the target and returns the result.
	// A non-zero exit status is reported through Result.ExitCode, not as an error.
	Execute(ctx context.Context, cmd string) (*Result, error)

	// Close terminates the connection. It is safe to call more than once.
	Close() error

	// String returns a human-readable description of the connection.
	String() string
}

// Params holds everything needed to open a password-authenticated connection.
type Params struct {
	// Host is the target hostname or IP address.
	Host string `validate:"required"`

	// User is the username for authentication.
	User string `validate:"required"`

	// Password is the secret used for authentication. It is never logged.
	Password string `validate:"required"`

	// Port is the TCP port of the SSH server.
	Port int `validate:"required,min=1,max=65535"`

	// Timeout bounds dialing, handshake and authentication.
	Timeout time.Duration `validate:"required,gt=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks that all fields are set and in range.
func (p Params) Validate() error {
	if err := validate.Struct(p); err != nil {
		if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
			return fmt.Errorf("invalid connection parameters: %s", describe(verrs[0]))
		}
		return fmt.Errorf("invalid connection parameters: %w", err)
	}
	return nil
}

// Missing returns the names of required fields that are empty.
func (p Params) Missing() []string {
	var missing []string
	if p.Host == "" {
		missing = append(missing, "host")
	}
	if p.User == "" {
		missing = append(missing, "user")
	}
	if p.Password == "" {
		missing = append(missing, "password")
	}
	return missing
}

// Address returns host:port suitable for dialing.
func (p Params) Address() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

// String returns user@host:port. The password is never included.
func (p Params) String() string {
	return fmt.Sprintf("%s@%s", p.User, p.Address())
}

// MarshalLogObject implements zapcore.ObjectMarshaler without the password.
func (p Params) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("host", p.Host)
	enc.AddInt("port", p.Port)
	enc.AddString("user", p.User)
	enc.AddDuration("timeout", p.Timeout)
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fe.Field())
	case "min", "max":
		return fmt.Sprintf("%s must be between 1 and 65535", fe.Field())
	case "gt":
		return fmt.Sprintf("%s must be positive", fe.Field())
	default:
		return fmt.Sprintf("%s failed %q check", fe.Field(), fe.Tag())
	}
}
