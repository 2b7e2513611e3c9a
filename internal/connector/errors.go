package connector

import "errors"

// Kind classifies why a connection attempt failed.
type Kind int

const (
	// KindNetwork covers DNS, refused, unreachable and timed out connections.
	KindNetwork Kind = iota
	// KindProtocol covers SSH negotiation and handshake failures.
	KindProtocol
	// KindAuth means the remote host rejected the credentials.
	KindAuth
)

func (k Kind) String() string {
	switch k {
	case KindAuth:
		return "auth"
	case KindProtocol:
		return "protocol"
	default:
		return "network"
	}
}

// Connection errors, matched with errors.Is against a *ConnectError.
var (
	ErrAuth     = errors.New("authentication rejected")
	ErrProtocol = errors.New("protocol failure")
	ErrNetwork  = errors.New("connection failure")
)

// ConnectError is returned by Connect when no session could be established.
type ConnectError struct {
	Kind Kind
	Err  error
}

func (e *ConnectError) Error() string {
	if e.Err == nil {
		return e.sentinel().Error()
	}
	return e.Err.Error()
}

func (e *ConnectError) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for this error's kind.
func (e *ConnectError) Is(target error) bool {
	return target == e.sentinel()
}

func (e *ConnectError) sentinel() error {
	switch e.Kind {
	case KindAuth:
		return ErrAuth
	case KindProtocol:
		return ErrProtocol
	default:
		return ErrNetwork
	}
}

// KindOf returns the failure kind of err. Errors that are not a
// *ConnectError are treated as network failures.
func KindOf(err error) Kind {
	var ce *ConnectError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindNetwork
}

// Detail returns the text describing the underlying cause of err.
func Detail(err error) string {
	if err == nil {
		return ""
	}
	var ce *ConnectError
	if errors.As(err, &ce) && ce.Err != nil {
		return ce.Err.Error()
	}
	return err.Error()
}
