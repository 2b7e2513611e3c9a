// Package session opens a connection, runs a block against it and guarantees
// the connection is released afterwards.
package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/eugenetaranov/sshcheck/internal/connector"
)

// Func is the work performed while the connection is open.
type Func func(ctx context.Context, conn connector.Connector) error

// With connects conn, runs fn and closes conn exactly once on every path:
// failed connect, fn error, and panic in fn (re-raised after the release).
// A close error is logged and never replaces the result of fn.
func With(ctx context.Context, log *zap.Logger, conn connector.Connector, fn Func) (err error) {
	if log == nil {
		log = zap.NewNop()
	}

	defer func() {
		if cerr := conn.Close(); cerr != nil {
			log.Warn("failed to close connection",
				zap.String("conn", conn.String()),
				zap.Error(cerr))
		}
	}()

	if err := conn.Connect(ctx); err != nil {
		return err
	}

	return fn(ctx, conn)
}
