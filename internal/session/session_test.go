package session

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/eugenetaranov/sshcheck/internal/connector"
	"github.com/eugenetaranov/sshcheck/internal/connector/mocks"
)

func TestWith(t *testing.T) {
	connectErr := errors.New("dial failed")
	workErr := errors.New("work failed")

	tests := []struct {
		name       string
		connectErr error
		workErr    error
		wantErr    error
		wantCalled bool
	}{
		{name: "success", wantCalled: true},
		{name: "connect fails", connectErr: connectErr, wantErr: connectErr},
		{name: "work fails", workErr: workErr, wantErr: workErr, wantCalled: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := &mocks.Connector{}
			conn.On("Connect", mock.Anything).Return(tt.connectErr)
			conn.On("Close").Return(nil)

			called := false
			err := With(context.Background(), zap.NewNop(), conn, func(ctx context.Context, c connector.Connector) error {
				called = true
				assert.Same(t, conn, c)
				return tt.workErr
			})

			assert.ErrorIs(t, err, tt.wantErr)
			if tt.wantErr == nil {
				assert.NoError(t, err)
			}
			assert.Equal(t, tt.wantCalled, called)
			conn.AssertNumberOfCalls(t, "Connect", 1)
			conn.AssertNumberOfCalls(t, "Close", 1)
		})
	}
}

func TestWithReleasesOnPanic(t *testing.T) {
	conn := &mocks.Connector{}
	conn.On("Connect", mock.Anything).Return(nil)
	conn.On("Close").Return(nil)

	assert.PanicsWithValue(t, "boom", func() {
		_ = With(context.Background(), nil, conn, func(context.Context, connector.Connector) error {
			panic("boom")
		})
	})
	conn.AssertNumberOfCalls(t, "Close", 1)
}

func TestWithCloseErrorIsLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)

	conn := &mocks.Connector{}
	conn.On("Connect", mock.Anything).Return(nil)
	conn.On("Close").Return(errors.New("already gone"))

	err := With(context.Background(), zap.New(core), conn, func(context.Context, connector.Connector) error {
		return nil
	})
	require.NoError(t, err, "close error must not replace the result")

	entries := logs.FilterMessage("failed to close connection").All()
	require.Len(t, entries, 1)
	assert.Equal(t, "mock://target", entries[0].ContextMap()["conn"])
}
