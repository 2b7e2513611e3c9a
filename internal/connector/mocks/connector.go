// Package mocks provides a testify mock of connector.Connector.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/eugenetaranov/sshcheck/internal/connector"
)

// Connector is a mock implementation of connector.Connector.
type Connector struct {
	mock.Mock
}

// Connect is a mock implementation of the Connect method.
func (m *Connector) Connect(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Execute is a mock implementation of the Execute method.
func (m *Connector) Execute(ctx context.Context, cmd string) (*connector.Result, error) {
	args := m.Called(ctx, cmd)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*connector.Result), args.Error(1)
}

// Close is a mock implementation of the Close method.
func (m *Connector) Close() error {
	args := m.Called()
	return args.Error(0)
}

// String returns a fixed description.
func (m *Connector) String() string {
	return "mock://target"
}

// Ensure Connector implements the connector.Connector interface.
var _ connector.Connector = (*Connector)(nil)
