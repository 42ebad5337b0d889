package mocks

import (
	"context"

	opfs "github.com/sashapodgoreanu/opfs-poc"
	"github.com/stretchr/testify/mock"
)

// MockBackend implements opfs.Backend for testing across packages
type MockBackend struct {
	mock.Mock
}

func (m *MockBackend) Root(ctx context.Context, name string, opts opfs.OpenOptions) (opfs.DirectoryHandle, error) {
	args := m.Called(ctx, name, opts)

	// Handle function return types (for complex tests)
	if fn, ok := args.Get(0).(func(context.Context, string, opfs.OpenOptions) opfs.DirectoryHandle); ok {
		return fn(ctx, name, opts), args.Error(1)
	}

	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(opfs.DirectoryHandle), args.Error(1)
}

func (m *MockBackend) RemoveRoot(ctx context.Context, name string) error {
	return m.Called(ctx, name).Error(0)
}

func (m *MockBackend) Type() string {
	return m.Called().String(0)
}

func (m *MockBackend) Close() error {
	return m.Called().Error(0)
}

var _ opfs.Backend = (*MockBackend)(nil)

// MockBackendProvider implements opfs.BackendProvider for testing across packages
type MockBackendProvider struct {
	mock.Mock
}

func (m *MockBackendProvider) NewBackend(raw []byte) (opfs.Backend, error) {
	args := m.Called(raw)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(opfs.Backend), args.Error(1)
}

var _ opfs.BackendProvider = (*MockBackendProvider)(nil)
