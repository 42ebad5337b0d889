package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
)

// MockPicker answers directory picker prompts in tests
type MockPicker struct {
	mock.Mock
}

func (m *MockPicker) Pick(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}
