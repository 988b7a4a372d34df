package reaper

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ErgoTechKG/wechat-cc/internal/docker"
)

// MockReaperStore mocks the ReaperStore interface.
type MockReaperStore struct {
	mock.Mock
}

func (m *MockReaperStore) DeleteSessionsOlderThan(minutes int) (int64, error) {
	args := m.Called(minutes)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockReaperStore) CleanupRateLimits() (int64, error) {
	args := m.Called()
	return args.Get(0).(int64), args.Error(1)
}

// MockReaperDocker mocks the ReaperDocker interface.
type MockReaperDocker struct {
	mock.Mock
}

func (m *MockReaperDocker) List(ctx context.Context) ([]docker.ContainerInfo, error) {
	args := m.Called(ctx)
	if containers := args.Get(0); containers != nil {
		return containers.([]docker.ContainerInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockReaperDocker) Cleanup(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}
