package router

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ErgoTechKG/wechat-cc/internal/docker"
	"github.com/ErgoTechKG/wechat-cc/internal/executor"
	"github.com/ErgoTechKG/wechat-cc/internal/store"
	"github.com/ErgoTechKG/wechat-cc/internal/tier"
)

type MockDispatcher struct {
	mock.Mock
}

func (m *MockDispatcher) Execute(ctx context.Context, friend *store.Friend, message string) string {
	args := m.Called(ctx, friend, message)
	return args.String(0)
}

func (m *MockDispatcher) ClearSession(ctx context.Context, id string, restart bool) error {
	return m.Called(ctx, id, restart).Error(0)
}

func (m *MockDispatcher) KillProcess(ctx context.Context, id string) bool {
	return m.Called(ctx, id).Bool(0)
}

func (m *MockDispatcher) StopContainer(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockDispatcher) DestroyContainer(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockDispatcher) RebuildContainer(ctx context.Context, id string, t tier.Tier) error {
	return m.Called(ctx, id, t).Error(0)
}

func (m *MockDispatcher) ListContainers(ctx context.Context) ([]docker.ContainerInfo, error) {
	args := m.Called(ctx)
	if list := args.Get(0); list != nil {
		return list.([]docker.ContainerInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockDispatcher) StopAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockDispatcher) ContainerStatus(ctx context.Context, id string) executor.Status {
	return m.Called(ctx, id).Get(0).(executor.Status)
}
