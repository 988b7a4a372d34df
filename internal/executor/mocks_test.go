package executor

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ErgoTechKG/wechat-cc/internal/docker"
	"github.com/ErgoTechKG/wechat-cc/internal/store"
	"github.com/ErgoTechKG/wechat-cc/internal/tier"
)

type MockContainers struct {
	mock.Mock
}

func (m *MockContainers) EnsureContainer(ctx context.Context, id string, t tier.Tier) (string, error) {
	args := m.Called(ctx, id, t)
	return args.String(0), args.Error(1)
}

func (m *MockContainers) Execute(ctx context.Context, id, message string, opts docker.ExecOptions) docker.ExecResult {
	args := m.Called(ctx, id, message, opts)
	return args.Get(0).(docker.ExecResult)
}

func (m *MockContainers) Exec(ctx context.Context, id, shellCommand string, asRoot bool) (string, error) {
	args := m.Called(ctx, id, shellCommand, asRoot)
	return args.String(0), args.Error(1)
}

func (m *MockContainers) Stop(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockContainers) Destroy(ctx context.Context, id string) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MockContainers) Rebuild(ctx context.Context, id string, t tier.Tier) (string, error) {
	args := m.Called(ctx, id, t)
	return args.String(0), args.Error(1)
}

func (m *MockContainers) IsRunning(ctx context.Context, id string) bool {
	args := m.Called(ctx, id)
	return args.Bool(0)
}

func (m *MockContainers) Stats(ctx context.Context, id string) (*docker.Stats, error) {
	args := m.Called(ctx, id)
	if st := args.Get(0); st != nil {
		return st.(*docker.Stats), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockContainers) List(ctx context.Context) ([]docker.ContainerInfo, error) {
	args := m.Called(ctx)
	if list := args.Get(0); list != nil {
		return list.([]docker.ContainerInfo), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockContainers) StopAll(ctx context.Context) (int, error) {
	args := m.Called(ctx)
	return args.Int(0), args.Error(1)
}

func (m *MockContainers) ContainerName(id string) string {
	args := m.Called(id)
	return args.String(0)
}

type MockSessionStore struct {
	mock.Mock
}

func (m *MockSessionStore) GetActiveSession(identity string) (*store.Session, error) {
	args := m.Called(identity)
	if s := args.Get(0); s != nil {
		return s.(*store.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionStore) CreateSession(identity, token string) (*store.Session, error) {
	args := m.Called(identity, token)
	if s := args.Get(0); s != nil {
		return s.(*store.Session), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockSessionStore) TouchSession(id string) error {
	return m.Called(id).Error(0)
}

func (m *MockSessionStore) SetContinuationToken(id, token string) error {
	return m.Called(id, token).Error(0)
}

func (m *MockSessionStore) ClearSessions(identity string) (int64, error) {
	args := m.Called(identity)
	return args.Get(0).(int64), args.Error(1)
}
