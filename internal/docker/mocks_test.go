package docker

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"log/slog"
	"net"
	"os"
	"testing"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	ocispec "github.com/opencontainers/image-spec/specs-go/v1"
	"github.com/stretchr/testify/mock"

	"github.com/ErgoTechKG/wechat-cc/internal/config"
	"github.com/ErgoTechKG/wechat-cc/internal/workspace"
)

type MockEngine struct {
	mock.Mock
}

func (m *MockEngine) ContainerCreate(ctx context.Context, cfg *container.Config, hostCfg *container.HostConfig, netCfg *network.NetworkingConfig, platform *ocispec.Platform, name string) (container.CreateResponse, error) {
	args := m.Called(ctx, cfg, hostCfg, netCfg, platform, name)
	return args.Get(0).(container.CreateResponse), args.Error(1)
}

func (m *MockEngine) ContainerStart(ctx context.Context, id string, opts container.StartOptions) error {
	args := m.Called(ctx, id, opts)
	return args.Error(0)
}

func (m *MockEngine) ContainerStop(ctx context.Context, id string, opts container.StopOptions) error {
	args := m.Called(ctx, id, opts)
	return args.Error(0)
}

func (m *MockEngine) ContainerRemove(ctx context.Context, id string, opts container.RemoveOptions) error {
	args := m.Called(ctx, id, opts)
	return args.Error(0)
}

func (m *MockEngine) ContainerInspect(ctx context.Context, id string) (container.InspectResponse, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(container.InspectResponse), args.Error(1)
}

func (m *MockEngine) ContainerList(ctx context.Context, opts container.ListOptions) ([]container.Summary, error) {
	args := m.Called(ctx, opts)
	if list := args.Get(0); list != nil {
		return list.([]container.Summary), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockEngine) ContainerExecCreate(ctx context.Context, id string, opts container.ExecOptions) (container.ExecCreateResponse, error) {
	args := m.Called(ctx, id, opts)
	return args.Get(0).(container.ExecCreateResponse), args.Error(1)
}

func (m *MockEngine) ContainerExecAttach(ctx context.Context, execID string, opts container.ExecAttachOptions) (types.HijackedResponse, error) {
	args := m.Called(ctx, execID, opts)
	return args.Get(0).(types.HijackedResponse), args.Error(1)
}

func (m *MockEngine) ContainerExecInspect(ctx context.Context, execID string) (container.ExecInspect, error) {
	args := m.Called(ctx, execID)
	return args.Get(0).(container.ExecInspect), args.Error(1)
}

func (m *MockEngine) ContainerStatsOneShot(ctx context.Context, id string) (container.StatsResponseReader, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(container.StatsResponseReader), args.Error(1)
}

func (m *MockEngine) NetworkInspect(ctx context.Context, name string, opts network.InspectOptions) (network.Inspect, error) {
	args := m.Called(ctx, name, opts)
	return args.Get(0).(network.Inspect), args.Error(1)
}

func (m *MockEngine) NetworkCreate(ctx context.Context, name string, opts network.CreateOptions) (network.CreateResponse, error) {
	args := m.Called(ctx, name, opts)
	return args.Get(0).(network.CreateResponse), args.Error(1)
}

func (m *MockEngine) ImageInspect(ctx context.Context, ref string, _ ...client.ImageInspectOption) (image.InspectResponse, error) {
	args := m.Called(ctx, ref)
	return args.Get(0).(image.InspectResponse), args.Error(1)
}

func (m *MockEngine) ImageBuild(ctx context.Context, buildContext io.Reader, opts build.ImageBuildOptions) (build.ImageBuildResponse, error) {
	args := m.Called(ctx, buildContext, opts)
	return args.Get(0).(build.ImageBuildResponse), args.Error(1)
}

func (m *MockEngine) Ping(ctx context.Context) (types.Ping, error) {
	args := m.Called(ctx)
	return args.Get(0).(types.Ping), args.Error(1)
}

func (m *MockEngine) Close() error {
	args := m.Called()
	return args.Error(0)
}

// notFoundError satisfies the engine's not-found error classification.
type notFoundError struct{}

func (notFoundError) Error() string { return "No such container" }
func (notFoundError) NotFound()     {}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestManager(t *testing.T) (*Manager, *MockEngine) {
	t.Helper()
	cfg := config.Default()
	cfg.Docker.DataDir = t.TempDir()
	cfg.Claude.APIKey = ""
	eng := &MockEngine{}
	return NewManager(eng, cfg, workspace.NewManager(cfg.Docker.DataDir), testLogger()), eng
}

func running() container.InspectResponse {
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{State: &container.State{Running: true}},
	}
}

func stopped() container.InspectResponse {
	return container.InspectResponse{
		ContainerJSONBase: &container.ContainerJSONBase{State: &container.State{Running: false}},
	}
}

// hijacked returns an attach response whose reader yields a multiplexed
// stream carrying stdout and stderr.
func hijacked(t *testing.T, stdout, stderr string) types.HijackedResponse {
	t.Helper()
	var buf bytes.Buffer
	if stdout != "" {
		stdcopy.NewStdWriter(&buf, stdcopy.Stdout).Write([]byte(stdout))
	}
	if stderr != "" {
		stdcopy.NewStdWriter(&buf, stdcopy.Stderr).Write([]byte(stderr))
	}
	conn, peer := net.Pipe()
	t.Cleanup(func() { peer.Close() })
	return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(&buf)}
}

// blockingAttach returns an attach response whose reader blocks until the
// connection is closed.
func blockingAttach(t *testing.T) types.HijackedResponse {
	t.Helper()
	conn, peer := net.Pipe()
	t.Cleanup(func() { peer.Close() })
	return types.HijackedResponse{Conn: conn, Reader: bufio.NewReader(conn)}
}

// expectExec wires one successful exec round trip.
func expectExec(t *testing.T, eng *MockEngine, name, execID string, match func(container.ExecOptions) bool, stdout, stderr string, exitCode int) {
	t.Helper()
	eng.On("ContainerExecCreate", mock.Anything, name, mock.MatchedBy(match)).
		Return(container.ExecCreateResponse{ID: execID}, nil).Once()
	eng.On("ContainerExecAttach", mock.Anything, execID, mock.Anything).
		Return(hijacked(t, stdout, stderr), nil).Once()
	eng.On("ContainerExecInspect", mock.Anything, execID).
		Return(container.ExecInspect{ExitCode: exitCode}, nil).Once()
}
