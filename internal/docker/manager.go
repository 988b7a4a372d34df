package docker

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/go-units"

	"github.com/ErgoTechKG/wechat-cc/internal/config"
	"github.com/ErgoTechKG/wechat-cc/internal/tier"
	"github.com/ErgoTechKG/wechat-cc/internal/workspace"
)

const (
	labelPrefix   = "wechat-cc."
	labelManaged  = labelPrefix + "managed"
	labelIdentity = labelPrefix + "identity"
	labelTier     = labelPrefix + "tier"

	WorkspaceMount = "/home/sandbox/workspace"
	ConfigMount    = "/home/sandbox/.claude"
	sandboxUser    = "sandbox"

	stopGraceSeconds = 10
)

// Manager owns every interaction with the container engine. It keeps no
// per-identity state; the container name is derived from the identity.
type Manager struct {
	engine Engine
	cfg    *config.Config
	ws     *workspace.Manager
	logger *slog.Logger
}

func NewManager(engine Engine, cfg *config.Config, ws *workspace.Manager, logger *slog.Logger) *Manager {
	return &Manager{
		engine: engine,
		cfg:    cfg,
		ws:     ws,
		logger: logger,
	}
}

func (m *Manager) Close() error {
	return m.engine.Close()
}

// Ping verifies the Docker daemon is reachable.
func (m *Manager) Ping(ctx context.Context) error {
	_, err := m.engine.Ping(ctx)
	return err
}

// Sanitize replaces every rune outside [A-Za-z0-9_.-] with a single '_'.
// The result has as many runes as id.
func Sanitize(id string) string {
	var b strings.Builder
	b.Grow(len(id))
	for _, r := range id {
		if r < utf8.RuneSelf && isNameByte(byte(r)) {
			b.WriteRune(r)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

func isNameByte(c byte) bool {
	return c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c >= '0' && c <= '9' ||
		c == '_' || c == '.' || c == '-'
}

// ContainerName derives the container name for an identity.
func ContainerName(prefix, id string) string {
	return prefix + Sanitize(id)
}

func (m *Manager) ContainerName(id string) string {
	return ContainerName(m.cfg.Docker.ContainerPrefix, id)
}

// EnsureContainer makes sure the identity's container exists and is
// running, creating it with the tier's profile if needed. It returns the
// container name.
func (m *Manager) EnsureContainer(ctx context.Context, id string, t tier.Tier) (string, error) {
	name := m.ContainerName(id)

	info, err := m.engine.ContainerInspect(ctx, name)
	if err == nil {
		if stateRunning(info) {
			return name, nil
		}
		m.logger.Info("starting stopped container", "container", name)
		if err := m.engine.ContainerStart(ctx, name, container.StartOptions{}); err != nil {
			return "", fmt.Errorf("container start: %w", err)
		}
		return name, nil
	}
	if !client.IsErrNotFound(err) {
		return "", fmt.Errorf("container inspect: %w", err)
	}

	if err := m.create(ctx, id, name, t.Runnable()); err != nil {
		return "", err
	}
	m.fixOwnership(ctx, name)
	return name, nil
}

func (m *Manager) create(ctx context.Context, id, name string, t tier.Tier) error {
	dirs, err := m.ws.Prepare(Sanitize(id))
	if err != nil {
		return fmt.Errorf("prepare data dirs: %w", err)
	}

	m.logger.Info("creating container",
		"container", name, "identity", id, "tier", t.String(),
		"memory", units.BytesSize(float64(m.cfg.MemoryBytes(t))),
		"network", m.cfg.NetworkFor(t))

	containerCfg := &container.Config{
		Image: m.cfg.Docker.Image,
		Cmd:   []string{"tail", "-f", "/dev/null"},
		Env:   m.agentEnv(id),
		Labels: map[string]string{
			labelManaged:  "true",
			labelIdentity: id,
			labelTier:     t.String(),
		},
		Tty: false,
	}

	hostCfg := &container.HostConfig{
		Resources: container.Resources{
			Memory:    m.cfg.MemoryBytes(t),
			NanoCPUs:  m.cfg.NanoCPUs(t),
			PidsLimit: int64Ptr(m.cfg.Docker.Limits.Pids),
		},
		Binds: []string{
			dirs.Workspace + ":" + WorkspaceMount,
			dirs.Config + ":" + ConfigMount,
		},
		Tmpfs:          map[string]string{"/tmp": "size=" + m.cfg.Docker.Limits.TmpSize},
		NetworkMode:    container.NetworkMode(m.cfg.NetworkFor(t)),
		ReadonlyRootfs: true,
		CapDrop:        []string{"ALL"},
		SecurityOpt:    []string{"no-new-privileges"},
		RestartPolicy:  container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}

	resp, err := m.engine.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, name)
	if err != nil {
		return fmt.Errorf("container create: %w", err)
	}

	if err := m.engine.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Clean up on start failure.
		m.engine.ContainerRemove(ctx, resp.ID, container.RemoveOptions{Force: true})
		return fmt.Errorf("container start: %w", err)
	}
	return nil
}

// fixOwnership hands the bind-mounted directories to the sandbox user.
// Host-created directories are owned by whoever runs the daemon.
func (m *Manager) fixOwnership(ctx context.Context, name string) {
	cmd := fmt.Sprintf("chown -R %s:%s %s %s", sandboxUser, sandboxUser, WorkspaceMount, ConfigMount)
	if _, err := m.runExec(ctx, name, []string{"sh", "-c", cmd}, "root", "", nil); err != nil {
		m.logger.Debug("fix ownership failed", "container", name, "error", err)
	}
}

// IsRunning reports whether the identity's container is running. Any
// engine error counts as not running.
func (m *Manager) IsRunning(ctx context.Context, id string) bool {
	info, err := m.engine.ContainerInspect(ctx, m.ContainerName(id))
	if err != nil {
		return false
	}
	return stateRunning(info)
}

// Stop gracefully stops the identity's container. It returns false when
// there is no such container.
func (m *Manager) Stop(ctx context.Context, id string) (bool, error) {
	return m.stopByName(ctx, m.ContainerName(id))
}

func (m *Manager) stopByName(ctx context.Context, name string) (bool, error) {
	timeout := stopGraceSeconds
	err := m.engine.ContainerStop(ctx, name, container.StopOptions{Timeout: &timeout})
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("container stop: %w", err)
	}
	m.logger.Info("container stopped", "container", name)
	return true, nil
}

// Destroy force-removes the identity's container. Host directories are
// left in place. It returns false when there is no such container.
func (m *Manager) Destroy(ctx context.Context, id string) (bool, error) {
	name := m.ContainerName(id)
	err := m.engine.ContainerRemove(ctx, name, container.RemoveOptions{Force: true})
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("container remove: %w", err)
	}
	m.logger.Info("container destroyed", "container", name)
	return true, nil
}

// Rebuild destroys and recreates the identity's container.
func (m *Manager) Rebuild(ctx context.Context, id string, t tier.Tier) (string, error) {
	if _, err := m.Destroy(ctx, id); err != nil {
		return "", err
	}
	return m.EnsureContainer(ctx, id, t)
}

// ContainerInfo describes one managed container as reported by its labels.
type ContainerInfo struct {
	ID       string
	Name     string
	Identity string
	Tier     string
	State    string
	Status   string
}

func (c ContainerInfo) Running() bool {
	return c.State == string(container.StateRunning)
}

// List returns all containers carrying the management label.
func (m *Manager) List(ctx context.Context) ([]ContainerInfo, error) {
	f := filters.NewArgs()
	f.Add("label", labelManaged+"=true")

	containers, err := m.engine.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: f,
	})
	if err != nil {
		return nil, fmt.Errorf("container list: %w", err)
	}

	result := make([]ContainerInfo, 0, len(containers))
	for _, ctr := range containers {
		var name string
		if len(ctr.Names) > 0 {
			name = strings.TrimPrefix(ctr.Names[0], "/")
		}
		result = append(result, ContainerInfo{
			ID:       ctr.ID,
			Name:     name,
			Identity: ctr.Labels[labelIdentity],
			Tier:     ctr.Labels[labelTier],
			State:    string(ctr.State),
			Status:   ctr.Status,
		})
	}
	return result, nil
}

// StopAll stops every running managed container and returns how many were
// stopped. Individual failures are logged and skipped.
func (m *Manager) StopAll(ctx context.Context) (int, error) {
	containers, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	stopped := 0
	for _, c := range containers {
		if !c.Running() {
			continue
		}
		ok, err := m.stopByName(ctx, c.Name)
		if err != nil {
			m.logger.Warn("stop container", "container", c.Name, "error", err)
			continue
		}
		if ok {
			stopped++
		}
	}
	return stopped, nil
}

// Cleanup removes managed containers that are not running and returns how
// many were removed.
func (m *Manager) Cleanup(ctx context.Context) (int, error) {
	containers, err := m.List(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, c := range containers {
		if c.Running() {
			continue
		}
		if err := m.engine.ContainerRemove(ctx, c.ID, container.RemoveOptions{Force: true}); err != nil && !client.IsErrNotFound(err) {
			m.logger.Warn("remove container", "container", c.Name, "error", err)
			continue
		}
		removed++
	}
	return removed, nil
}

func stateRunning(info container.InspectResponse) bool {
	return info.ContainerJSONBase != nil && info.State != nil && info.State.Running
}

func int64Ptr(v int64) *int64 {
	return &v
}
