package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ErgoTechKG/wechat-cc/internal/config"
	"github.com/ErgoTechKG/wechat-cc/internal/docker"
	"github.com/ErgoTechKG/wechat-cc/internal/store"
	"github.com/ErgoTechKG/wechat-cc/internal/tier"
)

// Replies returned instead of agent output.
const (
	MsgBusy         = "Previous message is still being processed, please wait..."
	MsgSetupFailed  = "Container setup failed, please try again later"
	MsgSessionError = "Session error, please try again"
)

const (
	killCommand  = "pkill -f claude || true"
	diskCommand  = "du -sh " + docker.WorkspaceMount
	previewBytes = 80
)

// Executor runs one identity's messages through the agent in that
// identity's container, one at a time.
type Executor struct {
	containers    Containers
	sessions      SessionStore
	guard         *Guard
	expireMinutes int
	maxHistory    int
	timeout       time.Duration
	toolsAllowed  func(tier.Tier) bool
	now           func() time.Time
	logger        *slog.Logger
}

func New(containers Containers, sessions SessionStore, cfg *config.Config, logger *slog.Logger) *Executor {
	return &Executor{
		containers:    containers,
		sessions:      sessions,
		guard:         NewGuard(),
		expireMinutes: cfg.Session.ExpireMinutes,
		maxHistory:    cfg.Session.MaxHistory,
		timeout:       time.Duration(cfg.Claude.TimeoutSeconds) * time.Second,
		toolsAllowed:  cfg.ToolsAllowed,
		now:           time.Now,
		logger:        logger,
	}
}

// SetClock replaces the time source used for session expiry.
func (e *Executor) SetClock(now func() time.Time) {
	e.now = now
}

// Execute dispatches message from friend to the agent and returns the reply
// text. It never fails: every problem maps to a presentable message.
func (e *Executor) Execute(ctx context.Context, friend *store.Friend, message string) string {
	id := friend.ID
	if !e.guard.TryAcquire(id) {
		return MsgBusy
	}
	defer e.guard.Release(id)

	return e.execute(ctx, friend, message)
}

func (e *Executor) execute(ctx context.Context, friend *store.Friend, message string) string {
	id := friend.ID

	if _, err := e.containers.EnsureContainer(ctx, id, friend.Tier); err != nil {
		e.logger.Error("ensure container", "identity", id, "error", err)
		return MsgSetupFailed
	}

	sess, err := e.activeSession(id)
	if err != nil {
		e.logger.Error("resolve session", "identity", id, "error", err)
		return MsgSessionError
	}

	if err := e.sessions.TouchSession(sess.ID); err != nil {
		e.logger.Warn("touch session", "session_id", sess.ID, "error", err)
	}

	e.logger.Debug("dispatching message", "identity", id, "session_id", sess.ID, "preview", preview(message))

	res := e.containers.Execute(ctx, id, message, docker.ExecOptions{
		Timeout:           e.timeout,
		ContinuationToken: sess.ContinuationToken,
		Tier:              friend.Tier,
		SystemPrompt:      BuildPrompt(friend, e.toolsAllowed(friend.Tier)),
	})

	switch {
	case res.TimedOut:
		e.logger.Warn("agent timed out", "identity", id, "session_id", sess.ID, "timeout", e.timeout)
	case !res.OK:
		e.logger.Warn("agent execution failed", "identity", id, "session_id", sess.ID, "error", preview(res.Stderr))
	case res.ExitCode != 0:
		e.logger.Warn("agent exited non-zero", "identity", id, "session_id", sess.ID,
			"exit_code", res.ExitCode, "stderr", preview(res.Stderr))
	}

	if tok := captureToken(res.Stderr); tok != "" && tok != sess.ContinuationToken {
		if err := e.sessions.SetContinuationToken(sess.ID, tok); err != nil {
			e.logger.Warn("save continuation token", "session_id", sess.ID, "error", err)
		} else {
			e.logger.Debug("captured continuation token", "session_id", sess.ID, "token", tok)
		}
	}

	return Truncate(res.Stdout, MaxResponseBytes)
}

// activeSession returns the identity's current session, replacing it with
// a fresh one when it is missing, has expired or has reached maxHistory
// messages. A maxHistory of zero disables the message cap.
func (e *Executor) activeSession(id string) (*store.Session, error) {
	sess, err := e.sessions.GetActiveSession(id)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return e.newSession(id)
	}

	switch {
	case sess.Expired(e.now(), e.expireMinutes):
		e.logger.Info("session expired, starting a new one", "identity", id, "session_id", sess.ID)
	case e.maxHistory > 0 && sess.MessageCount >= e.maxHistory:
		e.logger.Info("session history full, starting a new one", "identity", id,
			"session_id", sess.ID, "messages", sess.MessageCount)
	default:
		return sess, nil
	}
	if _, err := e.sessions.ClearSessions(id); err != nil {
		return nil, err
	}
	return e.newSession(id)
}

func (e *Executor) newSession(id string) (*store.Session, error) {
	sess, err := e.sessions.CreateSession(id, "")
	if err != nil {
		return nil, err
	}
	e.logger.Info("session created", "identity", id, "session_id", sess.ID)
	return sess, nil
}

func preview(s string) string {
	if len(s) <= previewBytes {
		return s
	}
	return cut(s, previewBytes) + "..."
}

// ClearSession drops the identity's sessions so the next message starts a
// new conversation. With restart the container is also stopped; it comes
// back with the identity's tier profile on the next message.
func (e *Executor) ClearSession(ctx context.Context, id string, restart bool) error {
	e.guard.Release(id)
	if _, err := e.sessions.ClearSessions(id); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	if restart {
		if _, err := e.containers.Stop(ctx, id); err != nil {
			return err
		}
	}
	e.logger.Info("session cleared", "identity", id, "restart", restart)
	return nil
}

// KillProcess terminates any agent process in the identity's container.
func (e *Executor) KillProcess(ctx context.Context, id string) bool {
	defer e.guard.Release(id)
	if _, err := e.containers.Exec(ctx, id, killCommand, true); err != nil {
		if errors.Is(err, docker.ErrNotFound) {
			e.logger.Info("no container to kill", "identity", id)
		} else {
			e.logger.Warn("kill agent process", "identity", id, "error", err)
		}
		return false
	}
	return true
}

func (e *Executor) StopContainer(ctx context.Context, id string) (bool, error) {
	e.guard.Release(id)
	return e.containers.Stop(ctx, id)
}

// DestroyContainer clears the identity's sessions and removes its
// container. Host data is kept.
func (e *Executor) DestroyContainer(ctx context.Context, id string) (bool, error) {
	e.guard.Release(id)
	if _, err := e.sessions.ClearSessions(id); err != nil {
		return false, fmt.Errorf("clear sessions: %w", err)
	}
	return e.containers.Destroy(ctx, id)
}

func (e *Executor) RebuildContainer(ctx context.Context, id string, t tier.Tier) error {
	e.guard.Release(id)
	if _, err := e.sessions.ClearSessions(id); err != nil {
		return fmt.Errorf("clear sessions: %w", err)
	}
	_, err := e.containers.Rebuild(ctx, id, t)
	return err
}

func (e *Executor) ListContainers(ctx context.Context) ([]docker.ContainerInfo, error) {
	return e.containers.List(ctx)
}

func (e *Executor) StopAll(ctx context.Context) (int, error) {
	return e.containers.StopAll(ctx)
}

type Status struct {
	Name    string
	Running bool
	Stats   *docker.Stats
	Disk    string
}

// ContainerStatus samples the identity's container. Stats and disk usage
// are best effort and left empty when unavailable.
func (e *Executor) ContainerStatus(ctx context.Context, id string) Status {
	st := Status{
		Name:    e.containers.ContainerName(id),
		Running: e.containers.IsRunning(ctx, id),
	}
	if !st.Running {
		return st
	}

	if stats, err := e.containers.Stats(ctx, id); err != nil {
		e.logger.Debug("container stats", "identity", id, "error", err)
	} else {
		st.Stats = stats
	}
	if disk, err := e.containers.Exec(ctx, id, diskCommand, false); err != nil {
		e.logger.Debug("disk usage", "identity", id, "error", err)
	} else {
		st.Disk = disk
	}
	return st
}
