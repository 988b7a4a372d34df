package docker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/ErgoTechKG/wechat-cc/internal/tier"
)

// Replies substituted for agent output when execution does not produce any.
const (
	MsgNoContent       = "(Claude returned no content)"
	MsgExecFailed      = "Container execution failed"
	MsgProcessingError = "Processing error, please try again later"
	MsgTimedOut        = "Request timed out"
)

var errExecCreate = errors.New("exec create")

type ExecOptions struct {
	Timeout           time.Duration
	ContinuationToken string
	Tier              tier.Tier
	SystemPrompt      string
}

// ExecResult is the outcome of one agent invocation. Stdout always holds
// something presentable: the agent's reply or one of the Msg* constants.
type ExecResult struct {
	OK       bool
	Stdout   string
	Stderr   string
	ExitCode int
	TimedOut bool
}

type execOutput struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// AgentCommand builds the agent CLI invocation for one message.
func (m *Manager) AgentCommand(message string, opts ExecOptions) []string {
	cmd := []string{
		m.cfg.Claude.CLIPath,
		"--print",
		"--output-format", "text",
		"--system-prompt", opts.SystemPrompt,
	}
	if opts.ContinuationToken != "" {
		cmd = append(cmd, "--resume", opts.ContinuationToken)
	}
	if !m.cfg.ToolsAllowed(opts.Tier) {
		cmd = append(cmd, "--allowedTools", "")
	}
	return append(cmd, message)
}

func (m *Manager) agentEnv(id string) []string {
	env := []string{"WXID=" + id}
	if m.cfg.Claude.APIKey != "" {
		env = append(env, "ANTHROPIC_API_KEY="+m.cfg.Claude.APIKey)
	}
	return env
}

// Execute runs the agent for message inside the identity's container as
// the sandbox user. On timeout it returns without waiting for the process,
// which keeps running inside the container.
func (m *Manager) Execute(ctx context.Context, id, message string, opts ExecOptions) ExecResult {
	name := m.ContainerName(id)
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = time.Duration(m.cfg.Claude.TimeoutSeconds) * time.Second
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		out execOutput
		err error
	}
	done := make(chan outcome, 1)
	cmd := m.AgentCommand(message, opts)
	go func() {
		out, err := m.runExec(ctx, name, cmd, sandboxUser, WorkspaceMount, m.agentEnv(id))
		done <- outcome{out: out, err: err}
	}()

	var o outcome
	select {
	case <-ctx.Done():
		m.logger.Warn("agent execution timed out", "container", name, "timeout", timeout)
		return ExecResult{Stdout: MsgTimedOut, TimedOut: true}
	case o = <-done:
	}

	switch {
	case o.err == nil:
	case errors.Is(o.err, ErrTimeout):
		m.logger.Warn("agent execution timed out", "container", name, "timeout", timeout)
		return ExecResult{Stdout: MsgTimedOut, TimedOut: true}
	case errors.Is(o.err, errExecCreate):
		m.logger.Error("agent exec create failed", "container", name, "error", o.err)
		return ExecResult{Stdout: MsgExecFailed, Stderr: o.err.Error()}
	default:
		m.logger.Error("agent exec failed", "container", name, "error", o.err)
		return ExecResult{Stdout: MsgProcessingError, Stderr: o.err.Error()}
	}

	stdout := strings.TrimSpace(o.out.Stdout)
	if stdout == "" {
		stdout = MsgNoContent
	}
	return ExecResult{
		OK:       true,
		Stdout:   stdout,
		Stderr:   o.out.Stderr,
		ExitCode: o.out.ExitCode,
	}
}

// Exec runs a one-off shell command in the identity's container and returns
// its combined, trimmed output. A missing container yields ErrNotFound.
func (m *Manager) Exec(ctx context.Context, id, shellCommand string, asRoot bool) (string, error) {
	user := sandboxUser
	if asRoot {
		user = "root"
	}
	out, err := m.runExec(ctx, m.ContainerName(id), []string{"sh", "-c", shellCommand}, user, "", nil)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out.Stdout + out.Stderr), nil
}

func (m *Manager) runExec(ctx context.Context, name string, cmd []string, user, workdir string, env []string) (execOutput, error) {
	execResp, err := m.engine.ContainerExecCreate(ctx, name, container.ExecOptions{
		Cmd:          cmd,
		User:         user,
		WorkingDir:   workdir,
		Env:          env,
		AttachStdout: true,
		AttachStderr: true,
	})
	if err != nil {
		if client.IsErrNotFound(err) {
			err = fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return execOutput{}, fmt.Errorf("%w: %w", errExecCreate, err)
	}

	attachResp, err := m.engine.ContainerExecAttach(ctx, execResp.ID, container.ExecAttachOptions{})
	if err != nil {
		if ctx.Err() != nil {
			return execOutput{}, ErrTimeout
		}
		return execOutput{}, fmt.Errorf("exec attach: %w", err)
	}
	defer attachResp.Close()
	// Unblock the read below when the caller gives up.
	stop := context.AfterFunc(ctx, attachResp.Close)
	defer stop()

	// Demultiplex Docker's stdout/stderr stream (8-byte headers).
	var stdoutBuf, stderrBuf bytes.Buffer
	if _, err := stdcopy.StdCopy(&stdoutBuf, &stderrBuf, attachResp.Reader); err != nil {
		if ctx.Err() != nil {
			return execOutput{}, ErrTimeout
		}
		return execOutput{}, fmt.Errorf("exec read: %w", err)
	}

	out := execOutput{Stdout: stdoutBuf.String(), Stderr: stderrBuf.String()}
	if inspect, err := m.engine.ContainerExecInspect(ctx, execResp.ID); err == nil {
		out.ExitCode = inspect.ExitCode
	} else {
		out.ExitCode = -1
	}
	return out, nil
}
