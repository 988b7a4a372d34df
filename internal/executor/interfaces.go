package executor

import (
	"context"

	"github.com/ErgoTechKG/wechat-cc/internal/docker"
	"github.com/ErgoTechKG/wechat-cc/internal/store"
	"github.com/ErgoTechKG/wechat-cc/internal/tier"
)

// Containers is the slice of the container manager the executor drives.
type Containers interface {
	EnsureContainer(ctx context.Context, id string, t tier.Tier) (string, error)
	Execute(ctx context.Context, id, message string, opts docker.ExecOptions) docker.ExecResult
	Exec(ctx context.Context, id, shellCommand string, asRoot bool) (string, error)
	Stop(ctx context.Context, id string) (bool, error)
	Destroy(ctx context.Context, id string) (bool, error)
	Rebuild(ctx context.Context, id string, t tier.Tier) (string, error)
	IsRunning(ctx context.Context, id string) bool
	Stats(ctx context.Context, id string) (*docker.Stats, error)
	List(ctx context.Context) ([]docker.ContainerInfo, error)
	StopAll(ctx context.Context) (int, error)
	ContainerName(id string) string
}

type SessionStore interface {
	GetActiveSession(identity string) (*store.Session, error)
	CreateSession(identity, token string) (*store.Session, error)
	TouchSession(id string) error
	SetContinuationToken(id, token string) error
	ClearSessions(identity string) (int64, error)
}

var (
	_ Containers   = (*docker.Manager)(nil)
	_ SessionStore = (*store.Store)(nil)
)
