package router

import (
	"context"

	"github.com/ErgoTechKG/wechat-cc/internal/docker"
	"github.com/ErgoTechKG/wechat-cc/internal/executor"
	"github.com/ErgoTechKG/wechat-cc/internal/store"
	"github.com/ErgoTechKG/wechat-cc/internal/tier"
)

type Store interface {
	GetFriend(id string) (*store.Friend, error)
	UpsertFriend(u store.FriendUpdate) error
	SetTier(id string, t tier.Tier) error
	ListFriends() ([]*store.Friend, error)
	FindFriends(substr string) ([]*store.Friend, error)
	GetActiveSession(identity string) (*store.Session, error)
	AppendAudit(identity, nickname string, dir store.Direction, message, token string) error
	AuditByIdentity(identity string, limit int) ([]*store.AuditEntry, error)
	RecentAudit(limit int) ([]*store.AuditEntry, error)
	CheckAndIncrement(identity string, maxPerMinute, maxPerDay int) (store.RateResult, error)
}

// Dispatcher runs messages through the agent and proxies container
// administration.
type Dispatcher interface {
	Execute(ctx context.Context, friend *store.Friend, message string) string
	ClearSession(ctx context.Context, id string, restart bool) error
	KillProcess(ctx context.Context, id string) bool
	StopContainer(ctx context.Context, id string) (bool, error)
	DestroyContainer(ctx context.Context, id string) (bool, error)
	RebuildContainer(ctx context.Context, id string, t tier.Tier) error
	ListContainers(ctx context.Context) ([]docker.ContainerInfo, error)
	StopAll(ctx context.Context) (int, error)
	ContainerStatus(ctx context.Context, id string) executor.Status
}

var (
	_ Store      = (*store.Store)(nil)
	_ Dispatcher = (*executor.Executor)(nil)
)
