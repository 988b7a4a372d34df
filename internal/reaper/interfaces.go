package reaper

import (
	"context"

	"github.com/ErgoTechKG/wechat-cc/internal/docker"
)

// ReaperStore abstracts store operations needed by the reaper.
type ReaperStore interface {
	DeleteSessionsOlderThan(minutes int) (int64, error)
	CleanupRateLimits() (int64, error)
}

// ReaperDocker abstracts docker operations needed by the reaper.
type ReaperDocker interface {
	List(ctx context.Context) ([]docker.ContainerInfo, error)
	Cleanup(ctx context.Context) (int, error)
}
