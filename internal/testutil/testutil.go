package testutil

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/ErgoTechKG/wechat-cc/internal/config"
	"github.com/ErgoTechKG/wechat-cc/internal/store"
)

// Epoch is the fixed instant test stores start at.
var Epoch = time.Date(2026, 3, 14, 10, 30, 15, 0, time.UTC)

// TestConfig returns a Config with sensible test defaults.
func TestConfig() *config.Config {
	cfg := config.Default()
	cfg.AdminID = "admin_wxid"
	cfg.DBPath = ":memory:"
	cfg.Docker.DataDir = "/tmp/wechat-cc-test"
	cfg.Claude.APIKey = ""
	cfg.Security.BlockedPatterns = []string{`rm\s+-rf\s+/`, "curl.*\\|\\s*sh"}
	return cfg
}

// Clock is a settable time source for stores and executors.
type Clock struct {
	T time.Time
}

func (c *Clock) Now() time.Time { return c.T }

func (c *Clock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// NewTestStore creates an in-memory SQLite store for testing. Its clock
// starts at Epoch.
func NewTestStore(t *testing.T) (*store.Store, *Clock) {
	t.Helper()
	st, err := store.New(":memory:", 1)
	if err != nil {
		t.Fatalf("failed to create test store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	clock := &Clock{T: Epoch}
	st.SetClock(clock.Now)
	return st, clock
}

// Logger discards everything below error.
func Logger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}
