package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErgoTechKG/wechat-cc/internal/tier"
)

type fakeClock struct {
	t time.Time
}

func (c *fakeClock) Now() time.Time           { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestStore(t *testing.T) (*Store, *fakeClock) {
	t.Helper()
	st, err := New(":memory:", 0)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	clock := &fakeClock{t: time.Date(2026, 3, 14, 10, 30, 15, 0, time.UTC)}
	st.SetClock(clock.Now)
	return st, clock
}

func strPtr(s string) *string { return &s }

func tierPtr(t tier.Tier) *tier.Tier { return &t }

func TestDSNWithPragmas(t *testing.T) {
	dsn := dsnWithPragmas("/var/lib/bridge.db")
	assert.Contains(t, dsn, "/var/lib/bridge.db?")
	assert.Contains(t, dsn, "busy_timeout(15000)")
	assert.Contains(t, dsn, "journal_mode(WAL)")
}

func TestIsBusyLock(t *testing.T) {
	assert.False(t, isBusyLock(nil))
	assert.False(t, isBusyLock(assert.AnError))
	assert.True(t, isBusyLock(errString("database is locked (5) (SQLITE_BUSY)")))
}

type errString string

func (e errString) Error() string { return string(e) }

func TestRetryOnBusy(t *testing.T) {
	calls := 0
	err := retryOnBusy(func() error {
		calls++
		if calls < 3 {
			return errString("database is locked")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retryOnBusy(func() error {
		calls++
		return assert.AnError
	})
	assert.ErrorIs(t, err, assert.AnError)
	assert.Equal(t, 1, calls)
}

func TestNewOnDisk(t *testing.T) {
	path := t.TempDir() + "/bridge.db"
	st, err := New(path, 2)
	require.NoError(t, err)
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_1", Nickname: strPtr("One")}))
	require.NoError(t, st.Close())

	st, err = New(path, 2)
	require.NoError(t, err)
	defer st.Close()
	f, err := st.GetFriend("wx_1")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "One", f.Nickname)
}
