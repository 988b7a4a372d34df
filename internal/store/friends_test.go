package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ErgoTechKG/wechat-cc/internal/tier"
)

func TestUpsertAndGetFriend(t *testing.T) {
	st, _ := newTestStore(t)

	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_001", Nickname: strPtr("Alice"), Tier: tierPtr(tier.Admin)}))

	f, err := st.GetFriend("wx_001")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, "wx_001", f.ID)
	assert.Equal(t, "Alice", f.Nickname)
	assert.Equal(t, tier.Admin, f.Tier)
	assert.Equal(t, "2026-03-14 10:30:15", f.AddedAt.Format(timeLayout))
}

func TestGetFriendNotFound(t *testing.T) {
	st, _ := newTestStore(t)

	f, err := st.GetFriend("nobody")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestUpsertDefaultsToNormal(t *testing.T) {
	st, _ := newTestStore(t)

	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_002", Nickname: strPtr("Bob")}))
	f, err := st.GetFriend("wx_002")
	require.NoError(t, err)
	assert.Equal(t, tier.Normal, f.Tier)
}

func TestUpsertPreservesOmittedFields(t *testing.T) {
	st, _ := newTestStore(t)

	require.NoError(t, st.UpsertFriend(FriendUpdate{
		ID:         "wx_up",
		Nickname:   strPtr("Original"),
		RemarkName: strPtr("Remark"),
		Tier:       tierPtr(tier.Trusted),
		AddedBy:    strPtr("wx_admin"),
		Notes:      strPtr("initial notes"),
	}))
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_up", Nickname: strPtr("Updated")}))

	f, err := st.GetFriend("wx_up")
	require.NoError(t, err)
	assert.Equal(t, "Updated", f.Nickname)
	assert.Equal(t, "Remark", f.RemarkName)
	assert.Equal(t, tier.Trusted, f.Tier)
	assert.Equal(t, "wx_admin", f.AddedBy)
	assert.Equal(t, "initial notes", f.Notes)
}

func TestUpsertOverwritesExplicitValues(t *testing.T) {
	st, _ := newTestStore(t)

	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_ow", Nickname: strPtr("Original"), RemarkName: strPtr("Old"), Tier: tierPtr(tier.Normal)}))
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_ow", Nickname: strPtr("New"), RemarkName: strPtr("NewRemark"), Tier: tierPtr(tier.Admin)}))

	f, err := st.GetFriend("wx_ow")
	require.NoError(t, err)
	assert.Equal(t, "New", f.Nickname)
	assert.Equal(t, "NewRemark", f.RemarkName)
	assert.Equal(t, tier.Admin, f.Tier)
}

func TestUpsertRejectsInvalidTier(t *testing.T) {
	st, _ := newTestStore(t)
	assert.Error(t, st.UpsertFriend(FriendUpdate{ID: "wx_bad", Tier: tierPtr(tier.Tier(99))}))
}

func TestUpsertStoresPendingTier(t *testing.T) {
	st, _ := newTestStore(t)
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_new", Nickname: strPtr("Newbie"), Tier: tierPtr(tier.Unknown)}))

	f, err := st.GetFriend("wx_new")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Equal(t, tier.Unknown, f.Tier)

	assert.Error(t, st.SetTier("wx_new", tier.Unknown), "pending is only assigned on registration")
}

func TestSetTier(t *testing.T) {
	st, _ := newTestStore(t)
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_002", Nickname: strPtr("Bob")}))

	require.NoError(t, st.SetTier("wx_002", tier.Blocked))
	f, err := st.GetFriend("wx_002")
	require.NoError(t, err)
	assert.Equal(t, tier.Blocked, f.Tier)

	assert.ErrorIs(t, st.SetTier("missing", tier.Normal), ErrNotFound)
}

func TestListFriends(t *testing.T) {
	st, _ := newTestStore(t)
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_a", Nickname: strPtr("A"), Tier: tierPtr(tier.Admin)}))
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_b", Nickname: strPtr("B"), Tier: tierPtr(tier.Normal)}))

	all, err := st.ListFriends()
	require.NoError(t, err)
	assert.Len(t, all, 2)

	admins, err := st.ListFriendsByTier(tier.Admin)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "wx_a", admins[0].ID)
}

func TestFindFriends(t *testing.T) {
	st, _ := newTestStore(t)
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_1", Nickname: strPtr("alice smith")}))
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_2", Nickname: strPtr("bob"), RemarkName: strPtr("Alice's brother")}))
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_3", Nickname: strPtr("carol")}))

	found, err := st.FindFriends("alice")
	require.NoError(t, err)
	assert.Len(t, found, 2)

	found, err = st.FindFriends("carol")
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "wx_3", found[0].ID)

	found, err = st.FindFriends("nobody")
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFindFriendsMatchesWildcardsLiterally(t *testing.T) {
	st, _ := newTestStore(t)
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_1", Nickname: strPtr("axb")}))
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_2", Nickname: strPtr("a_b")}))
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_3", Nickname: strPtr("100% done")}))
	require.NoError(t, st.UpsertFriend(FriendUpdate{ID: "wx_4", Nickname: strPtr(`back\slash`)}))

	tests := []struct {
		query string
		want  []string
	}{
		{"a_b", []string{"wx_2"}},
		{"%", []string{"wx_3"}},
		{"_", []string{"wx_2"}},
		{`\`, []string{"wx_4"}},
		{"A_B", []string{"wx_2"}},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			found, err := st.FindFriends(tt.query)
			require.NoError(t, err)
			var ids []string
			for _, f := range found {
				ids = append(ids, f.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "Remark", (&Friend{ID: "id", Nickname: "Nick", RemarkName: "Remark"}).DisplayName())
	assert.Equal(t, "Nick", (&Friend{ID: "id", Nickname: "Nick"}).DisplayName())
	assert.Equal(t, "id", (&Friend{ID: "id"}).DisplayName())
}
