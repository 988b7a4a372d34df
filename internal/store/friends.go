package store

import (
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/ErgoTechKG/wechat-cc/internal/tier"
)

type Friend struct {
	ID         string
	Nickname   string
	RemarkName string
	Tier       tier.Tier
	AddedAt    time.Time
	AddedBy    string
	Notes      string
}

// DisplayName prefers the remark name, then the nickname, then the id.
func (f *Friend) DisplayName() string {
	if f.RemarkName != "" {
		return f.RemarkName
	}
	if f.Nickname != "" {
		return f.Nickname
	}
	return f.ID
}

// FriendUpdate carries an upsert. Nil fields keep their stored value on
// conflict; a nil Tier inserts as normal. Unknown is stored as a pending
// registration that no gate accepts.
type FriendUpdate struct {
	ID         string
	Nickname   *string
	RemarkName *string
	Tier       *tier.Tier
	AddedBy    *string
	Notes      *string
}

const friendColumns = `id, nickname, remark_name, tier, added_at, added_by, notes`

func (s *Store) UpsertFriend(u FriendUpdate) error {
	insertTier := tier.Normal.String()
	var updateTier sql.NullString
	if u.Tier != nil {
		if !u.Tier.Valid() && *u.Tier != tier.Unknown {
			return fmt.Errorf("upserting friend %s: invalid tier %d", u.ID, *u.Tier)
		}
		insertTier = u.Tier.String()
		updateTier = sql.NullString{String: insertTier, Valid: true}
	}

	_, err := s.exec(
		`INSERT INTO friends (id, nickname, remark_name, tier, added_at, added_by, notes)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
		   nickname    = COALESCE(excluded.nickname, friends.nickname),
		   remark_name = COALESCE(excluded.remark_name, friends.remark_name),
		   tier        = COALESCE(?, friends.tier),
		   notes       = COALESCE(excluded.notes, friends.notes)`,
		u.ID, nullString(u.Nickname), nullString(u.RemarkName), insertTier,
		formatTime(s.nowUTC()), nullString(u.AddedBy), nullString(u.Notes), updateTier,
	)
	if err != nil {
		return fmt.Errorf("upserting friend: %w", err)
	}
	return nil
}

// GetFriend returns nil, nil when the identity is not registered.
func (s *Store) GetFriend(id string) (*Friend, error) {
	row := s.db.QueryRow(`SELECT `+friendColumns+` FROM friends WHERE id = ?`, id)
	return scanFriend(row)
}

func (s *Store) SetTier(id string, t tier.Tier) error {
	if !t.Valid() {
		return fmt.Errorf("setting tier for %s: invalid tier %d", id, t)
	}
	result, err := s.exec(`UPDATE friends SET tier = ? WHERE id = ?`, t.String(), id)
	if err != nil {
		return fmt.Errorf("setting tier: %w", err)
	}
	return checkRowAffected(result, "friend", id)
}

func (s *Store) ListFriends() ([]*Friend, error) {
	return s.queryFriends(`SELECT ` + friendColumns + ` FROM friends ORDER BY added_at, id`)
}

func (s *Store) ListFriendsByTier(t tier.Tier) ([]*Friend, error) {
	return s.queryFriends(`SELECT `+friendColumns+` FROM friends WHERE tier = ? ORDER BY added_at, id`, t.String())
}

// FindFriends matches substr literally against nickname or remark name,
// case-insensitively for ASCII.
func (s *Store) FindFriends(substr string) ([]*Friend, error) {
	pattern := "%" + likeEscaper.Replace(substr) + "%"
	return s.queryFriends(
		`SELECT `+friendColumns+` FROM friends
		 WHERE nickname LIKE ? ESCAPE '\' OR remark_name LIKE ? ESCAPE '\'
		 ORDER BY added_at, id`,
		pattern, pattern,
	)
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func (s *Store) queryFriends(query string, args ...any) ([]*Friend, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing friends: %w", err)
	}
	defer rows.Close()

	var friends []*Friend
	for rows.Next() {
		f, err := scanFriend(rows)
		if err != nil {
			return nil, err
		}
		friends = append(friends, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating friends: %w", err)
	}
	return friends, nil
}

func scanFriend(row scannable) (*Friend, error) {
	var f Friend
	var nickname, remark, addedBy, notes sql.NullString
	var tierStr, addedAt string
	err := row.Scan(&f.ID, &nickname, &remark, &tierStr, &addedAt, &addedBy, &notes)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scanning friend: %w", err)
	}
	f.Nickname = nickname.String
	f.RemarkName = remark.String
	f.Tier = tier.Parse(tierStr)
	f.AddedAt = parseTime(addedAt)
	f.AddedBy = addedBy.String
	f.Notes = notes.String
	return &f, nil
}
