package profile

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"
)

var ErrProfileNotFound = errors.New("profile not found")

// Profile is the display data shown next to a member in lobbies and games.
type Profile struct {
	UserID    string `json:"userId"`
	Nickname  string `json:"nickname"`
	AvatarRef string `json:"avatarRef"`
	Level     int    `json:"level"`
}

type Lookup interface {
	GetProfile(ctx context.Context, userID string) (*Profile, error)
}

type PostgresLookup struct {
	db *sql.DB
}

var _ Lookup = (*PostgresLookup)(nil)

func NewPostgresLookup(db *sql.DB) *PostgresLookup {
	return &PostgresLookup{db: db}
}

func (l *PostgresLookup) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	const q = `SELECT id, coalesce(nickname, ''), coalesce(main_fish_image, ''), coalesce(level, 1)
	             FROM "user" WHERE id = $1`

	p := &Profile{}
	err := l.db.QueryRowContext(ctx, q, userID).Scan(&p.UserID, &p.Nickname, &p.AvatarRef, &p.Level)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, fmt.Errorf("query profile %s: %w", userID, err)
	}
	return p, nil
}

// Fallback is what a member is displayed as when their profile can't be read.
func Fallback(userID string) Profile {
	return Profile{UserID: userID, Nickname: userID, Level: 1}
}

// Resolve looks up every id and never fails: unknown or unreadable profiles
// are replaced by Fallback so a broadcast always names every member.
func Resolve(ctx context.Context, l Lookup, userIDs []string) map[string]Profile {
	out := make(map[string]Profile, len(userIDs))
	for _, id := range userIDs {
		if _, done := out[id]; done {
			continue
		}
		p, err := l.GetProfile(ctx, id)
		if err != nil {
			if !errors.Is(err, ErrProfileNotFound) {
				zap.L().Warn("profile.lookup_failed", zap.String("user_id", id), zap.Error(err))
			}
			out[id] = Fallback(id)
			continue
		}
		if p.Nickname == "" {
			p.Nickname = id
		}
		out[id] = *p
	}
	return out
}
