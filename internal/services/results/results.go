package results

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

type PlayerResult struct {
	UserID string `json:"userId"`
	Score  int    `json:"score"`
	Rank   int    `json:"rank"`
}

// Result is the final ranking of one game round.
type Result struct {
	RoomID  string
	Variant string
	Winner  string
	Players []PlayerResult
	EndedAt time.Time
}

type Store interface {
	SaveResult(ctx context.Context, r Result) error
}

type PostgresStore struct {
	db *sql.DB
}

var _ Store = (*PostgresStore)(nil)

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// SaveResult writes the round header and every player's rank in one
// transaction so a partially archived round is never visible.
func (s *PostgresStore) SaveResult(ctx context.Context, r Result) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin result tx: %w", err)
	}
	defer tx.Rollback()

	const insResult = `
	  INSERT INTO game_results (room_id, variant, winner, ended_at)
	       VALUES ($1, $2, NULLIF($3, ''), $4)
	    RETURNING id`

	var resultID int64
	if err := tx.QueryRowContext(ctx, insResult,
		r.RoomID, r.Variant, r.Winner, r.EndedAt.UTC(),
	).Scan(&resultID); err != nil {
		return fmt.Errorf("insert game result: %w", err)
	}

	const insPlayer = `
	  INSERT INTO game_result_players (result_id, user_id, score, rank)
	       VALUES ($1, $2, $3, $4)`
	for _, p := range r.Players {
		if _, err := tx.ExecContext(ctx, insPlayer, resultID, p.UserID, p.Score, p.Rank); err != nil {
			return fmt.Errorf("insert result player %s: %w", p.UserID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit result tx: %w", err)
	}
	return nil
}
