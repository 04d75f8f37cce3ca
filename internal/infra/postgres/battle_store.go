package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-battle-service/internal/domain"
)

// BattleStore persists finished battle records. The session id doubles as
// the row id, so a raced re-record of the same battle conflicts instead
// of duplicating history.
type BattleStore struct {
	pool *pgxpool.Pool
}

func NewBattleStore(pool *pgxpool.Pool) *BattleStore {
	return &BattleStore{pool: pool}
}

func (s *BattleStore) RecordBattle(ctx context.Context, outcome domain.BattleOutcome) error {
	winner := any(nil)
	if outcome.WinnerID != "" {
		winner = outcome.WinnerID
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO battles
			(id, floor, player1_id, player2_id, player1_score, player2_score,
			 winner_id, status, forfeit, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, 'completed', $8, $9)
		ON CONFLICT (id) DO NOTHING`,
		outcome.SessionID, outcome.Floor, outcome.PlayerA, outcome.PlayerB,
		outcome.ScoreA, outcome.ScoreB, winner, outcome.Forfeit, outcome.CompletedAt)
	if err != nil {
		return fmt.Errorf("record battle %s: %w", outcome.SessionID, err)
	}
	return nil
}
