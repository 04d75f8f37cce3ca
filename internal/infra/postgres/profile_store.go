package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"

	"quiz-battle-service/internal/domain"
)

// ProfileStore reads and updates player identities. Level is derived from
// XP inside the update statement so the increment and the recompute land
// in one atomic write (level = xp/500 + 1, same curve as the memory store).
type ProfileStore struct {
	pool *pgxpool.Pool
}

func NewProfileStore(pool *pgxpool.Pool) *ProfileStore {
	return &ProfileStore{pool: pool}
}

func (s *ProfileStore) GetProfile(ctx context.Context, id string) (domain.Profile, error) {
	var p domain.Profile
	err := s.pool.QueryRow(ctx, `
		SELECT id, display_name, level, current_floor, xp, battles_won, battles_lost
		FROM users WHERE id = $1`, id).
		Scan(&p.ID, &p.DisplayName, &p.Level, &p.Floor, &p.XP, &p.BattlesWon, &p.BattlesLost)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	if err != nil {
		return domain.Profile{}, fmt.Errorf("get profile %s: %w", id, err)
	}
	return p, nil
}

func (s *ProfileStore) ApplyDelta(ctx context.Context, id string, delta domain.ProfileDelta) error {
	tag, err := s.pool.Exec(ctx, `
		UPDATE users SET
			xp = xp + $2,
			battles_won = battles_won + $3,
			battles_lost = battles_lost + $4,
			level = (xp + $2) / 500 + 1
		WHERE id = $1`, id, delta.XP, delta.BattlesWon, delta.BattlesLost)
	if err != nil {
		return fmt.Errorf("update profile %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrProfileNotFound
	}
	return nil
}
