package app

import (
	"context"
	"fmt"

	"quiz-battle-service/internal/domain"
)

// ProfileStore is the identity-store boundary. ApplyDelta increments are
// atomic and the store recomputes the derived level from the new XP total.
type ProfileStore interface {
	GetProfile(ctx context.Context, id string) (domain.Profile, error)
	ApplyDelta(ctx context.Context, id string, delta domain.ProfileDelta) error
}

// BattleStore persists finished battle records for history/leaderboards.
type BattleStore interface {
	RecordBattle(ctx context.Context, outcome domain.BattleOutcome) error
}

// FinalizeGuard claims a session id for reconciliation. FirstFinalize
// returns true exactly once per id, making retried finalizes no-ops.
// Release returns a claim so a finalize that failed before any write
// can be retried.
type FinalizeGuard interface {
	FirstFinalize(ctx context.Context, sessionID string) (bool, error)
	Release(ctx context.Context, sessionID string) error
}

// Reconciler turns a completed battle into durable statistics exactly
// once: the record is persisted, the winner gets a win increment plus the
// win reward, the loser a loss increment plus consolation XP. Draws
// increment nobody but still credit consolation XP to both.
type Reconciler struct {
	profiles ProfileStore
	battles  BattleStore
	guard    FinalizeGuard
}

func NewReconciler(profiles ProfileStore, battles BattleStore, guard FinalizeGuard) *Reconciler {
	return &Reconciler{profiles: profiles, battles: battles, guard: guard}
}

func (r *Reconciler) Finalize(ctx context.Context, outcome domain.BattleOutcome) error {
	first, err := r.guard.FirstFinalize(ctx, outcome.SessionID)
	if err != nil {
		return fmt.Errorf("finalize guard: %w", err)
	}
	if !first {
		return nil
	}

	if err := r.battles.RecordBattle(ctx, outcome); err != nil {
		// Nothing has been written yet; hand the claim back so a retry
		// can finalize. After this point the claim stays held, since a
		// rerun over a partially applied delta would double-credit.
		if relErr := r.guard.Release(ctx, outcome.SessionID); relErr != nil {
			return fmt.Errorf("record battle: %w (release claim: %v)", err, relErr)
		}
		return fmt.Errorf("record battle: %w", err)
	}

	deltaA := domain.ProfileDelta{XP: outcome.RewardA}
	deltaB := domain.ProfileDelta{XP: outcome.RewardB}
	switch outcome.WinnerID {
	case outcome.PlayerA:
		deltaA.BattlesWon = 1
		deltaB.BattlesLost = 1
	case outcome.PlayerB:
		deltaB.BattlesWon = 1
		deltaA.BattlesLost = 1
	}

	if err := r.profiles.ApplyDelta(ctx, outcome.PlayerA, deltaA); err != nil {
		return fmt.Errorf("update %s: %w", outcome.PlayerA, err)
	}
	if err := r.profiles.ApplyDelta(ctx, outcome.PlayerB, deltaB); err != nil {
		return fmt.Errorf("update %s: %w", outcome.PlayerB, err)
	}
	return nil
}
