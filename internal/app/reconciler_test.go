package app_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
)

func sampleOutcome() domain.BattleOutcome {
	return domain.BattleOutcome{
		SessionID:   "battle-1",
		Floor:       3,
		PlayerA:     "alice",
		ScoreA:      120,
		RewardA:     200,
		PlayerB:     "bob",
		ScoreB:      45,
		RewardB:     50,
		WinnerID:    "alice",
		CompletedAt: time.Now(),
	}
}

func TestFinalizeCreditsWinnerAndLoser(t *testing.T) {
	ctx := context.Background()
	profiles := memory.NewProfileStore()
	profiles.Seed(domain.Profile{ID: "alice", Level: 1})
	profiles.Seed(domain.Profile{ID: "bob", Level: 1})
	battles := memory.NewBattleStore()
	r := app.NewReconciler(profiles, battles, memory.NewFinalizeGuard())

	if err := r.Finalize(ctx, sampleOutcome()); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	alice, _ := profiles.GetProfile(ctx, "alice")
	if alice.XP != 200 || alice.BattlesWon != 1 || alice.BattlesLost != 0 {
		t.Fatalf("unexpected winner stats: %+v", alice)
	}
	bob, _ := profiles.GetProfile(ctx, "bob")
	if bob.XP != 50 || bob.BattlesWon != 0 || bob.BattlesLost != 1 {
		t.Fatalf("unexpected loser stats: %+v", bob)
	}
	if len(battles.Recorded()) != 1 {
		t.Fatalf("expected one battle record, got %d", len(battles.Recorded()))
	}
}

func TestFinalizeIsIdempotentPerSession(t *testing.T) {
	ctx := context.Background()
	profiles := memory.NewProfileStore()
	profiles.Seed(domain.Profile{ID: "alice", Level: 1})
	profiles.Seed(domain.Profile{ID: "bob", Level: 1})
	battles := memory.NewBattleStore()
	r := app.NewReconciler(profiles, battles, memory.NewFinalizeGuard())

	outcome := sampleOutcome()
	if err := r.Finalize(ctx, outcome); err != nil {
		t.Fatalf("first finalize: %v", err)
	}
	if err := r.Finalize(ctx, outcome); err != nil {
		t.Fatalf("retried finalize: %v", err)
	}

	alice, _ := profiles.GetProfile(ctx, "alice")
	if alice.XP != 200 || alice.BattlesWon != 1 {
		t.Fatalf("retry double-credited: %+v", alice)
	}
	if len(battles.Recorded()) != 1 {
		t.Fatalf("retry duplicated the record: %d", len(battles.Recorded()))
	}
}

type failingBattleStore struct {
	failures int
	delegate app.BattleStore
}

func (s *failingBattleStore) RecordBattle(ctx context.Context, outcome domain.BattleOutcome) error {
	if s.failures > 0 {
		s.failures--
		return errors.New("store unavailable")
	}
	return s.delegate.RecordBattle(ctx, outcome)
}

func TestFinalizeReleasesClaimOnRecordFailure(t *testing.T) {
	ctx := context.Background()
	profiles := memory.NewProfileStore()
	profiles.Seed(domain.Profile{ID: "alice", Level: 1})
	profiles.Seed(domain.Profile{ID: "bob", Level: 1})
	battles := memory.NewBattleStore()
	store := &failingBattleStore{failures: 1, delegate: battles}
	r := app.NewReconciler(profiles, store, memory.NewFinalizeGuard())

	outcome := sampleOutcome()
	if err := r.Finalize(ctx, outcome); err == nil {
		t.Fatalf("expected the store failure to surface")
	}

	// the claim went back, so a retry completes the reconciliation
	if err := r.Finalize(ctx, outcome); err != nil {
		t.Fatalf("retried finalize: %v", err)
	}
	alice, _ := profiles.GetProfile(ctx, "alice")
	if alice.XP != 200 || alice.BattlesWon != 1 {
		t.Fatalf("retry after failure should credit once: %+v", alice)
	}
	if len(battles.Recorded()) != 1 {
		t.Fatalf("expected one battle record, got %d", len(battles.Recorded()))
	}
}

func TestFinalizeDrawAwardsConsolationToBoth(t *testing.T) {
	ctx := context.Background()
	profiles := memory.NewProfileStore()
	profiles.Seed(domain.Profile{ID: "alice", Level: 1})
	profiles.Seed(domain.Profile{ID: "bob", Level: 1})
	r := app.NewReconciler(profiles, memory.NewBattleStore(), memory.NewFinalizeGuard())

	outcome := sampleOutcome()
	outcome.WinnerID = ""
	outcome.ScoreB = outcome.ScoreA
	outcome.RewardA = 50

	if err := r.Finalize(ctx, outcome); err != nil {
		t.Fatalf("finalize: %v", err)
	}

	for _, id := range []string{"alice", "bob"} {
		p, _ := profiles.GetProfile(ctx, id)
		if p.XP != 50 || p.BattlesWon != 0 || p.BattlesLost != 0 {
			t.Fatalf("draw must not touch win/loss counters: %s %+v", id, p)
		}
	}
}
