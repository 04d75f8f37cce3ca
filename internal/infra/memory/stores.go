package memory

import (
	"context"
	"sync"

	"quiz-battle-service/internal/domain"
)

// xpPerLevel pins the level curve shared with the Postgres store:
// level = xp/xpPerLevel + 1.
const xpPerLevel = 500

// ProfileStore is an in-memory identity store for tests and redis/pg-less runs.
type ProfileStore struct {
	mu       sync.RWMutex
	profiles map[string]domain.Profile
}

func NewProfileStore() *ProfileStore {
	return &ProfileStore{profiles: make(map[string]domain.Profile)}
}

// Seed inserts or replaces a profile wholesale.
func (s *ProfileStore) Seed(profile domain.Profile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[profile.ID] = profile
}

func (s *ProfileStore) GetProfile(_ context.Context, id string) (domain.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	profile, ok := s.profiles[id]
	if !ok {
		return domain.Profile{}, domain.ErrProfileNotFound
	}
	return profile, nil
}

// ApplyDelta upserts: unknown ids start from a blank level-1 profile, the
// way the original system lazily creates users on first contact.
func (s *ProfileStore) ApplyDelta(_ context.Context, id string, delta domain.ProfileDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	profile, ok := s.profiles[id]
	if !ok {
		profile = domain.Profile{ID: id, Level: 1, Floor: 1}
	}
	profile.XP += delta.XP
	profile.BattlesWon += delta.BattlesWon
	profile.BattlesLost += delta.BattlesLost
	profile.Level = profile.XP/xpPerLevel + 1
	s.profiles[id] = profile
	return nil
}

// BattleStore records finished battles in memory.
type BattleStore struct {
	mu       sync.RWMutex
	outcomes []domain.BattleOutcome
}

func NewBattleStore() *BattleStore {
	return &BattleStore{}
}

func (s *BattleStore) RecordBattle(_ context.Context, outcome domain.BattleOutcome) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.outcomes = append(s.outcomes, outcome)
	return nil
}

// Recorded snapshots all persisted outcomes.
func (s *BattleStore) Recorded() []domain.BattleOutcome {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.BattleOutcome, len(s.outcomes))
	copy(out, s.outcomes)
	return out
}

// FinalizeGuard claims session ids in-process.
type FinalizeGuard struct {
	mu        sync.Mutex
	finalized map[string]struct{}
}

func NewFinalizeGuard() *FinalizeGuard {
	return &FinalizeGuard{finalized: make(map[string]struct{})}
}

func (g *FinalizeGuard) FirstFinalize(_ context.Context, sessionID string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.finalized[sessionID]; ok {
		return false, nil
	}
	g.finalized[sessionID] = struct{}{}
	return true, nil
}

// Release hands back a claim so the session can be finalized again.
func (g *FinalizeGuard) Release(_ context.Context, sessionID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.finalized, sessionID)
	return nil
}
