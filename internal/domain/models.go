package domain

import "time"

// Profile is the identity-store view of a player.
type Profile struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Level       int    `json:"level"`
	Floor       int    `json:"floor"`
	XP          int    `json:"xp"`
	BattlesWon  int    `json:"battlesWon"`
	BattlesLost int    `json:"battlesLost"`
}

// ProfileDelta is an atomic increment applied by the identity store.
// The store recomputes the derived level from the new XP total.
type ProfileDelta struct {
	XP          int
	BattlesWon  int
	BattlesLost int
}

// Question models an MCQ battle item with exactly one correct option.
type Question struct {
	ID            string   `json:"id"`
	Prompt        string   `json:"prompt"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correctAnswer"`
	TimeLimit     int      `json:"timeLimit"` // seconds; defaults to 30 if zero
}

// MatchTicket is a player's outstanding request to be paired on a floor.
type MatchTicket struct {
	PlayerID   string
	Floor      int
	EnqueuedAt time.Time
}

// BattleOutcome captures the final contract of a completed battle.
// WinnerID is empty for a draw.
type BattleOutcome struct {
	SessionID   string
	Floor       int
	PlayerA     string
	ScoreA      int
	RewardA     int
	PlayerB     string
	ScoreB      int
	RewardB     int
	WinnerID    string
	Forfeit     bool
	CompletedAt time.Time
}

// Reward returns the XP credited to the given player by this outcome.
func (o BattleOutcome) Reward(playerID string) int {
	switch playerID {
	case o.PlayerA:
		return o.RewardA
	case o.PlayerB:
		return o.RewardB
	}
	return 0
}
