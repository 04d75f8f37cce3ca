package domain

import "errors"

var (
	// ErrSessionNotFound is returned when a battle id refers to no live session.
	ErrSessionNotFound = errors.New("battle session not found")
	// ErrNotParticipant is returned when a player acts on a battle they are not part of.
	ErrNotParticipant = errors.New("player is not a participant of this battle")
	// ErrStaleRound signals an answer for a round that already advanced; callers ignore it.
	ErrStaleRound = errors.New("answer for stale round")
	// ErrAlreadyInBattle guards the one-active-session-per-player invariant.
	ErrAlreadyInBattle = errors.New("player already in an active battle")
	// ErrNoQuestions indicates the content store has no quiz items for a floor.
	ErrNoQuestions = errors.New("no questions available for floor")
	// ErrProfileNotFound indicates the identity store does not know the player.
	ErrProfileNotFound = errors.New("player profile not found")
)
