package app

import (
	"sync"
	"time"

	"quiz-battle-service/internal/domain"
)

// Rules carries the tunable battle constants.
type Rules struct {
	QuestionsPerBattle int
	WinXP              int
	ConsolationXP      int
	// SettleDelay runs between match_found and round 0, giving both
	// clients time to render the transition.
	SettleDelay  time.Duration
	AdvanceDelay time.Duration
	// AnswerGrace is added to a question's time limit before the round
	// is force-advanced on behalf of a non-responder.
	AnswerGrace time.Duration
}

func DefaultRules() Rules {
	return Rules{
		QuestionsPerBattle: 5,
		WinXP:              200,
		ConsolationXP:      50,
		SettleDelay:        3 * time.Second,
		AdvanceDelay:       2 * time.Second,
		AnswerGrace:        2 * time.Second,
	}
}

const defaultTimeLimit = 30 // seconds, matches the content schema default

// correctAnswerFloor is the minimum points for any correct answer; a
// faster answer earns its remaining seconds instead.
const correctAnswerFloor = 10

type sessionStatus int

const (
	statusActive sessionStatus = iota
	statusCompleted
)

type advance int

const (
	advanceNone advance = iota
	advanceNextRound
	advanceComplete
)

// BattleSession is the authoritative state machine for one duel. Status
// only ever moves Active -> Completed; scores and the round index only
// ever grow. All mutation happens under mu; outbound events are emitted
// by the service after the lock is released.
type BattleSession struct {
	ID      string
	Floor   int
	PlayerA string
	PlayerB string

	rules Rules
	now   func() time.Time

	mu        sync.Mutex
	status    sessionStatus
	round     int
	scoreA    int
	scoreB    int
	answered  map[string]bool
	questions []domain.Question
	createdAt time.Time
	timers    []*time.Timer
}

func newBattleSession(id string, floor int, playerA, playerB string, questions []domain.Question, rules Rules, now func() time.Time) *BattleSession {
	return &BattleSession{
		ID:        id,
		Floor:     floor,
		PlayerA:   playerA,
		PlayerB:   playerB,
		rules:     rules,
		now:       now,
		answered:  make(map[string]bool),
		questions: questions,
		createdAt: now(),
	}
}

// SubmitAnswer scores one answer and reports how the session moved.
// Synthesized timeout answers flow through here too, so scoring has a
// single path. A correct answer earns max(correctAnswerFloor,
// timeRemaining): speed is rewarded, but a slow correct answer never
// drops below the floor.
//
// Answers for an already-advanced round return ErrStaleRound (an expected
// race under timeout advancement, not a hard failure). Answers for a
// completed session return ErrSessionNotFound; the session is never
// resurrected.
func (s *BattleSession) SubmitAnswer(playerID string, roundIndex, answerIndex, timeRemaining int) (domain.AnswerResult, advance, *domain.BattleOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != statusActive {
		return domain.AnswerResult{}, advanceNone, nil, domain.ErrSessionNotFound
	}
	if playerID != s.PlayerA && playerID != s.PlayerB {
		return domain.AnswerResult{}, advanceNone, nil, domain.ErrNotParticipant
	}
	if roundIndex != s.round || s.answered[playerID] {
		return domain.AnswerResult{}, advanceNone, nil, domain.ErrStaleRound
	}

	question := s.questions[s.round]
	correct := answerIndex == question.CorrectAnswer
	points := 0
	if correct {
		points = timeRemaining
		if points < correctAnswerFloor {
			points = correctAnswerFloor
		}
	}

	if playerID == s.PlayerA {
		s.scoreA += points
	} else {
		s.scoreB += points
	}
	s.answered[playerID] = true

	yours, theirs := s.scoreA, s.scoreB
	if playerID == s.PlayerB {
		yours, theirs = s.scoreB, s.scoreA
	}
	result := domain.AnswerResult{
		QuestionIndex: roundIndex,
		Correct:       correct,
		CorrectAnswer: question.CorrectAnswer,
		PointsEarned:  points,
		YourScore:     yours,
		OpponentScore: theirs,
	}

	if !s.answered[s.PlayerA] || !s.answered[s.PlayerB] {
		return result, advanceNone, nil, nil
	}

	if s.round == len(s.questions)-1 {
		outcome := s.completeLocked("", false)
		return result, advanceComplete, &outcome, nil
	}

	s.round++
	s.answered = make(map[string]bool)
	return result, advanceNextRound, nil, nil
}

// Forfeit completes an active session in favor of the remaining player.
// Scores stand as recorded; reports false if the session already finished.
func (s *BattleSession) Forfeit(leaverID string) (domain.BattleOutcome, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.status != statusActive {
		return domain.BattleOutcome{}, false
	}
	winner := s.PlayerA
	if leaverID == s.PlayerA {
		winner = s.PlayerB
	}
	return s.completeLocked(winner, true), true
}

// completeLocked transitions to Completed exactly once, cancels pending
// timers and derives the outcome. An empty forced winner means the winner
// is whoever holds the strictly higher score; equal scores draw.
func (s *BattleSession) completeLocked(forcedWinner string, forfeit bool) domain.BattleOutcome {
	s.status = statusCompleted
	for _, t := range s.timers {
		t.Stop()
	}
	s.timers = nil

	winner := forcedWinner
	if winner == "" {
		if s.scoreA > s.scoreB {
			winner = s.PlayerA
		} else if s.scoreB > s.scoreA {
			winner = s.PlayerB
		}
	}

	rewardA, rewardB := s.rules.ConsolationXP, s.rules.ConsolationXP
	switch winner {
	case s.PlayerA:
		rewardA = s.rules.WinXP
	case s.PlayerB:
		rewardB = s.rules.WinXP
	}

	return domain.BattleOutcome{
		SessionID:   s.ID,
		Floor:       s.Floor,
		PlayerA:     s.PlayerA,
		ScoreA:      s.scoreA,
		RewardA:     rewardA,
		PlayerB:     s.PlayerB,
		ScoreB:      s.scoreB,
		RewardB:     rewardB,
		WinnerID:    winner,
		Forfeit:     forfeit,
		CompletedAt: s.now(),
	}
}

// after registers a cancellable timer scoped to the session. Timers are
// only armed while the session is active; completion stops them all, so a
// settle or timeout callback never fires into a dead session.
func (s *BattleSession) after(d time.Duration, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != statusActive {
		return
	}
	s.timers = append(s.timers, time.AfterFunc(d, fn))
}

// CurrentQuestion snapshots the question for the present round.
func (s *BattleSession) CurrentQuestion() (int, domain.Question, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != statusActive {
		return 0, domain.Question{}, false
	}
	return s.round, s.questions[s.round], true
}

// pendingAnswers lists the players yet to answer the given round; it is
// empty once the round has advanced past it.
func (s *BattleSession) pendingAnswers(roundIndex int) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status != statusActive || roundIndex != s.round {
		return nil
	}
	var pending []string
	for _, p := range []string{s.PlayerA, s.PlayerB} {
		if !s.answered[p] {
			pending = append(pending, p)
		}
	}
	return pending
}

// Completed reports whether the session reached its terminal state.
func (s *BattleSession) Completed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status == statusCompleted
}

// Scores snapshots both running totals.
func (s *BattleSession) Scores() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.scoreA, s.scoreB
}

func questionTimeLimit(q domain.Question) time.Duration {
	limit := q.TimeLimit
	if limit <= 0 {
		limit = defaultTimeLimit
	}
	return time.Duration(limit) * time.Second
}
