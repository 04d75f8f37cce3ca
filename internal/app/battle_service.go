package app

import (
	"context"
	"errors"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"quiz-battle-service/internal/domain"
)

// QuestionRepository loads the pooled quiz items for a floor
// (from cache/backing store).
type QuestionRepository interface {
	QuestionsForFloor(ctx context.Context, floor int) ([]domain.Question, error)
}

// BattleService owns the live state of the battle engine: the connection
// registry, the matchmaking queue and the set of active sessions. Nothing
// here is ambient; the transport gets a reference and drives it per
// connection. No lock is held while an outbound event is queued.
type BattleService struct {
	registry   *ConnectionRegistry
	queue      *MatchQueue
	questions  QuestionRepository
	profiles   ProfileStore
	reconciler *Reconciler
	rules      Rules

	mu       sync.RWMutex
	sessions map[string]*BattleSession
}

func NewBattleService(questions QuestionRepository, profiles ProfileStore, battles BattleStore, guard FinalizeGuard, rules Rules) *BattleService {
	return &BattleService{
		registry:   NewConnectionRegistry(),
		queue:      NewMatchQueue(),
		questions:  questions,
		profiles:   profiles,
		reconciler: NewReconciler(profiles, battles, guard),
		rules:      rules,
		sessions:   make(map[string]*BattleSession),
	}
}

// Announce registers a player's presence and hands the transport its
// outbound channel. A repeat announce supersedes the earlier connection.
func (e *BattleService) Announce(playerID string) *Conn {
	conn := e.registry.Register(playerID)
	e.registry.SendTo(playerID, domain.Event{Type: "joined", Payload: map[string]string{"odId": playerID}})
	return conn
}

// Rejoin re-acknowledges an already announced player without disturbing
// their connection or battle binding.
func (e *BattleService) Rejoin(playerID string) {
	e.registry.SendTo(playerID, domain.Event{Type: "joined", Payload: map[string]string{"odId": playerID}})
}

// SeekMatch enqueues a ticket for the player's floor and attempts a
// pairing. A miss leaves the ticket queued and tells the player they are
// waiting; a hit creates the session, binds both connections, notifies
// both sides and schedules round 0 after the settle delay.
func (e *BattleService) SeekMatch(ctx context.Context, playerID string, floor int) error {
	if battleID, ok := e.registry.Binding(playerID); ok {
		if s, live := e.session(battleID); live && !s.Completed() {
			return domain.ErrAlreadyInBattle
		}
	}

	e.queue.Enqueue(playerID, floor)
	ticket, ok := e.queue.TryMatch(playerID, floor)
	if !ok {
		e.registry.SendTo(playerID, domain.Event{
			Type:    "waiting",
			Payload: map[string]string{"message": "Searching for opponent..."},
		})
		return nil
	}

	questions, err := e.drawQuestions(ctx, floor)
	if err != nil {
		// The opponent should not pay for our content failure; their
		// ticket goes back with its original place in line.
		e.queue.Requeue(ticket)
		e.registry.SendTo(ticket.PlayerID, domain.Event{
			Type:    "waiting",
			Payload: map[string]string{"message": "Searching for opponent..."},
		})
		return err
	}

	s := newBattleSession(uuid.NewString(), floor, playerID, ticket.PlayerID, questions, e.rules, time.Now)
	e.mu.Lock()
	e.sessions[s.ID] = s
	e.mu.Unlock()

	e.registry.Bind(s.PlayerA, s.ID)
	e.registry.Bind(s.PlayerB, s.ID)

	found := domain.Event{Type: "match_found", Payload: domain.MatchFound{
		BattleID:       s.ID,
		Player1:        e.summary(ctx, s.PlayerA),
		Player2:        e.summary(ctx, s.PlayerB),
		TotalQuestions: len(questions),
	}}
	e.registry.SendTo(s.PlayerA, found)
	e.registry.SendTo(s.PlayerB, found)

	s.after(e.rules.SettleDelay, func() { e.openRound(s) })
	return nil
}

// SubmitAnswer routes a player's answer into its session and emits the
// per-player result. Round advancement and completion ride on the return
// of the session's state machine.
func (e *BattleService) SubmitAnswer(ctx context.Context, playerID, battleID string, roundIndex, answerIndex, timeRemaining int) error {
	s, ok := e.session(battleID)
	if !ok {
		return domain.ErrSessionNotFound
	}
	return e.applyAnswer(ctx, s, playerID, roundIndex, answerIndex, timeRemaining, true)
}

// LeaveQueue withdraws the player's matchmaking ticket, if any.
func (e *BattleService) LeaveQueue(playerID string) {
	e.queue.Leave(playerID)
	e.registry.SendTo(playerID, domain.Event{Type: "left_queue"})
}

// Disconnect is the transport-teardown path: the ticket is released and a
// battle still active forfeits in favor of the remaining player. A stale
// connection superseded by a newer announce cascades nothing.
func (e *BattleService) Disconnect(conn *Conn) {
	battleID, removed := e.registry.Unregister(conn)
	if !removed {
		return
	}
	e.queue.Leave(conn.PlayerID)
	if battleID == "" {
		return
	}
	s, ok := e.session(battleID)
	if !ok {
		return
	}
	if outcome, forfeited := s.Forfeit(conn.PlayerID); forfeited {
		e.completeBattle(context.Background(), s, outcome)
	}
}

// NotifyError sends a connection-local error payload to one player.
func (e *BattleService) NotifyError(playerID, message string) {
	e.registry.SendTo(playerID, domain.Event{Type: "error", Payload: map[string]string{"message": message}})
}

// LiveBattles reports the number of sessions not yet reconciled.
func (e *BattleService) LiveBattles() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.sessions)
}

func (e *BattleService) session(id string) (*BattleSession, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.sessions[id]
	return s, ok
}

// applyAnswer is the single scoring path shared by real answers and the
// scheduler's synthesized timeouts; only real answers echo a result back.
func (e *BattleService) applyAnswer(ctx context.Context, s *BattleSession, playerID string, roundIndex, answerIndex, timeRemaining int, emitResult bool) error {
	result, adv, outcome, err := s.SubmitAnswer(playerID, roundIndex, answerIndex, timeRemaining)
	if err != nil {
		return err
	}
	if emitResult {
		e.registry.SendTo(playerID, domain.Event{Type: "answer_result", Payload: result})
	}
	switch adv {
	case advanceNextRound:
		s.after(e.rules.AdvanceDelay, func() { e.openRound(s) })
	case advanceComplete:
		e.completeBattle(ctx, s, *outcome)
	}
	return nil
}

// openRound releases the current question to both sides and arms the
// answer timeout for it.
func (e *BattleService) openRound(s *BattleSession) {
	idx, question, ok := s.CurrentQuestion()
	if !ok {
		return
	}
	limit := questionTimeLimit(question)
	ev := domain.Event{Type: "question", Payload: domain.RoundQuestion{
		QuestionIndex: idx,
		Question:      question.Prompt,
		Options:       question.Options,
		TimeLimit:     int(limit / time.Second),
	}}
	e.registry.SendTo(s.PlayerA, ev)
	e.registry.SendTo(s.PlayerB, ev)

	s.after(limit+e.rules.AnswerGrace, func() { e.timeoutRound(s, idx) })
}

// timeoutRound synthesizes a zero-score non-answer for each player who
// let the round expire, so one unresponsive side never stalls the other.
func (e *BattleService) timeoutRound(s *BattleSession, roundIndex int) {
	for _, playerID := range s.pendingAnswers(roundIndex) {
		err := e.applyAnswer(context.Background(), s, playerID, roundIndex, -1, 0, false)
		if err != nil && !errors.Is(err, domain.ErrStaleRound) && !errors.Is(err, domain.ErrSessionNotFound) {
			log.Printf("battle %s: timeout answer for %s: %v", s.ID, playerID, err)
		}
	}
}

// completeBattle evicts the session, reconciles the outcome and tells
// both sides. Eviction happens first so no further answers can land.
func (e *BattleService) completeBattle(ctx context.Context, s *BattleSession, outcome domain.BattleOutcome) {
	e.mu.Lock()
	delete(e.sessions, s.ID)
	e.mu.Unlock()
	e.registry.Unbind(outcome.PlayerA)
	e.registry.Unbind(outcome.PlayerB)

	if err := e.reconciler.Finalize(ctx, outcome); err != nil {
		log.Printf("finalize battle %s: %v", outcome.SessionID, err)
	}

	for _, playerID := range []string{outcome.PlayerA, outcome.PlayerB} {
		e.registry.SendTo(playerID, domain.Event{Type: "battle_complete", Payload: domain.BattleComplete{
			WinnerID:     outcome.WinnerID,
			Player1Score: outcome.ScoreA,
			Player2Score: outcome.ScoreB,
			XPEarned:     outcome.Reward(playerID),
			Forfeit:      outcome.Forfeit,
		}})
	}
}

// drawQuestions samples the battle's immutable question set from the
// union of the floor's quiz items. Drawn once at pairing, never
// regenerated mid-session.
func (e *BattleService) drawQuestions(ctx context.Context, floor int) ([]domain.Question, error) {
	pool, err := e.questions.QuestionsForFloor(ctx, floor)
	if err != nil {
		return nil, err
	}
	if len(pool) == 0 {
		return nil, domain.ErrNoQuestions
	}
	drawn := make([]domain.Question, len(pool))
	copy(drawn, pool)
	rand.Shuffle(len(drawn), func(i, j int) { drawn[i], drawn[j] = drawn[j], drawn[i] })
	if len(drawn) > e.rules.QuestionsPerBattle {
		drawn = drawn[:e.rules.QuestionsPerBattle]
	}
	return drawn, nil
}

// summary degrades to an id-only view when the identity store cannot be
// reached; matchmaking should not fail over a missing display name.
func (e *BattleService) summary(ctx context.Context, playerID string) domain.PlayerSummary {
	profile, err := e.profiles.GetProfile(ctx, playerID)
	if err != nil {
		return domain.PlayerSummary{ID: playerID, Level: 1}
	}
	return domain.PlayerSummary{ID: profile.ID, DisplayName: profile.DisplayName, Level: profile.Level}
}
