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

func fastRules() app.Rules {
	rules := app.DefaultRules()
	rules.SettleDelay = 10 * time.Millisecond
	rules.AdvanceDelay = 5 * time.Millisecond
	rules.AnswerGrace = 100 * time.Millisecond
	return rules
}

func floorQuestions(n, timeLimit int) []domain.Question {
	questions := make([]domain.Question, n)
	for i := range questions {
		questions[i] = domain.Question{
			ID:            "q" + string(rune('1'+i)),
			Prompt:        "Pick the second option",
			Options:       []string{"wrong", "right", "also wrong"},
			CorrectAnswer: 1,
			TimeLimit:     timeLimit,
		}
	}
	return questions
}

type testEngine struct {
	service  *app.BattleService
	profiles *memory.ProfileStore
	battles  *memory.BattleStore
}

func newTestEngine(rules app.Rules, questions []domain.Question) *testEngine {
	profiles := memory.NewProfileStore()
	profiles.Seed(domain.Profile{ID: "alice", DisplayName: "Alice", Level: 2, Floor: 3})
	profiles.Seed(domain.Profile{ID: "bob", DisplayName: "Bob", Level: 3, Floor: 3})
	profiles.Seed(domain.Profile{ID: "cara", DisplayName: "Cara", Level: 2, Floor: 3})
	battles := memory.NewBattleStore()

	repo := memory.NewQuestionRepository(
		memory.NewStaticQuestionLoader(map[int][]domain.Question{3: questions}), time.Minute)
	service := app.NewBattleService(repo, profiles, battles, memory.NewFinalizeGuard(), rules)
	return &testEngine{service: service, profiles: profiles, battles: battles}
}

// nextEvent reads a player's channel until an event of the wanted type
// arrives, skipping unrelated traffic.
func nextEvent(t *testing.T, conn *app.Conn, want string) domain.Event {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case ev, ok := <-conn.Send:
			if !ok {
				t.Fatalf("connection closed while waiting for %s", want)
			}
			if ev.Type == want {
				return ev
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", want)
		}
	}
}

func TestFullBattleFlow(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(fastRules(), floorQuestions(5, 30))

	alice := engine.service.Announce("alice")
	bob := engine.service.Announce("bob")
	nextEvent(t, alice, "joined")
	nextEvent(t, bob, "joined")

	if err := engine.service.SeekMatch(ctx, "alice", 3); err != nil {
		t.Fatalf("alice seek: %v", err)
	}
	nextEvent(t, alice, "waiting")

	if err := engine.service.SeekMatch(ctx, "bob", 3); err != nil {
		t.Fatalf("bob seek: %v", err)
	}
	found := nextEvent(t, alice, "match_found").Payload.(domain.MatchFound)
	nextEvent(t, bob, "match_found")
	if found.TotalQuestions != 5 {
		t.Fatalf("expected 5 questions, got %d", found.TotalQuestions)
	}

	// alice answers all five correctly with 25s left, bob misses all
	for round := 0; round < 5; round++ {
		q := nextEvent(t, alice, "question").Payload.(domain.RoundQuestion)
		nextEvent(t, bob, "question")
		if q.QuestionIndex != round {
			t.Fatalf("expected round %d, got %d", round, q.QuestionIndex)
		}

		if err := engine.service.SubmitAnswer(ctx, "alice", found.BattleID, round, 1, 25); err != nil {
			t.Fatalf("alice answer round %d: %v", round, err)
		}
		result := nextEvent(t, alice, "answer_result").Payload.(domain.AnswerResult)
		if !result.Correct || result.PointsEarned != 25 {
			t.Fatalf("expected 25 points, got %+v", result)
		}

		if err := engine.service.SubmitAnswer(ctx, "bob", found.BattleID, round, 0, 25); err != nil {
			t.Fatalf("bob answer round %d: %v", round, err)
		}
	}

	aliceDone := nextEvent(t, alice, "battle_complete").Payload.(domain.BattleComplete)
	bobDone := nextEvent(t, bob, "battle_complete").Payload.(domain.BattleComplete)
	if aliceDone.WinnerID != "alice" || bobDone.WinnerID != "alice" {
		t.Fatalf("expected alice to win on both sides: %+v / %+v", aliceDone, bobDone)
	}
	if aliceDone.XPEarned != 200 || bobDone.XPEarned != 50 {
		t.Fatalf("expected 200/50 XP, got %d/%d", aliceDone.XPEarned, bobDone.XPEarned)
	}

	if engine.service.LiveBattles() != 0 {
		t.Fatalf("session should be evicted after reconciliation")
	}

	aliceProfile, _ := engine.profiles.GetProfile(ctx, "alice")
	if aliceProfile.XP != 200 || aliceProfile.BattlesWon != 1 {
		t.Fatalf("winner stats not applied: %+v", aliceProfile)
	}
	bobProfile, _ := engine.profiles.GetProfile(ctx, "bob")
	if bobProfile.XP != 50 || bobProfile.BattlesLost != 1 {
		t.Fatalf("loser stats not applied: %+v", bobProfile)
	}
	if len(engine.battles.Recorded()) != 1 {
		t.Fatalf("expected one battle record")
	}
}

func TestThreeSeekersProduceOnePairing(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(fastRules(), floorQuestions(2, 30))

	alice := engine.service.Announce("alice")
	bob := engine.service.Announce("bob")
	cara := engine.service.Announce("cara")

	_ = engine.service.SeekMatch(ctx, "alice", 3)
	_ = engine.service.SeekMatch(ctx, "bob", 3)
	_ = engine.service.SeekMatch(ctx, "cara", 3)

	nextEvent(t, alice, "match_found")
	nextEvent(t, bob, "match_found")
	nextEvent(t, cara, "waiting")

	if engine.service.LiveBattles() != 1 {
		t.Fatalf("expected exactly one battle, got %d", engine.service.LiveBattles())
	}
}

func TestSeekMatchRejectsPlayerAlreadyInBattle(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(fastRules(), floorQuestions(2, 30))

	engine.service.Announce("alice")
	engine.service.Announce("bob")
	_ = engine.service.SeekMatch(ctx, "alice", 3)
	_ = engine.service.SeekMatch(ctx, "bob", 3)

	if err := engine.service.SeekMatch(ctx, "alice", 3); !errors.Is(err, domain.ErrAlreadyInBattle) {
		t.Fatalf("expected ErrAlreadyInBattle, got %v", err)
	}
}

func TestReannounceKeepsSingleSessionInvariant(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(fastRules(), floorQuestions(2, 30))

	alice := engine.service.Announce("alice")
	engine.service.Announce("bob")
	engine.service.Announce("cara")
	_ = engine.service.SeekMatch(ctx, "alice", 3)
	_ = engine.service.SeekMatch(ctx, "bob", 3)
	nextEvent(t, alice, "match_found")

	// alice reconnects mid-battle; the replacement carries her binding
	alice2 := engine.service.Announce("alice")
	if err := engine.service.SeekMatch(ctx, "alice", 3); !errors.Is(err, domain.ErrAlreadyInBattle) {
		t.Fatalf("expected ErrAlreadyInBattle after reconnect, got %v", err)
	}
	_ = engine.service.SeekMatch(ctx, "cara", 3)
	if engine.service.LiveBattles() != 1 {
		t.Fatalf("expected one live battle, got %d", engine.service.LiveBattles())
	}

	// tearing down the replacement still forfeits the battle
	engine.service.Disconnect(alice2)
	profile, _ := engine.profiles.GetProfile(ctx, "alice")
	if profile.BattlesLost != 1 {
		t.Fatalf("reconnect must not disarm the forfeit path: %+v", profile)
	}
	if engine.service.LiveBattles() != 0 {
		t.Fatalf("forfeited session should be evicted")
	}
}

type failingQuestionRepo struct {
	failures int
	delegate app.QuestionRepository
}

func (r *failingQuestionRepo) QuestionsForFloor(ctx context.Context, floor int) ([]domain.Question, error) {
	if r.failures > 0 {
		r.failures--
		return nil, errors.New("content store unavailable")
	}
	return r.delegate.QuestionsForFloor(ctx, floor)
}

func TestContentFailureRequeuesOpponent(t *testing.T) {
	ctx := context.Background()
	profiles := memory.NewProfileStore()
	repo := &failingQuestionRepo{
		failures: 1,
		delegate: memory.NewQuestionRepository(
			memory.NewStaticQuestionLoader(map[int][]domain.Question{3: floorQuestions(2, 30)}), time.Minute),
	}
	service := app.NewBattleService(repo, profiles, memory.NewBattleStore(), memory.NewFinalizeGuard(), fastRules())

	alice := service.Announce("alice")
	bob := service.Announce("bob")
	_ = service.SeekMatch(ctx, "alice", 3)
	nextEvent(t, alice, "waiting")

	if err := service.SeekMatch(ctx, "bob", 3); err == nil {
		t.Fatalf("expected the content failure to surface")
	}
	// alice goes back to waiting instead of silently dropping out
	nextEvent(t, alice, "waiting")

	_ = service.SeekMatch(ctx, "bob", 3)
	nextEvent(t, alice, "match_found")
	nextEvent(t, bob, "match_found")
}

func TestDisconnectForfeitsActiveBattle(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(fastRules(), floorQuestions(3, 30))

	alice := engine.service.Announce("alice")
	bob := engine.service.Announce("bob")
	_ = engine.service.SeekMatch(ctx, "alice", 3)
	_ = engine.service.SeekMatch(ctx, "bob", 3)
	found := nextEvent(t, alice, "match_found").Payload.(domain.MatchFound)
	nextEvent(t, bob, "match_found")

	_ = engine.service.SubmitAnswer(ctx, "alice", found.BattleID, 0, 1, 20)
	engine.service.Disconnect(bob)

	done := nextEvent(t, alice, "battle_complete").Payload.(domain.BattleComplete)
	if done.WinnerID != "alice" || !done.Forfeit {
		t.Fatalf("expected forfeit win for alice, got %+v", done)
	}
	if done.XPEarned != 200 {
		t.Fatalf("forfeit winner gets the full reward, got %d", done.XPEarned)
	}
	if engine.service.LiveBattles() != 0 {
		t.Fatalf("forfeited session should be evicted")
	}

	bobProfile, _ := engine.profiles.GetProfile(ctx, "bob")
	if bobProfile.BattlesLost != 1 || bobProfile.XP != 50 {
		t.Fatalf("forfeiting player still records the loss: %+v", bobProfile)
	}
}

func TestRoundTimeoutAdvancesWithoutAnswer(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(fastRules(), floorQuestions(1, 1))

	alice := engine.service.Announce("alice")
	engine.service.Announce("bob")
	_ = engine.service.SeekMatch(ctx, "alice", 3)
	_ = engine.service.SeekMatch(ctx, "bob", 3)
	found := nextEvent(t, alice, "match_found").Payload.(domain.MatchFound)

	nextEvent(t, alice, "question")
	if err := engine.service.SubmitAnswer(ctx, "alice", found.BattleID, 0, 1, 20); err != nil {
		t.Fatalf("alice answer: %v", err)
	}
	// bob never answers; the 1s limit plus grace forces completion

	done := nextEvent(t, alice, "battle_complete").Payload.(domain.BattleComplete)
	if done.WinnerID != "alice" {
		t.Fatalf("expected alice to win after bob timed out, got %+v", done)
	}
	if done.Player2Score != 0 {
		t.Fatalf("timed-out round scores zero, got %d", done.Player2Score)
	}
}

func TestLeaveQueueRemovesTicket(t *testing.T) {
	ctx := context.Background()
	engine := newTestEngine(fastRules(), floorQuestions(2, 30))

	alice := engine.service.Announce("alice")
	bob := engine.service.Announce("bob")
	_ = engine.service.SeekMatch(ctx, "alice", 3)
	engine.service.LeaveQueue("alice")
	nextEvent(t, alice, "left_queue")

	// bob now finds nobody
	_ = engine.service.SeekMatch(ctx, "bob", 3)
	nextEvent(t, bob, "waiting")
}
