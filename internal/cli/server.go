package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"quiz-battle-service/internal/app"
	"quiz-battle-service/internal/config"
	"quiz-battle-service/internal/domain"
	"quiz-battle-service/internal/infra/memory"
	pgstore "quiz-battle-service/internal/infra/postgres"
	redisstore "quiz-battle-service/internal/infra/redis"
	transport "quiz-battle-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the battle server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuestionLoader = memory.NewStaticQuestionLoader(sampleFloors())
	if pool != nil {
		loader = pgstore.NewQuestionLoader(pool)
	}

	contentTTL := config.TTLDuration(cfg.Content.TTL, 10*time.Minute)
	var questions app.QuestionRepository
	if redisClient != nil {
		questions = redisstore.NewQuestionRepository(redisClient, loader, contentTTL)
	} else {
		questions = memory.NewQuestionRepository(loader, contentTTL)
	}

	var profiles app.ProfileStore = memory.NewProfileStore()
	var battles app.BattleStore = memory.NewBattleStore()
	if pool != nil {
		profiles = pgstore.NewProfileStore(pool)
		battles = pgstore.NewBattleStore(pool)
	}

	var guard app.FinalizeGuard = memory.NewFinalizeGuard()
	if redisClient != nil {
		guard = redisstore.NewFinalizeGuard(redisClient, config.TTLDuration(cfg.Redis.TTL, 10*time.Minute))
	}

	service := app.NewBattleService(questions, profiles, battles, guard, battleRules(cfg))
	wsHandler := transport.NewWSHandler(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting battle service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func battleRules(cfg config.Config) app.Rules {
	rules := app.DefaultRules()
	if cfg.Battle.Questions > 0 {
		rules.QuestionsPerBattle = cfg.Battle.Questions
	}
	if cfg.Battle.WinXP > 0 {
		rules.WinXP = cfg.Battle.WinXP
	}
	if cfg.Battle.ConsolationXP > 0 {
		rules.ConsolationXP = cfg.Battle.ConsolationXP
	}
	rules.SettleDelay = config.TTLDuration(cfg.Battle.SettleDelay, rules.SettleDelay)
	rules.AdvanceDelay = config.TTLDuration(cfg.Battle.AdvanceDelay, rules.AdvanceDelay)
	rules.AnswerGrace = config.TTLDuration(cfg.Battle.AnswerGrace, rules.AnswerGrace)
	return rules
}

// sampleFloors provides minimal content for running without Postgres.
func sampleFloors() map[int][]domain.Question {
	return map[int][]domain.Question{
		1: {
			{
				ID:            "q1",
				Prompt:        "What is 2 + 2?",
				Options:       []string{"3", "4", "5"},
				CorrectAnswer: 1,
				TimeLimit:     30,
			},
			{
				ID:            "q2",
				Prompt:        "What is 7 x 6?",
				Options:       []string{"42", "48", "36"},
				CorrectAnswer: 0,
				TimeLimit:     30,
			},
			{
				ID:            "q3",
				Prompt:        "What is 10 - 3?",
				Options:       []string{"6", "8", "7"},
				CorrectAnswer: 2,
				TimeLimit:     30,
			},
		},
	}
}
