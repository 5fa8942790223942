package cli

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"livequiz-service/internal/app"
	"livequiz-service/internal/auth"
	"livequiz-service/internal/config"
	"livequiz-service/internal/content"
	"livequiz-service/internal/domain"
	"livequiz-service/internal/infra/memory"
	pgstore "livequiz-service/internal/infra/postgres"
	redisstore "livequiz-service/internal/infra/redis"
	"livequiz-service/internal/session"
	transport "livequiz-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the live quiz server",
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
	log := newLogger(cfg)

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg, log); err != nil {
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
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
	}

	var loader memory.QuizLoader = memory.NewStaticQuizLoader(sampleQuizzes())
	if pool != nil {
		loader = pgstore.NewQuizLoader(pool)
	}

	quizTTL := config.TTLDuration(cfg.Quiz.TTL, 10*time.Minute)
	var quizzes content.Source
	if redisClient != nil {
		quizzes = redisstore.NewQuizCache(redisClient, loader, quizTTL)
	} else {
		quizzes = memory.NewQuizCache(loader, quizTTL)
	}

	var summaries app.SummaryStore
	switch {
	case pool != nil:
		summaries = pgstore.NewSummaryStore(pool)
	case redisClient != nil:
		summaries = redisstore.NewSummaryStore(redisClient, redisTTL)
	default:
		summaries = memory.NewSummaryStore()
	}

	timing := session.DefaultTiming()
	timing.Countdown = config.TTLDuration(cfg.Engine.Countdown, timing.Countdown)
	timing.DisplayDelay = config.TTLDuration(cfg.Engine.DisplayDelay, timing.DisplayDelay)
	timing.Freeze = config.TTLDuration(cfg.Engine.Freeze, timing.Freeze)
	timing.AnswerGrace = config.TTLDuration(cfg.Engine.AnswerGrace, timing.AnswerGrace)
	if cfg.Engine.Alpha > 0 {
		timing.Alpha = cfg.Engine.Alpha
	}

	clock := clockwork.NewRealClock()
	hub := transport.NewHub(log)

	var svc *app.Service
	registry := session.NewRegistry(session.RegistryConfig{
		Sink:         hub,
		Clock:        clock,
		Timing:       timing,
		DrainTimeout: config.TTLDuration(cfg.Engine.DrainTimeout, session.DefaultDrainTimeout),
		Logger:       log,
		OnSummary:    func(summary domain.SessionSummary) { svc.PersistSummary(summary) },
	})

	secret := cfg.Auth.Secret
	if secret == "" {
		secret = "dev-secret"
		log.Warn().Msg("auth secret not configured, using development default")
	}
	tokens := auth.NewJWT(secret, config.TTLDuration(cfg.Auth.TokenTTL, 12*time.Hour))

	svc = app.NewService(registry, quizzes, summaries, tokens, log)
	wsHandler := transport.NewWSHandler(svc, hub, tokens, clock, log)
	apiHandler := transport.NewAPIHandler(svc, log)

	mux := http.NewServeMux()
	apiHandler.Register(mux)
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:        ":" + finalPort,
		Handler:     mux,
		ReadTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting live quiz service")
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func newLogger(cfg config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Log.Level)
	if err != nil || cfg.Log.Level == "" {
		level = zerolog.InfoLevel
	}
	out := zerolog.New(os.Stdout)
	if cfg.Log.Pretty {
		out = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout})
	}
	return out.Level(level).With().Timestamp().Logger()
}

// sampleQuizzes seeds the in-memory loader; a Postgres-backed loader
// replaces this in production.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"quiz-1": {
			ID:    "quiz-1",
			Title: "Warmup",
			Questions: []domain.Question{
				{
					ID:   "q1",
					Text: "What is 2 + 2?",
					Choices: []domain.Choice{
						{ID: "c1", Text: "3"},
						{ID: "c2", Text: "4", Correct: true},
						{ID: "c3", Text: "5"},
					},
					TimeLimitSec: 20,
					BasePoints:   1000,
				},
				{
					ID:   "q2",
					Text: "Which of these are prime?",
					Choices: []domain.Choice{
						{ID: "c1", Text: "2", Correct: true},
						{ID: "c2", Text: "4"},
						{ID: "c3", Text: "7", Correct: true},
						{ID: "c4", Text: "9"},
					},
					TimeLimitSec: 15,
					BasePoints:   1000,
				},
			},
		},
	}
}
