package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/config"
	"contest-service/internal/domain"
	"contest-service/internal/infra/memory"
	pginfra "contest-service/internal/infra/postgres"
	redisinfra "contest-service/internal/infra/redis"
	transport "contest-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the contest server",
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
	settings, err := cfg.Contest.Settings()
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

	var loader memory.BankLoader = memory.NewStaticBankLoader(sampleQuestions())
	if pool != nil {
		loader = pginfra.NewBankLoader(pool)
	}

	bankTTL := config.TTLDuration(cfg.Bank.TTL, 10*time.Minute)
	var bank app.QuestionBank
	if redisClient != nil {
		bank = redisinfra.NewQuestionBank(redisClient, loader, bankTTL)
	} else {
		bank = memory.NewQuestionBank(loader, bankTTL)
	}

	var repo app.ContestRepository = memory.NewContestRepository()
	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()
		repo = pginfra.NewContestRepository(db)
	}

	service := app.NewContestService(repo, bank, settings)
	handler := transport.NewHandler(service)
	statusFeed := transport.NewStatusFeed(service)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	handler.Register(mux)
	mux.HandleFunc("GET /ws/status", statusFeed.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting contest service on :%s", finalPort)
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

// sampleQuestions provides a minimal demo bank; configure Postgres to serve
// real content in production.
func sampleQuestions() []domain.Question {
	return []domain.Question{
		{
			ID: 1, Content: "Which planet is closest to the sun?", Category: domain.CategoryRadio,
			Choices: []domain.Choice{
				{ID: 11, Content: "Mercury", Correct: true},
				{ID: 12, Content: "Venus"},
				{ID: 13, Content: "Mars"},
			},
		},
		{
			ID: 2, Content: "Which gas makes up most of Earth's atmosphere?", Category: domain.CategoryRadio,
			Choices: []domain.Choice{
				{ID: 21, Content: "Oxygen"},
				{ID: 22, Content: "Nitrogen", Correct: true},
				{ID: 23, Content: "Carbon dioxide"},
			},
		},
		{
			ID: 3, Content: "Which ocean is the largest?", Category: domain.CategoryRadio,
			Choices: []domain.Choice{
				{ID: 31, Content: "Atlantic"},
				{ID: 32, Content: "Pacific", Correct: true},
				{ID: 33, Content: "Indian"},
			},
		},
		{
			ID: 4, Content: "Sound travels faster in water than in air.", Category: domain.CategoryBinary,
			Choices: []domain.Choice{
				{ID: 41, Content: "True", Correct: true},
				{ID: 42, Content: "False"},
			},
		},
		{
			ID: 5, Content: "The Great Wall of China is visible from the Moon.", Category: domain.CategoryBinary,
			Choices: []domain.Choice{
				{ID: 51, Content: "True"},
				{ID: 52, Content: "False", Correct: true},
			},
		},
	}
}
