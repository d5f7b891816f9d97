package integration

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"contest-service/internal/app"
	"contest-service/internal/domain"
	pginfra "contest-service/internal/infra/postgres"
	pgmigrations "contest-service/internal/infra/postgres/migrations"
	infraredis "contest-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

func TestContestEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, pgURL)
	defer db.Close()
	migrateAndSeed(t, ctx, db)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	bank := infraredis.NewQuestionBank(redisClient, pginfra.NewBankLoader(pool), 5*time.Minute)
	repo := pginfra.NewContestRepository(db)

	clock := &fakeClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	settings := app.Settings{
		MaxTries:         2,
		DeadlineDuration: 10 * time.Minute,
		Quotas: map[domain.Category]int{
			domain.CategoryRadio:  2,
			domain.CategoryBinary: 1,
		},
		Weights: map[domain.Category]float64{
			domain.CategoryRadio:  10,
			domain.CategoryBinary: 5,
		},
	}
	service := app.NewContestServiceWithClock(repo, bank, settings, clock.Now, nil)

	// First attempt: answer everything correctly and submit.
	detail, err := service.StartOrGet(ctx, "s1")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if len(detail.Questions) != 3 {
		t.Fatalf("expected 3 drawn questions, got %d", len(detail.Questions))
	}
	for _, q := range detail.Questions {
		correct, ok := q.Question.CorrectChoice()
		if !ok {
			t.Fatalf("question %d has no correct choice", q.Question.ID)
		}
		id := correct.ID
		if err := service.UpdateAnswer(ctx, "s1", q.Question.ID, &id); err != nil {
			t.Fatalf("answer question %d: %v", q.Question.ID, err)
		}
	}
	clock.now = clock.now.Add(time.Minute)
	resp, err := service.Submit(ctx, "s1")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !resp.SubmittedAt.Equal(clock.now) {
		t.Fatalf("expected submit stamped %v, got %v", clock.now, resp.SubmittedAt)
	}

	review, err := service.Review(ctx, "s1", 0)
	if err != nil {
		t.Fatalf("review: %v", err)
	}
	if review.Score != 25 {
		t.Fatalf("expected full score 25, got %v", review.Score)
	}

	// Second attempt expires untouched and is finalized at its deadline.
	detail, err = service.StartOrGet(ctx, "s1")
	if err != nil {
		t.Fatalf("second start: %v", err)
	}
	clock.now = detail.Deadline.Add(time.Second)
	status, err := service.Home(ctx, "s1")
	if err != nil {
		t.Fatalf("home: %v", err)
	}
	if status != app.StatusDeadlinePassed {
		t.Fatalf("expected %q, got %q", app.StatusDeadlinePassed, status)
	}
	expired, err := service.Review(ctx, "s1", 1)
	if err != nil {
		t.Fatalf("review expired attempt: %v", err)
	}
	if !expired.SubmittedAt.Equal(detail.Deadline) {
		t.Fatalf("expected auto-finalize stamped at deadline %v, got %v", detail.Deadline, expired.SubmittedAt)
	}
	if expired.Score != 0 {
		t.Fatalf("expected untouched attempt to score 0, got %v", expired.Score)
	}

	// Both attempts consumed; the try limit refuses a third.
	if _, err := service.StartOrGet(ctx, "s1"); !errors.Is(err, domain.ErrTryLimitExceeded) {
		t.Fatalf("expected try limit exceeded, got %v", err)
	}

	summary, err := service.Info(ctx, "s1")
	if err != nil {
		t.Fatalf("info: %v", err)
	}
	if summary.BestScore != 25 || summary.AttemptsUsed != 2 || summary.AttemptsLeft != 0 {
		t.Fatalf("unexpected summary: %+v", summary)
	}
}

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time { return c.now }

func openBun(t *testing.T, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	return bun.NewDB(sqldb, pgdialect.New())
}

func migrateAndSeed(t *testing.T, ctx context.Context, db *bun.DB) {
	t.Helper()
	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	seed := `
INSERT INTO questions (id, content, category) VALUES
  (1, 'radio one', 'radio'),
  (2, 'radio two', 'radio'),
  (3, 'radio three', 'radio'),
  (4, 'binary one', 'binary'),
  (5, 'binary two', 'binary');
INSERT INTO choices (id, question_id, content, correct) VALUES
  (11, 1, 'first', true), (12, 1, 'second', false),
  (21, 2, 'first', true), (22, 2, 'second', false),
  (31, 3, 'first', true), (32, 3, 'second', false),
  (41, 4, 'true', true), (42, 4, 'false', false),
  (51, 5, 'true', true), (52, 5, 'false', false);
`
	if _, err := db.ExecContext(ctx, seed); err != nil {
		t.Fatalf("seed questions: %v", err)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "contest", "POSTGRES_PASSWORD": "contestpass", "POSTGRES_DB": "contestdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://contest:contestpass@%s:%s/contestdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
