package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	_ "github.com/lib/pq"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	jwttoken "rollbook/internal/jwt_token"
	"rollbook/internal/platform/config"
	"rollbook/internal/platform/httpserver"
	"rollbook/internal/platform/logger"
	"rollbook/internal/platform/metrics"
	"rollbook/internal/platform/middleware"
	platformredis "rollbook/internal/platform/redis"
	"rollbook/internal/register/cache"
	"rollbook/internal/register/events"
	"rollbook/internal/register/export"
	"rollbook/internal/register/handler"
	"rollbook/internal/register/service"
	"rollbook/internal/register/store"
	"rollbook/internal/register/store/memory"
	"rollbook/internal/register/store/notion"
	"rollbook/internal/register/store/postgres"
	"rollbook/internal/register/store/sqlite"
)

// main wires the configured backend, collaborators, and HTTP surface.
// Business logic lives in internal/register.
func main() {
	cfg := config.FromEnv()
	log := logger.New()
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	st, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return fmt.Errorf("build store: %w", err)
	}
	defer closeStore()

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	var rosterCache *cache.Roster
	if redisClient != nil {
		defer redisClient.Close()
		rosterCache = cache.New(redisClient.Client, cfg.Redis.RosterTTL)
	}

	var publisher service.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return fmt.Errorf("connect kafka: %w", err)
		}
		defer kafka.Close()
		publisher = kafka
	}

	m := metrics.New()
	svc := service.New(st, cfg.RegisterTitle,
		service.WithLogger(log),
		service.WithMetrics(m),
		service.WithPublisher(publisher),
		service.WithRosterCache(rosterCache),
	)

	if _, err := svc.EnsureSchema(ctx); err != nil {
		// The register may live behind a flaky backend; the ensure
		// endpoint can finish the job later.
		log.Warn("initial register provisioning failed", "error", err)
	}

	var validator middleware.JWTValidator
	if cfg.Server.JWTSigningKey != "" {
		validator = jwttoken.NewJWTServiceAdapter(jwttoken.NewJWTService(cfg.Server.JWTSigningKey, "rollbook"))
	} else {
		log.Warn("JWT_SIGNING_KEY not set; running in dev mode, writes attributed to dev")
	}

	h := handler.New(svc, log, m, export.ParseWeekEncoding(cfg.WeekEncoding))

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recovery(log))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Timeout(30 * time.Second))
	r.Handle("/metrics", promhttp.Handler())
	h.Register(r)
	r.Group(func(pr chi.Router) {
		pr.Use(middleware.ContentTypeJSON)
		pr.Use(middleware.RequireAuth(validator, log))
		h.RegisterProtected(pr)
	})

	srv := httpserver.New(cfg.Server.Addr, r)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("starting rollbook", "addr", cfg.Server.Addr, "backend", string(cfg.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func buildStore(ctx context.Context, cfg config.Config) (store.Store, func(), error) {
	noop := func() {}
	switch cfg.Backend {
	case config.BackendNotion:
		if cfg.Notion.Token == "" || cfg.Notion.ParentPageID == "" {
			return nil, noop, fmt.Errorf("notion backend requires NOTION_TOKEN and NOTION_PARENT_PAGE_ID")
		}
		client := notion.NewClient(cfg.Notion.Token)
		return notion.New(client, cfg.Notion.ParentPageID), noop, nil

	case config.BackendPostgres:
		db, err := sql.Open("postgres", cfg.DatabaseURL)
		if err != nil {
			return nil, noop, err
		}
		st := postgres.New(db)
		if err := st.Migrate(ctx); err != nil {
			db.Close()
			return nil, noop, err
		}
		return st, func() { db.Close() }, nil

	case config.BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = strings.TrimPrefix(cfg.DatabaseURL, "sqlite:")
		}
		st, err := sqlite.Open(ctx, path)
		if err != nil {
			return nil, noop, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, noop, err
		}
		return st, func() { st.Close() }, nil

	default:
		return memory.New(), noop, nil
	}
}
