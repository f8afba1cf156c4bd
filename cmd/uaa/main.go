package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/taskboard/uaa/internal/api"
	"github.com/taskboard/uaa/internal/api/handler"
	"github.com/taskboard/uaa/internal/core/domain"
	"github.com/taskboard/uaa/internal/core/service"
	"github.com/taskboard/uaa/internal/infrastructure/config"
	mongodb "github.com/taskboard/uaa/internal/infrastructure/db/mongo"
	"github.com/taskboard/uaa/internal/infrastructure/db/postgres"
	redisdb "github.com/taskboard/uaa/internal/infrastructure/db/redis"
	"github.com/taskboard/uaa/internal/infrastructure/jwtcodec"
	"github.com/taskboard/uaa/internal/infrastructure/queue"
	"github.com/taskboard/uaa/pkg/logger"
)

const shutdownTimeout = 15 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(ctx)
	if err != nil {
		boot := zerolog.New(os.Stderr)
		boot.Fatal().Err(err).Msg("invalid configuration")
	}

	log := logger.Init(logger.Options{
		Level:   cfg.LogLevel,
		Pretty:  cfg.IsDevelopment(),
		Service: "uaa",
		Env:     cfg.Env,
	})

	if err := run(ctx, cfg, log); err != nil {
		log.Fatal().Err(err).Msg("uaa stopped")
	}
}

func run(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	// --- Backing stores ---
	pool, err := postgres.Connect(ctx, postgres.Config{DSN: cfg.Postgres.DSN, MaxConns: cfg.Postgres.MaxConns})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := postgres.ApplySchema(ctx, pool); err != nil {
		return err
	}

	rdb, err := redisdb.Connect(ctx, redisdb.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
	if err != nil {
		return err
	}
	defer func() { _ = rdb.Close() }()

	mongoClient, mdb, err := mongodb.Connect(ctx, mongodb.Config{URI: cfg.Mongo.URI, Database: cfg.Mongo.Database})
	if err != nil {
		return err
	}
	defer func() {
		dctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = mongoClient.Disconnect(dctx)
	}()

	log.Info().Msg("backing stores connected")

	// --- Token core ---
	codec, err := jwtcodec.New(cfg.JWT.Secret)
	if err != nil {
		return err
	}

	users := postgres.NewUserRepository(pool)
	sessions := postgres.NewSessionStore(pool)
	tx := postgres.NewTxManager(pool)
	index := redisdb.NewTokenIndex(rdb)
	incidents := mongodb.NewIncidentRepository(mdb)

	dispatcher := queue.NewDispatcher(cfg.Mirror.Workers, index, sessions, log)
	dispatcher.Start(ctx)

	ttl := service.TokenTTLs{Access: cfg.JWT.AccessTTL, Refresh: cfg.JWT.RefreshTTL}
	issuer := service.NewTokenIssuer(users, sessions, tx, index, codec, dispatcher, ttl, log)
	verifier := service.NewTokenVerifier(codec, index, sessions, log)
	revoker := service.NewTokenRevoker(sessions, index, log)
	deletion := service.NewUserDeletion(users, sessions, index, tx, incidents, cfg.Deletion.CompensationTimeout, log)
	auth := service.NewAuthService(users, issuer, verifier, revoker, log)

	// --- HTTP ---
	e := api.NewRouter(api.Dependencies{
		Auth:           auth,
		Users:          deletion,
		Incidents:      incidents,
		AccessVerifier: verifier.For(domain.TokenKindAccess),
		Health: []handler.Dependency{
			{Name: "postgres", Check: pool.Ping},
			{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }, Optional: !cfg.Readiness.RequireIndex},
			{Name: "mongodb", Check: func(ctx context.Context) error { return mongoClient.Ping(ctx, nil) }, Optional: true},
		},
		Log: log,
	})

	srvErr := make(chan error, 1)
	go func() {
		log.Info().Str("port", cfg.Port).Msg("http server listening")
		if err := e.Start(":" + cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			srvErr <- err
		}
		close(srvErr)
	}()

	select {
	case err := <-srvErr:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return e.Shutdown(shutdownCtx)
}
