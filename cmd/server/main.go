package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/vanshika/reddrop/backend/internal/config"
	"github.com/vanshika/reddrop/backend/internal/graph"
	"github.com/vanshika/reddrop/backend/internal/logging"
	"github.com/vanshika/reddrop/backend/internal/matching"
	"github.com/vanshika/reddrop/backend/internal/metrics"
	"github.com/vanshika/reddrop/backend/internal/pgstore"
	"github.com/vanshika/reddrop/backend/internal/repository"
	"github.com/vanshika/reddrop/backend/internal/reservation"
	"github.com/vanshika/reddrop/backend/internal/server"
	"github.com/vanshika/reddrop/backend/internal/service"
)

func main() {
	ctx := context.Background()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging)

	engine, err := buildEngine(cfg.Matching)
	if err != nil {
		logger.Error("failed to load compatibility table", "error", err, "path", cfg.Matching.CompatibilityFile)
		os.Exit(1)
	}

	graphClient, err := buildGraphClient(ctx, cfg)
	if err != nil {
		logger.Error("failed to create graph client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := graphClient.Close(context.Background()); err != nil {
			logger.Warn("closing graph client failed", "error", err)
		}
	}()

	health := server.CompositeHealth{
		"graph": server.GraphHealthService{Client: graphClient},
	}

	repo := repository.New(graphClient)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("failed to prepare graph schema", "error", err)
		os.Exit(1)
	}
	var candidates service.CandidateProvider = repo
	if cfg.Matching.CandidateSource == config.SourcePostgres {
		store, err := pgstore.Open(ctx, pgstore.Options{
			DSN:      cfg.Postgres.DSN,
			MaxConns: int32(cfg.Postgres.MaxConns),
		})
		if err != nil {
			logger.Error("failed to open postgres candidate source", "error", err)
			os.Exit(1)
		}
		defer store.Close()
		candidates = store
		health["postgres"] = server.ProbeFunc(store.Ping)
		logger.Info("reading candidates from postgres")
	}

	var reserver reservation.Reserver = reservation.NewMemoryReserver()
	if cfg.Redis.Addr != "" {
		rr, err := reservation.NewRedisReserver(ctx, reservation.RedisOptions{
			Addr:      cfg.Redis.Addr,
			Password:  cfg.Redis.Password,
			DB:        cfg.Redis.DB,
			KeyPrefix: cfg.Redis.KeyPrefix,
		})
		if err != nil {
			logger.Error("failed to connect to redis", "error", err, "addr", cfg.Redis.Addr)
			os.Exit(1)
		}
		defer func() {
			if err := rr.Close(); err != nil {
				logger.Warn("closing redis client failed", "error", err)
			}
		}()
		reserver = rr
		health["redis"] = server.ProbeFunc(rr.Ping)
		logger.Info("donor reservations stored in redis", "addr", cfg.Redis.Addr)
	} else {
		logger.Warn("REDIS_ADDR not set; donor reservations are process-local")
	}

	svc := service.NewMatchingService(repo, candidates, engine, reserver, service.Config{
		DefaultRadiusKm:    cfg.Matching.DefaultRadiusKm,
		ReservationTTL:     cfg.Matching.ReservationTTL,
		EnforceEligibility: cfg.Matching.EnforceEligibility,
	})
	svc.WithLogger(logger)

	var m *metrics.Metrics
	if cfg.HTTP.MetricsEnabled {
		m = metrics.New()
		svc.WithMetrics(m)
	}

	router := server.NewRouter(logger, server.RouterDependencies{
		Health:           health,
		API:              server.NewAPIHandlers(logger, svc),
		Metrics:          m,
		AllowedOrigins:   parseAllowedOrigins(cfg.HTTP.AllowedOriginsCSV),
		AllowCredentials: true,
	})

	srv := server.New(logger, cfg.HTTP, router)

	runCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(runCtx); err != nil {
		logger.Error("server stopped unexpectedly", "error", err)
		os.Exit(1)
	}
	logger.Info("server stopped")
}

// buildEngine loads a custom compatibility table when one is configured.
func buildEngine(cfg config.MatchingConfig) (*matching.Engine, error) {
	if cfg.CompatibilityFile == "" {
		return matching.NewEngine(nil), nil
	}
	table, err := matching.LoadTableFile(cfg.CompatibilityFile)
	if err != nil {
		return nil, err
	}
	return matching.NewEngine(table), nil
}

func buildGraphClient(ctx context.Context, cfg config.Config) (graph.Client, error) {
	if cfg.Graph.URI == "" {
		return nil, graph.ErrMissingURI
	}

	opts := graph.Options{
		URI:            cfg.Graph.URI,
		Database:       cfg.Graph.Database,
		Username:       cfg.Graph.Username,
		Password:       cfg.Graph.Password,
		MaxConnections: cfg.Graph.MaxConnections,
	}
	return graph.NewNeo4jClient(ctx, opts)
}

func parseAllowedOrigins(csv string) []string {
	if csv == "" {
		return nil
	}
	parts := strings.Split(csv, ",")
	var origins []string
	for _, part := range parts {
		origin := strings.TrimSpace(part)
		if origin == "" {
			continue
		}
		origins = append(origins, origin)
	}
	return origins
}
