package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/vanshika/reddrop/backend/internal/config"
	"github.com/vanshika/reddrop/backend/internal/generator"
	"github.com/vanshika/reddrop/backend/internal/graph"
	"github.com/vanshika/reddrop/backend/internal/logging"
	"github.com/vanshika/reddrop/backend/internal/repository"
	"github.com/vanshika/reddrop/backend/internal/service"
)

var (
	errMissingDataset = errors.New("dataset not found")
)

func main() {
	var (
		datasetDir   = flag.String("dataset-dir", "./data", "Directory containing donors.json, blood_banks.json and requests.json")
		donorsPath   = flag.String("donors", "", "Path to donors.json (overrides dataset-dir)")
		banksPath    = flag.String("banks", "", "Path to blood_banks.json (overrides dataset-dir)")
		requestsPath = flag.String("requests", "", "Path to requests.json (overrides dataset-dir; optional)")
		workers      = flag.Int("workers", 4, "Number of concurrent workers for ingestion")
	)
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger := logging.New(cfg.Logging).With("component", "ingest")

	donorFile, err := resolvePath(*datasetDir, *donorsPath, generator.DonorsFile)
	if err != nil {
		logger.Error("dataset resolution failed", "error", err)
		os.Exit(1)
	}
	bankFile, err := resolvePath(*datasetDir, *banksPath, generator.BloodBanksFile)
	if err != nil {
		logger.Error("dataset resolution failed", "error", err)
		os.Exit(1)
	}
	requestFile, err := resolvePath(*datasetDir, *requestsPath, generator.RequestsFile)
	if errors.Is(err, errMissingDataset) {
		requestFile = ""
	} else if err != nil {
		logger.Error("dataset resolution failed", "error", err)
		os.Exit(1)
	}

	var donors []service.DonorInput
	if err := loadJSON(donorFile, &donors); err != nil {
		logger.Error("failed to load donors", "error", err, "path", donorFile)
		os.Exit(1)
	}
	if len(donors) == 0 {
		logger.Error("donors dataset empty", "path", donorFile)
		os.Exit(1)
	}

	var banks []service.BloodBankInput
	if err := loadJSON(bankFile, &banks); err != nil {
		logger.Error("failed to load blood banks", "error", err, "path", bankFile)
		os.Exit(1)
	}

	var requests []service.RequestInput
	if requestFile != "" {
		if err := loadJSON(requestFile, &requests); err != nil {
			logger.Error("failed to load requests", "error", err, "path", requestFile)
			os.Exit(1)
		}
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	graphClient, err := buildGraphClient(ctx, logger, cfg)
	if err != nil {
		logger.Error("failed to create graph client", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := graphClient.Close(context.Background()); err != nil {
			logger.Warn("closing graph client failed", "error", err)
		}
	}()

	repo := repository.New(graphClient)
	if err := repo.EnsureSchema(ctx); err != nil {
		logger.Error("failed to prepare graph schema", "error", err)
		os.Exit(1)
	}
	svc := service.NewMatchingService(repo, repo, nil, nil, service.DefaultConfig())
	svc.WithLogger(logger)
	ingestor := service.NewBulkIngestor(svc, *workers)

	start := time.Now()
	failed := false
	report := func(entity string, err error) {
		if err == nil {
			return
		}
		var taskErr *service.TaskError
		if errors.As(err, &taskErr) {
			logger.Warn(entity+" ingestion finished with rejected records", "rejected", len(taskErr.Errors), "error", err)
			return
		}
		logger.Error(entity+" ingestion failed", "error", err)
		failed = true
	}

	logger.Info("ingesting donors", "count", len(donors), "workers", *workers)
	report("donor", ingestor.IngestDonors(ctx, donors))

	if !failed {
		logger.Info("ingesting blood banks", "count", len(banks))
		report("blood bank", ingestor.IngestBloodBanks(ctx, banks))
	}

	if !failed && len(requests) > 0 {
		logger.Info("ingesting requests", "count", len(requests))
		report("request", ingestor.IngestRequests(ctx, requests))
	}

	if failed {
		os.Exit(1)
	}
	logger.Info("ingestion complete",
		"duration", time.Since(start).String(),
		"donors", len(donors),
		"blood_banks", len(banks),
		"requests", len(requests),
	)
}

func resolvePath(baseDir, explicitPath, fallbackFile string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("stat %s: %w", explicitPath, err)
		}
		return explicitPath, nil
	}
	path := filepath.Join(baseDir, fallbackFile)
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("%w: %s", errMissingDataset, path)
	}
	return path, nil
}

func loadJSON(path string, target any) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(target); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

func buildGraphClient(ctx context.Context, logger *slog.Logger, cfg config.Config) (graph.Client, error) {
	if cfg.Graph.URI == "" {
		return nil, fmt.Errorf("GRAPH_URI is required for ingestion")
	}
	opts := graph.Options{
		URI:            cfg.Graph.URI,
		Database:       cfg.Graph.Database,
		Username:       cfg.Graph.Username,
		Password:       cfg.Graph.Password,
		MaxConnections: cfg.Graph.MaxConnections,
	}
	client, err := graph.NewNeo4jClient(ctx, opts)
	if err != nil {
		return nil, err
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		_ = client.Close(ctx)
		return nil, err
	}
	logger.Info("connected to graph", "uri", cfg.Graph.URI, "database", cfg.Graph.Database)
	return client, nil
}
