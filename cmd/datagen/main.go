package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/vanshika/reddrop/backend/internal/generator"
)

func main() {
	cfg := generator.DefaultConfig()
	var (
		donors          = flag.Int("donors", cfg.NumDonors, "number of donors to generate")
		banks           = flag.Int("banks", cfg.NumBloodBanks, "number of blood banks to generate")
		requests        = flag.Int("requests", cfg.NumRequests, "number of blood requests to generate")
		availableChance = flag.Float64("available-chance", cfg.AvailableChance, "probability a donor is marked available")
		recentChance    = flag.Float64("recent-donor-chance", cfg.RecentDonorChance, "probability a donor is still inside the deferral window")
		missingLocation = flag.Float64("missing-location-chance", cfg.MissingLocationPct, "probability a donor has no location")
		spreadKm        = flag.Float64("spread-km", cfg.SpreadKm, "radius around each city centre to scatter records over")
		seed            = flag.Int64("seed", cfg.Seed, "random seed for deterministic generation")
		outputDir       = flag.String("output-dir", "data", "directory to write donors.json, blood_banks.json and requests.json")
		writeStdout     = flag.Bool("stdout", false, "write combined dataset to stdout instead of files")
	)
	flag.Parse()

	genCfg := generator.Config{
		NumDonors:          *donors,
		NumBloodBanks:      *banks,
		NumRequests:        *requests,
		AvailableChance:    clampProbability(*availableChance),
		RecentDonorChance:  clampProbability(*recentChance),
		MissingLocationPct: clampProbability(*missingLocation),
		SpreadKm:           *spreadKm,
		Seed:               *seed,
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	gen := generator.New(genCfg)
	dataset, err := gen.Generate(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "generation failed: %v\n", err)
		os.Exit(1)
	}

	if *writeStdout {
		if err := json.NewEncoder(os.Stdout).Encode(dataset); err != nil {
			fmt.Fprintf(os.Stderr, "failed to write dataset to stdout: %v\n", err)
			os.Exit(1)
		}
		return
	}

	if err := generator.WriteDataset(dataset, *outputDir); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write dataset: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stdout, "Generated %d donors, %d blood banks and %d requests into %s\n",
		len(dataset.Donors), len(dataset.BloodBanks), len(dataset.Requests), *outputDir)
}

func clampProbability(value float64) float64 {
	if value < 0 {
		return 0
	}
	if value > 1 {
		return 1
	}
	return value
}
