package generator

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Dataset file names shared with the ingest command.
const (
	DonorsFile     = "donors.json"
	BloodBanksFile = "blood_banks.json"
	RequestsFile   = "requests.json"
)

// WriteDataset serializes the dataset into one JSON file per entity under dir.
func WriteDataset(dataset Dataset, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	files := []struct {
		name string
		data any
	}{
		{DonorsFile, dataset.Donors},
		{BloodBanksFile, dataset.BloodBanks},
		{RequestsFile, dataset.Requests},
	}
	for _, f := range files {
		if err := writeJSON(filepath.Join(dir, f.name), f.data); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, data any) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("open %s: %w", path, err)
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode json for %s: %w", path, err)
	}
	return nil
}
