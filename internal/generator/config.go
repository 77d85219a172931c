package generator

// Config drives the synthetic data generator.
type Config struct {
	NumDonors          int
	NumBloodBanks      int
	NumRequests        int
	AvailableChance    float64
	RecentDonorChance  float64
	MissingLocationPct float64
	SpreadKm           float64
	Seed               int64
}

// DefaultConfig returns baseline settings for a city-sized dataset.
func DefaultConfig() Config {
	return Config{
		NumDonors:          5000,
		NumBloodBanks:      40,
		NumRequests:        200,
		AvailableChance:    0.7,
		RecentDonorChance:  0.2,
		MissingLocationPct: 0.02,
		SpreadKm:           25,
		Seed:               42,
	}
}
