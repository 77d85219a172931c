package generator

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"time"

	"github.com/vanshika/reddrop/backend/internal/domain"
	"github.com/vanshika/reddrop/backend/internal/service"
)

const kmPerDegree = 111.19508

// Dataset contains the generated donors, banks and requests.
type Dataset struct {
	Donors     []service.DonorInput     `json:"donors"`
	BloodBanks []service.BloodBankInput `json:"bloodBanks"`
	Requests   []service.RequestInput   `json:"requests"`
}

// Generator produces synthetic donor, inventory and request data clustered
// around a fixed set of cities.
type Generator struct {
	cfg   Config
	rand  *rand.Rand
	now   func() time.Time
	names nameFragments
}

// New returns a configured Generator instance.
func New(cfg Config) *Generator {
	def := DefaultConfig()
	if cfg.NumDonors <= 0 {
		cfg.NumDonors = def.NumDonors
	}
	if cfg.NumBloodBanks <= 0 {
		cfg.NumBloodBanks = def.NumBloodBanks
	}
	if cfg.NumRequests < 0 {
		cfg.NumRequests = 0
	}
	if cfg.SpreadKm <= 0 {
		cfg.SpreadKm = def.SpreadKm
	}
	if cfg.Seed == 0 {
		cfg.Seed = time.Now().UnixNano()
	}

	return &Generator{
		cfg:   cfg,
		rand:  rand.New(rand.NewSource(cfg.Seed)),
		now:   func() time.Time { return time.Now().UTC() },
		names: defaultNameFragments(),
	}
}

// WithClock pins the reference time used for donation and expiry dates.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	if now != nil {
		g.now = now
	}
	return g
}

// Generate synthesises the dataset. It respects context cancellation.
func (g *Generator) Generate(ctx context.Context) (Dataset, error) {
	now := g.now()

	donors := make([]service.DonorInput, g.cfg.NumDonors)
	for i := range donors {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		donor := service.DonorInput{
			ID:             fmt.Sprintf("DNR-%06d", i+1),
			Name:           g.randomFullName(),
			BloodType:      g.randomBloodType().String(),
			Availability:   string(domain.Unavailable),
			TotalDonations: g.rand.Intn(25),
		}
		if g.rand.Float64() < g.cfg.AvailableChance {
			donor.Availability = string(domain.Available)
		}
		if g.rand.Float64() >= g.cfg.MissingLocationPct {
			donor.Location = g.randomLocation()
		}
		if donor.TotalDonations > 0 {
			// Recent donors fall inside the deferral window.
			maxDays := 720
			if g.rand.Float64() < g.cfg.RecentDonorChance {
				maxDays = int(domain.WholeBloodDeferral/(24*time.Hour)) - 1
			}
			last := now.Add(-time.Duration(1+g.rand.Intn(maxDays)) * 24 * time.Hour)
			donor.LastDonationAt = &last
		}
		donors[i] = donor
	}

	banks := make([]service.BloodBankInput, g.cfg.NumBloodBanks)
	for i := range banks {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		bankID := fmt.Sprintf("BANK-%04d", i+1)
		bank := service.BloodBankInput{
			ID:            bankID,
			Name:          fmt.Sprintf("%s Blood Bank", g.names.banks[g.rand.Intn(len(g.names.banks))]),
			LicenseNumber: fmt.Sprintf("BB/%d/%05d", 2015+g.rand.Intn(10), g.rand.Intn(100000)),
			Location:      g.randomLocation(),
		}
		for _, bt := range domain.AllBloodTypes {
			if g.rand.Float64() < 0.25 {
				continue
			}
			expires := now.Add(time.Duration(1+g.rand.Intn(42)) * 24 * time.Hour)
			bank.Inventory = append(bank.Inventory, service.InventoryInput{
				ID:        bankID + ":" + bt.String(),
				BloodType: bt.String(),
				Units:     g.rand.Intn(30),
				ExpiresAt: &expires,
			})
		}
		banks[i] = bank
	}

	urgencies := []domain.Urgency{domain.UrgencyLow, domain.UrgencyMedium, domain.UrgencyMedium, domain.UrgencyHigh, domain.UrgencyCritical}
	requests := make([]service.RequestInput, g.cfg.NumRequests)
	for i := range requests {
		if err := ctx.Err(); err != nil {
			return Dataset{}, err
		}
		expires := now.Add(time.Duration(6+g.rand.Intn(72)) * time.Hour)
		requests[i] = service.RequestInput{
			ID:           fmt.Sprintf("REQ-%06d", i+1),
			RequesterID:  fmt.Sprintf("USR-%06d", g.rand.Intn(100000)),
			BloodType:    g.randomBloodType().String(),
			Units:        1 + g.rand.Intn(4),
			Urgency:      urgencies[g.rand.Intn(len(urgencies))].String(),
			Location:     g.randomLocation(),
			HospitalName: g.randomHospital(),
			ExpiresAt:    &expires,
		}
	}

	return Dataset{Donors: donors, BloodBanks: banks, Requests: requests}, nil
}

// bloodTypeWeights approximates the population share of each group.
var bloodTypeWeights = []struct {
	bt     domain.BloodType
	weight float64
}{
	{domain.BPositive, 0.32},
	{domain.OPositive, 0.32},
	{domain.APositive, 0.22},
	{domain.ABPositive, 0.08},
	{domain.BNegative, 0.02},
	{domain.ONegative, 0.02},
	{domain.ANegative, 0.01},
	{domain.ABNegative, 0.01},
}

func (g *Generator) randomBloodType() domain.BloodType {
	r := g.rand.Float64()
	for _, w := range bloodTypeWeights {
		if r < w.weight {
			return w.bt
		}
		r -= w.weight
	}
	return domain.OPositive
}

// randomLocation picks a city and scatters the point uniformly over a disc
// of SpreadKm around its centre.
func (g *Generator) randomLocation() *service.LocationInput {
	city := g.names.cities[g.rand.Intn(len(g.names.cities))]
	r := g.cfg.SpreadKm * math.Sqrt(g.rand.Float64())
	theta := 2 * math.Pi * g.rand.Float64()

	lat := city.lat + r*math.Cos(theta)/kmPerDegree
	lng := city.lng + r*math.Sin(theta)/(kmPerDegree*math.Cos(city.lat*math.Pi/180))
	return &service.LocationInput{
		Latitude:  math.Round(lat*1e6) / 1e6,
		Longitude: math.Round(lng*1e6) / 1e6,
	}
}

func (g *Generator) randomFullName() string {
	return fmt.Sprintf("%s %s", g.names.first[g.rand.Intn(len(g.names.first))],
		g.names.last[g.rand.Intn(len(g.names.last))])
}

func (g *Generator) randomHospital() string {
	return fmt.Sprintf("%s %s", g.names.banks[g.rand.Intn(len(g.names.banks))],
		g.names.hospitalSuffix[g.rand.Intn(len(g.names.hospitalSuffix))])
}

type city struct {
	name     string
	lat, lng float64
}

type nameFragments struct {
	first          []string
	last           []string
	banks          []string
	hospitalSuffix []string
	cities         []city
}

func defaultNameFragments() nameFragments {
	return nameFragments{
		first:          []string{"Aarav", "Priya", "Rohan", "Ananya", "Vikram", "Meera", "Arjun", "Kavya", "Ishaan", "Diya", "Kabir", "Sara", "Neha", "Rahul", "Zoya"},
		last:           []string{"Sharma", "Patel", "Iyer", "Reddy", "Khan", "Singh", "Nair", "Gupta", "Das", "Menon", "Joshi", "Rao"},
		banks:          []string{"Lifeline", "Red Cross", "Sanjeevani", "City", "Rotary", "Apollo", "Sunrise", "Janseva", "Metro", "Green Valley"},
		hospitalSuffix: []string{"General Hospital", "Medical Centre", "Multispeciality Hospital", "Clinic", "Trauma Centre"},
		cities: []city{
			{"Bengaluru", 12.9716, 77.5946},
			{"Mumbai", 19.0760, 72.8777},
			{"Delhi", 28.6139, 77.2090},
			{"Chennai", 13.0827, 80.2707},
			{"Hyderabad", 17.3850, 78.4867},
			{"Pune", 18.5204, 73.8567},
		},
	}
}
