package matching

import (
	"math"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

const earthRadiusKm = 6371.0088

// HaversineKm returns the great-circle distance between two points.
func HaversineKm(a, b domain.Coordinate) float64 {
	lat1 := radians(a.Latitude)
	lat2 := radians(b.Latitude)
	dLat := lat2 - lat1
	dLon := radians(b.Longitude - a.Longitude)

	sinLat := math.Sin(dLat / 2)
	sinLon := math.Sin(dLon / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLon*sinLon
	// rounding can push h marginally above 1 for antipodal points
	h = math.Min(1, h)
	return 2 * earthRadiusKm * math.Asin(math.Sqrt(h))
}

func radians(deg float64) float64 {
	return deg * math.Pi / 180
}

func checkLocation(id string, loc *domain.Coordinate) error {
	if loc == nil {
		return &MissingLocationError{ID: id}
	}
	if !loc.Valid() {
		return &MissingLocationError{ID: id, Invalid: true}
	}
	return nil
}
