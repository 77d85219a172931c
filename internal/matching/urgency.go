package matching

import (
	"sort"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

// RankUrgency orders requests for dispatch: most urgent first, older first
// within a level so long-waiting requests are not starved. The input slice is
// left untouched.
func RankUrgency(requests []domain.BloodRequest) []domain.BloodRequest {
	ranked := make([]domain.BloodRequest, len(requests))
	copy(ranked, requests)
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].Urgency != ranked[j].Urgency {
			return ranked[i].Urgency > ranked[j].Urgency
		}
		return ranked[i].CreatedAt.Before(ranked[j].CreatedAt)
	})
	return ranked
}
