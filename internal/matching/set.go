package matching

import (
	"strings"

	"github.com/vanshika/reddrop/backend/internal/domain"
)

// BloodTypeSet is a bitset over domain.AllBloodTypes.
type BloodTypeSet uint8

// NewBloodTypeSet builds a set from the given types, ignoring invalid ones.
func NewBloodTypeSet(types ...domain.BloodType) BloodTypeSet {
	var s BloodTypeSet
	for _, t := range types {
		s = s.With(t)
	}
	return s
}

// AllTypes is the set containing every blood type.
func AllTypes() BloodTypeSet {
	return NewBloodTypeSet(domain.AllBloodTypes...)
}

// With returns a copy of s including t.
func (s BloodTypeSet) With(t domain.BloodType) BloodTypeSet {
	idx := t.Index()
	if idx < 0 {
		return s
	}
	return s | 1<<uint(idx)
}

// Contains reports membership of t.
func (s BloodTypeSet) Contains(t domain.BloodType) bool {
	idx := t.Index()
	return idx >= 0 && s&(1<<uint(idx)) != 0
}

// Len returns the number of members.
func (s BloodTypeSet) Len() int {
	n := 0
	for v := s; v != 0; v &= v - 1 {
		n++
	}
	return n
}

// Types returns members in canonical order.
func (s BloodTypeSet) Types() []domain.BloodType {
	out := make([]domain.BloodType, 0, s.Len())
	for _, t := range domain.AllBloodTypes {
		if s.Contains(t) {
			out = append(out, t)
		}
	}
	return out
}

// Strings is Types rendered for JSON and Cypher parameters.
func (s BloodTypeSet) Strings() []string {
	types := s.Types()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}

func (s BloodTypeSet) String() string {
	return "{" + strings.Join(s.Strings(), ",") + "}"
}
