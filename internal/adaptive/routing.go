package adaptive

import (
	"fmt"

	"github.com/stemsi/exstem-adaptive/internal/model"
)

// DefaultRoutingTable is applied to adaptive exams created without one.
func DefaultRoutingTable() model.RoutingTable {
	return model.RoutingTable{
		model.BandEasy: {
			OnCorrect: []model.Band{model.BandEasy, model.BandMedium},
			OnWrong:   []model.Band{model.BandEasy},
		},
		model.BandMedium: {
			OnCorrect: []model.Band{model.BandMedium, model.BandHard},
			OnWrong:   []model.Band{model.BandEasy, model.BandMedium},
		},
		model.BandHard: {
			OnCorrect: []model.Band{model.BandHard},
			OnWrong:   []model.Band{model.BandMedium},
		},
	}
}

// Candidates looks up the configured bands for (band, outcome).
// The lookup is total: a missing entry, an empty list or unknown bands
// yield ok=false and the caller keeps the current level.
func Candidates(table model.RoutingTable, current model.Band, correct bool) ([]model.Band, bool) {
	route, found := table[current]
	if !found {
		return nil, false
	}

	list := route.OnWrong
	if correct {
		list = route.OnCorrect
	}

	valid := make([]model.Band, 0, len(list))
	for _, b := range list {
		if b.Valid() {
			valid = append(valid, b)
		}
	}
	if len(valid) == 0 {
		return nil, false
	}
	return valid, true
}

// ValidateRoutingTable rejects tables that reference unknown bands.
// Missing entries are allowed; they degrade to stay-at-level at read time.
func ValidateRoutingTable(table model.RoutingTable) error {
	for from, route := range table {
		if !from.Valid() {
			return fmt.Errorf("routing: unknown band %q", from)
		}
		for _, b := range route.OnCorrect {
			if !b.Valid() {
				return fmt.Errorf("routing: %s.on_correct has unknown band %q", from, b)
			}
		}
		for _, b := range route.OnWrong {
			if !b.Valid() {
				return fmt.Errorf("routing: %s.on_wrong has unknown band %q", from, b)
			}
		}
	}
	return nil
}
