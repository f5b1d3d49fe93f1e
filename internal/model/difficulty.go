package model

// Band is the coarse difficulty bucket used by routing and question selection.
type Band string

const (
	BandEasy   Band = "easy"
	BandMedium Band = "medium"
	BandHard   Band = "hard"
)

// Bands lists every band from easiest to hardest.
var Bands = []Band{BandEasy, BandMedium, BandHard}

// Valid reports whether b is one of the known bands.
func (b Band) Valid() bool {
	switch b {
	case BandEasy, BandMedium, BandHard:
		return true
	}
	return false
}

// Route holds the candidate bands for each answer outcome.
type Route struct {
	OnCorrect []Band `json:"on_correct"`
	OnWrong   []Band `json:"on_wrong"`
}

// RoutingTable maps the current band to its outcome routes.
// It is authored by an administrator when the exam is created.
type RoutingTable map[Band]Route
