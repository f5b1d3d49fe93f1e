// Package adaptive holds the pure difficulty logic shared by the individual
// tracker and the synchronized cohort aggregator. Nothing here touches
// storage or the clock; callers pass state in and persist what comes out.
package adaptive

import "github.com/stemsi/exstem-adaptive/internal/model"

const (
	MinLevel     = 1
	MaxLevel     = 10
	DefaultLevel = 3
)

// Clamp keeps a numeric level within [MinLevel, MaxLevel].
func Clamp(level int) int {
	if level < MinLevel {
		return MinLevel
	}
	if level > MaxLevel {
		return MaxLevel
	}
	return level
}

// BandOf maps a numeric level to its band: 1-3 easy, 4-6 medium, 7-10 hard.
func BandOf(level int) model.Band {
	level = Clamp(level)
	switch {
	case level <= 3:
		return model.BandEasy
	case level <= 6:
		return model.BandMedium
	default:
		return model.BandHard
	}
}

// LevelOf returns the representative level of a band.
// Unknown bands map to DefaultLevel.
func LevelOf(b model.Band) int {
	switch b {
	case model.BandEasy:
		return 3
	case model.BandMedium:
		return 5
	case model.BandHard:
		return 8
	}
	return DefaultLevel
}

// LevelRange returns the inclusive level bounds of a band.
func LevelRange(b model.Band) (int, int) {
	switch b {
	case model.BandMedium:
		return 4, 6
	case model.BandHard:
		return 7, 10
	}
	return 1, 3
}
