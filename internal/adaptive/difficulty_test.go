package adaptive

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/stemsi/exstem-adaptive/internal/model"
)

func TestBandOf(t *testing.T) {
	cases := map[int]model.Band{
		-4: model.BandEasy,
		1:  model.BandEasy,
		3:  model.BandEasy,
		4:  model.BandMedium,
		6:  model.BandMedium,
		7:  model.BandHard,
		10: model.BandHard,
		42: model.BandHard,
	}
	for level, want := range cases {
		assert.Equal(t, want, BandOf(level), "level %d", level)
	}
}

func TestLevelOf_RoundTripsThroughBand(t *testing.T) {
	for _, b := range model.Bands {
		assert.Equal(t, b, BandOf(LevelOf(b)))
	}
	assert.Equal(t, DefaultLevel, LevelOf("impossible"))
}

func TestLevelRange(t *testing.T) {
	lo, hi := LevelRange(model.BandHard)
	assert.Equal(t, 7, lo)
	assert.Equal(t, 10, hi)
}

func TestClamp(t *testing.T) {
	assert.Equal(t, MinLevel, Clamp(0))
	assert.Equal(t, MaxLevel, Clamp(11))
	assert.Equal(t, 5, Clamp(5))
}
