package adaptive

import (
	"time"

	"github.com/stemsi/exstem-adaptive/internal/model"
)

// Transition describes what ApplyAnswer did.
type Transition struct {
	PreviousLevel  int
	NewLevel       int
	WaitSeconds    int
	RoutingMissing bool
}

// ApplyAnswer advances an individual state by one accepted answer.
// The returned state is a copy; the input is not modified.
func ApplyAnswer(
	state model.IndividualDifficultyState,
	correct bool,
	table model.RoutingTable,
	settings model.AdaptiveSettings,
	now time.Time,
	src Source,
) (model.IndividualDifficultyState, Transition) {
	prev := Clamp(state.CurrentDifficulty)
	next := prev

	state.QuestionsAnswered++
	if correct {
		state.CorrectAnswers++
	}

	tr := Transition{PreviousLevel: prev}

	candidates, ok := Candidates(table, BandOf(prev), correct)
	if ok {
		picked := candidates[src.Intn(len(candidates))]
		next = LevelOf(picked)
	} else {
		tr.RoutingMissing = true
	}

	wait := Between(src, settings.WaitTimeMin, settings.WaitTimeMax)
	if wait < 0 {
		wait = 0
	}
	until := now.Add(time.Duration(wait) * time.Second)

	state.CurrentDifficulty = Clamp(next)
	state.WaitUntil = &until
	state.UpdatedAt = now

	tr.NewLevel = state.CurrentDifficulty
	tr.WaitSeconds = wait
	return state, tr
}

// WaitRemaining is the pacing gate left at now, zero when elapsed.
func WaitRemaining(state model.IndividualDifficultyState, now time.Time) time.Duration {
	if state.WaitUntil == nil {
		return 0
	}
	d := state.WaitUntil.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// CeilSeconds rounds a positive duration up to whole seconds.
func CeilSeconds(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	s := int(d / time.Second)
	if d%time.Second != 0 {
		s++
	}
	return s
}
