package adaptive

import "github.com/stemsi/exstem-adaptive/internal/model"

// DefaultThresholdPercent is the share of correct answers a cohort needs
// before routing is consulted.
const DefaultThresholdPercent = 60.0

// Decision records how the next cohort band was chosen.
type Decision string

const (
	DecisionOverride  Decision = "override"
	DecisionHold      Decision = "threshold_not_met"
	DecisionRouted    Decision = "routed"
	DecisionNoRouting Decision = "no_routing"
)

// AddResponse appends a response unless the user already answered.
// The second return value is false for duplicates, in which case the
// stats are returned unchanged.
func AddResponse(stats model.CohortQuestionStats, resp model.CohortResponse, threshold float64) (model.CohortQuestionStats, bool) {
	for _, r := range stats.Responses {
		if r.UserID == resp.UserID {
			return stats, false
		}
	}

	responses := make([]model.CohortResponse, len(stats.Responses), len(stats.Responses)+1)
	copy(responses, stats.Responses)
	stats.Responses = append(responses, resp)

	return Recompute(stats, threshold), true
}

// Recompute derives totals, percentage and thresholdMet from Responses.
// It depends only on the response set.
func Recompute(stats model.CohortQuestionStats, threshold float64) model.CohortQuestionStats {
	if threshold <= 0 {
		threshold = DefaultThresholdPercent
	}

	correct := 0
	for _, r := range stats.Responses {
		if r.IsCorrect {
			correct++
		}
	}

	stats.TotalResponses = len(stats.Responses)
	stats.CorrectResponses = correct
	stats.CorrectPercentage = 0
	if stats.TotalResponses > 0 {
		stats.CorrectPercentage = float64(correct) / float64(stats.TotalResponses) * 100
	}
	stats.ThresholdMet = stats.TotalResponses > 0 && stats.CorrectPercentage >= threshold
	return stats
}

// NextDifficulty picks the band the cohort moves to.
// An override wins; below threshold the band holds; otherwise the first
// routing candidate for the majority outcome is taken.
func NextDifficulty(stats model.CohortQuestionStats, current model.Band, table model.RoutingTable, threshold float64) (model.Band, Decision) {
	if !current.Valid() {
		current = model.BandEasy
	}

	if stats.AdminOverride != nil && stats.AdminOverride.Valid() {
		return *stats.AdminOverride, DecisionOverride
	}

	if threshold <= 0 {
		threshold = DefaultThresholdPercent
	}
	if !stats.ThresholdMet {
		return current, DecisionHold
	}

	majorityCorrect := stats.CorrectPercentage >= threshold
	candidates, ok := Candidates(table, current, majorityCorrect)
	if !ok {
		return current, DecisionNoRouting
	}
	return candidates[0], DecisionRouted
}
