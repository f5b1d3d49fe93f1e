package model

import (
	"time"

	"github.com/google/uuid"
)

// CohortResponse is one user's answer to the live question.
type CohortResponse struct {
	UserID     int       `json:"user_id"`
	Answer     string    `json:"answer"`
	IsCorrect  bool      `json:"is_correct"`
	AnsweredAt time.Time `json:"answered_at"`
}

// CohortQuestionStats aggregates responses for one (exam, question number).
type CohortQuestionStats struct {
	ExamID            uuid.UUID        `json:"exam_id"`
	QuestionNumber    int              `json:"question_number"`
	QuestionID        uuid.UUID        `json:"question_id"`
	Difficulty        Band             `json:"difficulty"`
	Responses         []CohortResponse `json:"responses"`
	TotalResponses    int              `json:"total_responses"`
	CorrectResponses  int              `json:"correct_responses"`
	CorrectPercentage float64          `json:"correct_percentage"`
	ThresholdMet      bool             `json:"threshold_met"`
	NextDifficulty    *Band            `json:"next_difficulty,omitempty"`
	AdminOverride     *Band            `json:"admin_override,omitempty"`
	UpdatedAt         time.Time        `json:"updated_at"`
}

// AdvanceRequest optionally forces the next band.
type AdvanceRequest struct {
	ForceNextDifficulty *Band `json:"force_next_difficulty" binding:"omitempty,band"`
}

// WaitPeriodRequest declares an analyzing pause. Zero clears it.
type WaitPeriodRequest struct {
	Seconds int `json:"seconds" binding:"min=0,max=600"`
}
