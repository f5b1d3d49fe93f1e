package model

import (
	"time"

	"github.com/google/uuid"
)

// IndividualDifficultyState is the per-user pacing state in individual mode.
// Exactly one row exists per (exam, user).
type IndividualDifficultyState struct {
	ExamID            uuid.UUID  `json:"exam_id"`
	UserID            int        `json:"user_id"`
	CurrentDifficulty int        `json:"current_difficulty"`
	QuestionsAnswered int        `json:"questions_answered"`
	CorrectAnswers    int        `json:"correct_answers"`
	WaitUntil         *time.Time `json:"wait_until,omitempty"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// QuestionResult is one accepted answer. It is never overwritten.
type QuestionResult struct {
	ID             uuid.UUID `json:"id"`
	ExamID         uuid.UUID `json:"exam_id"`
	UserID         int       `json:"user_id"`
	QuestionID     uuid.UUID `json:"question_id"`
	QuestionNumber int       `json:"question_number"`
	Answer         string    `json:"answer"`
	IsCorrect      bool      `json:"is_correct"`
	Difficulty     int       `json:"difficulty"`
	Synchronized   bool      `json:"synchronized"`
	AnsweredAt     time.Time `json:"answered_at"`
}

// SubmitAnswerRequest is the answer payload for both adaptive modes.
type SubmitAnswerRequest struct {
	QuestionID uuid.UUID `json:"question_id" binding:"required"`
	Answer     string    `json:"answer" binding:"max=2000"`
}
