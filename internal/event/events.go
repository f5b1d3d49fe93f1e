package event

import (
	"time"

	"github.com/google/uuid"
)

// Routing keys on the exam exchange.
const (
	KeyAttemptSubmitted     = "exam.attempt.submitted"
	KeySynchronizedAdvanced = "exam.synchronized.advanced"
)

// AttemptSubmitted is emitted once per (exam, user) when an attempt is stored.
type AttemptSubmitted struct {
	AttemptID      uuid.UUID `json:"attempt_id"`
	ExamID         uuid.UUID `json:"exam_id"`
	UserID         int       `json:"user_id"`
	Score          float64   `json:"score"`
	CorrectAnswers int       `json:"correct_answers"`
	TotalQuestions int       `json:"total_questions"`
	Passed         bool      `json:"passed"`
	Status         string    `json:"status"`
	SubmittedAt    time.Time `json:"submitted_at"`
}

// SynchronizedAdvanced is emitted after the cohort moves to a new question
// or the exam completes.
type SynchronizedAdvanced struct {
	ExamID         uuid.UUID `json:"exam_id"`
	QuestionNumber int       `json:"question_number"`
	Difficulty     string    `json:"difficulty"`
	Decision       string    `json:"decision"`
	Completed      bool      `json:"completed"`
	At             time.Time `json:"at"`
}
