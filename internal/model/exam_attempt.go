package model

import (
	"time"

	"github.com/google/uuid"
)

// AttemptStatus is the final state of a submitted attempt.
type AttemptStatus string

const (
	AttemptStatusCompleted  AttemptStatus = "COMPLETED"
	AttemptStatusTerminated AttemptStatus = "TERMINATED"
)

// ExamAttempt is the immutable record written on submission.
// One per (exam, user).
type ExamAttempt struct {
	ID             uuid.UUID         `json:"id"`
	ExamID         uuid.UUID         `json:"exam_id"`
	UserID         int               `json:"user_id"`
	Score          float64           `json:"score"`
	CorrectAnswers int               `json:"correct_answers"`
	TotalQuestions int               `json:"total_questions"`
	Passed         bool              `json:"passed"`
	Status         AttemptStatus     `json:"status"`
	Violations     int               `json:"violations"`
	Answers        map[string]string `json:"answers"`
	StartedAt      time.Time         `json:"started_at"`
	SubmittedAt    time.Time         `json:"submitted_at"`
}
