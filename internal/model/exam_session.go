package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamSession is the live sitting of one user in one exam.
// It is deleted when the exam is submitted.
type ExamSession struct {
	ID             uuid.UUID         `json:"id"`
	ExamID         uuid.UUID         `json:"exam_id"`
	UserID         int               `json:"user_id"`
	RegisterNumber string            `json:"register_number,omitempty"`
	StartedAt      time.Time         `json:"started_at"`
	ExpiryTime     time.Time         `json:"expiry_time"`
	Answers        map[string]string `json:"answers"`
	Violations     int               `json:"violations"`
	QuestionIDs    []uuid.UUID       `json:"question_ids"`
	LastHeartbeat  time.Time         `json:"last_heartbeat"`
}

// TimeRemaining is always derived from ExpiryTime, never stored.
func (s *ExamSession) TimeRemaining(now time.Time) time.Duration {
	d := s.ExpiryTime.Sub(now)
	if d < 0 {
		return 0
	}
	return d
}

// Expired reports whether the session can no longer be played.
func (s *ExamSession) Expired(now time.Time) bool {
	return !now.Before(s.ExpiryTime)
}

// StartSessionRequest carries optional student credentials.
type StartSessionRequest struct {
	RegisterNumber string `json:"register_number" binding:"omitempty,max=64"`
}

// HeartbeatRequest merges answers and optionally reports a violation.
type HeartbeatRequest struct {
	Answers   map[string]string `json:"answers" binding:"omitempty"`
	Violation bool              `json:"violation"`
}

// LogEventRequest is a proctoring event reported by the client.
type LogEventRequest struct {
	EventType string         `json:"event_type" binding:"required,min=1,max=64"`
	Details   map[string]any `json:"details" binding:"omitempty"`
}

// AutosaveEntry is one buffered heartbeat queued for the autosave worker.
type AutosaveEntry struct {
	ExamID  uuid.UUID         `json:"exam_id"`
	UserID  int               `json:"user_id"`
	Answers map[string]string `json:"answers"`
}
