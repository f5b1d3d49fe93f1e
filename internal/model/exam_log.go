package model

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// ExamLog is a proctoring event persisted by the proctoring worker.
type ExamLog struct {
	ExamID     uuid.UUID       `json:"exam_id"`
	UserID     int             `json:"user_id"`
	EventType  string          `json:"event_type"`
	Details    json.RawMessage `json:"details"`
	RecordedAt time.Time       `json:"recorded_at"`
}
