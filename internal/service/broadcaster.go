package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/config"
	"github.com/stemsi/exstem-adaptive/internal/model"
)

// Monitor event types relayed to the admin SSE stream.
const (
	EventCohortResponse = "cohort_response"
	EventAdvanced       = "advanced"
	EventWaitPeriod     = "wait_period"
	EventSubmitted      = "submitted"
	EventViolation      = "violation"
)

// MonitorEvent is one message on the exam's monitor channel.
type MonitorEvent struct {
	Type           string         `json:"type"`
	ExamID         uuid.UUID      `json:"exam_id"`
	UserID         int            `json:"user_id,omitempty"`
	QuestionNumber int            `json:"question_number,omitempty"`
	Difficulty     model.Band     `json:"difficulty,omitempty"`
	Stats          *CohortSummary `json:"stats,omitempty"`
	Completed      bool           `json:"completed,omitempty"`
	WaitSeconds    int            `json:"wait_seconds,omitempty"`
	Score          *float64       `json:"score,omitempty"`
	Violations     int            `json:"violations,omitempty"`
	At             time.Time      `json:"at"`
}

// Broadcaster fans monitor events out over Redis Pub/Sub.
// Delivery is best effort; failures are logged and never fail the caller.
type Broadcaster struct {
	rdb *redis.Client
	log zerolog.Logger
}

// NewBroadcaster creates a new Broadcaster.
func NewBroadcaster(rdb *redis.Client, log zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		rdb: rdb,
		log: log.With().Str("component", "broadcaster").Logger(),
	}
}

// Publish sends ev on the exam's monitor channel.
func (b *Broadcaster) Publish(ctx context.Context, ev MonitorEvent) {
	if b == nil || b.rdb == nil {
		return
	}
	if ev.At.IsZero() {
		ev.At = time.Now()
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		b.log.Error().Err(err).Str("type", ev.Type).Msg("Failed to encode monitor event")
		return
	}

	channel := config.CacheKey.ExamMonitorChannel(ev.ExamID.String())
	if err := b.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		b.log.Warn().Err(err).Str("exam_id", ev.ExamID.String()).Str("type", ev.Type).Msg("Failed to publish monitor event")
	}
}
