package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/config"
	"github.com/stemsi/exstem-adaptive/internal/model"
)

// AnswerSink stores autosaved answers durably.
type AnswerSink interface {
	MergeAnswers(ctx context.Context, examID uuid.UUID, userID int, answers map[string]string) error
}

// AutosaveWorker consumes persist_answers_queue and merges answers into
// the session row.
type AutosaveWorker struct {
	sink       AnswerSink
	rdb        *redis.Client
	log        zerolog.Logger
	retryDelay time.Duration
}

// NewAutosaveWorker creates a new AutosaveWorker.
func NewAutosaveWorker(sink AnswerSink, rdb *redis.Client, log zerolog.Logger) *AutosaveWorker {
	return &AutosaveWorker{
		sink:       sink,
		rdb:        rdb,
		log:        log.With().Str("component", "autosave_worker").Logger(),
		retryDelay: 5 * time.Second,
	}
}

// Start begins the worker loop. Call in a goroutine.
func (w *AutosaveWorker) Start(ctx context.Context) {
	w.log.Info().Msg("Worker started")

	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Worker stopping...")
			drainCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
			w.drain(drainCtx)
			cancel()
			w.log.Info().Msg("Worker stopped")
			return
		default:
			w.processNext(ctx)
		}
	}
}

func (w *AutosaveWorker) processNext(ctx context.Context) {
	result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistAnswersQueue).Result()
	if err != nil {
		if !errors.Is(err, redis.Nil) && ctx.Err() == nil {
			w.log.Error().Err(err).Msg("BLPop error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
		}
		return
	}
	if len(result) < 2 {
		return
	}

	var entry model.AutosaveEntry
	if err := json.Unmarshal([]byte(result[1]), &entry); err != nil {
		w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed autosave")
		return
	}

	if err := w.sink.MergeAnswers(ctx, entry.ExamID, entry.UserID, entry.Answers); err != nil {
		w.log.Error().Err(err).
			Int("user_id", entry.UserID).
			Str("exam_id", entry.ExamID.String()).
			Msg("Persist error, requeueing")
		// Background context so a cancelled loop still requeues.
		if err := w.rdb.RPush(context.Background(), config.WorkerKey.PersistAnswersQueue, result[1]).Err(); err != nil {
			w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue autosave. Data loss occurred.")
		}
		sleepCtx(ctx, w.retryDelay)
	}
}

// drain persists whatever is left in the queue before shutdown.
func (w *AutosaveWorker) drain(ctx context.Context) {
	drained := 0
	for {
		raw, err := w.rdb.LPop(ctx, config.WorkerKey.PersistAnswersQueue).Result()
		if err != nil {
			break
		}

		var entry model.AutosaveEntry
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			w.log.Error().Err(err).Msg("Drain unmarshal error")
			continue
		}

		if err := w.sink.MergeAnswers(ctx, entry.ExamID, entry.UserID, entry.Answers); err != nil {
			w.log.Error().Err(err).Msg("Drain persist error")
			w.rdb.RPush(context.Background(), config.WorkerKey.PersistAnswersQueue, raw)
			break
		}
		drained++
	}

	if drained > 0 {
		w.log.Info().Int("count", drained).Msg("Drained remaining items")
	}
}
