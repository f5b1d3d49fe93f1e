package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/config"
	"github.com/stemsi/exstem-adaptive/internal/model"
)

// LogSink stores proctoring events.
type LogSink interface {
	InsertBatch(ctx context.Context, logs []model.ExamLog) error
	Insert(ctx context.Context, l model.ExamLog) error
}

// ProctoringWorker batches persist_exam_logs_queue into the exam_logs table.
type ProctoringWorker struct {
	sink         LogSink
	rdb          *redis.Client
	log          zerolog.Logger
	batchSize    int
	batchTimeout time.Duration
	requeueDelay time.Duration
}

func NewProctoringWorker(sink LogSink, rdb *redis.Client, log zerolog.Logger) *ProctoringWorker {
	return &ProctoringWorker{
		sink:         sink,
		rdb:          rdb,
		log:          log.With().Str("component", "proctoring_worker").Logger(),
		batchSize:    BatchSize,
		batchTimeout: BatchTimeout,
		requeueDelay: 2 * time.Second,
	}
}

func (w *ProctoringWorker) Start(ctx context.Context) {
	w.log.Info().Msg("ProctoringWorker started")

	buffer := make([]model.ExamLog, 0, w.batchSize)
	lastFlush := time.Now()

	for {
		// 1. Flush on size or age
		if len(buffer) > 0 && (len(buffer) >= w.batchSize || time.Since(lastFlush) >= w.batchTimeout) {
			w.flushSafe(ctx, buffer)
			buffer = buffer[:0]
			lastFlush = time.Now()
		}

		// 2. Graceful shutdown
		select {
		case <-ctx.Done():
			w.shutdown(buffer)
			return
		default:
		}

		// 3. Fetch
		result, err := w.rdb.BLPop(ctx, PollTimeout, config.WorkerKey.PersistExamLogsQueue).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			w.log.Error().Err(err).Msg("Redis connection error, sleeping 3s")
			sleepCtx(ctx, 3*time.Second)
			continue
		}
		if len(result) < 2 {
			continue
		}

		var entry model.ExamLog
		if err := json.Unmarshal([]byte(result[1]), &entry); err != nil {
			// Malformed payloads cannot be retried.
			w.log.Error().Err(err).Str("data", result[1]).Msg("Discarding malformed JSON")
			continue
		}
		if len(entry.Details) == 0 {
			entry.Details = json.RawMessage(`{}`)
		}

		buffer = append(buffer, entry)
	}
}

// flushSafe tries COPY, then row by row, then requeues what still failed.
func (w *ProctoringWorker) flushSafe(ctx context.Context, batch []model.ExamLog) {
	err := w.sink.InsertBatch(ctx, batch)
	if err == nil {
		return
	}
	w.log.Warn().Err(err).Int("count", len(batch)).Msg("Bulk insert failed, attempting row-by-row recovery")

	var failed []model.ExamLog
	for _, l := range batch {
		if err := w.sink.Insert(ctx, l); err != nil {
			w.log.Error().Err(err).
				Int("user_id", l.UserID).
				Str("event_type", l.EventType).
				Msg("Insert failed, requeueing")
			failed = append(failed, l)
		}
	}

	if len(failed) > 0 {
		w.requeue(failed)
		sleepCtx(ctx, w.requeueDelay)
	}
}

func (w *ProctoringWorker) requeue(items []model.ExamLog) {
	ctx := context.Background()
	pipe := w.rdb.Pipeline()
	for _, l := range items {
		data, err := json.Marshal(l)
		if err != nil {
			continue
		}
		pipe.RPush(ctx, config.WorkerKey.PersistExamLogsQueue, data)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		w.log.Error().Err(err).Msg("CRITICAL: Failed to requeue items to Redis. Data loss occurred.")
		return
	}
	w.log.Info().Int("count", len(items)).Msg("Requeued failed items back to Redis")
}

func (w *ProctoringWorker) shutdown(buffer []model.ExamLog) {
	w.log.Info().Msg("Worker stopping, flushing remaining buffer...")

	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()

	if len(buffer) > 0 {
		w.flushSafe(ctx, buffer)
	}
}
