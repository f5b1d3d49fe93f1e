package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-adaptive/internal/model"
)

// ExamLogRepository persists proctoring events.
type ExamLogRepository struct {
	pool *pgxpool.Pool
}

// NewExamLogRepository creates a new ExamLogRepository.
func NewExamLogRepository(pool *pgxpool.Pool) *ExamLogRepository {
	return &ExamLogRepository{pool: pool}
}

// InsertBatch bulk-loads logs with COPY.
func (r *ExamLogRepository) InsertBatch(ctx context.Context, logs []model.ExamLog) error {
	rows := make([][]any, 0, len(logs))
	for _, l := range logs {
		rows = append(rows, []any{l.ExamID, l.UserID, l.EventType, string(l.Details), l.RecordedAt})
	}

	_, err := r.pool.CopyFrom(
		ctx,
		pgx.Identifier{"exam_logs"},
		[]string{"exam_id", "user_id", "event_type", "details", "recorded_at"},
		pgx.CopyFromRows(rows),
	)
	return err
}

// Insert writes a single log row.
func (r *ExamLogRepository) Insert(ctx context.Context, l model.ExamLog) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO exam_logs (exam_id, user_id, event_type, details, recorded_at)
		 VALUES ($1, $2, $3, $4::jsonb, $5)`,
		l.ExamID, l.UserID, l.EventType, string(l.Details), l.RecordedAt)
	return err
}
