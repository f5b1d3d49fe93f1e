package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-adaptive/internal/model"
)

// ExamSessionRepository handles exam session data access.
type ExamSessionRepository struct {
	pool *pgxpool.Pool
}

// NewExamSessionRepository creates a new ExamSessionRepository.
func NewExamSessionRepository(pool *pgxpool.Pool) *ExamSessionRepository {
	return &ExamSessionRepository{pool: pool}
}

// GetByExamAndUser retrieves the session for a specific exam-user combination.
func (r *ExamSessionRepository) GetByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamSession, error) {
	s := &model.ExamSession{}
	err := r.pool.QueryRow(ctx,
		`SELECT id, exam_id, user_id, register_number, started_at, expiry_time,
		        answers, violations, question_ids, last_heartbeat
		 FROM exam_sessions
		 WHERE exam_id = $1 AND user_id = $2`, examID, userID,
	).Scan(&s.ID, &s.ExamID, &s.UserID, &s.RegisterNumber, &s.StartedAt, &s.ExpiryTime,
		&s.Answers, &s.Violations, &s.QuestionIDs, &s.LastHeartbeat)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// Create inserts a new session. A concurrent insert for the same
// (exam, user) yields ErrDuplicate.
func (r *ExamSessionRepository) Create(ctx context.Context, s *model.ExamSession) error {
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}
	if s.QuestionIDs == nil {
		s.QuestionIDs = []uuid.UUID{}
	}

	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_sessions (exam_id, user_id, register_number, started_at, expiry_time,
		                            answers, question_ids, last_heartbeat)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $4)
		 ON CONFLICT (exam_id, user_id) DO NOTHING
		 RETURNING id`,
		s.ExamID, s.UserID, s.RegisterNumber, s.StartedAt, s.ExpiryTime, s.Answers, s.QuestionIDs,
	).Scan(&s.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	s.LastHeartbeat = s.StartedAt
	return err
}

// SetQuestionIDs replaces the frozen question set.
func (r *ExamSessionRepository) SetQuestionIDs(ctx context.Context, examID uuid.UUID, userID int, ids []uuid.UUID) error {
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET question_ids = $3 WHERE exam_id = $1 AND user_id = $2`,
		examID, userID, ids)
	return err
}

// MergeAnswers overlays answers onto the stored answer map.
// A missing session is not an error; it was submitted in the meantime.
func (r *ExamSessionRepository) MergeAnswers(ctx context.Context, examID uuid.UUID, userID int, answers map[string]string) error {
	if len(answers) == 0 {
		return nil
	}
	_, err := r.pool.Exec(ctx,
		`UPDATE exam_sessions SET answers = answers || $3::jsonb
		 WHERE exam_id = $1 AND user_id = $2`,
		examID, userID, answers)
	return err
}

// RecordHeartbeat refreshes last_heartbeat and, when violation is set,
// increments the violation counter atomically. Returns the new count.
func (r *ExamSessionRepository) RecordHeartbeat(ctx context.Context, examID uuid.UUID, userID int, violation bool, at time.Time) (int, error) {
	var violations int
	err := r.pool.QueryRow(ctx,
		`UPDATE exam_sessions
		 SET violations = violations + CASE WHEN $3 THEN 1 ELSE 0 END,
		     last_heartbeat = $4
		 WHERE exam_id = $1 AND user_id = $2
		 RETURNING violations`,
		examID, userID, violation, at,
	).Scan(&violations)
	if err != nil {
		return 0, notFound(err)
	}
	return violations, nil
}

// Delete removes the session once it has been converted into an attempt.
func (r *ExamSessionRepository) Delete(ctx context.Context, examID uuid.UUID, userID int) error {
	_, err := r.pool.Exec(ctx,
		`DELETE FROM exam_sessions WHERE exam_id = $1 AND user_id = $2`, examID, userID)
	return err
}
