package repository

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-adaptive/internal/model"
)

// ExamAttemptRepository handles submitted attempts.
type ExamAttemptRepository struct {
	pool *pgxpool.Pool
}

// NewExamAttemptRepository creates a new ExamAttemptRepository.
func NewExamAttemptRepository(pool *pgxpool.Pool) *ExamAttemptRepository {
	return &ExamAttemptRepository{pool: pool}
}

// Create inserts an attempt. A second attempt for (exam, user) yields ErrDuplicate.
func (r *ExamAttemptRepository) Create(ctx context.Context, a *model.ExamAttempt) error {
	err := r.pool.QueryRow(ctx,
		`INSERT INTO exam_attempts (exam_id, user_id, score, correct_answers, total_questions,
		                            passed, status, violations, answers, started_at, submitted_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (exam_id, user_id) DO NOTHING
		 RETURNING id`,
		a.ExamID, a.UserID, a.Score, a.CorrectAnswers, a.TotalQuestions,
		a.Passed, a.Status, a.Violations, a.Answers, a.StartedAt, a.SubmittedAt,
	).Scan(&a.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrDuplicate
	}
	return err
}

// Exists reports whether the user already has an attempt for the exam.
func (r *ExamAttemptRepository) Exists(ctx context.Context, examID uuid.UUID, userID int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM exam_attempts WHERE exam_id = $1 AND user_id = $2)`,
		examID, userID,
	).Scan(&exists)
	return exists, err
}

// ListByExam returns all attempts for an exam, best score first.
func (r *ExamAttemptRepository) ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, user_id, score, correct_answers, total_questions,
		        passed, status, violations, answers, started_at, submitted_at
		 FROM exam_attempts
		 WHERE exam_id = $1
		 ORDER BY score DESC, submitted_at ASC`, examID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var attempts []model.ExamAttempt
	for rows.Next() {
		var a model.ExamAttempt
		if err := rows.Scan(&a.ID, &a.ExamID, &a.UserID, &a.Score, &a.CorrectAnswers, &a.TotalQuestions,
			&a.Passed, &a.Status, &a.Violations, &a.Answers, &a.StartedAt, &a.SubmittedAt); err != nil {
			return nil, err
		}
		attempts = append(attempts, a)
	}
	return attempts, rows.Err()
}
