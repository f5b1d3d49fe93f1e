package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-adaptive/internal/model"
)

const examColumns = `id, title, author_id, mode, status, start_time, end_time,
	duration_minutes, verification_lead_minutes, total_questions, passing_score,
	tags, routing, adaptive_settings, proctoring, require_student_verification, roster,
	started_at, current_question_id, current_question_number, current_difficulty,
	current_question_started_at, is_question_active, is_in_wait_period, wait_period_end_time,
	created_at, updated_at`

// ExamRepository handles exam data access.
type ExamRepository struct {
	pool *pgxpool.Pool
}

// NewExamRepository creates a new ExamRepository.
func NewExamRepository(pool *pgxpool.Pool) *ExamRepository {
	return &ExamRepository{pool: pool}
}

func scanExam(row pgx.Row) (*model.Exam, error) {
	e := &model.Exam{}
	err := row.Scan(&e.ID, &e.Title, &e.AuthorID, &e.Mode, &e.Status, &e.StartTime, &e.EndTime,
		&e.DurationMinutes, &e.VerificationLeadMinutes, &e.TotalQuestions, &e.PassingScore,
		&e.Tags, &e.Routing, &e.Adaptive, &e.Proctoring, &e.RequireStudentVerification, &e.Roster,
		&e.Live.StartedAt, &e.Live.CurrentQuestionID, &e.Live.CurrentQuestionNumber, &e.Live.CurrentDifficulty,
		&e.Live.CurrentQuestionStartedAt, &e.Live.IsQuestionActive, &e.Live.IsInWaitPeriod, &e.Live.WaitPeriodEndTime,
		&e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return e, nil
}

// Create inserts the exam and, for static exams, its ordered question list.
func (r *ExamRepository) Create(ctx context.Context, e *model.Exam, questionIDs []uuid.UUID) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO exams (title, author_id, mode, status, start_time, end_time,
		                    duration_minutes, verification_lead_minutes, total_questions, passing_score,
		                    tags, routing, adaptive_settings, proctoring, require_student_verification, roster,
		                    current_difficulty)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)
		 RETURNING id, created_at, updated_at`,
		e.Title, e.AuthorID, e.Mode, e.Status, e.StartTime, e.EndTime,
		e.DurationMinutes, e.VerificationLeadMinutes, e.TotalQuestions, e.PassingScore,
		e.Tags, e.Routing, e.Adaptive, e.Proctoring, e.RequireStudentVerification, e.Roster,
		e.Live.CurrentDifficulty,
	).Scan(&e.ID, &e.CreatedAt, &e.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert exam: %w", err)
	}

	if len(questionIDs) > 0 {
		// Ordinality keeps the order the admin supplied.
		_, err = tx.Exec(ctx,
			`INSERT INTO exam_questions (exam_id, question_id, order_num)
			 SELECT $1, q.id, q.ord
			 FROM UNNEST($2::uuid[]) WITH ORDINALITY AS q(id, ord)
			 ON CONFLICT DO NOTHING`,
			e.ID, questionIDs)
		if err != nil {
			return fmt.Errorf("insert exam questions: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// GetByID retrieves an exam by its UUID.
func (r *ExamRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return scanExam(r.pool.QueryRow(ctx, `SELECT `+examColumns+` FROM exams WHERE id = $1`, id))
}

// UpdateStatus changes an exam's status.
func (r *ExamRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET status = $2, updated_at = NOW() WHERE id = $1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// ListQuestionIDs returns a static exam's questions in order.
func (r *ExamRepository) ListQuestionIDs(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id FROM exam_questions WHERE exam_id = $1 ORDER BY order_num`, examID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// UpdateLive writes the synchronized live state only if the exam is still
// on expectedNumber. It reports false when another writer got there first.
func (r *ExamRepository) UpdateLive(ctx context.Context, id uuid.UUID, expectedNumber int, live model.LiveState, status model.ExamStatus) (bool, error) {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams
		 SET started_at = $3, current_question_id = $4, current_question_number = $5,
		     current_difficulty = $6, current_question_started_at = $7, is_question_active = $8,
		     is_in_wait_period = $9, wait_period_end_time = $10, status = $11, updated_at = NOW()
		 WHERE id = $1 AND current_question_number = $2`,
		id, expectedNumber,
		live.StartedAt, live.CurrentQuestionID, live.CurrentQuestionNumber,
		live.CurrentDifficulty, live.CurrentQuestionStartedAt, live.IsQuestionActive,
		live.IsInWaitPeriod, live.WaitPeriodEndTime, status,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetWaitPeriod opens or, with a nil until, clears the analyzing pause.
func (r *ExamRepository) SetWaitPeriod(ctx context.Context, id uuid.UUID, until *time.Time) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE exams SET is_in_wait_period = $2, wait_period_end_time = $3, updated_at = NOW()
		 WHERE id = $1`,
		id, until != nil, until)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
