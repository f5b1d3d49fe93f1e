package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-adaptive/internal/model"
)

// CohortRepository stores synchronized responses and per-question stats.
type CohortRepository struct {
	pool *pgxpool.Pool
}

// NewCohortRepository creates a new CohortRepository.
func NewCohortRepository(pool *pgxpool.Pool) *CohortRepository {
	return &CohortRepository{pool: pool}
}

const statsColumns = `exam_id, question_number, question_id, difficulty, responses, total_responses,
	correct_responses, correct_percentage, threshold_met, next_difficulty, admin_override, updated_at`

func scanStats(row pgx.Row) (*model.CohortQuestionStats, error) {
	s := &model.CohortQuestionStats{}
	err := row.Scan(&s.ExamID, &s.QuestionNumber, &s.QuestionID, &s.Difficulty, &s.Responses,
		&s.TotalResponses, &s.CorrectResponses, &s.CorrectPercentage, &s.ThresholdMet,
		&s.NextDifficulty, &s.AdminOverride, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// ApplyResponse records result and folds it into the stats row under a
// row lock. apply returns false for a logical duplicate; a unique
// violation on the result row is reported the same way, as ErrDuplicate.
func (r *CohortRepository) ApplyResponse(
	ctx context.Context,
	result *model.QuestionResult,
	band model.Band,
	apply func(model.CohortQuestionStats) (model.CohortQuestionStats, bool),
) (*model.CohortQuestionStats, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	err = tx.QueryRow(ctx,
		`INSERT INTO question_results (exam_id, user_id, question_id, question_number,
		                               answer, is_correct, difficulty, synchronized, answered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
		 ON CONFLICT DO NOTHING
		 RETURNING id`,
		result.ExamID, result.UserID, result.QuestionID, result.QuestionNumber,
		result.Answer, result.IsCorrect, result.Difficulty, result.AnsweredAt,
	).Scan(&result.ID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDuplicate
	}
	if err != nil {
		return nil, fmt.Errorf("insert result: %w", err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO cohort_question_stats (exam_id, question_number, question_id, difficulty)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (exam_id, question_number) DO NOTHING`,
		result.ExamID, result.QuestionNumber, result.QuestionID, band)
	if err != nil {
		return nil, fmt.Errorf("ensure stats: %w", err)
	}

	current, err := scanStats(tx.QueryRow(ctx,
		`SELECT `+statsColumns+` FROM cohort_question_stats
		 WHERE exam_id = $1 AND question_number = $2
		 FOR UPDATE`, result.ExamID, result.QuestionNumber))
	if err != nil {
		return nil, fmt.Errorf("lock stats: %w", err)
	}

	next, accepted := apply(*current)
	if !accepted {
		return nil, ErrDuplicate
	}

	_, err = tx.Exec(ctx,
		`UPDATE cohort_question_stats
		 SET responses = $3, total_responses = $4, correct_responses = $5,
		     correct_percentage = $6, threshold_met = $7, updated_at = $8
		 WHERE exam_id = $1 AND question_number = $2`,
		result.ExamID, result.QuestionNumber, next.Responses, next.TotalResponses,
		next.CorrectResponses, next.CorrectPercentage, next.ThresholdMet, result.AnsweredAt)
	if err != nil {
		return nil, fmt.Errorf("update stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &next, nil
}

// GetStats returns the stats for one question number.
func (r *CohortRepository) GetStats(ctx context.Context, examID uuid.UUID, questionNumber int) (*model.CohortQuestionStats, error) {
	return scanStats(r.pool.QueryRow(ctx,
		`SELECT `+statsColumns+` FROM cohort_question_stats
		 WHERE exam_id = $1 AND question_number = $2`, examID, questionNumber))
}

// RecordDecision stores the advance outcome, creating the row when
// nobody answered the question.
func (r *CohortRepository) RecordDecision(ctx context.Context, s *model.CohortQuestionStats) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO cohort_question_stats (exam_id, question_number, question_id, difficulty,
		                                    next_difficulty, admin_override)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 ON CONFLICT (exam_id, question_number) DO UPDATE
		 SET next_difficulty = EXCLUDED.next_difficulty,
		     admin_override = COALESCE(EXCLUDED.admin_override, cohort_question_stats.admin_override),
		     updated_at = NOW()`,
		s.ExamID, s.QuestionNumber, s.QuestionID, s.Difficulty, s.NextDifficulty, s.AdminOverride)
	return err
}

// HasAnswered reports whether the user answered the given live question number.
func (r *CohortRepository) HasAnswered(ctx context.Context, examID uuid.UUID, userID, questionNumber int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM question_results
		     WHERE exam_id = $1 AND user_id = $2 AND question_number = $3 AND synchronized
		 )`, examID, userID, questionNumber,
	).Scan(&exists)
	return exists, err
}

// UsedQuestionIDs lists every question the cohort has already been shown.
func (r *CohortRepository) UsedQuestionIDs(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id FROM question_results WHERE exam_id = $1 AND synchronized
		 UNION
		 SELECT question_id FROM cohort_question_stats WHERE exam_id = $1`, examID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}
