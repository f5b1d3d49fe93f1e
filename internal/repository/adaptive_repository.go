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

// AdaptiveRepository stores individual difficulty states and question results.
type AdaptiveRepository struct {
	pool *pgxpool.Pool
}

// NewAdaptiveRepository creates a new AdaptiveRepository.
func NewAdaptiveRepository(pool *pgxpool.Pool) *AdaptiveRepository {
	return &AdaptiveRepository{pool: pool}
}

const stateColumns = `exam_id, user_id, current_difficulty, questions_answered, correct_answers, wait_until, updated_at`

func scanState(row pgx.Row) (*model.IndividualDifficultyState, error) {
	s := &model.IndividualDifficultyState{}
	err := row.Scan(&s.ExamID, &s.UserID, &s.CurrentDifficulty, &s.QuestionsAnswered,
		&s.CorrectAnswers, &s.WaitUntil, &s.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	return s, nil
}

// GetOrCreate returns the user's state, creating it at initialLevel on
// first use. The primary key keeps it to one row per (exam, user).
func (r *AdaptiveRepository) GetOrCreate(ctx context.Context, examID uuid.UUID, userID, initialLevel int) (*model.IndividualDifficultyState, error) {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO individual_difficulty_states (exam_id, user_id, current_difficulty)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (exam_id, user_id) DO NOTHING`,
		examID, userID, initialLevel)
	if err != nil {
		return nil, fmt.Errorf("ensure state: %w", err)
	}

	return scanState(r.pool.QueryRow(ctx,
		`SELECT `+stateColumns+` FROM individual_difficulty_states
		 WHERE exam_id = $1 AND user_id = $2`, examID, userID))
}

// ApplyAnswer records result and applies transition to the locked state
// in one transaction. A second answer for the same question yields
// ErrDuplicate and leaves the state untouched. When limit is positive and
// the locked state already holds limit answers, ErrLimitReached is returned.
// QuestionNumber and Difficulty on result are filled from the locked state.
func (r *AdaptiveRepository) ApplyAnswer(
	ctx context.Context,
	result *model.QuestionResult,
	limit int,
	transition func(model.IndividualDifficultyState) model.IndividualDifficultyState,
) (*model.IndividualDifficultyState, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback(ctx)

	current, err := scanState(tx.QueryRow(ctx,
		`SELECT `+stateColumns+` FROM individual_difficulty_states
		 WHERE exam_id = $1 AND user_id = $2
		 FOR UPDATE`, result.ExamID, result.UserID))
	if err != nil {
		return nil, fmt.Errorf("lock state: %w", err)
	}
	if limit > 0 && current.QuestionsAnswered >= limit {
		return nil, ErrLimitReached
	}

	result.QuestionNumber = current.QuestionsAnswered + 1
	result.Difficulty = current.CurrentDifficulty

	err = tx.QueryRow(ctx,
		`INSERT INTO question_results (exam_id, user_id, question_id, question_number,
		                               answer, is_correct, difficulty, synchronized, answered_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, FALSE, $8)
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

	next := transition(*current)

	_, err = tx.Exec(ctx,
		`UPDATE individual_difficulty_states
		 SET current_difficulty = $3, questions_answered = $4, correct_answers = $5,
		     wait_until = $6, updated_at = $7
		 WHERE exam_id = $1 AND user_id = $2`,
		result.ExamID, result.UserID, next.CurrentDifficulty, next.QuestionsAnswered,
		next.CorrectAnswers, next.WaitUntil, next.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("update state: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit: %w", err)
	}
	return &next, nil
}

// AnsweredQuestionIDs lists the questions the user has already answered
// in individual mode.
func (r *AdaptiveRepository) AnsweredQuestionIDs(ctx context.Context, examID uuid.UUID, userID int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT question_id FROM question_results
		 WHERE exam_id = $1 AND user_id = $2 AND NOT synchronized`, examID, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[uuid.UUID])
}

// ListResults returns every accepted answer of the user, in either mode.
func (r *AdaptiveRepository) ListResults(ctx context.Context, examID uuid.UUID, userID int) ([]model.QuestionResult, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, exam_id, user_id, question_id, question_number, answer,
		        is_correct, difficulty, synchronized, answered_at
		 FROM question_results
		 WHERE exam_id = $1 AND user_id = $2
		 ORDER BY question_number`, examID, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var results []model.QuestionResult
	for rows.Next() {
		var q model.QuestionResult
		if err := rows.Scan(&q.ID, &q.ExamID, &q.UserID, &q.QuestionID, &q.QuestionNumber, &q.Answer,
			&q.IsCorrect, &q.Difficulty, &q.Synchronized, &q.AnsweredAt); err != nil {
			return nil, err
		}
		results = append(results, q)
	}
	return results, rows.Err()
}
