package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/selection"
)

const questionColumns = `id, content, options, correct_answer, explanation, difficulty, tags, created_at`

// QuestionRepository reads the question pool. It satisfies selection.Pool.
type QuestionRepository struct {
	pool *pgxpool.Pool
}

// NewQuestionRepository creates a new QuestionRepository.
func NewQuestionRepository(pool *pgxpool.Pool) *QuestionRepository {
	return &QuestionRepository{pool: pool}
}

func scanQuestions(rows pgx.Rows) ([]model.Question, error) {
	defer rows.Close()

	var questions []model.Question
	for rows.Next() {
		var q model.Question
		if err := rows.Scan(&q.ID, &q.Content, &q.Options, &q.CorrectAnswer, &q.Explanation,
			&q.Difficulty, &q.Tags, &q.CreatedAt); err != nil {
			return nil, err
		}
		questions = append(questions, q)
	}
	return questions, rows.Err()
}

// buildWhere turns a selection filter into a WHERE clause and its args.
func buildWhere(f selection.Filter) (string, []any) {
	conds := []string{"TRUE"}
	var args []any

	if f.MinDifficulty > 0 {
		args = append(args, f.MinDifficulty)
		conds = append(conds, fmt.Sprintf("difficulty >= $%d", len(args)))
	}
	if f.MaxDifficulty > 0 {
		args = append(args, f.MaxDifficulty)
		conds = append(conds, fmt.Sprintf("difficulty <= $%d", len(args)))
	}
	if len(f.Tags) > 0 {
		args = append(args, f.Tags)
		conds = append(conds, fmt.Sprintf("tags && $%d::text[]", len(args)))
	}
	if len(f.ExcludeIDs) > 0 {
		args = append(args, f.ExcludeIDs)
		conds = append(conds, fmt.Sprintf("NOT (id = ANY($%d::uuid[]))", len(args)))
	}

	return " WHERE " + strings.Join(conds, " AND "), args
}

// Query returns up to limit matching questions in a stable order.
func (r *QuestionRepository) Query(ctx context.Context, f selection.Filter, limit int) ([]model.Question, error) {
	where, args := buildWhere(f)
	args = append(args, limit)

	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions`+where+
			fmt.Sprintf(" ORDER BY created_at, id LIMIT $%d", len(args)),
		args...)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

// Sample returns up to n matching questions in random order.
func (r *QuestionRepository) Sample(ctx context.Context, f selection.Filter, n int) ([]model.Question, error) {
	where, args := buildWhere(f)
	args = append(args, n)

	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions`+where+
			fmt.Sprintf(" ORDER BY random() LIMIT $%d", len(args)),
		args...)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}

// GetByID retrieves a single question.
func (r *QuestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+questionColumns+` FROM questions WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	qs, err := scanQuestions(rows)
	if err != nil {
		return nil, err
	}
	if len(qs) == 0 {
		return nil, ErrNotFound
	}
	return &qs[0], nil
}

// GetByIDs retrieves the listed questions. Unknown IDs are skipped.
func (r *QuestionRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.pool.Query(ctx,
		`SELECT `+questionColumns+` FROM questions WHERE id = ANY($1::uuid[])`, ids)
	if err != nil {
		return nil, err
	}
	return scanQuestions(rows)
}
