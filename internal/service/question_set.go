package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/selection"
)

// QuestionSetProvider builds the frozen question set of a dynamic session
// when none exists. A generation collaborator can be plugged in here.
type QuestionSetProvider interface {
	ProvideSet(ctx context.Context, exam *model.Exam, userID int) ([]uuid.UUID, error)
}

// PoolSetProvider samples the set from the question pool by the exam's tags.
type PoolSetProvider struct {
	selector *selection.Selector
}

// NewPoolSetProvider creates a new PoolSetProvider.
func NewPoolSetProvider(selector *selection.Selector) *PoolSetProvider {
	return &PoolSetProvider{selector: selector}
}

// ProvideSet samples exam.TotalQuestions questions split across bands.
func (p *PoolSetProvider) ProvideSet(ctx context.Context, exam *model.Exam, _ int) ([]uuid.UUID, error) {
	qs, err := p.selector.BuildSet(ctx, exam.Tags, exam.TotalQuestions)
	if err != nil {
		return nil, fmt.Errorf("build question set: %w", err)
	}

	ids := make([]uuid.UUID, len(qs))
	for i, q := range qs {
		ids[i] = q.ID
	}
	return ids, nil
}
