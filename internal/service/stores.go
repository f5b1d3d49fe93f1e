package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-adaptive/internal/model"
)

// The stores below are the persistence boundary of the engine. The pgx
// repositories satisfy them in production; tests use in-memory fakes.

// ExamStore loads exam definitions and writes the synchronized live fields.
type ExamStore interface {
	Create(ctx context.Context, e *model.Exam, questionIDs []uuid.UUID) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status model.ExamStatus) error
	ListQuestionIDs(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error)
	// UpdateLive writes live state only if the exam is still on expectedNumber.
	UpdateLive(ctx context.Context, id uuid.UUID, expectedNumber int, live model.LiveState, status model.ExamStatus) (bool, error)
	SetWaitPeriod(ctx context.Context, id uuid.UUID, until *time.Time) error
}

// SessionStore persists live sittings.
type SessionStore interface {
	GetByExamAndUser(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamSession, error)
	Create(ctx context.Context, s *model.ExamSession) error
	SetQuestionIDs(ctx context.Context, examID uuid.UUID, userID int, ids []uuid.UUID) error
	MergeAnswers(ctx context.Context, examID uuid.UUID, userID int, answers map[string]string) error
	RecordHeartbeat(ctx context.Context, examID uuid.UUID, userID int, violation bool, at time.Time) (int, error)
	Delete(ctx context.Context, examID uuid.UUID, userID int) error
}

// AttemptStore persists submitted attempts.
type AttemptStore interface {
	Create(ctx context.Context, a *model.ExamAttempt) error
	Exists(ctx context.Context, examID uuid.UUID, userID int) (bool, error)
	ListByExam(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error)
}

// IndividualStateStore owns IndividualDifficultyState and individual results.
type IndividualStateStore interface {
	GetOrCreate(ctx context.Context, examID uuid.UUID, userID, initialLevel int) (*model.IndividualDifficultyState, error)
	// ApplyAnswer inserts result and applies transition atomically.
	// A duplicate result yields repository.ErrDuplicate; a state already
	// at limit answers yields repository.ErrLimitReached.
	ApplyAnswer(ctx context.Context, result *model.QuestionResult, limit int,
		transition func(model.IndividualDifficultyState) model.IndividualDifficultyState) (*model.IndividualDifficultyState, error)
	AnsweredQuestionIDs(ctx context.Context, examID uuid.UUID, userID int) ([]uuid.UUID, error)
}

// ResultLister reads every accepted answer of one user.
type ResultLister interface {
	ListResults(ctx context.Context, examID uuid.UUID, userID int) ([]model.QuestionResult, error)
}

// CohortStore owns CohortQuestionStats and synchronized results.
type CohortStore interface {
	// ApplyResponse inserts result and folds it into the stats row atomically.
	ApplyResponse(ctx context.Context, result *model.QuestionResult, band model.Band,
		apply func(model.CohortQuestionStats) (model.CohortQuestionStats, bool)) (*model.CohortQuestionStats, error)
	GetStats(ctx context.Context, examID uuid.UUID, questionNumber int) (*model.CohortQuestionStats, error)
	RecordDecision(ctx context.Context, s *model.CohortQuestionStats) error
	HasAnswered(ctx context.Context, examID uuid.UUID, userID, questionNumber int) (bool, error)
	UsedQuestionIDs(ctx context.Context, examID uuid.UUID) ([]uuid.UUID, error)
}

// QuestionStore reads pool questions by ID.
type QuestionStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*model.Question, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]model.Question, error)
}
