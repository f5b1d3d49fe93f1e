package handler

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/service"
)

// ExamAdmin is the exam administration surface used by ExamHandler.
type ExamAdmin interface {
	Create(ctx context.Context, authorID int, req *model.CreateExamRequest) (*model.Exam, error)
	GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error)
	UpdateStatus(ctx context.Context, examID uuid.UUID, status model.ExamStatus) error
	ListAttempts(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error)
}

// ExamLifecycle covers entry, sessions, heartbeats and submission.
type ExamLifecycle interface {
	ValidateEntry(ctx context.Context, examID uuid.UUID, userID int, registerNumber string) (*service.EntryCheck, error)
	StartOrResumeSession(ctx context.Context, examID uuid.UUID, userID int, req *model.StartSessionRequest) (*service.SessionView, error)
	Heartbeat(ctx context.Context, examID uuid.UUID, userID int, req *model.HeartbeatRequest) (*service.HeartbeatResult, error)
	LogEvent(ctx context.Context, examID uuid.UUID, userID int, req *model.LogEventRequest) error
	SubmitExam(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamAttempt, error)
}

// IndividualTracker drives individual-adaptive exams.
type IndividualTracker interface {
	GetNextQuestion(ctx context.Context, examID uuid.UUID, userID int) (*service.NextQuestionResult, error)
	SubmitIndividualAnswer(ctx context.Context, examID uuid.UUID, userID int, req *model.SubmitAnswerRequest) (*service.IndividualAnswerResult, error)
	GetWaitStatus(ctx context.Context, examID uuid.UUID, userID int) (*service.WaitStatus, error)
}

// CohortAggregator drives synchronized exams.
type CohortAggregator interface {
	StartSynchronizedExam(ctx context.Context, examID uuid.UUID, adminID int) (*service.AdvanceResult, error)
	AdvanceSynchronizedExam(ctx context.Context, examID uuid.UUID, adminID int, force *model.Band) (*service.AdvanceResult, error)
	SetWaitPeriod(ctx context.Context, examID uuid.UUID, seconds int) (*time.Time, error)
	GetCurrentSynchronizedQuestion(ctx context.Context, examID uuid.UUID, userID int) (*service.CurrentQuestionResult, error)
	SubmitSynchronizedAnswer(ctx context.Context, examID uuid.UUID, userID int, req *model.SubmitAnswerRequest) (*service.SynchronizedAnswerResult, error)
}

// MonitorSnapshotter builds the initial state for the live monitor.
type MonitorSnapshotter interface {
	Snapshot(ctx context.Context, examID uuid.UUID) (*service.MonitorSnapshot, error)
}
