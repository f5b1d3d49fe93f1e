package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/adaptive"
	"github.com/stemsi/exstem-adaptive/internal/config"
	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/repository"
)

// Defaults applied to exams created without explicit settings.
const (
	defaultPassingScore   = 60.0
	defaultTabSwitchLimit = 3
)

// ExamService handles exam administration.
type ExamService struct {
	exams     ExamStore
	questions QuestionStore
	attempts  AttemptStore
	cfg       *config.Config
	log       zerolog.Logger
}

// NewExamService creates a new ExamService.
func NewExamService(
	exams ExamStore,
	questions QuestionStore,
	attempts AttemptStore,
	cfg *config.Config,
	log zerolog.Logger,
) *ExamService {
	return &ExamService{
		exams:     exams,
		questions: questions,
		attempts:  attempts,
		cfg:       cfg,
		log:       log.With().Str("component", "exam_service").Logger(),
	}
}

// loadExam maps a missing row onto ErrExamNotFound.
func loadExam(ctx context.Context, exams ExamStore, id uuid.UUID) (*model.Exam, error) {
	exam, err := exams.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("get exam: %w", err)
	}
	return exam, nil
}

// GetByID retrieves an exam by its UUID.
func (s *ExamService) GetByID(ctx context.Context, id uuid.UUID) (*model.Exam, error) {
	return loadExam(ctx, s.exams, id)
}

// Create validates req, fills defaults and stores the exam as DRAFT.
func (s *ExamService) Create(ctx context.Context, authorID int, req *model.CreateExamRequest) (*model.Exam, error) {
	exam, err := s.buildExam(authorID, req)
	if err != nil {
		return nil, err
	}

	questionIDs := dedupeIDs(req.QuestionIDs)
	if len(questionIDs) > 0 {
		qs, err := s.questions.GetByIDs(ctx, questionIDs)
		if err != nil {
			return nil, fmt.Errorf("load questions: %w", err)
		}
		if len(qs) != len(questionIDs) {
			return nil, ErrQuestionNotFound
		}
	}

	if exam.Mode == model.ExamModeStatic {
		if len(questionIDs) == 0 {
			return nil, fmt.Errorf("%w: static exams need question_ids", ErrInvalidExam)
		}
		exam.TotalQuestions = len(questionIDs)
	}

	if err := s.exams.Create(ctx, exam, questionIDs); err != nil {
		return nil, fmt.Errorf("create exam: %w", err)
	}

	s.log.Info().
		Str("exam_id", exam.ID.String()).
		Str("mode", string(exam.Mode)).
		Int("author_id", authorID).
		Msg("Exam created")

	return exam, nil
}

func (s *ExamService) buildExam(authorID int, req *model.CreateExamRequest) (*model.Exam, error) {
	if !req.EndTime.After(req.StartTime) {
		return nil, fmt.Errorf("%w: end_time must be after start_time", ErrInvalidExam)
	}
	if req.DurationMinutes < 1 {
		return nil, fmt.Errorf("%w: duration must be at least one minute", ErrInvalidExam)
	}

	exam := &model.Exam{
		Title:                      req.Title,
		AuthorID:                   authorID,
		Mode:                       req.Mode,
		Status:                     model.ExamStatusDraft,
		StartTime:                  req.StartTime,
		EndTime:                    req.EndTime,
		DurationMinutes:            req.DurationMinutes,
		VerificationLeadMinutes:    s.cfg.DefaultVerificationMinutes,
		TotalQuestions:             req.TotalQuestions,
		PassingScore:               defaultPassingScore,
		Tags:                       req.Tags,
		RequireStudentVerification: req.RequireStudentVerification,
		Roster:                     req.Roster,
		Adaptive: model.AdaptiveSettings{
			WaitTimeMin:      s.cfg.DefaultWaitMinSeconds,
			WaitTimeMax:      s.cfg.DefaultWaitMaxSeconds,
			ThresholdPercent: adaptive.DefaultThresholdPercent,
		},
		Proctoring: model.ProctoringSettings{
			TabSwitchLimit:        defaultTabSwitchLimit,
			AutoSubmitOnViolation: true,
		},
		Live: model.LiveState{CurrentDifficulty: model.BandEasy},
	}

	if req.VerificationLeadMinutes != nil {
		exam.VerificationLeadMinutes = *req.VerificationLeadMinutes
	}
	if req.PassingScore != nil {
		exam.PassingScore = *req.PassingScore
	}
	if req.Proctoring != nil {
		exam.Proctoring = *req.Proctoring
	}
	if req.Adaptive != nil {
		exam.Adaptive = *req.Adaptive
		if exam.Adaptive.ThresholdPercent <= 0 {
			exam.Adaptive.ThresholdPercent = adaptive.DefaultThresholdPercent
		}
	}

	a := exam.Adaptive
	if a.WaitTimeMin < 0 || a.WaitTimeMax < 0 || a.WaitTimeMin > a.WaitTimeMax {
		return nil, fmt.Errorf("%w: wait_time_min must be between 0 and wait_time_max", ErrInvalidExam)
	}
	if a.ThresholdPercent > 100 {
		return nil, fmt.Errorf("%w: threshold_percent must not exceed 100", ErrInvalidExam)
	}
	if a.QuestionTimerSeconds < 0 || exam.Proctoring.TabSwitchLimit < 0 {
		return nil, fmt.Errorf("%w: negative limits", ErrInvalidExam)
	}

	if exam.RequireStudentVerification && len(exam.Roster) == 0 {
		return nil, fmt.Errorf("%w: verification requires a roster", ErrInvalidExam)
	}

	if exam.IsDynamic() {
		exam.Routing = req.Routing
		if len(exam.Routing) == 0 {
			exam.Routing = adaptive.DefaultRoutingTable()
		}
		if err := adaptive.ValidateRoutingTable(exam.Routing); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidExam, err)
		}
	}

	return exam, nil
}

// UpdateStatus moves the exam between DRAFT, ACTIVE, PAUSED and COMPLETED.
// COMPLETED is final.
func (s *ExamService) UpdateStatus(ctx context.Context, examID uuid.UUID, status model.ExamStatus) error {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return err
	}
	if exam.Status == model.ExamStatusCompleted && status != model.ExamStatusCompleted {
		return fmt.Errorf("%w: completed exams cannot be reopened", ErrInvalidExam)
	}

	if err := s.exams.UpdateStatus(ctx, examID, status); err != nil {
		return fmt.Errorf("update status: %w", err)
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Str("from", string(exam.Status)).
		Str("to", string(status)).
		Msg("Exam status changed")
	return nil
}

// ListAttempts returns the submitted attempts of an exam.
func (s *ExamService) ListAttempts(ctx context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	if _, err := loadExam(ctx, s.exams, examID); err != nil {
		return nil, err
	}

	attempts, err := s.attempts.ListByExam(ctx, examID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	if attempts == nil {
		attempts = []model.ExamAttempt{}
	}
	return attempts, nil
}

func dedupeIDs(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
