package service

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/adaptive"
	"github.com/stemsi/exstem-adaptive/internal/metrics"
	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/repository"
	"github.com/stemsi/exstem-adaptive/internal/selection"
)

// IndividualService is the individual difficulty tracker. Every user
// moves through difficulty on their own, paced by a random wait.
type IndividualService struct {
	exams     ExamStore
	sessions  SessionStore
	states    IndividualStateStore
	questions QuestionStore
	selector  *selection.Selector
	rnd       adaptive.Source
	log       zerolog.Logger
	now       func() time.Time
}

// NewIndividualService creates a new IndividualService.
func NewIndividualService(
	exams ExamStore,
	sessions SessionStore,
	states IndividualStateStore,
	questions QuestionStore,
	selector *selection.Selector,
	rnd adaptive.Source,
	log zerolog.Logger,
) *IndividualService {
	return &IndividualService{
		exams:     exams,
		sessions:  sessions,
		states:    states,
		questions: questions,
		selector:  selector,
		rnd:       rnd,
		log:       log.With().Str("component", "individual_service").Logger(),
		now:       time.Now,
	}
}

func (s *IndividualService) load(ctx context.Context, examID uuid.UUID, userID int) (*model.Exam, *model.ExamSession, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, nil, err
	}
	if exam.Mode != model.ExamModeDynamicIndividual {
		return nil, nil, ErrWrongExamMode
	}
	sess, err := findSession(ctx, s.sessions, examID, userID)
	if err != nil {
		return nil, nil, err
	}
	return exam, sess, nil
}

func (s *IndividualService) state(ctx context.Context, examID uuid.UUID, userID int) (*model.IndividualDifficultyState, error) {
	st, err := s.states.GetOrCreate(ctx, examID, userID, adaptive.DefaultLevel)
	if err != nil {
		return nil, fmt.Errorf("load difficulty state: %w", err)
	}
	return st, nil
}

func progressOf(st *model.IndividualDifficultyState, total int) Progress {
	return Progress{Answered: st.QuestionsAnswered, Correct: st.CorrectAnswers, Total: total}
}

// GetNextQuestion serves the next unseen question at the user's band,
// or tells the client to wait or that the run is complete.
func (s *IndividualService) GetNextQuestion(ctx context.Context, examID uuid.UUID, userID int) (*NextQuestionResult, error) {
	exam, sess, err := s.load(ctx, examID, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	switch {
	case now.Before(exam.StartTime):
		return &NextQuestionResult{
			State:       StateWaiting,
			Reason:      ReasonNotStarted,
			WaitSeconds: adaptive.CeilSeconds(exam.StartTime.Sub(now)),
		}, nil
	case now.After(exam.EndTime):
		return &NextQuestionResult{State: StateComplete, Reason: ReasonExamEnded}, nil
	case sess.Expired(now):
		return &NextQuestionResult{State: StateComplete, Reason: ReasonTimeOver}, nil
	}

	st, err := s.state(ctx, examID, userID)
	if err != nil {
		return nil, err
	}
	progress := progressOf(st, exam.TotalQuestions)

	if wait := adaptive.WaitRemaining(*st, now); wait > 0 {
		return &NextQuestionResult{
			State:       StateWaiting,
			Reason:      ReasonPacing,
			WaitSeconds: adaptive.CeilSeconds(wait),
			Progress:    progress,
		}, nil
	}

	if st.QuestionsAnswered >= exam.TotalQuestions {
		return &NextQuestionResult{State: StateComplete, Reason: ReasonAllAnswered, Progress: progress}, nil
	}

	seen, err := s.states.AnsweredQuestionIDs(ctx, examID, userID)
	if err != nil {
		return nil, fmt.Errorf("answered questions: %w", err)
	}

	band := adaptive.BandOf(st.CurrentDifficulty)
	q, broadened, err := s.selector.Pick(ctx, selection.Criteria{
		Band:       band,
		Tags:       exam.Tags,
		ExcludeIDs: seen,
	})
	if err != nil {
		return nil, err
	}

	if q == nil {
		metrics.PoolExhaustedTotal.WithLabelValues(metrics.ModeIndividual).Inc()
		s.log.Info().
			Str("exam_id", examID.String()).
			Int("user_id", userID).
			Int("answered", st.QuestionsAnswered).
			Msg("Question pool exhausted, completing run")
		return &NextQuestionResult{
			State:    StateComplete,
			Reason:   ReasonPoolExhausted,
			Message:  "No more questions available",
			Progress: progress,
		}, nil
	}
	if broadened {
		metrics.PoolBroadenedTotal.WithLabelValues(metrics.ModeIndividual).Inc()
	}

	view := s.selector.ShuffleOptions(q.ForStudent())
	return &NextQuestionResult{
		State:          StateQuestion,
		Question:       &view,
		QuestionNumber: st.QuestionsAnswered + 1,
		Difficulty:     st.CurrentDifficulty,
		Band:           band,
		Progress:       progress,
	}, nil
}

// SubmitIndividualAnswer accepts at most one answer per question and
// moves the user's difficulty through the routing table.
func (s *IndividualService) SubmitIndividualAnswer(ctx context.Context, examID uuid.UUID, userID int, req *model.SubmitAnswerRequest) (*IndividualAnswerResult, error) {
	exam, sess, err := s.load(ctx, examID, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if now.After(exam.EndTime) || sess.Expired(now) {
		return nil, &TimeWindowError{
			Reason:            WindowClosed,
			VerificationStart: exam.VerificationStart(),
			Start:             exam.StartTime,
			End:               exam.EndTime,
		}
	}

	q, err := s.questions.GetByID(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}
	if !inPool(q, exam.Tags) {
		return nil, ErrQuestionNotFound
	}

	// The state row must exist before the locked update.
	if _, err := s.state(ctx, examID, userID); err != nil {
		return nil, err
	}

	correct := matches(req.Answer, q.CorrectAnswer)
	result := &model.QuestionResult{
		ExamID:     examID,
		UserID:     userID,
		QuestionID: q.ID,
		Answer:     req.Answer,
		IsCorrect:  correct,
		AnsweredAt: now,
	}

	var tr adaptive.Transition
	next, err := s.states.ApplyAnswer(ctx, result, exam.TotalQuestions, func(st model.IndividualDifficultyState) model.IndividualDifficultyState {
		var out model.IndividualDifficultyState
		out, tr = adaptive.ApplyAnswer(st, correct, exam.Routing, exam.Adaptive, now, s.rnd)
		return out
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			metrics.DuplicateAnswersTotal.WithLabelValues(metrics.ModeIndividual).Inc()
			s.log.Debug().
				Str("exam_id", examID.String()).
				Int("user_id", userID).
				Str("question_id", q.ID.String()).
				Msg("Duplicate answer rejected")
			return nil, ErrAlreadyAnswered
		}
		if errors.Is(err, repository.ErrLimitReached) {
			return nil, ErrAlreadyCompleted
		}
		return nil, fmt.Errorf("apply answer: %w", err)
	}

	if tr.RoutingMissing {
		metrics.RoutingMissingTotal.WithLabelValues(metrics.ModeIndividual).Inc()
		s.log.Warn().
			Str("exam_id", examID.String()).
			Int("difficulty", tr.PreviousLevel).
			Bool("correct", correct).
			Msg("No routing entry, holding difficulty")
	}
	metrics.ObserveAnswer(metrics.ModeIndividual, correct)

	return &IndividualAnswerResult{
		IsCorrect:      correct,
		CorrectAnswer:  q.CorrectAnswer,
		Explanation:    q.Explanation,
		WaitSeconds:    tr.WaitSeconds,
		NewDifficulty:  next.CurrentDifficulty,
		NewBand:        adaptive.BandOf(next.CurrentDifficulty),
		QuestionNumber: result.QuestionNumber,
		Progress:       progressOf(next, exam.TotalQuestions),
	}, nil
}

// GetWaitStatus reports the pacing gate without selecting a question.
func (s *IndividualService) GetWaitStatus(ctx context.Context, examID uuid.UUID, userID int) (*WaitStatus, error) {
	exam, _, err := s.load(ctx, examID, userID)
	if err != nil {
		return nil, err
	}

	st, err := s.state(ctx, examID, userID)
	if err != nil {
		return nil, err
	}

	wait := adaptive.WaitRemaining(*st, s.now())
	return &WaitStatus{
		IsWaiting:   wait > 0,
		WaitSeconds: adaptive.CeilSeconds(wait),
		Difficulty:  st.CurrentDifficulty,
		Progress:    progressOf(st, exam.TotalQuestions),
	}, nil
}

// inPool reports whether q belongs to an exam drawing from tags.
// An exam without tags draws from the whole pool.
func inPool(q *model.Question, tags []string) bool {
	if len(tags) == 0 {
		return true
	}
	for _, t := range q.Tags {
		if slices.Contains(tags, t) {
			return true
		}
	}
	return false
}
