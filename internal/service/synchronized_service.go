package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/adaptive"
	"github.com/stemsi/exstem-adaptive/internal/config"
	"github.com/stemsi/exstem-adaptive/internal/event"
	"github.com/stemsi/exstem-adaptive/internal/metrics"
	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/repository"
	"github.com/stemsi/exstem-adaptive/internal/selection"
)

// releaseLock deletes the lock only if we still own it.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// SynchronizedService is the synchronized cohort aggregator. The whole
// cohort sits on one live question; only the admin moves it forward.
type SynchronizedService struct {
	exams     ExamStore
	sessions  SessionStore
	cohort    CohortStore
	questions QuestionStore
	selector  *selection.Selector
	rdb       *redis.Client
	monitor   *Broadcaster
	events    event.Publisher
	lockTTL   time.Duration
	log       zerolog.Logger
	now       func() time.Time
}

// NewSynchronizedService creates a new SynchronizedService.
func NewSynchronizedService(
	exams ExamStore,
	sessions SessionStore,
	cohort CohortStore,
	questions QuestionStore,
	selector *selection.Selector,
	rdb *redis.Client,
	monitor *Broadcaster,
	events event.Publisher,
	cfg *config.Config,
	log zerolog.Logger,
) *SynchronizedService {
	return &SynchronizedService{
		exams:     exams,
		sessions:  sessions,
		cohort:    cohort,
		questions: questions,
		selector:  selector,
		rdb:       rdb,
		monitor:   monitor,
		events:    events,
		lockTTL:   cfg.AdvanceLockTTL,
		log:       log.With().Str("component", "synchronized_service").Logger(),
		now:       time.Now,
	}
}

func (s *SynchronizedService) loadExam(ctx context.Context, examID uuid.UUID) (*model.Exam, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}
	if exam.Mode != model.ExamModeDynamicSynchronized {
		return nil, ErrWrongExamMode
	}
	return exam, nil
}

// ─── Advance lock ───────────────────────────────────────────────────

// withAdvanceLock serializes start and advance per exam. The conditional
// live update in the store still guards against a lock that expired.
func (s *SynchronizedService) withAdvanceLock(ctx context.Context, examID uuid.UUID, fn func() error) error {
	key := config.CacheKey.ExamAdvanceLockKey(examID.String())
	token := uuid.NewString()

	ok, err := s.rdb.SetNX(ctx, key, token, s.lockTTL).Result()
	if err != nil {
		return fmt.Errorf("acquire advance lock: %w", err)
	}
	if !ok {
		return ErrAdvanceInProgress
	}
	defer func() {
		if err := releaseLock.Run(context.WithoutCancel(ctx), s.rdb, []string{key}, token).Err(); err != nil {
			s.log.Warn().Err(err).Str("exam_id", examID.String()).Msg("Failed to release advance lock")
		}
	}()

	return fn()
}

// ─── Admin operations ───────────────────────────────────────────────

// StartSynchronizedExam activates question #1 at easy.
func (s *SynchronizedService) StartSynchronizedExam(ctx context.Context, examID uuid.UUID, adminID int) (*AdvanceResult, error) {
	var result *AdvanceResult
	err := s.withAdvanceLock(ctx, examID, func() error {
		exam, err := s.loadExam(ctx, examID)
		if err != nil {
			return err
		}
		if exam.Live.StartedAt != nil {
			return ErrSynchronizedAlreadyStarted
		}
		if exam.Status == model.ExamStatusCompleted {
			return ErrExamNotAvailable
		}

		now := s.now()
		live := model.LiveState{
			StartedAt:         &now,
			CurrentDifficulty: model.BandEasy,
		}

		result, err = s.activate(ctx, exam, live, model.BandEasy, nil)
		if err != nil {
			return err
		}

		s.log.Info().
			Str("exam_id", examID.String()).
			Int("admin_id", adminID).
			Bool("complete", result.ExamComplete).
			Msg("Synchronized exam started")
		return nil
	})
	return result, err
}

// AdvanceSynchronizedExam closes the live question, decides the next band
// and activates the next question. force overrides the decision.
func (s *SynchronizedService) AdvanceSynchronizedExam(ctx context.Context, examID uuid.UUID, adminID int, force *model.Band) (*AdvanceResult, error) {
	var result *AdvanceResult
	err := s.withAdvanceLock(ctx, examID, func() error {
		exam, err := s.loadExam(ctx, examID)
		if err != nil {
			return err
		}
		if exam.Live.StartedAt == nil {
			return ErrSynchronizedNotStarted
		}
		if exam.Status == model.ExamStatusCompleted {
			result = &AdvanceResult{
				ExamComplete:   true,
				QuestionNumber: exam.Live.CurrentQuestionNumber,
				Difficulty:     exam.Live.CurrentDifficulty,
			}
			return nil
		}

		current := exam.Live.CurrentDifficulty
		if !current.Valid() {
			current = model.BandEasy
		}

		stats, err := s.cohort.GetStats(ctx, examID, exam.Live.CurrentQuestionNumber)
		if errors.Is(err, repository.ErrNotFound) {
			stats = &model.CohortQuestionStats{
				ExamID:         examID,
				QuestionNumber: exam.Live.CurrentQuestionNumber,
				Difficulty:     current,
			}
			if exam.Live.CurrentQuestionID != nil {
				stats.QuestionID = *exam.Live.CurrentQuestionID
			}
			err = nil
		}
		if err != nil {
			return fmt.Errorf("load cohort stats: %w", err)
		}

		if force != nil && force.Valid() {
			override := *force
			stats.AdminOverride = &override
		}

		next, decision := adaptive.NextDifficulty(*stats, current, exam.Routing, exam.Adaptive.ThresholdPercent)
		if decision == adaptive.DecisionNoRouting {
			metrics.RoutingMissingTotal.WithLabelValues(metrics.ModeSynchronized).Inc()
			s.log.Warn().
				Str("exam_id", examID.String()).
				Str("difficulty", string(current)).
				Msg("No routing entry, cohort holds difficulty")
		}
		stats.NextDifficulty = &next

		if err := s.cohort.RecordDecision(ctx, stats); err != nil {
			return fmt.Errorf("record decision: %w", err)
		}

		used, err := s.cohort.UsedQuestionIDs(ctx, examID)
		if err != nil {
			return fmt.Errorf("used questions: %w", err)
		}
		if exam.Live.CurrentQuestionID != nil {
			used = append(used, *exam.Live.CurrentQuestionID)
		}

		live := exam.Live
		live.CurrentDifficulty = next
		live.IsInWaitPeriod = false
		live.WaitPeriodEndTime = nil

		summary := summarize(*stats)
		result, err = s.activate(ctx, exam, live, next, used)
		if err != nil {
			return err
		}
		result.Decision = decision
		result.Previous = &summary

		metrics.AdvancesTotal.WithLabelValues(string(decision)).Inc()
		s.log.Info().
			Str("exam_id", examID.String()).
			Int("admin_id", adminID).
			Int("question_number", result.QuestionNumber).
			Str("difficulty", string(next)).
			Str("decision", string(decision)).
			Bool("complete", result.ExamComplete).
			Msg("Synchronized exam advanced")
		return nil
	})
	return result, err
}

// activate picks a question at band and writes the new live state. The
// live difficulty always matches the served question, so there is no
// broadening: when band has nothing unseen the exam completes.
func (s *SynchronizedService) activate(ctx context.Context, exam *model.Exam, live model.LiveState, band model.Band, used []uuid.UUID) (*AdvanceResult, error) {
	q, err := s.selector.PickExact(ctx, selection.Criteria{Band: band, Tags: exam.Tags, ExcludeIDs: used})
	if err != nil {
		return nil, err
	}

	now := s.now()
	expected := exam.Live.CurrentQuestionNumber
	status := model.ExamStatusActive
	result := &AdvanceResult{Difficulty: band}

	if q == nil {
		metrics.PoolExhaustedTotal.WithLabelValues(metrics.ModeSynchronized).Inc()
		status = model.ExamStatusCompleted
		live.IsQuestionActive = false
		result.ExamComplete = true
		result.QuestionNumber = live.CurrentQuestionNumber
	} else {
		id := q.ID
		live.CurrentQuestionID = &id
		live.CurrentQuestionNumber = expected + 1
		live.CurrentQuestionStartedAt = &now
		live.IsQuestionActive = true

		view := q.ForStudent()
		result.NextQuestion = &view
		result.QuestionNumber = live.CurrentQuestionNumber
	}

	ok, err := s.exams.UpdateLive(ctx, exam.ID, expected, live, status)
	if err != nil {
		return nil, fmt.Errorf("update live state: %w", err)
	}
	if !ok {
		return nil, ErrAdvanceConflict
	}

	s.monitor.Publish(ctx, MonitorEvent{
		Type:           EventAdvanced,
		ExamID:         exam.ID,
		QuestionNumber: result.QuestionNumber,
		Difficulty:     band,
		Completed:      result.ExamComplete,
		At:             now,
	})

	err = s.events.Publish(ctx, event.KeySynchronizedAdvanced, event.SynchronizedAdvanced{
		ExamID:         exam.ID,
		QuestionNumber: result.QuestionNumber,
		Difficulty:     string(band),
		Completed:      result.ExamComplete,
		At:             now,
	})
	if err != nil {
		s.log.Error().Err(err).Str("exam_id", exam.ID.String()).Msg("Failed to publish advance event")
	}

	return result, nil
}

// SetWaitPeriod opens an analyzing pause of seconds; zero clears it.
func (s *SynchronizedService) SetWaitPeriod(ctx context.Context, examID uuid.UUID, seconds int) (*time.Time, error) {
	if _, err := s.loadExam(ctx, examID); err != nil {
		return nil, err
	}

	var until *time.Time
	if seconds > 0 {
		t := s.now().Add(time.Duration(seconds) * time.Second)
		until = &t
	}

	if err := s.exams.SetWaitPeriod(ctx, examID, until); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrExamNotFound
		}
		return nil, fmt.Errorf("set wait period: %w", err)
	}

	s.monitor.Publish(ctx, MonitorEvent{Type: EventWaitPeriod, ExamID: examID, WaitSeconds: seconds})
	return until, nil
}

// ─── Student operations ─────────────────────────────────────────────

// gate applies the checks shared by reads and submissions. A non-nil
// result means the caller must not see the live question.
func (s *SynchronizedService) gate(exam *model.Exam, sess *model.ExamSession, now time.Time) (*CurrentQuestionResult, error) {
	live := exam.Live

	if now.Before(exam.StartTime) {
		return &CurrentQuestionResult{
			State:       StateWaiting,
			Reason:      ReasonNotStarted,
			WaitSeconds: adaptive.CeilSeconds(exam.StartTime.Sub(now)),
		}, nil
	}
	if exam.Status == model.ExamStatusCompleted {
		return &CurrentQuestionResult{State: StateComplete, Reason: ReasonExamCompleted}, nil
	}
	if now.After(exam.EndTime) {
		return &CurrentQuestionResult{State: StateComplete, Reason: ReasonExamEnded}, nil
	}
	if sess.Expired(now) {
		return &CurrentQuestionResult{State: StateComplete, Reason: ReasonTimeOver}, nil
	}
	if live.StartedAt == nil {
		return &CurrentQuestionResult{State: StateWaiting, Reason: ReasonNotStarted}, nil
	}
	if !exam.Adaptive.AllowLateJoin && sess.StartedAt.After(*live.StartedAt) {
		return nil, ErrLateJoin
	}
	if live.IsInWaitPeriod && live.WaitPeriodEndTime != nil && now.Before(*live.WaitPeriodEndTime) {
		return &CurrentQuestionResult{
			State:       StateWaiting,
			Reason:      ReasonAnalyzing,
			WaitSeconds: adaptive.CeilSeconds(live.WaitPeriodEndTime.Sub(now)),
		}, nil
	}
	if !live.IsQuestionActive || live.CurrentQuestionID == nil {
		return &CurrentQuestionResult{State: StateWaiting, Reason: ReasonInactive}, nil
	}
	return nil, nil
}

// timeRemaining is the per-question timer, nil when the exam has none.
func timeRemaining(exam *model.Exam, now time.Time) *int {
	timer := exam.Adaptive.QuestionTimerSeconds
	if timer <= 0 || exam.Live.CurrentQuestionStartedAt == nil {
		return nil
	}
	left := time.Duration(timer)*time.Second - now.Sub(*exam.Live.CurrentQuestionStartedAt)
	secs := adaptive.CeilSeconds(left)
	return &secs
}

// GetCurrentSynchronizedQuestion returns the live question unless the
// user already answered it or the cohort is paused.
func (s *SynchronizedService) GetCurrentSynchronizedQuestion(ctx context.Context, examID uuid.UUID, userID int) (*CurrentQuestionResult, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	sess, err := findSession(ctx, s.sessions, examID, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if res, err := s.gate(exam, sess, now); res != nil || err != nil {
		return res, err
	}

	number := exam.Live.CurrentQuestionNumber
	answered, err := s.cohort.HasAnswered(ctx, examID, userID, number)
	if err != nil {
		return nil, fmt.Errorf("check answered: %w", err)
	}
	if answered {
		return &CurrentQuestionResult{
			State:          StateWaiting,
			Reason:         ReasonAnswered,
			QuestionNumber: number,
			HasAnswered:    true,
		}, nil
	}

	q, err := s.questions.GetByID(ctx, *exam.Live.CurrentQuestionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}

	view := s.selector.ShuffleOptions(q.ForStudent())
	return &CurrentQuestionResult{
		State:          StateQuestion,
		Question:       &view,
		QuestionNumber: number,
		Difficulty:     exam.Live.CurrentDifficulty,
		TimeRemaining:  timeRemaining(exam, now),
	}, nil
}

// SubmitSynchronizedAnswer records the user's single answer to the live
// question and folds it into the cohort stats.
func (s *SynchronizedService) SubmitSynchronizedAnswer(ctx context.Context, examID uuid.UUID, userID int, req *model.SubmitAnswerRequest) (*SynchronizedAnswerResult, error) {
	exam, err := s.loadExam(ctx, examID)
	if err != nil {
		return nil, err
	}
	sess, err := findSession(ctx, s.sessions, examID, userID)
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
	if exam.Live.StartedAt == nil {
		return nil, ErrSynchronizedNotStarted
	}
	res, err := s.gate(exam, sess, now)
	if err != nil {
		return nil, err
	}
	if res != nil || *exam.Live.CurrentQuestionID != req.QuestionID {
		return nil, ErrQuestionNotActive
	}
	if left := timeRemaining(exam, now); left != nil && *left == 0 {
		return nil, ErrQuestionNotActive
	}

	q, err := s.questions.GetByID(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrQuestionNotFound
		}
		return nil, fmt.Errorf("get question: %w", err)
	}

	band := exam.Live.CurrentDifficulty
	correct := matches(req.Answer, q.CorrectAnswer)
	result := &model.QuestionResult{
		ExamID:         examID,
		UserID:         userID,
		QuestionID:     q.ID,
		QuestionNumber: exam.Live.CurrentQuestionNumber,
		Answer:         req.Answer,
		IsCorrect:      correct,
		Difficulty:     adaptive.LevelOf(band),
		Synchronized:   true,
		AnsweredAt:     now,
	}

	stats, err := s.cohort.ApplyResponse(ctx, result, band, func(st model.CohortQuestionStats) (model.CohortQuestionStats, bool) {
		return adaptive.AddResponse(st, model.CohortResponse{
			UserID:     userID,
			Answer:     req.Answer,
			IsCorrect:  correct,
			AnsweredAt: now,
		}, exam.Adaptive.ThresholdPercent)
	})
	if err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			metrics.DuplicateAnswersTotal.WithLabelValues(metrics.ModeSynchronized).Inc()
			s.log.Debug().
				Str("exam_id", examID.String()).
				Int("user_id", userID).
				Int("question_number", result.QuestionNumber).
				Msg("Duplicate cohort answer rejected")
			return nil, ErrAlreadyAnswered
		}
		return nil, fmt.Errorf("apply response: %w", err)
	}
	metrics.ObserveAnswer(metrics.ModeSynchronized, correct)

	summary := summarize(*stats)
	s.monitor.Publish(ctx, MonitorEvent{
		Type:           EventCohortResponse,
		ExamID:         examID,
		UserID:         userID,
		QuestionNumber: summary.QuestionNumber,
		Difficulty:     band,
		Stats:          &summary,
		At:             now,
	})

	return &SynchronizedAnswerResult{IsCorrect: correct, CohortStats: summary}, nil
}
