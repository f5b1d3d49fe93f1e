package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strings"
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
)

// answerBufferGrace keeps buffered answers around after session expiry so
// a late submit can still read them.
const answerBufferGrace = time.Hour

// ExamSessionService is the exam lifecycle manager: entry checks, session
// start and resume, heartbeat, proctoring events and submission.
type ExamSessionService struct {
	exams     ExamStore
	sessions  SessionStore
	attempts  AttemptStore
	questions QuestionStore
	results   ResultLister
	provider  QuestionSetProvider
	rdb       *redis.Client
	monitor   *Broadcaster
	events    event.Publisher
	log       zerolog.Logger
	now       func() time.Time
}

// NewExamSessionService creates a new ExamSessionService.
func NewExamSessionService(
	exams ExamStore,
	sessions SessionStore,
	attempts AttemptStore,
	questions QuestionStore,
	results ResultLister,
	provider QuestionSetProvider,
	rdb *redis.Client,
	monitor *Broadcaster,
	events event.Publisher,
	log zerolog.Logger,
) *ExamSessionService {
	return &ExamSessionService{
		exams:     exams,
		sessions:  sessions,
		attempts:  attempts,
		questions: questions,
		results:   results,
		provider:  provider,
		rdb:       rdb,
		monitor:   monitor,
		events:    events,
		log:       log.With().Str("component", "exam_session_service").Logger(),
		now:       time.Now,
	}
}

// ─── Entry checks ───────────────────────────────────────────────────

// checkWindow enforces [verificationStart, end].
func checkWindow(exam *model.Exam, now time.Time) error {
	werr := &TimeWindowError{
		VerificationStart: exam.VerificationStart(),
		Start:             exam.StartTime,
		End:               exam.EndTime,
	}
	switch {
	case now.Before(werr.VerificationStart):
		werr.Reason = WindowNotOpen
		return werr
	case now.After(exam.EndTime):
		werr.Reason = WindowEnded
		return werr
	}
	return nil
}

func checkAvailable(exam *model.Exam) error {
	if exam.Status == model.ExamStatusDraft || exam.Status == model.ExamStatusPaused {
		return ErrExamNotAvailable
	}
	return nil
}

func checkRoster(exam *model.Exam, registerNumber string) error {
	if !exam.RequireStudentVerification {
		return nil
	}
	registerNumber = strings.TrimSpace(registerNumber)
	if registerNumber == "" || !exam.InRoster(registerNumber) {
		return ErrNotRegistered
	}
	return nil
}

// enter runs the checks shared by ValidateEntry and StartOrResumeSession.
func (s *ExamSessionService) enter(ctx context.Context, examID uuid.UUID, userID int, registerNumber string) (*model.Exam, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}
	if err := checkAvailable(exam); err != nil {
		return nil, err
	}
	if err := checkWindow(exam, s.now()); err != nil {
		return nil, err
	}

	done, err := s.attempts.Exists(ctx, examID, userID)
	if err != nil {
		return nil, fmt.Errorf("check attempt: %w", err)
	}
	if done {
		return nil, ErrAlreadyCompleted
	}

	if err := checkRoster(exam, registerNumber); err != nil {
		return nil, err
	}
	return exam, nil
}

// ValidateEntry runs every entry check without creating a session.
func (s *ExamSessionService) ValidateEntry(ctx context.Context, examID uuid.UUID, userID int, registerNumber string) (*EntryCheck, error) {
	exam, err := s.enter(ctx, examID, userID, registerNumber)
	if err != nil {
		return nil, err
	}

	_, err = s.sessions.GetByExamAndUser(ctx, examID, userID)
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return nil, fmt.Errorf("get session: %w", err)
	}

	return &EntryCheck{
		Mode:              exam.Mode,
		VerificationStart: exam.VerificationStart(),
		Start:             exam.StartTime,
		End:               exam.EndTime,
		DurationMinutes:   exam.DurationMinutes,
		HasSession:        err == nil,
	}, nil
}

// ─── Session ────────────────────────────────────────────────────────

// StartOrResumeSession creates the user's single session, or returns the
// existing one with buffered answers overlaid.
func (s *ExamSessionService) StartOrResumeSession(ctx context.Context, examID uuid.UUID, userID int, req *model.StartSessionRequest) (*SessionView, error) {
	exam, err := s.enter(ctx, examID, userID, req.RegisterNumber)
	if err != nil {
		return nil, err
	}

	now := s.now()
	resumed := true

	sess, err := s.sessions.GetByExamAndUser(ctx, examID, userID)
	if errors.Is(err, repository.ErrNotFound) {
		resumed = false
		sess = &model.ExamSession{
			ExamID:         examID,
			UserID:         userID,
			RegisterNumber: strings.TrimSpace(req.RegisterNumber),
			StartedAt:      now,
			ExpiryTime:     now.Add(time.Duration(exam.DurationMinutes) * time.Minute),
		}
		err = s.sessions.Create(ctx, sess)
		if errors.Is(err, repository.ErrDuplicate) {
			// Concurrent start from another device won; resume that one.
			resumed = true
			sess, err = s.sessions.GetByExamAndUser(ctx, examID, userID)
		}
	}
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}

	if exam.IsDynamic() && len(sess.QuestionIDs) == 0 {
		ids, err := s.provider.ProvideSet(ctx, exam, userID)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			s.log.Warn().Str("exam_id", examID.String()).Int("user_id", userID).Msg("Question set provider returned nothing")
			return nil, ErrPoolExhausted
		}
		if err := s.sessions.SetQuestionIDs(ctx, examID, userID, ids); err != nil {
			return nil, fmt.Errorf("store question set: %w", err)
		}
		sess.QuestionIDs = ids
		s.log.Info().Str("exam_id", examID.String()).Int("user_id", userID).Int("count", len(ids)).Msg("Question set assigned")
	}

	buffered, err := s.bufferedAnswers(ctx, examID, userID)
	if err != nil {
		return nil, err
	}
	if sess.Answers == nil {
		sess.Answers = map[string]string{}
	}
	for k, v := range buffered {
		sess.Answers[k] = v
	}

	ids := sess.QuestionIDs
	if !exam.IsDynamic() {
		if ids, err = s.exams.ListQuestionIDs(ctx, examID); err != nil {
			return nil, fmt.Errorf("list exam questions: %w", err)
		}
	}
	questions, err := s.studentQuestions(ctx, ids)
	if err != nil {
		return nil, err
	}

	return &SessionView{
		Session:       sess,
		TimeRemaining: adaptive.CeilSeconds(sess.TimeRemaining(now)),
		Questions:     questions,
		Resumed:       resumed,
	}, nil
}

// studentQuestions loads ids in order, without answer keys.
func (s *ExamSessionService) studentQuestions(ctx context.Context, ids []uuid.UUID) ([]model.QuestionForStudent, error) {
	out := []model.QuestionForStudent{}
	if len(ids) == 0 {
		return out, nil
	}

	qs, err := s.questions.GetByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	byID := make(map[uuid.UUID]*model.Question, len(qs))
	for i := range qs {
		byID[qs[i].ID] = &qs[i]
	}
	for _, id := range ids {
		if q, ok := byID[id]; ok {
			out = append(out, q.ForStudent())
		}
	}
	return out, nil
}

// findSession maps a missing row onto ErrSessionNotFound.
func findSession(ctx context.Context, sessions SessionStore, examID uuid.UUID, userID int) (*model.ExamSession, error) {
	sess, err := sessions.GetByExamAndUser(ctx, examID, userID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return sess, nil
}

// ─── Heartbeat / autosave ───────────────────────────────────────────

// Heartbeat buffers answers, counts a violation and refreshes the
// session. Reaching the violation limit submits the exam.
func (s *ExamSessionService) Heartbeat(ctx context.Context, examID uuid.UUID, userID int, req *model.HeartbeatRequest) (*HeartbeatResult, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}
	sess, err := findSession(ctx, s.sessions, examID, userID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	if len(req.Answers) > 0 && !sess.Expired(now) {
		if err := s.bufferAnswers(ctx, sess, req.Answers); err != nil {
			return nil, err
		}
	}

	violations, err := s.sessions.RecordHeartbeat(ctx, examID, userID, req.Violation, now)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("record heartbeat: %w", err)
	}

	result := &HeartbeatResult{
		TimeRemaining: adaptive.CeilSeconds(sess.TimeRemaining(now)),
		Violations:    violations,
	}

	if req.Violation {
		s.monitor.Publish(ctx, MonitorEvent{Type: EventViolation, ExamID: examID, UserID: userID, Violations: violations, At: now})
	}

	if violationLimitReached(exam, violations) && exam.Proctoring.AutoSubmitOnViolation {
		s.log.Warn().
			Str("exam_id", examID.String()).
			Int("user_id", userID).
			Int("violations", violations).
			Msg("Violation limit reached, auto-submitting")

		attempt, err := s.SubmitExam(ctx, examID, userID)
		if err != nil && !errors.Is(err, ErrAlreadyCompleted) {
			return nil, err
		}
		result.AutoSubmitted = true
		result.Attempt = attempt
		result.TimeRemaining = 0
	}

	return result, nil
}

func violationLimitReached(exam *model.Exam, violations int) bool {
	limit := exam.Proctoring.TabSwitchLimit
	return limit > 0 && violations >= limit
}

// bufferAnswers writes answers to the Redis hash read on submit and queues
// them for the autosave worker.
func (s *ExamSessionService) bufferAnswers(ctx context.Context, sess *model.ExamSession, answers map[string]string) error {
	key := config.CacheKey.StudentAnswersKey(sess.ExamID.String(), sess.UserID)

	payload, err := json.Marshal(model.AutosaveEntry{ExamID: sess.ExamID, UserID: sess.UserID, Answers: answers})
	if err != nil {
		return fmt.Errorf("encode autosave: %w", err)
	}

	ttl := sess.ExpiryTime.Sub(s.now()) + answerBufferGrace
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, key, answers)
	pipe.Expire(ctx, key, ttl)
	pipe.RPush(ctx, config.WorkerKey.PersistAnswersQueue, payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("buffer answers: %w", err)
	}
	return nil
}

func (s *ExamSessionService) bufferedAnswers(ctx context.Context, examID uuid.UUID, userID int) (map[string]string, error) {
	m, err := s.rdb.HGetAll(ctx, config.CacheKey.StudentAnswersKey(examID.String(), userID)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("read buffered answers: %w", err)
	}
	return m, nil
}

// ─── Proctoring log ─────────────────────────────────────────────────

// LogEvent queues a proctoring event for the proctoring worker.
func (s *ExamSessionService) LogEvent(ctx context.Context, examID uuid.UUID, userID int, req *model.LogEventRequest) error {
	details := json.RawMessage(`{}`)
	if len(req.Details) > 0 {
		raw, err := json.Marshal(req.Details)
		if err != nil {
			return fmt.Errorf("encode details: %w", err)
		}
		details = raw
	}

	payload, err := json.Marshal(model.ExamLog{
		ExamID:     examID,
		UserID:     userID,
		EventType:  req.EventType,
		Details:    details,
		RecordedAt: s.now(),
	})
	if err != nil {
		return fmt.Errorf("encode log: %w", err)
	}

	if err := s.rdb.RPush(ctx, config.WorkerKey.PersistExamLogsQueue, payload).Err(); err != nil {
		return fmt.Errorf("queue log: %w", err)
	}
	return nil
}

// ─── Submission ─────────────────────────────────────────────────────

// SubmitExam scores the session, stores the attempt and deletes the session.
func (s *ExamSessionService) SubmitExam(ctx context.Context, examID uuid.UUID, userID int) (*model.ExamAttempt, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}

	done, err := s.attempts.Exists(ctx, examID, userID)
	if err != nil {
		return nil, fmt.Errorf("check attempt: %w", err)
	}
	if done {
		return nil, ErrAlreadyCompleted
	}

	sess, err := findSession(ctx, s.sessions, examID, userID)
	if err != nil {
		return nil, err
	}

	answers := make(map[string]string, len(sess.Answers))
	for k, v := range sess.Answers {
		answers[k] = v
	}
	buffered, err := s.bufferedAnswers(ctx, examID, userID)
	if err != nil {
		return nil, err
	}
	for k, v := range buffered {
		answers[k] = v
	}

	correct, total, err := s.score(ctx, exam, sess, answers)
	if err != nil {
		return nil, err
	}

	now := s.now()
	attempt := &model.ExamAttempt{
		ExamID:         examID,
		UserID:         userID,
		CorrectAnswers: correct,
		TotalQuestions: total,
		Status:         model.AttemptStatusCompleted,
		Violations:     sess.Violations,
		Answers:        answers,
		StartedAt:      sess.StartedAt,
		SubmittedAt:    now,
	}
	if total > 0 {
		attempt.Score = math.Round(float64(correct)/float64(total)*10000) / 100
	}
	attempt.Passed = attempt.Score >= exam.PassingScore
	if violationLimitReached(exam, sess.Violations) {
		attempt.Status = model.AttemptStatusTerminated
	}

	if err := s.attempts.Create(ctx, attempt); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return nil, ErrAlreadyCompleted
		}
		return nil, fmt.Errorf("create attempt: %w", err)
	}

	if err := s.sessions.Delete(ctx, examID, userID); err != nil {
		s.log.Error().Err(err).Str("exam_id", examID.String()).Int("user_id", userID).Msg("Failed to delete submitted session")
	}
	if err := s.rdb.Del(ctx, config.CacheKey.StudentAnswersKey(examID.String(), userID)).Err(); err != nil {
		s.log.Warn().Err(err).Msg("Failed to clear answer buffer")
	}

	metrics.AttemptsTotal.WithLabelValues(string(attempt.Status)).Inc()

	score := attempt.Score
	s.monitor.Publish(ctx, MonitorEvent{Type: EventSubmitted, ExamID: examID, UserID: userID, Score: &score, Violations: attempt.Violations, At: now})

	err = s.events.Publish(ctx, event.KeyAttemptSubmitted, event.AttemptSubmitted{
		AttemptID:      attempt.ID,
		ExamID:         examID,
		UserID:         userID,
		Score:          attempt.Score,
		CorrectAnswers: attempt.CorrectAnswers,
		TotalQuestions: attempt.TotalQuestions,
		Passed:         attempt.Passed,
		Status:         string(attempt.Status),
		SubmittedAt:    now,
	})
	if err != nil {
		s.log.Error().Err(err).Str("exam_id", examID.String()).Int("user_id", userID).Msg("Failed to publish attempt event")
	}

	s.log.Info().
		Str("exam_id", examID.String()).
		Int("user_id", userID).
		Float64("score", attempt.Score).
		Str("status", string(attempt.Status)).
		Msg("Exam submitted")

	return attempt, nil
}

// score counts correct answers. Adaptive runs are scored from their
// accepted results against the exam length; otherwise the frozen set
// (dynamic) or the ordered list (static) is matched against answers.
func (s *ExamSessionService) score(ctx context.Context, exam *model.Exam, sess *model.ExamSession, answers map[string]string) (int, int, error) {
	if exam.IsDynamic() {
		results, err := s.results.ListResults(ctx, exam.ID, sess.UserID)
		if err != nil {
			return 0, 0, fmt.Errorf("list results: %w", err)
		}
		if len(results) > 0 {
			correct := 0
			for _, r := range results {
				if r.IsCorrect {
					correct++
				}
				answers[r.QuestionID.String()] = r.Answer
			}
			total := exam.TotalQuestions
			if total < len(results) {
				total = len(results)
			}
			return correct, total, nil
		}
	}

	ids := sess.QuestionIDs
	if !exam.IsDynamic() {
		var err error
		if ids, err = s.exams.ListQuestionIDs(ctx, exam.ID); err != nil {
			return 0, 0, fmt.Errorf("list exam questions: %w", err)
		}
	}
	if len(ids) == 0 {
		return 0, exam.TotalQuestions, nil
	}

	qs, err := s.questions.GetByIDs(ctx, ids)
	if err != nil {
		return 0, 0, fmt.Errorf("load questions: %w", err)
	}

	correct := 0
	for i := range qs {
		if matches(answers[qs[i].ID.String()], qs[i].CorrectAnswer) {
			correct++
		}
	}
	return correct, len(ids), nil
}

// matches is the exact-match rule shared by every scoring path.
// An empty answer is never correct.
func matches(given, key string) bool {
	return given != "" && given == key
}
