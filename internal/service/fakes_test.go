package service

import (
	"context"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/adaptive"
	"github.com/stemsi/exstem-adaptive/internal/config"
	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/repository"
	"github.com/stemsi/exstem-adaptive/internal/selection"
)

// ─── Exams ──────────────────────────────────────────────────────────

type memExams struct {
	mu        sync.Mutex
	exams     map[uuid.UUID]model.Exam
	questions map[uuid.UUID][]uuid.UUID
}

func newMemExams() *memExams {
	return &memExams{exams: map[uuid.UUID]model.Exam{}, questions: map[uuid.UUID][]uuid.UUID{}}
}

func (m *memExams) put(e model.Exam) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exams[e.ID] = e
}

func (m *memExams) Create(_ context.Context, e *model.Exam, questionIDs []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	m.exams[e.ID] = *e
	m.questions[e.ID] = append([]uuid.UUID(nil), questionIDs...)
	return nil
}

func (m *memExams) GetByID(_ context.Context, id uuid.UUID) (*model.Exam, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &e, nil
}

func (m *memExams) UpdateStatus(_ context.Context, id uuid.UUID, status model.ExamStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Status = status
	m.exams[id] = e
	return nil
}

func (m *memExams) ListQuestionIDs(_ context.Context, examID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]uuid.UUID(nil), m.questions[examID]...), nil
}

func (m *memExams) UpdateLive(_ context.Context, id uuid.UUID, expected int, live model.LiveState, status model.ExamStatus) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok || e.Live.CurrentQuestionNumber != expected {
		return false, nil
	}
	e.Live = live
	e.Status = status
	m.exams[id] = e
	return true, nil
}

func (m *memExams) SetWaitPeriod(_ context.Context, id uuid.UUID, until *time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.exams[id]
	if !ok {
		return repository.ErrNotFound
	}
	e.Live.IsInWaitPeriod = until != nil
	e.Live.WaitPeriodEndTime = until
	m.exams[id] = e
	return nil
}

// ─── Sessions ───────────────────────────────────────────────────────

type userKey struct {
	exam uuid.UUID
	user int
}

type memSessions struct {
	mu       sync.Mutex
	sessions map[userKey]model.ExamSession
}

func newMemSessions() *memSessions {
	return &memSessions{sessions: map[userKey]model.ExamSession{}}
}

func copySession(s model.ExamSession) *model.ExamSession {
	answers := make(map[string]string, len(s.Answers))
	for k, v := range s.Answers {
		answers[k] = v
	}
	s.Answers = answers
	s.QuestionIDs = append([]uuid.UUID(nil), s.QuestionIDs...)
	return &s
}

func (m *memSessions) GetByExamAndUser(_ context.Context, examID uuid.UUID, userID int) (*model.ExamSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[userKey{examID, userID}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return copySession(s), nil
}

func (m *memSessions) Create(_ context.Context, s *model.ExamSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := userKey{s.ExamID, s.UserID}
	if _, ok := m.sessions[k]; ok {
		return repository.ErrDuplicate
	}
	s.ID = uuid.New()
	if s.Answers == nil {
		s.Answers = map[string]string{}
	}
	s.LastHeartbeat = s.StartedAt
	m.sessions[k] = *copySession(*s)
	return nil
}

func (m *memSessions) SetQuestionIDs(_ context.Context, examID uuid.UUID, userID int, ids []uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := userKey{examID, userID}
	s := m.sessions[k]
	s.QuestionIDs = append([]uuid.UUID(nil), ids...)
	m.sessions[k] = s
	return nil
}

func (m *memSessions) MergeAnswers(_ context.Context, examID uuid.UUID, userID int, answers map[string]string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := userKey{examID, userID}
	s, ok := m.sessions[k]
	if !ok {
		return nil
	}
	for q, a := range answers {
		s.Answers[q] = a
	}
	m.sessions[k] = s
	return nil
}

func (m *memSessions) RecordHeartbeat(_ context.Context, examID uuid.UUID, userID int, violation bool, at time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := userKey{examID, userID}
	s, ok := m.sessions[k]
	if !ok {
		return 0, repository.ErrNotFound
	}
	if violation {
		s.Violations++
	}
	s.LastHeartbeat = at
	m.sessions[k] = s
	return s.Violations, nil
}

func (m *memSessions) Delete(_ context.Context, examID uuid.UUID, userID int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, userKey{examID, userID})
	return nil
}

// ─── Attempts ───────────────────────────────────────────────────────

type memAttempts struct {
	mu       sync.Mutex
	attempts map[userKey]model.ExamAttempt
}

func newMemAttempts() *memAttempts {
	return &memAttempts{attempts: map[userKey]model.ExamAttempt{}}
}

func (m *memAttempts) Create(_ context.Context, a *model.ExamAttempt) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := userKey{a.ExamID, a.UserID}
	if _, ok := m.attempts[k]; ok {
		return repository.ErrDuplicate
	}
	a.ID = uuid.New()
	m.attempts[k] = *a
	return nil
}

func (m *memAttempts) Exists(_ context.Context, examID uuid.UUID, userID int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.attempts[userKey{examID, userID}]
	return ok, nil
}

func (m *memAttempts) ListByExam(_ context.Context, examID uuid.UUID) ([]model.ExamAttempt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.ExamAttempt
	for k, a := range m.attempts {
		if k.exam == examID {
			out = append(out, a)
		}
	}
	return out, nil
}

// ─── Adaptive state, results and cohort stats ───────────────────────

type numberKey struct {
	exam   uuid.UUID
	number int
}

// memAdaptive serializes every call, standing in for row locks and
// unique indexes.
type memAdaptive struct {
	mu      sync.Mutex
	states  map[userKey]model.IndividualDifficultyState
	results []model.QuestionResult
	stats   map[numberKey]model.CohortQuestionStats
}

func newMemAdaptive() *memAdaptive {
	return &memAdaptive{
		states: map[userKey]model.IndividualDifficultyState{},
		stats:  map[numberKey]model.CohortQuestionStats{},
	}
}

func (m *memAdaptive) GetOrCreate(_ context.Context, examID uuid.UUID, userID, initialLevel int) (*model.IndividualDifficultyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := userKey{examID, userID}
	st, ok := m.states[k]
	if !ok {
		st = model.IndividualDifficultyState{ExamID: examID, UserID: userID, CurrentDifficulty: initialLevel}
		m.states[k] = st
	}
	return &st, nil
}

func (m *memAdaptive) ApplyAnswer(
	_ context.Context,
	result *model.QuestionResult,
	limit int,
	transition func(model.IndividualDifficultyState) model.IndividualDifficultyState,
) (*model.IndividualDifficultyState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := userKey{result.ExamID, result.UserID}
	st, ok := m.states[k]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if limit > 0 && st.QuestionsAnswered >= limit {
		return nil, repository.ErrLimitReached
	}
	for _, r := range m.results {
		if !r.Synchronized && r.ExamID == result.ExamID && r.UserID == result.UserID && r.QuestionID == result.QuestionID {
			return nil, repository.ErrDuplicate
		}
	}

	result.ID = uuid.New()
	result.QuestionNumber = st.QuestionsAnswered + 1
	result.Difficulty = st.CurrentDifficulty
	m.results = append(m.results, *result)

	next := transition(st)
	m.states[k] = next
	return &next, nil
}

func (m *memAdaptive) AnsweredQuestionIDs(_ context.Context, examID uuid.UUID, userID int) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, r := range m.results {
		if !r.Synchronized && r.ExamID == examID && r.UserID == userID {
			ids = append(ids, r.QuestionID)
		}
	}
	return ids, nil
}

func (m *memAdaptive) ListResults(_ context.Context, examID uuid.UUID, userID int) ([]model.QuestionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.QuestionResult
	for _, r := range m.results {
		if r.ExamID == examID && r.UserID == userID {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].QuestionNumber < out[j].QuestionNumber })
	return out, nil
}

func (m *memAdaptive) ApplyResponse(
	_ context.Context,
	result *model.QuestionResult,
	band model.Band,
	apply func(model.CohortQuestionStats) (model.CohortQuestionStats, bool),
) (*model.CohortQuestionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.results {
		if r.Synchronized && r.ExamID == result.ExamID && r.UserID == result.UserID && r.QuestionNumber == result.QuestionNumber {
			return nil, repository.ErrDuplicate
		}
	}

	k := numberKey{result.ExamID, result.QuestionNumber}
	st, ok := m.stats[k]
	if !ok {
		st = model.CohortQuestionStats{
			ExamID:         result.ExamID,
			QuestionNumber: result.QuestionNumber,
			QuestionID:     result.QuestionID,
			Difficulty:     band,
		}
	}

	next, accepted := apply(st)
	if !accepted {
		return nil, repository.ErrDuplicate
	}

	result.ID = uuid.New()
	m.results = append(m.results, *result)
	m.stats[k] = next
	return &next, nil
}

func (m *memAdaptive) GetStats(_ context.Context, examID uuid.UUID, number int) (*model.CohortQuestionStats, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	st, ok := m.stats[numberKey{examID, number}]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &st, nil
}

func (m *memAdaptive) RecordDecision(_ context.Context, s *model.CohortQuestionStats) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := numberKey{s.ExamID, s.QuestionNumber}
	st, ok := m.stats[k]
	if !ok {
		st = model.CohortQuestionStats{ExamID: s.ExamID, QuestionNumber: s.QuestionNumber, QuestionID: s.QuestionID, Difficulty: s.Difficulty}
	}
	st.NextDifficulty = s.NextDifficulty
	if s.AdminOverride != nil {
		st.AdminOverride = s.AdminOverride
	}
	m.stats[k] = st
	return nil
}

func (m *memAdaptive) HasAnswered(_ context.Context, examID uuid.UUID, userID, number int) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.results {
		if r.Synchronized && r.ExamID == examID && r.UserID == userID && r.QuestionNumber == number {
			return true, nil
		}
	}
	return false, nil
}

func (m *memAdaptive) UsedQuestionIDs(_ context.Context, examID uuid.UUID) ([]uuid.UUID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var ids []uuid.UUID
	for _, r := range m.results {
		if r.Synchronized && r.ExamID == examID {
			ids = append(ids, r.QuestionID)
		}
	}
	for k, st := range m.stats {
		if k.exam == examID {
			ids = append(ids, st.QuestionID)
		}
	}
	return ids, nil
}

// ─── Question pool ──────────────────────────────────────────────────

type memPool struct {
	mu        sync.Mutex
	questions []model.Question
}

func (p *memPool) add(difficulty int, correct string, tags ...string) model.Question {
	p.mu.Lock()
	defer p.mu.Unlock()
	q := model.Question{
		ID:            uuid.New(),
		Content:       "question",
		Options:       []string{"A", "B", "C", "D"},
		CorrectAnswer: correct,
		Explanation:   "because",
		Difficulty:    difficulty,
		Tags:          tags,
	}
	p.questions = append(p.questions, q)
	return q
}

func (p *memPool) match(f selection.Filter) []model.Question {
	skip := map[uuid.UUID]bool{}
	for _, id := range f.ExcludeIDs {
		skip[id] = true
	}

	var out []model.Question
	for _, q := range p.questions {
		if skip[q.ID] {
			continue
		}
		if f.MinDifficulty > 0 && q.Difficulty < f.MinDifficulty {
			continue
		}
		if f.MaxDifficulty > 0 && q.Difficulty > f.MaxDifficulty {
			continue
		}
		if len(f.Tags) > 0 && !overlaps(q.Tags, f.Tags) {
			continue
		}
		out = append(out, q)
	}
	return out
}

func overlaps(a, b []string) bool {
	for _, x := range a {
		for _, y := range b {
			if x == y {
				return true
			}
		}
	}
	return false
}

func (p *memPool) Query(_ context.Context, f selection.Filter, limit int) ([]model.Question, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.match(f)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (p *memPool) Sample(ctx context.Context, f selection.Filter, n int) ([]model.Question, error) {
	return p.Query(ctx, f, n)
}

func (p *memPool) GetByID(_ context.Context, id uuid.UUID) (*model.Question, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, q := range p.questions {
		if q.ID == id {
			q := q
			return &q, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (p *memPool) GetByIDs(_ context.Context, ids []uuid.UUID) ([]model.Question, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	want := map[uuid.UUID]bool{}
	for _, id := range ids {
		want[id] = true
	}
	var out []model.Question
	for _, q := range p.questions {
		if want[q.ID] {
			out = append(out, q)
		}
	}
	return out, nil
}

// ─── Event bus ──────────────────────────────────────────────────────

type recordingPublisher struct {
	mu   sync.Mutex
	keys []string
}

func (p *recordingPublisher) Publish(_ context.Context, key string, _ any) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.keys = append(p.keys, key)
	return nil
}

func (p *recordingPublisher) published() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.keys...)
}

// ─── Harness ────────────────────────────────────────────────────────

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// t0 is the scheduled start of every test exam.
var t0 = time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

type testEnv struct {
	exams    *memExams
	sessions *memSessions
	attempts *memAttempts
	store    *memAdaptive
	pool     *memPool
	mr       *miniredis.Miniredis
	rdb      *redis.Client
	pub      *recordingPublisher
	clock    *fakeClock
	cfg      *config.Config

	admin      *ExamService
	lifecycle  *ExamSessionService
	individual *IndividualService
	cohort     *SynchronizedService
	monitor    *MonitorService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	env := &testEnv{
		exams:    newMemExams(),
		sessions: newMemSessions(),
		attempts: newMemAttempts(),
		store:    newMemAdaptive(),
		pool:     &memPool{},
		mr:       mr,
		rdb:      rdb,
		pub:      &recordingPublisher{},
		clock:    &fakeClock{now: t0},
		cfg: &config.Config{
			AdvanceLockTTL:             10 * time.Second,
			DefaultVerificationMinutes: 15,
			DefaultWaitMinSeconds:      5,
			DefaultWaitMaxSeconds:      10,
		},
	}

	log := zerolog.Nop()
	rnd := adaptive.NewSource(42)
	selector := selection.NewSelector(env.pool, rnd, log)
	broadcaster := NewBroadcaster(rdb, log)

	env.admin = NewExamService(env.exams, env.pool, env.attempts, env.cfg, log)
	env.lifecycle = NewExamSessionService(env.exams, env.sessions, env.attempts, env.pool, env.store,
		NewPoolSetProvider(selector), rdb, broadcaster, env.pub, log)
	env.individual = NewIndividualService(env.exams, env.sessions, env.store, env.pool, selector, rnd, log)
	env.cohort = NewSynchronizedService(env.exams, env.sessions, env.store, env.pool, selector, rdb, broadcaster, env.pub, env.cfg, log)
	env.monitor = NewMonitorService(env.exams, env.store, env.attempts)

	env.lifecycle.now = env.clock.Now
	env.individual.now = env.clock.Now
	env.cohort.now = env.clock.Now

	return env
}

// exam stores an ACTIVE exam starting at t0 and returns it.
func (e *testEnv) exam(mode model.ExamMode, mutate ...func(*model.Exam)) model.Exam {
	ex := model.Exam{
		ID:                      uuid.New(),
		Title:                   "Adaptive Physics",
		Mode:                    mode,
		Status:                  model.ExamStatusActive,
		StartTime:               t0,
		EndTime:                 t0.Add(2 * time.Hour),
		DurationMinutes:         90,
		VerificationLeadMinutes: 15,
		TotalQuestions:          5,
		PassingScore:            60,
		Routing:                 adaptive.DefaultRoutingTable(),
		Adaptive:                model.AdaptiveSettings{WaitTimeMin: 5, WaitTimeMax: 5, ThresholdPercent: 60},
		Proctoring:              model.ProctoringSettings{TabSwitchLimit: 3, AutoSubmitOnViolation: true},
		Live:                    model.LiveState{CurrentDifficulty: model.BandEasy},
	}
	for _, m := range mutate {
		m(&ex)
	}
	e.exams.put(ex)
	return ex
}

// join starts a session for userID at the current clock.
func (e *testEnv) join(t *testing.T, examID uuid.UUID, userID int) *SessionView {
	t.Helper()
	view, err := e.lifecycle.StartOrResumeSession(context.Background(), examID, userID, &model.StartSessionRequest{})
	if err != nil {
		t.Fatalf("start session for user %d: %v", userID, err)
	}
	return view
}
