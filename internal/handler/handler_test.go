package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-adaptive/internal/middleware"
	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/response"
	"github.com/stemsi/exstem-adaptive/internal/service"
	"github.com/stemsi/exstem-adaptive/internal/validator"
)

func init() {
	gin.SetMode(gin.TestMode)
	validator.Setup()
}

// ─── Stubs ──────────────────────────────────────────────────────────

type stubTracker struct {
	next    *service.NextQuestionResult
	answer  *service.IndividualAnswerResult
	err     error
	gotUser int
	gotReq  *model.SubmitAnswerRequest
}

func (s *stubTracker) GetNextQuestion(_ context.Context, _ uuid.UUID, userID int) (*service.NextQuestionResult, error) {
	s.gotUser = userID
	return s.next, s.err
}

func (s *stubTracker) SubmitIndividualAnswer(_ context.Context, _ uuid.UUID, userID int, req *model.SubmitAnswerRequest) (*service.IndividualAnswerResult, error) {
	s.gotUser = userID
	s.gotReq = req
	return s.answer, s.err
}

func (s *stubTracker) GetWaitStatus(context.Context, uuid.UUID, int) (*service.WaitStatus, error) {
	return &service.WaitStatus{}, s.err
}

type stubCohort struct {
	force *model.Band
	err   error
}

func (s *stubCohort) StartSynchronizedExam(context.Context, uuid.UUID, int) (*service.AdvanceResult, error) {
	return &service.AdvanceResult{QuestionNumber: 1}, s.err
}

func (s *stubCohort) AdvanceSynchronizedExam(_ context.Context, _ uuid.UUID, _ int, force *model.Band) (*service.AdvanceResult, error) {
	s.force = force
	if s.err != nil {
		return nil, s.err
	}
	return &service.AdvanceResult{QuestionNumber: 2, Difficulty: model.BandMedium}, nil
}

func (s *stubCohort) SetWaitPeriod(context.Context, uuid.UUID, int) (*time.Time, error) {
	return nil, s.err
}

func (s *stubCohort) GetCurrentSynchronizedQuestion(context.Context, uuid.UUID, int) (*service.CurrentQuestionResult, error) {
	return &service.CurrentQuestionResult{State: service.StateWaiting}, s.err
}

func (s *stubCohort) SubmitSynchronizedAnswer(context.Context, uuid.UUID, int, *model.SubmitAnswerRequest) (*service.SynchronizedAnswerResult, error) {
	return nil, s.err
}

// ─── Helpers ────────────────────────────────────────────────────────

func withClaims(userID int, typ service.TokenType) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set(middleware.ContextKeyClaims, &service.Claims{UserID: userID, TokenType: typ})
		c.Next()
	}
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env response.Response
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func adaptiveRouter(tracker IndividualTracker) *gin.Engine {
	h := NewAdaptiveHandler(tracker, zerolog.Nop())
	r := gin.New()
	g := r.Group("/exams/:exam_id", withClaims(42, service.TokenTypeStudent))
	g.GET("/next", h.NextQuestion)
	g.POST("/answer", h.SubmitAnswer)
	return r
}

// ─── Tests ──────────────────────────────────────────────────────────

func TestAdaptiveHandler_NextQuestion(t *testing.T) {
	tracker := &stubTracker{next: &service.NextQuestionResult{State: service.StateWaiting, WaitSeconds: 4}}
	r := adaptiveRouter(tracker)

	w, env := do(t, r, http.MethodGet, "/exams/"+uuid.NewString()+"/next", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, env.Error)
	assert.Equal(t, 42, tracker.gotUser)

	data := env.Data.(map[string]any)
	assert.Equal(t, "waiting", data["state"])
	assert.Equal(t, float64(4), data["wait_seconds"])
}

func TestAdaptiveHandler_InvalidExamID(t *testing.T) {
	w, env := do(t, adaptiveRouter(&stubTracker{}), http.MethodGet, "/exams/not-a-uuid/next", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrInvalidID, env.Error.Code)
}

func TestAdaptiveHandler_SubmitValidation(t *testing.T) {
	tracker := &stubTracker{}
	w, env := do(t, adaptiveRouter(tracker), http.MethodPost, "/exams/"+uuid.NewString()+"/answer", gin.H{"answer": "A"})

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrValidation, env.Error.Code)
	assert.Contains(t, env.Error.Fields, "question_id")
	assert.Nil(t, tracker.gotReq)
}

func TestFailService_Mapping(t *testing.T) {
	start := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)
	tests := []struct {
		name   string
		err    error
		status int
		code   response.ErrCode
	}{
		{"already answered", service.ErrAlreadyAnswered, http.StatusConflict, response.ErrAlreadyAnswered},
		{"wrapped not found", errors.Join(errors.New("ctx"), service.ErrSessionNotFound), http.StatusNotFound, response.ErrSessionNotFound},
		{"wrong mode", service.ErrWrongExamMode, http.StatusBadRequest, response.ErrWrongExamMode},
		{"late join", service.ErrLateJoin, http.StatusForbidden, response.ErrLateJoin},
		{"time window", &service.TimeWindowError{
			Reason: service.WindowNotOpen, VerificationStart: start.Add(-15 * time.Minute), Start: start, End: start.Add(time.Hour),
		}, http.StatusForbidden, response.ErrTimeWindow},
		{"unknown", errors.New("boom"), http.StatusInternalServerError, response.ErrInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tracker := &stubTracker{err: tt.err}
			w, env := do(t, adaptiveRouter(tracker), http.MethodPost, "/exams/"+uuid.NewString()+"/answer",
				gin.H{"question_id": uuid.NewString(), "answer": "A"})

			assert.Equal(t, tt.status, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)

			if tt.code == response.ErrTimeWindow {
				assert.Equal(t, "not_open", env.Error.Fields["reason"])
				assert.Equal(t, "2026-03-02T07:45:00Z", env.Error.Fields["verification_start"])
				assert.Equal(t, "2026-03-02T08:00:00Z", env.Error.Fields["start_time"])
			}
		})
	}
}

func TestSynchronizedHandler_Advance(t *testing.T) {
	cohort := &stubCohort{}
	h := NewSynchronizedHandler(cohort, zerolog.Nop())
	r := gin.New()
	r.POST("/exams/:exam_id/advance", withClaims(1, service.TokenTypeAdmin), h.Advance)
	path := "/exams/" + uuid.NewString() + "/advance"

	w, _ := do(t, r, http.MethodPost, path, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Nil(t, cohort.force)

	w, _ = do(t, r, http.MethodPost, path, gin.H{"force_next_difficulty": "hard"})
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, cohort.force)
	assert.Equal(t, model.BandHard, *cohort.force)

	w, env := do(t, r, http.MethodPost, path, gin.H{"force_next_difficulty": "extreme"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, response.ErrValidation, env.Error.Code)

	cohort.err = service.ErrAdvanceInProgress
	w, env = do(t, r, http.MethodPost, path, nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, response.ErrAdvanceInProgress, env.Error.Code)
}

func TestRequireClaims(t *testing.T) {
	h := NewAdaptiveHandler(&stubTracker{}, zerolog.Nop())
	r := gin.New()
	r.GET("/exams/:exam_id/next", h.NextQuestion)

	w, env := do(t, r, http.MethodGet, "/exams/"+uuid.NewString()+"/next", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Equal(t, response.ErrTokenRequired, env.Error.Code)
}

type failingPinger struct{}

func (failingPinger) Ping(context.Context) error { return errors.New("connection refused") }

func TestSystemHandler_Health(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	mr.Lpush("persist_answers_queue", "x")

	r := gin.New()
	r.GET("/health", NewSystemHandler(nil, rdb, zerolog.Nop()).Health)
	w, env := do(t, r, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := env.Data.(map[string]any)
	assert.Equal(t, "ok", data["status"])
	assert.Equal(t, float64(1), data["queues"].(map[string]any)["answers"])

	r = gin.New()
	r.GET("/health", NewSystemHandler(failingPinger{}, rdb, zerolog.Nop()).Health)
	w, env = do(t, r, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "degraded", env.Data.(map[string]any)["status"])
}

type stubSnapshotter struct{ err error }

func (s stubSnapshotter) Snapshot(context.Context, uuid.UUID) (*service.MonitorSnapshot, error) {
	return nil, s.err
}

func TestMonitorHandler_UnknownExam(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	h := NewMonitorHandler(rdb, stubSnapshotter{err: service.ErrExamNotFound}, zerolog.Nop())
	r := gin.New()
	r.GET("/exams/:exam_id/monitor", h.MonitorExamSSE)

	w, env := do(t, r, http.MethodGet, "/exams/"+uuid.NewString()+"/monitor", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, response.ErrExamNotFound, env.Error.Code)
}
