package router

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-adaptive/internal/config"
	"github.com/stemsi/exstem-adaptive/internal/handler"
	"github.com/stemsi/exstem-adaptive/internal/metrics"
	"github.com/stemsi/exstem-adaptive/internal/middleware"
	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/response"
	"github.com/stemsi/exstem-adaptive/internal/service"
)

type tokenTable map[string]*service.Claims

func (t tokenTable) ValidateToken(token string) (*service.Claims, error) {
	if c, ok := t[token]; ok {
		return c, nil
	}
	return nil, service.ErrInvalidToken
}

type missingSessions struct{}

func (missingSessions) GetNextQuestion(context.Context, uuid.UUID, int) (*service.NextQuestionResult, error) {
	return nil, service.ErrSessionNotFound
}

func (missingSessions) SubmitIndividualAnswer(context.Context, uuid.UUID, int, *model.SubmitAnswerRequest) (*service.IndividualAnswerResult, error) {
	return nil, service.ErrSessionNotFound
}

func (missingSessions) GetWaitStatus(context.Context, uuid.UUID, int) (*service.WaitStatus, error) {
	return nil, service.ErrSessionNotFound
}

func newTestRouter(limiter *middleware.RateLimiter) *gin.Engine {
	metrics.Init()
	log := zerolog.Nop()
	tokens := tokenTable{
		"student": {UserID: 7, TokenType: service.TokenTypeStudent},
		"reader":  {UserID: 1, TokenType: service.TokenTypeAdmin, Permissions: []string{string(model.PermissionExamsRead)}},
	}
	handlers := &Handlers{
		Exam:         handler.NewExamHandler(nil, log),
		Session:      handler.NewSessionHandler(nil, log),
		Adaptive:     handler.NewAdaptiveHandler(missingSessions{}, log),
		Synchronized: handler.NewSynchronizedHandler(nil, log),
		Monitor:      handler.NewMonitorHandler(nil, nil, log),
		WS:           handler.NewWSHandler(nil, log, nil),
		System:       handler.NewSystemHandler(nil, nil, log),
	}
	return SetupRouter(tokens, handlers, limiter, &config.Config{GinMode: gin.TestMode})
}

func call(t *testing.T, r http.Handler, method, path, token string) (*httptest.ResponseRecorder, response.Response) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env response.Response
	if w.Header().Get("Content-Type") == "application/json; charset=utf-8" {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func TestRouter_Auth(t *testing.T) {
	r := newTestRouter(nil)
	examPath := "/api/v1/student/exams/" + uuid.NewString()

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		status int
		code   response.ErrCode
	}{
		{"student without token", http.MethodGet, examPath + "/adaptive/next-question", "", http.StatusUnauthorized, response.ErrTokenRequired},
		{"student with garbage token", http.MethodGet, examPath + "/adaptive/next-question", "nope", http.StatusUnauthorized, response.ErrTokenInvalid},
		{"admin token on student route", http.MethodGet, examPath + "/adaptive/next-question", "reader", http.StatusForbidden, response.ErrStudentAccessOnly},
		{"student token on admin route", http.MethodGet, "/api/v1/admin/exams/" + uuid.NewString(), "student", http.StatusForbidden, response.ErrAdminAccessOnly},
		{"reader cannot advance", http.MethodPost, "/api/v1/admin/exams/" + uuid.NewString() + "/synchronized/advance", "reader", http.StatusForbidden, response.ErrPermissionDenied},
		{"reader cannot watch monitor", http.MethodGet, "/api/v1/admin/exams/" + uuid.NewString() + "/monitor", "reader", http.StatusForbidden, response.ErrPermissionDenied},
		{"student reaches handler", http.MethodGet, examPath + "/adaptive/next-question", "student", http.StatusNotFound, response.ErrSessionNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, env := call(t, r, tt.method, tt.path, tt.token)
			assert.Equal(t, tt.status, w.Code)
			require.NotNil(t, env.Error)
			assert.Equal(t, tt.code, env.Error.Code)
		})
	}
}

func TestRouter_StudentResponsesAreNotCached(t *testing.T) {
	r := newTestRouter(nil)
	w, _ := call(t, r, http.MethodGet, "/api/v1/student/exams/"+uuid.NewString()+"/adaptive/wait-status", "student")
	assert.Equal(t, "no-store", w.Header().Get("Cache-Control"))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestRouter_PollingIsRateLimited(t *testing.T) {
	r := newTestRouter(middleware.NewRateLimiter(0.001, 1))
	path := "/api/v1/student/exams/" + uuid.NewString() + "/adaptive/wait-status"

	w, _ := call(t, r, http.MethodGet, path, "student")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w, env := call(t, r, http.MethodGet, path, "student")
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, response.ErrRateLimitExceeded, env.Error.Code)

	// Answer submission is never throttled.
	w, _ = call(t, r, http.MethodPost, "/api/v1/student/exams/"+uuid.NewString()+"/adaptive/submit-answer", "student")
	assert.NotEqual(t, http.StatusTooManyRequests, w.Code)
}

func TestRouter_Metrics(t *testing.T) {
	r := newTestRouter(nil)
	w, _ := call(t, r, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRouter_UnknownRoute(t *testing.T) {
	r := newTestRouter(nil)
	w, _ := call(t, r, http.MethodGet, "/api/v1/nowhere", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
