//go:build e2e

// Package e2e drives a running server. Start it with the same JWT_SECRET
// and DATABASE_URL, then run: go test -tags e2e ./test/e2e/...
package e2e

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-adaptive/internal/config"
	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/service"
)

const defaultBaseURL = "http://localhost:8080"

var (
	baseURL      string
	adminToken   string
	studentToken string
	bandAnswers  = map[model.Band]string{}
)

func TestMain(m *testing.M) {
	_ = godotenv.Load("../../.env")
	cfg := config.Load()

	baseURL = os.Getenv("BASE_URL")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	if err := seedQuestions(cfg.DatabaseURL); err != nil {
		fmt.Printf("Setup failed: %v\n", err)
		os.Exit(1)
	}

	auth := service.NewAuthService(cfg)
	var err error
	adminToken, err = auth.GenerateToken(service.TokenTypeAdmin, 9001, []string{
		string(model.PermissionExamsRead),
		string(model.PermissionExamsWrite),
		string(model.PermissionExamsProctor),
	})
	if err != nil {
		fmt.Printf("mint admin token: %v\n", err)
		os.Exit(1)
	}
	studentToken, err = auth.GenerateToken(service.TokenTypeStudent, 9002, nil)
	if err != nil {
		fmt.Printf("mint student token: %v\n", err)
		os.Exit(1)
	}

	os.Exit(m.Run())
}

// seedQuestions inserts a tagged pool with one known answer per band.
func seedQuestions(dbURL string) error {
	ctx := context.Background()
	conn, err := pgx.Connect(ctx, dbURL)
	if err != nil {
		return fmt.Errorf("db connect: %w", err)
	}
	defer conn.Close(ctx)

	levels := map[model.Band][]int{
		model.BandEasy:   {1, 2, 3},
		model.BandMedium: {4, 5, 6},
		model.BandHard:   {7, 8, 9},
	}
	for band, lv := range levels {
		answer := "A"
		bandAnswers[band] = answer // every seeded key is A
		for _, d := range lv {
			_, err := conn.Exec(ctx,
				`INSERT INTO questions (content, options, correct_answer, difficulty, tags)
				 VALUES ($1, '["A","B","C","D"]', $2, $3, ARRAY['e2e'])`,
				fmt.Sprintf("e2e %s question level %d", band, d), answer, d)
			if err != nil {
				return fmt.Errorf("insert question: %w", err)
			}
		}
	}
	return nil
}

// ─── Helpers ────────────────────────────────────────────────────────

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code   string            `json:"code"`
		Fields map[string]string `json:"fields"`
	} `json:"error"`
}

func makeRequest(t *testing.T, method, path, token string, body any) (int, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, baseURL+path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	var env envelope
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&env))
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func createActiveExam(t *testing.T, mode model.ExamMode, total int) uuid.UUID {
	t.Helper()
	now := time.Now()
	lead := 30
	req := model.CreateExamRequest{
		Title:                   "E2E " + string(mode),
		Mode:                    mode,
		StartTime:               now.Add(-time.Minute),
		EndTime:                 now.Add(time.Hour),
		DurationMinutes:         30,
		VerificationLeadMinutes: &lead,
		TotalQuestions:          total,
		Tags:                    []string{"e2e"},
		Adaptive:                &model.AdaptiveSettings{WaitTimeMin: 0, WaitTimeMax: 0, ThresholdPercent: 50, AllowLateJoin: true},
	}

	code, env := makeRequest(t, http.MethodPost, "/api/v1/admin/exams", adminToken, req)
	require.Equal(t, http.StatusCreated, code, "create exam: %+v", env.Error)
	exam := decode[model.Exam](t, env)

	code, env = makeRequest(t, http.MethodPut, "/api/v1/admin/exams/"+exam.ID.String()+"/status", adminToken,
		model.UpdateExamStatusRequest{Status: model.ExamStatusActive})
	require.Equal(t, http.StatusOK, code, "activate exam: %+v", env.Error)
	return exam.ID
}

// ─── Flows ──────────────────────────────────────────────────────────

func TestIndividualAdaptiveFlow(t *testing.T) {
	examID := createActiveExam(t, model.ExamModeDynamicIndividual, 3)
	base := "/api/v1/student/exams/" + examID.String()

	code, env := makeRequest(t, http.MethodPost, base+"/session", studentToken, nil)
	require.Equal(t, http.StatusCreated, code, "start session: %+v", env.Error)

	for i := 0; i < 3; i++ {
		code, env = makeRequest(t, http.MethodGet, base+"/adaptive/next-question", studentToken, nil)
		require.Equal(t, http.StatusOK, code)
		next := decode[service.NextQuestionResult](t, env)
		require.Equal(t, service.StateQuestion, next.State)

		code, env = makeRequest(t, http.MethodPost, base+"/adaptive/submit-answer", studentToken,
			model.SubmitAnswerRequest{QuestionID: next.Question.ID, Answer: bandAnswers[next.Band]})
		require.Equal(t, http.StatusOK, code, "submit: %+v", env.Error)
		assert.True(t, decode[service.IndividualAnswerResult](t, env).IsCorrect)

		if i == 0 {
			code, env = makeRequest(t, http.MethodPost, base+"/adaptive/submit-answer", studentToken,
				model.SubmitAnswerRequest{QuestionID: next.Question.ID, Answer: bandAnswers[next.Band]})
			assert.Equal(t, http.StatusConflict, code)
			require.NotNil(t, env.Error)
			assert.Equal(t, "ALREADY_ANSWERED", env.Error.Code)

			code, env = makeRequest(t, http.MethodGet, base+"/adaptive/wait-status", studentToken, nil)
			require.Equal(t, http.StatusOK, code)
			assert.Equal(t, 1, decode[service.WaitStatus](t, env).Progress.Answered)
		}
	}

	code, env = makeRequest(t, http.MethodGet, base+"/adaptive/next-question", studentToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, service.StateComplete, decode[service.NextQuestionResult](t, env).State)

	code, env = makeRequest(t, http.MethodPost, base+"/submit", studentToken, nil)
	require.Equal(t, http.StatusOK, code, "submit exam: %+v", env.Error)
	submitted := decode[struct {
		Attempt model.ExamAttempt `json:"attempt"`
	}](t, env)
	assert.Equal(t, 3, submitted.Attempt.CorrectAnswers)
	assert.True(t, submitted.Attempt.Passed)
}

func TestSynchronizedFlow(t *testing.T) {
	examID := createActiveExam(t, model.ExamModeDynamicSynchronized, 2)
	student := "/api/v1/student/exams/" + examID.String()
	admin := "/api/v1/admin/exams/" + examID.String()

	code, env := makeRequest(t, http.MethodPost, student+"/session", studentToken, nil)
	require.Equal(t, http.StatusCreated, code, "join: %+v", env.Error)

	code, env = makeRequest(t, http.MethodGet, student+"/synchronized/current-question", studentToken, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, service.StateWaiting, decode[service.CurrentQuestionResult](t, env).State)

	code, env = makeRequest(t, http.MethodPost, admin+"/synchronized/start", adminToken, nil)
	require.Equal(t, http.StatusOK, code, "start: %+v", env.Error)

	code, env = makeRequest(t, http.MethodGet, student+"/synchronized/current-question", studentToken, nil)
	require.Equal(t, http.StatusOK, code)
	current := decode[service.CurrentQuestionResult](t, env)
	require.Equal(t, service.StateQuestion, current.State)

	code, env = makeRequest(t, http.MethodPost, student+"/synchronized/submit-answer", studentToken,
		model.SubmitAnswerRequest{QuestionID: current.Question.ID, Answer: bandAnswers[current.Difficulty]})
	require.Equal(t, http.StatusOK, code, "answer: %+v", env.Error)
	assert.True(t, decode[service.SynchronizedAnswerResult](t, env).IsCorrect)

	code, env = makeRequest(t, http.MethodPost, student+"/synchronized/submit-answer", studentToken,
		model.SubmitAnswerRequest{QuestionID: current.Question.ID, Answer: "A"})
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, env.Error)

	code, env = makeRequest(t, http.MethodPost, admin+"/synchronized/advance", adminToken, nil)
	require.Equal(t, http.StatusOK, code, "advance: %+v", env.Error)
	assert.Equal(t, 2, decode[service.AdvanceResult](t, env).QuestionNumber)
}

func TestEntryOutsideWindow(t *testing.T) {
	now := time.Now()
	req := model.CreateExamRequest{
		Title:           "E2E future",
		Mode:            model.ExamModeDynamicIndividual,
		StartTime:       now.Add(24 * time.Hour),
		EndTime:         now.Add(25 * time.Hour),
		DurationMinutes: 30,
		TotalQuestions:  1,
		Tags:            []string{"e2e"},
	}
	code, env := makeRequest(t, http.MethodPost, "/api/v1/admin/exams", adminToken, req)
	require.Equal(t, http.StatusCreated, code)
	exam := decode[model.Exam](t, env)

	code, _ = makeRequest(t, http.MethodPut, "/api/v1/admin/exams/"+exam.ID.String()+"/status", adminToken,
		model.UpdateExamStatusRequest{Status: model.ExamStatusActive})
	require.Equal(t, http.StatusOK, code)

	code, env = makeRequest(t, http.MethodPost, "/api/v1/student/exams/"+exam.ID.String()+"/validate", studentToken, nil)
	assert.Equal(t, http.StatusForbidden, code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "TIME_WINDOW_VIOLATION", env.Error.Code)
	assert.Equal(t, "not_open", env.Error.Fields["reason"])
}
