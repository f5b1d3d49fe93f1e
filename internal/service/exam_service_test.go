package service

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stemsi/exstem-adaptive/internal/adaptive"
	"github.com/stemsi/exstem-adaptive/internal/model"
)

func createRequest(mode model.ExamMode) *model.CreateExamRequest {
	return &model.CreateExamRequest{
		Title:           "Adaptive Physics",
		Mode:            mode,
		StartTime:       t0,
		EndTime:         t0.Add(2 * time.Hour),
		DurationMinutes: 90,
		TotalQuestions:  10,
	}
}

func TestExamService_CreateAppliesDefaults(t *testing.T) {
	env := newTestEnv(t)

	exam, err := env.admin.Create(context.Background(), 7, createRequest(model.ExamModeDynamicIndividual))
	require.NoError(t, err)

	assert.NotEqual(t, uuid.Nil, exam.ID)
	assert.Equal(t, model.ExamStatusDraft, exam.Status)
	assert.Equal(t, 7, exam.AuthorID)
	assert.Equal(t, 15, exam.VerificationLeadMinutes)
	assert.Equal(t, 60.0, exam.PassingScore)
	assert.Equal(t, 5, exam.Adaptive.WaitTimeMin)
	assert.Equal(t, 10, exam.Adaptive.WaitTimeMax)
	assert.Equal(t, adaptive.DefaultThresholdPercent, exam.Adaptive.ThresholdPercent)
	assert.Equal(t, 3, exam.Proctoring.TabSwitchLimit)
	assert.True(t, exam.Proctoring.AutoSubmitOnViolation)
	assert.Equal(t, adaptive.DefaultRoutingTable(), exam.Routing)
	assert.Equal(t, model.BandEasy, exam.Live.CurrentDifficulty)
	assert.Equal(t, 10, exam.TotalQuestions)

	stored, err := env.admin.GetByID(context.Background(), exam.ID)
	require.NoError(t, err)
	assert.Equal(t, exam.Title, stored.Title)
}

func TestExamService_CreateStatic(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	q1 := env.pool.add(2, "A")
	q2 := env.pool.add(5, "B")

	req := createRequest(model.ExamModeStatic)
	req.QuestionIDs = []uuid.UUID{q1.ID, q2.ID, q1.ID}

	exam, err := env.admin.Create(ctx, 1, req)
	require.NoError(t, err)
	assert.Equal(t, 2, exam.TotalQuestions)
	assert.Nil(t, exam.Routing)

	ids, err := env.exams.ListQuestionIDs(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, []uuid.UUID{q1.ID, q2.ID}, ids)
}

func TestExamService_CreateRejects(t *testing.T) {
	lead := 30
	tests := []struct {
		name   string
		mutate func(*model.CreateExamRequest)
		want   error
	}{
		{
			name:   "end before start",
			mutate: func(r *model.CreateExamRequest) { r.EndTime = r.StartTime.Add(-time.Minute) },
			want:   ErrInvalidExam,
		},
		{
			name: "wait bounds inverted",
			mutate: func(r *model.CreateExamRequest) {
				r.Adaptive = &model.AdaptiveSettings{WaitTimeMin: 20, WaitTimeMax: 10}
			},
			want: ErrInvalidExam,
		},
		{
			name: "threshold above 100",
			mutate: func(r *model.CreateExamRequest) {
				r.Adaptive = &model.AdaptiveSettings{ThresholdPercent: 120}
			},
			want: ErrInvalidExam,
		},
		{
			name: "unknown band in routing",
			mutate: func(r *model.CreateExamRequest) {
				r.Routing = model.RoutingTable{model.BandEasy: {OnCorrect: []model.Band{"legendary"}}}
			},
			want: ErrInvalidExam,
		},
		{
			name: "verification without roster",
			mutate: func(r *model.CreateExamRequest) {
				r.VerificationLeadMinutes = &lead
				r.RequireStudentVerification = true
			},
			want: ErrInvalidExam,
		},
		{
			name:   "static without questions",
			mutate: func(r *model.CreateExamRequest) { r.Mode = model.ExamModeStatic },
			want:   ErrInvalidExam,
		},
		{
			name:   "unknown question",
			mutate: func(r *model.CreateExamRequest) { r.QuestionIDs = []uuid.UUID{uuid.New()} },
			want:   ErrQuestionNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t)
			req := createRequest(model.ExamModeDynamicIndividual)
			tt.mutate(req)

			_, err := env.admin.Create(context.Background(), 1, req)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestExamService_UpdateStatus(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	exam := env.exam(model.ExamModeStatic, func(e *model.Exam) { e.Status = model.ExamStatusDraft })

	require.NoError(t, env.admin.UpdateStatus(ctx, exam.ID, model.ExamStatusActive))
	require.NoError(t, env.admin.UpdateStatus(ctx, exam.ID, model.ExamStatusCompleted))

	err := env.admin.UpdateStatus(ctx, exam.ID, model.ExamStatusActive)
	assert.ErrorIs(t, err, ErrInvalidExam)

	stored, err := env.admin.GetByID(ctx, exam.ID)
	require.NoError(t, err)
	assert.Equal(t, model.ExamStatusCompleted, stored.Status)

	assert.ErrorIs(t, env.admin.UpdateStatus(ctx, uuid.New(), model.ExamStatusActive), ErrExamNotFound)
}

func TestExamService_ListAttemptsEmpty(t *testing.T) {
	env := newTestEnv(t)
	exam := env.exam(model.ExamModeStatic)

	attempts, err := env.admin.ListAttempts(context.Background(), exam.ID)
	require.NoError(t, err)
	assert.NotNil(t, attempts)
	assert.Empty(t, attempts)
}
