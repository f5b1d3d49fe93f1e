package model

import (
	"time"

	"github.com/google/uuid"
)

// ExamStatus enumerates the possible states of an exam.
type ExamStatus string

const (
	ExamStatusDraft     ExamStatus = "DRAFT"
	ExamStatusActive    ExamStatus = "ACTIVE"
	ExamStatusPaused    ExamStatus = "PAUSED"
	ExamStatusCompleted ExamStatus = "COMPLETED"
)

// ExamMode is fixed when the exam is created.
type ExamMode string

const (
	ExamModeStatic              ExamMode = "STATIC"
	ExamModeDynamicIndividual   ExamMode = "DYNAMIC_INDIVIDUAL"
	ExamModeDynamicSynchronized ExamMode = "DYNAMIC_SYNCHRONIZED"
)

// AdaptiveSettings tunes pacing and the cohort threshold.
type AdaptiveSettings struct {
	WaitTimeMin          int     `json:"wait_time_min"`
	WaitTimeMax          int     `json:"wait_time_max"`
	ThresholdPercent     float64 `json:"threshold_percent"`
	QuestionTimerSeconds int     `json:"question_timer_seconds"`
	AllowLateJoin        bool    `json:"allow_late_join"`
}

// ProctoringSettings controls violation handling.
type ProctoringSettings struct {
	TabSwitchLimit        int  `json:"tab_switch_limit"`
	AutoSubmitOnViolation bool `json:"auto_submit_on_violation"`
}

// LiveState is the cohort-wide pointer for synchronized exams.
// Only the start and advance operations write it.
type LiveState struct {
	StartedAt                *time.Time `json:"started_at,omitempty"`
	CurrentQuestionID        *uuid.UUID `json:"current_question_id,omitempty"`
	CurrentQuestionNumber    int        `json:"current_question_number"`
	CurrentDifficulty        Band       `json:"current_difficulty"`
	CurrentQuestionStartedAt *time.Time `json:"current_question_started_at,omitempty"`
	IsQuestionActive         bool       `json:"is_question_active"`
	IsInWaitPeriod           bool       `json:"is_in_wait_period"`
	WaitPeriodEndTime        *time.Time `json:"wait_period_end_time,omitempty"`
}

// Exam is the exam definition. Everything except Status and Live is
// treated as immutable once the exam has started.
type Exam struct {
	ID                         uuid.UUID          `json:"id"`
	Title                      string             `json:"title"`
	AuthorID                   int                `json:"author_id"`
	Mode                       ExamMode           `json:"mode"`
	Status                     ExamStatus         `json:"status"`
	StartTime                  time.Time          `json:"start_time"`
	EndTime                    time.Time          `json:"end_time"`
	DurationMinutes            int                `json:"duration_minutes"`
	VerificationLeadMinutes    int                `json:"verification_lead_minutes"`
	TotalQuestions             int                `json:"total_questions"`
	PassingScore               float64            `json:"passing_score"`
	Tags                       []string           `json:"tags"`
	Routing                    RoutingTable       `json:"routing"`
	Adaptive                   AdaptiveSettings   `json:"adaptive"`
	Proctoring                 ProctoringSettings `json:"proctoring"`
	RequireStudentVerification bool               `json:"require_student_verification"`
	Roster                     []string           `json:"roster,omitempty"`
	Live                       LiveState          `json:"live"`
	CreatedAt                  time.Time          `json:"created_at"`
	UpdatedAt                  time.Time          `json:"updated_at"`
}

// VerificationStart is the earliest moment a student may enter.
func (e *Exam) VerificationStart() time.Time {
	return e.StartTime.Add(-time.Duration(e.VerificationLeadMinutes) * time.Minute)
}

// IsDynamic reports whether sessions get a per-user frozen question set.
func (e *Exam) IsDynamic() bool {
	return e.Mode == ExamModeDynamicIndividual || e.Mode == ExamModeDynamicSynchronized
}

// InRoster reports whether the register number is on the exam roster.
func (e *Exam) InRoster(registerNumber string) bool {
	for _, r := range e.Roster {
		if r == registerNumber {
			return true
		}
	}
	return false
}

// CreateExamRequest is the payload for creating a new exam.
type CreateExamRequest struct {
	Title                      string              `json:"title" binding:"required,min=3,max=255"`
	Mode                       ExamMode            `json:"mode" binding:"required,oneof=STATIC DYNAMIC_INDIVIDUAL DYNAMIC_SYNCHRONIZED"`
	StartTime                  time.Time           `json:"start_time" binding:"required"`
	EndTime                    time.Time           `json:"end_time" binding:"required,gtfield=StartTime"`
	DurationMinutes            int                 `json:"duration_minutes" binding:"required,min=1,max=480"`
	VerificationLeadMinutes    *int                `json:"verification_lead_minutes" binding:"omitempty,min=0,max=240"`
	TotalQuestions             int                 `json:"total_questions" binding:"required,min=1,max=500"`
	PassingScore               *float64            `json:"passing_score" binding:"omitempty,min=0,max=100"`
	Tags                       []string            `json:"tags" binding:"omitempty,dive,min=1,max=64"`
	Routing                    RoutingTable        `json:"routing" binding:"omitempty"`
	Adaptive                   *AdaptiveSettings   `json:"adaptive" binding:"omitempty"`
	Proctoring                 *ProctoringSettings `json:"proctoring" binding:"omitempty"`
	RequireStudentVerification bool                `json:"require_student_verification"`
	Roster                     []string            `json:"roster" binding:"omitempty,dive,min=1,max=64"`
	QuestionIDs                []uuid.UUID         `json:"question_ids" binding:"omitempty"`
}

// UpdateExamStatusRequest is the payload for changing an exam's status.
type UpdateExamStatusRequest struct {
	Status ExamStatus `json:"status" binding:"required,oneof=DRAFT ACTIVE PAUSED COMPLETED"`
}
