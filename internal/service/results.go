package service

import (
	"time"

	"github.com/stemsi/exstem-adaptive/internal/adaptive"
	"github.com/stemsi/exstem-adaptive/internal/model"
)

// State is the outcome class of every polling read.
type State string

const (
	StateQuestion State = "question"
	StateWaiting  State = "waiting"
	StateComplete State = "complete"
)

// Reasons attached to waiting and complete outcomes.
const (
	ReasonNotStarted    = "not_started"
	ReasonPacing        = "pacing"
	ReasonAnalyzing     = "analyzing"
	ReasonInactive      = "question_inactive"
	ReasonAnswered      = "answered"
	ReasonTimeOver      = "time_over"
	ReasonExamEnded     = "exam_ended"
	ReasonAllAnswered   = "all_answered"
	ReasonPoolExhausted = "pool_exhausted"
	ReasonExamCompleted = "exam_completed"
)

// Progress summarizes a user's individual run.
type Progress struct {
	Answered int `json:"answered"`
	Correct  int `json:"correct"`
	Total    int `json:"total"`
}

// NextQuestionResult answers GetNextQuestion.
type NextQuestionResult struct {
	State          State                     `json:"state"`
	Question       *model.QuestionForStudent `json:"question,omitempty"`
	QuestionNumber int                       `json:"question_number,omitempty"`
	Difficulty     int                       `json:"difficulty,omitempty"`
	Band           model.Band                `json:"band,omitempty"`
	WaitSeconds    int                       `json:"wait_seconds,omitempty"`
	Reason         string                    `json:"reason,omitempty"`
	Message        string                    `json:"message,omitempty"`
	Progress       Progress                  `json:"progress"`
}

// IndividualAnswerResult answers SubmitIndividualAnswer.
type IndividualAnswerResult struct {
	IsCorrect      bool       `json:"is_correct"`
	CorrectAnswer  string     `json:"correct_answer"`
	Explanation    string     `json:"explanation,omitempty"`
	WaitSeconds    int        `json:"wait_seconds"`
	NewDifficulty  int        `json:"new_difficulty"`
	NewBand        model.Band `json:"new_band"`
	QuestionNumber int        `json:"question_number"`
	Progress       Progress   `json:"progress"`
}

// WaitStatus answers GetWaitStatus.
type WaitStatus struct {
	IsWaiting   bool     `json:"is_waiting"`
	WaitSeconds int      `json:"wait_seconds"`
	Difficulty  int      `json:"difficulty"`
	Progress    Progress `json:"progress"`
}

// CohortSummary is the public view of CohortQuestionStats.
type CohortSummary struct {
	QuestionNumber    int         `json:"question_number"`
	Difficulty        model.Band  `json:"difficulty"`
	TotalResponses    int         `json:"total_responses"`
	CorrectResponses  int         `json:"correct_responses"`
	CorrectPercentage float64     `json:"correct_percentage"`
	ThresholdMet      bool        `json:"threshold_met"`
	NextDifficulty    *model.Band `json:"next_difficulty,omitempty"`
}

func summarize(s model.CohortQuestionStats) CohortSummary {
	return CohortSummary{
		QuestionNumber:    s.QuestionNumber,
		Difficulty:        s.Difficulty,
		TotalResponses:    s.TotalResponses,
		CorrectResponses:  s.CorrectResponses,
		CorrectPercentage: s.CorrectPercentage,
		ThresholdMet:      s.ThresholdMet,
		NextDifficulty:    s.NextDifficulty,
	}
}

// CurrentQuestionResult answers GetCurrentSynchronizedQuestion.
type CurrentQuestionResult struct {
	State          State                     `json:"state"`
	Question       *model.QuestionForStudent `json:"question,omitempty"`
	QuestionNumber int                       `json:"question_number,omitempty"`
	Difficulty     model.Band                `json:"difficulty,omitempty"`
	TimeRemaining  *int                      `json:"time_remaining,omitempty"`
	WaitSeconds    int                       `json:"wait_seconds,omitempty"`
	HasAnswered    bool                      `json:"has_answered"`
	Reason         string                    `json:"reason,omitempty"`
}

// SynchronizedAnswerResult answers SubmitSynchronizedAnswer.
type SynchronizedAnswerResult struct {
	IsCorrect   bool          `json:"is_correct"`
	CohortStats CohortSummary `json:"cohort_stats"`
}

// AdvanceResult answers AdvanceSynchronizedExam and StartSynchronizedExam.
type AdvanceResult struct {
	ExamComplete   bool                      `json:"exam_complete"`
	NextQuestion   *model.QuestionForStudent `json:"next_question,omitempty"`
	QuestionNumber int                       `json:"question_number"`
	Difficulty     model.Band                `json:"difficulty"`
	Decision       adaptive.Decision         `json:"decision,omitempty"`
	Previous       *CohortSummary            `json:"previous,omitempty"`
}

// SessionView answers StartOrResumeSession.
type SessionView struct {
	Session       *model.ExamSession         `json:"session"`
	TimeRemaining int                        `json:"time_remaining"`
	Questions     []model.QuestionForStudent `json:"questions"`
	Resumed       bool                       `json:"resumed"`
}

// HeartbeatResult answers Heartbeat.
type HeartbeatResult struct {
	TimeRemaining int                `json:"time_remaining"`
	Violations    int                `json:"violations"`
	AutoSubmitted bool               `json:"auto_submitted"`
	Attempt       *model.ExamAttempt `json:"attempt,omitempty"`
}

// EntryCheck answers ValidateEntry.
type EntryCheck struct {
	Mode              model.ExamMode `json:"mode"`
	VerificationStart time.Time      `json:"verification_start"`
	Start             time.Time      `json:"start"`
	End               time.Time      `json:"end"`
	DurationMinutes   int            `json:"duration_minutes"`
	HasSession        bool           `json:"has_session"`
}
