package service

import (
	"errors"
	"fmt"
	"time"
)

// Domain errors. Handlers map them onto response codes.
var (
	ErrExamNotFound               = errors.New("exam not found")
	ErrExamNotAvailable           = errors.New("exam is not open for students")
	ErrInvalidExam                = errors.New("invalid exam definition")
	ErrSessionNotFound            = errors.New("exam session not found")
	ErrAlreadyCompleted           = errors.New("exam already completed by this user")
	ErrAlreadyAnswered            = errors.New("question already answered")
	ErrWrongExamMode              = errors.New("operation not supported for this exam mode")
	ErrQuestionNotFound           = errors.New("question not found")
	ErrQuestionNotActive          = errors.New("question is not the active cohort question")
	ErrNotRegistered              = errors.New("register number not on the exam roster")
	ErrSynchronizedAlreadyStarted = errors.New("synchronized exam already started")
	ErrSynchronizedNotStarted     = errors.New("synchronized exam not started")
	ErrLateJoin                   = errors.New("late join is not allowed for this exam")
	ErrAdvanceConflict            = errors.New("cohort already moved past this question")
	ErrAdvanceInProgress          = errors.New("another advance is in progress")
	ErrPoolExhausted              = errors.New("question pool has no questions for this exam")
	ErrTimeWindowViolation        = errors.New("outside the exam time window")
)

// Time window reasons.
const (
	WindowNotOpen = "not_open"
	WindowEnded   = "ended"
	WindowClosed  = "closed"
)

// TimeWindowError carries the boundaries the caller violated.
type TimeWindowError struct {
	Reason            string
	VerificationStart time.Time
	Start             time.Time
	End               time.Time
}

func (e *TimeWindowError) Error() string {
	switch e.Reason {
	case WindowNotOpen:
		return fmt.Sprintf("exam opens at %s", e.VerificationStart.Format(time.RFC3339))
	default:
		return fmt.Sprintf("exam ended at %s", e.End.Format(time.RFC3339))
	}
}

func (e *TimeWindowError) Unwrap() error {
	return ErrTimeWindowViolation
}
