package service

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"

	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/repository"
)

// MonitorService builds the snapshot an admin sees when attaching to the
// live monitor.
type MonitorService struct {
	exams    ExamStore
	cohort   CohortStore
	attempts AttemptStore
}

// NewMonitorService creates a new MonitorService.
func NewMonitorService(exams ExamStore, cohort CohortStore, attempts AttemptStore) *MonitorService {
	return &MonitorService{exams: exams, cohort: cohort, attempts: attempts}
}

// MonitorSnapshot is the initial monitor state.
type MonitorSnapshot struct {
	Type      string           `json:"type"`
	ExamID    uuid.UUID        `json:"exam_id"`
	Mode      model.ExamMode   `json:"mode"`
	Status    model.ExamStatus `json:"status"`
	Live      model.LiveState  `json:"live"`
	Current   *CohortSummary   `json:"current,omitempty"`
	Submitted int              `json:"submitted"`
}

// Snapshot loads live stats and the submission count concurrently.
// The submission count is best effort.
func (s *MonitorService) Snapshot(ctx context.Context, examID uuid.UUID) (*MonitorSnapshot, error) {
	exam, err := loadExam(ctx, s.exams, examID)
	if err != nil {
		return nil, err
	}

	snap := &MonitorSnapshot{
		Type:   "snapshot",
		ExamID: exam.ID,
		Mode:   exam.Mode,
		Status: exam.Status,
		Live:   exam.Live,
	}

	var (
		stats      *model.CohortQuestionStats
		attempts   []model.ExamAttempt
		statsErr   error
		attemptErr error
		wg         sync.WaitGroup
	)

	if exam.Mode == model.ExamModeDynamicSynchronized && exam.Live.CurrentQuestionNumber > 0 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			stats, statsErr = s.cohort.GetStats(ctx, examID, exam.Live.CurrentQuestionNumber)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		attempts, attemptErr = s.attempts.ListByExam(ctx, examID)
	}()

	wg.Wait()

	if statsErr != nil && !errors.Is(statsErr, repository.ErrNotFound) {
		return nil, statsErr
	}
	if stats != nil {
		summary := summarize(*stats)
		snap.Current = &summary
	}
	if attemptErr == nil {
		snap.Submitted = len(attempts)
	}

	return snap, nil
}
