package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/response"
	"github.com/stemsi/exstem-adaptive/internal/validator"
)

// SynchronizedHandler serves synchronized cohort exams to students and
// the proctor driving them.
type SynchronizedHandler struct {
	cohort CohortAggregator
	log    zerolog.Logger
}

// NewSynchronizedHandler creates a new SynchronizedHandler.
func NewSynchronizedHandler(cohort CohortAggregator, log zerolog.Logger) *SynchronizedHandler {
	return &SynchronizedHandler{
		cohort: cohort,
		log:    log.With().Str("component", "synchronized_handler").Logger(),
	}
}

// ─── Student ────────────────────────────────────────────────────────

// CurrentQuestion godoc
// GET /api/v1/student/exams/:exam_id/synchronized/current-question
func (h *SynchronizedHandler) CurrentQuestion(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	res, err := h.cohort.GetCurrentSynchronizedQuestion(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// SubmitAnswer godoc
// POST /api/v1/student/exams/:exam_id/synchronized/submit-answer
func (h *SynchronizedHandler) SubmitAnswer(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.SubmitAnswerRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.cohort.SubmitSynchronizedAnswer(c.Request.Context(), examID, claims.UserID, &req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// ─── Admin ──────────────────────────────────────────────────────────

// Start godoc
// POST /api/v1/admin/exams/:exam_id/synchronized/start
func (h *SynchronizedHandler) Start(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	res, err := h.cohort.StartSynchronizedExam(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// Advance godoc
// POST /api/v1/admin/exams/:exam_id/synchronized/advance
// Optional body: {"force_next_difficulty": "easy|medium|hard"}.
func (h *SynchronizedHandler) Advance(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.AdvanceRequest
	if fields := validator.BindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	res, err := h.cohort.AdvanceSynchronizedExam(c.Request.Context(), examID, claims.UserID, req.ForceNextDifficulty)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// WaitPeriod godoc
// POST /api/v1/admin/exams/:exam_id/synchronized/wait
func (h *SynchronizedHandler) WaitPeriod(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.WaitPeriodRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	until, err := h.cohort.SetWaitPeriod(c.Request.Context(), examID, req.Seconds)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"wait_period_end_time": until})
}
