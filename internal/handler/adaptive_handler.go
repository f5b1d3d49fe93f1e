package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/response"
	"github.com/stemsi/exstem-adaptive/internal/validator"
)

// AdaptiveHandler serves individual-adaptive exams.
type AdaptiveHandler struct {
	tracker IndividualTracker
	log     zerolog.Logger
}

// NewAdaptiveHandler creates a new AdaptiveHandler.
func NewAdaptiveHandler(tracker IndividualTracker, log zerolog.Logger) *AdaptiveHandler {
	return &AdaptiveHandler{
		tracker: tracker,
		log:     log.With().Str("component", "adaptive_handler").Logger(),
	}
}

// NextQuestion godoc
// GET /api/v1/student/exams/:exam_id/adaptive/next-question
// Returns a question, a waiting state, or completion.
func (h *AdaptiveHandler) NextQuestion(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	res, err := h.tracker.GetNextQuestion(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// SubmitAnswer godoc
// POST /api/v1/student/exams/:exam_id/adaptive/submit-answer
func (h *AdaptiveHandler) SubmitAnswer(c *gin.Context) {
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

	res, err := h.tracker.SubmitIndividualAnswer(c.Request.Context(), examID, claims.UserID, &req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// WaitStatus godoc
// GET /api/v1/student/exams/:exam_id/adaptive/wait-status
func (h *AdaptiveHandler) WaitStatus(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	res, err := h.tracker.GetWaitStatus(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}
