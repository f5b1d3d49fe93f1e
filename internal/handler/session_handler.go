package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/response"
	"github.com/stemsi/exstem-adaptive/internal/validator"
)

// SessionHandler handles the student side of the exam lifecycle.
type SessionHandler struct {
	lifecycle ExamLifecycle
	log       zerolog.Logger
}

// NewSessionHandler creates a new SessionHandler.
func NewSessionHandler(lifecycle ExamLifecycle, log zerolog.Logger) *SessionHandler {
	return &SessionHandler{
		lifecycle: lifecycle,
		log:       log.With().Str("component", "session_handler").Logger(),
	}
}

// ValidateEntry godoc
// POST /api/v1/student/exams/:exam_id/validate
// Runs the entry checks without creating a session.
func (h *SessionHandler) ValidateEntry(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.StartSessionRequest
	if fields := validator.BindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	check, err := h.lifecycle.ValidateEntry(c.Request.Context(), examID, claims.UserID, req.RegisterNumber)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, check)
}

// StartSession godoc
// POST /api/v1/student/exams/:exam_id/session
// Starts a session or resumes the existing one (idempotent).
func (h *SessionHandler) StartSession(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.StartSessionRequest
	if fields := validator.BindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	view, err := h.lifecycle.StartOrResumeSession(c.Request.Context(), examID, claims.UserID, &req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	status := http.StatusCreated
	if view.Resumed {
		status = http.StatusOK
	}
	response.Success(c, status, view)
}

// Heartbeat godoc
// PUT /api/v1/student/exams/:exam_id/session
// Autosaves answers and reports violations.
func (h *SessionHandler) Heartbeat(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.HeartbeatRequest
	if fields := validator.BindOptional(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}
	if !validAnswerKeys(req.Answers) {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, map[string]string{
			"answers": "answers must be keyed by question id",
		})
		return
	}

	res, err := h.lifecycle.Heartbeat(c.Request.Context(), examID, claims.UserID, &req)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, res)
}

// LogEvent godoc
// POST /api/v1/student/exams/:exam_id/events
func (h *SessionHandler) LogEvent(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	var req model.LogEventRequest
	if fields := validator.Bind(c, &req); fields != nil {
		response.FailWithFields(c, http.StatusBadRequest, response.ErrValidation, fields)
		return
	}

	if err := h.lifecycle.LogEvent(c.Request.Context(), examID, claims.UserID, &req); err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusAccepted, gin.H{"queued": true})
}

// SubmitExam godoc
// POST /api/v1/student/exams/:exam_id/submit
func (h *SessionHandler) SubmitExam(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	attempt, err := h.lifecycle.SubmitExam(c.Request.Context(), examID, claims.UserID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"attempt": attempt})
}
