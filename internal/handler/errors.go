package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/middleware"
	"github.com/stemsi/exstem-adaptive/internal/response"
	"github.com/stemsi/exstem-adaptive/internal/service"
)

type errMapping struct {
	target error
	status int
	code   response.ErrCode
}

// serviceErrors is checked in order; the first errors.Is match wins.
var serviceErrors = []errMapping{
	{service.ErrExamNotFound, http.StatusNotFound, response.ErrExamNotFound},
	{service.ErrSessionNotFound, http.StatusNotFound, response.ErrSessionNotFound},
	{service.ErrQuestionNotFound, http.StatusNotFound, response.ErrQuestionNotFound},
	{service.ErrExamNotAvailable, http.StatusForbidden, response.ErrExamNotAvailable},
	{service.ErrNotRegistered, http.StatusForbidden, response.ErrNotRegistered},
	{service.ErrLateJoin, http.StatusForbidden, response.ErrLateJoin},
	{service.ErrInvalidExam, http.StatusBadRequest, response.ErrInvalidExam},
	{service.ErrWrongExamMode, http.StatusBadRequest, response.ErrWrongExamMode},
	{service.ErrAlreadyCompleted, http.StatusConflict, response.ErrAlreadyCompleted},
	{service.ErrAlreadyAnswered, http.StatusConflict, response.ErrAlreadyAnswered},
	{service.ErrQuestionNotActive, http.StatusConflict, response.ErrQuestionNotActive},
	{service.ErrSynchronizedAlreadyStarted, http.StatusConflict, response.ErrAlreadyStarted},
	{service.ErrSynchronizedNotStarted, http.StatusConflict, response.ErrNotStarted},
	{service.ErrAdvanceInProgress, http.StatusConflict, response.ErrAdvanceInProgress},
	{service.ErrAdvanceConflict, http.StatusConflict, response.ErrAdvanceInProgress},
	{service.ErrPoolExhausted, http.StatusUnprocessableEntity, response.ErrPoolExhausted},
}

// failService writes the envelope for a service error. Unknown errors are
// logged and reported as internal.
func failService(c *gin.Context, log zerolog.Logger, err error) {
	var tw *service.TimeWindowError
	if errors.As(err, &tw) {
		response.FailWithFields(c, http.StatusForbidden, response.ErrTimeWindow, map[string]string{
			"reason":             tw.Reason,
			"verification_start": tw.VerificationStart.UTC().Format(time.RFC3339),
			"start_time":         tw.Start.UTC().Format(time.RFC3339),
			"end_time":           tw.End.UTC().Format(time.RFC3339),
		})
		return
	}

	for _, m := range serviceErrors {
		if errors.Is(err, m.target) {
			if m.code == response.ErrInvalidExam {
				response.FailWithFields(c, m.status, m.code, map[string]string{"detail": err.Error()})
				return
			}
			response.Fail(c, m.status, m.code)
			return
		}
	}

	log.Error().Err(err).
		Str("request_id", response.RequestID(c)).
		Str("path", c.FullPath()).
		Msg("Unhandled service error")
	response.Fail(c, http.StatusInternalServerError, response.ErrInternal)
}

// requireClaims returns the caller's claims or writes 401.
func requireClaims(c *gin.Context) (*service.Claims, bool) {
	claims := middleware.GetClaims(c)
	if claims == nil {
		response.Fail(c, http.StatusUnauthorized, response.ErrTokenRequired)
		return nil, false
	}
	return claims, true
}

// examIDParam parses :exam_id or writes 400.
func examIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("exam_id"))
	if err != nil {
		response.Fail(c, http.StatusBadRequest, response.ErrInvalidID)
		return uuid.Nil, false
	}
	return id, true
}
