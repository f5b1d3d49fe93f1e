package handler

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/response"
	"github.com/stemsi/exstem-adaptive/internal/service"
	ws "github.com/stemsi/exstem-adaptive/internal/websocket"
)

// buildUpgrader creates a WebSocket upgrader with origin validation.
// An empty allowedOrigins permits all origins (development mode).
func buildUpgrader(allowedOrigins []string) websocket.Upgrader {
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			if len(allowedOrigins) == 0 {
				return true
			}
			origin := r.Header.Get("Origin")
			for _, allowed := range allowedOrigins {
				if strings.EqualFold(allowed, origin) {
					return true
				}
			}
			return false
		},
	}
}

// WSHandler carries heartbeats, violations and submission over one
// WebSocket per student session.
type WSHandler struct {
	lifecycle ExamLifecycle
	log       zerolog.Logger
	upgrader  websocket.Upgrader
}

// NewWSHandler creates a new WSHandler.
func NewWSHandler(lifecycle ExamLifecycle, log zerolog.Logger, allowedOrigins []string) *WSHandler {
	return &WSHandler{
		lifecycle: lifecycle,
		log:       log.With().Str("component", "ws_handler").Logger(),
		upgrader:  buildUpgrader(allowedOrigins),
	}
}

// ExamWebSocketStream godoc
// WS /ws/v1/student/exams/:exam_id/stream
// Upgrades to WebSocket for heartbeats, violation reports and submission.
func (h *WSHandler) ExamWebSocketStream(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error().Err(err).Msg("WebSocket upgrade failed")
		return
	}
	defer conn.Close()

	userID := claims.UserID
	wsLog := h.log.With().
		Int("user_id", userID).
		Str("exam_id", examID.String()).
		Logger()

	// The session must exist before anything is streamed.
	ctx := c.Request.Context()
	if _, err := h.lifecycle.Heartbeat(ctx, examID, userID, &model.HeartbeatRequest{}); err != nil {
		h.writeServiceError(conn, wsLog, err)
		return
	}

	wsLog.Info().Msg("Student connected")

	for {
		var msg ws.RequestEnvelope
		if err := ws.ReadJSON(conn, &msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				wsLog.Warn().Err(err).Msg("Unexpected close")
			} else {
				wsLog.Debug().Msg("Connection closed")
			}
			return
		}

		done := h.dispatch(ctx, conn, wsLog, examID, userID, &msg)
		if done {
			return
		}
	}
}

// dispatch handles one message and reports whether the stream should end.
func (h *WSHandler) dispatch(ctx context.Context, conn *websocket.Conn, log zerolog.Logger, examID uuid.UUID, userID int, msg *ws.RequestEnvelope) bool {
	switch msg.Action {
	case ws.ActionHeartbeat:
		if !validAnswerKeys(msg.Answers) {
			_ = ws.WriteError(conn, string(response.ErrValidation), "answers must be keyed by question id")
			return false
		}
		res, err := h.lifecycle.Heartbeat(ctx, examID, userID, &model.HeartbeatRequest{
			Answers:   msg.Answers,
			Violation: msg.Violation,
		})
		if err != nil {
			return h.writeServiceError(conn, log, err)
		}
		out := ws.HeartbeatResponse{
			Event:         ws.EventHeartbeat,
			TimeRemaining: res.TimeRemaining,
			Violations:    res.Violations,
			AutoSubmitted: res.AutoSubmitted,
		}
		if res.Attempt != nil {
			out.Attempt = res.Attempt
		}
		_ = ws.WriteTyped(conn, out)
		return res.AutoSubmitted

	case ws.ActionViolation:
		if msg.EventType == "" {
			_ = ws.WriteError(conn, string(response.ErrValidation), "event_type is required")
			return false
		}
		req := &model.LogEventRequest{EventType: msg.EventType}
		if len(msg.Details) > 0 {
			req.Details = map[string]any{"raw": msg.Details}
		}
		if err := h.lifecycle.LogEvent(ctx, examID, userID, req); err != nil {
			return h.writeServiceError(conn, log, err)
		}
		_ = ws.WriteTyped(conn, ws.LoggedResponse{Event: ws.EventLogged})
		return false

	case ws.ActionSubmit:
		attempt, err := h.lifecycle.SubmitExam(ctx, examID, userID)
		if err != nil {
			return h.writeServiceError(conn, log, err)
		}
		log.Info().Float64("score", attempt.Score).Msg("Exam submitted over WebSocket")
		_ = ws.WriteTyped(conn, ws.SubmittedResponse{Event: ws.EventSubmitted, Attempt: attempt})
		return true

	case ws.ActionPing:
		_ = ws.WriteTyped(conn, ws.PongResponse{Event: ws.EventPong, ServerTime: time.Now().UTC()})
		return false

	default:
		log.Warn().Str("action", string(msg.Action)).Msg("Unknown action")
		_ = ws.WriteError(conn, string(response.ErrInvalidPayload), "unknown action: "+string(msg.Action))
		return false
	}
}

// writeServiceError reports err to the client and returns true when the
// session is gone and the stream should close.
func (h *WSHandler) writeServiceError(conn *websocket.Conn, log zerolog.Logger, err error) bool {
	var tw *service.TimeWindowError
	switch {
	case errors.As(err, &tw):
		_ = ws.WriteError(conn, string(response.ErrTimeWindow), tw.Error())
		return true
	case errors.Is(err, service.ErrSessionNotFound):
		_ = ws.WriteError(conn, string(response.ErrSessionNotFound), response.GetMessage(response.ErrSessionNotFound))
		return true
	case errors.Is(err, service.ErrAlreadyCompleted):
		_ = ws.WriteError(conn, string(response.ErrAlreadyCompleted), response.GetMessage(response.ErrAlreadyCompleted))
		return true
	case errors.Is(err, service.ErrExamNotFound):
		_ = ws.WriteError(conn, string(response.ErrExamNotFound), response.GetMessage(response.ErrExamNotFound))
		return true
	}

	log.Error().Err(err).Msg("WebSocket action failed")
	_ = ws.WriteError(conn, string(response.ErrInternal), response.GetMessage(response.ErrInternal))
	return false
}

// validAnswerKeys keeps malformed keys out of the Redis answer hash.
func validAnswerKeys(answers map[string]string) bool {
	for k := range answers {
		if _, err := uuid.Parse(k); err != nil {
			return false
		}
	}
	return true
}
