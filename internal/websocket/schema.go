package websocket

import (
	"encoding/json"
	"time"
)

// ─── Actions (Client → Server) ──────────────────────────────────────

type Action string

const (
	ActionHeartbeat Action = "heartbeat"
	ActionViolation Action = "violation"
	ActionSubmit    Action = "submit"
	ActionPing      Action = "ping"
)

// RequestEnvelope carries every client message. Fields unused by an
// action are ignored.
type RequestEnvelope struct {
	Action Action `json:"action"`

	// heartbeat
	Answers   map[string]string `json:"answers,omitempty"`
	Violation bool              `json:"violation,omitempty"`

	// violation
	EventType string          `json:"event_type,omitempty"`
	Details   json.RawMessage `json:"details,omitempty"`
}

// ─── Events (Server → Client) ───────────────────────────────────────

type Event string

const (
	EventError     Event = "error"
	EventHeartbeat Event = "heartbeat"
	EventLogged    Event = "logged"
	EventSubmitted Event = "submitted"
	EventPong      Event = "pong"
)

// HeartbeatResponse acknowledges a heartbeat. Attempt is set when the
// heartbeat tripped the violation limit and the exam was submitted.
type HeartbeatResponse struct {
	Event         Event `json:"event"`
	TimeRemaining int   `json:"time_remaining"`
	Violations    int   `json:"violations"`
	AutoSubmitted bool  `json:"auto_submitted"`
	Attempt       any   `json:"attempt,omitempty"`
}

type LoggedResponse struct {
	Event Event `json:"event"`
}

type SubmittedResponse struct {
	Event   Event `json:"event"`
	Attempt any   `json:"attempt"`
}

type ErrorResponse struct {
	Event Event  `json:"event"`
	Code  string `json:"code,omitempty"`
	Error string `json:"error"`
}

type PongResponse struct {
	Event      Event     `json:"event"`
	ServerTime time.Time `json:"server_time"`
}
