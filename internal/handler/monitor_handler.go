package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/config"
)

const (
	refreshInterval   = 15 * time.Second
	keepAliveInterval = 30 * time.Second
	refreshTimeout    = 5 * time.Second // a slow query must not stall the SSE loop
)

var (
	sseData    = []byte("data: ")
	sseEnd     = []byte("\n\n")
	ssePingMsg = []byte(`{"type":"ping"}`)
)

// MonitorHandler streams live exam activity to proctors over SSE.
type MonitorHandler struct {
	rdb     *redis.Client
	monitor MonitorSnapshotter
	log     zerolog.Logger
}

func NewMonitorHandler(rdb *redis.Client, monitor MonitorSnapshotter, log zerolog.Logger) *MonitorHandler {
	return &MonitorHandler{
		rdb:     rdb,
		monitor: monitor,
		log:     log.With().Str("component", "monitor_handler").Logger(),
	}
}

// MonitorExamSSE godoc
// GET /api/v1/admin/exams/:exam_id/monitor
// Sends a snapshot, then relays every event on the exam's channel.
func (h *MonitorHandler) MonitorExamSSE(c *gin.Context) {
	examID, ok := examIDParam(c)
	if !ok {
		return
	}

	reqCtx := c.Request.Context()

	// Fail before switching to a stream so errors keep the JSON envelope.
	snap, err := h.monitor.Snapshot(reqCtx, examID)
	if err != nil {
		failService(c, h.log, err)
		return
	}

	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	pubsub := h.rdb.Subscribe(reqCtx, config.CacheKey.ExamMonitorChannel(examID.String()))
	defer pubsub.Close()
	ch := pubsub.Channel()

	c.SSEvent("message", snap)
	c.Writer.Flush()

	keepAliveTicker := time.NewTicker(keepAliveInterval)
	defer keepAliveTicker.Stop()

	refreshTicker := time.NewTicker(refreshInterval)
	defer refreshTicker.Stop()

	log := h.log.With().Str("exam_id", examID.String()).Logger()
	log.Info().Msg("Proctor attached to live monitor")

	// Refreshes only run once something happened on the channel.
	active := false

	for {
		select {
		case <-reqCtx.Done():
			log.Info().Msg("Proctor detached from live monitor")
			return

		case msg, ok := <-ch:
			if !ok {
				return
			}
			// Payloads are already JSON; forward them untouched.
			h.writeRaw(c, []byte(msg.Payload))
			active = true

		case <-refreshTicker.C:
			if !active {
				continue
			}
			h.sendRefresh(c, reqCtx, examID, log)

		case <-keepAliveTicker.C:
			h.writeRaw(c, ssePingMsg)
		}
	}
}

func (h *MonitorHandler) writeRaw(c *gin.Context, payload []byte) {
	_, _ = c.Writer.Write(sseData)
	_, _ = c.Writer.Write(payload)
	_, _ = c.Writer.Write(sseEnd)
	c.Writer.Flush()
}

// sendRefresh re-sends the snapshot so a proctor that missed messages catches up.
func (h *MonitorHandler) sendRefresh(c *gin.Context, parent context.Context, examID uuid.UUID, log zerolog.Logger) {
	ctx, cancel := context.WithTimeout(parent, refreshTimeout)
	defer cancel()

	snap, err := h.monitor.Snapshot(ctx, examID)
	if err != nil {
		log.Warn().Err(err).Msg("Failed to refresh monitor snapshot")
		return
	}
	snap.Type = "refresh"

	c.SSEvent("message", snap)
	c.Writer.Flush()
}
