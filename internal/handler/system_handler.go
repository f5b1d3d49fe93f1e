package handler

import (
	"context"
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-adaptive/internal/config"
	"github.com/stemsi/exstem-adaptive/internal/response"
)

const healthTimeout = 2 * time.Second

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

// SystemHandler reports liveness, dependency health and worker backlog.
type SystemHandler struct {
	db        Pinger
	rdb       *redis.Client
	startTime time.Time
	log       zerolog.Logger
}

func NewSystemHandler(db Pinger, rdb *redis.Client, log zerolog.Logger) *SystemHandler {
	return &SystemHandler{
		db:        db,
		rdb:       rdb,
		startTime: time.Now(),
		log:       log.With().Str("component", "system_handler").Logger(),
	}
}

type systemStatus struct {
	Status  string            `json:"status"`
	Uptime  string            `json:"uptime"`
	Checks  map[string]string `json:"checks"`
	Queues  map[string]int64  `json:"queues,omitempty"`
	Runtime runtimeStats      `json:"runtime"`
}

type runtimeStats struct {
	Goroutines int    `json:"goroutines"`
	HeapAlloc  uint64 `json:"heap_alloc"`
	NumGC      uint32 `json:"num_gc"`
	GoVersion  string `json:"go_version"`
}

// Health godoc
// GET /health
// Returns 503 when PostgreSQL or Redis is unreachable.
func (h *SystemHandler) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthTimeout)
	defer cancel()

	st := systemStatus{
		Status: "ok",
		Uptime: formatDuration(time.Since(h.startTime)),
		Checks: map[string]string{},
	}

	if h.db != nil {
		st.Checks["postgres"] = checkResult(h.db.Ping(ctx))
	}
	st.Checks["redis"] = checkResult(h.rdb.Ping(ctx).Err())

	// Worker backlog (pipelined LLEN).
	pipe := h.rdb.Pipeline()
	answersCmd := pipe.LLen(ctx, config.WorkerKey.PersistAnswersQueue)
	logsCmd := pipe.LLen(ctx, config.WorkerKey.PersistExamLogsQueue)
	if _, err := pipe.Exec(ctx); err == nil {
		st.Queues = map[string]int64{
			"answers":   answersCmd.Val(),
			"exam_logs": logsCmd.Val(),
		}
	}

	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)
	st.Runtime = runtimeStats{
		Goroutines: runtime.NumGoroutine(),
		HeapAlloc:  ms.HeapAlloc,
		NumGC:      ms.NumGC,
		GoVersion:  runtime.Version(),
	}

	code := http.StatusOK
	for name, result := range st.Checks {
		if result != "ok" {
			st.Status = "degraded"
			code = http.StatusServiceUnavailable
			h.log.Warn().Str("dependency", name).Str("result", result).Msg("Health check failed")
		}
	}

	response.Success(c, code, st)
}

func checkResult(err error) string {
	if err != nil {
		return err.Error()
	}
	return "ok"
}

func formatDuration(d time.Duration) string {
	days := int(d.Hours()) / 24
	hours := int(d.Hours()) % 24
	minutes := int(d.Minutes()) % 60
	seconds := int(d.Seconds()) % 60

	if days > 0 {
		return fmt.Sprintf("%dd %dh %dm %ds", days, hours, minutes, seconds)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm %ds", hours, minutes, seconds)
	}
	return fmt.Sprintf("%dm %ds", minutes, seconds)
}
