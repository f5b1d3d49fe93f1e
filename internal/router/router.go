package router

import (
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/stemsi/exstem-adaptive/internal/config"
	"github.com/stemsi/exstem-adaptive/internal/handler"
	"github.com/stemsi/exstem-adaptive/internal/metrics"
	"github.com/stemsi/exstem-adaptive/internal/middleware"
	"github.com/stemsi/exstem-adaptive/internal/model"
	"github.com/stemsi/exstem-adaptive/internal/response"
)

// Handlers groups all handler instances for route setup.
type Handlers struct {
	Exam         *handler.ExamHandler
	Session      *handler.SessionHandler
	Adaptive     *handler.AdaptiveHandler
	Synchronized *handler.SynchronizedHandler
	Monitor      *handler.MonitorHandler
	WS           *handler.WSHandler
	System       *handler.SystemHandler
}

// SetupRouter configures all Gin route groups with appropriate middlewares.
// limiter may be nil, in which case polling routes are not throttled.
func SetupRouter(
	auth middleware.TokenValidator,
	handlers *Handlers,
	limiter *middleware.RateLimiter,
	cfg *config.Config,
) *gin.Engine {
	gin.SetMode(cfg.GinMode)
	router := gin.New()
	router.Use(gin.Recovery())

	// ─── CORS ──────────────────────────────────────────────────────────
	// If AllowedOrigins is set in config, restrict to that list;
	// otherwise allow all (*) so dev works without extra config.
	corsConfig := cors.DefaultConfig()
	if len(cfg.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Authorization", "X-Request-ID"}
	corsConfig.ExposeHeaders = []string{"X-Request-ID", "Retry-After"}
	corsConfig.MaxAge = 12 * time.Hour
	router.Use(cors.New(corsConfig))

	router.Use(response.RequestIDMiddleware())
	router.Use(metrics.MetricsMiddleware())
	router.Use(middleware.BrotliWithConfig(middleware.BrotliConfig{
		Quality:   middleware.DefaultBrotliConfig.Quality,
		MinLength: middleware.DefaultBrotliConfig.MinLength,
		SkipPaths: []string{"/metrics"},
	}))

	// ─── Ops ───────────────────────────────────────────────────────────
	router.GET("/health", handlers.System.Health)
	router.GET("/metrics", metrics.PrometheusHandler())

	polling := func(h gin.HandlerFunc) []gin.HandlerFunc {
		if limiter == nil {
			return []gin.HandlerFunc{h}
		}
		return []gin.HandlerFunc{limiter.Middleware(), h}
	}

	// ─── 1. Student Group (JWT) ────────────────────────────────────────
	studentAPI := router.Group("/api/v1/student/exams/:exam_id")
	studentAPI.Use(middleware.RequireStudentJWT(auth), middleware.NoStore())
	{
		studentAPI.POST("/validate", handlers.Session.ValidateEntry)
		studentAPI.POST("/session", handlers.Session.StartSession)
		studentAPI.PUT("/session", handlers.Session.Heartbeat)
		studentAPI.POST("/events", handlers.Session.LogEvent)
		studentAPI.POST("/submit", handlers.Session.SubmitExam)

		adaptive := studentAPI.Group("/adaptive")
		{
			adaptive.GET("/next-question", polling(handlers.Adaptive.NextQuestion)...)
			adaptive.POST("/submit-answer", handlers.Adaptive.SubmitAnswer)
			adaptive.GET("/wait-status", polling(handlers.Adaptive.WaitStatus)...)
		}

		synchronized := studentAPI.Group("/synchronized")
		{
			synchronized.GET("/current-question", polling(handlers.Synchronized.CurrentQuestion)...)
			synchronized.POST("/submit-answer", handlers.Synchronized.SubmitAnswer)
		}
	}

	// ─── 2. WebSocket Group (Student WS Auth) ──────────────────────────
	ws := router.Group("/ws/v1")
	ws.Use(middleware.RequireStudentWSAuth(auth))
	{
		ws.GET("/student/exams/:exam_id/stream", handlers.WS.ExamWebSocketStream)
	}

	// ─── 3. Admin Group (JWT + RBAC) ───────────────────────────────────
	adminAPI := router.Group("/api/v1/admin")
	adminAPI.Use(middleware.RequireAdminJWT(auth), middleware.NoStore())
	{
		adminAPI.POST("/exams",
			middleware.RequirePermission(model.PermissionExamsWrite),
			handlers.Exam.CreateExam,
		)
		adminAPI.GET("/exams/:exam_id",
			middleware.RequireAnyPermission(model.PermissionExamsRead, model.PermissionExamsProctor),
			handlers.Exam.GetExam,
		)
		adminAPI.PUT("/exams/:exam_id/status",
			middleware.RequirePermission(model.PermissionExamsWrite),
			handlers.Exam.UpdateExamStatus,
		)
		adminAPI.GET("/exams/:exam_id/attempts",
			middleware.RequirePermission(model.PermissionExamsRead),
			handlers.Exam.ListAttempts,
		)

		// Synchronized control
		adminAPI.POST("/exams/:exam_id/synchronized/start",
			middleware.RequirePermission(model.PermissionExamsProctor),
			handlers.Synchronized.Start,
		)
		adminAPI.POST("/exams/:exam_id/synchronized/advance",
			middleware.RequirePermission(model.PermissionExamsProctor),
			handlers.Synchronized.Advance,
		)
		adminAPI.POST("/exams/:exam_id/synchronized/wait",
			middleware.RequirePermission(model.PermissionExamsProctor),
			handlers.Synchronized.WaitPeriod,
		)

		adminAPI.GET("/exams/:exam_id/monitor",
			middleware.RequirePermission(model.PermissionExamsProctor),
			handlers.Monitor.MonitorExamSSE,
		)
	}

	return router
}
