package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("AMQP_URL", "")
	t.Setenv("POLL_RATE_PER_SECOND", "")

	cfg := Load()

	assert.Equal(t, "exam.events", cfg.AMQPExchange)
	assert.Empty(t, cfg.AMQPURL)
	assert.Equal(t, 10*time.Second, cfg.AdvanceLockTTL)
	assert.InDelta(t, 5.0, cfg.PollRatePerSecond, 1e-9)
	assert.Equal(t, 15, cfg.DefaultVerificationMinutes)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("ADVANCE_LOCK_TTL_SECONDS", "3")
	t.Setenv("POLL_RATE_PER_SECOND", "2.5")
	t.Setenv("DEFAULT_WAIT_MAX_SECONDS", "not-a-number")
	t.Setenv("ALLOWED_ORIGINS", " https://a.example , ,https://b.example")

	cfg := Load()

	assert.Equal(t, 3*time.Second, cfg.AdvanceLockTTL)
	assert.InDelta(t, 2.5, cfg.PollRatePerSecond, 1e-9)
	assert.Equal(t, 10, cfg.DefaultWaitMaxSeconds)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins)
}

func TestCacheKeys(t *testing.T) {
	assert.Equal(t, "student:7:exam:abc:answers", CacheKey.StudentAnswersKey("abc", 7))
	assert.Equal(t, "exam:abc:advance_lock", CacheKey.ExamAdvanceLockKey("abc"))
	assert.Equal(t, "exam:abc:monitor", CacheKey.ExamMonitorChannel("abc"))
}
