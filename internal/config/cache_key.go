package config

import (
	"fmt"
)

type CacheKeyStruct struct{}

func NewCacheKeyStruct() *CacheKeyStruct {
	return &CacheKeyStruct{}
}

// StudentAnswersKey returns the hash holding a student's buffered answers
func (r *CacheKeyStruct) StudentAnswersKey(examID string, userID int) string {
	return fmt.Sprintf("student:%d:exam:%s:answers", userID, examID)
}

// ExamAdvanceLockKey returns the lock key serializing synchronized advances
func (r *CacheKeyStruct) ExamAdvanceLockKey(examID string) string {
	return fmt.Sprintf("exam:%s:advance_lock", examID)
}

// ExamMonitorChannel returns the Redis PubSub channel name for an exam monitor
func (r *CacheKeyStruct) ExamMonitorChannel(examID string) string {
	return fmt.Sprintf("exam:%s:monitor", examID)
}

var CacheKey = NewCacheKeyStruct()
