package logging

import (
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

var (
	log  *logrus.Logger
	once sync.Once
)

// ErrorRateLimiter suppresses repeated error logs so a hot loop cannot flood
// the log output. At most maxErrorsPerMin occurrences of the same error key
// are logged per window; the rest are counted and reported when the window
// rolls over.
type ErrorRateLimiter struct {
	mu          sync.Mutex
	errorCounts map[string]*errorEntry
}

type errorEntry struct {
	count      int
	firstSeen  time.Time
	lastLogged time.Time
	suppressed int
}

var (
	rateLimitWindow = 1 * time.Minute
	maxErrorsPerMin = 5
)

func NewErrorRateLimiter() *ErrorRateLimiter {
	return &ErrorRateLimiter{
		errorCounts: make(map[string]*errorEntry),
	}
}

// ShouldLog reports whether an error with this key should be logged now, and
// how many occurrences were suppressed since it was last logged.
func (rl *ErrorRateLimiter) ShouldLog(errorKey string) (shouldLog bool, suppressedCount int) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	entry, exists := rl.errorCounts[errorKey]

	if !exists {
		rl.errorCounts[errorKey] = &errorEntry{
			count:      1,
			firstSeen:  now,
			lastLogged: now,
		}
		return true, 0
	}

	if now.Sub(entry.firstSeen) > rateLimitWindow {
		suppressedCount = entry.suppressed
		rl.errorCounts[errorKey] = &errorEntry{
			count:      1,
			firstSeen:  now,
			lastLogged: now,
		}
		return true, suppressedCount
	}

	entry.count++

	if entry.count <= maxErrorsPerMin {
		entry.lastLogged = now
		return true, 0
	}

	entry.suppressed++
	return false, 0
}

// Cleanup drops entries that have not logged in a while
func (rl *ErrorRateLimiter) Cleanup(olderThan time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	for key, entry := range rl.errorCounts {
		if now.Sub(entry.lastLogged) > olderThan {
			delete(rl.errorCounts, key)
		}
	}
}

// Logger returns the process-wide structured logger, initializing it on
// first use. Output is JSON with ts/level/message keys; the level comes from
// the LOG_LEVEL environment variable and defaults to info.
func Logger() *logrus.Logger {
	once.Do(func() {
		log = logrus.New()

		log.SetFormatter(&logrus.JSONFormatter{
			TimestampFormat: time.RFC3339Nano,
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime:  "ts",
				logrus.FieldKeyLevel: "level",
				logrus.FieldKeyMsg:   "message",
			},
		})
		log.SetOutput(os.Stdout)

		switch os.Getenv("LOG_LEVEL") {
		case "debug":
			log.SetLevel(logrus.DebugLevel)
		case "info":
			log.SetLevel(logrus.InfoLevel)
		case "warn":
			log.SetLevel(logrus.WarnLevel)
		case "error":
			log.SetLevel(logrus.ErrorLevel)
		default:
			log.SetLevel(logrus.InfoLevel)
		}
	})
	return log
}

// NewCorrelationID generates a new correlation ID for request tracing
func NewCorrelationID() string {
	return uuid.New().String()
}

// WithCorrelationID returns logger fields carrying a correlation ID
func WithCorrelationID(correlationID string) logrus.Fields {
	return logrus.Fields{
		"correlation_id": correlationID,
	}
}
