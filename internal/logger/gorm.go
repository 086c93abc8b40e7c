package logger

import (
	"log/slog"
	"time"

	gormlogger "gorm.io/gorm/logger"
)

const slowQueryThreshold = 200 * time.Millisecond

// Gorm routes SQL logging through log. Statements are logged with
// placeholders only; bound values carry donor emails and names.
func Gorm(log *slog.Logger) gormlogger.Interface {
	return gormlogger.NewSlogLogger(log.With("component", "gorm"), gormlogger.Config{
		LogLevel:                  gormlogger.Warn,
		SlowThreshold:             slowQueryThreshold,
		ParameterizedQueries:      true,
		IgnoreRecordNotFoundError: true,
	})
}
