package logger

import (
	"bytes"
	"context"
	"log"
)

// newStdLogger is provided for places that require a standard library logger,
// such as http.Server.ErrorLog. Writes are forwarded at the configured level.
func newStdLogger(logger *Logger, level Level) *log.Logger {
	return log.New(&logWriter{logger: logger, level: level}, "", 0)
}

type logWriter struct {
	logger *Logger
	level  Level
}

// Write implements io.Writer by forwarding the message to the wrapped Logger.
func (w *logWriter) Write(p []byte) (int, error) {
	msg := string(bytes.TrimSpace(p))

	ctx := context.Background()

	switch w.level {
	case LevelDebug:
		w.logger.Debug(ctx, msg)
	case LevelWarn:
		w.logger.Warn(ctx, msg)
	case LevelError:
		w.logger.Error(ctx, msg)
	default:
		w.logger.Info(ctx, msg)
	}

	return len(p), nil
}
