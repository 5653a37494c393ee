package records

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// LogObserver logs completed operations with slog. Successes are logged at
// debug level, caller mistakes at info and everything else at error.
type LogObserver struct {
	// Logger defaults to slog.Default().
	Logger *slog.Logger
}

// Observe implements Observer.
func (l *LogObserver) Observe(ctx context.Context, op Op, d time.Duration, err error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	switch {
	case err == nil:
		logger.DebugContext(ctx, "records", "op", op, "dur", d)
	case errors.Is(err, ErrValidation), errors.Is(err, ErrRecordNotFound):
		logger.InfoContext(ctx, "records", "op", op, "dur", d, "err", err)
	default:
		logger.ErrorContext(ctx, "records", "op", op, "dur", d, "err", err)
	}
}
