package scheduler

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// intervalSchedule fires every d. cron.Every rounds to whole seconds, which
// is too coarse for short test intervals.
type intervalSchedule time.Duration

// Next implements cron.Schedule.
func (s intervalSchedule) Next(t time.Time) time.Time {
	return t.Add(time.Duration(s))
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

var _ cron.Logger = cronLogger{}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	// cron logs every wake-up at info; keep those out of the default output.
	l.logger.Debug(msg, normalize(keysAndValues)...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error(msg, append(normalize(keysAndValues), "error", err)...)
}

// normalize stringifies keys so slog does not report !BADKEY.
func normalize(kv []any) []any {
	out := make([]any, len(kv))
	for i, v := range kv {
		if i%2 == 0 {
			out[i] = fmt.Sprint(v)
			continue
		}
		out[i] = v
	}
	return out
}
