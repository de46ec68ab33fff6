// Package tag provides standardized tag functions for structured logging.
//
// All tag keys use kebab-case naming convention for consistency.
package tag

import (
	"log/slog"
	"time"
)

// Error creates a tag for error objects.
func Error(err any) slog.Attr {
	return slog.Any("err", err)
}

// Job creates a tag for job names.
func Job(name string) slog.Attr {
	return slog.String("job", name)
}

// Dependent creates a tag for the job waiting on a dependency.
func Dependent(name string) slog.Attr {
	return slog.String("dependent", name)
}

// Dependency creates a tag for a dependency job name.
func Dependency(name string) slog.Attr {
	return slog.String("dependency", name)
}

// RunID creates a tag for a scheduler session ID.
func RunID(id string) slog.Attr {
	return slog.String("run-id", id)
}

// Status creates a tag for a job status.
func Status(s string) slog.Attr {
	return slog.String("status", s)
}

// Tries creates a tag for the remaining retry budget.
func Tries(n int) slog.Attr {
	return slog.Int("tries", n)
}

// Count creates a tag for generic counts.
func Count(n int) slog.Attr {
	return slog.Int("count", n)
}

// Limit creates a tag for capacity limits.
func Limit(n int) slog.Attr {
	return slog.Int("limit", n)
}

// StartAt creates a tag for a delayed start time.
func StartAt(t time.Time) slog.Attr {
	return slog.Time("start-at", t)
}

// Deadline creates a tag for a job deadline.
func Deadline(t time.Time) slog.Attr {
	return slog.Time("deadline", t)
}

// Delay creates a tag for a wait duration.
func Delay(d time.Duration) slog.Attr {
	return slog.Duration("delay", d)
}

// Interval creates a tag for polling or retry intervals.
func Interval(d time.Duration) slog.Attr {
	return slog.Duration("interval", d)
}

// File creates a tag for file paths.
func File(path string) slog.Attr {
	return slog.String("file", path)
}

// Key creates a tag for state store keys.
func Key(k string) slog.Attr {
	return slog.String("key", k)
}

// Task creates a tag for built-in task names.
func Task(name string) slog.Attr {
	return slog.String("task", name)
}

// URL creates a tag for URLs.
func URL(u string) slog.Attr {
	return slog.String("url", u)
}

// Signal creates a tag for OS signal names.
func Signal(sig string) slog.Attr {
	return slog.String("signal", sig)
}
