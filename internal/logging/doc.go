// Package logging assembles structured slog loggers and formatting helpers used
// across discflow.
//
// It owns the console and JSON handlers, the fan-out used to mirror console
// output into the JSON log file, and context-aware helpers that tag records
// with job IDs, stage names and plugin names. Progress reporting goes through
// ProgressSampler so long-running plugins do not flood the log.
package logging
