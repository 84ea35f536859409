package store

import (
	"context"
	"fmt"
	"time"

	"discflow/internal/job"
	"discflow/internal/pipeline"
	"discflow/internal/services"
)

// JobRun is one recorded stage outcome.
type JobRun struct {
	ID              int64
	JobID           string
	Stage           string
	State           string
	SourcePath      string
	DestinationPath string
	DisplayName     string
	OutputPath      string
	FailedPlugin    string
	ErrorKind       string
	ErrorMessage    string
	StartedAt       time.Time
	FinishedAt      time.Time
}

// Duration returns how long the stage ran.
func (r JobRun) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// RecordStage implements pipeline.Recorder.
func (s *Store) RecordStage(ctx context.Context, j *job.Job, result *pipeline.StageResult) error {
	if j == nil || result == nil {
		return nil
	}
	run := JobRun{
		JobID:           j.ID,
		Stage:           string(result.Stage),
		State:           string(result.State),
		SourcePath:      j.SourcePath,
		DestinationPath: j.DestinationPath,
		DisplayName:     j.DisplayName(),
		OutputPath:      j.OutputPath,
		StartedAt:       result.StartedAt,
		FinishedAt:      result.FinishedAt,
	}
	if result.Err != nil && result.State != pipeline.StateCanceled {
		run.ErrorKind = string(result.Kind())
		run.ErrorMessage = services.Details(result.Err).Message
		if perr, ok := result.PluginError(); ok {
			run.FailedPlugin = perr.Name
		}
	}
	_, err := s.AddRun(ctx, run)
	return err
}

// AddRun inserts a history row and returns its identifier.
func (s *Store) AddRun(ctx context.Context, run JobRun) (int64, error) {
	finished := run.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	started := run.StartedAt
	if started.IsZero() {
		started = finished
	}
	res, err := s.execWithRetry(ctx,
		`INSERT INTO job_runs (job_id, stage, state, source_path, destination_path, display_name,
			output_path, failed_plugin, error_kind, error_message, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.JobID, run.Stage, run.State, run.SourcePath, run.DestinationPath, run.DisplayName,
		run.OutputPath, run.FailedPlugin, run.ErrorKind, run.ErrorMessage,
		formatTime(started), formatTime(finished),
	)
	if err != nil {
		return 0, fmt.Errorf("insert job run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("job run id: %w", err)
	}
	return id, nil
}

// RecentRuns returns up to limit runs, newest first.
func (s *Store) RecentRuns(ctx context.Context, limit int) ([]JobRun, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ensureContext(ctx),
		`SELECT id, job_id, stage, state, source_path, destination_path, display_name,
			output_path, failed_plugin, error_kind, error_message, started_at, finished_at
		 FROM job_runs ORDER BY finished_at DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query job runs: %w", err)
	}
	defer rows.Close()

	var runs []JobRun
	for rows.Next() {
		var (
			run               JobRun
			started, finished string
		)
		if err := rows.Scan(&run.ID, &run.JobID, &run.Stage, &run.State, &run.SourcePath,
			&run.DestinationPath, &run.DisplayName, &run.OutputPath, &run.FailedPlugin,
			&run.ErrorKind, &run.ErrorMessage, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan job run: %w", err)
		}
		run.StartedAt = parseTime(started)
		run.FinishedAt = parseTime(finished)
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate job runs: %w", err)
	}
	return runs, nil
}

// ClearHistory removes every recorded run and returns the number removed.
func (s *Store) ClearHistory(ctx context.Context) (int64, error) {
	res, err := s.execWithRetry(ctx, "DELETE FROM job_runs")
	if err != nil {
		return 0, fmt.Errorf("clear job runs: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("clear job runs: %w", err)
	}
	return n, nil
}

var (
	_ pipeline.Recorder = (*Store)(nil)
)
