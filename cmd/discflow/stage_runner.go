package main

import (
	"context"
	"io"

	"discflow/internal/job"
	"discflow/internal/notifications"
	"discflow/internal/pipeline"
	"discflow/internal/progress"
)

// stageRunner builds one controller per stage so each stage can render to
// its own listener.
type stageRunner struct {
	session  *session
	notifier notifications.Service
	tui      bool
	in       io.Reader
	out      io.Writer
}

func (r *stageRunner) controller(listener pipeline.Listener) *pipeline.Controller {
	cfg := r.session.cfg
	opts := []pipeline.Option{
		pipeline.WithLogger(r.session.logger),
		pipeline.WithRecorder(r.session.store),
		pipeline.WithProgressOptions(progress.OptionsFromConfig(cfg.Progress)),
		pipeline.WithProgressLogBucket(cfg.Progress.LogBucketPercent),
		pipeline.WithListener(listener),
	}
	if r.notifier != nil {
		opts = append(opts, pipeline.WithErrorReporter(r.notifier))
	}
	return pipeline.NewController(r.session.registry, opts...)
}

func (r *stageRunner) scan(ctx context.Context, source, dest string) (*job.Job, *pipeline.StageResult, error) {
	var j *job.Job
	var result *pipeline.StageResult
	run := func(ctx context.Context, l pipeline.Listener) {
		j, result = r.controller(l).RunScan(ctx, source, dest)
	}
	if err := r.render(ctx, "Scan", run); err != nil {
		return nil, nil, err
	}
	return j, result, nil
}

func (r *stageRunner) convert(ctx context.Context, j *job.Job) (*pipeline.StageResult, error) {
	var result *pipeline.StageResult
	run := func(ctx context.Context, l pipeline.Listener) {
		result = r.controller(l).RunConvert(ctx, j)
	}
	if err := r.render(ctx, "Convert", run); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *stageRunner) render(ctx context.Context, title string, run func(context.Context, pipeline.Listener)) error {
	if r.tui {
		return runWithTUI(ctx, r.in, r.out, title, run)
	}
	run(ctx, newLineRenderer(r.out))
	return nil
}
