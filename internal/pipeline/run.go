package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"discflow/internal/job"
	"discflow/internal/logging"
	"discflow/internal/plugin"
	"discflow/internal/progress"
	"discflow/internal/services"
)

// invocation is one step of a stage plan. Steps without an entry are checks
// run between plugin groups.
type invocation struct {
	entry plugin.Entry
	call  func(ctx context.Context, host plugin.Host) error
	skip  func() bool
	check func() error
}

type activePlugin struct {
	entry   plugin.Entry
	index   int
	tracker *progress.Tracker
}

// run holds the state of one stage execution. It doubles as the plugin Host.
type run struct {
	c       *Controller
	ctx     context.Context
	stage   Stage
	job     *job.Job
	logger  *slog.Logger
	result  *StageResult
	sampler *logging.ProgressSampler

	mu        sync.Mutex
	started   bool
	active    *activePlugin
	completed int
	total     int
	aggregate float64
}

func (c *Controller) newRun(ctx context.Context, stage Stage, j *job.Job) *run {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx = services.WithStage(ctx, string(stage))
	jobID := ""
	if j != nil {
		jobID = j.ID
		ctx = services.WithJobID(ctx, jobID)
	}
	return &run{
		c:       c,
		ctx:     ctx,
		stage:   stage,
		job:     j,
		logger:  logging.WithContext(ctx, c.logger),
		result:  &StageResult{Stage: stage, State: StateIdle, JobID: jobID},
		sampler: logging.NewProgressSampler(c.logBucket),
	}
}

func (r *run) begin(total int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.started = true
	r.total = total
	r.result.State = StateRunning
	r.result.StartedAt = r.c.now()

	attrs := []logging.Attr{
		logging.String(logging.FieldEventType, "stage_start"),
		logging.Int("plugins", total),
	}
	if r.job != nil {
		attrs = append(attrs, logging.String("source", r.job.SourcePath))
	}
	r.logger.Info("stage started", logging.Args(attrs...)...)
	r.emitLocked(Event{Kind: EventStageStarted, Total: total})
}

// fail ends the stage before any plugin runs.
func (r *run) fail(err error) *StageResult {
	r.begin(0)
	if r.ctx.Err() != nil || services.IsCanceled(err) {
		return r.finish(StateCanceled, err)
	}
	return r.finish(StateFailed, err)
}

func (r *run) execute(plan []invocation) *StageResult {
	total := 0
	for _, inv := range plan {
		if inv.call != nil {
			total++
		}
	}
	r.begin(total)

	index := 0
	for _, inv := range plan {
		if inv.check != nil {
			if err := inv.check(); err != nil {
				return r.fail(err)
			}
			continue
		}
		if err := r.ctx.Err(); err != nil {
			r.logger.Info("stage canceled before plugin",
				logging.String(logging.FieldEventType, "stage_cancel_requested"),
				logging.String(logging.FieldPlugin, inv.entry.Name),
			)
			return r.finish(StateCanceled, err)
		}
		index++
		if inv.skip != nil && inv.skip() {
			r.mu.Lock()
			r.completed++
			r.mu.Unlock()
			r.logger.Debug("plugin skipped", logging.String(logging.FieldPlugin, inv.entry.Name))
			continue
		}
		if err := r.invoke(inv, index); err != nil {
			if r.ctx.Err() != nil || services.IsCanceled(err) {
				return r.finish(StateCanceled, err)
			}
			perr := &PluginError{
				Name:       inv.entry.Name,
				GUID:       inv.entry.GUID,
				Capability: inv.entry.Capability,
				Kind:       services.Classify(err),
				Err:        err,
			}
			r.report(perr)
			return r.finish(StateFailed, perr)
		}
	}
	return r.finish(StateSucceeded, nil)
}

func (r *run) invoke(inv invocation, index int) error {
	e := inv.entry
	tracker := progress.NewTracker(r.c.trackerOpts)
	tracker.Start()

	r.mu.Lock()
	r.active = &activePlugin{entry: e, index: index, tracker: tracker}
	r.result.Invoked = append(r.result.Invoked, e.Name)
	r.sampler.Reset()
	r.emitLocked(r.pluginEvent(EventPluginStarted, r.active))
	r.mu.Unlock()

	pluginCtx := services.WithPlugin(r.ctx, e.Name)
	logger := logging.WithContext(pluginCtx, r.logger).With(
		logging.String(logging.FieldPluginGUID, e.GUID),
		logging.String(logging.FieldCapability, string(e.Capability)),
	)
	logger.Debug("plugin started", logging.Int("run_order", e.RunOrder))
	started := r.c.now()

	err := safeCall(pluginCtx, r, inv.call)

	state := progress.StateSuccess
	switch {
	case err == nil:
	case r.ctx.Err() != nil || services.IsCanceled(err):
		state = progress.StateCanceled
	default:
		state = progress.StateFailed
	}
	tracker.Finish(state)

	r.mu.Lock()
	active := r.active
	r.active = nil
	if err == nil {
		r.completed++
		if agg := float64(r.completed) / float64(r.total) * 100; agg > r.aggregate {
			r.aggregate = agg
		}
	}
	event := r.pluginEvent(EventPluginFinished, active)
	event.PluginState = state
	event.Err = err
	r.emitLocked(event)
	r.mu.Unlock()

	elapsed := r.c.now().Sub(started)
	switch state {
	case progress.StateSuccess:
		logger.Info("plugin finished",
			logging.String(logging.FieldEventType, "plugin_complete"),
			logging.Duration("elapsed", elapsed),
		)
	case progress.StateCanceled:
		logger.Info("plugin canceled",
			logging.String(logging.FieldEventType, "plugin_canceled"),
			logging.Duration("elapsed", elapsed),
		)
	default:
		details := services.Details(err)
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "plugin_failed"),
			logging.String(logging.FieldErrorKind, string(details.Kind)),
			logging.Duration("elapsed", elapsed),
			logging.Error(err),
		}
		if details.Hint != "" {
			attrs = append(attrs, logging.String(logging.FieldErrorHint, details.Hint))
		}
		logger.Error("plugin failed", logging.Args(attrs...)...)
	}
	return err
}

// ReportProgress implements plugin.Host. Reports from plugins other than the
// one currently running are dropped.
func (r *run) ReportProgress(p plugin.Plugin, percent float64, status string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a := r.active
	if a == nil || p == nil || !samePlugin(a.entry.Plugin, p) {
		return
	}
	a.tracker.Add(percent)
	if status != "" {
		a.tracker.SetStatus(status)
	}
	event := r.pluginEvent(EventProgress, a)
	if r.total > 0 {
		agg := float64(r.completed)/float64(r.total)*100 + event.Percent/float64(r.total)
		if agg > 100 {
			agg = 100
		}
		if agg > r.aggregate {
			r.aggregate = agg
		}
		event.Aggregate = r.aggregate
	}
	r.emitLocked(event)

	if r.sampler.ShouldLog(event.Percent, a.entry.Name) {
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "plugin_progress"),
			logging.String(logging.FieldPlugin, a.entry.Name),
			logging.Float64(logging.FieldProgressPercent, event.Percent),
			logging.Float64("stage_percent", event.Aggregate),
		}
		if event.RemainingKnown {
			attrs = append(attrs, logging.String(logging.FieldProgressETA, progress.FormatETA(event.Remaining)))
		}
		if event.Status != "" {
			attrs = append(attrs, logging.String("status", event.Status))
		}
		r.logger.Info("plugin progress", logging.Args(attrs...)...)
	}
}

func (r *run) pluginEvent(kind EventKind, a *activePlugin) Event {
	e := Event{Kind: kind, Total: r.total, Aggregate: r.aggregate}
	if a == nil {
		return e
	}
	snap := a.tracker.Snapshot()
	e.Plugin = a.entry.Name
	e.PluginGUID = a.entry.GUID
	e.Capability = a.entry.Capability
	e.Index = a.index
	e.Percent = snap.Percent
	e.Status = snap.StatusText()
	e.Remaining = snap.Remaining
	e.RemainingKnown = snap.RemainingKnown
	return e
}

func (r *run) finish(state State, err error) *StageResult {
	r.mu.Lock()
	r.result.State = state
	r.result.Err = err
	r.result.FinishedAt = r.c.now()
	if state == StateSucceeded {
		r.aggregate = 100
	}
	r.emitLocked(Event{Kind: EventStageFinished, Total: r.total, Aggregate: r.aggregate, State: state, Err: err})
	r.mu.Unlock()

	result := r.result
	switch state {
	case StateSucceeded:
		r.logger.Info("stage completed",
			logging.String(logging.FieldEventType, "stage_complete"),
			logging.Duration("elapsed", result.Duration()),
			logging.Int("plugins_invoked", len(result.Invoked)),
		)
	case StateCanceled:
		r.logger.Info("stage canceled",
			logging.String(logging.FieldEventType, "stage_canceled"),
			logging.Duration("elapsed", result.Duration()),
		)
	default:
		details := services.Details(err)
		attrs := []logging.Attr{
			logging.String(logging.FieldEventType, "stage_failure"),
			logging.String(logging.FieldErrorKind, string(result.Kind())),
			logging.String("error_message", details.Message),
			logging.Error(err),
		}
		if details.Hint != "" {
			attrs = append(attrs, logging.String(logging.FieldErrorHint, details.Hint))
		}
		r.logger.Error("stage failed", logging.Args(attrs...)...)
	}

	if r.c.recorder != nil && r.job != nil {
		if recErr := r.c.recorder.RecordStage(context.WithoutCancel(r.ctx), r.job, result); recErr != nil {
			r.logger.Warn("failed to record stage result",
				logging.String(logging.FieldEventType, "stage_record_failed"),
				logging.String(logging.FieldErrorHint, "check the state database"),
				logging.Error(recErr),
			)
		}
	}
	return result
}

func (r *run) report(perr *PluginError) {
	if r.c.reporter == nil || perr.Kind != services.KindLogic {
		return
	}
	label := fmt.Sprintf("%s stage, %s %q", r.stage, perr.Capability.Label(), perr.Name)
	if r.job != nil {
		label += " (" + r.job.DisplayName() + ")"
	}
	if err := r.c.reporter.NotifyError(context.WithoutCancel(r.ctx), perr, label); err != nil {
		r.logger.Debug("error report failed", logging.Error(err))
	}
}

func (r *run) emitLocked(e Event) {
	if r.c.listener == nil {
		return
	}
	e.Stage = r.stage
	e.JobID = r.result.JobID
	if e.At.IsZero() {
		e.At = r.c.now()
	}
	r.c.listener.OnEvent(e)
}

func safeCall(ctx context.Context, host plugin.Host, call func(context.Context, plugin.Host) error) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("plugin panicked: %v", rec)
		}
	}()
	return call(ctx, host)
}

// samePlugin compares plugin identity, treating incomparable dynamic types
// as different.
func samePlugin(a, b plugin.Plugin) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}

var _ plugin.Host = (*run)(nil)
