package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"discflow/internal/job"
	"discflow/internal/logging"
	"discflow/internal/plugin"
	"discflow/internal/progress"
	"discflow/internal/services"
)

// Recorder persists stage outcomes.
type Recorder interface {
	RecordStage(ctx context.Context, j *job.Job, result *StageResult) error
}

// ErrorReporter receives logic errors raised by plugins. User errors and
// cancellations are never reported.
type ErrorReporter interface {
	NotifyError(ctx context.Context, err error, contextLabel string) error
}

// Controller runs the scan and convert stages against a registry.
type Controller struct {
	registry    *plugin.Registry
	logger      *slog.Logger
	listener    Listener
	recorder    Recorder
	reporter    ErrorReporter
	trackerOpts progress.Options
	logBucket   float64
	now         func() time.Time
}

// Option configures a Controller.
type Option func(*Controller)

// WithLogger sets the controller logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Controller) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithListener adds an event listener. Multiple listeners receive events in
// registration order.
func WithListener(l Listener) Option {
	return func(c *Controller) {
		if l == nil {
			return
		}
		if existing, ok := c.listener.(listeners); ok {
			c.listener = append(existing, l)
			return
		}
		c.listener = listeners{l}
	}
}

// WithRecorder persists every stage result.
func WithRecorder(r Recorder) Option {
	return func(c *Controller) { c.recorder = r }
}

// WithErrorReporter forwards logic errors.
func WithErrorReporter(r ErrorReporter) Option {
	return func(c *Controller) { c.reporter = r }
}

// WithProgressOptions tunes the per-plugin estimator.
func WithProgressOptions(opts progress.Options) Option {
	return func(c *Controller) { c.trackerOpts = opts }
}

// WithProgressLogBucket sets the percent step between progress log lines.
func WithProgressLogBucket(bucket float64) Option {
	return func(c *Controller) {
		if bucket > 0 {
			c.logBucket = bucket
		}
	}
}

// WithClock overrides the time source for events and trackers.
func WithClock(now func() time.Time) Option {
	return func(c *Controller) {
		if now != nil {
			c.now = now
		}
	}
}

// NewController builds a controller over registry.
func NewController(registry *plugin.Registry, opts ...Option) *Controller {
	c := &Controller{
		registry:  registry,
		logger:    logging.NewNop(),
		logBucket: 10,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = logging.NewComponentLogger(c.logger, "pipeline")
	if c.trackerOpts.Clock == nil {
		c.trackerOpts.Clock = c.now
	}
	return c
}

// RunScan creates a Job for sourcePath and runs disc readers, auto detectors,
// metadata providers and name providers over it. The Job is returned even
// when the stage does not succeed.
func (c *Controller) RunScan(ctx context.Context, sourcePath, destinationPath string) (*job.Job, *StageResult) {
	j := job.New(sourcePath, destinationPath)
	run := c.newRun(ctx, StageScan, j)

	if err := validateSource(j.SourcePath); err != nil {
		return j, run.fail(err)
	}

	var plan []invocation
	readers := c.enabled(plugin.CapabilityDiscReader)
	if len(readers) == 0 {
		return j, run.fail(services.Wrap(services.ErrConfiguration, string(StageScan), "plan", "no enabled disc reader", nil))
	}
	for _, e := range readers {
		reader := e.Plugin.(plugin.DiscReader)
		plan = append(plan, invocation{
			entry: e,
			// Readers form a fallback chain: the first disc produced wins.
			skip: func() bool { return j.Disc != nil },
			call: func(ctx context.Context, host plugin.Host) error {
				disc, err := reader.ReadDisc(ctx, host, j.SourcePath)
				if err != nil {
					return err
				}
				if disc != nil && disc.SourcePath == "" {
					disc.SourcePath = j.SourcePath
				}
				j.Disc = disc
				return nil
			},
		})
	}
	plan = append(plan, invocation{check: func() error {
		if j.Disc == nil {
			return services.Wrap(services.ErrNotFound, string(StageScan), "read disc", "no disc reader recognized "+j.SourcePath, nil)
		}
		return nil
	}})
	plan = c.appendJobCalls(plan, j, plugin.CapabilityAutoDetector, func(p plugin.Plugin) jobCall {
		return p.(plugin.AutoDetector).AutoDetect
	})
	plan = c.appendJobCalls(plan, j, plugin.CapabilityMetadataProvider, func(p plugin.Plugin) jobCall {
		return p.(plugin.MetadataProvider).GetMetadata
	})
	plan = c.appendJobCalls(plan, j, plugin.CapabilityNameProvider, func(p plugin.Plugin) jobCall {
		return p.(plugin.NameProvider).Rename
	})
	return j, run.execute(plan)
}

// RunConvert runs muxers and post processors over a scanned Job.
func (c *Controller) RunConvert(ctx context.Context, j *job.Job) *StageResult {
	if j == nil {
		return c.newRun(ctx, StageConvert, nil).fail(
			services.Wrap(services.ErrValidation, string(StageConvert), "validate", "no job to convert", nil))
	}
	run := c.newRun(ctx, StageConvert, j)
	if j.Disc == nil {
		return run.fail(services.WithHint(
			services.Wrap(services.ErrValidation, string(StageConvert), "validate", "job has no scanned disc", nil),
			"run the scan stage first"))
	}
	if len(c.enabled(plugin.CapabilityMuxer)) == 0 {
		return run.fail(services.Wrap(services.ErrConfiguration, string(StageConvert), "plan", "no enabled muxer", nil))
	}

	var plan []invocation
	plan = c.appendJobCalls(plan, j, plugin.CapabilityMuxer, func(p plugin.Plugin) jobCall {
		return p.(plugin.Muxer).Mux
	})
	plan = c.appendJobCalls(plan, j, plugin.CapabilityPostProcessor, func(p plugin.Plugin) jobCall {
		return p.(plugin.PostProcessor).PostProcess
	})
	return run.execute(plan)
}

type jobCall func(ctx context.Context, host plugin.Host, j *job.Job) error

func (c *Controller) appendJobCalls(plan []invocation, j *job.Job, capability plugin.Capability, bind func(plugin.Plugin) jobCall) []invocation {
	for _, e := range c.enabled(capability) {
		call := bind(e.Plugin)
		plan = append(plan, invocation{entry: e, call: func(ctx context.Context, host plugin.Host) error {
			return call(ctx, host, j)
		}})
	}
	return plan
}

// enabled returns the plugins of capability that the user has not disabled.
func (c *Controller) enabled(capability plugin.Capability) []plugin.Entry {
	var out []plugin.Entry
	for _, e := range c.registry.ByCapability(capability) {
		if c.registry.IsEnabled(e.GUID) {
			out = append(out, e)
		}
	}
	return out
}

func validateSource(sourcePath string) error {
	if strings.TrimSpace(sourcePath) == "" {
		return services.Wrap(services.ErrValidation, string(StageScan), "validate", "source path is required", nil)
	}
	if _, err := os.Stat(sourcePath); err != nil {
		marker := services.ErrValidation
		if errors.Is(err, os.ErrNotExist) {
			marker = services.ErrNotFound
		}
		return services.WithHint(
			services.Wrap(marker, string(StageScan), "validate", fmt.Sprintf("source %q is not accessible", sourcePath), err),
			"check the disc path")
	}
	return nil
}
