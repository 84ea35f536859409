package pipeline

import (
	"errors"
	"fmt"
	"time"

	"discflow/internal/plugin"
	"discflow/internal/services"
)

// Stage names a controller phase.
type Stage string

const (
	StageScan    Stage = "scan"
	StageConvert Stage = "convert"
)

// State is the lifecycle of one stage run.
type State string

const (
	StateIdle      State = "idle"
	StateRunning   State = "running"
	StateSucceeded State = "succeeded"
	StateFailed    State = "failed"
	StateCanceled  State = "canceled"
)

// PluginError identifies the plugin that failed a stage.
type PluginError struct {
	Name       string
	GUID       string
	Capability plugin.Capability
	Kind       services.Kind
	Err        error
}

func (e *PluginError) Error() string {
	return fmt.Sprintf("%s %q failed: %v", e.Capability.Label(), e.Name, e.Err)
}

func (e *PluginError) Unwrap() error { return e.Err }

// StageResult summarizes one stage run.
type StageResult struct {
	Stage      Stage
	State      State
	JobID      string
	Err        error
	StartedAt  time.Time
	FinishedAt time.Time
	// Invoked lists the names of the plugins that were called, in order.
	Invoked []string
}

// Succeeded reports whether every plugin in the stage completed.
func (r *StageResult) Succeeded() bool {
	return r != nil && r.State == StateSucceeded
}

// Duration returns how long the stage ran.
func (r *StageResult) Duration() time.Duration {
	if r == nil || r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// PluginError returns the failing plugin, if the stage failed inside one.
func (r *StageResult) PluginError() (*PluginError, bool) {
	if r == nil {
		return nil, false
	}
	var perr *PluginError
	if errors.As(r.Err, &perr) {
		return perr, true
	}
	return nil, false
}

// Kind classifies the stage error.
func (r *StageResult) Kind() services.Kind {
	if r == nil {
		return ""
	}
	if r.State == StateCanceled {
		return services.KindCanceled
	}
	if perr, ok := r.PluginError(); ok {
		return perr.Kind
	}
	return services.Classify(r.Err)
}

// Summary renders a short user-facing description of the outcome.
func (r *StageResult) Summary() string {
	if r == nil {
		return ""
	}
	switch r.State {
	case StateSucceeded:
		return fmt.Sprintf("%s succeeded", r.Stage)
	case StateCanceled:
		return fmt.Sprintf("%s canceled", r.Stage)
	case StateFailed:
		if perr, ok := r.PluginError(); ok {
			return fmt.Sprintf("%s failed in %s %q: %s", r.Stage, perr.Capability.Label(), perr.Name, services.Details(perr.Err).Message)
		}
		return fmt.Sprintf("%s failed: %s", r.Stage, services.Details(r.Err).Message)
	}
	return fmt.Sprintf("%s %s", r.Stage, r.State)
}
