package pipeline

import (
	"time"

	"discflow/internal/plugin"
	"discflow/internal/progress"
)

// EventKind identifies a pipeline event.
type EventKind string

const (
	EventStageStarted   EventKind = "stage_started"
	EventPluginStarted  EventKind = "plugin_started"
	EventProgress       EventKind = "progress"
	EventPluginFinished EventKind = "plugin_finished"
	EventStageFinished  EventKind = "stage_finished"
)

// Event is delivered to a Listener. Events of one stage are delivered in
// order, one at a time, and at most once.
type Event struct {
	Kind  EventKind
	Stage Stage
	JobID string
	At    time.Time

	Plugin     string
	PluginGUID string
	Capability plugin.Capability
	// Index is the 1-based position of the plugin within the stage.
	Index int
	Total int

	// Percent is the plugin's own completion; Aggregate is the stage's.
	Percent        float64
	Aggregate      float64
	Status         string
	Remaining      time.Duration
	RemainingKnown bool

	// PluginState is set on plugin-finished events, State on stage-finished.
	PluginState progress.State
	State       State
	Err         error
}

// Listener receives pipeline events.
type Listener interface {
	OnEvent(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

func (f ListenerFunc) OnEvent(e Event) { f(e) }

type listeners []Listener

func (ls listeners) OnEvent(e Event) {
	for _, l := range ls {
		l.OnEvent(e)
	}
}
