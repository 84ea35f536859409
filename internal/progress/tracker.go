package progress

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"discflow/internal/config"
)

const (
	defaultWindow         = 20
	defaultMaxAge         = time.Minute
	defaultStallThreshold = 10 * time.Second
	minRate               = 1e-9
)

// Options tunes a Tracker. Zero values select defaults.
type Options struct {
	Window         int
	MaxAge         time.Duration
	StallThreshold time.Duration
	Clock          func() time.Time
}

// OptionsFromConfig maps the progress configuration section onto Options.
func OptionsFromConfig(cfg config.Progress) Options {
	return Options{
		Window:         cfg.SampleWindow,
		MaxAge:         time.Duration(cfg.SampleMaxAgeSeconds) * time.Second,
		StallThreshold: time.Duration(cfg.StallThresholdSeconds) * time.Second,
	}
}

// Sample is one observed (time, percent) pair.
type Sample struct {
	At      time.Time
	Percent float64
}

// Snapshot is a point-in-time copy of a tracker.
type Snapshot struct {
	Percent        float64
	Status         string
	State          State
	StartedAt      time.Time
	Remaining      time.Duration
	RemainingKnown bool
	Samples        []Sample
}

// Tracker accumulates progress samples for one invocation. It is safe for
// concurrent use.
type Tracker struct {
	mu   sync.Mutex
	opts Options

	state       State
	status      string
	percent     float64
	startedAt   time.Time
	samples     []Sample
	lastForward time.Time

	// prior carries the rate observed before a stall into the rebased window.
	prior     float64
	priorSpan float64
	hasPrior  bool
}

// NewTracker returns a queued tracker.
func NewTracker(opts Options) *Tracker {
	if opts.Window < 2 {
		opts.Window = defaultWindow
	}
	if opts.MaxAge <= 0 {
		opts.MaxAge = defaultMaxAge
	}
	if opts.StallThreshold <= 0 {
		opts.StallThreshold = defaultStallThreshold
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &Tracker{opts: opts, state: StateQueued}
}

// Start marks the invocation running and resets all samples.
func (t *Tracker) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.state = StateRunning
	t.startedAt = t.opts.Clock()
	t.percent = 0
	t.status = ""
	t.samples = t.samples[:0]
	t.lastForward = time.Time{}
	t.hasPrior = false
}

// Finish records the terminal state. Success pins the percentage at 100.
func (t *Tracker) Finish(state State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !state.Terminal() {
		return
	}
	t.state = state
	if state == StateSuccess {
		t.percent = 100
	}
}

// SetStatus replaces the free-form status message.
func (t *Tracker) SetStatus(status string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.status = strings.TrimSpace(status)
}

// Add records a percent-complete sample. Values are clamped to 0-100;
// non-finite values, regressions and repeats are ignored.
func (t *Tracker) Add(percent float64) {
	if math.IsNaN(percent) || math.IsInf(percent, 0) {
		return
	}
	percent = math.Max(0, math.Min(100, percent))

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.state == StateQueued {
		t.state = StateRunning
		t.startedAt = t.opts.Clock()
	}
	if t.state.Terminal() {
		return
	}
	now := t.opts.Clock()
	if len(t.samples) > 0 && percent <= t.samples[len(t.samples)-1].Percent {
		return
	}
	if n := len(t.samples); n > 0 && !now.After(t.samples[n-1].At) {
		// Reports at the same instant collapse into one sample.
		t.samples[n-1].Percent = percent
		t.percent = percent
		t.lastForward = now
		return
	}
	if len(t.samples) > 0 && now.Sub(t.lastForward) > t.opts.StallThreshold {
		t.rebase(Sample{At: now, Percent: percent})
	}
	t.samples = append(t.samples, Sample{At: now, Percent: percent})
	t.percent = percent
	t.lastForward = now
	t.prune(now)
}

// rebase drops the pre-stall window, keeping its rate as a prior. A window
// without a segment of its own takes the gap up to next as the prior.
func (t *Tracker) rebase(next Sample) {
	if len(t.samples) < 2 {
		last := t.samples[len(t.samples)-1]
		dp := next.Percent - last.Percent
		dt := next.At.Sub(last.At).Seconds()
		if dp > 0 && dt > 0 {
			t.prior, t.priorSpan, t.hasPrior = dp/dt, dt, true
		}
	} else if rate, span, ok := t.weightedRate(); ok {
		t.prior, t.priorSpan, t.hasPrior = rate, span, true
	}
	t.samples = t.samples[:0]
}

func (t *Tracker) prune(now time.Time) {
	if over := len(t.samples) - t.opts.Window; over > 0 {
		t.samples = append(t.samples[:0], t.samples[over:]...)
		t.hasPrior = false
	}
	cut := 0
	for cut < len(t.samples)-2 && now.Sub(t.samples[cut].At) > t.opts.MaxAge {
		cut++
	}
	if cut > 0 {
		t.samples = append(t.samples[:0], t.samples[cut:]...)
	}
}

// weightedRate returns percent per second over the window. Newer segments
// weigh more; the prior, when present, counts as the oldest segment. span is
// the mean segment duration in seconds.
func (t *Tracker) weightedRate() (rate, span float64, ok bool) {
	var sumP, sumT, sumSpan float64
	weight := 1.0
	segments := 0
	if t.hasPrior {
		sumP += weight * t.prior * t.priorSpan
		sumT += weight * t.priorSpan
		sumSpan += t.priorSpan
		segments++
		weight++
	}
	for i := 1; i < len(t.samples); i++ {
		dp := t.samples[i].Percent - t.samples[i-1].Percent
		dt := t.samples[i].At.Sub(t.samples[i-1].At).Seconds()
		if dp <= 0 || dt <= 0 {
			continue
		}
		sumP += weight * dp
		sumT += weight * dt
		sumSpan += dt
		segments++
		weight++
	}
	if segments == 0 || sumT <= 0 {
		return 0, 0, false
	}
	rate = sumP / sumT
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate < minRate {
		return 0, 0, false
	}
	return rate, sumSpan / float64(segments), true
}

// EstimatedTimeRemaining projects the remaining time. The boolean is false
// when the estimate is indeterminate.
func (t *Tracker) EstimatedTimeRemaining() (time.Duration, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.estimateLocked(t.opts.Clock())
}

func (t *Tracker) estimateLocked(now time.Time) (time.Duration, bool) {
	if t.percent >= 100 || t.state == StateSuccess {
		return 0, true
	}
	if t.state.Terminal() || len(t.samples) == 0 {
		return 0, false
	}
	if now.Sub(t.lastForward) > t.opts.StallThreshold {
		return 0, false
	}
	rate, _, ok := t.weightedRate()
	if !ok {
		return 0, false
	}
	seconds := (100-t.percent)/rate - now.Sub(t.samples[len(t.samples)-1].At).Seconds()
	if math.IsNaN(seconds) || seconds <= 0 || seconds > float64(math.MaxInt64)/float64(time.Second) {
		return 0, false
	}
	return time.Duration(seconds * float64(time.Second)), true
}

// Percent returns the latest accepted percentage.
func (t *Tracker) Percent() float64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.percent
}

// State returns the lifecycle state.
func (t *Tracker) State() State {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// Snapshot copies the tracker state.
func (t *Tracker) Snapshot() Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()
	remaining, known := t.estimateLocked(t.opts.Clock())
	return Snapshot{
		Percent:        t.percent,
		Status:         t.status,
		State:          t.state,
		StartedAt:      t.startedAt,
		Remaining:      remaining,
		RemainingKnown: known,
		Samples:        append([]Sample(nil), t.samples...),
	}
}

// StatusText renders a one-line human summary, e.g.
// "Copying title 2 · 45.0% · ETA 1m5s".
func (t *Tracker) StatusText() string {
	return t.Snapshot().StatusText()
}

// StatusText renders the snapshot as a one-line summary.
func (s Snapshot) StatusText() string {
	parts := make([]string, 0, 3)
	if s.Status != "" {
		parts = append(parts, s.Status)
	}
	switch s.State {
	case StateQueued:
		return joinStatus("Queued", parts)
	case StateSuccess:
		return joinStatus("Completed", parts)
	case StateFailed:
		return joinStatus("Failed", parts)
	case StateCanceled:
		return joinStatus("Canceled", parts)
	}
	parts = append(parts, fmt.Sprintf("%.1f%%", s.Percent))
	if s.RemainingKnown {
		if eta := FormatETA(s.Remaining); eta != "" {
			parts = append(parts, "ETA "+eta)
		}
	}
	return strings.Join(parts, " · ")
}

func joinStatus(label string, parts []string) string {
	if len(parts) == 0 {
		return label
	}
	return label + ": " + strings.Join(parts, " · ")
}

// FormatETA renders d as "1h2m3s", omitting leading zero units. Non-positive
// durations render as an empty string.
func FormatETA(d time.Duration) string {
	if d <= 0 {
		return ""
	}
	d = d.Round(time.Second)
	hours := d / time.Hour
	d -= hours * time.Hour
	minutes := d / time.Minute
	d -= minutes * time.Minute
	seconds := d / time.Second
	parts := make([]string, 0, 3)
	if hours > 0 {
		parts = append(parts, fmt.Sprintf("%dh", hours))
	}
	if minutes > 0 || hours > 0 {
		parts = append(parts, fmt.Sprintf("%dm", minutes))
	}
	if seconds > 0 || (hours == 0 && minutes == 0) {
		parts = append(parts, fmt.Sprintf("%ds", seconds))
	}
	return strings.Join(parts, "")
}
