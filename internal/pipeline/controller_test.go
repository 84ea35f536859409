package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"discflow/internal/job"
	"discflow/internal/plugin"
	"discflow/internal/services"
)

type stub struct {
	name     string
	calls    *[]string
	percents []float64
	fn       func(ctx context.Context, j *job.Job) error
}

func (s *stub) Name() string  { return s.name }
func (s *stub) Unload() error { return nil }

func (s *stub) run(ctx context.Context, host plugin.Host, self plugin.Plugin, j *job.Job) error {
	*s.calls = append(*s.calls, s.name)
	for _, p := range s.percents {
		host.ReportProgress(self, p, "working")
	}
	if s.fn != nil {
		return s.fn(ctx, j)
	}
	return nil
}

type stubReader struct {
	*stub
	disc *job.Disc
}

func (s *stubReader) ReadDisc(ctx context.Context, host plugin.Host, _ string) (*job.Disc, error) {
	if err := s.run(ctx, host, s, nil); err != nil {
		return nil, err
	}
	return s.disc, nil
}

type stubDetector struct{ *stub }

func (s *stubDetector) AutoDetect(ctx context.Context, host plugin.Host, j *job.Job) error {
	return s.run(ctx, host, s, j)
}

type stubProvider struct{ *stub }

func (s *stubProvider) GetMetadata(ctx context.Context, host plugin.Host, j *job.Job) error {
	return s.run(ctx, host, s, j)
}

type stubNamer struct{ *stub }

func (s *stubNamer) Rename(ctx context.Context, host plugin.Host, j *job.Job) error {
	return s.run(ctx, host, s, j)
}

type stubMuxer struct{ *stub }

func (s *stubMuxer) Mux(ctx context.Context, host plugin.Host, j *job.Job) error {
	return s.run(ctx, host, s, j)
}

type stubPost struct{ *stub }

func (s *stubPost) PostProcess(ctx context.Context, host plugin.Host, j *job.Job) error {
	return s.run(ctx, host, s, j)
}

type prefs map[string]bool

func (p prefs) IsPluginEnabled(guid string) bool {
	enabled, ok := p[guid]
	return !ok || enabled
}

type eventLog struct {
	mu     sync.Mutex
	events []Event
}

func (l *eventLog) OnEvent(e Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) kinds(kind EventKind) []Event {
	var out []Event
	for _, e := range l.events {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

type recordingReporter struct {
	errs []error
}

func (r *recordingReporter) NotifyError(_ context.Context, err error, _ string) error {
	r.errs = append(r.errs, err)
	return nil
}

type recordingRecorder struct {
	results []*StageResult
}

func (r *recordingRecorder) RecordStage(_ context.Context, _ *job.Job, result *StageResult) error {
	r.results = append(r.results, result)
	return nil
}

type harness struct {
	t        *testing.T
	reg      *plugin.Registry
	prefs    prefs
	calls    []string
	events   *eventLog
	reporter *recordingReporter
	recorder *recordingRecorder
}

func newHarness(t *testing.T) *harness {
	h := &harness{t: t, prefs: prefs{}, events: &eventLog{}, reporter: &recordingReporter{}, recorder: &recordingRecorder{}}
	h.reg = plugin.NewRegistry(h.prefs)
	return h
}

func (h *harness) stub(name string, percents ...float64) *stub {
	return &stub{name: name, calls: &h.calls, percents: percents}
}

func (h *harness) add(p plugin.Plugin, runOrder int) plugin.Entry {
	h.t.Helper()
	c, err := plugin.CapabilityOf(p)
	if err != nil {
		h.t.Fatalf("CapabilityOf: %v", err)
	}
	e, err := h.reg.Add(plugin.Descriptor{GUID: uuid.NewString(), Name: p.Name(), Capability: c, RunOrder: runOrder}, p)
	if err != nil {
		h.t.Fatalf("Add: %v", err)
	}
	return e
}

func (h *harness) addReader(name string) *stubReader {
	r := &stubReader{stub: h.stub(name), disc: &job.Disc{VolumeLabel: "DISC", Titles: []job.Title{{Index: 0, Size: 1}}}}
	h.add(r, 0)
	return r
}

func (h *harness) addMuxer(name string, percents ...float64) *stubMuxer {
	m := &stubMuxer{h.stub(name, percents...)}
	h.add(m, 0)
	return m
}

func (h *harness) controller() *Controller {
	return NewController(h.reg,
		WithListener(h.events),
		WithErrorReporter(h.reporter),
		WithRecorder(h.recorder),
	)
}

func (h *harness) assertSingleFinish(want State) {
	h.t.Helper()
	finished := h.events.kinds(EventStageFinished)
	if len(finished) != 1 {
		h.t.Fatalf("expected exactly one stage-finished event, got %d", len(finished))
	}
	if finished[0].State != want {
		h.t.Fatalf("stage finished as %q, want %q", finished[0].State, want)
	}
	if last := h.events.events[len(h.events.events)-1]; last.Kind != EventStageFinished {
		h.t.Fatalf("last event = %q, want stage_finished", last.Kind)
	}
}

func TestScanInvokesCapabilitiesInRunOrder(t *testing.T) {
	h := newHarness(t)
	h.addReader("reader")
	h.addMuxer("muxer")
	h.add(&stubNamer{h.stub("namer")}, 0)
	h.add(&stubProvider{h.stub("provider-5")}, 5)
	h.add(&stubProvider{h.stub("provider-1")}, 1)
	h.add(&stubProvider{h.stub("provider-3")}, 3)
	h.add(&stubDetector{h.stub("detector")}, 0)

	j, result := h.controller().RunScan(context.Background(), t.TempDir(), t.TempDir())
	if !result.Succeeded() {
		t.Fatalf("scan failed: %v", result.Err)
	}
	want := "[reader detector provider-1 provider-3 provider-5 namer]"
	if got := fmt.Sprint(h.calls); got != want {
		t.Fatalf("invocation order = %s, want %s", got, want)
	}
	if fmt.Sprint(result.Invoked) != want {
		t.Fatalf("result.Invoked = %v", result.Invoked)
	}
	if j.Disc == nil || j.Disc.VolumeLabel != "DISC" {
		t.Fatalf("expected disc on job, got %+v", j.Disc)
	}
	if j.Disc.SourcePath != j.SourcePath {
		t.Fatalf("disc source path = %q", j.Disc.SourcePath)
	}
	h.assertSingleFinish(StateSucceeded)
	if len(h.recorder.results) != 1 || h.recorder.results[0] != result {
		t.Fatalf("expected stage result recorded once, got %d", len(h.recorder.results))
	}
}

func TestDisabledPluginIsNeverInvoked(t *testing.T) {
	h := newHarness(t)
	h.addReader("reader")
	h.addMuxer("muxer")
	h.add(&stubProvider{h.stub("first", 50, 100)}, 1)
	disabled := h.add(&stubProvider{h.stub("disabled", 50, 100)}, 2)
	h.add(&stubProvider{h.stub("last", 50, 100)}, 3)
	h.prefs[disabled.GUID] = false

	_, result := h.controller().RunScan(context.Background(), t.TempDir(), t.TempDir())
	if !result.Succeeded() {
		t.Fatalf("scan failed: %v", result.Err)
	}
	for _, name := range h.calls {
		if name == "disabled" {
			t.Fatal("disabled plugin was invoked")
		}
	}
	for _, e := range h.events.events {
		if e.PluginGUID == disabled.GUID {
			t.Fatalf("disabled plugin produced event %q", e.Kind)
		}
	}
	if got := len(h.events.kinds(EventPluginStarted)); got != 3 {
		t.Fatalf("expected 3 plugin-started events, got %d", got)
	}
}

func TestConvertAggregateProgressIsMonotonicAndEndsAt100(t *testing.T) {
	h := newHarness(t)
	h.addReader("reader")
	h.addMuxer("muxer", 0, 25, 50, 75, 100)
	h.add(&stubPost{h.stub("post-a", 0, 50, 100)}, 1)
	h.add(&stubPost{h.stub("post-b", 10, 20, 40, 80, 100)}, 2)

	c := h.controller()
	j, scan := c.RunScan(context.Background(), t.TempDir(), t.TempDir())
	if !scan.Succeeded() {
		t.Fatalf("scan failed: %v", scan.Err)
	}
	h.events.events = nil

	result := c.RunConvert(context.Background(), j)
	if !result.Succeeded() {
		t.Fatalf("convert failed: %v", result.Err)
	}
	last := -1.0
	for _, e := range h.events.events {
		if e.Aggregate < last {
			t.Fatalf("aggregate decreased from %v to %v at %q", last, e.Aggregate, e.Kind)
		}
		last = e.Aggregate
	}
	if last != 100 {
		t.Fatalf("final aggregate = %v, want 100", last)
	}
	progressEvents := h.events.kinds(EventProgress)
	if len(progressEvents) != 13 {
		t.Fatalf("expected 13 progress events, got %d", len(progressEvents))
	}
	if got := progressEvents[4].Aggregate; math.Abs(got-100.0/3) > 1e-9 {
		t.Fatalf("aggregate after muxer reached 100%% = %v, want 33.3", got)
	}
	if got := progressEvents[6].Aggregate; math.Abs(got-(100.0/3+50.0/3)) > 1e-9 {
		t.Fatalf("aggregate mid post-a = %v", got)
	}
	h.assertSingleFinish(StateSucceeded)
}

func TestCancellationSkipsRemainingPlugins(t *testing.T) {
	h := newHarness(t)
	h.addReader("reader")
	h.addMuxer("muxer")
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	h.add(&stubProvider{h.stub("one")}, 1)
	second := h.stub("two")
	second.fn = func(context.Context, *job.Job) error {
		cancel()
		return nil
	}
	h.add(&stubProvider{second}, 2)
	h.add(&stubProvider{h.stub("three")}, 3)
	h.add(&stubNamer{h.stub("namer")}, 1)

	_, result := h.controller().RunScan(ctx, t.TempDir(), t.TempDir())
	if result.State != StateCanceled {
		t.Fatalf("state = %q, want canceled (err %v)", result.State, result.Err)
	}
	if got := fmt.Sprint(h.calls); got != "[reader one two]" {
		t.Fatalf("calls = %s", got)
	}
	if len(h.reporter.errs) != 0 {
		t.Fatal("cancellation must not be reported")
	}
	if result.Kind() != services.KindCanceled {
		t.Fatalf("Kind = %q", result.Kind())
	}
	h.assertSingleFinish(StateCanceled)
}

func TestPluginReturningCancellationIsCanceledNotFailed(t *testing.T) {
	h := newHarness(t)
	h.addReader("reader")
	m := h.addMuxer("muxer")
	m.fn = func(context.Context, *job.Job) error {
		return fmt.Errorf("copy interrupted: %w", services.ErrCanceled)
	}
	c := h.controller()
	j, _ := c.RunScan(context.Background(), t.TempDir(), t.TempDir())
	h.events.events = nil

	result := c.RunConvert(context.Background(), j)
	if result.State != StateCanceled {
		t.Fatalf("state = %q, want canceled", result.State)
	}
	h.assertSingleFinish(StateCanceled)
}

func TestAlreadyCanceledContextInvokesNothing(t *testing.T) {
	h := newHarness(t)
	h.addReader("reader")
	h.addMuxer("muxer")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, result := h.controller().RunScan(ctx, t.TempDir(), t.TempDir())
	if result.State != StateCanceled {
		t.Fatalf("state = %q", result.State)
	}
	if len(h.calls) != 0 {
		t.Fatalf("expected no invocations, got %v", h.calls)
	}
}

func TestFailFastReferencesFailingPlugin(t *testing.T) {
	h := newHarness(t)
	h.addReader("reader")
	h.addMuxer("muxer")
	h.add(&stubProvider{h.stub("one")}, 1)
	failing := h.stub("two")
	failing.fn = func(context.Context, *job.Job) error { return errors.New("lookup exploded") }
	failingEntry := h.add(&stubProvider{failing}, 2)
	h.add(&stubProvider{h.stub("three")}, 3)

	_, result := h.controller().RunScan(context.Background(), t.TempDir(), t.TempDir())
	if result.State != StateFailed {
		t.Fatalf("state = %q, want failed", result.State)
	}
	if got := fmt.Sprint(h.calls); got != "[reader one two]" {
		t.Fatalf("calls = %s", got)
	}
	perr, ok := result.PluginError()
	if !ok {
		t.Fatalf("expected PluginError, got %v", result.Err)
	}
	if perr.Name != "two" || perr.GUID != failingEntry.GUID || perr.Capability != plugin.CapabilityMetadataProvider {
		t.Fatalf("unexpected plugin error %+v", perr)
	}
	if perr.Kind != services.KindLogic {
		t.Fatalf("Kind = %q, want logic", perr.Kind)
	}
	if len(h.reporter.errs) != 1 {
		t.Fatalf("expected one reported error, got %d", len(h.reporter.errs))
	}
	if result.Summary() == "" {
		t.Fatal("expected summary")
	}
	h.assertSingleFinish(StateFailed)
}

func TestUserErrorsAreNotReported(t *testing.T) {
	h := newHarness(t)
	h.addReader("reader")
	h.addMuxer("muxer")
	p := h.stub("sidecar")
	p.fn = func(context.Context, *job.Job) error {
		return fmt.Errorf("open sidecar: %w", fs.ErrNotExist)
	}
	h.add(&stubProvider{p}, 1)

	_, result := h.controller().RunScan(context.Background(), t.TempDir(), t.TempDir())
	if result.State != StateFailed || result.Kind() != services.KindUser {
		t.Fatalf("state=%q kind=%q", result.State, result.Kind())
	}
	if len(h.reporter.errs) != 0 {
		t.Fatal("user errors must not be reported")
	}
}

func TestPanickingPluginFailsStage(t *testing.T) {
	h := newHarness(t)
	h.addReader("reader")
	h.addMuxer("muxer")
	p := h.stub("boom")
	p.fn = func(context.Context, *job.Job) error { panic("nil map") }
	h.add(&stubDetector{p}, 0)
	h.add(&stubNamer{h.stub("namer")}, 0)

	_, result := h.controller().RunScan(context.Background(), t.TempDir(), t.TempDir())
	perr, ok := result.PluginError()
	if result.State != StateFailed || !ok || perr.Name != "boom" {
		t.Fatalf("state=%q err=%v", result.State, result.Err)
	}
	for _, name := range h.calls {
		if name == "namer" {
			t.Fatal("namer ran after panic")
		}
	}
}

func TestScanValidation(t *testing.T) {
	tests := []struct {
		name   string
		source string
		marker error
	}{
		{"empty source", "  ", services.ErrValidation},
		{"missing source", filepath.Join(t.TempDir(), "nope"), services.ErrNotFound},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t)
			h.addReader("reader")
			h.addMuxer("muxer")
			_, result := h.controller().RunScan(context.Background(), tc.source, t.TempDir())
			if result.State != StateFailed || !errors.Is(result.Err, tc.marker) {
				t.Fatalf("state=%q err=%v", result.State, result.Err)
			}
			if result.Kind() != services.KindUser {
				t.Fatalf("Kind = %q", result.Kind())
			}
			if len(h.calls) != 0 {
				t.Fatalf("plugins invoked: %v", h.calls)
			}
			h.assertSingleFinish(StateFailed)
		})
	}
}

func TestDiscReadersFallBackInOrder(t *testing.T) {
	h := newHarness(t)
	first := &stubReader{stub: h.stub("first")}
	h.add(first, 1)
	h.add(&stubReader{stub: h.stub("second"), disc: &job.Disc{VolumeLabel: "SECOND"}}, 2)
	h.add(&stubReader{stub: h.stub("third"), disc: &job.Disc{VolumeLabel: "THIRD"}}, 3)
	h.addMuxer("muxer")

	j, result := h.controller().RunScan(context.Background(), t.TempDir(), t.TempDir())
	if !result.Succeeded() {
		t.Fatalf("scan failed: %v", result.Err)
	}
	if got := fmt.Sprint(h.calls); got != "[first second]" {
		t.Fatalf("calls = %s", got)
	}
	if j.Disc.VolumeLabel != "SECOND" {
		t.Fatalf("disc = %+v", j.Disc)
	}
}

func TestScanFailsWhenNoDiscRecognized(t *testing.T) {
	h := newHarness(t)
	h.add(&stubReader{stub: h.stub("reader")}, 0)
	h.addMuxer("muxer")
	h.add(&stubDetector{h.stub("detector")}, 0)

	_, result := h.controller().RunScan(context.Background(), t.TempDir(), t.TempDir())
	if result.State != StateFailed || !errors.Is(result.Err, services.ErrNotFound) {
		t.Fatalf("state=%q err=%v", result.State, result.Err)
	}
	if got := fmt.Sprint(h.calls); got != "[reader]" {
		t.Fatalf("calls = %s", got)
	}
	h.assertSingleFinish(StateFailed)
}

func TestConvertValidation(t *testing.T) {
	h := newHarness(t)
	h.addReader("reader")
	h.addMuxer("muxer")
	c := h.controller()

	if result := c.RunConvert(context.Background(), nil); result.State != StateFailed || result.Kind() != services.KindUser {
		t.Fatalf("nil job: state=%q kind=%q", result.State, result.Kind())
	}
	result := c.RunConvert(context.Background(), job.New("/src", "/dst"))
	if result.State != StateFailed || !errors.Is(result.Err, services.ErrValidation) {
		t.Fatalf("job without disc: state=%q err=%v", result.State, result.Err)
	}
	if len(h.calls) != 0 {
		t.Fatalf("plugins invoked: %v", h.calls)
	}
}

func TestConvertRequiresEnabledMuxer(t *testing.T) {
	h := newHarness(t)
	h.addReader("reader")
	m := h.addMuxer("muxer")
	entry, _ := h.reg.FindByName(m.Name())
	h.prefs[entry.GUID] = false

	c := h.controller()
	j, _ := c.RunScan(context.Background(), t.TempDir(), t.TempDir())
	result := c.RunConvert(context.Background(), j)
	if result.State != StateFailed || !errors.Is(result.Err, services.ErrConfiguration) {
		t.Fatalf("state=%q err=%v", result.State, result.Err)
	}
}

type strayReporter struct {
	*stub
	other plugin.Plugin
}

func (s *strayReporter) Mux(ctx context.Context, host plugin.Host, j *job.Job) error {
	host.ReportProgress(s.other, 50, "not me")
	host.ReportProgress(nil, 60, "nobody")
	return s.run(ctx, host, s, j)
}

func TestProgressFromInactivePluginIsIgnored(t *testing.T) {
	h := newHarness(t)
	reader := h.addReader("reader")
	h.add(&strayReporter{stub: h.stub("muxer", 100), other: reader}, 0)

	c := h.controller()
	j, _ := c.RunScan(context.Background(), t.TempDir(), t.TempDir())
	h.events.events = nil
	result := c.RunConvert(context.Background(), j)
	if !result.Succeeded() {
		t.Fatalf("convert failed: %v", result.Err)
	}
	progressEvents := h.events.kinds(EventProgress)
	if len(progressEvents) != 1 || progressEvents[0].Plugin != "muxer" {
		t.Fatalf("unexpected progress events %+v", progressEvents)
	}
}
