package builtin

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"discflow/internal/job"
	"discflow/internal/pipeline"
	"discflow/internal/plugin"
	"discflow/internal/services"
)

type progressCall struct {
	percent float64
	status  string
}

type recordingHost struct {
	mu    sync.Mutex
	calls []progressCall
}

func (h *recordingHost) ReportProgress(_ plugin.Plugin, percent float64, status string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.calls = append(h.calls, progressCall{percent: percent, status: status})
}

func (h *recordingHost) last() progressCall {
	h.mu.Lock()
	defer h.mu.Unlock()
	if len(h.calls) == 0 {
		return progressCall{}
	}
	return h.calls[len(h.calls)-1]
}

func writeFile(t *testing.T, path string, size int) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(strings.Repeat("x", size)), 0o644); err != nil {
		t.Fatal(err)
	}
}

func mustCreate(t *testing.T, f plugin.Factory, settings map[string]any) plugin.Plugin {
	t.Helper()
	p, err := f(plugin.FactoryParams{Settings: settings})
	if err != nil {
		t.Fatalf("factory: %v", err)
	}
	return p
}

func TestLocationLoadsEveryCapability(t *testing.T) {
	loader := plugin.NewLoader(NewCatalog())
	reg, err := loader.Load(context.Background(), []plugin.Location{Location()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loader.Unload(context.Background())

	if got := len(reg.Failures()); got != 0 {
		t.Fatalf("unexpected load failures: %+v", reg.Failures())
	}
	for _, c := range plugin.Capabilities() {
		if reg.CountByCapability(c) != 1 {
			t.Fatalf("capability %s count = %d, want 1", c, reg.CountByCapability(c))
		}
	}
	entry, ok := reg.Lookup("c5d1e0a2-6b7f-4f0e-8a1d-2b3c4d5e6f05")
	if !ok || entry.Capability != plugin.CapabilityMuxer || entry.Plugin.Name() != "Stream Copy Muxer" {
		t.Fatalf("copy muxer entry = %+v, ok=%v", entry.Descriptor, ok)
	}
	if entry.Version != "0.1.0" || !strings.HasPrefix(entry.Origin, "builtin:") {
		t.Fatalf("descriptor = %+v", entry.Descriptor)
	}
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	catalog := NewCatalog()
	if err := Register(catalog); err == nil {
		t.Fatal("expected duplicate registration to fail")
	}
}

func TestDirReaderReadsStreams(t *testing.T) {
	root := filepath.Join(t.TempDir(), "MY_MOVIE_2004")
	writeFile(t, filepath.Join(root, "BDMV", "STREAM", "00001.m2ts"), 10)
	writeFile(t, filepath.Join(root, "BDMV", "STREAM", "00002.M2TS"), 30)
	writeFile(t, filepath.Join(root, "notes.txt"), 5)

	r := mustCreate(t, newDirReader, nil).(plugin.DiscReader)
	host := &recordingHost{}
	disc, err := r.ReadDisc(context.Background(), host, root)
	if err != nil {
		t.Fatalf("ReadDisc: %v", err)
	}
	if disc == nil || len(disc.Titles) != 2 {
		t.Fatalf("disc = %+v", disc)
	}
	if disc.VolumeLabel != "MY_MOVIE_2004" {
		t.Fatalf("volume label = %q", disc.VolumeLabel)
	}
	if disc.Titles[1].Name != "BDMV/STREAM/00002.M2TS" || disc.Titles[1].Size != 30 {
		t.Fatalf("second title = %+v", disc.Titles[1])
	}
	if host.last().percent != 100 {
		t.Fatalf("final progress = %+v", host.last())
	}
}

func TestDirReaderNoStreamsReturnsNil(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "readme.md"), 1)

	r := mustCreate(t, newDirReader, map[string]any{"extensions": "iso"}).(plugin.DiscReader)
	disc, err := r.ReadDisc(context.Background(), &recordingHost{}, root)
	if err != nil || disc != nil {
		t.Fatalf("ReadDisc = %+v, %v; want nil, nil", disc, err)
	}
}

func TestDirReaderCanceled(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "a.mkv"), 1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r := mustCreate(t, newDirReader, nil).(plugin.DiscReader)
	if _, err := r.ReadDisc(ctx, &recordingHost{}, root); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestVolumeLabel(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/discs/Heat", "Heat"},
		{"/discs/Heat/BDMV", "Heat"},
		{"/discs/Heat/BDMV/STREAM", "Heat"},
		{"/discs/Alien/VIDEO_TS", "Alien"},
	}
	for _, tt := range tests {
		if got := volumeLabel(filepath.FromSlash(tt.path)); got != tt.want {
			t.Errorf("volumeLabel(%q) = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestLongestDetectorSelectsTitleAndQuery(t *testing.T) {
	j := job.New("/discs/x", "/out")
	j.Disc = &job.Disc{
		VolumeLabel: "THE_GREAT_ESCAPE_1963",
		Titles: []job.Title{
			{Index: 0, Name: "short", Duration: time.Minute, Size: 900},
			{Index: 1, Name: "main", Duration: 2 * time.Hour, Size: 100},
			{Index: 2, Name: "extras", Size: 5000},
		},
	}
	d := mustCreate(t, newLongestDetector, nil).(plugin.AutoDetector)
	if err := d.AutoDetect(context.Background(), &recordingHost{}, j); err != nil {
		t.Fatalf("AutoDetect: %v", err)
	}
	if j.SelectedTitle != 1 {
		t.Fatalf("selected title = %d, want 1", j.SelectedTitle)
	}
	if j.Query.Title != "The Great Escape" || j.Query.Year != 1963 {
		t.Fatalf("query = %+v", j.Query)
	}
}

func TestLongestDetectorEmptyDisc(t *testing.T) {
	j := job.New("/discs/x", "/out")
	j.Disc = &job.Disc{}
	d := mustCreate(t, newLongestDetector, nil).(plugin.AutoDetector)
	err := d.AutoDetect(context.Background(), &recordingHost{}, j)
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestDeriveQuery(t *testing.T) {
	tests := []struct {
		label string
		title string
		year  int
	}{
		{"BLADE_RUNNER", "Blade Runner", 0},
		{"heat.1995", "Heat", 1995},
		{"Alien (1979)", "Alien", 1979},
		{"___", "Unknown Disc", 0},
	}
	for _, tt := range tests {
		title, year := deriveQuery(tt.label)
		if title != tt.title || year != tt.year {
			t.Errorf("deriveQuery(%q) = %q, %d; want %q, %d", tt.label, title, year, tt.title, tt.year)
		}
	}
}

func TestIsUnusableLabel(t *testing.T) {
	tests := []struct {
		label string
		want  bool
	}{
		{"", true},
		{"LOGICAL_VOLUME_ID", true},
		{"12345", true},
		{"ABC", true},
		{"DISC_1", true},
		{"BLADE_RUNNER", false},
		{"The Thing", false},
	}
	for _, tt := range tests {
		if got := isUnusableLabel(tt.label); got != tt.want {
			t.Errorf("isUnusableLabel(%q) = %v, want %v", tt.label, got, tt.want)
		}
	}
}

func TestSidecarProvider(t *testing.T) {
	tests := []struct {
		name      string
		file      string
		body      string
		wantTitle []string
		wantErr   error
	}{
		{name: "absent"},
		{
			name:      "toml",
			file:      "discflow.toml",
			body:      "title = \"Heat\"\nyear = 1995\nkind = \"movie\"\n\n[[alternates]]\ntitle = \"Heat (Director's Cut)\"\n",
			wantTitle: []string{"Heat", "Heat (Director's Cut)"},
		},
		{
			name:      "yaml",
			file:      "discflow.yaml",
			body:      "title: Alien\nyear: 1979\n",
			wantTitle: []string{"Alien"},
		},
		{
			name:      "yaml alternates",
			file:      "discflow.yaml",
			body:      "title: Heat\nyear: 1995\nalternates:\n  - title: Heat (Director's Cut)\n",
			wantTitle: []string{"Heat", "Heat (Director's Cut)"},
		},
		{
			name:    "unknown key",
			file:    "discflow.toml",
			body:    "title = \"Heat\"\ndirector = \"Mann\"\n",
			wantErr: services.ErrValidation,
		},
		{
			name:    "missing title",
			file:    "discflow.yml",
			body:    "year: 2001\n",
			wantErr: services.ErrValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.file != "" {
				if err := os.WriteFile(filepath.Join(dir, tt.file), []byte(tt.body), 0o644); err != nil {
					t.Fatal(err)
				}
			}
			j := job.New(dir, t.TempDir())
			p := mustCreate(t, newSidecarProvider, nil).(plugin.MetadataProvider)
			err := p.GetMetadata(context.Background(), &recordingHost{}, j)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetMetadata: %v", err)
			}
			var titles []string
			for _, c := range j.Candidates {
				titles = append(titles, c.Title)
			}
			if strings.Join(titles, "|") != strings.Join(tt.wantTitle, "|") {
				t.Fatalf("candidates = %v, want %v", titles, tt.wantTitle)
			}
			if len(tt.wantTitle) > 0 && j.Selected != 0 {
				t.Fatalf("selected = %d, want 0", j.Selected)
			}
		})
	}
}

func TestNamer(t *testing.T) {
	tests := []struct {
		name  string
		setup func(*job.Job)
		want  string
	}{
		{
			name:  "metadata",
			setup: func(j *job.Job) { j.AddCandidate(job.Metadata{Title: "Alien: Covenant", Year: 2017}) },
			want:  "Alien Covenant (2017).mkv",
		},
		{
			name:  "query",
			setup: func(j *job.Job) { j.Query = job.SearchQuery{Title: "heat"} },
			want:  "Heat.mkv",
		},
		{
			name:  "volume label",
			setup: func(j *job.Job) { j.Disc = &job.Disc{VolumeLabel: "BLADE_RUNNER"} },
			want:  "Blade Runner.mkv",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			j := job.New("/discs/x", "/out")
			tt.setup(j)
			n := mustCreate(t, newNamer, nil).(plugin.NameProvider)
			if err := n.Rename(context.Background(), &recordingHost{}, j); err != nil {
				t.Fatalf("Rename: %v", err)
			}
			if j.OutputName != tt.want {
				t.Fatalf("output name = %q, want %q", j.OutputName, tt.want)
			}
			if j.OutputPath != filepath.Join("/out", tt.want) {
				t.Fatalf("output path = %q", j.OutputPath)
			}
		})
	}
}

func TestNamerWithoutTitleFails(t *testing.T) {
	j := job.New("/discs/x", "/out")
	j.Disc = &job.Disc{VolumeLabel: "VOLUME_ID"}
	n := mustCreate(t, newNamer, map[string]any{"extension": "m2ts"}).(plugin.NameProvider)
	if err := n.Rename(context.Background(), &recordingHost{}, j); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestSanitizeFileName(t *testing.T) {
	tests := map[string]string{
		"AC/DC: Live":     "AC DC Live",
		"  spaced   out ": "Spaced Out",
		"Mr. Robot.":      "Mr. Robot",
		"???":             "",
	}
	for in, want := range tests {
		if got := sanitizeFileName(in); got != want {
			t.Errorf("sanitizeFileName(%q) = %q, want %q", in, got, want)
		}
	}
}

func scannedJob(t *testing.T, size int) *job.Job {
	t.Helper()
	src := filepath.Join(t.TempDir(), "00001.m2ts")
	writeFile(t, src, size)
	j := job.New(filepath.Dir(src), filepath.Join(t.TempDir(), "out"))
	j.Disc = &job.Disc{Titles: []job.Title{{Index: 0, Name: "00001.m2ts", Path: src, Size: int64(size)}}}
	j.SelectedTitle = 0
	j.SetOutputName("Movie.mkv")
	return j
}

func TestCopyMuxer(t *testing.T) {
	j := scannedJob(t, 64)
	m := mustCreate(t, newCopyMuxer, nil).(plugin.Muxer)
	host := &recordingHost{}
	if err := m.Mux(context.Background(), host, j); err != nil {
		t.Fatalf("Mux: %v", err)
	}
	info, err := os.Stat(j.OutputPath)
	if err != nil || info.Size() != 64 {
		t.Fatalf("output stat = %v, %v", info, err)
	}
	if host.last().percent != 100 {
		t.Fatalf("final progress = %+v", host.last())
	}
}

func TestCopyMuxerOverwrite(t *testing.T) {
	j := scannedJob(t, 8)
	writeFile(t, j.OutputPath, 2)
	m := mustCreate(t, newCopyMuxer, nil).(plugin.Muxer)

	err := m.Mux(context.Background(), &recordingHost{}, j)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation for existing output, got %v", err)
	}

	j.SetAttribute(AttributeOverwrite, "true")
	if err := m.Mux(context.Background(), &recordingHost{}, j); err != nil {
		t.Fatalf("Mux with overwrite: %v", err)
	}
	if info, _ := os.Stat(j.OutputPath); info.Size() != 8 {
		t.Fatalf("output size = %d, want 8", info.Size())
	}
}

func TestCopyMuxerInsufficientSpace(t *testing.T) {
	j := scannedJob(t, 16)
	m := mustCreate(t, newCopyMuxer, nil).(*copyMuxer)
	m.freeSpace = func(string) (uint64, error) { return 4, nil }

	err := m.Mux(context.Background(), &recordingHost{}, j)
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	if _, statErr := os.Stat(j.OutputPath); !os.IsNotExist(statErr) {
		t.Fatalf("output should not exist: %v", statErr)
	}
}

func TestCopyMuxerRequiresSelection(t *testing.T) {
	j := job.New("/discs/x", t.TempDir())
	m := mustCreate(t, newCopyMuxer, nil).(plugin.Muxer)
	if err := m.Mux(context.Background(), &recordingHost{}, j); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
}

func TestManifestWriter(t *testing.T) {
	j := scannedJob(t, 4)
	j.AddCandidate(job.Metadata{Provider: "sidecar", Title: "Movie", Year: 2020})
	w := mustCreate(t, newManifestWriter, nil).(*manifestWriter)
	w.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	if err := os.MkdirAll(filepath.Dir(j.OutputPath), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := w.PostProcess(context.Background(), &recordingHost{}, j); err != nil {
		t.Fatalf("PostProcess: %v", err)
	}
	data, err := os.ReadFile(j.OutputPath + ManifestSuffix)
	if err != nil {
		t.Fatal(err)
	}
	var doc jobManifest
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("decode manifest: %v", err)
	}
	if doc.JobID != j.ID || doc.Metadata == nil || doc.Metadata.Title != "Movie" || doc.Title == nil {
		t.Fatalf("manifest = %+v", doc)
	}
	if !doc.WrittenAt.Equal(w.now()) {
		t.Fatalf("written_at = %v", doc.WrittenAt)
	}
}

func TestBuiltinsEndToEnd(t *testing.T) {
	root := filepath.Join(t.TempDir(), "HEAT")
	writeFile(t, filepath.Join(root, "BDMV", "STREAM", "00001.m2ts"), 12)
	writeFile(t, filepath.Join(root, "BDMV", "STREAM", "00002.m2ts"), 48)
	if err := os.WriteFile(filepath.Join(root, "discflow.toml"), []byte("title = \"Heat\"\nyear = 1995\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	dest := filepath.Join(t.TempDir(), "library")

	loader := plugin.NewLoader(NewCatalog())
	reg, err := loader.Load(context.Background(), []plugin.Location{Location()})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	defer loader.Unload(context.Background())

	ctrl := pipeline.NewController(reg)
	j, scan := ctrl.RunScan(context.Background(), root, dest)
	if !scan.Succeeded() {
		t.Fatalf("scan failed: %v", scan.Err)
	}
	if j.OutputName != "Heat (1995).mkv" {
		t.Fatalf("output name = %q", j.OutputName)
	}
	if title, _ := j.Title(); title.Size != 48 {
		t.Fatalf("selected title = %+v", title)
	}

	convert := ctrl.RunConvert(context.Background(), j)
	if !convert.Succeeded() {
		t.Fatalf("convert failed: %v", convert.Err)
	}
	for _, path := range []string{j.OutputPath, j.OutputPath + ManifestSuffix} {
		if _, err := os.Stat(path); err != nil {
			t.Fatalf("expected %s: %v", path, err)
		}
	}
}
