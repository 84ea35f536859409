package job

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Title is one playable stream or playlist found on a disc.
type Title struct {
	Index    int           `json:"index"`
	Name     string        `json:"name"`
	Path     string        `json:"path"`
	Duration time.Duration `json:"duration,omitempty"`
	Size     int64         `json:"size"`
}

// Disc is the scan result produced by a DiscReader.
type Disc struct {
	VolumeLabel string  `json:"volume_label"`
	SourcePath  string  `json:"source_path"`
	Titles      []Title `json:"titles"`
}

// Title returns the title with the given index.
func (d *Disc) Title(index int) (Title, bool) {
	if d == nil {
		return Title{}, false
	}
	for _, t := range d.Titles {
		if t.Index == index {
			return t, true
		}
	}
	return Title{}, false
}

// TotalSize sums the size of every title.
func (d *Disc) TotalSize() int64 {
	if d == nil {
		return 0
	}
	var total int64
	for _, t := range d.Titles {
		total += t.Size
	}
	return total
}

// SearchQuery is the title/year pair metadata providers look up.
type SearchQuery struct {
	Title string `json:"title"`
	Year  int    `json:"year,omitempty"`
}

// String renders the query as "Title (Year)".
func (q SearchQuery) String() string {
	title := strings.TrimSpace(q.Title)
	if q.Year > 0 {
		return fmt.Sprintf("%s (%d)", title, q.Year)
	}
	return title
}

// Metadata is one candidate returned by a MetadataProvider.
type Metadata struct {
	Provider string `json:"provider"`
	Title    string `json:"title"`
	Year     int    `json:"year,omitempty"`
	Kind     string `json:"kind,omitempty"`
	Overview string `json:"overview,omitempty"`
}

// Job carries a single conversion request through the scan and convert stages.
type Job struct {
	ID              string
	SourcePath      string
	DestinationPath string
	CreatedAt       time.Time

	Disc          *Disc
	Query         SearchQuery
	Candidates    []Metadata
	Selected      int
	SelectedTitle int
	OutputName    string
	OutputPath    string

	Attributes map[string]string
}

// New constructs a Job with a fresh identifier. Selections start unset.
func New(sourcePath, destinationPath string) *Job {
	return &Job{
		ID:              uuid.NewString(),
		SourcePath:      strings.TrimSpace(sourcePath),
		DestinationPath: strings.TrimSpace(destinationPath),
		CreatedAt:       time.Now().UTC(),
		Selected:        -1,
		SelectedTitle:   -1,
		Attributes:      make(map[string]string),
	}
}

// AddCandidate appends a metadata candidate. The first candidate becomes the
// selection when nothing is selected yet.
func (j *Job) AddCandidate(m Metadata) {
	j.Candidates = append(j.Candidates, m)
	if j.Selected < 0 {
		j.Selected = len(j.Candidates) - 1
	}
}

// SelectedMetadata returns the currently selected metadata candidate.
func (j *Job) SelectedMetadata() (Metadata, bool) {
	if j == nil || j.Selected < 0 || j.Selected >= len(j.Candidates) {
		return Metadata{}, false
	}
	return j.Candidates[j.Selected], true
}

// Title returns the title chosen for conversion.
func (j *Job) Title() (Title, bool) {
	if j == nil || j.Disc == nil || j.SelectedTitle < 0 {
		return Title{}, false
	}
	return j.Disc.Title(j.SelectedTitle)
}

// SetOutputName records the output file name and resolves the full output path
// under the destination directory.
func (j *Job) SetOutputName(name string) {
	j.OutputName = strings.TrimSpace(name)
	if j.OutputName == "" {
		j.OutputPath = ""
		return
	}
	j.OutputPath = filepath.Join(j.DestinationPath, j.OutputName)
}

// SetAttribute stores a free-form value for later plugins.
func (j *Job) SetAttribute(key, value string) {
	if j.Attributes == nil {
		j.Attributes = make(map[string]string)
	}
	j.Attributes[key] = value
}

// Attribute returns a free-form value written by an earlier plugin.
func (j *Job) Attribute(key string) (string, bool) {
	if j == nil || j.Attributes == nil {
		return "", false
	}
	v, ok := j.Attributes[key]
	return v, ok
}

// DisplayName returns the most descriptive label available for logs and notifications.
func (j *Job) DisplayName() string {
	if j == nil {
		return ""
	}
	if m, ok := j.SelectedMetadata(); ok && strings.TrimSpace(m.Title) != "" {
		return SearchQuery{Title: m.Title, Year: m.Year}.String()
	}
	if q := j.Query.String(); q != "" {
		return q
	}
	if j.Disc != nil && strings.TrimSpace(j.Disc.VolumeLabel) != "" {
		return j.Disc.VolumeLabel
	}
	return filepath.Base(j.SourcePath)
}
