package builtin

import (
	"context"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"discflow/internal/job"
	"discflow/internal/logging"
	"discflow/internal/plugin"
	"discflow/internal/services"
)

var (
	allDigitsPattern = regexp.MustCompile(`^\d+$`)
	shortCodePattern = regexp.MustCompile(`^[A-Z0-9_]{1,4}$`)
	yearPattern      = regexp.MustCompile(`(?:^|[\s._(\[-])((?:19|20)\d{2})(?:$|[\s._)\]-])`)
)

// longestDetector selects the longest title (largest when durations are
// unknown) and seeds the search query from the volume label.
type longestDetector struct {
	base
}

func newLongestDetector(params plugin.FactoryParams) (plugin.Plugin, error) {
	return &longestDetector{base: newBase(params, "Longest Title Detector")}, nil
}

func (d *longestDetector) AutoDetect(ctx context.Context, host plugin.Host, j *job.Job) error {
	if j.Disc == nil || len(j.Disc.Titles) == 0 {
		return services.Wrap(services.ErrNotFound, "scan", "auto detect", "disc has no titles", nil)
	}
	best := j.Disc.Titles[0]
	for _, t := range j.Disc.Titles[1:] {
		if err := ctx.Err(); err != nil {
			return err
		}
		if longer(t, best) {
			best = t
		}
	}
	j.SelectedTitle = best.Index

	label := j.Disc.VolumeLabel
	if isUnusableLabel(label) {
		label = filepath.Base(j.SourcePath)
	}
	title, year := deriveQuery(label)
	if j.Query.Title == "" {
		j.Query = job.SearchQuery{Title: title, Year: year}
	}
	host.ReportProgress(d, 100, "Selected "+best.Name)
	d.logger.Debug("main title selected",
		logging.Int("title_index", best.Index),
		logging.String("query", j.Query.String()),
	)
	return nil
}

func longer(a, b job.Title) bool {
	if a.Duration != b.Duration {
		return a.Duration > b.Duration
	}
	return a.Size > b.Size
}

// deriveQuery cleans a label into a title-cased query, extracting a trailing
// release year when present.
func deriveQuery(label string) (string, int) {
	year := 0
	if m := yearPattern.FindStringSubmatchIndex(label); m != nil {
		year, _ = strconv.Atoi(label[m[2]:m[3]])
		label = label[:m[2]] + label[m[3]:]
	}
	cleaned := strings.Builder{}
	prevSpace := false
	for _, r := range label {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Unknown Disc", year
	}
	return cases.Title(language.Und).String(strings.ToLower(title)), year
}

// isUnusableLabel reports whether a volume label is a generic or technical
// identifier rather than a content title.
func isUnusableLabel(label string) bool {
	label = strings.TrimSpace(label)
	if label == "" {
		return true
	}

	upper := strings.ToUpper(label)
	patterns := []string{
		"LOGICAL_VOLUME_ID", "VOLUME_ID", "DVD_VIDEO", "BLURAY", "BD_ROM",
		"UNTITLED", "UNKNOWN DISC", "VOLUME_", "VOLUME ID", "DISK_", "TRACK_",
	}
	for _, pattern := range patterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	if allDigitsPattern.MatchString(label) {
		return true
	}
	if shortCodePattern.MatchString(upper) {
		return true
	}
	return (strings.Contains(upper, "DISC") || strings.Contains(upper, "DISK")) && strings.Contains(upper, "_")
}
