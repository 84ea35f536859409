package builtin

import (
	"context"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"discflow/internal/job"
	"discflow/internal/plugin"
	"discflow/internal/services"
)

// namer names the output "Title (Year).ext" from the selected metadata,
// falling back to the search query and then the volume label.
type namer struct {
	base
	extension string
}

func newNamer(params plugin.FactoryParams) (plugin.Plugin, error) {
	ext := strings.ToLower(params.Setting("extension", ".mkv"))
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return &namer{base: newBase(params, "Title Year Namer"), extension: ext}, nil
}

func (n *namer) Rename(ctx context.Context, host plugin.Host, j *job.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j.OutputName != "" {
		host.ReportProgress(n, 100, "Output name already set")
		return nil
	}

	var title string
	var year int
	switch m, ok := j.SelectedMetadata(); {
	case ok && strings.TrimSpace(m.Title) != "":
		title, year = m.Title, m.Year
	case strings.TrimSpace(j.Query.Title) != "":
		title, year = j.Query.Title, j.Query.Year
	case j.Disc != nil && !isUnusableLabel(j.Disc.VolumeLabel):
		title, _ = deriveQuery(j.Disc.VolumeLabel)
	}

	name := sanitizeFileName(title)
	if name == "" {
		return services.Wrap(services.ErrValidation, "convert", "rename", "no usable title for output name", nil)
	}
	if year > 0 {
		name = fmt.Sprintf("%s (%d)", name, year)
	}
	j.SetOutputName(name + n.extension)
	host.ReportProgress(n, 100, "Named "+j.OutputName)
	return nil
}

// sanitizeFileName strips path separators and characters rejected by common
// filesystems, collapses whitespace and title-cases all-lowercase input.
func sanitizeFileName(value string) string {
	var b strings.Builder
	prevSpace := false
	for _, r := range strings.TrimSpace(value) {
		switch {
		case strings.ContainsRune(`/\:*?"<>|`, r), unicode.IsControl(r):
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
		case unicode.IsSpace(r):
			if !prevSpace {
				b.WriteRune(' ')
				prevSpace = true
			}
		default:
			b.WriteRune(r)
			prevSpace = false
		}
	}
	out := strings.Trim(b.String(), " .")
	if out != "" && out == strings.ToLower(out) {
		out = cases.Title(language.Und).String(out)
	}
	return out
}
