package builtin

import (
	"context"
	"encoding/json"
	"os"
	"time"

	"discflow/internal/job"
	"discflow/internal/plugin"
	"discflow/internal/services"
)

// ManifestSuffix is appended to the output path for the job manifest.
const ManifestSuffix = ".discflow.json"

// jobManifest is the JSON document written beside each output.
type jobManifest struct {
	JobID       string            `json:"job_id"`
	Source      string            `json:"source"`
	Output      string            `json:"output"`
	CreatedAt   time.Time         `json:"created_at"`
	WrittenAt   time.Time         `json:"written_at"`
	VolumeLabel string            `json:"volume_label,omitempty"`
	Title       *job.Title        `json:"title,omitempty"`
	Metadata    *job.Metadata     `json:"metadata,omitempty"`
	Attributes  map[string]string `json:"attributes,omitempty"`
}

type manifestWriter struct {
	base
	now func() time.Time
}

func newManifestWriter(params plugin.FactoryParams) (plugin.Plugin, error) {
	return &manifestWriter{base: newBase(params, "Job Manifest Writer"), now: time.Now}, nil
}

func (w *manifestWriter) PostProcess(ctx context.Context, host plugin.Host, j *job.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if j.OutputPath == "" {
		return services.Wrap(services.ErrValidation, "convert", "write manifest", "output path not set", nil)
	}
	doc := jobManifest{
		JobID:      j.ID,
		Source:     j.SourcePath,
		Output:     j.OutputPath,
		CreatedAt:  j.CreatedAt,
		WrittenAt:  w.now().UTC(),
		Attributes: j.Attributes,
	}
	if j.Disc != nil {
		doc.VolumeLabel = j.Disc.VolumeLabel
	}
	if t, ok := j.Title(); ok {
		doc.Title = &t
	}
	if m, ok := j.SelectedMetadata(); ok {
		doc.Metadata = &m
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return services.Wrap(services.ErrTransient, "convert", "encode manifest", "", err)
	}
	path := j.OutputPath + ManifestSuffix
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return services.Wrap(services.ErrExternalTool, "convert", "write manifest", path, err)
	}
	host.ReportProgress(w, 100, "Wrote manifest")
	return nil
}
