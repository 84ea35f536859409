package builtin

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"discflow/internal/fileutil"
	"discflow/internal/job"
	"discflow/internal/logging"
	"discflow/internal/plugin"
	"discflow/internal/services"
)

// copyMuxer writes the selected title stream to the output path unchanged.
type copyMuxer struct {
	base
	freeSpace func(string) (uint64, error)
}

func newCopyMuxer(params plugin.FactoryParams) (plugin.Plugin, error) {
	return &copyMuxer{base: newBase(params, "Stream Copy Muxer"), freeSpace: fileutil.FreeSpace}, nil
}

func (m *copyMuxer) Mux(ctx context.Context, host plugin.Host, j *job.Job) error {
	title, ok := j.Title()
	if !ok {
		return services.Wrap(services.ErrValidation, "convert", "mux", "no title selected", nil)
	}
	if j.OutputPath == "" {
		return services.Wrap(services.ErrValidation, "convert", "mux", "output path not set", nil)
	}

	dir := filepath.Dir(j.OutputPath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "convert", "create destination", dir, err)
	}
	if err := fileutil.CheckWritable(dir); err != nil {
		return services.WithHint(
			services.Wrap(services.ErrConfiguration, "convert", "check destination", dir+" is not writable", err),
			"Choose a destination directory you can write to",
		)
	}
	if free, err := m.freeSpace(dir); err == nil && title.Size > 0 && uint64(title.Size) > free {
		return services.Wrap(services.ErrValidation, "convert", "check destination",
			fmt.Sprintf("need %d bytes, %d available", title.Size, free), nil)
	} else if err != nil && !errors.Is(err, errors.ErrUnsupported) {
		m.logger.Debug("free space check skipped", logging.Error(err))
	}

	overwrite, _ := strconv.ParseBool(attributeOr(j, AttributeOverwrite, "false"))
	opts := fileutil.CopyOptions{
		Overwrite: overwrite,
		Progress: func(written, total int64) {
			if total <= 0 {
				return
			}
			host.ReportProgress(m, float64(written)/float64(total)*100, "Copying "+title.Name)
		},
	}
	if err := fileutil.CopyFileVerified(ctx, title.Path, j.OutputPath, opts); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if errors.Is(err, fileutil.ErrExists) {
			return services.WithHint(
				services.Wrap(services.ErrValidation, "convert", "mux", "output already exists", err),
				"Re-run with --yes or set output.overwrite to replace it",
			)
		}
		return services.Wrap(services.ErrExternalTool, "convert", "mux", "copy "+title.Name, err)
	}
	m.logger.Info("title copied",
		logging.String("output", j.OutputPath),
		logging.Int64("bytes", title.Size),
	)
	return nil
}

func attributeOr(j *job.Job, key, fallback string) string {
	if v, ok := j.Attribute(key); ok && v != "" {
		return v
	}
	return fallback
}
