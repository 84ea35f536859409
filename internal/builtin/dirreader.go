package builtin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"discflow/internal/job"
	"discflow/internal/logging"
	"discflow/internal/plugin"
	"discflow/internal/services"
)

// dirReader treats a folder (an extracted disc image or BDMV/VIDEO_TS tree)
// as a disc with one title per stream or playlist file.
type dirReader struct {
	base
	extensions []string
}

func newDirReader(params plugin.FactoryParams) (plugin.Plugin, error) {
	raw := params.Setting("extensions", ".m2ts,.mkv,.mpls,.vob,.ts")
	var exts []string
	for _, ext := range strings.Split(raw, ",") {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext == "" {
			continue
		}
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		exts = append(exts, ext)
	}
	if len(exts) == 0 {
		return nil, errors.New("dirreader: no extensions configured")
	}
	return &dirReader{base: newBase(params, "Disc Folder Reader"), extensions: exts}, nil
}

func (r *dirReader) ReadDisc(ctx context.Context, host plugin.Host, sourcePath string) (*job.Disc, error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, services.Wrap(services.ErrNotFound, "scan", "read disc", "source not accessible", err)
	}
	if !info.IsDir() {
		if !r.matches(sourcePath) {
			return nil, nil
		}
		host.ReportProgress(r, 100, "Read 1 title")
		return &job.Disc{
			VolumeLabel: strings.TrimSuffix(filepath.Base(sourcePath), filepath.Ext(sourcePath)),
			SourcePath:  sourcePath,
			Titles:      []job.Title{{Index: 0, Name: filepath.Base(sourcePath), Path: sourcePath, Size: info.Size()}},
		}, nil
	}

	var candidates []string
	err = filepath.WalkDir(sourcePath, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if !d.IsDir() && r.matches(path) {
			candidates = append(candidates, path)
		}
		return nil
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, services.Wrap(services.ErrExternalTool, "scan", "walk disc", sourcePath, err)
	}
	if len(candidates) == 0 {
		r.logger.Debug("no stream files found", logging.String("source", sourcePath))
		return nil, nil
	}
	slices.Sort(candidates)

	disc := &job.Disc{VolumeLabel: volumeLabel(sourcePath), SourcePath: sourcePath}
	for i, path := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		fi, err := os.Stat(path)
		if err != nil {
			return nil, services.Wrap(services.ErrExternalTool, "scan", "stat title", path, err)
		}
		rel, relErr := filepath.Rel(sourcePath, path)
		if relErr != nil {
			rel = filepath.Base(path)
		}
		disc.Titles = append(disc.Titles, job.Title{Index: i, Name: filepath.ToSlash(rel), Path: path, Size: fi.Size()})
		host.ReportProgress(r, float64(i+1)/float64(len(candidates))*100, fmt.Sprintf("Read title %d of %d", i+1, len(candidates)))
	}
	r.logger.Info("disc folder read",
		logging.String("volume_label", disc.VolumeLabel),
		logging.Int("titles", len(disc.Titles)),
	)
	return disc, nil
}

func (r *dirReader) matches(path string) bool {
	return slices.Contains(r.extensions, strings.ToLower(filepath.Ext(path)))
}

// volumeLabel returns the folder name, skipping BDMV/VIDEO_TS wrappers.
func volumeLabel(sourcePath string) string {
	dir := filepath.Clean(sourcePath)
	for {
		base := filepath.Base(dir)
		switch strings.ToUpper(base) {
		case "BDMV", "VIDEO_TS", "STREAM", "PLAYLIST":
			parent := filepath.Dir(dir)
			if parent == dir {
				return base
			}
			dir = parent
			continue
		}
		return base
	}
}
