package builtin

import (
	"bytes"
	"context"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"discflow/internal/job"
	"discflow/internal/logging"
	"discflow/internal/plugin"
	"discflow/internal/services"
)

// SidecarNames lists the metadata files looked up in the source folder, in
// priority order.
var SidecarNames = []string{"discflow.toml", "discflow.yaml", "discflow.yml"}

// sidecarFile is the user-written metadata file. Alternates become extra
// candidates after the primary entry.
type sidecarFile struct {
	Title      string         `toml:"title" yaml:"title"`
	Year       int            `toml:"year" yaml:"year"`
	Kind       string         `toml:"kind" yaml:"kind"`
	Overview   string         `toml:"overview" yaml:"overview"`
	Alternates []sidecarEntry `toml:"alternates" yaml:"alternates"`
}

type sidecarEntry struct {
	Title    string `toml:"title" yaml:"title"`
	Year     int    `toml:"year" yaml:"year"`
	Kind     string `toml:"kind" yaml:"kind"`
	Overview string `toml:"overview" yaml:"overview"`
}

type sidecarProvider struct {
	base
}

func newSidecarProvider(params plugin.FactoryParams) (plugin.Plugin, error) {
	return &sidecarProvider{base: newBase(params, "Sidecar Metadata")}, nil
}

func (s *sidecarProvider) GetMetadata(ctx context.Context, host plugin.Host, j *job.Job) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	path, data, err := findSidecar(j.SourcePath)
	if err != nil {
		return services.Wrap(services.ErrExternalTool, "scan", "read sidecar", path, err)
	}
	if data == nil {
		host.ReportProgress(s, 100, "No sidecar metadata")
		return nil
	}

	meta, err := parseSidecar(path, data)
	if err != nil {
		return services.WithHint(
			services.Wrap(services.ErrValidation, "scan", "parse sidecar", path, err),
			"Fix or remove the sidecar file",
		)
	}
	added := 0
	for _, entry := range meta {
		if strings.TrimSpace(entry.Title) == "" {
			continue
		}
		j.AddCandidate(job.Metadata{
			Provider: "sidecar",
			Title:    strings.TrimSpace(entry.Title),
			Year:     entry.Year,
			Kind:     strings.TrimSpace(entry.Kind),
			Overview: strings.TrimSpace(entry.Overview),
		})
		added++
	}
	s.logger.Info("sidecar metadata loaded",
		logging.String("path", path),
		logging.Int("candidates", added),
	)
	host.ReportProgress(s, 100, "Loaded sidecar metadata")
	return nil
}

// findSidecar returns the first sidecar next to the source. A nil payload
// means no sidecar exists.
func findSidecar(sourcePath string) (string, []byte, error) {
	dir := sourcePath
	if info, err := os.Stat(sourcePath); err == nil && !info.IsDir() {
		dir = filepath.Dir(sourcePath)
	}
	for _, name := range SidecarNames {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return path, nil, err
		}
		return path, data, nil
	}
	return "", nil, nil
}

func parseSidecar(path string, data []byte) ([]sidecarEntry, error) {
	var file sidecarFile
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil && !errors.Is(err, io.EOF) {
			return nil, err
		}
	default:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&file); err != nil {
			return nil, err
		}
	}
	if strings.TrimSpace(file.Title) == "" && len(file.Alternates) == 0 {
		return nil, errors.New("sidecar has no title")
	}
	entries := make([]sidecarEntry, 0, 1+len(file.Alternates))
	entries = append(entries, sidecarEntry{Title: file.Title, Year: file.Year, Kind: file.Kind, Overview: file.Overview})
	return append(entries, file.Alternates...), nil
}
