package plugin

import (
	"bytes"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// ModuleInfo identifies the module a manifest describes.
type ModuleInfo struct {
	Name      string `toml:"name" yaml:"name"`
	GUID      string `toml:"guid" yaml:"guid"`
	Version   string `toml:"version" yaml:"version"`
	BuildTime string `toml:"build_time" yaml:"build_time"`
}

// ManifestEntry describes one plugin contributed by a module.
type ManifestEntry struct {
	Type        string         `toml:"type" yaml:"type"`
	Name        string         `toml:"name" yaml:"name"`
	GUID        string         `toml:"guid" yaml:"guid"`
	RunOrder    int            `toml:"run_order" yaml:"run_order"`
	Preferences string         `toml:"preferences" yaml:"preferences"`
	Settings    map[string]any `toml:"settings" yaml:"settings"`
}

// Manifest is the parsed content of a module file.
type Manifest struct {
	Module  ModuleInfo      `toml:"module" yaml:"module"`
	Plugins []ManifestEntry `toml:"plugin" yaml:"plugin"`

	moduleGUID uuid.UUID
	buildTime  time.Time
}

// ParseManifest decodes a module file. The format is chosen from the file
// name: YAML for .yaml/.yml, TOML otherwise.
func ParseManifest(name string, data []byte) (Manifest, error) {
	var m Manifest
	switch strings.ToLower(path.Ext(name)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&m); err != nil {
			return Manifest{}, fmt.Errorf("parse yaml manifest: %w", err)
		}
	default:
		dec := toml.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&m); err != nil {
			return Manifest{}, fmt.Errorf("parse toml manifest: %w", err)
		}
	}
	if err := m.validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

func (m *Manifest) validate() error {
	m.Module.Name = strings.TrimSpace(m.Module.Name)
	if m.Module.Name == "" {
		return errors.New("manifest: module.name is required")
	}
	id, err := uuid.Parse(strings.TrimSpace(m.Module.GUID))
	if err != nil {
		return fmt.Errorf("manifest: module.guid: %w", err)
	}
	m.moduleGUID = id
	if raw := strings.TrimSpace(m.Module.BuildTime); raw != "" {
		ts, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			return fmt.Errorf("manifest: module.build_time: %w", err)
		}
		m.buildTime = ts.UTC()
	}
	for i := range m.Plugins {
		entry := &m.Plugins[i]
		entry.Type = normalizeKey(entry.Type)
		entry.Name = strings.TrimSpace(entry.Name)
		if entry.Type == "" {
			return fmt.Errorf("manifest: plugin[%d].type is required", i)
		}
		if g := strings.TrimSpace(entry.GUID); g != "" {
			if _, err := uuid.Parse(g); err != nil {
				return fmt.Errorf("manifest: plugin[%d].guid: %w", i, err)
			}
		}
	}
	return nil
}

// PluginGUID returns the stable identity for entry: the explicit GUID when
// present, otherwise a name-based UUID derived from the module GUID, the
// entry's type key and its name.
func (m Manifest) PluginGUID(entry ManifestEntry) string {
	if g := strings.TrimSpace(entry.GUID); g != "" {
		return strings.ToLower(uuid.MustParse(g).String())
	}
	return uuid.NewSHA1(m.moduleGUID, []byte(entry.Type+"\x00"+entry.Name)).String()
}

// BuildTime returns the parsed module build time (zero when absent).
func (m Manifest) BuildTime() time.Time {
	return m.buildTime
}
