package plugin

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"

	"discflow/internal/logging"
)

// DefaultSuffixes are the module file name endings recognized when no
// suffixes are configured.
var DefaultSuffixes = []string{".plugin.toml", ".plugin.yaml", ".plugin.yml"}

// Location is one place modules are discovered from.
type Location struct {
	// Name labels the location in logs and origin strings.
	Name string
	FS   fs.FS
	// Root is the on-disk directory backing FS, empty for embedded locations.
	Root string
	// Required locations hold modules shipped with discflow.
	Required bool
}

// DirLocation returns a location backed by an on-disk directory.
func DirLocation(dir string, required bool) Location {
	return Location{Name: dir, FS: os.DirFS(dir), Root: dir, Required: required}
}

func (l Location) origin(rel string) string {
	if l.Root != "" {
		return filepath.Join(l.Root, filepath.FromSlash(rel))
	}
	return l.Name + ":" + rel
}

// Loader discovers modules and builds the Registry.
type Loader struct {
	catalog  *Catalog
	logger   *slog.Logger
	suffixes []string
	lookup   EnabledLookup

	mu       sync.Mutex
	registry *Registry
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the logger used for discovery diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loader) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// WithSuffixes overrides the module file name suffixes.
func WithSuffixes(suffixes []string) Option {
	return func(l *Loader) {
		cleaned := make([]string, 0, len(suffixes))
		for _, s := range suffixes {
			if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
				cleaned = append(cleaned, s)
			}
		}
		if len(cleaned) > 0 {
			l.suffixes = cleaned
		}
	}
}

// WithEnabledLookup injects the preference lookup handed to the registry.
func WithEnabledLookup(lookup EnabledLookup) Option {
	return func(l *Loader) {
		l.lookup = lookup
	}
}

// NewLoader constructs a loader instantiating plugins from catalog.
func NewLoader(catalog *Catalog, opts ...Option) *Loader {
	l := &Loader{
		catalog:  catalog,
		logger:   logging.NewNop(),
		suffixes: append([]string(nil), DefaultSuffixes...),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.NewComponentLogger(l.logger, "plugin-loader")
	return l
}

// Registry returns the currently loaded registry, or nil.
func (l *Loader) Registry() *Registry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.registry
}

// Load scans locations in order and returns the populated registry. Failures
// of individual modules are logged and recorded in Registry.Failures. Load
// fails with *RequiredCapabilityError when no disc reader or no muxer was
// loaded; in that case every instantiated plugin is released.
func (l *Loader) Load(ctx context.Context, locations []Location) (*Registry, error) {
	if l.catalog == nil {
		return nil, errors.New("plugin loader: catalog is required")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.registry != nil {
		return nil, ErrAlreadyLoaded
	}

	reg := NewRegistry(l.lookup)
	for _, loc := range locations {
		if err := ctx.Err(); err != nil {
			l.release(reg)
			return nil, err
		}
		if err := l.scanLocation(ctx, reg, loc); err != nil {
			l.release(reg)
			return nil, err
		}
	}

	if missing := reg.missing(); len(missing) > 0 {
		err := &RequiredCapabilityError{Missing: missing}
		l.logger.Error("plugin verification failed",
			logging.String(logging.FieldEventType, "plugin_verification_failed"),
			logging.String(logging.FieldErrorHint, "install a module providing the missing capability"),
			logging.Error(err),
		)
		l.release(reg)
		return nil, err
	}

	l.logger.Info("plugins loaded",
		logging.String(logging.FieldEventType, "plugins_loaded"),
		logging.Int("count", reg.Count()),
		logging.Int("failures", len(reg.failures)),
	)
	l.registry = reg
	return reg, nil
}

// Unload releases every plugin and clears the registry. It is safe to call
// repeatedly; plugin errors and panics are logged, not returned.
func (l *Loader) Unload(ctx context.Context) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.registry == nil {
		return
	}
	count := l.registry.Count()
	l.release(l.registry)
	l.registry = nil
	logging.WithContext(ctx, l.logger).Info("plugins unloaded",
		logging.String(logging.FieldEventType, "plugins_unloaded"),
		logging.Int("count", count),
	)
}

func (l *Loader) release(reg *Registry) {
	for i := len(reg.entries) - 1; i >= 0; i-- {
		e := reg.entries[i]
		if err := safeUnload(e.Plugin); err != nil {
			l.logger.Warn("plugin unload failed",
				logging.String(logging.FieldPlugin, e.Name),
				logging.String(logging.FieldPluginGUID, e.GUID),
				logging.String(logging.FieldEventType, "plugin_unload_failed"),
				logging.String(logging.FieldErrorHint, "plugin may have leaked resources"),
				logging.Error(err),
			)
		}
	}
	reg.clear()
}

// scanLocation only returns an error when ctx is done.
func (l *Loader) scanLocation(ctx context.Context, reg *Registry, loc Location) error {
	logger := l.logger.With(logging.String("location", loc.Name), logging.Bool("required", loc.Required))
	if loc.FS == nil {
		logger.Debug("plugin location has no filesystem; skipping")
		return nil
	}
	if _, err := fs.Stat(loc.FS, "."); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			logger.Debug("plugin location missing; skipping")
			return nil
		}
		l.fail(reg, LoadFailure{Location: loc.Name, Path: ".", Err: err})
		return nil
	}

	walkErr := fs.WalkDir(loc.FS, ".", func(p string, d fs.DirEntry, err error) error {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		if err != nil {
			l.fail(reg, LoadFailure{Location: loc.Name, Path: p, Err: err})
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() || !l.isModule(d.Name()) {
			return nil
		}
		l.loadModule(reg, loc, p, logger)
		return nil
	})
	if walkErr == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	l.fail(reg, LoadFailure{Location: loc.Name, Path: ".", Err: walkErr})
	return nil
}

func (l *Loader) isModule(name string) bool {
	lower := strings.ToLower(name)
	for _, suffix := range l.suffixes {
		if strings.HasSuffix(lower, suffix) {
			return true
		}
	}
	return false
}

func (l *Loader) loadModule(reg *Registry, loc Location, rel string, logger *slog.Logger) {
	data, err := fs.ReadFile(loc.FS, rel)
	if err != nil {
		l.fail(reg, LoadFailure{Location: loc.Name, Path: rel, Err: err})
		return
	}
	manifest, err := ParseManifest(rel, data)
	if err != nil {
		l.fail(reg, LoadFailure{Location: loc.Name, Path: rel, Err: err})
		return
	}

	loaded := 0
	for _, entry := range manifest.Plugins {
		desc := Descriptor{
			GUID:       manifest.PluginGUID(entry),
			Name:       entry.Name,
			Type:       entry.Type,
			RunOrder:   entry.RunOrder,
			Origin:     loc.origin(rel),
			Module:     manifest.Module.Name,
			ModuleGUID: manifest.moduleGUID.String(),
			Version:    strings.TrimSpace(manifest.Module.Version),
			BuildTime:  manifest.BuildTime(),
		}
		if prefs := strings.TrimSpace(entry.Preferences); prefs != "" {
			desc.PreferencesPath = loc.origin(path.Join(path.Dir(rel), filepath.ToSlash(prefs)))
		}
		if err := l.instantiate(reg, desc, entry.Settings); err != nil {
			l.fail(reg, LoadFailure{Location: loc.Name, Path: rel, Type: entry.Type, Name: entry.Name, Err: err})
			continue
		}
		loaded++
	}
	logger.Debug("plugin module loaded",
		logging.String("module", manifest.Module.Name),
		logging.String("path", rel),
		logging.Int("plugins", loaded),
	)
}

func (l *Loader) instantiate(reg *Registry, desc Descriptor, settings map[string]any) error {
	factory, ok := l.catalog.Factory(desc.Type)
	if !ok {
		return fmt.Errorf("%w %q", ErrUnknownFactory, desc.Type)
	}
	p, err := safeCreate(factory, FactoryParams{
		Name:            desc.Name,
		PreferencesPath: desc.PreferencesPath,
		Settings:        settings,
		Logger:          logging.NewComponentLogger(l.logger, desc.Type),
	})
	if err != nil {
		return err
	}
	capability, err := CapabilityOf(p)
	if err != nil {
		l.discard(p)
		return err
	}
	desc.Capability = capability
	if desc.Name == "" {
		desc.Name = strings.TrimSpace(p.Name())
	}
	entry, err := reg.Add(desc, p)
	if err != nil {
		l.discard(p)
		return err
	}
	l.logger.Debug("plugin registered",
		logging.String(logging.FieldPlugin, entry.Name),
		logging.String(logging.FieldPluginGUID, entry.GUID),
		logging.String(logging.FieldCapability, string(entry.Capability)),
		logging.Int("run_order", entry.RunOrder),
	)
	return nil
}

func (l *Loader) discard(p Plugin) {
	if err := safeUnload(p); err != nil {
		l.logger.Debug("discarded plugin unload failed", logging.Error(err))
	}
}

func (l *Loader) fail(reg *Registry, f LoadFailure) {
	reg.recordFailure(f)
	l.logger.Warn("plugin candidate skipped",
		logging.String("location", f.Location),
		logging.String("path", f.Path),
		logging.String("type", f.Type),
		logging.String(logging.FieldEventType, "plugin_load_failed"),
		logging.String(logging.FieldErrorHint, "fix or remove the module file"),
		logging.Error(f.Err),
	)
}

func safeCreate(factory Factory, params FactoryParams) (p Plugin, err error) {
	defer func() {
		if r := recover(); r != nil {
			p = nil
			err = fmt.Errorf("factory panicked: %v", r)
		}
	}()
	p, err = factory(params)
	if err != nil {
		return nil, fmt.Errorf("factory: %w", err)
	}
	if p == nil {
		return nil, errors.New("factory returned nil plugin")
	}
	return p, nil
}

func safeUnload(p Plugin) (err error) {
	if p == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("unload panicked: %v", r)
		}
	}()
	return p.Unload()
}
