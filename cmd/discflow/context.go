package main

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"discflow/internal/builtin"
	"discflow/internal/config"
	"discflow/internal/logging"
	"discflow/internal/plugin"
	"discflow/internal/services"
	"discflow/internal/store"
)

// Exit codes returned by main.
const (
	exitFailure  = 1
	exitCanceled = 130
)

type commandContext struct {
	configFlag *string
	verbose    *bool
	quiet      *bool

	configOnce   sync.Once
	config       *config.Config
	configPath   string
	configExists bool
	configErr    error
}

func newCommandContext(configFlag *string, verbose, quiet *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		verbose:    verbose,
		quiet:      quiet,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, exists, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = resolved
		c.configExists = exists
	})
	return c.config, c.configErr
}

// newLogger builds the process logger, applying -v/-q over logging.level.
func (c *commandContext) newLogger() (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	effective := *cfg
	switch {
	case c.verbose != nil && *c.verbose:
		effective.Logging.Level = "debug"
	case c.quiet != nil && *c.quiet:
		effective.Logging.Level = "error"
	}
	return logging.NewFromConfig(&effective)
}

// session bundles what a pipeline command needs: config, logger, the
// preference store and the loaded plugin registry.
type session struct {
	cfg      *config.Config
	logger   *slog.Logger
	store    *store.Store
	loader   *plugin.Loader
	registry *plugin.Registry
}

func (c *commandContext) openSession(ctx context.Context) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.newLogger()
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}
	st, err := store.Open(cfg)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	loader := plugin.NewLoader(builtin.NewCatalog(),
		plugin.WithLogger(logger),
		plugin.WithSuffixes(cfg.Plugins.ModuleSuffixes),
		plugin.WithEnabledLookup(st),
	)
	registry, err := loader.Load(ctx, pluginLocations(cfg))
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load plugins: %w", err)
	}
	return &session{cfg: cfg, logger: logger, store: st, loader: loader, registry: registry}, nil
}

func (s *session) Close() {
	s.loader.Unload(context.Background())
	_ = s.store.Close()
}

// pluginLocations orders discovery: embedded built-ins, the required
// directory, then custom directories.
func pluginLocations(cfg *config.Config) []plugin.Location {
	locations := []plugin.Location{builtin.Location()}
	for i, dir := range cfg.PluginDirs() {
		required := i == 0 && dir == cfg.Plugins.RequiredDir
		locations = append(locations, plugin.DirLocation(dir, required))
	}
	return locations
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case services.IsCanceled(err):
		return exitCanceled
	default:
		return exitFailure
	}
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
