package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	if err := c.normalizePlugins(); err != nil {
		return err
	}
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(strings.TrimSpace(c.Paths.LogDir)); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePlugins() error {
	var err error
	if c.Plugins.RequiredDir, err = expandPath(strings.TrimSpace(c.Plugins.RequiredDir)); err != nil {
		return fmt.Errorf("plugins.required_dir: %w", err)
	}

	custom := append([]string(nil), c.Plugins.CustomDirs...)
	if value, ok := os.LookupEnv("DISCFLOW_PLUGIN_DIRS"); ok {
		custom = append(custom, filepath.SplitList(value)...)
	}
	seen := make(map[string]struct{}, len(custom))
	c.Plugins.CustomDirs = c.Plugins.CustomDirs[:0]
	for _, dir := range custom {
		dir = strings.TrimSpace(dir)
		if dir == "" {
			continue
		}
		expanded, err := expandPath(dir)
		if err != nil {
			return fmt.Errorf("plugins.custom_dirs: %w", err)
		}
		if _, ok := seen[expanded]; ok || expanded == c.Plugins.RequiredDir {
			continue
		}
		seen[expanded] = struct{}{}
		c.Plugins.CustomDirs = append(c.Plugins.CustomDirs, expanded)
	}

	suffixes := make([]string, 0, len(c.Plugins.ModuleSuffixes))
	for _, suffix := range c.Plugins.ModuleSuffixes {
		suffix = strings.ToLower(strings.TrimSpace(suffix))
		if suffix != "" {
			suffixes = append(suffixes, suffix)
		}
	}
	if len(suffixes) == 0 {
		suffixes = append(suffixes, DefaultModuleSuffixes...)
	}
	c.Plugins.ModuleSuffixes = suffixes
	return nil
}

func (c *Config) normalizeNotifications() {
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("DISCFLOW_NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = value
		}
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
