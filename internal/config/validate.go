package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePlugins(); err != nil {
		return err
	}
	if err := c.validateProgress(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validatePlugins() error {
	if len(c.Plugins.ModuleSuffixes) == 0 {
		return errors.New("plugins.module_suffixes must list at least one suffix")
	}
	for _, suffix := range c.Plugins.ModuleSuffixes {
		if !strings.HasPrefix(suffix, ".") {
			return fmt.Errorf("plugins.module_suffixes: %q must start with a dot", suffix)
		}
	}
	return nil
}

func (c *Config) validateProgress() error {
	if c.Progress.StallThresholdSeconds <= 0 {
		return errors.New("progress.stall_threshold_seconds must be positive")
	}
	if c.Progress.SampleWindow < 2 {
		return errors.New("progress.sample_window must be at least 2")
	}
	if c.Progress.SampleMaxAgeSeconds <= 0 {
		return errors.New("progress.sample_max_age_seconds must be positive")
	}
	if c.Progress.LogBucketPercent <= 0 || c.Progress.LogBucketPercent > 100 {
		return errors.New("progress.log_bucket_percent must be between 0 and 100")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	topic := c.Notifications.NtfyTopic
	if topic != "" && !strings.HasPrefix(topic, "http://") && !strings.HasPrefix(topic, "https://") {
		return fmt.Errorf("notifications.ntfy_topic must be a full http(s) URL, got %q", topic)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}
