// Package config loads, normalizes, and validates discflow configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment overrides such as
// DISCFLOW_PLUGIN_DIRS and DISCFLOW_NTFY_TOPIC. Components receive the
// resulting Config value explicitly; nothing here is process-global.
package config
