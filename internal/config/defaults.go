package config

const (
	defaultConfigPath            = "~/.config/discflow/config.toml"
	defaultStateDir              = "~/.local/share/discflow"
	defaultLogDir                = "~/.local/share/discflow/logs"
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"
	defaultStallThresholdSeconds = 10
	defaultSampleWindow          = 20
	defaultSampleMaxAgeSeconds   = 60
	defaultLogBucketPercent      = 10
	defaultNotifyRequestTimeout  = 10
)

// DefaultModuleSuffixes lists the file name endings that identify plugin
// module manifests. Matching is case-insensitive.
var DefaultModuleSuffixes = []string{".plugin.toml", ".plugin.yaml", ".plugin.yml"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Plugins: Plugins{
			ModuleSuffixes: append([]string(nil), DefaultModuleSuffixes...),
		},
		Progress: Progress{
			StallThresholdSeconds: defaultStallThresholdSeconds,
			SampleWindow:          defaultSampleWindow,
			SampleMaxAgeSeconds:   defaultSampleMaxAgeSeconds,
			LogBucketPercent:      defaultLogBucketPercent,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			StageResults:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
