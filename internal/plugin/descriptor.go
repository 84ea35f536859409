package plugin

import "time"

// Descriptor is the static metadata recorded for a loaded plugin.
type Descriptor struct {
	GUID            string
	Name            string
	Type            string
	Capability      Capability
	RunOrder        int
	Origin          string
	Module          string
	ModuleGUID      string
	Version         string
	BuildTime       time.Time
	PreferencesPath string
	LoadIndex       int
}

// Entry pairs a descriptor with its live plugin instance.
type Entry struct {
	Descriptor
	Plugin Plugin
}
