package plugin

import (
	"fmt"
	"strings"
)

// Capability is the role a plugin fulfills in the pipeline.
type Capability string

const (
	CapabilityDiscReader       Capability = "disc_reader"
	CapabilityAutoDetector     Capability = "auto_detector"
	CapabilityMetadataProvider Capability = "metadata_provider"
	CapabilityNameProvider     Capability = "name_provider"
	CapabilityMuxer            Capability = "muxer"
	CapabilityPostProcessor    Capability = "post_processor"
)

// Capabilities lists every capability in pipeline order.
func Capabilities() []Capability {
	return []Capability{
		CapabilityDiscReader,
		CapabilityAutoDetector,
		CapabilityMetadataProvider,
		CapabilityNameProvider,
		CapabilityMuxer,
		CapabilityPostProcessor,
	}
}

// RequiredCapabilities lists the capabilities that must be present after loading.
func RequiredCapabilities() []Capability {
	return []Capability{CapabilityDiscReader, CapabilityMuxer}
}

// Label returns a human readable form ("disc reader").
func (c Capability) Label() string {
	return strings.ReplaceAll(string(c), "_", " ")
}

// Valid reports whether c is one of the known capabilities.
func (c Capability) Valid() bool {
	for _, known := range Capabilities() {
		if c == known {
			return true
		}
	}
	return false
}

// ParseCapability accepts either the canonical form or the label.
func ParseCapability(value string) (Capability, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	normalized = strings.NewReplacer(" ", "_", "-", "_").Replace(normalized)
	c := Capability(normalized)
	if !c.Valid() {
		return "", fmt.Errorf("unknown plugin capability %q", value)
	}
	return c, nil
}
