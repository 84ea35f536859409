package plugin

import (
	"context"
	"fmt"
	"strings"

	"discflow/internal/job"
)

// Plugin is the contract shared by every plugin regardless of capability.
type Plugin interface {
	Name() string
	// Unload releases resources held by the plugin. It is called once when
	// the registry is torn down.
	Unload() error
}

// Host is the only channel through which a plugin reports progress. Percent
// is 0-100.
type Host interface {
	ReportProgress(p Plugin, percent float64, status string)
}

// DiscReader scans a source and produces the disc aggregate.
type DiscReader interface {
	Plugin
	ReadDisc(ctx context.Context, host Host, sourcePath string) (*job.Disc, error)
}

// AutoDetector chooses the main title and seeds the search query.
type AutoDetector interface {
	Plugin
	AutoDetect(ctx context.Context, host Host, j *job.Job) error
}

// MetadataProvider adds metadata candidates to the job.
type MetadataProvider interface {
	Plugin
	GetMetadata(ctx context.Context, host Host, j *job.Job) error
}

// NameProvider derives the output file name.
type NameProvider interface {
	Plugin
	Rename(ctx context.Context, host Host, j *job.Job) error
}

// Muxer writes the output container.
type Muxer interface {
	Plugin
	Mux(ctx context.Context, host Host, j *job.Job) error
}

// PostProcessor runs after a successful mux.
type PostProcessor interface {
	Plugin
	PostProcess(ctx context.Context, host Host, j *job.Job) error
}

// CapabilityOf classifies p by the capability interface it implements.
// Implementing none or more than one is an error.
func CapabilityOf(p Plugin) (Capability, error) {
	if p == nil {
		return "", fmt.Errorf("nil plugin")
	}
	var found []Capability
	if _, ok := p.(DiscReader); ok {
		found = append(found, CapabilityDiscReader)
	}
	if _, ok := p.(AutoDetector); ok {
		found = append(found, CapabilityAutoDetector)
	}
	if _, ok := p.(MetadataProvider); ok {
		found = append(found, CapabilityMetadataProvider)
	}
	if _, ok := p.(NameProvider); ok {
		found = append(found, CapabilityNameProvider)
	}
	if _, ok := p.(Muxer); ok {
		found = append(found, CapabilityMuxer)
	}
	if _, ok := p.(PostProcessor); ok {
		found = append(found, CapabilityPostProcessor)
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return "", fmt.Errorf("plugin %q implements no capability interface", p.Name())
	default:
		labels := make([]string, len(found))
		for i, c := range found {
			labels[i] = c.Label()
		}
		return "", fmt.Errorf("plugin %q implements several capabilities (%s)", p.Name(), strings.Join(labels, ", "))
	}
}
