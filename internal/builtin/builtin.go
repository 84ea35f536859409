package builtin

import (
	"embed"
	"errors"
	"io/fs"
	"log/slog"

	"discflow/internal/logging"
	"discflow/internal/plugin"
)

// Catalog type keys of the built-in factories.
const (
	TypeDirReader = "builtin.dirreader"
	TypeLongest   = "builtin.longest"
	TypeSidecar   = "builtin.sidecar"
	TypeNamer     = "builtin.namer"
	TypeCopyMux   = "builtin.copymux"
	TypeManifest  = "builtin.manifest"
)

// AttributeOverwrite is the job attribute that allows the copy muxer to
// replace an existing output file.
const AttributeOverwrite = "output.overwrite"

//go:embed modules/*.plugin.toml
var modules embed.FS

// Location returns the embedded module set as the required plugin location.
func Location() plugin.Location {
	sub, err := fs.Sub(modules, "modules")
	if err != nil {
		panic(err)
	}
	return plugin.Location{Name: "builtin", FS: sub, Required: true}
}

// Register adds the built-in factories to catalog.
func Register(catalog *plugin.Catalog) error {
	return errors.Join(
		catalog.Register(TypeDirReader, newDirReader),
		catalog.Register(TypeLongest, newLongestDetector),
		catalog.Register(TypeSidecar, newSidecarProvider),
		catalog.Register(TypeNamer, newNamer),
		catalog.Register(TypeCopyMux, newCopyMuxer),
		catalog.Register(TypeManifest, newManifestWriter),
	)
}

// NewCatalog returns a catalog holding only the built-in factories.
func NewCatalog() *plugin.Catalog {
	catalog := plugin.NewCatalog()
	if err := Register(catalog); err != nil {
		panic(err)
	}
	return catalog
}

// base carries the fields shared by every built-in plugin.
type base struct {
	name   string
	logger *slog.Logger
}

func newBase(params plugin.FactoryParams, fallback string) base {
	name := params.Name
	if name == "" {
		name = fallback
	}
	logger := params.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	return base{name: name, logger: logger}
}

func (b *base) Name() string { return b.name }

func (b *base) Unload() error { return nil }
