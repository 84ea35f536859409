// Package plugin discovers, instantiates and catalogs discflow plugins.
//
// Plugins are contributed by modules. A module is a manifest file (TOML or
// YAML, identified by a configurable file name suffix) naming the module and
// listing plugin entries. Each entry references a factory registered in a
// Catalog; the Loader walks the configured locations in order, calls the
// factories and classifies every instance by the single capability interface
// it implements.
//
// The resulting Registry is built once by the Loader and is read-only until
// the next Unload. It answers ordered per-capability queries for the
// pipeline controller and consults an injected EnabledLookup for user
// preferences.
package plugin
