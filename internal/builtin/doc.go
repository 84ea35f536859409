// Package builtin provides the reference plugins compiled into discflow.
//
// The plugins cover every capability with deliberately simple behavior: a
// folder-based disc reader, a longest-title detector, a sidecar metadata
// provider, a "Title (Year)" namer, a stream-copy muxer and a JSON manifest
// writer. Their manifest is embedded and exposed as the required plugin
// location, so they register before any user module.
package builtin
