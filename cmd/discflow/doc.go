// Package main hosts the discflow CLI entrypoint and command graph.
//
// The Cobra command tree resolves configuration, loads the plugin registry
// from the built-in modules and the configured plugin directories, and drives
// the scan and convert stages through the pipeline controller. Progress is
// rendered as plain lines or, with --tui, as a Bubble Tea view.
//
// Keep this package lean: behavior belongs in the internal packages and is
// surfaced here through commands and flags.
package main
