// Package services defines shared utilities consumed by the pipeline
// controller and plugins.
//
// Key responsibilities:
//   - Context helpers that stamp job IDs, stage names, plugin names and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper, and the classification
//     that splits failures into user errors, logic errors and cancellation.
//
// Plugins should wrap their failures with these markers so the controller can
// decide whether a failure is reportable without knowing plugin internals.
package services
