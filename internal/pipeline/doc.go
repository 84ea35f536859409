// Package pipeline drives loaded plugins over a Job.
//
// The Controller runs two independent stages. Scan invokes disc readers,
// auto detectors, metadata providers and name providers; convert invokes
// muxers and post processors. Within a stage enabled plugins run strictly
// one at a time in RunOrder against the same Job, so plugins never need to
// lock the shared aggregate.
//
// Cancellation is cooperative: the stage context is checked before every
// plugin and handed to every plugin call. Each stage ends in exactly one of
// Succeeded, Failed or Canceled and reports it through a single
// stage-finished event. A failing plugin ends its stage immediately; retry is
// left to the caller.
package pipeline
