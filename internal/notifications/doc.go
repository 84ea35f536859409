// Package notifications delivers stage outcomes and plugin errors via ntfy.
//
// The default implementation publishes to the topic configured in
// config.toml and degrades to a no-op when no topic is set. The pipeline
// controller uses NotifyError as its error reporter, so only logic errors
// reach it; user-input errors and cancellations never do.
package notifications
