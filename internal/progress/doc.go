// Package progress tracks the completion of a single plugin invocation and
// estimates its remaining time.
//
// A Tracker keeps a bounded window of (time, percent) samples and derives a
// recency-weighted rate from it. Regressions and repeated values never feed
// the rate. When no forward progress arrives within the stall threshold the
// estimate becomes indeterminate; once progress resumes the window is rebased
// and the pre-stall rate seeds the new window so the countdown continues
// without a jump.
package progress
