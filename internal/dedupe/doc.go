// Package dedupe provides call-session deduplication using a time-based
// cache, to flag a uniqueid connecting to the listener more than once
// within a configurable window.
package dedupe
