// Package dedupe provides a time-based cache of seen message ids, used to
// skip reprocessing duplicates within a configurable window.
package dedupe
