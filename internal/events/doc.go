// Package events provides an in-process event bus that decouples consumers
// of push-channel events from the connection that produces them.
package events
