// Package push owns the long-lived websocket connection that delivers
// asynchronous server replies.
//
// # Lifecycle
//
// A Manager holds at most one live connection and moves through
// Disconnected → Connecting → Open. An unclean close schedules a reconnect
// with exponential backoff (1s, 2s, 4s, ... by default); exhausting the
// retry budget transitions to Failed, which only a fresh manual Open leaves.
// A manual Close suppresses reconnection entirely.
//
// # Heartbeat
//
// While open, the manager sends a ping sentinel every 30 seconds. Pong
// replies are filtered out before events reach the bus, so consumers only
// ever see application frames.
package push
