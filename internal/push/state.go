// ABOUTME: Connection lifecycle states for the push channel.
// ABOUTME: Transitions are driven by Open/Close calls, transport events, and timers.

package push

// State is the lifecycle state of the push-channel connection.
type State int

const (
	// StateDisconnected means no connection exists and none is being attempted.
	StateDisconnected State = iota
	// StateConnecting means a dial is in flight.
	StateConnecting
	// StateOpen means the connection is established and usable.
	StateOpen
	// StateReconnecting means the connection dropped uncleanly and a retry
	// timer is pending.
	StateReconnecting
	// StateFailed means the retry budget is exhausted. Only a fresh manual
	// Open leaves this state.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateReconnecting:
		return "reconnecting"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
