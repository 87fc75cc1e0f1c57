package domain

// ConnectionMode represents the state of the logical data channel.
type ConnectionMode int

const (
	ModeDisconnected ConnectionMode = iota
	ModeConnecting
	ModeConnectedPush // live WebSocket channel
	ModeConnectedPull // polling fallback
	ModeDegraded      // circuit open, all transport attempts suppressed
)

// String returns the wire name of the mode. These names are what
// mode-change events carry, so "websocket" and "polling" rather than
// the internal push/pull terms.
func (m ConnectionMode) String() string {
	switch m {
	case ModeDisconnected:
		return "disconnected"
	case ModeConnecting:
		return "connecting"
	case ModeConnectedPush:
		return "websocket"
	case ModeConnectedPull:
		return "polling"
	case ModeDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// Connected reports whether data is flowing in this mode.
func (m ConnectionMode) Connected() bool {
	return m == ModeConnectedPush || m == ModeConnectedPull
}

// ModeChangeEvent is emitted once per actual mode transition.
type ModeChangeEvent struct {
	From   ConnectionMode
	To     ConnectionMode
	Reason string
}

// Mode-change reasons.
const (
	ReasonStart            = "start"
	ReasonConnected        = "connected"
	ReasonMaxAttempts      = "max_reconnect_attempts_exceeded"
	ReasonProbeSucceeded   = "probe_succeeded"
	ReasonTransportDropped = "transport_dropped"
	ReasonCircuitOpen      = "circuit_open"
	ReasonCircuitHalfOpen  = "circuit_half_open"
	ReasonReconnectRequest = "reconnect_requested"
	ReasonFallbackRequest  = "fallback_requested"
	ReasonStopped          = "stopped"
)
