package session

// State is a phase of the connection lifecycle.
type State int

const (
	Disconnected State = iota
	Connecting
	Authenticating
	Connected
	Closing
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case Connecting:
		return "Connecting"
	case Authenticating:
		return "Authenticating"
	case Connected:
		return "Connected"
	case Closing:
		return "Closing"
	default:
		return "Unknown"
	}
}

// Status lines reported with the Disconnected state. They tell a manual
// disconnect or peer close apart from the two failure causes.
const (
	StatusDisconnected = "Disconnected"
	StatusAuthFailed   = "Disconnected (Auth Failed)"
	StatusError        = "Disconnected (Error)"
)
