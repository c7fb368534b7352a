package mailer

// State is the lifecycle position of a Mailer.
type State int

const (
	// StateUnconfigured means no transport has been resolved yet.
	StateUnconfigured State = iota
	StateReady
	StateSending
	// StateSent means the last send reached at least one recipient.
	StateSent
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateReady:
		return "ready"
	case StateSending:
		return "sending"
	case StateSent:
		return "sent"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
