package coordinator

import "fmt"

// StateKind enumerates the positions of a session's lifecycle automaton.
type StateKind int

const (
	StateIdle StateKind = iota
	StatePreparing
	StateTransferring
	StatePaused
	StateCompleting
	StateCompleted
	StateFailed
)

func (k StateKind) String() string {
	switch k {
	case StateIdle:
		return "Idle"
	case StatePreparing:
		return "Preparing"
	case StateTransferring:
		return "Transferring"
	case StatePaused:
		return "Paused"
	case StateCompleting:
		return "Completing"
	case StateCompleted:
		return "Completed"
	case StateFailed:
		return "Failed"
	default:
		return fmt.Sprintf("StateKind(%d)", int(k))
	}
}

// State is one point in the automaton: Transferring carries a progress
// count, Paused and Failed carry a human-readable reason.
type State struct {
	Kind     StateKind
	Progress int
	Reason   string
}

func (s State) String() string {
	switch s.Kind {
	case StateTransferring:
		return fmt.Sprintf("Transferring(%d)", s.Progress)
	case StatePaused, StateFailed:
		return fmt.Sprintf("%s(%q)", s.Kind, s.Reason)
	default:
		return s.Kind.String()
	}
}

// EventKind enumerates the automaton's input alphabet.
type EventKind int

const (
	EventStart EventKind = iota
	EventChunkCompleted
	EventChunkFailed
	EventPause
	EventResume
	EventCancel
	EventNetworkFailure
	EventNetworkRecovered
	EventTransferComplete
)

// Event is one input to the automaton. Seq/Reason/PathID are populated
// depending on Kind.
type Event struct {
	Kind   EventKind
	Seq    uint32
	Reason string
	PathID string
}

func StartEvent() Event              { return Event{Kind: EventStart} }
func ChunkCompletedEvent(seq uint32) Event {
	return Event{Kind: EventChunkCompleted, Seq: seq}
}
func ChunkFailedEvent(seq uint32, reason string) Event {
	return Event{Kind: EventChunkFailed, Seq: seq, Reason: reason}
}
func PauseEvent() Event  { return Event{Kind: EventPause} }
func ResumeEvent() Event { return Event{Kind: EventResume} }
func CancelEvent() Event { return Event{Kind: EventCancel} }
func NetworkFailureEvent(pathID string) Event {
	return Event{Kind: EventNetworkFailure, PathID: pathID}
}
func NetworkRecoveredEvent(pathID string) Event {
	return Event{Kind: EventNetworkRecovered, PathID: pathID}
}
func TransferCompleteEvent() Event { return Event{Kind: EventTransferComplete} }

const userCancelledReason = "Cancelled by user"
const userPausedReason = "User requested"
const networkFailurePrefix = "Network failure on path: "
