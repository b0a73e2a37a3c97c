package coordinator

import (
	"fmt"
	"strings"
	"sync"
)

// InvalidStateTransitionError is returned by Transition for any (state,
// event) pair not in the transition table.
type InvalidStateTransitionError struct {
	From  State
	Event EventKind
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("invalid transition: event %v from state %v", e.Event, e.From)
}

// StateMachine is one session's lifecycle automaton. There is no event
// channel: a clone of the active-transfers map entry shares the same
// pointer, and callers that need to observe progress poll Current() rather
// than subscribe to a stream, so there is nothing for a map-get clone to
// leak.
type StateMachine struct {
	mu      sync.Mutex
	current State
}

// NewStateMachine starts a machine in Idle.
func NewStateMachine() *StateMachine {
	return &StateMachine{current: State{Kind: StateIdle}}
}

// Current returns the machine's current state.
func (m *StateMachine) Current() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.current
}

// Transition applies ev to the current state, returning the new state or
// an InvalidStateTransitionError if the pair is not in the table.
func (m *StateMachine) Transition(ev Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := m.next(ev)
	if !ok {
		return m.current, &InvalidStateTransitionError{From: m.current, Event: ev.Kind}
	}
	m.current = next
	return next, nil
}

func (m *StateMachine) next(ev Event) (State, bool) {
	cur := m.current

	switch cur.Kind {
	case StateIdle:
		if ev.Kind == EventStart {
			return State{Kind: StatePreparing}, true
		}
		return State{}, false

	case StatePreparing:
		switch ev.Kind {
		case EventChunkCompleted:
			return State{Kind: StateTransferring, Progress: 0}, true
		case EventCancel:
			return State{Kind: StateFailed, Reason: userCancelledReason}, true
		}
		return State{}, false

	case StateTransferring:
		switch ev.Kind {
		case EventChunkCompleted, EventChunkFailed:
			return State{Kind: StateTransferring, Progress: cur.Progress}, true
		case EventPause:
			return State{Kind: StatePaused, Reason: userPausedReason}, true
		case EventNetworkFailure:
			return State{Kind: StatePaused, Reason: networkFailurePrefix + ev.PathID}, true
		case EventTransferComplete:
			return State{Kind: StateCompleting}, true
		case EventCancel:
			return State{Kind: StateFailed, Reason: userCancelledReason}, true
		}
		return State{}, false

	case StatePaused:
		switch ev.Kind {
		case EventResume:
			return State{Kind: StateTransferring, Progress: 0}, true
		case EventNetworkRecovered:
			if strings.HasPrefix(cur.Reason, networkFailurePrefix) {
				return State{Kind: StateTransferring, Progress: 0}, true
			}
			return State{}, false
		case EventCancel:
			return State{Kind: StateFailed, Reason: userCancelledReason}, true
		}
		return State{}, false

	case StateCompleting:
		if ev.Kind == EventCancel {
			return State{Kind: StateFailed, Reason: userCancelledReason}, true
		}
		return State{Kind: StateCompleted}, true

	case StateCompleted, StateFailed:
		return State{}, false
	}

	return State{}, false
}
