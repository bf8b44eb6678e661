// Package workorder holds the pure state/transition logic for a work order's
// status field. It is independent of timing and storage: the simulation
// engine and the CLI both call Next and persist whatever comes back.
package workorder

import (
	"errors"
	"fmt"

	"github.com/suk-kr/shopfloor/internal/model"
)

// Event is something that happens to a work order.
type Event string

const (
	// EventStart begins work: Pending -> InProgress.
	EventStart Event = "start"
	// EventPause suspends ticking without cancelling: InProgress -> Paused.
	EventPause Event = "pause"
	// EventResume restarts ticking from the persisted quantity: Paused -> InProgress.
	EventResume Event = "resume"
	// EventComplete closes the run: InProgress -> Completed.
	EventComplete Event = "complete"
	// EventStop cancels the run: Pending/InProgress/Paused -> Delayed.
	EventStop Event = "stop"
	// EventRestart reopens a delayed order: Delayed -> InProgress.
	EventRestart Event = "restart"
)

// Origin identifies who raised an event. Automatic-mode orders accept events
// only from the engine; manual-mode orders accept events only from operators.
type Origin int

const (
	OriginOperator Origin = iota
	OriginEngine
)

func (o Origin) String() string {
	if o == OriginEngine {
		return "engine"
	}
	return "operator"
}

// ErrInvalidTransition is the sentinel matched by errors.Is for any rejected
// transition. Callers that need the details use errors.As with *TransitionError.
var ErrInvalidTransition = errors.New("invalid work order transition")

// TransitionError reports a rejected transition with full context.
// It wraps ErrInvalidTransition.
type TransitionError struct {
	From   model.WorkOrderStatus
	Event  Event
	Origin Origin
	Reason string
}

func (e *TransitionError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("cannot %s a %s order (%s): %s", e.Event, e.From, e.Origin, e.Reason)
	}
	return fmt.Sprintf("cannot %s a %s order (%s)", e.Event, e.From, e.Origin)
}

func (e *TransitionError) Unwrap() error { return ErrInvalidTransition }

// transitions is the full legal transition table. Anything absent is rejected.
var transitions = map[model.WorkOrderStatus]map[Event]model.WorkOrderStatus{
	model.StatusPending: {
		EventStart: model.StatusInProgress,
		EventStop:  model.StatusDelayed,
	},
	model.StatusInProgress: {
		EventPause:    model.StatusPaused,
		EventComplete: model.StatusCompleted,
		EventStop:     model.StatusDelayed,
	},
	model.StatusPaused: {
		EventResume: model.StatusInProgress,
		EventStop:   model.StatusDelayed,
	},
	model.StatusDelayed: {
		EventRestart: model.StatusInProgress,
	},
	// StatusCompleted: terminal, no outgoing transitions.
}

// Next computes the status after applying event to an order in status from.
// It rejects unknown transitions and, for automatic-mode orders, any event
// raised by an operator (those orders are driven only by the engine).
//
// Next never mutates anything: it is safe to call speculatively.
func Next(from model.WorkOrderStatus, mode model.SimulationMode, event Event, origin Origin) (model.WorkOrderStatus, error) {
	if !from.Valid() {
		return from, &TransitionError{From: from, Event: event, Origin: origin, Reason: "unknown status"}
	}
	if mode == model.ModeAutomatic && origin == OriginOperator && event != EventRestart {
		// Operators may only restart a delayed automatic order; everything
		// else on an automatic order belongs to the simulation engine.
		return from, &TransitionError{From: from, Event: event, Origin: origin,
			Reason: "automatic-mode orders are driven by the simulation engine"}
	}
	if mode == model.ModeManual && origin == OriginEngine {
		return from, &TransitionError{From: from, Event: event, Origin: origin,
			Reason: "manual-mode orders are driven by operator commands"}
	}
	to, ok := transitions[from][event]
	if !ok {
		return from, &TransitionError{From: from, Event: event, Origin: origin}
	}
	return to, nil
}

// CanApply reports whether event is legal for (from, mode, origin)
// without constructing the error.
func CanApply(from model.WorkOrderStatus, mode model.SimulationMode, event Event, origin Origin) bool {
	_, err := Next(from, mode, event, origin)
	return err == nil
}
