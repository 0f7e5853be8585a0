package session

import (
	"errors"
	"fmt"
	"slices"
)

type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StatePaused  State = "paused"
	StateEnded   State = "ended"
)

func (s State) Valid() bool {
	switch s {
	case StateIdle, StateRunning, StatePaused, StateEnded:
		return true
	default:
		return false
	}
}

type Op string

const (
	OpStart         Op = "start"
	OpPause         Op = "pause"
	OpResume        Op = "resume"
	OpEnd           Op = "end"
	OpReset         Op = "reset"
	OpResetDuration Op = "reset_duration"
)

var (
	ErrInvalidTransition = errors.New("invalid session transition")
	ErrClosed            = errors.New("session controller is torn down")
)

type TransitionError struct {
	Op   Op
	From State
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("%s is not allowed while session is %s", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

type opRule struct {
	from []State
	to   State
}

// reset is accepted from every state and is handled outside this table.
var opRules = map[Op]opRule{
	OpStart:         {from: []State{StateIdle, StateEnded}, to: StateRunning},
	OpPause:         {from: []State{StateRunning}, to: StatePaused},
	OpResume:        {from: []State{StatePaused}, to: StateRunning},
	OpEnd:           {from: []State{StateRunning, StatePaused}, to: StateEnded},
	OpResetDuration: {from: []State{StateRunning, StatePaused}},
}

// CanTransition reports whether the state graph has an edge from -> to.
func CanTransition(from, to State) bool {
	if !from.Valid() || !to.Valid() {
		return false
	}
	if to == StateIdle {
		return true
	}
	switch from {
	case StateIdle:
		return to == StateRunning
	case StateRunning:
		return to == StatePaused || to == StateEnded
	case StatePaused:
		return to == StateRunning || to == StateEnded
	case StateEnded:
		return to == StateRunning
	}
	return false
}

// checkOp returns the target state of op from the given state.
// Ops that keep the state (reset_duration) return from.
func checkOp(op Op, from State) (State, error) {
	if op == OpReset {
		return StateIdle, nil
	}
	rule, ok := opRules[op]
	if !ok || !slices.Contains(rule.from, from) {
		return from, &TransitionError{Op: op, From: from}
	}
	if rule.to == "" {
		return from, nil
	}
	return rule.to, nil
}
