package dispatch

import (
	"fmt"
	"slices"
	"time"
)

// State is a step in the life of one request.
type State int

const (
	StateReceived State = iota
	StateCorrelationAssigned
	StateCorsEvaluated
	StateShortCircuited
	StateRouted
	StateForwarded
	StateFailed
	StateCompleted
)

var stateNames = [...]string{
	StateReceived:            "received",
	StateCorrelationAssigned: "correlation_assigned",
	StateCorsEvaluated:       "cors_evaluated",
	StateShortCircuited:      "short_circuited",
	StateRouted:              "routed",
	StateForwarded:           "forwarded",
	StateFailed:              "failed",
	StateCompleted:           "completed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Forwarded may still fail while the upstream body is being relayed.
var transitions = map[State][]State{
	StateReceived:            {StateCorrelationAssigned},
	StateCorrelationAssigned: {StateCorsEvaluated},
	StateCorsEvaluated:       {StateShortCircuited, StateRouted},
	StateShortCircuited:      {StateCompleted},
	StateRouted:              {StateForwarded, StateFailed},
	StateForwarded:           {StateCompleted, StateFailed},
	StateFailed:              {StateCompleted},
}

// Outcome describes how a request ended. It is handed to the completion
// hook once the request reaches StateCompleted.
type Outcome struct {
	RequestID string
	Service   string
	// State is the last state before Completed.
	State State
	// Trace lists every state the request went through, in order.
	Trace    []State
	Status   int
	Err      error
	Duration time.Duration
}

// exchange tracks one request through the state machine.
type exchange struct {
	start   time.Time
	trace   []State
	outcome Outcome
}

func newExchange() *exchange {
	return &exchange{start: time.Now(), trace: []State{StateReceived}}
}

func (x *exchange) state() State {
	return x.trace[len(x.trace)-1]
}

// to moves to next. An illegal transition is a programming error.
func (x *exchange) to(next State) {
	cur := x.state()
	if !slices.Contains(transitions[cur], next) {
		panic(fmt.Sprintf("dispatch: illegal transition %s -> %s", cur, next))
	}
	x.trace = append(x.trace, next)
}

// complete records the final status and moves to Completed.
func (x *exchange) complete(status int, err error) Outcome {
	x.outcome.State = x.state()
	x.outcome.Status = status
	x.outcome.Err = err
	x.to(StateCompleted)
	x.outcome.Trace = x.trace
	x.outcome.Duration = time.Since(x.start)
	return x.outcome
}
