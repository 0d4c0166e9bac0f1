package engine

import "github.com/arahq/ara/internal/thread"

// State identifies where a turn is in its lifecycle.
type State int

const (
	// StateAwaitingInput is the resting state between turns.
	StateAwaitingInput State = iota

	// StateModelThinking means a model completion is in flight.
	StateModelThinking

	// StateToolDispatch means requested tool calls are executing.
	StateToolDispatch

	// StateTerminated means the turn produced its final answer.
	StateTerminated
)

func (s State) String() string {
	switch s {
	case StateAwaitingInput:
		return "awaiting_input"
	case StateModelThinking:
		return "model_thinking"
	case StateToolDispatch:
		return "tool_dispatch"
	case StateTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}

// Route decides the next state after a model completion. An assistant
// message carrying tool calls goes to dispatch; anything else ends the
// turn. Pure function of the message.
func Route(msg thread.Message) State {
	if len(msg.ToolCalls) > 0 {
		return StateToolDispatch
	}
	return StateTerminated
}
