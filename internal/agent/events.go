package agent

import "github.com/yyup/agentd/internal/orchestrator"

// EventType labels a streamed turn event.
type EventType string

const (
	// EventThinkingDelta carries reasoning text from a round that went on
	// to request tools.
	EventThinkingDelta EventType = "thinking_delta"

	// EventToolCallStarted fires when a tool call is dispatched.
	EventToolCallStarted EventType = "tool_call_started"

	// EventToolCallResult fires when a tool call reaches a terminal state.
	EventToolCallResult EventType = "tool_call_result"

	// EventAnswerDelta carries answer text.
	EventAnswerDelta EventType = "answer_delta"

	// EventDone closes the stream and carries the final result.
	EventDone EventType = "done"
)

// Event is one streamed turn update. Fields are populated per type:
// Text for deltas, Call for tool events, Result for done.
type Event struct {
	Type   EventType
	Text   string
	Call   *orchestrator.Call
	Result *TurnResult
}

// Sink receives turn events in order. Called synchronously from the
// loop goroutine; slow sinks slow the turn.
type Sink func(Event)
