package orchestrator

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// Status is a tool call's lifecycle state.
type Status string

const (
	// StatusPending means the call is queued and has not started.
	StatusPending Status = "pending"

	// StatusCalling means the handler is being invoked.
	StatusCalling Status = "calling"

	// StatusProcessing means the handler returned and the result is
	// being normalized.
	StatusProcessing Status = "processing"

	// StatusCompleted is terminal success.
	StatusCompleted Status = "completed"

	// StatusFailed is failure; terminal unless a retry re-queues it.
	StatusFailed Status = "failed"
)

// Terminal reports whether no further transitions are expected.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Errors for call lifecycle violations.
var (
	ErrInvalidTransition = errors.New("invalid call transition")
	ErrRetryExhausted    = errors.New("retry budget exhausted")
)

// transitions lists the allowed forward edges. failed -> pending is
// handled separately by retry, which is the only backward move.
var transitions = map[Status][]Status{
	StatusPending:    {StatusCalling, StatusFailed},
	StatusCalling:    {StatusProcessing, StatusFailed},
	StatusProcessing: {StatusCompleted, StatusFailed},
}

// Call is one tool invocation and its outcome.
type Call struct {
	// ID is the request identifier, generated when the request had none.
	ID string `json:"id"`

	// Tool is the registered tool name.
	Tool string `json:"tool"`

	// Args is the raw argument payload.
	Args json.RawMessage `json:"args,omitempty"`

	// Status is the current lifecycle state.
	Status Status `json:"status"`

	// Result is the marshaled handler result, set on completion.
	Result json.RawMessage `json:"result,omitempty"`

	// Err is the terminal error, set on failure.
	Err error `json:"-"`

	// RetryCount is how many times the call went failed -> pending.
	RetryCount int `json:"retry_count"`

	// CreatedAt is when the call was accepted.
	CreatedAt time.Time `json:"created_at"`

	// StartedAt is when the first handler attempt began.
	StartedAt time.Time `json:"started_at,omitempty"`

	// CompletedAt is when the call reached a terminal state for good.
	CompletedAt time.Time `json:"completed_at,omitempty"`
}

// transition moves the call forward. Any move not in the transition
// table is rejected, which keeps the lifecycle monotonic.
func (c *Call) transition(to Status) error {
	for _, allowed := range transitions[c.Status] {
		if allowed == to {
			c.Status = to
			return nil
		}
	}
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, c.Status, to)
}

// retry re-queues a failed call and clears the failed attempt's error,
// so Err only ever holds the terminal error. maxRetries bounds total
// attempts, so a call may be retried while RetryCount < maxRetries-1.
func (c *Call) retry(maxRetries int) error {
	if c.Status != StatusFailed {
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, c.Status)
	}
	if c.RetryCount >= maxRetries-1 {
		return fmt.Errorf("%w: %d attempts", ErrRetryExhausted, c.RetryCount+1)
	}
	c.Status = StatusPending
	c.RetryCount++
	c.Err = nil
	return nil
}

// fail marks the call terminally failed with err.
func (c *Call) fail(err error) {
	c.Status = StatusFailed
	c.Err = err
}
