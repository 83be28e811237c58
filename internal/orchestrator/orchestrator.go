// Package orchestrator dispatches tool calls requested by the model.
//
// Every call runs through the same pipeline: registry lookup, argument
// validation, permission gating, then handler invocation with bounded
// retries. Permission and validation failures never reach the handler
// and are never retried.
package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yyup/agentd/internal/permission"
	"github.com/yyup/agentd/internal/tools"
)

// Errors reported through Call.Err. ErrTimeout is always wrapped
// alongside ErrToolFailed so callers can match either.
var (
	ErrToolFailed = errors.New("tool execution failed")
	ErrTimeout    = errors.New("tool call timed out")
)

// Config bounds execution.
type Config struct {
	// MaxRetries is the total handler attempts per call.
	MaxRetries int

	// RetryBackoff is the base backoff, doubled per attempt.
	RetryBackoff time.Duration

	// CallTimeout bounds one handler invocation. Zero disables it.
	CallTimeout time.Duration

	// Parallelism limits concurrent calls in ExecuteAll.
	Parallelism int
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if c.MaxRetries == 0 {
		c.MaxRetries = 3
	}
	if c.RetryBackoff == 0 {
		c.RetryBackoff = 500 * time.Millisecond
	}
	if c.Parallelism == 0 {
		c.Parallelism = 4
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.MaxRetries < 1 {
		return fmt.Errorf("max retries must be >= 1, got %d", c.MaxRetries)
	}
	if c.Parallelism < 1 {
		return fmt.Errorf("parallelism must be >= 1, got %d", c.Parallelism)
	}
	if c.RetryBackoff < 0 || c.CallTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	return nil
}

// Request is one tool call request from the model.
type Request struct {
	// ID is the model-assigned call identifier. Optional.
	ID string

	// Tool is the tool name.
	Tool string

	// Args is the raw JSON argument payload.
	Args json.RawMessage
}

// Orchestrator executes tool calls against the registry under the
// permission gate.
type Orchestrator struct {
	registry *tools.Registry
	gate     *permission.Gate
	config   Config
	logger   *zap.Logger
	metrics  *Metrics
}

// Option customizes an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics attaches metrics instrumentation.
func WithMetrics(metrics *Metrics) Option {
	return func(o *Orchestrator) { o.metrics = metrics }
}

// New creates an orchestrator.
func New(registry *tools.Registry, gate *permission.Gate, config Config, logger *zap.Logger, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if gate == nil {
		return nil, fmt.Errorf("permission gate cannot be nil")
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	o := &Orchestrator{
		registry: registry,
		gate:     gate,
		config:   config,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Execute runs one tool call to a terminal state. The returned call is
// always non-nil; failures are reported through Call.Err, not an error
// return, so a batch never aborts halfway.
func (o *Orchestrator) Execute(ctx context.Context, role string, req Request) *Call {
	call := &Call{
		ID:        req.ID,
		Tool:      req.Tool,
		Args:      req.Args,
		Status:    StatusPending,
		CreatedAt: time.Now(),
	}
	if call.ID == "" {
		call.ID = uuid.NewString()
	}

	defer func() {
		call.CompletedAt = time.Now()
		if o.metrics != nil {
			o.metrics.RecordExecution(ctx, call.Tool, call.Status, call.RetryCount, call.CompletedAt.Sub(call.CreatedAt))
		}
	}()

	def, err := o.registry.Get(req.Tool)
	if err != nil {
		call.fail(err)
		return call
	}

	args, err := decodeArgs(req.Args)
	if err == nil {
		err = def.Parameters.ValidateArgs(args)
	}
	if err != nil {
		call.fail(err)
		return call
	}

	if err := o.checkPermissions(role, def, args); err != nil {
		if o.metrics != nil {
			o.metrics.RecordDenial(ctx, call.Tool, role)
		}
		o.logger.Info("tool call denied",
			zap.String("tool", call.Tool),
			zap.String("role", role),
			zap.Error(err))
		call.fail(err)
		return call
	}

	o.run(ctx, call, def, args)

	o.logger.Debug("tool call finished",
		zap.String("tool", call.Tool),
		zap.String("call_id", call.ID),
		zap.String("status", string(call.Status)),
		zap.Int("retries", call.RetryCount))
	return call
}

// checkPermissions gates the call before any handler work.
func (o *Orchestrator) checkPermissions(role string, def tools.Definition, args map[string]any) error {
	if !def.Category.Gated() {
		return nil
	}
	if def.Resource != "" {
		if err := o.gate.Check(role, def.Resource, def.Op); err != nil {
			return err
		}
	}
	if def.SQLArgument != "" {
		stmt, _ := args[def.SQLArgument].(string)
		if err := o.gate.ValidateStatement(role, stmt); err != nil {
			return err
		}
	}
	return nil
}

// run drives the attempt loop: calling -> processing -> completed, with
// failed -> pending requeues under exponential backoff while the budget
// and the context allow.
func (o *Orchestrator) run(ctx context.Context, call *Call, def tools.Definition, args map[string]any) {
	call.StartedAt = time.Now()

	// A dead context never dispatches the handler.
	if err := ctx.Err(); err != nil {
		call.fail(fmt.Errorf("%w: %s: %v", ErrToolFailed, call.Tool, err))
		return
	}

	for {
		if err := call.transition(StatusCalling); err != nil {
			call.fail(err)
			return
		}

		result, err := o.invoke(ctx, def, args)

		if terr := call.transition(StatusProcessing); terr != nil {
			call.fail(terr)
			return
		}

		if err == nil {
			payload, merr := json.Marshal(result)
			if merr != nil {
				call.fail(fmt.Errorf("%w: marshaling result: %v", ErrToolFailed, merr))
				return
			}
			call.Result = payload
			if terr := call.transition(StatusCompleted); terr != nil {
				call.fail(terr)
			}
			return
		}

		call.fail(fmt.Errorf("%w: %s: %w", ErrToolFailed, call.Tool, err))

		// Context death and non-retryable tools end the loop here.
		if ctx.Err() != nil || !def.Retryable {
			return
		}
		if rerr := call.retry(o.config.MaxRetries); rerr != nil {
			return
		}
		if o.metrics != nil {
			o.metrics.RecordRetry(ctx, call.Tool)
		}

		backoff := o.config.RetryBackoff * time.Duration(1<<(call.RetryCount-1))
		o.logger.Debug("retrying tool call",
			zap.String("tool", call.Tool),
			zap.Int("attempt", call.RetryCount+1),
			zap.Duration("backoff", backoff))

		select {
		case <-ctx.Done():
			call.fail(fmt.Errorf("%w: %s: %v", ErrToolFailed, call.Tool, ctx.Err()))
			return
		case <-time.After(backoff):
		}
	}
}

// cancelGrace is how long a cancelled handler gets to return before the
// call is abandoned as timed out.
const cancelGrace = time.Second

// invoke runs the handler under the per-call timeout, converting panics
// into errors so one bad tool cannot take the loop down. A handler that
// ignores cancellation is abandoned after a grace period; its goroutine
// finishes into a buffered channel.
func (o *Orchestrator) invoke(ctx context.Context, def tools.Definition, args map[string]any) (any, error) {
	if o.config.CallTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.config.CallTimeout)
		defer cancel()
	}

	type outcome struct {
		result any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("handler panicked: %v", r)}
			}
		}()
		result, err := def.Handler(ctx, args)
		done <- outcome{result: result, err: err}
	}()

	// finish tags errors produced under an expired deadline as timeouts.
	finish := func(out outcome) (any, error) {
		if out.err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return out.result, fmt.Errorf("%w: %v", ErrTimeout, out.err)
		}
		return out.result, out.err
	}

	select {
	case out := <-done:
		return finish(out)
	case <-ctx.Done():
	}

	select {
	case out := <-done:
		return finish(out)
	case <-time.After(cancelGrace):
		o.logger.Warn("handler ignored cancellation", zap.String("tool", def.Name))
		return finish(outcome{err: fmt.Errorf("handler ignored cancellation: %v", ctx.Err())})
	}
}

// ExecuteAll runs the requests with bounded parallelism and returns the
// calls in request order once every one is terminal. Requests that
// cannot start before ctx dies fail without invoking their handler.
func (o *Orchestrator) ExecuteAll(ctx context.Context, role string, reqs []Request) []*Call {
	calls := make([]*Call, len(reqs))
	sem := make(chan struct{}, o.config.Parallelism)

	var wg sync.WaitGroup
	for i, req := range reqs {
		wg.Add(1)
		go func(i int, req Request) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				call := &Call{
					ID:        req.ID,
					Tool:      req.Tool,
					Args:      req.Args,
					Status:    StatusPending,
					CreatedAt: time.Now(),
				}
				if call.ID == "" {
					call.ID = uuid.NewString()
				}
				call.fail(fmt.Errorf("%w: %s: %v", ErrToolFailed, req.Tool, ctx.Err()))
				call.CompletedAt = time.Now()
				calls[i] = call
				return
			}

			calls[i] = o.Execute(ctx, role, req)
		}(i, req)
	}
	wg.Wait()

	return calls
}

// decodeArgs parses the raw payload. A missing payload means no args.
func decodeArgs(raw json.RawMessage) (map[string]any, error) {
	if len(raw) == 0 {
		return map[string]any{}, nil
	}
	var args map[string]any
	if err := json.Unmarshal(raw, &args); err != nil {
		return nil, fmt.Errorf("%w: %v", tools.ErrInvalidArguments, err)
	}
	if args == nil {
		args = map[string]any{}
	}
	return args, nil
}
