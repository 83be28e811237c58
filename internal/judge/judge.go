// Package judge decides whether an agent turn is finished.
//
// The verdict comes from three deterministic signals computed over the
// turn's tool calls and draft answer. No model call is involved, so the
// decision is cheap and reproducible.
package judge

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/yyup/agentd/internal/orchestrator"
	"github.com/yyup/agentd/internal/tools"
)

// Signal names one completion criterion.
type Signal string

const (
	// SignalCoverage passes when every tool call reached a terminal state.
	SignalCoverage Signal = "coverage"

	// SignalCompleteness passes when the turn produced usable output: a
	// non-empty answer or at least one completed call with a result, and
	// no failed retryable work left unanswered.
	SignalCompleteness Signal = "completeness"

	// SignalFollowUps passes when no completed tool result is still
	// waiting to be summarized into the answer.
	SignalFollowUps Signal = "follow_ups"
)

// Config weights the signals. A signal's weight is its share of the
// score; Threshold is the minimum weighted score for a Done verdict.
// The defaults make every signal mandatory.
type Config struct {
	Weights   map[Signal]float64
	Threshold float64
}

// ApplyDefaults fills zero values.
func (c *Config) ApplyDefaults() {
	if len(c.Weights) == 0 {
		c.Weights = map[Signal]float64{
			SignalCoverage:     1.0,
			SignalCompleteness: 1.0,
			SignalFollowUps:    1.0,
		}
	}
	if c.Threshold == 0 {
		c.Threshold = 1.0
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Threshold < 0 || c.Threshold > 1 {
		return fmt.Errorf("threshold must be in [0,1], got %g", c.Threshold)
	}
	for sig, w := range c.Weights {
		if w < 0 {
			return fmt.Errorf("weight for %q cannot be negative", sig)
		}
	}
	return nil
}

// Input is the turn state under evaluation.
type Input struct {
	// Round is the zero-based index of the round just finished.
	Round int

	// MaxRounds is the turn's round budget.
	MaxRounds int

	// Answer is the draft answer text accumulated so far.
	Answer string

	// Calls is every tool call issued during the turn.
	Calls []*orchestrator.Call
}

// Verdict is the judge's decision for one round.
type Verdict struct {
	// Done reports whether the loop should stop.
	Done bool

	// Incomplete marks a forced stop with unfinished work.
	Incomplete bool

	// Reason is a short human-readable explanation.
	Reason string

	// Signals records the per-signal outcomes.
	Signals map[Signal]bool
}

// Judge evaluates turn completion.
type Judge struct {
	registry *tools.Registry
	config   Config
	logger   *zap.Logger
}

// New creates a judge. The registry tells failed retryable work apart
// from terminal failures; nil is allowed and treats every failure as
// retryable.
func New(registry *tools.Registry, config Config, logger *zap.Logger) (*Judge, error) {
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Judge{
		registry: registry,
		config:   config,
		logger:   logger,
	}, nil
}

// Evaluate scores the turn. It never returns a continue verdict once
// the round budget is spent: the final round is always Done, flagged
// Incomplete if the signals still fail.
func (j *Judge) Evaluate(in Input) Verdict {
	signals := map[Signal]bool{
		SignalCoverage:     j.coverage(in),
		SignalCompleteness: j.completeness(in),
		SignalFollowUps:    j.followUps(in),
	}

	var total, passed float64
	reason := "all signals passed"
	for sig, weight := range j.config.Weights {
		total += weight
		if signals[sig] {
			passed += weight
		} else {
			reason = fmt.Sprintf("signal %s failed", sig)
		}
	}

	score := 1.0
	if total > 0 {
		score = passed / total
	}

	if score >= j.config.Threshold {
		return Verdict{Done: true, Reason: reason, Signals: signals}
	}

	if in.Round+1 >= in.MaxRounds {
		j.logger.Debug("round budget exhausted",
			zap.Int("round", in.Round),
			zap.Int("max_rounds", in.MaxRounds),
			zap.String("reason", reason))
		return Verdict{Done: true, Incomplete: true, Reason: "round budget exhausted: " + reason, Signals: signals}
	}

	return Verdict{Reason: reason, Signals: signals}
}

// coverage: no call may still be in flight.
func (j *Judge) coverage(in Input) bool {
	for _, call := range in.Calls {
		if !call.Status.Terminal() {
			return false
		}
	}
	return true
}

// completeness: the turn produced something, and failed retryable calls
// were either re-addressed or explained in an answer.
func (j *Judge) completeness(in Input) bool {
	produced := in.Answer != ""
	for _, call := range in.Calls {
		switch call.Status {
		case orchestrator.StatusCompleted:
			if len(call.Result) > 0 {
				produced = true
			}
		case orchestrator.StatusFailed:
			if in.Answer == "" && j.retryable(call.Tool) {
				return false
			}
		}
	}
	return produced
}

// followUps: completed tool results need an answer that folds them in
// before the turn can end. Without one the user would get raw tool
// output or nothing.
func (j *Judge) followUps(in Input) bool {
	if in.Answer != "" {
		return true
	}
	for _, call := range in.Calls {
		if call.Status == orchestrator.StatusCompleted {
			return false
		}
	}
	return true
}

func (j *Judge) retryable(tool string) bool {
	if j.registry == nil {
		return true
	}
	def, err := j.registry.Get(tool)
	if err != nil {
		return true
	}
	return def.Retryable
}

