package judge

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yyup/agentd/internal/orchestrator"
	"github.com/yyup/agentd/internal/tools"
)

func newTestJudge(t *testing.T, cfg Config) (*Judge, *tools.Registry) {
	t.Helper()

	registry := tools.NewRegistry(nil)
	noop := func(ctx context.Context, args map[string]any) (any, error) { return nil, nil }

	require.NoError(t, registry.Register(tools.Definition{
		Name:        "any_query",
		Category:    tools.CategoryQuery,
		Description: "read query",
		Parameters:  tools.ObjectSchema(map[string]*tools.Schema{"sql": tools.StringProperty("statement")}, "sql"),
		SQLArgument: "sql",
		Retryable:   true,
		Handler:     noop,
	}))
	require.NoError(t, registry.Register(tools.Definition{
		Name:        "generate_document",
		Category:    tools.CategoryGeneration,
		Description: "generate a document",
		Parameters:  tools.ObjectSchema(map[string]*tools.Schema{"title": tools.StringProperty("title")}, "title"),
		Retryable:   true,
		Handler:     noop,
	}))

	j, err := New(registry, cfg, nil)
	require.NoError(t, err)
	return j, registry
}

func completedCall(tool, result string) *orchestrator.Call {
	return &orchestrator.Call{
		Tool:   tool,
		Status: orchestrator.StatusCompleted,
		Result: json.RawMessage(result),
	}
}

func failedCall(tool string) *orchestrator.Call {
	return &orchestrator.Call{Tool: tool, Status: orchestrator.StatusFailed}
}

func TestEvaluate_AnswerOnlyTurnIsDone(t *testing.T) {
	j, _ := newTestJudge(t, Config{})

	v := j.Evaluate(Input{Round: 0, MaxRounds: 12, Answer: "Three children are enrolled."})

	assert.True(t, v.Done)
	assert.False(t, v.Incomplete)
	assert.True(t, v.Signals[SignalCoverage])
	assert.True(t, v.Signals[SignalCompleteness])
	assert.True(t, v.Signals[SignalFollowUps])
}

func TestEvaluate_EmptyRoundContinues(t *testing.T) {
	j, _ := newTestJudge(t, Config{})

	v := j.Evaluate(Input{Round: 0, MaxRounds: 12})

	assert.False(t, v.Done)
	assert.False(t, v.Signals[SignalCompleteness])
}

func TestEvaluate_InFlightCallContinues(t *testing.T) {
	j, _ := newTestJudge(t, Config{})

	v := j.Evaluate(Input{
		Round:     0,
		MaxRounds: 12,
		Answer:    "partial",
		Calls:     []*orchestrator.Call{{Tool: "any_query", Status: orchestrator.StatusCalling}},
	})

	assert.False(t, v.Done)
	assert.False(t, v.Signals[SignalCoverage])
}

func TestEvaluate_GenerationResultWantsSummary(t *testing.T) {
	j, _ := newTestJudge(t, Config{})

	// A generated document with no answer folding it in: keep going.
	v := j.Evaluate(Input{
		Round:     0,
		MaxRounds: 12,
		Calls:     []*orchestrator.Call{completedCall("generate_document", `{"doc": "weekly plan"}`)},
	})
	assert.False(t, v.Done)
	assert.True(t, v.Signals[SignalCompleteness])
	assert.False(t, v.Signals[SignalFollowUps])

	// Once the answer exists the same calls judge done.
	v = j.Evaluate(Input{
		Round:     1,
		MaxRounds: 12,
		Answer:    "Here is the weekly plan.",
		Calls:     []*orchestrator.Call{completedCall("generate_document", `{"doc": "weekly plan"}`)},
	})
	assert.True(t, v.Done)
}

func TestEvaluate_QueryResultWantsSummary(t *testing.T) {
	j, _ := newTestJudge(t, Config{})

	// A raw query result is not an answer yet.
	v := j.Evaluate(Input{
		Round:     0,
		MaxRounds: 12,
		Calls:     []*orchestrator.Call{completedCall("any_query", `{"rows": 3}`)},
	})
	assert.False(t, v.Done)
	assert.False(t, v.Signals[SignalFollowUps])
}

func TestEvaluate_FailedRetryableBlocksUntilAnswered(t *testing.T) {
	j, _ := newTestJudge(t, Config{})

	v := j.Evaluate(Input{
		Round:     0,
		MaxRounds: 12,
		Calls:     []*orchestrator.Call{failedCall("any_query")},
	})
	assert.False(t, v.Done)
	assert.False(t, v.Signals[SignalCompleteness])

	// An answer explaining the failure satisfies completeness.
	v = j.Evaluate(Input{
		Round:     1,
		MaxRounds: 12,
		Answer:    "I could not read the attendance records.",
		Calls:     []*orchestrator.Call{failedCall("any_query")},
	})
	assert.True(t, v.Done)
}

func TestEvaluate_NeverContinuesPastRoundBudget(t *testing.T) {
	j, _ := newTestJudge(t, Config{})

	const maxRounds = 5
	for round := 0; round < 10; round++ {
		v := j.Evaluate(Input{Round: round, MaxRounds: maxRounds})
		if round+1 >= maxRounds {
			assert.True(t, v.Done, "round %d", round)
			assert.True(t, v.Incomplete, "round %d", round)
		} else {
			assert.False(t, v.Done, "round %d", round)
		}
	}
}

func TestEvaluate_ConfigurableWeights(t *testing.T) {
	// Drop the follow-up signal entirely: a bare generation result is
	// then enough to finish.
	j, _ := newTestJudge(t, Config{
		Weights: map[Signal]float64{
			SignalCoverage:     1.0,
			SignalCompleteness: 1.0,
		},
	})

	v := j.Evaluate(Input{
		Round:     0,
		MaxRounds: 12,
		Calls:     []*orchestrator.Call{completedCall("generate_document", `{"doc": "x"}`)},
	})
	assert.True(t, v.Done)
}

func TestEvaluate_NilRegistryTreatsFailuresAsRetryable(t *testing.T) {
	j, err := New(nil, Config{}, nil)
	require.NoError(t, err)

	// Without a registry every failure counts as retryable work.
	v := j.Evaluate(Input{
		Round:     0,
		MaxRounds: 12,
		Calls:     []*orchestrator.Call{failedCall("some_tool")},
	})
	assert.False(t, v.Done)
	assert.False(t, v.Signals[SignalCompleteness])

	v = j.Evaluate(Input{
		Round:     1,
		MaxRounds: 12,
		Answer:    "That tool is unavailable right now.",
		Calls:     []*orchestrator.Call{failedCall("some_tool")},
	})
	assert.True(t, v.Done)
}

func TestNew_RejectsInvalidConfig(t *testing.T) {
	_, err := New(nil, Config{Threshold: 2}, nil)
	assert.Error(t, err)

	_, err = New(nil, Config{Weights: map[Signal]float64{SignalCoverage: -1}}, nil)
	assert.Error(t, err)
}
