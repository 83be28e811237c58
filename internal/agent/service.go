package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/yyup/agentd/internal/config"
	"github.com/yyup/agentd/internal/judge"
	"github.com/yyup/agentd/internal/memory"
	"github.com/yyup/agentd/internal/orchestrator"
	"github.com/yyup/agentd/internal/tools"
)

// ErrInvalidRequest indicates a malformed turn request.
var ErrInvalidRequest = errors.New("invalid turn request")

// recallLimit is how many memories pre-seed the system prompt.
const recallLimit = 5

// fallbackAnswer is returned when the loop cannot produce an answer.
// The caller never sees a raw internal error.
const fallbackAnswer = "I was not able to finish that request. Please try again or rephrase it."

// TurnRequest is one user message to process.
type TurnRequest struct {
	// TurnID identifies the turn. Generated when empty.
	TurnID string

	// OwnerID scopes memory recall and write-back. Empty disables memory.
	OwnerID string

	// ConversationID tags episodic write-back. Optional.
	ConversationID string

	// Role selects the persona and the permission scope for tool calls.
	Role string

	// Message is the user's text.
	Message string
}

// Validate checks the request.
func (r *TurnRequest) Validate() error {
	if r.Role == "" {
		return fmt.Errorf("%w: role required", ErrInvalidRequest)
	}
	if r.Message == "" {
		return fmt.Errorf("%w: message required", ErrInvalidRequest)
	}
	return nil
}

// TurnResult is the outcome of one turn.
type TurnResult struct {
	TurnID string

	// Answer is always non-empty; a forced stop gets a fallback text.
	Answer string

	// Rounds is how many think rounds ran.
	Rounds int

	// Calls is every tool call issued, in dispatch order.
	Calls []*orchestrator.Call

	// CallCounts tallies calls by terminal status.
	CallCounts map[orchestrator.Status]int

	// Incomplete marks a turn stopped by the round budget, the turn
	// timeout or a bridge failure.
	Incomplete bool

	Duration time.Duration
}

// Service is the embedding host's entry point: it owns the
// think/act/judge loop and wires the bridge, orchestrator, judge and
// memory together.
type Service struct {
	bridge   Bridge
	orch     *orchestrator.Orchestrator
	registry *tools.Registry
	judge    *judge.Judge
	memory   *memory.Manager
	config   config.AgentConfig
	logger   *zap.Logger
	metrics  *Metrics
}

// Option customizes a Service.
type Option func(*Service)

// WithMetrics attaches metrics instrumentation.
func WithMetrics(metrics *Metrics) Option {
	return func(s *Service) { s.metrics = metrics }
}

// WithMemory attaches the memory manager for prompt enrichment and
// episodic write-back.
func WithMemory(manager *memory.Manager) Option {
	return func(s *Service) { s.memory = manager }
}

// NewService creates the conversation service.
func NewService(bridge Bridge, orch *orchestrator.Orchestrator, registry *tools.Registry, j *judge.Judge, cfg config.AgentConfig, logger *zap.Logger, opts ...Option) (*Service, error) {
	if bridge == nil {
		return nil, fmt.Errorf("bridge cannot be nil")
	}
	if orch == nil {
		return nil, fmt.Errorf("orchestrator cannot be nil")
	}
	if registry == nil {
		return nil, fmt.Errorf("registry cannot be nil")
	}
	if j == nil {
		return nil, fmt.Errorf("judge cannot be nil")
	}
	if cfg.MaxRounds < 1 {
		return nil, fmt.Errorf("max rounds must be >= 1, got %d", cfg.MaxRounds)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Service{
		bridge:   bridge,
		orch:     orch,
		registry: registry,
		judge:    j,
		config:   cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// SubmitTurn processes one turn to completion.
func (s *Service) SubmitTurn(ctx context.Context, req TurnRequest) (*TurnResult, error) {
	return s.SubmitTurnStream(ctx, req, nil)
}

// SubmitTurnStream processes one turn, emitting events to sink as the
// loop progresses. A nil sink disables streaming. The returned result
// always carries an answer; internal failures surface as a fallback
// answer with Incomplete set, never as an error.
func (s *Service) SubmitTurnStream(ctx context.Context, req TurnRequest, sink Sink) (*TurnResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.TurnID == "" {
		req.TurnID = uuid.NewString()
	}

	if timeout := s.config.TurnTimeout.Duration(); timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	emit := func(ev Event) {
		if sink != nil {
			sink(ev)
		}
	}

	start := time.Now()
	memories := s.recall(ctx, req)

	messages := []Message{
		{Role: RoleSystem, Content: BuildSystemPrompt(req.Role, memories)},
		{Role: RoleUser, Content: req.Message},
	}

	var (
		allCalls   []*orchestrator.Call
		answer     string
		incomplete bool
		rounds     int
	)

	for round := 0; round < s.config.MaxRounds; round++ {
		rounds = round + 1

		thought, err := s.bridge.Think(ctx, &Prompt{
			Messages: messages,
			Tools:    s.registry.List(""),
		})
		if err != nil {
			s.logger.Warn("think round failed",
				zap.String("turn_id", req.TurnID),
				zap.Int("round", round),
				zap.Error(err))
			incomplete = true
			break
		}

		if len(thought.ToolRequests) > 0 {
			if thought.Text != "" {
				emit(Event{Type: EventThinkingDelta, Text: thought.Text})
			}
			calls := s.dispatch(ctx, req.Role, thought, emit)
			allCalls = append(allCalls, calls...)
			messages = appendCallExchange(messages, thought, calls)
		} else if thought.Text != "" {
			answer = thought.Text
			emit(Event{Type: EventAnswerDelta, Text: answer})
			messages = append(messages, Message{Role: RoleAssistant, Content: answer})
		}

		verdict := s.judge.Evaluate(judge.Input{
			Round:     round,
			MaxRounds: s.config.MaxRounds,
			Answer:    answer,
			Calls:     allCalls,
		})
		if verdict.Done {
			incomplete = verdict.Incomplete
			break
		}
		s.logger.Debug("continuing turn",
			zap.String("turn_id", req.TurnID),
			zap.Int("round", round),
			zap.String("reason", verdict.Reason))
	}

	if answer == "" {
		answer = fallbackAnswer
		incomplete = true
	}

	result := &TurnResult{
		TurnID:     req.TurnID,
		Answer:     answer,
		Rounds:     rounds,
		Calls:      allCalls,
		CallCounts: countByStatus(allCalls),
		Incomplete: incomplete,
		Duration:   time.Since(start),
	}

	s.remember(ctx, req, result)

	if s.metrics != nil {
		s.metrics.RecordTurn(ctx, req.Role, result.Incomplete, result.Rounds, result.Duration)
	}
	s.logger.Info("turn finished",
		zap.String("turn_id", req.TurnID),
		zap.String("role", req.Role),
		zap.Int("rounds", result.Rounds),
		zap.Int("tool_calls", len(allCalls)),
		zap.Bool("incomplete", result.Incomplete))

	emit(Event{Type: EventDone, Result: result})
	return result, nil
}

// dispatch fans the requests out through the orchestrator and emits the
// per-call events.
func (s *Service) dispatch(ctx context.Context, role string, thought *Thought, emit func(Event)) []*orchestrator.Call {
	reqs := make([]orchestrator.Request, len(thought.ToolRequests))
	for i, tr := range thought.ToolRequests {
		reqs[i] = orchestrator.Request{ID: tr.ID, Tool: tr.Name, Args: tr.Args}
		emit(Event{Type: EventToolCallStarted, Call: &orchestrator.Call{
			ID:     tr.ID,
			Tool:   tr.Name,
			Args:   tr.Args,
			Status: orchestrator.StatusPending,
		}})
	}

	calls := s.orch.ExecuteAll(ctx, role, reqs)
	for _, call := range calls {
		emit(Event{Type: EventToolCallResult, Call: call})
	}
	return calls
}

// appendCallExchange records the assistant's tool requests and their
// results in the transcript so the next round sees them.
func appendCallExchange(messages []Message, thought *Thought, calls []*orchestrator.Call) []Message {
	messages = append(messages, Message{
		Role:      RoleAssistant,
		Content:   thought.Text,
		ToolCalls: thought.ToolRequests,
	})
	for _, call := range calls {
		content := string(call.Result)
		if call.Status != orchestrator.StatusCompleted {
			content = "error: " + call.Err.Error()
		}
		messages = append(messages, Message{
			Role:       RoleTool,
			Content:    content,
			ToolCallID: call.ID,
			ToolName:   call.Tool,
		})
	}
	return messages
}

// recall fetches the most relevant memories for the prompt. Best
// effort: failures log and return nothing.
func (s *Service) recall(ctx context.Context, req TurnRequest) []memory.Record {
	if s.memory == nil || req.OwnerID == "" {
		return nil
	}
	records, err := s.memory.Retrieve(ctx, memory.RetrieveInput{
		OwnerID: req.OwnerID,
		Query:   req.Message,
		K:       recallLimit,
	})
	if err != nil {
		s.logger.Warn("memory recall failed",
			zap.String("owner_id", req.OwnerID),
			zap.Error(err))
		return nil
	}
	return records
}

// remember writes an episodic summary of the turn. Best effort, and
// detached from the turn deadline so a timed-out turn is still recorded.
func (s *Service) remember(ctx context.Context, req TurnRequest, result *TurnResult) {
	if s.memory == nil || req.OwnerID == "" {
		return
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()

	summary := fmt.Sprintf("asked %q and got: %s", req.Message, truncate(result.Answer, 200))
	confirmed := !result.Incomplete && result.CallCounts[orchestrator.StatusCompleted] > 0
	if _, err := s.memory.WriteEpisodicEvent(writeCtx, req.OwnerID, req.ConversationID, req.Role, summary, result.Incomplete, confirmed); err != nil {
		s.logger.Warn("episodic write-back failed",
			zap.String("owner_id", req.OwnerID),
			zap.Error(err))
	}
}

func countByStatus(calls []*orchestrator.Call) map[orchestrator.Status]int {
	counts := make(map[orchestrator.Status]int)
	for _, call := range calls {
		counts[call.Status]++
	}
	return counts
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "..."
}
