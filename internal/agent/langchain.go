package agent

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"go.uber.org/zap"

	"github.com/yyup/agentd/internal/config"
	"github.com/yyup/agentd/internal/tools"
)

// LangchainBridge talks to any OpenAI-compatible chat endpoint with
// function tools.
type LangchainBridge struct {
	llm         *openai.LLM
	temperature float64
	logger      *zap.Logger
}

// NewLangchainBridge creates a bridge from the LLM configuration.
func NewLangchainBridge(cfg config.LLMConfig, logger *zap.Logger) (*LangchainBridge, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("llm model required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	// langchaingo rejects an empty token even for endpoints that ignore it.
	token := cfg.APIKey.Value()
	if token == "" {
		token = "unused"
	}

	opts := []openai.Option{
		openai.WithModel(cfg.Model),
		openai.WithToken(token),
	}
	if cfg.BaseURL != "" {
		opts = append(opts, openai.WithBaseURL(cfg.BaseURL))
	}

	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("creating llm client: %w", err)
	}

	return &LangchainBridge{
		llm:         llm,
		temperature: cfg.Temperature,
		logger:      logger,
	}, nil
}

// Think runs one chat completion and converts the choice into a Thought.
func (b *LangchainBridge) Think(ctx context.Context, prompt *Prompt) (*Thought, error) {
	msgs := convertMessages(prompt.Messages)

	callOpts := []llms.CallOption{llms.WithTemperature(b.temperature)}
	if len(prompt.Tools) > 0 {
		callOpts = append(callOpts, llms.WithTools(convertTools(prompt.Tools)))
	}
	if prompt.OnDelta != nil {
		callOpts = append(callOpts, llms.WithStreamingFunc(func(_ context.Context, chunk []byte) error {
			prompt.OnDelta(string(chunk))
			return nil
		}))
	}

	resp, err := b.llm.GenerateContent(ctx, msgs, callOpts...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBridgeUnavailable, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("%w: empty response", ErrBridgeUnavailable)
	}

	choice := resp.Choices[0]
	thought := &Thought{Text: choice.Content}
	for _, tc := range choice.ToolCalls {
		if tc.FunctionCall == nil {
			continue
		}
		thought.ToolRequests = append(thought.ToolRequests, ToolRequest{
			ID:   tc.ID,
			Name: tc.FunctionCall.Name,
			Args: json.RawMessage(tc.FunctionCall.Arguments),
		})
	}

	b.logger.Debug("model responded",
		zap.Int("tool_requests", len(thought.ToolRequests)),
		zap.Bool("has_text", thought.Text != ""))
	return thought, nil
}

// convertMessages maps the transcript onto langchaingo message contents.
func convertMessages(messages []Message) []llms.MessageContent {
	out := make([]llms.MessageContent, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			out = append(out, llms.TextParts(llms.ChatMessageTypeSystem, m.Content))
		case RoleUser:
			out = append(out, llms.TextParts(llms.ChatMessageTypeHuman, m.Content))
		case RoleAssistant:
			mc := llms.MessageContent{Role: llms.ChatMessageTypeAI}
			if m.Content != "" {
				mc.Parts = append(mc.Parts, llms.TextContent{Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				mc.Parts = append(mc.Parts, llms.ToolCall{
					ID:   tc.ID,
					Type: "function",
					FunctionCall: &llms.FunctionCall{
						Name:      tc.Name,
						Arguments: string(tc.Args),
					},
				})
			}
			out = append(out, mc)
		case RoleTool:
			out = append(out, llms.MessageContent{
				Role: llms.ChatMessageTypeTool,
				Parts: []llms.ContentPart{llms.ToolCallResponse{
					ToolCallID: m.ToolCallID,
					Name:       m.ToolName,
					Content:    m.Content,
				}},
			})
		}
	}
	return out
}

// convertTools exposes registry definitions as function tools. The
// parameter schema marshals directly to the JSON-schema shape the API
// expects.
func convertTools(defs []tools.Definition) []llms.Tool {
	out := make([]llms.Tool, 0, len(defs))
	for _, def := range defs {
		out = append(out, llms.Tool{
			Type: "function",
			Function: &llms.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  def.Parameters,
			},
		})
	}
	return out
}
