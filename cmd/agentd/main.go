// Package main implements the agentd CLI: a thin driver around the
// embedded agent engine for smoke-testing a configuration end to end.
package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/yyup/agentd/internal/agent"
	"github.com/yyup/agentd/internal/config"
	"github.com/yyup/agentd/internal/embeddings"
	"github.com/yyup/agentd/internal/judge"
	"github.com/yyup/agentd/internal/logging"
	"github.com/yyup/agentd/internal/memory"
	"github.com/yyup/agentd/internal/orchestrator"
	"github.com/yyup/agentd/internal/permission"
	"github.com/yyup/agentd/internal/tools"
	"github.com/yyup/agentd/internal/vectorstore"
)

var (
	configPath string
	role       string
	ownerID    string
	stream     bool

	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:     "agentd",
	Short:   "Embedded conversational agent engine for kindergarten administration",
	Version: version,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config YAML (env vars override)")
	askCmd.Flags().StringVar(&role, "role", "admin", "role the turn runs as (admin, principal, teacher, parent)")
	askCmd.Flags().StringVar(&ownerID, "owner", "", "memory owner ID; empty disables memory")
	askCmd.Flags().BoolVar(&stream, "stream", false, "print events as they happen")
	checkSQLCmd.Flags().StringVar(&role, "role", "admin", "role to check the statement as")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(checkSQLCmd)
}

// askCmd runs one turn against the configured model endpoint. No tool
// handlers are attached here; the host application injects those, so
// this command exercises the loop, memory and model wiring only.
var askCmd = &cobra.Command{
	Use:   "ask [message]",
	Short: "Run one agent turn and print the answer",
	Args:  cobra.ExactArgs(1),
	RunE:  runAsk,
}

// checkSQLCmd validates a statement against the permission policy
// without touching the model.
var checkSQLCmd = &cobra.Command{
	Use:   "check-sql [statement]",
	Short: "Check a SQL statement against the permission policy",
	Args:  cobra.ExactArgs(1),
	RunE:  runCheckSQL,
}

func runAsk(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger, err := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		return fmt.Errorf("creating logger: %w", err)
	}
	defer logging.Sync(logger)

	svc, cleanup, err := buildService(cfg, logger)
	if err != nil {
		return err
	}
	defer cleanup()

	req := agent.TurnRequest{
		OwnerID: ownerID,
		Role:    role,
		Message: args[0],
	}

	var sink agent.Sink
	if stream {
		sink = printEvent
	}

	result, err := svc.SubmitTurnStream(cmd.Context(), req, sink)
	if err != nil {
		return err
	}

	if !stream {
		fmt.Println(result.Answer)
	}
	logger.Info("turn done",
		zap.Int("rounds", result.Rounds),
		zap.Int("tool_calls", len(result.Calls)),
		zap.Bool("incomplete", result.Incomplete),
		zap.Duration("duration", result.Duration))
	return nil
}

func runCheckSQL(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	gate, err := buildGate(cfg, zap.NewNop())
	if err != nil {
		return err
	}

	if err := gate.ValidateStatement(role, args[0]); err != nil {
		fmt.Printf("denied: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("allowed")
	return nil
}

// buildService wires the full engine from configuration. The returned
// cleanup stops the memory embed worker and closes the vector store.
func buildService(cfg *config.Config, logger *zap.Logger) (*agent.Service, func(), error) {
	gate, err := buildGate(cfg, logger.Named("permission"))
	if err != nil {
		return nil, nil, err
	}

	registry := tools.NewRegistry(logger.Named("tools"))

	orch, err := orchestrator.New(registry, gate, orchestrator.Config{
		MaxRetries:   cfg.Agent.MaxRetries,
		RetryBackoff: cfg.Agent.RetryBackoff.Duration(),
		CallTimeout:  cfg.Agent.ToolTimeout.Duration(),
		Parallelism:  cfg.Agent.Parallelism,
	}, logger.Named("orchestrator"), orchestrator.WithMetrics(orchestrator.NewMetrics(logger)))
	if err != nil {
		return nil, nil, fmt.Errorf("creating orchestrator: %w", err)
	}

	j, err := judge.New(registry, judge.Config{}, logger.Named("judge"))
	if err != nil {
		return nil, nil, fmt.Errorf("creating judge: %w", err)
	}

	provider, err := embeddings.NewProvider(cfg.Embeddings)
	if err != nil {
		return nil, nil, fmt.Errorf("creating embedding provider: %w", err)
	}

	store, err := vectorstore.NewChromemStore(vectorstore.ChromemConfig{
		Path:     cfg.Memory.Path,
		Compress: cfg.Memory.Compress,
	}, logger.Named("vectorstore"))
	if err != nil {
		return nil, nil, fmt.Errorf("creating vector store: %w", err)
	}

	manager, err := memory.NewManager(store, provider, memory.Config{
		Capacity:   cfg.Memory.Capacity,
		DefaultTTL: cfg.Memory.DefaultTTL.Duration(),
	}, logger.Named("memory"), memory.WithMetrics(memory.NewMetrics(logger)))
	if err != nil {
		_ = store.Close()
		return nil, nil, fmt.Errorf("creating memory manager: %w", err)
	}

	cleanup := func() {
		_ = manager.Close()
		_ = store.Close()
	}

	bridge, err := agent.NewLangchainBridge(cfg.LLM, logger.Named("bridge"))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating llm bridge: %w", err)
	}

	svc, err := agent.NewService(bridge, orch, registry, j, cfg.Agent, logger.Named("agent"),
		agent.WithMemory(manager),
		agent.WithMetrics(agent.NewMetrics(logger)))
	if err != nil {
		cleanup()
		return nil, nil, fmt.Errorf("creating agent service: %w", err)
	}
	return svc, cleanup, nil
}

// buildGate loads the policy file when configured, else the builtin
// policy.
func buildGate(cfg *config.Config, logger *zap.Logger) (*permission.Gate, error) {
	var policy *permission.Policy
	if cfg.Permission.PolicyPath != "" {
		content, err := os.ReadFile(cfg.Permission.PolicyPath)
		if err != nil {
			return nil, fmt.Errorf("reading policy file: %w", err)
		}
		policy, err = permission.LoadPolicy(content)
		if err != nil {
			return nil, fmt.Errorf("loading policy: %w", err)
		}
	}
	return permission.NewGate(policy, logger)
}

// printEvent renders one streamed turn event to stdout.
func printEvent(ev agent.Event) {
	switch ev.Type {
	case agent.EventThinkingDelta:
		fmt.Printf("[thinking] %s\n", ev.Text)
	case agent.EventToolCallStarted:
		fmt.Printf("[tool] %s started\n", ev.Call.Tool)
	case agent.EventToolCallResult:
		fmt.Printf("[tool] %s %s\n", ev.Call.Tool, ev.Call.Status)
	case agent.EventAnswerDelta:
		fmt.Print(ev.Text)
	case agent.EventDone:
		fmt.Println()
		stats, _ := json.Marshal(ev.Result.CallCounts)
		fmt.Printf("[done] rounds=%d calls=%s incomplete=%v\n", ev.Result.Rounds, stats, ev.Result.Incomplete)
	}
}
