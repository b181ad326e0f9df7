package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/introspectai/learnloop/pkg/config"
	"github.com/introspectai/learnloop/pkg/core"
	"github.com/introspectai/learnloop/pkg/embeddings"
	"github.com/introspectai/learnloop/pkg/learning"
	"github.com/introspectai/learnloop/pkg/llms"
	"github.com/introspectai/learnloop/pkg/logging"
	"github.com/introspectai/learnloop/pkg/obslog"
	"github.com/introspectai/learnloop/pkg/orchestrator"
	"github.com/introspectai/learnloop/pkg/snapshot"
	"github.com/introspectai/learnloop/pkg/tools"
)

var (
	configPath string
	dbPath     string
)

var rootCmd = &cobra.Command{
	Use:   "learnloop",
	Short: "A coding agent that learns which of its approaches work",
	Long: `learnloop runs coding tasks through an LLM-driven control loop with
human approval on tool calls, records every step, and mines the record
for approaches that correlate with good outcomes. The next task's
prompts carry what the last ones taught it.`,
	Version:       "0.1.0",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one task through the control loop",
	RunE:  runTask,
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Print the aggregate learning statistics",
	RunE:  runStats,
}

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Export the observation log to a Parquet file",
	RunE:  runExport,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to YAML config file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "override the observation database path")

	runCmd.Flags().String("goal", "", "the task to run")
	runCmd.Flags().String("workspace", ".", "workspace directory the tools operate on")
	runCmd.Flags().String("mcp-server", "", "command line of an MCP server to source extra tools from")
	runCmd.Flags().Bool("yes", false, "approve every tool call without asking")
	_ = runCmd.MarkFlagRequired("goal")

	exportCmd.Flags().String("out", "observations.parquet", "output file path")

	rootCmd.AddCommand(runCmd, statsCmd, exportCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// loadConfig builds the validated config plus the process logger.
func loadConfig() (*config.Config, *logging.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if dbPath != "" {
		cfg.Storage.Path = dbPath
	}

	logger := logging.NewLogger(logging.Config{
		Severity: logging.ParseSeverity(cfg.Logging.Level),
		Outputs:  []logging.Output{logging.NewConsoleOutput(true)},
	})
	logging.SetLogger(logger)
	return cfg, logger, nil
}

func runTask(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	goal, _ := cmd.Flags().GetString("goal")
	workspaceDir, _ := cmd.Flags().GetString("workspace")
	mcpServer, _ := cmd.Flags().GetString("mcp-server")
	approveAll, _ := cmd.Flags().GetBool("yes")

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log, err := obslog.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer log.Close()

	// A missing embedding model is not fatal; the pipeline degrades to
	// structural features.
	var embedder core.Embedder
	if fe, err := embeddings.NewFastEmbedder(cfg.Embeddings, logger); err != nil {
		logger.Warn(ctx, "embedding model unavailable, learning from structural features only: %v", err)
	} else {
		embedder = fe
		defer fe.Close()
	}

	svc := learning.NewService(cfg.Learning, embedder, logger)
	if _, err := svc.WarmStart(ctx, log); err != nil {
		logger.Warn(ctx, "warm start skipped: %v", err)
	}
	svc.Start()
	defer svc.Stop()

	registry := tools.NewRegistry()
	if err := tools.RegisterLocalTools(registry, workspaceDir); err != nil {
		return err
	}
	if mcpServer != "" {
		if err := attachMCPServer(ctx, registry, mcpServer); err != nil {
			return err
		}
	}

	generator, err := llms.NewAnthropicGenerator(cfg.LLM, logger)
	if err != nil {
		return err
	}

	snapshots, err := snapshot.NewStore(workspaceDir, "", logger)
	if err != nil {
		return err
	}
	defer snapshots.Cleanup()

	var approver core.Approver = newConsoleApprover(os.Stdin, os.Stdout)
	orchCfg := cfg.Orchestrator
	if approveAll {
		orchCfg.AutoApprove = registry.Names()
	}

	orch, err := orchestrator.New(orchCfg, orchestrator.Deps{
		Generator: generator,
		Executor:  tools.NewExecutor(registry, logger),
		Approver:  approver,
		Snapshots: snapshots,
		Log:       log,
		Learning:  svc,
		Logger:    logger,
	})
	if err != nil {
		return err
	}
	orch.WorkspaceSummary = summarizeWorkspace(workspaceDir)

	task, runErr := orch.Run(ctx, goal)
	fmt.Printf("\ntask %s: %s", task.ID, task.Status)
	if task.FailReason != "" {
		fmt.Printf(" (%s)", task.FailReason)
	}
	fmt.Printf(", %d steps\n", len(task.Steps))

	if task.Status != core.TaskCompleted {
		return runErr
	}
	return nil
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := obslog.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer log.Close()

	ctx := cmd.Context()
	observationCount, err := log.Count(ctx, obslog.Filter{})
	if err != nil {
		return err
	}
	taskIDs, err := log.TaskIDs(ctx)
	if err != nil {
		return err
	}

	// The learning state is rebuilt from the log; it is not persisted
	// separately.
	svc := learning.NewService(cfg.Learning, nil, logger)
	if _, err := svc.WarmStart(ctx, log); err != nil {
		return err
	}

	report := struct {
		ObservationCount int            `json:"observation_count"`
		TaskCount        int            `json:"task_count"`
		Learning         learning.Stats `json:"learning"`
	}{
		ObservationCount: observationCount,
		TaskCount:        len(taskIDs),
		Learning:         svc.Stats(),
	}

	out, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, _, err := loadConfig()
	if err != nil {
		return err
	}

	log, err := obslog.Open(cfg.Storage.Path)
	if err != nil {
		return err
	}
	defer log.Close()

	out, _ := cmd.Flags().GetString("out")
	n, err := log.ExportParquet(cmd.Context(), out, obslog.Filter{})
	if err != nil {
		return err
	}
	fmt.Printf("exported %d observations to %s\n", n, out)
	return nil
}

// attachMCPServer launches the server command and bridges its tools into
// the registry. The server dies with the task context.
func attachMCPServer(ctx context.Context, registry *tools.Registry, commandLine string) error {
	parts := strings.Fields(commandLine)
	if len(parts) == 0 {
		return fmt.Errorf("empty MCP server command")
	}
	proc := exec.Command(parts[0], parts[1:]...)
	stdin, err := proc.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := proc.StdoutPipe()
	if err != nil {
		return err
	}
	if err := proc.Start(); err != nil {
		return err
	}
	go func() {
		<-ctx.Done()
		_ = proc.Process.Kill()
	}()

	mcpClient, err := tools.NewStdioMCPClient(stdout, stdin, "learnloop", rootCmd.Version)
	if err != nil {
		return err
	}
	return tools.RegisterMCPTools(ctx, registry, mcpClient)
}

// summarizeWorkspace lists the workspace's top level for the prompt.
func summarizeWorkspace(dir string) string {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		name := e.Name()
		if strings.HasPrefix(name, ".") {
			continue
		}
		if e.IsDir() {
			name += "/"
		}
		names = append(names, name)
	}
	return strings.Join(names, "\n")
}
