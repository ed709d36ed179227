// Command coreagentd runs the conversation execution engine from a
// terminal: one task per invocation, streaming the turn's notifications to
// stdout.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haasonsaas/nexus-coreagent/internal/agent"
	agentctx "github.com/haasonsaas/nexus-coreagent/internal/agent/context"
	"github.com/haasonsaas/nexus-coreagent/internal/agent/providers"
	"github.com/haasonsaas/nexus-coreagent/internal/config"
	"github.com/haasonsaas/nexus-coreagent/internal/storage"
	"github.com/haasonsaas/nexus-coreagent/internal/tools"
	"github.com/haasonsaas/nexus-coreagent/pkg/models"
)

var version = "dev"

func main() {
	root := &cobra.Command{
		Use:           "coreagentd",
		Short:         "Conversation execution engine for coding agents",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	var configPath string
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to a YAML config file")

	root.AddCommand(newRunCmd(&configPath))
	root.AddCommand(newModelsCmd(&configPath))
	root.AddCommand(newVersionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (config.Config, error) {
	if path == "" {
		return config.Default(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("read config: %w", err)
	}
	return config.Parse(raw)
}

func buildProvider(ctx context.Context, cfg config.Config) (providers.Provider, error) {
	creds := providers.StaticCredentials{}
	for id, c := range cfg.Credentials {
		creds[id] = &providers.Credential{
			APIKey:             c.APIKey,
			BaseURL:            c.BaseURL,
			ModelID:            c.ModelID,
			CompatibilityMode:  c.CompatibilityMode,
			AWSRegion:          c.AWSRegion,
			AWSAccessKeyID:     c.AWSAccessKeyID,
			AWSSecretAccessKey: c.AWSSecretAccessKey,
			AWSSessionToken:    c.AWSSessionToken,
		}
	}
	return providers.NewRegistry(creds).Resolve(ctx, cfg.Provider)
}

func buildTools(cfg config.Config) *tools.Registry {
	registry := tools.NewRegistry()
	registry.Timeout = cfg.Loop.ToolTimeout.Std()

	fsCfg := tools.FSConfig{MaxFileSize: cfg.Tools.MaxFileSize}
	registry.MustRegister(tools.NewReadTool(fsCfg))
	registry.MustRegister(tools.NewReadImageTool(fsCfg))
	registry.MustRegister(tools.NewWriteTool())
	registry.MustRegister(tools.NewPatchTool())
	registry.MustRegister(tools.NewRemoveTool())
	registry.MustRegister(tools.NewSearchTool(tools.SearchConfig{MaxLines: cfg.Tools.MaxSearchLines}))
	registry.MustRegister(tools.NewShellTool(tools.ShellConfig{
		Timeout:   cfg.Loop.ToolTimeout.Std(),
		HeadLines: cfg.Tools.ShellHeadLines,
		TailLines: cfg.Tools.ShellTailLines,
		WorkDir:   cfg.Tools.Workspace,
	}))
	registry.MustRegister(tools.NewFetchTool(tools.FetchConfig{
		TruncationLimit: cfg.Tools.FetchTruncationLimit,
		Timeout:         cfg.HTTP.ReadTimeout.Std(),
	}))
	registry.MustRegister(tools.NewPlanTool())
	registry.MustRegister(tools.NewFollowupTool())
	registry.MustRegister(tools.NewCompletionTool())
	return registry
}

func buildStores(cfg config.Config) (storage.StoreSet, error) {
	if cfg.Storage == "" || cfg.Storage == "memory" {
		return storage.NewMemoryStores(nil), nil
	}
	return storage.NewSQLiteStoresFromDSN(cfg.Storage, nil)
}

func newRunCmd(configPath *string) *cobra.Command {
	var model string
	var metricsAddr string
	var otlpEndpoint string

	cmd := &cobra.Command{
		Use:   "run [task]",
		Short: "Run one task through the turn loop",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			provider, err := buildProvider(ctx, cfg)
			if err != nil {
				return err
			}
			stores, err := buildStores(cfg)
			if err != nil {
				return err
			}
			defer stores.Close()

			registry := prometheus.NewRegistry()
			metrics := agent.NewMetrics(registry)
			if metricsAddr != "" {
				mux := http.NewServeMux()
				mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
				server := &http.Server{Addr: metricsAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
				go server.ListenAndServe()
				defer server.Close()
			}

			tracer, shutdownTracing, err := setupTracing(ctx, otlpEndpoint)
			if err != nil {
				return err
			}
			defer shutdownTracing(context.Background())

			printer := newPrinter(os.Stdout)
			loop, err := agent.NewLoop(agent.Options{
				Provider:      provider,
				Tools:         buildTools(cfg),
				Conversations: stores.Conversations,
				Jobs:          agent.NewMemoryJobStore(),
				Sink:          agent.CallbackSink(printer.print),
				Approval:      approvalPolicy(cfg),
				Metrics:       metrics,
				Logger:        slog.New(slog.NewTextHandler(os.Stderr, nil)),
				Tracer:        tracer,
				Config: agent.Config{
					MaxTurns:               cfg.Loop.MaxTurns,
					MaxRetryAttempts:       cfg.Loop.MaxRetryAttempts,
					MaxToolFailuresPerTurn: cfg.Loop.MaxToolFailuresPerTurn,
					DoomLoopThreshold:      cfg.Loop.DoomLoopThreshold,
					ToolParallelism:        cfg.Loop.ToolParallelism,
					AsyncTools:             cfg.Loop.AsyncTools,
					Compaction: agentctx.CompactionWindows{
						EvictionWindow:  cfg.Loop.EvictionWindow,
						RetentionWindow: cfg.Loop.RetentionWindow,
					},
				},
			})
			if err != nil {
				return err
			}

			conv := &models.Conversation{
				ID:        uuid.NewString(),
				Model:     firstNonEmpty(model, cfg.Model),
				CreatedAt: time.Now(),
			}
			task := args[0]
			for _, extra := range args[1:] {
				task += " " + extra
			}
			return loop.Run(ctx, conv, task)
		},
	}
	cmd.Flags().StringVar(&model, "model", "", "model id override")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address")
	cmd.Flags().StringVar(&otlpEndpoint, "otlp-endpoint", "", "export traces to this OTLP/gRPC endpoint")
	return cmd
}

func approvalPolicy(cfg config.Config) *agent.ApprovalPolicy {
	if len(cfg.Loop.RequireApproval) == 0 {
		return nil
	}
	return &agent.ApprovalPolicy{
		Require:  cfg.Loop.RequireApproval,
		Approver: agent.ApproverFunc(promptApproval),
	}
}

// promptApproval asks on the terminal; non-interactive runs deny gated
// tools.
func promptApproval(_ context.Context, call models.ToolCall) (bool, error) {
	if !term.IsTerminal(int(os.Stdin.Fd())) {
		return false, nil
	}
	fmt.Printf("allow %s %s? [y/N] ", call.Name, string(call.Input))
	var answer string
	fmt.Scanln(&answer)
	return answer == "y" || answer == "Y", nil
}

func newModelsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "models",
		Short: "List the configured provider's models",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			provider, err := buildProvider(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			list, err := provider.Models(cmd.Context())
			if err != nil {
				return err
			}
			for _, m := range list {
				fmt.Printf("%s\t%s\n", m.ID, m.Name)
			}
			return nil
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		Run: func(*cobra.Command, []string) {
			fmt.Println("coreagentd", version)
		},
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
