package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"shoptalk/internal/config"
	"shoptalk/internal/logging"
	"shoptalk/internal/orchestrator"
	"shoptalk/internal/perception"
	"shoptalk/internal/sandbox"
	"shoptalk/internal/store"
)

var (
	// Global flags
	verbose    bool
	configPath string
	useMock    bool
	engineMode string

	// Per-command flags
	resetEachRequest bool
	historyLimit     int

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "shoptalk",
	Short: "shoptalk - natural-language storefront assistant",
	Long: `shoptalk answers customer requests against a live inventory and
transaction ledger.

Each request is sent to a generation collaborator, the returned payload is
extracted and executed in a restricted sandbox, and the resulting mutations
are applied to the store all-or-nothing. Ledger and inventory invariants are
re-checked after every run.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zcfg := zap.NewProductionConfig()
		if verbose {
			zcfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zcfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		cfg, err = config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if engineMode != "" {
			cfg.Engine.Mode = engineMode
		}
		if useMock {
			cfg.LLM.Provider = "mock"
		}

		return logging.Configure(logging.Options{
			Dir:        filepath.Join(filepath.Dir(cfg.Store.DatabasePath), "logs"),
			DebugMode:  cfg.Logging.DebugMode || verbose,
			Level:      cfg.Logging.Level,
			Categories: cfg.Logging.Categories,
		})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.CloseAll()
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

var askCmd = &cobra.Command{
	Use:   "ask [request]",
	Short: "Answer a single customer request",
	Long: `Runs one full cycle: generation, payload extraction, sandboxed
execution, invariant check, and classified response.

Example:
  shoptalk ask "I'd like two walnut desk organizers please"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Reset the store to its seed fixture",
	Long: `Wipes the inventory and ledger, loads the fixture items, and writes
the opening-balance ledger entry. Uses the fixture file from the config when
set, otherwise the built-in catalog.`,
	RunE: runSeed,
}

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent ledger entries",
	RunE:  runHistory,
}

var checkCmd = &cobra.Command{
	Use:   "check",
	Short: "Verify store invariants",
	Long: `Checks that no item has negative stock, that the ledger balance
chain is consistent from the opening entry, and that transaction IDs are
unique.`,
	RunE: runCheck,
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "shoptalk.yaml", "Config file path")
	rootCmd.PersistentFlags().BoolVar(&useMock, "mock", false, "Use the canned mock generation client")
	rootCmd.PersistentFlags().StringVar(&engineMode, "engine", "", "Execution engine: plan or raw (overrides config)")

	askCmd.Flags().BoolVar(&resetEachRequest, "reset", false, "Reseed the store before the request")
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of entries to show")

	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// openStore opens the configured database, creating its directory if needed.
func openStore() (*store.Store, error) {
	if dir := filepath.Dir(cfg.Store.DatabasePath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create store directory: %w", err)
		}
	}
	return store.Open(cfg.Store.DatabasePath)
}

func loadFixture() (*store.Fixture, error) {
	if cfg.Store.FixturePath == "" {
		return store.DefaultFixture(), nil
	}
	return store.LoadFixture(cfg.Store.FixturePath)
}

func buildEngine() sandbox.Engine {
	if cfg.Engine.Mode == config.EngineModeRaw {
		return sandbox.NewRawEngine()
	}
	return sandbox.NewPlanEngine()
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.LLMTimeout()+cfg.EngineTimeout())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("Received shutdown signal")
		cancel()
	}()

	request := strings.Join(args, " ")
	logger.Info("Processing request", zap.String("request", request), zap.String("engine", cfg.Engine.Mode))

	client, err := perception.NewClient(cfg.LLM)
	if err != nil {
		return err
	}

	st, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	// A fresh database gets the built-in fixture so ask works out of the box.
	if empty, err := storeIsEmpty(st); err != nil {
		return err
	} else if empty {
		fixture, err := loadFixture()
		if err != nil {
			return err
		}
		if err := st.Seed(fixture); err != nil {
			return fmt.Errorf("failed to seed store: %w", err)
		}
		logger.Info("Seeded empty store")
	}

	var opts []orchestrator.Option
	if resetEachRequest {
		fixture, err := loadFixture()
		if err != nil {
			return err
		}
		opts = append(opts, orchestrator.WithResetFixture(fixture))
	}

	session := orchestrator.New(st, client, buildEngine(), cfg.Engine.Mode, opts...)
	resp, err := session.Handle(ctx, request)
	if err != nil {
		return err
	}

	fmt.Printf("[%s] %s\n", resp.Status, resp.Answer)
	if verbose {
		printVerbose(resp)
	}
	if resp.InvariantErr != nil {
		fmt.Fprintf(os.Stderr, "warning: store consistency check failed: %v\n", resp.InvariantErr)
	}
	return nil
}

func printVerbose(resp *orchestrator.Response) {
	fmt.Printf("\nrequest id: %s\n", resp.RequestID)
	if resp.Execution.Faulted() {
		fmt.Printf("execution fault: %s\n", resp.Execution.ErrorText)
	}
	if resp.Execution.CapturedOutput != "" {
		fmt.Printf("captured output:\n%s\n", resp.Execution.CapturedOutput)
	}
	fmt.Printf("balance: %s -> %s\n", resp.Before.Balance.StringFixed(2), resp.After.Balance.StringFixed(2))
	for _, after := range resp.After.Items {
		beforeStock := resp.Before.ItemStock(after.ID)
		if beforeStock != after.Stock {
			fmt.Printf("stock %s: %d -> %d\n", after.ID, beforeStock, after.Stock)
		}
	}
}

func storeIsEmpty(st *store.Store) (bool, error) {
	ledger, err := st.Ledger().All()
	if err != nil {
		return false, fmt.Errorf("failed to read ledger: %w", err)
	}
	return len(ledger) == 0, nil
}

func runSeed(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	fixture, err := loadFixture()
	if err != nil {
		return err
	}
	if err := st.Seed(fixture); err != nil {
		return fmt.Errorf("failed to seed store: %w", err)
	}

	items, err := st.Items().All()
	if err != nil {
		return err
	}
	fmt.Printf("Seeded %d items, opening balance %s\n", len(items), fixture.OpeningBalance)
	return nil
}

func runHistory(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	entries, err := st.Ledger().Tail(historyLimit)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	if len(entries) == 0 {
		fmt.Println("Ledger is empty. Run 'shoptalk seed' first.")
		return nil
	}

	for _, t := range entries {
		fmt.Printf("%-8s %-12s %10s  %10s  %s  %s\n",
			t.ID, t.Customer,
			t.Amount.StringFixed(2), t.BalanceAfter.StringFixed(2),
			t.CreatedAt.Format(time.RFC3339), t.Summary)
	}
	return nil
}

func runCheck(cmd *cobra.Command, args []string) error {
	st, err := openStore()
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer st.Close()

	if err := st.CheckInvariants(); err != nil {
		return err
	}

	balance, err := st.CurrentBalance()
	if err != nil {
		return err
	}
	fmt.Printf("OK: invariants hold, balance %s\n", balance.StringFixed(2))
	return nil
}
