package main

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"tablechain/internal/chain"
	"tablechain/internal/config"
	"tablechain/internal/embedding"
	"tablechain/internal/logging"
	"tablechain/internal/match"
	"tablechain/internal/merger"
	"tablechain/internal/report"
	"tablechain/internal/usage"
	"tablechain/internal/validate"
)

var (
	// Global flags
	verbose    bool
	configPath string
	workspace  string
	apiKey     string

	// match flags
	tablesPath string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "tablechain",
	Short: "tablechain - temporal table-chain matching engine",
	Long: `tablechain tracks statistical tables across report years: it decides
which table in year N+1 continues a table from year N, builds chains,
handles splits, merges, dormancy and reactivation, and runs a
cross-chapter merging pass over the finished chains.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		zapCfg := zap.NewProductionConfig()
		if verbose {
			zapCfg.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
		}
		var err error
		logger, err = zapCfg.Build()
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}

		if configPath != "" {
			cfg, err = config.Load(configPath)
			if err != nil {
				return err
			}
		} else {
			cfg = config.Default()
		}
		if workspace != "" {
			cfg.Workspace = workspace
		}
		if apiKey != "" {
			cfg.Validator.APIKey = apiKey
			if cfg.Embedding.GenAIAPIKey == "" {
				cfg.Embedding.GenAIAPIKey = apiKey
			}
		}
		if cfg.Validator.APIKey == "" {
			cfg.Validator.APIKey = os.Getenv("GEMINI_API_KEY")
		}
		if cfg.Embedding.GenAIAPIKey == "" {
			cfg.Embedding.GenAIAPIKey = os.Getenv("GEMINI_API_KEY")
		}

		debug := cfg.Logging.Debug || verbose
		return logging.Initialize(cfg.Workspace, logging.Options{Debug: debug, Level: cfg.Logging.Level})
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
		logging.CloseAll()
	},
}

var matchCmd = &cobra.Command{
	Use:   "match",
	Short: "Match tables into chains, chapter by chapter",
	Long: `Reads the extracted table collection, processes each chapter's years
sequentially (chapters run in parallel), and writes per-chapter chain
files plus a run report under <workspace>/.tablechain/output/.`,
	RunE: runMatch,
}

var mergeCmd = &cobra.Command{
	Use:   "merge [chain files...]",
	Short: "Run the cross-chapter chain-merging pass",
	Long: `Loads per-chapter chain files (the output of 'match'), proposes
chain pairs with complementary year coverage, pre-screens them by
embedding similarity, confirms survivors with the external validator,
and writes the consolidated chain set.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMerge,
}

func main() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config (defaults apply when omitted)")
	rootCmd.PersistentFlags().StringVarP(&workspace, "workspace", "w", "", "Workspace directory (default: current)")
	rootCmd.PersistentFlags().StringVar(&apiKey, "api-key", "", "Gemini API key (or set GEMINI_API_KEY)")

	matchCmd.Flags().StringVarP(&tablesPath, "tables", "t", "", "Path to the extracted tables JSON (required)")
	_ = matchCmd.MarkFlagRequired("tables")

	rootCmd.AddCommand(matchCmd)
	rootCmd.AddCommand(mergeCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// buildCollaborators wires the shared provider, validator, audit log
// and usage tracker for one run.
func buildCollaborators(runID string) (*embedding.Provider, validate.Validator, *logging.AuditLog, *usage.Tracker, error) {
	engine, err := embedding.NewEngine(embedding.Config{
		Provider:       cfg.Embedding.Provider,
		OllamaEndpoint: cfg.Embedding.OllamaEndpoint,
		OllamaModel:    cfg.Embedding.OllamaModel,
		GenAIAPIKey:    cfg.Embedding.GenAIAPIKey,
		GenAIModel:     cfg.Embedding.GenAIModel,
		Dimensions:     cfg.Embedding.Dimensions,
	})
	if err != nil {
		return nil, nil, nil, nil, err
	}

	var cache *embedding.Cache
	if cfg.Embedding.CachePath != "" {
		cache, err = embedding.OpenCache(cfg.Embedding.CachePath)
		if err != nil {
			return nil, nil, nil, nil, err
		}
	}
	provider := embedding.NewProvider(engine, cache)

	tracker, err := usage.NewTracker(cfg.Workspace)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	validator := validate.NewCached(validate.NewGemini(validate.GeminiConfig{
		APIKey:        cfg.Validator.APIKey,
		BaseURL:       cfg.Validator.BaseURL,
		Model:         cfg.Validator.Model,
		Timeout:       cfg.Validator.TimeoutDuration(),
		MaxRetries:    cfg.Validator.MaxRetries,
		CostPerCall:   cfg.Validator.CostPerCall,
		MaxConcurrent: int64(cfg.Limits.MaxConcurrentValidations),
	}, tracker))

	auditPath := filepath.Join(cfg.Workspace, ".tablechain", "audit.jsonl")
	if err := os.MkdirAll(filepath.Dir(auditPath), 0755); err != nil {
		return nil, nil, nil, nil, err
	}
	audit, err := logging.NewAuditLog(auditPath, runID)
	if err != nil {
		return nil, nil, nil, nil, err
	}

	return provider, validator, audit, tracker, nil
}

func runMatch(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	logger.Info("starting match run",
		zap.String("run_id", runID),
		zap.String("tables", tablesPath),
		zap.String("workspace", cfg.Workspace))

	tables, err := match.LoadTables(tablesPath)
	if err != nil {
		return err
	}
	byChapter := match.GroupByChapter(tables)

	provider, validator, audit, tracker, err := buildCollaborators(runID)
	if err != nil {
		return err
	}
	defer audit.Close()

	checkpoint, err := chain.OpenCheckpoint(filepath.Join(cfg.Workspace, ".tablechain", "checkpoints.db"))
	if err != nil {
		return err
	}
	defer checkpoint.Close()

	engine := match.NewEngine(cfg, provider, validator, audit, checkpoint)

	chapters := make([]int, 0, len(byChapter))
	for ch := range byChapter {
		chapters = append(chapters, ch)
	}
	sort.Ints(chapters)

	var mu sync.Mutex
	results := make(map[int]*match.Result, len(chapters))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Limits.MaxConcurrentChapters)
	for _, ch := range chapters {
		ch := ch
		g.Go(func() error {
			res, err := engine.ProcessChapter(gctx, ch, byChapter[ch])
			if err != nil {
				return fmt.Errorf("chapter %d: %w", ch, err)
			}
			mu.Lock()
			results[ch] = res
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	outDir := filepath.Join(cfg.Workspace, ".tablechain", "output")
	rep := report.RunReport{RunID: runID}
	for _, ch := range chapters {
		res := results[ch]
		rep.AddChapter(res)
		path := filepath.Join(outDir, fmt.Sprintf("chains_ch%d.json", ch))
		if err := report.WriteChainsJSON(path, res.Chains); err != nil {
			return err
		}
		logger.Info("chapter complete",
			zap.Int("chapter", ch),
			zap.Int("chains", len(res.Chains)))
	}

	rep.ValidatorUsage = tracker.Summary()
	if err := tracker.Save(); err != nil {
		return err
	}
	if err := rep.Write(filepath.Join(outDir, "report.json")); err != nil {
		return err
	}

	logger.Info("match run complete",
		zap.Int("chapters", len(chapters)),
		zap.Int("chains", rep.TotalChains),
		zap.Int("degraded", rep.Degraded))
	return nil
}

func runMerge(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	logger.Info("starting merge pass", zap.String("run_id", runID), zap.Strings("inputs", args))

	chains, err := merger.LoadChains(args...)
	if err != nil {
		return err
	}

	provider, validator, audit, tracker, err := buildCollaborators(runID)
	if err != nil {
		return err
	}
	defer audit.Close()

	m := merger.New(cfg, provider, validator, audit)
	out, err := m.Run(ctx, chains)
	if err != nil {
		return err
	}

	outDir := filepath.Join(cfg.Workspace, ".tablechain", "output")
	if err := report.WriteChainsJSON(filepath.Join(outDir, "chains_merged.json"), out.Chains); err != nil {
		return err
	}

	rep := report.RunReport{
		RunID:            runID,
		TotalChains:      len(out.Chains),
		Degraded:         out.Degraded,
		MergerIterations: out.Iterations,
		Merges:           out.Merges,
		MergeConflicts:   out.Conflicts,
		MergeRejected:    out.Rejected,
		ValidatorUsage:   tracker.Summary(),
	}
	if err := tracker.Save(); err != nil {
		return err
	}
	if err := rep.Write(filepath.Join(outDir, "merge_report.json")); err != nil {
		return err
	}

	logger.Info("merge pass complete",
		zap.Int("input_chains", len(chains)),
		zap.Int("output_chains", len(out.Chains)),
		zap.Int("merges", out.Merges),
		zap.Int("conflicts", out.Conflicts),
		zap.Int("iterations", out.Iterations))
	return nil
}
