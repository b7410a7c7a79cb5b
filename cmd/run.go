// File: cmd/run.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/voidwalkr/restitch/api/schemas"
	"github.com/voidwalkr/restitch/internal/browser"
	"github.com/voidwalkr/restitch/internal/config"
	"github.com/voidwalkr/restitch/internal/healing"
	"github.com/voidwalkr/restitch/internal/history"
	"github.com/voidwalkr/restitch/internal/llmclient"
	"github.com/voidwalkr/restitch/internal/observability"
	"github.com/voidwalkr/restitch/internal/review"
	"github.com/voidwalkr/restitch/internal/runner"
	"github.com/voidwalkr/restitch/internal/suite"
)

// sessionHandle is what one test needs from the browser: step primitives for
// execution plus the page view for healing.
type sessionHandle interface {
	schemas.SessionContext
	schemas.Page
}

// sessionFactory opens a fresh browser session per test case.
type sessionFactory func(ctx context.Context) (sessionHandle, error)

// newRunCmd creates and configures the `run` command.
func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run <suite.json>",
		Short: "Runs a test suite, healing broken locators on failure",
		Args:  cobra.ExactArgs(1),
		PreRunE: func(cmd *cobra.Command, args []string) error {
			// Bind flags so CLI values override config file and env.
			if err := viper.BindPFlag("run.concurrency", cmd.Flags().Lookup("concurrency")); err != nil {
				return err
			}
			return viper.BindPFlag("run.heal_disable", cmd.Flags().Lookup("no-heal"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			// Re-resolve the config now that run flags are bound.
			cfg, err := config.NewFromViper(viper.GetViper())
			if err != nil {
				return err
			}

			s, err := suite.Load(args[0])
			if err != nil {
				return err
			}
			logger.Info("Loaded test suite",
				zap.String("suite", s.Name),
				zap.Int("tests", len(s.Tests)),
				zap.Int("concurrency", cfg.Run.Concurrency),
				zap.Bool("healing_disabled", cfg.Run.HealDisable))

			components, err := initializeRunComponents(ctx, cfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize run components: %w", err)
			}
			defer components.Shutdown()

			newSession := func(ctx context.Context) (sessionHandle, error) {
				return browser.NewSession(ctx, cfg.Browser, logger)
			}

			reports, err := runSuite(ctx, cfg, logger, s, components, newSession)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return fmt.Errorf("run aborted by user signal")
				}
				return err
			}

			printSummary(s, reports)

			failed := 0
			for _, r := range reports {
				if r.Status == schemas.StatusFail {
					failed++
				}
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d tests failed", failed, len(reports))
			}
			return nil
		},
	}

	runCmd.Flags().IntP("concurrency", "j", 4, "Number of tests to run concurrently. (Overrides config/env)")
	runCmd.Flags().Bool("no-heal", false, "Disable locator healing; failing tests fail immediately.")

	return runCmd
}

// runComponents holds the services shared by every test in a run.
type runComponents struct {
	Engine      *healing.Engine
	ReviewQueue schemas.ReviewQueue

	historyPool *pgxpool.Pool
	reviewPool  *pgxpool.Pool
}

// Shutdown releases pooled resources.
func (rc *runComponents) Shutdown() {
	if rc.historyPool != nil {
		rc.historyPool.Close()
	}
	if rc.reviewPool != nil {
		rc.reviewPool.Close()
	}
}

// initializeRunComponents handles dependency injection for a run: the history
// backend, the optional LLM suggester, the resolution engine and the optional
// review queue.
func initializeRunComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*runComponents, error) {
	components := &runComponents{}

	// 1. History backend.
	var store schemas.HistoryStore
	switch cfg.Healing.HistoryBackend {
	case "file":
		fileStore, err := history.NewFileStore(cfg.Healing.HistoryPath, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize file history store: %w", err)
		}
		store = fileStore
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Healing.Postgres.DSN())
		if err != nil {
			return components, fmt.Errorf("failed to connect to history database: %w", err)
		}
		components.historyPool = pool
		pgStore, err := history.NewPGStore(ctx, pool, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize postgres history store: %w", err)
		}
		store = pgStore
	case "none":
		// In-memory only; heals are forgotten at exit.
	}

	// 2. Optional model-assisted suggester.
	var suggester schemas.Suggester
	if cfg.Healing.ModelAssisted {
		client, err := llmclient.NewClient(cfg.Model, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize LLM client: %w", err)
		}
		suggester, err = llmclient.NewSuggester(client, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize suggester: %w", err)
		}
	}

	// 3. Resolution engine. The engine (and its history) is shared by all
	// tests in the run.
	hist := healing.NewHistory(ctx, store, logger)
	chain := healing.DefaultChain(cfg.Healing.SimilarityCutoff, suggester)
	engine, err := healing.NewEngine(chain, hist, cfg.Healing.ExactTimeout, cfg.Healing.StrategyTimeout, logger)
	if err != nil {
		return components, fmt.Errorf("failed to create resolution engine: %w", err)
	}
	components.Engine = engine

	// 4. Optional review queue.
	if cfg.Review.Enabled {
		pool, err := pgxpool.New(ctx, cfg.Review.Postgres.DSN())
		if err != nil {
			return components, fmt.Errorf("failed to connect to review database: %w", err)
		}
		components.reviewPool = pool
		queue, err := review.New(ctx, pool, logger)
		if err != nil {
			return components, fmt.Errorf("failed to initialize review queue: %w", err)
		}
		components.ReviewQueue = queue
	}

	return components, nil
}

// runSuite executes every test case, healing failures through the shared
// engine. Each test gets its own browser session and its own orchestrator so
// per-test stats stay isolated while the healing history is shared.
func runSuite(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	s schemas.Suite,
	components *runComponents,
	newSession sessionFactory,
) ([]schemas.RunReport, error) {
	reports := make([]schemas.RunReport, len(s.Tests))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(cfg.Run.Concurrency)

	var reviewMu sync.Mutex

	for i, tc := range s.Tests {
		g.Go(func() error {
			report, healed, err := runOneTest(gctx, cfg, logger, components, newSession, tc)
			if err != nil {
				return err
			}
			reports[i] = report

			if components.ReviewQueue != nil && report.Status == schemas.StatusPassHealed {
				reviewMu.Lock()
				defer reviewMu.Unlock()
				id, err := components.ReviewQueue.Queue(gctx, healed, report.Stats)
				if err != nil {
					logger.Warn("Failed to queue healed test for review",
						zap.String("test", tc.ID), zap.Error(err))
					return nil
				}
				logger.Info("Healed test queued for review",
					zap.String("test", tc.ID), zap.String("review_id", id))
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return reports, nil
}

func runOneTest(
	ctx context.Context,
	cfg *config.Config,
	logger *zap.Logger,
	components *runComponents,
	newSession sessionFactory,
	tc schemas.TestCase,
) (schemas.RunReport, schemas.TestCase, error) {
	session, err := newSession(ctx)
	if err != nil {
		return schemas.RunReport{}, tc, fmt.Errorf("failed to open browser session for test %s: %w", tc.ID, err)
	}
	defer func() {
		if err := session.Close(); err != nil {
			logger.Warn("Error closing browser session", zap.String("test", tc.ID), zap.Error(err))
		}
	}()

	sessionRunner, err := runner.NewSessionRunner(session, logger)
	if err != nil {
		return schemas.RunReport{}, tc, err
	}

	// A fresh orchestrator per test keeps its counters scoped to this test
	// while resolution still goes through the shared engine and history.
	var healer runner.Healer
	if !cfg.Run.HealDisable {
		orch, err := healing.NewOrchestrator(components.Engine, logger)
		if err != nil {
			return schemas.RunReport{}, tc, err
		}
		healer = orch
	}

	harness, err := runner.NewHarness(sessionRunner, healer, session, cfg.Run.HealDisable, logger)
	if err != nil {
		return schemas.RunReport{}, tc, err
	}

	start := time.Now()
	report, healed, err := harness.Execute(ctx, tc)
	if err != nil {
		return schemas.RunReport{}, tc, err
	}
	logger.Info("Test finished",
		zap.String("test", tc.ID),
		zap.String("status", string(report.Status)),
		zap.Duration("elapsed", time.Since(start)))
	return report, healed, nil
}

// printSummary writes the per-test verdicts and overall totals to stdout.
func printSummary(s schemas.Suite, reports []schemas.RunReport) {
	sorted := make([]schemas.RunReport, len(reports))
	copy(sorted, reports)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].TestID < sorted[j].TestID })

	var totals schemas.HealingStats
	passed, healedPass, failed := 0, 0, 0

	fmt.Printf("\nSuite: %s\n", s.Name)
	for _, r := range sorted {
		name := r.Name
		if name == "" {
			name = r.TestID
		}
		fmt.Printf("  %-14s %s", r.Status, name)
		if r.Stats.Healed > 0 || r.Stats.Failed > 0 {
			fmt.Printf("  (healed: %d, unresolved: %d)", r.Stats.Healed, r.Stats.Failed)
		}
		if r.Status == schemas.StatusFail && r.Detail != "" {
			fmt.Printf("  - %s", r.Detail)
		}
		fmt.Println()

		totals.Healed += r.Stats.Healed
		totals.Failed += r.Stats.Failed
		switch r.Status {
		case schemas.StatusPass:
			passed++
		case schemas.StatusPassHealed:
			healedPass++
		case schemas.StatusFail:
			failed++
		}
	}

	fmt.Printf("\n%d passed, %d passed after healing, %d failed", passed, healedPass, failed)
	if totals.Healed > 0 || totals.Failed > 0 {
		fmt.Printf(" | locators healed: %d, unresolved: %d", totals.Healed, totals.Failed)
	}
	fmt.Println()
}
