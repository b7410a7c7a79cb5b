// File: cmd/heal.go
package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/voidwalkr/restitch/api/schemas"
	"github.com/voidwalkr/restitch/internal/browser"
	"github.com/voidwalkr/restitch/internal/healing"
	"github.com/voidwalkr/restitch/internal/observability"
	"github.com/voidwalkr/restitch/internal/suite"
)

// newHealCmd creates the `heal` command: a dry-run healing pass against a
// saved HTML snapshot, without launching a browser or executing any step.
func newHealCmd() *cobra.Command {
	var (
		snapshotPath string
		outputPath   string
	)

	healCmd := &cobra.Command{
		Use:   "heal <suite.json>",
		Short: "Heals a suite's locators against a saved HTML page snapshot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()
			cfg := appConfig

			s, err := suite.Load(args[0])
			if err != nil {
				return err
			}

			html, err := os.ReadFile(snapshotPath)
			if err != nil {
				return fmt.Errorf("failed to read snapshot: %w", err)
			}
			page, err := browser.ParseSnapshot(string(html))
			if err != nil {
				return err
			}

			// A dry run never talks to the review queue.
			healCfg := *cfg
			healCfg.Review.Enabled = false

			components, err := initializeRunComponents(ctx, &healCfg, logger)
			if err != nil {
				if components != nil {
					components.Shutdown()
				}
				return fmt.Errorf("failed to initialize healing components: %w", err)
			}
			defer components.Shutdown()

			orch, err := healing.NewOrchestrator(components.Engine, logger)
			if err != nil {
				return err
			}

			healedSuite := schemas.Suite{Name: s.Name, Tests: make([]schemas.TestCase, 0, len(s.Tests))}
			for _, tc := range s.Tests {
				healed, err := orch.HealTest(ctx, tc, page)
				if err != nil {
					return fmt.Errorf("healing test %s failed: %w", tc.ID, err)
				}
				printHealedDiff(tc, healed)
				healedSuite.Tests = append(healedSuite.Tests, healed)
			}

			stats := orch.Stats()
			fmt.Printf("\nHealed %d locator(s), %d unresolved.\n", stats.Healed, stats.Failed)

			if known := components.Engine.History().Snapshot(); len(known) > 0 {
				fmt.Println("Known repairs:")
				for _, line := range formatHistoryLines(known) {
					fmt.Println("  " + line)
				}
			}

			if outputPath != "" {
				if err := writeSuite(outputPath, healedSuite); err != nil {
					return err
				}
				logger.Info("Healed suite written", zap.String("path", outputPath))
			}
			return nil
		},
	}

	healCmd.Flags().StringVarP(&snapshotPath, "snapshot", "s", "", "Path to the saved HTML page snapshot.")
	healCmd.Flags().StringVarP(&outputPath, "output", "o", "", "Write the healed suite to this file.")
	_ = healCmd.MarkFlagRequired("snapshot")

	return healCmd
}

func printHealedDiff(original, healed schemas.TestCase) {
	for i := range original.Steps {
		if original.Steps[i] != healed.Steps[i] {
			fmt.Printf("  %s step %d:\n    - %s\n    + %s\n", original.ID, i, original.Steps[i], healed.Steps[i])
		}
	}
}

func writeSuite(path string, s schemas.Suite) error {
	data, err := jsoniter.ConfigCompatibleWithStandardLibrary.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal healed suite: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write healed suite: %w", err)
	}
	return nil
}
