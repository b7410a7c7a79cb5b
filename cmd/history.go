// File: cmd/history.go
package cmd

import (
	"context"
	"fmt"
	"sort"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/voidwalkr/restitch/internal/config"
	"github.com/voidwalkr/restitch/internal/history"
	"github.com/voidwalkr/restitch/internal/observability"
)

// historyBackend is the subset of store operations the history command needs.
type historyBackend interface {
	Load(ctx context.Context) (map[string]string, error)
	Clear(ctx context.Context) error
}

// newHistoryCmd creates the `history` command group for inspecting and
// clearing the persisted healing history.
func newHistoryCmd() *cobra.Command {
	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Inspect or clear the persisted healing history",
	}

	historyCmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "Prints every recorded original -> healed locator pair",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, cleanup, err := openHistoryBackend(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer cleanup()

			entries, err := backend.Load(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to load healing history: %w", err)
			}
			if len(entries) == 0 {
				fmt.Println("Healing history is empty.")
				return nil
			}

			for _, line := range formatHistoryLines(entries) {
				fmt.Println(line)
			}
			return nil
		},
	})

	historyCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Deletes every recorded heal",
		RunE: func(cmd *cobra.Command, args []string) error {
			backend, cleanup, err := openHistoryBackend(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer cleanup()

			if err := backend.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("Healing history cleared.")
			return nil
		},
	})

	return historyCmd
}

// formatHistoryLines renders a healing mapping as sorted "original -> healed"
// lines.
func formatHistoryLines(entries map[string]string) []string {
	originals := make([]string, 0, len(entries))
	for original := range entries {
		originals = append(originals, original)
	}
	sort.Strings(originals)

	lines := make([]string, len(originals))
	for i, original := range originals {
		lines[i] = fmt.Sprintf("%s -> %s", original, entries[original])
	}
	return lines
}

func openHistoryBackend(ctx context.Context, cfg *config.Config) (historyBackend, func(), error) {
	logger := observability.GetLogger()

	switch cfg.Healing.HistoryBackend {
	case "file":
		store, err := history.NewFileStore(cfg.Healing.HistoryPath, logger)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Healing.Postgres.DSN())
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect to history database: %w", err)
		}
		store, err := history.NewPGStore(ctx, pool, logger)
		if err != nil {
			pool.Close()
			return nil, nil, err
		}
		return store, pool.Close, nil
	default:
		return nil, nil, fmt.Errorf("no persistent history backend configured (healing.history_backend is %q)", cfg.Healing.HistoryBackend)
	}
}
