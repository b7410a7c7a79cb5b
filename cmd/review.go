// File: cmd/review.go
package cmd

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/voidwalkr/restitch/api/schemas"
	"github.com/voidwalkr/restitch/internal/config"
	"github.com/voidwalkr/restitch/internal/observability"
	"github.com/voidwalkr/restitch/internal/review"
)

// newReviewCmd creates the `review` command group for the human-approval
// queue of healed tests.
func newReviewCmd() *cobra.Command {
	reviewCmd := &cobra.Command{
		Use:   "review",
		Short: "Manage the review queue for healed tests",
	}

	reviewCmd.AddCommand(newReviewListCmd())
	reviewCmd.AddCommand(newReviewSubmitCmd())
	reviewCmd.AddCommand(newReviewFeedbackCmd())
	return reviewCmd
}

func newReviewListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "Lists healed tests awaiting review",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openReviewStore(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer cleanup()

			items, err := store.ListPending(cmd.Context())
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Println("No tests pending review.")
				return nil
			}
			for _, item := range items {
				fmt.Printf("%s  %s (healed: %d, unresolved: %d, submitted: %s)\n",
					item.ID, item.TestCase.Name,
					item.Stats.Healed, item.Stats.Failed,
					item.SubmittedAt.Format("2006-01-02 15:04"))
				for _, step := range item.TestCase.Steps {
					fmt.Printf("    %s\n", step)
				}
			}
			return nil
		},
	}
}

func newReviewSubmitCmd() *cobra.Command {
	var (
		approve bool
		reject  bool
		steps   []string
	)

	cmd := &cobra.Command{
		Use:   "submit <review-id>",
		Short: "Approves or rejects a healed test, optionally amending its steps",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if approve == reject {
				return fmt.Errorf("exactly one of --approve or --reject is required")
			}

			store, cleanup, err := openReviewStore(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer cleanup()

			tc, err := store.SubmitReview(cmd.Context(), args[0], approve, steps)
			if err != nil {
				return err
			}
			if approve {
				fmt.Printf("Approved %s (%d steps).\n", tc.ID, len(tc.Steps))
			} else {
				fmt.Printf("Rejected %s.\n", tc.ID)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&approve, "approve", false, "Approve the healed test.")
	cmd.Flags().BoolVar(&reject, "reject", false, "Reject the healed test.")
	cmd.Flags().StringArrayVar(&steps, "step", nil, "Replacement steps (repeatable); overrides the healed steps wholesale.")
	return cmd
}

func newReviewFeedbackCmd() *cobra.Command {
	var (
		rating  int
		comment string
	)

	cmd := &cobra.Command{
		Use:   "feedback <test-id>",
		Short: "Records a quality rating for a healed test",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, cleanup, err := openReviewStore(cmd.Context(), appConfig)
			if err != nil {
				return err
			}
			defer cleanup()

			fb := schemas.Feedback{
				TestID:  args[0],
				Type:    "healed_test",
				Rating:  rating,
				Comment: comment,
			}
			if err := store.SubmitFeedback(cmd.Context(), fb); err != nil {
				return err
			}
			fmt.Println("Feedback recorded.")
			return nil
		},
	}

	cmd.Flags().IntVar(&rating, "rating", 0, "Rating from 1 (useless) to 5 (perfect).")
	cmd.Flags().StringVar(&comment, "comment", "", "Optional free-form comment.")
	_ = cmd.MarkFlagRequired("rating")
	return cmd
}

func openReviewStore(ctx context.Context, cfg *config.Config) (*review.Store, func(), error) {
	if !cfg.Review.Enabled {
		return nil, nil, fmt.Errorf("review queue is disabled (set review.enabled)")
	}

	pool, err := pgxpool.New(ctx, cfg.Review.Postgres.DSN())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to review database: %w", err)
	}
	store, err := review.New(ctx, pool, observability.GetLogger())
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return store, pool.Close, nil
}
