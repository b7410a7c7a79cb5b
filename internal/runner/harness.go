// File: internal/runner/harness.go
// Description: The run/heal/re-run sequence for a single test case. A failing
// test gets exactly one healing pass and one retry; the retry runs the healed
// copy, never the original.

package runner

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/voidwalkr/restitch/api/schemas"
)

// Healer rewrites a failing test case and reports cumulative counters.
// *healing.Orchestrator satisfies this.
type Healer interface {
	HealTest(ctx context.Context, tc schemas.TestCase, page schemas.Page) (schemas.TestCase, error)
	Stats() schemas.HealingStats
}

// Harness coordinates one runner, one healer and one page view.
type Harness struct {
	runner       schemas.TestRunner
	healer       Healer
	page         schemas.Page
	logger       *zap.Logger
	healDisabled bool
}

// NewHarness wires the run/heal/re-run sequence together. healer and page may
// be nil only when healing is disabled.
func NewHarness(runner schemas.TestRunner, healer Healer, page schemas.Page, healDisabled bool, logger *zap.Logger) (*Harness, error) {
	if runner == nil {
		return nil, fmt.Errorf("runner cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if !healDisabled {
		if healer == nil {
			return nil, fmt.Errorf("healer cannot be nil when healing is enabled")
		}
		if page == nil {
			return nil, fmt.Errorf("page cannot be nil when healing is enabled")
		}
	}
	return &Harness{
		runner:       runner,
		healer:       healer,
		page:         page,
		logger:       logger.Named("harness"),
		healDisabled: healDisabled,
	}, nil
}

// Execute runs the test case, healing and retrying once on failure. The
// returned test case is the healed copy when a heal happened, otherwise the
// input. The error return is reserved for cancellation and wiring faults; a
// plain test failure is reported through the RunReport.
func (h *Harness) Execute(ctx context.Context, tc schemas.TestCase) (schemas.RunReport, schemas.TestCase, error) {
	report := schemas.RunReport{TestID: tc.ID, Name: tc.Name}

	first, err := h.runner.Run(ctx, tc)
	if err != nil {
		return report, tc, err
	}
	if first.Passed {
		report.Status = schemas.StatusPass
		return report, tc, nil
	}

	h.logger.Info("Test failed, attempting heal",
		zap.String("test", tc.ID),
		zap.Int("failed_step", first.FailedStep),
		zap.String("detail", first.Detail))

	if h.healDisabled {
		report.Status = schemas.StatusFail
		report.Detail = first.Detail
		return report, tc, nil
	}

	before := h.healer.Stats()
	healed, err := h.healer.HealTest(ctx, tc, h.page)
	if err != nil {
		return report, tc, err
	}
	after := h.healer.Stats()
	report.Stats = schemas.HealingStats{
		Healed: after.Healed - before.Healed,
		Failed: after.Failed - before.Failed,
	}

	if report.Stats.Healed == 0 {
		// Nothing changed; re-running the same steps cannot pass.
		report.Status = schemas.StatusFail
		report.Detail = first.Detail
		return report, tc, nil
	}

	second, err := h.runner.Run(ctx, healed)
	if err != nil {
		return report, healed, err
	}
	if second.Passed {
		report.Status = schemas.StatusPassHealed
		return report, healed, nil
	}

	report.Status = schemas.StatusFail
	report.Detail = second.Detail
	return report, healed, nil
}
