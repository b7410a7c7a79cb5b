// File: internal/healing/orchestrator.go
// Description: Rewrites failing test cases. Extracts locators from recognized
// step directives, resolves each through the engine and produces a new, healed
// test case value while tracking per-run statistics.

package healing

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/voidwalkr/restitch/api/schemas"
)

// stepPattern recognizes the action directives that carry a locator in their
// first quoted position: `click "X"`, `type "X" "text"`, `select "X" "value"`.
// Steps that do not match pass through unchanged and cannot be healed.
var stepPattern = regexp.MustCompile(`^\s*(click|type|select)\s+"([^"]+)"`)

// ExtractLocator pulls the embedded locator out of a step directive.
// ok is false for steps with no recognizable action pattern.
func ExtractLocator(step string) (schemas.Locator, bool) {
	m := stepPattern.FindStringSubmatch(step)
	if m == nil {
		return "", false
	}
	return schemas.Locator(m[2]), true
}

// rewriteStep replaces the first quoted occurrence of the original locator
// with the healed one, leaving the rest of the directive untouched.
func rewriteStep(step string, original, healed schemas.Locator) string {
	return strings.Replace(step, `"`+string(original)+`"`, `"`+string(healed)+`"`, 1)
}

// Orchestrator heals test cases step by step. It owns its HealingStats
// exclusively; counters are reset only at construction.
type Orchestrator struct {
	resolver schemas.Resolver
	logger   *zap.Logger

	mu    sync.Mutex
	stats schemas.HealingStats
}

// NewOrchestrator creates a healing orchestrator around a resolution engine.
func NewOrchestrator(resolver schemas.Resolver, logger *zap.Logger) (*Orchestrator, error) {
	if resolver == nil {
		return nil, errors.New("resolver cannot be nil")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Orchestrator{
		resolver: resolver,
		logger:   logger.Named("orchestrator"),
	}, nil
}

// HealTest produces a new test case with broken locators replaced where the
// engine could resolve them. Steps keep their original order and count; steps
// without a recognizable pattern pass through unmodified and are not counted.
// Unresolvable locators stay in place (the step remains known-broken) and are
// counted as failed. The input test case is never mutated.
func (o *Orchestrator) HealTest(ctx context.Context, tc schemas.TestCase, page schemas.Page) (schemas.TestCase, error) {
	healed := tc.Clone()

	for i, step := range healed.Steps {
		original, ok := ExtractLocator(step)
		if !ok {
			o.logger.Debug("Step has no extractable locator, passing through",
				zap.String("test", tc.ID), zap.Int("step", i))
			continue
		}

		outcome, err := o.resolver.Resolve(ctx, original, page)
		if err != nil {
			return tc, err
		}

		if outcome.Resolved {
			healed.Steps[i] = rewriteStep(step, original, outcome.Healed)
			o.addHealed()
			o.logger.Info("Step healed",
				zap.String("test", tc.ID),
				zap.Int("step", i),
				zap.String("original", string(original)),
				zap.String("healed", string(outcome.Healed)),
				zap.String("strategy", outcome.Strategy),
				zap.Duration("elapsed", outcome.Elapsed))
			continue
		}

		o.addFailed()
		o.logger.Warn("Step could not be healed, keeping broken locator",
			zap.String("test", tc.ID),
			zap.Int("step", i),
			zap.String("locator", string(original)))
	}

	return healed, nil
}

// Stats returns a copy of the current counters.
func (o *Orchestrator) Stats() schemas.HealingStats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

func (o *Orchestrator) addHealed() {
	o.mu.Lock()
	o.stats.Healed++
	o.mu.Unlock()
}

func (o *Orchestrator) addFailed() {
	o.mu.Lock()
	o.stats.Failed++
	o.mu.Unlock()
}
