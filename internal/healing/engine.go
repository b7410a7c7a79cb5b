// File: internal/healing/engine.go
// Description: The locator resolution engine. Runs the ordered strategy chain
// for a broken locator, memoizes successful repairs in the healing history and
// deduplicates concurrent resolutions of the same locator.

package healing

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/voidwalkr/restitch/api/schemas"
)

// CacheStrategyName is reported in outcomes served from the healing history.
const CacheStrategyName = "cache"

// Engine resolves broken locators by running an ordered chain of strategies,
// stopping at the first success. It owns the healing history exclusively.
type Engine struct {
	chain           []schemas.Strategy
	history         *History
	exactTimeout    time.Duration
	strategyTimeout time.Duration
	group           singleflight.Group
	logger          *zap.Logger
}

// NewEngine creates a resolution engine. The chain order is the priority
// order; index 0 is expected to be the exact re-check.
func NewEngine(
	chain []schemas.Strategy,
	history *History,
	exactTimeout time.Duration,
	strategyTimeout time.Duration,
	logger *zap.Logger,
) (*Engine, error) {
	if len(chain) == 0 {
		return nil, errors.New("strategy chain cannot be empty")
	}
	if history == nil {
		return nil, errors.New("healing history cannot be nil")
	}
	if exactTimeout <= 0 || strategyTimeout <= 0 {
		return nil, errors.New("strategy timeouts must be positive")
	}
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	return &Engine{
		chain:           chain,
		history:         history,
		exactTimeout:    exactTimeout,
		strategyTimeout: strategyTimeout,
		logger:          logger.Named("engine"),
	}, nil
}

// History exposes the engine's healing history for inspection.
func (e *Engine) History() *History { return e.history }

// Resolve runs the resolution state machine for one locator. A cache hit
// short-circuits the chain entirely; otherwise strategies run in priority
// order under bounded per-strategy timeouts. An unresolvable locator is a
// normal outcome, not an error; the error return fires only on caller
// cancellation.
func (e *Engine) Resolve(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.ResolutionOutcome, error) {
	start := time.Now()

	if healed, ok := e.history.Get(loc); ok {
		e.logger.Debug("Healing history hit, skipping strategy chain",
			zap.String("original", string(loc)), zap.String("healed", string(healed)))
		return schemas.ResolutionOutcome{
			Original:      loc,
			Healed:        healed,
			Resolved:      true,
			FromCache:     true,
			StrategyIndex: schemas.StrategyIndexCache,
			Strategy:      CacheStrategyName,
			Elapsed:       time.Since(start),
		}, nil
	}

	// Concurrent calls for the same original locator share one chain run;
	// calls for different locators proceed independently.
	for {
		ch := e.group.DoChan(string(loc), func() (interface{}, error) {
			return e.runChain(ctx, loc, page)
		})

		select {
		case <-ctx.Done():
			return schemas.ResolutionOutcome{Original: loc, StrategyIndex: schemas.StrategyIndexNone}, ctx.Err()
		case res := <-ch:
			if res.Err != nil {
				// A shared run carries the context of whichever caller
				// initiated it. When that caller cancels, waiters whose own
				// contexts are still live must not inherit the sibling's
				// cancellation: drop the dead entry and resolve again.
				if isContextError(res.Err) && ctx.Err() == nil {
					e.group.Forget(string(loc))
					continue
				}
				return schemas.ResolutionOutcome{Original: loc, StrategyIndex: schemas.StrategyIndexNone}, res.Err
			}
			outcome := res.Val.(schemas.ResolutionOutcome)
			outcome.Elapsed = time.Since(start)
			return outcome, nil
		}
	}
}

func isContextError(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

// runChain advances through the strategies in fixed priority order. A strategy
// error or timeout counts as "no match" and the chain proceeds; only caller
// cancellation aborts the run.
func (e *Engine) runChain(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.ResolutionOutcome, error) {
	outcome := schemas.ResolutionOutcome{
		Original:      loc,
		StrategyIndex: schemas.StrategyIndexNone,
	}

	for i, strat := range e.chain {
		timeout := e.strategyTimeout
		if i == 0 {
			timeout = e.exactTimeout
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		healed, ok, err := strat.Attempt(attemptCtx, loc, page)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return outcome, ctx.Err()
			}
			e.logger.Debug("Strategy failed, treating as no match",
				zap.String("strategy", strat.Name()),
				zap.String("locator", string(loc)),
				zap.Error(err))
			continue
		}
		if !ok {
			continue
		}

		outcome.Resolved = true
		outcome.Healed = healed
		outcome.StrategyIndex = i
		outcome.Strategy = strat.Name()

		if i == 0 {
			// The original locator still works; this is not a true heal and
			// must not create a history entry.
			e.logger.Debug("Locator resolved by exact re-check", zap.String("locator", string(loc)))
			return outcome, nil
		}

		e.history.Put(ctx, loc, healed)
		e.logger.Info("Locator healed",
			zap.String("original", string(loc)),
			zap.String("healed", string(healed)),
			zap.String("strategy", strat.Name()))
		return outcome, nil
	}

	e.logger.Info("Locator unresolved, all strategies exhausted", zap.String("locator", string(loc)))
	return outcome, nil
}
