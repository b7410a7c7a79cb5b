// File: internal/healing/engine_test.go
package healing

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"

	"github.com/voidwalkr/restitch/api/schemas"
)

func newTestEngine(t *testing.T, chain []schemas.Strategy) *Engine {
	t.Helper()
	history := NewHistory(context.Background(), nil, zap.NewNop())
	engine, err := NewEngine(chain, history, time.Second, time.Second, zap.NewNop())
	require.NoError(t, err)
	return engine
}

func TestNewEngine_ValidatesDependencies(t *testing.T) {
	history := NewHistory(context.Background(), nil, zap.NewNop())
	chain := []schemas.Strategy{&stubStrategy{name: "s"}}

	_, err := NewEngine(nil, history, time.Second, time.Second, zap.NewNop())
	assert.Error(t, err)
	_, err = NewEngine(chain, nil, time.Second, time.Second, zap.NewNop())
	assert.Error(t, err)
	_, err = NewEngine(chain, history, 0, time.Second, zap.NewNop())
	assert.Error(t, err)
	_, err = NewEngine(chain, history, time.Second, time.Second, nil)
	assert.Error(t, err)
}

func TestResolve_CacheHitSkipsChain(t *testing.T) {
	strat := &stubStrategy{name: "never"}
	engine := newTestEngine(t, []schemas.Strategy{strat})
	engine.History().Put(context.Background(), "#submit-btn", "text=Place Order")

	outcome, err := engine.Resolve(context.Background(), "#submit-btn", newFakePage())
	require.NoError(t, err)

	assert.True(t, outcome.Resolved)
	assert.True(t, outcome.FromCache)
	assert.Equal(t, schemas.Locator("text=Place Order"), outcome.Healed)
	assert.Equal(t, schemas.StrategyIndexCache, outcome.StrategyIndex)
	assert.Equal(t, CacheStrategyName, outcome.Strategy)
	assert.Zero(t, strat.calls.Load(), "no strategy may run on a cache hit")
}

func TestResolve_CacheIdempotence(t *testing.T) {
	strat := &stubStrategy{name: "heal", result: "text=Fixed", ok: true}
	chain := []schemas.Strategy{
		&stubStrategy{name: "exact"}, // misses
		strat,
	}
	engine := newTestEngine(t, chain)
	page := newFakePage()

	first, err := engine.Resolve(context.Background(), "#broken", page)
	require.NoError(t, err)
	require.True(t, first.Resolved)
	assert.Equal(t, int64(1), strat.calls.Load())

	second, err := engine.Resolve(context.Background(), "#broken", page)
	require.NoError(t, err)
	assert.True(t, second.FromCache)
	assert.Equal(t, first.Healed, second.Healed)
	assert.Equal(t, int64(1), strat.calls.Load(), "second resolution must not invoke the chain")
}

func TestResolve_EarliestSuccessWins(t *testing.T) {
	// Both fallback strategies would succeed; the engine must report the
	// earlier one regardless of what the later would have produced.
	early := &stubStrategy{name: "early", result: "#by-early", ok: true}
	late := &stubStrategy{name: "late", result: "#by-late", ok: true}
	engine := newTestEngine(t, []schemas.Strategy{
		&stubStrategy{name: "exact"},
		early,
		late,
	})

	outcome, err := engine.Resolve(context.Background(), "#x", newFakePage())
	require.NoError(t, err)
	assert.Equal(t, schemas.Locator("#by-early"), outcome.Healed)
	assert.Equal(t, 1, outcome.StrategyIndex)
	assert.Equal(t, "early", outcome.Strategy)
	assert.Zero(t, late.calls.Load(), "later strategies must not run after a success")
}

func TestResolve_ExactSuccessIsNotAHeal(t *testing.T) {
	engine := newTestEngine(t, []schemas.Strategy{
		&stubStrategy{name: "exact", attempt: func(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error) {
			return loc, true, nil
		}},
	})

	outcome, err := engine.Resolve(context.Background(), "#still-there", newFakePage())
	require.NoError(t, err)
	assert.True(t, outcome.Resolved)
	assert.Equal(t, schemas.Locator("#still-there"), outcome.Healed)
	assert.Equal(t, 0, outcome.StrategyIndex)
	assert.False(t, outcome.FromCache)
	assert.Zero(t, engine.History().Len(), "exact re-check must not create a history entry")
}

func TestResolve_UnresolvedIsANormalOutcome(t *testing.T) {
	engine := newTestEngine(t, []schemas.Strategy{
		&stubStrategy{name: "a"},
		&stubStrategy{name: "b"},
	})

	outcome, err := engine.Resolve(context.Background(), "#ghost", newFakePage())
	require.NoError(t, err, "exhausting the chain is not an error")
	assert.False(t, outcome.Resolved)
	assert.Empty(t, outcome.Healed)
	assert.Equal(t, schemas.StrategyIndexNone, outcome.StrategyIndex)
	assert.Zero(t, engine.History().Len())
}

func TestResolve_StrategyErrorTreatedAsNoMatch(t *testing.T) {
	failing := &stubStrategy{name: "failing", err: errors.New("connection lost")}
	healing := &stubStrategy{name: "healing", result: "text=Recovered", ok: true}
	engine := newTestEngine(t, []schemas.Strategy{failing, healing})

	outcome, err := engine.Resolve(context.Background(), "#x", newFakePage())
	require.NoError(t, err)
	assert.True(t, outcome.Resolved)
	assert.Equal(t, "healing", outcome.Strategy)
}

func TestResolve_AllStrategiesFailingUpstream(t *testing.T) {
	outage := errors.New("page handle gone")
	engine := newTestEngine(t, []schemas.Strategy{
		&stubStrategy{name: "a", err: outage},
		&stubStrategy{name: "b", err: outage},
	})

	outcome, err := engine.Resolve(context.Background(), "#x", newFakePage())
	require.NoError(t, err, "an upstream outage must surface as unresolved, not as a fault")
	assert.False(t, outcome.Resolved)
}

func TestResolve_HangingStrategyTimesOut(t *testing.T) {
	defer goleak.VerifyNone(t)

	hanging := &stubStrategy{name: "hanging", attempt: func(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error) {
		<-ctx.Done()
		return "", false, ctx.Err()
	}}
	rescue := &stubStrategy{name: "rescue", result: "text=Saved", ok: true}

	history := NewHistory(context.Background(), nil, zap.NewNop())
	engine, err := NewEngine(
		[]schemas.Strategy{hanging, rescue},
		history,
		20*time.Millisecond,
		20*time.Millisecond,
		zap.NewNop(),
	)
	require.NoError(t, err)

	outcome, err := engine.Resolve(context.Background(), "#x", newFakePage())
	require.NoError(t, err)
	assert.True(t, outcome.Resolved)
	assert.Equal(t, "rescue", outcome.Strategy, "a timed-out strategy counts as no match and the chain proceeds")
}

func TestResolve_CancellationPropagates(t *testing.T) {
	started := make(chan struct{})
	blocked := &stubStrategy{name: "blocked", attempt: func(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error) {
		close(started)
		<-ctx.Done()
		return "", false, ctx.Err()
	}}
	engine := newTestEngine(t, []schemas.Strategy{blocked})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := engine.Resolve(ctx, "#x", newFakePage())
	require.ErrorIs(t, err, context.Canceled)
}

func TestResolve_ConcurrentSameLocatorRunsChainOnce(t *testing.T) {
	defer goleak.VerifyNone(t)

	slow := &stubStrategy{name: "slow", attempt: func(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error) {
		time.Sleep(50 * time.Millisecond)
		return "text=Shared", true, nil
	}}
	chain := []schemas.Strategy{&stubStrategy{name: "exact"}, slow}
	engine := newTestEngine(t, chain)

	const callers = 8
	var wg sync.WaitGroup
	outcomes := make([]schemas.ResolutionOutcome, callers)
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			outcomes[i], errs[i] = engine.Resolve(context.Background(), "#contended", newFakePage())
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(1), slow.calls.Load(), "the expensive chain must run at most once per locator")
	for i, o := range outcomes {
		require.NoError(t, errs[i])
		assert.True(t, o.Resolved)
		assert.Equal(t, schemas.Locator("text=Shared"), o.Healed)
	}
}

func TestResolve_WaiterSurvivesInitiatorCancellation(t *testing.T) {
	defer goleak.VerifyNone(t)

	// The first caller to reach the chain blocks until its context dies; any
	// later attempt succeeds. A second caller with a healthy context that
	// joined the first's shared run must end up with a resolution, never with
	// the sibling's cancellation.
	started := make(chan struct{})
	var attempts atomic.Int64
	strat := &stubStrategy{name: "shared"}
	strat.attempt = func(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error) {
		if attempts.Add(1) == 1 {
			close(started)
			<-ctx.Done()
			return "", false, ctx.Err()
		}
		return "text=Recovered", true, nil
	}

	history := NewHistory(context.Background(), nil, zap.NewNop())
	engine, err := NewEngine([]schemas.Strategy{strat}, history, 5*time.Second, 5*time.Second, zap.NewNop())
	require.NoError(t, err)

	initiatorCtx, cancelInitiator := context.WithCancel(context.Background())
	defer cancelInitiator()

	initiatorErr := make(chan error, 1)
	go func() {
		_, err := engine.Resolve(initiatorCtx, "#shared", newFakePage())
		initiatorErr <- err
	}()
	<-started

	waiterOutcome := make(chan schemas.ResolutionOutcome, 1)
	waiterErr := make(chan error, 1)
	go func() {
		o, err := engine.Resolve(context.Background(), "#shared", newFakePage())
		waiterOutcome <- o
		waiterErr <- err
	}()

	// Give the waiter time to join the in-flight run, then kill its sibling.
	time.Sleep(20 * time.Millisecond)
	cancelInitiator()

	require.ErrorIs(t, <-initiatorErr, context.Canceled)
	require.NoError(t, <-waiterErr)
	outcome := <-waiterOutcome
	assert.True(t, outcome.Resolved)
	assert.Equal(t, schemas.Locator("text=Recovered"), outcome.Healed)
}

func TestResolve_DistinctLocatorsDoNotBlockEachOther(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	gate := &stubStrategy{name: "gate", attempt: func(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error) {
		if loc == "#slow" {
			select {
			case <-release:
			case <-ctx.Done():
				return "", false, ctx.Err()
			}
		}
		return "text=" + loc, true, nil
	}}
	chain := []schemas.Strategy{&stubStrategy{name: "exact"}, gate}

	history := NewHistory(context.Background(), nil, zap.NewNop())
	engine, err := NewEngine(chain, history, time.Second, 5*time.Second, zap.NewNop())
	require.NoError(t, err)

	slowDone := make(chan struct{})
	go func() {
		defer close(slowDone)
		_, _ = engine.Resolve(context.Background(), "#slow", newFakePage())
	}()

	// The fast locator resolves while the slow one is still in flight.
	outcome, err := engine.Resolve(context.Background(), "#fast", newFakePage())
	require.NoError(t, err)
	assert.True(t, outcome.Resolved)

	close(release)
	<-slowDone
}

func TestResolve_PersistsThroughStore(t *testing.T) {
	store := newMemStore()
	history := NewHistory(context.Background(), store, zap.NewNop())
	engine, err := NewEngine([]schemas.Strategy{
		&stubStrategy{name: "exact"},
		&stubStrategy{name: "heal", result: "text=Persisted", ok: true},
	}, history, time.Second, time.Second, zap.NewNop())
	require.NoError(t, err)

	_, err = engine.Resolve(context.Background(), "#broken", newFakePage())
	require.NoError(t, err)

	persisted, loadErr := store.Load(context.Background())
	require.NoError(t, loadErr)
	assert.Equal(t, map[string]string{"#broken": "text=Persisted"}, persisted)
}
