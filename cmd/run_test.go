// File: cmd/run_test.go
package cmd

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/voidwalkr/restitch/api/schemas"
	"github.com/voidwalkr/restitch/internal/config"
	"github.com/voidwalkr/restitch/internal/healing"
)

// fakeBrowser implements sessionHandle against a canned page: clicking a
// locator succeeds only if it is in the live set, and the page view exposes
// the identifiers and texts the healing strategies query.
type fakeBrowser struct {
	live  map[schemas.Locator]bool
	texts []string
	ids   []string
}

func (b *fakeBrowser) Navigate(context.Context, string) error { return nil }
func (b *fakeBrowser) Click(_ context.Context, loc schemas.Locator) error {
	if !b.live[loc] {
		return errors.New("element not found: " + string(loc))
	}
	return nil
}
func (b *fakeBrowser) Type(_ context.Context, loc schemas.Locator, _ string) error {
	if !b.live[loc] {
		return errors.New("element not found: " + string(loc))
	}
	return nil
}
func (b *fakeBrowser) Select(_ context.Context, loc schemas.Locator, _ string) error {
	if !b.live[loc] {
		return errors.New("element not found: " + string(loc))
	}
	return nil
}
func (b *fakeBrowser) WaitVisible(_ context.Context, loc schemas.Locator) error {
	if !b.live[loc] {
		return errors.New("element not visible: " + string(loc))
	}
	return nil
}
func (b *fakeBrowser) Close() error { return nil }

func (b *fakeBrowser) Find(_ context.Context, loc schemas.Locator) (*schemas.ElementHandle, error) {
	if b.live[loc] {
		return &schemas.ElementHandle{Locator: loc}, nil
	}
	return nil, nil
}
func (b *fakeBrowser) AllText(context.Context) ([]string, error)        { return b.texts, nil }
func (b *fakeBrowser) AllIdentifiers(context.Context) ([]string, error) { return b.ids, nil }
func (b *fakeBrowser) StructuralSiblings(context.Context, schemas.Locator) ([]schemas.Locator, error) {
	return nil, nil
}

type recordingQueue struct {
	queued []schemas.TestCase
}

func (q *recordingQueue) Queue(_ context.Context, tc schemas.TestCase, _ schemas.HealingStats) (string, error) {
	q.queued = append(q.queued, tc)
	return "review-1", nil
}
func (q *recordingQueue) ListPending(context.Context) ([]schemas.ReviewItem, error) { return nil, nil }
func (q *recordingQueue) SubmitReview(context.Context, string, bool, []string) (schemas.TestCase, error) {
	return schemas.TestCase{}, nil
}

func testRunConfig() *config.Config {
	return &config.Config{
		Healing: config.HealingConfig{
			SimilarityCutoff: 0.8,
			ExactTimeout:     time.Second,
			StrategyTimeout:  5 * time.Second,
			HistoryBackend:   "none",
		},
		Run: config.RunConfig{Concurrency: 2},
	}
}

func testComponents(t *testing.T, cfg *config.Config) *runComponents {
	t.Helper()
	logger := zap.NewNop()
	hist := healing.NewHistory(context.Background(), nil, logger)
	engine, err := healing.NewEngine(
		healing.DefaultChain(cfg.Healing.SimilarityCutoff, nil),
		hist, cfg.Healing.ExactTimeout, cfg.Healing.StrategyTimeout, logger)
	require.NoError(t, err)
	return &runComponents{Engine: engine}
}

func TestRunSuite_HealsAndRetries(t *testing.T) {
	cfg := testRunConfig()
	components := testComponents(t, cfg)

	// "#old-btn" is gone; the page carries "Old Button" text, so the
	// text-similarity strategy heals it to a text descriptor.
	factory := func(context.Context) (sessionHandle, error) {
		return &fakeBrowser{
			live: map[schemas.Locator]bool{
				"text=Old Button": true,
				"#email":          true,
			},
			texts: []string{"Old Button"},
		}, nil
	}

	s := schemas.Suite{
		Name: "checkout",
		Tests: []schemas.TestCase{
			{ID: "t1", Steps: []string{`click "#old-btn"`}},
			{ID: "t2", Steps: []string{`type "#email" "user@example.com"`}},
		},
	}

	reports, err := runSuite(context.Background(), cfg, zap.NewNop(), s, components, factory)
	require.NoError(t, err)
	require.Len(t, reports, 2)

	byID := map[string]schemas.RunReport{}
	for _, r := range reports {
		byID[r.TestID] = r
	}
	assert.Equal(t, schemas.StatusPassHealed, byID["t1"].Status)
	assert.Equal(t, schemas.HealingStats{Healed: 1, Failed: 0}, byID["t1"].Stats)
	assert.Equal(t, schemas.StatusPass, byID["t2"].Status)
	assert.Equal(t, schemas.HealingStats{}, byID["t2"].Stats)

	// The heal landed in the shared history.
	healedTo, ok := components.Engine.History().Get("#old-btn")
	require.True(t, ok)
	assert.Equal(t, schemas.Locator("text=Old Button"), healedTo)
}

func TestRunSuite_UnhealableTestFails(t *testing.T) {
	cfg := testRunConfig()
	components := testComponents(t, cfg)

	factory := func(context.Context) (sessionHandle, error) {
		return &fakeBrowser{live: map[schemas.Locator]bool{}}, nil
	}

	s := schemas.Suite{Tests: []schemas.TestCase{
		{ID: "t1", Steps: []string{`click "#vanished"`}},
	}}

	reports, err := runSuite(context.Background(), cfg, zap.NewNop(), s, components, factory)
	require.NoError(t, err)
	require.Len(t, reports, 1)
	assert.Equal(t, schemas.StatusFail, reports[0].Status)
	assert.Equal(t, schemas.HealingStats{Healed: 0, Failed: 1}, reports[0].Stats)
}

func TestRunSuite_HealingDisabled(t *testing.T) {
	cfg := testRunConfig()
	cfg.Run.HealDisable = true
	components := testComponents(t, cfg)

	factory := func(context.Context) (sessionHandle, error) {
		return &fakeBrowser{
			live:  map[schemas.Locator]bool{"text=Old Button": true},
			texts: []string{"Old Button"},
		}, nil
	}

	s := schemas.Suite{Tests: []schemas.TestCase{
		{ID: "t1", Steps: []string{`click "#old-btn"`}},
	}}

	reports, err := runSuite(context.Background(), cfg, zap.NewNop(), s, components, factory)
	require.NoError(t, err)
	assert.Equal(t, schemas.StatusFail, reports[0].Status)
	assert.Equal(t, schemas.HealingStats{}, reports[0].Stats)
}

func TestRunSuite_QueuesHealedTestsForReview(t *testing.T) {
	cfg := testRunConfig()
	components := testComponents(t, cfg)
	queue := &recordingQueue{}
	components.ReviewQueue = queue

	factory := func(context.Context) (sessionHandle, error) {
		return &fakeBrowser{
			live:  map[schemas.Locator]bool{"text=Old Button": true},
			texts: []string{"Old Button"},
		}, nil
	}

	s := schemas.Suite{Tests: []schemas.TestCase{
		{ID: "t1", Steps: []string{`click "#old-btn"`}},
	}}

	_, err := runSuite(context.Background(), cfg, zap.NewNop(), s, components, factory)
	require.NoError(t, err)
	require.Len(t, queue.queued, 1)
	assert.Equal(t, `click "text=Old Button"`, queue.queued[0].Steps[0])
}

func TestRunSuite_SessionFactoryErrorAborts(t *testing.T) {
	cfg := testRunConfig()
	components := testComponents(t, cfg)

	var calls atomic.Int64
	factory := func(context.Context) (sessionHandle, error) {
		calls.Add(1)
		return nil, errors.New("chrome not found")
	}

	s := schemas.Suite{Tests: []schemas.TestCase{
		{ID: "t1", Steps: []string{`click "#a"`}},
	}}

	_, err := runSuite(context.Background(), cfg, zap.NewNop(), s, components, factory)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chrome not found")
}
