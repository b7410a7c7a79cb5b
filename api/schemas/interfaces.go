// File: api/schemas/interfaces.go
// Description: Capability interfaces consumed by the healing core. Concrete
// implementations live in internal/ and are injected at the composition root,
// which keeps the engine testable against mocks.

package schemas

import "context"

// Page is the abstract handle to a live (or snapshotted) document. The
// resolution strategies query candidates through it; they never touch the
// browser directly.
type Page interface {
	// Find attempts to locate an element. A nil handle with a nil error means
	// the locator matched nothing; errors are reserved for transport failures.
	Find(ctx context.Context, loc Locator) (*ElementHandle, error)
	// AllText returns the visible text content of the page, one entry per
	// element that carries its own text.
	AllText(ctx context.Context) ([]string, error)
	// AllIdentifiers returns the id/name/data-testid values present on the page.
	AllIdentifiers(ctx context.Context) ([]string, error)
	// StructuralSiblings proposes locators for elements adjacent to where the
	// given locator would sit in the document structure.
	StructuralSiblings(ctx context.Context, loc Locator) ([]Locator, error)
}

// Strategy is one fallback technique for re-finding an element whose original
// locator broke. Strategies are stateless with respect to each other; ok=false
// signals "no match" and is not an error.
type Strategy interface {
	Name() string
	Attempt(ctx context.Context, loc Locator, page Page) (Locator, bool, error)
}

// Resolver runs the strategy chain for a broken locator. Unresolvable locators
// are a normal outcome, not an error; the error return is reserved for
// cancellation and invariant violations.
type Resolver interface {
	Resolve(ctx context.Context, loc Locator, page Page) (ResolutionOutcome, error)
}

// Suggester is the model-assisted detection capability. It may be backed by a
// remote LLM and is therefore the only strategy with material latency and
// per-call cost.
type Suggester interface {
	Suggest(ctx context.Context, loc Locator, page Page) (Locator, bool, error)
}

// LLMClient generates a completion for a prompt pair.
type LLMClient interface {
	Generate(ctx context.Context, req GenerationRequest) (string, error)
}

// HistoryStore persists the healing history as a flat mapping of original
// locator strings to healed locator strings.
type HistoryStore interface {
	Load(ctx context.Context) (map[string]string, error)
	Put(ctx context.Context, original, healed string) error
}

// TestRunner executes a test case and reports pass/fail. It is invoked by the
// orchestrator's caller; the orchestrator itself only rewrites test cases.
type TestRunner interface {
	Run(ctx context.Context, tc TestCase) (ExecutionResult, error)
}

// SessionContext drives a single browser session. The runner maps step
// directives onto these primitives.
type SessionContext interface {
	Navigate(ctx context.Context, url string) error
	Click(ctx context.Context, loc Locator) error
	Type(ctx context.Context, loc Locator, text string) error
	Select(ctx context.Context, loc Locator, value string) error
	WaitVisible(ctx context.Context, loc Locator) error
	Close() error
}

// ReviewQueue accepts healed test cases for optional human approval.
type ReviewQueue interface {
	Queue(ctx context.Context, tc TestCase, stats HealingStats) (string, error)
	ListPending(ctx context.Context) ([]ReviewItem, error)
	SubmitReview(ctx context.Context, id string, approved bool, changes []string) (TestCase, error)
}

// FeedbackCollector records user feedback tuples.
type FeedbackCollector interface {
	SubmitFeedback(ctx context.Context, fb Feedback) error
}
