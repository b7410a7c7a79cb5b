// File: api/schemas/schemas.go
// Description: Core value types shared across the healing engine, the runner
// and the downstream review components.

package schemas

import "time"

// Locator is an opaque, serializable descriptor used to find a UI element
// (a CSS selector, an XPath expression, or a "text=..." descriptor).
// Equality is exact string equality; two locators are related only through
// the healing history, never by parsing.
type Locator string

func (l Locator) String() string { return string(l) }

// TestCase is an ordered sequence of step directives. Steps are opaque text
// except for locator extraction, which operates on fixed action patterns.
type TestCase struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Steps []string `json:"steps"`
}

// Clone returns a deep copy so healing can produce a new value without
// mutating the caller's test case.
func (tc TestCase) Clone() TestCase {
	out := tc
	out.Steps = make([]string, len(tc.Steps))
	copy(out.Steps, tc.Steps)
	return out
}

// Suite is a named collection of test cases loaded from disk.
type Suite struct {
	Name  string     `json:"name"`
	Tests []TestCase `json:"tests"`
}

// Strategy indexes reported in a ResolutionOutcome. StrategyIndexCache marks
// a result served from the healing history without running any strategy.
const (
	StrategyIndexCache = -1
	StrategyIndexNone  = -2
)

// ResolutionOutcome is the result of one resolution attempt. It is produced
// once per resolution call and never mutated afterwards.
type ResolutionOutcome struct {
	Original      Locator       `json:"original"`
	Healed        Locator       `json:"healed,omitempty"`
	Resolved      bool          `json:"resolved"`
	FromCache     bool          `json:"from_cache"`
	StrategyIndex int           `json:"strategy_index"`
	Strategy      string        `json:"strategy,omitempty"`
	Elapsed       time.Duration `json:"elapsed"`
}

// HealingStats counts locator repairs for a single orchestrator run.
// Healed+Failed always equals the number of extractable locators processed.
type HealingStats struct {
	Healed int `json:"healed"`
	Failed int `json:"failed"`
}

// ExecutionResult reports the outcome of running a test case once.
// FailedStep is the zero-based index of the first failing step, or -1.
type ExecutionResult struct {
	Passed     bool   `json:"passed"`
	FailedStep int    `json:"failed_step"`
	Detail     string `json:"detail,omitempty"`
}

// FinalStatus is the user-visible verdict after the run/heal/re-run sequence.
type FinalStatus string

const (
	StatusPass       FinalStatus = "PASS"
	StatusPassHealed FinalStatus = "PASS (Healed)"
	StatusFail       FinalStatus = "FAIL"
)

// RunReport ties a test case to its final status and the healing stats that
// produced it.
type RunReport struct {
	TestID string       `json:"test_id"`
	Name   string       `json:"name,omitempty"`
	Status FinalStatus  `json:"status"`
	Stats  HealingStats `json:"stats"`
	Detail string       `json:"detail,omitempty"`
}

// ElementHandle is the minimal information the engine needs about a located
// element. A nil handle means the locator did not match.
type ElementHandle struct {
	Locator Locator `json:"locator"`
	Tag     string  `json:"tag,omitempty"`
	Text    string  `json:"text,omitempty"`
}

// ReviewStatus tracks the lifecycle of a healed test case in the review queue.
type ReviewStatus string

const (
	ReviewPending  ReviewStatus = "pending"
	ReviewApproved ReviewStatus = "approved"
	ReviewRejected ReviewStatus = "rejected"
)

// ReviewItem is a healed test case awaiting optional human approval.
type ReviewItem struct {
	ID          string       `json:"id"`
	TestCase    TestCase     `json:"test_case"`
	Stats       HealingStats `json:"stats"`
	Status      ReviewStatus `json:"status"`
	SubmittedAt time.Time    `json:"submitted_at"`
	ReviewedAt  *time.Time   `json:"reviewed_at,omitempty"`
}

// Feedback is a user rating for a generated or healed test.
type Feedback struct {
	TestID  string `json:"test_id"`
	Type    string `json:"type"`
	Rating  int    `json:"rating"`
	Comment string `json:"comment,omitempty"`
}

// GenerationRequest carries prompts and options to an LLM backend.
type GenerationRequest struct {
	SystemPrompt string
	UserPrompt   string
	Options      GenerationOptions
}

// GenerationOptions tunes a single LLM call.
type GenerationOptions struct {
	Temperature     float32
	ForceJSONFormat bool
}
