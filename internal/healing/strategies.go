// File: internal/healing/strategies.go
// Description: The ordered fallback strategies the resolution engine runs for
// a broken locator. Each strategy is a small struct satisfying the Strategy
// contract; ok=false means "no match" and is never an error.

package healing

import (
	"context"
	"fmt"
	"strings"

	"github.com/voidwalkr/restitch/api/schemas"
	"github.com/voidwalkr/restitch/internal/similarity"
)

// TextLocatorPrefix marks locators that target an element by its visible text.
const TextLocatorPrefix = "text="

// NewTextLocator wraps matched visible text in a text-based locator.
func NewTextLocator(text string) schemas.Locator {
	return schemas.Locator(TextLocatorPrefix + text)
}

// ExactStrategy re-checks the unmodified locator against the live page. A hit
// here means the element came back (or the failure was transient) and no real
// healing is needed.
type ExactStrategy struct{}

func (ExactStrategy) Name() string { return "exact" }

func (ExactStrategy) Attempt(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error) {
	handle, err := page.Find(ctx, loc)
	if err != nil {
		return "", false, fmt.Errorf("exact re-check: %w", err)
	}
	if handle == nil {
		return "", false, nil
	}
	return loc, true, nil
}

// IDVariationStrategy searches the page's identifiers (id, name, data-testid)
// for one similar to the identifier embedded in the broken locator. It covers
// the common breakage where a build renames "#submit-btn" to "#submit-button".
type IDVariationStrategy struct {
	Cutoff float64
}

func (IDVariationStrategy) Name() string { return "id_variation" }

func (s IDVariationStrategy) Attempt(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error) {
	ref := identifierToken(loc)
	if ref == "" {
		return "", false, nil
	}

	ids, err := page.AllIdentifiers(ctx)
	if err != nil {
		return "", false, fmt.Errorf("id variation: %w", err)
	}

	idx, _, ok := similarity.BestMatchIndexFunc(ref, ids, s.Cutoff, similarity.Score)
	if !ok || ids[idx] == ref {
		// An identical identifier would already have passed the exact check.
		return "", false, nil
	}

	candidate := schemas.Locator("#" + ids[idx])
	handle, err := page.Find(ctx, candidate)
	if err != nil {
		return "", false, fmt.Errorf("id variation verify: %w", err)
	}
	if handle == nil {
		return "", false, nil
	}
	return candidate, true, nil
}

// identifierToken extracts the bare identifier from id- and name-style
// locators. XPath and text locators carry no single identifier to vary.
func identifierToken(loc schemas.Locator) string {
	s := string(loc)
	switch {
	case strings.HasPrefix(s, "#"):
		return strings.TrimPrefix(s, "#")
	case strings.HasPrefix(s, "//"), strings.HasPrefix(s, TextLocatorPrefix):
		return ""
	case strings.ContainsAny(s, " >[]()="):
		// Compound CSS selectors are handled by the structural strategy.
		return ""
	default:
		return strings.TrimPrefix(s, ".")
	}
}

// TextSimilarityStrategy gathers the visible text of the page and scores it
// against the original locator string. A match above the cutoff produces a
// text-based locator wrapping the matched string.
type TextSimilarityStrategy struct {
	Cutoff float64
}

func (TextSimilarityStrategy) Name() string { return "text_similarity" }

func (s TextSimilarityStrategy) Attempt(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error) {
	texts, err := page.AllText(ctx)
	if err != nil {
		return "", false, fmt.Errorf("text similarity: %w", err)
	}

	// The locator string itself is the reference: recorded locators commonly
	// embed the label of the element they point at. Scoring happens on a
	// normalized view (case and separators folded) but the locator wraps the
	// page's original text.
	reference := normalizeForScoring(string(loc))
	normalized := make([]string, len(texts))
	for i, t := range texts {
		normalized[i] = normalizeForScoring(t)
	}
	idx, _, ok := similarity.BestMatchIndexFunc(reference, normalized, s.Cutoff, similarity.Score)
	if !ok {
		return "", false, nil
	}
	return NewTextLocator(texts[idx]), true, nil
}

// normalizeForScoring folds the cosmetic differences between a recorded
// locator and on-page text: case, leading selector sigils and separator
// characters.
func normalizeForScoring(s string) string {
	s = strings.TrimLeft(s, "#.")
	s = strings.NewReplacer("-", " ", "_", " ").Replace(s)
	return strings.ToLower(strings.TrimSpace(s))
}

// StructuralStrategy asks the page for locators structurally adjacent to where
// the broken one would sit and takes the first that resolves.
type StructuralStrategy struct{}

func (StructuralStrategy) Name() string { return "structural" }

func (StructuralStrategy) Attempt(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error) {
	siblings, err := page.StructuralSiblings(ctx, loc)
	if err != nil {
		return "", false, fmt.Errorf("structural: %w", err)
	}
	for _, candidate := range siblings {
		if candidate == loc {
			continue
		}
		handle, err := page.Find(ctx, candidate)
		if err != nil {
			return "", false, fmt.Errorf("structural verify: %w", err)
		}
		if handle != nil {
			return candidate, true, nil
		}
	}
	return "", false, nil
}

// ModelStrategy delegates to the model-assisted detection capability. It is
// the last resort: highest latency, nonzero cost per call. The suggestion is
// verified against the page before it is accepted, so a hallucinated locator
// never poisons the healing history.
type ModelStrategy struct {
	Suggester schemas.Suggester
}

func (ModelStrategy) Name() string { return "model_assisted" }

func (s ModelStrategy) Attempt(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error) {
	if s.Suggester == nil {
		return "", false, nil
	}
	suggested, ok, err := s.Suggester.Suggest(ctx, loc, page)
	if err != nil {
		return "", false, fmt.Errorf("model suggestion: %w", err)
	}
	if !ok || suggested == "" {
		return "", false, nil
	}

	handle, err := page.Find(ctx, suggested)
	if err != nil {
		return "", false, fmt.Errorf("model suggestion verify: %w", err)
	}
	if handle == nil {
		return "", false, nil
	}
	return suggested, true, nil
}

// DefaultChain assembles the strategies in their fixed priority order. The
// suggester may be nil, in which case the model strategy reports no match.
func DefaultChain(cutoff float64, suggester schemas.Suggester) []schemas.Strategy {
	return []schemas.Strategy{
		ExactStrategy{},
		IDVariationStrategy{Cutoff: cutoff},
		TextSimilarityStrategy{Cutoff: cutoff},
		StructuralStrategy{},
		ModelStrategy{Suggester: suggester},
	}
}
