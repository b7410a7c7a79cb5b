// File: internal/llmclient/suggester.go
// Description: Implements the model-assisted detection capability: prompts an
// LLM with the broken locator and a digest of the live page, expecting a JSON
// locator suggestion back.

package llmclient

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/voidwalkr/restitch/api/schemas"
	"github.com/voidwalkr/restitch/internal/llmutil"
)

const suggesterSystemPrompt = `You locate UI elements for automated tests.
Given a broken locator and a digest of the current page, propose a replacement
locator for the element the broken one most likely pointed at.
Respond with a single JSON object: {"locator": "<css selector, //xpath, or text=visible text>", "confidence": <0..1>}.
If no element plausibly matches, respond with {"locator": "", "confidence": 0}.`

// Page digest limits keep the prompt bounded on large pages.
const (
	maxDigestIdentifiers = 100
	maxDigestTexts       = 150
)

// Suggester implements schemas.Suggester on top of an LLM client.
type Suggester struct {
	client schemas.LLMClient
	logger *zap.Logger
}

// NewSuggester wraps an LLM client as a locator suggester.
func NewSuggester(client schemas.LLMClient, logger *zap.Logger) (*Suggester, error) {
	if client == nil {
		return nil, fmt.Errorf("LLM client cannot be nil")
	}
	return &Suggester{client: client, logger: logger.Named("suggester")}, nil
}

type suggestionPayload struct {
	Locator    string  `json:"locator"`
	Confidence float64 `json:"confidence"`
}

// Suggest asks the model for a replacement locator. ok=false means the model
// declined; the caller is expected to verify any returned locator against the
// page before trusting it.
func (s *Suggester) Suggest(ctx context.Context, loc schemas.Locator, page schemas.Page) (schemas.Locator, bool, error) {
	digest, err := s.buildPageDigest(ctx, page)
	if err != nil {
		return "", false, fmt.Errorf("failed to build page digest: %w", err)
	}

	response, err := s.client.Generate(ctx, schemas.GenerationRequest{
		SystemPrompt: suggesterSystemPrompt,
		UserPrompt:   fmt.Sprintf("Broken locator: %q\n\n%s", string(loc), digest),
		Options: schemas.GenerationOptions{
			Temperature:     0.1,
			ForceJSONFormat: true,
		},
	})
	if err != nil {
		return "", false, fmt.Errorf("LLM generation failed: %w", err)
	}

	payload, err := llmutil.ParseJSONResponse[suggestionPayload](response)
	if err != nil {
		return "", false, err
	}
	if payload.Locator == "" {
		s.logger.Debug("Model declined to suggest a locator", zap.String("original", string(loc)))
		return "", false, nil
	}

	s.logger.Info("Model suggested a replacement locator",
		zap.String("original", string(loc)),
		zap.String("suggested", payload.Locator),
		zap.Float64("confidence", payload.Confidence))
	return schemas.Locator(payload.Locator), true, nil
}

func (s *Suggester) buildPageDigest(ctx context.Context, page schemas.Page) (string, error) {
	ids, err := page.AllIdentifiers(ctx)
	if err != nil {
		return "", err
	}
	texts, err := page.AllText(ctx)
	if err != nil {
		return "", err
	}

	if len(ids) > maxDigestIdentifiers {
		ids = ids[:maxDigestIdentifiers]
	}
	if len(texts) > maxDigestTexts {
		texts = texts[:maxDigestTexts]
	}

	var b strings.Builder
	b.WriteString("Page identifiers:\n")
	for _, id := range ids {
		b.WriteString("  - ")
		b.WriteString(id)
		b.WriteByte('\n')
	}
	b.WriteString("Visible text:\n")
	for _, t := range texts {
		b.WriteString("  - ")
		b.WriteString(t)
		b.WriteByte('\n')
	}
	return b.String(), nil
}
