package inference

import (
	"context"
	"errors"
	"fmt"
	"time"

	"barrel-market-api/internal/model"
)

// Completer sends a prompt to a text-generation service.
type Completer interface {
	Complete(ctx context.Context, apiKey, prompt string) (string, error)
}

// Extractor turns a submission into a validated listing.
type Extractor struct {
	completer Completer
	timeout   time.Duration
}

// NewExtractor wraps completer. Each call is bounded by timeout when positive.
func NewExtractor(completer Completer, timeout time.Duration) *Extractor {
	return &Extractor{completer: completer, timeout: timeout}
}

// Extract prompts the model with sub under apiKey and parses its answer.
func (e *Extractor) Extract(ctx context.Context, apiKey string, sub model.Submission) (*model.Listing, error) {
	prompt, err := BuildPrompt(sub)
	if err != nil {
		return nil, fmt.Errorf("%w: build prompt: %v", model.ErrExtraction, err)
	}

	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}

	raw, err := e.completer.Complete(ctx, apiKey, prompt)
	if err != nil {
		if !errors.Is(err, model.ErrExtraction) {
			err = fmt.Errorf("%w: %w", model.ErrExtraction, err)
		}
		return nil, err
	}
	return ParseListing(raw)
}
