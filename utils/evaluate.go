package utils

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"product-aggregator/internal/types"
)

// MaxEvaluateAttempts bounds re-reads of a page whose document was replaced mid-evaluation
const MaxEvaluateAttempts = 3

// Evaluate parses the current page content and runs fn against it.
// Only ErrContextInvalidated is retried; every other error is returned as is.
func Evaluate[T any](ctx context.Context, page types.Page, fn func(*goquery.Document) (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= MaxEvaluateAttempts; attempt++ {
		if ctx.Err() != nil {
			return zero, types.Aborted(ctx)
		}

		html, err := page.HTML(ctx)
		if err != nil {
			if errors.Is(err, types.ErrContextInvalidated) {
				lastErr = err
				continue
			}
			return zero, err
		}

		doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
		if err != nil {
			return zero, fmt.Errorf("failed to parse HTML: %w", err)
		}

		result, err := fn(doc)
		if err != nil && errors.Is(err, types.ErrContextInvalidated) {
			lastErr = err
			continue
		}
		return result, err
	}

	return zero, fmt.Errorf("evaluate %s: %w", page.URL(), lastErr)
}
