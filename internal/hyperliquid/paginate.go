package hyperliquid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/time/rate"
)

// Page caps the info API applies to time-windowed feeds.
const (
	FillsPageCap    = 2000
	FundingPageCap  = 500
	DefaultMaxPages = 10
)

// PageFunc fetches one page of a time-ordered feed starting at start (unix ms).
// end is inclusive; nil leaves the window open.
type PageFunc[T any] func(ctx context.Context, start int64, end *int64) ([]T, error)

// WalkOptions bounds a pagination walk.
type WalkOptions struct {
	PageCap   int
	MaxPages  int
	PageDelay time.Duration // courtesy pause between pages, on top of the gate
}

// Walk calls fetch repeatedly, advancing the cursor past the last item's time,
// until a page comes back short or empty or MaxPages is reached. Any page
// error aborts the walk and discards what was collected so far.
func Walk[T any](ctx context.Context, fetch PageFunc[T], timeOf func(T) int64, start int64, end *int64, opts WalkOptions) ([]T, error) {
	if opts.PageCap <= 0 {
		return nil, errors.New("hyperliquid: page cap must be positive")
	}
	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}

	var limiter *rate.Limiter
	if opts.PageDelay > 0 {
		limiter = rate.NewLimiter(rate.Every(opts.PageDelay), 1)
	}

	var all []T
	for page := 1; page <= maxPages; page++ {
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return nil, err
			}
		}
		items, err := fetch(ctx, start, end)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", page, err)
		}
		all = append(all, items...)
		if len(items) < opts.PageCap {
			break
		}

		next := timeOf(items[len(items)-1]) + 1
		if next <= start {
			// The server returned a full page that did not move forward.
			break
		}
		start = next
		if end != nil && start > *end {
			break
		}
	}
	return all, nil
}
