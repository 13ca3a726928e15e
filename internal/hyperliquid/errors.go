package hyperliquid

import (
	"errors"
	"fmt"
)

var (
	// ErrTimeout reports that a single attempt exceeded its deadline.
	ErrTimeout = errors.New("hyperliquid: request timed out")
	// ErrRateLimited reports that 429 responses persisted past the retry ceiling.
	ErrRateLimited = errors.New("hyperliquid: rate limited")
	// ErrNetwork reports a transport failure such as DNS or a reset connection.
	ErrNetwork = errors.New("hyperliquid: network error")

	errPortfolioPeriodMalformed = errors.New("hyperliquid: portfolio period is not a [name, metrics] tuple")
	errHistoryPointMalformed    = errors.New("hyperliquid: history point is not a [time, value] tuple")
)

// HTTPError is a non-2xx, non-429 response. It is never retried.
type HTTPError struct {
	Status int
	Body   string
}

func (e *HTTPError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("hyperliquid: unexpected status %d", e.Status)
	}
	return fmt.Sprintf("hyperliquid: unexpected status %d: %s", e.Status, e.Body)
}

// RateLimitedError carries how many attempts were made before giving up.
type RateLimitedError struct {
	Attempts int
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("hyperliquid: rate limited after %d attempts", e.Attempts)
}

// Is makes errors.Is(err, ErrRateLimited) match.
func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}
