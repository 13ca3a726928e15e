package ratelimit

import "fmt"

// ConfigurationError reports a request weight that can never be admitted.
type ConfigurationError struct {
	Weight int
	Limit  int
}

func (e *ConfigurationError) Error() string {
	if e.Weight <= 0 {
		return fmt.Sprintf("ratelimit: weight %d must be positive", e.Weight)
	}
	return fmt.Sprintf("ratelimit: weight %d exceeds budget limit %d", e.Weight, e.Limit)
}
