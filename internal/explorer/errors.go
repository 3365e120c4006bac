package explorer

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when a provider has no result for a query.
var ErrNotFound = errors.New("no data")

// ProviderError reports a failed call to a third-party API.
type ProviderError struct {
	Provider   string
	StatusCode int
	Err        error
}

func (e *ProviderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s: unexpected status %d", e.Provider, e.StatusCode)
	}
	return fmt.Sprintf("%s: %v", e.Provider, e.Err)
}

func (e *ProviderError) Unwrap() error { return e.Err }
