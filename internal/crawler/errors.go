package crawler

import "fmt"

// FetchError reports a failed fetch attempt for a single URL. Fetch failures
// are non-fatal for a run: the coordinator records them and moves on.
type FetchError struct {
	URL    string
	Mode   FetchMode
	Reason string
	Err    error
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("fetch %s (%s): %s: %v", e.URL, e.Mode, e.Reason, e.Err)
	}
	return fmt.Sprintf("fetch %s (%s): %s", e.URL, e.Mode, e.Reason)
}

// Unwrap exposes the underlying cause for errors.Is/As.
func (e *FetchError) Unwrap() error {
	return e.Err
}
