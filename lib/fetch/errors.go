package fetch

import "fmt"

// NotFoundError reports a 404 from the upstream. It is terminal but
// usually not alarming, a product can simply stop existing.
type NotFoundError struct {
	URL string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("resource not found: %s", e.URL)
}

// FatalError reports a status code that retrying will not fix.
type FatalError struct {
	URL        string
	StatusCode int
}

func (e FatalError) Error() string {
	return fmt.Sprintf("fatal status %d from %s", e.StatusCode, e.URL)
}

// RetriesExhaustedError reports that every attempt failed with a
// retryable condition.
type RetriesExhaustedError struct {
	URL        string
	Attempts   int
	LastStatus int
	LastErr    error
}

func (e RetriesExhaustedError) Error() string {
	if e.LastErr != nil {
		return fmt.Sprintf(
			"gave up on %s after %d attempts: %v",
			e.URL, e.Attempts, e.LastErr,
		)
	}
	return fmt.Sprintf(
		"gave up on %s after %d attempts, last status %d",
		e.URL, e.Attempts, e.LastStatus,
	)
}

func (e RetriesExhaustedError) Unwrap() error {
	return e.LastErr
}
