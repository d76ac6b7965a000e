package eight

import (
	"errors"
	"fmt"
)

var (
	// ErrNotAuthenticated is returned when the vendor rejects the credentials
	// or the session token.
	ErrNotAuthenticated = errors.New("not authenticated")
	// ErrRequest covers every other failed exchange with the vendor API.
	ErrRequest = errors.New("request failed")
)

// RequestError describes a non-successful vendor response.
type RequestError struct {
	Method     string
	URL        string
	StatusCode int
	Body       string
	err        error
}

func (e *RequestError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("%s %s: %v: %s", e.Method, e.URL, e.err, e.Body)
	}
	return fmt.Sprintf("%s %s: %v (status %d): %s", e.Method, e.URL, e.err, e.StatusCode, e.Body)
}

func (e *RequestError) Unwrap() error {
	return e.err
}
