// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package ctgov

import (
	"fmt"
	"time"
)

// InvalidRequestError is a 4xx answer other than 404 and 429. It is never
// retried. Message holds the server's response body verbatim.
type InvalidRequestError struct {
	Endpoint   string
	Query      string
	StatusCode int
	Message    string
}

func (e *InvalidRequestError) Error() string {
	return fmt.Sprintf("invalid request to %s (HTTP %d, query %q): %s", e.Endpoint, e.StatusCode, e.Query, e.Message)
}

// NotFoundError is a 404 answer, typically an unknown NCT ID.
type NotFoundError struct {
	Endpoint string
	Message  string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("not found: %s", e.Endpoint)
}

// TimeoutError reports that every attempt of a request timed out.
type TimeoutError struct {
	Endpoint string
	Timeout  time.Duration
	Attempts int
	Err      error
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("%s timed out after %d attempt(s) of %v: %v", e.Endpoint, e.Attempts, e.Timeout, e.Err)
}

func (e *TimeoutError) Unwrap() error { return e.Err }

// TransientNetworkError reports a connection failure, 429 or 5xx that
// persisted through every attempt. StatusCode is zero for transport errors.
type TransientNetworkError struct {
	Endpoint   string
	StatusCode int
	Attempts   int
	Message    string
	Err        error
}

func (e *TransientNetworkError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("%s returned HTTP %d after %d attempt(s): %s", e.Endpoint, e.StatusCode, e.Attempts, e.Message)
	}
	return fmt.Sprintf("%s failed after %d attempt(s): %v", e.Endpoint, e.Attempts, e.Err)
}

func (e *TransientNetworkError) Unwrap() error { return e.Err }

// DecodeError reports a 200 response whose body did not match the
// expected JSON shape.
type DecodeError struct {
	Endpoint string
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("parsing %s response: %v", e.Endpoint, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
