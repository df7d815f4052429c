// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package httputil provides the retrying HTTP transport shared by every
// ClinicalTrials.gov endpoint.
package httputil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"math"
	"net"
	"net/http"
	"strconv"
	"time"
)

// RetryBaseDelay controls the base duration for exponential backoff.
// Tests override this to avoid real sleeps.
var RetryBaseDelay = 1 * time.Second

// MaxRetryAfter caps how long a server-provided Retry-After may stall us.
var MaxRetryAfter = 60 * time.Second

const defaultMaxAttempts = 3

// Attempt describes one finished attempt, passed to Policy.OnAttempt.
type Attempt struct {
	Number   int
	Status   int // zero when the request failed before a response
	Err      error
	Duration time.Duration
	Retrying bool
	Backoff  time.Duration
}

// Policy configures DoWithRetry.
type Policy struct {
	// MaxAttempts bounds the total number of attempts (default 3).
	MaxAttempts int

	// Wait runs before every attempt, e.g. a rate limiter. A non-nil error
	// aborts the request.
	Wait func(ctx context.Context) error

	// OnAttempt observes every attempt.
	OnAttempt func(Attempt)

	// ReadBody buffers the response body inside each attempt, so a timeout
	// or reset while the body streams is retried like a transport error.
	// The returned response carries the buffered body.
	ReadBody bool

	// MaxBodyBytes bounds a buffered body. Zero means no limit.
	MaxBodyBytes int64
}

// RetryableStatus reports whether a response status is worth another
// attempt: 429 and every 5xx.
func RetryableStatus(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

// IsTimeout reports whether err is a per-attempt timeout (client timeout or
// net.Error timeout) rather than a cancellation by the caller.
func IsTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// DoWithRetry executes an HTTP request and retries transient failures with
// exponential backoff: transport errors, timeouts, HTTP 429 and 5xx. Other
// statuses, 4xx included, are returned on the first attempt.
//
// With Policy.ReadBody set, an attempt only succeeds once the whole body
// has been read; a failed read counts as a transport error.
//
// The delay starts at RetryBaseDelay and doubles each attempt. A 429 or 503
// carrying Retry-After in seconds waits at least that long, capped at
// MaxRetryAfter. Retried response bodies are drained and closed before
// sleeping. If ctx is cancelled the function returns ctx.Err() without
// further attempts. After exhausting attempts the last retryable response
// is returned so the caller can inspect it, or the last transport error.
func DoWithRetry(ctx context.Context, client *http.Client, req *http.Request, policy Policy) (*http.Response, error) {
	maxAttempts := policy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	for attempt := 1; ; attempt++ {
		if policy.Wait != nil {
			if err := policy.Wait(ctx); err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, err
			}
		}

		start := time.Now()
		resp, err := client.Do(req.Clone(ctx))
		if err == nil && policy.ReadBody {
			resp, err = buffer(resp, policy.MaxBodyBytes)
		}
		info := Attempt{Number: attempt, Err: err, Duration: time.Since(start)}

		if err != nil && ctx.Err() != nil {
			observe(policy, info)
			return nil, ctx.Err()
		}
		if err == nil {
			info.Status = resp.StatusCode
			if !RetryableStatus(resp.StatusCode) {
				observe(policy, info)
				return resp, nil
			}
		}

		if attempt >= maxAttempts {
			observe(policy, info)
			return resp, err
		}

		backoff := time.Duration(math.Pow(2, float64(attempt-1))) * RetryBaseDelay
		if resp != nil {
			if ra := retryAfter(resp); ra > backoff {
				backoff = ra
			}
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		info.Retrying = true
		info.Backoff = backoff
		observe(policy, info)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}
}

// buffer reads and closes resp.Body, replacing it with an in-memory copy.
func buffer(resp *http.Response, limit int64) (*http.Response, error) {
	defer resp.Body.Close()
	var r io.Reader = resp.Body
	if limit > 0 {
		r = io.LimitReader(r, limit)
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	resp.Body = io.NopCloser(bytes.NewReader(data))
	return resp, nil
}

func observe(p Policy, a Attempt) {
	if p.OnAttempt != nil {
		p.OnAttempt(a)
	}
}

// retryAfter parses a Retry-After header given in seconds.
func retryAfter(resp *http.Response) time.Duration {
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0
	}
	secs, err := strconv.Atoi(v)
	if err != nil || secs <= 0 {
		return 0
	}
	d := time.Duration(secs) * time.Second
	if d > MaxRetryAfter {
		d = MaxRetryAfter
	}
	return d
}
