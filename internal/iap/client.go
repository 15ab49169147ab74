package iap

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"eyezen/internal/types"

	"github.com/sony/gobreaker/v2"
)

// RetryPolicy configures retry behavior for store bridge calls.
type RetryPolicy struct {
	MaxRetries int
	MinWait    time.Duration
	MaxWait    time.Duration
}

// DefaultRetryPolicy returns sensible defaults for storefront API calls.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 2,
		MinWait:    250 * time.Millisecond,
		MaxWait:    5 * time.Second,
	}
}

// storeClient wraps an *http.Client and a circuit breaker so that every
// outbound call to the store bridge gets consistent resilience behavior:
// retry on 429/5xx with backoff and Retry-After support, breaker opening
// after consecutive failures, and mapping of terminal failures into the
// application error taxonomy.
type storeClient struct {
	client  *http.Client
	breaker *gobreaker.CircuitBreaker[*http.Response]
	retry   RetryPolicy
	sleepFn func(time.Duration) // injectable for tests
}

func newStoreClient(httpClient *http.Client, retry RetryPolicy) *storeClient {
	cb := gobreaker.NewCircuitBreaker[*http.Response](gobreaker.Settings{
		Name:        "store-bridge",
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
	})
	return &storeClient{
		client:  httpClient,
		breaker: cb,
		retry:   retry,
		sleepFn: time.Sleep,
	}
}

// Do executes the request under the circuit breaker, retrying 429 and 5xx
// responses. On success the response is returned as-is and the caller owns
// the body. On exhausted retries or an open breaker, Do returns an
// AppError in the iap taxonomy.
func (c *storeClient) Do(req *http.Request) (*http.Response, error) {
	// Snapshot the body so retries can replay it.
	var bodyBytes []byte
	if req.Body != nil {
		var err error
		bodyBytes, err = io.ReadAll(req.Body)
		if err != nil {
			return nil, types.NewAppError(types.ErrCodeInternalUnexpected,
				"failed to buffer request body", err)
		}
		req.Body.Close()
	}

	var lastResp *http.Response
	var lastErr error

	attempts := 1 + c.retry.MaxRetries
	for attempt := 0; attempt < attempts; attempt++ {
		if bodyBytes != nil {
			req.Body = io.NopCloser(bytes.NewReader(bodyBytes))
			req.ContentLength = int64(len(bodyBytes))
		}

		resp, err := c.breaker.Execute(func() (*http.Response, error) {
			r, doErr := c.client.Do(req)
			if doErr != nil {
				return nil, doErr
			}
			if r.StatusCode >= 500 || r.StatusCode == http.StatusTooManyRequests {
				return r, fmt.Errorf("store bridge returned %d", r.StatusCode)
			}
			return r, nil
		})
		if err == nil {
			return resp, nil
		}

		lastErr = err
		if resp != nil {
			if attempt < attempts-1 {
				resp.Body.Close()
			} else {
				lastResp = resp
			}
		}

		// An open breaker fails fast; retrying would only feed it.
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			break
		}

		// Only 429 and 5xx are retryable; other statuses came back non-error above.
		if attempt < attempts-1 {
			c.sleepFn(c.backoff(attempt, resp))
		}
	}

	if lastResp != nil {
		lastResp.Body.Close()
	}
	return nil, c.mapError(lastResp, lastErr)
}

// backoff computes the wait before the next attempt: Retry-After when the
// store provides one, otherwise exponential backoff with full jitter
// clamped to [MinWait, MaxWait].
func (c *storeClient) backoff(attempt int, resp *http.Response) time.Duration {
	if resp != nil {
		if ra := resp.Header.Get("Retry-After"); ra != "" {
			if seconds, err := strconv.Atoi(ra); err == nil && seconds > 0 {
				wait := time.Duration(seconds) * time.Second
				if wait > c.retry.MaxWait {
					wait = c.retry.MaxWait
				}
				return wait
			}
		}
	}

	base := float64(c.retry.MinWait) * math.Pow(2, float64(attempt))
	if max := float64(c.retry.MaxWait); base > max {
		base = max
	}
	min := float64(c.retry.MinWait)
	if base <= min {
		return c.retry.MinWait
	}
	return time.Duration(min + rand.Float64()*(base-min))
}

func (c *storeClient) mapError(resp *http.Response, err error) *types.AppError {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return types.NewAppError(types.ErrCodeIAPStoreError,
			"store bridge circuit open; service unavailable", err)
	}
	if resp != nil && resp.StatusCode >= 500 {
		return types.NewAppError(types.ErrCodeIAPStoreError,
			fmt.Sprintf("store bridge returned %d after retries", resp.StatusCode), err)
	}
	if resp != nil && resp.StatusCode == http.StatusTooManyRequests {
		return types.NewAppError(types.ErrCodeIAPStoreError,
			"store bridge rate limit exceeded", err)
	}
	return types.NewAppError(types.ErrCodeIAPStoreError, "store bridge request failed", err)
}
