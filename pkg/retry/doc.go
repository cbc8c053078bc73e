// Package retry provides backoff strategies, a generic retry loop and a
// retrying http.RoundTripper.
//
// The loop:
//
//	err := retry.Do(func() error {
//		return probe(ctx)
//	}, &retry.Config{
//		MaxAttempts: 4,
//		Backoff:     retry.DefaultExponentialBackoff(),
//		Context:     ctx,
//	})
//
// The transport wraps any base RoundTripper. Each request is attempted once
// plus MaxRetries more times while the outcome is a retryable status
// (429, 500, 502, 503, 504 by default) or a connection-level failure. A
// Retry-After header raises the pause up to MaxRetryAfter. When retries run
// out on a status the transport returns a network error of kind
// exhausted_retries carrying that status; non-retryable statuses come back as
// ordinary responses.
package retry
