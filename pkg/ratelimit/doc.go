// Package ratelimit paces requests to the upstream site.
//
// Two pacers are provided and can be combined with Chain:
//
// Jitter:
//   - Sleeps a uniform random delay in [Min, Max] before each request
//   - Default 1s to 3s, mimicking a person clicking through pages
//
// Sliding Window:
//   - Tracks requests within a moving time window
//   - Enforces a hard requests-per-minute ceiling across all workers
//
// Every Wait takes a context and returns its error when cancelled.
package ratelimit
