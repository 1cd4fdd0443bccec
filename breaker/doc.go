// Package breaker implements a failure-isolating circuit breaker that
// wraps calls to external dependencies. Each protected dependency gets
// its own Breaker instance with independent thresholds; instances are
// created once at startup and shared across concurrent requests so that
// the failure signal aggregates correctly.
//
// A breaker gates whether calls are attempted. It never substitutes a
// positive result on its own: an open breaker fails fast with ErrOpen
// (or runs a caller-supplied fallback), it does not authenticate anything.
package breaker
