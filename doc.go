// Package adelauth provides the token lifecycle and resilience core for a
// multi-tenant authentication gateway: JWT access tokens, rotating
// refresh tokens, Redis-backed sessions and credential records,
// PostgreSQL-backed account lockout, and per-dependency circuit breakers.
//
// The package is designed for concurrent server workloads: Engine methods
// are safe to call from multiple goroutines after initialization through
// [Builder.Build].
//
// # Architecture boundaries
//
// adelauth is the public surface. It exposes [Engine], [Builder],
// [Config], and value types (TokenPair, AuthResult, Health). Identity
// domain types live in the identity subpackage; the breaker, cache,
// credstore, and token subpackages are importable on their own for
// embedders that need only one concern. Infrastructure (the PostgreSQL
// repository, the Kafka producer, breaker-guarded data access) lives
// under internal/ and is never exported.
//
// # Failure semantics
//
// Every external dependency sits behind its own circuit breaker. Cached
// reads are best effort and degrade to safe defaults; refresh-token
// validation is the exception and fails closed, because a revoked token
// must never validate just because the revocation record is unreachable.
// Event publication is fire and forget and never blocks an
// authentication flow.
package adelauth
