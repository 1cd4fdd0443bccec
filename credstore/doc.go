// Package credstore is the TTL-indexed credential store: session records,
// refresh-token revocation records, one-time codes, single-use
// password-reset and email-verification tokens, rate-limit counters, and
// active-user presence tracking.
//
// Keys are namespaced {prefix}:{entity}:{id}[:{sub}] so families never
// collide and a whole family can be invalidated with one pattern delete.
//
// Reads are best-effort: when the cache backend fails they log and report
// a miss, and callers re-derive from the relational store (sessions
// excepted — they are cache-only and loss simply forces
// re-authentication). The exception is refresh-token validation, which
// fails closed: a cache outage makes refresh tokens invalid, never valid.
package credstore
