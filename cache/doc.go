// Package cache provides the typed key-value store adapter used by the
// credential store: TTL-bound set/get/delete, atomic increment, glob
// pattern delete, and sorted-set primitives for time-ordered tracking.
//
// The Redis implementation is the production adapter; the Store interface
// exists so the resilient data access layer can interpose a circuit
// breaker without the credential store knowing about it.
package cache
