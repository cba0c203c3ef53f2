// Package rate provides fixed-window request limiters keyed by
// (operation, client key). The in-memory limiter is the default and is
// process-local; the Redis limiter offers shared counters for
// multi-instance deployments.
package rate
