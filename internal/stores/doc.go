// Package stores holds the Redis-backed single-use token store used for
// email verification and password reset challenges. Only token digests are
// persisted; validity checking (unused + unexpired) is the caller's job.
package stores
