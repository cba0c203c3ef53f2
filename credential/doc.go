// Package credential provides the cryptographic primitives the engine
// stores or transmits: argon2id password hashes in PHC string format,
// opaque random tokens, and the SHA-256 digests under which those tokens
// are persisted.
//
// Raw token values leave this package exactly once, at generation time.
// Everything written to storage is a digest.
package credential
