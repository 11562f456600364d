// Package diskstore implements PodCache's content-addressable overflow
// store: values spilled from a full memory partition land under a
// filesystem path derived entirely from the SHA-256 digest of their key,
// split into four 16-character segments.
//
// The store is ephemeral scratch space, not a database: it survives for
// the life of the server process and is destroyed at shutdown (or on a
// FLUSHALL). It never consults its own registry of known leaf paths to
// answer Get/Put/Evict — those always recompute the path from the key —
// the registry exists only so Keys can report what is on disk. Destroy
// removes the whole base directory and clears the registry.
package diskstore
