// Package resp implements the subset of the Redis Serialization Protocol
// PodCache speaks on its TCP front end: commands arrive as arrays of
// bulk strings, replies go back as simple strings, errors, integers, or
// bulk strings.
//
// Decoding is incremental: a Decoder owns a growable byte accumulator
// (starting at 16KiB) and assembles a complete command from however many
// Read calls that takes, so a command split across TCP segments parses
// exactly the same as one that arrives in a single read.
package resp
