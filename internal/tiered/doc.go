// Package tiered orchestrates PodCache's two storage tiers into one
// logical keyspace: a fixed set of memory partitions backed by a single
// content-addressable disk store that absorbs whatever a full partition
// evicts.
//
// A key lives in at most one tier at a time. Put spills the current
// least-recently-used entry to disk when its partition is full, retrying
// the original put until it fits or the partition is exhausted. Get
// promotes a disk hit back into memory and removes the disk copy,
// so a key found on one tier is never also found on the other except
// for the brief, documented window of a promotion racing a concurrent
// disk read.
package tiered
