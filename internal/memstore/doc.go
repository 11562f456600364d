// Package memstore implements PodCache's in-memory LRU engine: a single
// partition pairs a chained hash table with a doubly-linked recency list
// behind one mutex, byte-accounted against a fixed capacity.
//
// # Invariants
//
// A Partition maintains, after every completed call:
//
//   - The recency list holds exactly the same keys as the bucket chains.
//   - usedBytes equals the sum of size(key, value) over resident entries.
//   - usedBytes never exceeds capacityBytes.
//   - head == nil iff tail == nil iff count == 0.
//   - every node's prev is nil iff it is head; next is nil iff it is tail.
//
// Making room when a partition is full is explicitly not this package's
// job — Put returns Full and leaves state untouched; eviction policy
// (disk spill, retry) belongs to the tiered orchestration layer.
package memstore
