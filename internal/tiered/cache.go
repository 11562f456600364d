package tiered

import (
	"errors"
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/dreamware/podcache/internal/diskstore"
	"github.com/dreamware/podcache/internal/hashing"
	"github.com/dreamware/podcache/internal/memstore"
)

// ErrTooLarge is returned when a single key/value pair can never fit in
// any partition regardless of what is evicted.
var ErrTooLarge = errors.New("tiered: entry larger than partition capacity")

// ErrSpillFailed is returned when a partition is full and its evicted
// tail entry could not be written to the disk tier. The tail entry is
// only removed from memory after its disk write succeeds, so the
// partition is left as it was when this is returned.
var ErrSpillFailed = errors.New("tiered: spill to disk failed")

// maxSpillAttempts bounds the spill retry loop so a pathological
// sequence of same-size entries can't spin forever; it is generous
// enough that no real workload should ever hit it.
const maxSpillAttempts = 4096

// Cache is PodCache's tiered orchestration layer: N memory partitions
// plus one disk overflow store, addressed by the same hash of key.
type Cache struct {
	partitions []*memstore.Partition
	disk       *diskstore.Store
	logger     *zap.SugaredLogger

	hits       uint64
	misses     uint64
	spills     uint64
	promotions uint64
	spillFails uint64
}

// New builds a Cache with partitionCount memory partitions, each sized
// to partitionCapacityBytes, backed by disk.
func New(partitionCount int, partitionCapacityBytes int64, disk *diskstore.Store, logger *zap.SugaredLogger) (*Cache, error) {
	if partitionCount < 1 || partitionCount > 64 {
		return nil, fmt.Errorf("tiered: partition count %d out of range [1,64]", partitionCount)
	}
	partitions := make([]*memstore.Partition, partitionCount)
	for i := range partitions {
		partitions[i] = memstore.New(partitionCapacityBytes)
	}
	return &Cache{partitions: partitions, disk: disk, logger: logger}, nil
}

func (c *Cache) partitionFor(key []byte) *memstore.Partition {
	idx := hashing.PartitionIndex(key, len(c.partitions))
	return c.partitions[idx]
}

// Put stores key/value, spilling the target partition's least-recently
// used entry to disk as many times as needed to make room.
func (c *Cache) Put(key, value []byte) error {
	part := c.partitionFor(key)

	if int64(len(key)+len(value)) > part.CapacityBytes() {
		return ErrTooLarge
	}

	if err := c.putWithSpill(part, key, value); err != nil {
		return err
	}
	if _, err := c.disk.Evict(key); err != nil && c.logger != nil {
		c.logger.Warnw("disk evict after memory put failed", "error", err)
	}
	return nil
}

// putWithSpill inserts key/value into part, spilling part's
// least-recently-used entry to disk and retrying as many times as
// needed to make room. It is shared by Put and Get's promotion path, per
// the component contract's spill loop (step 4.3), which applies
// identically whether the entry being admitted is new or promoted.
func (c *Cache) putWithSpill(part *memstore.Partition, key, value []byte) error {
	for attempt := 0; ; attempt++ {
		outcome, err := part.Put(key, value)
		if err != nil {
			return fmt.Errorf("tiered: partition put: %w", err)
		}
		if outcome != memstore.Full {
			return nil
		}

		if attempt >= maxSpillAttempts {
			return ErrSpillFailed
		}

		victim, ok := part.PeekTail()
		if !ok {
			return ErrTooLarge
		}
		if _, err := c.disk.Put(victim.Key, victim.Value); err != nil {
			atomic.AddUint64(&c.spillFails, 1)
			return fmt.Errorf("%w: %v", ErrSpillFailed, err)
		}
		part.Evict(victim.Key)
		atomic.AddUint64(&c.spills, 1)
	}
}

// Get returns key's value, checking memory first and then disk. A disk
// hit is promoted into memory, spilling the target partition's tail if
// it is full, and the disk copy is removed once promotion succeeds.
func (c *Cache) Get(key []byte) ([]byte, bool, error) {
	part := c.partitionFor(key)

	if value, ok := part.Get(key); ok {
		atomic.AddUint64(&c.hits, 1)
		return value, true, nil
	}

	value, ok, err := c.disk.Get(key)
	if err != nil {
		return nil, false, fmt.Errorf("tiered: disk get: %w", err)
	}
	if !ok {
		atomic.AddUint64(&c.misses, 1)
		return nil, false, nil
	}
	atomic.AddUint64(&c.hits, 1)

	if err := c.putWithSpill(part, key, value); err != nil {
		if c.logger != nil {
			c.logger.Warnw("promotion of disk hit failed, leaving entry on disk", "key", string(key), "error", err)
		}
		return value, true, nil
	}
	if _, err := c.disk.Evict(key); err != nil && c.logger != nil {
		c.logger.Warnw("disk evict after promotion failed", "error", err)
	}
	atomic.AddUint64(&c.promotions, 1)
	return value, true, nil
}

// Evict removes key from whichever tier holds it.
func (c *Cache) Evict(key []byte) (bool, error) {
	part := c.partitionFor(key)

	memRemoved := part.Evict(key)
	diskRemoved, err := c.disk.Evict(key)
	if err != nil {
		return memRemoved, fmt.Errorf("tiered: disk evict: %w", err)
	}
	return memRemoved || diskRemoved, nil
}

// Exists reports whether key is resident on either tier, without
// promoting a disk-tier hit. A memory-tier hit is looked up with the
// partition's Get, so it does mark the entry most recently used.
func (c *Cache) Exists(key []byte) (bool, error) {
	part := c.partitionFor(key)
	if _, ok := part.Get(key); ok {
		return true, nil
	}
	_, ok, err := c.disk.Get(key)
	if err != nil {
		return false, fmt.Errorf("tiered: disk get: %w", err)
	}
	return ok, nil
}

// Size returns the approximate total number of resident keys across
// both tiers. The disk-tier count is the number of registered leaves,
// which is exact for entries this process wrote but does not persist
// across restarts.
func (c *Cache) Size() int {
	total := 0
	for _, p := range c.partitions {
		total += p.Stats().Count
	}
	return total + len(c.disk.Keys())
}

// FlushAll discards every resident key on both tiers.
func (c *Cache) FlushAll() error {
	for _, p := range c.partitions {
		p.Reset()
	}
	return c.disk.Destroy()
}

// Stats aggregates utilization and traffic counters across the whole
// cache, for the status reporter and the Prometheus exporter.
type Stats struct {
	Partitions    []memstore.Stats
	DiskEntries   int
	Hits          uint64
	Misses        uint64
	Spills        uint64
	Promotions    uint64
	SpillFailures uint64
}

// Stats returns a point-in-time snapshot of the cache's state.
func (c *Cache) Stats() Stats {
	partStats := make([]memstore.Stats, len(c.partitions))
	for i, p := range c.partitions {
		partStats[i] = p.Stats()
	}
	return Stats{
		Partitions:    partStats,
		DiskEntries:   len(c.disk.Keys()),
		Hits:          atomic.LoadUint64(&c.hits),
		Misses:        atomic.LoadUint64(&c.misses),
		Spills:        atomic.LoadUint64(&c.spills),
		Promotions:    atomic.LoadUint64(&c.promotions),
		SpillFailures: atomic.LoadUint64(&c.spillFails),
	}
}
