// Package statecache stores compiled hardware state by content.
//
// Every entry is addressed by (stage, key bytes, relocation list). Lookups
// hash the key with FNV-1a and then compare key bytes and relocations
// exactly, so a hash collision can never return foreign state. Payloads are
// copied into pool memory with their relocations already resolved, which
// lets the batch emitter point at an entry verbatim.
package statecache

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash"
	"hash/fnv"

	"honnef.co/go/safeish"

	"github.com/gogpu/statecc/batch"
	"github.com/gogpu/statecc/internal/pool"
)

// Cache errors.
var (
	// ErrRelocationRange is returned when a relocation does not fit the payload.
	ErrRelocationRange = errors.New("statecache: relocation outside payload")

	// ErrNilTarget is returned when a relocation has no target allocation.
	ErrNilTarget = errors.New("statecache: relocation target is nil")

	// ErrEmptyPayload is returned when uploading a zero-length payload.
	ErrEmptyPayload = errors.New("statecache: empty payload")
)

// Usage tells the batch emitter which memory domain a relocation reads.
type Usage = batch.Usage

// Relocation usages.
const (
	UsageState       = batch.UsageState
	UsageInstruction = batch.UsageInstruction
	UsageSampler     = batch.UsageSampler
	UsageScratch     = batch.UsageScratch
	UsageConstant    = batch.UsageConstant
	UsageRender      = batch.UsageRender
	UsageTexture     = batch.UsageTexture
)

// Relocation patches the dword at Offset with Target.Address()+Delta.
// Delta usually carries flag bits that share the dword with the pointer.
// Target is usually a pool allocation; surfaces point at memory owned by
// the application.
type Relocation struct {
	Offset uint32
	Usage  Usage
	Target batch.Target
	Delta  uint32
}

// Entry is one compiled blob. It is owned by the Cache; callers hold it as
// a borrowed handle that stays valid until the cache is destroyed.
type Entry struct {
	stage   Stage
	hash    uint64
	key     []byte
	payload []byte
	relocs  []Relocation
	alloc   *pool.Allocation
	aux     any
}

// Stage returns the stage the entry was uploaded for.
func (e *Entry) Stage() Stage { return e.stage }

// Key returns the key bytes.
func (e *Entry) Key() []byte { return e.key }

// Payload returns the payload with relocations applied.
func (e *Entry) Payload() []byte { return e.payload }

// Relocations returns the relocation list.
func (e *Entry) Relocations() []Relocation { return e.relocs }

// Allocation returns the backing memory.
func (e *Entry) Allocation() *pool.Allocation { return e.alloc }

// Address returns the GPU address of the payload.
func (e *Entry) Address() uint32 { return e.alloc.Address() }

// Aux returns compile metadata stored alongside the payload.
func (e *Entry) Aux() any { return e.aux }

// BuildFunc compiles the payload for a key that missed the cache.
type BuildFunc func() (payload []byte, aux any, err error)

// Cache is the content-addressed state cache of one driver context.
//
// Thread Safety:
// Cache is not safe for concurrent use. It is owned by a single context and
// driven from the thread that issues draws.
type Cache struct {
	pool *pool.Pool

	buckets [NumStages]map[uint64][]*Entry
	counts  [NumStages]int

	// last records the entry most recently returned per stage. A change
	// raises that stage's bit in dirty.
	last  [NumStages]*Entry
	dirty uint64

	hits    uint64
	misses  uint64
	uploads uint64
}

// New creates an empty cache backed by p.
func New(p *pool.Pool) *Cache {
	c := &Cache{pool: p}
	for i := range c.buckets {
		c.buckets[i] = make(map[uint64][]*Entry)
	}
	return c
}

// KeyBytes returns the byte image of a fixed-layout key struct. Key types
// must start with a structs.HostLayout marker and contain no padding.
func KeyBytes[T any](k *T) []byte {
	return safeish.AsBytes(k)
}

// Search looks up an entry. It touches no pool memory.
func (c *Cache) Search(stage Stage, key []byte, relocs []Relocation) (*Entry, bool) {
	h := hashKey(stage, key, relocs)
	for _, e := range c.buckets[stage][h] {
		if bytes.Equal(e.key, key) && relocsEqual(e.relocs, relocs) {
			c.hits++
			c.noteUse(e)
			return e, true
		}
	}
	c.misses++
	return nil, false
}

// Upload stores a new entry. The caller is expected to have called Search.
// Pool exhaustion is returned as an error wrapping
// pool.ErrMemoryBudgetExceeded and leaves the cache unchanged.
func (c *Cache) Upload(stage Stage, key, payload []byte, relocs []Relocation, aux any) (*Entry, error) {
	if len(payload) == 0 {
		return nil, fmt.Errorf("%w: stage %s", ErrEmptyPayload, stage)
	}

	baked := bytes.Clone(payload)
	for _, r := range relocs {
		if r.Target == nil {
			return nil, fmt.Errorf("%w: stage %s offset %d", ErrNilTarget, stage, r.Offset)
		}
		if int(r.Offset)+4 > len(baked) {
			return nil, fmt.Errorf("%w: stage %s offset %d, payload %d bytes",
				ErrRelocationRange, stage, r.Offset, len(baked))
		}
		binary.LittleEndian.PutUint32(baked[r.Offset:], r.Target.Address()+r.Delta)
	}

	alloc, err := c.pool.Alloc(stage.String(), len(baked))
	if err != nil {
		return nil, fmt.Errorf("statecache: upload %s: %w", stage, err)
	}
	if err := c.pool.Write(alloc, 0, baked); err != nil {
		c.pool.Free(alloc)
		return nil, fmt.Errorf("statecache: upload %s: %w", stage, err)
	}

	e := &Entry{
		stage:   stage,
		hash:    hashKey(stage, key, relocs),
		key:     bytes.Clone(key),
		payload: baked,
		relocs:  append([]Relocation(nil), relocs...),
		alloc:   alloc,
		aux:     aux,
	}
	c.buckets[stage][e.hash] = append(c.buckets[stage][e.hash], e)
	c.counts[stage]++
	c.uploads++
	c.noteUse(e)

	slogger().Debug("statecache: upload",
		"stage", stage.String(),
		"bytes", len(baked),
		"relocs", len(relocs),
		"addr", alloc.Address())
	return e, nil
}

// SearchOrUpload returns the cached entry for the key or builds and uploads
// it. build runs only on a miss.
func (c *Cache) SearchOrUpload(stage Stage, key []byte, relocs []Relocation, build BuildFunc) (*Entry, error) {
	if e, ok := c.Search(stage, key, relocs); ok {
		return e, nil
	}
	payload, aux, err := build()
	if err != nil {
		return nil, err
	}
	return c.Upload(stage, key, payload, relocs, aux)
}

func (c *Cache) noteUse(e *Entry) {
	if c.last[e.stage] != e {
		c.last[e.stage] = e
		c.dirty |= e.stage.Bit()
	}
}

// TakeDirty returns the stages whose current entry changed since the last
// call and resets the set.
func (c *Cache) TakeDirty() uint64 {
	d := c.dirty
	c.dirty = 0
	return d
}

// Last returns the entry most recently searched or uploaded for stage.
func (c *Cache) Last(stage Stage) *Entry { return c.last[stage] }

// Stats returns the number of hits and misses.
func (c *Cache) Stats() (hits, misses uint64) {
	return c.hits, c.misses
}

// Uploads returns the number of entries ever uploaded.
func (c *Cache) Uploads() uint64 { return c.uploads }

// HitRate returns the hit rate (0.0 to 1.0), or 0.0 before any lookup.
func (c *Cache) HitRate() float64 {
	total := c.hits + c.misses
	if total == 0 {
		return 0.0
	}
	return float64(c.hits) / float64(total)
}

// Size returns the total number of entries.
func (c *Cache) Size() int {
	n := 0
	for _, k := range c.counts {
		n += k
	}
	return n
}

// Count returns the number of entries for stage.
func (c *Cache) Count(stage Stage) int { return c.counts[stage] }

// Destroy frees every entry's backing memory and empties the cache.
func (c *Cache) Destroy() {
	for i := range c.buckets {
		for _, list := range c.buckets[i] {
			for _, e := range list {
				c.pool.Free(e.alloc)
			}
		}
		c.buckets[i] = make(map[uint64][]*Entry)
		c.counts[i] = 0
		c.last[i] = nil
	}
	c.dirty = 0
	c.hits, c.misses, c.uploads = 0, 0, 0
}

// =============================================================================
// Hashing
// =============================================================================

func hashKey(stage Stage, key []byte, relocs []Relocation) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte{byte(stage)})
	_, _ = h.Write(key)
	for _, r := range relocs {
		hashWriteUint32(h, r.Offset)
		_, _ = h.Write([]byte{byte(r.Usage)})
		if r.Target != nil {
			hashWriteUint32(h, r.Target.Address())
		} else {
			hashWriteUint32(h, 0)
		}
		hashWriteUint32(h, r.Delta)
	}
	return h.Sum64()
}

func relocsEqual(a, b []Relocation) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// hashWriteUint32 writes a uint32 to the hash.
func hashWriteUint32(h hash.Hash64, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	_, _ = h.Write(buf[:])
}
