// Package pool manages the GPU-visible backing memory shared by the state
// cache, scratch space and the batch emitter.
//
// The pool is a bump allocator over a 32-bit aperture with a byte budget.
// Freed bytes return to the budget but their addresses are never reused, so
// a stale relocation can never alias a newer allocation.
package pool

import (
	"errors"
	"fmt"

	"golang.org/x/exp/constraints"
)

// Pool errors.
var (
	// ErrMemoryBudgetExceeded is returned when an allocation would exceed the budget.
	ErrMemoryBudgetExceeded = errors.New("pool: memory budget exceeded")

	// ErrPoolClosed is returned when operating on a closed pool.
	ErrPoolClosed = errors.New("pool: pool closed")

	// ErrOutOfRange is returned when a write falls outside its allocation.
	ErrOutOfRange = errors.New("pool: write out of allocation range")
)

// Default limits.
const (
	// DefaultBudgetKB is the default budget (4 MB).
	DefaultBudgetKB = 4096

	// MinBudgetKB is the smallest budget accepted by New.
	MinBudgetKB = 4

	// Alignment is the address alignment of every allocation. Kernel and
	// state pointers in hardware records drop the low 6 bits.
	Alignment = 64

	// baseAddress keeps address zero unused so a null pointer is never valid.
	baseAddress = 0x1000
)

// AlignUp rounds x up to the next multiple of a.
func AlignUp[T constraints.Integer](x, a T) T {
	return (x + a - 1) / a * a
}

// Stats contains pool usage statistics.
type Stats struct {
	// BudgetBytes is the total budget.
	BudgetBytes uint64

	// UsedBytes is the currently allocated memory.
	UsedBytes uint64

	// AvailableBytes is the remaining budget.
	AvailableBytes uint64

	// Allocations is the number of live allocations.
	Allocations int

	// Writes counts write operations into GPU-visible memory.
	Writes uint64

	// BytesWritten counts bytes written into GPU-visible memory.
	BytesWritten uint64

	// Utilization is the fraction of the budget in use (0.0 to 1.0).
	Utilization float64
}

// String returns a human-readable summary.
func (s Stats) String() string {
	return fmt.Sprintf("Pool[%.1f%% used, %d/%d KB, %d allocations, %d bytes written]",
		s.Utilization*100,
		s.UsedBytes/1024,
		s.BudgetBytes/1024,
		s.Allocations,
		s.BytesWritten)
}

// Allocation is a block of GPU-visible memory.
type Allocation struct {
	id    uint64
	label string
	addr  uint32
	size  uint64
	data  []byte
	freed bool
}

// ID returns the allocation's unique identifier.
func (a *Allocation) ID() uint64 { return a.id }

// Label returns the debug label.
func (a *Allocation) Label() string { return a.label }

// Address returns the GPU address of the first byte.
func (a *Allocation) Address() uint32 { return a.addr }

// Size returns the allocation size in bytes, including alignment padding.
//
//nolint:gosec // G115: sizes are bounded by the 32-bit aperture
func (a *Allocation) Size() int { return int(a.size) }

// Bytes returns the current contents. Callers must not modify the slice.
func (a *Allocation) Bytes() []byte { return a.data }

// Freed reports whether the allocation was returned to the pool.
func (a *Allocation) Freed() bool { return a.freed }

// Config holds configuration for creating a Pool.
type Config struct {
	// BudgetKB is the budget in kilobytes.
	// Defaults to DefaultBudgetKB if below MinBudgetKB.
	BudgetKB int
}

// Pool tracks GPU-visible allocations against a byte budget.
//
// A Pool belongs to one driver context and is not safe for concurrent use.
type Pool struct {
	budgetBytes uint64
	usedBytes   uint64
	next        uint64
	nextID      uint64

	allocs map[uint64]*Allocation

	writes       uint64
	bytesWritten uint64

	closed bool
}

// New creates a pool.
func New(cfg Config) *Pool {
	kb := cfg.BudgetKB
	if kb < MinBudgetKB {
		kb = DefaultBudgetKB
	}

	//nolint:gosec // G115: kb is bounded below by MinBudgetKB
	return &Pool{
		budgetBytes: uint64(kb) * 1024,
		next:        baseAddress,
		allocs:      make(map[uint64]*Allocation),
	}
}

// Alloc reserves size bytes. It fails with ErrMemoryBudgetExceeded when the
// budget or the aperture cannot hold the request.
func (p *Pool) Alloc(label string, size int) (*Allocation, error) {
	if p.closed {
		return nil, ErrPoolClosed
	}
	if size <= 0 {
		size = 1
	}

	//nolint:gosec // G115: size is positive
	aligned := AlignUp(uint64(size), Alignment)
	if p.usedBytes+aligned > p.budgetBytes {
		return nil, fmt.Errorf("%w: %s needs %d bytes, have %d bytes available",
			ErrMemoryBudgetExceeded, label, aligned, p.budgetBytes-p.usedBytes)
	}
	if p.next+aligned > 1<<32 {
		return nil, fmt.Errorf("%w: %s: aperture exhausted", ErrMemoryBudgetExceeded, label)
	}

	p.nextID++
	a := &Allocation{
		id:    p.nextID,
		label: label,
		addr:  uint32(p.next),
		size:  aligned,
		data:  make([]byte, aligned),
	}
	p.next += aligned
	p.usedBytes += aligned
	p.allocs[a.id] = a

	slogger().Debug("pool: alloc", "label", label, "addr", a.addr, "bytes", aligned)
	return a, nil
}

// Write copies data into a at offset.
func (p *Pool) Write(a *Allocation, offset int, data []byte) error {
	if p.closed {
		return ErrPoolClosed
	}
	if a == nil || a.freed || offset < 0 || offset+len(data) > len(a.data) {
		return ErrOutOfRange
	}
	copy(a.data[offset:], data)
	p.writes++
	p.bytesWritten += uint64(len(data))
	return nil
}

// Free returns a to the budget. Freeing twice is a no-op.
func (p *Pool) Free(a *Allocation) {
	if a == nil || a.freed || p.closed {
		return
	}
	if _, ok := p.allocs[a.id]; !ok {
		return
	}
	delete(p.allocs, a.id)
	p.usedBytes -= a.size
	a.freed = true
	a.data = nil
}

// SetBudget changes the budget. A budget below current usage only blocks
// further allocations; live allocations are never revoked.
func (p *Pool) SetBudget(kb int) error {
	if p.closed {
		return ErrPoolClosed
	}
	if kb < MinBudgetKB {
		kb = MinBudgetKB
	}
	//nolint:gosec // G115: kb bounded by MinBudgetKB
	p.budgetBytes = uint64(kb) * 1024
	return nil
}

// Stats returns usage statistics.
func (p *Pool) Stats() Stats {
	var utilization float64
	if p.budgetBytes > 0 {
		utilization = float64(p.usedBytes) / float64(p.budgetBytes)
	}
	var avail uint64
	if p.budgetBytes > p.usedBytes {
		avail = p.budgetBytes - p.usedBytes
	}
	return Stats{
		BudgetBytes:    p.budgetBytes,
		UsedBytes:      p.usedBytes,
		AvailableBytes: avail,
		Allocations:    len(p.allocs),
		Writes:         p.writes,
		BytesWritten:   p.bytesWritten,
		Utilization:    utilization,
	}
}

// Close frees every allocation. The pool must not be used afterwards.
func (p *Pool) Close() {
	if p.closed {
		return
	}
	for _, a := range p.allocs {
		a.freed = true
		a.data = nil
	}
	p.allocs = nil
	p.usedBytes = 0
	p.closed = true
}
