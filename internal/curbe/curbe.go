// Package curbe partitions the constant URB entry (CURBE) among the stages
// that read push constants.
//
// The region is laid out as fragment constants, then clip planes, then
// vertex constants. A relayout is triggered when any consumer outgrows its
// slot, or when the whole request shrinks far enough below the current
// allocation, so small fluctuations never thrash the offsets.
package curbe

import (
	"errors"
	"fmt"
	"math"
	"slices"
)

// ErrBudget is wrapped in the panic raised when a request exceeds the
// hardware register budget. A request that large means the caller combined
// shaders the hardware cannot run.
var ErrBudget = errors.New("curbe: request exceeds register budget")

const (
	// MaxRegs is the hardware CURBE budget in registers.
	MaxRegs = 32

	// FloatsPerReg is the number of 32-bit values per register.
	FloatsPerReg = 8

	// DefaultShrinkDivisor and DefaultShrinkFloor give the default
	// hysteresis: shrink when the request drops below a quarter of an
	// allocation larger than 16 registers.
	DefaultShrinkDivisor = 4
	DefaultShrinkFloor   = 16

	// FixedClipPlanes is the number of frustum planes that precede the
	// user clip planes.
	FixedClipPlanes = 6
)

// Request holds the registers each consumer needs.
type Request struct {
	Fragment uint32
	Clip     uint32
	Vertex   uint32
}

// Total returns the summed request.
func (r Request) Total() uint32 { return r.Fragment + r.Clip + r.Vertex }

// Layout is a CURBE partition in registers.
type Layout struct {
	FragmentStart uint32
	FragmentSize  uint32
	ClipStart     uint32
	ClipSize      uint32
	VertexStart   uint32
	VertexSize    uint32
	Total         uint32
}

// String formats the layout for logs.
func (l Layout) String() string {
	return fmt.Sprintf("fs=%d+%d clip=%d+%d vs=%d+%d total=%d",
		l.FragmentStart, l.FragmentSize, l.ClipStart, l.ClipSize,
		l.VertexStart, l.VertexSize, l.Total)
}

// Policy tunes the shrink hysteresis.
type Policy struct {
	// ShrinkDivisor: relayout when the request total drops below
	// Total/ShrinkDivisor.
	ShrinkDivisor uint32

	// ShrinkFloor: never shrink an allocation of this many registers or fewer.
	ShrinkFloor uint32
}

// DefaultPolicy returns the default hysteresis.
func DefaultPolicy() Policy {
	return Policy{ShrinkDivisor: DefaultShrinkDivisor, ShrinkFloor: DefaultShrinkFloor}
}

// Allocator owns the current layout.
type Allocator struct {
	policy    Policy
	layout    Layout
	relayouts uint64
}

// New creates an allocator with an empty layout.
func New(p Policy) *Allocator {
	if p.ShrinkDivisor == 0 {
		p.ShrinkDivisor = DefaultShrinkDivisor
	}
	return &Allocator{policy: p}
}

// Layout returns the current layout.
func (a *Allocator) Layout() Layout { return a.layout }

// Relayouts returns how many times the layout changed.
func (a *Allocator) Relayouts() uint64 { return a.relayouts }

// Update applies req and reports whether the layout changed. It panics,
// wrapping ErrBudget, when req exceeds MaxRegs.
func (a *Allocator) Update(req Request) bool {
	total := req.Total()
	if total > MaxRegs {
		panic(fmt.Errorf("%w: fs=%d clip=%d vs=%d", ErrBudget, req.Fragment, req.Clip, req.Vertex))
	}

	cur := a.layout
	grow := req.Fragment > cur.FragmentSize ||
		req.Clip > cur.ClipSize ||
		req.Vertex > cur.VertexSize
	shrink := total < cur.Total/a.policy.ShrinkDivisor && cur.Total > a.policy.ShrinkFloor
	if !grow && !shrink {
		return false
	}

	var l Layout
	reg := uint32(0)
	l.FragmentStart, l.FragmentSize = reg, req.Fragment
	reg += req.Fragment
	l.ClipStart, l.ClipSize = reg, req.Clip
	reg += req.Clip
	l.VertexStart, l.VertexSize = reg, req.Vertex
	reg += req.Vertex
	l.Total = reg

	a.layout = l
	a.relayouts++
	return true
}

// FragmentRegs returns the registers needed by n scalar fragment parameters.
func FragmentRegs(n int) uint32 {
	return regsFor(n)
}

// VertexRegs returns the registers needed by n vec4 vertex constants.
func VertexRegs(n int) uint32 {
	return regsFor(n * 4)
}

// ClipRegs returns the registers needed by the fixed planes plus user
// planes, or zero when clipping is disabled.
func ClipRegs(userPlanes int, enabled bool) uint32 {
	if !enabled {
		return 0
	}
	return regsFor((FixedClipPlanes + userPlanes) * 4)
}

//nolint:gosec // G115: n is bounded by the register budget
func regsFor(floats int) uint32 {
	return uint32((floats + FloatsPerReg - 1) / FloatsPerReg)
}

// fixedPlanes are the frustum planes in clip space.
var fixedPlanes = [FixedClipPlanes][4]float32{
	{0, 0, -1, 1},
	{0, 0, 1, 1},
	{0, -1, 0, 1},
	{0, 1, 0, 1},
	{-1, 0, 0, 1},
	{1, 0, 0, 1},
}

// Build fills the CURBE contents for l. fragParams are scalar fragment
// parameters; clip planes are written only when l reserves clip space.
func Build(l Layout, fragParams []float32, userPlanes [][4]float32, vertConsts [][4]float32) []float32 {
	buf := make([]float32, l.Total*FloatsPerReg)

	copy(buf[l.FragmentStart*FloatsPerReg:(l.FragmentStart+l.FragmentSize)*FloatsPerReg], fragParams)

	if l.ClipSize > 0 {
		off := l.ClipStart * FloatsPerReg
		end := (l.ClipStart + l.ClipSize) * FloatsPerReg
		planes := append(fixedPlanes[:], userPlanes...)
		for _, p := range planes {
			if off+4 > end {
				break
			}
			copy(buf[off:off+4], p[:])
			off += 4
		}
	}

	off := l.VertexStart * FloatsPerReg
	end := (l.VertexStart + l.VertexSize) * FloatsPerReg
	for _, c := range vertConsts {
		if off+4 > end {
			break
		}
		copy(buf[off:off+4], c[:])
		off += 4
	}
	return buf
}

// Buffer remembers the last uploaded contents so identical constants are
// not uploaded twice.
type Buffer struct {
	last []float32
}

// Changed reports whether data differs from the previous call's data and
// records it. NaNs compare by bit pattern.
func (b *Buffer) Changed(data []float32) bool {
	if b.last != nil && len(b.last) == len(data) && slices.EqualFunc(b.last, data, sameBits) {
		return false
	}
	b.last = slices.Clone(data)
	return true
}

// Reset forgets the last contents, forcing the next upload.
func (b *Buffer) Reset() { b.last = nil }

func sameBits(a, b float32) bool { return math.Float32bits(a) == math.Float32bits(b) }
