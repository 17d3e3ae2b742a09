// Package urb partitions the unified return buffer among the fixed-function
// stages and encodes the commands that publish the partition.
//
// Every stage gets a contiguous run of equally sized entries, placed in the
// order VS, GS, clip, SF, CS. The partitioner prefers generous entry
// counts and falls back to the minimum counts ("constrained" mode) when
// the preferred layout does not fit. Like the CURBE allocator it only
// repartitions when an entry grows, or when sizes shrink while
// constrained, so small changes leave the fences alone.
package urb

import (
	"errors"
	"fmt"

	"github.com/gogpu/statecc/internal/eu"
	"github.com/gogpu/statecc/internal/unit"
)

// ErrTooSmall is returned when even the minimum entry counts do not fit.
var ErrTooSmall = errors.New("urb: entries do not fit")

// Stage indexes a URB consumer.
type Stage int

// URB consumers, in fence order.
const (
	VS Stage = iota
	GS
	Clip
	SF
	CS

	NumStages
)

var stageNames = [NumStages]string{"vs", "gs", "clip", "sf", "cs"}

func (s Stage) String() string {
	if s >= 0 && s < NumStages {
		return stageNames[s]
	}
	return fmt.Sprintf("stage(%d)", int(s))
}

// limit bounds one stage's entry count and size, the size in 512-bit rows.
type limit struct {
	minEntries, preferredEntries uint32
	minSize, maxSize             uint32
}

var limits = [NumStages]limit{
	VS:   {16, 32, 1, 5},
	GS:   {4, 8, 1, 5},
	Clip: {5, 10, 1, 5},
	SF:   {1, 8, 1, 12},
	CS:   {1, 4, 1, 32},
}

// preferredVS is the preferred VS entry count per generation; later parts
// have a larger URB and more VS threads to feed.
var preferredVS = map[eu.Gen]uint32{
	eu.Gen4: 32,
	eu.G4X:  64,
	eu.Gen5: 64,
}

// Sizes are the requested entry sizes in rows. GS and clip entries hold
// vertices, so they share the VS size.
type Sizes struct {
	VS uint32
	SF uint32
	CS uint32
}

// Layout is one URB partition.
type Layout struct {
	Entries [NumStages]uint32
	Size    [NumStages]uint32 // rows per entry
	Start   [NumStages]uint32 // first row
	Rows    uint32            // rows in use

	// Constrained is set when the preferred counts did not fit.
	Constrained bool
}

// Fence returns the row after the last entry of s.
func (l Layout) Fence(s Stage) uint32 {
	return l.Start[s] + l.Entries[s]*l.Size[s]
}

// String formats the layout for logs.
func (l Layout) String() string {
	return fmt.Sprintf("vs=%dx%d gs=%dx%d clip=%dx%d sf=%dx%d cs=%dx%d rows=%d constrained=%v",
		l.Entries[VS], l.Size[VS], l.Entries[GS], l.Size[GS], l.Entries[Clip], l.Size[Clip],
		l.Entries[SF], l.Size[SF], l.Entries[CS], l.Size[CS], l.Rows, l.Constrained)
}

// Partitioner owns the current layout.
type Partitioner struct {
	gen    eu.Gen
	rows   uint32
	layout Layout
	sizes  Sizes
	valid  bool
}

// New creates a partitioner for gen.
func New(gen eu.Gen) *Partitioner {
	return &Partitioner{gen: gen, rows: unit.CapsFor(gen).URBRows}
}

// Layout returns the current layout.
func (p *Partitioner) Layout() Layout { return p.layout }

// Update applies the requested entry sizes and reports whether the fences
// moved. On error the previous layout stays in place.
func (p *Partitioner) Update(s Sizes) (bool, error) {
	s.VS = clampSize(VS, s.VS)
	s.SF = clampSize(SF, s.SF)
	s.CS = clampSize(CS, s.CS)

	cur := p.sizes
	grow := s.VS > cur.VS || s.SF > cur.SF || s.CS > cur.CS
	shrink := s.VS < cur.VS || s.SF < cur.SF || s.CS < cur.CS
	if p.valid && !grow && !(p.layout.Constrained && shrink) {
		return false, nil
	}

	l, err := p.partition(s)
	if err != nil {
		return false, err
	}
	p.layout, p.sizes, p.valid = l, s, true
	return true, nil
}

func (p *Partitioner) partition(s Sizes) (Layout, error) {
	sizes := [NumStages]uint32{VS: s.VS, GS: s.VS, Clip: s.VS, SF: s.SF, CS: s.CS}

	var entries [NumStages]uint32
	for st := range NumStages {
		entries[st] = limits[st].preferredEntries
	}
	if v, ok := preferredVS[p.gen]; ok {
		entries[VS] = v
	}
	if l, ok := p.layoutFor(entries, sizes); ok {
		return l, nil
	}

	for st := range NumStages {
		entries[st] = limits[st].minEntries
	}
	l, ok := p.layoutFor(entries, sizes)
	if !ok {
		return Layout{}, fmt.Errorf("%w: %d rows needed, %d available", ErrTooSmall, l.Rows, p.rows)
	}
	l.Constrained = true
	return l, nil
}

func (p *Partitioner) layoutFor(entries, sizes [NumStages]uint32) (Layout, bool) {
	l := Layout{Entries: entries, Size: sizes}
	row := uint32(0)
	for st := range NumStages {
		l.Start[st] = row
		row += entries[st] * sizes[st]
	}
	l.Rows = row
	return l, row <= p.rows
}

func clampSize(s Stage, v uint32) uint32 {
	return min(max(v, limits[s].minSize), limits[s].maxSize)
}
