// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package batch

import (
	"fmt"
	"strings"
)

// DefaultCapacity is the capacity in words of a zero-configured Buffer.
const DefaultCapacity = 8192

// Reloc records one relocated word of a Buffer.
type Reloc struct {
	Index  int // word index in the buffer
	Target Target
	Delta  uint32
	Usage  Usage
}

// Buffer is an in-memory Emitter. It keeps the words and relocations so
// that tests and tools can inspect what was emitted.
type Buffer struct {
	words  []uint32
	relocs []Reloc

	capacity int
	open     bool
	start    int
	want     int
	packets  int
}

// NewBuffer creates a buffer holding at most capacity words.
// A capacity of zero or less selects DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{capacity: capacity, words: make([]uint32, 0, 256)}
}

// Begin implements Emitter.
func (b *Buffer) Begin(n int) error {
	if b.open {
		return ErrNestedPacket
	}
	if len(b.words)+n > b.capacity {
		return fmt.Errorf("%w: %d words, %d free", ErrBatchFull, n, b.capacity-len(b.words))
	}
	b.open = true
	b.start = len(b.words)
	b.want = n
	return nil
}

// Emit implements Emitter.
func (b *Buffer) Emit(w uint32) {
	b.words = append(b.words, w)
}

// EmitReloc implements Emitter. The word holds delta until Resolve.
func (b *Buffer) EmitReloc(target Target, delta uint32, usage Usage) {
	b.relocs = append(b.relocs, Reloc{Index: len(b.words), Target: target, Delta: delta, Usage: usage})
	b.words = append(b.words, delta)
}

// End implements Emitter. On a length mismatch the packet is dropped.
func (b *Buffer) End() error {
	if !b.open {
		return ErrNotInPacket
	}
	b.open = false
	if got := len(b.words) - b.start; got != b.want {
		b.truncate(b.start)
		return fmt.Errorf("%w: got %d words, want %d", ErrPacketLength, got, b.want)
	}
	b.packets++
	return nil
}

func (b *Buffer) truncate(n int) {
	b.words = b.words[:n]
	i := len(b.relocs)
	for i > 0 && b.relocs[i-1].Index >= n {
		i--
	}
	b.relocs = b.relocs[:i]
}

// Len implements Positioner.
func (b *Buffer) Len() int { return len(b.words) }

// Packets returns the number of packets closed successfully.
func (b *Buffer) Packets() int { return b.packets }

// Words returns the emitted words with relocated words holding only their
// delta.
func (b *Buffer) Words() []uint32 { return b.words }

// Relocs returns the relocations in emission order.
func (b *Buffer) Relocs() []Reloc { return b.relocs }

// Resolve returns a copy of the words with every relocation replaced by
// its target address plus delta.
func (b *Buffer) Resolve() []uint32 {
	out := append([]uint32(nil), b.words...)
	for _, r := range b.relocs {
		out[r.Index] = r.Target.Address() + r.Delta
	}
	return out
}

// Reset empties the buffer for reuse.
func (b *Buffer) Reset() {
	b.words = b.words[:0]
	b.relocs = b.relocs[:0]
	b.open = false
	b.packets = 0
}

// Dump formats the buffer one word per line, naming relocation targets.
func (b *Buffer) Dump() string {
	var sb strings.Builder
	ri := 0
	for i, w := range b.words {
		if ri < len(b.relocs) && b.relocs[ri].Index == i {
			r := b.relocs[ri]
			fmt.Fprintf(&sb, "%04d: %08x  -> %s+%#x (%v)\n", i, w, r.Target.Label(), r.Delta, r.Usage)
			ri++
			continue
		}
		fmt.Fprintf(&sb, "%04d: %08x\n", i, w)
	}
	return sb.String()
}

var (
	_ Emitter    = (*Buffer)(nil)
	_ Positioner = (*Buffer)(nil)
)
