// Package bitfield packs fixed-layout hardware records.
//
// Hardware state structures are sequences of little-endian dwords whose
// members occupy named bit ranges. A Field describes one such range and a
// Record holds the dwords being packed. Records serialize to identical bytes
// on every platform regardless of host endianness.
package bitfield

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

// ErrFieldOverflow is wrapped in the panic raised when a value does not fit
// into its field. Packing an out-of-range value is a programming error.
var ErrFieldOverflow = errors.New("bitfield: value does not fit field")

// Field names the inclusive bit range [Lo, Hi] of dword DWord.
type Field struct {
	Name  string
	DWord int
	Lo    uint
	Hi    uint
}

// F is shorthand for declaring a Field.
func F(name string, dword int, lo, hi uint) Field {
	if hi < lo || hi > 31 {
		panic(fmt.Sprintf("bitfield: bad range %s[%d:%d]", name, hi, lo))
	}
	return Field{Name: name, DWord: dword, Lo: lo, Hi: hi}
}

// Bit declares a single-bit field.
func Bit(name string, dword int, bit uint) Field {
	return F(name, dword, bit, bit)
}

// Width returns the number of bits in the field.
func (f Field) Width() uint { return f.Hi - f.Lo + 1 }

// Mask returns the unshifted mask of the field.
func (f Field) Mask() uint32 {
	if f.Width() == 32 {
		return math.MaxUint32
	}
	return uint32(1)<<f.Width() - 1
}

// ByteOffset returns the byte offset of the dword holding the field.
//
//nolint:gosec // G115: records are at most a few dozen dwords
func (f Field) ByteOffset() uint32 { return uint32(f.DWord * 4) }

// Record is a fixed-size sequence of dwords.
type Record struct {
	words []uint32
}

// NewRecord returns a zeroed record of n dwords.
func NewRecord(n int) *Record {
	return &Record{words: make([]uint32, n)}
}

// Set stores v into f. It panics when v has bits outside the field width.
func (r *Record) Set(f Field, v uint32) {
	if v&^f.Mask() != 0 {
		panic(fmt.Errorf("%w: %s=%#x exceeds %d bits", ErrFieldOverflow, f.Name, v, f.Width()))
	}
	w := r.words[f.DWord]
	w &^= f.Mask() << f.Lo
	w |= v << f.Lo
	r.words[f.DWord] = w
}

// SetBool stores 1 or 0 into f.
func (r *Record) SetBool(f Field, b bool) {
	if b {
		r.Set(f, 1)
	} else {
		r.Set(f, 0)
	}
}

// SetAligned stores an address-like value whose low Lo bits are implied
// zero, such as a 64-byte aligned kernel pointer held in bits 31:6.
func (r *Record) SetAligned(f Field, addr uint32) {
	if addr&(uint32(1)<<f.Lo-1) != 0 {
		panic(fmt.Errorf("%w: %s=%#x not aligned to %d bytes", ErrFieldOverflow, f.Name, addr, uint32(1)<<f.Lo))
	}
	r.Set(f, addr>>f.Lo)
}

// SetFloat stores an IEEE-754 single in dword i.
func (r *Record) SetFloat(i int, v float32) {
	r.words[i] = math.Float32bits(v)
}

// SetWord stores a raw dword.
func (r *Record) SetWord(i int, v uint32) {
	r.words[i] = v
}

// Get returns the value held by f.
func (r *Record) Get(f Field) uint32 {
	return (r.words[f.DWord] >> f.Lo) & f.Mask()
}

// Word returns dword i.
func (r *Record) Word(i int) uint32 { return r.words[i] }

// Words returns the backing dwords.
func (r *Record) Words() []uint32 { return r.words }

// Len returns the record size in bytes.
func (r *Record) Len() int { return len(r.words) * 4 }

// Bytes serializes the record as little-endian dwords.
func (r *Record) Bytes() []byte {
	return AppendWords(make([]byte, 0, r.Len()), r.words)
}

// AppendWords appends ws to b as little-endian dwords.
func AppendWords(b []byte, ws []uint32) []byte {
	for _, w := range ws {
		b = binary.LittleEndian.AppendUint32(b, w)
	}
	return b
}

// Format renders the named fields of r, one per line, for debug dumps.
func Format(r *Record, fields []Field) string {
	var sb strings.Builder
	for _, f := range fields {
		fmt.Fprintf(&sb, "dw%d[%d:%d] %s = %#x\n", f.DWord, f.Hi, f.Lo, f.Name, r.Get(f))
	}
	return sb.String()
}
