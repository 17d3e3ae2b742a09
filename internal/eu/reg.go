package eu

import (
	"fmt"
	"math"
)

// Reg is an instruction operand: a register region or an immediate.
// Region fields hold the hardware encodings, not the element counts.
type Reg struct {
	File    RegFile
	Type    RegType
	Nr      uint8
	Subnr   uint8 // byte offset within the register
	VStride uint8
	Width   uint8
	HStride uint8
	Negate  bool
	Abs     bool
	Imm     uint32
}

var (
	vstrideEnc = map[int]uint8{0: 0, 1: 1, 2: 2, 4: 3, 8: 4, 16: 5, 32: 6}
	widthEnc   = map[int]uint8{1: 0, 2: 1, 4: 2, 8: 3, 16: 4}
	hstrideEnc = map[int]uint8{0: 0, 1: 1, 2: 2, 4: 3}
)

func decVStride(e uint8) int {
	if e == 0 {
		return 0
	}
	return 1 << (e - 1)
}

func decWidth(e uint8) int { return 1 << e }

func decHStride(e uint8) int {
	if e == 0 {
		return 0
	}
	return 1 << (e - 1)
}

// Region returns r with the region <vstride;width,hstride>.
func Region(r Reg, vstride, width, hstride int) Reg {
	v, ok1 := vstrideEnc[vstride]
	w, ok2 := widthEnc[width]
	h, ok3 := hstrideEnc[hstride]
	if !ok1 || !ok2 || !ok3 {
		panic(fmt.Sprintf("eu: bad region <%d;%d,%d>", vstride, width, hstride))
	}
	r.VStride, r.Width, r.HStride = v, w, h
	return r
}

func newReg(file RegFile, nr int) Reg {
	//nolint:gosec // G115: register numbers fit in 8 bits by construction
	return Region(Reg{File: file, Type: TypeF, Nr: uint8(nr)}, 8, 8, 1)
}

// GRF returns a float <8;8,1> region starting at general register nr.
func GRF(nr int) Reg { return newReg(FileGRF, nr) }

// MRF returns message register nr.
func MRF(nr int) Reg { return newReg(FileMRF, nr) }

// Null returns the null register, used as the destination of CMP and SEND
// when the result is discarded.
func Null() Reg { return newReg(FileARF, 0) }

// Flag returns the flag register f0 as a scalar word.
func Flag() Reg {
	return Vec1(Reg{File: FileARF, Type: TypeUW, Nr: flagRegNr})
}

const flagRegNr = 0x30

// Vec1 returns a scalar <0;1,0> region of r.
func Vec1(r Reg) Reg { return Region(r, 0, 1, 0) }

// Vec8 returns a <8;8,1> region of r.
func Vec8(r Reg) Reg { return Region(r, 8, 8, 1) }

// ImmF returns a float immediate.
func ImmF(f float32) Reg {
	return Vec1(Reg{File: FileIMM, Type: TypeF, Imm: math.Float32bits(f)})
}

// ImmUD returns an unsigned dword immediate.
func ImmUD(v uint32) Reg {
	return Vec1(Reg{File: FileIMM, Type: TypeUD, Imm: v})
}

// ImmUW returns an unsigned word immediate, replicated in both halves.
func ImmUW(v uint16) Reg {
	return Vec1(Reg{File: FileIMM, Type: TypeUW, Imm: uint32(v) | uint32(v)<<16})
}

// ImmV returns a packed vector of eight signed 4-bit integers.
func ImmV(v uint32) Reg {
	return Vec1(Reg{File: FileIMM, Type: TypeV, Imm: v})
}

// Retype returns r reinterpreted as type t.
func (r Reg) Retype(t RegType) Reg { r.Type = t; return r }

// Neg returns r with its negate modifier toggled.
func (r Reg) Neg() Reg { r.Negate = !r.Negate; return r }

// WithAbs returns r with the absolute-value modifier set.
func (r Reg) WithAbs() Reg { r.Abs = true; r.Negate = false; return r }

// Offset returns r moved n registers.
//
//nolint:gosec // G115: callers stay within the register file
func (r Reg) Offset(n int) Reg { r.Nr = uint8(int(r.Nr) + n); return r }

// Suboffset returns r moved n elements within its register.
//
//nolint:gosec // G115: callers stay within one register
func (r Reg) Suboffset(n int) Reg {
	r.Subnr = uint8(int(r.Subnr) + n*r.Type.Size())
	return r
}

// IsNull reports whether r is the null register.
func (r Reg) IsNull() bool { return r.File == FileARF && r.Nr == 0 }

// IsImm reports whether r is an immediate.
func (r Reg) IsImm() bool { return r.File == FileIMM }

// Size returns the element size in bytes.
func (t RegType) Size() int {
	switch t {
	case TypeUW, TypeW:
		return 2
	case TypeUB, TypeVF:
		return 1
	default:
		return 4
	}
}

// String formats the operand in assembler syntax.
func (r Reg) String() string {
	mod := ""
	if r.Negate {
		mod = "-"
	}
	if r.Abs {
		mod += "(abs)"
	}
	switch r.File {
	case FileIMM:
		if r.Type == TypeF {
			return fmt.Sprintf("%s%gF", mod, math.Float32frombits(r.Imm))
		}
		return fmt.Sprintf("%s%#x%s", mod, r.Imm, r.Type)
	case FileARF:
		switch r.Nr {
		case 0:
			return "null"
		case flagRegNr:
			return "f0"
		}
		return fmt.Sprintf("%sa%d", mod, r.Nr)
	case FileMRF:
		return fmt.Sprintf("%sm%d", mod, r.Nr)
	}
	sub := ""
	if r.Subnr != 0 {
		sub = fmt.Sprintf(".%d", int(r.Subnr)/r.Type.Size())
	}
	return fmt.Sprintf("%sg%d%s<%d;%d,%d>%s", mod, r.Nr, sub,
		decVStride(r.VStride), decWidth(r.Width), decHStride(r.HStride), r.Type)
}
