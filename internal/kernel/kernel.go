// Package kernel generates the fixed-function thread kernels that run in
// front of the fragment stage: vertex pass-through, primitive
// decomposition in the GS, the clipper's accept path and flat setup.
//
// Vertices travel through the URB as vertex URB entries (VUEs). A VUE is
// one header register followed by one register per attribute, laid out
// SIMD4x2 so each register carries a vec4 of two vertices.
package kernel

import (
	"errors"
	"fmt"

	"github.com/gogpu/statecc/internal/eu"
)

var (
	// ErrTooManyAttributes is returned when a VUE does not fit the
	// message and register limits.
	ErrTooManyAttributes = errors.New("kernel: too many attributes")

	// ErrBadPrimitive is returned for primitives a kernel cannot handle.
	ErrBadPrimitive = errors.New("kernel: unsupported primitive")
)

// Attribute limits. Setup writes three registers per attribute and the
// URB write offset field holds at most 63.
const (
	MaxAttributes      = 32
	MaxSetupAttributes = 16
)

// maxMsgRegs is the largest URB write payload after the header register.
const maxMsgRegs = 14

// Prim is a hardware primitive type.
type Prim uint8

// Primitive types.
const (
	PrimPointList Prim = 0x01
	PrimLineList  Prim = 0x02
	PrimLineStrip Prim = 0x03
	PrimTriList   Prim = 0x04
	PrimTriStrip  Prim = 0x05
	PrimTriFan    Prim = 0x06
	PrimQuadList  Prim = 0x07
	PrimQuadStrip Prim = 0x08
	PrimLineLoop  Prim = 0x09
	PrimPolygon   Prim = 0x0a
	PrimRectList  Prim = 0x0f
)

var primNames = map[Prim]string{
	PrimPointList: "pointlist",
	PrimLineList:  "linelist",
	PrimLineStrip: "linestrip",
	PrimTriList:   "trilist",
	PrimTriStrip:  "tristrip",
	PrimTriFan:    "trifan",
	PrimQuadList:  "quadlist",
	PrimQuadStrip: "quadstrip",
	PrimLineLoop:  "lineloop",
	PrimPolygon:   "polygon",
	PrimRectList:  "rectlist",
}

func (p Prim) String() string {
	if s, ok := primNames[p]; ok {
		return s
	}
	return fmt.Sprintf("prim(%#x)", uint8(p))
}

// Vertices returns the number of vertices in one primitive after
// decomposition, or 0 for primitives the GS does not take apart.
func (p Prim) Vertices() int {
	switch p {
	case PrimPointList:
		return 1
	case PrimLineList, PrimLineStrip:
		return 2
	case PrimTriList, PrimTriStrip, PrimTriFan, PrimRectList:
		return 3
	case PrimQuadList, PrimQuadStrip:
		return 4
	default:
		return 0
	}
}

// Data describes the payload a kernel expects and the VUE it writes.
type Data struct {
	TotalGRF      uint32
	URBReadLength uint32 // rows of two registers read into the payload
	URBEntryRows  uint32 // rows of two registers in each written VUE
}

// Kernel is generated native code and its payload description.
type Kernel struct {
	Code []byte
	Data Data
}

// Rows converts a register count to URB rows.
func Rows(regs int) uint32 {
	//nolint:gosec // G115: register counts are below 128
	return uint32((regs + 1) / 2)
}

// URB write header flags in dword 2 of the thread header.
const (
	primEnd       = 0x1
	primStart     = 0x2
	primTypeShift = 2
)

// newCompiler returns a compiler set up for SIMD4x2 data movement.
func newCompiler() *eu.Compiler {
	c := eu.NewCompiler()
	c.SetExecSize(8)
	c.SetCompression(eu.CompressNone)
	c.SetMaskControl(eu.MaskDisable)
	return c
}

// writeEntry copies n registers produced by src into message registers and
// writes them to the current VUE, splitting the payload across several
// messages when it exceeds the message length limit. Only the last message
// completes the entry, and it ends the thread when eot is set.
func writeEntry(c *eu.Compiler, n int, src func(i int) eu.Reg, eot bool) {
	for off := 0; off < n; off += maxMsgRegs {
		k := min(n-off, maxMsgRegs)
		for i := range k {
			c.MOV(eu.MRF(1+i), src(off+i))
		}
		last := off+maxMsgRegs >= n
		//nolint:gosec // G115: bounded by MaxAttributes and maxMsgRegs
		c.URBWrite(eu.Null().Retype(eu.TypeUD), 0, eu.GRF(0), uint8(off), uint8(k+1), 0,
			false, true, last, eot && last)
	}
}

// emitVertex writes one vertex of a decomposed primitive into a fresh VUE.
// regs registers starting at base are copied. Every vertex but the last
// allocates the entry for its successor, whose handle returns in g0.
func emitVertex(c *eu.Compiler, prim Prim, base, regs int, start, end, last bool) {
	header := uint32(prim) << primTypeShift
	if start {
		header |= primStart
	}
	if end {
		header |= primEnd
	}
	c.Push()
	c.SetExecSize(1)
	c.MOV(eu.Vec1(eu.GRF(0)).Retype(eu.TypeUD).Suboffset(2), eu.ImmUD(header))
	c.Pop()

	for i := range regs {
		c.MOV(eu.MRF(1+i), eu.GRF(base+i))
	}

	dst := eu.Null().Retype(eu.TypeUD)
	respLen := uint8(0)
	if !last {
		dst, respLen = eu.GRF(0).Retype(eu.TypeUD), 1
	}
	//nolint:gosec // G115: regs is at most maxMsgRegs
	c.URBWrite(dst, 0, eu.GRF(0), 0, uint8(regs+1), respLen, !last, true, true, last)
}

func checkRegs(regs int) error {
	if regs < 1 || regs > maxMsgRegs {
		return fmt.Errorf("%w: %d registers per vertex, limit %d", ErrTooManyAttributes, regs, maxMsgRegs)
	}
	return nil
}
