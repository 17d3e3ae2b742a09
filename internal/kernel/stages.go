package kernel

import (
	"fmt"
	"structs"

	"github.com/gogpu/statecc/internal/eu"
)

// ===========================================================================
// Vertex stage
// ===========================================================================

// VSKey selects a vertex pass-through kernel.
type VSKey struct {
	_ structs.HostLayout

	Attributes uint8 // vec4 inputs, the first being the position
	Gen        eu.Gen
	_          [2]byte
}

// VS copies each input attribute into the VUE after a zeroed header.
// Inputs arrive in g1 onwards.
func VS(k *VSKey) (*Kernel, error) {
	n := int(k.Attributes)
	if n < 1 || n > MaxAttributes {
		return nil, fmt.Errorf("%w: vertex stage has %d inputs", ErrTooManyAttributes, n)
	}

	c := newCompiler()
	writeEntry(c, n+1, func(i int) eu.Reg {
		if i == 0 {
			return eu.ImmF(0)
		}
		return eu.GRF(i)
	}, true)

	return &Kernel{
		Code: c.Bytes(),
		Data: Data{
			TotalGRF:      uint32(n + 1), //nolint:gosec // G115: n <= MaxAttributes
			URBReadLength: Rows(n),
			URBEntryRows:  Rows(n + 1),
		},
	}, nil
}

// ===========================================================================
// Geometry stage
// ===========================================================================

// GSKey selects a primitive decomposition kernel.
type GSKey struct {
	_ structs.HostLayout

	Prim Prim
	Regs uint8 // VUE registers per vertex, header included
	Gen  eu.Gen
	_    [1]byte
}

// gsOrder gives the order in which input vertices leave the GS. Quads are
// emitted as two-triangle strips.
func gsOrder(p Prim) (out Prim, order []int, err error) {
	switch p {
	case PrimQuadList, PrimQuadStrip:
		return PrimTriStrip, []int{0, 1, 3, 2}, nil
	case PrimPointList:
		return p, []int{0}, nil
	case PrimLineList, PrimLineStrip:
		return p, []int{0, 1}, nil
	case PrimTriList, PrimTriStrip, PrimTriFan:
		return p, []int{0, 1, 2}, nil
	default:
		return 0, nil, fmt.Errorf("%w: %v in geometry stage", ErrBadPrimitive, p)
	}
}

// GS re-emits the vertices of one input primitive, rewriting quads into
// strips. Vertex v arrives in g(1 + v*Regs).
func GS(k *GSKey) (*Kernel, error) {
	regs := int(k.Regs)
	if err := checkRegs(regs); err != nil {
		return nil, err
	}
	out, order, err := gsOrder(k.Prim)
	if err != nil {
		return nil, err
	}

	c := newCompiler()
	for i, v := range order {
		last := i == len(order)-1
		emitVertex(c, out, 1+v*regs, regs, i == 0, last, last)
	}

	return &Kernel{
		Code: c.Bytes(),
		Data: Data{
			TotalGRF:      uint32(1 + k.Prim.Vertices()*regs), //nolint:gosec // G115: small
			URBReadLength: Rows(regs),
			URBEntryRows:  Rows(regs),
		},
	}, nil
}

// ===========================================================================
// Clip stage
// ===========================================================================

// ClipKey selects a clipper kernel.
type ClipKey struct {
	_ structs.HostLayout

	Prim Prim
	Regs uint8
	Gen  eu.Gen
	_    [1]byte
}

// Clip forwards the primitive's vertices unchanged. The hardware rejects
// fully outside primitives and the guard band absorbs partially visible
// ones, so the kernel only runs for primitives that need no clipping.
func Clip(k *ClipKey) (*Kernel, error) {
	regs := int(k.Regs)
	if err := checkRegs(regs); err != nil {
		return nil, err
	}
	nv := k.Prim.Vertices()
	if nv == 0 || nv == 4 {
		return nil, fmt.Errorf("%w: %v in clip stage", ErrBadPrimitive, k.Prim)
	}

	c := newCompiler()
	for v := range nv {
		last := v == nv-1
		emitVertex(c, k.Prim, 1+v*regs, regs, v == 0, last, last)
	}

	return &Kernel{
		Code: c.Bytes(),
		Data: Data{
			TotalGRF:      uint32(1 + nv*regs), //nolint:gosec // G115: small
			URBReadLength: Rows(regs),
			URBEntryRows:  Rows(regs),
		},
	}, nil
}

// ===========================================================================
// Setup stage
// ===========================================================================

// SFKey selects a setup kernel.
type SFKey struct {
	_ structs.HostLayout

	Prim       Prim
	Attributes uint8 // attributes after the position
	Provoking  uint8 // vertex whose values are used for every pixel
	Gen        eu.Gen
}

// sfVertexBase is the first payload register holding vertex data.
const sfVertexBase = 3

// SF writes one coefficient triple per attribute: the provoking vertex's
// value as the constant term and zero gradients in x and y. Vertex v's
// attribute a arrives in g(3 + v*(Attributes+1) + 1 + a).
func SF(k *SFKey) (*Kernel, error) {
	n := int(k.Attributes)
	if n < 1 || n > MaxSetupAttributes {
		return nil, fmt.Errorf("%w: setup has %d attributes", ErrTooManyAttributes, n)
	}
	nv := k.Prim.Vertices()
	if nv == 0 || nv == 4 {
		return nil, fmt.Errorf("%w: %v in setup stage", ErrBadPrimitive, k.Prim)
	}
	if int(k.Provoking) >= nv {
		return nil, fmt.Errorf("%w: provoking vertex %d of %d", ErrBadPrimitive, k.Provoking, nv)
	}

	stride := n + 1
	base := sfVertexBase + int(k.Provoking)*stride + 1

	c := newCompiler()
	writeEntry(c, n*3, func(i int) eu.Reg {
		if i%3 != 0 {
			return eu.ImmF(0)
		}
		return eu.GRF(base + i/3)
	}, true)

	return &Kernel{
		Code: c.Bytes(),
		Data: Data{
			TotalGRF:      uint32(sfVertexBase + nv*stride), //nolint:gosec // G115: small
			URBReadLength: Rows(stride),
			URBEntryRows:  Rows(n * 3),
		},
	}, nil
}
