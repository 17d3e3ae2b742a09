package statecc

import (
	"math"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/statecc/batch"
	"github.com/gogpu/statecc/internal/bitfield"
	"github.com/gogpu/statecc/internal/eu"
	"github.com/gogpu/statecc/internal/pool"
	"github.com/gogpu/statecc/internal/statecache"
	"github.com/gogpu/statecc/internal/unit"
)

// Command headers, in the upper half of the first dword.
const (
	cmdPipelinedPointers    = 0x7800
	cmdBindingTablePointers = 0x7801
	cmdDrawingRectangle     = 0x7900
	cmdConstantColor        = 0x7901
	cmdDepthBuffer          = 0x7905
	cmdPolyStippleOffset    = 0x7906
	cmdPolyStipplePattern   = 0x7907
	cmdLineStipple          = 0x7908
	cmdAALineParameters     = 0x790a
	cmdPrimitive            = 0x7b00

	miNoop  = 0x00000000
	miFlush = 0x02000000
)

// Command sizes in dwords.
const (
	pipelinedPointersDwords    = 7
	bindingTablePointersDwords = 6
	drawingRectDwords          = 4
	constantColorDwords        = 5
	depthBufferDwords          = 5
	depthBufferDwordsG4X       = 6
	polyStippleOffsetDwords    = 2
	polyStipplePatternDwords   = 33
	lineStippleDwords          = 3
	aaLineParametersDwords     = 3
	primitiveDwords            = 6
)

// stageEnable is OR-ed into the GS and clip unit pointers.
const stageEnable = 1

var (
	fRectXMax = bitfield.F("drawing_rect_xmax", 2, 0, 15)
	fRectYMax = bitfield.F("drawing_rect_ymax", 2, 16, 31)

	fDepthPitch  = bitfield.F("depth_pitch", 1, 0, 16)
	fDepthFormat = bitfield.F("depth_format", 1, 18, 20)
	fDepthWalk   = bitfield.Bit("depth_tile_walk", 1, 26)
	fDepthTiled  = bitfield.Bit("depth_tiled", 1, 27)
	fDepthType   = bitfield.F("depth_surface_type", 1, 29, 31)
	fDepthWidth  = bitfield.F("depth_width", 3, 6, 18)
	fDepthHeight = bitfield.F("depth_height", 3, 19, 31)

	fStippleXOffset = bitfield.F("stipple_x_offset", 1, 8, 12)
	fStippleYOffset = bitfield.F("stipple_y_offset", 1, 0, 4)

	fLinePattern     = bitfield.F("line_stipple_pattern", 1, 0, 15)
	fLineRepeat      = bitfield.F("line_stipple_repeat_count", 2, 0, 8)
	fLineInvRepeat   = bitfield.F("line_stipple_inverse_repeat_count", 2, 16, 31)
	lineInvRepeatOne = 1 << 13

	fPrimTopology = bitfield.F("topology", 0, 10, 14)
	fPrimCount    = bitfield.F("vertex_count", 1, 0, 31)
	fPrimStart    = bitfield.F("start_vertex", 2, 0, 31)
	fPrimInstance = bitfield.F("instance_count", 3, 0, 31)
)

func header(op uint32, dwords int) uint32 {
	//nolint:gosec // G115: command lengths are a handful of dwords
	return op<<16 | uint32(dwords-2)
}

// emitWords writes one packet of plain dwords.
func emitWords(e batch.Emitter, words []uint32) error {
	if err := e.Begin(len(words)); err != nil {
		return err
	}
	for _, w := range words {
		e.Emit(w)
	}
	return e.End()
}

// emitNoops pads the stream with n MI_NOOPs.
func emitNoops(e batch.Emitter, n int) error {
	if n == 0 {
		return nil
	}
	return emitWords(e, make([]uint32, n))
}

// unitPointers are the unit records 3DSTATE_PIPELINED_POINTERS names. gs
// is nil when the geometry stage is bypassed.
type unitPointers struct {
	vs, gs, clip, sf, wm, cc *pool.Allocation
}

// emitPipelinedPointers writes 3DSTATE_PIPELINED_POINTERS.
func emitPipelinedPointers(e batch.Emitter, p unitPointers) error {
	if err := e.Begin(pipelinedPointersDwords); err != nil {
		return err
	}
	e.Emit(header(cmdPipelinedPointers, pipelinedPointersDwords))
	e.EmitReloc(p.vs, 0, statecache.UsageState)
	if p.gs != nil {
		e.EmitReloc(p.gs, stageEnable, statecache.UsageState)
	} else {
		e.Emit(miNoop)
	}
	e.EmitReloc(p.clip, stageEnable, statecache.UsageState)
	e.EmitReloc(p.sf, 0, statecache.UsageState)
	e.EmitReloc(p.wm, 0, statecache.UsageState)
	e.EmitReloc(p.cc, 0, statecache.UsageState)
	return e.End()
}

// emitBindingTablePointers writes 3DSTATE_BINDING_TABLE_POINTERS. Only
// the fragment stage reads surfaces.
func emitBindingTablePointers(e batch.Emitter, wm *pool.Allocation) error {
	if err := e.Begin(bindingTablePointersDwords); err != nil {
		return err
	}
	e.Emit(header(cmdBindingTablePointers, bindingTablePointersDwords))
	e.Emit(0) // vs
	e.Emit(0) // gs
	e.Emit(0) // clip
	e.Emit(0) // sf
	e.EmitReloc(wm, 0, statecache.UsageState)
	return e.End()
}

// constantColor encodes 3DSTATE_CONSTANT_COLOR.
func constantColor(col gputypes.Color) []uint32 {
	r := bitfield.NewRecord(constantColorDwords)
	r.SetWord(0, header(cmdConstantColor, constantColorDwords))
	for i, v := range [...]float64{col.R, col.G, col.B, col.A} {
		r.SetFloat(1+i, float32(v))
	}
	return r.Words()
}

// depthBuffer describes 3DSTATE_DEPTH_BUFFER. memory is nil for a null
// depth buffer.
type depthBuffer struct {
	memory        batch.Target
	format        uint32
	width, height uint32
	pitch         uint32
	tiled         bool
}

// emitDepthBuffer writes 3DSTATE_DEPTH_BUFFER. G4X and later carry a
// sixth dword of tile offsets, always zero here.
func emitDepthBuffer(e batch.Emitter, gen eu.Gen, d depthBuffer) error {
	n := depthBufferDwords
	if gen >= eu.G4X {
		n = depthBufferDwordsG4X
	}
	r := bitfield.NewRecord(n)
	r.SetWord(0, header(cmdDepthBuffer, n))
	if d.memory == nil {
		r.Set(fDepthFormat, unit.DepthFormatNone)
		r.Set(fDepthType, unit.SurfaceTypeNull)
	} else {
		r.Set(fDepthPitch, d.pitch-1)
		r.Set(fDepthFormat, d.format)
		r.SetBool(fDepthWalk, d.tiled)
		r.SetBool(fDepthTiled, d.tiled)
		r.Set(fDepthType, unit.SurfaceType2D)
		r.Set(fDepthWidth, max(d.width, 1)-1)
		r.Set(fDepthHeight, max(d.height, 1)-1)
	}

	if err := e.Begin(n); err != nil {
		return err
	}
	for i, w := range r.Words() {
		if i == 2 && d.memory != nil {
			e.EmitReloc(d.memory, 0, statecache.UsageRender)
			continue
		}
		e.Emit(w)
	}
	return e.End()
}

// polyStipplePattern encodes 3DSTATE_POLY_STIPPLE_PATTERN. The hardware
// pattern starts at the bottom row when the origin is the bottom left.
func polyStipplePattern(rows *[32]uint32, flipY bool) []uint32 {
	w := make([]uint32, polyStipplePatternDwords)
	w[0] = header(cmdPolyStipplePattern, polyStipplePatternDwords)
	for i, row := range rows {
		if flipY {
			w[32-i] = row
		} else {
			w[1+i] = row
		}
	}
	return w
}

// polyStippleOffset encodes 3DSTATE_POLY_STIPPLE_OFFSET. A bottom-left
// origin shifts the pattern so it stays anchored to the window's top row.
func polyStippleOffset(height uint32, flipY bool) []uint32 {
	r := bitfield.NewRecord(polyStippleOffsetDwords)
	r.SetWord(0, header(cmdPolyStippleOffset, polyStippleOffsetDwords))
	if flipY {
		r.Set(fStippleYOffset, (32-height&31)&31)
	}
	return r.Words()
}

// maxLineStippleFactor is the largest line stipple repeat count.
const maxLineStippleFactor = 256

// lineStipple encodes 3DSTATE_LINE_STIPPLE. The inverse repeat count is
// U1.13.
func lineStipple(pattern, factor uint16) []uint32 {
	f := uint32(min(max(factor, 1), maxLineStippleFactor))
	r := bitfield.NewRecord(lineStippleDwords)
	r.SetWord(0, header(cmdLineStipple, lineStippleDwords))
	r.Set(fLinePattern, uint32(pattern))
	r.Set(fLineRepeat, f)
	r.Set(fLineInvRepeat, uint32(math.Floor(float64(lineInvRepeatOne)/float64(f))))
	return r.Words()
}

// aaLineParameters encodes 3DSTATE_AA_LINE_PARAMETERS with zero coverage
// bias and slope.
func aaLineParameters() []uint32 {
	w := make([]uint32, aaLineParametersDwords)
	w[0] = header(cmdAALineParameters, aaLineParametersDwords)
	return w
}

// drawingRect encodes 3DSTATE_DRAWING_RECTANGLE covering the framebuffer.
func drawingRect(width, height uint32) []uint32 {
	r := bitfield.NewRecord(drawingRectDwords)
	r.SetWord(0, header(cmdDrawingRectangle, drawingRectDwords))
	r.Set(fRectXMax, max(width, 1)-1)
	r.Set(fRectYMax, max(height, 1)-1)
	return r.Words()
}

// primitive encodes a sequential, single-instance 3DPRIMITIVE.
func primitive(t Topology, start, count uint32) []uint32 {
	r := bitfield.NewRecord(primitiveDwords)
	r.SetWord(0, header(cmdPrimitive, primitiveDwords))
	r.Set(fPrimTopology, uint32(t.prim()))
	r.Set(fPrimCount, count)
	r.Set(fPrimStart, start)
	r.Set(fPrimInstance, 1)
	return r.Words()
}
