package unit

import (
	"structs"

	"github.com/gogpu/statecc/internal/bitfield"
)

// Viewport is a window-space viewport with a depth range.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is an integer window rectangle.
type Rect struct {
	X, Y, Width, Height uint32
}

// ===========================================================================
// CC viewport
// ===========================================================================

// CCViewportDwords is the size of the CC viewport record.
const CCViewportDwords = 2

// CCViewportKey selects the depth clamp range.
type CCViewportKey struct {
	_ structs.HostLayout

	MinDepth, MaxDepth float32
}

// CCViewport packs the depth clamp range.
func CCViewport(k *CCViewportKey) Unit {
	r := bitfield.NewRecord(CCViewportDwords)
	r.SetFloat(0, k.MinDepth)
	r.SetFloat(1, k.MaxDepth)
	return Unit{Payload: r.Bytes()}
}

// ===========================================================================
// SF viewport
// ===========================================================================

var (
	fScissorXMin = bitfield.F("scissor_xmin", 6, 0, 15)
	fScissorYMin = bitfield.F("scissor_ymin", 6, 16, 31)
	fScissorXMax = bitfield.F("scissor_xmax", 7, 0, 15)
	fScissorYMax = bitfield.F("scissor_ymax", 7, 16, 31)
)

// SFViewportDwords is the size of the SF viewport record: six transform
// scalars followed by the scissor rectangle.
const SFViewportDwords = 8

// SFViewportKey selects the viewport transform and scissor rectangle.
type SFViewportKey struct {
	_ structs.HostLayout

	Viewport          Viewport
	Scissor           Rect
	FramebufferWidth  uint32
	FramebufferHeight uint32

	// FlipY renders into a window-system buffer whose origin is the
	// top-left corner.
	FlipY         bool
	ScissorEnable bool
	_             [2]byte
}

// SFViewport packs the viewport transform and scissor rectangle.
func SFViewport(k *SFViewportKey) Unit {
	r := bitfield.NewRecord(SFViewportDwords)
	v := k.Viewport

	yScale, yBias := float32(1), float32(0)
	if k.FlipY {
		yScale, yBias = -1, float32(k.FramebufferHeight)
	}

	sx, tx := v.Width/2, v.X+v.Width/2
	sy, ty := v.Height/2, v.Y+v.Height/2
	sz, tz := (v.MaxDepth-v.MinDepth)/2, (v.MaxDepth+v.MinDepth)/2

	r.SetFloat(0, sx)
	r.SetFloat(1, sy*yScale)
	r.SetFloat(2, sz)
	r.SetFloat(3, tx)
	r.SetFloat(4, ty*yScale+yBias)
	r.SetFloat(5, tz)

	xmin, ymin, xmax, ymax := scissorBounds(k)
	r.Set(fScissorXMin, min(xmin, 0xffff))
	r.Set(fScissorYMin, min(ymin, 0xffff))
	r.Set(fScissorXMax, min(xmax, 0xffff))
	r.Set(fScissorYMax, min(ymax, 0xffff))

	return Unit{Payload: r.Bytes()}
}

// scissorBounds returns the inclusive scissor bounds in hardware window
// coordinates. An empty scissor keeps xmin > xmax so nothing is drawn.
func scissorBounds(k *SFViewportKey) (xmin, ymin, xmax, ymax uint32) {
	w, h := k.FramebufferWidth, k.FramebufferHeight
	if !k.ScissorEnable {
		return 0, 0, sub1(w), sub1(h)
	}

	s := k.Scissor
	x0, y0 := min(s.X, w), min(s.Y, h)
	x1, y1 := min(s.X+s.Width, w), min(s.Y+s.Height, h)
	if x0 >= x1 || y0 >= y1 {
		return 1, 1, 0, 0
	}
	if k.FlipY {
		y0, y1 = h-y1, h-y0
	}
	return x0, y0, x1 - 1, y1 - 1
}

func sub1(v uint32) uint32 {
	if v == 0 {
		return 0
	}
	return v - 1
}

// ===========================================================================
// Clip viewport
// ===========================================================================

// ClipViewportDwords is the size of the clip viewport record.
const ClipViewportDwords = 4

// ClipViewportKey selects the guard band in normalized device coordinates.
type ClipViewportKey struct {
	_ structs.HostLayout

	XMin, XMax, YMin, YMax float32
}

// DefaultClipViewport is the guard band matching the NDC cube.
func DefaultClipViewport() ClipViewportKey {
	return ClipViewportKey{XMin: -1, XMax: 1, YMin: -1, YMax: 1}
}

// ClipViewport packs the guard band.
func ClipViewport(k *ClipViewportKey) Unit {
	r := bitfield.NewRecord(ClipViewportDwords)
	r.SetFloat(0, k.XMin)
	r.SetFloat(1, k.XMax)
	r.SetFloat(2, k.YMin)
	r.SetFloat(3, k.YMax)
	return Unit{Payload: r.Bytes()}
}
