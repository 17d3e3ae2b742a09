package statecc

import (
	"fmt"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/statecc/batch"
	"github.com/gogpu/statecc/internal/kernel"
	"github.com/gogpu/statecc/internal/unit"
)

// Topology is the primitive type of a draw.
type Topology uint8

// Topologies. Quads and quad strips are decomposed into triangle strips by
// the geometry stage; the others pass straight through.
const (
	TopologyPointList Topology = iota
	TopologyLineList
	TopologyLineStrip
	TopologyTriangleList
	TopologyTriangleStrip
	TopologyTriangleFan
	TopologyQuadList
	TopologyQuadStrip
	TopologyRectList
)

var topologyPrims = [...]kernel.Prim{
	TopologyPointList:     kernel.PrimPointList,
	TopologyLineList:      kernel.PrimLineList,
	TopologyLineStrip:     kernel.PrimLineStrip,
	TopologyTriangleList:  kernel.PrimTriList,
	TopologyTriangleStrip: kernel.PrimTriStrip,
	TopologyTriangleFan:   kernel.PrimTriFan,
	TopologyQuadList:      kernel.PrimQuadList,
	TopologyQuadStrip:     kernel.PrimQuadStrip,
	TopologyRectList:      kernel.PrimRectList,
}

// String returns the hardware primitive name.
func (t Topology) String() string {
	if int(t) < len(topologyPrims) {
		return t.prim().String()
	}
	return fmt.Sprintf("topology(%d)", uint8(t))
}

func (t Topology) prim() kernel.Prim { return topologyPrims[t] }

func (t Topology) valid() bool { return int(t) < len(topologyPrims) }

// TopologyFrom converts a WebGPU primitive topology.
func TopologyFrom(t gputypes.PrimitiveTopology) Topology {
	switch t {
	case gputypes.PrimitiveTopologyPointList:
		return TopologyPointList
	case gputypes.PrimitiveTopologyLineList:
		return TopologyLineList
	case gputypes.PrimitiveTopologyLineStrip:
		return TopologyLineStrip
	case gputypes.PrimitiveTopologyTriangleStrip:
		return TopologyTriangleStrip
	default:
		return TopologyTriangleList
	}
}

// RasterizerState holds the setup and windower toggles.
type RasterizerState struct {
	FrontFace gputypes.FrontFace
	CullMode  gputypes.CullMode

	LineWidth float32
	PointSize float32 // zero uses the size written by the vertex stage

	// DepthBiasConstant and DepthBiasSlope enable polygon offset when
	// either is non-zero.
	DepthBiasConstant float32
	DepthBiasSlope    float32

	Flatshade            bool
	FirstVertexProvoking bool
	LineSmooth           bool
	LineStipple          bool
	PolygonStipple       bool // pattern set by SetPolygonStipple
	PointSprite          bool
	ScissorEnable        bool
	DepthClip            bool

	// FlipY maps the viewport to a framebuffer whose origin is the bottom
	// left corner.
	FlipY bool

	// LineStipplePattern and LineStippleFactor apply while LineStipple is
	// set. Each pattern bit covers Factor pixels; zero counts as one.
	LineStipplePattern uint16
	LineStippleFactor  uint16
}

// DefaultRasterizerState returns counter-clockwise front faces, no
// culling and one pixel wide lines with depth clipping enabled.
func DefaultRasterizerState() RasterizerState {
	return RasterizerState{
		FrontFace: gputypes.FrontFaceCCW,
		CullMode:  gputypes.CullModeNone,
		LineWidth: 1,
		DepthClip: true,
	}
}

// RasterizerFrom converts a WebGPU primitive state, starting from
// DefaultRasterizerState.
func RasterizerFrom(p *gputypes.PrimitiveState) RasterizerState {
	r := DefaultRasterizerState()
	r.FrontFace = p.FrontFace
	r.CullMode = p.CullMode
	r.DepthClip = !p.UnclippedDepth
	return r
}

// Surface is a 2D image in GPU memory. Width and Height are in pixels,
// Pitch is the row stride in bytes.
type Surface struct {
	Memory        batch.Target
	Format        gputypes.TextureFormat
	Width, Height uint32
	Pitch         uint32
	Levels        uint32 // zero counts as one
	Tiled         bool

	// WriteMask selects the channels a render target keeps. Zero writes
	// every channel.
	WriteMask gputypes.ColorWriteMask
}

// check validates a surface with Memory. Zero sizes are allowed only for
// render targets, which then take the framebuffer size.
func (s *Surface) check(renderTarget bool) error {
	if s.Memory == nil {
		return nil
	}
	if _, ok := unit.SurfaceFormat(s.Format); !ok {
		return fmt.Errorf("%w: format %v", ErrSurface, s.Format)
	}
	if (!renderTarget && (s.Width == 0 || s.Height == 0)) ||
		s.Width > unit.MaxSurfaceSize || s.Height > unit.MaxSurfaceSize {
		return fmt.Errorf("%w: %dx%d", ErrSurface, s.Width, s.Height)
	}
	if s.Pitch > unit.MaxSurfacePitch {
		return fmt.Errorf("%w: pitch %d, limit %d", ErrSurface, s.Pitch, unit.MaxSurfacePitch)
	}
	if s.Levels > unit.MaxSurfaceMips {
		return fmt.Errorf("%w: %d mip levels, limit %d", ErrSurface, s.Levels, unit.MaxSurfaceMips)
	}
	return nil
}

// Framebuffer describes the bound render targets.
type Framebuffer struct {
	Width, Height uint32
	ColorTargets  int

	// Color holds up to ColorTargets render targets. Missing targets, and
	// targets without Memory, are bound as null surfaces that discard
	// writes.
	Color []Surface

	// DepthFormat is TextureFormatUndefined when there is no depth or
	// stencil buffer. Otherwise DepthBuffer holds it, DepthPitch bytes per
	// row and Y-major tiled when DepthTiled is set.
	DepthFormat gputypes.TextureFormat
	DepthBuffer batch.Target
	DepthPitch  uint32
	DepthTiled  bool
}

func (f *Framebuffer) hasDepth() bool {
	return f.DepthFormat != gputypes.TextureFormatUndefined &&
		f.DepthFormat != gputypes.TextureFormatStencil8
}

func (f *Framebuffer) hasStencil() bool {
	return f.DepthFormat == gputypes.TextureFormatStencil8 ||
		f.DepthFormat == gputypes.TextureFormatDepth24PlusStencil8 ||
		f.DepthFormat == gputypes.TextureFormatDepth32FloatStencil8
}

// Viewport is a window-space viewport with a depth range.
type Viewport struct {
	X, Y, Width, Height float32
	MinDepth, MaxDepth  float32
}

// Rect is an integer window rectangle.
type Rect struct {
	X, Y, Width, Height uint32
}

// MaxFramebufferSize is the largest framebuffer width or height.
const MaxFramebufferSize = 8192

// MaxVertexAttributes is the largest VertexProgram.Attributes the vertex
// entry can carry through the geometry and clip stages.
const MaxVertexAttributes = 13

// VertexProgram describes the vertex stage. The vertex kernel copies its
// inputs into the vertex entry unchanged; Constants are pushed into the
// vertex slot of the CURBE.
type VertexProgram struct {
	// Attributes counts vec4 inputs, the first being the position.
	Attributes int
	Constants  [][4]float32
}

// Sampler is one bound sampler, its border colour and the texture it
// reads. A texture without Memory reads back zero.
type Sampler struct {
	Descriptor  gputypes.SamplerDescriptor
	BorderColor [4]float32
	Cube        bool
	Texture     Surface
}

// MaxClipPlanes is the number of user clip planes.
const MaxClipPlanes = 6

// Stats reports the work a context has done.
type Stats struct {
	Draws          uint64
	FailedUpdates  uint64
	CacheHits      uint64
	CacheMisses    uint64
	CacheUploads   uint64
	CacheEntries   int
	CURBERelayouts uint64
	URBRelayouts   uint64
	WMCompiles     uint64

	PoolUsedBytes   uint64
	PoolBudgetBytes uint64
	Allocations     int

	ShaderHits   uint64
	ShaderMisses uint64
}

// HitRate returns the state cache hit rate (0.0 to 1.0).
func (s Stats) HitRate() float64 {
	total := s.CacheHits + s.CacheMisses
	if total == 0 {
		return 0.0
	}
	return float64(s.CacheHits) / float64(total)
}

// String formats the stats for logs.
func (s Stats) String() string {
	return fmt.Sprintf("draws=%d failed=%d cache=%d/%d (%.1f%% hit, %d entries) curbe_relayouts=%d urb_relayouts=%d wm_compiles=%d pool=%d/%d bytes",
		s.Draws, s.FailedUpdates, s.CacheHits, s.CacheHits+s.CacheMisses, s.HitRate()*100, s.CacheEntries,
		s.CURBERelayouts, s.URBRelayouts, s.WMCompiles, s.PoolUsedBytes, s.PoolBudgetBytes)
}
