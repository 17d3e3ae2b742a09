package unit

import (
	"structs"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/statecc/batch"
	"github.com/gogpu/statecc/internal/bitfield"
	"github.com/gogpu/statecc/internal/pool"
	"github.com/gogpu/statecc/internal/statecache"
)

// SurfaceDwords is the size of one SURFACE_STATE record.
const SurfaceDwords = 6

// Surface types.
const (
	SurfaceType2D   = 1
	SurfaceTypeCube = 3
	SurfaceTypeNull = 7
)

// Surface and depth buffer formats.
const (
	hwFormatR32G32B32A32Float = 0x000
	hwFormatR16G16B16A16Unorm = 0x080
	hwFormatR16G16B16A16Snorm = 0x081
	hwFormatR16G16B16A16Float = 0x084
	hwFormatR32G32Float       = 0x085
	hwFormatB8G8R8A8Unorm     = 0x0c0
	hwFormatB8G8R8A8UnormSRGB = 0x0c1
	hwFormatR10G10B10A2Unorm  = 0x0c2
	hwFormatR8G8B8A8Unorm     = 0x0c7
	hwFormatR8G8B8A8UnormSRGB = 0x0c8
	hwFormatR8G8B8A8Snorm     = 0x0c9
	hwFormatR16G16Unorm       = 0x0cc
	hwFormatR16G16Snorm       = 0x0cd
	hwFormatR16G16Float       = 0x0d0
	hwFormatR11G11B10Float    = 0x0d3
	hwFormatR32Float          = 0x0d8
	hwFormatR9G9B9E5Sharedexp = 0x0ed
	hwFormatR8G8Unorm         = 0x106
	hwFormatR8G8Snorm         = 0x107
	hwFormatR16Unorm          = 0x10a
	hwFormatR16Float          = 0x10e
	hwFormatR8Unorm           = 0x140
	hwFormatR8Snorm           = 0x141
	hwFormatBC1Unorm          = 0x186
	hwFormatBC2Unorm          = 0x187
	hwFormatBC3Unorm          = 0x188

	hwDepthD32FloatS8X24 = 0
	hwDepthD32Float      = 1
	hwDepthD24UnormS8    = 2
	hwDepthD16Unorm      = 5
)

// DepthFormatNone is the format programmed for a null depth buffer.
const DepthFormatNone = hwDepthD32Float

// Surface limits.
const (
	MaxSurfaceSize  = 8192
	MaxSurfacePitch = 1 << 17
	MaxSurfaceMips  = 16
)

var (
	fCubeFaces      = bitfield.F("cube_face_enables", 0, 0, 5)
	fColorBlend     = bitfield.Bit("color_blend", 0, 13)
	fWriteDisable   = bitfield.F("writedisable", 0, 14, 17)
	fSurfaceFormat  = bitfield.F("surface_format", 0, 18, 26)
	fSurfaceType    = bitfield.F("surface_type", 0, 29, 31)
	fSurfaceBase    = bitfield.F("base_addr", 1, 0, 31)
	fMipCount       = bitfield.F("mip_count", 2, 2, 5)
	fSurfaceWidth   = bitfield.F("width", 2, 6, 18)
	fSurfaceHeight  = bitfield.F("height", 2, 19, 31)
	fTileWalk       = bitfield.Bit("tile_walk", 3, 0)
	fTiled          = bitfield.Bit("tiled_surface", 3, 1)
	fSurfacePitch   = bitfield.F("pitch", 3, 3, 19)
	fBindingSurface = bitfield.F("surface_state_pointer", 0, 5, 31)
)

// SurfaceKey selects a surface record. Width, Height and Pitch are in
// pixels and bytes; Levels counts mip levels.
type SurfaceKey struct {
	_ structs.HostLayout

	Format       uint32
	Type         uint32
	Width        uint32
	Height       uint32
	Pitch        uint32
	Levels       uint32
	WriteDisable uint32 // red, green, blue, alpha in bits 2, 1, 0, 3

	RenderTarget bool
	Tiled        bool
	ColorBlend   bool
	_            [1]byte
}

// NullSurfaceKey returns the key of a surface that discards writes and
// reads back zero.
func NullSurfaceKey(width, height uint32) SurfaceKey {
	return SurfaceKey{
		Format:       hwFormatB8G8R8A8Unorm,
		Type:         SurfaceTypeNull,
		Width:        width,
		Height:       height,
		RenderTarget: true,
	}
}

// Surface packs a SURFACE_STATE record. memory is nil for null surfaces.
func Surface(k *SurfaceKey, memory batch.Target) Unit {
	r := bitfield.NewRecord(SurfaceDwords)
	r.Set(fSurfaceType, k.Type)
	r.Set(fSurfaceFormat, k.Format)
	if k.Type == SurfaceTypeCube {
		r.Set(fCubeFaces, fCubeFaces.Mask())
	}
	if k.RenderTarget {
		r.SetBool(fColorBlend, k.ColorBlend)
		r.Set(fWriteDisable, k.WriteDisable&fWriteDisable.Mask())
	}
	if k.Levels > 1 {
		r.Set(fMipCount, min(k.Levels, MaxSurfaceMips)-1)
	}
	r.Set(fSurfaceWidth, min(max(k.Width, 1), MaxSurfaceSize)-1)
	r.Set(fSurfaceHeight, min(max(k.Height, 1), MaxSurfaceSize)-1)
	if k.Pitch > 0 {
		r.Set(fSurfacePitch, min(k.Pitch, MaxSurfacePitch)-1)
	}
	r.SetBool(fTiled, k.Tiled)
	r.SetBool(fTileWalk, k.Tiled)

	u := Unit{Payload: r.Bytes()}
	if memory != nil && k.Type != SurfaceTypeNull {
		usage := statecache.UsageTexture
		if k.RenderTarget {
			usage = statecache.UsageRender
		}
		u.Relocs = []statecache.Relocation{reloc(r, fSurfaceBase, usage, memory)}
	}
	return u
}

// WriteDisable converts a colour write mask to the surface's per-channel
// disable bits.
func WriteDisable(m gputypes.ColorWriteMask) uint32 {
	var d uint32
	if m&gputypes.ColorWriteMaskBlue == 0 {
		d |= 1 << 0
	}
	if m&gputypes.ColorWriteMaskGreen == 0 {
		d |= 1 << 1
	}
	if m&gputypes.ColorWriteMaskRed == 0 {
		d |= 1 << 2
	}
	if m&gputypes.ColorWriteMaskAlpha == 0 {
		d |= 1 << 3
	}
	return d
}

// SurfaceFormat maps a texture format to its surface format.
func SurfaceFormat(f gputypes.TextureFormat) (uint32, bool) {
	switch f {
	case gputypes.TextureFormatRGBA32Float:
		return hwFormatR32G32B32A32Float, true
	case gputypes.TextureFormatRGBA16Unorm:
		return hwFormatR16G16B16A16Unorm, true
	case gputypes.TextureFormatRGBA16Snorm:
		return hwFormatR16G16B16A16Snorm, true
	case gputypes.TextureFormatRGBA16Float:
		return hwFormatR16G16B16A16Float, true
	case gputypes.TextureFormatRG32Float:
		return hwFormatR32G32Float, true
	case gputypes.TextureFormatBGRA8Unorm:
		return hwFormatB8G8R8A8Unorm, true
	case gputypes.TextureFormatBGRA8UnormSrgb:
		return hwFormatB8G8R8A8UnormSRGB, true
	case gputypes.TextureFormatRGB10A2Unorm:
		return hwFormatR10G10B10A2Unorm, true
	case gputypes.TextureFormatRGBA8Unorm:
		return hwFormatR8G8B8A8Unorm, true
	case gputypes.TextureFormatRGBA8UnormSrgb:
		return hwFormatR8G8B8A8UnormSRGB, true
	case gputypes.TextureFormatRGBA8Snorm:
		return hwFormatR8G8B8A8Snorm, true
	case gputypes.TextureFormatRG16Unorm:
		return hwFormatR16G16Unorm, true
	case gputypes.TextureFormatRG16Snorm:
		return hwFormatR16G16Snorm, true
	case gputypes.TextureFormatRG16Float:
		return hwFormatR16G16Float, true
	case gputypes.TextureFormatRG11B10Ufloat:
		return hwFormatR11G11B10Float, true
	case gputypes.TextureFormatR32Float:
		return hwFormatR32Float, true
	case gputypes.TextureFormatRGB9E5Ufloat:
		return hwFormatR9G9B9E5Sharedexp, true
	case gputypes.TextureFormatRG8Unorm:
		return hwFormatR8G8Unorm, true
	case gputypes.TextureFormatRG8Snorm:
		return hwFormatR8G8Snorm, true
	case gputypes.TextureFormatR16Unorm:
		return hwFormatR16Unorm, true
	case gputypes.TextureFormatR16Float:
		return hwFormatR16Float, true
	case gputypes.TextureFormatR8Unorm:
		return hwFormatR8Unorm, true
	case gputypes.TextureFormatR8Snorm:
		return hwFormatR8Snorm, true
	case gputypes.TextureFormatBC1RGBAUnorm:
		return hwFormatBC1Unorm, true
	case gputypes.TextureFormatBC2RGBAUnorm:
		return hwFormatBC2Unorm, true
	case gputypes.TextureFormatBC3RGBAUnorm:
		return hwFormatBC3Unorm, true
	default:
		return 0, false
	}
}

// DepthFormat maps a depth or stencil format to the depth buffer format.
// Stencil-only buffers use the packed depth/stencil layout.
func DepthFormat(f gputypes.TextureFormat) (uint32, bool) {
	switch f {
	case gputypes.TextureFormatDepth16Unorm:
		return hwDepthD16Unorm, true
	case gputypes.TextureFormatDepth24Plus,
		gputypes.TextureFormatDepth24PlusStencil8,
		gputypes.TextureFormatStencil8:
		return hwDepthD24UnormS8, true
	case gputypes.TextureFormatDepth32Float:
		return hwDepthD32Float, true
	case gputypes.TextureFormatDepth32FloatStencil8:
		return hwDepthD32FloatS8X24, true
	default:
		return 0, false
	}
}

// MaxBindingEntries is the size of the fragment binding table: the colour
// targets followed by the sampled textures.
const MaxBindingEntries = 4 + MaxSamplers

// BindingTableKey selects a binding table. The surface records it points
// at are told apart by the table's relocations.
type BindingTableKey struct {
	_ structs.HostLayout

	Entries uint32
}

// BindingTable packs one pointer per entry. Missing surfaces leave the
// entry zero.
func BindingTable(k *BindingTableKey, surfaces []*pool.Allocation) Unit {
	n := int(min(k.Entries, MaxBindingEntries))
	r := bitfield.NewRecord(max(n, 1))
	var relocs []statecache.Relocation
	for i := range n {
		if i >= len(surfaces) || surfaces[i] == nil {
			continue
		}
		f := fBindingSurface
		f.DWord = i
		relocs = append(relocs, reloc(r, f, statecache.UsageState, surfaces[i]))
	}
	return Unit{Payload: r.Bytes(), Relocs: relocs}
}
