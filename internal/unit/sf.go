package unit

import (
	"math"
	"structs"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/statecc/internal/bitfield"
	"github.com/gogpu/statecc/internal/eu"
	"github.com/gogpu/statecc/internal/pool"
	"github.com/gogpu/statecc/internal/statecache"
)

// Hardware cull modes.
const (
	hwCullNone  = 1
	hwCullFront = 2
	hwCullBack  = 3
)

// Hardware winding and rasterization rules.
const (
	hwFrontCW        = 0
	hwFrontCCW       = 1
	hwRastUpperRight = 1
)

var (
	fSFMaxThreads  = bitfield.F("max_threads", 4, 25, 30)
	fFrontWinding  = bitfield.Bit("front_winding", 5, 0)
	fVPTransform   = bitfield.Bit("viewport_transform", 5, 1)
	fSFViewport    = bitfield.F("sf_viewport_state_offset", 5, 5, 31)
	fDestOrgVBias  = bitfield.F("dest_org_vbias", 6, 9, 12)
	fDestOrgHBias  = bitfield.F("dest_org_hbias", 6, 13, 16)
	fScissor       = bitfield.Bit("scissor", 6, 17)
	fPointRastRule = bitfield.F("point_rast_rule", 6, 20, 21)
	fLineEndcap    = bitfield.F("line_endcap_aa_region_width", 6, 22, 23)
	fLineWidth     = bitfield.F("line_width", 6, 24, 27)
	fCullMode      = bitfield.F("cull_mode", 6, 29, 30)
	fAAEnable      = bitfield.Bit("aa_enable", 6, 31)
	fPointSize     = bitfield.F("point_size", 7, 0, 10)
	fUsePointState = bitfield.Bit("use_point_size_state", 7, 11)
	fSubpixel      = bitfield.Bit("subpixel_precision", 7, 12)
	fSpritePoint   = bitfield.Bit("sprite_point", 7, 13)
	fTrifanPV      = bitfield.F("trifan_pv", 7, 25, 26)
	fLinestripPV   = bitfield.F("linestrip_pv", 7, 27, 28)
	fTristripPV    = bitfield.F("tristrip_pv", 7, 29, 30)
	fLastPixel     = bitfield.Bit("line_last_pixel_enable", 7, 31)
)

// SFDwords is the size of the SF unit record.
const SFDwords = 8

// SFKey selects a strips-and-fans setup unit record.
type SFKey struct {
	_ structs.HostLayout

	TotalGRF      uint32
	URBReadLength uint32
	URBEntries    uint32
	URBEntrySize  uint32

	FrontFace gputypes.FrontFace
	CullMode  gputypes.CullMode
	LineWidth float32
	PointSize float32 // zero uses the size written by the vertex stage

	Gen                  eu.Gen
	Scissor              bool
	LineSmooth           bool
	PointSprite          bool
	FirstVertexProvoking bool
	Stats                bool
	_                    [2]byte
}

// SF packs the setup unit.
func SF(k *SFKey, kernel, viewport *pool.Allocation) Unit {
	r := bitfield.NewRecord(SFDwords)
	relocs := packThread(r, Thread{
		TotalGRF:      k.TotalGRF,
		DispatchGRF:   3,
		URBReadLength: k.URBReadLength,
	}, kernel, nil)

	packURB(r, k.URBEntries, k.URBEntrySize, k.Stats)
	r.Set(fSFMaxThreads, threadCount(k.URBEntries/2, CapsFor(k.Gen).SFThreads))

	if k.FrontFace == gputypes.FrontFaceCCW {
		r.Set(fFrontWinding, hwFrontCCW)
	} else {
		r.Set(fFrontWinding, hwFrontCW)
	}
	r.SetBool(fVPTransform, true)

	r.Set(fDestOrgVBias, 0x8)
	r.Set(fDestOrgHBias, 0x8)
	r.SetBool(fScissor, k.Scissor)
	r.Set(fPointRastRule, hwRastUpperRight)
	r.Set(fCullMode, cullMode(k.CullMode))
	r.Set(fLineWidth, lineWidth(k.LineWidth))
	if k.LineSmooth {
		r.SetBool(fAAEnable, true)
		r.Set(fLineEndcap, 1)
	}

	if k.PointSize > 0 {
		r.SetBool(fUsePointState, true)
		r.Set(fPointSize, pointSize(k.PointSize))
	}
	r.SetBool(fSpritePoint, k.PointSprite)
	r.SetBool(fSubpixel, true)
	r.SetBool(fLastPixel, false)

	if k.FirstVertexProvoking {
		r.Set(fTrifanPV, 1)
	} else {
		r.Set(fTrifanPV, 2)
		r.Set(fLinestripPV, 1)
		r.Set(fTristripPV, 2)
	}

	if viewport != nil {
		relocs = append(relocs, reloc(r, fSFViewport, statecache.UsageState, viewport))
	}
	return Unit{Payload: r.Bytes(), Relocs: relocs}
}

func cullMode(m gputypes.CullMode) uint32 {
	switch m {
	case gputypes.CullModeFront:
		return hwCullFront
	case gputypes.CullModeBack:
		return hwCullBack
	default:
		return hwCullNone
	}
}

// lineWidth converts to U3.1 fixed point, clamped to the field.
func lineWidth(w float32) uint32 {
	if w <= 0 {
		return 2
	}
	return uint32(min(math.Round(float64(w)*2), 15))
}

// pointSize converts to U8.3 fixed point, clamped to [1, 255].
func pointSize(s float32) uint32 {
	return uint32(math.Round(float64(min(max(s, 1), 255)) * 8))
}
