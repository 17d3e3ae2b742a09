package unit

import (
	"structs"

	"github.com/gogpu/statecc/internal/bitfield"
	"github.com/gogpu/statecc/internal/eu"
	"github.com/gogpu/statecc/internal/pool"
	"github.com/gogpu/statecc/internal/statecache"
)

// ClipMode selects how the clipper treats primitives.
type ClipMode uint32

// Clip modes.
const (
	ClipNormal ClipMode = iota
	ClipAll
	ClipNonRejected
	ClipRejectAll
	ClipAcceptAll
	ClipKernel
)

var (
	fClipMaxThreads = bitfield.F("max_threads", 4, 25, 29)
	fClipMode       = bitfield.F("clip_mode", 5, 13, 15)
	fUserClipFlags  = bitfield.F("userclip_enable_flags", 5, 16, 23)
	fUserMustClip   = bitfield.Bit("userclip_must_clip", 5, 24)
	fNegativeW      = bitfield.Bit("negative_w_clip_test", 5, 25)
	fGuardBand      = bitfield.Bit("guard_band_enable", 5, 26)
	fZClip          = bitfield.Bit("viewport_z_clip_enable", 5, 27)
	fXYClip         = bitfield.Bit("viewport_xy_clip_enable", 5, 28)
	fClipViewport   = bitfield.F("clipper_viewport_state_ptr", 6, 5, 31)
)

// ClipDwords is the size of the clip unit record.
const ClipDwords = 11

// ClipKey selects a clip unit record.
type ClipKey struct {
	_ structs.HostLayout

	TotalGRF        uint32
	URBReadLength   uint32
	ConstReadOffset uint32
	ConstReadLength uint32
	URBEntries      uint32
	URBEntrySize    uint32
	Mode            ClipMode
	UserPlanes      uint32 // bit mask of enabled user planes

	Gen       eu.Gen
	GuardBand bool
	DepthClip bool
	Stats     bool
}

// Clip packs the clipper unit.
func Clip(k *ClipKey, kernel, viewport *pool.Allocation) Unit {
	r := bitfield.NewRecord(ClipDwords)
	relocs := packThread(r, Thread{
		TotalGRF:        k.TotalGRF,
		DispatchGRF:     1,
		URBReadLength:   k.URBReadLength,
		ConstReadOffset: k.ConstReadOffset,
		ConstReadLength: k.ConstReadLength,
		SPF:             true,
	}, kernel, nil)

	packURB(r, k.URBEntries, k.URBEntrySize, k.Stats)
	r.Set(fClipMaxThreads, threadCount(k.URBEntries/2, CapsFor(k.Gen).ClipThreads))

	r.Set(fClipMode, uint32(k.Mode))
	r.Set(fUserClipFlags, k.UserPlanes&0x3f)
	r.SetBool(fUserMustClip, true)
	r.SetBool(fNegativeW, true)
	r.SetBool(fGuardBand, k.GuardBand)
	r.SetBool(fZClip, k.DepthClip)
	r.SetBool(fXYClip, true)

	// Guard band extents in NDC.
	r.SetFloat(7, -1)
	r.SetFloat(8, 1)
	r.SetFloat(9, -1)
	r.SetFloat(10, 1)

	if viewport != nil {
		relocs = append(relocs, reloc(r, fClipViewport, statecache.UsageState, viewport))
	}
	return Unit{Payload: r.Bytes(), Relocs: relocs}
}
