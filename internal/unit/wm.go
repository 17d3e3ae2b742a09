package unit

import (
	"structs"

	"github.com/gogpu/statecc/internal/bitfield"
	"github.com/gogpu/statecc/internal/eu"
	"github.com/gogpu/statecc/internal/pool"
	"github.com/gogpu/statecc/internal/statecache"
)

var (
	fWMStats          = bitfield.Bit("stats_enable", 4, 0)
	fWMSamplerCount   = bitfield.F("sampler_count", 4, 2, 4)
	fWMSamplerState   = bitfield.F("sampler_state_pointer", 4, 5, 31)
	fEnable16Pix      = bitfield.Bit("enable_16_pix", 5, 1)
	fLegacyDepthBias  = bitfield.Bit("legacy_global_depth_bias", 5, 10)
	fLineStipple      = bitfield.Bit("line_stipple", 5, 11)
	fDepthOffset      = bitfield.Bit("depth_offset", 5, 12)
	fPolygonStipple   = bitfield.Bit("polygon_stipple", 5, 13)
	fLineAARegion     = bitfield.F("line_aa_region_width", 5, 14, 15)
	fWMLineEndcap     = bitfield.F("line_endcap_aa_region_width", 5, 16, 17)
	fEarlyDepth       = bitfield.Bit("early_depth_test", 5, 18)
	fDispatchEnable   = bitfield.Bit("thread_dispatch_enable", 5, 19)
	fUsesDepth        = bitfield.Bit("program_uses_depth", 5, 20)
	fComputesDepth    = bitfield.Bit("program_computes_depth", 5, 21)
	fUsesKill         = bitfield.Bit("program_uses_killpixel", 5, 22)
	fWMMaxThreads     = bitfield.F("max_threads", 5, 25, 31)
)

// Global depth offset dwords.
const (
	dwDepthOffsetConst = 6
	dwDepthOffsetScale = 7
)

// WM record sizes. Gen5 appends three extra kernel pointers.
const (
	WMDwords     = 8
	WMDwordsGen5 = 11
)

// WMKey selects a WM unit record.
type WMKey struct {
	_ structs.HostLayout

	TotalGRF        uint32
	DispatchGRF     uint32 // first CURBE register
	URBReadLength   uint32
	ConstReadOffset uint32
	ConstReadLength uint32
	ScratchBytes    uint32
	SamplerCount    uint32
	BindingEntries  uint32
	MaxThreads      uint32 // zero uses the generation limit

	DepthOffsetConstant float32
	DepthOffsetScale    float32

	Gen            eu.Gen
	UsesDepth      bool
	ComputesDepth  bool
	UsesKill       bool
	DepthOffset    bool
	LineStipple    bool
	PolygonStipple bool
	LineSmooth     bool
	Stats          bool
	_              [3]byte
}

// WM packs the windower unit. scratch and samplers may be nil when the
// kernel does not spill or sample.
func WM(k *WMKey, kernel, scratch, samplers *pool.Allocation) Unit {
	n := WMDwords
	if k.Gen >= eu.Gen5 {
		n = WMDwordsGen5
	}
	r := bitfield.NewRecord(n)
	relocs := packThread(r, Thread{
		TotalGRF:        k.TotalGRF,
		BindingEntries:  k.BindingEntries,
		ScratchBytes:    k.ScratchBytes,
		DispatchGRF:     k.DispatchGRF,
		URBReadLength:   k.URBReadLength,
		ConstReadOffset: k.ConstReadOffset,
		ConstReadLength: k.ConstReadLength,
	}, kernel, scratch)

	r.SetBool(fWMStats, k.Stats)
	r.Set(fWMSamplerCount, min((k.SamplerCount+3)/4, 4))

	r.SetBool(fEnable16Pix, true)
	r.SetBool(fDispatchEnable, true)
	r.SetBool(fEarlyDepth, true)
	r.SetBool(fUsesDepth, k.UsesDepth)
	r.SetBool(fComputesDepth, k.ComputesDepth)
	r.SetBool(fUsesKill, k.UsesKill)
	r.SetBool(fLineStipple, k.LineStipple)
	r.SetBool(fPolygonStipple, k.PolygonStipple)
	if k.LineSmooth {
		r.Set(fLineAARegion, 1)
		r.Set(fWMLineEndcap, 1)
	}
	if k.DepthOffset {
		r.SetBool(fDepthOffset, true)
		r.SetBool(fLegacyDepthBias, true)
		r.SetFloat(dwDepthOffsetConst, k.DepthOffsetConstant)
		r.SetFloat(dwDepthOffsetScale, k.DepthOffsetScale)
	}

	limit := CapsFor(k.Gen).WMThreads
	want := limit
	if k.MaxThreads != 0 {
		want = k.MaxThreads
	}
	r.Set(fWMMaxThreads, threadCount(want, limit))

	if k.SamplerCount > 0 && samplers != nil {
		relocs = append(relocs, reloc(r, fWMSamplerState, statecache.UsageSampler, samplers))
	}
	return Unit{Payload: r.Bytes(), Relocs: relocs}
}
