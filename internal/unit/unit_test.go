package unit

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/statecc/internal/bitfield"
	"github.com/gogpu/statecc/internal/eu"
	"github.com/gogpu/statecc/internal/pool"
	"github.com/gogpu/statecc/internal/statecache"
)

// =============================================================================
// Test Helpers
// =============================================================================

func allocs(t *testing.T, labels ...string) []*pool.Allocation {
	t.Helper()
	p := pool.New(pool.Config{BudgetKB: 64})
	out := make([]*pool.Allocation, len(labels))
	for i, l := range labels {
		a, err := p.Alloc(l, 64)
		if err != nil {
			t.Fatalf("Alloc(%s): %v", l, err)
		}
		out[i] = a
	}
	return out
}

// record reloads a payload so tests can read fields back.
func record(t *testing.T, payload []byte) *bitfield.Record {
	t.Helper()
	if len(payload)%4 != 0 {
		t.Fatalf("payload length %d is not dword aligned", len(payload))
	}
	r := bitfield.NewRecord(len(payload) / 4)
	for i := range len(payload) / 4 {
		r.SetWord(i, binary.LittleEndian.Uint32(payload[i*4:]))
	}
	return r
}

func findReloc(t *testing.T, u Unit, offset uint32) statecache.Relocation {
	t.Helper()
	for _, r := range u.Relocs {
		if r.Offset == offset {
			return r
		}
	}
	t.Fatalf("no relocation at offset %d in %+v", offset, u.Relocs)
	return statecache.Relocation{}
}

// =============================================================================
// Shared encodings
// =============================================================================

func TestGRFBlocks(t *testing.T) {
	tests := []struct {
		grf  uint32
		want uint32
	}{
		{0, 0},
		{1, 0},
		{16, 0},
		{17, 1},
		{32, 1},
		{128, 7},
	}
	for _, tt := range tests {
		if got := GRFBlocks(tt.grf); got != tt.want {
			t.Errorf("GRFBlocks(%d) = %d, want %d", tt.grf, got, tt.want)
		}
	}
}

func TestScratchSpace(t *testing.T) {
	tests := []struct {
		bytes uint32
		want  uint32
	}{
		{64, 0},
		{1024, 0},
		{1025, 1},
		{2048, 1},
		{2049, 2},
		{4096, 2},
		{12 * 1024, 4},
	}
	for _, tt := range tests {
		if got := ScratchSpace(tt.bytes); got != tt.want {
			t.Errorf("ScratchSpace(%d) = %d, want %d", tt.bytes, got, tt.want)
		}
	}
}

func TestThreadCountClamps(t *testing.T) {
	if got := threadCount(0, 16); got != 0 {
		t.Errorf("threadCount(0, 16) = %d, want 0", got)
	}
	if got := threadCount(100, 16); got != 15 {
		t.Errorf("threadCount(100, 16) = %d, want 15", got)
	}
	if got := threadCount(8, 16); got != 7 {
		t.Errorf("threadCount(8, 16) = %d, want 7", got)
	}
}

func TestCapsForUnknownGen(t *testing.T) {
	if CapsFor(eu.Gen(42)) != CapsFor(eu.Gen4) {
		t.Error("unknown generation should fall back to Gen4 limits")
	}
	if CapsFor(eu.Gen5).WMThreads <= CapsFor(eu.Gen4).WMThreads {
		t.Error("Gen5 should run more WM threads than Gen4")
	}
}

// =============================================================================
// Thread units
// =============================================================================

func TestVSRecord(t *testing.T) {
	a := allocs(t, "vs_prog")
	k := VSKey{TotalGRF: 20, URBReadLength: 2, URBEntries: 32, URBEntrySize: 5, Gen: eu.Gen4}
	u := VS(&k, a[0])

	if len(u.Payload) != VSDwords*4 {
		t.Fatalf("payload = %d bytes, want %d", len(u.Payload), VSDwords*4)
	}
	r := record(t, u.Payload)
	if got := r.Get(fGRFRegCount); got != 1 {
		t.Errorf("grf_reg_count = %d, want 1", got)
	}
	if got := r.Get(fURBEntries); got != 32 {
		t.Errorf("nr_urb_entries = %d, want 32", got)
	}
	if got := r.Get(fURBAlloc); got != 4 {
		t.Errorf("urb_entry_allocation_size = %d, want 4", got)
	}
	if got := r.Get(fVSMaxThreads); got != 15 {
		t.Errorf("max_threads = %d, want 15", got)
	}
	if r.Get(fVSEnable) != 1 {
		t.Error("vs_enable not set")
	}

	rel := findReloc(t, u, 0)
	if rel.Usage != statecache.UsageInstruction || rel.Target != a[0] {
		t.Errorf("kernel reloc = %+v", rel)
	}
	if rel.Delta != r.Word(0)&^(fKernelStart.Mask()<<fKernelStart.Lo) {
		t.Errorf("kernel reloc delta %#x does not carry grf_reg_count", rel.Delta)
	}
}

func TestGSDisabledHasNoKernel(t *testing.T) {
	a := allocs(t, "gs_prog")
	u := GS(&GSKey{URBEntries: 4, URBEntrySize: 5, Gen: eu.Gen4}, a[0])
	if len(u.Relocs) != 0 {
		t.Errorf("disabled GS has %d relocations", len(u.Relocs))
	}
	r := record(t, u.Payload)
	if r.Get(fURBEntries) != 4 {
		t.Errorf("nr_urb_entries = %d, want 4", r.Get(fURBEntries))
	}

	u = GS(&GSKey{TotalGRF: 8, URBEntries: 4, URBEntrySize: 5, Gen: eu.Gen5, Enabled: true}, a[0])
	if len(u.Relocs) != 1 {
		t.Fatalf("enabled GS has %d relocations, want 1", len(u.Relocs))
	}
	r = record(t, u.Payload)
	if r.Get(fSPF) != 1 || r.Get(fGSRendering) != 1 {
		t.Error("enabled Gen5 GS should run single program flow with rendering enabled")
	}
}

func TestClipRecord(t *testing.T) {
	a := allocs(t, "clip_prog", "clip_vp")
	k := ClipKey{
		TotalGRF: 16, URBEntries: 10, URBEntrySize: 5,
		Mode: ClipNormal, UserPlanes: 0xff, Gen: eu.Gen4, GuardBand: true,
	}
	u := Clip(&k, a[0], a[1])

	if len(u.Payload) != ClipDwords*4 {
		t.Fatalf("payload = %d bytes, want %d", len(u.Payload), ClipDwords*4)
	}
	r := record(t, u.Payload)
	if got := r.Get(fUserClipFlags); got != 0x3f {
		t.Errorf("userclip flags = %#x, want 0x3f", got)
	}
	if r.Get(fGuardBand) != 1 || r.Get(fZClip) != 0 {
		t.Error("guard band and z clip flags wrong")
	}
	if got := math.Float32frombits(r.Word(8)); got != 1 {
		t.Errorf("guard band xmax = %v, want 1", got)
	}
	rel := findReloc(t, u, fClipViewport.ByteOffset())
	if rel.Target != a[1] || rel.Usage != statecache.UsageState {
		t.Errorf("viewport reloc = %+v", rel)
	}
}

func TestSFRecord(t *testing.T) {
	a := allocs(t, "sf_prog", "sf_vp")
	k := SFKey{
		TotalGRF: 16, URBReadLength: 1, URBEntries: 12, URBEntrySize: 3,
		FrontFace: gputypes.FrontFaceCCW, CullMode: gputypes.CullModeBack,
		LineWidth: 3, PointSize: 4, Gen: eu.Gen4, Scissor: true,
	}
	u := SF(&k, a[0], a[1])
	r := record(t, u.Payload)

	checks := []struct {
		f    bitfield.Field
		want uint32
	}{
		{fDispatchGRF, 3},
		{fFrontWinding, hwFrontCCW},
		{fCullMode, hwCullBack},
		{fScissor, 1},
		{fLineWidth, 6},
		{fUsePointState, 1},
		{fPointSize, 32},
		{fTrifanPV, 2},
		{fLinestripPV, 1},
		{fTristripPV, 2},
		{fSFMaxThreads, 5},
	}
	for _, c := range checks {
		if got := r.Get(c.f); got != c.want {
			t.Errorf("%s = %d, want %d", c.f.Name, got, c.want)
		}
	}
	if len(u.Relocs) != 2 {
		t.Errorf("relocs = %d, want kernel and viewport", len(u.Relocs))
	}
}

func TestSFFirstVertexProvoking(t *testing.T) {
	u := SF(&SFKey{URBEntries: 2, URBEntrySize: 1, FirstVertexProvoking: true}, nil, nil)
	r := record(t, u.Payload)
	if r.Get(fTrifanPV) != 1 || r.Get(fLinestripPV) != 0 || r.Get(fTristripPV) != 0 {
		t.Error("first-vertex convention not packed")
	}
	if len(u.Relocs) != 0 {
		t.Errorf("relocs = %d with nil allocations", len(u.Relocs))
	}
}

func TestWMRecord(t *testing.T) {
	a := allocs(t, "wm_prog", "scratch", "sampler")
	k := WMKey{
		TotalGRF: 40, DispatchGRF: 2, URBReadLength: 2, ConstReadLength: 1,
		ScratchBytes: 2048, SamplerCount: 2, BindingEntries: 3,
		Gen: eu.Gen4, UsesKill: true,
	}

	tests := []struct {
		gen     eu.Gen
		dwords  int
		threads uint32
	}{
		{eu.Gen4, WMDwords, 31},
		{eu.G4X, WMDwords, 49},
		{eu.Gen5, WMDwordsGen5, 71},
	}
	for _, tt := range tests {
		t.Run(tt.gen.String(), func(t *testing.T) {
			k.Gen = tt.gen
			u := WM(&k, a[0], a[1], a[2])
			if len(u.Payload) != tt.dwords*4 {
				t.Fatalf("payload = %d bytes, want %d", len(u.Payload), tt.dwords*4)
			}
			r := record(t, u.Payload)
			if got := r.Get(fWMMaxThreads); got != tt.threads {
				t.Errorf("max_threads = %d, want %d", got, tt.threads)
			}
			if r.Get(fEnable16Pix) != 1 || r.Get(fUsesKill) != 1 || r.Get(fComputesDepth) != 0 {
				t.Error("dispatch flags wrong")
			}
			if got := r.Get(fScratchSpace); got != 1 {
				t.Errorf("per_thread_scratch_space = %d, want 1", got)
			}
			if got := r.Get(fWMSamplerCount); got != 1 {
				t.Errorf("sampler_count = %d, want 1", got)
			}
			if len(u.Relocs) != 3 {
				t.Fatalf("relocs = %d, want kernel, scratch and samplers", len(u.Relocs))
			}
			s := findReloc(t, u, fWMSamplerState.ByteOffset())
			if s.Usage != statecache.UsageSampler || s.Delta&0x1c != 1<<2 {
				t.Errorf("sampler reloc = %+v, delta should keep sampler_count", s)
			}
			sc := findReloc(t, u, fScratchBase.ByteOffset())
			if sc.Usage != statecache.UsageScratch || sc.Delta != 1 {
				t.Errorf("scratch reloc = %+v", sc)
			}
		})
	}
}

func TestWMNoScratchNoSamplers(t *testing.T) {
	a := allocs(t, "wm_prog")
	u := WM(&WMKey{TotalGRF: 16, Gen: eu.Gen4}, a[0], nil, nil)
	if len(u.Relocs) != 1 {
		t.Errorf("relocs = %d, want kernel only", len(u.Relocs))
	}
}

func TestWMDepthOffset(t *testing.T) {
	u := WM(&WMKey{DepthOffset: true, DepthOffsetConstant: 2, DepthOffsetScale: 0.5}, nil, nil, nil)
	r := record(t, u.Payload)
	if r.Get(fDepthOffset) != 1 {
		t.Error("depth_offset not set")
	}
	if math.Float32frombits(r.Word(dwDepthOffsetConst)) != 2 || math.Float32frombits(r.Word(dwDepthOffsetScale)) != 0.5 {
		t.Error("depth offset floats not packed")
	}
}

// =============================================================================
// Color calculator
// =============================================================================

func TestCCBlend(t *testing.T) {
	over := gputypes.BlendState{
		Color: gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorSrcAlpha,
			DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
			Operation: gputypes.BlendOperationAdd,
		},
		Alpha: gputypes.BlendComponent{
			SrcFactor: gputypes.BlendFactorOne,
			DstFactor: gputypes.BlendFactorOneMinusSrcAlpha,
			Operation: gputypes.BlendOperationAdd,
		},
	}

	tests := []struct {
		name    string
		blend   gputypes.BlendState
		src     uint32
		dst     uint32
		fn      uint32
		iaBlend uint32
	}{
		{"premultiplied over", over, hwBlendSrcAlpha, hwBlendInvSrcAlpha, hwBlendAdd, 1},
		{
			"same equation",
			gputypes.BlendState{Color: over.Color, Alpha: over.Color},
			hwBlendSrcAlpha, hwBlendInvSrcAlpha, hwBlendAdd, 0,
		},
		{
			"max forces one",
			gputypes.BlendState{
				Color: gputypes.BlendComponent{
					SrcFactor: gputypes.BlendFactorDst,
					DstFactor: gputypes.BlendFactorZero,
					Operation: gputypes.BlendOperationMax,
				},
				Alpha: gputypes.BlendComponent{
					SrcFactor: gputypes.BlendFactorDst,
					DstFactor: gputypes.BlendFactorZero,
					Operation: gputypes.BlendOperationMax,
				},
			},
			hwBlendOne, hwBlendOne, hwBlendMax, 0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := CCKeyFrom(nil, &tt.blend, 0)
			r := record(t, CC(&k, nil).Payload)
			if r.Get(fBlendEnable) != 1 {
				t.Fatal("blend_enable not set")
			}
			if got := r.Get(fSrcFactor); got != tt.src {
				t.Errorf("src factor = %#x, want %#x", got, tt.src)
			}
			if got := r.Get(fDstFactor); got != tt.dst {
				t.Errorf("dst factor = %#x, want %#x", got, tt.dst)
			}
			if got := r.Get(fBlendFunc); got != tt.fn {
				t.Errorf("blend function = %d, want %d", got, tt.fn)
			}
			if got := r.Get(fIABlend); got != tt.iaBlend {
				t.Errorf("ia_blend_enable = %d, want %d", got, tt.iaBlend)
			}
		})
	}
}

func TestCCLogicOpOverridesBlend(t *testing.T) {
	b := gputypes.BlendStateReplace()
	k := CCKeyFrom(nil, &b, 0)
	k.LogicOpEnable = true
	k.LogicOp = LogicXor
	r := record(t, CC(&k, nil).Payload)
	if r.Get(fBlendEnable) != 0 {
		t.Error("blend enabled alongside logic op")
	}
	if r.Get(fLogicOpEnable) != 1 || r.Get(fLogicOpFunc) != uint32(LogicXor) {
		t.Error("logic op not packed")
	}
}

func TestCCDepthStencil(t *testing.T) {
	ds := gputypes.DefaultDepthStencilState(gputypes.TextureFormatDepth24PlusStencil8)
	ds.StencilFront = gputypes.StencilFaceState{
		Compare:     gputypes.CompareFunctionEqual,
		FailOp:      gputypes.StencilOperationKeep,
		DepthFailOp: gputypes.StencilOperationDecrementClamp,
		PassOp:      gputypes.StencilOperationIncrementWrap,
	}
	ds.StencilReadMask = 0x0f
	ds.StencilWriteMask = 0xf0

	k := CCKeyFrom(&ds, nil, 0x42)
	if !k.StencilEnable || !k.TwoSided {
		t.Fatalf("key = %+v, want two-sided stencil", k)
	}

	a := allocs(t, "cc_vp")
	u := CC(&k, a[0])
	r := record(t, u.Payload)

	checks := []struct {
		f    bitfield.Field
		want uint32
	}{
		{fDepthTest, 1},
		{fDepthFunc, hwCompareLess},
		{fDepthWrite, 1},
		{fStencilEnable, 1},
		{fStencilFunc, hwCompareEqual},
		{fPassDepthFail, hwStencilDecrSat},
		{fPassDepthPass, hwStencilIncr},
		{fStencilRef, 0x42},
		{fStencilTestMsk, 0x0f},
		{fStencilWriteMsk, 0xf0},
		{fStencilWrite, 1},
		{fBFEnable, 1},
		{fBFFunc, hwCompareAlways},
		{fBFStencilRef, 0x42},
		{fLogicOpFunc, uint32(LogicCopy)},
		{fCCStats, 1},
	}
	for _, c := range checks {
		if got := r.Get(c.f); got != c.want {
			t.Errorf("%s = %#x, want %#x", c.f.Name, got, c.want)
		}
	}

	rel := findReloc(t, u, fCCViewport.ByteOffset())
	if rel.Target != a[0] || rel.Delta != 0 {
		t.Errorf("viewport reloc = %+v", rel)
	}
}

func TestCCDepthDisabled(t *testing.T) {
	ds := gputypes.DepthStencilState{DepthCompare: gputypes.CompareFunctionAlways}
	k := CCKeyFrom(&ds, nil, 0)
	if k.DepthTest || k.StencilEnable {
		t.Errorf("key = %+v, want depth and stencil off", k)
	}
}

func TestCCAlphaTest(t *testing.T) {
	k := CCKey{AlphaTest: true, AlphaFunc: gputypes.CompareFunctionGreater, AlphaRef: 0.5}
	r := record(t, CC(&k, nil).Payload)
	if r.Get(fAlphaTest) != 1 || r.Get(fAlphaFunc) != hwCompareGreater || r.Get(fAlphaFormat) != 1 {
		t.Error("alpha test fields wrong")
	}
	if math.Float32frombits(r.Word(dwAlphaRef)) != 0.5 {
		t.Error("alpha reference not packed")
	}
}

func TestCompareFuncMapping(t *testing.T) {
	tests := []struct {
		in   gputypes.CompareFunction
		want uint32
	}{
		{gputypes.CompareFunctionUndefined, hwCompareAlways},
		{gputypes.CompareFunctionNever, hwCompareNever},
		{gputypes.CompareFunctionLess, hwCompareLess},
		{gputypes.CompareFunctionEqual, hwCompareEqual},
		{gputypes.CompareFunctionLessEqual, hwCompareLEqual},
		{gputypes.CompareFunctionGreater, hwCompareGreater},
		{gputypes.CompareFunctionNotEqual, hwCompareNotEqual},
		{gputypes.CompareFunctionGreaterEqual, hwCompareGEqual},
		{gputypes.CompareFunctionAlways, hwCompareAlways},
	}
	for _, tt := range tests {
		if got := compareFunc(tt.in); got != tt.want {
			t.Errorf("compareFunc(%v) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

// =============================================================================
// Viewports
// =============================================================================

func TestSFViewportTransform(t *testing.T) {
	k := SFViewportKey{
		Viewport:          Viewport{X: 0, Y: 0, Width: 640, Height: 480, MinDepth: 0, MaxDepth: 1},
		FramebufferWidth:  640,
		FramebufferHeight: 480,
		FlipY:             true,
	}
	r := record(t, SFViewport(&k).Payload)

	wantF := []float32{320, -240, 0.5, 320, 240, 0.5}
	for i, w := range wantF {
		if got := math.Float32frombits(r.Word(i)); got != w {
			t.Errorf("m[%d] = %v, want %v", i, got, w)
		}
	}
	if r.Get(fScissorXMax) != 639 || r.Get(fScissorYMax) != 479 {
		t.Errorf("full-screen scissor = %d,%d", r.Get(fScissorXMax), r.Get(fScissorYMax))
	}
}

func TestSFViewportScissor(t *testing.T) {
	tests := []struct {
		name                   string
		scissor                Rect
		flip                   bool
		xmin, ymin, xmax, ymax uint32
	}{
		{"fbo", Rect{X: 10, Y: 20, Width: 30, Height: 40}, false, 10, 20, 39, 59},
		{"window flips y", Rect{X: 10, Y: 20, Width: 30, Height: 40}, true, 10, 40, 39, 79},
		{"clamped", Rect{X: 90, Y: 90, Width: 50, Height: 50}, false, 90, 90, 99, 99},
		{"empty", Rect{X: 5, Y: 5}, false, 1, 1, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k := SFViewportKey{
				Scissor: tt.scissor, FramebufferWidth: 100, FramebufferHeight: 100,
				FlipY: tt.flip, ScissorEnable: true,
			}
			r := record(t, SFViewport(&k).Payload)
			got := [4]uint32{r.Get(fScissorXMin), r.Get(fScissorYMin), r.Get(fScissorXMax), r.Get(fScissorYMax)}
			want := [4]uint32{tt.xmin, tt.ymin, tt.xmax, tt.ymax}
			if got != want {
				t.Errorf("scissor = %v, want %v", got, want)
			}
		})
	}
}

func TestCCAndClipViewports(t *testing.T) {
	cc := record(t, CCViewport(&CCViewportKey{MinDepth: 0.25, MaxDepth: 0.75}).Payload)
	if math.Float32frombits(cc.Word(0)) != 0.25 || math.Float32frombits(cc.Word(1)) != 0.75 {
		t.Error("depth range not packed")
	}
	k := DefaultClipViewport()
	clip := record(t, ClipViewport(&k).Payload)
	want := []float32{-1, 1, -1, 1}
	for i, w := range want {
		if math.Float32frombits(clip.Word(i)) != w {
			t.Errorf("guard band[%d] = %v, want %v", i, math.Float32frombits(clip.Word(i)), w)
		}
	}
}

// =============================================================================
// Samplers
// =============================================================================

func TestSamplerTable(t *testing.T) {
	a := allocs(t, "sdc0", "sdc1")
	lin := gputypes.LinearSamplerDescriptor()
	lin.AddressModeU = gputypes.AddressModeRepeat
	shadow := gputypes.DefaultSamplerDescriptor()
	shadow.Compare = gputypes.CompareFunctionLess

	k := SamplerKey{Count: 2}
	k.Samplers[0] = SamplerFrom(&lin)
	k.Samplers[1] = SamplerFrom(&shadow)
	u := Samplers(&k, a)

	if len(u.Payload) != 2*SamplerDwords*4 {
		t.Fatalf("payload = %d bytes, want %d", len(u.Payload), 2*SamplerDwords*4)
	}
	s0 := record(t, u.Payload[:16])
	s1 := record(t, u.Payload[16:])

	if s0.Get(fMinFilter) != hwMapLinear || s0.Get(fMipFilter) != hwMipLinear {
		t.Error("linear sampler filters wrong")
	}
	if s0.Get(fSWrap) != hwWrap || s0.Get(fTWrap) != hwClamp {
		t.Error("wrap modes wrong")
	}
	if s0.Get(fAddressRound) != roundMin|roundMag {
		t.Errorf("address_round = %#x", s0.Get(fAddressRound))
	}
	if s0.Get(fMaxLOD) != 13*64 {
		t.Errorf("max_lod = %d, want clamp to 13.0", s0.Get(fMaxLOD))
	}
	if s1.Get(fShadowFunc) != hwCompareLEqual {
		t.Errorf("shadow function = %d, want inverted LEQUAL", s1.Get(fShadowFunc))
	}

	if len(u.Relocs) != 2 {
		t.Fatalf("relocs = %d, want 2", len(u.Relocs))
	}
	if r := findReloc(t, u, 16+fDefaultColor.ByteOffset()); r.Target != a[1] {
		t.Errorf("second default colour reloc targets %v", r.Target.Label())
	}
}

func TestSamplerEncodings(t *testing.T) {
	if got := anisoRatio(16); got != 7 {
		t.Errorf("anisoRatio(16) = %d, want 7", got)
	}
	if got := anisoRatio(2); got != 0 {
		t.Errorf("anisoRatio(2) = %d, want 0", got)
	}
	if got := lodBias(-1); got != 0x7c0 {
		t.Errorf("lodBias(-1) = %#x, want 0x7c0", got)
	}
	if got := lodBias(1.5); got != 96 {
		t.Errorf("lodBias(1.5) = %d, want 96", got)
	}
}

func TestAnisotropicSampler(t *testing.T) {
	d := gputypes.LinearSamplerDescriptor()
	d.MaxAnisotropy = 8
	k := SamplerKey{Count: 1}
	k.Samplers[0] = SamplerFrom(&d)
	r := record(t, Samplers(&k, nil).Payload)
	if r.Get(fMinFilter) != hwMapAniso || r.Get(fMagFilter) != hwMapAniso || r.Get(fMaxAniso) != 3 {
		t.Error("anisotropic filtering not packed")
	}
}

// =============================================================================
// Purity
// =============================================================================

func TestBuildersArePure(t *testing.T) {
	a := allocs(t, "prog", "vp")
	sf := SFKey{TotalGRF: 16, URBEntries: 8, URBEntrySize: 2, LineWidth: 1.5}
	cc := CCKeyFrom(nil, nil, 0)

	if !bytes.Equal(SF(&sf, a[0], a[1]).Payload, SF(&sf, a[0], a[1]).Payload) {
		t.Error("SF builder is not deterministic")
	}
	if !bytes.Equal(CC(&cc, a[1]).Payload, CC(&cc, a[1]).Payload) {
		t.Error("CC builder is not deterministic")
	}

	// Key bytes of equal keys are equal.
	sf2 := sf
	if !bytes.Equal(statecache.KeyBytes(&sf), statecache.KeyBytes(&sf2)) {
		t.Error("equal keys have different bytes")
	}
}

func TestSurfaceRecord(t *testing.T) {
	a := allocs(t, "texels")
	k := SurfaceKey{
		Format:       hwFormatR8G8B8A8Unorm,
		Type:         SurfaceType2D,
		Width:        640,
		Height:       480,
		Pitch:        2560,
		Levels:       3,
		WriteDisable: WriteDisable(gputypes.ColorWriteMaskRed | gputypes.ColorWriteMaskGreen | gputypes.ColorWriteMaskBlue),
		RenderTarget: true,
		Tiled:        true,
		ColorBlend:   true,
	}
	u := Surface(&k, a[0])
	r := record(t, u.Payload)

	checks := []struct {
		f    bitfield.Field
		want uint32
	}{
		{fSurfaceType, SurfaceType2D},
		{fSurfaceFormat, hwFormatR8G8B8A8Unorm},
		{fColorBlend, 1},
		{fWriteDisable, 1 << 3},
		{fMipCount, 2},
		{fSurfaceWidth, 639},
		{fSurfaceHeight, 479},
		{fSurfacePitch, 2559},
		{fTiled, 1},
		{fTileWalk, 1},
		{fCubeFaces, 0},
	}
	for _, c := range checks {
		if got := r.Get(c.f); got != c.want {
			t.Errorf("%s = %d, want %d", c.f.Name, got, c.want)
		}
	}

	rel := findReloc(t, u, 4)
	if rel.Usage != statecache.UsageRender || rel.Target != a[0] || rel.Delta != 0 {
		t.Errorf("base reloc = %+v", rel)
	}

	k.RenderTarget = false
	if rel := findReloc(t, Surface(&k, a[0]), 4); rel.Usage != statecache.UsageTexture {
		t.Errorf("texture usage = %v", rel.Usage)
	}
}

func TestNullAndCubeSurfaces(t *testing.T) {
	a := allocs(t, "texels")
	null := NullSurfaceKey(32, 16)
	u := Surface(&null, a[0])
	if len(u.Relocs) != 0 {
		t.Errorf("null surface has relocations %+v", u.Relocs)
	}
	r := record(t, u.Payload)
	if r.Get(fSurfaceType) != SurfaceTypeNull || r.Get(fSurfaceWidth) != 31 || r.Get(fSurfaceHeight) != 15 {
		t.Errorf("null surface = %#x %#x", r.Word(0), r.Word(2))
	}

	cube := SurfaceKey{Format: hwFormatB8G8R8A8Unorm, Type: SurfaceTypeCube, Width: 8, Height: 8}
	if got := record(t, Surface(&cube, a[0]).Payload).Get(fCubeFaces); got != 0x3f {
		t.Errorf("cube faces = %#x, want all six", got)
	}
}

func TestSurfaceFormats(t *testing.T) {
	tests := []struct {
		in   gputypes.TextureFormat
		want uint32
		ok   bool
	}{
		{gputypes.TextureFormatRGBA8Unorm, 0x0c7, true},
		{gputypes.TextureFormatBGRA8UnormSrgb, 0x0c1, true},
		{gputypes.TextureFormatRGBA32Float, 0x000, true},
		{gputypes.TextureFormatR8Unorm, 0x140, true},
		{gputypes.TextureFormatBC3RGBAUnorm, 0x188, true},
		{gputypes.TextureFormatRGBA32Uint, 0, false},
		{gputypes.TextureFormatDepth32Float, 0, false},
	}
	for _, tt := range tests {
		got, ok := SurfaceFormat(tt.in)
		if got != tt.want || ok != tt.ok {
			t.Errorf("SurfaceFormat(%v) = %#x, %v; want %#x, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}

	depth := []struct {
		in   gputypes.TextureFormat
		want uint32
	}{
		{gputypes.TextureFormatDepth16Unorm, 5},
		{gputypes.TextureFormatDepth24Plus, 2},
		{gputypes.TextureFormatDepth24PlusStencil8, 2},
		{gputypes.TextureFormatStencil8, 2},
		{gputypes.TextureFormatDepth32Float, 1},
		{gputypes.TextureFormatDepth32FloatStencil8, 0},
	}
	for _, tt := range depth {
		if got, ok := DepthFormat(tt.in); !ok || got != tt.want {
			t.Errorf("DepthFormat(%v) = %d, %v; want %d", tt.in, got, ok, tt.want)
		}
	}
	if _, ok := DepthFormat(gputypes.TextureFormatRGBA8Unorm); ok {
		t.Error("colour format accepted as depth")
	}
}

func TestBindingTable(t *testing.T) {
	a := allocs(t, "rt0", "tex0")
	k := BindingTableKey{Entries: 5}
	u := BindingTable(&k, []*pool.Allocation{a[0], nil, nil, nil, a[1]})
	if len(u.Payload) != 5*4 {
		t.Fatalf("payload = %d bytes, want 20", len(u.Payload))
	}
	if len(u.Relocs) != 2 {
		t.Fatalf("relocations = %+v, want two", u.Relocs)
	}
	if r := findReloc(t, u, 16); r.Target != a[1] || r.Usage != statecache.UsageState {
		t.Errorf("entry 4 = %+v", r)
	}
	if r := findReloc(t, u, 0); r.Target != a[0] {
		t.Errorf("entry 0 = %+v", r)
	}
}
