package unit

import (
	"structs"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/statecc/internal/bitfield"
	"github.com/gogpu/statecc/internal/pool"
	"github.com/gogpu/statecc/internal/statecache"
)

// LogicOp is a framebuffer logic operation. The values are the hardware
// encodings.
type LogicOp uint32

// Logic operations.
const (
	LogicClear LogicOp = iota
	LogicNor
	LogicAndInverted
	LogicCopyInverted
	LogicAndReverse
	LogicInvert
	LogicXor
	LogicNand
	LogicAnd
	LogicEquiv
	LogicNoop
	LogicOrInverted
	LogicCopy
	LogicOrReverse
	LogicOr
	LogicSet
)

// Hardware compare functions.
const (
	hwCompareAlways   = 0
	hwCompareNever    = 1
	hwCompareLess     = 2
	hwCompareEqual    = 3
	hwCompareLEqual   = 4
	hwCompareGreater  = 5
	hwCompareNotEqual = 6
	hwCompareGEqual   = 7
)

// Hardware stencil operations.
const (
	hwStencilKeep    = 0
	hwStencilZero    = 1
	hwStencilReplace = 2
	hwStencilIncrSat = 3
	hwStencilDecrSat = 4
	hwStencilIncr    = 5
	hwStencilDecr    = 6
	hwStencilInvert  = 7
)

// Hardware blend factors.
const (
	hwBlendOne           = 0x1
	hwBlendSrcColor      = 0x2
	hwBlendSrcAlpha      = 0x3
	hwBlendDstAlpha      = 0x4
	hwBlendDstColor      = 0x5
	hwBlendSrcAlphaSat   = 0x6
	hwBlendConstColor    = 0x7
	hwBlendZero          = 0x11
	hwBlendInvSrcColor   = 0x12
	hwBlendInvSrcAlpha   = 0x13
	hwBlendInvDstAlpha   = 0x14
	hwBlendInvDstColor   = 0x15
	hwBlendInvConstColor = 0x17
)

// Hardware blend functions.
const (
	hwBlendAdd    = 0
	hwBlendSub    = 1
	hwBlendRevSub = 2
	hwBlendMin    = 3
	hwBlendMax    = 4
)

const hwAlphaTestFloat32 = 1

var (
	fBFPassDepthPass = bitfield.F("bf_stencil_pass_depth_pass_op", 0, 3, 5)
	fBFPassDepthFail = bitfield.F("bf_stencil_pass_depth_fail_op", 0, 6, 8)
	fBFFail          = bitfield.F("bf_stencil_fail_op", 0, 9, 11)
	fBFFunc          = bitfield.F("bf_stencil_func", 0, 12, 14)
	fBFEnable        = bitfield.Bit("bf_stencil_enable", 0, 15)
	fStencilWrite    = bitfield.Bit("stencil_write_enable", 0, 18)
	fPassDepthPass   = bitfield.F("stencil_pass_depth_pass_op", 0, 19, 21)
	fPassDepthFail   = bitfield.F("stencil_pass_depth_fail_op", 0, 22, 24)
	fStencilFail     = bitfield.F("stencil_fail_op", 0, 25, 27)
	fStencilFunc     = bitfield.F("stencil_func", 0, 28, 30)
	fStencilEnable   = bitfield.Bit("stencil_enable", 0, 31)

	fBFStencilRef    = bitfield.F("bf_stencil_ref", 1, 0, 7)
	fStencilWriteMsk = bitfield.F("stencil_write_mask", 1, 8, 15)
	fStencilTestMsk  = bitfield.F("stencil_test_mask", 1, 16, 23)
	fStencilRef      = bitfield.F("stencil_ref", 1, 24, 31)

	fLogicOpEnable = bitfield.Bit("logicop_enable", 2, 0)
	fDepthWrite    = bitfield.Bit("depth_write_enable", 2, 11)
	fDepthFunc     = bitfield.F("depth_test_function", 2, 12, 14)
	fDepthTest     = bitfield.Bit("depth_test", 2, 15)
	fBFWriteMask   = bitfield.F("bf_stencil_write_mask", 2, 16, 23)
	fBFTestMask    = bitfield.F("bf_stencil_test_mask", 2, 24, 31)

	fAlphaFunc   = bitfield.F("alpha_test_func", 3, 8, 10)
	fAlphaTest   = bitfield.Bit("alpha_test", 3, 11)
	fBlendEnable = bitfield.Bit("blend_enable", 3, 12)
	fIABlend     = bitfield.Bit("ia_blend_enable", 3, 13)
	fAlphaFormat = bitfield.Bit("alpha_test_format", 3, 15)

	fCCViewport = bitfield.F("cc_viewport_state_offset", 4, 5, 31)

	fIADstFactor = bitfield.F("ia_dest_blend_factor", 5, 2, 6)
	fIASrcFactor = bitfield.F("ia_src_blend_factor", 5, 7, 11)
	fIAFunc      = bitfield.F("ia_blend_function", 5, 12, 14)
	fCCStats     = bitfield.Bit("statistics_enable", 5, 15)
	fLogicOpFunc = bitfield.F("logicop_func", 5, 16, 19)
	fDither      = bitfield.Bit("dither_enable", 5, 31)

	fDstFactor = bitfield.F("dest_blend_factor", 6, 19, 23)
	fSrcFactor = bitfield.F("src_blend_factor", 6, 24, 28)
	fBlendFunc = bitfield.F("blend_function", 6, 29, 31)
)

// CCFields lists the named fields of the CC record for dumps.
var CCFields = []bitfield.Field{
	fStencilEnable, fStencilFunc, fStencilFail, fPassDepthFail, fPassDepthPass,
	fStencilWrite, fBFEnable, fBFFunc, fBFFail, fBFPassDepthFail, fBFPassDepthPass,
	fStencilRef, fStencilTestMsk, fStencilWriteMsk, fBFStencilRef,
	fDepthTest, fDepthFunc, fDepthWrite, fLogicOpEnable, fBFTestMask, fBFWriteMask,
	fAlphaTest, fAlphaFunc, fBlendEnable, fIABlend,
	fIASrcFactor, fIADstFactor, fIAFunc, fLogicOpFunc, fDither,
	fSrcFactor, fDstFactor, fBlendFunc,
}

// CCDwords is the size of the color calculator record.
const CCDwords = 8

// dwAlphaRef holds the alpha test reference.
const dwAlphaRef = 7

// CCKey selects a color calculator record: depth, stencil, blend, logic op
// and alpha test.
type CCKey struct {
	_ structs.HostLayout

	StencilFront gputypes.StencilFaceState
	StencilBack  gputypes.StencilFaceState
	DepthCompare gputypes.CompareFunction
	Color        gputypes.BlendComponent
	Alpha        gputypes.BlendComponent
	LogicOp      LogicOp
	AlphaFunc    gputypes.CompareFunction
	AlphaRef     float32

	StencilRef       uint8
	StencilReadMask  uint8
	StencilWriteMask uint8
	BackRef          uint8
	BackReadMask     uint8
	BackWriteMask    uint8

	StencilEnable bool
	TwoSided      bool
	DepthTest     bool
	DepthWrite    bool
	BlendEnable   bool
	LogicOpEnable bool
	AlphaTest     bool
	Dither        bool
	_             [2]byte
}

// CCKeyFrom derives a CC key from WebGPU-style state. blend may be nil
// to disable blending.
func CCKeyFrom(ds *gputypes.DepthStencilState, blend *gputypes.BlendState, stencilRef uint8) CCKey {
	var k CCKey
	if ds != nil {
		k.DepthCompare = ds.DepthCompare
		k.DepthTest = ds.DepthWriteEnabled || !passes(ds.DepthCompare)
		k.DepthWrite = ds.DepthWriteEnabled

		k.StencilFront = ds.StencilFront
		k.StencilBack = ds.StencilBack
		k.StencilEnable = stencilActive(ds.StencilFront) || stencilActive(ds.StencilBack)
		k.TwoSided = k.StencilEnable && ds.StencilFront != ds.StencilBack
		k.StencilRef = stencilRef
		k.BackRef = stencilRef
		//nolint:gosec // G115: the stencil buffer is 8 bits deep
		k.StencilReadMask, k.BackReadMask = uint8(ds.StencilReadMask), uint8(ds.StencilReadMask)
		//nolint:gosec // G115: the stencil buffer is 8 bits deep
		k.StencilWriteMask, k.BackWriteMask = uint8(ds.StencilWriteMask), uint8(ds.StencilWriteMask)
	}
	if blend != nil {
		k.BlendEnable = true
		k.Color = blend.Color
		k.Alpha = blend.Alpha
	}
	k.LogicOp = LogicCopy
	return k
}

func passes(f gputypes.CompareFunction) bool {
	return f == gputypes.CompareFunctionAlways || f == gputypes.CompareFunctionUndefined
}

func stencilActive(s gputypes.StencilFaceState) bool {
	keep := func(op gputypes.StencilOperation) bool {
		return op == gputypes.StencilOperationKeep || op == gputypes.StencilOperationUndefined
	}
	return !passes(s.Compare) || !keep(s.FailOp) || !keep(s.DepthFailOp) || !keep(s.PassOp)
}

// CC packs the color calculator unit. viewport is the CC viewport record.
func CC(k *CCKey, viewport *pool.Allocation) Unit {
	r := bitfield.NewRecord(CCDwords)

	if k.StencilEnable {
		r.SetBool(fStencilEnable, true)
		r.Set(fStencilFunc, compareFunc(k.StencilFront.Compare))
		r.Set(fStencilFail, stencilOp(k.StencilFront.FailOp))
		r.Set(fPassDepthFail, stencilOp(k.StencilFront.DepthFailOp))
		r.Set(fPassDepthPass, stencilOp(k.StencilFront.PassOp))
		r.Set(fStencilRef, uint32(k.StencilRef))
		r.Set(fStencilWriteMsk, uint32(k.StencilWriteMask))
		r.Set(fStencilTestMsk, uint32(k.StencilReadMask))

		if k.TwoSided {
			r.SetBool(fBFEnable, true)
			r.Set(fBFFunc, compareFunc(k.StencilBack.Compare))
			r.Set(fBFFail, stencilOp(k.StencilBack.FailOp))
			r.Set(fBFPassDepthFail, stencilOp(k.StencilBack.DepthFailOp))
			r.Set(fBFPassDepthPass, stencilOp(k.StencilBack.PassOp))
			r.Set(fBFStencilRef, uint32(k.BackRef))
			r.Set(fBFWriteMask, uint32(k.BackWriteMask))
			r.Set(fBFTestMask, uint32(k.BackReadMask))
		}
		r.SetBool(fStencilWrite, k.StencilWriteMask != 0 || (k.TwoSided && k.BackWriteMask != 0))
	}

	// Logic op takes precedence over blending.
	switch {
	case k.LogicOpEnable:
		r.SetBool(fLogicOpEnable, true)
		r.Set(fLogicOpFunc, uint32(k.LogicOp))
	case k.BlendEnable:
		r.SetBool(fBlendEnable, true)
		packBlend(r, k.Color, fSrcFactor, fDstFactor, fBlendFunc)
		packBlend(r, k.Alpha, fIASrcFactor, fIADstFactor, fIAFunc)
		r.SetBool(fIABlend, k.Color != k.Alpha)
		r.Set(fLogicOpFunc, uint32(LogicCopy))
	default:
		r.Set(fLogicOpFunc, uint32(LogicCopy))
	}

	r.SetBool(fCCStats, true)
	r.SetBool(fDither, k.Dither)

	if k.AlphaTest {
		r.SetBool(fAlphaTest, true)
		r.Set(fAlphaFunc, compareFunc(k.AlphaFunc))
		r.Set(fAlphaFormat, hwAlphaTestFloat32)
		r.SetFloat(dwAlphaRef, k.AlphaRef)
	}

	if k.DepthTest {
		r.SetBool(fDepthTest, true)
		r.Set(fDepthFunc, compareFunc(k.DepthCompare))
		r.SetBool(fDepthWrite, k.DepthWrite)
	}

	var relocs []statecache.Relocation
	if viewport != nil {
		relocs = append(relocs, reloc(r, fCCViewport, statecache.UsageState, viewport))
	}
	return Unit{Payload: r.Bytes(), Relocs: relocs}
}

// packBlend writes one blend equation. MIN and MAX ignore the factors and
// the hardware requires them to be ONE.
func packBlend(r *bitfield.Record, c gputypes.BlendComponent, src, dst, fn bitfield.Field) {
	op := blendFunc(c.Operation)
	r.Set(fn, op)
	if op == hwBlendMin || op == hwBlendMax {
		r.Set(src, hwBlendOne)
		r.Set(dst, hwBlendOne)
		return
	}
	r.Set(src, blendFactor(c.SrcFactor, hwBlendOne))
	r.Set(dst, blendFactor(c.DstFactor, hwBlendZero))
}

func compareFunc(f gputypes.CompareFunction) uint32 {
	switch f {
	case gputypes.CompareFunctionNever:
		return hwCompareNever
	case gputypes.CompareFunctionLess:
		return hwCompareLess
	case gputypes.CompareFunctionEqual:
		return hwCompareEqual
	case gputypes.CompareFunctionLessEqual:
		return hwCompareLEqual
	case gputypes.CompareFunctionGreater:
		return hwCompareGreater
	case gputypes.CompareFunctionNotEqual:
		return hwCompareNotEqual
	case gputypes.CompareFunctionGreaterEqual:
		return hwCompareGEqual
	default:
		return hwCompareAlways
	}
}

func stencilOp(op gputypes.StencilOperation) uint32 {
	switch op {
	case gputypes.StencilOperationZero:
		return hwStencilZero
	case gputypes.StencilOperationReplace:
		return hwStencilReplace
	case gputypes.StencilOperationInvert:
		return hwStencilInvert
	case gputypes.StencilOperationIncrementClamp:
		return hwStencilIncrSat
	case gputypes.StencilOperationDecrementClamp:
		return hwStencilDecrSat
	case gputypes.StencilOperationIncrementWrap:
		return hwStencilIncr
	case gputypes.StencilOperationDecrementWrap:
		return hwStencilDecr
	default:
		return hwStencilKeep
	}
}

// blendFactor maps a factor; Undefined maps to def.
func blendFactor(f gputypes.BlendFactor, def uint32) uint32 {
	switch f {
	case gputypes.BlendFactorZero:
		return hwBlendZero
	case gputypes.BlendFactorOne:
		return hwBlendOne
	case gputypes.BlendFactorSrc:
		return hwBlendSrcColor
	case gputypes.BlendFactorOneMinusSrc:
		return hwBlendInvSrcColor
	case gputypes.BlendFactorSrcAlpha:
		return hwBlendSrcAlpha
	case gputypes.BlendFactorOneMinusSrcAlpha:
		return hwBlendInvSrcAlpha
	case gputypes.BlendFactorDst:
		return hwBlendDstColor
	case gputypes.BlendFactorOneMinusDst:
		return hwBlendInvDstColor
	case gputypes.BlendFactorDstAlpha:
		return hwBlendDstAlpha
	case gputypes.BlendFactorOneMinusDstAlpha:
		return hwBlendInvDstAlpha
	case gputypes.BlendFactorSrcAlphaSaturated:
		return hwBlendSrcAlphaSat
	case gputypes.BlendFactorConstant:
		return hwBlendConstColor
	case gputypes.BlendFactorOneMinusConstant:
		return hwBlendInvConstColor
	default:
		return def
	}
}

func blendFunc(op gputypes.BlendOperation) uint32 {
	switch op {
	case gputypes.BlendOperationSubtract:
		return hwBlendSub
	case gputypes.BlendOperationReverseSubtract:
		return hwBlendRevSub
	case gputypes.BlendOperationMin:
		return hwBlendMin
	case gputypes.BlendOperationMax:
		return hwBlendMax
	default:
		return hwBlendAdd
	}
}
