package wm

import (
	"math/bits"

	"github.com/gogpu/statecc/internal/eu"
	"github.com/gogpu/statecc/shader"
)

// TextureBindingBase is the binding table index of texture unit 0. Render
// targets occupy the entries below it.
const TextureBindingBase = shader.MaxColorOuts

// emitter lowers the allocated IR to native SIMD-16 code.
type emitter struct {
	*ir
	key  Key
	lay  layout
	p    *eu.Compiler
	data *ProgData
}

func (e *emitter) regOf(r Ref) eu.Reg {
	if r.Value == NoValue {
		return eu.Null()
	}
	var reg eu.Reg
	v := &e.values[r.Value]
	switch {
	case r.unspill != 0:
		reg = eu.GRF(r.unspill)
	case v.kind == valueParam:
		reg = eu.Vec1(eu.GRF(e.lay.curbeStart + v.param/8)).Suboffset(v.param % 8)
	case v.kind == valuePayload:
		reg = eu.GRF(v.payloadReg)
	default:
		reg = eu.GRF(v.reg)
	}
	if r.Abs {
		reg = reg.WithAbs()
	}
	if r.Negate {
		reg = reg.Neg()
	}
	return reg
}

func (e *emitter) args(in *Instruction) [3][4]eu.Reg {
	var a [3][4]eu.Reg
	for s := range in.Src {
		for ch, r := range in.Src[s] {
			a[s][ch] = e.regOf(r)
		}
	}
	return a
}

func (e *emitter) dsts(in *Instruction) [4]eu.Reg {
	var d [4]eu.Reg
	for ch, v := range in.Dst {
		if v == NoValue {
			d[ch] = eu.Null()
		} else {
			d[ch] = eu.GRF(e.values[v].reg)
		}
	}
	return d
}

// sechalf returns the second register of a pair; scalars are unchanged.
func sechalf(r eu.Reg) eu.Reg {
	if r.VStride != 0 {
		r.Nr++
	}
	return r
}

func (e *emitter) spill(reg eu.Reg, slot int) {
	e.p.MOV(eu.MRF(2), reg)
	e.p.ScratchWrite(uint32(slot * slotBytes)) //nolint:gosec // G115: slot count is bounded by the register budget
}

// unspill reloads slot into reg. Slot 0 is the undefined value and reads
// as zero without touching memory.
func (e *emitter) unspill(reg eu.Reg, slot int) {
	if slot == 0 {
		e.p.MOV(reg, eu.ImmF(0))
		return
	}
	e.p.ScratchRead(reg, uint32(slot*slotBytes)) //nolint:gosec // G115: see spill
	e.data.Stats.Unspills++
}

func (e *emitter) run() {
	p := e.p
	p.SetExecSize(16)
	p.SetCompression(eu.Compressed)

	for _, i := range e.live() {
		in := &e.insts[i]

		done := make(map[int]bool)
		for s := range in.Src {
			for _, r := range in.Src[s] {
				if r.Value == NoValue || r.unspill == 0 || done[r.unspill] {
					continue
				}
				done[r.unspill] = true
				e.unspill(eu.GRF(r.unspill), e.values[r.Value].spillSlot)
			}
		}

		start := p.Len()
		e.emitInst(in)
		if in.User && p.Len() > start {
			e.data.Stats.EmittedGroups++
		}

		for _, d := range in.Dst {
			if d != NoValue && e.values[d].spillSlot != 0 {
				e.spill(eu.GRF(e.values[d].reg), e.values[d].spillSlot)
			}
		}
	}
	e.data.Stats.Instructions = p.Len()
}

func (e *emitter) emitInst(in *Instruction) {
	arg := e.args(in)
	dst := e.dsts(in)
	mask := in.WriteMask
	sat := in.Saturate

	switch in.Op {
	case OpPixelXY:
		e.pixelXY(dst, mask)
	case OpDeltaXY:
		e.deltaXY(dst, mask, arg[0])
	case OpWPosXY:
		e.wposXY(dst, mask, arg[0])
	case OpPixelW:
		e.pixelW(dst, mask, arg[0], arg[1])
	case OpLinterp:
		e.linterp(dst, mask, arg[0], arg[1])
	case OpPinterp:
		e.linterp(dst, mask, arg[0], arg[1])
		for ch := 0; ch < 4; ch++ {
			if mask&(1<<ch) != 0 {
				e.p.MUL(dst[ch], dst[ch], arg[2][3])
			}
		}
	case OpCinterp:
		e.cinterp(dst, mask, arg[0])
	case OpFrontFacing:
		e.frontFacing(dst, mask)
	case OpFBWrite:
		e.fbWrite(in, arg)

	case shader.OpADD:
		e.alu2(e.p.ADD, dst, mask, sat, arg[0], arg[1])
	case shader.OpMUL:
		e.alu2(e.p.MUL, dst, mask, sat, arg[0], arg[1])
	case shader.OpMOV:
		e.alu1(e.p.MOV, dst, mask, sat, arg[0])
	case shader.OpFRC:
		e.alu1(e.p.FRC, dst, mask, sat, arg[0])
	case shader.OpFLR:
		e.alu1(e.p.RNDD, dst, mask, sat, arg[0])
	case shader.OpTRUNC:
		e.alu1(e.p.RNDZ, dst, mask, sat, arg[0])
	case shader.OpDDX:
		e.ddxy(dst, mask, sat, true, arg[0])
	case shader.OpDDY:
		e.ddxy(dst, mask, sat, false, arg[0])
	case shader.OpDP3:
		e.dot(dst, mask, sat, arg[0], arg[1], 3, false)
	case shader.OpDP4:
		e.dot(dst, mask, sat, arg[0], arg[1], 4, false)
	case shader.OpDPH:
		e.dot(dst, mask, sat, arg[0], arg[1], 3, true)
	case shader.OpXPD:
		e.xpd(dst, mask, sat, arg[0], arg[1])
	case shader.OpMAD:
		e.mad(dst, mask, sat, arg[0], arg[1], arg[2])
	case shader.OpLRP:
		e.lrp(dst, mask, sat, arg[0], arg[1], arg[2])

	case shader.OpRCP:
		e.math1(eu.MathInv, dst, mask, sat, arg[0])
	case shader.OpRSQ:
		e.math1(eu.MathRsq, dst, mask, sat, arg[0])
	case shader.OpSIN:
		e.math1(eu.MathSin, dst, mask, sat, arg[0])
	case shader.OpCOS:
		e.math1(eu.MathCos, dst, mask, sat, arg[0])
	case shader.OpEX2:
		e.math1(eu.MathExp, dst, mask, sat, arg[0])
	case shader.OpLG2:
		e.math1(eu.MathLog, dst, mask, sat, arg[0])
	case shader.OpSCS:
		// The hardware sincos would need a fixup for SIMD-16.
		if mask&maskX != 0 {
			e.math1(eu.MathCos, dst, maskX, sat, arg[0])
		}
		if mask&shader.WriteY != 0 {
			e.math1(eu.MathSin, [4]eu.Reg{dst[1]}, maskX, sat, arg[0])
		}
	case shader.OpPOW:
		e.math2(eu.MathPow, dst, mask, sat, arg[0], arg[1])

	case shader.OpCMP:
		e.cmp(dst, mask, sat, arg[0], arg[1], arg[2])
	case shader.OpMAX:
		e.minmax(dst, mask, sat, arg[0], arg[1], true)
	case shader.OpMIN:
		e.minmax(dst, mask, sat, arg[0], arg[1], false)
	case shader.OpSLT:
		e.sop(dst, mask, eu.CondL, arg[0], arg[1])
	case shader.OpSLE:
		e.sop(dst, mask, eu.CondLE, arg[0], arg[1])
	case shader.OpSGT:
		e.sop(dst, mask, eu.CondG, arg[0], arg[1])
	case shader.OpSGE:
		e.sop(dst, mask, eu.CondGE, arg[0], arg[1])
	case shader.OpSEQ:
		e.sop(dst, mask, eu.CondEQ, arg[0], arg[1])
	case shader.OpSNE:
		e.sop(dst, mask, eu.CondNE, arg[0], arg[1])
	case shader.OpLIT:
		e.lit(dst, mask, sat, arg[0])

	case shader.OpTEX:
		e.tex(in, arg[0])
	case shader.OpTXB:
		e.txb(in, arg[0])
	case shader.OpKIL:
		e.kil(arg[0])
	case shader.OpKILP:
		e.killp()

	default:
		// Validated programs never get here.
		slogger().Debug("wm: no lowering, instruction dropped", "op", opName(in.Op))
	}
}

// =============================================================================
// Interpolation prologue
// =============================================================================

func (e *emitter) pixelXY(dst [4]eu.Reg, mask uint8) {
	r1 := eu.Vec1(eu.GRF(1)).Retype(eu.TypeUW)

	// Pixel centres: add the per-pixel offsets of the 2x2 subspans to
	// the subspan origins in r1.
	e.p.SetCompression(eu.CompressNone)
	if mask&maskX != 0 {
		e.p.ADD(dst[0].Retype(eu.TypeUW), eu.Region(r1.Suboffset(4), 2, 4, 0), eu.ImmV(0x10101010))
	}
	if mask&shader.WriteY != 0 {
		e.p.ADD(dst[1].Retype(eu.TypeUW), eu.Region(r1.Suboffset(5), 2, 4, 0), eu.ImmV(0x11001100))
	}
	e.p.SetCompression(eu.Compressed)
}

func (e *emitter) deltaXY(dst [4]eu.Reg, mask uint8, arg [4]eu.Reg) {
	r1 := eu.Vec1(eu.GRF(1))
	if mask&maskX != 0 {
		e.p.ADD(dst[0], arg[0].Retype(eu.TypeUW), r1.Neg())
	}
	if mask&shader.WriteY != 0 {
		e.p.ADD(dst[1], arg[1].Retype(eu.TypeUW), r1.Suboffset(1).Neg())
	}
}

func (e *emitter) wposXY(dst [4]eu.Reg, mask uint8, arg [4]eu.Reg) {
	for ch := 0; ch < 2; ch++ {
		if mask&(1<<ch) != 0 {
			e.p.MOV(dst[ch], arg[ch].Retype(eu.TypeW))
		}
	}
}

// pixelW interpolates w and inverts it, leaving 1/w per pixel.
func (e *emitter) pixelW(dst [4]eu.Reg, mask uint8, arg, delta [4]eu.Reg) {
	if mask&shader.WriteW == 0 {
		return
	}
	interp3 := eu.Vec1(eu.GRF(int(arg[0].Nr) + 1)).Suboffset(4)
	e.p.LINE(eu.Null(), interp3, delta[0])
	e.p.MAC(eu.MRF(2), interp3.Suboffset(1), delta[1])
	e.p.Math16(dst[3], eu.MathInv, 2, eu.Null(), eu.MathPrecisionFull)
}

// planes returns the setup coefficients of the four channels of an
// attribute stored in two registers.
func planes(arg eu.Reg) [4]eu.Reg {
	nr := int(arg.Nr)
	return [4]eu.Reg{
		eu.Vec1(eu.GRF(nr)),
		eu.Vec1(eu.GRF(nr)).Suboffset(4),
		eu.Vec1(eu.GRF(nr + 1)),
		eu.Vec1(eu.GRF(nr + 1)).Suboffset(4),
	}
}

func (e *emitter) linterp(dst [4]eu.Reg, mask uint8, arg, delta [4]eu.Reg) {
	interp := planes(arg[0])
	for ch := 0; ch < 4; ch++ {
		if mask&(1<<ch) != 0 {
			e.p.LINE(eu.Null(), interp[ch], delta[0])
			e.p.MAC(dst[ch], interp[ch].Suboffset(1), delta[1])
		}
	}
}

func (e *emitter) cinterp(dst [4]eu.Reg, mask uint8, arg [4]eu.Reg) {
	interp := planes(arg[0])
	for ch := 0; ch < 4; ch++ {
		if mask&(1<<ch) != 0 {
			e.p.MOV(dst[ch], interp[ch].Suboffset(3))
		}
	}
}

// frontFacing sets the channels to 1.0 for front-facing primitives and
// 0.0 otherwise. Bit 31 of r1.6 flags a back face.
func (e *emitter) frontFacing(dst [4]eu.Reg, mask uint8) {
	if mask == 0 {
		return
	}
	for ch := 0; ch < 4; ch++ {
		if mask&(1<<ch) != 0 {
			e.p.MOV(dst[ch], eu.ImmF(0))
		}
	}
	e.p.CMP(eu.Null(), eu.CondL, eu.Vec1(eu.GRF(1)).Retype(eu.TypeUD).Suboffset(6), eu.ImmUD(1<<31))
	e.p.SetPredicate(eu.PredNormal, false)
	for ch := 0; ch < 4; ch++ {
		if mask&(1<<ch) != 0 {
			e.p.MOV(dst[ch], eu.ImmF(1))
		}
	}
	e.p.SetPredicate(eu.PredNone, false)
}

// =============================================================================
// Arithmetic
// =============================================================================

func (e *emitter) alu1(fn func(dst, src eu.Reg) *eu.Inst, dst [4]eu.Reg, mask uint8, sat bool, a [4]eu.Reg) {
	e.p.SetSaturate(sat)
	for ch := 0; ch < 4; ch++ {
		if mask&(1<<ch) != 0 {
			fn(dst[ch], a[ch])
		}
	}
	e.p.SetSaturate(false)
}

func (e *emitter) alu2(fn func(dst, a, b eu.Reg) *eu.Inst, dst [4]eu.Reg, mask uint8, sat bool, a, b [4]eu.Reg) {
	e.p.SetSaturate(sat)
	for ch := 0; ch < 4; ch++ {
		if mask&(1<<ch) != 0 {
			fn(dst[ch], a[ch], b[ch])
		}
	}
	e.p.SetSaturate(false)
}

func (e *emitter) ddxy(dst [4]eu.Reg, mask uint8, sat, isDDX bool, a [4]eu.Reg) {
	e.p.SetSaturate(sat)
	for ch := 0; ch < 4; ch++ {
		if mask&(1<<ch) == 0 {
			continue
		}
		var s0, s1 eu.Reg
		if isDDX {
			s0 = eu.Region(a[ch].Suboffset(1), 2, 2, 0)
			s1 = eu.Region(a[ch], 2, 2, 0)
		} else {
			s0 = eu.Region(a[ch], 4, 4, 0)
			s1 = eu.Region(a[ch].Suboffset(2), 4, 4, 0)
		}
		e.p.ADD(dst[ch], s0, s1.Neg())
	}
	e.p.SetSaturate(false)
}

func (e *emitter) mad(dst [4]eu.Reg, mask uint8, sat bool, a, b, c [4]eu.Reg) {
	for ch := 0; ch < 4; ch++ {
		if mask&(1<<ch) != 0 {
			e.p.MUL(dst[ch], a[ch], b[ch])
			e.p.SetSaturate(sat)
			e.p.ADD(dst[ch], dst[ch], c[ch])
			e.p.SetSaturate(false)
		}
	}
}

// lrp computes a*b + (1-a)*c using dst as the temporary.
func (e *emitter) lrp(dst [4]eu.Reg, mask uint8, sat bool, a, b, c [4]eu.Reg) {
	for ch := 0; ch < 4; ch++ {
		if mask&(1<<ch) != 0 {
			e.p.ADD(dst[ch], a[ch].Neg(), eu.ImmF(1))
			e.p.MUL(eu.Null(), dst[ch], c[ch])
			e.p.SetSaturate(sat)
			e.p.MAC(dst[ch], a[ch], b[ch])
			e.p.SetSaturate(false)
		}
	}
}

// dot accumulates an n-component product into the single written channel.
// homogeneous adds b.w instead of multiplying a fourth term.
func (e *emitter) dot(dst [4]eu.Reg, mask uint8, sat bool, a, b [4]eu.Reg, n int, homogeneous bool) {
	if mask == 0 {
		return
	}
	ch := bits.TrailingZeros8(mask)
	e.p.MUL(eu.Null(), a[0], b[0])
	for i := 1; i < n-1; i++ {
		e.p.MAC(eu.Null(), a[i], b[i])
	}
	if homogeneous {
		e.p.MAC(dst[ch], a[n-1], b[n-1])
		e.p.SetSaturate(sat)
		e.p.ADD(dst[ch], dst[ch], b[3])
		e.p.SetSaturate(false)
		return
	}
	e.p.SetSaturate(sat)
	e.p.MAC(dst[ch], a[n-1], b[n-1])
	e.p.SetSaturate(false)
}

func (e *emitter) xpd(dst [4]eu.Reg, mask uint8, sat bool, a, b [4]eu.Reg) {
	for ch := 0; ch < 3; ch++ {
		if mask&(1<<ch) == 0 {
			continue
		}
		i1, i2 := (ch+1)%3, (ch+2)%3
		e.p.MUL(eu.Null(), a[i2].Neg(), b[i1])
		e.p.SetSaturate(sat)
		e.p.MAC(dst[ch], a[i1], b[i2])
		e.p.SetSaturate(false)
	}
}

// sop sets each channel to 1.0 where a cond b holds, else 0.0.
func (e *emitter) sop(dst [4]eu.Reg, mask uint8, cond eu.CondMod, a, b [4]eu.Reg) {
	for ch := 0; ch < 4; ch++ {
		if mask&(1<<ch) == 0 {
			continue
		}
		e.p.MOV(dst[ch], eu.ImmF(0))
		e.p.CMP(eu.Null(), cond, a[ch], b[ch])
		e.p.SetPredicate(eu.PredNormal, false)
		e.p.MOV(dst[ch], eu.ImmF(1))
		e.p.SetPredicate(eu.PredNone, false)
	}
}

// cmp selects b where a < 0, else c.
func (e *emitter) cmp(dst [4]eu.Reg, mask uint8, sat bool, a, b, c [4]eu.Reg) {
	for ch := 0; ch < 4; ch++ {
		if mask&(1<<ch) == 0 {
			continue
		}
		e.p.SetSaturate(sat)
		e.p.MOV(dst[ch], c[ch])
		e.p.SetSaturate(false)
		e.p.CMP(eu.Null(), eu.CondL, a[ch], eu.ImmF(0))
		e.p.SetPredicate(eu.PredNormal, false)
		e.p.SetSaturate(sat)
		e.p.MOV(dst[ch], b[ch])
		e.p.SetSaturate(false)
		e.p.SetPredicate(eu.PredNone, false)
	}
}

func (e *emitter) minmax(dst [4]eu.Reg, mask uint8, sat bool, a, b [4]eu.Reg, isMax bool) {
	for ch := 0; ch < 4; ch++ {
		if mask&(1<<ch) == 0 {
			continue
		}
		first, second := a[ch], b[ch]
		if !isMax {
			first, second = b[ch], a[ch]
		}
		e.p.SetSaturate(sat)
		e.p.MOV(dst[ch], first)
		e.p.SetSaturate(false)
		e.p.CMP(eu.Null(), eu.CondL, a[ch], b[ch])
		e.p.SetPredicate(eu.PredNormal, false)
		e.p.SetSaturate(sat)
		e.p.MOV(dst[ch], second)
		e.p.SetSaturate(false)
		e.p.SetPredicate(eu.PredNone, false)
	}
}

// lit handles the Y and Z channels; X and W are constant 1.0 and were
// folded away when the program was translated.
func (e *emitter) lit(dst [4]eu.Reg, mask uint8, sat bool, a [4]eu.Reg) {
	if mask&shader.WriteY != 0 {
		e.p.SetSaturate(sat)
		e.p.MOV(dst[1], a[0])
		e.p.SetSaturate(false)
	}
	if mask&shader.WriteZ != 0 {
		e.math2(eu.MathPow, [4]eu.Reg{dst[2]}, maskX, sat, [4]eu.Reg{a[1]}, [4]eu.Reg{a[3]})
	}

	// A 16-wide branch around the pow can hang early hardware, so the
	// result is patched with a predicated move instead.
	e.p.CMP(eu.Null(), eu.CondLE, a[0], eu.ImmF(0))
	e.p.SetPredicate(eu.PredNormal, false)
	if mask&shader.WriteY != 0 {
		e.p.MOV(dst[1], eu.ImmF(0))
	}
	if mask&shader.WriteZ != 0 {
		e.p.MOV(dst[2], eu.ImmF(0))
	}
	e.p.SetPredicate(eu.PredNone, false)
}

// =============================================================================
// Shared functions
// =============================================================================

func (e *emitter) math1(fn eu.MathFunc, dst [4]eu.Reg, mask uint8, sat bool, a [4]eu.Reg) {
	if mask == 0 {
		return
	}
	ch := bits.TrailingZeros8(mask)
	e.p.MOV(eu.MRF(2), a[0])

	e.p.Push()
	e.p.SetSaturate(sat)
	e.p.Math16(dst[ch], fn, 2, eu.Null(), eu.MathPrecisionFull)
	e.p.Pop()
}

func (e *emitter) math2(fn eu.MathFunc, dst [4]eu.Reg, mask uint8, sat bool, a, b [4]eu.Reg) {
	if mask == 0 {
		return
	}
	ch := bits.TrailingZeros8(mask)

	e.p.Push()
	e.p.SetExecSize(8)
	e.p.SetCompression(eu.CompressNone)
	e.p.MOV(eu.MRF(2), a[0])
	e.p.SetCompression(eu.CompressSecHalf)
	e.p.MOV(eu.MRF(4), sechalf(a[0]))
	e.p.SetCompression(eu.CompressNone)
	e.p.MOV(eu.MRF(3), b[0])
	e.p.SetCompression(eu.CompressSecHalf)
	e.p.MOV(eu.MRF(5), sechalf(b[0]))

	e.p.SetSaturate(sat)
	e.p.SetCompression(eu.CompressNone)
	e.p.Math(dst[ch], fn, 2, eu.Null(), eu.MathPrecisionFull)
	e.p.SetCompression(eu.CompressSecHalf)
	e.p.Math(dst[ch].Offset(1), fn, 4, eu.Null(), eu.MathPrecisionFull)
	e.p.Pop()
}

func (e *emitter) samplerHeader() {
	e.p.Push()
	e.p.SetExecSize(8)
	e.p.SetCompression(eu.CompressNone)
	e.p.SetMaskControl(eu.MaskDisable)
	e.p.MOV(eu.MRF(1).Retype(eu.TypeUD), eu.GRF(0).Retype(eu.TypeUD))
	e.p.Pop()
}

func (e *emitter) sampleTypes() (sample, bias, compare uint8) {
	if e.key.Gen >= eu.Gen5 {
		return eu.SamplerMsgSampleGen5, eu.SamplerMsgSampleBiasGen5, eu.SamplerMsgSampleCompareGen5
	}
	return eu.SamplerMsgSample, eu.SamplerMsgSampleBias, eu.SamplerMsgSampleCompare
}

func (e *emitter) tex(in *Instruction, coord [4]eu.Reg) {
	nr := in.TexTarget.Coords()
	emit := uint8(1)<<nr - 1
	if in.TexTarget.Shadow() {
		// The reference goes in the fourth slot; slots in between are zero.
		nr = 4
		emit |= shader.WriteW
	}

	e.samplerHeader()
	swz := [4]int{0, 1, 2, 2}
	msgLen := 1
	for i := 0; i < nr; i++ {
		if emit&(1<<i) != 0 {
			e.p.MOV(eu.MRF(msgLen+1), coord[swz[i]])
		} else {
			e.p.MOV(eu.MRF(msgLen+1), eu.ImmF(0))
		}
		msgLen += 2
	}

	sample, _, compare := e.sampleTypes()
	msgType := sample
	if in.TexTarget.Shadow() {
		msgType = compare
	}
	//nolint:gosec // G115: message length is at most 9
	e.p.Sample(eu.GRF(in.block), 1, eu.GRF(0), TextureBindingBase+in.TexUnit, in.TexUnit,
		msgType, 8, uint8(msgLen))
}

// txb samples with an LOD bias taken from coord.w. Shadow comparison is
// not available with bias.
func (e *emitter) txb(in *Instruction, coord [4]eu.Reg) {
	e.samplerHeader()
	n := in.TexTarget.Coords()
	for i := 0; i < 3; i++ {
		if i < n {
			e.p.MOV(eu.MRF(2+2*i), coord[i])
		} else {
			e.p.MOV(eu.MRF(2+2*i), eu.ImmF(0))
		}
	}
	e.p.MOV(eu.MRF(8), coord[3])

	_, bias, _ := e.sampleTypes()
	e.p.Sample(eu.GRF(in.block), 1, eu.GRF(0), TextureBindingBase+in.TexUnit, in.TexUnit, bias, 8, 9)
}

// kil clears the pixel mask bits of channels where any component is
// negative.
func (e *emitter) kil(a [4]eu.Reg) {
	r0 := eu.Vec1(eu.GRF(0)).Retype(eu.TypeUW)
	for ch := 0; ch < 4; ch++ {
		if a[ch].IsNull() {
			continue
		}
		e.p.Push()
		e.p.CMP(eu.Null(), eu.CondGE, a[ch], eu.ImmF(0))
		e.p.SetPredicate(eu.PredNormal, false)
		e.p.SetCompression(eu.CompressNone)
		e.p.SetExecSize(1)
		e.p.AND(r0, eu.Flag(), r0)
		e.p.Pop()
	}
}

// killp discards every pixel still executing.
func (e *emitter) killp() {
	e.p.Push()
	e.p.SetMaskControl(eu.MaskDisable)
	e.p.SetCompression(eu.CompressNone)
	e.p.SetExecSize(1)
	e.p.MOV(eu.Vec1(eu.GRF(0)).Retype(eu.TypeUW), eu.ImmUW(0))
	e.p.Pop()
}

// fbWrite interleaves the colour into message registers, appends the
// optional depth payload and sends the render target write.
func (e *emitter) fbWrite(in *Instruction, arg [3][4]eu.Reg) {
	p := e.p
	nr := 2
	if e.key.AADestStencil {
		nr++
	}

	p.Push()
	p.SetExecSize(8)
	for ch := 0; ch < 4; ch++ {
		p.SetCompression(eu.CompressNone)
		p.MOV(eu.MRF(nr+ch), arg[0][ch])
		p.SetCompression(eu.CompressSecHalf)
		p.MOV(eu.MRF(nr+ch+4), sechalf(arg[0][ch]))
	}
	p.Pop()
	nr += 8

	if e.key.SourceDepthToRT {
		src := arg[1][0]
		if !arg[2][2].IsNull() {
			src = arg[2][2]
		}
		if !src.IsNull() {
			p.MOV(eu.MRF(nr), src)
		}
		nr += 2
	}

	if e.key.DestDepth {
		p.MOV(eu.MRF(nr), arg[1][2])
		nr += 2
	}

	if e.key.AADestStencil {
		p.Push()
		p.SetExecSize(8)
		p.SetCompression(eu.CompressNone)
		p.MOV(eu.MRF(2), arg[1][1])
		p.Pop()
	}

	// Pass the control information through to the header.
	p.Push()
	p.SetMaskControl(eu.MaskDisable)
	p.SetCompression(eu.CompressNone)
	p.SetExecSize(8)
	p.MOV(eu.MRF(1).Retype(eu.TypeUD), eu.GRF(1).Retype(eu.TypeUD))
	p.Pop()

	//nolint:gosec // G115: message length is at most 15
	p.FBWrite(0, eu.GRF(0), eu.DPRenderTargetBindingBase+in.Target, uint8(nr), in.EOT)
}
