package eu

import (
	"math/bits"

	"github.com/gogpu/statecc/internal/bitfield"
)

// Inst is one decoded native instruction.
type Inst struct {
	Op          Opcode
	ExecSize    uint8 // 1, 2, 4, 8 or 16 channels
	Compression uint8
	Predicate   uint8
	PredInverse bool
	MaskControl uint8
	CondMod     CondMod
	Saturate    bool

	Dst  Reg
	Src0 Reg
	Src1 Reg

	// SEND only: the first message register and the message descriptor.
	MsgReg uint8
	Desc   uint32
}

// Header dword.
var (
	fOpcode      = bitfield.F("opcode", 0, 0, 6)
	fMaskControl = bitfield.Bit("mask_control", 0, 9)
	fCompression = bitfield.F("compression_control", 0, 12, 13)
	fPredicate   = bitfield.F("predicate_control", 0, 16, 19)
	fPredInverse = bitfield.Bit("predicate_inverse", 0, 20)
	fExecSize    = bitfield.F("execution_size", 0, 21, 23)
	fCondMod     = bitfield.F("destreg__conditionalmod", 0, 24, 27)
	fSaturate    = bitfield.Bit("saturate", 0, 31)
)

// Operand dword.
var (
	fDstFile    = bitfield.F("dest_reg_file", 1, 0, 1)
	fDstType    = bitfield.F("dest_reg_type", 1, 2, 4)
	fSrc0File   = bitfield.F("src0_reg_file", 1, 5, 6)
	fSrc0Type   = bitfield.F("src0_reg_type", 1, 7, 9)
	fSrc1File   = bitfield.F("src1_reg_file", 1, 10, 11)
	fSrc1Type   = bitfield.F("src1_reg_type", 1, 12, 14)
	fDstSubnr   = bitfield.F("dest_subreg_nr", 1, 16, 20)
	fDstNr      = bitfield.F("dest_reg_nr", 1, 21, 28)
	fDstHStride = bitfield.F("dest_horiz_stride", 1, 29, 30)
)

// srcFields describes a direct-addressed source in dword 2 or 3.
type srcFields struct {
	subnr, nr, abs, negate, hstride, width, vstride bitfield.Field
}

func newSrcFields(prefix string, dw int) srcFields {
	return srcFields{
		subnr:   bitfield.F(prefix+"_subreg_nr", dw, 0, 4),
		nr:      bitfield.F(prefix+"_reg_nr", dw, 5, 12),
		abs:     bitfield.Bit(prefix+"_abs", dw, 13),
		negate:  bitfield.Bit(prefix+"_negate", dw, 14),
		hstride: bitfield.F(prefix+"_horiz_stride", dw, 16, 17),
		width:   bitfield.F(prefix+"_width", dw, 18, 20),
		vstride: bitfield.F(prefix+"_vert_stride", dw, 21, 24),
	}
}

var (
	fSrc0 = newSrcFields("src0", 2)
	fSrc1 = newSrcFields("src1", 3)
)

// Encode packs the instruction into four little-endian dwords.
func (in *Inst) Encode() [4]uint32 {
	r := bitfield.NewRecord(4)

	r.Set(fOpcode, uint32(in.Op))
	r.Set(fMaskControl, uint32(in.MaskControl))
	r.Set(fCompression, uint32(in.Compression))
	r.Set(fPredicate, uint32(in.Predicate))
	r.SetBool(fPredInverse, in.PredInverse)
	r.Set(fExecSize, execSizeEnc(in.ExecSize))
	if in.Op == OpSEND {
		r.Set(fCondMod, uint32(in.MsgReg))
	} else {
		r.Set(fCondMod, uint32(in.CondMod))
	}
	r.SetBool(fSaturate, in.Saturate)

	r.Set(fDstFile, uint32(in.Dst.File))
	r.Set(fDstType, uint32(in.Dst.Type))
	r.Set(fDstSubnr, uint32(in.Dst.Subnr))
	r.Set(fDstNr, uint32(in.Dst.Nr))
	hs := in.Dst.HStride
	if hs == 0 {
		hs = 1
	}
	r.Set(fDstHStride, uint32(hs))

	r.Set(fSrc0File, uint32(in.Src0.File))
	r.Set(fSrc0Type, uint32(in.Src0.Type))

	switch {
	case in.Op == OpSEND:
		setSrc(r, fSrc0, in.Src0)
		r.Set(fSrc1File, uint32(FileIMM))
		r.Set(fSrc1Type, uint32(TypeUD))
		r.SetWord(3, in.Desc)
	case in.Src0.IsImm():
		r.Set(fSrc1File, uint32(FileARF))
		r.Set(fSrc1Type, uint32(in.Src0.Type))
		r.SetWord(3, in.Src0.Imm)
	default:
		setSrc(r, fSrc0, in.Src0)
		r.Set(fSrc1File, uint32(in.Src1.File))
		r.Set(fSrc1Type, uint32(in.Src1.Type))
		if in.Src1.IsImm() {
			r.SetWord(3, in.Src1.Imm)
		} else {
			setSrc(r, fSrc1, in.Src1)
		}
	}

	var out [4]uint32
	copy(out[:], r.Words())
	return out
}

func setSrc(r *bitfield.Record, f srcFields, s Reg) {
	r.Set(f.subnr, uint32(s.Subnr))
	r.Set(f.nr, uint32(s.Nr))
	r.SetBool(f.abs, s.Abs)
	r.SetBool(f.negate, s.Negate)
	r.Set(f.hstride, uint32(s.HStride))
	r.Set(f.width, uint32(s.Width))
	r.Set(f.vstride, uint32(s.VStride))
}

func getSrc(r *bitfield.Record, f srcFields, file RegFile, t RegType) Reg {
	//nolint:gosec // G115: fields are at most 8 bits wide
	return Reg{
		File:    file,
		Type:    t,
		Subnr:   uint8(r.Get(f.subnr)),
		Nr:      uint8(r.Get(f.nr)),
		Abs:     r.Get(f.abs) != 0,
		Negate:  r.Get(f.negate) != 0,
		HStride: uint8(r.Get(f.hstride)),
		Width:   uint8(r.Get(f.width)),
		VStride: uint8(r.Get(f.vstride)),
	}
}

// Decode unpacks four dwords produced by Encode.
//
//nolint:gosec // G115: decoded fields are narrower than their targets
func Decode(w [4]uint32) Inst {
	r := bitfield.NewRecord(4)
	for i, v := range w {
		r.SetWord(i, v)
	}

	in := Inst{
		Op:          Opcode(r.Get(fOpcode)),
		MaskControl: uint8(r.Get(fMaskControl)),
		Compression: uint8(r.Get(fCompression)),
		Predicate:   uint8(r.Get(fPredicate)),
		PredInverse: r.Get(fPredInverse) != 0,
		ExecSize:    uint8(1) << r.Get(fExecSize),
		Saturate:    r.Get(fSaturate) != 0,
	}
	if in.Op == OpSEND {
		in.MsgReg = uint8(r.Get(fCondMod))
	} else {
		in.CondMod = CondMod(r.Get(fCondMod))
	}

	in.Dst = Reg{
		File:    RegFile(r.Get(fDstFile)),
		Type:    RegType(r.Get(fDstType)),
		Subnr:   uint8(r.Get(fDstSubnr)),
		Nr:      uint8(r.Get(fDstNr)),
		HStride: uint8(r.Get(fDstHStride)),
	}

	f0, t0 := RegFile(r.Get(fSrc0File)), RegType(r.Get(fSrc0Type))
	f1, t1 := RegFile(r.Get(fSrc1File)), RegType(r.Get(fSrc1Type))
	switch {
	case in.Op == OpSEND:
		in.Src0 = getSrc(r, fSrc0, f0, t0)
		in.Desc = w[3]
	case f0 == FileIMM:
		in.Src0 = Vec1(Reg{File: FileIMM, Type: t0, Imm: w[3]})
	default:
		in.Src0 = getSrc(r, fSrc0, f0, t0)
		if f1 == FileIMM {
			in.Src1 = Vec1(Reg{File: FileIMM, Type: t1, Imm: w[3]})
		} else {
			in.Src1 = getSrc(r, fSrc1, f1, t1)
		}
	}
	return in
}

func execSizeEnc(n uint8) uint32 {
	if n == 0 || n&(n-1) != 0 || n > 16 {
		panic("eu: execution size must be 1, 2, 4, 8 or 16")
	}
	//nolint:gosec // G115: trailing zeros of a byte
	return uint32(bits.TrailingZeros8(n))
}

// =============================================================================
// Message descriptors
// =============================================================================

var (
	dFunction = bitfield.F("function_control", 0, 0, 15)
	dRespLen  = bitfield.F("response_length", 0, 16, 19)
	dMsgLen   = bitfield.F("msg_length", 0, 20, 23)
	dTarget   = bitfield.F("msg_target", 0, 24, 27)
	dEOT      = bitfield.Bit("end_of_thread", 0, 31)

	dMathFunction  = bitfield.F("function", 0, 0, 3)
	dMathPrecision = bitfield.Bit("precision", 0, 5)
	dMathSaturate  = bitfield.Bit("saturate", 0, 6)
	dMathDataType  = bitfield.Bit("data_type", 0, 7)

	dBindingTable = bitfield.F("binding_table_index", 0, 0, 7)
	dSampler      = bitfield.F("sampler", 0, 8, 11)
	dReturnFormat = bitfield.F("return_format", 0, 12, 13)
	dSamplerMsg   = bitfield.F("msg_type", 0, 14, 15)

	dDPMsgControl  = bitfield.F("msg_control", 0, 8, 11)
	dDPWriteMsg    = bitfield.F("msg_type", 0, 12, 14)
	dDPWriteCommit = bitfield.Bit("send_commit_msg", 0, 15)
	dDPReadMsg     = bitfield.F("msg_type", 0, 12, 13)
	dDPReadCache   = bitfield.F("target_cache", 0, 14, 15)

	dURBOpcode   = bitfield.F("opcode", 0, 0, 3)
	dURBOffset   = bitfield.F("offset", 0, 4, 9)
	dURBSwizzle  = bitfield.F("swizzle_control", 0, 10, 11)
	dURBAllocate = bitfield.Bit("allocate", 0, 13)
	dURBUsed     = bitfield.Bit("used", 0, 14)
	dURBComplete = bitfield.Bit("complete", 0, 15)
)

func newDesc(target MsgTarget, respLen, msgLen uint8, eot bool) *bitfield.Record {
	r := bitfield.NewRecord(1)
	r.Set(dTarget, uint32(target))
	r.Set(dRespLen, uint32(respLen))
	r.Set(dMsgLen, uint32(msgLen))
	r.SetBool(dEOT, eot)
	return r
}

// MathDesc builds an extended-math message descriptor.
func MathDesc(fn MathFunc, sat bool, dataType, precision, respLen, msgLen uint8) uint32 {
	r := newDesc(TargetMath, respLen, msgLen, false)
	r.Set(dMathFunction, uint32(fn))
	r.Set(dMathPrecision, uint32(precision))
	r.SetBool(dMathSaturate, sat)
	r.Set(dMathDataType, uint32(dataType))
	return r.Word(0)
}

// SamplerDesc builds a sampler message descriptor.
func SamplerDesc(bindingTable, sampler, msgType, respLen, msgLen uint8) uint32 {
	r := newDesc(TargetSampler, respLen, msgLen, false)
	r.Set(dBindingTable, uint32(bindingTable))
	r.Set(dSampler, uint32(sampler))
	r.Set(dReturnFormat, uint32(SamplerReturnFloat32))
	r.Set(dSamplerMsg, uint32(msgType))
	return r.Word(0)
}

// DPWriteDesc builds a dataport write descriptor.
func DPWriteDesc(bindingTable, msgControl, msgType uint8, commit bool, respLen, msgLen uint8, eot bool) uint32 {
	r := newDesc(TargetDataportWrite, respLen, msgLen, eot)
	r.Set(dBindingTable, uint32(bindingTable))
	r.Set(dDPMsgControl, uint32(msgControl))
	r.Set(dDPWriteMsg, uint32(msgType))
	r.SetBool(dDPWriteCommit, commit)
	return r.Word(0)
}

// DPReadDesc builds a dataport read descriptor.
func DPReadDesc(bindingTable, msgControl, msgType, targetCache, respLen, msgLen uint8) uint32 {
	r := newDesc(TargetDataportRead, respLen, msgLen, false)
	r.Set(dBindingTable, uint32(bindingTable))
	r.Set(dDPMsgControl, uint32(msgControl))
	r.Set(dDPReadMsg, uint32(msgType))
	r.Set(dDPReadCache, uint32(targetCache))
	return r.Word(0)
}

// URBDesc builds a URB write descriptor.
func URBDesc(offset, swizzle uint8, allocate, used, complete bool, respLen, msgLen uint8, eot bool) uint32 {
	r := newDesc(TargetURB, respLen, msgLen, eot)
	r.Set(dURBOpcode, 0)
	r.Set(dURBOffset, uint32(offset))
	r.Set(dURBSwizzle, uint32(swizzle))
	r.SetBool(dURBAllocate, allocate)
	r.SetBool(dURBUsed, used)
	r.SetBool(dURBComplete, complete)
	return r.Word(0)
}

// DescTarget extracts the shared function from a descriptor.
func DescTarget(desc uint32) MsgTarget { return MsgTarget(desc >> 24 & 0xf) }

// DescEOT reports whether a descriptor ends the thread.
func DescEOT(desc uint32) bool { return desc>>31 != 0 }

// DescLengths returns the message and response lengths of a descriptor.
//
//nolint:gosec // G115: 4-bit fields
func DescLengths(desc uint32) (msgLen, respLen uint8) {
	return uint8(desc >> 20 & 0xf), uint8(desc >> 16 & 0xf)
}
