package eu

import (
	"github.com/gogpu/statecc/internal/bitfield"
)

// state is the set of execution controls applied to every new instruction.
type state struct {
	execSize    uint8
	compression uint8
	predicate   uint8
	predInverse bool
	maskControl uint8
	condMod     CondMod
	saturate    bool
}

// Compiler accumulates native instructions. Execution controls are sticky:
// they apply to every instruction appended until changed, and Push/Pop save
// and restore them around short sequences.
type Compiler struct {
	insts []Inst
	cur   state
	stack []state
}

// NewCompiler returns a compiler defaulting to SIMD-8, uncompressed,
// unpredicated execution.
func NewCompiler() *Compiler {
	return &Compiler{cur: state{execSize: 8}}
}

// Reset discards all instructions and restores the default controls.
func (c *Compiler) Reset() {
	c.insts = c.insts[:0]
	c.cur = state{execSize: 8}
	c.stack = c.stack[:0]
}

// Push saves the current execution controls.
func (c *Compiler) Push() { c.stack = append(c.stack, c.cur) }

// Pop restores the controls saved by the matching Push.
func (c *Compiler) Pop() {
	n := len(c.stack) - 1
	c.cur = c.stack[n]
	c.stack = c.stack[:n]
}

// SetExecSize sets the channel count of following instructions.
func (c *Compiler) SetExecSize(n uint8) {
	execSizeEnc(n)
	c.cur.execSize = n
}

// SetCompression sets the compression control.
func (c *Compiler) SetCompression(v uint8) { c.cur.compression = v }

// SetPredicate sets the predicate control and its inversion.
func (c *Compiler) SetPredicate(p uint8, inverse bool) {
	c.cur.predicate, c.cur.predInverse = p, inverse
}

// SetMaskControl enables or disables the channel execution mask.
func (c *Compiler) SetMaskControl(m uint8) { c.cur.maskControl = m }

// SetCondMod sets the conditional modifier.
func (c *Compiler) SetCondMod(m CondMod) { c.cur.condMod = m }

// SetSaturate sets result saturation.
func (c *Compiler) SetSaturate(on bool) { c.cur.saturate = on }

// Len returns the number of instructions.
func (c *Compiler) Len() int { return len(c.insts) }

// Insts returns the accumulated instructions.
func (c *Compiler) Insts() []Inst { return c.insts }

// Words returns the encoded program.
func (c *Compiler) Words() []uint32 {
	out := make([]uint32, 0, len(c.insts)*4)
	for i := range c.insts {
		w := c.insts[i].Encode()
		out = append(out, w[:]...)
	}
	return out
}

// Bytes returns the encoded program as little-endian bytes.
func (c *Compiler) Bytes() []byte {
	return bitfield.AppendWords(make([]byte, 0, len(c.insts)*InstSize), c.Words())
}

func (c *Compiler) next(op Opcode) *Inst {
	c.insts = append(c.insts, Inst{
		Op:          op,
		ExecSize:    c.cur.execSize,
		Compression: c.cur.compression,
		Predicate:   c.cur.predicate,
		PredInverse: c.cur.predInverse,
		MaskControl: c.cur.maskControl,
		CondMod:     c.cur.condMod,
		Saturate:    c.cur.saturate,
	})
	return &c.insts[len(c.insts)-1]
}

func (c *Compiler) alu1(op Opcode, dst, src Reg) *Inst {
	in := c.next(op)
	in.Dst, in.Src0 = dst, src
	in.Src1 = Null()
	return in
}

func (c *Compiler) alu2(op Opcode, dst, s0, s1 Reg) *Inst {
	if s0.IsImm() {
		panic("eu: immediate only allowed in the second source of " + op.String())
	}
	in := c.next(op)
	in.Dst, in.Src0, in.Src1 = dst, s0, s1
	return in
}

// =============================================================================
// ALU instructions
// =============================================================================

func (c *Compiler) MOV(dst, src Reg) *Inst     { return c.alu1(OpMOV, dst, src) }
func (c *Compiler) NOT(dst, src Reg) *Inst     { return c.alu1(OpNOT, dst, src) }
func (c *Compiler) FRC(dst, src Reg) *Inst     { return c.alu1(OpFRC, dst, src) }
func (c *Compiler) RNDD(dst, src Reg) *Inst    { return c.alu1(OpRNDD, dst, src) }
func (c *Compiler) RNDZ(dst, src Reg) *Inst    { return c.alu1(OpRNDZ, dst, src) }
func (c *Compiler) RNDE(dst, src Reg) *Inst    { return c.alu1(OpRNDE, dst, src) }
func (c *Compiler) SEL(dst, a, b Reg) *Inst    { return c.alu2(OpSEL, dst, a, b) }
func (c *Compiler) AND(dst, a, b Reg) *Inst    { return c.alu2(OpAND, dst, a, b) }
func (c *Compiler) OR(dst, a, b Reg) *Inst     { return c.alu2(OpOR, dst, a, b) }
func (c *Compiler) XOR(dst, a, b Reg) *Inst    { return c.alu2(OpXOR, dst, a, b) }
func (c *Compiler) ADD(dst, a, b Reg) *Inst    { return c.alu2(OpADD, dst, a, b) }
func (c *Compiler) MUL(dst, a, b Reg) *Inst    { return c.alu2(OpMUL, dst, a, b) }
func (c *Compiler) MAC(dst, a, b Reg) *Inst    { return c.alu2(OpMAC, dst, a, b) }
func (c *Compiler) LINE(dst, a, b Reg) *Inst   { return c.alu2(OpLINE, dst, a, b) }
func (c *Compiler) PLN(dst, a, b Reg) *Inst    { return c.alu2(OpPLN, dst, a, b) }
func (c *Compiler) DP3(dst, a, b Reg) *Inst    { return c.alu2(OpDP3, dst, a, b) }
func (c *Compiler) DP4(dst, a, b Reg) *Inst    { return c.alu2(OpDP4, dst, a, b) }
func (c *Compiler) DPH(dst, a, b Reg) *Inst    { return c.alu2(OpDPH, dst, a, b) }
func (c *Compiler) NOP() *Inst                 { return c.alu1(OpNOP, Null(), Null()) }

// CMP compares a and b and writes the flag register; dst is usually Null.
func (c *Compiler) CMP(dst Reg, cond CondMod, a, b Reg) *Inst {
	in := c.alu2(OpCMP, dst, a, b)
	in.CondMod = cond
	return in
}

// =============================================================================
// Messages
// =============================================================================

// Send appends a SEND with message payload starting at m<msgReg>.
func (c *Compiler) Send(dst Reg, msgReg int, src0 Reg, desc uint32) *Inst {
	in := c.next(OpSEND)
	in.Dst, in.Src0 = dst, src0
	//nolint:gosec // G115: message registers are below 16
	in.MsgReg = uint8(msgReg)
	in.Desc = desc
	return in
}

// Math issues one SIMD-8 extended math message. The operand must already
// sit in m<msgReg> (and m<msgReg+1> for two-operand functions) unless src
// is passed as the implied move source.
func (c *Compiler) Math(dst Reg, fn MathFunc, msgReg int, src Reg, precision uint8) *Inst {
	msgLen := uint8(1)
	if fn == MathPow {
		msgLen = 2
	}
	respLen := uint8(1)
	if fn == MathSinCos {
		respLen = 2
	}
	dataType := MathDataVector
	if src.Width == 0 {
		dataType = MathDataScalar
	}
	desc := MathDesc(fn, c.cur.saturate, dataType, precision, respLen, msgLen)

	c.Push()
	c.cur.saturate = false
	in := c.Send(dst, msgReg, src, desc)
	c.Pop()
	return in
}

// Math16 issues the two SIMD-8 halves of a SIMD-16 math operation: the
// first half reads m<msgReg> and writes dst, the second reads
// m<msgReg+1> and writes dst+1 under second-half compression.
func (c *Compiler) Math16(dst Reg, fn MathFunc, msgReg int, src Reg, precision uint8) {
	c.Push()
	c.SetExecSize(8)
	c.SetCompression(CompressNone)
	c.SetPredicate(PredNone, false)
	c.Math(dst, fn, msgReg, src, precision)
	c.SetCompression(CompressSecHalf)
	c.Math(dst.Offset(1), fn, msgReg+1, src.Offset(1), precision)
	c.Pop()
}

// Sample sends a SIMD-16 sampler message.
func (c *Compiler) Sample(dst Reg, msgReg int, src0 Reg, bindingTable, sampler, msgType, respLen, msgLen uint8) *Inst {
	c.Push()
	c.SetExecSize(16)
	c.SetCompression(CompressNone)
	in := c.Send(dst.Retype(TypeUW), msgReg, src0.Retype(TypeUW),
		SamplerDesc(bindingTable, sampler, msgType, respLen, msgLen))
	c.Pop()
	return in
}

// FBWrite sends a SIMD-16 render target write; m<msgReg> and m<msgReg+1>
// must hold the header.
func (c *Compiler) FBWrite(msgReg int, src0 Reg, bindingTable, msgLen uint8, eot bool) *Inst {
	c.Push()
	c.SetExecSize(16)
	c.SetCompression(CompressNone)
	c.SetMaskControl(MaskEnable)
	in := c.Send(Null().Retype(TypeUW), msgReg, src0.Retype(TypeUW),
		DPWriteDesc(bindingTable, DPRenderTargetSIMD16, DPWriteMsgRenderTarget, false, 0, msgLen, eot))
	c.Pop()
	return in
}

// scratchHeader loads m1 with the thread payload header and the scratch
// byte offset.
func (c *Compiler) scratchHeader(offset uint32) {
	c.Push()
	c.SetExecSize(8)
	c.SetCompression(CompressNone)
	c.SetMaskControl(MaskDisable)
	c.SetPredicate(PredNone, false)
	c.MOV(MRF(1).Retype(TypeUD), GRF(0).Retype(TypeUD))
	c.SetExecSize(1)
	c.MOV(Vec1(MRF(1)).Retype(TypeUD).Suboffset(2), ImmUD(offset))
	c.Pop()
}

// ScratchWrite stores the register pair in m2..m3 to scratch at offset.
func (c *Compiler) ScratchWrite(offset uint32) *Inst {
	c.scratchHeader(offset)
	c.Push()
	c.SetExecSize(16)
	c.SetCompression(CompressNone)
	c.SetMaskControl(MaskDisable)
	in := c.Send(Null().Retype(TypeUW), 1, GRF(0).Retype(TypeUW),
		DPWriteDesc(DPScratchBindingTable, DPOWordBlock4, DPWriteMsgOWordBlock, false, 0, 3, false))
	c.Pop()
	return in
}

// ScratchRead loads a register pair from scratch at offset into dst.
func (c *Compiler) ScratchRead(dst Reg, offset uint32) *Inst {
	c.scratchHeader(offset)
	c.Push()
	c.SetExecSize(16)
	c.SetCompression(CompressNone)
	c.SetMaskControl(MaskDisable)
	in := c.Send(dst.Retype(TypeUW), 1, GRF(0).Retype(TypeUW),
		DPReadDesc(DPScratchBindingTable, DPOWordBlock4, DPReadMsgOWordBlock, DPReadTargetDataCache, 2, 1))
	c.Pop()
	return in
}

// URBWrite writes msgLen registers from m<msgReg> to the URB.
func (c *Compiler) URBWrite(dst Reg, msgReg int, src0 Reg, offset, msgLen, respLen uint8, allocate, used, complete, eot bool) *Inst {
	c.Push()
	c.SetExecSize(8)
	c.SetCompression(CompressNone)
	c.SetMaskControl(MaskDisable)
	in := c.Send(dst, msgReg, src0.Retype(TypeUD),
		URBDesc(offset, URBSwizzleInterleave, allocate, used, complete, respLen, msgLen, eot))
	c.Pop()
	return in
}
