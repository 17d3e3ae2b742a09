package wm

import (
	"fmt"
	"strings"

	"github.com/gogpu/statecc/shader"
)

// Synthesized opcodes for the fixed-function prologue and epilogue.
const (
	OpPixelXY shader.Opcode = shader.NumOpcodes + iota
	OpDeltaXY
	OpPixelW
	OpLinterp
	OpPinterp
	OpCinterp
	OpWPosXY
	OpFrontFacing
	OpFBWrite
)

var synthNames = [...]string{
	"PIXELXY", "DELTAXY", "PIXELW", "LINTERP", "PINTERP", "CINTERP",
	"WPOSXY", "FRONTFACING", "FB_WRITE",
}

func opName(op shader.Opcode) string {
	if op >= OpPixelXY && int(op-OpPixelXY) < len(synthNames) {
		return synthNames[op-OpPixelXY]
	}
	return op.String()
}

// ValueID indexes the value arena.
type ValueID int32

// NoValue marks an unused destination channel or source slot.
const NoValue ValueID = -1

type valueKind uint8

const (
	valueUndef valueKind = iota
	valuePayload
	valueParam
	valueTemp
)

// reader records one source slot that reads a value. inst is -1 once the
// read has been unlinked.
type reader struct {
	inst, src, ch int32
}

// Value is one channel of sixteen pixels, produced once.
type Value struct {
	kind        valueKind
	def         int // defining instruction, -1 for non-temps
	contributes bool
	readers     []reader
	live        int

	payloadReg int // first register of a payload value
	param      int // parameter index of a CURBE value

	reg       int // first register of the pair once allocated
	resident  bool
	spillSlot int // 0: never spilled (or the undefined value)
}

// Readers returns the number of instructions still reading v.
func (v *Value) Readers() int { return v.live }

// Contributes reports whether v reaches a side effect.
func (v *Value) Contributes() bool { return v.contributes }

// Ref is a source slot.
type Ref struct {
	Value  ValueID
	Negate bool
	Abs    bool

	unspill int // register pair the value is reloaded into, 0 if resident
}

var noRef = Ref{Value: NoValue}

// Instruction is one IR instruction. Each destination channel names the
// value it defines, each source channel the value it reads.
type Instruction struct {
	Op        shader.Opcode
	Dst       [4]ValueID
	WriteMask uint8
	Saturate  bool
	Src       [3][4]Ref

	TexUnit   uint8
	TexTarget shader.TexTarget
	Target    uint8 // render target of an FB write
	EOT       bool

	User bool // translated from a program instruction
	Dead bool

	block int // first register of a texture response
}

// Param is one scalar CURBE parameter.
type Param struct {
	Source  ParamSource
	Index   int     // constant index for ParamConstant
	Channel uint8   // constant channel for ParamConstant
	Value   float32 // literal for ParamImmediate
}

// ParamSource says where a parameter's value comes from.
type ParamSource uint8

// Parameter sources.
const (
	ParamConstant ParamSource = iota
	ParamImmediate
)

func (p Param) String() string {
	if p.Source == ParamImmediate {
		return fmt.Sprintf("imm(%g)", p.Value)
	}
	return fmt.Sprintf("const[%d].%c", p.Index, "xyzw"[p.Channel&3])
}

// ir is the per-compile instruction list and value arena.
type ir struct {
	values []Value
	insts  []Instruction
	params []Param
	undef  ValueID
}

func newIR() *ir {
	c := &ir{}
	c.undef = c.newValue(valueUndef)
	return c
}

func (c *ir) newValue(kind valueKind) ValueID {
	//nolint:gosec // G115: arena size is bounded by program size
	id := ValueID(len(c.values))
	c.values = append(c.values, Value{kind: kind, def: -1, reg: -1})
	return id
}

func (c *ir) value(id ValueID) *Value { return &c.values[id] }

// add appends in, links its sources and records the definitions.
func (c *ir) add(in Instruction) int {
	idx := len(c.insts)
	in.WriteMask = 0
	for ch, v := range in.Dst {
		if v != NoValue {
			in.WriteMask |= 1 << ch
			c.values[v].def = idx
		}
	}
	c.insts = append(c.insts, in)
	for s := range in.Src {
		for ch, r := range in.Src[s] {
			if r.Value != NoValue {
				c.link(idx, s, ch, r.Value)
			}
		}
	}
	return idx
}

//nolint:gosec // G115: instruction and slot indices are small
func (c *ir) link(inst, src, ch int, v ValueID) {
	val := &c.values[v]
	val.readers = append(val.readers, reader{int32(inst), int32(src), int32(ch)})
	val.live++
}

// unlink drops one source slot and tombstones its reader record.
func (c *ir) unlink(inst, src, ch int) {
	r := &c.insts[inst].Src[src][ch]
	if r.Value == NoValue {
		return
	}
	val := &c.values[r.Value]
	for i := range val.readers {
		rd := &val.readers[i]
		if int(rd.inst) == inst && int(rd.src) == src && int(rd.ch) == ch {
			rd.inst = -1
			val.live--
			break
		}
	}
	*r = noRef
}

// kill tombstones instruction i and unlinks all its sources.
func (c *ir) kill(i int) {
	in := &c.insts[i]
	for s := range in.Src {
		for ch := range in.Src[s] {
			c.unlink(i, s, ch)
		}
	}
	for ch := range in.Dst {
		in.Dst[ch] = NoValue
	}
	in.WriteMask = 0
	in.Dead = true
}

// liveReaders calls fn for every reader not unlinked.
func (c *ir) liveReaders(v ValueID, fn func(inst int)) {
	for _, rd := range c.values[v].readers {
		if rd.inst >= 0 {
			fn(int(rd.inst))
		}
	}
}

// lastUse returns the last instruction reading v, or -1.
func (c *ir) lastUse(v ValueID) int {
	last := -1
	c.liveReaders(v, func(i int) { last = max(last, i) })
	return last
}

// nextUse returns the first instruction after i reading v, or -1.
func (c *ir) nextUse(v ValueID, i int) int {
	next := -1
	c.liveReaders(v, func(j int) {
		if j > i && (next < 0 || j < next) {
			next = j
		}
	})
	return next
}

// Live returns the instructions that survived dead-code elimination.
func (c *ir) live() []int {
	var out []int
	for i := range c.insts {
		if !c.insts[i].Dead {
			out = append(out, i)
		}
	}
	return out
}

// dump formats the IR for debug logs.
func (c *ir) dump() string {
	var sb strings.Builder
	for i := range c.insts {
		in := &c.insts[i]
		if in.Dead {
			continue
		}
		fmt.Fprintf(&sb, "%3d: %s", i, opName(in.Op))
		if in.Saturate {
			sb.WriteString("_SAT")
		}
		sb.WriteString(" [")
		for ch, v := range in.Dst {
			if ch > 0 {
				sb.WriteByte(' ')
			}
			if v == NoValue {
				sb.WriteByte('_')
			} else {
				fmt.Fprintf(&sb, "v%d", v)
			}
		}
		sb.WriteByte(']')
		for s := range in.Src {
			var parts []string
			for _, r := range in.Src[s] {
				if r.Value == NoValue {
					parts = append(parts, "_")
					continue
				}
				p := fmt.Sprintf("v%d", r.Value)
				if r.Negate {
					p = "-" + p
				}
				parts = append(parts, p)
			}
			if strings.Trim(strings.Join(parts, ""), "_") != "" {
				fmt.Fprintf(&sb, " (%s)", strings.Join(parts, " "))
			}
		}
		sb.WriteByte('\n')
	}
	return sb.String()
}
