// Package shader defines the intermediate fragment-program representation
// consumed by the native code generator.
//
// A Program is a straight-line list of vec4 instructions over register
// files (temporaries, interpolated inputs, outputs, uniform constants and
// literal immediates), in the style of assembly-level shading languages.
// Sources carry a swizzle and per-channel negation; destinations carry a
// write mask.
//
// Example:
//
//	p := shader.NewProgram()
//	p.DeclareInput(shader.InputColor0, shader.InterpPerspective)
//	p.Add(shader.OpMUL, shader.Out(0), shader.In(shader.InputColor0), shader.Const(0))
package shader

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"strings"
)

// Sentinel errors returned by Validate.
var (
	ErrBadOpcode   = errors.New("shader: unknown opcode")
	ErrBadOperand  = errors.New("shader: operand out of range")
	ErrMissingDst  = errors.New("shader: destination required")
	ErrUnreadInput = errors.New("shader: input read but not declared")

	// ErrUnsupportedOpcode is returned for flow control and address
	// register opcodes, which the fragment back end cannot lower.
	ErrUnsupportedOpcode = errors.New("shader: unsupported opcode")
)

// File is a register file.
type File uint8

// Register files.
const (
	FileNone File = iota
	FileTemp
	FileInput
	FileOutput
	FileConst
	FileImmediate
	FileAddress
)

var fileNames = [...]string{"NONE", "TEMP", "IN", "OUT", "CONST", "IMM", "ADDR"}

func (f File) String() string {
	if int(f) < len(fileNames) {
		return fileNames[f]
	}
	return "?"
}

// Limits of the register files.
const (
	MaxTemps     = 64
	MaxInputs    = 16
	MaxConsts    = 64
	MaxColorOuts = 4
)

// Fixed input slots. Generic varyings use InputVar(n).
const (
	InputPosition = 0
	InputColor0   = 1
	InputColor1   = 2
	InputFog      = 3
	InputFace     = 4
	InputTex0     = 5
)

// InputVar returns the input slot of generic varying n.
func InputVar(n int) int { return InputTex0 + n }

// OutputDepth is the output index of the fragment depth. Depth is taken
// from its Z channel.
const OutputDepth = 8

// Write masks.
const (
	WriteX    uint8 = 1 << 0
	WriteY    uint8 = 1 << 1
	WriteZ    uint8 = 1 << 2
	WriteW    uint8 = 1 << 3
	WriteXY         = WriteX | WriteY
	WriteXYZ        = WriteX | WriteY | WriteZ
	WriteXYZW       = WriteX | WriteY | WriteZ | WriteW
)

// Swizzle selectors. SwizzleZero and SwizzleOne read constant 0 and 1.
const (
	SwizzleX uint8 = iota
	SwizzleY
	SwizzleZ
	SwizzleW
	SwizzleZero
	SwizzleOne
)

// Identity is the no-op swizzle.
var Identity = [4]uint8{SwizzleX, SwizzleY, SwizzleZ, SwizzleW}

// Interp selects how an input is interpolated across a primitive.
type Interp uint8

// Interpolation modes.
const (
	InterpPerspective Interp = iota
	InterpLinear
	InterpConstant
)

func (m Interp) String() string {
	switch m {
	case InterpLinear:
		return "linear"
	case InterpConstant:
		return "constant"
	default:
		return "perspective"
	}
}

// Src is a source operand.
type Src struct {
	File    File
	Index   int
	Swizzle [4]uint8
	Negate  uint8 // per-channel mask
	Abs     bool
}

// Dst is a destination operand.
type Dst struct {
	File      File
	Index     int
	WriteMask uint8
}

// Temp returns temporary register i with an identity swizzle.
func Temp(i int) Src { return Src{File: FileTemp, Index: i, Swizzle: Identity} }

// In returns input slot i.
func In(i int) Src { return Src{File: FileInput, Index: i, Swizzle: Identity} }

// Const returns uniform constant i.
func Const(i int) Src { return Src{File: FileConst, Index: i, Swizzle: Identity} }

// Imm returns immediate i of the program's immediate table.
func Imm(i int) Src { return Src{File: FileImmediate, Index: i, Swizzle: Identity} }

// TempDst returns a full-mask destination for temporary i.
func TempDst(i int) Dst { return Dst{File: FileTemp, Index: i, WriteMask: WriteXYZW} }

// Out returns a full-mask destination for output i.
func Out(i int) Dst { return Dst{File: FileOutput, Index: i, WriteMask: WriteXYZW} }

// Swz returns s with a swizzle parsed from "xyzw01" letters. A short
// pattern repeats its last letter.
func (s Src) Swz(pattern string) Src {
	if pattern == "" {
		return s
	}
	var out [4]uint8
	for i := range out {
		c := pattern[min(i, len(pattern)-1)]
		var v uint8
		switch c {
		case 'x', 'r':
			v = SwizzleX
		case 'y', 'g':
			v = SwizzleY
		case 'z', 'b':
			v = SwizzleZ
		case 'w', 'a':
			v = SwizzleW
		case '0':
			v = SwizzleZero
		case '1':
			v = SwizzleOne
		default:
			panic(fmt.Sprintf("shader: bad swizzle letter %q", c))
		}
		// Compose with the existing swizzle so Swz chains.
		if v <= SwizzleW {
			v = s.Swizzle[v]
		}
		out[i] = v
	}
	s.Swizzle = out
	return s
}

// Neg returns s with every channel negated.
func (s Src) Neg() Src { s.Negate ^= WriteXYZW; return s }

// Absolute returns s with the absolute-value modifier.
func (s Src) Absolute() Src { s.Abs = true; return s }

// Mask returns d restricted to mask.
func (d Dst) Mask(mask uint8) Dst { d.WriteMask &= mask; return d }

// Instruction is one intermediate instruction.
type Instruction struct {
	Op       Opcode
	Dst      Dst
	Src      [3]Src
	Saturate bool

	TexUnit   uint8
	TexTarget TexTarget
}

// InputDecl declares an interpolated input.
type InputDecl struct {
	Slot   int
	Interp Interp
}

// Program is a fragment program.
type Program struct {
	Instructions []Instruction
	Immediates   [][4]float32
	Inputs       []InputDecl
	NumConsts    int
}

// NewProgram returns an empty program.
func NewProgram() *Program { return &Program{} }

// DeclareInput records that slot is read with the given interpolation.
// Redeclaring a slot replaces its mode.
func (p *Program) DeclareInput(slot int, mode Interp) {
	for i := range p.Inputs {
		if p.Inputs[i].Slot == slot {
			p.Inputs[i].Interp = mode
			return
		}
	}
	p.Inputs = append(p.Inputs, InputDecl{Slot: slot, Interp: mode})
}

// Input returns the declaration of slot.
func (p *Program) Input(slot int) (InputDecl, bool) {
	for _, d := range p.Inputs {
		if d.Slot == slot {
			return d, true
		}
	}
	return InputDecl{}, false
}

// AddImmediate appends a literal vec4, reusing an identical entry, and
// returns a source reading it.
func (p *Program) AddImmediate(v [4]float32) Src {
	for i, e := range p.Immediates {
		if sameBits(e, v) {
			return Imm(i)
		}
	}
	p.Immediates = append(p.Immediates, v)
	return Imm(len(p.Immediates) - 1)
}

// Scalar returns a source that reads f in every channel.
func (p *Program) Scalar(f float32) Src {
	return p.AddImmediate([4]float32{f, f, f, f}).Swz("x")
}

// Add appends an instruction and returns it for further tweaking.
func (p *Program) Add(op Opcode, dst Dst, srcs ...Src) *Instruction {
	in := Instruction{Op: op, Dst: dst}
	copy(in.Src[:], srcs)
	p.Instructions = append(p.Instructions, in)
	return &p.Instructions[len(p.Instructions)-1]
}

// AddTex appends a texture instruction.
func (p *Program) AddTex(op Opcode, dst Dst, coord Src, unit uint8, target TexTarget) *Instruction {
	in := p.Add(op, dst, coord)
	in.TexUnit, in.TexTarget = unit, target
	return in
}

// Validate checks opcodes and operand ranges.
func (p *Program) Validate() error {
	for i, in := range p.Instructions {
		info := in.Op.Info()
		if in.Op >= NumOpcodes {
			return fmt.Errorf("%w: %d at instruction %d", ErrBadOpcode, in.Op, i)
		}
		switch in.Op {
		case OpARL, OpIF, OpELSE, OpENDIF:
			return fmt.Errorf("%w: %s at instruction %d", ErrUnsupportedOpcode, info.Name, i)
		}
		if info.HasDst {
			if in.Dst.File != FileTemp && in.Dst.File != FileOutput {
				return fmt.Errorf("%w: %s at instruction %d", ErrMissingDst, info.Name, i)
			}
			if err := p.checkIndex(in.Dst.File, in.Dst.Index); err != nil {
				return fmt.Errorf("instruction %d dst: %w", i, err)
			}
		}
		for s := 0; s < info.NumSrc; s++ {
			src := in.Src[s]
			if err := p.checkIndex(src.File, src.Index); err != nil {
				return fmt.Errorf("instruction %d src%d: %w", i, s, err)
			}
			for _, sw := range src.Swizzle {
				if sw > SwizzleOne {
					return fmt.Errorf("%w: swizzle %d at instruction %d", ErrBadOperand, sw, i)
				}
			}
			if src.File == FileInput {
				if _, ok := p.Input(src.Index); !ok {
					return fmt.Errorf("%w: IN[%d] at instruction %d", ErrUnreadInput, src.Index, i)
				}
			}
		}
	}
	return nil
}

func (p *Program) checkIndex(f File, idx int) error {
	var limit int
	switch f {
	case FileTemp:
		limit = MaxTemps
	case FileInput:
		limit = MaxInputs
	case FileOutput:
		limit = OutputDepth + 1
	case FileConst:
		limit = p.NumConsts
		if limit == 0 {
			limit = MaxConsts
		}
	case FileImmediate:
		limit = len(p.Immediates)
	case FileAddress:
		limit = 1
	default:
		return fmt.Errorf("%w: file %s", ErrBadOperand, f)
	}
	if idx < 0 || idx >= limit {
		return fmt.Errorf("%w: %s[%d]", ErrBadOperand, f, idx)
	}
	return nil
}

// AppendBinary appends an encoding of everything code generation reads
// from the program. Two programs with equal encodings compile to the same
// kernel.
//
//nolint:gosec // G115: counts and operand indices are validated and small
func (p *Program) AppendBinary(b []byte) ([]byte, error) {
	put := func(v uint32) { b = binary.LittleEndian.AppendUint32(b, v) }
	flag := func(v bool) uint32 {
		if v {
			return 1
		}
		return 0
	}
	put(uint32(len(p.Instructions)))
	for _, in := range p.Instructions {
		put(uint32(in.Op))
		put(uint32(in.Dst.File))
		put(uint32(in.Dst.Index))
		put(uint32(in.Dst.WriteMask))
		for _, s := range in.Src {
			put(uint32(s.File))
			put(uint32(s.Index))
			put(uint32(s.Negate) | flag(s.Abs)<<8)
			put(uint32(s.Swizzle[0]) | uint32(s.Swizzle[1])<<8 | uint32(s.Swizzle[2])<<16 | uint32(s.Swizzle[3])<<24)
		}
		put(flag(in.Saturate)<<16 | uint32(in.TexUnit)<<8 | uint32(in.TexTarget))
	}
	put(uint32(len(p.Immediates)))
	for _, v := range p.Immediates {
		for _, f := range v {
			put(math.Float32bits(f))
		}
	}
	put(uint32(len(p.Inputs)))
	for _, d := range p.Inputs {
		put(uint32(d.Slot))
		put(uint32(d.Interp))
	}
	put(uint32(p.NumConsts))
	return b, nil
}

// Hash returns a 64-bit FNV-1a hash of the AppendBinary encoding.
func (p *Program) Hash() uint64 {
	b, _ := p.AppendBinary(nil)
	h := fnv.New64a()
	_, _ = h.Write(b)
	return h.Sum64()
}

// String returns an assembly listing.
func (p *Program) String() string {
	var sb strings.Builder
	for i, v := range p.Immediates {
		fmt.Fprintf(&sb, "IMM[%d] {%g, %g, %g, %g}\n", i, v[0], v[1], v[2], v[3])
	}
	for _, d := range p.Inputs {
		fmt.Fprintf(&sb, "DCL IN[%d], %s\n", d.Slot, d.Interp)
	}
	for i := range p.Instructions {
		sb.WriteString(p.Instructions[i].String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

// String formats the instruction.
func (in *Instruction) String() string {
	info := in.Op.Info()
	var sb strings.Builder
	sb.WriteString(info.Name)
	if in.Saturate {
		sb.WriteString("_SAT")
	}
	sep := " "
	if info.HasDst {
		fmt.Fprintf(&sb, " %s", in.Dst)
		sep = ", "
	}
	for s := 0; s < info.NumSrc; s++ {
		sb.WriteString(sep)
		sb.WriteString(in.Src[s].String())
		sep = ", "
	}
	if info.Texture {
		fmt.Fprintf(&sb, ", TEX[%d], %s", in.TexUnit, in.TexTarget)
	}
	return sb.String()
}

const swizzleLetters = "xyzw01"

func (s Src) String() string {
	var sb strings.Builder
	if s.Negate == WriteXYZW {
		sb.WriteByte('-')
	}
	if s.Abs {
		sb.WriteByte('|')
	}
	fmt.Fprintf(&sb, "%s[%d]", s.File, s.Index)
	if s.Swizzle != Identity {
		sb.WriteByte('.')
		for i, sw := range s.Swizzle {
			if s.Negate&(1<<i) != 0 && s.Negate != WriteXYZW {
				sb.WriteByte('-')
			}
			if int(sw) < len(swizzleLetters) {
				sb.WriteByte(swizzleLetters[sw])
			}
		}
	}
	if s.Abs {
		sb.WriteByte('|')
	}
	return sb.String()
}

func (d Dst) String() string {
	s := fmt.Sprintf("%s[%d]", d.File, d.Index)
	if d.WriteMask != WriteXYZW {
		s += "."
		for i := 0; i < 4; i++ {
			if d.WriteMask&(1<<i) != 0 {
				s += string(swizzleLetters[i])
			}
		}
	}
	return s
}

func sameBits(a, b [4]float32) bool {
	for i := range a {
		if math.Float32bits(a[i]) != math.Float32bits(b[i]) {
			return false
		}
	}
	return true
}
