// Package eu assembles native instructions for the execution units.
//
// Instructions are 128 bits wide: a header dword (opcode, execution
// controls), a dword of operand types and the destination, and two source
// dwords. The second source dword doubles as a 32-bit immediate or a SEND
// message descriptor. Execution size 16 with compression operates on a
// register pair, which is how SIMD-16 fragment code is written.
package eu

// Opcode is a native instruction opcode.
type Opcode uint8

// Native opcodes.
const (
	OpMOV  Opcode = 1
	OpSEL  Opcode = 2
	OpNOT  Opcode = 4
	OpAND  Opcode = 5
	OpOR   Opcode = 6
	OpXOR  Opcode = 7
	OpCMP  Opcode = 16
	OpJMPI Opcode = 32
	OpSEND Opcode = 49
	OpADD  Opcode = 64
	OpMUL  Opcode = 65
	OpFRC  Opcode = 67
	OpRNDU Opcode = 68
	OpRNDD Opcode = 69
	OpRNDE Opcode = 70
	OpRNDZ Opcode = 71
	OpMAC  Opcode = 72
	OpDP4  Opcode = 84
	OpDPH  Opcode = 85
	OpDP3  Opcode = 86
	OpLINE Opcode = 89
	OpPLN  Opcode = 90
	OpNOP  Opcode = 126
)

var opcodeNames = map[Opcode]string{
	OpMOV: "mov", OpSEL: "sel", OpNOT: "not", OpAND: "and", OpOR: "or",
	OpXOR: "xor", OpCMP: "cmp", OpJMPI: "jmpi", OpSEND: "send",
	OpADD: "add", OpMUL: "mul", OpFRC: "frc", OpRNDU: "rndu",
	OpRNDD: "rndd", OpRNDE: "rnde", OpRNDZ: "rndz", OpMAC: "mac",
	OpDP4: "dp4", OpDPH: "dph", OpDP3: "dp3", OpLINE: "line",
	OpPLN: "pln", OpNOP: "nop",
}

// String returns the assembler mnemonic.
func (o Opcode) String() string {
	if n, ok := opcodeNames[o]; ok {
		return n
	}
	return "illegal"
}

// RegFile selects a register file.
type RegFile uint8

// Register files.
const (
	FileARF RegFile = 0
	FileGRF RegFile = 1
	FileMRF RegFile = 2
	FileIMM RegFile = 3
)

// RegType is an operand data type.
type RegType uint8

// Operand types. V and VF exist only as immediates.
const (
	TypeUD RegType = 0
	TypeD  RegType = 1
	TypeUW RegType = 2
	TypeW  RegType = 3
	TypeUB RegType = 4
	TypeVF RegType = 5
	TypeV  RegType = 6
	TypeF  RegType = 7
)

var typeNames = [...]string{"UD", "D", "UW", "W", "UB", "VF", "V", "F"}

// String returns the type suffix used by the disassembler.
func (t RegType) String() string {
	if int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "?"
}

// CondMod is a conditional modifier.
type CondMod uint8

// Conditional modifiers.
const (
	CondNone CondMod = 0
	CondZ    CondMod = 1
	CondNZ   CondMod = 2
	CondG    CondMod = 3
	CondGE   CondMod = 4
	CondL    CondMod = 5
	CondLE   CondMod = 6
)

// Equality aliases.
const (
	CondEQ = CondZ
	CondNE = CondNZ
)

var condNames = [...]string{"", ".z", ".nz", ".g", ".ge", ".l", ".le"}

// Predicate controls.
const (
	PredNone   uint8 = 0
	PredNormal uint8 = 1
)

// Compression controls.
const (
	CompressNone    uint8 = 0
	CompressSecHalf uint8 = 1
	Compressed      uint8 = 2
)

// Mask controls.
const (
	MaskEnable  uint8 = 0
	MaskDisable uint8 = 1
)

// MsgTarget selects the shared function a SEND addresses.
type MsgTarget uint8

// Message targets.
const (
	TargetNull          MsgTarget = 0
	TargetMath          MsgTarget = 1
	TargetSampler       MsgTarget = 2
	TargetGateway       MsgTarget = 3
	TargetDataportRead  MsgTarget = 4
	TargetDataportWrite MsgTarget = 5
	TargetURB           MsgTarget = 6
	TargetThreadSpawner MsgTarget = 7
)

var targetNames = [...]string{"null", "math", "sampler", "gateway", "read", "write", "urb", "thread_spawner"}

// String returns the shared function name.
func (t MsgTarget) String() string {
	if int(t) < len(targetNames) {
		return targetNames[t]
	}
	return "?"
}

// MathFunc selects an extended math function.
type MathFunc uint8

// Math functions.
const (
	MathInv    MathFunc = 1
	MathLog    MathFunc = 2
	MathExp    MathFunc = 3
	MathSqrt   MathFunc = 4
	MathRsq    MathFunc = 5
	MathSin    MathFunc = 6
	MathCos    MathFunc = 7
	MathSinCos MathFunc = 8
	MathPow    MathFunc = 10
)

var mathNames = map[MathFunc]string{
	MathInv: "inv", MathLog: "log", MathExp: "exp", MathSqrt: "sqrt",
	MathRsq: "rsq", MathSin: "sin", MathCos: "cos", MathSinCos: "sincos",
	MathPow: "pow",
}

// String returns the math function name.
func (f MathFunc) String() string {
	if n, ok := mathNames[f]; ok {
		return n
	}
	return "?"
}

// Math precision and data types.
const (
	MathPrecisionFull    uint8 = 0
	MathPrecisionPartial uint8 = 1
	MathDataVector       uint8 = 0
	MathDataScalar       uint8 = 1
)

// Sampler message types for SIMD-16 sampling. Before Gen5 the bias form
// shares the sample message type and is told apart by its length.
const (
	SamplerMsgSample        uint8 = 0
	SamplerMsgSampleBias    uint8 = 0
	SamplerMsgSampleCompare uint8 = 2

	SamplerMsgSampleGen5        uint8 = 0
	SamplerMsgSampleBiasGen5    uint8 = 1
	SamplerMsgSampleCompareGen5 uint8 = 3
)

// Sampler return formats.
const (
	SamplerReturnFloat32 uint8 = 0
)

// Dataport controls.
const (
	DPWriteMsgOWordBlock      uint8 = 0
	DPWriteMsgRenderTarget    uint8 = 4
	DPReadMsgOWordBlock       uint8 = 0
	DPRenderTargetSIMD16      uint8 = 0
	DPOWordBlock2             uint8 = 2
	DPOWordBlock4             uint8 = 3
	DPReadTargetDataCache     uint8 = 0
	DPScratchBindingTable     uint8 = 255
	DPRenderTargetBindingBase uint8 = 0
)

// URB write swizzles.
const (
	URBSwizzleNone       uint8 = 0
	URBSwizzleInterleave uint8 = 1
	URBSwizzleTranspose  uint8 = 2
)

// InstSize is the encoded size of one instruction in bytes.
const InstSize = 16

// Gen is a hardware generation. Message encodings and thread limits differ
// between generations.
type Gen uint8

// Supported generations.
const (
	Gen4 Gen = iota
	G4X
	Gen5
)

var genNames = [...]string{"gen4", "g4x", "gen5"}

// String returns the generation name.
func (g Gen) String() string {
	if int(g) < len(genNames) {
		return genNames[g]
	}
	return "unknown"
}

// ParseGen parses a generation name as printed by String.
func ParseGen(s string) (Gen, bool) {
	for i, n := range genNames {
		if n == s {
			return Gen(i), true //nolint:gosec // G115: index of a three-entry table
		}
	}
	return 0, false
}
