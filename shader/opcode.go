package shader

// Opcode is an intermediate fragment-program opcode.
type Opcode uint16

// Intermediate opcodes.
const (
	OpNop Opcode = iota
	OpABS
	OpADD
	OpCMP
	OpCOS
	OpDDX
	OpDDY
	OpDP3
	OpDP4
	OpDPH
	OpEX2
	OpFLR
	OpFRC
	OpKIL
	OpKILP
	OpLG2
	OpLIT
	OpLRP
	OpMAD
	OpMAX
	OpMIN
	OpMOV
	OpMUL
	OpPOW
	OpRCP
	OpRSQ
	OpSCS
	OpSEQ
	OpSGE
	OpSGT
	OpSIN
	OpSLE
	OpSLT
	OpSNE
	OpSUB
	OpTEX
	OpTXB
	OpTXP
	OpTRUNC
	OpXPD
	OpARL
	OpIF
	OpELSE
	OpENDIF
	OpEND

	// NumOpcodes is one past the last intermediate opcode. Back ends may
	// number their own synthesized opcodes from here.
	NumOpcodes
)

// OpInfo describes the operand shape of an opcode.
type OpInfo struct {
	Name    string
	NumSrc  int
	HasDst  bool
	Scalar  bool // result is one value replicated to every written channel
	Texture bool
}

var opInfo = [NumOpcodes]OpInfo{
	OpNop:   {Name: "NOP"},
	OpABS:   {Name: "ABS", NumSrc: 1, HasDst: true},
	OpADD:   {Name: "ADD", NumSrc: 2, HasDst: true},
	OpCMP:   {Name: "CMP", NumSrc: 3, HasDst: true},
	OpCOS:   {Name: "COS", NumSrc: 1, HasDst: true, Scalar: true},
	OpDDX:   {Name: "DDX", NumSrc: 1, HasDst: true},
	OpDDY:   {Name: "DDY", NumSrc: 1, HasDst: true},
	OpDP3:   {Name: "DP3", NumSrc: 2, HasDst: true, Scalar: true},
	OpDP4:   {Name: "DP4", NumSrc: 2, HasDst: true, Scalar: true},
	OpDPH:   {Name: "DPH", NumSrc: 2, HasDst: true, Scalar: true},
	OpEX2:   {Name: "EX2", NumSrc: 1, HasDst: true, Scalar: true},
	OpFLR:   {Name: "FLR", NumSrc: 1, HasDst: true},
	OpFRC:   {Name: "FRC", NumSrc: 1, HasDst: true},
	OpKIL:   {Name: "KIL", NumSrc: 1},
	OpKILP:  {Name: "KILP"},
	OpLG2:   {Name: "LG2", NumSrc: 1, HasDst: true, Scalar: true},
	OpLIT:   {Name: "LIT", NumSrc: 1, HasDst: true},
	OpLRP:   {Name: "LRP", NumSrc: 3, HasDst: true},
	OpMAD:   {Name: "MAD", NumSrc: 3, HasDst: true},
	OpMAX:   {Name: "MAX", NumSrc: 2, HasDst: true},
	OpMIN:   {Name: "MIN", NumSrc: 2, HasDst: true},
	OpMOV:   {Name: "MOV", NumSrc: 1, HasDst: true},
	OpMUL:   {Name: "MUL", NumSrc: 2, HasDst: true},
	OpPOW:   {Name: "POW", NumSrc: 2, HasDst: true, Scalar: true},
	OpRCP:   {Name: "RCP", NumSrc: 1, HasDst: true, Scalar: true},
	OpRSQ:   {Name: "RSQ", NumSrc: 1, HasDst: true, Scalar: true},
	OpSCS:   {Name: "SCS", NumSrc: 1, HasDst: true},
	OpSEQ:   {Name: "SEQ", NumSrc: 2, HasDst: true},
	OpSGE:   {Name: "SGE", NumSrc: 2, HasDst: true},
	OpSGT:   {Name: "SGT", NumSrc: 2, HasDst: true},
	OpSIN:   {Name: "SIN", NumSrc: 1, HasDst: true, Scalar: true},
	OpSLE:   {Name: "SLE", NumSrc: 2, HasDst: true},
	OpSLT:   {Name: "SLT", NumSrc: 2, HasDst: true},
	OpSNE:   {Name: "SNE", NumSrc: 2, HasDst: true},
	OpSUB:   {Name: "SUB", NumSrc: 2, HasDst: true},
	OpTEX:   {Name: "TEX", NumSrc: 1, HasDst: true, Texture: true},
	OpTXB:   {Name: "TXB", NumSrc: 1, HasDst: true, Texture: true},
	OpTXP:   {Name: "TXP", NumSrc: 1, HasDst: true, Texture: true},
	OpTRUNC: {Name: "TRUNC", NumSrc: 1, HasDst: true},
	OpXPD:   {Name: "XPD", NumSrc: 2, HasDst: true},
	OpARL:   {Name: "ARL", NumSrc: 1},
	OpIF:    {Name: "IF", NumSrc: 1},
	OpELSE:  {Name: "ELSE"},
	OpENDIF: {Name: "ENDIF"},
	OpEND:   {Name: "END"},
}

// Info returns the operand shape of op. Unknown opcodes return a zero
// OpInfo named "???".
func (op Opcode) Info() OpInfo {
	if op < NumOpcodes {
		return opInfo[op]
	}
	return OpInfo{Name: "???"}
}

// String returns the mnemonic.
func (op Opcode) String() string { return op.Info().Name }

// TexTarget is the dimensionality of a texture lookup.
type TexTarget uint8

// Texture targets.
const (
	Tex1D TexTarget = iota
	Tex2D
	Tex3D
	TexCube
	TexRect
	TexShadow1D
	TexShadow2D
	TexShadowRect
)

var texNames = [...]string{"1D", "2D", "3D", "CUBE", "RECT", "SHADOW1D", "SHADOW2D", "SHADOWRECT"}

func (t TexTarget) String() string {
	if int(t) < len(texNames) {
		return texNames[t]
	}
	return "?"
}

// Shadow reports whether the target performs a depth comparison.
func (t TexTarget) Shadow() bool {
	return t == TexShadow1D || t == TexShadow2D || t == TexShadowRect
}

// Coords returns the number of coordinate channels the target reads,
// excluding the shadow reference.
func (t TexTarget) Coords() int {
	switch t {
	case Tex1D, TexShadow1D:
		return 1
	case Tex3D, TexCube:
		return 3
	default:
		return 2
	}
}
