package shader

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSwizzleCompose(t *testing.T) {
	tests := []struct {
		name string
		src  Src
		want [4]uint8
	}{
		{"identity", Temp(0).Swz("xyzw"), Identity},
		{"broadcast", Temp(0).Swz("y"), [4]uint8{SwizzleY, SwizzleY, SwizzleY, SwizzleY}},
		{"short repeats last", Temp(0).Swz("xz"), [4]uint8{SwizzleX, SwizzleZ, SwizzleZ, SwizzleZ}},
		{"constants", Temp(0).Swz("x01w"), [4]uint8{SwizzleX, SwizzleZero, SwizzleOne, SwizzleW}},
		{"chained", Temp(0).Swz("wzyx").Swz("xxyy"), [4]uint8{SwizzleW, SwizzleW, SwizzleZ, SwizzleZ}},
		{"colour letters", Temp(0).Swz("bgra"), [4]uint8{SwizzleZ, SwizzleY, SwizzleX, SwizzleW}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.src.Swizzle != tt.want {
				t.Errorf("Swizzle = %v, want %v", tt.src.Swizzle, tt.want)
			}
		})
	}
}

func TestBadSwizzlePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("Swz(\"q\") did not panic")
		}
	}()
	Temp(0).Swz("q")
}

func TestAddImmediateDedup(t *testing.T) {
	p := NewProgram()
	a := p.AddImmediate([4]float32{1, 2, 3, 4})
	b := p.AddImmediate([4]float32{1, 2, 3, 4})
	c := p.AddImmediate([4]float32{0, 0, 0, 0})
	if a.Index != b.Index {
		t.Errorf("identical immediates got indices %d and %d", a.Index, b.Index)
	}
	if c.Index == a.Index || len(p.Immediates) != 2 {
		t.Errorf("immediates = %v", p.Immediates)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name  string
		build func(p *Program)
		want  error
	}{
		{"ok", func(p *Program) {
			p.DeclareInput(InputColor0, InterpPerspective)
			p.Add(OpMOV, Out(0), In(InputColor0))
		}, nil},
		{"undeclared input", func(p *Program) {
			p.Add(OpMOV, Out(0), In(InputColor0))
		}, ErrUnreadInput},
		{"missing dst", func(p *Program) {
			p.Add(OpADD, Dst{}, Temp(0), Temp(1))
		}, ErrMissingDst},
		{"temp out of range", func(p *Program) {
			p.Add(OpMOV, TempDst(MaxTemps), Temp(0))
		}, ErrBadOperand},
		{"bad immediate", func(p *Program) {
			p.Add(OpMOV, TempDst(0), Imm(3))
		}, ErrBadOperand},
		{"bad opcode", func(p *Program) {
			p.Add(NumOpcodes+4, TempDst(0))
		}, ErrBadOpcode},
		{"kill needs no dst", func(p *Program) {
			p.Add(OpKIL, Dst{}, Temp(0))
		}, nil},
		{"address register", func(p *Program) {
			p.Add(OpARL, Dst{}, Temp(0))
		}, ErrUnsupportedOpcode},
		{"if", func(p *Program) {
			p.Add(OpIF, Dst{}, Temp(0))
		}, ErrUnsupportedOpcode},
		{"else", func(p *Program) {
			p.Add(OpELSE, Dst{})
		}, ErrUnsupportedOpcode},
		{"endif", func(p *Program) {
			p.Add(OpENDIF, Dst{})
		}, ErrUnsupportedOpcode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewProgram()
			tt.build(p)
			err := p.Validate()
			if tt.want == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Validate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestHashDiscriminates(t *testing.T) {
	build := func(mask uint8) *Program {
		p := NewProgram()
		p.DeclareInput(InputColor0, InterpPerspective)
		p.Add(OpMOV, Out(0).Mask(mask), In(InputColor0))
		return p
	}
	if build(WriteXYZW).Hash() != build(WriteXYZW).Hash() {
		t.Error("Hash() differs for identical programs")
	}
	if build(WriteXYZW).Hash() == build(WriteX).Hash() {
		t.Error("Hash() equal for different write masks")
	}

	p := build(WriteXYZW)
	q := build(WriteXYZW)
	q.DeclareInput(InputColor0, InterpLinear)
	if p.Hash() == q.Hash() {
		t.Error("Hash() ignores interpolation mode")
	}
}

func TestAppendBinaryDiscriminates(t *testing.T) {
	encode := func(p *Program) []byte {
		b, err := p.AppendBinary(nil)
		if err != nil {
			t.Fatal(err)
		}
		return b
	}
	base := func() *Program {
		p := NewProgram()
		p.DeclareInput(InputColor0, InterpPerspective)
		p.Add(OpMOV, Out(0), In(InputColor0))
		return p
	}

	if !bytes.Equal(encode(base()), encode(base())) {
		t.Error("identical programs encode differently")
	}
	variants := map[string]func(p *Program){
		"saturate":  func(p *Program) { p.Instructions[0].Saturate = true },
		"abs":       func(p *Program) { p.Instructions[0].Src[0].Abs = true },
		"negate":    func(p *Program) { p.Instructions[0].Src[0].Negate = 1 },
		"dst index": func(p *Program) { p.Instructions[0].Dst.Index = 1 },
		"immediate": func(p *Program) { p.Scalar(0.5) },
		"constants": func(p *Program) { p.NumConsts = 4 },
	}
	for name, mod := range variants {
		p := base()
		mod(p)
		if bytes.Equal(encode(base()), encode(p)) {
			t.Errorf("%s: encoding unchanged", name)
		}
	}

	// Operand fields do not bleed into each other.
	a, b := base(), base()
	a.Instructions[0].Dst.Index, a.Instructions[0].Dst.WriteMask = 1, 0
	b.Instructions[0].Dst.Index, b.Instructions[0].Dst.WriteMask = 0, 1<<8-1
	if bytes.Equal(encode(a), encode(b)) {
		t.Error("dst index and write mask alias")
	}
}

func TestString(t *testing.T) {
	p := NewProgram()
	p.DeclareInput(InputTex0, InterpPerspective)
	p.AddTex(OpTEX, TempDst(0), In(InputTex0), 1, Tex2D)
	in := p.Add(OpMAD, Out(0).Mask(WriteXYZ), Temp(0), Const(2).Swz("x"), Temp(1).Neg())
	in.Saturate = true

	got := p.String()
	for _, want := range []string{
		"DCL IN[5], perspective",
		"TEX TEMP[0], IN[5], TEX[1], 2D",
		"MAD_SAT OUT[0].xyz, TEMP[0], CONST[2].xxxx, -TEMP[1]",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("String() missing %q in\n%s", want, got)
		}
	}
}

func TestTexTarget(t *testing.T) {
	tests := []struct {
		target TexTarget
		coords int
		shadow bool
	}{
		{Tex1D, 1, false},
		{Tex2D, 2, false},
		{TexCube, 3, false},
		{TexShadow2D, 2, true},
		{TexShadow1D, 1, true},
	}
	for _, tt := range tests {
		if got := tt.target.Coords(); got != tt.coords {
			t.Errorf("%v.Coords() = %d, want %d", tt.target, got, tt.coords)
		}
		if got := tt.target.Shadow(); got != tt.shadow {
			t.Errorf("%v.Shadow() = %v, want %v", tt.target, got, tt.shadow)
		}
	}
}
