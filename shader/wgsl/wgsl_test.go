package wgsl

import (
	"errors"
	"testing"

	"github.com/gogpu/statecc/shader"
)

const passThrough = `
@fragment
fn main(@location(0) color: vec4<f32>) -> @location(0) vec4<f32> {
    return color;
}
`

const tinted = `
struct Params {
    tint: vec4<f32>,
    scale: f32,
}

@group(0) @binding(0) var<uniform> params: Params;

@fragment
fn main(@location(0) color: vec4<f32>) -> @location(0) vec4<f32> {
    return color * params.tint * params.scale;
}
`

const textured = `
@group(0) @binding(1) var tex: texture_2d<f32>;
@group(0) @binding(2) var samp: sampler;

@fragment
fn main(@location(0) uv: vec2<f32>) -> @location(0) vec4<f32> {
    return textureSample(tex, samp, uv);
}
`

const discarding = `
@fragment
fn main(@location(0) color: vec4<f32>) -> @location(0) vec4<f32> {
    if color.a < 0.5 {
        discard;
    }
    return color;
}
`

const withDepth = `
struct FragOut {
    @location(0) color: vec4<f32>,
    @builtin(frag_depth) depth: f32,
}

@fragment
fn main(@location(0) color: vec4<f32>) -> FragOut {
    return FragOut(color, color.z);
}
`

const withLocal = `
@fragment
fn main(@location(0) color: vec4<f32>) -> @location(0) vec4<f32> {
    var c = color;
    c.x = 1.0;
    return c;
}
`

const looping = `
@fragment
fn main(@location(0) color: vec4<f32>) -> @location(0) vec4<f32> {
    var c = color;
    for (var i = 0; i < 4; i++) {
        c = c * 0.5;
    }
    return c;
}
`

const vertexOnly = `
@vertex
fn vs(@builtin(vertex_index) i: u32) -> @builtin(position) vec4<f32> {
    return vec4<f32>(0.0, 0.0, 0.0, 1.0);
}
`

func count(p *shader.Program, op shader.Opcode) int {
	n := 0
	for _, in := range p.Instructions {
		if in.Op == op {
			n++
		}
	}
	return n
}

func writesOutput(p *shader.Program, index int) (shader.Instruction, bool) {
	for _, in := range p.Instructions {
		if in.Dst.File == shader.FileOutput && in.Dst.Index == index {
			return in, true
		}
	}
	return shader.Instruction{}, false
}

func mustTranslate(t *testing.T, src string) *Shader {
	t.Helper()
	s, err := Translate(src, "")
	if err != nil {
		t.Fatalf("Translate: %v", err)
	}
	if err := s.Program.Validate(); err != nil {
		t.Fatalf("program does not validate: %v\n%s", err, s.Program)
	}
	return s
}

func TestPassThrough(t *testing.T) {
	s := mustTranslate(t, passThrough)
	if s.Entry != "main" {
		t.Errorf("Entry = %q", s.Entry)
	}
	d, ok := s.Program.Input(shader.InputVar(0))
	if !ok || d.Interp != shader.InterpPerspective {
		t.Errorf("input 0 = %+v, %v; want perspective", d, ok)
	}
	in, ok := writesOutput(s.Program, 0)
	if !ok {
		t.Fatalf("colour output not written:\n%s", s.Program)
	}
	if in.Src[0].File != shader.FileInput || in.Src[0].Index != shader.InputVar(0) {
		t.Errorf("output reads %s, want the input", in.Src[0])
	}
}

func TestUniformLayout(t *testing.T) {
	s := mustTranslate(t, tinted)
	if len(s.Uniforms) != 1 {
		t.Fatalf("uniforms = %+v", s.Uniforms)
	}
	u := s.Uniforms[0]
	if u.Name != "params" || u.Reg != 0 || u.Regs != 2 {
		t.Errorf("uniform = %+v, want params at reg 0 spanning 2", u)
	}
	if s.Program.NumConsts != 2 {
		t.Errorf("NumConsts = %d, want 2", s.Program.NumConsts)
	}
	if count(s.Program, shader.OpMUL) < 2 {
		t.Errorf("expected two multiplies:\n%s", s.Program)
	}

	var readsScale bool
	for _, in := range s.Program.Instructions {
		for _, src := range in.Src {
			if src.File == shader.FileConst && src.Index == 1 {
				readsScale = true
			}
		}
	}
	if !readsScale {
		t.Errorf("scale (CONST[1]) never read:\n%s", s.Program)
	}
}

func TestTextureSample(t *testing.T) {
	s := mustTranslate(t, textured)
	if len(s.Textures) != 1 || s.Textures[0].Name != "tex" || s.Textures[0].Unit != 0 {
		t.Fatalf("textures = %+v", s.Textures)
	}
	if s.Textures[0].Binding != 1 {
		t.Errorf("texture binding = %d, want 1", s.Textures[0].Binding)
	}
	var found bool
	for _, in := range s.Program.Instructions {
		if in.Op == shader.OpTEX {
			found = true
			if in.TexTarget != shader.Tex2D || in.TexUnit != 0 {
				t.Errorf("TEX target=%s unit=%d", in.TexTarget, in.TexUnit)
			}
		}
	}
	if !found {
		t.Errorf("no TEX instruction:\n%s", s.Program)
	}
}

func TestConditionalDiscard(t *testing.T) {
	s := mustTranslate(t, discarding)
	if count(s.Program, shader.OpKIL) != 1 {
		t.Errorf("want one KIL:\n%s", s.Program)
	}
	if count(s.Program, shader.OpSLT) != 1 {
		t.Errorf("want the comparison as SLT:\n%s", s.Program)
	}
}

func TestDepthOutput(t *testing.T) {
	s := mustTranslate(t, withDepth)
	in, ok := writesOutput(s.Program, shader.OutputDepth)
	if !ok {
		t.Fatalf("depth not written:\n%s", s.Program)
	}
	if in.Dst.WriteMask != shader.WriteZ {
		t.Errorf("depth mask = %#x, want Z", in.Dst.WriteMask)
	}
	if _, ok := writesOutput(s.Program, 0); !ok {
		t.Error("colour not written")
	}
}

func TestLocalVariableStore(t *testing.T) {
	s := mustTranslate(t, withLocal)
	var partial bool
	for _, in := range s.Program.Instructions {
		if in.Op == shader.OpMOV && in.Dst.File == shader.FileTemp && in.Dst.WriteMask == shader.WriteX {
			partial = true
		}
	}
	if !partial {
		t.Errorf("component store not emitted as a masked MOV:\n%s", s.Program)
	}
	if _, ok := writesOutput(s.Program, 0); !ok {
		t.Error("colour not written")
	}
}

func TestTranslateErrors(t *testing.T) {
	tests := []struct {
		name  string
		src   string
		entry string
		want  error
	}{
		{"loop", looping, "", ErrUnsupported},
		{"no fragment stage", vertexOnly, "", ErrNoEntryPoint},
		{"unknown entry", passThrough, "other", ErrNoEntryPoint},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Translate(tt.src, tt.entry)
			if !errors.Is(err, tt.want) {
				t.Errorf("Translate() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestParseError(t *testing.T) {
	if _, err := Translate("fn {", ""); err == nil {
		t.Error("Translate accepted malformed source")
	}
}

func TestTranslatorCache(t *testing.T) {
	tr, err := NewTranslator(2)
	if err != nil {
		t.Fatal(err)
	}
	a, err := tr.Translate(passThrough, "")
	if err != nil {
		t.Fatal(err)
	}
	b, err := tr.Translate(passThrough, "")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Error("second translation was not served from the cache")
	}
	if hits, misses := tr.Stats(); hits != 1 || misses != 1 {
		t.Errorf("Stats() = %d, %d; want 1, 1", hits, misses)
	}

	if _, err := tr.Translate(passThrough, "main"); err != nil {
		t.Fatal(err)
	}
	if tr.Len() != 2 {
		t.Errorf("Len() = %d, want 2 (entry names are part of the key)", tr.Len())
	}

	if _, err := tr.Translate(looping, ""); err == nil {
		t.Fatal("loop translated")
	}
	if tr.Len() != 2 {
		t.Errorf("failed translation was cached")
	}

	tr.Purge()
	if tr.Len() != 0 {
		t.Error("Purge left entries")
	}
}
