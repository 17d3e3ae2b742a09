package wgsl

import (
	"fmt"
	"math"

	"github.com/gogpu/naga/ir"
	"github.com/gogpu/statecc/shader"
)

type kind uint8

const (
	kindVector  kind = iota // src holds n channels; scalars are broadcast
	kindMatrix              // cols holds one vector per column
	kindStruct              // fields holds the members
	kindLocal               // pointer into a function-local variable
	kindUniform             // pointer into the constant file
	kindTexture
	kindSampler
)

type value struct {
	kind kind
	src  shader.Src
	n    int
	imm  []float32 // channel values when the value is a literal

	cols   []shader.Src
	fields []value

	// Pointers.
	ty     ir.TypeInner
	local  int
	member int
	comp   int
	off    uint32

	// Textures.
	unit  uint8
	dim   ir.ImageDimension
	depth bool
}

type local struct {
	ty   ir.TypeInner
	regs []int // one per struct member or matrix column, else one
}

const letters = "xyzw"

type builder struct {
	mod  *ir.Module
	fn   *ir.Function
	prog *shader.Program
	out  *Shader

	vals  []value
	done  []bool
	temps int
	err   error

	locals   []local
	uniforms map[ir.GlobalVariableHandle]uint32 // byte offset in the constant file
	textures map[ir.GlobalVariableHandle]uint8
	returned bool
}

func translateModule(mod *ir.Module, entry string) (*Shader, error) {
	ep := findEntry(mod, entry)
	if ep == nil {
		if entry == "" {
			return nil, ErrNoEntryPoint
		}
		return nil, fmt.Errorf("%w: %q", ErrNoEntryPoint, entry)
	}

	b := &builder{
		mod:      mod,
		fn:       &ep.Function,
		prog:     shader.NewProgram(),
		out:      &Shader{Entry: ep.Name},
		vals:     make([]value, len(ep.Function.Expressions)),
		done:     make([]bool, len(ep.Function.Expressions)),
		uniforms: make(map[ir.GlobalVariableHandle]uint32),
		textures: make(map[ir.GlobalVariableHandle]uint8),
	}
	b.layoutGlobals()
	b.initLocals()
	b.block(b.fn.Body)
	if b.err != nil {
		return nil, b.err
	}
	if err := b.prog.Validate(); err != nil {
		return nil, fmt.Errorf("wgsl: %s: %w", ep.Name, err)
	}
	b.out.Program = b.prog
	return b.out, nil
}

func findEntry(mod *ir.Module, name string) *ir.EntryPoint {
	for i := range mod.EntryPoints {
		ep := &mod.EntryPoints[i]
		if ep.Stage != ir.StageFragment {
			continue
		}
		if name == "" || ep.Name == name {
			return ep
		}
	}
	return nil
}

func (b *builder) fail(err error) {
	if b.err == nil {
		b.err = err
	}
}

func (b *builder) unsupported(what string) value {
	b.fail(fmt.Errorf("%w: %s", ErrUnsupported, what))
	return value{}
}

func (b *builder) inner(h ir.TypeHandle) ir.TypeInner {
	if int(h) >= len(b.mod.Types) {
		return nil
	}
	return b.mod.Types[h].Inner
}

// =============================================================================
// Globals and locals
// =============================================================================

// layoutGlobals packs uniform buffers back to back in the constant file,
// each starting on a register boundary, and numbers texture bindings in
// declaration order.
func (b *builder) layoutGlobals() {
	var offset uint32
	var units int
	for i, g := range b.mod.GlobalVariables {
		h := ir.GlobalVariableHandle(i) //nolint:gosec // G115: arena index
		var group, binding uint32
		if g.Binding != nil {
			group, binding = g.Binding.Group, g.Binding.Binding
		}
		switch b.inner(g.Type).(type) {
		case ir.ImageType:
			if g.Space != ir.SpaceHandle {
				continue
			}
			if units >= MaxTextures {
				b.fail(fmt.Errorf("%w: more than %d textures", ErrBinding, MaxTextures))
				return
			}
			b.textures[h] = uint8(units) //nolint:gosec // G115: below MaxTextures
			b.out.Textures = append(b.out.Textures, Texture{Name: g.Name, Group: group, Binding: binding, Unit: uint8(units)})
			units++
		default:
			if g.Space != ir.SpaceUniform {
				continue
			}
			offset = alignUp(offset, 16)
			size := alignUp(ir.TypeSize(b.mod, g.Type), 16)
			b.uniforms[h] = offset
			b.out.Uniforms = append(b.out.Uniforms, Uniform{
				Name:    g.Name,
				Group:   group,
				Binding: binding,
				Reg:     int(offset / 16),
				Regs:    int(size / 16),
			})
			offset += size
		}
	}
	regs := int(offset / 16)
	if regs > shader.MaxConsts {
		b.fail(fmt.Errorf("%w: uniforms need %d constant registers, limit %d", ErrBinding, regs, shader.MaxConsts))
		return
	}
	b.prog.NumConsts = regs
}

func (b *builder) initLocals() {
	for _, lv := range b.fn.LocalVars {
		ty := b.inner(lv.Type)
		l := local{ty: ty}
		switch t := ty.(type) {
		case ir.ScalarType, ir.VectorType:
			l.regs = []int{b.newTemp()}
		case ir.MatrixType:
			for range t.Columns {
				l.regs = append(l.regs, b.newTemp())
			}
		case ir.StructType:
			for _, m := range t.Members {
				switch b.inner(m.Type).(type) {
				case ir.ScalarType, ir.VectorType:
				default:
					b.unsupported("local struct member " + m.Name)
					return
				}
				l.regs = append(l.regs, b.newTemp())
			}
		default:
			b.unsupported("local variable " + lv.Name)
			return
		}
		b.locals = append(b.locals, l)
	}

	for i, lv := range b.fn.LocalVars {
		ptr := value{kind: kindLocal, local: i, member: -1, comp: -1, ty: b.locals[i].ty}
		if lv.Init != nil {
			b.store(ptr, b.operand(*lv.Init))
			continue
		}
		for _, r := range b.locals[i].regs {
			b.prog.Add(shader.OpMOV, shader.TempDst(r), b.prog.Scalar(0))
		}
	}
}

func (b *builder) newTemp() int {
	if b.temps >= shader.MaxTemps {
		b.fail(fmt.Errorf("%w: limit %d", ErrTooManyTemps, shader.MaxTemps))
		return 0
	}
	b.temps++
	return b.temps - 1
}

// =============================================================================
// Statements
// =============================================================================

func (b *builder) block(stmts ir.Block) {
	for _, st := range stmts {
		if b.err != nil || b.returned {
			return
		}
		b.statement(st)
	}
}

func (b *builder) statement(st ir.Statement) {
	switch s := st.Kind.(type) {
	case ir.StmtEmit:
		for h := s.Range.Start; h < s.Range.End; h++ {
			b.eval(h)
		}
	case ir.StmtBlock:
		b.block(s.Block)
	case ir.StmtStore:
		b.store(b.eval(s.Pointer), b.operand(s.Value))
	case ir.StmtReturn:
		b.ret(s.Value)
		b.returned = true
	case ir.StmtKill:
		b.prog.Add(shader.OpKILP, shader.Dst{})
	case ir.StmtIf:
		b.conditionalKill(s)
	default:
		b.unsupported(fmt.Sprintf("statement %T", s))
	}
}

// conditionalKill handles `if cond { discard; }` and its negation, the
// only branches the straight-line program can express.
func (b *builder) conditionalKill(s ir.StmtIf) {
	acceptKill := b.killBlock(s.Accept)
	rejectKill := b.killBlock(s.Reject)
	switch {
	case acceptKill && b.emptyBlock(s.Reject):
		cond := b.operand(s.Condition)
		b.prog.Add(shader.OpKIL, shader.Dst{}, cond.src.Neg())
	case rejectKill && b.emptyBlock(s.Accept):
		cond := b.operand(s.Condition)
		// cond-1 is negative exactly when cond is false.
		t := b.vecOp(shader.OpADD, 1, false, cond.src, b.prog.Scalar(-1))
		b.prog.Add(shader.OpKIL, shader.Dst{}, t.src)
	default:
		b.unsupported("if statement other than conditional discard")
	}
}

// killBlock reports whether stmts is a discard preceded only by emits,
// evaluating the emits.
func (b *builder) killBlock(stmts ir.Block) bool {
	killed := false
	for _, st := range stmts {
		switch st.Kind.(type) {
		case ir.StmtEmit:
			b.statement(st)
		case ir.StmtKill:
			killed = true
		default:
			return false
		}
	}
	return killed
}

func (b *builder) emptyBlock(stmts ir.Block) bool {
	for _, st := range stmts {
		switch s := st.Kind.(type) {
		case ir.StmtEmit:
			b.statement(st)
		case ir.StmtReturn:
			if s.Value != nil {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func (b *builder) store(ptr, v value) {
	if ptr.kind != kindLocal {
		b.unsupported("store through a non-local pointer")
		return
	}
	l := b.locals[ptr.local]
	switch {
	case ptr.comp >= 0:
		r := l.regs[max(ptr.member, 0)]
		b.prog.Add(shader.OpMOV, shader.TempDst(r).Mask(1<<ptr.comp), v.src)
	case ptr.member >= 0:
		b.prog.Add(shader.OpMOV, shader.TempDst(l.regs[ptr.member]).Mask(channelMask(v.n)), v.src)
	case v.kind == kindStruct:
		for i, f := range v.fields {
			b.prog.Add(shader.OpMOV, shader.TempDst(l.regs[i]).Mask(channelMask(f.n)), f.src)
		}
	case v.kind == kindMatrix:
		for i, c := range v.cols {
			b.prog.Add(shader.OpMOV, shader.TempDst(l.regs[i]), c)
		}
	default:
		b.prog.Add(shader.OpMOV, shader.TempDst(l.regs[0]).Mask(channelMask(v.n)), v.src)
	}
}

func (b *builder) ret(h *ir.ExpressionHandle) {
	res := b.fn.Result
	if h == nil || res == nil {
		return
	}
	v := b.operand(*h)
	if res.Binding != nil {
		b.output(*res.Binding, v)
		return
	}
	st, ok := b.inner(res.Type).(ir.StructType)
	if !ok || v.kind != kindStruct || len(v.fields) != len(st.Members) {
		b.unsupported("fragment result without bindings")
		return
	}
	for i, m := range st.Members {
		if m.Binding != nil {
			b.output(*m.Binding, v.fields[i])
		}
	}
}

func (b *builder) output(binding ir.Binding, v value) {
	switch bd := binding.(type) {
	case ir.LocationBinding:
		b.colorOutput(bd.Location, v)
	case *ir.LocationBinding:
		b.colorOutput(bd.Location, v)
	case ir.BuiltinBinding:
		b.builtinOutput(bd.Builtin, v)
	case *ir.BuiltinBinding:
		b.builtinOutput(bd.Builtin, v)
	default:
		b.unsupported(fmt.Sprintf("output binding %T", bd))
	}
}

func (b *builder) colorOutput(loc uint32, v value) {
	if loc >= shader.MaxColorOuts {
		b.fail(fmt.Errorf("%w: @location(%d) output", ErrBinding, loc))
		return
	}
	b.prog.Add(shader.OpMOV, shader.Out(int(loc)).Mask(channelMask(v.n)), v.src)
}

func (b *builder) builtinOutput(bi ir.BuiltinValue, v value) {
	if bi != ir.BuiltinFragDepth {
		b.unsupported(fmt.Sprintf("builtin output %d", bi))
		return
	}
	b.prog.Add(shader.OpMOV, shader.Dst{File: shader.FileOutput, Index: shader.OutputDepth, WriteMask: shader.WriteZ}, v.src)
}

// =============================================================================
// Expressions
// =============================================================================

// operand evaluates h and loads it if it is a pointer.
func (b *builder) operand(h ir.ExpressionHandle) value {
	v := b.eval(h)
	switch v.kind {
	case kindLocal:
		return b.loadLocal(v)
	case kindUniform:
		return b.loadUniform(v.ty, v.off)
	}
	return v
}

func (b *builder) eval(h ir.ExpressionHandle) value {
	if int(h) >= len(b.vals) {
		b.fail(fmt.Errorf("%w: expression %d", ErrUnsupported, h))
		return value{}
	}
	if b.done[h] {
		return b.vals[h]
	}
	v := b.expr(b.fn.Expressions[h].Kind)
	b.vals[h], b.done[h] = v, true
	return v
}

func (b *builder) expr(k ir.ExpressionKind) value {
	switch e := k.(type) {
	case ir.Literal:
		f, ok := literalFloat(e.Value)
		if !ok {
			return b.unsupported(fmt.Sprintf("literal %T", e.Value))
		}
		return b.immediate([]float32{f})
	case ir.ExprConstant:
		return b.constant(e.Constant)
	case ir.ExprZeroValue:
		n := b.components(b.inner(e.Type))
		if n == 0 {
			return b.unsupported("zero value of composite type")
		}
		return b.immediate(make([]float32, n))
	case ir.ExprAlias:
		return b.eval(e.Source)
	case ir.ExprFunctionArgument:
		return b.argument(e.Index)
	case ir.ExprGlobalVariable:
		return b.global(e.Variable)
	case ir.ExprLocalVariable:
		if int(e.Variable) >= len(b.locals) {
			return b.unsupported("local variable index")
		}
		return value{kind: kindLocal, local: int(e.Variable), member: -1, comp: -1, ty: b.locals[e.Variable].ty}
	case ir.ExprLoad:
		return b.operand(e.Pointer)
	case ir.ExprCompose:
		return b.compose(e)
	case ir.ExprSplat:
		v := b.operand(e.Value)
		v.n = int(e.Size)
		if v.imm != nil {
			v = b.immediate(splat(v.imm[0], v.n))
		}
		return v
	case ir.ExprSwizzle:
		v := b.operand(e.Vector)
		pat := make([]byte, e.Size)
		for i := range pat {
			pat[i] = letters[e.Pattern[i]]
		}
		return value{src: v.src.Swz(string(pat)), n: int(e.Size)}
	case ir.ExprAccessIndex:
		return b.access(b.eval(e.Base), e.Index)
	case ir.ExprAccess:
		idx := b.operand(e.Index)
		if idx.imm == nil {
			return b.unsupported("dynamic indexing")
		}
		return b.access(b.eval(e.Base), uint32(idx.imm[0]))
	case ir.ExprUnary:
		return b.unary(e)
	case ir.ExprBinary:
		return b.binary(e)
	case ir.ExprSelect:
		cond := b.operand(e.Condition)
		acc, rej := b.operand(e.Accept), b.operand(e.Reject)
		return b.vecOp(shader.OpCMP, max(acc.n, rej.n), false, cond.src.Neg(), acc.src, rej.src)
	case ir.ExprDerivative:
		return b.derivative(e)
	case ir.ExprRelational:
		return b.relational(e)
	case ir.ExprMath:
		return b.math(e)
	case ir.ExprAs:
		return b.convert(e)
	case ir.ExprImageSample:
		return b.sample(e)
	default:
		return b.unsupported(fmt.Sprintf("expression %T", e))
	}
}

func literalFloat(v ir.LiteralValue) (float32, bool) {
	switch l := v.(type) {
	case ir.LiteralF32:
		return float32(l), true
	case ir.LiteralF64:
		return float32(l), true
	case ir.LiteralF16:
		return float32(l), true
	case ir.LiteralAbstractFloat:
		return float32(l), true
	case ir.LiteralI32:
		return float32(l), true
	case ir.LiteralU32:
		return float32(l), true
	case ir.LiteralI64:
		return float32(l), true
	case ir.LiteralU64:
		return float32(l), true
	case ir.LiteralAbstractInt:
		return float32(l), true
	case ir.LiteralBool:
		if l {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

func (b *builder) immediate(vals []float32) value {
	var v [4]float32
	copy(v[:], vals)
	src := b.prog.AddImmediate(v)
	if len(vals) == 1 {
		src = src.Swz("x")
	}
	return value{src: src, n: len(vals), imm: vals}
}

func splat(f float32, n int) []float32 {
	out := make([]float32, n)
	for i := range out {
		out[i] = f
	}
	return out
}

// constant folds a module constant through its initializer in the global
// expression arena.
func (b *builder) constant(h ir.ConstantHandle) value {
	if int(h) >= len(b.mod.Constants) {
		return b.unsupported("constant handle")
	}
	vals, ok := b.fold(b.mod.Constants[h].Init)
	if !ok || len(vals) == 0 || len(vals) > 4 {
		return b.unsupported("constant " + b.mod.Constants[h].Name)
	}
	return b.immediate(vals)
}

func (b *builder) fold(h ir.ExpressionHandle) ([]float32, bool) {
	if int(h) >= len(b.mod.GlobalExpressions) {
		return nil, false
	}
	switch e := b.mod.GlobalExpressions[h].Kind.(type) {
	case ir.Literal:
		f, ok := literalFloat(e.Value)
		return []float32{f}, ok
	case ir.ExprConstant:
		if int(e.Constant) >= len(b.mod.Constants) {
			return nil, false
		}
		return b.fold(b.mod.Constants[e.Constant].Init)
	case ir.ExprZeroValue:
		n := b.components(b.inner(e.Type))
		return make([]float32, n), n > 0
	case ir.ExprSplat:
		v, ok := b.fold(e.Value)
		if !ok || len(v) != 1 {
			return nil, false
		}
		return splat(v[0], int(e.Size)), true
	case ir.ExprCompose:
		var out []float32
		for _, c := range e.Components {
			v, ok := b.fold(c)
			if !ok {
				return nil, false
			}
			out = append(out, v...)
		}
		return out, true
	}
	return nil, false
}

// components returns the channel count of a scalar or vector type, or 0.
func (b *builder) components(t ir.TypeInner) int {
	switch t := t.(type) {
	case ir.ScalarType:
		return 1
	case ir.VectorType:
		return int(t.Size)
	}
	return 0
}

func (b *builder) argument(i uint32) value {
	if int(i) >= len(b.fn.Arguments) {
		return b.unsupported("argument index")
	}
	arg := b.fn.Arguments[i]
	if arg.Binding != nil {
		return b.input(*arg.Binding, b.inner(arg.Type))
	}
	st, ok := b.inner(arg.Type).(ir.StructType)
	if !ok {
		return b.unsupported("argument without binding: " + arg.Name)
	}
	v := value{kind: kindStruct}
	for _, m := range st.Members {
		if m.Binding == nil {
			return b.unsupported("struct member without binding: " + m.Name)
		}
		v.fields = append(v.fields, b.input(*m.Binding, b.inner(m.Type)))
	}
	return v
}

func (b *builder) input(binding ir.Binding, ty ir.TypeInner) value {
	var (
		slot   int
		interp shader.Interp
	)
	switch bd := binding.(type) {
	case ir.LocationBinding:
		slot, interp = b.location(bd)
	case *ir.LocationBinding:
		slot, interp = b.location(*bd)
	case ir.BuiltinBinding:
		slot, interp = b.builtinInput(bd.Builtin)
	case *ir.BuiltinBinding:
		slot, interp = b.builtinInput(bd.Builtin)
	default:
		return b.unsupported(fmt.Sprintf("input binding %T", bd))
	}
	if b.err != nil {
		return value{}
	}
	b.prog.DeclareInput(slot, interp)
	n := b.components(ty)
	if n == 0 {
		return b.unsupported("composite input")
	}
	src := shader.In(slot)
	if n == 1 {
		src = src.Swz("x")
	}
	return value{src: src, n: n}
}

func (b *builder) location(bd ir.LocationBinding) (int, shader.Interp) {
	slot := shader.InputVar(int(bd.Location))
	if slot >= shader.MaxInputs {
		b.fail(fmt.Errorf("%w: @location(%d) input", ErrBinding, bd.Location))
		return 0, 0
	}
	interp := shader.InterpPerspective
	if bd.Interpolation != nil {
		switch bd.Interpolation.Kind {
		case ir.InterpolationFlat:
			interp = shader.InterpConstant
		case ir.InterpolationLinear:
			interp = shader.InterpLinear
		}
	}
	return slot, interp
}

func (b *builder) builtinInput(bi ir.BuiltinValue) (int, shader.Interp) {
	switch bi {
	case ir.BuiltinPosition:
		return shader.InputPosition, shader.InterpLinear
	case ir.BuiltinFrontFacing:
		return shader.InputFace, shader.InterpConstant
	}
	b.unsupported(fmt.Sprintf("builtin input %d", bi))
	return 0, 0
}

func (b *builder) global(h ir.GlobalVariableHandle) value {
	if int(h) >= len(b.mod.GlobalVariables) {
		return b.unsupported("global handle")
	}
	g := b.mod.GlobalVariables[h]
	if off, ok := b.uniforms[h]; ok {
		return value{kind: kindUniform, off: off, ty: b.inner(g.Type)}
	}
	if unit, ok := b.textures[h]; ok {
		img, _ := b.inner(g.Type).(ir.ImageType)
		return value{kind: kindTexture, unit: unit, dim: img.Dim, depth: img.Class == ir.ImageClassDepth}
	}
	if _, ok := b.inner(g.Type).(ir.SamplerType); ok {
		return value{kind: kindSampler}
	}
	return b.unsupported("global variable " + g.Name)
}

func (b *builder) access(base value, idx uint32) value {
	switch base.kind {
	case kindVector:
		if int(idx) >= base.n {
			return b.unsupported("vector index out of range")
		}
		return value{src: base.src.Swz(letters[idx : idx+1]), n: 1}
	case kindMatrix:
		if int(idx) >= len(base.cols) {
			return b.unsupported("matrix column out of range")
		}
		return value{src: base.cols[idx], n: base.n}
	case kindStruct:
		if int(idx) >= len(base.fields) {
			return b.unsupported("struct member out of range")
		}
		return base.fields[idx]
	case kindUniform:
		return b.uniformAccess(base, idx)
	case kindLocal:
		return b.localAccess(base, idx)
	}
	return b.unsupported("indexing a resource")
}

func (b *builder) uniformAccess(p value, idx uint32) value {
	switch t := p.ty.(type) {
	case ir.StructType:
		if int(idx) >= len(t.Members) {
			return b.unsupported("uniform member out of range")
		}
		m := t.Members[idx]
		p.off += m.Offset
		p.ty = b.inner(m.Type)
	case ir.VectorType:
		p.off += 4 * idx
		p.ty = t.Scalar
	case ir.MatrixType:
		p.off += idx * columnStride(t.Rows)
		p.ty = ir.VectorType{Size: t.Rows, Scalar: t.Scalar}
	case ir.ArrayType:
		p.off += idx * t.Stride
		p.ty = b.inner(t.Base)
	default:
		return b.unsupported(fmt.Sprintf("indexing uniform %T", t))
	}
	return p
}

func (b *builder) localAccess(p value, idx uint32) value {
	switch t := p.ty.(type) {
	case ir.StructType:
		if p.member >= 0 || int(idx) >= len(t.Members) {
			return b.unsupported("local member index")
		}
		p.member = int(idx)
		p.ty = b.inner(t.Members[idx].Type)
	case ir.MatrixType:
		if p.member >= 0 || int(idx) >= int(t.Columns) {
			return b.unsupported("local column index")
		}
		p.member = int(idx)
		p.ty = ir.VectorType{Size: t.Rows, Scalar: t.Scalar}
	case ir.VectorType:
		if p.comp >= 0 || int(idx) >= int(t.Size) {
			return b.unsupported("local component index")
		}
		p.comp = int(idx)
		p.ty = t.Scalar
	default:
		return b.unsupported(fmt.Sprintf("indexing local %T", t))
	}
	return p
}

func columnStride(rows ir.VectorSize) uint32 {
	if rows == ir.Vec2 {
		return 8
	}
	return 16
}

// loadLocal copies the current contents of a local so later stores do not
// change the loaded value.
func (b *builder) loadLocal(p value) value {
	l := b.locals[p.local]
	switch {
	case p.comp >= 0:
		r := l.regs[max(p.member, 0)]
		return b.vecOp(shader.OpMOV, 1, false, shader.Temp(r).Swz(letters[p.comp:p.comp+1]))
	case p.member >= 0:
		return b.vecOp(shader.OpMOV, b.components(p.ty), false, shader.Temp(l.regs[p.member]))
	}
	switch t := p.ty.(type) {
	case ir.StructType:
		v := value{kind: kindStruct}
		for i, m := range t.Members {
			v.fields = append(v.fields, b.vecOp(shader.OpMOV, b.components(b.inner(m.Type)), false, shader.Temp(l.regs[i])))
		}
		return v
	case ir.MatrixType:
		v := value{kind: kindMatrix, n: int(t.Rows)}
		for _, r := range l.regs {
			v.cols = append(v.cols, b.vecOp(shader.OpMOV, int(t.Rows), false, shader.Temp(r)).src)
		}
		return v
	}
	return b.vecOp(shader.OpMOV, b.components(p.ty), false, shader.Temp(l.regs[0]))
}

func (b *builder) loadUniform(ty ir.TypeInner, off uint32) value {
	switch t := ty.(type) {
	case ir.ScalarType:
		return value{src: b.constSrc(off, 1), n: 1}
	case ir.VectorType:
		return value{src: b.constSrc(off, int(t.Size)), n: int(t.Size)}
	case ir.MatrixType:
		v := value{kind: kindMatrix, n: int(t.Rows)}
		for c := uint32(0); c < uint32(t.Columns); c++ {
			v.cols = append(v.cols, b.constSrc(off+c*columnStride(t.Rows), int(t.Rows)))
		}
		return v
	case ir.StructType:
		v := value{kind: kindStruct}
		for _, m := range t.Members {
			v.fields = append(v.fields, b.loadUniform(b.inner(m.Type), off+m.Offset))
		}
		return v
	}
	return b.unsupported(fmt.Sprintf("loading uniform %T", ty))
}

// constSrc reads n channels starting at byte offset off of the constant
// file.
func (b *builder) constSrc(off uint32, n int) shader.Src {
	reg, c0 := int(off/16), int(off%16/4)
	if c0+n > 4 {
		b.fail(fmt.Errorf("%w: uniform value straddles a register at byte %d", ErrUnsupported, off))
		return shader.Src{}
	}
	return shader.Const(reg).Swz(letters[c0 : c0+n])
}

func (b *builder) compose(e ir.ExprCompose) value {
	switch t := b.inner(e.Type).(type) {
	case ir.StructType:
		v := value{kind: kindStruct}
		for _, c := range e.Components {
			v.fields = append(v.fields, b.operand(c))
		}
		return v
	case ir.MatrixType:
		v := value{kind: kindMatrix, n: int(t.Rows)}
		for _, c := range e.Components {
			v.cols = append(v.cols, b.operand(c).src)
		}
		return v
	case ir.VectorType:
		parts := make([]value, 0, len(e.Components))
		var imm []float32
		constant := true
		for _, c := range e.Components {
			p := b.operand(c)
			parts = append(parts, p)
			if p.imm == nil {
				constant = false
			}
			imm = append(imm, p.imm...)
		}
		if constant && len(imm) == int(t.Size) {
			return b.immediate(imm)
		}
		return b.gather(parts, int(t.Size))
	}
	return b.unsupported("composite construction")
}

// gather packs the channels of parts into one temporary, one MOV per part.
func (b *builder) gather(parts []value, n int) value {
	t := b.newTemp()
	ch := 0
	for _, p := range parts {
		if ch+p.n > 4 {
			return b.unsupported("vector constructor overflow")
		}
		pat := []byte("xxxx")
		for i := 0; i < p.n; i++ {
			pat[ch+i] = letters[i]
		}
		mask := uint8(channelMask(p.n)) << ch
		b.prog.Add(shader.OpMOV, shader.TempDst(t).Mask(mask), p.src.Swz(string(pat)))
		ch += p.n
	}
	if ch != n {
		return b.unsupported("vector constructor size")
	}
	return value{src: shader.Temp(t), n: n}
}

func channelMask(n int) uint8 {
	if n <= 0 || n > 4 {
		return shader.WriteXYZW
	}
	return uint8(1)<<n - 1
}

// =============================================================================
// Instructions
// =============================================================================

// vecOp emits op into a fresh temporary writing n channels.
func (b *builder) vecOp(op shader.Opcode, n int, sat bool, srcs ...shader.Src) value {
	t := b.newTemp()
	in := b.prog.Add(op, shader.TempDst(t).Mask(channelMask(n)), srcs...)
	in.Saturate = sat
	return result(t, n)
}

// scalarOp emits op once per channel for opcodes that produce a single
// value.
func (b *builder) scalarOp(op shader.Opcode, n int, srcs ...value) value {
	t := b.newTemp()
	args := make([]shader.Src, len(srcs))
	for ch := 0; ch < n; ch++ {
		for i, s := range srcs {
			args[i] = channel(s, ch)
		}
		b.prog.Add(op, shader.TempDst(t).Mask(1<<ch), args...)
	}
	return result(t, n)
}

func result(t, n int) value {
	src := shader.Temp(t)
	if n == 1 {
		src = src.Swz("x")
	}
	return value{src: src, n: n}
}

func channel(v value, ch int) shader.Src {
	if v.n <= 1 {
		return v.src
	}
	return v.src.Swz(letters[ch : ch+1])
}

func (b *builder) unary(e ir.ExprUnary) value {
	v := b.operand(e.Expr)
	switch e.Op {
	case ir.UnaryNegate:
		if v.kind != kindVector {
			return b.unsupported("negating a composite")
		}
		return value{src: v.src.Neg(), n: v.n}
	case ir.UnaryLogicalNot:
		return b.vecOp(shader.OpADD, v.n, false, v.src.Neg(), b.prog.Scalar(1))
	}
	return b.unsupported("bitwise not")
}

var compareOps = map[ir.BinaryOperator]shader.Opcode{
	ir.BinaryEqual:        shader.OpSEQ,
	ir.BinaryNotEqual:     shader.OpSNE,
	ir.BinaryLess:         shader.OpSLT,
	ir.BinaryLessEqual:    shader.OpSLE,
	ir.BinaryGreater:      shader.OpSGT,
	ir.BinaryGreaterEqual: shader.OpSGE,
}

func (b *builder) binary(e ir.ExprBinary) value {
	l, r := b.operand(e.Left), b.operand(e.Right)
	if l.kind == kindMatrix || r.kind == kindMatrix {
		if e.Op != ir.BinaryMultiply {
			return b.unsupported("matrix arithmetic other than multiply")
		}
		return b.matMul(l, r)
	}
	if l.kind != kindVector || r.kind != kindVector {
		return b.unsupported("arithmetic on composites")
	}
	n := max(l.n, r.n)
	if op, ok := compareOps[e.Op]; ok {
		return b.vecOp(op, n, false, l.src, r.src)
	}
	switch e.Op {
	case ir.BinaryAdd:
		return b.vecOp(shader.OpADD, n, false, l.src, r.src)
	case ir.BinarySubtract:
		return b.vecOp(shader.OpSUB, n, false, l.src, r.src)
	case ir.BinaryMultiply, ir.BinaryLogicalAnd:
		return b.vecOp(shader.OpMUL, n, false, l.src, r.src)
	case ir.BinaryLogicalOr:
		return b.vecOp(shader.OpMAX, n, false, l.src, r.src)
	case ir.BinaryDivide:
		return b.divide(l, r, n)
	case ir.BinaryModulo:
		// x - y*floor(x/y)
		q := b.divide(l, r, n)
		f := b.vecOp(shader.OpFLR, n, false, q.src)
		return b.vecOp(shader.OpMAD, n, false, r.src.Neg(), f.src, l.src)
	}
	return b.unsupported(fmt.Sprintf("binary operator %d", e.Op))
}

func (b *builder) divide(l, r value, n int) value {
	inv := b.scalarOp(shader.OpRCP, r.n, r)
	return b.vecOp(shader.OpMUL, n, false, l.src, inv.src)
}

// matMul handles matrix*vector, vector*matrix, matrix*matrix and scaling
// by a scalar. Matrices are column-major.
func (b *builder) matMul(l, r value) value {
	switch {
	case l.kind == kindMatrix && r.kind == kindMatrix:
		out := value{kind: kindMatrix, n: l.n}
		for _, c := range r.cols {
			out.cols = append(out.cols, b.matVec(l, value{src: c, n: r.n}).src)
		}
		return out
	case l.kind == kindMatrix && r.n == 1, r.kind == kindMatrix && l.n == 1:
		m, s := l, r
		if r.kind == kindMatrix {
			m, s = r, l
		}
		out := value{kind: kindMatrix, n: m.n}
		for _, c := range m.cols {
			out.cols = append(out.cols, b.vecOp(shader.OpMUL, m.n, false, c, s.src).src)
		}
		return out
	case l.kind == kindMatrix:
		return b.matVec(l, r)
	default:
		// v * M: one dot product per column.
		t := b.newTemp()
		for i, c := range r.cols {
			op, a, cb := b.dotOperands(l.n, l.src, c)
			b.prog.Add(op, shader.TempDst(t).Mask(1<<i), a, cb)
		}
		return result(t, len(r.cols))
	}
}

func (b *builder) matVec(m, v value) value {
	if len(m.cols) != v.n {
		return b.unsupported("matrix and vector sizes differ")
	}
	acc := b.vecOp(shader.OpMUL, m.n, false, m.cols[0], channel(v, 0))
	for i := 1; i < len(m.cols); i++ {
		acc = b.vecOp(shader.OpMAD, m.n, false, m.cols[i], channel(v, i), acc.src)
	}
	return acc
}

// dotOperands picks the dot-product opcode for n-channel vectors. Two
// channel vectors use DP3 with a zero third channel.
func (b *builder) dotOperands(n int, x, y shader.Src) (shader.Opcode, shader.Src, shader.Src) {
	switch n {
	case 4:
		return shader.OpDP4, x, y
	case 2:
		return shader.OpDP3, x.Swz("xy0"), y.Swz("xy0")
	default:
		return shader.OpDP3, x, y
	}
}

func (b *builder) dot(x, y value) value {
	if x.n == 1 {
		return b.vecOp(shader.OpMUL, 1, false, x.src, y.src)
	}
	op, a, c := b.dotOperands(x.n, x.src, y.src)
	return b.vecOp(op, 1, false, a, c)
}

func (b *builder) length(v value) value {
	d := b.dot(v, v)
	rsq := b.vecOp(shader.OpRSQ, 1, false, d.src)
	return b.vecOp(shader.OpRCP, 1, false, rsq.src)
}

func (b *builder) derivative(e ir.ExprDerivative) value {
	v := b.operand(e.Expr)
	switch e.Axis {
	case ir.DerivativeX:
		return b.vecOp(shader.OpDDX, v.n, false, v.src)
	case ir.DerivativeY:
		return b.vecOp(shader.OpDDY, v.n, false, v.src)
	}
	dx := b.vecOp(shader.OpDDX, v.n, false, v.src)
	dy := b.vecOp(shader.OpDDY, v.n, false, v.src)
	return b.vecOp(shader.OpADD, v.n, false, dx.src.Absolute(), dy.src.Absolute())
}

func (b *builder) relational(e ir.ExprRelational) value {
	v := b.operand(e.Argument)
	var op shader.Opcode
	switch e.Fun {
	case ir.RelationalAll:
		op = shader.OpMIN
	case ir.RelationalAny:
		op = shader.OpMAX
	default:
		return b.unsupported("isNan/isInf")
	}
	acc := value{src: channel(v, 0), n: 1}
	for ch := 1; ch < v.n; ch++ {
		acc = b.vecOp(op, 1, false, acc.src, channel(v, ch))
	}
	return acc
}

const (
	log2e = 1.4426950408889634
	ln2   = 0.6931471805599453
)

func (b *builder) math(e ir.ExprMath) value {
	x := b.operand(e.Arg)
	arg := func(h *ir.ExpressionHandle) value {
		if h == nil {
			return b.unsupported("missing math argument")
		}
		return b.operand(*h)
	}
	n := x.n
	switch e.Fun {
	case ir.MathAbs:
		return b.vecOp(shader.OpMOV, n, false, x.src.Absolute())
	case ir.MathMin:
		return b.vecOp(shader.OpMIN, n, false, x.src, arg(e.Arg1).src)
	case ir.MathMax:
		return b.vecOp(shader.OpMAX, n, false, x.src, arg(e.Arg1).src)
	case ir.MathClamp:
		lo := b.vecOp(shader.OpMAX, n, false, x.src, arg(e.Arg1).src)
		return b.vecOp(shader.OpMIN, n, false, lo.src, arg(e.Arg2).src)
	case ir.MathSaturate:
		return b.vecOp(shader.OpMOV, n, true, x.src)
	case ir.MathCos:
		return b.scalarOp(shader.OpCOS, n, x)
	case ir.MathSin:
		return b.scalarOp(shader.OpSIN, n, x)
	case ir.MathTan:
		s := b.scalarOp(shader.OpSIN, n, x)
		c := b.scalarOp(shader.OpCOS, n, x)
		return b.divide(s, c, n)
	case ir.MathRadians:
		return b.vecOp(shader.OpMUL, n, false, x.src, b.prog.Scalar(math.Pi/180))
	case ir.MathDegrees:
		return b.vecOp(shader.OpMUL, n, false, x.src, b.prog.Scalar(180/math.Pi))
	case ir.MathFloor:
		return b.vecOp(shader.OpFLR, n, false, x.src)
	case ir.MathCeil:
		f := b.vecOp(shader.OpFLR, n, false, x.src.Neg())
		return value{src: f.src.Neg(), n: n}
	case ir.MathRound:
		h := b.vecOp(shader.OpADD, n, false, x.src, b.prog.Scalar(0.5))
		return b.vecOp(shader.OpFLR, n, false, h.src)
	case ir.MathFract:
		return b.vecOp(shader.OpFRC, n, false, x.src)
	case ir.MathTrunc:
		return b.vecOp(shader.OpTRUNC, n, false, x.src)
	case ir.MathExp2:
		return b.scalarOp(shader.OpEX2, n, x)
	case ir.MathLog2:
		return b.scalarOp(shader.OpLG2, n, x)
	case ir.MathExp:
		s := b.vecOp(shader.OpMUL, n, false, x.src, b.prog.Scalar(log2e))
		return b.scalarOp(shader.OpEX2, n, s)
	case ir.MathLog:
		l := b.scalarOp(shader.OpLG2, n, x)
		return b.vecOp(shader.OpMUL, n, false, l.src, b.prog.Scalar(ln2))
	case ir.MathPow:
		return b.scalarOp(shader.OpPOW, n, x, arg(e.Arg1))
	case ir.MathSqrt:
		r := b.scalarOp(shader.OpRSQ, n, x)
		return b.scalarOp(shader.OpRCP, n, r)
	case ir.MathInverseSqrt:
		return b.scalarOp(shader.OpRSQ, n, x)
	case ir.MathDot:
		return b.dot(x, arg(e.Arg1))
	case ir.MathCross:
		return b.vecOp(shader.OpXPD, 3, false, x.src, arg(e.Arg1).src)
	case ir.MathLength:
		return b.length(x)
	case ir.MathDistance:
		d := b.vecOp(shader.OpSUB, n, false, x.src, arg(e.Arg1).src)
		return b.length(d)
	case ir.MathNormalize:
		d := b.dot(x, x)
		rsq := b.vecOp(shader.OpRSQ, 1, false, d.src)
		return b.vecOp(shader.OpMUL, n, false, x.src, rsq.src)
	case ir.MathFma:
		return b.vecOp(shader.OpMAD, n, false, x.src, arg(e.Arg1).src, arg(e.Arg2).src)
	case ir.MathMix:
		// mix(a, b, t) = t*b + (1-t)*a
		return b.vecOp(shader.OpLRP, n, false, arg(e.Arg2).src, arg(e.Arg1).src, x.src)
	case ir.MathStep:
		v := arg(e.Arg1)
		return b.vecOp(shader.OpSGE, max(n, v.n), false, v.src, x.src)
	case ir.MathSmoothStep:
		return b.smoothstep(x, arg(e.Arg1), arg(e.Arg2))
	case ir.MathSign:
		pos := b.vecOp(shader.OpSGT, n, false, x.src, b.prog.Scalar(0))
		neg := b.vecOp(shader.OpSLT, n, false, x.src, b.prog.Scalar(0))
		return b.vecOp(shader.OpSUB, n, false, pos.src, neg.src)
	case ir.MathReflect:
		// i - 2*dot(n, i)*n
		nrm := arg(e.Arg1)
		d := b.dot(nrm, x)
		d2 := b.vecOp(shader.OpADD, 1, false, d.src, d.src)
		return b.vecOp(shader.OpMAD, n, false, d2.src.Neg(), nrm.src, x.src)
	}
	return b.unsupported(fmt.Sprintf("math function %d", e.Fun))
}

// smoothstep computes t*t*(3-2t) with t = saturate((x-e0)/(e1-e0)).
func (b *builder) smoothstep(e0, e1, x value) value {
	n := max(x.n, e0.n)
	num := b.vecOp(shader.OpSUB, n, false, x.src, e0.src)
	den := b.vecOp(shader.OpSUB, max(e0.n, e1.n), false, e1.src, e0.src)
	q := b.divide(num, den, n)
	t := b.vecOp(shader.OpMOV, n, true, q.src)
	k := b.vecOp(shader.OpMAD, n, false, t.src, b.prog.Scalar(-2), b.prog.Scalar(3))
	t2 := b.vecOp(shader.OpMUL, n, false, t.src, t.src)
	return b.vecOp(shader.OpMUL, n, false, t2.src, k.src)
}

func (b *builder) convert(e ir.ExprAs) value {
	v := b.operand(e.Expr)
	if e.Convert == nil {
		return b.unsupported("bitcast")
	}
	switch e.Kind {
	case ir.ScalarSint, ir.ScalarUint:
		return b.vecOp(shader.OpTRUNC, v.n, false, v.src)
	case ir.ScalarBool:
		return b.vecOp(shader.OpSNE, v.n, false, v.src, b.prog.Scalar(0))
	}
	return v
}

func texTarget(dim ir.ImageDimension, shadow bool) (shader.TexTarget, bool) {
	switch dim {
	case ir.Dim1D:
		if shadow {
			return shader.TexShadow1D, true
		}
		return shader.Tex1D, true
	case ir.Dim2D:
		if shadow {
			return shader.TexShadow2D, true
		}
		return shader.Tex2D, true
	case ir.Dim3D:
		return shader.Tex3D, !shadow
	case ir.DimCube:
		return shader.TexCube, !shadow
	}
	return 0, false
}

func (b *builder) sample(e ir.ExprImageSample) value {
	tex := b.eval(e.Image)
	if tex.kind != kindTexture {
		return b.unsupported("sampling a non-texture")
	}
	if e.Gather != nil || e.ArrayIndex != nil || e.Offset != nil {
		return b.unsupported("gather, arrayed or offset sampling")
	}
	target, ok := texTarget(tex.dim, e.DepthRef != nil)
	if !ok {
		return b.unsupported("texture dimension")
	}
	coord := b.operand(e.Coordinate)

	op := shader.OpTEX
	type extra struct {
		ch  int
		src shader.Src
	}
	var extras []extra
	if e.DepthRef != nil {
		extras = append(extras, extra{2, b.operand(*e.DepthRef).src})
	}
	switch lvl := e.Level.(type) {
	case nil, ir.SampleLevelAuto:
	case ir.SampleLevelBias:
		op = shader.OpTXB
		extras = append(extras, extra{3, b.operand(lvl.Bias).src})
	default:
		return b.unsupported(fmt.Sprintf("sample level %T", lvl))
	}

	src := coord.src
	if len(extras) > 0 {
		t := b.newTemp()
		b.prog.Add(shader.OpMOV, shader.TempDst(t).Mask(channelMask(coord.n)), coord.src)
		for _, x := range extras {
			b.prog.Add(shader.OpMOV, shader.TempDst(t).Mask(1<<x.ch), x.src)
		}
		src = shader.Temp(t)
	}

	t := b.newTemp()
	b.prog.AddTex(op, shader.TempDst(t), src, tex.unit, target)
	if tex.depth {
		return result(t, 1)
	}
	return result(t, 4)
}

func alignUp(v, a uint32) uint32 { return (v + a - 1) &^ (a - 1) }
