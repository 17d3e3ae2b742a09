package wm

import (
	"math"

	"github.com/gogpu/statecc/shader"
)

// paramKey deduplicates CURBE parameters.
type paramKey struct {
	src   ParamSource
	index int
	ch    uint8
	bits  uint32
}

// builder translates a shader.Program into the IR, renaming every
// register channel to a fresh value on each write.
type builder struct {
	*ir
	prog *shader.Program
	key  Key

	temps  [shader.MaxTemps][4]ValueID
	outs   [shader.OutputDepth + 1][4]ValueID
	inputs map[int][4]ValueID
	params map[paramKey]ValueID

	// Payload values.
	srcDepth  ValueID
	destDepth ValueID
	aaStencil ValueID
	interp    []ValueID // per interpolated attribute, position first
	slots     []int     // input slot of each interp entry

	pixelXY [2]ValueID
	delta   [2]ValueID
	pixelW  ValueID

	computesDepth bool
	usesKill      bool
}

func newBuilder(prog *shader.Program, key Key) *builder {
	b := &builder{
		ir:     newIR(),
		prog:   prog,
		key:    key,
		inputs: make(map[int][4]ValueID),
		params: make(map[paramKey]ValueID),
	}
	for i := range b.temps {
		b.temps[i] = [4]ValueID{b.undef, b.undef, b.undef, b.undef}
	}
	for i := range b.outs {
		b.outs[i] = [4]ValueID{b.undef, b.undef, b.undef, b.undef}
	}
	b.srcDepth, b.destDepth, b.aaStencil = NoValue, NoValue, NoValue
	return b
}

// pass0 builds the IR: prologue, user instructions, framebuffer writes.
func (b *builder) pass0() {
	b.payload()
	b.prologue()

	for i := range b.prog.Instructions {
		if b.prog.Instructions[i].Op == shader.OpEND {
			break
		}
		b.translate(&b.prog.Instructions[i])
	}

	b.epilogue()
}

func (b *builder) payload() {
	if b.key.SourceDepth {
		b.srcDepth = b.newValue(valuePayload)
	}
	if b.key.DestDepth {
		b.destDepth = b.newValue(valuePayload)
	}
	if b.key.AADestStencil {
		b.aaStencil = b.newValue(valuePayload)
	}

	b.addInterp(shader.InputPosition)
	for _, d := range b.prog.Inputs {
		if d.Slot != shader.InputPosition && d.Slot != shader.InputFace {
			b.addInterp(d.Slot)
		}
	}
}

func (b *builder) addInterp(slot int) {
	b.interp = append(b.interp, b.newValue(valuePayload))
	b.slots = append(b.slots, slot)
}

func (b *builder) interpFor(slot int) ValueID {
	for i, s := range b.slots {
		if s == slot {
			return b.interp[i]
		}
	}
	return NoValue
}

func (b *builder) temp() ValueID { return b.newValue(valueTemp) }

func ref(v ValueID) Ref { return Ref{Value: v} }

// prologue computes pixel coordinates, deltas, 1/w and every declared
// input. Unread channels are removed later by pass1.
func (b *builder) prologue() {
	b.pixelXY = [2]ValueID{b.temp(), b.temp()}
	b.add(Instruction{Op: OpPixelXY, Dst: [4]ValueID{b.pixelXY[0], b.pixelXY[1], NoValue, NoValue}, Src: emptySrcs()})

	b.delta = [2]ValueID{b.temp(), b.temp()}
	src := emptySrcs()
	src[0][0], src[0][1] = ref(b.pixelXY[0]), ref(b.pixelXY[1])
	b.add(Instruction{Op: OpDeltaXY, Dst: [4]ValueID{b.delta[0], b.delta[1], NoValue, NoValue}, Src: src})

	b.pixelW = b.temp()
	src = emptySrcs()
	src[0][0] = ref(b.interpFor(shader.InputPosition))
	src[1][0], src[1][1] = ref(b.delta[0]), ref(b.delta[1])
	b.add(Instruction{Op: OpPixelW, Dst: [4]ValueID{NoValue, NoValue, NoValue, b.pixelW}, Src: src})

	for _, d := range b.prog.Inputs {
		switch d.Slot {
		case shader.InputPosition:
			b.inputs[d.Slot] = b.position()
		case shader.InputFace:
			dst := [4]ValueID{b.temp(), b.temp(), b.temp(), b.temp()}
			b.add(Instruction{Op: OpFrontFacing, Dst: dst, Src: emptySrcs()})
			b.inputs[d.Slot] = dst
		default:
			b.inputs[d.Slot] = b.interpolate(d)
		}
	}
}

func (b *builder) position() [4]ValueID {
	xy := [4]ValueID{b.temp(), b.temp(), NoValue, NoValue}
	src := emptySrcs()
	src[0][0], src[0][1] = ref(b.pixelXY[0]), ref(b.pixelXY[1])
	b.add(Instruction{Op: OpWPosXY, Dst: xy, Src: src})

	z := b.temp()
	src = emptySrcs()
	src[0][0] = ref(b.interpFor(shader.InputPosition))
	src[1][0], src[1][1] = ref(b.delta[0]), ref(b.delta[1])
	b.add(Instruction{Op: OpLinterp, Dst: [4]ValueID{NoValue, NoValue, z, NoValue}, Src: src})

	return [4]ValueID{xy[0], xy[1], z, b.pixelW}
}

func (b *builder) interpolate(d shader.InputDecl) [4]ValueID {
	mode := d.Interp
	if b.key.Flatshade && (d.Slot == shader.InputColor0 || d.Slot == shader.InputColor1) {
		mode = shader.InterpConstant
	}

	dst := [4]ValueID{b.temp(), b.temp(), b.temp(), b.temp()}
	src := emptySrcs()
	src[0][0] = ref(b.interpFor(d.Slot))

	op := OpCinterp
	switch mode {
	case shader.InterpLinear:
		op = OpLinterp
		src[1][0], src[1][1] = ref(b.delta[0]), ref(b.delta[1])
	case shader.InterpPerspective:
		op = OpPinterp
		src[1][0], src[1][1] = ref(b.delta[0]), ref(b.delta[1])
		src[2][3] = ref(b.pixelW)
	}
	b.add(Instruction{Op: op, Dst: dst, Src: src})
	return dst
}

func emptySrcs() [3][4]Ref {
	var s [3][4]Ref
	for i := range s {
		s[i] = [4]Ref{noRef, noRef, noRef, noRef}
	}
	return s
}

// =============================================================================
// User instructions
// =============================================================================

func (b *builder) param(k paramKey, p Param) ValueID {
	if v, ok := b.params[k]; ok {
		return v
	}
	v := b.newValue(valueParam)
	b.values[v].param = len(b.ir.params)
	b.ir.params = append(b.ir.params, p)
	b.params[k] = v
	return v
}

func (b *builder) immediate(f float32) ValueID {
	bits := math.Float32bits(f)
	return b.param(paramKey{src: ParamImmediate, bits: bits}, Param{Source: ParamImmediate, Value: f})
}

//nolint:gosec // G115: swizzle selectors are below 4 here
func (b *builder) constant(index int, ch uint8) ValueID {
	return b.param(paramKey{src: ParamConstant, index: index, ch: ch},
		Param{Source: ParamConstant, Index: index, Channel: ch})
}

// srcRef resolves channel ch of s to the value it currently names.
func (b *builder) srcRef(s shader.Src, ch int) Ref {
	r := Ref{Negate: s.Negate&(1<<ch) != 0, Abs: s.Abs}
	sw := s.Swizzle[ch]
	switch {
	case sw == shader.SwizzleZero:
		r.Value = b.immediate(0)
		return r
	case sw == shader.SwizzleOne:
		r.Value = b.immediate(1)
		return r
	}

	switch s.File {
	case shader.FileTemp:
		r.Value = b.temps[s.Index][sw]
	case shader.FileOutput:
		r.Value = b.outs[s.Index][sw]
	case shader.FileInput:
		if in, ok := b.inputs[s.Index]; ok {
			r.Value = in[sw]
		} else {
			r.Value = b.undef
		}
	case shader.FileConst:
		r.Value = b.constant(s.Index, sw)
	case shader.FileImmediate:
		r.Value = b.immediate(b.prog.Immediates[s.Index][sw])
	default:
		r.Value = b.undef
	}
	return r
}

func (b *builder) srcs(in *shader.Instruction) [3][4]Ref {
	out := emptySrcs()
	n := in.Op.Info().NumSrc
	for s := 0; s < n; s++ {
		for ch := 0; ch < 4; ch++ {
			out[s][ch] = b.srcRef(in.Src[s], ch)
		}
	}
	return out
}

// rename points the destination register's channels at vals.
func (b *builder) rename(d shader.Dst, ch int, v ValueID) {
	switch d.File {
	case shader.FileTemp:
		b.temps[d.Index][ch] = v
	case shader.FileOutput:
		b.outs[d.Index][ch] = v
		if d.Index == shader.OutputDepth && ch == 2 {
			b.computesDepth = true
		}
	}
}

func (b *builder) translate(in *shader.Instruction) {
	info := in.Op.Info()
	mask := in.Dst.WriteMask
	src := b.srcs(in)

	op := in.Op
	switch op {
	case shader.OpNop:
		return
	case shader.OpSUB:
		op = shader.OpADD
		for ch := range src[1] {
			src[1][ch].Negate = !src[1][ch].Negate
		}
	case shader.OpABS:
		op = shader.OpMOV
		for ch := range src[0] {
			src[0][ch].Abs, src[0][ch].Negate = true, false
		}
	case shader.OpTXP:
		op = shader.OpTEX
		b.project(&src[0], in.TexTarget)
	case shader.OpSCS:
		mask &= shader.WriteXY
	case shader.OpXPD:
		mask &= shader.WriteXYZ
	case shader.OpLIT:
		one := b.immediate(1)
		for _, ch := range []int{0, 3} {
			if mask&(1<<ch) != 0 {
				b.rename(in.Dst, ch, one)
			}
		}
		mask &^= shader.WriteX | shader.WriteW
	case shader.OpKIL:
		b.usesKill = true
	case shader.OpKILP:
		b.usesKill = true
	}

	out := Instruction{
		Op:        op,
		Dst:       [4]ValueID{NoValue, NoValue, NoValue, NoValue},
		Saturate:  in.Saturate,
		Src:       src,
		TexUnit:   in.TexUnit,
		TexTarget: in.TexTarget,
		User:      true,
	}

	if info.HasDst {
		if mask == 0 {
			return
		}
		if info.Scalar {
			// One value serves every written channel.
			v := b.temp()
			first := -1
			for ch := 0; ch < 4; ch++ {
				if mask&(1<<ch) != 0 {
					if first < 0 {
						first = ch
					}
					b.rename(in.Dst, ch, v)
				}
			}
			out.Dst[first] = v
		} else {
			var vals [4]ValueID
			for ch := 0; ch < 4; ch++ {
				vals[ch] = NoValue
				if mask&(1<<ch) != 0 {
					vals[ch] = b.temp()
					out.Dst[ch] = vals[ch]
				}
			}
			// Rename after reading so "MOV t0, t0.yxzw" sees old values.
			for ch, v := range vals {
				if v != NoValue {
					b.rename(in.Dst, ch, v)
				}
			}
		}
	}
	b.add(out)
}

// project divides the coordinate channels by w for TXP.
func (b *builder) project(coord *[4]Ref, target shader.TexTarget) {
	w := b.temp()
	rsrc := emptySrcs()
	rsrc[0][0] = coord[3]
	b.add(Instruction{Op: shader.OpRCP, Dst: [4]ValueID{w, NoValue, NoValue, NoValue}, Src: rsrc})

	n := target.Coords()
	if target.Shadow() {
		n = 3
	}
	for ch := 0; ch < n; ch++ {
		q := b.temp()
		msrc := emptySrcs()
		msrc[0][0], msrc[1][0] = coord[ch], ref(w)
		b.add(Instruction{Op: shader.OpMUL, Dst: [4]ValueID{q, NoValue, NoValue, NoValue}, Src: msrc})
		coord[ch] = ref(q)
	}
}

// epilogue appends one framebuffer write per colour target, the last one
// ending the thread.
func (b *builder) epilogue() {
	targets := int(b.key.ColorTargets)
	if targets == 0 {
		targets = 1
	}
	for t := 0; t < targets; t++ {
		src := emptySrcs()
		for ch := 0; ch < 4; ch++ {
			src[0][ch] = ref(b.outs[t][ch])
		}
		src[1][0] = ref(b.srcDepth)
		src[1][1] = ref(b.aaStencil)
		src[1][2] = ref(b.destDepth)
		if b.computesDepth {
			src[2][2] = ref(b.outs[shader.OutputDepth][2])
		}
		b.add(Instruction{
			Op:     OpFBWrite,
			Dst:    [4]ValueID{NoValue, NoValue, NoValue, NoValue},
			Src:    src,
			Target: uint8(t), //nolint:gosec // G115: at most MaxColorOuts targets
			EOT:    t == targets-1,
		})
	}
}
