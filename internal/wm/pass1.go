package wm

import (
	"github.com/gogpu/statecc/shader"
)

const (
	maskX    = shader.WriteX
	maskXY   = shader.WriteXY
	maskXYZ  = shader.WriteXYZ
	maskXYZW = shader.WriteXYZW
)

// sideEffect reports whether op must survive regardless of its outputs.
func sideEffect(op shader.Opcode) bool {
	switch op {
	case OpFBWrite, shader.OpKIL, shader.OpKILP:
		return true
	}
	return false
}

// readMask maps the live destination channels of in to the source slots
// it reads.
func readMask(in *Instruction, live uint8) [3]uint8 {
	var m [3]uint8
	switch in.Op {
	case OpFBWrite:
		m = [3]uint8{maskXYZW, maskXYZW, maskXYZW}
	case shader.OpKIL:
		m[0] = maskXYZW
	case shader.OpKILP, OpPixelXY, OpFrontFacing:
		// No sources.
	case OpDeltaXY, OpWPosXY:
		m[0] = live & maskXY
	case OpPixelW:
		if live&shader.WriteW != 0 {
			m[0], m[1] = maskX, maskXY
		}
	case OpLinterp:
		if live != 0 {
			m[0], m[1] = maskX, maskXY
		}
	case OpPinterp:
		if live != 0 {
			m[0], m[1], m[2] = maskX, maskXY, shader.WriteW
		}
	case OpCinterp:
		if live != 0 {
			m[0] = maskX
		}
	case shader.OpDP3:
		if live != 0 {
			m[0], m[1] = maskXYZ, maskXYZ
		}
	case shader.OpDP4:
		if live != 0 {
			m[0], m[1] = maskXYZW, maskXYZW
		}
	case shader.OpDPH:
		if live != 0 {
			m[0], m[1] = maskXYZ, maskXYZW
		}
	case shader.OpRCP, shader.OpRSQ, shader.OpSIN, shader.OpCOS,
		shader.OpEX2, shader.OpLG2, shader.OpSCS:
		if live != 0 {
			m[0] = maskX
		}
	case shader.OpPOW:
		if live != 0 {
			m[0], m[1] = maskX, maskX
		}
	case shader.OpLIT:
		if live&shader.WriteY != 0 {
			m[0] |= maskX
		}
		if live&shader.WriteZ != 0 {
			m[0] |= maskX | shader.WriteY | shader.WriteW
		}
	case shader.OpXPD:
		for ch := 0; ch < 3; ch++ {
			if live&(1<<ch) != 0 {
				need := uint8(1<<((ch+1)%3) | 1<<((ch+2)%3))
				m[0] |= need
				m[1] |= need
			}
		}
	case shader.OpTEX, shader.OpTXB:
		if live != 0 {
			m[0] = uint8(1)<<in.TexTarget.Coords() - 1
			if in.TexTarget.Shadow() {
				m[0] |= shader.WriteZ
			}
			if in.Op == shader.OpTXB {
				m[0] |= shader.WriteW
			}
		}
	default:
		// Channel-wise operations read the channels they write.
		m = [3]uint8{live, live, live}
	}
	return m
}

// pass1 removes computations whose results never reach a side effect.
// Instructions are visited back to front so that a source whose last
// reader disappears is itself pruned when its producer is visited. It
// returns the number of changes; a second run returns zero.
func (c *ir) pass1() int {
	for i := range c.values {
		c.values[i].contributes = false
	}

	changes := 0
	for i := len(c.insts) - 1; i >= 0; i-- {
		in := &c.insts[i]
		if in.Dead {
			continue
		}

		var live uint8
		for ch, v := range in.Dst {
			if v != NoValue && c.values[v].contributes {
				live |= 1 << ch
			}
		}

		if !sideEffect(in.Op) {
			if live == 0 {
				c.kill(i)
				changes++
				continue
			}
			if live != in.WriteMask {
				for ch := range in.Dst {
					if live&(1<<ch) == 0 {
						in.Dst[ch] = NoValue
					}
				}
				in.WriteMask = live
				changes++
			}
		}

		need := readMask(in, live)
		for s := range in.Src {
			for ch := range in.Src[s] {
				r := in.Src[s][ch]
				if r.Value == NoValue {
					continue
				}
				if need[s]&(1<<ch) != 0 {
					c.values[r.Value].contributes = true
				} else {
					c.unlink(i, s, ch)
					changes++
				}
			}
		}
	}
	return changes
}
