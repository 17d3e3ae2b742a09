package wm

import (
	"fmt"

	"github.com/gogpu/statecc/internal/curbe"
	"github.com/gogpu/statecc/shader"
)

// Register pairs hold one SIMD-16 float channel.
const pairSize = 2

// slotBytes is the scratch space of one spilled value.
const slotBytes = 64

// owner markers for pairs that hold no value.
const (
	pairFree ValueID = -1
	pairTemp ValueID = -2
)

// layout is the fixed part of the register file.
type layout struct {
	curbeStart int
	curbeRegs  int
	urbStart   int
	urbRegs    int
	first      int // first allocatable register
}

// regalloc assigns register pairs to values with a linear scan over the
// surviving instructions. When the budget is exhausted the resident value
// whose next use is furthest away is evicted to a scratch slot.
type regalloc struct {
	*ir
	lay   layout
	limit int
	owner []ValueID // per pair, starting at lay.first
	slots int       // scratch slots handed out; slot 0 is the undefined value
	high  int       // one past the highest register touched
	spills int
}

// compactParams drops parameters no surviving instruction reads and
// renumbers the rest in first-use order.
func (c *ir) compactParams() {
	remap := make(map[int]int)
	var kept []Param
	for _, i := range c.live() {
		in := &c.insts[i]
		for s := range in.Src {
			for _, r := range in.Src[s] {
				if r.Value == NoValue {
					continue
				}
				v := &c.values[r.Value]
				if v.kind != valueParam {
					continue
				}
				if _, ok := remap[v.param]; !ok {
					remap[v.param] = len(kept)
					kept = append(kept, c.params[v.param])
				}
			}
		}
	}
	for i := range c.values {
		v := &c.values[i]
		if v.kind != valueParam {
			continue
		}
		if n, ok := remap[v.param]; ok {
			v.param = n
		} else {
			v.param = -1
		}
	}
	c.params = kept
}

// assignPayload places the thread payload: r0-r1 header, then optional
// depth and AA payload, CURBE parameters and attribute setup data.
func (b *builder) assignPayload() layout {
	reg := 2
	for _, v := range []ValueID{b.srcDepth, b.destDepth} {
		if v != NoValue {
			b.values[v].payloadReg = reg
			reg += pairSize
		}
	}
	if b.aaStencil != NoValue {
		b.values[b.aaStencil].payloadReg = reg
		reg++
	}

	var lay layout
	lay.curbeStart = reg
	lay.curbeRegs = int(curbe.FragmentRegs(len(b.ir.params)))
	reg += lay.curbeRegs

	lay.urbStart = reg
	for _, v := range b.interp {
		b.values[v].payloadReg = reg
		reg += pairSize
	}
	lay.urbRegs = reg - lay.urbStart

	lay.first = reg + reg%pairSize
	return lay
}

func newRegalloc(c *ir, lay layout, maxGRF int) *regalloc {
	limit := maxGRF - (maxGRF-lay.first)%pairSize
	n := 0
	if limit > lay.first {
		n = (limit - lay.first) / pairSize
	}
	ra := &regalloc{ir: c, lay: lay, limit: limit, owner: make([]ValueID, n), slots: 1, high: lay.first}
	for i := range ra.owner {
		ra.owner[i] = pairFree
	}
	return ra
}

func (ra *regalloc) pairReg(p int) int { return ra.lay.first + p*pairSize }

func (ra *regalloc) touch(reg, n int) { ra.high = max(ra.high, reg+n) }

// evict spills the value in pair p to a scratch slot.
func (ra *regalloc) evict(p int) {
	v := &ra.values[ra.owner[p]]
	if v.spillSlot == 0 {
		v.spillSlot = ra.slots
		ra.slots++
		ra.spills++
	}
	v.resident = false
	ra.owner[p] = pairFree
}

// victim returns the evictable pair whose value is needed furthest in the
// future, or -1.
func (ra *regalloc) victim(at int, pinned map[int]bool) int {
	best, bestUse := -1, -1
	for p, o := range ra.owner {
		if o < 0 || pinned[p] {
			continue
		}
		use := ra.nextUse(o, at)
		if use < 0 {
			use = len(ra.insts) + 1
		}
		if use > bestUse {
			best, bestUse = p, use
		}
	}
	return best
}

// allocPair returns a free pair for owner, evicting if needed.
func (ra *regalloc) allocPair(owner ValueID, at int, pinned map[int]bool) (int, error) {
	for p, o := range ra.owner {
		if o == pairFree && !pinned[p] {
			ra.owner[p] = owner
			ra.touch(ra.pairReg(p), pairSize)
			return p, nil
		}
	}
	p := ra.victim(at, pinned)
	if p < 0 {
		return 0, fmt.Errorf("%w: instruction %d needs more than %d registers", ErrRegisterBudget, at, ra.limit)
	}
	ra.evict(p)
	ra.owner[p] = owner
	ra.touch(ra.pairReg(p), pairSize)
	return p, nil
}

// allocBlock returns n consecutive pairs, evicting the fewest values.
func (ra *regalloc) allocBlock(n, at int, pinned map[int]bool) (int, error) {
	best, bestCost := -1, n+1
	for start := 0; start+n <= len(ra.owner); start++ {
		cost := 0
		for p := start; p < start+n; p++ {
			o := ra.owner[p]
			if pinned[p] || o == pairTemp {
				cost = n + 1
				break
			}
			if o >= 0 {
				cost++
			}
		}
		if cost < bestCost {
			best, bestCost = start, cost
			if cost == 0 {
				break
			}
		}
	}
	if best < 0 {
		return 0, fmt.Errorf("%w: instruction %d needs %d contiguous registers", ErrRegisterBudget, at, n*pairSize)
	}
	for p := best; p < best+n; p++ {
		if ra.owner[p] >= 0 {
			ra.evict(p)
		}
		ra.owner[p] = pairTemp
	}
	ra.touch(ra.pairReg(best), n*pairSize)
	return best, nil
}

func (ra *regalloc) pairOf(reg int) int { return (reg - ra.lay.first) / pairSize }

// run walks the surviving instructions in order.
func (ra *regalloc) run() error {
	for _, i := range ra.live() {
		if err := ra.allocInst(i); err != nil {
			return err
		}
	}
	return nil
}

func (ra *regalloc) allocInst(i int) error {
	in := &ra.insts[i]
	pinned := make(map[int]bool)

	// Resident sources stay put for the whole instruction.
	for s := range in.Src {
		for _, r := range in.Src[s] {
			if r.Value == NoValue {
				continue
			}
			v := &ra.values[r.Value]
			if v.kind == valueTemp && v.resident {
				pinned[ra.pairOf(v.reg)] = true
			}
		}
	}

	// Reload spilled and undefined sources into temporaries, one per value.
	reloaded := make(map[ValueID]int)
	var temps []int
	for s := range in.Src {
		for ch := range in.Src[s] {
			r := &in.Src[s][ch]
			if r.Value == NoValue {
				continue
			}
			v := &ra.values[r.Value]
			if v.kind != valueUndef && (v.kind != valueTemp || v.resident) {
				continue
			}
			if reg, ok := reloaded[r.Value]; ok {
				r.unspill = reg
				continue
			}
			p, err := ra.allocPair(pairTemp, i, pinned)
			if err != nil {
				return err
			}
			pinned[p] = true
			temps = append(temps, p)
			r.unspill = ra.pairReg(p)
			reloaded[r.Value] = r.unspill
		}
	}

	// Destinations.
	var blockTemps []int
	if in.Op == shader.OpTEX || in.Op == shader.OpTXB {
		base, err := ra.allocBlock(4, i, pinned)
		if err != nil {
			return err
		}
		in.block = ra.pairReg(base)
		for ch, d := range in.Dst {
			p := base + ch
			if d == NoValue {
				blockTemps = append(blockTemps, p)
				continue
			}
			ra.owner[p] = d
			v := &ra.values[d]
			v.reg, v.resident = ra.pairReg(p), true
		}
	} else {
		for _, d := range in.Dst {
			if d == NoValue {
				continue
			}
			p, err := ra.allocPair(d, i, pinned)
			if err != nil {
				return err
			}
			pinned[p] = true
			v := &ra.values[d]
			v.reg, v.resident = ra.pairReg(p), true
		}
	}

	// Release what this instruction was the last to need.
	for _, p := range append(temps, blockTemps...) {
		ra.owner[p] = pairFree
	}
	for s := range in.Src {
		for _, r := range in.Src[s] {
			if r.Value == NoValue {
				continue
			}
			v := &ra.values[r.Value]
			if v.kind == valueTemp && v.resident && ra.lastUse(r.Value) <= i {
				ra.owner[ra.pairOf(v.reg)] = pairFree
				v.resident = false
			}
		}
	}
	for _, d := range in.Dst {
		if d != NoValue && ra.values[d].live == 0 {
			v := &ra.values[d]
			ra.owner[ra.pairOf(v.reg)] = pairFree
			v.resident = false
		}
	}
	return nil
}

// scratchBytes returns the per-thread scratch space used by spills.
func (ra *regalloc) scratchBytes() int {
	if ra.spills == 0 {
		return 0
	}
	return ra.slots * slotBytes
}
