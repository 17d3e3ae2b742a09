// Package dirty schedules state atoms from three namespaces of dirty bits.
//
// Pipe bits are raised by the API-facing setters, Driver bits by driver
// bookkeeping (CURBE layout, URB fence, new batch) and Cache bits when the
// state cache hands out a different entry for a stage. An atom runs when
// any bit it declares is dirty. Atoms run in registration order, so a
// producer must be registered before its consumers.
package dirty

import (
	"fmt"
	"math/bits"
	"strings"
)

// Bits is a set of dirty flags across the three namespaces.
type Bits struct {
	Pipe   uint64
	Driver uint64
	Cache  uint64
}

// Any reports whether any flag is set.
func (b Bits) Any() bool { return b.Pipe|b.Driver|b.Cache != 0 }

// Intersects reports whether b and o share a flag.
func (b Bits) Intersects(o Bits) bool {
	return b.Pipe&o.Pipe != 0 || b.Driver&o.Driver != 0 || b.Cache&o.Cache != 0
}

// Or returns the union of b and o.
func (b Bits) Or(o Bits) Bits {
	return Bits{Pipe: b.Pipe | o.Pipe, Driver: b.Driver | o.Driver, Cache: b.Cache | o.Cache}
}

// AndNot returns the flags of b not present in o.
func (b Bits) AndNot(o Bits) Bits {
	return Bits{Pipe: b.Pipe &^ o.Pipe, Driver: b.Driver &^ o.Driver, Cache: b.Cache &^ o.Cache}
}

// Count returns the number of set flags.
func (b Bits) Count() int {
	return bits.OnesCount64(b.Pipe) + bits.OnesCount64(b.Driver) + bits.OnesCount64(b.Cache)
}

// String formats b as hex masks.
func (b Bits) String() string {
	return fmt.Sprintf("pipe=%#x driver=%#x cache=%#x", b.Pipe, b.Driver, b.Cache)
}

// Atom is one unit of state upload.
//
// Prepare computes derived state and may call the cache and compilers; it
// may also raise further bits that later atoms observe in the same pass.
// Emit appends the prepared state to the batch. Either function may be nil.
type Atom[C any] struct {
	Name    string
	Deps    Bits
	Prepare func(C) error
	Emit    func(C) error
}

// Scheduler runs dirty atoms in a fixed order.
type Scheduler[C any] struct {
	atoms   []Atom[C]
	dirty   Bits
	collect func(C) Bits
	debug   bool

	ran []bool
}

// New returns a scheduler. collect, if non-nil, is called after every
// prepare to gather bits raised outside the atom (such as cache changes).
func New[C any](collect func(C) Bits) *Scheduler[C] {
	return &Scheduler[C]{collect: collect}
}

// Register appends atoms to the processing order.
func (s *Scheduler[C]) Register(atoms ...Atom[C]) {
	s.atoms = append(s.atoms, atoms...)
	s.ran = make([]bool, len(s.atoms))
}

// Atoms returns the registered atoms in processing order.
func (s *Scheduler[C]) Atoms() []Atom[C] { return s.atoms }

// SetDebug enables the ordering check: a bit raised by an atom that an
// earlier (or the same) atom of the pass depends on is logged at warn level.
func (s *Scheduler[C]) SetDebug(on bool) { s.debug = on }

// Flag marks bits dirty.
func (s *Scheduler[C]) Flag(b Bits) { s.dirty = s.dirty.Or(b) }

// Dirty returns the pending dirty set.
func (s *Scheduler[C]) Dirty() Bits { return s.dirty }

// Run prepares then emits every atom whose dependencies are dirty, then
// clears all bits. When a prepare or emit fails Run returns the error and
// keeps the bits, so the next Run retries the whole update.
func (s *Scheduler[C]) Run(ctx C) error {
	state := s.dirty
	if s.collect != nil {
		state = state.Or(s.collect(ctx))
	}
	if !state.Any() {
		return nil
	}

	var examined, prev Bits
	prev = state
	prepared := 0
	for i, a := range s.atoms {
		s.ran[i] = false
		if a.Deps.Intersects(state) {
			s.ran[i] = true
			prepared++
			if a.Prepare != nil {
				if err := a.Prepare(ctx); err != nil {
					s.dirty = state
					return fmt.Errorf("dirty: prepare %s: %w", a.Name, err)
				}
			}
			if s.collect != nil {
				state = state.Or(s.collect(ctx))
			}
		}
		if s.debug {
			examined = examined.Or(a.Deps)
			generated := state.AndNot(prev)
			if generated.Intersects(examined) {
				slogger().Warn("dirty: atom raised state already examined this pass",
					"atom", a.Name,
					"generated", generated.String(),
					"late", s.lateConsumers(i, generated))
			}
			prev = state
		}
	}

	for i, a := range s.atoms {
		if !s.ran[i] || a.Emit == nil {
			continue
		}
		if err := a.Emit(ctx); err != nil {
			s.dirty = state
			return fmt.Errorf("dirty: emit %s: %w", a.Name, err)
		}
	}

	slogger().Debug("dirty: state uploaded", "atoms", prepared, "bits", state.String())
	s.dirty = Bits{}
	return nil
}

// lateConsumers names the atoms up to and including i that read gen.
func (s *Scheduler[C]) lateConsumers(i int, gen Bits) string {
	var names []string
	for _, a := range s.atoms[:i+1] {
		if a.Deps.Intersects(gen) {
			names = append(names, a.Name)
		}
	}
	return strings.Join(names, ",")
}
