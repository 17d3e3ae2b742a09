package dirty

import (
	"bytes"
	"errors"
	"log/slog"
	"strings"
	"testing"
)

type recorder struct {
	calls  []string
	raised Bits
}

func (r *recorder) take() Bits {
	b := r.raised
	r.raised = Bits{}
	return b
}

func atom(name string, deps Bits, raise Bits) Atom[*recorder] {
	return Atom[*recorder]{
		Name: name,
		Deps: deps,
		Prepare: func(r *recorder) error {
			r.calls = append(r.calls, "prepare:"+name)
			r.raised = r.raised.Or(raise)
			return nil
		},
		Emit: func(r *recorder) error {
			r.calls = append(r.calls, "emit:"+name)
			return nil
		},
	}
}

func TestBitsOps(t *testing.T) {
	a := Bits{Pipe: 1, Cache: 4}
	b := Bits{Driver: 2, Cache: 4}

	if !a.Intersects(b) {
		t.Error("Intersects() = false, want true on shared cache bit")
	}
	if a.Intersects(Bits{Pipe: 2}) {
		t.Error("Intersects() = true for disjoint sets")
	}
	if got := a.Or(b); got != (Bits{Pipe: 1, Driver: 2, Cache: 4}) {
		t.Errorf("Or() = %v", got)
	}
	if got := a.AndNot(b); got != (Bits{Pipe: 1}) {
		t.Errorf("AndNot() = %v", got)
	}
	if got := a.Or(b).Count(); got != 3 {
		t.Errorf("Count() = %d, want 3", got)
	}
	if (Bits{}).Any() {
		t.Error("zero Bits reports Any() = true")
	}
}

func TestRunOrderAndClear(t *testing.T) {
	s := New(func(r *recorder) Bits { return r.take() })
	s.Register(
		atom("curbe", Bits{Pipe: 1}, Bits{Driver: 1}),
		atom("idle", Bits{Pipe: 8}, Bits{}),
		atom("wm_unit", Bits{Driver: 1}, Bits{}),
	)

	r := &recorder{}
	s.Flag(Bits{Pipe: 1})
	if err := s.Run(r); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{"prepare:curbe", "prepare:wm_unit", "emit:curbe", "emit:wm_unit"}
	if strings.Join(r.calls, " ") != strings.Join(want, " ") {
		t.Errorf("calls = %v, want %v", r.calls, want)
	}
	if s.Dirty().Any() {
		t.Errorf("Dirty() = %v after Run, want empty", s.Dirty())
	}

	r.calls = nil
	if err := s.Run(r); err != nil {
		t.Fatal(err)
	}
	if len(r.calls) != 0 {
		t.Errorf("clean Run() invoked atoms: %v", r.calls)
	}
}

func TestRunErrorKeepsBits(t *testing.T) {
	errBoom := errors.New("boom")
	s := New[*recorder](nil)
	failing := true
	s.Register(Atom[*recorder]{
		Name: "wm_prog",
		Deps: Bits{Pipe: 2},
		Prepare: func(*recorder) error {
			if failing {
				return errBoom
			}
			return nil
		},
	})

	s.Flag(Bits{Pipe: 2})
	err := s.Run(&recorder{})
	if !errors.Is(err, errBoom) {
		t.Fatalf("Run() error = %v, want boom", err)
	}
	if !strings.Contains(err.Error(), "wm_prog") {
		t.Errorf("error %q does not name the atom", err)
	}
	if s.Dirty() != (Bits{Pipe: 2}) {
		t.Errorf("Dirty() = %v after failure, want pipe=0x2", s.Dirty())
	}

	failing = false
	if err := s.Run(&recorder{}); err != nil {
		t.Fatalf("retry Run() error = %v", err)
	}
	if s.Dirty().Any() {
		t.Error("bits not cleared after successful retry")
	}
}

func TestDebugReportsLateProducer(t *testing.T) {
	var buf bytes.Buffer
	SetLogger(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	defer SetLogger(nil)

	s := New(func(r *recorder) Bits { return r.take() })
	s.SetDebug(true)
	s.Register(
		atom("consumer", Bits{Driver: 4}, Bits{}),
		atom("producer", Bits{Pipe: 1}, Bits{Driver: 4}),
	)
	s.Flag(Bits{Pipe: 1})
	if err := s.Run(&recorder{}); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "late=consumer") {
		t.Errorf("ordering problem not reported, log:\n%s", buf.String())
	}
}
