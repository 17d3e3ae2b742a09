package curbe

import (
	"errors"
	"math/rand/v2"
	"testing"
)

func TestUpdateLayoutOrder(t *testing.T) {
	a := New(DefaultPolicy())
	if !a.Update(Request{Fragment: 2, Clip: 3, Vertex: 4}) {
		t.Fatal("Update() on empty layout = false, want true")
	}
	want := Layout{
		FragmentStart: 0, FragmentSize: 2,
		ClipStart: 2, ClipSize: 3,
		VertexStart: 5, VertexSize: 4,
		Total: 9,
	}
	if got := a.Layout(); got != want {
		t.Errorf("Layout() = %v, want %v", got, want)
	}
}

func TestUpdateHysteresis(t *testing.T) {
	tests := []struct {
		name    string
		initial Request
		next    Request
		changed bool
	}{
		{"unchanged", Request{2, 2, 2}, Request{2, 2, 2}, false},
		{"grow fragment", Request{2, 2, 2}, Request{3, 2, 2}, true},
		{"grow clip from zero", Request{2, 0, 2}, Request{2, 2, 2}, true},
		{"small shrink ignored", Request{8, 4, 8}, Request{6, 4, 8}, false},
		{"shrink below floor ignored", Request{4, 4, 4}, Request{0, 0, 1}, false},
		{"large shrink above floor", Request{10, 4, 10}, Request{1, 0, 1}, true},
		{"shrink to exactly a quarter ignored", Request{10, 2, 8}, Request{5, 0, 0}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(DefaultPolicy())
			a.Update(tt.initial)
			if got := a.Update(tt.next); got != tt.changed {
				t.Errorf("Update(%v) = %v, want %v (layout %v)", tt.next, got, tt.changed, a.Layout())
			}
		})
	}
}

func TestTunablePolicy(t *testing.T) {
	a := New(Policy{ShrinkDivisor: 2, ShrinkFloor: 4})
	a.Update(Request{Fragment: 6})
	if !a.Update(Request{Fragment: 2}) {
		t.Error("Update() with divisor 2 did not shrink 6 -> 2")
	}
	if a.Relayouts() != 2 {
		t.Errorf("Relayouts() = %d, want 2", a.Relayouts())
	}
}

func TestMonotonicity(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	a := New(DefaultPolicy())
	req := Request{}
	for i := 0; i < 500; i++ {
		switch rng.IntN(3) {
		case 0:
			req.Fragment = rng.Uint32N(11)
		case 1:
			req.Clip = rng.Uint32N(5)
		default:
			req.Vertex = rng.Uint32N(11)
		}
		a.Update(req)
		l := a.Layout()

		if l.FragmentStart != 0 || l.ClipStart < l.FragmentStart+l.FragmentSize || l.VertexStart < l.ClipStart+l.ClipSize {
			t.Fatalf("step %d: order broken: %v", i, l)
		}
		if l.FragmentSize < req.Fragment || l.ClipSize < req.Clip || l.VertexSize < req.Vertex {
			t.Fatalf("step %d: layout %v smaller than request %v", i, l, req)
		}
		if l.Total > MaxRegs {
			t.Fatalf("step %d: total %d over budget", i, l.Total)
		}
	}
}

func TestGrowNeverReordersOthers(t *testing.T) {
	a := New(DefaultPolicy())
	a.Update(Request{Fragment: 2, Clip: 2, Vertex: 2})
	before := a.Layout()
	a.Update(Request{Fragment: 2, Clip: 2, Vertex: 5})
	after := a.Layout()
	if after.FragmentStart != before.FragmentStart || after.ClipStart != before.ClipStart {
		t.Errorf("growing vertex moved earlier regions: %v -> %v", before, after)
	}
	if after.VertexStart < after.ClipStart {
		t.Errorf("vertex region placed before clip: %v", after)
	}
}

func TestUpdateOverBudgetPanics(t *testing.T) {
	defer func() {
		err, ok := recover().(error)
		if !ok || !errors.Is(err, ErrBudget) {
			t.Errorf("recover() = %v, want ErrBudget", err)
		}
	}()
	New(DefaultPolicy()).Update(Request{Fragment: 20, Vertex: 13})
}

func TestRegisterHelpers(t *testing.T) {
	tests := []struct {
		name string
		got  uint32
		want uint32
	}{
		{"fragment 0", FragmentRegs(0), 0},
		{"fragment 1", FragmentRegs(1), 1},
		{"fragment 9", FragmentRegs(9), 2},
		{"vertex 3", VertexRegs(3), 2},
		{"clip disabled", ClipRegs(2, false), 0},
		{"clip fixed only", ClipRegs(0, true), 3},
		{"clip with user", ClipRegs(2, true), 4},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s = %d, want %d", tt.name, tt.got, tt.want)
		}
	}
}

func TestBuild(t *testing.T) {
	l := Layout{FragmentStart: 0, FragmentSize: 1, ClipStart: 1, ClipSize: 3, VertexStart: 4, VertexSize: 1, Total: 5}
	buf := Build(l, []float32{1, 2}, nil, [][4]float32{{9, 8, 7, 6}})

	if len(buf) != 40 {
		t.Fatalf("len(Build()) = %d, want 40", len(buf))
	}
	if buf[0] != 1 || buf[1] != 2 {
		t.Errorf("fragment params = %v", buf[:2])
	}
	if buf[8+2] != -1 || buf[8+3] != 1 {
		t.Errorf("first fixed plane = %v, want [0 0 -1 1]", buf[8:12])
	}
	if buf[32] != 9 || buf[35] != 6 {
		t.Errorf("vertex constants = %v", buf[32:36])
	}
}

func TestBufferChanged(t *testing.T) {
	var b Buffer
	data := []float32{1, 2, 3}
	if !b.Changed(data) {
		t.Error("first Changed() = false")
	}
	if b.Changed([]float32{1, 2, 3}) {
		t.Error("Changed() = true for identical contents")
	}
	data[0] = 5
	if !b.Changed(data) {
		t.Error("Changed() = false after edit")
	}
	b.Reset()
	if !b.Changed(data) {
		t.Error("Changed() = false after Reset")
	}
}
