package kernel

import (
	"encoding/binary"
	"errors"
	"testing"

	"github.com/gogpu/statecc/internal/eu"
)

func decode(t *testing.T, code []byte) []eu.Inst {
	t.Helper()
	if len(code)%eu.InstSize != 0 {
		t.Fatalf("code length %d is not a multiple of %d", len(code), eu.InstSize)
	}
	var out []eu.Inst
	for off := 0; off < len(code); off += eu.InstSize {
		var w [4]uint32
		for i := range w {
			w[i] = binary.LittleEndian.Uint32(code[off+i*4:])
		}
		out = append(out, eu.Decode(w))
	}
	return out
}

// urbWrite is the decoded view of one URB write.
type urbWrite struct {
	msgLen, respLen uint8
	offset          uint32
	allocate        bool
	complete        bool
	eot             bool
}

func urbWrites(t *testing.T, code []byte) []urbWrite {
	t.Helper()
	var out []urbWrite
	for _, in := range decode(t, code) {
		if in.Op != eu.OpSEND {
			continue
		}
		if eu.DescTarget(in.Desc) != eu.TargetURB {
			t.Fatalf("send to %v, want URB", eu.DescTarget(in.Desc))
		}
		ml, rl := eu.DescLengths(in.Desc)
		out = append(out, urbWrite{
			msgLen:   ml,
			respLen:  rl,
			offset:   in.Desc >> 4 & 0x3f,
			allocate: in.Desc>>13&1 != 0,
			complete: in.Desc>>15&1 != 0,
			eot:      eu.DescEOT(in.Desc),
		})
	}
	return out
}

func TestVSPassThrough(t *testing.T) {
	tests := []struct {
		name  string
		attrs uint8
		want  []urbWrite
	}{
		{
			name:  "position and colour",
			attrs: 2,
			want:  []urbWrite{{msgLen: 4, complete: true, eot: true}},
		},
		{
			name:  "split across messages",
			attrs: 20,
			want: []urbWrite{
				{msgLen: 15},
				{msgLen: 8, offset: 14, complete: true, eot: true},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			k, err := VS(&VSKey{Attributes: tt.attrs, Gen: eu.Gen4})
			if err != nil {
				t.Fatalf("VS: %v", err)
			}
			got := urbWrites(t, k.Code)
			if len(got) != len(tt.want) {
				t.Fatalf("URB writes = %+v, want %+v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("write %d = %+v, want %+v", i, got[i], tt.want[i])
				}
			}
			if k.Data.URBReadLength != Rows(int(tt.attrs)) {
				t.Errorf("URBReadLength = %d", k.Data.URBReadLength)
			}
		})
	}
}

func TestVSRejectsBadCounts(t *testing.T) {
	for _, n := range []uint8{0, MaxAttributes + 1} {
		if _, err := VS(&VSKey{Attributes: n}); !errors.Is(err, ErrTooManyAttributes) {
			t.Errorf("VS(%d attributes) error = %v, want ErrTooManyAttributes", n, err)
		}
	}
}

func TestGSQuadsBecomeStrips(t *testing.T) {
	k, err := GS(&GSKey{Prim: PrimQuadList, Regs: 3})
	if err != nil {
		t.Fatalf("GS: %v", err)
	}
	writes := urbWrites(t, k.Code)
	if len(writes) != 4 {
		t.Fatalf("URB writes = %d, want 4", len(writes))
	}
	for i, w := range writes {
		last := i == 3
		if w.allocate == last || w.eot != last || !w.complete {
			t.Errorf("vertex %d write = %+v", i, w)
		}
		if w.msgLen != 4 {
			t.Errorf("vertex %d msgLen = %d, want 4", i, w.msgLen)
		}
	}

	// The third emitted vertex is input vertex 3, read from g(1+3*3).
	var headers []uint32
	var sources []int
	for _, in := range decode(t, k.Code) {
		if in.Op != eu.OpMOV {
			continue
		}
		if in.ExecSize == 1 {
			headers = append(headers, in.Src0.Imm)
		} else if in.Src0.File == eu.FileGRF {
			sources = append(sources, int(in.Src0.Nr))
		}
	}
	if len(sources) != 12 || sources[6] != 10 {
		t.Errorf("vertex sources = %v, want the third vertex to start at g10", sources)
	}
	if headers[0] != uint32(PrimTriStrip)<<primTypeShift|primStart {
		t.Errorf("first header = %#x", headers[0])
	}
	if headers[3] != uint32(PrimTriStrip)<<primTypeShift|primEnd {
		t.Errorf("last header = %#x", headers[3])
	}
}

func TestGSErrors(t *testing.T) {
	if _, err := GS(&GSKey{Prim: PrimPolygon, Regs: 2}); !errors.Is(err, ErrBadPrimitive) {
		t.Errorf("polygon error = %v, want ErrBadPrimitive", err)
	}
	if _, err := GS(&GSKey{Prim: PrimTriList, Regs: 15}); !errors.Is(err, ErrTooManyAttributes) {
		t.Errorf("15 regs error = %v, want ErrTooManyAttributes", err)
	}
}

func TestClipForwardsVertices(t *testing.T) {
	k, err := Clip(&ClipKey{Prim: PrimTriList, Regs: 2})
	if err != nil {
		t.Fatalf("Clip: %v", err)
	}
	if n := len(urbWrites(t, k.Code)); n != 3 {
		t.Errorf("URB writes = %d, want 3", n)
	}
	if k.Data.TotalGRF != 7 {
		t.Errorf("TotalGRF = %d, want 7", k.Data.TotalGRF)
	}
	if _, err := Clip(&ClipKey{Prim: PrimQuadList, Regs: 2}); !errors.Is(err, ErrBadPrimitive) {
		t.Errorf("quad error = %v, want ErrBadPrimitive", err)
	}
}

func TestSFFlatSetup(t *testing.T) {
	k, err := SF(&SFKey{Prim: PrimTriList, Attributes: 2, Provoking: 2})
	if err != nil {
		t.Fatalf("SF: %v", err)
	}
	writes := urbWrites(t, k.Code)
	if len(writes) != 1 || writes[0].msgLen != 7 || !writes[0].eot {
		t.Fatalf("URB writes = %+v", writes)
	}

	// Provoking vertex 2 starts at g(3 + 2*3); its attributes follow the
	// position register.
	var grfs []int
	zeros := 0
	for _, in := range decode(t, k.Code) {
		if in.Op != eu.OpMOV {
			continue
		}
		if in.Src0.IsImm() {
			zeros++
		} else {
			grfs = append(grfs, int(in.Src0.Nr))
		}
	}
	if len(grfs) != 2 || grfs[0] != 10 || grfs[1] != 11 || zeros != 4 {
		t.Errorf("sources = %v with %d zero gradients", grfs, zeros)
	}
	if k.Data.URBEntryRows != 3 {
		t.Errorf("URBEntryRows = %d, want 3", k.Data.URBEntryRows)
	}
}

func TestSFErrors(t *testing.T) {
	tests := []struct {
		name string
		key  SFKey
		want error
	}{
		{"no attributes", SFKey{Prim: PrimTriList}, ErrTooManyAttributes},
		{"too many attributes", SFKey{Prim: PrimTriList, Attributes: MaxSetupAttributes + 1}, ErrTooManyAttributes},
		{"quads", SFKey{Prim: PrimQuadList, Attributes: 1}, ErrBadPrimitive},
		{"provoking out of range", SFKey{Prim: PrimLineList, Attributes: 1, Provoking: 2}, ErrBadPrimitive},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := SF(&tt.key); !errors.Is(err, tt.want) {
				t.Errorf("error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestPrimString(t *testing.T) {
	if PrimTriStrip.String() != "tristrip" {
		t.Errorf("String() = %q", PrimTriStrip.String())
	}
	if Prim(0x30).String() != "prim(0x30)" {
		t.Errorf("String() = %q", Prim(0x30).String())
	}
}
