// Copyright 2026 The gogpu Authors
// SPDX-License-Identifier: BSD-3-Clause

package batch

import (
	"errors"
	"strings"
	"testing"
)

type fakeTarget struct {
	addr  uint32
	label string
}

func (f fakeTarget) Address() uint32 { return f.addr }
func (f fakeTarget) Label() string   { return f.label }

func TestBufferPackets(t *testing.T) {
	b := NewBuffer(0)
	vp := fakeTarget{addr: 0x2000, label: "cc_vp"}

	if err := b.Begin(3); err != nil {
		t.Fatalf("Begin: %v", err)
	}
	b.Emit(0x78000001)
	b.EmitReloc(vp, 0x10, UsageState)
	b.Emit(0)
	if err := b.End(); err != nil {
		t.Fatalf("End: %v", err)
	}

	if b.Len() != 3 || b.Packets() != 1 {
		t.Errorf("Len=%d Packets=%d", b.Len(), b.Packets())
	}
	if got := b.Words()[1]; got != 0x10 {
		t.Errorf("unresolved word = %#x, want the delta", got)
	}
	if got := b.Resolve()[1]; got != 0x2010 {
		t.Errorf("resolved word = %#x, want 0x2010", got)
	}
	if r := b.Relocs(); len(r) != 1 || r[0].Index != 1 || r[0].Usage != UsageState {
		t.Errorf("relocs = %+v", r)
	}
	if !strings.Contains(b.Dump(), "cc_vp+0x10 (state)") {
		t.Errorf("dump lacks relocation:\n%s", b.Dump())
	}
}

func TestBufferLengthMismatchDropsPacket(t *testing.T) {
	b := NewBuffer(0)
	if err := b.Begin(1); err != nil {
		t.Fatal(err)
	}
	b.Emit(1)
	if err := b.End(); err != nil {
		t.Fatal(err)
	}

	if err := b.Begin(2); err != nil {
		t.Fatal(err)
	}
	b.EmitReloc(fakeTarget{label: "x"}, 0, UsageInstruction)
	if err := b.End(); !errors.Is(err, ErrPacketLength) {
		t.Fatalf("End error = %v, want ErrPacketLength", err)
	}
	if b.Len() != 1 || len(b.Relocs()) != 0 {
		t.Errorf("short packet not dropped: Len=%d relocs=%d", b.Len(), len(b.Relocs()))
	}
}

func TestBufferFramingErrors(t *testing.T) {
	b := NewBuffer(4)
	if err := b.End(); !errors.Is(err, ErrNotInPacket) {
		t.Errorf("End without Begin = %v", err)
	}
	if err := b.Begin(1); err != nil {
		t.Fatal(err)
	}
	if err := b.Begin(1); !errors.Is(err, ErrNestedPacket) {
		t.Errorf("nested Begin = %v", err)
	}
	b.Emit(0)
	if err := b.End(); err != nil {
		t.Fatal(err)
	}
	if err := b.Begin(4); !errors.Is(err, ErrBatchFull) {
		t.Errorf("oversized Begin = %v, want ErrBatchFull", err)
	}
}

func TestBufferReset(t *testing.T) {
	b := NewBuffer(0)
	_ = b.Begin(1)
	b.EmitReloc(fakeTarget{label: "x"}, 0, UsageSampler)
	_ = b.End()
	b.Reset()
	if b.Len() != 0 || len(b.Relocs()) != 0 || b.Packets() != 0 {
		t.Error("Reset left data behind")
	}
}

func TestUsageString(t *testing.T) {
	tests := []struct {
		u    Usage
		want string
	}{
		{UsageState, "state"},
		{UsageInstruction, "instruction"},
		{UsageSampler, "sampler"},
		{UsageScratch, "scratch"},
		{UsageConstant, "constant"},
		{UsageRender, "render"},
		{UsageTexture, "texture"},
		{Usage(9), "usage(9)"},
	}
	for _, tt := range tests {
		if got := tt.u.String(); got != tt.want {
			t.Errorf("%d.String() = %q, want %q", tt.u, got, tt.want)
		}
	}
}
