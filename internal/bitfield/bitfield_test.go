package bitfield

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestRecordSetGet(t *testing.T) {
	grf := F("grf_reg_count", 0, 1, 3)
	kernel := F("kernel_start_pointer", 0, 6, 31)
	enable := Bit("enable", 1, 0)

	r := NewRecord(2)
	r.Set(grf, 5)
	r.SetAligned(kernel, 0x1040)
	r.SetBool(enable, true)

	if got := r.Get(grf); got != 5 {
		t.Errorf("Get(grf) = %d, want 5", got)
	}
	if got := r.Get(kernel); got != 0x1040>>6 {
		t.Errorf("Get(kernel) = %#x, want %#x", got, 0x1040>>6)
	}
	if got := r.Word(0); got != 0x1040|5<<1 {
		t.Errorf("Word(0) = %#x, want %#x", got, 0x1040|5<<1)
	}
	if got := r.Get(enable); got != 1 {
		t.Errorf("Get(enable) = %d, want 1", got)
	}

	r.Set(grf, 2)
	if got := r.Get(grf); got != 2 {
		t.Errorf("Get(grf) after overwrite = %d, want 2", got)
	}
	if got := r.Get(kernel); got != 0x1040>>6 {
		t.Errorf("neighbour field clobbered: %#x", got)
	}
}

func TestRecordBytesLittleEndian(t *testing.T) {
	r := NewRecord(2)
	r.SetWord(0, 0x04030201)
	r.SetFloat(1, 1.0)

	want := []byte{1, 2, 3, 4, 0x00, 0x00, 0x80, 0x3f}
	if got := r.Bytes(); !bytes.Equal(got, want) {
		t.Errorf("Bytes() = %x, want %x", got, want)
	}
	if r.Len() != 8 {
		t.Errorf("Len() = %d, want 8", r.Len())
	}
}

func TestFullWidthField(t *testing.T) {
	f := F("all", 0, 0, 31)
	r := NewRecord(1)
	r.Set(f, 0xffffffff)
	if got := r.Get(f); got != 0xffffffff {
		t.Errorf("Get() = %#x, want 0xffffffff", got)
	}
}

func TestSetOverflowPanics(t *testing.T) {
	tests := []struct {
		name string
		fn   func(r *Record)
	}{
		{"too wide", func(r *Record) { r.Set(F("x", 0, 0, 2), 8) }},
		{"unaligned", func(r *Record) { r.SetAligned(F("ptr", 0, 6, 31), 0x1001) }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			defer func() {
				v := recover()
				err, ok := v.(error)
				if !ok || !errors.Is(err, ErrFieldOverflow) {
					t.Errorf("recover() = %v, want ErrFieldOverflow", v)
				}
			}()
			tt.fn(NewRecord(1))
		})
	}
}

func TestFormat(t *testing.T) {
	f := F("max_threads", 0, 25, 30)
	r := NewRecord(1)
	r.Set(f, 15)
	out := Format(r, []Field{f})
	if !strings.Contains(out, "max_threads = 0xf") {
		t.Errorf("Format() = %q", out)
	}
}
