package eu

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
)

// ErrTruncated is returned when code is not a whole number of instructions.
var ErrTruncated = errors.New("eu: truncated instruction stream")

// Disassemble decodes little-endian code into assembler lines.
func Disassemble(code []byte) ([]string, error) {
	if len(code)%InstSize != 0 {
		return nil, fmt.Errorf("%w: %d bytes", ErrTruncated, len(code))
	}
	lines := make([]string, 0, len(code)/InstSize)
	for off := 0; off < len(code); off += InstSize {
		var w [4]uint32
		for i := range w {
			w[i] = binary.LittleEndian.Uint32(code[off+i*4:])
		}
		in := Decode(w)
		lines = append(lines, in.String())
	}
	return lines, nil
}

// String formats the instruction in assembler syntax.
func (in *Inst) String() string {
	var sb strings.Builder
	if in.Predicate != PredNone {
		if in.PredInverse {
			sb.WriteString("(-f0) ")
		} else {
			sb.WriteString("(+f0) ")
		}
	}
	sb.WriteString(in.Op.String())
	if in.Saturate {
		sb.WriteString(".sat")
	}
	if in.Op != OpSEND && int(in.CondMod) < len(condNames) {
		sb.WriteString(condNames[in.CondMod])
	}
	fmt.Fprintf(&sb, "(%d)", in.ExecSize)

	fmt.Fprintf(&sb, " %s", dstString(in.Dst))

	if in.Op == OpSEND {
		msgLen, respLen := DescLengths(in.Desc)
		fmt.Fprintf(&sb, " m%d %s %s mlen %d rlen %d", in.MsgReg, in.Src0, DescTarget(in.Desc), msgLen, respLen)
		if DescEOT(in.Desc) {
			sb.WriteString(" EOT")
		}
	} else {
		fmt.Fprintf(&sb, " %s", in.Src0)
		if in.Src1.File != FileARF || in.Src1.Nr != 0 {
			fmt.Fprintf(&sb, " %s", in.Src1)
		}
	}

	var opts []string
	switch in.Compression {
	case CompressSecHalf:
		opts = append(opts, "sechalf")
	case Compressed:
		opts = append(opts, "compr")
	}
	if in.MaskControl == MaskDisable {
		opts = append(opts, "NoMask")
	}
	if len(opts) > 0 {
		fmt.Fprintf(&sb, " { %s }", strings.Join(opts, ", "))
	}
	return sb.String()
}

func dstString(r Reg) string {
	switch r.File {
	case FileARF:
		if r.Nr == 0 {
			return "null"
		}
		return fmt.Sprintf("a%d", r.Nr)
	case FileMRF:
		return fmt.Sprintf("m%d<%d>%s", r.Nr, decHStride(r.HStride), r.Type)
	}
	sub := ""
	if r.Subnr != 0 {
		sub = fmt.Sprintf(".%d", int(r.Subnr)/r.Type.Size())
	}
	return fmt.Sprintf("g%d%s<%d>%s", r.Nr, sub, decHStride(r.HStride), r.Type)
}
