// Package trace disassembles the single long-mode jump target §6's exec
// module hands off to, the same debugging aid machine/debug_amd64.go
// gives vCPU instruction traces via x86asm. This module never resumes
// after the jump (no scheduler, no return path), so the only trace point
// worth decoding is the handful of instructions at the entry address.
package trace

import (
	"fmt"

	"golang.org/x/arch/x86/x86asm"
)

// Line is one decoded instruction: its address, raw bytes, and
// disassembly text.
type Line struct {
	Addr  uint64
	Bytes []byte
	Text  string
}

// Disassemble decodes up to maxInsns instructions of 64-bit code
// starting at addr, stopping early if it runs out of bytes or hits an
// invalid opcode.
func Disassemble(code []byte, addr uint64, maxInsns int) ([]Line, error) {
	var lines []Line

	off := 0
	for i := 0; i < maxInsns && off < len(code); i++ {
		inst, err := x86asm.Decode(code[off:], 64)
		if err != nil {
			return lines, fmt.Errorf("trace: decode at %#x: %w", addr+uint64(off), err)
		}

		text := x86asm.GNUSyntax(inst, addr+uint64(off), nil)

		lines = append(lines, Line{
			Addr:  addr + uint64(off),
			Bytes: append([]byte(nil), code[off:off+inst.Len]...),
			Text:  text,
		})

		off += inst.Len
	}

	return lines, nil
}

// Dump formats lines the way machine.Debug prints a vCPU trace: one
// "addr: bytes  text" line per instruction.
func Dump(lines []Line) string {
	out := ""

	for _, l := range lines {
		out += fmt.Sprintf("%#08x: % x\t%s\n", l.Addr, l.Bytes, l.Text)
	}

	return out
}
