/*
rv_program.go - Compiled guest program for the Intuition ZK Engine

A Program is built once by the loader and only read afterwards. It holds the
transpiled instruction stream together with the addresses it lives at and the
initial memory image (constants, data segments, and the raw text words).

Addressing:

	instructions[i] lives at pc_base + 4*i
	valid fetch range is [pc_base, pc_base + 4*len(instructions))

Anything outside that range is out of program bounds and is never fetched,
speculatively or otherwise.
*/

package main

import (
	"maps"
	"slices"
)

// Program is the read-only compiled form of a guest binary.
type Program struct {
	instructions []Instruction
	pcStart      uint32
	pcBase       uint32
	memoryImage  map[uint32]uint32
}

// NewProgram builds a program with an empty memory image.
func NewProgram(instructions []Instruction, pcStart, pcBase uint32) *Program {
	return NewProgramWithImage(instructions, pcStart, pcBase, nil)
}

// NewProgramWithImage builds a program. Inputs are copied so later changes
// by the caller cannot reach the program.
func NewProgramWithImage(instructions []Instruction, pcStart, pcBase uint32, image map[uint32]uint32) *Program {
	p := &Program{
		instructions: slices.Clone(instructions),
		pcStart:      pcStart,
		pcBase:       pcBase,
		memoryImage:  make(map[uint32]uint32, len(image)),
	}
	maps.Copy(p.memoryImage, image)
	return p
}

// Instructions returns the instruction stream. Callers must not modify it.
func (p *Program) Instructions() []Instruction { return p.instructions }

// PCStart returns the first address executed.
func (p *Program) PCStart() uint32 { return p.pcStart }

// PCBase returns the address of instructions[0].
func (p *Program) PCBase() uint32 { return p.pcBase }

// MemoryImage returns the initial memory image. Callers must not modify it.
func (p *Program) MemoryImage() map[uint32]uint32 { return p.memoryImage }

// Len returns the number of instructions.
func (p *Program) Len() int { return len(p.instructions) }

// InBounds reports whether pc addresses an instruction of this program.
// The subtraction wraps for pc < pc_base, which lands far outside the range.
func (p *Program) InBounds(pc uint32) bool {
	offset := pc - p.pcBase
	return offset%RV_INSTR_SIZE == 0 && uint64(offset) < uint64(len(p.instructions))*RV_INSTR_SIZE
}

// Fetch returns the instruction at pc, or false if pc is out of bounds.
func (p *Program) Fetch(pc uint32) (Instruction, bool) {
	if !p.InBounds(pc) {
		return Instruction{}, false
	}
	return p.instructions[(pc-p.pcBase)/RV_INSTR_SIZE], true
}
