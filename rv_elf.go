package main

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

var ErrInvalidELF = errors.New("invalid RISC-V ELF")

// Upper bound on loaded segment size, well above any guest that fits the
// 32-bit address space sensibly.
const ELF_MAX_SEGMENT_SIZE = 256 * 1024 * 1024

// LoadProgramFile reads and loads an RV32IM ELF executable.
func LoadProgramFile(filename string) (*Program, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	prog, err := ProgramFromELF(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", filename, err)
	}
	return prog, nil
}

// ProgramFromELF loads every PT_LOAD segment into the memory image and
// transpiles the words of executable segments into the instruction stream.
func ProgramFromELF(data []byte) (*Program, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidELF, err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS32 {
		return nil, fmt.Errorf("%w: not a 32-bit ELF", ErrInvalidELF)
	}
	if f.Data != elf.ELFDATA2LSB {
		return nil, fmt.Errorf("%w: not little-endian", ErrInvalidELF)
	}
	if f.Machine != elf.EM_RISCV {
		return nil, fmt.Errorf("%w: machine %v", ErrInvalidELF, f.Machine)
	}
	if f.Entry%RV_INSTR_SIZE != 0 {
		return nil, fmt.Errorf("%w: misaligned entry 0x%08x", ErrInvalidELF, f.Entry)
	}

	image := make(map[uint32]uint32)
	var text []uint32
	textBase := uint32(0xFFFFFFFF)

	for _, prog := range f.Progs {
		if prog.Type != elf.PT_LOAD {
			continue
		}
		if prog.Vaddr%RV_INSTR_SIZE != 0 {
			return nil, fmt.Errorf("%w: misaligned segment at 0x%08x", ErrInvalidELF, prog.Vaddr)
		}
		if prog.Memsz > ELF_MAX_SEGMENT_SIZE || prog.Filesz > prog.Memsz {
			return nil, fmt.Errorf("%w: bad segment sizes at 0x%08x", ErrInvalidELF, prog.Vaddr)
		}
		if prog.Vaddr+prog.Memsz > 1<<32 {
			return nil, fmt.Errorf("%w: segment at 0x%08x exceeds address space", ErrInvalidELF, prog.Vaddr)
		}

		raw := make([]byte, prog.Filesz)
		if _, err := io.ReadFull(prog.Open(), raw); err != nil {
			return nil, fmt.Errorf("%w: reading segment at 0x%08x: %v", ErrInvalidELF, prog.Vaddr, err)
		}

		executable := prog.Flags&elf.PF_X != 0
		if executable && text != nil {
			return nil, fmt.Errorf("%w: multiple executable segments", ErrInvalidELF)
		}

		vaddr := uint32(prog.Vaddr)
		for off := uint64(0); off < prog.Memsz; off += RV_INSTR_SIZE {
			var word [4]byte
			if off < uint64(len(raw)) {
				copy(word[:], raw[off:])
			}
			value := binary.LittleEndian.Uint32(word[:])
			addr := vaddr + uint32(off)
			image[addr] = value
			if executable {
				text = append(text, value)
			}
		}
		if executable {
			textBase = vaddr
		}
	}

	if text == nil {
		return nil, fmt.Errorf("%w: no executable segment", ErrInvalidELF)
	}

	prog := NewProgramWithImage(Transpile(text), uint32(f.Entry), textBase, image)
	if !prog.InBounds(prog.PCStart()) {
		return nil, fmt.Errorf("%w: entry 0x%08x outside text [0x%08x, 0x%08x)",
			ErrInvalidELF, f.Entry, textBase, uint64(textBase)+uint64(len(text))*RV_INSTR_SIZE)
	}
	return prog, nil
}
