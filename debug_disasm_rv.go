package main

import "fmt"

// DisassembleProgram lists count instructions of program starting at addr.
// Listing stops early at the end of the text.
func DisassembleProgram(program *Program, addr uint32, count int) []DisassembledLine {
	return disassembleRV(program, func(a uint64, size int) []byte {
		return wordsToLE([]uint32{program.MemoryImage()[uint32(a)]})[:size]
	}, uint64(addr), count)
}

// disassembleRV decodes from the transpiled program and shows the raw word
// read via readMem next to it. Words with no image entry, as in programs
// built directly from instructions, show dashes.
func disassembleRV(program *Program, readMem func(addr uint64, size int) []byte, addr uint64, count int) []DisassembledLine {
	var lines []DisassembledLine
	for n := 0; n < count; n++ {
		if addr > 0xFFFFFFFF {
			break
		}
		instruction, ok := program.Fetch(uint32(addr))
		if !ok {
			break
		}
		raw := readMem(addr, RV_INSTR_SIZE)
		hexBytes := fmt.Sprintf("%02x %02x %02x %02x", raw[0], raw[1], raw[2], raw[3])
		if _, inImage := program.MemoryImage()[uint32(addr)]; !inImage {
			hexBytes = "-- -- -- --"
		}
		lines = append(lines, DisassembledLine{
			Address:  addr,
			HexBytes: hexBytes,
			Mnemonic: instruction.String(),
			Size:     RV_INSTR_SIZE,
		})
		addr += RV_INSTR_SIZE
	}
	return lines
}
