// rv_transpile.go - RV32IM word decoder

/*
 ██▓ ███▄    █ ▄▄▄█████▓ █    ██  ██▓▄▄▄█████▓ ██▓ ▒█████   ███▄    █    ▓█████  ███▄    █   ▄████  ██▓ ███▄    █ ▓█████
▓██▒ ██ ▀█   █ ▓  ██▒ ▓▒ ██  ▓██▒▓██▒▓  ██▒ ▓▒▓██▒▒██▒  ██▒ ██ ▀█   █    ▓█   ▀  ██ ▀█   █  ██▒ ▀█▒▓██▒ ██ ▀█   █ ▓█   ▀
▒██▒▓██  ▀█ ██▒▒ ▓██░ ▒░▓██  ▒██░▒██▒▒ ▓██░ ▒░▒██▒▒██░  ██▒▓██  ▀█ ██▒   ▒███   ▓██  ▀█ ██▒▒██░▄▄▄░▒██▒▓██  ▀█ ██▒▒███
░██░▓██▒  ▐▌██▒░ ▓██▓ ░ ▓▓█  ░██░░██░░ ▓██▓ ░ ░██░▒██   ██░▓██▒  ▐▌██▒   ▒▓█  ▄ ▓██▒  ▐▌██▒░▓█  ██▓░██░▓██▒  ▐▌██▒▒▓█  ▄
░██░▒██░   ▓██░  ▒██▒ ░ ▒▒█████▓ ░██░  ▒██▒ ░ ░██░░ ████▓▒░▒██░   ▓██░   ░▒████▒▒██░   ▓██░░▒▓███▀▒░██░▒██░   ▓██░░▒████▒
░▓  ░ ▒░   ▒ ▒   ▒ ░░   ░▒▓▒ ▒ ▒ ░▓    ▒ ░░   ░▓  ░ ▒░▒░▒░ ░ ▒░   ▒ ▒    ░░ ▒░ ░░ ▒░   ▒ ▒  ░▒   ▒ ░▓  ░ ▒░   ▒ ▒ ░░ ▒░ ░
 ▒ ░░ ░░   ░ ▒░    ░    ░░▒░ ░ ░  ▒ ░    ░     ▒ ░  ░ ▒ ▒░ ░ ░░   ░ ▒░    ░ ░  ░░ ░░   ░ ▒░  ░   ░  ▒ ░░ ░░   ░ ▒░ ░ ░  ░
 ▒ ░   ░   ░ ░   ░       ░░░ ░ ░  ▒ ░  ░       ▒ ░░ ░ ░ ▒     ░   ░ ░       ░      ░   ░ ░ ░ ░   ░  ▒ ░   ░   ░ ░    ░
 ░           ░             ░      ░            ░      ░ ░           ░       ░  ░         ░       ░  ░           ░    ░  ░

(c) 2024 - 2026 Zayn Otley
https://github.com/IntuitionAmiga/IntuitionEngine
Buy me a coffee: https://ko-fi.com/intuition/tip

License: GPLv3 or later
*/

package main

// RISC-V major opcodes (instruction bits 6:0).
const (
	RV32_OP_LOAD     = 0x03
	RV32_OP_MISC_MEM = 0x0F
	RV32_OP_IMM      = 0x13
	RV32_OP_AUIPC    = 0x17
	RV32_OP_STORE    = 0x23
	RV32_OP_OP       = 0x33
	RV32_OP_LUI      = 0x37
	RV32_OP_BRANCH   = 0x63
	RV32_OP_JALR     = 0x67
	RV32_OP_JAL      = 0x6F
	RV32_OP_SYSTEM   = 0x73
)

// Transpile converts RV32IM machine words into engine instructions, one
// instruction per word so that index arithmetic on the program stays valid.
// Words that do not decode become UNIMP and fault only if executed.
func Transpile(words []uint32) []Instruction {
	out := make([]Instruction, len(words))
	for i, w := range words {
		out[i] = TranspileWord(w)
	}
	return out
}

// TranspileWord converts a single RV32IM machine word.
func TranspileWord(instr uint32) Instruction {
	opcode := instr & 0x7F
	rd := uint8((instr >> 7) & 0x1F)
	funct3 := (instr >> 12) & 0x7
	rs1 := uint8((instr >> 15) & 0x1F)
	rs2 := uint8((instr >> 20) & 0x1F)
	funct7 := instr >> 25

	switch opcode {
	case RV32_OP_LUI:
		return Instruction{Opcode: RV_ADD, OpA: rd, OpB: 0, OpC: immU(instr), ImmB: true, ImmC: true}

	case RV32_OP_AUIPC:
		imm := immU(instr)
		return Instruction{Opcode: RV_AUIPC, OpA: rd, OpB: imm, OpC: imm, ImmB: true, ImmC: true}

	case RV32_OP_JAL:
		return NewJAL(rd, immJ(instr))

	case RV32_OP_JALR:
		if funct3 != 0 {
			break
		}
		return NewJALR(rd, rs1, immI(instr))

	case RV32_OP_BRANCH:
		ops := [8]Opcode{RV_BEQ, RV_BNE, RV_UNIMP, RV_UNIMP, RV_BLT, RV_BGE, RV_BLTU, RV_BGEU}
		if ops[funct3] == RV_UNIMP {
			break
		}
		return NewBType(ops[funct3], rs1, rs2, immB(instr))

	case RV32_OP_LOAD:
		ops := [8]Opcode{RV_LB, RV_LH, RV_LW, RV_UNIMP, RV_LBU, RV_LHU, RV_UNIMP, RV_UNIMP}
		if ops[funct3] == RV_UNIMP {
			break
		}
		return NewIType(ops[funct3], rd, rs1, immI(instr))

	case RV32_OP_STORE:
		ops := [8]Opcode{RV_SB, RV_SH, RV_SW, RV_UNIMP, RV_UNIMP, RV_UNIMP, RV_UNIMP, RV_UNIMP}
		if ops[funct3] == RV_UNIMP {
			break
		}
		return NewSType(ops[funct3], rs2, rs1, immS(instr))

	case RV32_OP_IMM:
		imm := immI(instr)
		switch funct3 {
		case 0:
			return NewIType(RV_ADD, rd, rs1, imm)
		case 1:
			if funct7 == 0 {
				return NewIType(RV_SLL, rd, rs1, int32(rs2))
			}
		case 2:
			return NewIType(RV_SLT, rd, rs1, imm)
		case 3:
			return NewIType(RV_SLTU, rd, rs1, imm)
		case 4:
			return NewIType(RV_XOR, rd, rs1, imm)
		case 5:
			switch funct7 {
			case 0x00:
				return NewIType(RV_SRL, rd, rs1, int32(rs2))
			case 0x20:
				return NewIType(RV_SRA, rd, rs1, int32(rs2))
			}
		case 6:
			return NewIType(RV_OR, rd, rs1, imm)
		case 7:
			return NewIType(RV_AND, rd, rs1, imm)
		}

	case RV32_OP_OP:
		var op Opcode = RV_UNIMP
		switch funct7 {
		case 0x00:
			op = [8]Opcode{RV_ADD, RV_SLL, RV_SLT, RV_SLTU, RV_XOR, RV_SRL, RV_OR, RV_AND}[funct3]
		case 0x20:
			switch funct3 {
			case 0:
				op = RV_SUB
			case 5:
				op = RV_SRA
			}
		case 0x01:
			op = [8]Opcode{RV_MUL, RV_MULH, RV_MULHSU, RV_MULHU, RV_DIV, RV_DIVU, RV_REM, RV_REMU}[funct3]
		}
		if op != RV_UNIMP {
			return NewRType(op, rd, rs1, rs2)
		}

	case RV32_OP_MISC_MEM:
		// FENCE / FENCE.I: single hart, nothing to order
		return NewIType(RV_ADD, REG_ZERO, REG_ZERO, 0)

	case RV32_OP_SYSTEM:
		switch instr {
		case 0x00000073:
			return NewECALL()
		case 0x00100073:
			return Instruction{Opcode: RV_EBREAK}
		}
	}

	return Instruction{Opcode: RV_UNIMP, OpB: instr}
}

// --- immediate decoding ---

func immU(instr uint32) uint32 {
	return instr & 0xFFFFF000
}

func immI(instr uint32) int32 {
	return int32(instr) >> 20
}

func immS(instr uint32) int32 {
	raw := ((instr >> 7) & 0x1F) | (((instr >> 25) & 0x7F) << 5)
	return signExtend(raw, 12)
}

func immB(instr uint32) int32 {
	raw := (((instr >> 31) & 0x1) << 12) |
		(((instr >> 7) & 0x1) << 11) |
		(((instr >> 25) & 0x3F) << 5) |
		(((instr >> 8) & 0xF) << 1)
	return signExtend(raw, 13)
}

func immJ(instr uint32) int32 {
	raw := ((instr >> 31) << 20) |
		(((instr >> 12) & 0xFF) << 12) |
		(((instr >> 20) & 0x1) << 11) |
		(((instr >> 21) & 0x3FF) << 1)
	return signExtend(raw, 21)
}

func signExtend(v uint32, bits uint) int32 {
	shift := 32 - bits
	return int32(v<<shift) >> shift
}

// --- encoding helpers, used to build test programs ---

func EncodeRType(opcode, rd, funct3, rs1, rs2, funct7 uint32) uint32 {
	return (funct7 << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func EncodeIType(opcode, rd, funct3, rs1 uint32, imm int32) uint32 {
	return (uint32(imm&0xFFF) << 20) | (rs1 << 15) | (funct3 << 12) | (rd << 7) | opcode
}

func EncodeSType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	immU := uint32(imm & 0xFFF)
	return ((immU >> 5) << 25) | (rs2 << 20) | (rs1 << 15) | (funct3 << 12) |
		((immU & 0x1F) << 7) | opcode
}

func EncodeBType(opcode, funct3, rs1, rs2 uint32, imm int32) uint32 {
	immU := uint32(imm)
	return (((immU >> 12) & 0x1) << 31) | (((immU >> 5) & 0x3F) << 25) |
		(rs2 << 20) | (rs1 << 15) | (funct3 << 12) |
		(((immU >> 1) & 0xF) << 8) | (((immU >> 11) & 0x1) << 7) | opcode
}

func EncodeUType(opcode, rd uint32, imm uint32) uint32 {
	return (imm & 0xFFFFF000) | (rd << 7) | opcode
}

func EncodeJType(opcode, rd uint32, imm int32) uint32 {
	immU := uint32(imm)
	return (((immU >> 20) & 0x1) << 31) | (((immU >> 1) & 0x3FF) << 21) |
		(((immU >> 11) & 0x1) << 20) | (((immU >> 12) & 0xFF) << 12) |
		(rd << 7) | opcode
}
