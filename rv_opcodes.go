/*
rv_opcodes.go - RV32IM operation set for the Intuition ZK Engine

Opcodes name the operation a transpiled instruction performs. They are not the
7-bit RISC-V major opcodes: the transpiler folds funct3/funct7 into a single
operation so the executor and the prefetch pipeline switch on one value.

Every opcode carries a class:

	CLASS_ARITHMETIC  register/immediate ALU and M-extension operations
	CLASS_MEMORY      loads and stores
	CLASS_CONTROL     conditional branches and jumps
	CLASS_SYSTEM      ECALL, EBREAK, UNIMP
*/

package main

// Opcode identifies the operation of a transpiled instruction.
type Opcode uint8

// ------------------------------------------------------------------------------
// RV32IM Opcodes
// ------------------------------------------------------------------------------
const (
	// Arithmetic / logic
	RV_ADD Opcode = iota
	RV_SUB
	RV_XOR
	RV_OR
	RV_AND
	RV_SLL
	RV_SRL
	RV_SRA
	RV_SLT
	RV_SLTU

	// Loads
	RV_LB
	RV_LH
	RV_LW
	RV_LBU
	RV_LHU

	// Stores
	RV_SB
	RV_SH
	RV_SW

	// Conditional branches
	RV_BEQ
	RV_BNE
	RV_BLT
	RV_BGE
	RV_BLTU
	RV_BGEU

	// Jumps
	RV_JAL
	RV_JALR
	RV_AUIPC

	// System
	RV_ECALL
	RV_EBREAK

	// M extension
	RV_MUL
	RV_MULH
	RV_MULHU
	RV_MULHSU
	RV_DIV
	RV_DIVU
	RV_REM
	RV_REMU

	RV_UNIMP

	rvOpcodeCount
)

// OpcodeClass tags an opcode as arithmetic, memory, control flow or system.
type OpcodeClass uint8

const (
	CLASS_ARITHMETIC OpcodeClass = iota
	CLASS_MEMORY
	CLASS_CONTROL
	CLASS_SYSTEM
)

var rvOpcodeNames = [rvOpcodeCount]string{
	RV_ADD: "add", RV_SUB: "sub", RV_XOR: "xor", RV_OR: "or", RV_AND: "and",
	RV_SLL: "sll", RV_SRL: "srl", RV_SRA: "sra", RV_SLT: "slt", RV_SLTU: "sltu",
	RV_LB: "lb", RV_LH: "lh", RV_LW: "lw", RV_LBU: "lbu", RV_LHU: "lhu",
	RV_SB: "sb", RV_SH: "sh", RV_SW: "sw",
	RV_BEQ: "beq", RV_BNE: "bne", RV_BLT: "blt", RV_BGE: "bge", RV_BLTU: "bltu", RV_BGEU: "bgeu",
	RV_JAL: "jal", RV_JALR: "jalr", RV_AUIPC: "auipc",
	RV_ECALL: "ecall", RV_EBREAK: "ebreak",
	RV_MUL: "mul", RV_MULH: "mulh", RV_MULHU: "mulhu", RV_MULHSU: "mulhsu",
	RV_DIV: "div", RV_DIVU: "divu", RV_REM: "rem", RV_REMU: "remu",
	RV_UNIMP: "unimp",
}

func (op Opcode) String() string {
	if op < rvOpcodeCount {
		return rvOpcodeNames[op]
	}
	return "invalid"
}

// Class returns the opcode's class.
func (op Opcode) Class() OpcodeClass {
	switch {
	case op >= RV_LB && op <= RV_SW:
		return CLASS_MEMORY
	case op >= RV_BEQ && op <= RV_JALR:
		return CLASS_CONTROL
	case op == RV_ECALL || op == RV_EBREAK || op == RV_UNIMP || op >= rvOpcodeCount:
		return CLASS_SYSTEM
	default:
		return CLASS_ARITHMETIC
	}
}

// IsBranch reports whether op is a conditional branch.
func (op Opcode) IsBranch() bool {
	return op >= RV_BEQ && op <= RV_BGEU
}

// IsJump reports whether op is an unconditional control transfer.
func (op Opcode) IsJump() bool {
	return op == RV_JAL || op == RV_JALR
}

// IsLoad reports whether op reads memory.
func (op Opcode) IsLoad() bool {
	return op >= RV_LB && op <= RV_LHU
}

// IsStore reports whether op writes memory.
func (op Opcode) IsStore() bool {
	return op >= RV_SB && op <= RV_SW
}

// IsControlFlowInstruction reports whether op can redirect the program
// counter. The prefetch pipeline and the executor both classify through
// this function.
func IsControlFlowInstruction(op Opcode) bool {
	switch op {
	case RV_BEQ, RV_BNE, RV_BLT, RV_BGE, RV_BLTU, RV_BGEU, RV_JAL, RV_JALR:
		return true
	}
	return false
}
