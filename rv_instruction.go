package main

import "fmt"

// ------------------------------------------------------------------------------
// Register File Layout
// ------------------------------------------------------------------------------
const (
	RV_REG_COUNT  = 32
	RV_INSTR_SIZE = 4

	REG_ZERO = 0
	REG_RA   = 1
	REG_SP   = 2
	REG_T0   = 5  // syscall code in, syscall result out
	REG_A0   = 10 // syscall arg1
	REG_A1   = 11 // syscall arg2
	REG_A2   = 12 // WRITE length
)

var rvRegisterNames = [RV_REG_COUNT]string{
	"zero", "ra", "sp", "gp", "tp", "t0", "t1", "t2",
	"s0", "s1", "a0", "a1", "a2", "a3", "a4", "a5",
	"a6", "a7", "s2", "s3", "s4", "s5", "s6", "s7",
	"s8", "s9", "s10", "s11", "t3", "t4", "t5", "t6",
}

// RegisterName returns the ABI name of register r.
func RegisterName(r uint8) string {
	if int(r) < len(rvRegisterNames) {
		return rvRegisterNames[r]
	}
	return fmt.Sprintf("x%d", r)
}

// Instruction is one transpiled operation. It is a plain value: copy it,
// compare it with ==, never mutate a shared one.
//
// Operand layout by class:
//
//	ALU      OpA=rd   OpB=rs1|imm  OpC=rs2|imm
//	load     OpA=rd   OpB=rs1      OpC=offset
//	store    OpA=rs2  OpB=rs1      OpC=offset
//	branch   OpA=rs1  OpB=rs2      OpC=offset
//	JAL      OpA=rd   OpB=offset
//	JALR     OpA=rd   OpB=rs1      OpC=offset
//	AUIPC    OpA=rd   OpB=imm
type Instruction struct {
	Opcode Opcode
	OpA    uint8
	OpB    uint32
	OpC    uint32
	ImmB   bool
	ImmC   bool
}

// NewRType builds a register/register instruction.
func NewRType(op Opcode, rd, rs1, rs2 uint8) Instruction {
	return Instruction{Opcode: op, OpA: rd, OpB: uint32(rs1), OpC: uint32(rs2)}
}

// NewIType builds a register/immediate instruction (ALU, load, JALR).
func NewIType(op Opcode, rd, rs1 uint8, imm int32) Instruction {
	return Instruction{Opcode: op, OpA: rd, OpB: uint32(rs1), OpC: uint32(imm), ImmC: true}
}

// NewSType builds a store: mem[rs1+imm] = rs2.
func NewSType(op Opcode, rs2, rs1 uint8, imm int32) Instruction {
	return Instruction{Opcode: op, OpA: rs2, OpB: uint32(rs1), OpC: uint32(imm), ImmC: true}
}

// NewBType builds a conditional branch with a PC-relative offset.
func NewBType(op Opcode, rs1, rs2 uint8, offset int32) Instruction {
	return Instruction{Opcode: op, OpA: rs1, OpB: uint32(rs2), OpC: uint32(offset), ImmC: true}
}

// NewJAL builds a jump-and-link with a PC-relative offset.
func NewJAL(rd uint8, offset int32) Instruction {
	return Instruction{Opcode: RV_JAL, OpA: rd, OpB: uint32(offset), ImmB: true, ImmC: true}
}

// NewJALR builds a register-indirect jump-and-link.
func NewJALR(rd, rs1 uint8, offset int32) Instruction {
	return NewIType(RV_JALR, rd, rs1, offset)
}

// NewECALL builds a syscall instruction.
func NewECALL() Instruction {
	return Instruction{Opcode: RV_ECALL, OpA: REG_T0, OpB: REG_A0, OpC: REG_A1}
}

// IsControlFlow reports whether the instruction can redirect the PC.
func (i Instruction) IsControlFlow() bool {
	return IsControlFlowInstruction(i.Opcode)
}

// JumpTarget returns the target of an unconditional jump at pc. Only JAL has
// a target that follows from the encoding alone; JALR depends on a register
// and reports false.
func (i Instruction) JumpTarget(pc uint32) (uint32, bool) {
	if i.Opcode != RV_JAL {
		return 0, false
	}
	return pc + i.OpB, true
}

// BranchTarget returns the taken target of a conditional branch at pc.
func (i Instruction) BranchTarget(pc uint32) uint32 {
	return pc + i.OpC
}

func (i Instruction) String() string {
	op := i.Opcode
	switch {
	case op == RV_JAL:
		return fmt.Sprintf("%s %s, %d", op, RegisterName(i.OpA), int32(i.OpB))
	case op == RV_AUIPC:
		return fmt.Sprintf("%s %s, 0x%x", op, RegisterName(i.OpA), i.OpB>>12)
	case op.IsBranch():
		return fmt.Sprintf("%s %s, %s, %d", op, RegisterName(i.OpA), RegisterName(uint8(i.OpB)), int32(i.OpC))
	case op.IsLoad() || op == RV_JALR:
		return fmt.Sprintf("%s %s, %d(%s)", op, RegisterName(i.OpA), int32(i.OpC), RegisterName(uint8(i.OpB)))
	case op.IsStore():
		return fmt.Sprintf("%s %s, %d(%s)", op, RegisterName(i.OpA), int32(i.OpC), RegisterName(uint8(i.OpB)))
	case op == RV_ECALL || op == RV_EBREAK || op == RV_UNIMP:
		return op.String()
	}

	b := RegisterName(uint8(i.OpB))
	if i.ImmB {
		b = fmt.Sprintf("%d", int32(i.OpB))
	}
	c := RegisterName(uint8(i.OpC))
	if i.ImmC {
		c = fmt.Sprintf("%d", int32(i.OpC))
	}
	return fmt.Sprintf("%s %s, %s, %s", op, RegisterName(i.OpA), b, c)
}
