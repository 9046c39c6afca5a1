// rv_pipeline.go - Speculative instruction prefetch pipeline

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

/*
rv_pipeline.go - Speculative instruction prefetch for the Intuition ZK Engine

The pipeline is a fixed-capacity circular buffer of decoded instructions that
the executor fills ahead of its real program counter. Filling walks the
program from the current PC and guesses the direction of every conditional
branch with the 2-bit predictor; jumps with an encoded target are followed.

Prefetching is an optimisation only. Each slot remembers the address it was
fetched from, and the executor takes an instruction out of the buffer only
when that address equals its real PC. On any mismatch the buffer is dropped
and refilled from the real PC, so a wrong guess costs throughput, never
correctness.

Buffer layout:

	slots[head] .. slots[tail-1]   live entries (wrapping), size of them
	index wrap                     (pos + 1) & (capacity - 1)

Clear() resets the cursors only; stale slot contents are unreachable until
overwritten.

A single walk is bounded by the buffer capacity and by
PREFETCH_MAX_ITERATIONS, so a predicted-taken backward branch onto itself
cannot keep the walk alive. The walk also stops at the program bounds and
after a JALR, whose target depends on a register value.
*/

package main

import (
	"errors"
	"fmt"
)

const (
	PIPELINE_CAPACITY       = 16
	PREFETCH_MAX_ITERATIONS = 32

	// Misaligned, so it never matches a fetch address.
	pipelineNoPC = 0xFFFFFFFF
)

var ErrInvalidCapacity = errors.New("pipeline capacity must be a power of two")

type pipelineSlot struct {
	pc          uint32
	instruction Instruction
}

// InstructionPipeline buffers speculatively fetched instructions.
type InstructionPipeline struct {
	slots []pipelineSlot
	mask  int
	head  int // next to pop
	tail  int // next to push
	size  int

	// Speculative cursor: the address after the last prefetched entry.
	// Invalid after a JALR, a manual Push, or Clear.
	fetchPC     uint32
	cursorValid bool

	predictor *BranchPredictor
}

// NewInstructionPipeline creates a pipeline with PIPELINE_CAPACITY slots and
// a fresh predictor.
func NewInstructionPipeline() *InstructionPipeline {
	p, _ := NewInstructionPipelineWithCapacity(PIPELINE_CAPACITY)
	return p
}

// NewInstructionPipelineWithCapacity creates a pipeline with the given
// number of slots, which must be a power of two of at least 2.
func NewInstructionPipelineWithCapacity(capacity int) (*InstructionPipeline, error) {
	if capacity < 2 || capacity&(capacity-1) != 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCapacity, capacity)
	}
	return &InstructionPipeline{
		slots:     make([]pipelineSlot, capacity),
		mask:      capacity - 1,
		predictor: NewBranchPredictor(),
	}, nil
}

// ------------------------------------------------------------------------------
// Circular Buffer
// ------------------------------------------------------------------------------

// Push appends an instruction. It returns false, leaving the buffer
// untouched, when the buffer is full.
func (p *InstructionPipeline) Push(instruction Instruction) bool {
	if !p.pushAt(pipelineNoPC, instruction) {
		return false
	}
	p.cursorValid = false
	return true
}

func (p *InstructionPipeline) pushAt(pc uint32, instruction Instruction) bool {
	if p.size == len(p.slots) {
		return false
	}
	p.slots[p.tail] = pipelineSlot{pc: pc, instruction: instruction}
	p.tail = (p.tail + 1) & p.mask
	p.size++
	return true
}

// Pop removes the oldest instruction. It returns false when empty.
func (p *InstructionPipeline) Pop() (Instruction, bool) {
	if p.size == 0 {
		return Instruction{}, false
	}
	slot := p.slots[p.head]
	p.head = (p.head + 1) & p.mask
	p.size--
	return slot.instruction, true
}

// PopAt removes the oldest instruction if it was prefetched from pc. A
// mismatch means the speculative path diverged from real execution: the
// buffer is cleared and false is returned.
func (p *InstructionPipeline) PopAt(pc uint32) (Instruction, bool) {
	if p.size == 0 {
		return Instruction{}, false
	}
	if p.slots[p.head].pc != pc {
		p.Clear()
		return Instruction{}, false
	}
	return p.Pop()
}

func (p *InstructionPipeline) IsEmpty() bool { return p.size == 0 }
func (p *InstructionPipeline) IsFull() bool  { return p.size == len(p.slots) }
func (p *InstructionPipeline) Len() int      { return p.size }
func (p *InstructionPipeline) Capacity() int { return len(p.slots) }

// Clear drops all buffered instructions.
func (p *InstructionPipeline) Clear() {
	p.head = 0
	p.tail = 0
	p.size = 0
	p.cursorValid = false
}

// ------------------------------------------------------------------------------
// Speculative Fill
// ------------------------------------------------------------------------------

// Prefetch fills the buffer along the predicted path. An empty buffer is
// filled starting at currentPC; a partly filled one continues from where the
// previous walk stopped. It returns the number of instructions queued.
// Reaching the program bounds or the iteration cap is a normal stop.
func (p *InstructionPipeline) Prefetch(program *Program, currentPC uint32) int {
	if p.IsFull() {
		return 0
	}

	pc := currentPC
	if !p.IsEmpty() {
		if !p.cursorValid {
			return 0
		}
		pc = p.fetchPC
	}

	queued := 0
	resolvable := true
	for iterations := 0; !p.IsFull() && iterations < PREFETCH_MAX_ITERATIONS; iterations++ {
		instruction, ok := program.Fetch(pc)
		if !ok {
			break
		}
		p.pushAt(pc, instruction)
		queued++

		pc, resolvable = p.nextSpeculativePC(instruction, pc)
		if !resolvable {
			break
		}
	}

	p.fetchPC = pc
	p.cursorValid = resolvable
	return queued
}

// nextSpeculativePC returns the predicted successor of instruction at pc.
// It reports false when the successor cannot be known without executing.
func (p *InstructionPipeline) nextSpeculativePC(instruction Instruction, pc uint32) (uint32, bool) {
	if !IsControlFlowInstruction(instruction.Opcode) {
		return pc + RV_INSTR_SIZE, true
	}
	if instruction.Opcode.IsJump() {
		return instruction.JumpTarget(pc)
	}
	if p.predictor.Predict(pc) {
		return instruction.BranchTarget(pc), true
	}
	return pc + RV_INSTR_SIZE, true
}

// ------------------------------------------------------------------------------
// Predictor Feedback
// ------------------------------------------------------------------------------

// UpdateBranchPredictor reports the real outcome of the conditional branch at
// pc. The executor calls it for every retired branch, prefetched or not.
func (p *InstructionPipeline) UpdateBranchPredictor(pc uint32, taken bool) {
	p.predictor.Update(pc, taken)
}

// Predict returns the current prediction for the branch at pc.
func (p *InstructionPipeline) Predict(pc uint32) bool {
	return p.predictor.Predict(pc)
}

func (p *InstructionPipeline) Predictor() *BranchPredictor {
	return p.predictor
}
