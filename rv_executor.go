// rv_executor.go - RV32IM decode/execute loop for the Intuition ZK Engine

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
The executor owns one Program, one InstructionPipeline and one
ExecutionContext, and drives them from a single goroutine:

	prefetch  top the pipeline up along the predicted path
	fetch     take the head slot if it was fetched from PC, else read the
	          program directly (out of bounds is fatal)
	execute   RV32IM semantics, ECALL goes through the syscall registry
	retire    train the predictor on conditional branches, charge cycles,
	          advance PC

Cycle accounting: every instruction costs one cycle; ECALL additionally
costs the capability's NumExtraCycles. The clock therefore equals the total
cycles charged so far, and every memory record and event carries the clock
of the instruction that produced it.
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ethereum/go-ethereum/log"
)

var (
	ErrPCOutOfBounds      = errors.New("pc out of program bounds")
	ErrCycleLimit         = errors.New("cycle limit reached")
	ErrHalted             = errors.New("vm halted")
	ErrInvalidInstruction = errors.New("invalid instruction")
)

const (
	DEFAULT_MAX_CYCLES = 1 << 32

	// Progress is logged at trace level this often.
	EXECUTOR_PROGRESS_INTERVAL = 1 << 22
)

// ExecutorConfig controls one VM run.
type ExecutorConfig struct {
	MaxCycles        uint64 // 0 = unlimited
	Trace            bool   // record a CPUEvent per instruction
	PipelineCapacity int    // power of two; 0 disables prefetch
	Stdout           io.Writer
	Stderr           io.Writer
	Input            [][]byte // initial hint queue
	Syscalls         *SyscallRegistry
	Logger           log.Logger
}

// DefaultExecutorConfig returns the configuration the CLI starts from.
func DefaultExecutorConfig() ExecutorConfig {
	return ExecutorConfig{
		MaxCycles:        DEFAULT_MAX_CYCLES,
		PipelineCapacity: PIPELINE_CAPACITY,
	}
}

// ExecutorStats counts what happened during a run.
type ExecutorStats struct {
	Instructions   uint64
	Cycles         uint64
	PrefetchHits   uint64
	PrefetchMisses uint64
	Branches       uint64
	Mispredictions uint64
	Syscalls       uint64
}

// MispredictionRate is the fraction of retired branches predicted wrongly.
func (s ExecutorStats) MispredictionRate() float64 {
	if s.Branches == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(s.Branches)
}

// Executor runs one program.
type Executor struct {
	program   *Program
	pipeline  *InstructionPipeline // nil when prefetch is disabled
	predictor *BranchPredictor     // used only without a pipeline
	ctx       *ExecutionContext
	syscalls  *SyscallRegistry
	config    ExecutorConfig
	log       log.Logger
	stats     ExecutorStats
}

// NewExecutor prepares a VM at the program's entry point.
func NewExecutor(program *Program, config ExecutorConfig) (*Executor, error) {
	if program == nil || program.Len() == 0 {
		return nil, fmt.Errorf("%w: empty program", ErrPCOutOfBounds)
	}
	e := &Executor{
		program:  program,
		ctx:      NewExecutionContext(program, config.Stdout, config.Stderr),
		syscalls: config.Syscalls,
		config:   config,
		log:      config.Logger,
	}
	if e.syscalls == nil {
		e.syscalls = DefaultSyscallRegistry()
	}
	if e.log == nil {
		e.log = log.Root()
	}
	if config.PipelineCapacity > 0 {
		p, err := NewInstructionPipelineWithCapacity(config.PipelineCapacity)
		if err != nil {
			return nil, err
		}
		e.pipeline = p
	} else {
		e.predictor = NewBranchPredictor()
	}
	for _, in := range config.Input {
		e.ctx.PushHint(in)
	}
	return e, nil
}

func (e *Executor) Context() *ExecutionContext     { return e.ctx }
func (e *Executor) Program() *Program              { return e.program }
func (e *Executor) Pipeline() *InstructionPipeline { return e.pipeline }

// SetPC redirects execution. Prefetched entries are dropped.
func (e *Executor) SetPC(pc uint32) {
	e.ctx.jump(pc)
	if e.pipeline != nil {
		e.pipeline.Clear()
	}
}
func (e *Executor) Cycles() uint64                 { return e.ctx.Clk() }
func (e *Executor) Halted() bool                   { return e.ctx.Halted() }
func (e *Executor) ExitCode() uint32               { return e.ctx.ExitCode() }
func (e *Executor) Syscalls() *SyscallRegistry     { return e.syscalls }
func (e *Executor) Events() *EventLog              { return e.ctx.Events() }

func (e *Executor) Stats() ExecutorStats {
	s := e.stats
	s.Cycles = e.ctx.Clk()
	return s
}

// Run steps until the guest halts or a fatal error occurs.
func (e *Executor) Run() error {
	e.log.Debug("Starting guest", "entry", fmt.Sprintf("0x%08x", e.program.PCStart()),
		"instructions", e.program.Len(), "pipeline", e.config.PipelineCapacity)
	for !e.ctx.Halted() {
		if err := e.Step(); err != nil {
			e.log.Debug("Guest faulted", "pc", fmt.Sprintf("0x%08x", e.ctx.PC()), "cycles", e.ctx.Clk(), "err", err)
			return err
		}
		if e.stats.Instructions%EXECUTOR_PROGRESS_INTERVAL == 0 {
			e.log.Trace("Execution progress", "instructions", e.stats.Instructions, "cycles", e.ctx.Clk())
		}
	}
	e.log.Debug("Guest halted", "exit", e.ctx.ExitCode(), "cycles", e.ctx.Clk(),
		"instructions", e.stats.Instructions, "events", e.ctx.Events().Len())
	return nil
}

// Step executes exactly one instruction.
func (e *Executor) Step() error {
	ctx := e.ctx
	if ctx.Halted() {
		return ErrHalted
	}
	if e.config.MaxCycles > 0 && ctx.Clk() >= e.config.MaxCycles {
		return fmt.Errorf("%w: %d", ErrCycleLimit, e.config.MaxCycles)
	}

	pc := ctx.PC()
	instruction, err := e.fetch(pc)
	if err != nil {
		return err
	}
	cycles, err := e.execute(pc, instruction)
	if err != nil {
		return fmt.Errorf("pc 0x%08x (%s): %w", pc, instruction, err)
	}
	ctx.advance(cycles)
	e.stats.Instructions++
	return nil
}

func (e *Executor) fetch(pc uint32) (Instruction, error) {
	if e.pipeline != nil {
		if !e.pipeline.IsFull() {
			e.pipeline.Prefetch(e.program, pc)
		}
		if instruction, ok := e.pipeline.PopAt(pc); ok {
			e.stats.PrefetchHits++
			return instruction, nil
		}
		e.stats.PrefetchMisses++
	}
	instruction, ok := e.program.Fetch(pc)
	if !ok {
		return Instruction{}, fmt.Errorf("%w: 0x%08x", ErrPCOutOfBounds, pc)
	}
	return instruction, nil
}

// ------------------------------------------------------------------------------
// Instruction Semantics
// ------------------------------------------------------------------------------

func (e *Executor) operandB(i Instruction) uint32 {
	if i.ImmB {
		return i.OpB
	}
	return e.ctx.Register(uint8(i.OpB))
}

func (e *Executor) operandC(i Instruction) uint32 {
	if i.ImmC {
		return i.OpC
	}
	return e.ctx.Register(uint8(i.OpC))
}

// execute runs one instruction and returns the cycles it costs.
func (e *Executor) execute(pc uint32, i Instruction) (uint64, error) {
	ctx := e.ctx
	var (
		a, b, c uint32
		reads   []MemoryReadRecord
		writes  []MemoryWriteRecord
		cycles  uint64 = 1
	)

	switch op := i.Opcode; {
	case op == RV_AUIPC:
		b = i.OpB
		a = pc + b
		ctx.SetRegister(i.OpA, a)

	case op.Class() == CLASS_ARITHMETIC:
		b, c = e.operandB(i), e.operandC(i)
		a = aluOp(op, b, c)
		ctx.SetRegister(i.OpA, a)

	case op.IsLoad():
		b, c = ctx.Register(uint8(i.OpB)), i.OpC
		addr := b + c
		if err := checkLoadStoreAlignment(op, addr); err != nil {
			return 0, err
		}
		record, err := ctx.ReadWord(addr &^ 3)
		if err != nil {
			return 0, err
		}
		reads = []MemoryReadRecord{record}
		a = loadValue(op, record.Value, addr)
		ctx.SetRegister(i.OpA, a)

	case op.IsStore():
		a, b, c = ctx.Register(i.OpA), ctx.Register(uint8(i.OpB)), i.OpC
		addr := b + c
		if err := checkLoadStoreAlignment(op, addr); err != nil {
			return 0, err
		}
		word, err := ctx.PeekWord(addr &^ 3)
		if err != nil {
			return 0, err
		}
		record, err := ctx.WriteWord(addr&^3, storeValue(op, word, a, addr))
		if err != nil {
			return 0, err
		}
		writes = []MemoryWriteRecord{record}

	case op.IsBranch():
		a, b, c = ctx.Register(i.OpA), ctx.Register(uint8(i.OpB)), i.OpC
		taken := branchTaken(op, a, b)
		e.stats.Branches++
		if e.predict(pc) != taken {
			e.stats.Mispredictions++
		}
		e.trainBranch(pc, taken)
		if taken {
			ctx.SetNextPC(i.BranchTarget(pc))
		}

	case op == RV_JAL:
		a, b = pc+RV_INSTR_SIZE, i.OpB
		ctx.SetRegister(i.OpA, a)
		ctx.SetNextPC(pc + b)

	case op == RV_JALR:
		b, c = ctx.Register(uint8(i.OpB)), i.OpC
		a = pc + RV_INSTR_SIZE
		ctx.SetRegister(i.OpA, a)
		ctx.SetNextPC((b + c) &^ 1)

	case op == RV_ECALL:
		extra, err := e.ecall()
		if err != nil {
			return 0, err
		}
		cycles += extra
		a, b, c = ctx.Register(REG_T0), ctx.Register(REG_A0), ctx.Register(REG_A1)

	case op == RV_EBREAK:
		e.log.Debug("Breakpoint", "pc", fmt.Sprintf("0x%08x", pc))

	default:
		return 0, fmt.Errorf("%w: 0x%08x", ErrInvalidInstruction, i.OpB)
	}

	if e.config.Trace {
		ctx.Emit(&CPUEvent{
			Clock:       ctx.Clk(),
			PC:          pc,
			NextPC:      ctx.NextPC(),
			Instruction: i,
			A:           a,
			B:           b,
			C:           c,
			MemRead:     reads,
			MemWrite:    writes,
		})
	}
	return cycles, nil
}

// predict and trainBranch go through the pipeline when prefetch is on, so
// the prefetcher follows the same counters the executor trains.
func (e *Executor) predict(pc uint32) bool {
	if e.pipeline != nil {
		return e.pipeline.Predict(pc)
	}
	return e.predictor.Predict(pc)
}

func (e *Executor) trainBranch(pc uint32, taken bool) {
	if e.pipeline != nil {
		e.pipeline.UpdateBranchPredictor(pc, taken)
		return
	}
	e.predictor.Update(pc, taken)
}

// ecall dispatches the syscall in t0 with a0/a1 and returns its extra cycles.
func (e *Executor) ecall() (uint64, error) {
	ctx := e.ctx
	code := SyscallCode(ctx.Register(REG_T0))
	arg1, arg2 := ctx.Register(REG_A0), ctx.Register(REG_A1)

	result, err := e.syscalls.Dispatch(ctx, code, arg1, arg2)
	if err != nil {
		return 0, err
	}
	e.stats.Syscalls++

	value := uint32(code)
	if result.HasValue {
		value = result.Value
	}
	ctx.SetRegister(REG_T0, value)
	ctx.Emit(&SyscallEvent{
		Clock:     ctx.Clk(),
		Code:      code,
		Arg1:      arg1,
		Arg2:      arg2,
		Result:    result.Value,
		HasResult: result.HasValue,
	})
	if ctx.Halted() {
		e.log.Trace("Halt requested", "code", ctx.ExitCode(), "clk", ctx.Clk())
	}
	return uint64(result.Cycles - 1), nil
}

// ------------------------------------------------------------------------------
// ALU and Memory Helpers
// ------------------------------------------------------------------------------

func aluOp(op Opcode, b, c uint32) uint32 {
	switch op {
	case RV_ADD:
		return b + c
	case RV_SUB:
		return b - c
	case RV_XOR:
		return b ^ c
	case RV_OR:
		return b | c
	case RV_AND:
		return b & c
	case RV_SLL:
		return b << (c & 31)
	case RV_SRL:
		return b >> (c & 31)
	case RV_SRA:
		return uint32(int32(b) >> (c & 31))
	case RV_SLT:
		if int32(b) < int32(c) {
			return 1
		}
		return 0
	case RV_SLTU:
		if b < c {
			return 1
		}
		return 0
	case RV_MUL:
		return b * c
	case RV_MULH:
		return uint32(uint64(int64(int32(b))*int64(int32(c))) >> 32)
	case RV_MULHU:
		return uint32(uint64(b) * uint64(c) >> 32)
	case RV_MULHSU:
		return uint32(uint64(int64(int32(b))*int64(c)) >> 32)
	case RV_DIV:
		switch {
		case c == 0:
			return math.MaxUint32
		case int32(b) == math.MinInt32 && int32(c) == -1:
			return b
		}
		return uint32(int32(b) / int32(c))
	case RV_DIVU:
		if c == 0 {
			return math.MaxUint32
		}
		return b / c
	case RV_REM:
		switch {
		case c == 0:
			return b
		case int32(b) == math.MinInt32 && int32(c) == -1:
			return 0
		}
		return uint32(int32(b) % int32(c))
	case RV_REMU:
		if c == 0 {
			return b
		}
		return b % c
	}
	return 0
}

func branchTaken(op Opcode, a, b uint32) bool {
	switch op {
	case RV_BEQ:
		return a == b
	case RV_BNE:
		return a != b
	case RV_BLT:
		return int32(a) < int32(b)
	case RV_BGE:
		return int32(a) >= int32(b)
	case RV_BLTU:
		return a < b
	case RV_BGEU:
		return a >= b
	}
	return false
}

func accessSize(op Opcode) uint32 {
	switch op {
	case RV_LW, RV_SW:
		return 4
	case RV_LH, RV_LHU, RV_SH:
		return 2
	}
	return 1
}

func checkLoadStoreAlignment(op Opcode, addr uint32) error {
	if addr%accessSize(op) != 0 {
		return fmt.Errorf("%w: %s at 0x%08x", ErrMisalignedAccess, op, addr)
	}
	return nil
}

func loadValue(op Opcode, word, addr uint32) uint32 {
	shift := (addr & 3) * 8
	switch op {
	case RV_LB:
		return uint32(int32(int8(word >> shift)))
	case RV_LBU:
		return uint32(uint8(word >> shift))
	case RV_LH:
		return uint32(int32(int16(word >> shift)))
	case RV_LHU:
		return uint32(uint16(word >> shift))
	}
	return word
}

func storeValue(op Opcode, word, value, addr uint32) uint32 {
	shift := (addr & 3) * 8
	switch op {
	case RV_SB:
		mask := uint32(0xFF) << shift
		return word&^mask | (value<<shift)&mask
	case RV_SH:
		mask := uint32(0xFFFF) << shift
		return word&^mask | (value<<shift)&mask
	}
	return value
}
