/*
rv_context.go - Mutable VM state shared by the executor and syscalls

The context is owned by exactly one executor. Syscalls receive it for the
duration of one Execute call and reach registers, memory and the event log
through it; there is no other path to machine state.

Memory helpers come in two flavours. Peek* reads without recording, used to
validate operands before anything is committed. ReadWord, WriteWord and
friends record every word access at the current clock so the trace carries
full memory history.
*/

package main

import (
	"errors"
	"fmt"
	"io"
	"slices"
)

var ErrMisalignedAccess = errors.New("misaligned memory access")

const PUBLIC_DIGEST_WORDS = 8

// ExecutionContext holds registers, memory, clock and the event log of one VM.
type ExecutionContext struct {
	registers [RV_REG_COUNT]uint32
	pc        uint32
	nextPC    uint32
	clk       uint64

	memory *Memory
	events *EventLog

	publicValues []byte
	publicDigest [PUBLIC_DIGEST_WORDS]uint32
	hints        [][]byte

	stdout io.Writer
	stderr io.Writer

	exitCode uint32
	halted   bool
}

// NewExecutionContext prepares a context at the program's entry point with the
// program image loaded. Nil writers discard output.
func NewExecutionContext(program *Program, stdout, stderr io.Writer) *ExecutionContext {
	if stdout == nil {
		stdout = io.Discard
	}
	if stderr == nil {
		stderr = io.Discard
	}
	ctx := &ExecutionContext{
		pc:     program.PCStart(),
		nextPC: program.PCStart() + RV_INSTR_SIZE,
		memory: NewMemory(),
		events: NewEventLog(),
		stdout: stdout,
		stderr: stderr,
	}
	ctx.memory.LoadImage(program.MemoryImage())
	return ctx
}

// ------------------------------------------------------------------------------
// Registers and Program Counter
// ------------------------------------------------------------------------------

// Register returns xN. x0 always reads zero.
func (c *ExecutionContext) Register(r uint8) uint32 {
	if r == REG_ZERO || int(r) >= RV_REG_COUNT {
		return 0
	}
	return c.registers[r]
}

// SetRegister writes xN. Writes to x0 are dropped.
func (c *ExecutionContext) SetRegister(r uint8, value uint32) {
	if r == REG_ZERO || int(r) >= RV_REG_COUNT {
		return
	}
	c.registers[r] = value
}

func (c *ExecutionContext) PC() uint32     { return c.pc }
func (c *ExecutionContext) NextPC() uint32 { return c.nextPC }
func (c *ExecutionContext) Clk() uint64    { return c.clk }

// SetNextPC overrides the successor of the instruction being executed.
func (c *ExecutionContext) SetNextPC(pc uint32) { c.nextPC = pc }

// jump moves execution to pc between instructions.
func (c *ExecutionContext) jump(pc uint32) {
	c.pc = pc
	c.nextPC = pc + RV_INSTR_SIZE
}

// advance retires the current instruction.
func (c *ExecutionContext) advance(cycles uint64) {
	c.pc = c.nextPC
	c.nextPC = c.pc + RV_INSTR_SIZE
	c.clk += cycles
}

// ------------------------------------------------------------------------------
// Memory
// ------------------------------------------------------------------------------

func checkWordRange(addr uint32, words int) error {
	if addr%4 != 0 {
		return fmt.Errorf("%w: 0x%08x", ErrMisalignedAccess, addr)
	}
	if uint64(addr)+uint64(words)*4 > 1<<32 {
		return fmt.Errorf("%w: %d words at 0x%08x wrap the address space", ErrMisalignedAccess, words, addr)
	}
	return nil
}

// PeekWord reads one word without recording the access.
func (c *ExecutionContext) PeekWord(addr uint32) (uint32, error) {
	if err := checkWordRange(addr, 1); err != nil {
		return 0, err
	}
	return c.memory.Peek(addr), nil
}

// PeekWords reads n consecutive words without recording the accesses.
func (c *ExecutionContext) PeekWords(addr uint32, n int) ([]uint32, error) {
	if err := checkWordRange(addr, n); err != nil {
		return nil, err
	}
	values := make([]uint32, n)
	for i := range values {
		values[i] = c.memory.Peek(addr + uint32(i)*4)
	}
	return values, nil
}

// ReadWord reads one word and records the access.
func (c *ExecutionContext) ReadWord(addr uint32) (MemoryReadRecord, error) {
	if err := checkWordRange(addr, 1); err != nil {
		return MemoryReadRecord{}, err
	}
	return c.memory.Read(addr, c.clk), nil
}

// WriteWord writes one word and records the access.
func (c *ExecutionContext) WriteWord(addr, value uint32) (MemoryWriteRecord, error) {
	if err := checkWordRange(addr, 1); err != nil {
		return MemoryWriteRecord{}, err
	}
	return c.memory.Write(addr, value, c.clk), nil
}

// ReadWords reads n consecutive words, recording each access.
func (c *ExecutionContext) ReadWords(addr uint32, n int) ([]uint32, []MemoryReadRecord, error) {
	if err := checkWordRange(addr, n); err != nil {
		return nil, nil, err
	}
	values := make([]uint32, n)
	records := make([]MemoryReadRecord, n)
	for i := range records {
		records[i] = c.memory.Read(addr+uint32(i)*4, c.clk)
		values[i] = records[i].Value
	}
	return values, records, nil
}

// WriteWords writes consecutive words, recording each access.
func (c *ExecutionContext) WriteWords(addr uint32, values []uint32) ([]MemoryWriteRecord, error) {
	if err := checkWordRange(addr, len(values)); err != nil {
		return nil, err
	}
	records := make([]MemoryWriteRecord, len(values))
	for i, v := range values {
		records[i] = c.memory.Write(addr+uint32(i)*4, v, c.clk)
	}
	return records, nil
}

// PeekBytes copies n bytes starting at addr without recording. addr need
// not be aligned.
func (c *ExecutionContext) PeekBytes(addr uint32, n uint32) ([]byte, error) {
	if uint64(addr)+uint64(n) > 1<<32 {
		return nil, fmt.Errorf("%w: %d bytes at 0x%08x wrap the address space", ErrMisalignedAccess, n, addr)
	}
	out := make([]byte, n)
	for i := uint32(0); i < n; i++ {
		a := addr + i
		word := c.memory.Peek(a &^ 3)
		out[i] = byte(word >> ((a & 3) * 8))
	}
	return out, nil
}

// Memory exposes the underlying word store.
func (c *ExecutionContext) Memory() *Memory { return c.memory }

// ------------------------------------------------------------------------------
// Events, I/O and Termination
// ------------------------------------------------------------------------------

// Emit appends an event to the log.
func (c *ExecutionContext) Emit(ev Event) { c.events.Append(ev) }

func (c *ExecutionContext) Events() *EventLog { return c.events }

func (c *ExecutionContext) Stdout() io.Writer { return c.stdout }
func (c *ExecutionContext) Stderr() io.Writer { return c.stderr }

// PublicValues returns the bytes committed through fd 3.
func (c *ExecutionContext) PublicValues() []byte { return slices.Clone(c.publicValues) }

func (c *ExecutionContext) appendPublicValues(b []byte) {
	c.publicValues = append(c.publicValues, b...)
}

// PublicDigest returns the words committed with COMMIT.
func (c *ExecutionContext) PublicDigest() [PUBLIC_DIGEST_WORDS]uint32 { return c.publicDigest }

// PushHint queues an input buffer for HINT_LEN/HINT_READ.
func (c *ExecutionContext) PushHint(b []byte) {
	c.hints = append(c.hints, slices.Clone(b))
}

// PeekHint returns the next hint without consuming it.
func (c *ExecutionContext) PeekHint() ([]byte, bool) {
	if len(c.hints) == 0 {
		return nil, false
	}
	return c.hints[0], true
}

func (c *ExecutionContext) popHint() []byte {
	h := c.hints[0]
	c.hints = c.hints[1:]
	return h
}

// PendingHints returns the number of unread hints.
func (c *ExecutionContext) PendingHints() int { return len(c.hints) }

// Halt stops execution after the current instruction.
func (c *ExecutionContext) Halt(exitCode uint32) {
	c.exitCode = exitCode
	c.halted = true
}

func (c *ExecutionContext) Halted() bool     { return c.halted }
func (c *ExecutionContext) ExitCode() uint32 { return c.exitCode }

// ------------------------------------------------------------------------------
// Debug View
// ------------------------------------------------------------------------------

// Registers returns the register file plus PC for debug display.
func (c *ExecutionContext) Registers() []RegisterInfo {
	regs := make([]RegisterInfo, 0, RV_REG_COUNT+1)
	regs = append(regs, RegisterInfo{Name: "pc", BitWidth: 32, Value: uint64(c.pc), Group: "status"})
	for r := uint8(0); r < uint8(RV_REG_COUNT); r++ {
		regs = append(regs, RegisterInfo{
			Name:     RegisterName(r),
			BitWidth: 32,
			Value:    uint64(c.Register(r)),
			Group:    "general",
		})
	}
	return regs
}
