package main

import (
	"bytes"
	"errors"
	"testing"
)

const rvTestBase = 0x1000

type rvTestRig struct {
	program *Program
	exec    *Executor
	stdout  bytes.Buffer
}

func newRVTestRig(t *testing.T, instrs []Instruction, configure func(*ExecutorConfig)) *rvTestRig {
	t.Helper()
	rig := &rvTestRig{program: NewProgram(instrs, rvTestBase, rvTestBase)}
	config := DefaultExecutorConfig()
	config.Stdout = &rig.stdout
	if configure != nil {
		configure(&config)
	}
	exec, err := NewExecutor(rig.program, config)
	if err != nil {
		t.Fatalf("NewExecutor: %v", err)
	}
	rig.exec = exec
	return rig
}

func (r *rvTestRig) run(t *testing.T) {
	t.Helper()
	if err := r.exec.Run(); err != nil {
		t.Fatalf("Run: %v", err)
	}
}

func (r *rvTestRig) reg(n uint8) uint32 { return r.exec.Context().Register(n) }

func requireRVReg(t *testing.T, rig *rvTestRig, n uint8, want uint32) {
	t.Helper()
	if got := rig.reg(n); got != want {
		t.Fatalf("%s = 0x%08X, want 0x%08X", RegisterName(n), got, want)
	}
}

func lui(rd uint8, imm uint32) Instruction {
	return TranspileWord(EncodeUType(RV32_OP_LUI, uint32(rd), imm))
}

func addi(rd, rs1 uint8, imm int32) Instruction { return NewIType(RV_ADD, rd, rs1, imm) }

// haltWith sets a0 from rs and halts.
func haltWith(rs uint8) []Instruction {
	return []Instruction{
		addi(REG_A0, rs, 0),
		addi(REG_T0, REG_ZERO, int32(SYSCALL_HALT)),
		NewECALL(),
	}
}

// sumLoop adds 10..1 into a0 and halts with the sum.
func sumLoop() []Instruction {
	return append([]Instruction{
		addi(REG_A1, REG_ZERO, 10),
		addi(REG_A0, REG_ZERO, 0),
		NewRType(RV_ADD, REG_A0, REG_A0, REG_A1), // loop:
		addi(REG_A1, REG_A1, -1),
		NewBType(RV_BNE, REG_A1, REG_ZERO, -8),
	}, haltWith(REG_A0)...)
}

func TestExecutorSumLoop(t *testing.T) {
	rig := newRVTestRig(t, sumLoop(), nil)
	rig.run(t)

	if !rig.exec.Halted() || rig.exec.ExitCode() != 55 {
		t.Fatalf("halted=%v exit=%d", rig.exec.Halted(), rig.exec.ExitCode())
	}
	stats := rig.exec.Stats()
	if stats.Instructions != 35 || stats.Cycles != 35 {
		t.Fatalf("instructions=%d cycles=%d, want 35/35", stats.Instructions, stats.Cycles)
	}
	if stats.Branches != 10 || stats.Mispredictions != 2 {
		t.Fatalf("branches=%d mispredictions=%d", stats.Branches, stats.Mispredictions)
	}
	// Retired branches train the pipeline's own predictor.
	if ps := rig.exec.Pipeline().Predictor().Stats(); ps.Updates != 10 || ps.Entries != 1 {
		t.Fatalf("pipeline predictor = %+v, want 10 updates on 1 entry", ps)
	}
	if stats.PrefetchHits+stats.PrefetchMisses != stats.Instructions {
		t.Fatalf("hits %d + misses %d != instructions", stats.PrefetchHits, stats.PrefetchMisses)
	}
	if stats.PrefetchHits == 0 {
		t.Fatal("pipeline never hit")
	}
	if rig.exec.Events().Count(EVENT_SYSCALL) != 1 || rig.exec.Events().Count(EVENT_CPU) != 0 {
		t.Fatalf("events = %d", rig.exec.Events().Len())
	}
}

func TestExecutorPipelineDoesNotChangeResults(t *testing.T) {
	var digests [][32]byte
	var stats []ExecutorStats
	for _, capacity := range []int{0, 2, 16, 64} {
		rig := newRVTestRig(t, sumLoop(), func(c *ExecutorConfig) {
			c.PipelineCapacity = capacity
			c.Trace = true
		})
		rig.run(t)
		if capacity == 0 && rig.exec.Pipeline() != nil {
			t.Fatal("capacity 0 built a pipeline")
		}
		digests = append(digests, rig.exec.Events().Digest())
		stats = append(stats, rig.exec.Stats())
	}
	for i := 1; i < len(digests); i++ {
		if digests[i] != digests[0] {
			t.Fatalf("digest %d differs from the unpipelined run", i)
		}
		if stats[i].Cycles != stats[0].Cycles || stats[i].Mispredictions != stats[0].Mispredictions {
			t.Fatalf("stats %d = %+v, want %+v", i, stats[i], stats[0])
		}
	}
	if stats[0].PrefetchHits != 0 || stats[0].PrefetchMisses != 0 {
		t.Fatalf("unpipelined run counted prefetches: %+v", stats[0])
	}
}

func TestExecutorTraceEvents(t *testing.T) {
	rig := newRVTestRig(t, sumLoop(), func(c *ExecutorConfig) { c.Trace = true })
	rig.run(t)

	events := rig.exec.Events().Events()
	if rig.exec.Events().Count(EVENT_CPU) != 35 {
		t.Fatalf("cpu events = %d", rig.exec.Events().Count(EVENT_CPU))
	}
	var last uint64
	for _, ev := range events {
		if ev.Clk() < last {
			t.Fatalf("clock went backwards: %d after %d", ev.Clk(), last)
		}
		last = ev.Clk()
	}
	first := events[0].(*CPUEvent)
	if first.PC != rvTestBase || first.NextPC != rvTestBase+4 || first.A != 10 {
		t.Fatalf("first event = %+v", first)
	}
}

func TestExecutorLoadsAndStores(t *testing.T) {
	instrs := append([]Instruction{
		addi(8, REG_ZERO, 0x400),
		addi(6, REG_ZERO, -2),
		NewSType(RV_SW, 6, 8, 0),
		NewIType(RV_LB, 10, 8, 0),
		NewIType(RV_LBU, 11, 8, 1),
		addi(7, REG_ZERO, 0x123),
		NewSType(RV_SH, 7, 8, 2),
		NewIType(RV_LW, 12, 8, 0),
		NewIType(RV_LHU, 13, 8, 2),
		NewIType(RV_LH, 14, 8, 0),
		NewSType(RV_SB, 7, 8, 5),
		NewIType(RV_LW, 15, 8, 4),
	}, haltWith(10)...)
	rig := newRVTestRig(t, instrs, func(c *ExecutorConfig) { c.Trace = true })
	rig.run(t)

	requireRVReg(t, rig, 11, 0xFF)
	requireRVReg(t, rig, 12, 0x0123FFFE)
	requireRVReg(t, rig, 13, 0x0123)
	requireRVReg(t, rig, 14, 0xFFFFFFFE)
	requireRVReg(t, rig, 15, 0x00002300)
	if rig.exec.ExitCode() != 0xFFFFFFFE {
		t.Fatalf("exit = 0x%08X", rig.exec.ExitCode())
	}
	if got := rig.exec.Context().Memory().Peek(0x400); got != 0x0123FFFE {
		t.Fatalf("mem[0x400] = 0x%08X", got)
	}

	store := rig.exec.Events().Events()[6].(*CPUEvent)
	if len(store.MemWrite) != 1 || store.MemWrite[0].PrevValue != 0xFFFFFFFE || store.MemWrite[0].Value != 0x0123FFFE {
		t.Fatalf("sh event = %+v", store)
	}
}

func TestExecutorAUIPCAndJALR(t *testing.T) {
	rig := newRVTestRig(t, []Instruction{
		TranspileWord(EncodeUType(RV32_OP_AUIPC, 6, 0)),
		NewJALR(REG_RA, 6, 12),
		addi(REG_A0, REG_ZERO, 99),
		addi(REG_T0, REG_ZERO, 0),
		NewECALL(),
	}, nil)
	rig.run(t)

	requireRVReg(t, rig, 6, rvTestBase)
	requireRVReg(t, rig, REG_RA, rvTestBase+8)
	if rig.exec.ExitCode() != 0 {
		t.Fatalf("skipped instruction ran, exit = %d", rig.exec.ExitCode())
	}
}

func TestExecutorJALLinksAndSkips(t *testing.T) {
	rig := newRVTestRig(t, append([]Instruction{
		NewJAL(REG_RA, 8),
		addi(REG_A2, REG_ZERO, 1),
	}, haltWith(REG_RA)...), nil)
	rig.run(t)
	requireRVReg(t, rig, REG_A2, 0)
	if rig.exec.ExitCode() != rvTestBase+4 {
		t.Fatalf("ra = 0x%08X", rig.exec.ExitCode())
	}
}

func TestExecutorSyscallResultRegister(t *testing.T) {
	rig := newRVTestRig(t, append([]Instruction{
		addi(REG_T0, REG_ZERO, int32(SYSCALL_HINT_LEN)),
		NewECALL(),
		addi(REG_A2, REG_T0, 0),
		addi(REG_A0, REG_ZERO, 3),
		addi(REG_A1, REG_ZERO, 9),
		addi(REG_T0, REG_ZERO, int32(SYSCALL_COMMIT)),
		NewECALL(),
	}, haltWith(REG_A2)...), func(c *ExecutorConfig) {
		c.Input = [][]byte{{1, 2, 3, 4, 5, 6, 7}}
	})
	rig.run(t)

	if rig.exec.ExitCode() != 7 {
		t.Fatalf("HINT_LEN result = %d, want 7", rig.exec.ExitCode())
	}
	if rig.exec.Context().PublicDigest()[3] != 9 {
		t.Fatal("COMMIT not applied")
	}
	// COMMIT has no value, so t0 keeps the code until the halt sequence reloads it.
	commit := rig.exec.Events().Events()[1].(*SyscallEvent)
	if commit.Code != SYSCALL_COMMIT || commit.HasResult {
		t.Fatalf("commit event = %+v", commit)
	}
}

func TestExecutorPrecompileCycles(t *testing.T) {
	rig := newRVTestRig(t, append([]Instruction{
		lui(REG_T0, uint32(SYSCALL_KECCAK_PERMUTE)&0xFFFFF000),
		addi(REG_T0, REG_T0, int32(SYSCALL_KECCAK_PERMUTE&0xFFF)),
		addi(REG_A0, REG_ZERO, 0x600),
		addi(REG_A1, REG_ZERO, 0),
		NewECALL(),
	}, haltWith(REG_ZERO)...), nil)
	rig.run(t)

	stats := rig.exec.Stats()
	if stats.Instructions != 8 || stats.Cycles != 9 || stats.Syscalls != 2 {
		t.Fatalf("stats = %+v", stats)
	}
	events := rig.exec.Events().Events()
	if len(events) != 3 {
		t.Fatalf("events = %d, want 3", len(events))
	}
	if events[0].Kind() != EVENT_KECCAK_PERMUTE || events[1].Kind() != EVENT_SYSCALL {
		t.Fatalf("event order %v, %v", events[0].Kind(), events[1].Kind())
	}
	if events[0].Clk() != 4 || events[2].Clk() != 8 {
		t.Fatalf("event clocks %d, %d", events[0].Clk(), events[2].Clk())
	}
	requireRVReg(t, rig, REG_T0, uint32(SYSCALL_HALT))
}

func TestExecutorWriteSyscall(t *testing.T) {
	prog := NewProgramWithImage(append([]Instruction{
		addi(REG_A0, REG_ZERO, FD_STDOUT),
		addi(REG_A1, REG_ZERO, 0x800),
		addi(REG_A2, REG_ZERO, 3),
		addi(REG_T0, REG_ZERO, int32(SYSCALL_WRITE)),
		NewECALL(),
	}, haltWith(REG_ZERO)...), rvTestBase, rvTestBase, map[uint32]uint32{0x800: 0x0A6968}) // "hi\n"

	var out bytes.Buffer
	config := DefaultExecutorConfig()
	config.Stdout = &out
	exec, err := NewExecutor(prog, config)
	if err != nil {
		t.Fatal(err)
	}
	if err := exec.Run(); err != nil {
		t.Fatal(err)
	}
	if out.String() != "hi\n" {
		t.Fatalf("stdout = %q", out.String())
	}
}

func TestExecutorFaults(t *testing.T) {
	tests := []struct {
		name   string
		instrs []Instruction
		want   error
	}{
		{"fall off the end", []Instruction{addi(1, 0, 1)}, ErrPCOutOfBounds},
		{"jump out of bounds", []Instruction{NewJAL(0, 0x100)}, ErrPCOutOfBounds},
		{"unimp", []Instruction{{Opcode: RV_UNIMP, OpB: 0xFFFFFFFF}}, ErrInvalidInstruction},
		{"misaligned lw", []Instruction{addi(8, 0, 0x402), NewIType(RV_LW, 1, 8, 0)}, ErrMisalignedAccess},
		{"misaligned sh", []Instruction{addi(8, 0, 0x401), NewSType(RV_SH, 1, 8, 0)}, ErrMisalignedAccess},
		{"unknown syscall", []Instruction{addi(REG_T0, 0, 0x77), NewECALL()}, ErrUnsupportedSyscall},
		{"precompile fault", []Instruction{
			lui(REG_T0, uint32(SYSCALL_KECCAK_PERMUTE)&0xFFFFF000),
			addi(REG_T0, REG_T0, int32(SYSCALL_KECCAK_PERMUTE&0xFFF)),
			addi(REG_A0, 0, 0x602),
			NewECALL(),
		}, ErrPrecompileFault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for _, capacity := range []int{0, PIPELINE_CAPACITY} {
				rig := newRVTestRig(t, tt.instrs, func(c *ExecutorConfig) { c.PipelineCapacity = capacity })
				if err := rig.exec.Run(); !errors.Is(err, tt.want) {
					t.Fatalf("capacity %d: err = %v, want %v", capacity, err, tt.want)
				}
			}
		})
	}
}

func TestExecutorCycleLimit(t *testing.T) {
	rig := newRVTestRig(t, []Instruction{NewJAL(REG_ZERO, 0)}, func(c *ExecutorConfig) { c.MaxCycles = 100 })
	if err := rig.exec.Run(); !errors.Is(err, ErrCycleLimit) {
		t.Fatalf("err = %v", err)
	}
	if rig.exec.Cycles() != 100 {
		t.Fatalf("cycles = %d, want 100", rig.exec.Cycles())
	}
}

func TestExecutorStepAfterHalt(t *testing.T) {
	rig := newRVTestRig(t, haltWith(REG_ZERO), nil)
	rig.run(t)
	if err := rig.exec.Step(); !errors.Is(err, ErrHalted) {
		t.Fatalf("err = %v", err)
	}
}

func TestExecutorEBREAKContinues(t *testing.T) {
	rig := newRVTestRig(t, append([]Instruction{{Opcode: RV_EBREAK}}, haltWith(REG_ZERO)...), nil)
	rig.run(t)
	if rig.exec.Stats().Instructions != 4 {
		t.Fatalf("instructions = %d", rig.exec.Stats().Instructions)
	}
}

func TestNewExecutorRejects(t *testing.T) {
	if _, err := NewExecutor(NewProgram(nil, rvTestBase, rvTestBase), DefaultExecutorConfig()); err == nil {
		t.Fatal("empty program accepted")
	}
	config := DefaultExecutorConfig()
	config.PipelineCapacity = 3
	if _, err := NewExecutor(NewProgram(sumLoop(), rvTestBase, rvTestBase), config); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("err = %v", err)
	}
}

func TestALUOps(t *testing.T) {
	tests := []struct {
		op   Opcode
		b, c uint32
		want uint32
	}{
		{RV_SUB, 0, 1, 0xFFFFFFFF},
		{RV_SLL, 1, 33, 2},
		{RV_SRL, 0x80000000, 31, 1},
		{RV_SRA, 0x80000000, 31, 0xFFFFFFFF},
		{RV_SLT, 0xFFFFFFFF, 1, 1},
		{RV_SLTU, 0xFFFFFFFF, 1, 0},
		{RV_MUL, 0x10000, 0x10000, 0},
		{RV_MULH, 0xFFFFFFFF, 0xFFFFFFFF, 0},
		{RV_MULH, 0x80000000, 0x80000000, 0x40000000},
		{RV_MULHU, 0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFE},
		{RV_MULHSU, 0xFFFFFFFF, 0xFFFFFFFF, 0xFFFFFFFF},
		{RV_DIV, 7, 0, 0xFFFFFFFF},
		{RV_DIV, 0x80000000, 0xFFFFFFFF, 0x80000000},
		{RV_DIV, 0xFFFFFFF9, 2, 0xFFFFFFFD}, // -7 / 2 = -3
		{RV_DIVU, 7, 0, 0xFFFFFFFF},
		{RV_REM, 7, 0, 7},
		{RV_REM, 0x80000000, 0xFFFFFFFF, 0},
		{RV_REM, 0xFFFFFFF9, 2, 0xFFFFFFFF}, // -7 % 2 = -1
		{RV_REMU, 7, 0, 7},
		{RV_REMU, 7, 3, 1},
	}
	for _, tt := range tests {
		if got := aluOp(tt.op, tt.b, tt.c); got != tt.want {
			t.Fatalf("%s(0x%08X, 0x%08X) = 0x%08X, want 0x%08X", tt.op, tt.b, tt.c, got, tt.want)
		}
	}
}

func TestBranchConditions(t *testing.T) {
	neg := uint32(0xFFFFFFFF)
	tests := []struct {
		op   Opcode
		a, b uint32
		want bool
	}{
		{RV_BEQ, 1, 1, true},
		{RV_BNE, 1, 1, false},
		{RV_BLT, neg, 0, true},
		{RV_BLTU, neg, 0, false},
		{RV_BGE, 0, neg, true},
		{RV_BGEU, 0, neg, false},
	}
	for _, tt := range tests {
		if got := branchTaken(tt.op, tt.a, tt.b); got != tt.want {
			t.Fatalf("%s(0x%X, 0x%X) = %v", tt.op, tt.a, tt.b, got)
		}
	}
}
