package main

import (
	"fmt"
	"strings"
)

// DebugRV wraps an Executor to implement DebuggableVM.
type DebugRV struct {
	exec    *Executor
	lastErr error
}

func NewDebugRV(exec *Executor) *DebugRV {
	return &DebugRV{exec: exec}
}

func (d *DebugRV) CPUName() string   { return "RV32IM" }
func (d *DebugRV) AddressWidth() int { return 32 }

func (d *DebugRV) GetRegisters() []RegisterInfo {
	return d.exec.Context().Registers()
}

// regIndex accepts ABI names ("a0") and numeric names ("x10").
func regIndex(name string) (uint8, bool) {
	lower := strings.ToLower(name)
	for i, n := range rvRegisterNames {
		if n == lower {
			return uint8(i), true
		}
	}
	if lower == "fp" {
		return 8, true
	}
	var idx int
	if _, err := fmt.Sscanf(lower, "x%d", &idx); err == nil && idx >= 0 && idx < RV_REG_COUNT {
		return uint8(idx), true
	}
	return 0, false
}

func (d *DebugRV) GetRegister(name string) (uint64, bool) {
	if strings.EqualFold(name, "pc") {
		return uint64(d.exec.Context().PC()), true
	}
	idx, ok := regIndex(name)
	if !ok {
		return 0, false
	}
	return uint64(d.exec.Context().Register(idx)), true
}

func (d *DebugRV) SetRegister(name string, value uint64) bool {
	if strings.EqualFold(name, "pc") {
		if value > 0xFFFFFFFF {
			return false
		}
		d.exec.SetPC(uint32(value))
		return true
	}
	idx, ok := regIndex(name)
	if !ok || idx == REG_ZERO {
		return false // x0 is hardwired
	}
	d.exec.Context().SetRegister(idx, uint32(value))
	return true
}

func (d *DebugRV) GetPC() uint64 { return uint64(d.exec.Context().PC()) }

// Step executes one instruction and returns the cycles it cost. A fault or
// a halted VM returns 0; the fault is kept in LastError.
func (d *DebugRV) Step() int {
	before := d.exec.Cycles()
	if err := d.exec.Step(); err != nil {
		d.lastErr = err
		return 0
	}
	return int(d.exec.Cycles() - before)
}

func (d *DebugRV) LastError() error { return d.lastErr }

func (d *DebugRV) Disassemble(addr uint64, count int) []DisassembledLine {
	pc := d.GetPC()
	lines := disassembleRV(d.exec.Program(), d.ReadMemory, addr, count)
	for i := range lines {
		if lines[i].Address == pc {
			lines[i].IsPC = true
		}
	}
	return lines
}

// ReadMemory reads current guest memory without recording accesses.
func (d *DebugRV) ReadMemory(addr uint64, size int) []byte {
	if addr > 0xFFFFFFFF || size < 0 {
		return nil
	}
	data, err := d.exec.Context().PeekBytes(uint32(addr), uint32(size))
	if err != nil {
		return nil
	}
	return data
}
