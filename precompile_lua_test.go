package main

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

const luaSwapScript = `
extra_cycles = 4

function execute(code, src, dst)
	local a = read_word(src)
	local b = read_word(dst)
	write_word(dst, a)
	write_word(src, b)
	print("swapped", a, b)
	return a + b
end
`

func newLuaTestRig(t *testing.T, source string, image map[uint32]uint32) (*ExecutionContext, *bytes.Buffer, *SyscallRegistry) {
	t.Helper()
	s, err := NewScriptedSyscall("test.lua", source)
	if err != nil {
		t.Fatalf("NewScriptedSyscall: %v", err)
	}
	r := DefaultSyscallRegistry()
	if err := r.RegisterScripted(SYSCALL_SCRIPTED_FIRST, s); err != nil {
		t.Fatal(err)
	}
	var out bytes.Buffer
	prog := NewProgramWithImage([]Instruction{NewECALL()}, 0x1000, 0x1000, image)
	return NewExecutionContext(prog, &out, nil), &out, r
}

func TestScriptedSyscallSwap(t *testing.T) {
	ctx, out, r := newLuaTestRig(t, luaSwapScript, map[uint32]uint32{0x2000: 10, 0x2004: 32})

	res, err := r.Dispatch(ctx, SYSCALL_SCRIPTED_FIRST, 0x2000, 0x2004)
	if err != nil {
		t.Fatal(err)
	}
	if res != (SyscallResult{Value: 42, HasValue: true, Cycles: 5}) {
		t.Fatalf("result = %+v", res)
	}
	if ctx.Memory().Peek(0x2000) != 32 || ctx.Memory().Peek(0x2004) != 10 {
		t.Fatal("words not swapped")
	}
	if out.String() != "swapped\t10\t32\n" {
		t.Fatalf("print output = %q", out.String())
	}

	ev := ctx.Events().Events()[0].(*ScriptedEvent)
	if len(ev.ReadRecords) != 2 || len(ev.WriteRecords) != 2 {
		t.Fatalf("records r=%d w=%d", len(ev.ReadRecords), len(ev.WriteRecords))
	}
	if ev.WriteRecords[0].Addr != 0x2004 || ev.WriteRecords[0].PrevValue != 32 {
		t.Fatalf("first write = %+v", ev.WriteRecords[0])
	}
}

func TestScriptedSyscallReadsOwnWrites(t *testing.T) {
	script := `
function execute(code, addr, _)
	write_word(addr, 7)
	return read_word(addr)
end`
	ctx, _, r := newLuaTestRig(t, script, nil)
	res, err := r.Dispatch(ctx, SYSCALL_SCRIPTED_FIRST, 0x3000, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Value != 7 || res.Cycles != 1 {
		t.Fatalf("result = %+v", res)
	}
	ev := ctx.Events().Events()[0].(*ScriptedEvent)
	if len(ev.ReadRecords) != 0 || len(ev.WriteRecords) != 1 {
		t.Fatalf("records r=%d w=%d", len(ev.ReadRecords), len(ev.WriteRecords))
	}
}

func TestScriptedSyscallNoResult(t *testing.T) {
	ctx, _, r := newLuaTestRig(t, "function execute() end", nil)
	res, err := r.Dispatch(ctx, SYSCALL_SCRIPTED_FIRST, 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.HasValue {
		t.Fatalf("result = %+v", res)
	}
}

func TestScriptedSyscallFaultsLeaveMemory(t *testing.T) {
	tests := []struct {
		name   string
		script string
	}{
		{"runtime error", `function execute(c, a) write_word(a, 1) error("boom") end`},
		{"misaligned", `function execute(c, a) write_word(a, 1) write_word(a + 2, 1) end`},
		{"sandboxed os", `function execute(c, a) write_word(a, 1) return os.time() end`},
		{"sandboxed io", `function execute(c, a) write_word(a, 1) io.write("x") end`},
		{"bad return", `function execute(c, a) write_word(a, 1) return "nope" end`},
		{"fractional value", `function execute(c, a) write_word(a, 2.5) end`},
		{"oversized value", `function execute(c, a) write_word(a, 1e30) end`},
		{"negative value", `function execute(c, a) write_word(a, -1) end`},
		{"nan value", `function execute(c, a) write_word(a, 0/0) end`},
		{"fractional address", `function execute(c, a) write_word(a, 1) write_word(a + 0.5, 1) end`},
		{"fractional return", `function execute(c, a) write_word(a, 1) return 2.5 end`},
		{"oversized return", `function execute(c, a) write_word(a, 1) return 4294967296 end`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, _, r := newLuaTestRig(t, tt.script, map[uint32]uint32{0x2000: 5})
			_, err := r.Dispatch(ctx, SYSCALL_SCRIPTED_FIRST, 0x2000, 0)
			requireFault(t, err)
			requireUntouched(t, ctx, 0x2000, []uint32{5})
		})
	}
}

func TestScriptedSyscallIsStateless(t *testing.T) {
	script := `
counter = 0
function execute()
	counter = counter + 1
	return counter
end`
	ctx, _, r := newLuaTestRig(t, script, nil)
	for i := 0; i < 3; i++ {
		res, err := r.Dispatch(ctx, SYSCALL_SCRIPTED_FIRST, 0, 0)
		if err != nil {
			t.Fatal(err)
		}
		if res.Value != 1 {
			t.Fatalf("call %d returned %d", i, res.Value)
		}
	}
}

func TestNewScriptedSyscallRejects(t *testing.T) {
	tests := []struct {
		name   string
		script string
		want   string
	}{
		{"syntax", "function execute(", ""},
		{"no execute", "extra_cycles = 1", "no execute"},
		{"negative cycles", "extra_cycles = -1\nfunction execute() end", "cycle count"},
		{"fractional cycles", "extra_cycles = 1.5\nfunction execute() end", "cycle count"},
		{"string cycles", "extra_cycles = 'x'\nfunction execute() end", "must be a number"},
		{"top-level error", "error('init')\nfunction execute() end", "init"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewScriptedSyscall("bad.lua", tt.script)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("err = %v, want mention of %q", err, tt.want)
			}
		})
	}
}

func TestRegisterScriptedRange(t *testing.T) {
	s, err := NewScriptedSyscall("ok.lua", "function execute() end")
	if err != nil {
		t.Fatal(err)
	}
	r := NewSyscallRegistry()
	if err := r.RegisterScripted(SYSCALL_WRITE, s); !errors.Is(err, ErrUnsupportedSyscall) {
		t.Fatalf("err = %v", err)
	}
	if err := r.RegisterScripted(SYSCALL_SCRIPTED_LAST, s); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterScripted(SYSCALL_SCRIPTED_LAST, s); !errors.Is(err, ErrSyscallRegistered) {
		t.Fatalf("duplicate err = %v", err)
	}
}
