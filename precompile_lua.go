/*
precompile_lua.go - Lua-scripted precompiles

A script defines a global number extra_cycles and a global function
execute(code, arg1, arg2). Inside execute it may call read_word(addr) and
write_word(addr, value). Returning a number writes it to t0; returning
nothing leaves the syscall code there.

The chunk is compiled once. Every call runs in a fresh interpreter with only
the base, table and string libraries, so a script cannot see files, clocks or
random numbers and cannot carry state between calls. Writes are buffered and
applied only after execute returns cleanly; a script error leaves guest
memory exactly as it was.
*/

package main

import (
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	lua "github.com/yuin/gopher-lua"
	"github.com/yuin/gopher-lua/parse"
)

func init() {
	compiledFeatures = append(compiledFeatures, "lua: scripted precompiles (gopher-lua)")
}

const (
	LUA_ENTRY_POINT  = "execute"
	LUA_EXTRA_CYCLES = "extra_cycles"
)

// ScriptedSyscall is a precompile implemented in Lua.
type ScriptedSyscall struct {
	name        string
	proto       *lua.FunctionProto
	extraCycles uint32
}

// LoadScriptedSyscall compiles a script file.
func LoadScriptedSyscall(filename string) (*ScriptedSyscall, error) {
	src, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	return NewScriptedSyscall(filename, string(src))
}

// NewScriptedSyscall compiles source and checks that it defines execute and
// a valid extra_cycles.
func NewScriptedSyscall(name, source string) (*ScriptedSyscall, error) {
	chunk, err := parse.Parse(strings.NewReader(source), name)
	if err != nil {
		return nil, fmt.Errorf("lua %s: %w", name, err)
	}
	proto, err := lua.Compile(chunk, name)
	if err != nil {
		return nil, fmt.Errorf("lua %s: %w", name, err)
	}
	s := &ScriptedSyscall{name: name, proto: proto}

	L, err := s.newState(io.Discard)
	if err != nil {
		return nil, fmt.Errorf("lua %s: %w", name, err)
	}
	defer L.Close()
	if _, ok := L.GetGlobal(LUA_ENTRY_POINT).(*lua.LFunction); !ok {
		return nil, fmt.Errorf("lua %s: no %s function", name, LUA_ENTRY_POINT)
	}
	switch v := L.GetGlobal(LUA_EXTRA_CYCLES).(type) {
	case *lua.LNilType:
	case lua.LNumber:
		cycles, ok := luaWord(v)
		if !ok {
			return nil, fmt.Errorf("lua %s: %s = %v is not a cycle count", name, LUA_EXTRA_CYCLES, v)
		}
		s.extraCycles = cycles
	default:
		return nil, fmt.Errorf("lua %s: %s must be a number", name, LUA_EXTRA_CYCLES)
	}
	return s, nil
}

func (s *ScriptedSyscall) Name() string           { return s.name }
func (s *ScriptedSyscall) NumExtraCycles() uint32 { return s.extraCycles }

// newState returns a sandboxed interpreter with the chunk already run.
func (s *ScriptedSyscall) newState(out io.Writer) (*lua.LState, error) {
	L := lua.NewState(lua.Options{SkipOpenLibs: true})
	for _, lib := range []struct {
		name string
		open lua.LGFunction
	}{
		{lua.BaseLibName, lua.OpenBase},
		{lua.TabLibName, lua.OpenTable},
		{lua.StringLibName, lua.OpenString},
	} {
		L.Push(L.NewFunction(lib.open))
		L.Push(lua.LString(lib.name))
		L.Call(1, 0)
	}
	for _, name := range []string{"dofile", "loadfile", "require", "module", "collectgarbage"} {
		L.SetGlobal(name, lua.LNil)
	}
	L.SetGlobal("print", L.NewFunction(func(L *lua.LState) int {
		parts := make([]string, L.GetTop())
		for i := range parts {
			parts[i] = L.ToStringMeta(L.Get(i + 1)).String()
		}
		fmt.Fprintln(out, strings.Join(parts, "\t"))
		return 0
	}))

	L.Push(L.NewFunctionFromProto(s.proto))
	if err := L.PCall(0, 0, nil); err != nil {
		L.Close()
		return nil, err
	}
	return L, nil
}

// luaMemory stages script accesses until execute succeeds.
type luaMemory struct {
	ctx     *ExecutionContext
	pending map[uint32]uint32
	reads   []uint32
	writes  []uint32 // addresses in first-write order
}

// luaWord converts a Lua number to a word. Fractions, NaN and values outside
// 0..2^32-1 are rejected so no host float conversion is involved.
func luaWord(v lua.LNumber) (uint32, bool) {
	f := float64(v)
	if f != math.Trunc(f) || f < 0 || f > math.MaxUint32 {
		return 0, false
	}
	return uint32(f), true
}

func (m *luaMemory) checkAddr(L *lua.LState, n int) uint32 {
	addr, ok := luaWord(L.CheckNumber(n))
	if !ok {
		L.ArgError(n, "address is not a 32-bit word")
	}
	if addr%4 != 0 {
		L.ArgError(n, fmt.Sprintf("address 0x%08x not word aligned", addr))
	}
	return addr
}

func (m *luaMemory) readWord(L *lua.LState) int {
	addr := m.checkAddr(L, 1)
	if v, ok := m.pending[addr]; ok {
		L.Push(lua.LNumber(v))
		return 1
	}
	m.reads = append(m.reads, addr)
	L.Push(lua.LNumber(m.ctx.Memory().Peek(addr)))
	return 1
}

func (m *luaMemory) writeWord(L *lua.LState) int {
	addr := m.checkAddr(L, 1)
	value, ok := luaWord(L.CheckNumber(2))
	if !ok {
		L.ArgError(2, "value is not a 32-bit word")
	}
	if _, ok := m.pending[addr]; !ok {
		m.writes = append(m.writes, addr)
	}
	m.pending[addr] = value
	return 0
}

func (s *ScriptedSyscall) Execute(ctx *ExecutionContext, code SyscallCode, arg1, arg2 uint32) (uint32, bool, error) {
	L, err := s.newState(ctx.Stdout())
	if err != nil {
		return 0, false, precompileFault("lua %s: %v", s.name, err)
	}
	defer L.Close()

	mem := &luaMemory{ctx: ctx, pending: make(map[uint32]uint32)}
	L.SetGlobal("read_word", L.NewFunction(mem.readWord))
	L.SetGlobal("write_word", L.NewFunction(mem.writeWord))

	err = L.CallByParam(lua.P{
		Fn:      L.GetGlobal(LUA_ENTRY_POINT),
		NRet:    1,
		Protect: true,
	}, lua.LNumber(code), lua.LNumber(arg1), lua.LNumber(arg2))
	if err != nil {
		return 0, false, precompileFault("lua %s: %v", s.name, err)
	}
	ret := L.Get(-1)
	L.Pop(1)

	var result uint32
	hasResult := false
	switch v := ret.(type) {
	case *lua.LNilType:
	case lua.LNumber:
		w, ok := luaWord(v)
		if !ok {
			return 0, false, precompileFault("lua %s: execute returned %v, not a 32-bit word", s.name, v)
		}
		result, hasResult = w, true
	default:
		return 0, false, precompileFault("lua %s: execute returned %s", s.name, ret.Type())
	}

	reads := make([]MemoryReadRecord, len(mem.reads))
	for i, addr := range mem.reads {
		if reads[i], err = ctx.ReadWord(addr); err != nil {
			return 0, false, err
		}
	}
	writes := make([]MemoryWriteRecord, len(mem.writes))
	for i, addr := range mem.writes {
		if writes[i], err = ctx.WriteWord(addr, mem.pending[addr]); err != nil {
			return 0, false, err
		}
	}
	ctx.Emit(&ScriptedEvent{
		Clock:        ctx.Clk(),
		Code:         code,
		Arg1:         arg1,
		Arg2:         arg2,
		Result:       result,
		HasResult:    hasResult,
		ReadRecords:  reads,
		WriteRecords: writes,
	})
	return result, hasResult, nil
}

// RegisterScripted binds a scripted precompile to a code in the scripted range.
func (r *SyscallRegistry) RegisterScripted(code SyscallCode, s *ScriptedSyscall) error {
	if !code.IsScripted() {
		return fmt.Errorf("%w: 0x%08x outside scripted range 0x%08x-0x%08x",
			ErrUnsupportedSyscall, uint32(code), uint32(SYSCALL_SCRIPTED_FIRST), uint32(SYSCALL_SCRIPTED_LAST))
	}
	return r.Register(code, s)
}
