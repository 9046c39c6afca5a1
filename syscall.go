// syscall.go - Syscall codes, capability interface and dispatch registry

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
A syscall code is a 32-bit word placed in t0 before ECALL:

	byte 0   syscall id
	byte 1   1 if the syscall has its own proving table
	byte 2   extra cycles hint
	byte 3   reserved, zero

Every capability implements Syscall. The registry maps codes to
capabilities and is built once before execution starts; after that it is
only read, so one registry may be shared by any number of VMs.
*/

package main

import (
	"errors"
	"fmt"
	"slices"
)

var (
	ErrUnsupportedSyscall = errors.New("unsupported syscall")
	ErrSyscallRegistered  = errors.New("syscall already registered")
	ErrPrecompileFault    = errors.New("precompile fault")
)

// SyscallCode identifies a syscall.
type SyscallCode uint32

const (
	SYSCALL_HALT                 SyscallCode = 0x00_00_00_00
	SYSCALL_WRITE                SyscallCode = 0x00_00_00_02
	SYSCALL_SHA_EXTEND           SyscallCode = 0x00_30_01_05
	SYSCALL_SHA_COMPRESS         SyscallCode = 0x00_01_01_06
	SYSCALL_ED_ADD               SyscallCode = 0x00_01_01_07
	SYSCALL_ED_DECOMPRESS        SyscallCode = 0x00_00_01_08
	SYSCALL_KECCAK_PERMUTE       SyscallCode = 0x00_01_01_09
	SYSCALL_SECP256K1_ADD        SyscallCode = 0x00_01_01_0A
	SYSCALL_SECP256K1_DOUBLE     SyscallCode = 0x00_00_01_0B
	SYSCALL_SECP256K1_DECOMPRESS SyscallCode = 0x00_00_01_0C
	SYSCALL_BN254_ADD            SyscallCode = 0x00_01_01_0E
	SYSCALL_BN254_DOUBLE         SyscallCode = 0x00_00_01_0F
	SYSCALL_COMMIT               SyscallCode = 0x00_00_00_10
	SYSCALL_UINT256_MUL          SyscallCode = 0x00_01_01_1D
	SYSCALL_HINT_LEN             SyscallCode = 0x00_00_00_F0
	SYSCALL_HINT_READ            SyscallCode = 0x00_00_00_F1

	// Scripted precompiles live in 0x180..0x1FF.
	SYSCALL_SCRIPTED_FIRST SyscallCode = 0x00_00_01_80
	SYSCALL_SCRIPTED_LAST  SyscallCode = 0x00_00_01_FF
)

var syscallNames = map[SyscallCode]string{
	SYSCALL_HALT:                 "HALT",
	SYSCALL_WRITE:                "WRITE",
	SYSCALL_SHA_EXTEND:           "SHA_EXTEND",
	SYSCALL_SHA_COMPRESS:         "SHA_COMPRESS",
	SYSCALL_ED_ADD:               "ED_ADD",
	SYSCALL_ED_DECOMPRESS:        "ED_DECOMPRESS",
	SYSCALL_KECCAK_PERMUTE:       "KECCAK_PERMUTE",
	SYSCALL_SECP256K1_ADD:        "SECP256K1_ADD",
	SYSCALL_SECP256K1_DOUBLE:     "SECP256K1_DOUBLE",
	SYSCALL_SECP256K1_DECOMPRESS: "SECP256K1_DECOMPRESS",
	SYSCALL_BN254_ADD:            "BN254_ADD",
	SYSCALL_BN254_DOUBLE:         "BN254_DOUBLE",
	SYSCALL_COMMIT:               "COMMIT",
	SYSCALL_UINT256_MUL:          "UINT256_MUL",
	SYSCALL_HINT_LEN:             "HINT_LEN",
	SYSCALL_HINT_READ:            "HINT_READ",
}

func (c SyscallCode) String() string {
	if name, ok := syscallNames[c]; ok {
		return name
	}
	if c.IsScripted() {
		return fmt.Sprintf("SCRIPTED_%02X", c.ID())
	}
	return fmt.Sprintf("0x%08X", uint32(c))
}

// ID returns the syscall id byte.
func (c SyscallCode) ID() uint8 { return uint8(c) }

// HasTable reports whether the syscall is proven in its own table.
func (c SyscallCode) HasTable() bool { return uint8(c>>8) == 1 }

// ExtraCyclesHint returns the cycle hint packed into the code.
func (c SyscallCode) ExtraCyclesHint() uint32 { return uint32(uint8(c >> 16)) }

func (c SyscallCode) IsScripted() bool {
	return c >= SYSCALL_SCRIPTED_FIRST && c <= SYSCALL_SCRIPTED_LAST
}

// ------------------------------------------------------------------------------
// Capability
// ------------------------------------------------------------------------------

// Syscall is one syscall or precompile implementation.
//
// Execute performs the operation against ctx. The returned value, when the
// bool is true, is written to t0; otherwise t0 receives the code itself.
// Precompiles append exactly one event per call. A returned error is fatal
// to the run.
type Syscall interface {
	NumExtraCycles() uint32
	Execute(ctx *ExecutionContext, code SyscallCode, arg1, arg2 uint32) (uint32, bool, error)
}

// SyscallResult is what Dispatch hands back to the executor.
type SyscallResult struct {
	Value    uint32
	HasValue bool
	Cycles   uint32 // 1 + NumExtraCycles
}

// ------------------------------------------------------------------------------
// Registry
// ------------------------------------------------------------------------------

// SyscallRegistry maps codes to capabilities.
type SyscallRegistry struct {
	handlers map[SyscallCode]Syscall
}

// NewSyscallRegistry returns an empty registry.
func NewSyscallRegistry() *SyscallRegistry {
	return &SyscallRegistry{handlers: make(map[SyscallCode]Syscall)}
}

// DefaultSyscallRegistry returns a registry with every built-in system call
// and precompile.
func DefaultSyscallRegistry() *SyscallRegistry {
	r := NewSyscallRegistry()
	defaults := []struct {
		code    SyscallCode
		syscall Syscall
	}{
		{SYSCALL_HALT, HaltSyscall{}},
		{SYSCALL_WRITE, WriteSyscall{}},
		{SYSCALL_COMMIT, CommitSyscall{}},
		{SYSCALL_HINT_LEN, HintLenSyscall{}},
		{SYSCALL_HINT_READ, HintReadSyscall{}},
		{SYSCALL_SHA_EXTEND, ShaExtendSyscall{}},
		{SYSCALL_SHA_COMPRESS, ShaCompressSyscall{}},
		{SYSCALL_KECCAK_PERMUTE, KeccakPermuteSyscall{}},
		{SYSCALL_ED_ADD, EdwardsAddAssignSyscall{Curve: Ed25519}},
		{SYSCALL_ED_DECOMPRESS, EdwardsDecompressSyscall{Curve: Ed25519}},
		{SYSCALL_SECP256K1_ADD, WeierstrassAddAssignSyscall{Curve: Secp256k1}},
		{SYSCALL_SECP256K1_DOUBLE, WeierstrassDoubleAssignSyscall{Curve: Secp256k1}},
		{SYSCALL_SECP256K1_DECOMPRESS, WeierstrassDecompressSyscall{Curve: Secp256k1}},
		{SYSCALL_BN254_ADD, WeierstrassAddAssignSyscall{Curve: Bn254}},
		{SYSCALL_BN254_DOUBLE, WeierstrassDoubleAssignSyscall{Curve: Bn254}},
		{SYSCALL_UINT256_MUL, Uint256MulSyscall{}},
	}
	for _, d := range defaults {
		if err := r.Register(d.code, d.syscall); err != nil {
			panic(err)
		}
	}
	return r
}

// Register binds a capability to a code.
func (r *SyscallRegistry) Register(code SyscallCode, syscall Syscall) error {
	if syscall == nil {
		return fmt.Errorf("register %s: nil syscall", code)
	}
	if _, exists := r.handlers[code]; exists {
		return fmt.Errorf("%w: %s", ErrSyscallRegistered, code)
	}
	r.handlers[code] = syscall
	return nil
}

// Lookup returns the capability for code.
func (r *SyscallRegistry) Lookup(code SyscallCode) (Syscall, error) {
	syscall, ok := r.handlers[code]
	if !ok {
		return nil, fmt.Errorf("%w: code 0x%08x", ErrUnsupportedSyscall, uint32(code))
	}
	return syscall, nil
}

// Codes returns every registered code in ascending order.
func (r *SyscallRegistry) Codes() []SyscallCode {
	codes := make([]SyscallCode, 0, len(r.handlers))
	for code := range r.handlers {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	return codes
}

// Len returns the number of registered syscalls.
func (r *SyscallRegistry) Len() int { return len(r.handlers) }

// Dispatch looks up code and executes it. An unknown code fails before the
// context is touched.
func (r *SyscallRegistry) Dispatch(ctx *ExecutionContext, code SyscallCode, arg1, arg2 uint32) (SyscallResult, error) {
	syscall, err := r.Lookup(code)
	if err != nil {
		return SyscallResult{}, err
	}
	value, hasValue, err := syscall.Execute(ctx, code, arg1, arg2)
	if err != nil {
		return SyscallResult{}, fmt.Errorf("%s: %w", code, err)
	}
	return SyscallResult{
		Value:    value,
		HasValue: hasValue,
		Cycles:   1 + syscall.NumExtraCycles(),
	}, nil
}

// precompileFault wraps a malformed-operand condition.
func precompileFault(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrPrecompileFault, fmt.Sprintf(format, args...))
}
