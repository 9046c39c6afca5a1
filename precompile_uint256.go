package main

import (
	"github.com/holiman/uint256"
)

const UINT256_WORDS = 8

func uint256FromWords(words []uint32) *uint256.Int {
	var z uint256.Int
	for i := range z {
		z[i] = uint64(words[2*i]) | uint64(words[2*i+1])<<32
	}
	return &z
}

func uint256ToWords(z *uint256.Int) []uint32 {
	words := make([]uint32, UINT256_WORDS)
	for i, limb := range z {
		words[2*i] = uint32(limb)
		words[2*i+1] = uint32(limb >> 32)
	}
	return words
}

// Uint256MulSyscall computes x = x*y mod m. x (8 words) is at arg1; y and
// then m (8 words each) are at arg2. m == 0 means the modulus is 2^256.
type Uint256MulSyscall struct{}

func (Uint256MulSyscall) NumExtraCycles() uint32 { return 1 }

func (Uint256MulSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, xPtr, yPtr uint32) (uint32, bool, error) {
	if err := checkPointer("x", xPtr); err != nil {
		return 0, false, err
	}
	if err := checkPointer("y", yPtr); err != nil {
		return 0, false, err
	}
	x, err := ctx.PeekWords(xPtr, UINT256_WORDS)
	if err != nil {
		return 0, false, err
	}
	ym, yRecords, err := ctx.ReadWords(yPtr, 2*UINT256_WORDS)
	if err != nil {
		return 0, false, err
	}
	y, m := ym[:UINT256_WORDS], ym[UINT256_WORDS:]

	xi, yi, mi := uint256FromWords(x), uint256FromWords(y), uint256FromWords(m)
	result := new(uint256.Int)
	if mi.IsZero() {
		result.Mul(xi, yi)
	} else {
		result.MulMod(xi, yi, mi)
	}

	xRecords, err := ctx.WriteWords(xPtr, uint256ToWords(result))
	if err != nil {
		return 0, false, err
	}
	ctx.Emit(&Uint256MulEvent{
		Clock:          ctx.Clk(),
		XPtr:           xPtr,
		X:              x,
		YPtr:           yPtr,
		Y:              y,
		Modulus:        m,
		XMemoryRecords: xRecords,
		YMemoryRecords: yRecords,
	})
	return 0, false, nil
}
