package main

import (
	"bytes"
	"errors"
	"math/big"
	"slices"
	"testing"

	"filippo.io/edwards25519"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/bn256"
)

const (
	curveTestP = 0x9000
	curveTestQ = 0x9100
)

func requirePointAt(t *testing.T, ctx *ExecutionContext, addr uint32, want []uint32) {
	t.Helper()
	got, err := ctx.PeekWords(addr, len(want))
	if err != nil {
		t.Fatal(err)
	}
	if !slices.Equal(got, want) {
		t.Fatalf("words at 0x%08x = %08x, want %08x", addr, got, want)
	}
}

// requireUntouched checks a faulted call left memory and events as seeded.
func requireUntouched(t *testing.T, ctx *ExecutionContext, addr uint32, want []uint32) {
	t.Helper()
	requirePointAt(t, ctx, addr, want)
	if ctx.Events().Len() != 0 {
		t.Fatalf("faulted call emitted %d events", ctx.Events().Len())
	}
	for _, a := range ctx.Memory().Addresses() {
		if r := ctx.Memory().words[a]; r.clk != 0 {
			t.Fatalf("word 0x%08x accessed at clk %d", a, r.clk)
		}
	}
}

// ------------------------------------------------------------------------------
// ed25519
// ------------------------------------------------------------------------------

func edScalarBase(n byte) []uint32 {
	b := make([]byte, 32)
	b[0] = n
	s, err := edwards25519.NewScalar().SetCanonicalBytes(b)
	if err != nil {
		panic(err)
	}
	return affineWords(new(edwards25519.Point).ScalarBaseMult(s))
}

func TestEd25519AddSyscall(t *testing.T) {
	ctx := newTestContext(nil)
	g := affineWords(edwards25519.NewGeneratorPoint())
	ctx.WriteWords(curveTestP, g)
	ctx.WriteWords(curveTestQ, edScalarBase(2))

	res, err := DefaultSyscallRegistry().Dispatch(ctx, SYSCALL_ED_ADD, curveTestP, curveTestQ)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cycles != 2 {
		t.Fatalf("cycles = %d, want 2", res.Cycles)
	}
	requirePointAt(t, ctx, curveTestP, edScalarBase(3))
	requirePointAt(t, ctx, curveTestQ, edScalarBase(2))

	ev := ctx.Events().Events()[0].(*ECAddEvent)
	if ev.Curve != "ed25519" || !slices.Equal(ev.P, g) {
		t.Fatalf("event curve=%s P=%08x", ev.Curve, ev.P)
	}
	if len(ev.PMemoryRecords) != POINT_WORDS || len(ev.QMemoryRecords) != POINT_WORDS {
		t.Fatalf("records p=%d q=%d", len(ev.PMemoryRecords), len(ev.QMemoryRecords))
	}
}

func TestEd25519AddSyscallFaults(t *testing.T) {
	g := affineWords(edwards25519.NewGeneratorPoint())
	offCurve := make([]uint32, POINT_WORDS)
	offCurve[FIELD_WORDS] = 2 // (0, 2)
	nonCanonical := slices.Clone(g)
	for i := 0; i < FIELD_WORDS; i++ {
		nonCanonical[i] = 0xFFFFFFFF
	}

	tests := []struct {
		name string
		p    []uint32
		qPtr uint32
	}{
		{"off curve", offCurve, curveTestQ},
		{"non-canonical x", nonCanonical, curveTestQ},
		{"misaligned q", g, curveTestQ + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newTestContext(nil)
			ctx.Memory().LoadImage(wordImage(curveTestP, tt.p))
			ctx.Memory().LoadImage(wordImage(curveTestQ, g))
			_, err := DefaultSyscallRegistry().Dispatch(ctx, SYSCALL_ED_ADD, curveTestP, tt.qPtr)
			requireFault(t, err)
			requireUntouched(t, ctx, curveTestP, tt.p)
		})
	}
}

func wordImage(addr uint32, words []uint32) map[uint32]uint32 {
	image := make(map[uint32]uint32, len(words))
	for i, w := range words {
		image[addr+uint32(i)*4] = w
	}
	return image
}

func TestEd25519DecompressSyscall(t *testing.T) {
	g := affineWords(edwards25519.NewGeneratorPoint())
	x, y := g[:FIELD_WORDS], g[FIELD_WORDS:]
	sign := uint32(x[0] & 1)

	ctx := newTestContext(nil)
	ctx.WriteWords(curveTestP+FIELD_WORDS*4, y)
	if _, err := DefaultSyscallRegistry().Dispatch(ctx, SYSCALL_ED_DECOMPRESS, curveTestP, sign); err != nil {
		t.Fatal(err)
	}
	requirePointAt(t, ctx, curveTestP, g)

	ev := ctx.Events().Events()[0].(*ECDecompressEvent)
	if ev.SignBit != (sign == 1) || !slices.Equal(ev.Recovered, x) {
		t.Fatalf("event sign=%v recovered=%08x", ev.SignBit, ev.Recovered)
	}
}

func TestEd25519DecompressSyscallFaults(t *testing.T) {
	g := affineWords(edwards25519.NewGeneratorPoint())
	r := DefaultSyscallRegistry()

	ctx := newTestContext(wordImage(curveTestP+FIELD_WORDS*4, g[FIELD_WORDS:]))
	_, err := r.Dispatch(ctx, SYSCALL_ED_DECOMPRESS, curveTestP, 2)
	requireFault(t, err)

	bad := make([]uint32, FIELD_WORDS)
	for i := range bad {
		bad[i] = 0xFFFFFFFF
	}
	ctx = newTestContext(wordImage(curveTestP+FIELD_WORDS*4, bad))
	_, err = r.Dispatch(ctx, SYSCALL_ED_DECOMPRESS, curveTestP, 0)
	requireFault(t, err)
	requireUntouched(t, ctx, curveTestP+FIELD_WORDS*4, bad)
}

// ------------------------------------------------------------------------------
// secp256k1
// ------------------------------------------------------------------------------

func secpScalarBase(n byte) []uint32 {
	return secpWords(crypto.S256().ScalarBaseMult([]byte{n}))
}

func TestSecp256k1AddAndDouble(t *testing.T) {
	params := crypto.S256().Params()
	g := secpWords(params.Gx, params.Gy)
	r := DefaultSyscallRegistry()

	ctx := newTestContext(nil)
	ctx.WriteWords(curveTestP, g)
	ctx.WriteWords(curveTestQ, secpScalarBase(2))
	if _, err := r.Dispatch(ctx, SYSCALL_SECP256K1_ADD, curveTestP, curveTestQ); err != nil {
		t.Fatal(err)
	}
	requirePointAt(t, ctx, curveTestP, secpScalarBase(3))

	ctx = newTestContext(nil)
	ctx.WriteWords(curveTestP, g)
	res, err := r.Dispatch(ctx, SYSCALL_SECP256K1_DOUBLE, curveTestP, 0)
	if err != nil {
		t.Fatal(err)
	}
	if res.Cycles != 1 {
		t.Fatalf("double cycles = %d, want 1", res.Cycles)
	}
	requirePointAt(t, ctx, curveTestP, secpScalarBase(2))
	if ctx.Events().Count(EVENT_EC_DOUBLE) != 1 {
		t.Fatal("double did not emit its event")
	}

	// P + P goes through doubling.
	ctx = newTestContext(nil)
	ctx.WriteWords(curveTestP, g)
	ctx.WriteWords(curveTestQ, g)
	if _, err := r.Dispatch(ctx, SYSCALL_SECP256K1_ADD, curveTestP, curveTestQ); err != nil {
		t.Fatal(err)
	}
	requirePointAt(t, ctx, curveTestP, secpScalarBase(2))
}

func TestSecp256k1Faults(t *testing.T) {
	params := crypto.S256().Params()
	g := secpWords(params.Gx, params.Gy)
	negG := secpWords(params.Gx, new(big.Int).Sub(params.P, params.Gy))
	offCurve := secpWords(params.Gx, new(big.Int).Add(params.Gy, big.NewInt(1)))
	r := DefaultSyscallRegistry()

	tests := []struct {
		name string
		code SyscallCode
		p, q []uint32
		arg2 uint32
	}{
		{"sum is infinity", SYSCALL_SECP256K1_ADD, g, negG, curveTestQ},
		{"off curve", SYSCALL_SECP256K1_ADD, offCurve, g, curveTestQ},
		{"double arg2", SYSCALL_SECP256K1_DOUBLE, g, nil, 4},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newTestContext(wordImage(curveTestP, tt.p))
			if tt.q != nil {
				ctx.Memory().LoadImage(wordImage(curveTestQ, tt.q))
			}
			_, err := r.Dispatch(ctx, tt.code, curveTestP, tt.arg2)
			requireFault(t, err)
			requireUntouched(t, ctx, curveTestP, tt.p)
		})
	}
}

func TestSecp256k1DecompressSyscall(t *testing.T) {
	params := crypto.S256().Params()
	x := bigToWords(params.Gx, FIELD_WORDS)
	ctx := newTestContext(wordImage(curveTestP+FIELD_WORDS*4, x))
	parity := uint32(params.Gy.Bit(0))

	if _, err := DefaultSyscallRegistry().Dispatch(ctx, SYSCALL_SECP256K1_DECOMPRESS, curveTestP, parity); err != nil {
		t.Fatal(err)
	}
	// y lands in the lower half, x stays in the upper half.
	requirePointAt(t, ctx, curveTestP, secpWords(params.Gy, params.Gx))

	ctx = newTestContext(wordImage(curveTestP+FIELD_WORDS*4, x))
	if _, err := DefaultSyscallRegistry().Dispatch(ctx, SYSCALL_SECP256K1_DECOMPRESS, curveTestP, 1-parity); err != nil {
		t.Fatal(err)
	}
	negY := new(big.Int).Sub(params.P, params.Gy)
	requirePointAt(t, ctx, curveTestP, bigToWords(negY, FIELD_WORDS))
}

func TestDecompressRangeWrapLeavesMemory(t *testing.T) {
	// The known half at ptr+32 wraps to 0x10.
	const ptr, known = 0xFFFFFFF0, 0x10
	edY := affineWords(edwards25519.NewGeneratorPoint())[FIELD_WORDS:]
	secpX := bigToWords(crypto.S256().Params().Gx, FIELD_WORDS)

	tests := []struct {
		name string
		code SyscallCode
		seed []uint32
		flag uint32
	}{
		{"ed25519", SYSCALL_ED_DECOMPRESS, edY, 0},
		{"secp256k1", SYSCALL_SECP256K1_DECOMPRESS, secpX, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := newTestContext(wordImage(known, tt.seed))
			_, err := DefaultSyscallRegistry().Dispatch(ctx, tt.code, ptr, tt.flag)
			if !errors.Is(err, ErrMisalignedAccess) {
				t.Fatalf("err = %v, want ErrMisalignedAccess", err)
			}
			requireUntouched(t, ctx, known, tt.seed)
		})
	}
}

// ------------------------------------------------------------------------------
// BN254
// ------------------------------------------------------------------------------

func bn254ScalarBase(n int64) []uint32 {
	enc := new(bn256.G1).ScalarBaseMult(big.NewInt(n)).Marshal()
	return append(beToWords(enc[:32], FIELD_WORDS), beToWords(enc[32:], FIELD_WORDS)...)
}

func TestBn254AddAndDouble(t *testing.T) {
	g := append(bigToWords(big.NewInt(1), FIELD_WORDS), bigToWords(big.NewInt(2), FIELD_WORDS)...)
	if !slices.Equal(g, bn254ScalarBase(1)) {
		t.Fatal("generator encoding mismatch")
	}
	r := DefaultSyscallRegistry()

	ctx := newTestContext(nil)
	ctx.WriteWords(curveTestP, g)
	ctx.WriteWords(curveTestQ, bn254ScalarBase(2))
	if _, err := r.Dispatch(ctx, SYSCALL_BN254_ADD, curveTestP, curveTestQ); err != nil {
		t.Fatal(err)
	}
	requirePointAt(t, ctx, curveTestP, bn254ScalarBase(3))

	ctx = newTestContext(nil)
	ctx.WriteWords(curveTestP, bn254ScalarBase(5))
	if _, err := r.Dispatch(ctx, SYSCALL_BN254_DOUBLE, curveTestP, 0); err != nil {
		t.Fatal(err)
	}
	requirePointAt(t, ctx, curveTestP, bn254ScalarBase(10))
}

func TestBn254Faults(t *testing.T) {
	zero := make([]uint32, POINT_WORDS)
	offCurve := append(bigToWords(big.NewInt(1), FIELD_WORDS), bigToWords(big.NewInt(3), FIELD_WORDS)...)
	r := DefaultSyscallRegistry()

	for name, p := range map[string][]uint32{"infinity": zero, "off curve": offCurve} {
		t.Run(name, func(t *testing.T) {
			ctx := newTestContext(wordImage(curveTestP, p))
			_, err := r.Dispatch(ctx, SYSCALL_BN254_DOUBLE, curveTestP, 0)
			requireFault(t, err)
			requireUntouched(t, ctx, curveTestP, p)
		})
	}
}

// ------------------------------------------------------------------------------
// Determinism
// ------------------------------------------------------------------------------

// pseudoWords fills n words from a fixed multiplicative sequence.
func pseudoWords(n int, seed uint32) []uint32 {
	words := make([]uint32, n)
	for i := range words {
		seed = seed*0x9E3779B1 + 0x7F4A7C15
		words[i] = seed
	}
	return words
}

func mergeImages(images ...map[uint32]uint32) map[uint32]uint32 {
	merged := make(map[uint32]uint32)
	for _, image := range images {
		for a, w := range image {
			merged[a] = w
		}
	}
	return merged
}

func TestPrecompilesAreDeterministic(t *testing.T) {
	tests := []struct {
		name       string
		code       SyscallCode
		arg1, arg2 uint32
		image      map[uint32]uint32
	}{
		{"keccak", SYSCALL_KECCAK_PERMUTE, 0x4000, 0, wordImage(0x4000, pseudoWords(KECCAK_STATE_WORDS, 1))},
		{"sha extend", SYSCALL_SHA_EXTEND, 0x5000, 0, wordImage(0x5000, pseudoWords(SHA_BLOCK_WORDS, 2))},
		{"sha compress", SYSCALL_SHA_COMPRESS, 0x5000, 0x6000, mergeImages(
			wordImage(0x5000, pseudoWords(SHA_SCHEDULE_WORDS, 3)),
			wordImage(0x6000, pseudoWords(SHA_STATE_WORDS, 4)))},
		{"uint256 mul", SYSCALL_UINT256_MUL, 0x7000, 0x7100, mergeImages(
			wordImage(0x7000, pseudoWords(UINT256_WORDS, 5)),
			wordImage(0x7100, pseudoWords(2*UINT256_WORDS, 6)))},
		{"ed25519 add", SYSCALL_ED_ADD, curveTestP, curveTestQ, mergeImages(
			wordImage(curveTestP, edScalarBase(3)),
			wordImage(curveTestQ, edScalarBase(5)))},
		{"secp256k1 add", SYSCALL_SECP256K1_ADD, curveTestP, curveTestQ, mergeImages(
			wordImage(curveTestP, secpScalarBase(3)),
			wordImage(curveTestQ, secpScalarBase(5)))},
		{"bn254 double", SYSCALL_BN254_DOUBLE, curveTestP, 0, wordImage(curveTestP, bn254ScalarBase(3))},
	}
	r := DefaultSyscallRegistry()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			run := func() *ExecutionContext {
				ctx := newTestContext(tt.image)
				if _, err := r.Dispatch(ctx, tt.code, tt.arg1, tt.arg2); err != nil {
					t.Fatal(err)
				}
				return ctx
			}
			a, b := run(), run()

			if a.Events().Len() != 1 {
				t.Fatalf("events = %d, want 1", a.Events().Len())
			}
			if !bytes.Equal(a.Events().Encode(), b.Events().Encode()) {
				t.Fatal("event encodings differ between identical runs")
			}
			addrs := a.Memory().Addresses()
			if !slices.Equal(addrs, b.Memory().Addresses()) {
				t.Fatal("touched address sets differ")
			}
			for _, addr := range addrs {
				if a.Memory().words[addr] != b.Memory().words[addr] {
					t.Fatalf("word 0x%08x: %+v vs %+v", addr, a.Memory().words[addr], b.Memory().words[addr])
				}
			}
		})
	}
}
