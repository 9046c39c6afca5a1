/*
precompile_weierstrass.go - Short Weierstrass curve precompiles

Secp256k1 and BN254 G1 share one set of capabilities, specialised by the
curve value given at registration. Points are affine (x then y, eight
little-endian words each). The point at infinity has no affine form, so an
operation that would produce it is a precompile fault, as is any operand off
the curve or with a coordinate not below the field modulus.
*/

package main

import (
	"bytes"
	"math/big"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/crypto/bn256"
)

// WeierstrassCurve is the arithmetic a Weierstrass precompile needs.
type WeierstrassCurve interface {
	Name() string
	Add(p, q []uint32) ([]uint32, error)
	Double(p []uint32) ([]uint32, error)
}

// WeierstrassDecompressor recovers y from x and its parity.
type WeierstrassDecompressor interface {
	WeierstrassCurve
	RecoverY(x []uint32, odd bool) ([]uint32, error)
}

var (
	Secp256k1 WeierstrassDecompressor = secp256k1Curve{}
	Bn254     WeierstrassCurve        = bn254Curve{}
)

// ------------------------------------------------------------------------------
// secp256k1
// ------------------------------------------------------------------------------

type secp256k1Curve struct{}

func (secp256k1Curve) Name() string { return "secp256k1" }

func (c secp256k1Curve) point(words []uint32) (*big.Int, *big.Int, error) {
	x, y := wordsToBig(words[:FIELD_WORDS]), wordsToBig(words[FIELD_WORDS:])
	curve := crypto.S256()
	p := curve.Params().P
	if x.Cmp(p) >= 0 || y.Cmp(p) >= 0 {
		return nil, nil, precompileFault("%s: coordinate not reduced", c.Name())
	}
	if !curve.IsOnCurve(x, y) {
		return nil, nil, precompileFault("%s: point not on curve", c.Name())
	}
	return x, y, nil
}

func secpWords(x, y *big.Int) []uint32 {
	return append(bigToWords(x, FIELD_WORDS), bigToWords(y, FIELD_WORDS)...)
}

func (c secp256k1Curve) Add(p, q []uint32) ([]uint32, error) {
	px, py, err := c.point(p)
	if err != nil {
		return nil, err
	}
	qx, qy, err := c.point(q)
	if err != nil {
		return nil, err
	}
	if px.Cmp(qx) == 0 {
		if py.Cmp(qy) != 0 {
			return nil, precompileFault("%s: sum is the point at infinity", c.Name())
		}
		return secpWords(crypto.S256().Double(px, py)), nil
	}
	return secpWords(crypto.S256().Add(px, py, qx, qy)), nil
}

func (c secp256k1Curve) Double(p []uint32) ([]uint32, error) {
	px, py, err := c.point(p)
	if err != nil {
		return nil, err
	}
	if py.Sign() == 0 {
		return nil, precompileFault("%s: double is the point at infinity", c.Name())
	}
	return secpWords(crypto.S256().Double(px, py)), nil
}

func (c secp256k1Curve) RecoverY(x []uint32, odd bool) ([]uint32, error) {
	xBig := wordsToBig(x)
	if xBig.Cmp(crypto.S256().Params().P) >= 0 {
		return nil, precompileFault("%s: coordinate not reduced", c.Name())
	}
	compressed := make([]byte, 33)
	compressed[0] = 0x02
	if odd {
		compressed[0] = 0x03
	}
	xBig.FillBytes(compressed[1:])
	pub, err := crypto.DecompressPubkey(compressed)
	if err != nil {
		return nil, precompileFault("%s: x has no matching y", c.Name())
	}
	return bigToWords(pub.Y, FIELD_WORDS), nil
}

// ------------------------------------------------------------------------------
// BN254 G1
// ------------------------------------------------------------------------------

type bn254Curve struct{}

func (bn254Curve) Name() string { return "bn254" }

var bn254Infinity = make([]byte, 64)

func (c bn254Curve) point(words []uint32) (*bn256.G1, error) {
	enc := append(wordsToBE(words[:FIELD_WORDS]), wordsToBE(words[FIELD_WORDS:])...)
	if bytes.Equal(enc, bn254Infinity) {
		return nil, precompileFault("%s: point at infinity", c.Name())
	}
	g := new(bn256.G1)
	if _, err := g.Unmarshal(enc); err != nil {
		return nil, precompileFault("%s: %v", c.Name(), err)
	}
	return g, nil
}

func (c bn254Curve) words(g *bn256.G1) ([]uint32, error) {
	enc := g.Marshal()
	if bytes.Equal(enc, bn254Infinity) {
		return nil, precompileFault("%s: result is the point at infinity", c.Name())
	}
	return append(beToWords(enc[:32], FIELD_WORDS), beToWords(enc[32:], FIELD_WORDS)...), nil
}

func (c bn254Curve) Add(p, q []uint32) ([]uint32, error) {
	a, err := c.point(p)
	if err != nil {
		return nil, err
	}
	b, err := c.point(q)
	if err != nil {
		return nil, err
	}
	return c.words(new(bn256.G1).Add(a, b))
}

func (c bn254Curve) Double(p []uint32) ([]uint32, error) {
	a, err := c.point(p)
	if err != nil {
		return nil, err
	}
	return c.words(new(bn256.G1).Add(a, a))
}

// ------------------------------------------------------------------------------
// Capabilities
// ------------------------------------------------------------------------------

// WeierstrassAddAssignSyscall computes P = P + Q with P at arg1 and Q at arg2.
type WeierstrassAddAssignSyscall struct {
	Curve WeierstrassCurve
}

func (WeierstrassAddAssignSyscall) NumExtraCycles() uint32 { return 1 }

func (s WeierstrassAddAssignSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, pPtr, qPtr uint32) (uint32, bool, error) {
	if err := checkPointer("p", pPtr); err != nil {
		return 0, false, err
	}
	if err := checkPointer("q", qPtr); err != nil {
		return 0, false, err
	}
	p, err := ctx.PeekWords(pPtr, POINT_WORDS)
	if err != nil {
		return 0, false, err
	}
	q, err := ctx.PeekWords(qPtr, POINT_WORDS)
	if err != nil {
		return 0, false, err
	}
	sum, err := s.Curve.Add(p, q)
	if err != nil {
		return 0, false, err
	}

	_, qRecords, err := ctx.ReadWords(qPtr, POINT_WORDS)
	if err != nil {
		return 0, false, err
	}
	pRecords, err := ctx.WriteWords(pPtr, sum)
	if err != nil {
		return 0, false, err
	}
	ctx.Emit(&ECAddEvent{
		Clock:          ctx.Clk(),
		Curve:          s.Curve.Name(),
		PPtr:           pPtr,
		P:              p,
		QPtr:           qPtr,
		Q:              q,
		PMemoryRecords: pRecords,
		QMemoryRecords: qRecords,
	})
	return 0, false, nil
}

// WeierstrassDoubleAssignSyscall computes P = 2P with P at arg1. arg2 must
// be zero.
type WeierstrassDoubleAssignSyscall struct {
	Curve WeierstrassCurve
}

func (WeierstrassDoubleAssignSyscall) NumExtraCycles() uint32 { return 0 }

func (s WeierstrassDoubleAssignSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, pPtr, arg2 uint32) (uint32, bool, error) {
	if err := checkPointer("p", pPtr); err != nil {
		return 0, false, err
	}
	if arg2 != 0 {
		return 0, false, precompileFault("%s double: arg2 must be zero", s.Curve.Name())
	}
	p, err := ctx.PeekWords(pPtr, POINT_WORDS)
	if err != nil {
		return 0, false, err
	}
	doubled, err := s.Curve.Double(p)
	if err != nil {
		return 0, false, err
	}
	pRecords, err := ctx.WriteWords(pPtr, doubled)
	if err != nil {
		return 0, false, err
	}
	ctx.Emit(&ECDoubleEvent{
		Clock:          ctx.Clk(),
		Curve:          s.Curve.Name(),
		PPtr:           pPtr,
		P:              p,
		PMemoryRecords: pRecords,
	})
	return 0, false, nil
}

// WeierstrassDecompressSyscall recovers y from x. The 16-word buffer at arg1
// holds x in its upper half; y is written to the lower half. arg2 is the
// parity of y.
type WeierstrassDecompressSyscall struct {
	Curve WeierstrassDecompressor
}

func (WeierstrassDecompressSyscall) NumExtraCycles() uint32 { return 0 }

func (s WeierstrassDecompressSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, ptr, parity uint32) (uint32, bool, error) {
	if err := checkPointer("slice", ptr); err != nil {
		return 0, false, err
	}
	if parity > 1 {
		return 0, false, precompileFault("%s: parity %d", s.Curve.Name(), parity)
	}
	if err := checkWordRange(ptr, POINT_WORDS); err != nil {
		return 0, false, err
	}
	xPtr := ptr + FIELD_WORDS*4
	x, err := ctx.PeekWords(xPtr, FIELD_WORDS)
	if err != nil {
		return 0, false, err
	}
	y, err := s.Curve.RecoverY(x, parity == 1)
	if err != nil {
		return 0, false, err
	}

	_, reads, err := ctx.ReadWords(xPtr, FIELD_WORDS)
	if err != nil {
		return 0, false, err
	}
	writes, err := ctx.WriteWords(ptr, y)
	if err != nil {
		return 0, false, err
	}
	ctx.Emit(&ECDecompressEvent{
		Clock:        ctx.Clk(),
		Curve:        s.Curve.Name(),
		Ptr:          ptr,
		SignBit:      parity == 1,
		Known:        x,
		Recovered:    y,
		ReadRecords:  reads,
		WriteRecords: writes,
	})
	return 0, false, nil
}
