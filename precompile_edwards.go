/*
precompile_edwards.go - Twisted Edwards curve precompiles

Points are stored affine, x then y, each coordinate eight little-endian
words. Coordinates must be canonical field encodings; anything else, and any
point that is not on the curve, is a precompile fault raised before guest
memory is touched.
*/

package main

import (
	"bytes"

	"filippo.io/edwards25519"
	"filippo.io/edwards25519/field"
)

// EdwardsCurve is the arithmetic an Edwards precompile needs.
type EdwardsCurve interface {
	Name() string
	// AddAffine returns p+q. Both are POINT_WORDS long.
	AddAffine(p, q []uint32) ([]uint32, error)
	// RecoverX returns the x coordinate with the given sign for y.
	RecoverX(y []uint32, sign bool) ([]uint32, error)
}

type ed25519Curve struct{}

// Ed25519 is edwards25519 as used by Ed25519 signatures.
var Ed25519 EdwardsCurve = ed25519Curve{}

func (ed25519Curve) Name() string { return "ed25519" }

func canonicalElement(words []uint32) (*field.Element, bool) {
	b := wordsToLE(words)
	e, err := new(field.Element).SetBytes(b)
	if err != nil {
		return nil, false
	}
	return e, bytes.Equal(e.Bytes(), b)
}

func (c ed25519Curve) affinePoint(words []uint32) (*edwards25519.Point, error) {
	x, ok := canonicalElement(words[:FIELD_WORDS])
	if !ok {
		return nil, precompileFault("%s: non-canonical x", c.Name())
	}
	y, ok := canonicalElement(words[FIELD_WORDS:])
	if !ok {
		return nil, precompileFault("%s: non-canonical y", c.Name())
	}
	one := new(field.Element).One()
	t := new(field.Element).Multiply(x, y)
	p, err := new(edwards25519.Point).SetExtendedCoordinates(x, y, one, t)
	if err != nil {
		return nil, precompileFault("%s: point not on curve", c.Name())
	}
	return p, nil
}

func affineWords(p *edwards25519.Point) []uint32 {
	X, Y, Z, _ := p.ExtendedCoordinates()
	zInv := new(field.Element).Invert(Z)
	x := new(field.Element).Multiply(X, zInv)
	y := new(field.Element).Multiply(Y, zInv)
	return append(leToWords(x.Bytes()), leToWords(y.Bytes())...)
}

func (c ed25519Curve) AddAffine(p, q []uint32) ([]uint32, error) {
	pp, err := c.affinePoint(p)
	if err != nil {
		return nil, err
	}
	qq, err := c.affinePoint(q)
	if err != nil {
		return nil, err
	}
	return affineWords(new(edwards25519.Point).Add(pp, qq)), nil
}

func (c ed25519Curve) RecoverX(y []uint32, sign bool) ([]uint32, error) {
	if _, ok := canonicalElement(y); !ok {
		return nil, precompileFault("%s: non-canonical y", c.Name())
	}
	enc := wordsToLE(y)
	if sign {
		enc[31] |= 0x80
	}
	p, err := new(edwards25519.Point).SetBytes(enc)
	if err != nil {
		return nil, precompileFault("%s: y has no matching x", c.Name())
	}
	return affineWords(p)[:FIELD_WORDS], nil
}

// ------------------------------------------------------------------------------
// Capabilities
// ------------------------------------------------------------------------------

// EdwardsAddAssignSyscall computes P = P + Q with P at arg1 and Q at arg2.
type EdwardsAddAssignSyscall struct {
	Curve EdwardsCurve
}

func (EdwardsAddAssignSyscall) NumExtraCycles() uint32 { return 1 }

func (s EdwardsAddAssignSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, pPtr, qPtr uint32) (uint32, bool, error) {
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
	sum, err := s.Curve.AddAffine(p, q)
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

// EdwardsDecompressSyscall recovers x from y. The 16-word buffer at arg1
// holds y in its upper half; x is written to the lower half. arg2 is the
// sign of x.
type EdwardsDecompressSyscall struct {
	Curve EdwardsCurve
}

func (EdwardsDecompressSyscall) NumExtraCycles() uint32 { return 0 }

func (s EdwardsDecompressSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, ptr, sign uint32) (uint32, bool, error) {
	if err := checkPointer("slice", ptr); err != nil {
		return 0, false, err
	}
	if sign > 1 {
		return 0, false, precompileFault("%s: sign bit %d", s.Curve.Name(), sign)
	}
	if err := checkWordRange(ptr, POINT_WORDS); err != nil {
		return 0, false, err
	}
	yPtr := ptr + FIELD_WORDS*4
	y, err := ctx.PeekWords(yPtr, FIELD_WORDS)
	if err != nil {
		return 0, false, err
	}
	x, err := s.Curve.RecoverX(y, sign == 1)
	if err != nil {
		return 0, false, err
	}

	_, reads, err := ctx.ReadWords(yPtr, FIELD_WORDS)
	if err != nil {
		return 0, false, err
	}
	writes, err := ctx.WriteWords(ptr, x)
	if err != nil {
		return 0, false, err
	}
	ctx.Emit(&ECDecompressEvent{
		Clock:        ctx.Clk(),
		Curve:        s.Curve.Name(),
		Ptr:          ptr,
		SignBit:      sign == 1,
		Known:        y,
		Recovered:    x,
		ReadRecords:  reads,
		WriteRecords: writes,
	})
	return 0, false, nil
}
