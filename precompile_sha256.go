package main

import "math/bits"

// SHA-256 split into its two halves so a guest can drive the hash one block
// at a time: schedule expansion (words 16..63 from 0..15) and compression of
// one expanded schedule into the eight-word state.

const (
	SHA_SCHEDULE_WORDS = 64
	SHA_STATE_WORDS    = 8
	SHA_BLOCK_WORDS    = 16
)

var sha256K = [SHA_SCHEDULE_WORDS]uint32{
	0x428a2f98, 0x71374491, 0xb5c0fbcf, 0xe9b5dba5, 0x3956c25b, 0x59f111f1, 0x923f82a4, 0xab1c5ed5,
	0xd807aa98, 0x12835b01, 0x243185be, 0x550c7dc3, 0x72be5d74, 0x80deb1fe, 0x9bdc06a7, 0xc19bf174,
	0xe49b69c1, 0xefbe4786, 0x0fc19dc6, 0x240ca1cc, 0x2de92c6f, 0x4a7484aa, 0x5cb0a9dc, 0x76f988da,
	0x983e5152, 0xa831c66d, 0xb00327c8, 0xbf597fc7, 0xc6e00bf3, 0xd5a79147, 0x06ca6351, 0x14292967,
	0x27b70a85, 0x2e1b2138, 0x4d2c6dfc, 0x53380d13, 0x650a7354, 0x766a0abb, 0x81c2c92e, 0x92722c85,
	0xa2bfe8a1, 0xa81a664b, 0xc24b8b70, 0xc76c51a3, 0xd192e819, 0xd6990624, 0xf40e3585, 0x106aa070,
	0x19a4c116, 0x1e376c08, 0x2748774c, 0x34b0bcb5, 0x391c0cb3, 0x4ed8aa4a, 0x5b9cca4f, 0x682e6ff3,
	0x748f82ee, 0x78a5636f, 0x84c87814, 0x8cc70208, 0x90befffa, 0xa4506ceb, 0xbef9a3f7, 0xc67178f2,
}

// SHA256InitialState is H(0) for SHA-256.
var SHA256InitialState = [SHA_STATE_WORDS]uint32{
	0x6a09e667, 0xbb67ae85, 0x3c6ef372, 0xa54ff53a,
	0x510e527f, 0x9b05688c, 0x1f83d9ab, 0x5be0cd19,
}

func rotr(x uint32, n int) uint32 { return bits.RotateLeft32(x, -n) }

// ShaExtend fills w[16:64] from w[0:16].
func ShaExtend(w *[SHA_SCHEDULE_WORDS]uint32) {
	for i := SHA_BLOCK_WORDS; i < SHA_SCHEDULE_WORDS; i++ {
		s0 := rotr(w[i-15], 7) ^ rotr(w[i-15], 18) ^ (w[i-15] >> 3)
		s1 := rotr(w[i-2], 17) ^ rotr(w[i-2], 19) ^ (w[i-2] >> 10)
		w[i] = w[i-16] + s0 + w[i-7] + s1
	}
}

// ShaCompress folds one expanded schedule into h.
func ShaCompress(h *[SHA_STATE_WORDS]uint32, w *[SHA_SCHEDULE_WORDS]uint32) {
	a, b, c, d, e, f, g, hh := h[0], h[1], h[2], h[3], h[4], h[5], h[6], h[7]
	for i := 0; i < SHA_SCHEDULE_WORDS; i++ {
		s1 := rotr(e, 6) ^ rotr(e, 11) ^ rotr(e, 25)
		ch := (e & f) ^ (^e & g)
		t1 := hh + s1 + ch + sha256K[i] + w[i]
		s0 := rotr(a, 2) ^ rotr(a, 13) ^ rotr(a, 22)
		maj := (a & b) ^ (a & c) ^ (b & c)
		t2 := s0 + maj

		hh, g, f, e = g, f, e, d+t1
		d, c, b, a = c, b, a, t1+t2
	}
	h[0] += a
	h[1] += b
	h[2] += c
	h[3] += d
	h[4] += e
	h[5] += f
	h[6] += g
	h[7] += hh
}

// ShaExtendSyscall expands the 64-word schedule at arg1 in place.
type ShaExtendSyscall struct{}

func (ShaExtendSyscall) NumExtraCycles() uint32 { return 48 }

func (ShaExtendSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, wPtr, arg2 uint32) (uint32, bool, error) {
	if err := checkPointer("w", wPtr); err != nil {
		return 0, false, err
	}
	if arg2 != 0 {
		return 0, false, precompileFault("sha extend: arg2 must be zero")
	}
	// The schedule tail is written after the head is recorded as read.
	if err := checkWordRange(wPtr, SHA_SCHEDULE_WORDS); err != nil {
		return 0, false, err
	}
	block, reads, err := ctx.ReadWords(wPtr, SHA_BLOCK_WORDS)
	if err != nil {
		return 0, false, err
	}
	var w [SHA_SCHEDULE_WORDS]uint32
	copy(w[:], block)
	ShaExtend(&w)

	writes, err := ctx.WriteWords(wPtr+SHA_BLOCK_WORDS*4, w[SHA_BLOCK_WORDS:])
	if err != nil {
		return 0, false, err
	}
	ctx.Emit(&ShaExtendEvent{
		Clock:        ctx.Clk(),
		WPtr:         wPtr,
		ReadRecords:  reads,
		WriteRecords: writes,
	})
	return 0, false, nil
}

// ShaCompressSyscall compresses the schedule at arg1 into the state at arg2.
type ShaCompressSyscall struct{}

func (ShaCompressSyscall) NumExtraCycles() uint32 { return 1 }

func (ShaCompressSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, wPtr, hPtr uint32) (uint32, bool, error) {
	if err := checkPointer("w", wPtr); err != nil {
		return 0, false, err
	}
	if err := checkPointer("h", hPtr); err != nil {
		return 0, false, err
	}
	if _, err := ctx.PeekWords(wPtr, SHA_SCHEDULE_WORDS); err != nil {
		return 0, false, err
	}
	hWords, hReads, err := ctx.ReadWords(hPtr, SHA_STATE_WORDS)
	if err != nil {
		return 0, false, err
	}
	wWords, wReads, err := ctx.ReadWords(wPtr, SHA_SCHEDULE_WORDS)
	if err != nil {
		return 0, false, err
	}

	var w [SHA_SCHEDULE_WORDS]uint32
	var h [SHA_STATE_WORDS]uint32
	copy(w[:], wWords)
	copy(h[:], hWords)
	pre := h
	ShaCompress(&h, &w)

	hWrites, err := ctx.WriteWords(hPtr, h[:])
	if err != nil {
		return 0, false, err
	}
	ctx.Emit(&ShaCompressEvent{
		Clock:         ctx.Clk(),
		WPtr:          wPtr,
		HPtr:          hPtr,
		W:             w,
		H:             pre,
		WReadRecords:  wReads,
		HReadRecords:  hReads,
		HWriteRecords: hWrites,
	})
	return 0, false, nil
}
