package main

import (
	"encoding/binary"
	"math/big"
	"slices"
)

// Field elements and coordinates travel through guest memory as little-endian
// word arrays. Libraries want byte strings, usually big-endian.

const (
	FIELD_WORDS = 8 // 256-bit coordinate
	POINT_WORDS = 2 * FIELD_WORDS
)

func wordsToLE(words []uint32) []byte {
	out := make([]byte, len(words)*4)
	for i, w := range words {
		binary.LittleEndian.PutUint32(out[i*4:], w)
	}
	return out
}

func leToWords(b []byte) []uint32 {
	words := make([]uint32, len(b)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(b[i*4:])
	}
	return words
}

func wordsToBE(words []uint32) []byte {
	b := wordsToLE(words)
	slices.Reverse(b)
	return b
}

// beToWords converts a big-endian byte string of exactly n words.
func beToWords(b []byte, n int) []uint32 {
	le := make([]byte, n*4)
	for i := range b {
		le[len(b)-1-i] = b[i]
	}
	return leToWords(le)
}

func wordsToBig(words []uint32) *big.Int {
	return new(big.Int).SetBytes(wordsToBE(words))
}

func bigToWords(x *big.Int, n int) []uint32 {
	return beToWords(x.FillBytes(make([]byte, n*4)), n)
}

func checkPointer(name string, ptr uint32) error {
	if ptr%4 != 0 {
		return precompileFault("%s pointer 0x%08x not word aligned", name, ptr)
	}
	return nil
}
