// precompile_keccak.go - Keccak-f[1600] permutation precompile

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

package main

import "math/bits"

// ------------------------------------------------------------------------------
// Keccak-f[1600]
// ------------------------------------------------------------------------------
//
// State is 25 64-bit lanes, lane (x, y) at index x + 5y. In guest memory each
// lane is two little-endian words, low word first: 50 words in total.

const (
	KECCAK_LANES       = 25
	KECCAK_STATE_WORDS = 2 * KECCAK_LANES
	KECCAK_ROUNDS      = 24
)

var keccakRoundConstants = [KECCAK_ROUNDS]uint64{
	0x0000000000000001, 0x0000000000008082, 0x800000000000808A, 0x8000000080008000,
	0x000000000000808B, 0x0000000080000001, 0x8000000080008081, 0x8000000000008009,
	0x000000000000008A, 0x0000000000000088, 0x0000000080008009, 0x000000008000000A,
	0x000000008000808B, 0x800000000000008B, 0x8000000000008089, 0x8000000000008003,
	0x8000000000008002, 0x8000000000000080, 0x000000000000800A, 0x800000008000000A,
	0x8000000080008081, 0x8000000000008080, 0x0000000080000001, 0x8000000080008008,
}

// Rotation offsets indexed by lane.
var keccakRotations = [KECCAK_LANES]int{
	0, 1, 62, 28, 27,
	36, 44, 6, 55, 20,
	3, 10, 43, 25, 39,
	41, 45, 15, 21, 8,
	18, 2, 61, 56, 14,
}

// KeccakF1600 permutes the state in place.
func KeccakF1600(a *[KECCAK_LANES]uint64) {
	var c [5]uint64
	var b [KECCAK_LANES]uint64
	for round := 0; round < KECCAK_ROUNDS; round++ {
		// theta
		for x := 0; x < 5; x++ {
			c[x] = a[x] ^ a[x+5] ^ a[x+10] ^ a[x+15] ^ a[x+20]
		}
		for x := 0; x < 5; x++ {
			d := c[(x+4)%5] ^ bits.RotateLeft64(c[(x+1)%5], 1)
			for y := 0; y < 25; y += 5 {
				a[x+y] ^= d
			}
		}
		// rho and pi
		for x := 0; x < 5; x++ {
			for y := 0; y < 5; y++ {
				b[y+5*((2*x+3*y)%5)] = bits.RotateLeft64(a[x+5*y], keccakRotations[x+5*y])
			}
		}
		// chi
		for y := 0; y < 25; y += 5 {
			for x := 0; x < 5; x++ {
				a[x+y] = b[x+y] ^ (^b[(x+1)%5+y] & b[(x+2)%5+y])
			}
		}
		// iota
		a[0] ^= keccakRoundConstants[round]
	}
}

func keccakStateFromWords(words []uint32) [KECCAK_LANES]uint64 {
	var state [KECCAK_LANES]uint64
	for i := range state {
		state[i] = uint64(words[2*i]) | uint64(words[2*i+1])<<32
	}
	return state
}

func keccakStateToWords(state [KECCAK_LANES]uint64) []uint32 {
	words := make([]uint32, KECCAK_STATE_WORDS)
	for i, lane := range state {
		words[2*i] = uint32(lane)
		words[2*i+1] = uint32(lane >> 32)
	}
	return words
}

// KeccakPermuteSyscall permutes the 50-word state at arg1 in place.
type KeccakPermuteSyscall struct{}

func (KeccakPermuteSyscall) NumExtraCycles() uint32 { return 1 }

func (KeccakPermuteSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, statePtr, arg2 uint32) (uint32, bool, error) {
	if err := checkPointer("state", statePtr); err != nil {
		return 0, false, err
	}
	if arg2 != 0 {
		return 0, false, precompileFault("keccak permute: arg2 must be zero")
	}
	words, reads, err := ctx.ReadWords(statePtr, KECCAK_STATE_WORDS)
	if err != nil {
		return 0, false, err
	}
	pre := keccakStateFromWords(words)
	post := pre
	KeccakF1600(&post)

	writes, err := ctx.WriteWords(statePtr, keccakStateToWords(post))
	if err != nil {
		return 0, false, err
	}
	ctx.Emit(&KeccakPermuteEvent{
		Clock:        ctx.Clk(),
		StatePtr:     statePtr,
		PreState:     pre,
		PostState:    post,
		ReadRecords:  reads,
		WriteRecords: writes,
	})
	return 0, false, nil
}
