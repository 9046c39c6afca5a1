// syscall_system.go - System calls: halt, write, commit and hints

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

import (
	"encoding/binary"
	"fmt"
)

// File descriptors accepted by WRITE.
const (
	FD_STDOUT        = 1
	FD_STDERR        = 2
	FD_PUBLIC_VALUES = 3
	FD_HINT          = 4
)

const HINT_NONE = 0xFFFFFFFF

// HaltSyscall stops the VM with exit code arg1.
type HaltSyscall struct{}

func (HaltSyscall) NumExtraCycles() uint32 { return 0 }

func (HaltSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, arg1, _ uint32) (uint32, bool, error) {
	ctx.Halt(arg1)
	return 0, false, nil
}

// WriteSyscall writes a2 bytes from arg2 to the descriptor in arg1.
type WriteSyscall struct{}

func (WriteSyscall) NumExtraCycles() uint32 { return 0 }

func (WriteSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, fd, ptr uint32) (uint32, bool, error) {
	length := ctx.Register(REG_A2)
	data, err := ctx.PeekBytes(ptr, length)
	if err != nil {
		return 0, false, err
	}

	switch fd {
	case FD_STDOUT:
		_, err = ctx.Stdout().Write(data)
	case FD_STDERR:
		_, err = ctx.Stderr().Write(data)
	case FD_PUBLIC_VALUES:
		ctx.appendPublicValues(data)
	case FD_HINT:
		ctx.PushHint(data)
	default:
		return 0, false, fmt.Errorf("write: unsupported file descriptor %d", fd)
	}
	if err != nil {
		return 0, false, fmt.Errorf("write fd %d: %w", fd, err)
	}
	return 0, false, nil
}

// CommitSyscall stores word arg2 at index arg1 of the public digest.
type CommitSyscall struct{}

func (CommitSyscall) NumExtraCycles() uint32 { return 0 }

func (CommitSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, index, word uint32) (uint32, bool, error) {
	if index >= PUBLIC_DIGEST_WORDS {
		return 0, false, fmt.Errorf("commit: digest index %d out of range", index)
	}
	ctx.publicDigest[index] = word
	return 0, false, nil
}

// HintLenSyscall returns the length of the next hint, or HINT_NONE.
type HintLenSyscall struct{}

func (HintLenSyscall) NumExtraCycles() uint32 { return 0 }

func (HintLenSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, _, _ uint32) (uint32, bool, error) {
	hint, ok := ctx.PeekHint()
	if !ok {
		return HINT_NONE, true, nil
	}
	return uint32(len(hint)), true, nil
}

// HintReadSyscall copies the next hint to arg1. arg2 must equal its length.
// The last word is zero padded.
type HintReadSyscall struct{}

func (HintReadSyscall) NumExtraCycles() uint32 { return 0 }

func (HintReadSyscall) Execute(ctx *ExecutionContext, _ SyscallCode, ptr, length uint32) (uint32, bool, error) {
	hint, ok := ctx.PeekHint()
	if !ok {
		return 0, false, fmt.Errorf("hint read: no hint pending")
	}
	if uint32(len(hint)) != length {
		return 0, false, fmt.Errorf("hint read: requested %d bytes, next hint has %d", length, len(hint))
	}

	padded := make([]byte, (len(hint)+3)&^3)
	copy(padded, hint)
	words := make([]uint32, len(padded)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(padded[i*4:])
	}
	if _, err := ctx.WriteWords(ptr, words); err != nil {
		return 0, false, err
	}
	ctx.popHint()
	return 0, false, nil
}
