// rv_checkpoint.go - VM state checkpoints for resuming execution

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
	"bytes"
	"compress/gzip"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const (
	checkpointMagic   = "IZKC"
	checkpointVersion = 1

	checkpointWordSize = 16 // addr, value, clk
)

// CheckpointWord is one materialised memory word.
type CheckpointWord struct {
	Addr  uint32
	Value uint32
	Clk   uint64
}

// Checkpoint captures everything needed to resume a VM mid-run: registers,
// PC, clock, memory with access timestamps, and the committed digest. The
// event log, hint queue and public values are not part of it; a resumed run
// starts a fresh event log.
type Checkpoint struct {
	PC           uint32
	Clk          uint64
	Halted       bool
	ExitCode     uint32
	Registers    [RV_REG_COUNT]uint32
	PublicDigest [PUBLIC_DIGEST_WORDS]uint32
	Memory       []CheckpointWord // ascending by address
}

// TakeCheckpoint captures ctx.
func TakeCheckpoint(ctx *ExecutionContext) *Checkpoint {
	cp := &Checkpoint{
		PC:           ctx.pc,
		Clk:          ctx.clk,
		Halted:       ctx.halted,
		ExitCode:     ctx.exitCode,
		Registers:    ctx.registers,
		PublicDigest: ctx.publicDigest,
	}
	addrs := ctx.memory.Addresses()
	cp.Memory = make([]CheckpointWord, len(addrs))
	for i, addr := range addrs {
		entry := ctx.memory.words[addr]
		cp.Memory[i] = CheckpointWord{Addr: addr, Value: entry.value, Clk: entry.clk}
	}
	return cp
}

// RestoreCheckpoint replaces the machine state with cp.
func (c *ExecutionContext) RestoreCheckpoint(cp *Checkpoint) {
	c.pc = cp.PC
	c.nextPC = cp.PC + RV_INSTR_SIZE
	c.clk = cp.Clk
	c.halted = cp.Halted
	c.exitCode = cp.ExitCode
	c.registers = cp.Registers
	c.registers[REG_ZERO] = 0
	c.publicDigest = cp.PublicDigest

	c.memory.Reset()
	for _, w := range cp.Memory {
		c.memory.words[w.Addr] = memoryEntry{value: w.Value, clk: w.Clk}
	}
	c.events = NewEventLog()
}

// Restore resumes the executor from cp. Buffered prefetches belong to the
// old control flow and are dropped.
func (e *Executor) Restore(cp *Checkpoint) {
	e.ctx.RestoreCheckpoint(cp)
	if e.pipeline != nil {
		e.pipeline.Clear()
	}
}

// SaveCheckpointToFile writes a checkpoint with the memory section gzipped.
func SaveCheckpointToFile(cp *Checkpoint, path string) error {
	var buf bytes.Buffer

	buf.WriteString(checkpointMagic)
	binary.Write(&buf, binary.LittleEndian, uint32(checkpointVersion))

	binary.Write(&buf, binary.LittleEndian, cp.PC)
	binary.Write(&buf, binary.LittleEndian, cp.Clk)
	halted := byte(0)
	if cp.Halted {
		halted = 1
	}
	buf.WriteByte(halted)
	binary.Write(&buf, binary.LittleEndian, cp.ExitCode)
	binary.Write(&buf, binary.LittleEndian, cp.Registers)
	binary.Write(&buf, binary.LittleEndian, cp.PublicDigest)

	// Memory: word count, then gzip-compressed records
	binary.Write(&buf, binary.LittleEndian, uint32(len(cp.Memory)))

	raw := make([]byte, 0, len(cp.Memory)*checkpointWordSize)
	for _, w := range cp.Memory {
		raw = binary.LittleEndian.AppendUint32(raw, w.Addr)
		raw = binary.LittleEndian.AppendUint32(raw, w.Value)
		raw = binary.LittleEndian.AppendUint64(raw, w.Clk)
	}
	var compressed bytes.Buffer
	gz := gzip.NewWriter(&compressed)
	if _, err := gz.Write(raw); err != nil {
		return fmt.Errorf("compressing memory: %w", err)
	}
	if err := gz.Close(); err != nil {
		return fmt.Errorf("closing gzip: %w", err)
	}
	buf.Write(compressed.Bytes())

	return os.WriteFile(path, buf.Bytes(), 0644)
}

// LoadCheckpointFromFile reads a checkpoint written by SaveCheckpointToFile.
func LoadCheckpointFromFile(path string) (*Checkpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	r := bytes.NewReader(data)

	magic := make([]byte, len(checkpointMagic))
	if _, err := io.ReadFull(r, magic); err != nil {
		return nil, fmt.Errorf("reading magic: %w", err)
	}
	if string(magic) != checkpointMagic {
		return nil, fmt.Errorf("invalid checkpoint magic: %q", string(magic))
	}

	var version uint32
	if err := binary.Read(r, binary.LittleEndian, &version); err != nil {
		return nil, fmt.Errorf("reading version: %w", err)
	}
	if version != checkpointVersion {
		return nil, fmt.Errorf("unsupported checkpoint version: %d", version)
	}

	cp := &Checkpoint{}
	if err := binary.Read(r, binary.LittleEndian, &cp.PC); err != nil {
		return nil, fmt.Errorf("reading pc: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &cp.Clk); err != nil {
		return nil, fmt.Errorf("reading clock: %w", err)
	}
	halted, err := r.ReadByte()
	if err != nil {
		return nil, fmt.Errorf("reading halted flag: %w", err)
	}
	cp.Halted = halted != 0
	if err := binary.Read(r, binary.LittleEndian, &cp.ExitCode); err != nil {
		return nil, fmt.Errorf("reading exit code: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &cp.Registers); err != nil {
		return nil, fmt.Errorf("reading registers: %w", err)
	}
	if err := binary.Read(r, binary.LittleEndian, &cp.PublicDigest); err != nil {
		return nil, fmt.Errorf("reading public digest: %w", err)
	}

	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, fmt.Errorf("reading memory word count: %w", err)
	}

	remaining := data[len(data)-r.Len():]
	gz, err := gzip.NewReader(bytes.NewReader(remaining))
	if err != nil {
		return nil, fmt.Errorf("opening gzip reader: %w", err)
	}
	defer gz.Close()

	raw, err := io.ReadAll(io.LimitReader(gz, int64(count)*checkpointWordSize+1))
	if err != nil {
		return nil, fmt.Errorf("decompressing memory: %w", err)
	}
	if len(raw) != int(count)*checkpointWordSize {
		return nil, fmt.Errorf("memory section holds %d bytes, want %d", len(raw), int(count)*checkpointWordSize)
	}
	cp.Memory = make([]CheckpointWord, count)
	for i := range cp.Memory {
		rec := raw[i*checkpointWordSize:]
		cp.Memory[i] = CheckpointWord{
			Addr:  binary.LittleEndian.Uint32(rec),
			Value: binary.LittleEndian.Uint32(rec[4:]),
			Clk:   binary.LittleEndian.Uint64(rec[8:]),
		}
	}
	return cp, nil
}
