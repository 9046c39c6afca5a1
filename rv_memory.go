/*
rv_memory.go - Word-addressed guest memory for the Intuition ZK Engine

Memory is sparse: only words that were loaded from the program image or
written by the guest exist. A missing word reads as zero. Keys are the raw
word-aligned addresses; Go's map already spreads 32-bit keys well, so no
extra hashing is layered on top.

Every word also remembers the clock of its last access. Recorded reads and
writes return that previous timestamp next to the new one so the proving side
can check memory consistency as a permutation argument.
*/

package main

import (
	"slices"
)

type memoryEntry struct {
	value uint32
	clk   uint64
}

// MemoryReadRecord describes one recorded word read.
type MemoryReadRecord struct {
	Addr    uint32
	Value   uint32
	Clk     uint64
	PrevClk uint64
}

// MemoryWriteRecord describes one recorded word write.
type MemoryWriteRecord struct {
	Addr      uint32
	Value     uint32
	PrevValue uint32
	Clk       uint64
	PrevClk   uint64
}

// Memory is the guest's word store.
type Memory struct {
	words map[uint32]memoryEntry
}

func NewMemory() *Memory {
	return &Memory{words: make(map[uint32]memoryEntry)}
}

// LoadImage copies an initial image in at clock 0.
func (m *Memory) LoadImage(image map[uint32]uint32) {
	for addr, value := range image {
		m.words[addr] = memoryEntry{value: value}
	}
}

// Peek returns the word at addr without recording an access.
func (m *Memory) Peek(addr uint32) uint32 {
	return m.words[addr].value
}

// Read returns the word at addr and records the access at clk.
func (m *Memory) Read(addr uint32, clk uint64) MemoryReadRecord {
	entry := m.words[addr]
	record := MemoryReadRecord{Addr: addr, Value: entry.value, Clk: clk, PrevClk: entry.clk}
	entry.clk = clk
	m.words[addr] = entry
	return record
}

// Write stores value at addr and records the access at clk.
func (m *Memory) Write(addr, value uint32, clk uint64) MemoryWriteRecord {
	entry := m.words[addr]
	record := MemoryWriteRecord{Addr: addr, Value: value, PrevValue: entry.value, Clk: clk, PrevClk: entry.clk}
	m.words[addr] = memoryEntry{value: value, clk: clk}
	return record
}

// Len returns the number of materialised words.
func (m *Memory) Len() int {
	return len(m.words)
}

// Addresses returns all materialised addresses in ascending order.
func (m *Memory) Addresses() []uint32 {
	addrs := make([]uint32, 0, len(m.words))
	for addr := range m.words {
		addrs = append(addrs, addr)
	}
	slices.Sort(addrs)
	return addrs
}

// Reset drops every word.
func (m *Memory) Reset() {
	clear(m.words)
}
