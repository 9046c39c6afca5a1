/*
rv_events.go - Execution event records for the Intuition ZK Engine

Events are the trace handed to proof generation. They are plain data built
only from execution state (no wall clock, no randomness, no map iteration),
and each has a canonical little-endian encoding. The log digest is the
Keccak-256 of the concatenated encodings, so two runs can be compared by a
single hash.
*/

package main

import (
	"encoding/binary"

	"github.com/ethereum/go-ethereum/crypto"
)

// EventKind tags an event record.
type EventKind uint8

const (
	EVENT_CPU EventKind = iota + 1
	EVENT_SYSCALL
	EVENT_EC_ADD
	EVENT_EC_DOUBLE
	EVENT_EC_DECOMPRESS
	EVENT_KECCAK_PERMUTE
	EVENT_SHA_EXTEND
	EVENT_SHA_COMPRESS
	EVENT_UINT256_MUL
	EVENT_SCRIPTED
)

var eventKindNames = map[EventKind]string{
	EVENT_CPU:            "cpu",
	EVENT_SYSCALL:        "syscall",
	EVENT_EC_ADD:         "ec_add",
	EVENT_EC_DOUBLE:      "ec_double",
	EVENT_EC_DECOMPRESS:  "ec_decompress",
	EVENT_KECCAK_PERMUTE: "keccak_permute",
	EVENT_SHA_EXTEND:     "sha_extend",
	EVENT_SHA_COMPRESS:   "sha_compress",
	EVENT_UINT256_MUL:    "uint256_mul",
	EVENT_SCRIPTED:       "scripted",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is one record in the execution log.
type Event interface {
	Kind() EventKind
	Clk() uint64
	encode(enc *eventEncoder)
}

// ------------------------------------------------------------------------------
// Event Log
// ------------------------------------------------------------------------------

// EventLog is append-only.
type EventLog struct {
	events []Event
}

func NewEventLog() *EventLog {
	return &EventLog{events: make([]Event, 0, 256)}
}

func (l *EventLog) Append(ev Event) {
	l.events = append(l.events, ev)
}

// Events returns the recorded events. Callers must not modify the slice.
func (l *EventLog) Events() []Event {
	return l.events
}

func (l *EventLog) Len() int {
	return len(l.events)
}

// Count returns how many events of the given kind were recorded.
func (l *EventLog) Count(kind EventKind) int {
	n := 0
	for _, ev := range l.events {
		if ev.Kind() == kind {
			n++
		}
	}
	return n
}

// Encode returns the canonical encoding of the whole log.
func (l *EventLog) Encode() []byte {
	enc := &eventEncoder{}
	enc.u32(uint32(len(l.events)))
	for _, ev := range l.events {
		EncodeEvent(enc, ev)
	}
	return enc.buf
}

// Digest returns the Keccak-256 of the log encoding.
func (l *EventLog) Digest() [32]byte {
	return [32]byte(crypto.Keccak256(l.Encode()))
}

// EncodeEvent appends the canonical encoding of one event: kind, clock,
// then the event body.
func EncodeEvent(enc *eventEncoder, ev Event) {
	enc.u8(uint8(ev.Kind()))
	enc.u64(ev.Clk())
	ev.encode(enc)
}

// ------------------------------------------------------------------------------
// Encoding
// ------------------------------------------------------------------------------

type eventEncoder struct {
	buf []byte
}

func (e *eventEncoder) u8(v uint8) { e.buf = append(e.buf, v) }

func (e *eventEncoder) bool(v bool) {
	if v {
		e.u8(1)
	} else {
		e.u8(0)
	}
}

func (e *eventEncoder) u32(v uint32) { e.buf = binary.LittleEndian.AppendUint32(e.buf, v) }
func (e *eventEncoder) u64(v uint64) { e.buf = binary.LittleEndian.AppendUint64(e.buf, v) }

func (e *eventEncoder) str(s string) {
	e.u32(uint32(len(s)))
	e.buf = append(e.buf, s...)
}

func (e *eventEncoder) words(ws []uint32) {
	e.u32(uint32(len(ws)))
	for _, w := range ws {
		e.u32(w)
	}
}

func (e *eventEncoder) reads(records []MemoryReadRecord) {
	e.u32(uint32(len(records)))
	for _, r := range records {
		e.u32(r.Addr)
		e.u32(r.Value)
		e.u64(r.Clk)
		e.u64(r.PrevClk)
	}
}

func (e *eventEncoder) writes(records []MemoryWriteRecord) {
	e.u32(uint32(len(records)))
	for _, w := range records {
		e.u32(w.Addr)
		e.u32(w.Value)
		e.u32(w.PrevValue)
		e.u64(w.Clk)
		e.u64(w.PrevClk)
	}
}

func (e *eventEncoder) instruction(i Instruction) {
	e.u8(uint8(i.Opcode))
	e.u8(i.OpA)
	e.u32(i.OpB)
	e.u32(i.OpC)
	e.bool(i.ImmB)
	e.bool(i.ImmC)
}

// ------------------------------------------------------------------------------
// Core Events
// ------------------------------------------------------------------------------

// CPUEvent records one retired instruction.
type CPUEvent struct {
	Clock       uint64
	PC          uint32
	NextPC      uint32
	Instruction Instruction
	A, B, C     uint32
	MemRead     []MemoryReadRecord
	MemWrite    []MemoryWriteRecord
}

func (e *CPUEvent) Kind() EventKind { return EVENT_CPU }
func (e *CPUEvent) Clk() uint64     { return e.Clock }

func (e *CPUEvent) encode(enc *eventEncoder) {
	enc.u32(e.PC)
	enc.u32(e.NextPC)
	enc.instruction(e.Instruction)
	enc.u32(e.A)
	enc.u32(e.B)
	enc.u32(e.C)
	enc.reads(e.MemRead)
	enc.writes(e.MemWrite)
}

// SyscallEvent records one dispatched syscall, whatever capability served it.
type SyscallEvent struct {
	Clock     uint64
	Code      SyscallCode
	Arg1      uint32
	Arg2      uint32
	Result    uint32
	HasResult bool
}

func (e *SyscallEvent) Kind() EventKind { return EVENT_SYSCALL }
func (e *SyscallEvent) Clk() uint64     { return e.Clock }

func (e *SyscallEvent) encode(enc *eventEncoder) {
	enc.u32(uint32(e.Code))
	enc.u32(e.Arg1)
	enc.u32(e.Arg2)
	enc.u32(e.Result)
	enc.bool(e.HasResult)
}

// ------------------------------------------------------------------------------
// Precompile Events
// ------------------------------------------------------------------------------

// ECAddEvent records P = P + Q on a named curve.
type ECAddEvent struct {
	Clock          uint64
	Curve          string
	PPtr           uint32
	P              []uint32
	QPtr           uint32
	Q              []uint32
	PMemoryRecords []MemoryWriteRecord
	QMemoryRecords []MemoryReadRecord
}

func (e *ECAddEvent) Kind() EventKind { return EVENT_EC_ADD }
func (e *ECAddEvent) Clk() uint64     { return e.Clock }

func (e *ECAddEvent) encode(enc *eventEncoder) {
	enc.str(e.Curve)
	enc.u32(e.PPtr)
	enc.words(e.P)
	enc.u32(e.QPtr)
	enc.words(e.Q)
	enc.writes(e.PMemoryRecords)
	enc.reads(e.QMemoryRecords)
}

// ECDoubleEvent records P = 2P on a named curve.
type ECDoubleEvent struct {
	Clock          uint64
	Curve          string
	PPtr           uint32
	P              []uint32
	PMemoryRecords []MemoryWriteRecord
}

func (e *ECDoubleEvent) Kind() EventKind { return EVENT_EC_DOUBLE }
func (e *ECDoubleEvent) Clk() uint64     { return e.Clock }

func (e *ECDoubleEvent) encode(enc *eventEncoder) {
	enc.str(e.Curve)
	enc.u32(e.PPtr)
	enc.words(e.P)
	enc.writes(e.PMemoryRecords)
}

// ECDecompressEvent records recovery of one coordinate from the other.
type ECDecompressEvent struct {
	Clock        uint64
	Curve        string
	Ptr          uint32
	SignBit      bool
	Known        []uint32
	Recovered    []uint32
	ReadRecords  []MemoryReadRecord
	WriteRecords []MemoryWriteRecord
}

func (e *ECDecompressEvent) Kind() EventKind { return EVENT_EC_DECOMPRESS }
func (e *ECDecompressEvent) Clk() uint64     { return e.Clock }

func (e *ECDecompressEvent) encode(enc *eventEncoder) {
	enc.str(e.Curve)
	enc.u32(e.Ptr)
	enc.bool(e.SignBit)
	enc.words(e.Known)
	enc.words(e.Recovered)
	enc.reads(e.ReadRecords)
	enc.writes(e.WriteRecords)
}

// KeccakPermuteEvent records one Keccak-f[1600] permutation in place.
type KeccakPermuteEvent struct {
	Clock        uint64
	StatePtr     uint32
	PreState     [KECCAK_LANES]uint64
	PostState    [KECCAK_LANES]uint64
	ReadRecords  []MemoryReadRecord
	WriteRecords []MemoryWriteRecord
}

func (e *KeccakPermuteEvent) Kind() EventKind { return EVENT_KECCAK_PERMUTE }
func (e *KeccakPermuteEvent) Clk() uint64     { return e.Clock }

func (e *KeccakPermuteEvent) encode(enc *eventEncoder) {
	enc.u32(e.StatePtr)
	for _, lane := range e.PreState {
		enc.u64(lane)
	}
	for _, lane := range e.PostState {
		enc.u64(lane)
	}
	enc.reads(e.ReadRecords)
	enc.writes(e.WriteRecords)
}

// ShaExtendEvent records the schedule expansion of words 16..63.
type ShaExtendEvent struct {
	Clock        uint64
	WPtr         uint32
	ReadRecords  []MemoryReadRecord
	WriteRecords []MemoryWriteRecord
}

func (e *ShaExtendEvent) Kind() EventKind { return EVENT_SHA_EXTEND }
func (e *ShaExtendEvent) Clk() uint64     { return e.Clock }

func (e *ShaExtendEvent) encode(enc *eventEncoder) {
	enc.u32(e.WPtr)
	enc.reads(e.ReadRecords)
	enc.writes(e.WriteRecords)
}

// ShaCompressEvent records one SHA-256 compression.
type ShaCompressEvent struct {
	Clock         uint64
	WPtr          uint32
	HPtr          uint32
	W             [SHA_SCHEDULE_WORDS]uint32
	H             [SHA_STATE_WORDS]uint32
	WReadRecords  []MemoryReadRecord
	HReadRecords  []MemoryReadRecord
	HWriteRecords []MemoryWriteRecord
}

func (e *ShaCompressEvent) Kind() EventKind { return EVENT_SHA_COMPRESS }
func (e *ShaCompressEvent) Clk() uint64     { return e.Clock }

func (e *ShaCompressEvent) encode(enc *eventEncoder) {
	enc.u32(e.WPtr)
	enc.u32(e.HPtr)
	enc.words(e.W[:])
	enc.words(e.H[:])
	enc.reads(e.WReadRecords)
	enc.reads(e.HReadRecords)
	enc.writes(e.HWriteRecords)
}

// Uint256MulEvent records x = x*y mod m.
type Uint256MulEvent struct {
	Clock          uint64
	XPtr           uint32
	X              []uint32
	YPtr           uint32
	Y              []uint32
	Modulus        []uint32
	XMemoryRecords []MemoryWriteRecord
	YMemoryRecords []MemoryReadRecord
}

func (e *Uint256MulEvent) Kind() EventKind { return EVENT_UINT256_MUL }
func (e *Uint256MulEvent) Clk() uint64     { return e.Clock }

func (e *Uint256MulEvent) encode(enc *eventEncoder) {
	enc.u32(e.XPtr)
	enc.words(e.X)
	enc.u32(e.YPtr)
	enc.words(e.Y)
	enc.words(e.Modulus)
	enc.writes(e.XMemoryRecords)
	enc.reads(e.YMemoryRecords)
}

// ScriptedEvent records one call into a Lua-defined precompile.
type ScriptedEvent struct {
	Clock        uint64
	Code         SyscallCode
	Arg1         uint32
	Arg2         uint32
	Result       uint32
	HasResult    bool
	ReadRecords  []MemoryReadRecord
	WriteRecords []MemoryWriteRecord
}

func (e *ScriptedEvent) Kind() EventKind { return EVENT_SCRIPTED }
func (e *ScriptedEvent) Clk() uint64     { return e.Clock }

func (e *ScriptedEvent) encode(enc *eventEncoder) {
	enc.u32(uint32(e.Code))
	enc.u32(e.Arg1)
	enc.u32(e.Arg2)
	enc.u32(e.Result)
	enc.bool(e.HasResult)
	enc.reads(e.ReadRecords)
	enc.writes(e.WriteRecords)
}
