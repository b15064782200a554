package ixgbe

import (
	"encoding/binary"
	"sync/atomic"
	"unsafe"
)

// descriptorSize is the fixed size of every 82599 advanced descriptor,
// RX or TX: two 64-bit fields, one memory footprint shared by a
// driver-written "read" view and a device-written "writeback" view (see
// the design note on descriptor unions).
const descriptorSize = 16

// rxDescRing is a view over a ring of advanced RX descriptors backed by
// DMA memory. The read form is {pkt_addr uint64, hdr_addr uint64}; the
// writeback form overlays the same 16 bytes as {lower uint64,
// status_error uint32, length uint16, vlan uint16}. Both views are
// modelled here as accessors rather than as aliased Go structs.
type rxDescRing struct {
	mem []byte
}

func (r rxDescRing) at(i int) int { return i * descriptorSize }

// StatusError reads the writeback status_error word. The device writes
// this word concurrently with the driver's poll, so the read goes
// through sync/atomic to forbid the compiler from caching or reordering
// it, matching the MMIO barrier discipline used for BAR0 access.
func (r rxDescRing) StatusError(i int) uint32 {
	p := (*uint32)(unsafe.Pointer(&r.mem[r.at(i)+8]))
	return atomic.LoadUint32(p)
}

// Length reads the writeback length field. Only valid once StatusError
// has been observed with DD set.
func (r rxDescRing) Length(i int) uint16 {
	return binary.LittleEndian.Uint16(r.mem[r.at(i)+12:])
}

// SetPktAddr writes the read-form pkt_addr field.
func (r rxDescRing) SetPktAddr(i int, addr uint64) {
	binary.LittleEndian.PutUint64(r.mem[r.at(i):], addr)
}

// ClearHdrAddr zeroes the read-form hdr_addr field. Because hdr_addr and
// the writeback status_error/length/vlan fields occupy the same 8 bytes,
// this also clears DD ahead of handing the descriptor back to the
// device — the atomic store here is the compiler-barrier equivalent of
// the reference driver's volatile write.
func (r rxDescRing) ClearHdrAddr(i int) {
	p := (*uint64)(unsafe.Pointer(&r.mem[r.at(i)+8]))
	atomic.StoreUint64(p, 0)
}

// Fill writes b to every byte of the ring, matching the reference
// driver's practice of poisoning fresh descriptor memory with 0xFF so a
// premature DMA activation is visible as garbage rather than a
// plausible-looking zero descriptor.
func (r rxDescRing) Fill(b byte) {
	for i := range r.mem {
		r.mem[i] = b
	}
}

// txDescRing is a view over a ring of advanced TX data descriptors. The
// read form is {buffer_addr uint64, cmd_type_len uint32, olinfo_status
// uint32}; the writeback form overlays the same 16 bytes with a status
// word at the same offset as olinfo_status.
type txDescRing struct {
	mem []byte
}

func (r txDescRing) at(i int) int { return i * descriptorSize }

// Status reads the writeback status word (DD lives here).
func (r txDescRing) Status(i int) uint32 {
	p := (*uint32)(unsafe.Pointer(&r.mem[r.at(i)+12]))
	return atomic.LoadUint32(p)
}

// SetBufferAddr writes the read-form buffer_addr field.
func (r txDescRing) SetBufferAddr(i int, addr uint64) {
	binary.LittleEndian.PutUint64(r.mem[r.at(i):], addr)
}

// SetCmdTypeLen writes the read-form cmd_type_len field.
func (r txDescRing) SetCmdTypeLen(i int, v uint32) {
	binary.LittleEndian.PutUint32(r.mem[r.at(i)+8:], v)
}

// SetOlinfoStatus writes the read-form olinfo_status field. This is the
// last field programmed for a descriptor before the tail pointer is
// advanced, so the store goes through sync/atomic to order it ahead of
// the TDT MMIO write that follows.
func (r txDescRing) SetOlinfoStatus(i int, v uint32) {
	p := (*uint32)(unsafe.Pointer(&r.mem[r.at(i)+12]))
	atomic.StoreUint32(p, v)
}

// Fill poisons the ring, see rxDescRing.Fill.
func (r txDescRing) Fill(b byte) {
	for i := range r.mem {
		r.mem[i] = b
	}
}
