// Package mmio provides primitives for retrieving and modifying the
// memory-mapped 32-bit registers of a PCI device BAR.
//
// Every access goes through sync/atomic, which on amd64 compiles to a
// plain load/store with the compiler barrier the volatile register
// window requires — the hardware write ordering itself is guaranteed by
// the x86 TSO model between cacheable stores and the MMIO write that
// follows them.
package mmio

import (
	"fmt"
	"runtime"
	"sync/atomic"
	"time"
	"unsafe"

	"github.com/ixy-go/ixgbe/bits"
)

// Space is a memory-mapped register window, such as a PCI BAR, backed by
// a slice obtained from mmap(2). The zero value is not usable.
type Space struct {
	base unsafe.Pointer
	size int
}

// NewSpace wraps an mmap'd byte slice as a register window.
func NewSpace(mem []byte) Space {
	if len(mem) == 0 {
		return Space{}
	}
	return Space{base: unsafe.Pointer(&mem[0]), size: len(mem)}
}

func (s Space) regAt(off uint32) *uint32 {
	if s.base == nil || int(off)+4 > s.size {
		panic(fmt.Sprintf("mmio: register offset %#x out of range (window size %#x)", off, s.size))
	}
	return (*uint32)(unsafe.Pointer(uintptr(s.base) + uintptr(off)))
}

// Read returns the raw 32-bit value at offset off.
func (s Space) Read(off uint32) uint32 {
	return atomic.LoadUint32(s.regAt(off))
}

// Write stores a raw 32-bit value at offset off.
func (s Space) Write(off uint32, val uint32) {
	atomic.StoreUint32(s.regAt(off), val)
}

// Get reads the bitfield at position pos masked by mask from offset off.
// The bitfield arithmetic itself is the bits package's; Get only adds
// the atomic load the register window needs.
func (s Space) Get(off uint32, pos int, mask int) uint32 {
	r := s.Read(off)
	return bits.GetN(&r, pos, mask)
}

// Set sets an individual bit at position pos at offset off.
func (s Space) Set(off uint32, pos int) {
	r := s.Read(off)
	bits.Set(&r, pos)
	s.Write(off, r)
}

// Clear clears an individual bit at position pos at offset off.
func (s Space) Clear(off uint32, pos int) {
	r := s.Read(off)
	bits.Clear(&r, pos)
	s.Write(off, r)
}

// SetN writes val at position pos masked by mask at offset off, leaving
// the rest of the register untouched.
func (s Space) SetN(off uint32, pos int, mask int, val uint32) {
	r := s.Read(off)
	bits.SetN(&r, pos, mask, val)
	s.Write(off, r)
}

// Or ors val into the register at offset off.
func (s Space) Or(off uint32, val uint32) {
	r := s.Read(off)
	s.Write(off, r|val)
}

// AndNot clears every bit set in mask at offset off, leaving the rest of
// the register untouched.
func (s Space) AndNot(off uint32, mask uint32) {
	r := s.Read(off)
	s.Write(off, r&^mask)
}

// WaitMaskSet busy-polls offset off until every bit in mask reads back
// as set. Used for datasheet steps phrased as "wait until register X has
// bits Y set", where the bits are not a single contiguous field.
func (s Space) WaitMaskSet(off uint32, mask uint32) {
	for s.Read(off)&mask != mask {
		runtime.Gosched()
	}
}

// WaitMaskClear busy-polls offset off until every bit in mask reads back
// as clear.
func (s Space) WaitMaskClear(off uint32, mask uint32) {
	for s.Read(off)&mask != 0 {
		runtime.Gosched()
	}
}

// WaitMaskSetFor is WaitMaskSet bounded by timeout; it reports whether
// the condition was observed before the deadline.
func (s Space) WaitMaskSetFor(timeout time.Duration, off uint32, mask uint32) bool {
	start := time.Now()

	for s.Read(off)&mask != mask {
		if time.Since(start) >= timeout {
			return false
		}
		runtime.Gosched()
		time.Sleep(time.Microsecond)
	}

	return true
}

// Wait busy-polls the bitfield at position pos masked by mask at offset
// off until it equals val. It never returns otherwise; callers that need
// a bound should use WaitFor.
func (s Space) Wait(off uint32, pos int, mask int, val uint32) {
	for s.Get(off, pos, mask) != val {
		runtime.Gosched()
	}
}

// WaitFor polls the bitfield at position pos masked by mask at offset off
// until it equals val or timeout elapses. The returned bool reports
// whether the condition was observed (true) or the wait timed out
// (false).
func (s Space) WaitFor(timeout time.Duration, off uint32, pos int, mask int, val uint32) bool {
	start := time.Now()

	for s.Get(off, pos, mask) != val {
		if time.Since(start) >= timeout {
			return false
		}

		runtime.Gosched()
		time.Sleep(time.Microsecond)
	}

	return true
}
