package memory

import (
	"fmt"

	"github.com/ixy-go/ixgbe/pagemap"
)

// DefaultEntrySize is the default packet buffer payload capacity (plus
// headroom), matching the reference driver's default.
const DefaultEntrySize = 2048

// HeadroomSize is the padding reserved before the payload in every
// buffer slot. It is a compile-time constant known to the driver and
// used when programming descriptors (PhysAddr of a Buffer already
// includes this offset).
const HeadroomSize = 128

// Buffer is a fixed-size packet buffer carved out of a Mempool's DMA
// region. Its physical address is stable for its lifetime; Pool is a
// weak, non-owning back-reference used only by Free, since the pool
// always outlives its buffers.
type Buffer struct {
	// PhysAddr is the physical address of the buffer's first payload
	// byte (base slot address plus HeadroomSize).
	PhysAddr uint64
	// Index is this buffer's slot index within its mempool.
	Index uint32
	// Size is the buffer's current payload size in bytes.
	Size uint32

	pool    *Mempool
	payload []byte
}

// Payload returns the buffer's payload bytes, sliced to Size.
func (b *Buffer) Payload() []byte {
	return b.payload[:b.Size]
}

// Bytes returns the buffer's full payload capacity, unsliced by Size.
// Writers use this to fill a fresh buffer before setting Size.
func (b *Buffer) Bytes() []byte {
	return b.payload
}

// Capacity returns the maximum payload size the buffer can hold.
func (b *Buffer) Capacity() int {
	return len(b.payload)
}

// Free returns the buffer to the mempool it was allocated from.
func (b *Buffer) Free() {
	b.pool.Free(b)
}

// Mempool is a fixed-size pool of packet buffers carved out of one DMA
// region, with a LIFO stack of free buffer indices. A mempool is created
// once at driver startup and is not safe for concurrent use — exactly
// one goroutine (the one pinned to the owning queue) may call into it.
type Mempool struct {
	region    *Region
	entrySize int
	buffers   []Buffer
	free      []uint32
}

// NewMempool allocates a mempool of numEntries buffers of entrySize bytes
// each (entrySize == 0 selects DefaultEntrySize). entrySize must divide
// the huge-page size so no buffer straddles a page boundary; violating
// this is a ConfigError.
func NewMempool(numEntries int, entrySize int) (*Mempool, error) {
	if entrySize == 0 {
		entrySize = DefaultEntrySize
	}

	if hugePageSize%entrySize != 0 {
		return nil, &ConfigError{Msg: fmt.Sprintf("entry size %d must divide huge page size %d", entrySize, hugePageSize)}
	}

	region, err := Allocate(numEntries*entrySize, false)
	if err != nil {
		return nil, err
	}

	contiguousByConstruction := region.Size <= hugePageSize

	mp := &Mempool{
		region:    region,
		entrySize: entrySize,
		buffers:   make([]Buffer, numEntries),
		free:      make([]uint32, numEntries),
	}

	mem := region.Bytes()
	base := region.Virt

	for i := 0; i < numEntries; i++ {
		off := i * entrySize
		slotVirt := base + uintptr(off)

		var physAddr uint64
		if contiguousByConstruction {
			physAddr = region.Phys + uint64(off) + HeadroomSize
		} else {
			p, err := pagemap.Translate(slotVirt + HeadroomSize)
			if err != nil {
				return nil, &MappingError{Msg: fmt.Sprintf("translate buffer %d: %v", i, err)}
			}
			physAddr = p
		}

		mp.buffers[i] = Buffer{
			PhysAddr: physAddr,
			Index:    uint32(i),
			Size:     0,
			pool:     mp,
			payload:  mem[off+HeadroomSize : off+entrySize],
		}
		mp.free[i] = uint32(i)
	}

	return mp, nil
}

// AllocBatch pops up to n free buffers into out, returning the number
// actually taken (at most the number of free buffers available). It
// never blocks and never allocates from the OS.
func (m *Mempool) AllocBatch(n int, out []*Buffer) int {
	taken := 0
	for taken < n && len(m.free) > 0 {
		idx := m.free[len(m.free)-1]
		m.free = m.free[:len(m.free)-1]

		out[taken] = &m.buffers[idx]
		taken++
	}
	return taken
}

// Alloc is a convenience wrapper for AllocBatch(1, ...); it returns nil if
// the pool is empty.
func (m *Mempool) Alloc() *Buffer {
	var out [1]*Buffer
	if m.AllocBatch(1, out[:]) == 0 {
		return nil
	}
	return out[0]
}

// Free pushes buf's index back onto this mempool's free stack. Double-
// freeing a buffer is undefined behaviour: the mempool performs no
// runtime detection, matching the reference driver's hot-path contract.
func (m *Mempool) Free(buf *Buffer) {
	m.free = append(m.free, buf.Index)
}

// Available reports the number of buffers currently on the free stack.
func (m *Mempool) Available() int {
	return len(m.free)
}

// NumEntries reports the total number of buffers owned by the pool.
func (m *Mempool) NumEntries() int {
	return len(m.buffers)
}
