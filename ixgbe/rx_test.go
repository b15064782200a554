package ixgbe

import (
	"testing"

	"github.com/ixy-go/ixgbe/internal/mmio"
	"github.com/ixy-go/ixgbe/memory"
)

func newTestRxQueue(entries int) (*Device, *rxQueue) {
	ring := rxDescRing{mem: make([]byte, entries*descriptorSize)}
	pool := memory.NewHeapMempool(entries*4, memory.DefaultEntrySize)

	q := &rxQueue{
		id:      0,
		ring:    ring,
		pool:    pool,
		entries: entries,
		bufs:    make([]*memory.Buffer, entries),
	}
	for i := 0; i < entries; i++ {
		buf := pool.Alloc()
		ring.SetPktAddr(i, buf.PhysAddr)
		ring.ClearHdrAddr(i)
		q.bufs[i] = buf
	}

	d := &Device{
		space: mmio.NewSpace(make([]byte, 1<<20)),
		rx:    []*rxQueue{q},
	}
	return d, q
}

func markDescriptorDone(ring rxDescRing, i int, length uint16) {
	ring.mem[ring.at(i)+12] = byte(length)
	ring.mem[ring.at(i)+13] = byte(length >> 8)
	ring.mem[ring.at(i)+8] = rxdadvStatDD | rxdadvStatEOP
	ring.mem[ring.at(i)+9] = 0
	ring.mem[ring.at(i)+10] = 0
	ring.mem[ring.at(i)+11] = 0
}

func TestRxPacketReturnsNilOnEmptyRing(t *testing.T) {
	d, _ := newTestRxQueue(8)

	for i := 0; i < 1000; i++ {
		if buf := d.RxPacket(0); buf != nil {
			t.Fatalf("expected nil on an untouched descriptor, got a buffer on iteration %d", i)
		}
	}
}

func TestRxPacketReturnsBufferAndAdvancesIndex(t *testing.T) {
	d, q := newTestRxQueue(8)

	markDescriptorDone(q.ring, 0, 64)

	buf := d.RxPacket(0)
	if buf == nil {
		t.Fatal("expected a buffer once DD and EOP are set")
	}
	if buf.Size != 64 {
		t.Fatalf("buffer size = %d, want 64", buf.Size)
	}
	if q.rxIndex != 1 {
		t.Fatalf("rxIndex = %d, want 1", q.rxIndex)
	}

	// RDT must lag rxIndex by one: after consuming slot 0, rxIndex is 1
	// and RDT must read back 0, not 1.
	got := d.space.Read(regRDT(0))
	if got != 0 {
		t.Fatalf("RDT = %d, want 0 (rxIndex - 1)", got)
	}
}

func TestRxPacketRefillsDescriptorWithFreshBuffer(t *testing.T) {
	d, q := newTestRxQueue(8)
	original := q.bufs[0]

	markDescriptorDone(q.ring, 0, 64)
	d.RxPacket(0)

	if q.bufs[0] == original {
		t.Fatal("expected descriptor 0 to be refilled with a different buffer")
	}
	if q.bufs[0].PhysAddr == 0 {
		t.Fatal("expected refilled buffer to carry a nonzero physical address")
	}
}

func TestRxPacketWrapsIndexModuloRingLength(t *testing.T) {
	d, q := newTestRxQueue(4)
	q.rxIndex = 3

	markDescriptorDone(q.ring, 3, 64)
	if buf := d.RxPacket(0); buf == nil {
		t.Fatal("expected a buffer at the last ring slot")
	}

	if q.rxIndex != 0 {
		t.Fatalf("rxIndex = %d, want 0 after wrapping past the last slot", q.rxIndex)
	}
}
