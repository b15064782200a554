package ixgbe

import (
	"testing"

	"github.com/ixy-go/ixgbe/internal/mmio"
	"github.com/ixy-go/ixgbe/memory"
)

func newTestTxQueue(entries int) (*Device, *txQueue) {
	ring := txDescRing{mem: make([]byte, entries*descriptorSize)}

	q := &txQueue{
		id:      0,
		ring:    ring,
		entries: entries,
		bufs:    make([]*memory.Buffer, entries),
	}

	d := &Device{
		space: mmio.NewSpace(make([]byte, 1<<20)),
		tx:    []*txQueue{q},
	}
	return d, q
}

func markTxDescriptorDone(ring txDescRing, i int) {
	ring.mem[ring.at(i)+12] = advTxdStatDD
	ring.mem[ring.at(i)+13] = 0
	ring.mem[ring.at(i)+14] = 0
	ring.mem[ring.at(i)+15] = 0
}

func TestTxPacketFillsRingThenReportsFull(t *testing.T) {
	const entries = 8
	d, _ := newTestTxQueue(entries)
	pool := memory.NewHeapMempool(entries*2, memory.DefaultEntrySize)

	var last TxStatus
	for i := 0; i < entries-1; i++ {
		buf := pool.Alloc()
		buf.Size = 60
		last = d.TxPacket(0, buf)
		if last != Enqueued {
			t.Fatalf("packet %d: got %v, want Enqueued", i, last)
		}
	}

	buf := pool.Alloc()
	buf.Size = 60
	if got := d.TxPacket(0, buf); got != Full {
		t.Fatalf("ring should report Full once (entries-1) packets are in flight, got %v", got)
	}
}

func TestTxPacketCleansCompletedDescriptorsBeforeEnqueue(t *testing.T) {
	const entries = 4
	d, q := newTestTxQueue(entries)
	pool := memory.NewHeapMempool(entries*4, memory.DefaultEntrySize)

	before := pool.Available()

	for i := 0; i < entries-1; i++ {
		buf := pool.Alloc()
		buf.Size = 60
		d.TxPacket(0, buf)
	}

	markTxDescriptorDone(q.ring, 0)
	markTxDescriptorDone(q.ring, 1)

	// this call's cleanup phase must reclaim slots 0 and 1 before
	// enqueueing, returning those buffers to the pool.
	buf := pool.Alloc()
	buf.Size = 60
	d.TxPacket(0, buf)

	if q.cleanIndex != 2 {
		t.Fatalf("cleanIndex = %d, want 2 after reclaiming two completed descriptors", q.cleanIndex)
	}
	if pool.Available() != before-2 {
		t.Fatalf("pool available = %d, want %d (started with %d, 4 taken, 2 reclaimed)",
			pool.Available(), before-2, before)
	}
}

func TestTxPacketAdvancesTailRegister(t *testing.T) {
	d, _ := newTestTxQueue(8)
	pool := memory.NewHeapMempool(8, memory.DefaultEntrySize)

	buf := pool.Alloc()
	buf.Size = 60
	d.TxPacket(0, buf)

	if got := d.space.Read(regTDT(0)); got != 1 {
		t.Fatalf("TDT = %d, want 1", got)
	}
}
