package ixgbe

import (
	"log"

	"github.com/ixy-go/ixgbe/memory"
)

// RxPacket polls queue queueID's descriptor ring at its current
// rx_index. If the device has not finished writing that descriptor back
// (DD clear), it returns nil immediately. Otherwise it swaps in a fresh
// buffer from the queue's mempool, advances RDT, and returns the
// received buffer to the caller — ownership transfers with the return.
//
// Multi-segment packets (DD set, EOP clear) are out of scope and are a
// fatal ConfigError; mempool exhaustion on refill is a fatal
// ResourceError. Both indicate a misconfiguration rather than a
// condition the hot path can recover from.
func (d *Device) RxPacket(queueID int) *memory.Buffer {
	q := d.rx[queueID]
	i := q.rxIndex

	status := q.ring.StatusError(i)
	if status&rxdadvStatDD == 0 {
		return nil
	}
	if status&rxdadvStatEOP == 0 {
		log.Fatalf("ixgbe: %v", newError(ConfigError, "multi-segment packets are not supported - increase buffer size or decrease MTU"))
	}

	buf := q.bufs[i]
	buf.Size = uint32(q.ring.Length(i))

	fresh := q.pool.Alloc()
	if fresh == nil {
		log.Fatalf("ixgbe: %v", newError(ResourceError, "queue %d: rx mempool exhausted, no buffer to refill descriptor %d", queueID, i))
	}

	q.ring.SetPktAddr(i, fresh.PhysAddr)
	q.ring.ClearHdrAddr(i)
	q.bufs[i] = fresh

	rdt := i
	q.rxIndex = (i + 1) & (q.entries - 1)

	// intentionally one behind rx_index: writing RDT == RDH would tell
	// the device the ring is full, stalling further RX.
	d.space.Write(regRDT(queueID), uint32(rdt))

	return buf
}
