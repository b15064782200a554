package ixgbe

import "github.com/ixy-go/ixgbe/memory"

// TxStatus is the outcome of a TxPacket call. Full is a normal, expected
// status under backpressure — the caller retries — not an error.
type TxStatus int

const (
	Enqueued TxStatus = iota
	Full
)

// TxPacket publishes buf for transmission on queue queueID. It first
// reclaims any descriptors the device has finished sending (returning
// their buffers to the mempool), then, if the ring has room, writes a
// new descriptor referring to buf and advances TDT. Ownership of buf
// transfers to the driver on Enqueued; the caller keeps it on Full.
func (d *Device) TxPacket(queueID int, buf *memory.Buffer) TxStatus {
	q := d.tx[queueID]

	d.cleanTxQueue(q)

	nextIndex := (q.txIndex + 1) & (q.entries - 1)
	if nextIndex == q.cleanIndex {
		return Full
	}

	q.bufs[q.txIndex] = buf

	payloadAddr := buf.PhysAddr
	cmdTypeLen := uint32(advTxdDCmdEOP|advTxdDCmdRS|advTxdDCmdIFCS|advTxdDCmdDEXT|advTxdDTypData) | buf.Size
	olinfoStatus := buf.Size << advTxdPaylenShift

	q.ring.SetBufferAddr(q.txIndex, payloadAddr)
	q.ring.SetCmdTypeLen(q.txIndex, cmdTypeLen)
	q.ring.SetOlinfoStatus(q.txIndex, olinfoStatus)

	q.txIndex = nextIndex
	d.space.Write(regTDT(queueID), uint32(q.txIndex))

	return Enqueued
}

// cleanTxQueue reclaims descriptors the device has marked done, stopping
// at the first one still in flight.
func (d *Device) cleanTxQueue(q *txQueue) {
	for q.cleanIndex != q.txIndex {
		status := q.ring.Status(q.cleanIndex)
		if status&advTxdStatDD == 0 {
			break
		}

		q.bufs[q.cleanIndex].Free()
		q.bufs[q.cleanIndex] = nil
		q.cleanIndex = (q.cleanIndex + 1) & (q.entries - 1)
	}
}
