package memory

// NewHeapMempool builds a Mempool backed by ordinary heap memory rather
// than a real DMA region, with synthetic, ascending physical addresses.
// It exists so packages that consume a *Mempool (the ixgbe device core's
// hot paths, in particular) can be unit tested without hugetlbfs or
// /proc/self/pagemap.
func NewHeapMempool(numEntries, entrySize int) *Mempool {
	if entrySize == 0 {
		entrySize = DefaultEntrySize
	}

	mp := &Mempool{
		entrySize: entrySize,
		buffers:   make([]Buffer, numEntries),
		free:      make([]uint32, numEntries),
	}

	for i := 0; i < numEntries; i++ {
		mp.buffers[i] = Buffer{
			PhysAddr: uint64(i)*uint64(entrySize) + HeadroomSize,
			Index:    uint32(i),
			pool:     mp,
			payload:  make([]byte, entrySize-HeadroomSize),
		}
		mp.free[i] = uint32(i)
	}

	return mp
}
