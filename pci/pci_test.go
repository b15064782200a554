package pci

import "testing"

func TestSetBusMasterPreservesOtherBits(t *testing.T) {
	const memorySpaceEnable = 1 << 1

	got := setBusMaster(memorySpaceEnable)
	if got&busMasterBit == 0 {
		t.Fatal("expected the bus-master bit to be set")
	}
	if got&memorySpaceEnable == 0 {
		t.Fatal("expected unrelated bits to be preserved")
	}
}

func TestSetBusMasterIdempotent(t *testing.T) {
	got := setBusMaster(setBusMaster(0))
	if got != busMasterBit {
		t.Fatalf("got %#x, want %#x", got, busMasterBit)
	}
}
