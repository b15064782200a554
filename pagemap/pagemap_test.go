package pagemap

import (
	"encoding/binary"
	"testing"
)

func entryBytes(pfn uint64, present bool) [8]byte {
	var v uint64
	if present {
		v = presentBit | (pfn & pfnMask)
	}

	var raw [8]byte
	binary.LittleEndian.PutUint64(raw[:], v)
	return raw
}

func TestDecodeEntry(t *testing.T) {
	cases := []struct {
		name    string
		pfn     uint64
		present bool
		v       uintptr
		want    uint64
		wantErr bool
	}{
		{"present page-aligned", 0x1234, true, 0, 0x1234 * PageSize, false},
		{"present with offset", 0x1, true, 0x123, PageSize + 0x123, false},
		{"not present", 0, false, 0, 0, true},
		{"zero entry with present bit unset", 0, false, 4096, 0, true},
	}

	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			raw := entryBytes(c.pfn, c.present)
			got, err := decodeEntry(raw, c.v)

			if c.wantErr {
				if err == nil {
					t.Fatalf("expected error, got phys=%#x", got)
				}
				return
			}

			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != c.want {
				t.Fatalf("got %#x, want %#x", got, c.want)
			}
		})
	}
}

func TestContiguousRejectsUnalignedInput(t *testing.T) {
	tr := &Translator{}

	if _, err := tr.Contiguous(1, PageSize); err == nil {
		t.Fatal("expected error for unaligned virtual address")
	}
	if _, err := tr.Contiguous(0, PageSize+1); err == nil {
		t.Fatal("expected error for unaligned size")
	}
}
