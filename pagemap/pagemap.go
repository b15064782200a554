// Package pagemap resolves process virtual addresses to the physical
// addresses backing them, via the Linux kernel's per-process pagemap
// interface (proc(5)).
//
// Every address handed to the 82599 in a descriptor must be a physical
// address: the device's DMA engines have no notion of the calling
// process's page tables. The kernel exposes the translation at
// /proc/self/pagemap, one 8-byte entry per virtual page.
package pagemap

import (
	"errors"
	"fmt"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// PageSize is the base page size assumed throughout the driver. The 82599
// driver never deals in huge-page PTEs directly — huge pages are mapped
// with MAP_HUGETLB but translated through the same base-page pagemap
// entries.
const PageSize = 4096

// pfnMask extracts bits 0-54 (the page-frame number) of a pagemap entry.
const pfnMask = (uint64(1) << 55) - 1

// presentBit marks bit 63: whether the page is present in RAM.
const presentBit = uint64(1) << 63

// ErrNotPresent is returned when the kernel reports a page as not
// present. The caller is expected to have pre-faulted the page (by
// touching it) before calling Translate; a zero entry at that point is a
// fatal MappingError per the driver's error model.
var ErrNotPresent = errors.New("pagemap: page not present")

// Translator reads /proc/self/pagemap for the calling process.
type Translator struct {
	f *os.File
}

// Open opens /proc/self/pagemap for the calling process. Callers should
// Close it once no more translations are needed.
func Open() (*Translator, error) {
	f, err := os.OpenFile("/proc/self/pagemap", os.O_RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("pagemap: open: %w", err)
	}
	return &Translator{f: f}, nil
}

// Close releases the underlying pagemap file descriptor.
func (t *Translator) Close() error {
	return t.f.Close()
}

// Translate resolves the physical address backing virtual address v. The
// caller must have faulted the page in (e.g. by writing to it) before
// calling; a page that is not present returns ErrNotPresent.
func (t *Translator) Translate(v uintptr) (uint64, error) {
	var raw [8]byte

	off := int64(v/PageSize) * 8

	if _, err := t.f.ReadAt(raw[:], off); err != nil {
		return 0, fmt.Errorf("pagemap: read at %#x: %w", off, err)
	}

	return decodeEntry(raw, v)
}

// decodeEntry applies the pagemap entry format (bits 0-54 page-frame
// number, bit 63 present) to produce the physical address for v.
func decodeEntry(raw [8]byte, v uintptr) (uint64, error) {
	entry := uint64(raw[0]) | uint64(raw[1])<<8 | uint64(raw[2])<<16 | uint64(raw[3])<<24 |
		uint64(raw[4])<<32 | uint64(raw[5])<<40 | uint64(raw[6])<<48 | uint64(raw[7])<<56

	if entry&presentBit == 0 || entry == 0 {
		return 0, ErrNotPresent
	}

	pfn := entry & pfnMask
	return pfn*PageSize + uint64(v%PageSize), nil
}

// Translate is a convenience wrapper that opens, translates a single
// address and closes the pagemap file. Callers doing more than a handful
// of translations should use Open/Translate directly to avoid repeated
// open/close overhead.
func Translate(v uintptr) (uint64, error) {
	t, err := Open()
	if err != nil {
		return 0, err
	}
	defer t.Close()
	return t.Translate(v)
}

// Contiguous reports whether the physical pages backing the page-aligned
// range [virt, virt+size) are consecutive, i.e. phys(virt+p) - phys(virt)
// == p for every page offset p within size. Both virt and size must be
// page-aligned.
func (t *Translator) Contiguous(virt uintptr, size int) (bool, error) {
	if virt%PageSize != 0 || size%PageSize != 0 {
		return false, fmt.Errorf("pagemap: virt %#x and size %#x must be page-aligned", virt, size)
	}

	base, err := t.Translate(virt)
	if err != nil {
		return false, err
	}

	for p := 0; p < size; p += PageSize {
		phys, err := t.Translate(virt + uintptr(p))
		if err != nil {
			return false, err
		}
		if phys-base != uint64(p) {
			return false, nil
		}
	}

	return true, nil
}

// Touch forces the page containing addr to be resident by writing back
// its current byte value, satisfying the Translate precondition.
func Touch(addr uintptr) {
	p := (*byte)(unsafe.Pointer(addr))
	v := *p
	*p = v
}

// Mlock locks the page(s) covering [addr, addr+size) into RAM, preventing
// them from ever being swapped out from under an in-flight DMA transfer.
func Mlock(addr uintptr, size int) error {
	var view []byte
	sh := (*sliceHeader)(unsafe.Pointer(&view))
	sh.Data = addr
	sh.Len = size
	sh.Cap = size

	return unix.Mlock(view)
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}
