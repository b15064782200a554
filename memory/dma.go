// Package memory implements the DMA memory subsystem: allocation of
// locked, physically-contiguous host memory that the 82599 can be handed
// as a bus-master target, and the packet-buffer mempool built on top of
// it.
//
// Two allocation modes are available. Huge-page mode is cheap and is the
// default for anything up to one huge page (2 MiB), since a single huge
// page is physically contiguous by construction. Brute-force mode trades
// a large up-front cost (sampling and sorting a pool of ordinary pages)
// for a guaranteed contiguous span larger than one huge page, which
// descriptor rings beyond 2 MiB would otherwise need.
package memory

import (
	"fmt"
	"os"
	"sort"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/ixy-go/ixgbe/pagemap"
)

const (
	pageSize     = pagemap.PageSize
	hugePageSize = 2 * 1024 * 1024
)

// HugetlbfsMount is the hugetlbfs mount point used for huge-page
// allocations. Overridable for environments that mount it elsewhere.
var HugetlbfsMount = "/mnt/huge"

// hugePageIDCounter makes hugetlbfs backing file names unique across
// concurrent allocations within this process.
var hugePageIDCounter uint64

// Region is a span of locked, DMA-capable memory: a known virtual base,
// its physical base address, and a size. If the region was requested
// contiguous, phys(base+p) == Phys+p holds for every page offset p within
// Size.
type Region struct {
	Virt uintptr
	Phys uint64
	Size int

	mem []byte // retained to keep the mapping (and GC roots) alive
}

// Bytes returns the region's backing memory as a byte slice.
func (r *Region) Bytes() []byte {
	return r.mem
}

// ConfigError reports a violated precondition: a missing hugetlbfs
// mount, a misconfigured entry size, or similar. Callers are expected to
// treat it as fatal, per the driver's error model.
type ConfigError struct{ Msg string }

func (e *ConfigError) Error() string { return "config error: " + e.Msg }

// ResourceError reports the OS refusing mmap/mlock/open/ftruncate, or (on
// the RX hot path) a mempool exhaustion. Fatal on RX refill; retryable
// elsewhere.
type ResourceError struct{ Msg string }

func (e *ResourceError) Error() string { return "resource error: " + e.Msg }

// MappingError reports pagemap translating a locked virtual page as not
// present — a mapping the allocator just touched and mlocked, so this
// indicates a kernel/host inconsistency rather than a transient race.
type MappingError struct{ Msg string }

func (e *MappingError) Error() string { return "mapping error: " + e.Msg }

// Allocate obtains a DMA region of at least size bytes. When
// requireContiguous is false, or size fits within a single huge page, the
// cheap huge-page path is used. Otherwise the brute-force contiguous path
// is used, which can fail with ResourceError if no sufficiently long
// contiguous run exists in its sample.
func Allocate(size int, requireContiguous bool) (*Region, error) {
	if size <= 0 {
		return nil, &ConfigError{Msg: "size must be positive"}
	}

	if !requireContiguous || size <= hugePageSize {
		return allocateHugepage(size)
	}

	return allocateContiguous(size)
}

func roundUp(size, align int) int {
	return (size + align - 1) &^ (align - 1)
}

// allocateHugepage satisfies a request via a single hugetlbfs-backed
// mapping. One huge page is physically contiguous by construction, so no
// further verification is performed for requests up to hugePageSize; a
// multi-huge-page request is NOT guaranteed contiguous across the page
// boundary and callers needing that guarantee must request brute-force
// mode instead.
func allocateHugepage(size int) (*Region, error) {
	if _, err := os.Stat(HugetlbfsMount); err != nil {
		return nil, &ConfigError{Msg: fmt.Sprintf("hugetlbfs not mounted at %s", HugetlbfsMount)}
	}

	size = roundUp(size, hugePageSize)

	id := atomic.AddUint64(&hugePageIDCounter, 1)
	path := fmt.Sprintf("%s/ixgbe-%d-%d", HugetlbfsMount, os.Getpid(), id)

	f, err := os.OpenFile(path, os.O_CREAT|os.O_RDWR, 0700)
	if err != nil {
		return nil, &ResourceError{Msg: fmt.Sprintf("open %s: %v", path, err)}
	}
	defer f.Close()
	defer os.Remove(path)

	if err := f.Truncate(int64(size)); err != nil {
		return nil, &ResourceError{Msg: fmt.Sprintf("truncate %s: %v", path, err)}
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_SHARED|unix.MAP_HUGETLB)
	if err != nil {
		return nil, &ResourceError{Msg: fmt.Sprintf("mmap hugetlbfs: %v", err)}
	}

	if err := unix.Mlock(mem); err != nil {
		unix.Munmap(mem)
		return nil, &ResourceError{Msg: fmt.Sprintf("mlock: %v", err)}
	}

	// the backing file is unlinked above while still mapped; the mapping
	// itself keeps the pages alive for the region's lifetime.

	virt := uintptr(unsafe.Pointer(&mem[0]))
	for off := 0; off < size; off += hugePageSize {
		pagemap.Touch(virt + uintptr(off))
	}

	phys, err := pagemap.Translate(virt)
	if err != nil {
		unix.Munmap(mem)
		return nil, &MappingError{Msg: fmt.Sprintf("translate huge page: %v", err)}
	}

	return &Region{Virt: virt, Phys: phys, Size: size, mem: mem}, nil
}

// sample is one page discovered during the brute-force contiguity
// search: its virtual address (before remapping), and once remapped, its
// physical address.
type sample struct {
	virt uintptr
	phys uint64
}

// allocateContiguous implements the brute-force contiguous allocator:
// sample a large pool of ordinary pages, sort them by physical address,
// remap the sorted pages into one fresh virtual range, and scan that
// range for the first run of consecutive pages long enough to satisfy
// the request.
func allocateContiguous(size int) (*Region, error) {
	const numPages = 1024
	poolSize := numPages * pageSize

	size = roundUp(size, pageSize)
	needPages := size / pageSize
	if needPages > numPages {
		return nil, &ResourceError{Msg: "requested size exceeds brute-force sample pool"}
	}

	target, err := unix.Mmap(-1, 0, poolSize, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, &ResourceError{Msg: fmt.Sprintf("mmap target area: %v", err)}
	}
	targetBase := uintptr(unsafe.Pointer(&target[0]))
	unix.Munmap(target)

	pool, err := unix.Mmap(-1, 0, poolSize, unix.PROT_READ|unix.PROT_WRITE,
		unix.MAP_PRIVATE|unix.MAP_ANONYMOUS|unix.MAP_NORESERVE)
	if err != nil {
		return nil, &ResourceError{Msg: fmt.Sprintf("mmap pool: %v", err)}
	}

	if err := unix.Mlock(pool); err != nil {
		unix.Munmap(pool)
		return nil, &ResourceError{Msg: fmt.Sprintf("mlock pool: %v", err)}
	}

	poolBase := uintptr(unsafe.Pointer(&pool[0]))

	tr, err := pagemap.Open()
	if err != nil {
		unix.Munmap(pool)
		return nil, &ResourceError{Msg: err.Error()}
	}
	defer tr.Close()

	samples := make([]sample, numPages)
	for i := 0; i < numPages; i++ {
		v := poolBase + uintptr(i*pageSize)
		pagemap.Touch(v)

		phys, err := tr.Translate(v)
		if err != nil {
			unix.Munmap(pool)
			return nil, &ResourceError{Msg: fmt.Sprintf("translate pool page %d: %v", i, err)}
		}

		samples[i] = sample{virt: v, phys: phys}
	}

	sort.Slice(samples, func(i, j int) bool { return samples[i].phys < samples[j].phys })

	// remap each sorted page into consecutive slots of the target range
	for i, s := range samples {
		newAddr := targetBase + uintptr(i*pageSize)

		remapped, err := mremapFixed(s.virt, pageSize, newAddr)
		if err != nil {
			return nil, &ResourceError{Msg: fmt.Sprintf("remap page %d: %v", i, err)}
		}

		phys, err := tr.Translate(remapped)
		if err != nil {
			return nil, &ResourceError{Msg: fmt.Sprintf("translate remapped page %d: %v", i, err)}
		}

		samples[i] = sample{virt: remapped, phys: phys}
	}

	for i := 0; i+needPages <= numPages; i++ {
		base := samples[i].phys
		contiguous := true

		for p := 1; p < needPages; p++ {
			if samples[i+p].phys != base+uint64(p*pageSize) {
				contiguous = false
				break
			}
		}

		if contiguous {
			// unmap the pages we sampled but don't need
			unmapRange(samples[0].virt, uintptr(i*pageSize))
			unmapRange(samples[i].virt+uintptr(needPages*pageSize), uintptr((numPages-i-needPages)*pageSize))

			var view []byte
			sh := (*sliceHeader)(unsafe.Pointer(&view))
			sh.Data = samples[i].virt
			sh.Len = size
			sh.Cap = size

			return &Region{Virt: samples[i].virt, Phys: base, Size: size, mem: view}, nil
		}
	}

	return nil, &ResourceError{Msg: "no contiguous run of required length found in brute-force sample"}
}

type sliceHeader struct {
	Data uintptr
	Len  int
	Cap  int
}

func unmapRange(addr uintptr, size uintptr) {
	if size == 0 {
		return
	}
	var view []byte
	sh := (*sliceHeader)(unsafe.Pointer(&view))
	sh.Data = addr
	sh.Len = int(size)
	sh.Cap = int(size)
	unix.Munmap(view)
}

// mremapFixed moves the page at oldAddr to newAddr via mremap(2) with
// MREMAP_MAYMOVE|MREMAP_FIXED. golang.org/x/sys/unix does not expose the
// fixed-destination form, so the syscall is issued directly.
func mremapFixed(oldAddr uintptr, size int, newAddr uintptr) (uintptr, error) {
	const mremapMaymove = 0x1
	const mremapFixedFlag = 0x2

	addr, _, errno := unix.Syscall6(unix.SYS_MREMAP,
		oldAddr, uintptr(size), uintptr(size),
		uintptr(mremapMaymove|mremapFixedFlag), newAddr, 0)
	if errno != 0 {
		return 0, errno
	}

	return addr, nil
}
