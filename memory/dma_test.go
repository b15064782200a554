package memory

import (
	"os"
	"testing"
)

func TestRoundUp(t *testing.T) {
	cases := []struct{ size, align, want int }{
		{0, pageSize, 0},
		{1, pageSize, pageSize},
		{pageSize, pageSize, pageSize},
		{pageSize + 1, pageSize, 2 * pageSize},
		{hugePageSize - 1, hugePageSize, hugePageSize},
	}

	for _, c := range cases {
		if got := roundUp(c.size, c.align); got != c.want {
			t.Errorf("roundUp(%d, %d) = %d, want %d", c.size, c.align, got, c.want)
		}
	}
}

// TestAllocateHugepageRequiresMount exercises the ConfigError path when
// hugetlbfs is not mounted where expected; it does not require root or
// real huge pages.
func TestAllocateHugepageRequiresMount(t *testing.T) {
	saved := HugetlbfsMount
	defer func() { HugetlbfsMount = saved }()

	HugetlbfsMount = "/nonexistent-hugetlbfs-mount-for-test"

	_, err := Allocate(pageSize, false)
	if err == nil {
		t.Fatal("expected ConfigError when hugetlbfs mount is missing")
	}

	if _, ok := err.(*ConfigError); !ok {
		t.Fatalf("expected *ConfigError, got %T: %v", err, err)
	}
}

// TestAllocateHugepageIntegration allocates a real huge page and checks
// the resulting Region invariants. It requires a mounted hugetlbfs with
// free huge pages and is skipped otherwise.
func TestAllocateHugepageIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping hugetlbfs integration test in -short mode")
	}
	if _, err := os.Stat(HugetlbfsMount); err != nil {
		t.Skipf("hugetlbfs not available at %s: %v", HugetlbfsMount, err)
	}

	region, err := Allocate(4096, false)
	if err != nil {
		t.Fatalf("Allocate: %v", err)
	}

	if region.Size%hugePageSize != 0 {
		t.Errorf("region size %d is not a multiple of huge page size", region.Size)
	}
	if region.Virt%pageSize != 0 {
		t.Errorf("region virt %#x is not page-aligned", region.Virt)
	}
	if region.Phys == 0 {
		t.Error("region phys address is zero")
	}
}
