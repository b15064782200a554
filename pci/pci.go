// Package pci maps a PCI device's BAR0 memory region into the calling
// process via the Linux PCI sysfs interface, so the driver core can
// access device registers without any kernel driver bound to the device.
package pci

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"github.com/ixy-go/ixgbe/internal/mmio"
)

const sysfsDevices = "/sys/bus/pci/devices"

// Resource represents a mapped PCI memory resource (a BAR).
type Resource struct {
	Space mmio.Space

	mem []byte
}

// MapBAR0 maps BAR0 of the device at the given PCI address (e.g.
// "0000:01:00.0") into the process's address space and returns a
// register window over it. MapBAR0 only performs the mmap; unbinding
// any kernel driver beforehand is done separately by RemoveDriver.
func MapBAR0(pciAddr string) (*Resource, error) {
	path := fmt.Sprintf("%s/%s/resource0", sysfsDevices, pciAddr)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("pci: open %s: %w", path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("pci: stat %s: %w", path, err)
	}

	size := fi.Size()
	if size == 0 {
		// resourceN sysfs files report size 0 via Stat; fall back to a
		// conservative upper bound covering every 82599 register we use.
		size = 512 * 1024
	}

	mem, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("pci: mmap %s: %w", path, err)
	}

	return &Resource{Space: mmio.NewSpace(mem), mem: mem}, nil
}

// Unmap releases the mapped BAR. The device is unusable afterwards.
func (r *Resource) Unmap() error {
	if r.mem == nil {
		return nil
	}
	err := unix.Munmap(r.mem)
	r.mem = nil
	return err
}

// RemoveDriver unbinds whatever kernel driver is bound to the device at
// pciAddr by writing the address to that driver's sysfs unbind file. A
// device with no bound driver is left as it is and no error is returned.
func RemoveDriver(pciAddr string) error {
	path := fmt.Sprintf("%s/%s/driver/unbind", sysfsDevices, pciAddr)

	f, err := os.OpenFile(path, os.O_WRONLY, 0)
	if os.IsNotExist(err) {
		// no driver bound
		return nil
	}
	if err != nil {
		return fmt.Errorf("pci: unbind %s: %w", pciAddr, err)
	}
	defer f.Close()

	_, err = f.WriteString(pciAddr)
	return err
}

// EnableDMA sets the PCI command register's bus-master enable bit so the
// device may initiate DMA transfers, writing directly through sysfs
// config space rather than through a bound kernel driver.
func EnableDMA(pciAddr string) error {
	path := fmt.Sprintf("%s/%s/config", sysfsDevices, pciAddr)

	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return fmt.Errorf("pci: open config %s: %w", path, err)
	}
	defer f.Close()

	const commandOffset = 0x04

	var cmd [2]byte
	if _, err := f.ReadAt(cmd[:], commandOffset); err != nil {
		return fmt.Errorf("pci: read command register: %w", err)
	}

	val := setBusMaster(uint16(cmd[0]) | uint16(cmd[1])<<8)
	cmd[0] = byte(val)
	cmd[1] = byte(val >> 8)

	_, err = f.WriteAt(cmd[:], commandOffset)
	return err
}

// busMasterBit is the PCI command register bit that enables a device to
// initiate bus-master DMA transfers.
const busMasterBit = 1 << 2

func setBusMaster(cmd uint16) uint16 {
	return cmd | busMasterBit
}
