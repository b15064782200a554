// Package ixgbe implements the 82599 descriptor-ring device core: reset
// and initialisation, the RX and TX hot paths, and the statistics read.
// It is built directly on internal/mmio for register access, pci for the
// BAR0 mapping, and memory for DMA regions and packet buffers.
package ixgbe

import (
	"log"
	"time"

	"github.com/ixy-go/ixgbe/internal/mmio"
	"github.com/ixy-go/ixgbe/memory"
	"github.com/ixy-go/ixgbe/pci"
)

const (
	// MaxQueues bounds the number of RX or TX queues this driver will
	// configure; well above anything a single-process poll-mode setup
	// needs.
	MaxQueues = 64

	numRxQueueEntries = 1024
	numTxQueueEntries = 1024

	// per-queue RX mempool sizing (section 4.5.1): large enough that a
	// full ring plus in-flight caller buffers never exhausts it under
	// normal operation.
	rxMempoolEntries   = 4096
	rxMempoolEntrySize = 2048

	linkPollInterval = 100 * time.Millisecond
	linkPollBudget   = 10 * time.Second
)

// Stats accumulates the device's reset-on-read counters. A zero Stats is
// ready to use.
type Stats struct {
	RxPackets uint64
	TxPackets uint64
	RxBytes   uint64
	TxBytes   uint64
}

type rxQueue struct {
	id      int
	ring    rxDescRing
	region  *memory.Region
	pool    *memory.Mempool
	entries int
	rxIndex int
	bufs    []*memory.Buffer
}

type txQueue struct {
	id         int
	ring       txDescRing
	region     *memory.Region
	entries    int
	cleanIndex int
	txIndex    int
	bufs       []*memory.Buffer
}

// Device is one open 82599 NIC: its mapped BAR0 and its configured RX
// and TX queues.
type Device struct {
	PCIAddr string

	res   *pci.Resource
	space mmio.Space

	rx []*rxQueue
	tx []*txQueue
}

// Open maps pciAddr's BAR0, resets the device, and brings up
// numRxQueues receive queues and numTxQueues transmit queues, matching
// the reset/init sequence of datasheet section 4.6.3. The device is left
// in promiscuous mode with all configured queues enabled; Open blocks
// for up to 10 seconds polling for link.
func Open(pciAddr string, numRxQueues, numTxQueues int) (*Device, error) {
	if numRxQueues < 0 || numRxQueues > MaxQueues {
		return nil, newError(ConfigError, "cannot configure %d rx queues: limit is %d", numRxQueues, MaxQueues)
	}
	if numTxQueues < 0 || numTxQueues > MaxQueues {
		return nil, newError(ConfigError, "cannot configure %d tx queues: limit is %d", numTxQueues, MaxQueues)
	}

	if err := pci.RemoveDriver(pciAddr); err != nil {
		return nil, newError(ResourceError, "unbind kernel driver: %v", err)
	}
	if err := pci.EnableDMA(pciAddr); err != nil {
		return nil, newError(ResourceError, "enable bus mastering: %v", err)
	}

	res, err := pci.MapBAR0(pciAddr)
	if err != nil {
		return nil, newError(ResourceError, "map BAR0: %v", err)
	}

	d := &Device{
		PCIAddr: pciAddr,
		res:     res,
		space:   res.Space,
		rx:      make([]*rxQueue, numRxQueues),
		tx:      make([]*txQueue, numTxQueues),
	}

	if err := d.resetAndInit(); err != nil {
		res.Unmap()
		return nil, err
	}

	return d, nil
}

// Close unmaps the device's BAR0. No further calls on d are valid
// afterwards.
func (d *Device) Close() error {
	return d.res.Unmap()
}

func (d *Device) resetAndInit() error {
	log.Printf("ixgbe: resetting device %s", d.PCIAddr)

	// section 4.6.3.1 - mask all interrupts
	d.space.Write(regEIMC, 0x7FFFFFFF)

	// section 4.6.3.2 - global reset
	d.space.Or(regCTRL, ctrlRSTMask)
	d.space.WaitMaskClear(regCTRL, ctrlRSTMask)
	time.Sleep(10 * time.Millisecond)

	// mask interrupts again, the reset re-enables some of them
	d.space.Write(regEIMC, 0x7FFFFFFF)

	log.Printf("ixgbe: initializing device %s", d.PCIAddr)

	// section 4.6.3 - wait for EEPROM auto-read completion
	d.space.WaitMaskSet(regEEC, eecARD)

	// section 4.6.3 - wait for DMA initialization done
	d.space.WaitMaskSet(regRDRXCTL, rdrxctlDMAIDONE)

	d.initLink()

	// section 4.6.5 - reset-on-read statistical counters, discard the
	// first read
	d.ReadStats(nil)

	if err := d.initRX(); err != nil {
		return err
	}
	if err := d.initTX(); err != nil {
		return err
	}

	for _, q := range d.rx {
		d.startRxQueue(q)
	}
	for _, q := range d.tx {
		d.startTxQueue(q)
	}

	// testing is friendlier with promiscuous mode on by default
	d.SetPromisc(true)

	d.waitForLink()

	return nil
}

func (d *Device) initLink() {
	autoc := d.space.Read(regAUTOC)
	autoc = (autoc &^ autocLMSMask) | autocLMS10GSerial
	autoc = (autoc &^ autoc10GPMAPMDMask) | autoc10GXAUI
	d.space.Write(regAUTOC, autoc)
	d.space.Or(regAUTOC, autocANRestart)
	// the datasheet suggests waiting for link here; we continue and wait
	// once at the end of resetAndInit instead.
}

// initRX performs the device-wide RX configuration of section 4.6.7,
// then per-queue ring setup.
func (d *Device) initRX() error {
	d.space.AndNot(regRXCTRL, rxctrlRXEN)

	d.space.Write(regRXPBSIZE(0), rxpbsize128KB)
	for i := 1; i < 8; i++ {
		d.space.Write(regRXPBSIZE(i), 0)
	}

	d.space.Or(regHLREG0, hlreg0RxCRCStrip)
	d.space.Or(regRDRXCTL, rdrxctlCRCStrip)

	d.space.Or(regFCTRL, fctrlBAM)

	for i := range d.rx {
		q, err := d.initRXQueue(i)
		if err != nil {
			return err
		}
		d.rx[i] = q
	}

	d.space.Or(regCTRLExt, ctrlExtNSDis)
	for i := range d.rx {
		// reserved bit, documented by the datasheet as must-be-cleared
		// despite resetting to 1; no named constant exists for it.
		d.space.Clear(regDCARXCTRL(i), 12)
	}

	d.space.Or(regRXCTRL, rxctrlRXEN)

	return nil
}

func (d *Device) initRXQueue(i int) (*rxQueue, error) {
	d.space.AndNot(regSRRCTL(i), srrctlDesctypeMask)
	d.space.Or(regSRRCTL(i), srrctlDesctypeAdvOneBuf)
	d.space.Or(regSRRCTL(i), srrctlDropEn)

	ringBytes := numRxQueueEntries * descriptorSize
	region, err := memory.Allocate(ringBytes, false)
	if err != nil {
		return nil, wrapMemoryErr(err, "allocate rx ring %d: %v", i, err)
	}

	ring := rxDescRing{mem: region.Bytes()}
	ring.Fill(0xFF)

	d.space.Write(regRDBAL(i), uint32(region.Phys&0xFFFFFFFF))
	d.space.Write(regRDBAH(i), uint32(region.Phys>>32))
	d.space.Write(regRDLEN(i), uint32(ringBytes))

	d.space.Write(regRDH(i), 0)
	d.space.Write(regRDT(i), 0)

	return &rxQueue{
		id:      i,
		ring:    ring,
		region:  region,
		entries: numRxQueueEntries,
		bufs:    make([]*memory.Buffer, numRxQueueEntries),
	}, nil
}

// startRxQueue allocates the queue's mempool, populates every descriptor
// with a fresh buffer, and enables the queue.
func (d *Device) startRxQueue(q *rxQueue) {
	pool, err := memory.NewMempool(rxMempoolEntries, rxMempoolEntrySize)
	if err != nil {
		log.Fatalf("ixgbe: rx queue %d: %v", q.id, err)
	}
	q.pool = pool

	for i := 0; i < q.entries; i++ {
		buf := pool.Alloc()
		if buf == nil {
			log.Fatalf("ixgbe: rx queue %d: failed to allocate initial rx descriptor", q.id)
		}
		q.ring.SetPktAddr(i, buf.PhysAddr)
		q.ring.ClearHdrAddr(i)
		q.bufs[i] = buf
	}

	d.space.Or(regRXDCTL(q.id), rxdctlEnable)
	d.space.WaitMaskSet(regRXDCTL(q.id), rxdctlEnable)

	d.space.Write(regRDH(q.id), 0)
	d.space.Write(regRDT(q.id), uint32(q.entries-1))
}

// initTX performs the device-wide TX configuration of section 4.6.8,
// then per-queue ring setup.
func (d *Device) initTX() error {
	d.space.Or(regHLREG0, hlreg0TxCRCEn|hlreg0TxPadEn)

	d.space.Write(regTXPBSIZE(0), txpbsize40KB)
	for i := 1; i < 8; i++ {
		d.space.Write(regTXPBSIZE(i), 0)
	}

	d.space.Write(regDTXMXSZRQ, 0xFFFF)
	d.space.AndNot(regRTTDCS, rttdcsARBDIS)

	for i := range d.tx {
		q, err := d.initTXQueue(i)
		if err != nil {
			return err
		}
		d.tx[i] = q
	}

	d.space.Or(regDMATXCTL, dmatxctlTE)

	return nil
}

func (d *Device) initTXQueue(i int) (*txQueue, error) {
	ringBytes := numTxQueueEntries * descriptorSize
	region, err := memory.Allocate(ringBytes, false)
	if err != nil {
		return nil, wrapMemoryErr(err, "allocate tx ring %d: %v", i, err)
	}

	ring := txDescRing{mem: region.Bytes()}
	ring.Fill(0xFF)

	d.space.Write(regTDBAL(i), uint32(region.Phys&0xFFFFFFFF))
	d.space.Write(regTDBAH(i), uint32(region.Phys>>32))
	d.space.Write(regTDLEN(i), uint32(ringBytes))

	txdctl := d.space.Read(regTXDCTL(i))
	txdctl &^= txdctlWTHRESHMask
	txdctl |= txdctlPTHRESH
	d.space.Write(regTXDCTL(i), txdctl)

	return &txQueue{
		id:      i,
		ring:    ring,
		region:  region,
		entries: numTxQueueEntries,
		bufs:    make([]*memory.Buffer, numTxQueueEntries),
	}, nil
}

func (d *Device) startTxQueue(q *txQueue) {
	d.space.Write(regTDH(q.id), 0)
	d.space.Write(regTDT(q.id), 0)

	d.space.Or(regTXDCTL(q.id), txdctlEnable)
	d.space.WaitMaskSet(regTXDCTL(q.id), txdctlEnable)
}

// LinkSpeed reports the negotiated link speed in Mbit/s, or 0 if the
// link is down.
func (d *Device) LinkSpeed() uint32 {
	links := d.space.Read(regLINKS)
	if links&linksUp == 0 {
		return 0
	}

	switch links & linksSpeedMask {
	case linksSpeed100:
		return 100
	case linksSpeed1G:
		return 1000
	case linksSpeed10G:
		return 10000
	default:
		return 0
	}
}

func (d *Device) waitForLink() {
	log.Printf("ixgbe: waiting for link...")

	deadline := time.Now().Add(linkPollBudget)
	for d.LinkSpeed() == 0 && time.Now().Before(deadline) {
		time.Sleep(linkPollInterval)
	}

	speed := d.LinkSpeed()
	if speed == 0 {
		log.Printf("ixgbe: %v", newError(Timeout, "link did not come up within %s", linkPollBudget))
		return
	}
	log.Printf("ixgbe: link speed is %d Mbit/s", speed)
}

// SetPromisc enables or disables promiscuous mode (multicast and
// unicast promiscuous, matching the reference driver's behaviour).
func (d *Device) SetPromisc(enabled bool) {
	if enabled {
		log.Printf("ixgbe: enabling promiscuous mode")
		d.space.Or(regFCTRL, fctrlMPE|fctrlUPE)
	} else {
		log.Printf("ixgbe: disabling promiscuous mode")
		d.space.AndNot(regFCTRL, fctrlMPE|fctrlUPE)
	}
}

// ReadStats accumulates the device's reset-on-read counters into stats
// by addition, so repeated calls yield per-interval deltas. A nil stats
// simply discards the values, used once at reset time to clear them.
func (d *Device) ReadStats(stats *Stats) {
	rxPkts := d.space.Read(regGPRC)
	txPkts := d.space.Read(regGPTC)
	rxBytes := uint64(d.space.Read(regGORCL)) | uint64(d.space.Read(regGORCH))<<32
	txBytes := uint64(d.space.Read(regGOTCL)) | uint64(d.space.Read(regGOTCH))<<32

	if stats == nil {
		return
	}

	stats.RxPackets += uint64(rxPkts)
	stats.TxPackets += uint64(txPkts)
	stats.RxBytes += rxBytes
	stats.TxBytes += txBytes
}
