// Command ixgbe-pktgen generates synthetic traffic on one TX queue of an
// 82599 device, retrying on a full ring and optionally pacing itself to
// a target packet rate.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"golang.org/x/time/rate"

	"github.com/ixy-go/ixgbe/ixgbe"
	"github.com/ixy-go/ixgbe/memory"
)

func main() {
	log.SetFlags(0)

	pciAddr := flag.String("pci", "", "PCI address of the device, e.g. 0000:01:00.0")
	queue := flag.Int("queue", 0, "TX queue to send on")
	pktSize := flag.Int("size", 60, "packet size in bytes")
	count := flag.Uint64("count", 0, "number of packets to send (0 = run forever)")
	pps := flag.Float64("rate", 0, "target packets/sec (0 = send as fast as the ring allows)")
	flag.Parse()

	if *pciAddr == "" {
		log.Fatal("ixgbe-pktgen: -pci is required")
	}

	dev, err := ixgbe.Open(*pciAddr, 1, *queue+1)
	if err != nil {
		log.Fatalf("ixgbe-pktgen: open %s: %v", *pciAddr, err)
	}
	defer dev.Close()

	pool, err := memory.NewMempool(2048, memory.DefaultEntrySize)
	if err != nil {
		log.Fatalf("ixgbe-pktgen: create mempool: %v", err)
	}

	var limiter *rate.Limiter
	if *pps > 0 {
		limiter = rate.NewLimiter(rate.Limit(*pps), 1)
	}

	template := make([]byte, *pktSize)
	for i := range template {
		template[i] = byte(i)
	}

	var sent uint64
	lastReport := time.Now()

	for *count == 0 || sent < *count {
		buf := pool.Alloc()
		if buf == nil {
			log.Fatal("ixgbe-pktgen: mempool exhausted; lower -rate or raise the mempool size")
		}
		n := copy(buf.Bytes(), template)
		buf.Size = uint32(n)

		for dev.TxPacket(*queue, buf) == ixgbe.Full {
			// ring is backed up; give the device a chance to drain.
		}
		sent++

		if limiter != nil {
			limiter.Wait(context.Background())
		}

		if time.Since(lastReport) >= time.Second {
			var stats ixgbe.Stats
			dev.ReadStats(&stats)
			log.Printf("sent=%d tx_pkts_delta=%d tx_bytes_delta=%d", sent, stats.TxPackets, stats.TxBytes)
			lastReport = time.Now()
		}
	}

	log.Printf("ixgbe-pktgen: sent %d packets", sent)
}
