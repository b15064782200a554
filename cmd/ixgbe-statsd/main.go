// Command ixgbe-statsd opens an 82599 device and serves a live view of
// its packet/byte counters over HTTP, alongside the Go runtime charts
// the debugcharts package registers on http.DefaultServeMux.
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"sync"
	"time"

	_ "github.com/mkevac/debugcharts"

	"github.com/ixy-go/ixgbe/ixgbe"
)

func main() {
	log.SetFlags(0)

	pciAddr := flag.String("pci", "", "PCI address of the device, e.g. 0000:01:00.0")
	rxQueues := flag.Int("rx-queues", 1, "number of RX queues to configure")
	txQueues := flag.Int("tx-queues", 1, "number of TX queues to configure")
	addr := flag.String("addr", ":8080", "HTTP listen address")
	interval := flag.Duration("interval", time.Second, "stats sampling interval")
	flag.Parse()

	if *pciAddr == "" {
		log.Fatal("ixgbe-statsd: -pci is required")
	}

	dev, err := ixgbe.Open(*pciAddr, *rxQueues, *txQueues)
	if err != nil {
		log.Fatalf("ixgbe-statsd: open %s: %v", *pciAddr, err)
	}
	defer dev.Close()

	s := &sampler{dev: dev}
	go s.run(*interval)

	http.HandleFunc("/stats", s.serveHTTP)
	log.Printf("ixgbe-statsd: listening on %s (charts at /debug/charts, stats at /stats)", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

// sampler periodically reads the device's counters and serves the
// latest snapshot as JSON; reads and the periodic sample both touch the
// same Stats value, so a mutex guards it.
type sampler struct {
	dev *ixgbe.Device

	mu    sync.Mutex
	stats ixgbe.Stats
}

func (s *sampler) run(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		s.dev.ReadStats(&s.stats)
		s.mu.Unlock()
	}
}

func (s *sampler) serveHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	snapshot := s.stats
	s.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(snapshot)
}
