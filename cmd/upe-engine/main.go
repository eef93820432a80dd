// ©Hayabusa Cloud Co., Ltd. 2025. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command upe-engine is the process entrypoint for the userspace
// packet engine: it parses CLI flags, loads the rule table, wires the
// buffer pool, SPSC rings, capture/dispatch loop and worker pool, and
// runs until a signal, --duration elapses, or (for an offline replay)
// the capture file is exhausted.
package main

import (
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"code.hybscloud.com/upe"
	"code.hybscloud.com/upe/capture/pcapio"
	"code.hybscloud.com/upe/enginelog"
	"code.hybscloud.com/upe/ruleconfig"
	"golang.org/x/sys/unix"
)

const (
	defaultRingCapacity = 1024
	defaultARPCapacity  = 4096
	defaultNDPCapacity  = 4096
)

func main() {
	os.Exit(run())
}

func run() int {
	var (
		iface     = flag.String("iface", "", "live capture interface")
		pcapFile  = flag.String("pcap", "", "offline pcap file to replay")
		txIface   = flag.String("tx-iface", "", "egress interface for FWD rules (raw AF_PACKET socket)")
		rulesPath = flag.String("rules", "", "INI rule file (required)")
		verbose   = flag.Int("verbose", 1, "log verbosity: 0=warn 1=info 2=debug")
		duration  = flag.Int("duration", 0, "run for N seconds, 0 = forever")
		workers   = flag.Int("workers", 4, "number of worker threads / SPSC rings (power of two)")
		poolSize  = flag.Int("pool-size", 1<<16, "packet buffer pool capacity")
		pinCPU    = flag.Bool("pin-cpus", false, "best-effort pin each worker to CPU i")
	)
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "usage: upe-engine --iface <name> | --pcap <path> --rules <path> [options]")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *iface == "" && *pcapFile == "" {
		fmt.Fprintln(os.Stderr, "upe-engine: one of --iface or --pcap is required")
		return 2
	}
	if *rulesPath == "" {
		fmt.Fprintln(os.Stderr, "upe-engine: --rules is required")
		return 2
	}

	log := enginelog.NewStderr(enginelog.Verbose(*verbose))

	rules, err := loadRules(*rulesPath)
	if err != nil {
		log.Err().Err(err).Log("failed to load rule file")
		return 2
	}

	capt, err := openCapture(*iface, *pcapFile)
	if err != nil {
		log.Err().Err(err).Log("failed to open capture")
		return 1
	}
	defer capt.Close()

	sender, err := openSender(*txIface)
	if err != nil {
		log.Err().Err(err).Log("failed to open egress socket")
		return 1
	}
	defer sender.Close()

	pool, err := upe.NewPool(*poolSize)
	if err != nil {
		log.Err().Err(err).Log("failed to initialize buffer pool")
		return 1
	}
	defer pool.Close()

	n := nextPowerOfTwo(*workers)
	rings := make([]*upe.Ring[uint32], n)
	for i := range rings {
		rings[i] = upe.NewRing[uint32](defaultRingCapacity)
	}

	arp := upe.NewNeighborTable(4, defaultARPCapacity)
	ndp := upe.NewNeighborTable(6, defaultNDPCapacity)
	ownMAC := resolveOwnMAC(*txIface)

	dispatcher := upe.NewDispatcher(capt, pool, rings)
	workerSet := make([]*upe.Worker, n)
	for i := range workerSet {
		workerSet[i] = upe.NewWorker(i, rings[i], pool, rules, arp, ndp, sender, ownMAC)
	}

	var stop atomic.Bool
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		dispatcher.Run(&stop)
	}()
	for i, w := range workerSet {
		wg.Add(1)
		go func(id int, w *upe.Worker) {
			defer wg.Done()
			if *pinCPU {
				runtime.LockOSThread()
				if err := SetAffinity(id, id); err != nil {
					log.Warning().Err(err).Int("worker", id).Log("cpu pin failed, continuing unpinned")
				}
			}
			w.Run(&stop)
		}(i, w)
	}

	log.Info().Str("iface", *iface).Str("pcap", *pcapFile).Int("workers", n).Log("engine started")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	var timer <-chan time.Time
	if *duration > 0 {
		timer = time.After(time.Duration(*duration) * time.Second)
	}

	var eofCh <-chan struct{}
	if eofer, ok := capt.(interface{ AtEOF() bool }); ok {
		ch := make(chan struct{})
		go watchEOF(eofer, ch)
		eofCh = ch
	}

	select {
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Log("shutting down")
	case <-timer:
		log.Info().Log("duration elapsed, shutting down")
	case <-eofCh:
		log.Info().Log("offline capture exhausted, shutting down")
	}
	stop.Store(true)
	wg.Wait()

	logStats(log, workerSet)
	return 0
}

func loadRules(path string) (*upe.RuleTable, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &upe.ConfigError{Op: "open rule file", Err: err}
	}
	defer f.Close()
	return ruleconfig.Load(f)
}

func openCapture(iface, pcapFile string) (upe.Capture, error) {
	if iface != "" {
		return pcapio.NewLiveCapture(iface)
	}
	return pcapio.NewOfflineCapture(pcapFile)
}

// eofPollInterval bounds how quickly watchEOF notices an offline
// capture has been fully replayed.
const eofPollInterval = 10 * time.Millisecond

// watchEOF closes done once capt reports AtEOF, so an offline replay
// with no --duration set still shuts the engine down instead of
// spinning forever re-reading past end of file.
func watchEOF(capt interface{ AtEOF() bool }, done chan<- struct{}) {
	for !capt.AtEOF() {
		time.Sleep(eofPollInterval)
	}
	close(done)
}

// nullSender drops every frame; it is the fallback when no --tx-iface
// was given, so FWD rules still run without a live egress socket.
type nullSender struct{}

func (nullSender) SendBatch(_ [][]byte, _ []int) int { return 0 }
func (nullSender) Close() error                      { return nil }

func openSender(txIface string) (upe.FrameSender, error) {
	if txIface == "" {
		return nullSender{}, nil
	}
	return pcapio.NewAFPacketSender(txIface)
}

func resolveOwnMAC(txIface string) (mac upe.MACAddr) {
	if txIface == "" {
		return mac
	}
	ifi, err := net.InterfaceByName(txIface)
	if err != nil || len(ifi.HardwareAddr) != 6 {
		return mac
	}
	copy(mac[:], ifi.HardwareAddr)
	return mac
}

func nextPowerOfTwo(n int) int {
	if n < 1 {
		n = 1
	}
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

// SetAffinity best-effort pins the calling thread's eventual worker
// goroutine to cpu. It is advisory only; the core never calls it.
func SetAffinity(_ int, cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}

func logStats(log *enginelog.Logger, workers []*upe.Worker) {
	for i, w := range workers {
		for ruleID, stat := range w.Snapshot() {
			if stat.Packets == 0 {
				continue
			}
			log.Info().
				Int("worker", i).
				Int("rule_id", ruleID).
				Int64("packets", int64(stat.Packets)).
				Int64("bytes", int64(stat.Bytes)).
				Log("rule stats")
		}
	}
}
