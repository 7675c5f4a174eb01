// Command dns64perfgo drives a controlled burst of AAAA queries at a
// DNS64 translator over IPv6/UDP, measures per-query latency and reply
// codes, and writes dns64perf.csv plus a summary to standard output.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/bakaid/dns64perfgo/internal/aggregate"
	"github.com/bakaid/dns64perfgo/internal/fingerprint"
	"github.com/bakaid/dns64perfgo/internal/metrics"
	"github.com/bakaid/dns64perfgo/internal/progress"
	"github.com/bakaid/dns64perfgo/internal/testcase"
	"github.com/bakaid/dns64perfgo/internal/worker"
)

// progressInterval is how often the run controller prints an aggregated
// progress line while a run is in flight (SPEC_FULL.md §4.H).
const progressInterval = time.Second

const usage = `usage: dns64perfgo [-metrics-addr addr] server port subnet num_req burst_size threads burst_delay_ns timeout_s

  server          IPv6 literal of the DNS64 translator under test
  port            UDP port, 1..65535
  subnet          A.B.C.D/M, the IPv4 space queries are synthesized from
  num_req         total queries; must be <= 2^(32-M) and divisible by threads*burst_size
  burst_size      queries per burst per worker
  threads         worker count
  burst_delay_ns  nominal time between a worker's bursts, in nanoseconds
  timeout_s       per-query deadline in seconds (sub-second allowed)
`

// startStagger is the delay before the run's reference instant T0, giving
// every worker goroutine time to reach its scheduling loop before the
// first burst fires (spec.md §5).
const startStagger = 2 * time.Second

func main() {
	metricsAddr := flag.String("metrics-addr", "", "optional host:port to serve live Prometheus metrics on")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() != 8 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := parseArgs(flag.Args())
	if err != nil {
		fmt.Fprintf(os.Stderr, "dns64perfgo: %v\n", err)
		os.Exit(2)
	}

	if err := run(cfg, *metricsAddr); err != nil {
		fmt.Fprintf(os.Stderr, "dns64perfgo: %v\n", err)
		os.Exit(1)
	}
}

// runConfig is the validated, ready-to-execute form of the eight
// positional arguments spec.md §6 names.
type runConfig struct {
	serverAddr *net.UDPAddr
	plan       fingerprint.Plan
	burstDelay time.Duration
	timeout    time.Duration
}

func parseArgs(args []string) (runConfig, error) {
	ip := net.ParseIP(args[0])
	if ip == nil || ip.To4() != nil {
		return runConfig{}, fmt.Errorf("server %q is not an IPv6 literal", args[0])
	}

	port, err := strconv.ParseUint(args[1], 10, 16)
	if err != nil || port == 0 {
		return runConfig{}, fmt.Errorf("port %q must be 1..65535", args[1])
	}

	subnet, err := fingerprint.ParseSubnet(args[2])
	if err != nil {
		return runConfig{}, err
	}

	numReq, err := parseUint32(args[3], "num_req")
	if err != nil {
		return runConfig{}, err
	}
	burstSize, err := parseUint32(args[4], "burst_size")
	if err != nil {
		return runConfig{}, err
	}
	threads, err := parseUint32(args[5], "threads")
	if err != nil {
		return runConfig{}, err
	}
	burstDelayNs, err := parseUint32(args[6], "burst_delay_ns")
	if err != nil {
		return runConfig{}, err
	}
	timeoutS, err := strconv.ParseFloat(args[7], 64)
	if err != nil || timeoutS <= 0 {
		return runConfig{}, fmt.Errorf("timeout_s %q must be a positive number of seconds", args[7])
	}

	plan, err := fingerprint.NewPlan(subnet, numReq, burstSize, threads)
	if err != nil {
		return runConfig{}, err
	}

	return runConfig{
		serverAddr: &net.UDPAddr{IP: ip, Port: int(port)},
		plan:       plan,
		burstDelay: time.Duration(burstDelayNs) * time.Nanosecond,
		timeout:    time.Duration(timeoutS * float64(time.Second)),
	}, nil
}

func parseUint32(s, name string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%s %q must be a non-negative integer", name, s)
	}
	return uint32(v), nil
}

func run(cfg runConfig, metricsAddr string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var rec *metrics.Recorder
	if metricsAddr != "" {
		rec = metrics.New()
		go func() {
			if err := rec.Serve(ctx, metricsAddr); err != nil {
				fmt.Fprintf(os.Stderr, "dns64perfgo: metrics server: %v\n", err)
			}
		}()
	}

	bus := progress.New(int(cfg.plan.Threads) * 4)
	progressCtx, cancelProgress := context.WithCancel(ctx)
	defer cancelProgress()
	sub := bus.Subscribe(progressCtx)
	defer sub.Close()
	go printProgress(sub)

	t0 := time.Now().Add(startStagger)
	stagger := cfg.burstDelay / time.Duration(cfg.plan.Threads)

	pool := worker.NewPool(worker.Config{Workers: int(cfg.plan.Threads)})
	workers := make([]*worker.QueryWorker, cfg.plan.Threads)
	for w := uint32(0); w < cfg.plan.Threads; w++ {
		workers[w] = worker.New(worker.Config{
			Plan:       cfg.plan,
			WorkerID:   w,
			ServerAddr: cfg.serverAddr,
			Start:      t0.Add(time.Duration(w) * stagger),
			Interval:   cfg.burstDelay,
			Timeout:    cfg.timeout,
			Progress:   bus,
			Metrics:    rec,
		})
	}

	errCh := make(chan error, cfg.plan.Threads)
	for _, w := range workers {
		w := w
		go func() { errCh <- pool.Submit(ctx, w) }()
	}

	var firstErr error
	for range workers {
		if err := <-errCh; err != nil && firstErr == nil {
			firstErr = err
		}
	}
	pool.Close()

	if firstErr != nil {
		return fmt.Errorf("worker failed: %w", firstErr)
	}

	tables := make([]testcase.Table, len(workers))
	for i, w := range workers {
		tables[i] = w.Table()
	}
	report := aggregate.Merge(tables)

	f, err := os.Create("dns64perf.csv")
	if err != nil {
		return fmt.Errorf("create dns64perf.csv: %w", err)
	}
	defer f.Close()
	if err := report.WriteCSV(f); err != nil {
		return fmt.Errorf("write dns64perf.csv: %w", err)
	}

	return report.WriteSummary(os.Stdout)
}

// printProgress prints one aggregated progress line per progressInterval
// while the run is in flight, summed across every worker's most recent
// reported burst count. It returns once sub's channel is closed.
func printProgress(sub *progress.Subscriber) {
	last := make(map[uint32]progress.Update)
	ticker := time.NewTicker(progressInterval)
	defer ticker.Stop()

	for {
		select {
		case u, ok := <-sub.Ch:
			if !ok {
				return
			}
			last[u.Worker] = u
		case <-ticker.C:
			var done, want uint32
			for _, u := range last {
				done += u.BurstsDone
				want += u.BurstsWant
			}
			if want > 0 {
				fmt.Fprintf(os.Stderr, "progress: %d/%d bursts complete\n", done, want)
			}
		}
	}
}
