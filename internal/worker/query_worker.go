package worker

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bakaid/dns64perfgo/internal/bufpool"
	"github.com/bakaid/dns64perfgo/internal/dnswire"
	"github.com/bakaid/dns64perfgo/internal/fingerprint"
	"github.com/bakaid/dns64perfgo/internal/metrics"
	"github.com/bakaid/dns64perfgo/internal/pacer"
	"github.com/bakaid/dns64perfgo/internal/progress"
	"github.com/bakaid/dns64perfgo/internal/testcase"
)

// Config holds everything one QueryWorker needs to run its share of a
// load-generation run. It is built by the run controller from a
// fingerprint.Plan and this worker's ID.
type Config struct {
	Plan       fingerprint.Plan
	WorkerID   uint32
	ServerAddr *net.UDPAddr
	Start      time.Time // T0 + staggered offset for this worker
	Interval   time.Duration
	Timeout    time.Duration

	Progress *progress.Bus   // optional
	Metrics  *metrics.Recorder // optional; nil-safe
}

// QueryWorker owns one connected IPv6/UDP socket and its TestCase table
// for the duration of a run (spec.md §3's WorkerState). It implements Job
// so the run controller can launch and supervise it through Pool.
type QueryWorker struct {
	cfg   Config
	table testcase.Table

	// idIndex maps a 16-bit wire transaction ID to the ascending-order
	// list of this worker's slot indices that can produce it. Most
	// entries hold exactly one slot; when num_req/threads exceeds 2^16
	// (spec.md §9's open question), an ID's list holds every slot whose
	// transaction ID wrapped onto it, oldest first, and correlate
	// resolves a reply to the oldest slot in that list still
	// unanswered — spec.md §8 scenario 6's documented policy.
	idIndex map[uint16][]uint32
}

// New builds a QueryWorker and allocates its TestCase table. The table is
// sized and populated once here; it is never resized during the run.
func New(cfg Config) *QueryWorker {
	w := &QueryWorker{cfg: cfg}

	n := int(cfg.Plan.PerWorker)
	w.table = testcase.NewTable(n,
		func(slot uint32) uint32 { return cfg.Plan.IPv4(cfg.WorkerID, slot) },
		func(slot uint32) uint64 { return cfg.Plan.GlobalIndex(cfg.WorkerID, slot) },
	)

	w.idIndex = make(map[uint16][]uint32, n)
	for j := uint32(0); j < uint32(n); j++ {
		id := cfg.Plan.TransactionID(cfg.WorkerID, j)
		w.idIndex[id] = append(w.idIndex[id], j)
	}

	return w
}

// Table returns this worker's TestCase table for the aggregator to read
// after the run completes. Only safe to call after Execute has returned.
func (w *QueryWorker) Table() testcase.Table {
	return w.table
}

// Execute runs the worker's full lifecycle: open its socket, drive bursts
// at the paced schedule, and drain replies until its share of queries is
// resolved or timed out. It implements worker.Job.
func (w *QueryWorker) Execute(ctx context.Context) error {
	conn, err := net.DialUDP("udp6", nil, w.cfg.ServerAddr)
	if err != nil {
		return fmt.Errorf("worker %d: dial %s: %w", w.cfg.WorkerID, w.cfg.ServerAddr, err)
	}
	defer conn.Close()

	doneSending := make(chan struct{})
	go func() {
		defer close(doneSending)
		w.sendBursts(ctx, conn)
	}()

	w.receive(ctx, conn, doneSending)
	return ctx.Err()
}

// sendBursts drives the pacer at this worker's schedule: one call to
// task per burst, sending burst_size queries per call. Sending is
// stamped as "attempted" (sent_at set) before the write; a write failure
// is recorded as nothing more than an unanswered case — it must not
// abort the worker (spec.md §4.D, §7).
func (w *QueryWorker) sendBursts(ctx context.Context, conn *net.UDPConn) {
	plan := w.cfg.Plan
	burst := plan.BurstSize

	_ = pacer.Run(ctx, func() {}, func(b int) {
		for q := uint32(0); q < burst; q++ {
			j := uint32(b)*burst + q
			if j >= uint32(len(w.table)) {
				continue
			}
			w.sendOne(conn, j)
		}

		if w.cfg.Progress != nil {
			w.cfg.Progress.Publish(progress.Update{
				Worker:     w.cfg.WorkerID,
				BurstsDone: uint32(b + 1),
				BurstsWant: plan.PerBurst,
			})
		}
	}, w.cfg.Start, w.cfg.Interval, int(plan.PerBurst))
}

func (w *QueryWorker) sendOne(conn *net.UDPConn, slot uint32) {
	id := w.cfg.Plan.TransactionID(w.cfg.WorkerID, slot)
	qname := fingerprint.QName(w.table[slot].IPv4)

	buf, err := dnswire.Encode(qname, id)
	w.table[slot].MarkSent(time.Now())
	w.cfg.Metrics.ObserveSent()
	if err != nil {
		return
	}
	_, _ = conn.Write(buf) // send errors: non-fatal, case stays unanswered
}

// receive reads replies until the sender finishes and the post-pacer
// drain window (one more timeout's worth) elapses, or every case is
// answered first, or ctx is canceled. It shares the read loop between the
// SENDING and DRAINING phases of spec.md §4.D's state machine, the
// "alternating on one thread" option spec.md §5 allows.
func (w *QueryWorker) receive(ctx context.Context, conn *net.UDPConn, doneSending <-chan struct{}) {
	draining := false
	var drainDeadline time.Time

	buf := bufpool.Get()
	defer bufpool.Put(buf)
	defer w.recordTimeouts()

	for {
		if ctx.Err() != nil {
			return
		}
		if draining && (time.Now().After(drainDeadline) || w.allAnswered()) {
			return
		}

		conn.SetReadDeadline(time.Now().Add(w.cfg.Timeout))
		n, err := conn.Read(buf)
		if err == nil {
			if reply, decErr := dnswire.Decode(buf[:n]); decErr == nil {
				w.correlate(reply)
			}
		}

		if !draining {
			select {
			case <-doneSending:
				draining = true
				drainDeadline = time.Now().Add(w.cfg.Timeout)
			default:
			}
		}
	}
}

// recordTimeouts reports every slot that was sent but never answered to
// the metrics recorder, once, when the receive loop exits. Called via
// defer so it fires on every exit path (drain deadline, all-answered,
// cancellation) rather than duplicating the bookkeeping at each return.
func (w *QueryWorker) recordTimeouts() {
	for i := range w.table {
		c := &w.table[i]
		if c.Sent() && !c.Answered.Load() {
			w.cfg.Metrics.ObserveTimedOut()
		}
	}
}

// correlate maps a reply's transaction ID back to a slot and records it,
// per the oldest-unanswered-slot policy documented on idIndex. Decode
// failures never reach here; an ID with no candidate slots, or whose
// candidates are all already answered, is a late/duplicate/foreign
// packet and is silently discarded (spec.md §4.D, §7).
func (w *QueryWorker) correlate(reply dnswire.Reply) {
	now := time.Now()
	for _, slot := range w.idIndex[reply.ID] {
		if w.table[slot].TryMarkAnswered(now, reply.RCode) {
			latency, _ := w.table[slot].Latency()
			w.cfg.Metrics.ObserveAnswered(reply.RCode, latency)
			return
		}
	}
}

func (w *QueryWorker) allAnswered() bool {
	for i := range w.table {
		if !w.table[i].Answered.Load() {
			return false
		}
	}
	return true
}
