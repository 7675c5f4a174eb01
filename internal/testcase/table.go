// Package testcase holds the per-query outcome table each worker owns and
// populates during a run, and that the aggregator reads once after every
// worker has joined.
//
// A worker's sender goroutine and receiver goroutine both touch the same
// table concurrently: the sender writes SentAt once per slot at burst
// time, the receiver writes ReceivedAt/RCode and flips Answered once a
// matching reply arrives. Answered is an atomic.Bool (checked-and-set by
// the receiver, read by the drain loop and by the aggregator) so there is
// a well-defined happens-before edge between "a reply was recorded" and
// "any other goroutine observes it answered", without a per-slot mutex.
package testcase

import (
	"sync/atomic"
	"time"
)

// Case is one slot's outcome, indexed by a dense per-worker slot number.
type Case struct {
	GlobalIndex uint64 // k = j*W + w, this slot's position in the overall run
	IPv4        uint32 // synthesized target address

	SentAt     int64 // UnixNano; 0 means unsent
	ReceivedAt int64 // UnixNano; meaningful only if Answered

	Answered atomic.Bool
	RCode    uint8 // valid iff Answered
}

// MarkSent stamps SentAt with now as wall-clock UnixNano; the monotonic
// reading carried by now is not kept, so Latency is a difference of
// wall-clock times. Called exactly once, by the sender, before the slot is
// ever read by the receiver.
func (c *Case) MarkSent(now time.Time) {
	atomic.StoreInt64(&c.SentAt, now.UnixNano())
}

// TryMarkAnswered records a reply for this slot, unless it has already
// been answered, and reports whether it did. The CompareAndSwap is the
// guard against a late or duplicate reply: worker.QueryWorker.correlate
// calls this for each candidate slot and moves on when it returns false.
func (c *Case) TryMarkAnswered(now time.Time, rcode uint8) bool {
	if !c.Answered.CompareAndSwap(false, true) {
		return false
	}
	atomic.StoreInt64(&c.ReceivedAt, now.UnixNano())
	c.RCode = rcode
	return true
}

// Sent reports whether the slot was ever transmitted.
func (c *Case) Sent() bool {
	return atomic.LoadInt64(&c.SentAt) != 0
}

// SentTime returns the recorded send time, or the zero Time if unsent.
func (c *Case) SentTime() time.Time {
	ns := atomic.LoadInt64(&c.SentAt)
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// ReceivedTime returns the recorded receive time, valid iff Answered.
func (c *Case) ReceivedTime() time.Time {
	ns := atomic.LoadInt64(&c.ReceivedAt)
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}

// Latency returns the round-trip latency for an answered case. The second
// return is false for an unanswered or not-yet-sent case.
func (c *Case) Latency() (time.Duration, bool) {
	if !c.Answered.Load() || !c.Sent() {
		return 0, false
	}
	return c.ReceivedTime().Sub(c.SentTime()), true
}

// Table is the dense, fixed-size slot array one worker owns for the
// duration of a run. It is allocated once at worker construction and never
// resized.
type Table []Case

// NewTable allocates a table of n slots, stamping each with its global
// index and synthesized IPv4 address up front so every field except the
// timing/outcome ones is immutable for the table's lifetime.
func NewTable(n int, ipv4 func(slot uint32) uint32, globalIndex func(slot uint32) uint64) Table {
	t := make(Table, n)
	for j := 0; j < n; j++ {
		t[j].GlobalIndex = globalIndex(uint32(j))
		t[j].IPv4 = ipv4(uint32(j))
	}
	return t
}
