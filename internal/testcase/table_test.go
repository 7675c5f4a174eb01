package testcase

import (
	"testing"
	"time"
)

func TestMarkSentThenAnswered_LatencyNonNegative(t *testing.T) {
	var c Case
	sent := time.Now()
	c.MarkSent(sent)

	received := sent.Add(5 * time.Millisecond)
	if !c.TryMarkAnswered(received, 0) {
		t.Fatal("TryMarkAnswered() = false on first call")
	}

	latency, ok := c.Latency()
	if !ok {
		t.Fatal("Latency() ok = false for answered case")
	}
	if latency < 0 {
		t.Errorf("latency = %v, want >= 0 (received_at >= sent_at invariant)", latency)
	}
}

func TestTryMarkAnswered_SecondCallRejected(t *testing.T) {
	var c Case
	c.MarkSent(time.Now())

	if !c.TryMarkAnswered(time.Now(), 0) {
		t.Fatal("first TryMarkAnswered() = false")
	}
	if c.TryMarkAnswered(time.Now(), 3) {
		t.Error("second TryMarkAnswered() = true, duplicate reply should be rejected")
	}
	if c.RCode != 0 {
		t.Errorf("RCode = %d, want 0 (the second reply's rcode must not overwrite the first)", c.RCode)
	}
}

func TestLatency_UnansweredCase(t *testing.T) {
	var c Case
	c.MarkSent(time.Now())
	if _, ok := c.Latency(); ok {
		t.Error("Latency() ok = true for unanswered case")
	}
}

func TestNewTable_StampsIndexAndAddress(t *testing.T) {
	const n = 4
	tbl := NewTable(n, func(slot uint32) uint32 {
		return 0x0A000000 + slot
	}, func(slot uint32) uint64 {
		return uint64(slot)*2 + 1
	})

	if len(tbl) != n {
		t.Fatalf("len(table) = %d, want %d", len(tbl), n)
	}
	for j, c := range tbl {
		if c.IPv4 != 0x0A000000+uint32(j) {
			t.Errorf("slot %d: IPv4 = %#x, want %#x", j, c.IPv4, 0x0A000000+uint32(j))
		}
		if c.GlobalIndex != uint64(j)*2+1 {
			t.Errorf("slot %d: GlobalIndex = %d, want %d", j, c.GlobalIndex, uint64(j)*2+1)
		}
		if c.Sent() {
			t.Errorf("slot %d: Sent() = true before MarkSent", j)
		}
	}
}
