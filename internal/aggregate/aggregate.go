// Package aggregate merges every worker's TestCase table into the one
// ordered report a run produces: a per-query CSV and a printed summary.
//
// Aggregation only ever runs after every worker has joined (the run
// controller calls Merge post-Pool.Close), so by that point each table is
// frozen and no locking is needed; Merge still reads the timing and
// Answered fields through the Case accessors, which use atomic loads. This
// is the same "read-only after join" discipline the teacher's
// post-shutdown stats read follows.
package aggregate

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/bakaid/dns64perfgo/internal/fingerprint"
	"github.com/bakaid/dns64perfgo/internal/testcase"
)

// Row is one query's outcome in global order, the unit a CSV line and a
// summary statistic are both built from.
type Row struct {
	GlobalIndex uint64
	IPv4        uint32
	SentAtNs    int64 // UnixNano; 0 if never sent
	Sent        bool
	Answered    bool
	RCode       uint8
	Latency     time.Duration
}

// Report is the complete, ordered outcome of a run, plus the summary
// statistics derived from it.
type Report struct {
	Rows []Row

	Sent      uint64
	Answered  uint64
	TimedOut  uint64
	RCodes    [16]uint64 // indexed by RCode, valid entries only
	MinLat    time.Duration
	MaxLat    time.Duration
	MeanLat   time.Duration
	MedianLat time.Duration
}

// Merge flattens every worker's table into one Report, sorted by
// GlobalIndex so the CSV reads in the same order a single-threaded run
// would have produced the queries (spec.md §7).
func Merge(tables []testcase.Table) Report {
	var rows []Row
	for _, t := range tables {
		for i := range t {
			c := &t[i]
			row := Row{
				GlobalIndex: c.GlobalIndex,
				IPv4:        c.IPv4,
				SentAtNs:    c.SentTime().UnixNano(),
				Sent:        c.Sent(),
				Answered:    c.Answered.Load(),
				RCode:       c.RCode,
			}
			if !row.Sent {
				row.SentAtNs = 0
			}
			if lat, ok := c.Latency(); ok {
				row.Latency = lat
			}
			rows = append(rows, row)
		}
	}

	sort.Slice(rows, func(i, j int) bool { return rows[i].GlobalIndex < rows[j].GlobalIndex })

	return summarize(rows)
}

func summarize(rows []Row) Report {
	r := Report{Rows: rows}

	var latencies []time.Duration
	for _, row := range rows {
		if row.Sent {
			r.Sent++
		}
		if row.Answered {
			r.Answered++
			if int(row.RCode) < len(r.RCodes) {
				r.RCodes[row.RCode]++
			}
			latencies = append(latencies, row.Latency)
		} else if row.Sent {
			r.TimedOut++
		}
	}

	if len(latencies) == 0 {
		return r
	}

	sort.Slice(latencies, func(i, j int) bool { return latencies[i] < latencies[j] })
	r.MinLat = latencies[0]
	r.MaxLat = latencies[len(latencies)-1]

	var sum time.Duration
	for _, l := range latencies {
		sum += l
	}
	r.MeanLat = sum / time.Duration(len(latencies))
	r.MedianLat = latencies[len(latencies)/2]

	return r
}

// WriteCSV writes one row per query, in GlobalIndex order, per spec.md
// §4.E/§6's report columns: `(global_index, ipv4_dotted, sent_epoch_ns,
// latency_ns_or_empty, rcode_or_empty)`. latency_ns and rcode are empty
// fields, not zero, for a case that was never answered.
func (r Report) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	defer cw.Flush()

	if err := cw.Write([]string{"global_index", "ipv4_dotted", "sent_epoch_ns", "latency_ns", "rcode"}); err != nil {
		return fmt.Errorf("aggregate: write csv header: %w", err)
	}

	for _, row := range r.Rows {
		sentEpochNs := ""
		if row.Sent {
			sentEpochNs = fmt.Sprintf("%d", row.SentAtNs)
		}
		latencyNs, rcode := "", ""
		if row.Answered {
			latencyNs = fmt.Sprintf("%d", row.Latency.Nanoseconds())
			rcode = fmt.Sprintf("%d", row.RCode)
		}
		record := []string{
			fmt.Sprintf("%d", row.GlobalIndex),
			fingerprint.Dotted(row.IPv4),
			sentEpochNs,
			latencyNs,
			rcode,
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("aggregate: write csv row %d: %w", row.GlobalIndex, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteSummary prints the human-readable run summary spec.md §7 describes:
// totals, RCODE histogram, and latency stats.
func (r Report) WriteSummary(w io.Writer) error {
	total := len(r.Rows)
	_, err := fmt.Fprintf(w, "queries: %d sent, %d answered, %d timed out (of %d total)\n",
		r.Sent, r.Answered, r.TimedOut, total)
	if err != nil {
		return err
	}

	for rcode, count := range r.RCodes {
		if count == 0 {
			continue
		}
		if _, err := fmt.Fprintf(w, "  rcode %d: %d\n", rcode, count); err != nil {
			return err
		}
	}

	if r.Answered == 0 {
		return nil
	}
	_, err = fmt.Fprintf(w, "latency: min=%s max=%s mean=%s median=%s\n",
		r.MinLat, r.MaxLat, r.MeanLat, r.MedianLat)
	return err
}
