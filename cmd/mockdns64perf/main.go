// Command mockdns64perf is a throwaway DNS64 stand-in for exercising
// dns64perfgo without a real translator: it listens on IPv6/UDP, decodes
// each incoming query header, and replies with a configurable RCODE,
// optionally dropping a fraction of queries to exercise the timeout path.
//
// Adapted from the teacher's tools/bench_throughput.go, a load-generating
// client hammering a fixed target; this program is the load generator's
// counterpart, a server answering whatever dns64perfgo throws at it.
package main

import (
	"flag"
	"log"
	"math/rand"
	"net"

	"github.com/bakaid/dns64perfgo/internal/dnswire"
)

var (
	addr     = flag.String("addr", "[::1]:5353", "IPv6 UDP address to listen on")
	rcode    = flag.Int("rcode", 0, "RCODE (0-15) to answer every non-dropped query with")
	dropRate = flag.Float64("drop-rate", 0, "fraction of queries to silently drop, in [0,1]")
)

func main() {
	flag.Parse()

	if *rcode < 0 || *rcode > 15 {
		log.Fatalf("mockdns64perf: rcode %d out of range 0-15", *rcode)
	}
	if *dropRate < 0 || *dropRate > 1 {
		log.Fatalf("mockdns64perf: drop-rate %v out of range [0,1]", *dropRate)
	}

	udpAddr, err := net.ResolveUDPAddr("udp6", *addr)
	if err != nil {
		log.Fatalf("mockdns64perf: resolve %s: %v", *addr, err)
	}
	conn, err := net.ListenUDP("udp6", udpAddr)
	if err != nil {
		log.Fatalf("mockdns64perf: listen %s: %v", *addr, err)
	}
	defer conn.Close()

	log.Printf("mockdns64perf: listening on %s, rcode=%d drop-rate=%v", conn.LocalAddr(), *rcode, *dropRate)
	serve(conn, uint8(*rcode), *dropRate)
}

func serve(conn *net.UDPConn, rcode uint8, dropRate float64) {
	buf := make([]byte, 512)
	for {
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			continue
		}
		query, err := dnswire.Decode(buf[:n])
		if err != nil {
			continue
		}
		if dropRate > 0 && rand.Float64() < dropRate {
			continue
		}
		reply := buildReply(query.ID, rcode)
		if _, err := conn.WriteToUDP(reply, from); err != nil {
			log.Printf("mockdns64perf: write to %s: %v", from, err)
		}
	}
}

// buildReply produces a 12-byte header-only response: the matching
// transaction ID, QR+RA set, and the configured RCODE. This program
// never inspects the question it was sent, so it never reproduces one:
// dnswire.Decode on the dns64perfgo side reads no further than the
// header anyway.
func buildReply(id uint16, rcode uint8) []byte {
	h := make([]byte, 12)
	h[0] = byte(id >> 8)
	h[1] = byte(id)
	h[2] = 0x80 // QR=1
	h[3] = 0x80 | (rcode & 0x0F) // RA=1, RCODE
	return h
}
