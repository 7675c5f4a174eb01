// Package dnswire encodes the one DNS query shape this tool issues (a
// recursion-desired AAAA question) and decodes the one field set it reads
// back out of a reply: transaction ID, the TC bit, and RCODE.
//
// Encoding goes through github.com/miekg/dns, the library the rest of the
// retrieved corpus already uses to build queries. Decoding deliberately
// does not: a full semantic unpack would parse a question and answer
// section this program never inspects, so the narrow header peek below
// follows the teacher's internal/packet parser instead — same headerSize
// constant, same "too short to be a DNS message" failure mode — trimmed to
// only the bytes spec.md §4.B names.
package dnswire

import (
	"errors"
	"fmt"

	"github.com/miekg/dns"
)

// ErrMessageTooShort indicates a reply shorter than a DNS header.
var ErrMessageTooShort = errors.New("dnswire: message shorter than header")

// headerSize is the fixed 12-byte DNS message header (RFC 1035 §4.1.1).
const headerSize = 12

// Encode builds a standard recursion-desired AAAA query for qname, with
// the given transaction ID, per spec.md §4.B.
func Encode(qname string, id uint16) ([]byte, error) {
	m := new(dns.Msg)
	m.Id = id
	m.RecursionDesired = true
	m.SetQuestion(dns.Fqdn(qname), dns.TypeAAAA)

	buf, err := m.Pack()
	if err != nil {
		return nil, fmt.Errorf("dnswire: encode %q: %w", qname, err)
	}
	return buf, nil
}

// Reply is the subset of a DNS response this tool correlates and reports:
// the transaction ID, whether the response was truncated, and the 4-bit
// RCODE.
type Reply struct {
	ID        uint16
	Truncated bool
	RCode     uint8
}

// Decode reads only the first four header bytes of buf: ID (bytes 0-1),
// the TC bit (byte 2, bit 1), and RCODE (low nibble of byte 3). Any
// question/answer/authority/additional section content, if present, is
// ignored. A message shorter than 12 bytes is a decode failure.
func Decode(buf []byte) (Reply, error) {
	if len(buf) < headerSize {
		return Reply{}, ErrMessageTooShort
	}
	id := uint16(buf[0])<<8 | uint16(buf[1])
	truncated := buf[2]&0x02 != 0
	rcode := buf[3] & 0x0F
	return Reply{ID: id, Truncated: truncated, RCode: rcode}, nil
}
