// Package udp implements the stateless socket table of §4.8: fixed
// size 16, one receive slot per socket (no queue — "a known
// limitation"), checksum over the IPv4 pseudo-header.
package udp

import (
	"encoding/binary"
	"errors"

	"github.com/hobbyos-go/kernelcore/internal/net/wire"
)

const (
	HeaderLen = 8
	TableSize = 16
	RecvCap   = 2048
)

var (
	ErrTableFull  = errors.New("udp: socket table full")
	ErrTooShort   = errors.New("udp: datagram shorter than header")
	ErrNoSocket   = errors.New("udp: no socket bound to that port")
)

// socket is one slot of the fixed 16-entry table.
type socket struct {
	used       bool
	localPort  uint16
	remoteIP   wire.IPv4Addr
	remotePort uint16
	hasRemote  bool
	recv       []byte // up to RecvCap, overwritten by each new datagram
}

// Table is the fixed UDP socket table.
type Table struct {
	sockets [TableSize]socket
}

// Bind allocates a socket for localPort, returning its table index.
func (t *Table) Bind(localPort uint16) (int, error) {
	for i := range t.sockets {
		if !t.sockets[i].used {
			t.sockets[i] = socket{used: true, localPort: localPort}
			return i, nil
		}
	}

	return -1, ErrTableFull
}

func (t *Table) Close(idx int) {
	t.sockets[idx] = socket{}
}

// Header is the 8-byte UDP header.
type Header struct {
	SrcPort  uint16
	DstPort  uint16
	Length   uint16
	Checksum uint16
}

func (h *Header) Encode(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], h.DstPort)
	binary.BigEndian.PutUint16(buf[4:6], h.Length)
	binary.BigEndian.PutUint16(buf[6:8], h.Checksum)
}

func (h *Header) Decode(buf []byte) error {
	if len(buf) < HeaderLen {
		return ErrTooShort
	}

	h.SrcPort = binary.BigEndian.Uint16(buf[0:2])
	h.DstPort = binary.BigEndian.Uint16(buf[2:4])
	h.Length = binary.BigEndian.Uint16(buf[4:6])
	h.Checksum = binary.BigEndian.Uint16(buf[6:8])

	return nil
}

// pseudoHeaderChecksum sums the IPv4 IPv4 pseudo-header (src, dst, zero,
// protocol=17, udp_length) followed by the UDP segment itself.
func pseudoHeaderChecksum(src, dst wire.IPv4Addr, segment []byte) uint16 {
	pseudo := make([]byte, 12+len(segment)+len(segment)%2)
	copy(pseudo[0:4], src[:])
	copy(pseudo[4:8], dst[:])
	pseudo[8] = 0
	pseudo[9] = 17
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(segment)))
	copy(pseudo[12:], segment)

	return wire.Checksum(pseudo)
}

// BuildDatagram constructs a full UDP segment with the pseudo-header
// checksum filled in.
func BuildDatagram(src, dst wire.IPv4Addr, srcPort, dstPort uint16, payload []byte) []byte {
	seg := make([]byte, HeaderLen+len(payload))
	h := Header{SrcPort: srcPort, DstPort: dstPort, Length: uint16(HeaderLen + len(payload))}
	h.Encode(seg)
	copy(seg[HeaderLen:], payload)

	cs := pseudoHeaderChecksum(src, dst, seg)
	binary.BigEndian.PutUint16(seg[6:8], cs)

	return seg
}

// Deliver finds the socket bound to h.DstPort and overwrites its receive
// slot (no queueing).
func (t *Table) Deliver(remoteIP wire.IPv4Addr, h Header, payload []byte) error {
	for i := range t.sockets {
		s := &t.sockets[i]
		if s.used && s.localPort == h.DstPort {
			n := len(payload)
			if n > RecvCap {
				n = RecvCap
			}

			s.recv = append([]byte(nil), payload[:n]...)
			s.remoteIP = remoteIP
			s.remotePort = h.SrcPort
			s.hasRemote = true

			return nil
		}
	}

	return ErrNoSocket
}

// Recv returns (and clears) the socket's pending datagram, if any.
func (t *Table) Recv(idx int) ([]byte, bool) {
	s := &t.sockets[idx]
	if s.recv == nil {
		return nil, false
	}

	data := s.recv
	s.recv = nil

	return data, true
}

func (t *Table) RemoteOf(idx int) (wire.IPv4Addr, uint16, bool) {
	s := &t.sockets[idx]
	return s.remoteIP, s.remotePort, s.hasRemote
}
