// Package wire holds the byte-order and checksum primitives shared by
// every protocol layer above it (§4.8: "all multi-byte wire fields are
// big-endian"), plus the 14-byte Ethernet II header.
package wire

import "encoding/binary"

const (
	EtherTypeIPv4 = 0x0800
	EtherTypeARP  = 0x0806

	EthernetHeaderLen = 14
	MACLen            = 6
)

// Htons/Htonl/Ntohs/Ntohl exist, despite Go's encoding/binary already
// covering this, to match the naming every other wire layer in this
// stack calls out to (P-N1's round-trip property is phrased in these
// terms).
func Htons(v uint16) uint16 { return v }
func Htonl(v uint32) uint32 { return v }
func Ntohs(v uint16) uint16 { return v }
func Ntohl(v uint32) uint32 { return v }

// Checksum computes the ones-complement-of-ones-complement-sum internet
// checksum (RFC 1071) over data, padding a trailing odd byte with zero.
func Checksum(data []byte) uint16 {
	var sum uint32

	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(binary.BigEndian.Uint16(data[i : i+2]))
	}

	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}

	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}

	return ^uint16(sum)
}

// MAC is a 6-byte Ethernet hardware address.
type MAC [MACLen]byte

var Broadcast = MAC{0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF}

func (m MAC) IsZero() bool {
	return m == MAC{}
}

// EthernetHeader is the fixed 14-byte frame header.
type EthernetHeader struct {
	Dst       MAC
	Src       MAC
	EtherType uint16
}

func (h *EthernetHeader) Encode(buf []byte) {
	copy(buf[0:6], h.Dst[:])
	copy(buf[6:12], h.Src[:])
	binary.BigEndian.PutUint16(buf[12:14], h.EtherType)
}

func (h *EthernetHeader) Decode(buf []byte) {
	copy(h.Dst[:], buf[0:6])
	copy(h.Src[:], buf[6:12])
	h.EtherType = binary.BigEndian.Uint16(buf[12:14])
}

// IPv4Addr is a dotted-quad address stored as 4 bytes.
type IPv4Addr [4]byte

func (a IPv4Addr) Uint32() uint32 {
	return binary.BigEndian.Uint32(a[:])
}

func IPv4FromUint32(v uint32) IPv4Addr {
	var a IPv4Addr
	binary.BigEndian.PutUint32(a[:], v)

	return a
}
