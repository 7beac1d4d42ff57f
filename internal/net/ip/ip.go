// Package ip implements the fixed 20-byte IPv4 header (no options) of
// §4.8: encode/decode, header checksum, and next-hop routing (direct
// delivery within the local subnet, else the configured gateway).
package ip

import (
	"encoding/binary"
	"errors"

	"github.com/hobbyos-go/kernelcore/internal/net/wire"
)

const (
	HeaderLen   = 20
	versionIHL  = 0x45
	defaultTTL  = 64

	ProtoICMP = 1
	ProtoTCP  = 6
	ProtoUDP  = 17
)

var ErrTooShort = errors.New("ip: packet shorter than header")

// Header is the 20-byte IPv4 header with no options.
type Header struct {
	TotalLength uint16
	Identification uint16
	TTL         uint8
	Protocol    uint8
	Checksum    uint16
	Src         wire.IPv4Addr
	Dst         wire.IPv4Addr
}

func (h *Header) Encode(buf []byte) {
	buf[0] = versionIHL
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], h.TotalLength)
	binary.BigEndian.PutUint16(buf[4:6], h.Identification)
	binary.BigEndian.PutUint16(buf[6:8], 0) // flags/fragment offset: no fragmentation
	buf[8] = h.TTL
	buf[9] = h.Protocol
	binary.BigEndian.PutUint16(buf[10:12], 0) // checksum computed below
	copy(buf[12:16], h.Src[:])
	copy(buf[16:20], h.Dst[:])

	cs := wire.Checksum(buf[:HeaderLen])
	binary.BigEndian.PutUint16(buf[10:12], cs)
	h.Checksum = cs
}

func (h *Header) Decode(buf []byte) error {
	if len(buf) < HeaderLen {
		return ErrTooShort
	}

	h.TotalLength = binary.BigEndian.Uint16(buf[2:4])
	h.Identification = binary.BigEndian.Uint16(buf[4:6])
	h.TTL = buf[8]
	h.Protocol = buf[9]
	h.Checksum = binary.BigEndian.Uint16(buf[10:12])
	copy(h.Src[:], buf[12:16])
	copy(h.Dst[:], buf[16:20])

	return nil
}

// VerifyChecksum reports whether buf's header checksum is valid (P-N2):
// the checksum over the whole header, including the stored checksum
// field, is zero.
func VerifyChecksum(buf []byte) bool {
	if len(buf) < HeaderLen {
		return false
	}

	return wire.Checksum(buf[:HeaderLen]) == 0
}

// BuildPacket fills version/IHL/TTL/protocol/src/checksum and appends
// payload, per §4.8's transmit description.
func BuildPacket(src, dst wire.IPv4Addr, protocol uint8, payload []byte) []byte {
	buf := make([]byte, HeaderLen+len(payload))

	h := Header{
		TotalLength: uint16(HeaderLen + len(payload)),
		TTL:         defaultTTL,
		Protocol:    protocol,
		Src:         src,
		Dst:         dst,
	}
	h.Encode(buf)
	copy(buf[HeaderLen:], payload)

	return buf
}

// NextHop returns dst if it is within the local subnet (dst & netmask
// == local & netmask), else it returns gateway.
func NextHop(dst, local, netmask, gateway wire.IPv4Addr) wire.IPv4Addr {
	d := dst.Uint32() & netmask.Uint32()
	l := local.Uint32() & netmask.Uint32()

	if d == l {
		return dst
	}

	return gateway
}

// AcceptedForUs reports whether dst matches our IP or the broadcast
// address.
func AcceptedForUs(dst, ourIP wire.IPv4Addr) bool {
	return dst == ourIP || dst == wire.IPv4Addr{0xFF, 0xFF, 0xFF, 0xFF}
}
