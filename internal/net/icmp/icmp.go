// Package icmp implements echo request/reply (RFC 792) per §4.8.
package icmp

import (
	"encoding/binary"
	"errors"
)

const (
	TypeEchoReply   = 0
	TypeEchoRequest = 8

	HeaderLen = 8
)

var ErrTooShort = errors.New("icmp: message shorter than header")

// BuildEcho constructs an ICMP echo message (request or reply) carrying
// payload after the 8-byte header, with the checksum computed over the
// full message.
func BuildEcho(typ uint8, id, seq uint16, payload []byte) []byte {
	buf := make([]byte, HeaderLen+len(payload))
	buf[0] = typ
	buf[1] = 0 // code
	binary.BigEndian.PutUint16(buf[4:6], id)
	binary.BigEndian.PutUint16(buf[6:8], seq)
	copy(buf[HeaderLen:], payload)

	cs := checksum(buf)
	binary.BigEndian.PutUint16(buf[2:4], cs)

	return buf
}

func checksum(data []byte) uint16 {
	var sum uint32

	n := len(data)
	for i := 0; i+1 < n; i += 2 {
		sum += uint32(data[i])<<8 | uint32(data[i+1])
	}

	if n%2 == 1 {
		sum += uint32(data[n-1]) << 8
	}

	for sum>>16 != 0 {
		sum = (sum & 0xFFFF) + (sum >> 16)
	}

	return ^uint16(sum)
}

// HandleMessage implements the receive side of §4.8's ICMP section: an
// echo request produces a reply message (caller wraps it in an IP
// packet back to the source); an echo reply whose (id, seq) matches
// outstanding is reported via matched.
func HandleMessage(msg []byte, outstandingID, outstandingSeq uint16) (reply []byte, matched bool, err error) {
	if len(msg) < HeaderLen {
		return nil, false, ErrTooShort
	}

	typ := msg[0]
	id := binary.BigEndian.Uint16(msg[4:6])
	seq := binary.BigEndian.Uint16(msg[6:8])

	switch typ {
	case TypeEchoRequest:
		clone := append([]byte(nil), msg...)
		clone[0] = TypeEchoReply
		clone[2], clone[3] = 0, 0
		cs := checksum(clone)
		binary.BigEndian.PutUint16(clone[2:4], cs)

		return clone, false, nil
	case TypeEchoReply:
		if id == outstandingID && seq == outstandingSeq {
			return nil, true, nil
		}

		return nil, false, nil
	default:
		return nil, false, nil
	}
}
