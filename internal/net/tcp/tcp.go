// Package tcp implements the simplified state machine of §4.8: a
// 16-connection table, the transition table given there verbatim (no
// retransmission, no congestion control, no window scaling, no
// out-of-order reassembly, fixed initial sequence numbers of 1000
// (active open) and 2000 (passive open)).
package tcp

import (
	"encoding/binary"
	"errors"

	"github.com/hobbyos-go/kernelcore/internal/net/wire"
)

type State int

const (
	StateClosed State = iota
	StateListen
	StateSynSent
	StateSynReceived
	StateEstablished
	StateFinWait1
	StateFinWait2
	StateCloseWait
	StateLastAck
	StateClosing
	StateTimeWait
)

const (
	FlagFIN = 0x01
	FlagSYN = 0x02
	FlagRST = 0x04
	FlagPSH = 0x08
	FlagACK = 0x10

	HeaderLen = 20

	TableSize = 16
	RecvCap   = 4096

	activeInitialSeq  = 1000
	passiveInitialSeq = 2000
)

var (
	ErrTableFull      = errors.New("tcp: connection table full")
	ErrTooShort       = errors.New("tcp: segment shorter than header")
	ErrNoConnection   = errors.New("tcp: no matching connection")
	ErrWrongState     = errors.New("tcp: operation invalid in current state")
)

// Conn is one record of the fixed 16-entry connection table (§3).
type Conn struct {
	Used       bool
	State      State
	LocalPort  uint16
	RemotePort uint16
	RemoteIP   wire.IPv4Addr
	SeqNum     uint32
	AckNum     uint32
	Recv       []byte
}

type Table struct {
	conns [TableSize]Conn
}

func (t *Table) alloc() (int, *Conn, error) {
	for i := range t.conns {
		if !t.conns[i].Used {
			t.conns[i] = Conn{Used: true}
			return i, &t.conns[i], nil
		}
	}

	return -1, nil, ErrTableFull
}

func (t *Table) Get(idx int) *Conn { return &t.conns[idx] }

// find implements the tie-break rule: an exact (local_port, remote_port,
// remote_ip) match wins over a LISTEN match on local_port alone.
func (t *Table) find(localPort, remotePort uint16, remoteIP wire.IPv4Addr) (int, bool) {
	listenIdx := -1

	for i := range t.conns {
		c := &t.conns[i]
		if !c.Used {
			continue
		}

		if c.LocalPort == localPort && c.RemotePort == remotePort && c.RemoteIP == remoteIP {
			return i, true
		}

		if c.State == StateListen && c.LocalPort == localPort && listenIdx == -1 {
			listenIdx = i
		}
	}

	if listenIdx != -1 {
		return listenIdx, true
	}

	return -1, false
}

// Header is the 20-byte fixed TCP header (no options).
type Header struct {
	SrcPort uint16
	DstPort uint16
	Seq     uint32
	Ack     uint32
	Flags   uint8
	Window  uint16
}

func (h *Header) Encode(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], h.DstPort)
	binary.BigEndian.PutUint32(buf[4:8], h.Seq)
	binary.BigEndian.PutUint32(buf[8:12], h.Ack)
	buf[12] = 5 << 4 // data offset: 20 bytes, no options
	buf[13] = h.Flags
	binary.BigEndian.PutUint16(buf[14:16], h.Window)
	binary.BigEndian.PutUint16(buf[16:18], 0) // checksum filled by BuildSegment
	binary.BigEndian.PutUint16(buf[18:20], 0)
}

func (h *Header) Decode(buf []byte) error {
	if len(buf) < HeaderLen {
		return ErrTooShort
	}

	h.SrcPort = binary.BigEndian.Uint16(buf[0:2])
	h.DstPort = binary.BigEndian.Uint16(buf[2:4])
	h.Seq = binary.BigEndian.Uint32(buf[4:8])
	h.Ack = binary.BigEndian.Uint32(buf[8:12])
	h.Flags = buf[13]
	h.Window = binary.BigEndian.Uint16(buf[14:16])

	return nil
}

func pseudoHeaderChecksum(src, dst wire.IPv4Addr, segment []byte) uint16 {
	pseudo := make([]byte, 12+len(segment)+len(segment)%2)
	copy(pseudo[0:4], src[:])
	copy(pseudo[4:8], dst[:])
	pseudo[9] = 6
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(segment)))
	copy(pseudo[12:], segment)

	return wire.Checksum(pseudo)
}

// BuildSegment encodes a segment with the pseudo-header checksum filled
// in.
func BuildSegment(src, dst wire.IPv4Addr, h Header, payload []byte) []byte {
	seg := make([]byte, HeaderLen+len(payload))
	h.Encode(seg)
	copy(seg[HeaderLen:], payload)

	cs := pseudoHeaderChecksum(src, dst, seg)
	binary.BigEndian.PutUint16(seg[16:18], cs)

	return seg
}

// Connect implements "CLOSED + connect() -> send SYN(seq=1000); SYN_SENT".
func (t *Table) Connect(localPort, remotePort uint16, remoteIP wire.IPv4Addr) (int, []byte, error) {
	idx, c, err := t.alloc()
	if err != nil {
		return -1, nil, err
	}

	c.LocalPort = localPort
	c.RemotePort = remotePort
	c.RemoteIP = remoteIP
	c.SeqNum = activeInitialSeq
	c.State = StateSynSent

	seg := BuildSegment(wire.IPv4Addr{}, remoteIP, Header{SrcPort: localPort, DstPort: remotePort, Seq: c.SeqNum, Flags: FlagSYN}, nil)

	return idx, seg, nil
}

// Listen implements LISTEN as a standing conn awaiting an incoming SYN.
func (t *Table) Listen(localPort uint16) (int, error) {
	idx, c, err := t.alloc()
	if err != nil {
		return -1, err
	}

	c.LocalPort = localPort
	c.State = StateListen

	return idx, nil
}

// Send implements "ESTABLISHED + send() -> send PSH+ACK; seq_num += len".
func (t *Table) Send(idx int, ourIP wire.IPv4Addr, payload []byte) ([]byte, error) {
	c := &t.conns[idx]
	if c.State != StateEstablished {
		return nil, ErrWrongState
	}

	seg := BuildSegment(ourIP, c.RemoteIP, Header{
		SrcPort: c.LocalPort, DstPort: c.RemotePort,
		Seq: c.SeqNum, Ack: c.AckNum, Flags: FlagPSH | FlagACK,
	}, payload)

	c.SeqNum += uint32(len(payload))

	return seg, nil
}

// Close implements "ESTABLISHED + close() -> send FIN+ACK; seq_num += 1; FIN_WAIT_1".
func (t *Table) Close(idx int, ourIP wire.IPv4Addr) ([]byte, error) {
	c := &t.conns[idx]
	if c.State != StateEstablished {
		return nil, ErrWrongState
	}

	seg := BuildSegment(ourIP, c.RemoteIP, Header{
		SrcPort: c.LocalPort, DstPort: c.RemotePort,
		Seq: c.SeqNum, Ack: c.AckNum, Flags: FlagFIN | FlagACK,
	}, nil)

	c.SeqNum++
	c.State = StateFinWait1

	return seg, nil
}

func ackOnly(ourIP wire.IPv4Addr, c *Conn) []byte {
	return BuildSegment(ourIP, c.RemoteIP, Header{
		SrcPort: c.LocalPort, DstPort: c.RemotePort,
		Seq: c.SeqNum, Ack: c.AckNum, Flags: FlagACK,
	}, nil)
}

// HandleSegment applies the transition table of §4.8 to an incoming
// segment, returning any segment that must be sent in reply.
func (t *Table) HandleSegment(ourIP, remoteIP wire.IPv4Addr, seg []byte) (out []byte, idx int, err error) {
	var h Header
	if err := h.Decode(seg); err != nil {
		return nil, -1, err
	}

	payload := seg[HeaderLen:]

	i, ok := t.find(h.DstPort, h.SrcPort, remoteIP)
	if !ok {
		return nil, -1, ErrNoConnection
	}

	c := &t.conns[i]

	switch c.State {
	case StateSynSent:
		if h.Flags&FlagSYN != 0 && h.Flags&FlagACK != 0 {
			c.AckNum = h.Seq + 1
			c.SeqNum++
			c.State = StateEstablished
			c.RemoteIP = remoteIP

			return ackOnly(ourIP, c), i, nil
		}

	case StateListen:
		if h.Flags&FlagSYN != 0 {
			newIdx, nc, err := t.alloc()
			if err != nil {
				return nil, -1, err
			}

			nc.LocalPort = h.DstPort
			nc.RemotePort = h.SrcPort
			nc.RemoteIP = remoteIP
			nc.SeqNum = passiveInitialSeq
			nc.AckNum = h.Seq + 1
			nc.State = StateSynReceived

			reply := BuildSegment(ourIP, remoteIP, Header{
				SrcPort: nc.LocalPort, DstPort: nc.RemotePort,
				Seq: nc.SeqNum, Ack: nc.AckNum, Flags: FlagSYN | FlagACK,
			}, nil)

			return reply, newIdx, nil
		}

	case StateSynReceived:
		if h.Flags&FlagACK != 0 {
			c.State = StateEstablished
			return nil, i, nil
		}

	case StateEstablished:
		switch {
		case h.Flags&FlagFIN != 0:
			c.AckNum = h.Seq + 1
			c.State = StateCloseWait

			return ackOnly(ourIP, c), i, nil
		case len(payload) > 0:
			c.Recv = appendBounded(c.Recv, payload, RecvCap)
			c.AckNum = h.Seq + uint32(len(payload))

			return ackOnly(ourIP, c), i, nil
		}

	case StateFinWait1:
		switch {
		case h.Flags&FlagFIN != 0:
			c.AckNum = h.Seq + 1
			c.State = StateClosed

			return ackOnly(ourIP, c), i, nil
		case h.Flags&FlagACK != 0:
			c.State = StateFinWait2
			return nil, i, nil
		}

	case StateFinWait2:
		if h.Flags&FlagFIN != 0 {
			c.AckNum = h.Seq + 1
			c.State = StateClosed

			return ackOnly(ourIP, c), i, nil
		}

	case StateLastAck:
		if h.Flags&FlagACK != 0 {
			c.State = StateClosed
			c.Used = false

			return nil, i, nil
		}
	}

	return nil, i, nil
}

func appendBounded(dst, src []byte, cap int) []byte {
	dst = append(dst, src...)
	if len(dst) > cap {
		dst = dst[len(dst)-cap:]
	}

	return dst
}
