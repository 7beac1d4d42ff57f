// Package stack is the polled packet-processing glue of §4.8: a single
// net_process_packet-style dispatcher tying Ethernet framing, ARP, IP
// routing, ICMP echo, UDP sockets, and the TCP connection table
// together over a Device (the e1000 driver or a loopback pair in
// tests). All blocking here is iteration-bounded polling, per §5
// ("Suspension / blocking points... Only hardware polling loops...
// suspend progress").
package stack

import (
	"errors"

	"github.com/hobbyos-go/kernelcore/internal/net/arp"
	"github.com/hobbyos-go/kernelcore/internal/net/icmp"
	"github.com/hobbyos-go/kernelcore/internal/net/ip"
	"github.com/hobbyos-go/kernelcore/internal/net/tcp"
	"github.com/hobbyos-go/kernelcore/internal/net/udp"
	"github.com/hobbyos-go/kernelcore/internal/net/wire"
)

const (
	arpPollBudget = 5000
	tcpPollBudget = 100000
)

var (
	ErrLinkDown     = errors.New("stack: link down")
	ErrARPTimeout   = errors.New("stack: ARP resolution timed out")
	ErrTCPTimeout   = errors.New("stack: TCP handshake timed out")
)

// Device is the minimal contract an underlying NIC (or a test double)
// must satisfy: send one frame, and non-blockingly poll for one
// received frame.
type Device interface {
	Send(frame []byte) error
	Recv() ([]byte, bool, error)
}

// Stack bundles every network-table singleton named in §3's "Network
// tables" paragraph, explicitly threaded as a context rather than as
// module-wide statics (per §9's "Globals everywhere" redesign flag).
type Stack struct {
	dev     Device
	OurMAC  wire.MAC
	OurIP   wire.IPv4Addr
	Netmask wire.IPv4Addr
	Gateway wire.IPv4Addr

	ARP *arp.Cache
	TCP *tcp.Table
	UDP *udp.Table

	pingID, pingSeq   uint16
	pingReplyReceived bool
}

func New(dev Device, ourMAC wire.MAC, ourIP, netmask, gateway wire.IPv4Addr) *Stack {
	return &Stack{
		dev: dev, OurMAC: ourMAC, OurIP: ourIP, Netmask: netmask, Gateway: gateway,
		ARP: &arp.Cache{}, TCP: &tcp.Table{}, UDP: &udp.Table{},
	}
}

// ProcessOne drains at most one waiting frame and dispatches it.
// Returns false if nothing was waiting.
func (s *Stack) ProcessOne() (bool, error) {
	frame, ok, err := s.dev.Recv()
	if err != nil || !ok {
		return false, err
	}

	return true, s.dispatch(frame)
}

// ProcessAll drains every currently queued frame (used by callers that
// just want "catch up", like a shell's idle loop).
func (s *Stack) ProcessAll() error {
	for {
		ok, err := s.ProcessOne()
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
	}
}

func (s *Stack) dispatch(frame []byte) error {
	if len(frame) < wire.EthernetHeaderLen {
		return nil
	}

	var eth wire.EthernetHeader
	eth.Decode(frame)

	payload := frame[wire.EthernetHeaderLen:]

	switch eth.EtherType {
	case wire.EtherTypeARP:
		return s.handleARP(payload)
	case wire.EtherTypeIPv4:
		return s.handleIP(payload)
	}

	return nil
}

func (s *Stack) sendEthernet(dstMAC wire.MAC, etherType uint16, payload []byte) error {
	frame := make([]byte, wire.EthernetHeaderLen+len(payload))
	eth := wire.EthernetHeader{Dst: dstMAC, Src: s.OurMAC, EtherType: etherType}
	eth.Encode(frame)
	copy(frame[wire.EthernetHeaderLen:], payload)

	return s.dev.Send(frame)
}

func (s *Stack) handleARP(payload []byte) error {
	reply, err := arp.ProcessPacket(s.ARP, s.OurMAC, s.OurIP, payload)
	if err != nil || reply == nil {
		return err
	}

	var p arp.Packet
	p.Decode(reply)

	return s.sendEthernet(p.TargetMAC, wire.EtherTypeARP, reply)
}

func (s *Stack) handleIP(payload []byte) error {
	var h ip.Header
	if err := h.Decode(payload); err != nil {
		return err
	}

	if !ip.AcceptedForUs(h.Dst, s.OurIP) {
		return nil
	}

	body := payload[ip.HeaderLen:h.TotalLength]

	switch h.Protocol {
	case ip.ProtoICMP:
		return s.handleICMP(h.Src, body)
	case ip.ProtoUDP:
		return s.handleUDP(h.Src, body)
	case ip.ProtoTCP:
		return s.handleTCP(h.Src, body)
	}

	return nil
}

func (s *Stack) handleICMP(srcIP wire.IPv4Addr, msg []byte) error {
	reply, matched, err := icmp.HandleMessage(msg, s.pingID, s.pingSeq)
	if err != nil {
		return err
	}

	if matched {
		s.pingReplyReceived = true
		return nil
	}

	if reply == nil {
		return nil
	}

	return s.sendIP(srcIP, ip.ProtoICMP, reply)
}

func (s *Stack) handleUDP(srcIP wire.IPv4Addr, seg []byte) error {
	var h udp.Header
	if err := h.Decode(seg); err != nil {
		return err
	}

	return s.UDP.Deliver(srcIP, h, seg[udp.HeaderLen:h.Length])
}

func (s *Stack) handleTCP(srcIP wire.IPv4Addr, seg []byte) error {
	out, _, err := s.TCP.HandleSegment(s.OurIP, srcIP, seg)
	if err != nil || out == nil {
		return err
	}

	return s.sendIP(srcIP, ip.ProtoTCP, out)
}

// resolve looks up dst's next hop MAC, sending an ARP request and
// polling up to arpPollBudget iterations (processing incoming frames
// meanwhile) if it isn't already cached.
func (s *Stack) resolve(nextHop wire.IPv4Addr) (wire.MAC, error) {
	if mac, ok := s.ARP.Lookup(nextHop); ok {
		return mac, nil
	}

	if err := s.sendEthernet(wire.Broadcast, wire.EtherTypeARP, arp.BuildRequest(s.OurMAC, s.OurIP, nextHop)); err != nil {
		return wire.MAC{}, err
	}

	for i := 0; i < arpPollBudget; i++ {
		if _, err := s.ProcessOne(); err != nil {
			return wire.MAC{}, err
		}

		if mac, ok := s.ARP.Lookup(nextHop); ok {
			return mac, nil
		}
	}

	return wire.MAC{}, ErrARPTimeout
}

func (s *Stack) sendIP(dst wire.IPv4Addr, protocol uint8, payload []byte) error {
	nextHop := ip.NextHop(dst, s.OurIP, s.Netmask, s.Gateway)

	mac, err := s.resolve(nextHop)
	if err != nil {
		return err
	}

	pkt := ip.BuildPacket(s.OurIP, dst, protocol, payload)

	return s.sendEthernet(mac, wire.EtherTypeIPv4, pkt)
}

// Ping sends an ICMP echo request and polls for the matching reply.
func (s *Stack) Ping(dst wire.IPv4Addr, id, seq uint16, payload []byte) (bool, error) {
	s.pingID, s.pingSeq, s.pingReplyReceived = id, seq, false

	req := icmp.BuildEcho(icmp.TypeEchoRequest, id, seq, payload)
	if err := s.sendIP(dst, ip.ProtoICMP, req); err != nil {
		return false, err
	}

	for i := 0; i < arpPollBudget; i++ {
		if _, err := s.ProcessOne(); err != nil {
			return false, err
		}

		if s.pingReplyReceived {
			return true, nil
		}
	}

	return false, nil
}

// TCPConnect performs an active open and polls until ESTABLISHED.
func (s *Stack) TCPConnect(remoteIP wire.IPv4Addr, remotePort uint16) (int, error) {
	idx, syn, err := s.TCP.Connect(49152, remotePort, remoteIP)
	if err != nil {
		return -1, err
	}

	mac, err := s.resolve(ip.NextHop(remoteIP, s.OurIP, s.Netmask, s.Gateway))
	if err != nil {
		return -1, err
	}

	pkt := ip.BuildPacket(s.OurIP, remoteIP, ip.ProtoTCP, syn)
	if err := s.sendEthernet(mac, wire.EtherTypeIPv4, pkt); err != nil {
		return -1, err
	}

	for i := 0; i < tcpPollBudget; i++ {
		if _, err := s.ProcessOne(); err != nil {
			return -1, err
		}

		if s.TCP.Get(idx).State == tcp.StateEstablished {
			return idx, nil
		}
	}

	return -1, ErrTCPTimeout
}

func (s *Stack) TCPSend(idx int, payload []byte) error {
	seg, err := s.TCP.Send(idx, s.OurIP, payload)
	if err != nil {
		return err
	}

	return s.sendIP(s.TCP.Get(idx).RemoteIP, ip.ProtoTCP, seg)
}

func (s *Stack) TCPClose(idx int) error {
	seg, err := s.TCP.Close(idx, s.OurIP)
	if err != nil {
		return err
	}

	return s.sendIP(s.TCP.Get(idx).RemoteIP, ip.ProtoTCP, seg)
}

// TCPPoll drains queued frames and returns (and clears) any bytes the
// connection has received so far.
func (s *Stack) TCPPoll(idx int) ([]byte, bool) {
	s.ProcessAll()

	c := s.TCP.Get(idx)
	if len(c.Recv) == 0 {
		return nil, false
	}

	data := c.Recv
	c.Recv = nil

	return data, true
}

func (s *Stack) TCPState(idx int) tcp.State {
	return s.TCP.Get(idx).State
}
