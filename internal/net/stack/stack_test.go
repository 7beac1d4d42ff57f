package stack_test

import (
	"bytes"
	"testing"

	"github.com/hobbyos-go/kernelcore/internal/net/arp"
	"github.com/hobbyos-go/kernelcore/internal/net/icmp"
	"github.com/hobbyos-go/kernelcore/internal/net/ip"
	"github.com/hobbyos-go/kernelcore/internal/net/stack"
	"github.com/hobbyos-go/kernelcore/internal/net/wire"
	"github.com/hobbyos-go/kernelcore/internal/nettest"
)

func buildIPPacket(src, dst wire.IPv4Addr, protocol uint8, payload []byte) []byte {
	return ip.BuildPacket(src, dst, protocol, payload)
}

func extractICMPBody(t *testing.T, frame []byte) []byte {
	t.Helper()

	pkt := frame[wire.EthernetHeaderLen:]

	var h ip.Header
	if err := h.Decode(pkt); err != nil {
		t.Fatalf("Decode IP header: %v", err)
	}

	return pkt[ip.HeaderLen:h.TotalLength]
}

func TestARPRequestProducesReplyAndLearnsCache(t *testing.T) {
	t.Parallel()

	ours, peer := nettest.NewPair()

	ourMAC := wire.MAC{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	ourIP := wire.IPv4Addr{10, 0, 2, 15}

	s := stack.New(ours, ourMAC, ourIP, wire.IPv4Addr{255, 255, 255, 0}, wire.IPv4Addr{10, 0, 2, 2})

	senderMAC := wire.MAC{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	senderIP := wire.IPv4Addr{10, 0, 2, 5}

	req := arp.BuildRequest(senderMAC, senderIP, ourIP)
	frameIn := make([]byte, wire.EthernetHeaderLen+len(req))
	eth := wire.EthernetHeader{Dst: ourMAC, Src: senderMAC, EtherType: wire.EtherTypeARP}
	eth.Encode(frameIn)
	copy(frameIn[wire.EthernetHeaderLen:], req)

	if err := peer.Send(frameIn); err != nil {
		t.Fatalf("Send: %v", err)
	}

	ok, err := s.ProcessOne()
	if err != nil || !ok {
		t.Fatalf("ProcessOne: ok=%v err=%v", ok, err)
	}

	frameOut, ok, err := peer.Recv()
	if err != nil || !ok {
		t.Fatalf("expected a reply frame: ok=%v err=%v", ok, err)
	}

	var outEth wire.EthernetHeader
	outEth.Decode(frameOut)

	var p arp.Packet
	p.Decode(frameOut[wire.EthernetHeaderLen:])

	if p.Oper != arp.OpReply || outEth.Src != ourMAC || p.TargetIP != senderIP {
		t.Fatalf("unexpected ARP reply: eth=%+v packet=%+v", outEth, p)
	}

	if mac, ok := s.ARP.Lookup(senderIP); !ok || mac != senderMAC {
		t.Fatalf("ARP cache did not learn sender: mac=%v ok=%v", mac, ok)
	}
}

func TestICMPEchoRequestRoundTrip(t *testing.T) {
	t.Parallel()

	ours, peer := nettest.NewPair()

	ourMAC := wire.MAC{0x00, 0x11, 0x22, 0x33, 0x44, 0x55}
	ourIP := wire.IPv4Addr{10, 0, 2, 15}
	peerMAC := wire.MAC{0x52, 0x54, 0x00, 0x12, 0x34, 0x56}
	peerIP := wire.IPv4Addr{10, 0, 2, 5}

	s := stack.New(ours, ourMAC, ourIP, wire.IPv4Addr{255, 255, 255, 0}, wire.IPv4Addr{10, 0, 2, 2})
	if err := s.ARP.Learn(peerIP, peerMAC); err != nil {
		t.Fatalf("Learn: %v", err)
	}

	payload := make([]byte, 32)
	for i := range payload {
		payload[i] = byte(i)
	}

	echoReq := icmp.BuildEcho(icmp.TypeEchoRequest, 0x1234, 1, payload)
	injectIPFrame(t, peer, peerMAC, ourMAC, peerIP, ourIP, 1, echoReq)

	if ok, err := s.ProcessOne(); err != nil || !ok {
		t.Fatalf("ProcessOne: ok=%v err=%v", ok, err)
	}

	frameOut, ok, err := peer.Recv()
	if err != nil || !ok {
		t.Fatalf("expected an echo reply frame")
	}

	body := extractICMPBody(t, frameOut)

	if body[0] != icmp.TypeEchoReply {
		t.Fatalf("reply type = %d, want 0 (echo reply)", body[0])
	}

	if !bytes.Equal(body[icmp.HeaderLen:], payload) {
		t.Fatalf("reply payload mismatch")
	}
}

func injectIPFrame(t *testing.T, peer *nettest.Loopback, srcMAC, dstMAC wire.MAC, srcIP, dstIP wire.IPv4Addr, protocol uint8, body []byte) {
	t.Helper()

	pkt := buildIPPacket(srcIP, dstIP, protocol, body)
	frame := make([]byte, wire.EthernetHeaderLen+len(pkt))
	eth := wire.EthernetHeader{Dst: dstMAC, Src: srcMAC, EtherType: wire.EtherTypeIPv4}
	eth.Encode(frame)
	copy(frame[wire.EthernetHeaderLen:], pkt)

	if err := peer.Send(frame); err != nil {
		t.Fatalf("Send: %v", err)
	}
}
