//go:build !test

package main

import (
	"fmt"

	"github.com/hobbyos-go/kernelcore/internal/cliflag"
	"github.com/hobbyos-go/kernelcore/internal/net/arp"
	"github.com/hobbyos-go/kernelcore/internal/net/stack"
	"github.com/hobbyos-go/kernelcore/internal/net/wire"
	"github.com/hobbyos-go/kernelcore/internal/nettest"
)

// runNetdump drives the stack against a synthetic peer over an
// in-memory loopback pair (internal/nettest), injecting one ARP request
// per iteration and reporting whatever the stack sends back — useful
// for exercising the ARP/IP/ICMP/TCP/UDP wiring with no real NIC
// present, the same role a pcap replay tool plays against a live stack.
func runNetdump(args *cliflag.NetdumpArgs) error {
	cfg, err := loadConfig(args.Config)
	if err != nil {
		return err
	}

	ourMAC, err := parseMACForDump(cfg.Network.MAC)
	if err != nil {
		return err
	}

	ourIP, err := parseIPForDump(cfg.Network.IP)
	if err != nil {
		return err
	}

	netmask, _ := parseIPForDump(cfg.Network.Netmask)
	gateway, _ := parseIPForDump(cfg.Network.Gateway)

	ours, peer := nettest.NewPair()
	s := stack.New(ours, ourMAC, ourIP, netmask, gateway)

	peerMAC := wire.MAC{0x52, 0x54, 0x00, 0xAA, 0xBB, 0xCC}

	for i := 0; i < args.Count; i++ {
		peerIP := wire.IPv4Addr{10, 0, 2, byte(5 + i)}

		arpPacket := arp.BuildRequest(peerMAC, peerIP, ourIP)
		frame := make([]byte, wire.EthernetHeaderLen+len(arpPacket))

		hdr := wire.EthernetHeader{Dst: wire.Broadcast, Src: peerMAC, EtherType: wire.EtherTypeARP}
		hdr.Encode(frame[:wire.EthernetHeaderLen])
		copy(frame[wire.EthernetHeaderLen:], arpPacket)

		if err := peer.Send(frame); err != nil {
			return fmt.Errorf("inject packet %d: %w", i, err)
		}

		if _, err := s.ProcessOne(); err != nil {
			return fmt.Errorf("process packet %d: %w", i, err)
		}

		reply, ok, _ := peer.Recv()
		if ok {
			fmt.Printf("packet %d: peer %v -> reply %d bytes\n", i, peerIP, len(reply))
		} else {
			fmt.Printf("packet %d: peer %v -> no reply\n", i, peerIP)
		}
	}

	return nil
}

func parseMACForDump(s string) (wire.MAC, error) {
	var mac wire.MAC

	n, err := fmt.Sscanf(s, "%02x:%02x:%02x:%02x:%02x:%02x",
		&mac[0], &mac[1], &mac[2], &mac[3], &mac[4], &mac[5])
	if err != nil || n != 6 {
		return mac, fmt.Errorf("malformed mac %q", s)
	}

	return mac, nil
}

func parseIPForDump(s string) (wire.IPv4Addr, error) {
	var ip wire.IPv4Addr

	n, err := fmt.Sscanf(s, "%d.%d.%d.%d", &ip[0], &ip[1], &ip[2], &ip[3])
	if err != nil || n != 4 {
		return ip, fmt.Errorf("malformed ip %q", s)
	}

	return ip, nil
}
