// Package arp implements the ARP cache and packet handling of §4.8: a
// 32-entry (ip, mac) table learned passively from any observed packet,
// request synthesis, and reply synthesis for requests targeting our IP.
package arp

import (
	"encoding/binary"
	"errors"

	"github.com/hobbyos-go/kernelcore/internal/net/wire"
)

const (
	CacheSize = 32

	HTypeEthernet = 1
	PTypeIPv4     = 0x0800
	HLen          = wire.MACLen
	PLen          = 4

	OpRequest = 1
	OpReply   = 2

	PacketLen = 28
)

var ErrCacheFull = errors.New("arp: cache full")

type entry struct {
	ip    wire.IPv4Addr
	mac   wire.MAC
	valid bool
}

// Cache is the fixed 32-entry ARP table (§3 "Network tables").
type Cache struct {
	entries [CacheSize]entry
}

// Learn records (ip, mac), overwriting any existing entry for ip or
// filling the first free slot (P-N3).
func (c *Cache) Learn(ip wire.IPv4Addr, mac wire.MAC) error {
	freeIdx := -1

	for i := range c.entries {
		e := &c.entries[i]
		if e.valid && e.ip == ip {
			e.mac = mac
			return nil
		}

		if !e.valid && freeIdx == -1 {
			freeIdx = i
		}
	}

	if freeIdx == -1 {
		return ErrCacheFull
	}

	c.entries[freeIdx] = entry{ip: ip, mac: mac, valid: true}

	return nil
}

// Lookup returns the MAC learned for ip, if any.
func (c *Cache) Lookup(ip wire.IPv4Addr) (wire.MAC, bool) {
	for _, e := range c.entries {
		if e.valid && e.ip == ip {
			return e.mac, true
		}
	}

	return wire.MAC{}, false
}

// Packet is the 28-byte Ethernet ARP payload (RFC 826) for Ethernet/IPv4.
type Packet struct {
	Oper      uint16
	SenderMAC wire.MAC
	SenderIP  wire.IPv4Addr
	TargetMAC wire.MAC
	TargetIP  wire.IPv4Addr
}

func (p *Packet) Encode(buf []byte) {
	binary.BigEndian.PutUint16(buf[0:2], HTypeEthernet)
	binary.BigEndian.PutUint16(buf[2:4], PTypeIPv4)
	buf[4] = HLen
	buf[5] = PLen
	binary.BigEndian.PutUint16(buf[6:8], p.Oper)
	copy(buf[8:14], p.SenderMAC[:])
	copy(buf[14:18], p.SenderIP[:])
	copy(buf[18:24], p.TargetMAC[:])
	copy(buf[24:28], p.TargetIP[:])
}

func (p *Packet) Decode(buf []byte) {
	p.Oper = binary.BigEndian.Uint16(buf[6:8])
	copy(p.SenderMAC[:], buf[8:14])
	copy(p.SenderIP[:], buf[14:18])
	copy(p.TargetMAC[:], buf[18:24])
	copy(p.TargetIP[:], buf[24:28])
}

// BuildRequest constructs a broadcast ARP request for targetIP with a
// zero target MAC, per §4.8's arp_request.
func BuildRequest(ourMAC wire.MAC, ourIP, targetIP wire.IPv4Addr) []byte {
	buf := make([]byte, PacketLen)
	p := Packet{Oper: OpRequest, SenderMAC: ourMAC, SenderIP: ourIP, TargetIP: targetIP}
	p.Encode(buf)

	return buf
}

// ProcessPacket always learns (sender_ip, sender_mac); if the packet is
// a request targeting ourIP, it returns the reply frame payload to
// transmit, otherwise nil.
func ProcessPacket(cache *Cache, ourMAC wire.MAC, ourIP wire.IPv4Addr, payload []byte) ([]byte, error) {
	if len(payload) < PacketLen {
		return nil, errors.New("arp: packet too short")
	}

	var p Packet
	p.Decode(payload)

	if err := cache.Learn(p.SenderIP, p.SenderMAC); err != nil {
		return nil, err
	}

	if p.Oper != OpRequest || p.TargetIP != ourIP {
		return nil, nil
	}

	reply := Packet{
		Oper:      OpReply,
		SenderMAC: ourMAC,
		SenderIP:  ourIP,
		TargetMAC: p.SenderMAC,
		TargetIP:  p.SenderIP,
	}

	buf := make([]byte, PacketLen)
	reply.Encode(buf)

	return buf, nil
}
