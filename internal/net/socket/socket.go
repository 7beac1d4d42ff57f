// Package socket is the thin multiplexer of §4.8: up to 32 user socket
// ids mapping to (type, underlying TCP/UDP table index), plus the
// http_get convenience built on top of a STREAM socket.
package socket

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/hobbyos-go/kernelcore/internal/net/stack"
	"github.com/hobbyos-go/kernelcore/internal/net/tcp"
	"github.com/hobbyos-go/kernelcore/internal/net/wire"
)

const TableSize = 32

type Type int

const (
	TypeStream Type = iota
	TypeDgram
)

var (
	ErrTableFull = errors.New("socket: table full")
	ErrNotFound  = errors.New("socket: invalid id")
)

type entry struct {
	used  bool
	typ   Type
	under int
}

// Table is the fixed 32-entry id-to-underlying-connection map.
type Table struct {
	entries [TableSize]entry
}

func (t *Table) alloc(typ Type, under int) (int, error) {
	for i := range t.entries {
		if !t.entries[i].used {
			t.entries[i] = entry{used: true, typ: typ, under: under}
			return i, nil
		}
	}

	return -1, ErrTableFull
}

func (t *Table) Close(id int) error {
	if id < 0 || id >= TableSize || !t.entries[id].used {
		return ErrNotFound
	}

	t.entries[id] = entry{}

	return nil
}

func (t *Table) Underlying(id int) (Type, int, error) {
	if id < 0 || id >= TableSize || !t.entries[id].used {
		return 0, 0, ErrNotFound
	}

	e := t.entries[id]

	return e.typ, e.under, nil
}

// OpenStream connects a TCP socket through s and registers it.
func OpenStream(t *Table, s *stack.Stack, remoteIP wire.IPv4Addr, remotePort uint16) (int, error) {
	under, err := s.TCPConnect(remoteIP, remotePort)
	if err != nil {
		return -1, err
	}

	return t.alloc(TypeStream, under)
}

// HTTPGet parses a dotted-quad host, opens a STREAM socket, sends a
// minimal HTTP/1.0 request, and drains the reply into buf.
func HTTPGet(t *Table, s *stack.Stack, host string, port uint16, path string, buf []byte) (int, error) {
	ip, err := parseDottedQuad(host)
	if err != nil {
		return 0, err
	}

	id, err := OpenStream(t, s, ip, port)
	if err != nil {
		return 0, err
	}
	defer t.Close(id)

	_, under, err := t.Underlying(id)
	if err != nil {
		return 0, err
	}

	req := fmt.Sprintf("GET %s HTTP/1.0\r\nHost: %s\r\nConnection: close\r\n\r\n", path, host)
	if err := s.TCPSend(under, []byte(req)); err != nil {
		return 0, err
	}

	var reply bytes.Buffer

	for {
		chunk, ok := s.TCPPoll(under)
		if !ok {
			break
		}

		reply.Write(chunk)

		if s.TCPState(under) == tcp.StateClosed || s.TCPState(under) == tcp.StateCloseWait {
			break
		}
	}

	n := copy(buf, reply.Bytes())

	return n, nil
}

func parseDottedQuad(host string) (wire.IPv4Addr, error) {
	var a wire.IPv4Addr
	var parts [4]int
	idx := 0
	cur := 0
	started := false

	for i := 0; i <= len(host); i++ {
		if i == len(host) || host[i] == '.' {
			if !started || idx > 3 {
				return a, errors.New("socket: invalid dotted-quad address")
			}

			parts[idx] = cur
			idx++
			cur = 0
			started = false

			continue
		}

		c := host[i]
		if c < '0' || c > '9' {
			return a, errors.New("socket: invalid dotted-quad address")
		}

		cur = cur*10 + int(c-'0')
		started = true
	}

	if idx != 4 {
		return a, errors.New("socket: invalid dotted-quad address")
	}

	for i := 0; i < 4; i++ {
		if parts[i] < 0 || parts[i] > 255 {
			return a, errors.New("socket: invalid dotted-quad address")
		}

		a[i] = byte(parts[i])
	}

	return a, nil
}
