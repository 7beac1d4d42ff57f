// Package nettest provides an in-memory loopback pair implementing
// stack.Device, standing in for a real NIC in tests the way the
// original hardware-simulation approach stands in for MMIO elsewhere in
// this module.
package nettest

// Loopback is one end of a connected pair: frames sent on one end
// appear in the other's receive queue.
type Loopback struct {
	outbox *[][]byte
	inbox  *[][]byte
}

// NewPair returns two Loopback ends wired to each other.
func NewPair() (*Loopback, *Loopback) {
	var a, b [][]byte

	return &Loopback{outbox: &a, inbox: &b}, &Loopback{outbox: &b, inbox: &a}
}

func (l *Loopback) Send(frame []byte) error {
	cp := append([]byte(nil), frame...)
	*l.outbox = append(*l.outbox, cp)

	return nil
}

func (l *Loopback) Recv() ([]byte, bool, error) {
	if len(*l.inbox) == 0 {
		return nil, false, nil
	}

	frame := (*l.inbox)[0]
	*l.inbox = (*l.inbox)[1:]

	return frame, true, nil
}
