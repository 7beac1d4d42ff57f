// Package interrupts models the IDT/PIC dispatch fabric described in
// the interrupt dispatch component: 256 gate entries, legacy 8259 remap,
// and the EOI discipline that every IRQ handler must follow.
package interrupts

import (
	"errors"
	"fmt"
	"log"
)

const (
	numGates = 256

	// GateKernelCode is the code-segment selector every gate is installed
	// with; the boot contract defines selector 0x08 as kernel code.
	GateKernelCode = 0x08

	// typeAttr encodes "64-bit interrupt gate, present, ring 0": type 0xE,
	// DPL 0, present bit set.
	typeAttr = 0x8E

	// IRQ vector bases after remap in the default configuration.
	masterBase = 0x20
	followerBase = 0x28

	// EOI is the End-Of-Interrupt byte the 8259 expects on its command port.
	EOI = 0x20
)

var ErrNoHandler = errors.New("interrupts: no handler installed for vector")

// Gate is one 64-bit interrupt-gate entry. Real field widths would be
// packed into 16 bytes on the wire; we keep them logically separate here
// since nothing outside Install/SetGate reads the packed form.
type Gate struct {
	Handler  uint64
	Selector uint16
	IST      uint8
	TypeAttr uint8
	Present  bool
}

// Ports is the legacy 8259 port pair for one PIC.
type Ports struct {
	Command uint16
	Data    uint16
}

var (
	masterPorts   = Ports{Command: 0x20, Data: 0x21}
	followerPorts = Ports{Command: 0xA0, Data: 0xA1}
)

// PortIO abstracts the byte-wide port reads/writes the PIC remap needs.
// A real kernel backs this with IN/OUT instructions; tests back it with
// an in-memory fake.
type PortIO interface {
	Out8(port uint16, v uint8)
	In8(port uint16) uint8
}

// Handler is a vector's service routine. It must perform EOI itself
// (via Table.EOIMaster/EOIChained) before returning; Dispatch does not do it
// implicitly, mirroring how each named stub in the source ends with its
// own acknowledgement.
type Handler func()

// Table is the installed IDT plus the dispatch map layered over it.
type Table struct {
	gates    [numGates]Gate
	handlers [numGates]Handler
	loaded   bool
	port     PortIO

	masterOffset   uint8
	followerOffset uint8
	enabled        bool
}

// NewTable allocates an IDT bound to the given port-IO backend.
func NewTable(port PortIO) *Table {
	return &Table{port: port, masterOffset: masterBase, followerOffset: followerBase}
}

// Install populates all 256 entries with numbered default stubs and loads
// the table. Must run before interrupts are enabled.
func (t *Table) Install() error {
	for v := 0; v < numGates; v++ {
		t.gates[v] = Gate{
			Handler:  0,
			Selector: GateKernelCode,
			IST:      0,
			TypeAttr: typeAttr,
			Present:  true,
		}
		t.handlers[v] = t.defaultHandler(uint8(v))
	}

	t.registerFaultHandlers()
	t.loaded = true

	return nil
}

// SetGate atomically replaces the handler for vector n. Atomic here means
// "the old handler always runs to completion before the new one is ever
// observed" — on a single core with interrupts disabled during the swap
// that is automatic, so SetGate disables/restores the interrupt flag
// around the write.
func (t *Table) SetGate(n uint8, h Handler) {
	wasEnabled := t.port != nil && t.enabled
	if wasEnabled {
		t.Disable()
	}

	t.gates[n].Present = true
	t.handlers[n] = h

	if wasEnabled {
		t.Enable()
	}
}

// Dispatch is called by the trap entry point for vector v. It only runs
// the registered handler; follower-before-master EOI ordering lives in
// EOIChained, which each IRQ 8-15 handler calls itself.
func (t *Table) Dispatch(v uint8) error {
	h := t.handlers[v]
	if h == nil {
		return fmt.Errorf("%w: %#x", ErrNoHandler, v)
	}

	h()

	return nil
}

// defaultHandler logs and halts for CPU exceptions (vectors < 0x20); for
// IRQ vectors it performs EOI and otherwise does nothing, per the "default
// handler" contract.
func (t *Table) defaultHandler(v uint8) Handler {
	return func() {
		switch {
		case v < 0x20:
			log.Fatalf("interrupts: unhandled CPU exception %#x, halting", v)
		case v >= t.masterOffset && v < t.masterOffset+8:
			t.EOIMaster()
		case v >= t.followerOffset && v < t.followerOffset+8:
			t.EOIChained()
		}
	}
}

func (t *Table) registerFaultHandlers() {
	// Exceptions are left as the generic log-and-halt default stub; a
	// kernel wanting per-exception diagnostics overrides individual
	// vectors with SetGate.
}

// EOIMaster acknowledges the master 8259 only. Use for IRQ 0-7.
func (t *Table) EOIMaster() {
	t.port.Out8(masterPorts.Command, EOI)
}

// EOIChained acknowledges the follower PIC before the master. Use for
// IRQ 8-15: omitting the follower EOI wedges every later slave interrupt.
func (t *Table) EOIChained() {
	t.port.Out8(followerPorts.Command, EOI)
	t.port.Out8(masterPorts.Command, EOI)
}

// RemapPIC reprograms both 8259s to the given vector offsets while
// preserving whichever IRQs were already masked, so remapping never
// changes which lines are enabled.
func (t *Table) RemapPIC(offsetMaster, offsetFollower uint8) {
	masterMask := t.port.In8(masterPorts.Data)
	followerMask := t.port.In8(followerPorts.Data)

	const (
		icw1Init     = 0x11
		icw4Mode8086 = 0x01
	)

	t.port.Out8(masterPorts.Command, icw1Init)
	t.port.Out8(followerPorts.Command, icw1Init)

	t.port.Out8(masterPorts.Data, offsetMaster)
	t.port.Out8(followerPorts.Data, offsetFollower)

	t.port.Out8(masterPorts.Data, 0x04) // tell master about the follower on IRQ2
	t.port.Out8(followerPorts.Data, 0x02) // follower's cascade identity

	t.port.Out8(masterPorts.Data, icw4Mode8086)
	t.port.Out8(followerPorts.Data, icw4Mode8086)

	t.port.Out8(masterPorts.Data, masterMask)
	t.port.Out8(followerPorts.Data, followerMask)

	t.masterOffset = offsetMaster
	t.followerOffset = offsetFollower
}

// MaskAll masks every IRQ line on both PICs.
func (t *Table) MaskAll() {
	t.port.Out8(masterPorts.Data, 0xFF)
	t.port.Out8(followerPorts.Data, 0xFF)
}

// VectorFor returns the effective vector for IRQ k after the last remap,
// per P-I1: (k < 8 ? master : follower) + (k mod 8).
func (t *Table) VectorFor(irq uint8) uint8 {
	if irq < 8 {
		return t.masterOffset + irq
	}

	return t.followerOffset + (irq % 8)
}

// Enable/Disable shadow the CPU interrupt flag; real hardware would read
// RFLAGS.IF instead of the enabled field.
func (t *Table) Enable()  { t.enabled = true }
func (t *Table) Disable() { t.enabled = false }

// Entries exposes the installed gates for conformance testing (P-I1).
func (t *Table) Entries() [numGates]Gate { return t.gates }
