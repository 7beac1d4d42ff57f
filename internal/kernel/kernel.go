// Package kernel sequences the bring-up order every other package in
// this module only provides a stage for: IDT/PIC, heap, paging, PCI,
// ATA, partitions, block devices, VFS+SimpleFS, graphics+WM, and the
// e1000/net stack, each stage depending only on the ones before it.
// Grounded on vmm.New's staged construction (kvm.CreateVM -> memory.New
// -> machine.New -> device registration), the one place the teacher
// shows an ordered, fail-fast multi-stage bring-up with a returned error
// at each step rather than duplicating the sequence at every call site.
package kernel

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/hobbyos-go/kernelcore/internal/ata"
	"github.com/hobbyos-go/kernelcore/internal/blockdev"
	"github.com/hobbyos-go/kernelcore/internal/bootcfg"
	"github.com/hobbyos-go/kernelcore/internal/cursor"
	"github.com/hobbyos-go/kernelcore/internal/e1000"
	"github.com/hobbyos-go/kernelcore/internal/fb"
	"github.com/hobbyos-go/kernelcore/internal/heap"
	"github.com/hobbyos-go/kernelcore/internal/hostio"
	"github.com/hobbyos-go/kernelcore/internal/interrupts"
	"github.com/hobbyos-go/kernelcore/internal/ioport"
	"github.com/hobbyos-go/kernelcore/internal/net/stack"
	"github.com/hobbyos-go/kernelcore/internal/net/wire"
	"github.com/hobbyos-go/kernelcore/internal/paging"
	"github.com/hobbyos-go/kernelcore/internal/partition"
	"github.com/hobbyos-go/kernelcore/internal/pci"
	"github.com/hobbyos-go/kernelcore/internal/simplefs"
	"github.com/hobbyos-go/kernelcore/internal/tmpfs"
	"github.com/hobbyos-go/kernelcore/internal/vfs"
	"github.com/hobbyos-go/kernelcore/internal/wm"
)

const heapSize = 32 << 20 // §2 stage 2: "32 MiB region"

var (
	ErrBadMAC = errors.New("kernel: malformed MAC address")
	ErrBadIP  = errors.New("kernel: malformed IPv4 address")
)

// Hardware bundles every host-side port/MMIO/config-space backend a
// Boot run needs. NICMMIO may be nil, which skips stage 10 entirely
// (the e1000/net stack is optional the way a headless VM has no NIC).
type Hardware struct {
	IRQPort   interrupts.PortIO
	Primary   ata.PortIO
	Secondary ata.PortIO
	PCIConfig pci.ConfigSpace
	PCIWriter pci.Writer
	NICMMIO   e1000.MMIO
	EEPROMMAC [3]uint16
}

// Kernel is every subsystem constructed by a completed Boot call.
type Kernel struct {
	IDT        *interrupts.Table
	Heap       *heap.Heap
	Pages      *paging.Tables
	PCI        *pci.Table
	ATA        [2]*ata.Channel
	ATAIRQFired [2]bool
	Partitions []partition.Descriptor
	Blocks     map[string]blockdev.Device

	VFS  *vfs.VFS
	FS   *simplefs.FS
	Tmp  *tmpfs.FS
	TmpVFS *vfs.VFS

	FB     *fb.Framebuffer
	Cursor *cursor.Cursor
	WM     *wm.Manager

	NIC *e1000.Device
	Net *stack.Stack

	Ports *ioport.Bus
}

// picPortDevice adapts an interrupts.PortIO (the narrow byte-wide
// interface the IDT/remap code needs) to ioport.Device (the generic
// address-decoded bus), so the PIC's command/data ports show up on
// Kernel.Ports the way every other byte-wide peripheral does.
type picPortDevice struct {
	pio    interrupts.PortIO
	lo, hi uint16
}

func (p picPortDevice) In(port uint16) byte     { return p.pio.In8(port) }
func (p picPortDevice) Out(port uint16, v byte) { p.pio.Out8(port, v) }
func (p picPortDevice) Ports() (uint16, uint16) { return p.lo, p.hi }

// Boot sequences stages 1-10 of the system overview in order. Each
// stage's error is wrapped with the stage name and returned immediately;
// nothing after a failed stage runs.
func Boot(cfg *bootcfg.Config, hw Hardware) (*Kernel, error) {
	k := &Kernel{Blocks: map[string]blockdev.Device{}}

	// Stage 1: IDT/PIC.
	k.IDT = interrupts.NewTable(hw.IRQPort)
	if err := k.IDT.Install(); err != nil {
		return nil, fmt.Errorf("stage 1 (idt/pic): %w", err)
	}

	k.IDT.RemapPIC(0x20, 0x28)
	k.IDT.MaskAll()

	if hw.IRQPort != nil {
		k.Ports = &ioport.Bus{}
		_ = k.Ports.Register(picPortDevice{pio: hw.IRQPort, lo: 0x20, hi: 0x21})
		_ = k.Ports.Register(picPortDevice{pio: hw.IRQPort, lo: 0xA0, hi: 0xA1})
	}

	// Stage 2: heap.
	region, err := hostio.NewRegion(heapSize)
	if err != nil {
		return nil, fmt.Errorf("stage 2 (heap): %w", err)
	}

	k.Heap = heap.New(region.Buf)

	// Stage 3: paging.
	k.Pages = paging.BuildIdentityMap(k.Heap, cfg.TotalPhysicalMemory)

	// Stage 4: PCI enumeration.
	if hw.PCIConfig != nil {
		tbl, err := pci.Enumerate(hw.PCIConfig)
		if err != nil {
			return nil, fmt.Errorf("stage 4 (pci): %w", err)
		}

		k.PCI = tbl
	}

	// Stage 5: ATA.
	if hw.Primary != nil {
		k.ATA[0] = ata.NewChannel(ata.Ports{IOBase: 0x1F0, ControlBase: 0x3F6, IRQ: 14}, hw.Primary)
		k.IDT.RegisterATA(14, k.ATA[0], &k.ATAIRQFired[0])
	}

	if hw.Secondary != nil {
		k.ATA[1] = ata.NewChannel(ata.Ports{IOBase: 0x170, ControlBase: 0x376, IRQ: 15}, hw.Secondary)
		k.IDT.RegisterATA(15, k.ATA[1], &k.ATAIRQFired[1])
	}

	// Stage 6: partitions, read from the primary master's MBR.
	if k.ATA[0] != nil {
		mbr := make([]byte, blockdev.BlockSize)
		if err := k.ATA[0].ReadSectors(0, 0, 1, mbr); err == nil {
			descs, err := partition.Parse(0, mbr)
			if err != nil {
				return nil, fmt.Errorf("stage 6 (partitions): %w", err)
			}

			k.Partitions = descs
		}
	}

	// Stage 7: block devices.
	if k.ATA[0] != nil {
		k.Blocks["disk0"] = &blockdev.ATABlockDevice{Channel: k.ATA[0], Drive: 0}
	}

	for i, d := range k.Partitions {
		name := fmt.Sprintf("disk0p%d", i+1)
		k.Blocks[name] = &blockdev.PartitionBlockDevice{Inner: k.Blocks["disk0"], Partition: d}
	}

	// Stage 8: VFS + SimpleFS, mounting the first partition as root.
	if len(k.Partitions) > 0 {
		root := k.Blocks["disk0p1"]

		fs, err := simplefs.Mount(root)
		if err != nil {
			return nil, fmt.Errorf("stage 8 (vfs/simplefs): %w", err)
		}

		k.FS = fs
		k.VFS = vfs.New()
		k.VFS.SetRoot(fs.Root())
	}

	k.Tmp = tmpfs.New()
	k.TmpVFS = vfs.New()
	k.TmpVFS.SetRoot(k.Tmp.Root())

	// Stage 9: graphics + window manager.
	fbRegion, err := hostio.NewRegion(cfg.Framebuffer.ScreenHeight * cfg.Framebuffer.Pitch)
	if err != nil {
		return nil, fmt.Errorf("stage 9 (graphics): %w", err)
	}

	k.FB = &fb.Framebuffer{
		Pixels: fbRegion.Buf,
		Width:  cfg.Framebuffer.ScreenWidth,
		Height: cfg.Framebuffer.ScreenHeight,
		Pitch:  cfg.Framebuffer.Pitch,
	}
	k.FB.Clear(0)
	k.Cursor = cursor.New(k.FB)
	k.WM = wm.NewManager(k.FB)

	for _, win := range cfg.Windows {
		if _, err := k.WM.CreateWindow(win.X, win.Y, win.W, win.H, win.Title, true, true); err != nil {
			return nil, fmt.Errorf("stage 9 (graphics): create window %q: %w", win.Title, err)
		}
	}

	// Stage 10: e1000 + net stack, optional.
	if hw.NICMMIO != nil {
		dev, err := e1000.Init(hw.NICMMIO, hw.EEPROMMAC)
		if err != nil {
			return nil, fmt.Errorf("stage 10 (e1000): %w", err)
		}

		k.NIC = dev

		if k.PCI != nil {
			if pd, ok := e1000.FindPCIDevice(k.PCI); ok && hw.PCIWriter != nil {
				pci.EnableBusMastering(hw.PCIConfig, hw.PCIWriter, pd)
				pci.EnableMemorySpace(hw.PCIConfig, hw.PCIWriter, pd)
			}
		}

		ourIP, err := parseIPv4(cfg.Network.IP)
		if err != nil {
			return nil, fmt.Errorf("stage 10 (net): %w", err)
		}

		netmask, err := parseIPv4(cfg.Network.Netmask)
		if err != nil {
			return nil, fmt.Errorf("stage 10 (net): %w", err)
		}

		gateway, err := parseIPv4(cfg.Network.Gateway)
		if err != nil {
			return nil, fmt.Errorf("stage 10 (net): %w", err)
		}

		ourMAC, err := parseMAC(cfg.Network.MAC)
		if err != nil {
			return nil, fmt.Errorf("stage 10 (net): %w", err)
		}

		k.Net = stack.New(dev, ourMAC, ourIP, netmask, gateway)
	}

	return k, nil
}

func parseMAC(s string) (wire.MAC, error) {
	var mac wire.MAC

	parts := strings.Split(s, ":")
	if len(parts) != 6 {
		return mac, ErrBadMAC
	}

	for i, p := range parts {
		v, err := strconv.ParseUint(p, 16, 8)
		if err != nil {
			return mac, ErrBadMAC
		}

		mac[i] = byte(v)
	}

	return mac, nil
}

func parseIPv4(s string) (wire.IPv4Addr, error) {
	var ip wire.IPv4Addr

	parts := strings.Split(s, ".")
	if len(parts) != 4 {
		return ip, ErrBadIP
	}

	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return ip, ErrBadIP
		}

		ip[i] = byte(v)
	}

	return ip, nil
}
