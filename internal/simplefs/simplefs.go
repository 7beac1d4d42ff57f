// Package simplefs implements the on-disk filesystem of §4.6: a
// superblock, a flat inode table (one inode per 512-byte block, indexed
// directly by inode number), a fixed-size root directory, and
// direct+indirect data-block addressing. Grounded on
// original_source/src/impl/x86_64/fs/simplefs.c, adapted to fix two bugs
// in that source rather than reproduce them (recorded in DESIGN.md):
// the flexible-array-member directory entry (which made sizeof() too
// small and let writes overlap adjacent entries) is replaced with a
// fixed-capacity name field, and file data blocks are allocated from a
// data area that starts after the root directory's own blocks instead
// of aliasing inode_number directly onto first_data_block.
package simplefs

import (
	"encoding/binary"
	"errors"

	"github.com/hobbyos-go/kernelcore/internal/blockdev"
	"github.com/hobbyos-go/kernelcore/internal/vfs"
)

const (
	BlockSize = blockdev.BlockSize

	Magic = 0x53465321 // "SFS!"

	// InodeCount is the fixed size of the inode table; each inode
	// occupies exactly one block, so the table spans InodeCount blocks.
	InodeCount = 256

	// RootDirEntries bounds the root directory (the only directory this
	// filesystem supports, per §4.6's flat namespace).
	RootDirEntries = 64

	dirEntrySize  = 32
	dirNameCap    = 24
	rootDirBlocks = (RootDirEntries*dirEntrySize + BlockSize - 1) / BlockSize

	directBlockCount  = 12
	indirectEntries   = BlockSize / 4
	superblockBlock   = 0
	inodeTableStart   = 1

	// emptyDirSlot is the reserved inode number marking an unoccupied
	// root directory entry (§4.6 "format": every slot starts at this
	// value rather than 0, which is itself a valid inode number).
	emptyDirSlot uint32 = 0xFFFFFFFF

	fileTypeRegular = 1
	fileTypeDir     = 2
)

// MaxFileSize is the largest file representable with 12 direct blocks
// plus one singly-indirect block (the file-size-limit open question,
// resolved in favor of full direct+indirect addressing).
const MaxFileSize = (directBlockCount + indirectEntries) * BlockSize

var (
	ErrBadMagic      = errors.New("simplefs: bad superblock magic")
	ErrNoFreeInode   = errors.New("simplefs: inode table full")
	ErrNoFreeBlock   = errors.New("simplefs: data area exhausted")
	ErrNotFound      = errors.New("simplefs: file not found")
	ErrExists        = errors.New("simplefs: file exists")
	ErrDirFull       = errors.New("simplefs: root directory full")
	ErrTooLarge      = errors.New("simplefs: file exceeds maximum size")
	ErrNotRegular    = errors.New("simplefs: not a regular file")
)

// Superblock is the first block of the volume.
type Superblock struct {
	Magic           uint32
	TotalBlocks     uint32
	InodeCount      uint32
	InodeTableStart uint32
	FirstDataBlock  uint32 // root directory start
	DataAreaStart   uint32
	NextFreeBlock   uint32
	FreeInodeCount  uint32 // I-F3/P-F2: decremented by create_file, incremented by delete_file
}

func (s *Superblock) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], s.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], s.TotalBlocks)
	binary.LittleEndian.PutUint32(buf[8:12], s.InodeCount)
	binary.LittleEndian.PutUint32(buf[12:16], s.InodeTableStart)
	binary.LittleEndian.PutUint32(buf[16:20], s.FirstDataBlock)
	binary.LittleEndian.PutUint32(buf[20:24], s.DataAreaStart)
	binary.LittleEndian.PutUint32(buf[24:28], s.NextFreeBlock)
	binary.LittleEndian.PutUint32(buf[28:32], s.FreeInodeCount)
}

func (s *Superblock) decode(buf []byte) {
	s.Magic = binary.LittleEndian.Uint32(buf[0:4])
	s.TotalBlocks = binary.LittleEndian.Uint32(buf[4:8])
	s.InodeCount = binary.LittleEndian.Uint32(buf[8:12])
	s.InodeTableStart = binary.LittleEndian.Uint32(buf[12:16])
	s.FirstDataBlock = binary.LittleEndian.Uint32(buf[16:20])
	s.DataAreaStart = binary.LittleEndian.Uint32(buf[20:24])
	s.NextFreeBlock = binary.LittleEndian.Uint32(buf[24:28])
	s.FreeInodeCount = binary.LittleEndian.Uint32(buf[28:32])
}

// Inode is the fixed-layout record stored one-per-block in the inode
// table.
type Inode struct {
	FileSize   uint32
	Mode       uint16
	LinkCount  uint16
	Direct     [directBlockCount]uint32
	Indirect   uint32
	CTime      uint32
	MTime      uint32
	ATime      uint32
}

func (in *Inode) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], in.FileSize)
	binary.LittleEndian.PutUint16(buf[4:6], in.Mode)
	binary.LittleEndian.PutUint16(buf[6:8], in.LinkCount)

	off := 8
	for i := 0; i < directBlockCount; i++ {
		binary.LittleEndian.PutUint32(buf[off:off+4], in.Direct[i])
		off += 4
	}

	binary.LittleEndian.PutUint32(buf[off:off+4], in.Indirect)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], in.CTime)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], in.MTime)
	off += 4
	binary.LittleEndian.PutUint32(buf[off:off+4], in.ATime)
}

func (in *Inode) decode(buf []byte) {
	in.FileSize = binary.LittleEndian.Uint32(buf[0:4])
	in.Mode = binary.LittleEndian.Uint16(buf[4:6])
	in.LinkCount = binary.LittleEndian.Uint16(buf[6:8])

	off := 8
	for i := 0; i < directBlockCount; i++ {
		in.Direct[i] = binary.LittleEndian.Uint32(buf[off : off+4])
		off += 4
	}

	in.Indirect = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	in.CTime = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	in.MTime = binary.LittleEndian.Uint32(buf[off : off+4])
	off += 4
	in.ATime = binary.LittleEndian.Uint32(buf[off : off+4])
}

func (in *Inode) used() bool { return in.LinkCount > 0 }

// dirEntry is one fixed-size slot of the root directory.
type dirEntry struct {
	InodeNumber uint32
	FileType    uint8
	NameLength  uint8
	Name        [dirNameCap]byte
}

func (e *dirEntry) encode(buf []byte) {
	binary.LittleEndian.PutUint32(buf[0:4], e.InodeNumber)
	buf[4] = e.FileType
	buf[5] = e.NameLength
	copy(buf[8:8+dirNameCap], e.Name[:])
}

func (e *dirEntry) decode(buf []byte) {
	e.InodeNumber = binary.LittleEndian.Uint32(buf[0:4])
	e.FileType = buf[4]
	e.NameLength = buf[5]
	copy(e.Name[:], buf[8:8+dirNameCap])
}

func (e *dirEntry) free() bool { return e.InodeNumber == emptyDirSlot }

func (e *dirEntry) name() string { return string(e.Name[:e.NameLength]) }

// FS is a mounted simplefs volume over a block device.
type FS struct {
	dev blockdev.Device
	sb  Superblock
}

func (fs *FS) Name() string { return "simplefs" }

// Superblock returns the mounted volume's superblock, for callers
// (status reporting, tests) that need to inspect on-disk bookkeeping
// like FreeInodeCount without reaching into FS internals.
func (fs *FS) Superblock() Superblock { return fs.sb }

// Format writes a fresh superblock, zeroes the inode table, and writes
// an empty root directory (§4.6 "format").
func Format(dev blockdev.Device, totalBlocks uint32) (*FS, error) {
	sb := Superblock{
		Magic:           Magic,
		TotalBlocks:     totalBlocks,
		InodeCount:      InodeCount,
		InodeTableStart: inodeTableStart,
		FirstDataBlock:  inodeTableStart + InodeCount,
		DataAreaStart:   inodeTableStart + InodeCount + rootDirBlocks,
		NextFreeBlock:   inodeTableStart + InodeCount + rootDirBlocks,
		FreeInodeCount:  InodeCount,
	}

	buf := make([]byte, BlockSize)
	sb.encode(buf)

	if err := dev.WriteBlock(superblockBlock, buf); err != nil {
		return nil, err
	}

	zero := make([]byte, BlockSize)
	for b := sb.InodeTableStart; b < sb.InodeTableStart+sb.InodeCount; b++ {
		if err := dev.WriteBlock(b, zero); err != nil {
			return nil, err
		}
	}

	// inode 0 is reserved (root directory's inode); mark it used so the
	// allocator never hands it out.
	root := Inode{Mode: fileTypeDir, LinkCount: 1}
	rb := make([]byte, BlockSize)
	root.encode(rb)

	if err := dev.WriteBlock(sb.InodeTableStart, rb); err != nil {
		return nil, err
	}

	emptyDir := make([]byte, BlockSize)
	perBlock := BlockSize / dirEntrySize
	for slot := 0; slot < perBlock; slot++ {
		e := dirEntry{InodeNumber: emptyDirSlot}
		e.encode(emptyDir[slot*dirEntrySize:])
	}

	for b := sb.FirstDataBlock; b < sb.FirstDataBlock+rootDirBlocks; b++ {
		if err := dev.WriteBlock(b, emptyDir); err != nil {
			return nil, err
		}
	}

	return &FS{dev: dev, sb: sb}, nil
}

// Mount reads an existing superblock (§4.6 "mount").
func Mount(dev blockdev.Device) (*FS, error) {
	buf := make([]byte, BlockSize)
	if err := dev.ReadBlock(superblockBlock, buf); err != nil {
		return nil, err
	}

	var sb Superblock
	sb.decode(buf)

	if sb.Magic != Magic {
		return nil, ErrBadMagic
	}

	return &FS{dev: dev, sb: sb}, nil
}

func (fs *FS) writeSuperblock() error {
	buf := make([]byte, BlockSize)
	fs.sb.encode(buf)

	return fs.dev.WriteBlock(superblockBlock, buf)
}

func (fs *FS) readInode(n uint32) (Inode, error) {
	buf := make([]byte, BlockSize)
	if err := fs.dev.ReadBlock(fs.sb.InodeTableStart+n, buf); err != nil {
		return Inode{}, err
	}

	var in Inode
	in.decode(buf)

	return in, nil
}

func (fs *FS) writeInode(n uint32, in *Inode) error {
	buf := make([]byte, BlockSize)
	in.encode(buf)

	return fs.dev.WriteBlock(fs.sb.InodeTableStart+n, buf)
}

func (fs *FS) allocInode() (uint32, *Inode, error) {
	for n := uint32(1); n < fs.sb.InodeCount; n++ {
		in, err := fs.readInode(n)
		if err != nil {
			return 0, nil, err
		}

		if !in.used() {
			return n, &in, nil
		}
	}

	return 0, nil, ErrNoFreeInode
}

// allocBlock is a simple bump allocator over the data area; freed blocks
// are not reused (no free list), matching the bring-up scope of §4.6.
func (fs *FS) allocBlock() (uint32, error) {
	if fs.sb.NextFreeBlock >= fs.sb.TotalBlocks {
		return 0, ErrNoFreeBlock
	}

	b := fs.sb.NextFreeBlock
	fs.sb.NextFreeBlock++

	if err := fs.writeSuperblock(); err != nil {
		return 0, err
	}

	return b, nil
}

func (fs *FS) readDirBlock(index uint32, buf []byte) error {
	return fs.dev.ReadBlock(fs.sb.FirstDataBlock+index, buf)
}

func (fs *FS) writeDirBlock(index uint32, buf []byte) error {
	return fs.dev.WriteBlock(fs.sb.FirstDataBlock+index, buf)
}

// forEachDirSlot scans the root directory's fixed RootDirEntries slots,
// calling fn with the slot's block buffer, the byte offset of the entry
// within it, and the decoded entry. Stops early if fn returns true.
func (fs *FS) forEachDirSlot(fn func(blockBuf []byte, offInBlock int, e *dirEntry) bool) error {
	perBlock := BlockSize / dirEntrySize
	buf := make([]byte, BlockSize)

	for blk := uint32(0); blk < rootDirBlocks; blk++ {
		if err := fs.readDirBlock(blk, buf); err != nil {
			return err
		}

		for slot := 0; slot < perBlock; slot++ {
			off := slot * dirEntrySize
			if off+dirEntrySize > BlockSize {
				break
			}

			var e dirEntry
			e.decode(buf[off:])

			if fn(buf, off, &e) {
				return nil
			}
		}
	}

	return nil
}

func (fs *FS) findEntry(name string) (dirEntry, bool, error) {
	var found dirEntry
	var ok bool

	err := fs.forEachDirSlot(func(_ []byte, _ int, e *dirEntry) bool {
		if !e.free() && e.name() == name {
			found = *e
			ok = true
			return true
		}
		return false
	})

	return found, ok, err
}

// CreateFile adds a new root-directory entry and allocates its inode
// (§4.6 "create_file").
func (fs *FS) CreateFile(name string) (uint32, error) {
	if len(name) == 0 || len(name) > dirNameCap {
		return 0, errors.New("simplefs: invalid file name length")
	}

	if _, ok, err := fs.findEntry(name); err != nil {
		return 0, err
	} else if ok {
		return 0, ErrExists
	}

	inodeNum, in, err := fs.allocInode()
	if err != nil {
		return 0, err
	}

	in.Mode = fileTypeRegular
	in.LinkCount = 1

	if err := fs.writeInode(inodeNum, in); err != nil {
		return 0, err
	}

	placed := false
	perBlock := BlockSize / dirEntrySize
	buf := make([]byte, BlockSize)

	for blk := uint32(0); blk < rootDirBlocks && !placed; blk++ {
		if err := fs.readDirBlock(blk, buf); err != nil {
			return 0, err
		}

		for slot := 0; slot < perBlock; slot++ {
			off := slot * dirEntrySize

			var e dirEntry
			e.decode(buf[off:])

			if e.free() {
				e.InodeNumber = inodeNum
				e.FileType = fileTypeRegular
				e.NameLength = uint8(len(name))
				copy(e.Name[:], name)
				e.encode(buf[off:])

				if err := fs.writeDirBlock(blk, buf); err != nil {
					return 0, err
				}

				placed = true
				break
			}
		}
	}

	if !placed {
		return 0, ErrDirFull
	}

	fs.sb.FreeInodeCount--
	if err := fs.writeSuperblock(); err != nil {
		return 0, err
	}

	return inodeNum, nil
}

// DeleteFile removes the directory entry and releases the inode; data
// blocks are not reclaimed (no free list, per the bring-up bump
// allocator).
func (fs *FS) DeleteFile(name string) error {
	e, ok, err := fs.findEntry(name)
	if err != nil {
		return err
	}

	if !ok {
		return ErrNotFound
	}

	inodeNum := e.InodeNumber

	perBlock := BlockSize / dirEntrySize
	buf := make([]byte, BlockSize)

	for blk := uint32(0); blk < rootDirBlocks; blk++ {
		if err := fs.readDirBlock(blk, buf); err != nil {
			return err
		}

		dirty := false

		for slot := 0; slot < perBlock; slot++ {
			off := slot * dirEntrySize

			var e dirEntry
			e.decode(buf[off:])

			if !e.free() && e.name() == name {
				empty := dirEntry{InodeNumber: emptyDirSlot}
				empty.encode(buf[off:])
				dirty = true
			}
		}

		if dirty {
			if err := fs.writeDirBlock(blk, buf); err != nil {
				return err
			}
		}
	}

	var in Inode
	if err := fs.writeInode(inodeNum, &in); err != nil {
		return err
	}

	fs.sb.FreeInodeCount++

	return fs.writeSuperblock()
}

// ListDir returns the names of all occupied root-directory entries
// (§4.6 "list_dir").
func (fs *FS) ListDir() ([]string, error) {
	var names []string

	err := fs.forEachDirSlot(func(_ []byte, _ int, e *dirEntry) bool {
		if !e.free() {
			names = append(names, e.name())
		}
		return false
	})

	return names, err
}

// blockForOffset returns the data block holding byte offset off within
// the file, allocating it if create is true and it doesn't exist yet.
func (fs *FS) blockForOffset(in *Inode, off uint32, create bool) (uint32, error) {
	blockIndex := off / BlockSize

	if blockIndex < directBlockCount {
		if in.Direct[blockIndex] == 0 && create {
			b, err := fs.allocBlock()
			if err != nil {
				return 0, err
			}
			in.Direct[blockIndex] = b
		}
		return in.Direct[blockIndex], nil
	}

	indirectIndex := blockIndex - directBlockCount
	if indirectIndex >= indirectEntries {
		return 0, ErrTooLarge
	}

	if in.Indirect == 0 {
		if !create {
			return 0, nil
		}

		b, err := fs.allocBlock()
		if err != nil {
			return 0, err
		}
		in.Indirect = b

		zero := make([]byte, BlockSize)
		if err := fs.dev.WriteBlock(in.Indirect, zero); err != nil {
			return 0, err
		}
	}

	ibuf := make([]byte, BlockSize)
	if err := fs.dev.ReadBlock(in.Indirect, ibuf); err != nil {
		return 0, err
	}

	entryOff := indirectIndex * 4
	target := binary.LittleEndian.Uint32(ibuf[entryOff : entryOff+4])

	if target == 0 && create {
		b, err := fs.allocBlock()
		if err != nil {
			return 0, err
		}

		binary.LittleEndian.PutUint32(ibuf[entryOff:entryOff+4], b)
		if err := fs.dev.WriteBlock(in.Indirect, ibuf); err != nil {
			return 0, err
		}

		target = b
	}

	return target, nil
}

// ReadFile reads up to len(buf) bytes starting at offset from the named
// file's inode (§4.6 "read_file").
func (fs *FS) ReadFile(inodeNum uint32, buf []byte, offset uint32) (int, error) {
	in, err := fs.readInode(inodeNum)
	if err != nil {
		return 0, err
	}

	if in.Mode != fileTypeRegular {
		return 0, ErrNotRegular
	}

	if offset >= in.FileSize {
		return 0, nil
	}

	toRead := len(buf)
	if uint32(toRead) > in.FileSize-offset {
		toRead = int(in.FileSize - offset)
	}

	block := make([]byte, BlockSize)
	read := 0

	for read < toRead {
		cur := offset + uint32(read)
		blockNum, err := fs.blockForOffset(&in, cur, false)
		if err != nil {
			return read, err
		}

		inBlockOff := cur % BlockSize
		n := BlockSize - inBlockOff
		if remaining := uint32(toRead - read); n > remaining {
			n = remaining
		}

		if blockNum != 0 {
			if err := fs.dev.ReadBlock(blockNum, block); err != nil {
				return read, err
			}
			copy(buf[read:read+int(n)], block[inBlockOff:inBlockOff+n])
		}

		read += int(n)
	}

	return read, nil
}

// WriteFile writes buf at offset, extending the file and allocating new
// data blocks (direct, then indirect) as needed (§4.6 "write_file").
func (fs *FS) WriteFile(inodeNum uint32, buf []byte, offset uint32) (int, error) {
	if uint64(offset)+uint64(len(buf)) > MaxFileSize {
		return 0, ErrTooLarge
	}

	in, err := fs.readInode(inodeNum)
	if err != nil {
		return 0, err
	}

	if in.Mode != fileTypeRegular {
		return 0, ErrNotRegular
	}

	block := make([]byte, BlockSize)
	written := 0

	for written < len(buf) {
		cur := offset + uint32(written)
		blockNum, err := fs.blockForOffset(&in, cur, true)
		if err != nil {
			return written, err
		}

		inBlockOff := cur % BlockSize
		n := BlockSize - inBlockOff
		if remaining := uint32(len(buf) - written); n > remaining {
			n = remaining
		}

		if inBlockOff != 0 || n != BlockSize {
			if err := fs.dev.ReadBlock(blockNum, block); err != nil {
				return written, err
			}
		}

		copy(block[inBlockOff:inBlockOff+n], buf[written:written+int(n)])

		if err := fs.dev.WriteBlock(blockNum, block); err != nil {
			return written, err
		}

		written += int(n)
	}

	if offset+uint32(written) > in.FileSize {
		in.FileSize = offset + uint32(written)
	}

	if err := fs.writeInode(inodeNum, &in); err != nil {
		return written, err
	}

	return written, nil
}

// --- vfs.FileSystem adapter ---

// Root returns the vfs.Node representing this filesystem's root
// directory, suitable for VFS.SetRoot.
func (fs *FS) Root() *vfs.Node {
	return &vfs.Node{Name: "/", Type: vfs.TypeDir, Inode: 0, Parent: vfs.NoHandle, FS: fs}
}

func (fs *FS) Open(*vfs.Node, int) error  { return nil }
func (fs *FS) Close(*vfs.Node) error      { return nil }

func (fs *FS) Read(n *vfs.Node, buf []byte, offset int64) (int, error) {
	return fs.ReadFile(n.Inode, buf, uint32(offset))
}

func (fs *FS) Write(n *vfs.Node, buf []byte, offset int64) (int, error) {
	written, err := fs.WriteFile(n.Inode, buf, uint32(offset))
	if err == nil {
		n.Length = uint64(offset) + uint64(written)
	}

	return written, err
}

func (fs *FS) Readdir(dir *vfs.Node, index int) (*vfs.Node, error) {
	if dir.Type != vfs.TypeDir {
		return nil, vfs.ErrNotDir
	}

	names, err := fs.ListDir()
	if err != nil {
		return nil, err
	}

	if index < 0 || index >= len(names) {
		return nil, ErrNotFound
	}

	return fs.nodeFor(names[index])
}

func (fs *FS) Finddir(dir *vfs.Node, name string) (*vfs.Node, error) {
	if dir.Type != vfs.TypeDir {
		return nil, vfs.ErrNotDir
	}

	return fs.nodeFor(name)
}

func (fs *FS) nodeFor(name string) (*vfs.Node, error) {
	e, ok, err := fs.findEntry(name)
	if err != nil {
		return nil, err
	}

	if !ok {
		return nil, ErrNotFound
	}

	in, err := fs.readInode(e.InodeNumber)
	if err != nil {
		return nil, err
	}

	return &vfs.Node{Name: name, Type: vfs.TypeFile, Inode: e.InodeNumber, Length: uint64(in.FileSize), FS: fs}, nil
}

func (fs *FS) Create(dir *vfs.Node, name string) (*vfs.Node, error) {
	if dir.Type != vfs.TypeDir {
		return nil, vfs.ErrNotDir
	}

	inodeNum, err := fs.CreateFile(name)
	if err != nil {
		return nil, err
	}

	return &vfs.Node{Name: name, Type: vfs.TypeFile, Inode: inodeNum, FS: fs}, nil
}

func (fs *FS) Delete(dir *vfs.Node, name string) error {
	if dir.Type != vfs.TypeDir {
		return vfs.ErrNotDir
	}

	return fs.DeleteFile(name)
}
