package simplefs_test

import (
	"bytes"
	"encoding/binary"
	"sort"
	"testing"

	"github.com/hobbyos-go/kernelcore/internal/simplefs"
	"github.com/kylelemons/godebug/pretty"
)

type memDevice struct {
	blocks [][simplefs.BlockSize]byte
}

func newMemDevice(n int) *memDevice {
	return &memDevice{blocks: make([][simplefs.BlockSize]byte, n)}
}

func (m *memDevice) ReadBlock(n uint32, buf []byte) error {
	copy(buf, m.blocks[n][:])
	return nil
}

func (m *memDevice) WriteBlock(n uint32, buf []byte) error {
	copy(m.blocks[n][:], buf)
	return nil
}

func (m *memDevice) BlockSize() int { return simplefs.BlockSize }

func TestFormatThenMountRoundTrip(t *testing.T) {
	t.Parallel()

	dev := newMemDevice(2000)

	if _, err := simplefs.Format(dev, 2000); err != nil {
		t.Fatalf("Format: %v", err)
	}

	fs, err := simplefs.Mount(dev)
	if err != nil {
		t.Fatalf("Mount: %v", err)
	}

	names, err := fs.ListDir()
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}

	if len(names) != 0 {
		t.Fatalf("fresh filesystem should have an empty root directory, got %v", names)
	}
}

func TestCreateWriteReadFile(t *testing.T) {
	t.Parallel()

	dev := newMemDevice(2000)
	fs, err := simplefs.Format(dev, 2000)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	inodeNum, err := fs.CreateFile("hello.txt")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	payload := []byte("hello, simplefs")
	if n, err := fs.WriteFile(inodeNum, payload, 0); err != nil || n != len(payload) {
		t.Fatalf("WriteFile: n=%d err=%v", n, err)
	}

	readBuf := make([]byte, len(payload))
	if n, err := fs.ReadFile(inodeNum, readBuf, 0); err != nil || n != len(payload) {
		t.Fatalf("ReadFile: n=%d err=%v", n, err)
	}

	if !bytes.Equal(readBuf, payload) {
		t.Fatalf("round trip mismatch: got %q want %q", readBuf, payload)
	}
}

func TestWriteSpanningIndirectBlocks(t *testing.T) {
	t.Parallel()

	dev := newMemDevice(4000)
	fs, err := simplefs.Format(dev, 4000)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	inodeNum, err := fs.CreateFile("big.bin")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	payload := bytes.Repeat([]byte{0xAB}, 20*simplefs.BlockSize) // spans direct + indirect
	if n, err := fs.WriteFile(inodeNum, payload, 0); err != nil || n != len(payload) {
		t.Fatalf("WriteFile: n=%d err=%v", n, err)
	}

	readBuf := make([]byte, len(payload))
	if n, err := fs.ReadFile(inodeNum, readBuf, 0); err != nil || n != len(payload) {
		t.Fatalf("ReadFile: n=%d err=%v", n, err)
	}

	if !bytes.Equal(readBuf, payload) {
		t.Fatalf("indirect-block round trip mismatch")
	}
}

func TestWriteBeyondMaxFileSizeRejected(t *testing.T) {
	t.Parallel()

	dev := newMemDevice(4000)
	fs, err := simplefs.Format(dev, 4000)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	inodeNum, err := fs.CreateFile("huge.bin")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	buf := make([]byte, 16)
	if _, err := fs.WriteFile(inodeNum, buf, simplefs.MaxFileSize-8); err != simplefs.ErrTooLarge {
		t.Fatalf("WriteFile past MaxFileSize = %v, want ErrTooLarge", err)
	}
}

func TestCreateDuplicateNameRejected(t *testing.T) {
	t.Parallel()

	dev := newMemDevice(2000)
	fs, err := simplefs.Format(dev, 2000)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	if _, err := fs.CreateFile("dup"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	if _, err := fs.CreateFile("dup"); err != simplefs.ErrExists {
		t.Fatalf("second CreateFile(dup) = %v, want ErrExists", err)
	}
}

func TestDeleteFileThenRecreate(t *testing.T) {
	t.Parallel()

	dev := newMemDevice(2000)
	fs, err := simplefs.Format(dev, 2000)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	inodeNum, err := fs.CreateFile("temp")
	if err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	if err := fs.DeleteFile("temp"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}

	names, err := fs.ListDir()
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}

	if len(names) != 0 {
		t.Fatalf("expected empty directory after delete, got %v", names)
	}

	second, err := fs.CreateFile("temp")
	if err != nil {
		t.Fatalf("recreate CreateFile: %v", err)
	}

	if second != inodeNum {
		t.Fatalf("expected deleted inode %d to be reused, got %d", inodeNum, second)
	}
}

func TestListDirReflectsMultipleFiles(t *testing.T) {
	t.Parallel()

	dev := newMemDevice(2000)
	fs, err := simplefs.Format(dev, 2000)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	for _, name := range []string{"a", "b", "c"} {
		if _, err := fs.CreateFile(name); err != nil {
			t.Fatalf("CreateFile(%s): %v", name, err)
		}
	}

	names, err := fs.ListDir()
	if err != nil {
		t.Fatalf("ListDir: %v", err)
	}

	sort.Strings(names)

	want := []string{"a", "b", "c"}
	if diff := pretty.Compare(want, names); diff != "" {
		t.Fatalf("root directory listing mismatch:\n%s", diff)
	}
}

func TestRootDirectoryFillsToCapacity(t *testing.T) {
	t.Parallel()

	dev := newMemDevice(4000)
	fs, err := simplefs.Format(dev, 4000)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	for i := 0; i < simplefs.RootDirEntries; i++ {
		name := string(rune('a' + i%26))
		if i >= 26 {
			name = name + string(rune('a'+i/26))
		}

		if _, err := fs.CreateFile(name); err != nil {
			t.Fatalf("CreateFile %d (%s): %v", i, name, err)
		}
	}

	if _, err := fs.CreateFile("overflow"); err != simplefs.ErrDirFull {
		t.Fatalf("CreateFile past capacity = %v, want ErrDirFull", err)
	}
}

// TestSuperblockMagicIsSFSBang pins I-F1: the on-disk magic must be
// exactly "SFS!" (0x53465321), matching original_source's superblock
// layout byte-for-byte.
func TestSuperblockMagicIsSFSBang(t *testing.T) {
	t.Parallel()

	dev := newMemDevice(2000)
	if _, err := simplefs.Format(dev, 2000); err != nil {
		t.Fatalf("Format: %v", err)
	}

	buf := make([]byte, simplefs.BlockSize)
	if err := dev.ReadBlock(0, buf); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}

	if got := binary.LittleEndian.Uint32(buf[0:4]); got != simplefs.Magic {
		t.Fatalf("on-disk magic = %#x, want %#x", got, simplefs.Magic)
	}

	if simplefs.Magic != 0x53465321 {
		t.Fatalf("Magic constant = %#x, want 0x53465321", simplefs.Magic)
	}
}

// TestFreeInodeCountTracksCreateAndDelete pins I-F3/P-F2: free_inode_count
// starts at InodeCount, decrements by exactly 1 per create_file, and
// increments by exactly 1 per delete_file.
func TestFreeInodeCountTracksCreateAndDelete(t *testing.T) {
	t.Parallel()

	dev := newMemDevice(2000)
	fs, err := simplefs.Format(dev, 2000)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	if got := fs.Superblock().FreeInodeCount; got != simplefs.InodeCount {
		t.Fatalf("fresh FreeInodeCount = %d, want %d", got, simplefs.InodeCount)
	}

	if _, err := fs.CreateFile("a"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	afterCreate := fs.Superblock().FreeInodeCount
	if afterCreate != simplefs.InodeCount-1 {
		t.Fatalf("FreeInodeCount after create = %d, want %d", afterCreate, simplefs.InodeCount-1)
	}

	if err := fs.DeleteFile("a"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}

	afterDelete := fs.Superblock().FreeInodeCount
	if afterDelete != afterCreate+1 {
		t.Fatalf("FreeInodeCount after delete = %d, want %d (increased by exactly 1)", afterDelete, afterCreate+1)
	}
}

// TestEmptyDirSlotsAreAllOnesSentinel pins §4.6 "format": every root
// directory slot is initialized with inode_number = 0xFFFFFFFF, not 0
// (inode 0 is itself a valid, reserved inode number).
func TestEmptyDirSlotsAreAllOnesSentinel(t *testing.T) {
	t.Parallel()

	dev := newMemDevice(2000)
	fs, err := simplefs.Format(dev, 2000)
	if err != nil {
		t.Fatalf("Format: %v", err)
	}

	sb := fs.Superblock()

	buf := make([]byte, simplefs.BlockSize)
	if err := dev.ReadBlock(sb.FirstDataBlock, buf); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}

	if got := binary.LittleEndian.Uint32(buf[0:4]); got != 0xFFFFFFFF {
		t.Fatalf("first root directory slot inode_number = %#x, want 0xFFFFFFFF", got)
	}

	if _, err := fs.CreateFile("only"); err != nil {
		t.Fatalf("CreateFile: %v", err)
	}

	if err := dev.ReadBlock(sb.FirstDataBlock, buf); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}

	if got := binary.LittleEndian.Uint32(buf[0:4]); got == 0xFFFFFFFF {
		t.Fatalf("occupied slot still reads the empty sentinel")
	}

	if err := fs.DeleteFile("only"); err != nil {
		t.Fatalf("DeleteFile: %v", err)
	}

	if err := dev.ReadBlock(sb.FirstDataBlock, buf); err != nil {
		t.Fatalf("ReadBlock: %v", err)
	}

	if got := binary.LittleEndian.Uint32(buf[0:4]); got != 0xFFFFFFFF {
		t.Fatalf("slot after delete = %#x, want the empty sentinel restored", got)
	}
}
