package tmpfs_test

import (
	"bytes"
	"testing"

	"github.com/hobbyos-go/kernelcore/internal/tmpfs"
	"github.com/hobbyos-go/kernelcore/internal/vfs"
)

func TestCreateWriteReadFile(t *testing.T) {
	t.Parallel()

	fs := tmpfs.New()
	v := vfs.New()
	root := v.SetRoot(fs.Root())

	h, err := v.Create(root, "scratch")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	payload := []byte("volatile data")
	if n, err := v.Write(h, payload, 0); err != nil || n != len(payload) {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}

	readBuf := make([]byte, len(payload))
	if n, err := v.Read(h, readBuf, 0); err != nil || n != len(payload) {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}

	if !bytes.Equal(readBuf, payload) {
		t.Fatalf("round trip mismatch: got %q want %q", readBuf, payload)
	}
}

func TestDeleteThenFinddirFails(t *testing.T) {
	t.Parallel()

	fs := tmpfs.New()
	v := vfs.New()
	root := v.SetRoot(fs.Root())

	if _, err := v.Create(root, "gone"); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if err := v.Delete(root, "gone"); err != nil {
		t.Fatalf("Delete: %v", err)
	}

	if _, err := v.Finddir(root, "gone"); err != tmpfs.ErrNotFound {
		t.Fatalf("Finddir after delete = %v, want ErrNotFound", err)
	}
}

func TestReaddirListsAllEntriesInOrder(t *testing.T) {
	t.Parallel()

	fs := tmpfs.New()
	v := vfs.New()
	root := v.SetRoot(fs.Root())

	for _, name := range []string{"c", "a", "b"} {
		if _, err := v.Create(root, name); err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
	}

	var got []string
	for i := 0; ; i++ {
		h, err := v.Readdir(root, i)
		if err != nil {
			break
		}
		got = append(got, v.Node(h).Name)
		v.Release(h)
	}

	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
