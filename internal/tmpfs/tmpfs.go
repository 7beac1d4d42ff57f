// Package tmpfs is a volatile, in-memory filesystem exposed through the
// same vfs.FileSystem capability set as simplefs. It is a supplemented
// feature (not named by the distilled spec but present in the kernel
// this system is modeled on, where /tmp and device scratch space are
// backed by plain memory rather than disk).
package tmpfs

import (
	"errors"
	"sync"

	"github.com/hobbyos-go/kernelcore/internal/vfs"
)

var (
	ErrNotFound = errors.New("tmpfs: not found")
	ErrExists   = errors.New("tmpfs: already exists")
	ErrIsDir    = errors.New("tmpfs: is a directory")
)

type file struct {
	name string
	dir  bool
	data []byte
}

// FS is a single flat directory of in-memory files, guarded by a mutex
// since it may be touched from more than one call path (console and a
// background task, say) even in this single-core kernel.
type FS struct {
	mu    sync.Mutex
	files map[string]*file
}

func New() *FS {
	return &FS{files: make(map[string]*file)}
}

func (fs *FS) Name() string { return "tmpfs" }

func (fs *FS) Root() *vfs.Node {
	return &vfs.Node{Name: "/", Type: vfs.TypeDir, Parent: vfs.NoHandle, FS: fs}
}

func (fs *FS) Open(*vfs.Node, int) error { return nil }
func (fs *FS) Close(*vfs.Node) error     { return nil }

func (fs *FS) Read(n *vfs.Node, buf []byte, offset int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, ok := fs.files[n.Name]
	if !ok {
		return 0, ErrNotFound
	}

	if offset >= int64(len(f.data)) {
		return 0, nil
	}

	return copy(buf, f.data[offset:]), nil
}

func (fs *FS) Write(n *vfs.Node, buf []byte, offset int64) (int, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, ok := fs.files[n.Name]
	if !ok {
		return 0, ErrNotFound
	}

	end := offset + int64(len(buf))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}

	n.Length = uint64(len(f.data))

	return copy(f.data[offset:end], buf), nil
}

func (fs *FS) Readdir(dir *vfs.Node, index int) (*vfs.Node, error) {
	if dir.Type != vfs.TypeDir {
		return nil, vfs.ErrNotDir
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	names := fs.sortedNames()
	if index < 0 || index >= len(names) {
		return nil, ErrNotFound
	}

	f := fs.files[names[index]]

	return fs.nodeFor(f), nil
}

func (fs *FS) Finddir(dir *vfs.Node, name string) (*vfs.Node, error) {
	if dir.Type != vfs.TypeDir {
		return nil, vfs.ErrNotDir
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	f, ok := fs.files[name]
	if !ok {
		return nil, ErrNotFound
	}

	return fs.nodeFor(f), nil
}

func (fs *FS) sortedNames() []string {
	names := make([]string, 0, len(fs.files))
	for name := range fs.files {
		names = append(names, name)
	}

	// insertion sort: small, fixed directory, avoids importing sort for
	// a handful of entries.
	for i := 1; i < len(names); i++ {
		for j := i; j > 0 && names[j] < names[j-1]; j-- {
			names[j], names[j-1] = names[j-1], names[j]
		}
	}

	return names
}

func (fs *FS) nodeFor(f *file) *vfs.Node {
	t := vfs.TypeFile
	if f.dir {
		t = vfs.TypeDir
	}

	return &vfs.Node{Name: f.name, Type: t, Length: uint64(len(f.data)), FS: fs}
}

func (fs *FS) Create(dir *vfs.Node, name string) (*vfs.Node, error) {
	if dir.Type != vfs.TypeDir {
		return nil, vfs.ErrNotDir
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.files[name]; ok {
		return nil, ErrExists
	}

	f := &file{name: name}
	fs.files[name] = f

	return fs.nodeFor(f), nil
}

func (fs *FS) Delete(dir *vfs.Node, name string) error {
	if dir.Type != vfs.TypeDir {
		return vfs.ErrNotDir
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if _, ok := fs.files[name]; !ok {
		return ErrNotFound
	}

	delete(fs.files, name)

	return nil
}
