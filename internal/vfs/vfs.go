// Package vfs implements the polymorphic virtual-filesystem layer of
// §4.6: path resolution over a capability-set node type. Raw parent/
// filesystem pointers from the source are replaced with arena indices
// (§9 "model these as indices into a table rather than direct
// references"): a Handle is an index into the VFS's node arena, and
// NoHandle is the sentinel for "no parent"/"not found".
package vfs

import (
	"errors"
	"strings"
)

var (
	ErrNotFound     = errors.New("vfs: path component not found")
	ErrNotDir       = errors.New("vfs: not a directory")
	ErrUnsupported  = errors.New("vfs: operation not supported by this node")
	ErrInvalidHandle = errors.New("vfs: invalid handle")
)

// Handle is an arena index. NoHandle means "absent" wherever a handle is
// optional (Node.Parent, a failed lookup).
type Handle int32

const NoHandle Handle = -1

// Type is the node's kind; which capability interfaces a filesystem
// implements for a node of a given type is a convention enforced by
// that filesystem, not by the VFS itself.
type Type int

const (
	TypeFile Type = iota
	TypeDir
	TypeCharDev
	TypeBlockDev
	TypePipe
	TypeSymlink
	TypeMount
)

// Node is the polymorphic record every filesystem backend produces.
// FS points back at the owning FileSystem; the VFS never dereferences a
// raw Go pointer across filesystems, only the capability interfaces FS
// satisfies.
type Node struct {
	Name   string
	Type   Type
	Inode  uint32
	Length uint64
	Parent Handle
	FS     FileSystem

	refs int
}

// FileSystem is the minimal contract a backend must satisfy; the eight
// operations named in §3 ({open,close,read,write,readdir,finddir,create,
// delete}) are modeled as optional sub-interfaces below, type-asserted
// at the call site instead of a null-checked function-pointer vtable.
type FileSystem interface {
	Name() string
}

type Opener interface {
	Open(n *Node, flags int) error
}

type Closer interface {
	Close(n *Node) error
}

type Reader interface {
	Read(n *Node, buf []byte, offset int64) (int, error)
}

type Writer interface {
	Write(n *Node, buf []byte, offset int64) (int, error)
}

type Dir interface {
	Readdir(n *Node, index int) (*Node, error)
	Finddir(n *Node, name string) (*Node, error)
}

type Creator interface {
	Create(dir *Node, name string) (*Node, error)
}

type Deleter interface {
	Delete(dir *Node, name string) error
}

// VFS owns the node arena and the mount root.
type VFS struct {
	arena []*Node
	free  []Handle
	root  Handle
}

func New() *VFS {
	return &VFS{root: NoHandle}
}

// SetRoot publishes a filesystem's root node as the mount point for path
// resolution (§4.6 "a set_root(node) hook").
func (v *VFS) SetRoot(n *Node) Handle {
	h := v.alloc(n)
	v.root = h

	return h
}

func (v *VFS) alloc(n *Node) Handle {
	n.refs = 1

	if len(v.free) > 0 {
		h := v.free[len(v.free)-1]
		v.free = v.free[:len(v.free)-1]
		v.arena[h] = n

		return h
	}

	v.arena = append(v.arena, n)

	return Handle(len(v.arena) - 1)
}

// Node returns the node for h, or nil if h is invalid/released.
func (v *VFS) Node(h Handle) *Node {
	if h == NoHandle || int(h) >= len(v.arena) {
		return nil
	}

	return v.arena[h]
}

// Release decrements the node's reference count, freeing its arena slot
// at zero. Nodes returned by Readdir/Finddir are owned by the caller and
// must be released (§3 "Ownership").
func (v *VFS) Release(h Handle) {
	n := v.Node(h)
	if n == nil {
		return
	}

	n.refs--
	if n.refs <= 0 && h != v.root {
		v.arena[h] = nil
		v.free = append(v.free, h)
	}
}

// ResolvePath splits path on '/' and walks finddir from the root,
// returning NoHandle and the backend's Finddir error (for example the
// filesystem's own not-found error) if any component is missing.
func (v *VFS) ResolvePath(path string) (Handle, error) {
	cur := v.root
	if path == "" || path == "/" {
		n := v.Node(cur)
		if n != nil {
			n.refs++
		}

		return cur, nil
	}

	for _, part := range strings.Split(strings.Trim(path, "/"), "/") {
		if part == "" {
			continue
		}

		n := v.Node(cur)
		if n == nil {
			return NoHandle, ErrNotFound
		}

		child, err := v.Finddir(cur, part)
		if err != nil {
			return NoHandle, err
		}

		if cur != v.root {
			v.Release(cur)
		}

		cur = child
	}

	return cur, nil
}

// Open resolves nothing itself; it forwards to the node's Open
// capability if present.
func (v *VFS) Open(h Handle, flags int) error {
	n := v.Node(h)
	if n == nil {
		return ErrInvalidHandle
	}

	o, ok := n.FS.(Opener)
	if !ok {
		return nil
	}

	return o.Open(n, flags)
}

func (v *VFS) Close(h Handle) error {
	n := v.Node(h)
	if n == nil {
		return ErrInvalidHandle
	}

	if c, ok := n.FS.(Closer); ok {
		return c.Close(n)
	}

	return nil
}

func (v *VFS) Read(h Handle, buf []byte, offset int64) (int, error) {
	n := v.Node(h)
	if n == nil {
		return 0, ErrInvalidHandle
	}

	r, ok := n.FS.(Reader)
	if !ok {
		return 0, ErrUnsupported
	}

	return r.Read(n, buf, offset)
}

func (v *VFS) Write(h Handle, buf []byte, offset int64) (int, error) {
	n := v.Node(h)
	if n == nil {
		return 0, ErrInvalidHandle
	}

	w, ok := n.FS.(Writer)
	if !ok {
		return 0, ErrUnsupported
	}

	return w.Write(n, buf, offset)
}

// Readdir returns a newly allocated handle owned by the caller.
func (v *VFS) Readdir(h Handle, index int) (Handle, error) {
	n := v.Node(h)
	if n == nil {
		return NoHandle, ErrInvalidHandle
	}

	d, ok := n.FS.(Dir)
	if !ok {
		return NoHandle, ErrUnsupported
	}

	child, err := d.Readdir(n, index)
	if err != nil {
		return NoHandle, err
	}

	child.Parent = h

	return v.alloc(child), nil
}

// Finddir returns a newly allocated handle owned by the caller.
func (v *VFS) Finddir(h Handle, name string) (Handle, error) {
	n := v.Node(h)
	if n == nil {
		return NoHandle, ErrInvalidHandle
	}

	d, ok := n.FS.(Dir)
	if !ok {
		return NoHandle, ErrNotDir
	}

	child, err := d.Finddir(n, name)
	if err != nil {
		return NoHandle, err
	}

	child.Parent = h

	return v.alloc(child), nil
}

func (v *VFS) Create(dirHandle Handle, name string) (Handle, error) {
	n := v.Node(dirHandle)
	if n == nil {
		return NoHandle, ErrInvalidHandle
	}

	c, ok := n.FS.(Creator)
	if !ok {
		return NoHandle, ErrUnsupported
	}

	child, err := c.Create(n, name)
	if err != nil {
		return NoHandle, err
	}

	child.Parent = dirHandle

	return v.alloc(child), nil
}

func (v *VFS) Delete(dirHandle Handle, name string) error {
	n := v.Node(dirHandle)
	if n == nil {
		return ErrInvalidHandle
	}

	d, ok := n.FS.(Deleter)
	if !ok {
		return ErrUnsupported
	}

	return d.Delete(n, name)
}
