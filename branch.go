package stackfs

import (
	"context"
	"errors"
	"io/fs"
	"os"
	"time"
)

// FileType classifies a physical or logical object. It is fixed for the
// lifetime of a logical inode.
type FileType uint8

const (
	TypeRegular FileType = iota
	TypeDirectory
	TypeSymlink
	TypeBlock
	TypeChar
	TypeFIFO
	TypeSocket
)

var fileTypeNames = [...]string{
	TypeRegular:   "regular",
	TypeDirectory: "directory",
	TypeSymlink:   "symlink",
	TypeBlock:     "block",
	TypeChar:      "char",
	TypeFIFO:      "fifo",
	TypeSocket:    "socket",
}

func (t FileType) String() string {
	if int(t) < len(fileTypeNames) {
		return fileTypeNames[t]
	}
	return "unknown"
}

// IsSpecial reports whether t is a device, fifo or socket
func (t FileType) IsSpecial() bool {
	switch t {
	case TypeBlock, TypeChar, TypeFIFO, TypeSocket:
		return true
	}
	return false
}

// fileTypeOf classifies a mode. Char devices carry both ModeDevice and
// ModeCharDevice.
func fileTypeOf(mode os.FileMode) FileType {
	switch {
	case mode.IsDir():
		return TypeDirectory
	case mode&os.ModeSymlink != 0:
		return TypeSymlink
	case mode&os.ModeCharDevice != 0:
		return TypeChar
	case mode&os.ModeDevice != 0:
		return TypeBlock
	case mode&os.ModeNamedPipe != 0:
		return TypeFIFO
	case mode&os.ModeSocket != 0:
		return TypeSocket
	}
	return TypeRegular
}

// Attr is the attribute set a branch reports for one physical object.
type Attr struct {
	Ino   uint64
	Mode  os.FileMode
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
	Rdev  uint64
}

// Type returns the file type encoded in Mode
func (a Attr) Type() FileType { return fileTypeOf(a.Mode) }

// IsDir reports whether the object is a directory
func (a Attr) IsDir() bool { return a.Mode.IsDir() }

// Object is a physical file object returned by a Branch. Objects are
// opaque to stackfs apart from their attributes; a branch receives its own
// objects back as lookup parents.
type Object interface {
	Attr() Attr
}

// Branch is one underlying storage tree. Lookup reports absence with an
// error matching fs.ErrNotExist; any other error aborts the union lookup.
// Implementations must be safe for concurrent use and may block.
type Branch interface {
	Root(ctx context.Context) (Object, error)
	Lookup(ctx context.Context, dir Object, name string) (Object, error)
}

// Revalidator is implemented by branches that can tell whether a cached
// name still resolves the way it did. obj is nil for a cached absence and
// dir may be nil for a branch root.
type Revalidator interface {
	Revalidate(ctx context.Context, dir Object, name string, obj Object) (bool, error)
}

// Stater is implemented by branches that can re-read the attributes of an
// object they returned earlier. Lookup uses it to pick up the current
// access time of the directory it searched.
type Stater interface {
	Stat(ctx context.Context, obj Object) (Attr, error)
}

func isNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
