package stackfs

import "os"

// attrFromInfo converts a FileInfo. Node number, rdev and the access and
// change times are only known when the platform stat structure is exposed
// through Sys; otherwise the modification time stands in for all three.
func attrFromInfo(info os.FileInfo) Attr {
	mtime := info.ModTime()
	a := Attr{
		Mode:  info.Mode(),
		Size:  info.Size(),
		Atime: mtime,
		Mtime: mtime,
		Ctime: mtime,
	}
	fillSysAttr(info, &a)
	return a
}
