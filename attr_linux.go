//go:build linux

package stackfs

import (
	"os"
	"syscall"
	"time"
)

func fillSysAttr(info os.FileInfo, a *Attr) {
	st, ok := info.Sys().(*syscall.Stat_t)
	if !ok || st == nil {
		return
	}
	a.Ino = uint64(st.Ino)
	a.Rdev = uint64(st.Rdev)
	a.Atime = time.Unix(st.Atim.Unix())
	a.Ctime = time.Unix(st.Ctim.Unix())
}
