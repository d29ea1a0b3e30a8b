//go:build linux

package fs

import "syscall"

func statTimes(st *syscall.Stat_t) (atime, mtime, ctime int64) {
	return st.Atim.Sec, st.Mtim.Sec, st.Ctim.Sec
}
