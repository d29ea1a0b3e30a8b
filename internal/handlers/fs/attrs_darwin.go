//go:build darwin

package fs

import "syscall"

func statTimes(st *syscall.Stat_t) (atime, mtime, ctime int64) {
	return st.Atimespec.Sec, st.Mtimespec.Sec, st.Ctimespec.Sec
}
