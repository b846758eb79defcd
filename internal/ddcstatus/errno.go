package ddcstatus

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// errnoNames covers the errno values this core actually branches on
// (spec.md §4.5, §4.7, §4.9); anything else falls back to the kernel's
// own short name via unix.Errno.
var errnoNames = map[int]string{
	int(unix.ENOENT):    "ENOENT",
	int(unix.EACCES):    "EACCES",
	int(unix.EBUSY):     "EBUSY",
	int(unix.EIO):       "EIO",
	int(unix.EINTR):     "EINTR",
	int(unix.EINVAL):    "EINVAL",
	int(unix.ENXIO):     "ENXIO",
	int(unix.ETIMEDOUT): "ETIMEDOUT",
	int(unix.EAGAIN):    "EAGAIN",
	int(unix.ENODEV):    "ENODEV",
	int(unix.EREMOTEIO): "EREMOTEIO",
}

func errnoName(errno int) string {
	if name, ok := errnoNames[errno]; ok {
		return name
	}
	return fmt.Sprintf("ERRNO(%d)", errno)
}

func errnoDesc(errno int) string {
	return unix.Errno(errno).Error()
}

// errno convenience constructors used throughout the core.
var (
	EBUSY  = FromErrno(int(unix.EBUSY))
	EIO    = FromErrno(int(unix.EIO))
	EINTR  = FromErrno(int(unix.EINTR))
	ENOENT = FromErrno(int(unix.ENOENT))
	EACCES = FromErrno(int(unix.EACCES))
	EINVAL = FromErrno(int(unix.EINVAL))
)
