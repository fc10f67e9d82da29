//go:build linux

package iomgr

import (
	"errors"
	"path/filepath"

	"golang.org/x/sys/unix"
)

func ignoringEINTR(fn func() error) error {
	for {
		err := fn()
		if err != unix.EINTR {
			return err
		}
	}
}

func toErrno(err error) error {
	if err == nil {
		return nil
	}
	var errno unix.Errno
	if errors.As(err, &errno) {
		return errno
	}
	return unix.EIO
}

// Perform runs op synchronously on the calling goroutine. Workers use it for ops the
// ring can't carry, and the sync forms call it directly, bypassing the slot pool.
// The returned error is a bare unix.Errno.
func Perform(op *Op) (int, error) {
	var res int
	var err error

	switch op.Opcode {
	case OpNop:

	case OpOpen:
		err = ignoringEINTR(func() error {
			res, err = unix.Open(op.Path, op.Flags|unix.O_CLOEXEC, op.Mode)
			return err
		})

	case OpClose:
		err = unix.Close(op.Fd)

	case OpRead:
		err = ignoringEINTR(func() error {
			if op.Off < 0 {
				res, err = unix.Read(op.Fd, op.Buf)
			} else {
				res, err = unix.Pread(op.Fd, op.Buf, op.Off)
			}
			return err
		})

	case OpWrite:
		err = ignoringEINTR(func() error {
			if op.Off < 0 {
				res, err = unix.Write(op.Fd, op.Buf)
			} else {
				res, err = unix.Pwrite(op.Fd, op.Buf, op.Off)
			}
			return err
		})

	case OpReadv:
		err = ignoringEINTR(func() error {
			if op.Off < 0 {
				res, err = unix.Readv(op.Fd, op.Bufs)
			} else {
				res, err = unix.Preadv(op.Fd, op.Bufs, op.Off)
			}
			return err
		})

	case OpWritev:
		err = ignoringEINTR(func() error {
			if op.Off < 0 {
				res, err = unix.Writev(op.Fd, op.Bufs)
			} else {
				res, err = unix.Pwritev(op.Fd, op.Bufs, op.Off)
			}
			return err
		})

	case OpSync:
		err = ignoringEINTR(func() error { return unix.Fsync(op.Fd) })

	case OpStat:
		err = unix.Statx(unix.AT_FDCWD, op.Path, 0, STATX_MASK, op.Statx)

	case OpLstat:
		err = unix.Statx(unix.AT_FDCWD, op.Path, unix.AT_SYMLINK_NOFOLLOW, STATX_MASK, op.Statx)

	case OpFstat:
		err = unix.Statx(op.Fd, "", unix.AT_EMPTY_PATH, STATX_MASK, op.Statx)

	case OpFtruncate:
		err = ignoringEINTR(func() error { return unix.Ftruncate(op.Fd, op.Size) })

	case OpChmod:
		err = unix.Chmod(op.Path, op.Mode)

	case OpFchmod:
		err = unix.Fchmod(op.Fd, op.Mode)

	case OpMkdir:
		err = unix.Mkdir(op.Path, op.Mode)

	case OpRmdir:
		err = unix.Rmdir(op.Path)

	case OpUnlink:
		err = unix.Unlink(op.Path)

	case OpRename:
		err = unix.Rename(op.Path, op.Path2)

	case OpSymlink:
		err = unix.Symlink(op.Path, op.Path2)

	case OpRealpath:
		err = realpath(op.Path, op.Out)

	case OpReadlink:
		err = readlink(op.Path, op.Out)

	case OpOpendir:
		err = ignoringEINTR(func() error {
			var fd int
			fd, err = unix.Open(op.Path, unix.O_RDONLY|unix.O_DIRECTORY|unix.O_CLOEXEC, 0)
			if err == nil {
				op.Dir.Fd = fd
			}
			return err
		})

	case OpReaddir:
		res, err = op.Dir.readBatch(op.Buf, op.MaxEntries, op.Batch)

	case OpClosedir:
		err = op.Dir.close()

	default:
		err = unix.EINVAL
	}

	if err != nil {
		return 0, toErrno(err)
	}
	return res, nil
}

// out gets the NUL-terminated absolute, symlink-free path.
func realpath(path string, out []byte) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	resolved, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return err
	}
	if len(resolved)+1 > len(out) {
		return unix.ENAMETOOLONG
	}
	out[copy(out, resolved)] = 0
	return nil
}

func readlink(path string, out []byte) error {
	if len(out) == 0 {
		return unix.EINVAL
	}
	n, err := unix.Readlink(path, out[:len(out)-1])
	if err != nil {
		return err
	}
	out[n] = 0
	return nil
}
