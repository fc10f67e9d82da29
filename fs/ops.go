//go:build linux

package fs

import (
	"fmt"

	c "mooofs/internal"
	"mooofs/internal/iomgr"
)

// Argument errors are returned before anything is queued. Everything the engine
// reports arrives through cb, on the loop goroutine.

func (f *FS) Open(path string, flags int, mode uint32, cb func(fd int, err error)) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.open(path, flags, mode, cb) })
}

func (f *FS) Close(fd int, cb func(err error)) error {
	if err := checkFd(fd); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.close(fd, cb) })
}

// Read reads into buf at pos, or at the file position when pos is -1.
func (f *FS) Read(fd int, buf []byte, pos int64, cb func(n int, err error)) error {
	if err := checkIO(fd, buf, pos); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.read(fd, buf, pos, cb) })
}

func (f *FS) Readv(fd int, bufs [][]byte, pos int64, cb func(n int, err error)) error {
	if err := checkIOv(fd, bufs, pos); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.readv(fd, bufs, pos, cb) })
}

func (f *FS) Write(fd int, buf []byte, pos int64, cb func(n int, err error)) error {
	if err := checkIO(fd, buf, pos); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.write(fd, buf, pos, cb) })
}

func (f *FS) Writev(fd int, bufs [][]byte, pos int64, cb func(n int, err error)) error {
	if err := checkIOv(fd, bufs, pos); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.writev(fd, bufs, pos, cb) })
}

func (f *FS) Fsync(fd int, cb func(err error)) error {
	if err := checkFd(fd); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.fsync(fd, cb) })
}

func (f *FS) Ftruncate(fd int, size int64, cb func(err error)) error {
	if err := checkFd(fd); err != nil {
		return err
	}
	if size < 0 {
		return fmt.Errorf("%w: size must be >= 0, got %d", ErrOutOfRange, size)
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.ftruncate(fd, size, cb) })
}

func (f *FS) Stat(path string, cb func(st *Stats, err error)) error {
	return f.statPath(iomgr.OpStat, path, cb)
}

func (f *FS) Lstat(path string, cb func(st *Stats, err error)) error {
	return f.statPath(iomgr.OpLstat, path, cb)
}

func (f *FS) statPath(code iomgr.OpCode, path string, cb func(*Stats, error)) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.stat(code, path, cb) })
}

func (f *FS) Fstat(fd int, cb func(st *Stats, err error)) error {
	if err := checkFd(fd); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.fstat(fd, cb) })
}

func (f *FS) Chmod(path string, mode uint32, cb func(err error)) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.chmod(path, mode, cb) })
}

func (f *FS) Fchmod(fd int, mode uint32, cb func(err error)) error {
	if err := checkFd(fd); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.fchmod(fd, mode, cb) })
}

type MkdirOptions struct {
	Mode      uint32 // 0 means 0o777
	Recursive bool
}

func (o MkdirOptions) mode() uint32 {
	if o.Mode == 0 {
		return c.DEFAULT_DIR_MODE
	}
	return o.Mode
}

func (f *FS) Mkdir(path string, opts MkdirOptions, cb func(err error)) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	mode := opts.mode()
	if opts.Recursive {
		return f.post(func() { f.mkdirp(path, mode, cb) })
	}
	return f.post(func() { f.mkdir(path, mode, cb) })
}

func (f *FS) Rmdir(path string, cb func(err error)) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.rmdir(path, cb) })
}

func (f *FS) Unlink(path string, cb func(err error)) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.unlink(path, cb) })
}

func (f *FS) Rename(src, dst string, cb func(err error)) error {
	if err := checkPath(src); err != nil {
		return err
	}
	if err := checkPath(dst); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.rename(src, dst, cb) })
}

func (f *FS) Realpath(path string, cb func(resolved string, err error)) error {
	return f.pathOutPost(iomgr.OpRealpath, path, stringOut(cb))
}

func (f *FS) Readlink(path string, cb func(target string, err error)) error {
	return f.pathOutPost(iomgr.OpReadlink, path, stringOut(cb))
}

// RealpathBuffer is Realpath with the resolved path as raw bytes. Other name
// encodings are Encoding.Decode over the result.
func (f *FS) RealpathBuffer(path string, cb func(resolved []byte, err error)) error {
	return f.pathOutPost(iomgr.OpRealpath, path, cb)
}

// ReadlinkBuffer is Readlink with the target as raw bytes.
func (f *FS) ReadlinkBuffer(path string, cb func(target []byte, err error)) error {
	return f.pathOutPost(iomgr.OpReadlink, path, cb)
}

func stringOut(cb func(string, error)) func([]byte, error) {
	if cb == nil {
		return nil
	}
	return func(out []byte, err error) { cb(string(out), err) }
}

func (f *FS) pathOutPost(code iomgr.OpCode, path string, cb func([]byte, error)) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.pathOut(code, path, cb) })
}

// Symlink creates path pointing at target. typ is only checked for validity.
func (f *FS) Symlink(target, path string, typ SymlinkType, cb func(err error)) error {
	if err := checkPath(target); err != nil {
		return err
	}
	if err := checkPath(path); err != nil {
		return err
	}
	if !typ.valid() {
		return fmt.Errorf("%w: %d", ErrInvalidSymlinkType, typ)
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.symlink(target, path, cb) })
}

func checkPos(pos int64) error {
	if pos < -1 {
		return fmt.Errorf("%w: position must be >= -1, got %d", ErrOutOfRange, pos)
	}
	return nil
}

func checkIO(fd int, buf []byte, pos int64) error {
	if err := checkFd(fd); err != nil {
		return err
	}
	if err := checkBuf(buf); err != nil {
		return err
	}
	return checkPos(pos)
}

func checkIOv(fd int, bufs [][]byte, pos int64) error {
	if err := checkFd(fd); err != nil {
		return err
	}
	if len(bufs) > IOV_MAX {
		return fmt.Errorf("%w: at most %d buffers, got %d", ErrOutOfRange, IOV_MAX, len(bufs))
	}
	for _, b := range bufs {
		if err := checkBuf(b); err != nil {
			return err
		}
	}
	return checkPos(pos)
}

const IOV_MAX = 1024
