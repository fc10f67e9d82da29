//go:build linux

package fs

import (
	"bytes"
	"os"

	c "mooofs/internal"
	"mooofs/internal/iomgr"

	"golang.org/x/sys/unix"
)

// Everything in this file runs on the loop goroutine. The public entry points in
// ops.go validate and post; composites and streams chain these directly.

func (f *FS) do(code iomgr.OpCode, prep func(op *iomgr.Op), wrap func(error) error, cb func(int, error)) {
	f.loop.Submit(func(op *iomgr.Op) {
		op.Opcode = code
		if prep != nil {
			prep(op)
		}
	}, func(err error, res int) {
		if err != nil {
			cb(0, wrap(err))
			return
		}
		cb(res, nil)
	})
}

func (f *FS) doPath(code iomgr.OpCode, path string, prep func(op *iomgr.Op), cb func(int, error)) {
	f.do(code, func(op *iomgr.Op) {
		op.Path = path
		if prep != nil {
			prep(op)
		}
	}, func(err error) error { return pathErr(code, path, err) }, cb)
}

func (f *FS) doFd(code iomgr.OpCode, fd int, prep func(op *iomgr.Op), cb func(int, error)) {
	f.do(code, func(op *iomgr.Op) {
		op.Fd = fd
		if prep != nil {
			prep(op)
		}
	}, func(err error) error { return fdErr(code, err) }, cb)
}

func errOnly(cb func(error)) func(int, error) {
	return func(_ int, err error) { cb(err) }
}

func (f *FS) open(path string, flags int, mode uint32, cb func(int, error)) {
	f.doPath(iomgr.OpOpen, path, func(op *iomgr.Op) {
		op.Flags, op.Mode = flags, mode
	}, func(fd int, err error) {
		if err != nil {
			fd = -1
		}
		cb(fd, err)
	})
}

func (f *FS) close(fd int, cb func(error)) {
	f.doFd(iomgr.OpClose, fd, nil, errOnly(cb))
}

func (f *FS) read(fd int, buf []byte, pos int64, cb func(int, error)) {
	f.doFd(iomgr.OpRead, fd, func(op *iomgr.Op) { op.Buf, op.Off = buf, pos }, cb)
}

func (f *FS) readv(fd int, bufs [][]byte, pos int64, cb func(int, error)) {
	f.doFd(iomgr.OpReadv, fd, func(op *iomgr.Op) { op.Bufs, op.Off = bufs, pos }, cb)
}

func (f *FS) write(fd int, buf []byte, pos int64, cb func(int, error)) {
	f.doFd(iomgr.OpWrite, fd, func(op *iomgr.Op) { op.Buf, op.Off = buf, pos }, cb)
}

func (f *FS) writev(fd int, bufs [][]byte, pos int64, cb func(int, error)) {
	f.doFd(iomgr.OpWritev, fd, func(op *iomgr.Op) { op.Bufs, op.Off = bufs, pos }, cb)
}

func (f *FS) fsync(fd int, cb func(error)) {
	f.doFd(iomgr.OpSync, fd, nil, errOnly(cb))
}

func (f *FS) ftruncate(fd int, size int64, cb func(error)) {
	f.doFd(iomgr.OpFtruncate, fd, func(op *iomgr.Op) { op.Size = size }, errOnly(cb))
}

func (f *FS) fchmod(fd int, mode uint32, cb func(error)) {
	f.doFd(iomgr.OpFchmod, fd, func(op *iomgr.Op) { op.Mode = mode }, errOnly(cb))
}

// stat covers stat and lstat; the record lives with the call, not the slot
func (f *FS) stat(code iomgr.OpCode, path string, cb func(*Stats, error)) {
	sx := new(unix.Statx_t)
	f.doPath(code, path, func(op *iomgr.Op) { op.Statx = sx }, func(_ int, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(statsFromStatx(sx), nil)
	})
}

func (f *FS) fstat(fd int, cb func(*Stats, error)) {
	sx := new(unix.Statx_t)
	f.doFd(iomgr.OpFstat, fd, func(op *iomgr.Op) { op.Statx = sx }, func(_ int, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(statsFromStatx(sx), nil)
	})
}

func (f *FS) chmod(path string, mode uint32, cb func(error)) {
	f.doPath(iomgr.OpChmod, path, func(op *iomgr.Op) { op.Mode = mode }, errOnly(cb))
}

func (f *FS) mkdir(path string, mode uint32, cb func(error)) {
	f.doPath(iomgr.OpMkdir, path, func(op *iomgr.Op) { op.Mode = mode }, errOnly(cb))
}

func (f *FS) rmdir(path string, cb func(error)) {
	f.doPath(iomgr.OpRmdir, path, nil, errOnly(cb))
}

func (f *FS) unlink(path string, cb func(error)) {
	f.doPath(iomgr.OpUnlink, path, nil, errOnly(cb))
}

func (f *FS) rename(src, dst string, cb func(error)) {
	f.doPath(iomgr.OpRename, src, func(op *iomgr.Op) { op.Path2 = dst }, errOnly(cb))
}

func (f *FS) symlink(target, path string, cb func(error)) {
	f.do(iomgr.OpSymlink, func(op *iomgr.Op) {
		op.Path, op.Path2 = target, path
	}, func(err error) error {
		return &os.LinkError{Op: "symlink", Old: target, New: path, Err: err}
	}, errOnly(cb))
}

// pathOut covers realpath and readlink, which both fill a caller buffer with a
// NUL terminated path.
func (f *FS) pathOut(code iomgr.OpCode, path string, cb func([]byte, error)) {
	out := make([]byte, c.PATH_MAX)
	f.doPath(code, path, func(op *iomgr.Op) { op.Out = out }, func(_ int, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		if i := bytes.IndexByte(out, 0); i >= 0 {
			out = out[:i]
		}
		cb(out, nil)
	})
}

func (f *FS) opendirHandle(path string, h *iomgr.Dir, cb func(error)) {
	f.doPath(iomgr.OpOpendir, path, func(op *iomgr.Op) { op.Dir = h }, errOnly(cb))
}

func (f *FS) readdirBatch(path string, h *iomgr.Dir, scratch []byte, max int, out *[]iomgr.RawDirent, cb func(int, error)) {
	f.doPath(iomgr.OpReaddir, path, func(op *iomgr.Op) {
		op.Dir, op.Buf, op.MaxEntries, op.Batch = h, scratch, max, out
	}, cb)
}

func (f *FS) closedir(path string, h *iomgr.Dir, cb func(error)) {
	f.doPath(iomgr.OpClosedir, path, func(op *iomgr.Op) { op.Dir = h }, errOnly(cb))
}
