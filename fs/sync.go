//go:build linux

package fs

import (
	"bytes"
	"errors"
	"io"
	"os"

	c "mooofs/internal"
	"mooofs/internal/iomgr"

	"golang.org/x/sys/unix"
)

// The Sync forms run on the calling goroutine straight through the engine's
// blocking path. They never touch the slot pool or the loop, so they are safe
// to call from callbacks.

func performPath(op *iomgr.Op) (int, error) {
	res, err := iomgr.Perform(op)
	return res, pathErr(op.Opcode, op.Path, err)
}

func performFd(op *iomgr.Op) (int, error) {
	res, err := iomgr.Perform(op)
	if err != nil {
		return 0, fdErr(op.Opcode, err)
	}
	return res, nil
}

func (f *FS) OpenSync(path string, flags int, mode uint32) (int, error) {
	if err := checkPath(path); err != nil {
		return -1, err
	}
	fd, err := performPath(&iomgr.Op{Opcode: iomgr.OpOpen, Path: path, Flags: flags, Mode: mode})
	if err != nil {
		return -1, err
	}
	return fd, nil
}

func (f *FS) CloseSync(fd int) error {
	if err := checkFd(fd); err != nil {
		return err
	}
	_, err := performFd(&iomgr.Op{Opcode: iomgr.OpClose, Fd: fd})
	return err
}

func (f *FS) ReadSync(fd int, buf []byte, pos int64) (int, error) {
	if err := checkIO(fd, buf, pos); err != nil {
		return 0, err
	}
	return performFd(&iomgr.Op{Opcode: iomgr.OpRead, Fd: fd, Buf: buf, Off: pos})
}

func (f *FS) WriteSync(fd int, buf []byte, pos int64) (int, error) {
	if err := checkIO(fd, buf, pos); err != nil {
		return 0, err
	}
	return performFd(&iomgr.Op{Opcode: iomgr.OpWrite, Fd: fd, Buf: buf, Off: pos})
}

func statSync(op *iomgr.Op, perform func(*iomgr.Op) (int, error)) (*Stats, error) {
	op.Statx = new(unix.Statx_t)
	if _, err := perform(op); err != nil {
		return nil, err
	}
	return statsFromStatx(op.Statx), nil
}

func (f *FS) StatSync(path string) (*Stats, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	return statSync(&iomgr.Op{Opcode: iomgr.OpStat, Path: path}, performPath)
}

func (f *FS) LstatSync(path string) (*Stats, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	return statSync(&iomgr.Op{Opcode: iomgr.OpLstat, Path: path}, performPath)
}

func (f *FS) FstatSync(fd int) (*Stats, error) {
	if err := checkFd(fd); err != nil {
		return nil, err
	}
	return statSync(&iomgr.Op{Opcode: iomgr.OpFstat, Fd: fd}, performFd)
}

func (f *FS) ChmodSync(path string, mode uint32) error {
	if err := checkPath(path); err != nil {
		return err
	}
	_, err := performPath(&iomgr.Op{Opcode: iomgr.OpChmod, Path: path, Mode: mode})
	return err
}

func (f *FS) FchmodSync(fd int, mode uint32) error {
	if err := checkFd(fd); err != nil {
		return err
	}
	_, err := performFd(&iomgr.Op{Opcode: iomgr.OpFchmod, Fd: fd, Mode: mode})
	return err
}

func (f *FS) MkdirSync(path string, opts MkdirOptions) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if opts.Recursive {
		return mkdirpSync(path, opts.mode())
	}
	_, err := performPath(&iomgr.Op{Opcode: iomgr.OpMkdir, Path: path, Mode: opts.mode()})
	return err
}

func mkdirpSync(path string, mode uint32) error {
	_, err := performPath(&iomgr.Op{Opcode: iomgr.OpMkdir, Path: path, Mode: mode})
	if err == nil {
		return nil
	}
	if !errors.Is(err, unix.ENOENT) {
		st, serr := statSync(&iomgr.Op{Opcode: iomgr.OpStat, Path: path}, performPath)
		if serr != nil {
			return serr
		}
		if st.IsDirectory() {
			return nil
		}
		return err
	}

	trimmed, parent, ok := parentOf(path)
	if !ok {
		return err
	}
	if err := mkdirpSync(parent, mode); err != nil {
		return err
	}
	_, err = performPath(&iomgr.Op{Opcode: iomgr.OpMkdir, Path: trimmed, Mode: mode})
	return err
}

func (f *FS) RmdirSync(path string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	_, err := performPath(&iomgr.Op{Opcode: iomgr.OpRmdir, Path: path})
	return err
}

func (f *FS) UnlinkSync(path string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	_, err := performPath(&iomgr.Op{Opcode: iomgr.OpUnlink, Path: path})
	return err
}

func (f *FS) RenameSync(src, dst string) error {
	if err := checkPath(src); err != nil {
		return err
	}
	if err := checkPath(dst); err != nil {
		return err
	}
	_, err := performPath(&iomgr.Op{Opcode: iomgr.OpRename, Path: src, Path2: dst})
	return err
}

func pathOutSync(code iomgr.OpCode, path string) ([]byte, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	out := make([]byte, c.PATH_MAX)
	if _, err := performPath(&iomgr.Op{Opcode: code, Path: path, Out: out}); err != nil {
		return nil, err
	}
	if i := bytes.IndexByte(out, 0); i >= 0 {
		out = out[:i]
	}
	return out, nil
}

func (f *FS) RealpathSync(path string) (string, error) {
	out, err := pathOutSync(iomgr.OpRealpath, path)
	return string(out), err
}

func (f *FS) ReadlinkSync(path string) (string, error) {
	out, err := pathOutSync(iomgr.OpReadlink, path)
	return string(out), err
}

func (f *FS) RealpathBufferSync(path string) ([]byte, error) {
	return pathOutSync(iomgr.OpRealpath, path)
}

func (f *FS) ReadlinkBufferSync(path string) ([]byte, error) {
	return pathOutSync(iomgr.OpReadlink, path)
}

func (f *FS) SymlinkSync(target, path string, typ SymlinkType) error {
	if err := checkPath(target); err != nil {
		return err
	}
	if err := checkPath(path); err != nil {
		return err
	}
	if !typ.valid() {
		return ErrInvalidSymlinkType
	}
	if _, err := iomgr.Perform(&iomgr.Op{Opcode: iomgr.OpSymlink, Path: target, Path2: path}); err != nil {
		return &os.LinkError{Op: "symlink", Old: target, New: path, Err: err}
	}
	return nil
}

func (f *FS) ReadFileSync(path string, opts ReadFileOptions) ([]byte, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	fd, err := f.OpenSync(path, opts.Flags, c.DEFAULT_FILE_MODE)
	if err != nil {
		return nil, err
	}

	data, err := readAllSync(path, fd)
	if cerr := f.CloseSync(fd); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

func readAllSync(path string, fd int) ([]byte, error) {
	st, err := statSync(&iomgr.Op{Opcode: iomgr.OpFstat, Fd: fd}, performFd)
	if err != nil {
		return nil, err
	}
	if st.IsDirectory() {
		return nil, &os.PathError{Op: "read", Path: path, Err: unix.EISDIR}
	}

	buf := make([]byte, st.Size)
	n := 0
	for n < len(buf) {
		r, err := performFd(&iomgr.Op{Opcode: iomgr.OpRead, Fd: fd, Buf: buf[n:], Off: -1})
		if err != nil {
			return nil, err
		}
		if r == 0 {
			break
		}
		n += r
	}
	return buf[:n], nil
}

func (f *FS) WriteFileSync(path string, data []byte, opts WriteFileOptions) error {
	if err := checkPath(path); err != nil {
		return err
	}
	flags, mode := opts.resolve()
	fd, err := f.OpenSync(path, flags, mode)
	if err != nil {
		return err
	}

	for written := 0; written < len(data) && err == nil; {
		var w int
		w, err = performFd(&iomgr.Op{Opcode: iomgr.OpWrite, Fd: fd, Buf: data[written:], Off: -1})
		if err == nil && w == 0 {
			err = &os.PathError{Op: "write", Path: path, Err: io.ErrShortWrite}
		}
		written += w
	}

	if cerr := f.CloseSync(fd); err == nil {
		err = cerr
	}
	return err
}
