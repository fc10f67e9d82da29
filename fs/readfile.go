//go:build linux

package fs

import (
	"io"
	"os"

	c "mooofs/internal"

	"golang.org/x/sys/unix"
)

type ReadFileOptions struct {
	Flags int // default O_RDONLY
}

type WriteFileOptions struct {
	Flags int    // 0 means O_TRUNC|O_CREAT|O_WRONLY
	Mode  uint32 // 0 means 0o666
}

func (o WriteFileOptions) resolve() (int, uint32) {
	flags, mode := o.Flags, o.Mode
	if flags == 0 {
		flags = O_TRUNC | O_CREAT | O_WRONLY
	}
	if mode == 0 {
		mode = c.DEFAULT_FILE_MODE
	}
	return flags, mode
}

// ReadFile reads the whole file. The buffer is sized from fstat, so files that
// report size 0 (procfs and friends) read back empty.
func (f *FS) ReadFile(path string, opts ReadFileOptions, cb func(data []byte, err error)) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.readFile(path, opts.Flags, cb) })
}

func (f *FS) WriteFile(path string, data []byte, opts WriteFileOptions, cb func(err error)) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	flags, mode := opts.resolve()
	return f.post(func() { f.writeFile(path, data, flags, mode, cb) })
}

// closeWith closes fd and reports err if set, otherwise the close error.
func (f *FS) closeWith(fd int, err error, cb func(error)) {
	f.close(fd, func(cerr error) {
		if err != nil {
			cb(err)
			return
		}
		cb(cerr)
	})
}

func (f *FS) readFile(path string, flags int, cb func([]byte, error)) {
	f.open(path, flags, c.DEFAULT_FILE_MODE, func(fd int, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		fail := func(err error) { f.closeWith(fd, err, func(err error) { cb(nil, err) }) }

		f.fstat(fd, func(st *Stats, err error) {
			if err != nil {
				fail(err)
				return
			}
			if st.IsDirectory() {
				fail(&os.PathError{Op: "read", Path: path, Err: unix.EISDIR})
				return
			}

			buf := make([]byte, st.Size)
			n := 0
			done := func() {
				f.closeWith(fd, nil, func(err error) {
					if err != nil {
						cb(nil, err)
						return
					}
					cb(buf[:n], nil)
				})
			}

			var step func(int, error)
			step = func(r int, err error) {
				if err != nil {
					fail(err)
					return
				}
				n += r
				if r == 0 || n == len(buf) {
					done()
					return
				}
				f.read(fd, buf[n:], -1, step)
			}
			if len(buf) == 0 {
				done()
				return
			}
			f.read(fd, buf, -1, step)
		})
	})
}

func (f *FS) writeFile(path string, data []byte, flags int, mode uint32, cb func(error)) {
	f.open(path, flags, mode, func(fd int, err error) {
		if err != nil {
			cb(err)
			return
		}

		written := 0
		var step func(int, error)
		step = func(w int, err error) {
			if err != nil {
				f.closeWith(fd, err, cb)
				return
			}
			written += w
			if written >= len(data) {
				f.closeWith(fd, nil, cb)
				return
			}
			if w == 0 {
				f.closeWith(fd, &os.PathError{Op: "write", Path: path, Err: io.ErrShortWrite}, cb)
				return
			}
			f.write(fd, data[written:], -1, step)
		}
		if len(data) == 0 {
			f.closeWith(fd, nil, cb)
			return
		}
		f.write(fd, data, -1, step)
	})
}
