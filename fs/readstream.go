//go:build linux

package fs

import (
	"fmt"
	"io"
	"log/slog"
)

type ReadStreamOptions struct {
	Start     int64
	Length    int64  // 0 = unset
	End       *int64 // inclusive, nil = unset
	ChunkSize int   // default from Options.ChunkSize
}

type rsState uint8

const (
	rsUnopened rsState = iota
	rsOpening
	rsReadable
	rsReading
	rsEnded
	rsErrored
	rsDestroyed
)

// ReadStream reads a byte range of a file one chunk per Pull. The fd is opened
// on the first Pull and closed exactly once, on end, error or Destroy.
type ReadStream struct {
	f     *FS
	log   *slog.Logger
	path  string
	chunk int

	state  rsState
	fd     int
	offset int64
	// bytes still to emit, -1 until the size is known
	remaining int64
	err       error

	closing    bool
	destroying bool
	waiters    []func(error)

	// blocking adapter state, owned by the reading goroutine
	pending []byte
	rerr    error
}

func (f *FS) CreateReadStream(path string, opts ReadStreamOptions) (*ReadStream, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	if opts.Start < 0 {
		return nil, fmt.Errorf("%w: start must be >= 0, got %d", ErrOutOfRange, opts.Start)
	}
	if opts.Length < 0 || (opts.End != nil && *opts.End < 0) {
		return nil, fmt.Errorf("%w: length and end must be >= 0", ErrOutOfRange)
	}
	if opts.ChunkSize < 0 {
		return nil, fmt.Errorf("%w: chunk size must be >= 1, got %d", ErrOutOfRange, opts.ChunkSize)
	}

	s := &ReadStream{
		f:         f,
		log:       f.log.With("src", "ReadStream", "path", path),
		path:      path,
		chunk:     opts.ChunkSize,
		fd:        -1,
		offset:    opts.Start,
		remaining: -1,
	}
	if s.chunk == 0 {
		s.chunk = f.opts.ChunkSize
	}
	switch {
	case opts.Length > 0:
		s.remaining = opts.Length
	case opts.End != nil:
		s.remaining = max(0, *opts.End-opts.Start+1)
	}
	return s, nil
}

// Pull delivers the next chunk, or io.EOF once the range is exhausted. Only one
// pull may be outstanding.
func (s *ReadStream) Pull(cb func(chunk []byte, err error)) error {
	if cb == nil {
		return errNoCallback
	}
	return s.f.post(func() { s.pull(cb) })
}

// Destroy closes the fd if it is open and reports once it is.
func (s *ReadStream) Destroy(cb func(err error)) error {
	if cb == nil {
		return errNoCallback
	}
	return s.f.post(func() { s.destroy(cb) })
}

func (s *ReadStream) pull(cb func([]byte, error)) {
	switch s.state {
	case rsUnopened:
		s.state = rsOpening
		s.open(func(err error) {
			if s.destroying {
				s.finishDestroy()
				cb(nil, ErrStreamDestroyed)
				return
			}
			if err != nil {
				s.state, s.err = rsErrored, err
				cb(nil, err)
				return
			}
			s.state = rsReadable
			s.readChunk(cb)
		})
	case rsReadable:
		s.readChunk(cb)
	case rsOpening, rsReading:
		cb(nil, ErrStreamBusy)
	case rsEnded:
		cb(nil, io.EOF)
	case rsErrored:
		cb(nil, s.err)
	case rsDestroyed:
		cb(nil, ErrStreamDestroyed)
	}
}

// open fstats once and clamps the range to the file size. On failure the fd is
// already closed and the close error is dropped.
func (s *ReadStream) open(cb func(error)) {
	s.f.open(s.path, O_RDONLY, 0, func(fd int, err error) {
		if err != nil {
			cb(err)
			return
		}
		s.f.fstat(fd, func(st *Stats, err error) {
			if err == nil && !st.IsFile() {
				err = fmt.Errorf("%w: %s", ErrNotFile, s.path)
			}
			if err != nil {
				s.f.close(fd, func(error) { cb(err) })
				return
			}
			s.fd = fd

			if s.remaining < 0 {
				s.remaining = st.Size
			}
			if s.offset > st.Size {
				s.remaining = 0
			} else if s.offset+s.remaining > st.Size {
				s.remaining = st.Size - s.offset
			}
			s.log.Debug("open", "fd", fd, "size", st.Size, "offset", s.offset, "remaining", s.remaining)
			cb(nil)
		})
	})
}

func (s *ReadStream) readChunk(cb func([]byte, error)) {
	if s.remaining == 0 {
		s.end(func() { cb(nil, io.EOF) })
		return
	}

	buf := make([]byte, min(int64(s.chunk), s.remaining))
	s.state = rsReading
	s.f.read(s.fd, buf, s.offset, func(n int, err error) {
		if s.destroying {
			s.finishDestroy()
			cb(nil, ErrStreamDestroyed)
			return
		}
		if err != nil {
			s.state, s.err = rsErrored, err
			s.teardown(func() { cb(nil, err) })
			return
		}
		if n == 0 {
			s.end(func() { cb(nil, io.EOF) })
			return
		}

		s.offset += int64(n)
		s.remaining -= int64(n)
		chunk := buf[:n]
		if s.remaining == 0 {
			// last chunk goes out once the fd is released
			s.end(func() { cb(chunk, nil) })
			return
		}
		s.state = rsReadable
		cb(chunk, nil)
	})
}

func (s *ReadStream) end(fn func()) {
	s.state = rsEnded
	s.teardown(fn)
}

func (s *ReadStream) destroy(cb func(error)) {
	switch {
	case s.closing:
		s.waiters = append(s.waiters, cb)
	case s.state == rsOpening || s.state == rsReading:
		s.destroying = true
		s.waiters = append(s.waiters, cb)
	case s.state == rsEnded || s.state == rsErrored || s.state == rsDestroyed:
		cb(nil)
	default:
		s.state = rsDestroyed
		s.waiters = append(s.waiters, cb)
		s.teardown(func() {})
	}
}

func (s *ReadStream) finishDestroy() {
	s.destroying = false
	s.state = rsDestroyed
	s.teardown(func() {})
}

// teardown closes the fd if open, runs fn and then anyone waiting on Destroy.
func (s *ReadStream) teardown(fn func()) {
	done := func() {
		fn()
		waiters := s.waiters
		s.waiters = nil
		for _, w := range waiters {
			w(nil)
		}
	}
	if s.fd < 0 {
		done()
		return
	}

	fd := s.fd
	s.fd = -1
	s.closing = true
	s.f.close(fd, func(err error) {
		s.closing = false
		if err != nil {
			s.log.Debug("close", "fd", fd, "err", err)
		}
		done()
	})
}

// Read implements io.Reader on top of Pull. Not for use on the loop goroutine.
func (s *ReadStream) Read(p []byte) (int, error) {
	for len(s.pending) == 0 {
		if s.rerr != nil {
			return 0, s.rerr
		}
		type result struct {
			chunk []byte
			err   error
		}
		ch := make(chan result, 1)
		if err := s.Pull(func(chunk []byte, err error) { ch <- result{chunk, err} }); err != nil {
			return 0, err
		}
		r := <-ch
		s.pending, s.rerr = r.chunk, r.err
	}
	n := copy(p, s.pending)
	s.pending = s.pending[n:]
	return n, nil
}

// Close implements io.Closer by destroying the stream and waiting for the fd.
func (s *ReadStream) Close() error {
	ch := make(chan error, 1)
	if err := s.Destroy(func(err error) { ch <- err }); err != nil {
		return err
	}
	return <-ch
}
