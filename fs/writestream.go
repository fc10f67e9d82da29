//go:build linux

package fs

import (
	"log/slog"

	c "mooofs/internal"
)

type WriteStreamOptions struct {
	Flags int    // 0 means O_TRUNC|O_CREAT|O_WRONLY
	Mode  uint32 // 0 means 0o666
}

type wsState uint8

const (
	wsUnopened wsState = iota
	wsOpening
	wsWritable
	wsWriting
	wsEnded
	wsErrored
	wsDestroyed
)

// WriteStream appends chunks to a file at its current position. Chunks pushed
// while a batch is in flight are coalesced into the next writev.
type WriteStream struct {
	f     *FS
	log   *slog.Logger
	path  string
	flags int
	mode  uint32

	state wsState
	fd    int
	err   error

	queue    [][]byte
	queueCbs []func(error)

	ending  bool
	endCbs  []func(error)
	closing bool

	destroying bool
	waiters    []func(error)
}

func (f *FS) CreateWriteStream(path string, opts WriteStreamOptions) (*WriteStream, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	s := &WriteStream{
		f:     f,
		log:   f.log.With("src", "WriteStream", "path", path),
		path:  path,
		flags: opts.Flags,
		mode:  opts.Mode,
		fd:    -1,
	}
	if s.flags == 0 {
		s.flags = O_TRUNC | O_CREAT | O_WRONLY
	}
	if s.mode == 0 {
		s.mode = c.DEFAULT_FILE_MODE
	}
	return s, nil
}

// Push queues chunk. cb, which may be nil, runs once the batch holding chunk is
// written. chunk must not be modified until then.
func (s *WriteStream) Push(chunk []byte, cb func(err error)) error {
	if err := checkBuf(chunk); err != nil {
		return err
	}
	return s.f.post(func() { s.push(chunk, cb) })
}

// End flushes whatever is queued and closes the fd.
func (s *WriteStream) End(cb func(err error)) error {
	return s.f.post(func() { s.end(cb) })
}

// Destroy drops queued chunks and closes the fd if it was opened.
func (s *WriteStream) Destroy(cb func(err error)) error {
	return s.f.post(func() { s.destroy(cb) })
}

func call(cb func(error), err error) {
	if cb != nil {
		cb(err)
	}
}

func (s *WriteStream) push(chunk []byte, cb func(error)) {
	switch {
	case s.state == wsErrored:
		call(cb, s.err)
	case s.state == wsDestroyed || s.destroying:
		call(cb, ErrStreamDestroyed)
	case s.ending || s.state == wsEnded:
		call(cb, ErrWriteAfterEnd)
	default:
		s.queue = append(s.queue, chunk)
		s.queueCbs = append(s.queueCbs, cb)
		s.kick()
	}
}

func (s *WriteStream) end(cb func(error)) {
	switch {
	case s.state == wsEnded && s.closing:
		s.endCbs = append(s.endCbs, cb)
	case s.state == wsEnded:
		call(cb, nil)
	case s.state == wsErrored:
		call(cb, s.err)
	case s.state == wsDestroyed || s.destroying:
		call(cb, ErrStreamDestroyed)
	default:
		s.ending = true
		s.endCbs = append(s.endCbs, cb)
		s.kick()
	}
}

// kick moves the stream forward from a resting state: open, flush the next batch
// or finish.
func (s *WriteStream) kick() {
	switch s.state {
	case wsUnopened:
		s.state = wsOpening
		s.f.open(s.path, s.flags, s.mode, func(fd int, err error) {
			if err == nil {
				s.fd = fd
			}
			if s.destroying {
				s.finishDestroy()
				return
			}
			if err != nil {
				s.fail(err)
				return
			}
			s.state = wsWritable
			s.kick()
		})

	case wsWritable:
		if len(s.queue) == 0 {
			if s.ending {
				s.finish()
			}
			return
		}

		n := min(len(s.queue), IOV_MAX)
		batch, cbs := s.queue[:n:n], s.queueCbs[:n:n]
		s.queue, s.queueCbs = s.queue[n:], s.queueCbs[n:]

		s.state = wsWriting
		s.f.writev(s.fd, batch, -1, func(_ int, err error) {
			if s.destroying {
				for _, cb := range cbs {
					call(cb, ErrStreamDestroyed)
				}
				s.finishDestroy()
				return
			}
			if err != nil {
				for _, cb := range cbs {
					call(cb, err)
				}
				s.fail(err)
				return
			}
			s.state = wsWritable
			for _, cb := range cbs {
				call(cb, nil)
			}
			s.kick()
		})
	}
}

func (s *WriteStream) finish() {
	s.state = wsEnded
	s.ending = false
	s.closeFd(func(err error) {
		cbs := s.endCbs
		s.endCbs = nil
		for _, cb := range cbs {
			call(cb, err)
		}
	})
}

// fail reports err to everything queued, then releases the fd.
func (s *WriteStream) fail(err error) {
	s.state, s.err = wsErrored, err
	s.drain(err)
	s.closeFd(func(cerr error) {
		if cerr != nil {
			s.log.Debug("close after error", "err", cerr)
		}
	})
}

func (s *WriteStream) drain(err error) {
	cbs := append(s.queueCbs, s.endCbs...)
	s.queue, s.queueCbs, s.endCbs = nil, nil, nil
	s.ending = false
	for _, cb := range cbs {
		call(cb, err)
	}
}

func (s *WriteStream) destroy(cb func(error)) {
	switch {
	case s.closing || s.destroying:
		s.waiters = append(s.waiters, cb)
	case s.state == wsOpening || s.state == wsWriting:
		s.destroying = true
		s.waiters = append(s.waiters, cb)
	case s.state == wsEnded || s.state == wsErrored || s.state == wsDestroyed:
		call(cb, nil)
	default:
		s.waiters = append(s.waiters, cb)
		s.finishDestroy()
	}
}

func (s *WriteStream) finishDestroy() {
	s.destroying = false
	s.state = wsDestroyed
	s.drain(ErrStreamDestroyed)
	s.closeFd(func(err error) {
		if err != nil {
			s.log.Debug("close on destroy", "err", err)
		}
	})
}

// closeFd closes the fd once, then runs fn with the close error and flushes
// Destroy waiters.
func (s *WriteStream) closeFd(fn func(error)) {
	done := func(err error) {
		fn(err)
		waiters := s.waiters
		s.waiters = nil
		for _, w := range waiters {
			call(w, nil)
		}
	}
	if s.fd < 0 {
		done(nil)
		return
	}

	fd := s.fd
	s.fd = -1
	s.closing = true
	s.f.close(fd, func(err error) {
		s.closing = false
		done(err)
	})
}

// Write implements io.Writer on top of Push. It returns once p is on disk, so p
// is not retained. Not for use on the loop goroutine.
func (s *WriteStream) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	ch := make(chan error, 1)
	if err := s.Push(p, func(err error) { ch <- err }); err != nil {
		return 0, err
	}
	if err := <-ch; err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close implements io.Closer by ending the stream.
func (s *WriteStream) Close() error {
	ch := make(chan error, 1)
	if err := s.End(func(err error) { ch <- err }); err != nil {
		return err
	}
	return <-ch
}
