//go:build linux

package fs

import (
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"

	c "mooofs/internal"
	"mooofs/internal/iomgr"
	"mooofs/internal/util"
)

type DirOptions struct {
	Encoding   Encoding // default utf8
	BufferSize int      // entries per batch, default from Options.DirBatch
}

type dirState uint8

const (
	dirIdle dirState = iota
	dirReading
	dirClosing
	dirClosed
)

// Dir enumerates a directory in batches. Next and Close must not overlap with a
// batch in flight on the same handle; the state machine takes care of that, so
// callers may call Close at any point.
type Dir struct {
	f    *FS
	log  *slog.Logger
	path string
	enc  Encoding

	handle  *iomgr.Dir
	scratch []byte
	batch   int
	ents    util.Queue[*Dirent]

	state    dirState
	ended    bool
	err      error
	closeErr error
	// close asked for while a batch was in flight
	closeReq bool
	waiters  []func(error)
}

func (o DirOptions) resolve(f *FS) (DirOptions, error) {
	enc, err := ParseEncoding(string(o.Encoding))
	if err != nil {
		return o, err
	}
	o.Encoding = enc
	if o.BufferSize < 0 {
		return o, fmt.Errorf("%w: buffer size must be >= 1, got %d", ErrOutOfRange, o.BufferSize)
	}
	if o.BufferSize == 0 {
		o.BufferSize = f.opts.DirBatch
	}
	return o, nil
}

func (f *FS) Opendir(path string, opts DirOptions, cb func(d *Dir, err error)) error {
	if err := checkPath(path); err != nil {
		return err
	}
	opts, err := opts.resolve(f)
	if err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.opendir(path, opts, cb) })
}

func (f *FS) opendir(path string, opts DirOptions, cb func(*Dir, error)) {
	h := iomgr.NewDir()
	f.opendirHandle(path, h, func(err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		scratch, err := iomgr.AllocSlab(opts.BufferSize * c.DIRENT_MAX)
		if err != nil {
			f.closedir(path, h, func(error) { cb(nil, err) })
			return
		}
		cb(&Dir{
			f:       f,
			log:     f.log.With("src", "Dir", "path", path),
			path:    path,
			enc:     opts.Encoding,
			handle:  h,
			scratch: scratch,
			batch:   opts.BufferSize,
			ents:    util.CreateQueue[*Dirent](opts.BufferSize),
		}, nil)
	})
}

func (d *Dir) Path() string { return d.path }

// Next delivers one entry, or io.EOF once the directory is exhausted.
func (d *Dir) Next(cb func(ent *Dirent, err error)) error {
	if cb == nil {
		return errNoCallback
	}
	return d.f.post(func() { d.next(cb) })
}

// Close releases the handle. Entries still buffered are dropped.
func (d *Dir) Close(cb func(err error)) error {
	if cb == nil {
		return errNoCallback
	}
	return d.f.post(func() { d.close(cb) })
}

func (d *Dir) next(cb func(*Dirent, error)) {
	if d.ents.Cnt() > 0 {
		cb(d.ents.Pop(), nil)
		return
	}
	switch {
	case d.err != nil:
		cb(nil, d.err)
	case d.ended:
		cb(nil, io.EOF)
	case d.state == dirReading:
		cb(nil, ErrStreamBusy)
	case d.state == dirClosing, d.state == dirClosed:
		cb(nil, ErrDirClosed)
	default:
		d.fill(cb)
	}
}

func (d *Dir) fill(cb func(*Dirent, error)) {
	d.state = dirReading
	raw := make([]iomgr.RawDirent, 0, d.batch)
	d.f.readdirBatch(d.path, d.handle, d.scratch, d.batch, &raw, func(n int, err error) {
		d.state = dirIdle
		if d.closeReq {
			d.closeReq = false
			d.release(nil)
			cb(nil, ErrDirClosed)
			return
		}
		if err != nil {
			d.err = err
			d.release(func(error) { cb(nil, err) })
			return
		}
		if len(raw) == 0 {
			d.ended = true
			d.release(func(error) { cb(nil, io.EOF) })
			return
		}
		for _, r := range raw {
			d.ents.Push(newDirent(d.path, r, d.enc))
		}
		cb(d.ents.Pop(), nil)
	})
}

func (d *Dir) close(cb func(error)) {
	if d.state == dirClosed {
		// the first Close after an automatic release gets its result
		err := d.closeErr
		d.closeErr = nil
		cb(err)
		return
	}

	reported := func(err error) {
		d.closeErr = nil
		cb(err)
	}
	switch d.state {
	case dirClosing:
		d.waiters = append(d.waiters, reported)
	case dirReading:
		d.closeReq = true
		d.waiters = append(d.waiters, reported)
	default:
		d.release(reported)
	}
}

// release submits the one closedir for this handle and frees the scratch slab.
// Waiters registered earlier get the same result as cb.
func (d *Dir) release(cb func(error)) {
	if cb != nil {
		d.waiters = append(d.waiters, cb)
	}
	d.state = dirClosing
	d.f.closedir(d.path, d.handle, func(err error) {
		d.state = dirClosed
		d.ents.Clear()
		if d.scratch != nil {
			iomgr.DeallocSlab(d.scratch)
			d.scratch = nil
		}
		if err != nil {
			d.log.Debug("closedir", "err", err)
		}

		d.closeErr = err
		waiters := d.waiters
		d.waiters = nil
		for _, w := range waiters {
			w(err)
		}
	})
}

// Read blocks for the next entry. Not for use on the loop goroutine.
func (d *Dir) Read() (*Dirent, error) {
	type result struct {
		ent *Dirent
		err error
	}
	ch := make(chan result, 1)
	if err := d.Next(func(ent *Dirent, err error) { ch <- result{ent, err} }); err != nil {
		return nil, err
	}
	r := <-ch
	return r.ent, r.err
}

// CloseWait blocks until the handle is closed.
func (d *Dir) CloseWait() error {
	ch := make(chan error, 1)
	if err := d.Close(func(err error) { ch <- err }); err != nil {
		return err
	}
	return <-ch
}

// All yields every remaining entry. At the end the handle's close result is yielded
// if it failed. Breaking out of the loop closes the handle; a close error there has
// nowhere to go and is only logged.
func (d *Dir) All() iter.Seq2[*Dirent, error] {
	return func(yield func(*Dirent, error) bool) {
		for {
			ent, err := d.Read()
			if errors.Is(err, io.EOF) {
				if cerr := d.CloseWait(); cerr != nil {
					yield(nil, cerr)
				}
				return
			}
			if !yield(ent, err) {
				if cerr := d.CloseWait(); cerr != nil {
					d.log.Warn("close after break", "err", cerr)
				}
				return
			}
			if err != nil {
				return
			}
		}
	}
}

// Readdir lists path.
func (f *FS) Readdir(path string, opts DirOptions, cb func(ents []*Dirent, err error)) error {
	if err := checkPath(path); err != nil {
		return err
	}
	opts, err := opts.resolve(f)
	if err != nil {
		return err
	}
	if cb == nil {
		return errNoCallback
	}
	return f.post(func() { f.readdir(path, opts, cb) })
}

// ReaddirNames lists path as decoded names only.
func (f *FS) ReaddirNames(path string, opts DirOptions, cb func(names []string, err error)) error {
	if cb == nil {
		return errNoCallback
	}
	return f.Readdir(path, opts, func(ents []*Dirent, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		cb(Names(ents), nil)
	})
}

func (f *FS) readdir(path string, opts DirOptions, cb func([]*Dirent, error)) {
	f.opendir(path, opts, func(d *Dir, err error) {
		if err != nil {
			cb(nil, err)
			return
		}
		var out []*Dirent
		var step func(*Dirent, error)
		step = func(ent *Dirent, err error) {
			switch {
			case errors.Is(err, io.EOF):
				d.close(func(cerr error) {
					if cerr != nil {
						cb(nil, cerr)
						return
					}
					cb(out, nil)
				})
			case err != nil:
				d.close(func(error) { cb(nil, err) })
			default:
				out = append(out, ent)
				d.next(step)
			}
		}
		d.next(step)
	})
}
