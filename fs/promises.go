//go:build linux

package fs

import (
	"context"
	"sync"
)

// Promises wraps the callback forms for goroutines that would rather block.
// Cancelling ctx abandons the wait; the operation itself still runs to
// completion on the loop.
type Promises struct {
	f *FS
}

func (f *FS) Promises() *Promises { return &Promises{f: f} }

type result[T any] struct {
	val T
	err error
}

func await[T any](ctx context.Context, start func(cb func(T, error)) error) (T, error) {
	var zero T
	ch := make(chan result[T], 1)
	if err := start(func(v T, err error) { ch <- result[T]{v, err} }); err != nil {
		return zero, err
	}
	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// awaitOwned is await for results that hold resources. A result that lands after the
// caller gave up is handed to release instead of being dropped.
func awaitOwned[T any](ctx context.Context, start func(cb func(T, error)) error, release func(T)) (T, error) {
	var zero T
	var mu sync.Mutex
	abandoned := false
	ch := make(chan result[T], 1)
	err := start(func(v T, err error) {
		mu.Lock()
		defer mu.Unlock()
		if abandoned {
			if err == nil {
				release(v)
			}
			return
		}
		ch <- result[T]{v, err}
	})
	if err != nil {
		return zero, err
	}
	select {
	case r := <-ch:
		return r.val, r.err
	case <-ctx.Done():
	}

	mu.Lock()
	abandoned = true
	mu.Unlock()
	select {
	case r := <-ch:
		if r.err == nil {
			release(r.val)
		}
	default:
	}
	return zero, ctx.Err()
}

func awaitErr(ctx context.Context, start func(cb func(error)) error) error {
	_, err := await(ctx, func(cb func(struct{}, error)) error {
		return start(func(err error) { cb(struct{}{}, err) })
	})
	return err
}

func (p *Promises) Chmod(ctx context.Context, path string, mode uint32) error {
	return awaitErr(ctx, func(cb func(error)) error { return p.f.Chmod(path, mode, cb) })
}

func (p *Promises) Lstat(ctx context.Context, path string) (*Stats, error) {
	return await(ctx, func(cb func(*Stats, error)) error { return p.f.Lstat(path, cb) })
}

func (p *Promises) Stat(ctx context.Context, path string) (*Stats, error) {
	return await(ctx, func(cb func(*Stats, error)) error { return p.f.Stat(path, cb) })
}

func (p *Promises) Mkdir(ctx context.Context, path string, opts MkdirOptions) error {
	return awaitErr(ctx, func(cb func(error)) error { return p.f.Mkdir(path, opts, cb) })
}

func (p *Promises) Opendir(ctx context.Context, path string, opts DirOptions) (*Dir, error) {
	return awaitOwned(ctx, func(cb func(*Dir, error)) error { return p.f.Opendir(path, opts, cb) },
		func(d *Dir) {
			d.Close(func(err error) {
				if err != nil {
					d.log.Warn("close abandoned dir", "err", err)
				}
			})
		})
}

func (p *Promises) ReadFile(ctx context.Context, path string, opts ReadFileOptions) ([]byte, error) {
	return await(ctx, func(cb func([]byte, error)) error { return p.f.ReadFile(path, opts, cb) })
}

func (p *Promises) WriteFile(ctx context.Context, path string, data []byte, opts WriteFileOptions) error {
	return awaitErr(ctx, func(cb func(error)) error { return p.f.WriteFile(path, data, opts, cb) })
}

func (p *Promises) Readdir(ctx context.Context, path string, opts DirOptions) ([]*Dirent, error) {
	return await(ctx, func(cb func([]*Dirent, error)) error { return p.f.Readdir(path, opts, cb) })
}

func (p *Promises) ReaddirNames(ctx context.Context, path string, opts DirOptions) ([]string, error) {
	return await(ctx, func(cb func([]string, error)) error { return p.f.ReaddirNames(path, opts, cb) })
}

func (p *Promises) ReadlinkBuffer(ctx context.Context, path string) ([]byte, error) {
	return await(ctx, func(cb func([]byte, error)) error { return p.f.ReadlinkBuffer(path, cb) })
}

func (p *Promises) RealpathBuffer(ctx context.Context, path string) ([]byte, error) {
	return await(ctx, func(cb func([]byte, error)) error { return p.f.RealpathBuffer(path, cb) })
}

func (p *Promises) Readlink(ctx context.Context, path string) (string, error) {
	return await(ctx, func(cb func(string, error)) error { return p.f.Readlink(path, cb) })
}

func (p *Promises) Realpath(ctx context.Context, path string) (string, error) {
	return await(ctx, func(cb func(string, error)) error { return p.f.Realpath(path, cb) })
}

func (p *Promises) Rename(ctx context.Context, src, dst string) error {
	return awaitErr(ctx, func(cb func(error)) error { return p.f.Rename(src, dst, cb) })
}

func (p *Promises) Rmdir(ctx context.Context, path string) error {
	return awaitErr(ctx, func(cb func(error)) error { return p.f.Rmdir(path, cb) })
}

func (p *Promises) Symlink(ctx context.Context, target, path string, typ SymlinkType) error {
	return awaitErr(ctx, func(cb func(error)) error { return p.f.Symlink(target, path, typ, cb) })
}

func (p *Promises) Unlink(ctx context.Context, path string) error {
	return awaitErr(ctx, func(cb func(error)) error { return p.f.Unlink(path, cb) })
}
