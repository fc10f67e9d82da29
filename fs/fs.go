//go:build linux

// Package fs is an asynchronous filesystem layer. Every operation is handed to the
// I/O engine on a request slot and its callback runs on the FS's loop goroutine once
// the engine reports completion.
//
// Callbacks must not block on other FS calls: the blocking adapters (io.Reader on
// ReadStream, io.Writer on WriteStream, Dir.All, the Promises forms) are for use
// from other goroutines.
package fs

import (
	"log/slog"
	"sync"

	c "mooofs/internal"
	"mooofs/internal/iomgr"
	"mooofs/internal/reqpool"
)

type Options struct {
	Logger *slog.Logger

	RingEntries uint32
	Workers     int
	DisableRing bool
	PinRing     bool
	RingCPU     int

	// read stream chunk ceiling
	ChunkSize int
	// directory stream batch capacity
	DirBatch int
}

func DefaultOptions() Options {
	return Options{
		RingEntries: iomgr.RING_ENTRIES,
		Workers:     iomgr.WORKERS,
		ChunkSize:   c.CHUNK_SIZE,
		DirBatch:    c.DIR_BATCH,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.RingEntries == 0 {
		o.RingEntries = d.RingEntries
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.ChunkSize <= 0 {
		o.ChunkSize = d.ChunkSize
	}
	if o.DirBatch <= 0 {
		o.DirBatch = d.DirBatch
	}
	return o
}

type FS struct {
	log    *slog.Logger
	opts   Options
	engine *iomgr.IoMgr
	loop   *reqpool.Loop

	shutdown sync.Once
}

func New(opts Options) (*FS, error) {
	opts = opts.withDefaults()

	cfg := iomgr.Config{
		RingEntries: opts.RingEntries,
		Workers:     opts.Workers,
		DisableRing: opts.DisableRing,
		RingCPU:     -1,
	}
	if opts.PinRing {
		cfg.RingCPU = opts.RingCPU
	}

	var loop *reqpool.Loop
	engine, err := iomgr.CreateIoMgr(cfg, func(op *iomgr.Op, err error, res int) {
		loop.Complete(op, err, res)
	})
	if err != nil {
		return nil, err
	}
	loop = reqpool.CreateLoop(opts.Logger, engine)

	f := &FS{
		log:    opts.Logger.With("src", "FS"),
		opts:   opts,
		engine: engine,
		loop:   loop,
	}
	f.log.Debug("New", "ring", engine.HasRing(), "workers", opts.Workers,
		"chunk", opts.ChunkSize, "dirBatch", opts.DirBatch)
	return f, nil
}

// Shutdown stops accepting operations, waits for everything in flight to resolve
// and detaches the engine. It must not be called from a callback.
func (f *FS) Shutdown() {
	f.shutdown.Do(func() {
		f.loop.Stop()
		<-f.loop.Done()
		f.engine.Close()
		f.log.Debug("Shutdown")
	})
}

// Ring reports whether operations go through io_uring or only the worker pool.
func (f *FS) Ring() bool {
	return f.engine.HasRing()
}

func (f *FS) post(fn func()) error {
	if err := f.loop.Post(fn); err != nil {
		return ErrClosed
	}
	return nil
}
