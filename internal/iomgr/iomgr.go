//go:build linux

package iomgr

import (
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/aethne0/giouring"
	"golang.org/x/sys/unix"
)

const MMAP_MODE = unix.MAP_ANON | unix.MAP_PRIVATE
const MMAP_PROT = unix.PROT_READ | unix.PROT_WRITE
const RING_ENTRIES = 0x80
const OP_Q_SIZE = 0x100
const WORKERS = 4

var (
	ErrInvalidArg = errors.New("iomgr: invalid arg")
	ErrClosed     = errors.New("iomgr: closed")
)

// For scratch buffers the kernel writes raw records into (directory batches). The
// allocation is page aligned and lives outside the Go heap, so it must be handed back
// with DeallocSlab.
func AllocSlab(size int) ([]byte, error) {
	raw, err := unix.Mmap(-1, 0, size, MMAP_PROT, MMAP_MODE)
	if err != nil {
		slog.Error("AllocSlab", "err", err)
	}
	return raw, err
}

func DeallocSlab(ptr []byte) error {
	err := unix.Munmap(ptr)
	if err != nil {
		slog.Error("DeallocSlab", "err", err)
	}
	return err
}

// Sink receives every completion, from the ring and from the workers. It must not
// block: engine goroutines call it while holding submission capacity.
type Sink func(op *Op, err error, res int)

type Config struct {
	RingEntries uint32
	Workers     int
	DisableRing bool
	RingCPU     int // pin the ring goroutine to this core, -1 to leave it alone
}

func DefaultConfig() Config {
	return Config{
		RingEntries: RING_ENTRIES,
		Workers:     WORKERS,
		RingCPU:     -1,
	}
}

// IoMgr is the engine. Ops with an io_uring opcode go through the ring goroutine,
// the rest (and everything, when the ring is unavailable) run on blocking workers.
// Both report through the same Sink.
type IoMgr struct {
	log  *slog.Logger
	cfg  Config
	sink Sink

	ring    *giouring.Ring
	opQueue chan *Op
	opSem   chan struct{}

	blockQ chan *Op

	quit      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
	handles   atomic.Int32
}

func CreateIoMgr(cfg Config, sink Sink) (*IoMgr, error) {
	if cfg.Workers < 1 || sink == nil {
		return nil, ErrInvalidArg
	}
	if cfg.RingEntries == 0 {
		cfg.RingEntries = RING_ENTRIES
	}
	log := slog.With("src", "IoMgr")

	m := &IoMgr{
		log:    log,
		cfg:    cfg,
		sink:   sink,
		blockQ: make(chan *Op, OP_Q_SIZE),
		quit:   make(chan struct{}),
	}

	if !cfg.DisableRing {
		ring, err := giouring.CreateRing(cfg.RingEntries)
		if err != nil {
			// seccomp'd containers and old kernels refuse io_uring_setup
			log.Warn("io_uring unavailable, running every op on workers", "err", err)
		} else {
			m.ring = ring
			m.opQueue = make(chan *Op, OP_Q_SIZE)
			m.opSem = make(chan struct{}, cfg.RingEntries)
			m.wg.Add(1)
			go m.ringlord()
		}
	}

	for range cfg.Workers {
		m.wg.Add(1)
		go m.worker()
	}

	log.Debug("CreateIoMgr", "ring", m.ring != nil, "workers", cfg.Workers)
	return m, nil
}

func (m *IoMgr) HasRing() bool {
	return m.ring != nil
}

// Close must only be called once nothing is in flight; completions that arrive
// after it are dropped.
func (m *IoMgr) Close() {
	m.closeOnce.Do(func() {
		close(m.quit)
		m.wg.Wait()
		if m.ring != nil {
			m.ring.QueueExit()
		}
		m.log.Debug("Close", "handles", m.handles.Load())
	})
}

// InitOp registers a freshly allocated slot handle with the engine.
func (m *IoMgr) InitOp(op *Op) {
	op.iovecs = make([]unix.Iovec, 0, 8)
	m.handles.Add(1)
}

// Submit never waits for the op itself, only for queue capacity.
func (m *IoMgr) Submit(op *Op) {
	if op.Opcode > OpClosedir {
		m.log.Warn("Invalid opcode", "opcode", op.Opcode)
		m.sink(op, unix.EINVAL, 0)
		return
	}
	if m.ring != nil && op.Opcode.ringable() {
		m.opSem <- struct{}{}
		m.opQueue <- op
		return
	}
	m.blockQ <- op
}

func (m *IoMgr) worker() {
	defer m.wg.Done()
	for {
		select {
		case op := <-m.blockQ:
			res, err := Perform(op)
			m.sink(op, err, res)
		case <-m.quit:
			return
		}
	}
}
