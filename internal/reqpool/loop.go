//go:build linux

package reqpool

import (
	"errors"
	"log/slog"
	"sync"

	"mooofs/internal/iomgr"
)

var ErrLoopClosed = errors.New("reqpool: loop closed")

type event struct {
	task func()

	op  *iomgr.Op
	err error
	res int
}

// Loop is the single execution context: one goroutine runs every posted task and
// every completion, one at a time, in arrival order. It is the only thing that
// touches the Pool, which is why the pool needs no locking.
//
// Post and Complete only append to the inbox and never block, so engine goroutines
// can't wedge against a loop that is itself waiting on engine capacity.
type Loop struct {
	log    *slog.Logger
	pool   *Pool
	engine Engine

	mu       sync.Mutex
	inbox    []event
	stopping bool
	wake     chan struct{}
	done     chan struct{}
}

func CreateLoop(log *slog.Logger, engine Engine) *Loop {
	l := &Loop{
		log:    log.With("src", "Loop"),
		pool:   CreatePool(engine),
		engine: engine,
		wake:   make(chan struct{}, 1),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *Loop) push(ev event) {
	l.inbox = append(l.inbox, ev)
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) Post(fn func()) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopping {
		return ErrLoopClosed
	}
	l.push(event{task: fn})
	return nil
}

// Complete is the engine's completion sink.
func (l *Loop) Complete(op *iomgr.Op, err error, res int) {
	l.mu.Lock()
	l.push(event{op: op, err: err, res: res})
	l.mu.Unlock()
}

// Submit hands an op to the engine on a fresh slot. Loop goroutine only.
func (l *Loop) Submit(prep func(op *iomgr.Op), cb Continuation) {
	slot := l.pool.Acquire()
	prep(slot.Op)
	l.pool.Bind(slot, cb)
	l.engine.Submit(slot.Op)
}

// Pool is exposed for introspection from loop tasks.
func (l *Loop) Pool() *Pool { return l.pool }

// Stop refuses further posts. The loop keeps going until nothing is queued and
// nothing is in flight, then Done closes.
func (l *Loop) Stop() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.stopping {
		return
	}
	l.stopping = true
	select {
	case l.wake <- struct{}{}:
	default:
	}
}

func (l *Loop) Done() <-chan struct{} { return l.done }

func (l *Loop) run() {
	defer close(l.done)
	var batch []event

	for range l.wake {
		for {
			l.mu.Lock()
			batch, l.inbox = l.inbox, batch[:0]
			stopping := l.stopping
			l.mu.Unlock()

			if len(batch) == 0 {
				if stopping && l.pool.Used() == 0 {
					l.log.Debug("loop exiting", "slots", l.pool.Len())
					return
				}
				break
			}

			for i := range batch {
				ev := &batch[i]
				if ev.task != nil {
					ev.task()
				} else {
					// the id is read here, on the loop, because a swap may have
					// renumbered the slot while its op was in flight
					l.pool.Resolve(ev.op.Id, ev.err, ev.res)
				}
				*ev = event{}
			}
		}
	}
}
