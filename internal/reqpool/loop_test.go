//go:build linux

package reqpool

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"mooofs/internal/iomgr"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// asyncEngine completes every op from its own goroutine, in reverse submission
// order per flush, to exercise out-of-order delivery.
type asyncEngine struct {
	mu   sync.Mutex
	loop *Loop
	held []*iomgr.Op
}

func (e *asyncEngine) InitOp(op *iomgr.Op) {}
func (e *asyncEngine) Submit(op *iomgr.Op) {
	e.mu.Lock()
	e.held = append(e.held, op)
	e.mu.Unlock()
}

func (e *asyncEngine) flush() int {
	e.mu.Lock()
	held := e.held
	e.held = nil
	e.mu.Unlock()
	go func() {
		for i := len(held) - 1; i >= 0; i-- {
			e.loop.Complete(held[i], nil, int(held[i].Off))
		}
	}()
	return len(held)
}

func waitDone(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out")
	}
}

func Test_Loop_Post_Order(t *testing.T) {
	l := CreateLoop(slog.Default(), &fakeEngine{})

	var got []int
	done := make(chan struct{})
	for i := range 100 {
		require.NoError(t, l.Post(func() {
			got = append(got, i)
			if i == 99 {
				close(done)
			}
		}))
	}
	waitDone(t, done)

	for i, v := range got {
		assert.Equal(t, i, v)
	}

	l.Stop()
	waitDone(t, l.Done())
	assert.ErrorIs(t, l.Post(func() {}), ErrLoopClosed)
}

func Test_Loop_Submit_Completes(t *testing.T) {
	eng := &asyncEngine{}
	l := CreateLoop(slog.Default(), eng)
	eng.loop = l

	const N = 8
	results := make(chan int, N)
	require.NoError(t, l.Post(func() {
		for i := range N {
			l.Submit(func(op *iomgr.Op) {
				op.Opcode = iomgr.OpNop
				op.Off = int64(i)
			}, func(err error, res int) {
				assert.NoError(t, err)
				results <- res
			})
		}
	}))

	// wait until the loop has submitted all of them
	require.Eventually(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return len(eng.held) == N
	}, 5*time.Second, time.Millisecond)
	eng.flush()

	seen := map[int]bool{}
	for range N {
		select {
		case r := <-results:
			seen[r] = true
		case <-time.After(5 * time.Second):
			t.Fatal("timed out")
		}
	}
	assert.Len(t, seen, N)

	idle := make(chan [2]int, 1)
	require.NoError(t, l.Post(func() { idle <- [2]int{l.Pool().Used(), l.Pool().Len()} }))
	assert.Equal(t, [2]int{0, N}, <-idle)

	l.Stop()
	waitDone(t, l.Done())
}

func Test_Loop_Stop_WaitsForInflight(t *testing.T) {
	eng := &asyncEngine{}
	l := CreateLoop(slog.Default(), eng)
	eng.loop = l

	resolved := make(chan struct{})
	require.NoError(t, l.Post(func() {
		l.Submit(func(op *iomgr.Op) { op.Opcode = iomgr.OpNop }, func(error, int) {
			close(resolved)
		})
	}))
	require.Eventually(t, func() bool {
		eng.mu.Lock()
		defer eng.mu.Unlock()
		return len(eng.held) == 1
	}, 5*time.Second, time.Millisecond)

	l.Stop()
	select {
	case <-l.Done():
		t.Fatal("loop exited with an op in flight")
	case <-time.After(20 * time.Millisecond):
	}

	eng.flush()
	waitDone(t, resolved)
	waitDone(t, l.Done())
}
