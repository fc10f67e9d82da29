//go:build linux

package reqpool

import (
	"mooofs/internal/iomgr"

	"github.com/negrel/assert"
)

// Engine is the part of the I/O engine the pool and loop need.
type Engine interface {
	InitOp(op *iomgr.Op)
	Submit(op *iomgr.Op)
}

type Continuation func(err error, res int)

// Slot correlates one in-flight op with the continuation waiting for it.
type Slot struct {
	Op *iomgr.Op
	cb Continuation
}

// Pool is an arena of request slots. reqs[:used] are in flight, reqs[used:] are idle,
// and reqs[i].Op.Id == i always holds, so ids stay dense in [0, in-flight).
//
// Not safe for concurrent use, only the loop goroutine touches it.
type Pool struct {
	engine Engine
	reqs   []*Slot
	used   int
}

func CreatePool(engine Engine) *Pool {
	return &Pool{engine: engine}
}

func (p *Pool) Used() int { return p.used }
func (p *Pool) Len() int  { return len(p.reqs) }

func (p *Pool) alloc() *Slot {
	op := &iomgr.Op{Id: uint32(len(p.reqs))}
	p.engine.InitOp(op)
	slot := &Slot{Op: op}
	p.used++
	p.reqs = append(p.reqs, slot)
	return slot
}

func (p *Pool) Acquire() *Slot {
	if p.used == len(p.reqs) {
		return p.alloc()
	}
	slot := p.reqs[p.used]
	p.used++
	return slot
}

// Bind stores the continuation for an acquired slot.
func (p *Pool) Bind(slot *Slot, cb Continuation) {
	assert.Less(int(slot.Op.Id), p.used, "binding an idle slot")
	slot.cb = cb
}

// Resolve releases slot id and then runs its continuation, so the continuation can
// acquire again without growing the pool.
func (p *Pool) Resolve(id uint32, err error, res int) {
	assert.Less(int(id), p.used, "resolving an idle slot")
	req := p.reqs[id]
	p.used--

	// swap with the last in-flight slot so the idle region stays contiguous
	if p.used != int(id) {
		u := p.reqs[p.used]
		u.Op.Id = id
		p.reqs[id] = u
		req.Op.Id = uint32(p.used)
		p.reqs[p.used] = req
	}

	cb := req.cb
	req.cb = nil
	req.Op.Reset()

	cb(err, res)
}
