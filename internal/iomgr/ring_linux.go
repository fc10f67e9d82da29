//go:build linux

package iomgr

import (
	"runtime"
	"syscall"
	"unsafe"

	"github.com/aethne0/giouring"
	"golang.org/x/sys/unix"
)

// PERF:
// 1. register buffers for the read stream chunks
// 2. register the stream fds
// Path ops (openat/statx/mkdirat) are dominated by the kernel lookup anyway, the
// read/write path is where fixed buffers would pay off.

const STATX_MASK = unix.STATX_BASIC_STATS | unix.STATX_BTIME

func bufptr(b []byte) uintptr {
	if len(b) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&b[0]))
}

func (op *Op) prepIovecs() {
	op.iovecs = op.iovecs[:0]
	for _, b := range op.Bufs {
		var iov unix.Iovec
		if len(b) > 0 {
			iov.Base = &b[0]
		}
		iov.SetLen(len(b))
		op.iovecs = append(op.iovecs, iov)
	}
}

func (op *Op) iovptr() uintptr {
	if len(op.iovecs) == 0 {
		return 0
	}
	return uintptr(unsafe.Pointer(&op.iovecs[0]))
}

// prepPath fills an SQE for the *at family by hand: the giouring helpers take the
// path as a []byte and hand the kernel the address of the slice header.
func prepPath(sqe *giouring.SubmissionQueueEntry, opcode uint8, dfd int, path uintptr, length uint32, off uint64, flags uint32) {
	sqe.OpCode = opcode
	sqe.Fd = int32(dfd)
	sqe.Addr = uint64(path)
	sqe.Len = length
	sqe.Off = off
	sqe.OpcodeFlags = flags
}

func (m *IoMgr) prepSQE(op *Op) {
	sqe := m.ring.GetSQE()
	if sqe == nil {
		// opSem keeps us below the ring size
		panic("iomgr: submission queue overflow")
	}
	// SQEs are recycled and prepareRW leaves the flags union alone, so open flags
	// from an earlier openat would otherwise land in a write's rw_flags
	*sqe = giouring.SubmissionQueueEntry{}

	switch op.Opcode {
	case OpNop:
		sqe.PrepareNop()

	case OpOpen:
		op.pathz = cstr(op.pathz, op.Path)
		prepPath(sqe, giouring.OpOpenat, unix.AT_FDCWD, bufptr(op.pathz), op.Mode, 0,
			uint32(op.Flags|unix.O_CLOEXEC))

	case OpClose:
		sqe.PrepareClose(op.Fd)

	case OpRead:
		sqe.PrepareRead(op.Fd, bufptr(op.Buf), uint32(len(op.Buf)), uint64(op.Off))

	case OpWrite:
		sqe.PrepareWrite(op.Fd, bufptr(op.Buf), uint32(len(op.Buf)), uint64(op.Off))

	case OpReadv:
		op.prepIovecs()
		sqe.PrepareReadv(op.Fd, op.iovptr(), uint32(len(op.iovecs)), uint64(op.Off))

	case OpWritev:
		op.prepIovecs()
		sqe.PrepareWritev(op.Fd, op.iovptr(), uint32(len(op.iovecs)), uint64(op.Off))

	case OpSync:
		sqe.PrepareFsync(op.Fd, 0)

	case OpStat, OpLstat:
		var flags uint32
		if op.Opcode == OpLstat {
			flags = unix.AT_SYMLINK_NOFOLLOW
		}
		op.pathz = cstr(op.pathz, op.Path)
		prepPath(sqe, giouring.OpStatx, unix.AT_FDCWD, bufptr(op.pathz), STATX_MASK,
			uint64(uintptr(unsafe.Pointer(op.Statx))), flags)

	case OpFstat:
		op.pathz = cstr(op.pathz, "")
		prepPath(sqe, giouring.OpStatx, op.Fd, bufptr(op.pathz), STATX_MASK,
			uint64(uintptr(unsafe.Pointer(op.Statx))), unix.AT_EMPTY_PATH)

	case OpMkdir:
		op.pathz = cstr(op.pathz, op.Path)
		prepPath(sqe, giouring.OpMkdirat, unix.AT_FDCWD, bufptr(op.pathz), op.Mode, 0, 0)

	case OpRmdir, OpUnlink:
		var flags int
		if op.Opcode == OpRmdir {
			flags = unix.AT_REMOVEDIR
		}
		op.pathz = cstr(op.pathz, op.Path)
		sqe.PrepareUnlinkat(unix.AT_FDCWD, bufptr(op.pathz), flags)

	case OpRename:
		op.pathz = cstr(op.pathz, op.Path)
		op.path2z = cstr(op.path2z, op.Path2)
		// newdirfd rides in len
		newdfd := int32(unix.AT_FDCWD)
		prepPath(sqe, giouring.OpRenameat, unix.AT_FDCWD, bufptr(op.pathz), uint32(newdfd),
			uint64(bufptr(op.path2z)), 0)

	case OpSymlink:
		op.pathz = cstr(op.pathz, op.Path)
		op.path2z = cstr(op.path2z, op.Path2)
		prepPath(sqe, giouring.OpSymlinkat, unix.AT_FDCWD, bufptr(op.pathz), 0,
			uint64(bufptr(op.path2z)), 0)

	default:
		m.log.Warn("Invalid opcode", "opcode", op.Opcode)
		sqe.PrepareNop()
	}

	// WARN: op must have a fixed address until its CQE is reaped. Slot handles are
	// never freed while the engine is attached.
	sqe.UserData = uint64(uintptr(unsafe.Pointer(op)))
}

func cqeErr(res int32) error {
	if res < 0 {
		return unix.Errno(-res)
	}
	return nil
}

// "Those who sow the good seed
// Shall surely reap"
func (m *IoMgr) ringlord() {
	defer m.wg.Done()

	// note: it is possible to set interrupt affinity so io_uring io interupts will come
	// 		 to this core
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if m.cfg.RingCPU >= 0 {
		var cpuSet unix.CPUSet
		cpuSet.Zero()
		cpuSet.Set(m.cfg.RingCPU)
		err := unix.SchedSetaffinity(0, &cpuSet)
		if err != nil {
			m.log.Warn("Couldn't set core affinity for ring manager", "cpu", m.cfg.RingCPU)
		}
	}

	stime := syscall.Timespec{Sec: 0, Nsec: 1_000_000}
	var sigset unix.Sigset_t

	var queued uint = 0   // SQEs that we have "got" and prepared from the opQueue
	var inflight uint = 0 // SQEs that have been SUBMITTED

	// 1. collect ops from the opQueue and prepare SQEs
	// 2. submit
	// 3. reap CQEs and hand them to the sink
	for {
		if inflight == 0 && queued == 0 {
			// nothing to reap, park on the queue
			select {
			case op := <-m.opQueue:
				m.prepSQE(op)
				queued++
			case <-m.quit:
				return
			}
		}

	COLLECT:
		for {
			select {
			case op := <-m.opQueue:
				m.prepSQE(op)
				queued++
			default:
				break COLLECT
			}
		}

		if queued > 0 {
			submitted, err := m.ring.Submit()
			if err != nil && err != unix.EINTR && err != unix.EAGAIN {
				m.log.Error("Submit", "err", err)
			}
			queued -= submitted
			inflight += submitted
		}

		reaped := m.reap(&inflight)

		if reaped == 0 && inflight > 0 {
			// bounded wait so new ops on the opQueue don't sit behind a slow CQE
			_, err := m.ring.SubmitAndWaitTimeout(1, &stime, &sigset)
			if err != nil && err != unix.ETIME && err != unix.EINTR && err != unix.EAGAIN {
				m.log.Error("SubmitAndWaitTimeout", "err", err)
				runtime.Gosched()
			}
			m.reap(&inflight)
		}
	}
}

func (m *IoMgr) reap(inflight *uint) int {
	reaped := 0
	for *inflight > 0 {
		cqe, err := m.ring.PeekCQE()
		if err == unix.EAGAIN || err == unix.EINTR || err == unix.ETIME {
			break
		} else if err != nil {
			m.log.Error("Peek cqe fatal error", "err", err)
			panic("iomgr: io_uring completion queue broken")
		}
		if cqe == nil {
			break
		}

		op := (*Op)(unsafe.Pointer(uintptr(cqe.UserData)))
		res := cqe.Res
		m.ring.CQESeen(cqe)
		*inflight--
		reaped++
		<-m.opSem

		if op.Opcode == OpNop {
			res = 0
		}
		m.sink(op, cqeErr(res), int(res))
	}
	return reaped
}
