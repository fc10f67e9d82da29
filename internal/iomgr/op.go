//go:build linux

package iomgr

import (
	"golang.org/x/sys/unix"
)

type OpCode uint16

const (
	OpNop OpCode = iota
	OpOpen
	OpClose
	OpRead
	OpWrite
	OpReadv
	OpWritev
	OpSync
	OpStat
	OpLstat
	OpFstat
	OpFtruncate
	OpChmod
	OpFchmod
	OpMkdir
	OpRmdir
	OpUnlink
	OpRename
	OpRealpath
	OpReadlink
	OpSymlink
	OpOpendir
	OpReaddir
	OpClosedir
)

var opNames = [...]string{
	OpNop:       "nop",
	OpOpen:      "open",
	OpClose:     "close",
	OpRead:      "read",
	OpWrite:     "write",
	OpReadv:     "readv",
	OpWritev:    "writev",
	OpSync:      "fsync",
	OpStat:      "stat",
	OpLstat:     "lstat",
	OpFstat:     "fstat",
	OpFtruncate: "ftruncate",
	OpChmod:     "chmod",
	OpFchmod:    "fchmod",
	OpMkdir:     "mkdir",
	OpRmdir:     "rmdir",
	OpUnlink:    "unlink",
	OpRename:    "rename",
	OpRealpath:  "realpath",
	OpReadlink:  "readlink",
	OpSymlink:   "symlink",
	OpOpendir:   "opendir",
	OpReaddir:   "readdir",
	OpClosedir:  "closedir",
}

func (o OpCode) String() string {
	if int(o) < len(opNames) {
		return opNames[o]
	}
	return "invalid"
}

// ringable reports whether the op has an io_uring opcode. Everything else goes to
// the blocking workers.
func (o OpCode) ringable() bool {
	switch o {
	case OpNop, OpOpen, OpClose, OpRead, OpWrite, OpReadv, OpWritev, OpSync,
		OpStat, OpLstat, OpFstat, OpMkdir, OpRmdir, OpUnlink, OpRename, OpSymlink:
		return true
	}
	return false
}

// Op is the native handle of one request slot. It lives as long as the slot does and
// is reused for every operation the slot carries, so its address is stable and can
// be handed to the ring as user data.
//
// Fields above the line are inputs set by the submitter, fields below are
// out-parameters the caller allocates per call and the engine fills in.
type Op struct {
	Id     uint32
	Opcode OpCode

	Fd    int
	Path  string
	Path2 string // rename destination, symlink path
	Flags int
	Mode  uint32
	Off   int64 // -1 = current file position
	Size  int64

	Buf  []byte
	Bufs [][]byte

	// ---

	Statx      *unix.Statx_t
	Out        []byte // realpath/readlink, NUL terminated on success
	Dir        *Dir
	Batch      *[]RawDirent
	MaxEntries int

	// scratch owned by the handle and reused across operations
	pathz  []byte
	path2z []byte
	iovecs []unix.Iovec
}

// Reset drops every per-call reference so an idle slot doesn't keep the last
// caller's buffers alive. The id and the reusable scratch stay.
func (op *Op) Reset() {
	id := op.Id
	pathz, path2z, iovecs := op.pathz[:0], op.path2z[:0], op.iovecs[:0]
	clear(iovecs[:cap(iovecs)])
	*op = Op{Id: id, pathz: pathz, path2z: path2z, iovecs: iovecs}
}

func cstr(dst []byte, s string) []byte {
	dst = append(dst[:0], s...)
	return append(dst, 0)
}
